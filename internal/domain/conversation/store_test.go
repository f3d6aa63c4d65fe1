package conversation

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/aislide/aislide-bot/internal/domain/task"
)

func sampleStates() []State {
	return []State{
		Idle{},
		CollectingPitchAnswers{QuestionIndex: 2, Answers: []string{"Ali, CEO", "AISlide"}},
		ConfirmingCreation{ServiceType: task.KindPitchDeck, QuotedPrice: decimal.NewFromInt(25000)},
		ConfirmingCreation{ServiceType: task.KindPitchDeck, QuotedPrice: decimal.NewFromInt(25000), Answers: []string{"a", "b"}},
		AwaitingDepositAmount{},
		AwaitingReceipt{Amount: decimal.RequireFromString("50000.5")},
	}
}

func assertSameState(t *testing.T, want, got State) {
	t.Helper()
	if want.Kind() != got.Kind() {
		t.Fatalf("expected kind %s, got %s", want.Kind(), got.Kind())
	}
	switch w := want.(type) {
	case ConfirmingCreation:
		g := got.(ConfirmingCreation)
		if !w.QuotedPrice.Equal(g.QuotedPrice) || w.ServiceType != g.ServiceType || !reflect.DeepEqual(w.Answers, g.Answers) {
			t.Fatalf("expected %+v, got %+v", w, g)
		}
	case AwaitingReceipt:
		if g := got.(AwaitingReceipt); !w.Amount.Equal(g.Amount) {
			t.Fatalf("expected amount %s, got %s", w.Amount, g.Amount)
		}
	default:
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("expected %+v, got %+v", want, got)
		}
	}
}

func TestStateEncodingRoundTrip(t *testing.T) {
	for _, st := range sampleStates() {
		t.Run(string(st.Kind()), func(t *testing.T) {
			b, err := EncodeState(st)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := DecodeState(b)
			if err != nil {
				t.Fatalf("decode %s: %v", b, err)
			}
			assertSameState(t, st, got)
		})
	}
}

func TestDecodeStateRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"not json":     `{`,
		"unknown kind": `{"kind":"dancing"}`,
		"missing data": `{"kind":"awaiting_receipt"}`,
		"bad data":     `{"kind":"collecting_pitch_answers","data":{"question_index":"x"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeState([]byte(raw)); !errors.Is(err, ErrCorruptState) {
				t.Fatalf("expected ErrCorruptState, got %v", err)
			}
		})
	}
}

func TestMemoryStoreDefaultsToIdle(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	st, err := s.Load(context.Background(), 42)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st.Kind() != KindIdle {
		t.Fatalf("expected idle, got %s", st.Kind())
	}
}

func TestMemoryStoreExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(10 * time.Minute)
	s.now = func() time.Time { return now }

	if err := s.Save(ctx, 1, AwaitingReceipt{Amount: decimal.NewFromInt(50000)}); err != nil {
		t.Fatalf("save: %v", err)
	}

	now = now.Add(9 * time.Minute)
	if st, _ := s.Load(ctx, 1); st.Kind() != KindAwaitingReceipt {
		t.Fatalf("expected state to survive, got %s", st.Kind())
	}

	now = now.Add(2 * time.Minute)
	if st, _ := s.Load(ctx, 1); st.Kind() != KindIdle {
		t.Fatalf("expected expired state to read as idle, got %s", st.Kind())
	}
}

func TestMemoryStoreSavingIdleClears(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	_ = s.Save(ctx, 1, AwaitingDepositAmount{})
	if err := s.Save(ctx, 1, Idle{}); err != nil {
		t.Fatalf("save idle: %v", err)
	}
	if len(s.entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(s.entries))
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisStoreRoundTrip(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	s := NewRedisStore(client, time.Minute)
	s.prefix = "aislide:test:state:"

	const userID int64 = 900001
	t.Cleanup(func() { _ = s.Clear(ctx, userID) })

	for _, st := range sampleStates() {
		if err := s.Save(ctx, userID, st); err != nil {
			t.Fatalf("save %s: %v", st.Kind(), err)
		}
		got, err := s.Load(ctx, userID)
		if err != nil {
			t.Fatalf("load %s: %v", st.Kind(), err)
		}
		assertSameState(t, st, got)
	}

	ttl, err := client.TTL(ctx, s.key(userID)).Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected ttl within a minute, got %s", ttl)
	}

	if err := s.Save(ctx, userID, Idle{}); err != nil {
		t.Fatalf("save idle: %v", err)
	}
	if n, _ := client.Exists(ctx, s.key(userID)).Result(); n != 0 {
		t.Fatal("expected idle to delete the key")
	}
}

func TestRedisStoreCorruptEntry(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	s := NewRedisStore(client, time.Minute)
	s.prefix = "aislide:test:state:"

	const userID int64 = 900002
	t.Cleanup(func() { _ = s.Clear(ctx, userID) })

	if err := client.Set(ctx, s.key(userID), "garbage", time.Minute).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := s.Load(ctx, userID); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("expected ErrCorruptState, got %v", err)
	}
}
