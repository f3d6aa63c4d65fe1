package admin

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/aislide/aislide-bot/internal/domain/ledger"
	"github.com/aislide/aislide-bot/internal/pkg/messenger"
	"github.com/aislide/aislide-bot/internal/pkg/messenger/messengertest"
)

const (
	userID  int64 = 7
	adminA  int64 = 100
	adminB  int64 = 200
	support       = "@aislide_support"
)

type feedRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (f *feedRecorder) Publish(e Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *feedRecorder) types() []EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]EventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type relayFixture struct {
	relay  *Relay
	sender *messengertest.Recorder
	ledger *ledger.Service
	feed   *feedRecorder
	txID   int64
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	repo := ledger.NewMemoryRepository()
	repo.Seed(userID, decimal.NewFromInt(1000), 0)
	ledgerSvc := ledger.NewService(repo)

	txID, err := ledgerSvc.RecordTransaction(context.Background(), userID, ledger.TypeDeposit, decimal.NewFromInt(50000), "top up", "file-1")
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	f := &relayFixture{
		sender: messengertest.New(),
		ledger: ledgerSvc,
		feed:   &feedRecorder{},
		txID:   txID,
	}
	f.relay = NewRelay(f.sender, ledgerSvc, f.feed, []int64{adminA, adminB}, support)
	return f
}

func (f *relayFixture) deposit() PendingDeposit {
	return PendingDeposit{
		TransactionID: f.txID,
		UserID:        userID,
		Username:      "ali",
		FullName:      "Ali <Valiyev>",
		Amount:        decimal.NewFromInt(50000),
		FileID:        "file-1",
		FileKind:      messenger.FilePhoto,
	}
}

func TestNotifyPendingDepositReachesEveryAdmin(t *testing.T) {
	f := newRelayFixture(t)

	f.relay.NotifyPendingDeposit(context.Background(), f.deposit())

	for _, id := range []int64{adminA, adminB} {
		msgs := f.sender.To(id)
		if len(msgs) != 1 {
			t.Fatalf("admin %d: expected one alert, got %d", id, len(msgs))
		}
		m := msgs[0]
		if !strings.Contains(m.Text, "50,000 so'm") || !strings.Contains(m.Text, "Ali &lt;Valiyev&gt;") {
			t.Fatalf("unexpected alert text %q", m.Text)
		}
		if m.Keyboard == nil || !m.Keyboard.Inline || len(m.Keyboard.Rows[0]) != 2 {
			t.Fatalf("expected an inline approve/reject pair, got %+v", m.Keyboard)
		}
		if m.Keyboard.Rows[0][0].Data != CallbackApprove+"1" || m.Keyboard.Rows[0][1].Data != CallbackReject+"1" {
			t.Fatalf("unexpected callback data %+v", m.Keyboard.Rows[0])
		}
	}
	if len(f.sender.Files) != 2 {
		t.Fatalf("expected receipt forwarded twice, got %d", len(f.sender.Files))
	}
	if got := f.feed.types(); len(got) != 1 || got[0] != EventDepositPending {
		t.Fatalf("expected deposit.pending event, got %v", got)
	}
}

func TestNotifyPendingDepositSurvivesFailingAdmin(t *testing.T) {
	f := newRelayFixture(t)
	f.sender.FailChats[adminA] = true

	f.relay.NotifyPendingDeposit(context.Background(), f.deposit())

	if len(f.sender.To(adminB)) != 1 {
		t.Fatal("second admin must still be alerted")
	}
	if len(f.sender.Files) != 1 || f.sender.Files[0].ChatID != adminB {
		t.Fatalf("expected receipt only for the reachable admin, got %+v", f.sender.Files)
	}
}

func TestNotifyPendingDepositFallsBackToDocument(t *testing.T) {
	f := newRelayFixture(t)
	f.sender.FailPhotos = true

	f.relay.NotifyPendingDeposit(context.Background(), f.deposit())

	if len(f.sender.Files) != 2 {
		t.Fatalf("expected two forwarded receipts, got %d", len(f.sender.Files))
	}
	for _, file := range f.sender.Files {
		if file.Kind != messenger.FileDocument {
			t.Fatalf("expected document fallback, got %s", file.Kind)
		}
	}
}

func TestResolveApprovesOnce(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	res, err := f.relay.Resolve(ctx, adminA, f.txID, DecisionApprove)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !res.Balance.Equal(decimal.NewFromInt(51000)) || !res.Credited.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("unexpected resolution %+v", res)
	}
	if !f.sender.Contains(userID, "Yangi balans: 51,000 so'm") {
		t.Fatal("expected user to be told the new balance")
	}

	f.sender.Reset()
	res, err = f.relay.Resolve(ctx, adminB, f.txID, DecisionReject)
	if !errors.Is(err, ledger.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
	if res == nil || res.Transaction.Status != ledger.StatusApproved {
		t.Fatalf("expected current state to be returned, got %+v", res)
	}
	if len(f.sender.To(userID)) != 0 {
		t.Fatal("user must not be notified of a repeated decision")
	}
	if b, _ := f.ledger.GetBalance(ctx, userID); !b.Equal(decimal.NewFromInt(51000)) {
		t.Fatalf("expected balance unchanged at 51000, got %s", b)
	}

	got := f.feed.types()
	if len(got) != 1 || got[0] != EventDepositResolved {
		t.Fatalf("expected a single deposit.resolved event, got %v", got)
	}
}

func TestResolveRejectNotifiesUser(t *testing.T) {
	f := newRelayFixture(t)

	if _, err := f.relay.Resolve(context.Background(), adminA, f.txID, DecisionReject); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if !f.sender.Contains(userID, "rad etildi") || !f.sender.Contains(userID, support) {
		t.Fatalf("expected rejection with support contact, got %+v", f.sender.To(userID))
	}
	if b, _ := f.ledger.GetBalance(context.Background(), userID); !b.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("rejection must not credit, got %s", b)
	}
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data     string
		decision Decision
		id       int64
		wantErr  bool
	}{
		{"approve_trans:15", DecisionApprove, 15, false},
		{"reject_trans:3", DecisionReject, 3, false},
		{"approve_trans:", "", 0, true},
		{"approve_trans:-1", "", 0, true},
		{"reject_trans:abc", "", 0, true},
		{"check_subs", "", 0, true},
	}
	for _, tt := range tests {
		decision, id, err := ParseCallback(tt.data)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidCallback) {
				t.Errorf("%q: expected ErrInvalidCallback, got %v", tt.data, err)
			}
			continue
		}
		if err != nil || decision != tt.decision || id != tt.id {
			t.Errorf("%q: got %s %d %v", tt.data, decision, id, err)
		}
	}
}

func callback(from int64, data string) messenger.Event {
	return messenger.Event{Kind: messenger.KindCallback, UserID: from, ChatID: from, CallbackID: "cb", CallbackData: data}
}

func TestHandleCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("non-admin is refused", func(t *testing.T) {
		f := newRelayFixture(t)
		f.relay.HandleCallback(ctx, callback(userID, CallbackApprove+"1"))

		if len(f.sender.Callbacks) != 1 || !strings.Contains(f.sender.Callbacks[0], "Ruxsat yo'q") {
			t.Fatalf("unexpected callback answers %v", f.sender.Callbacks)
		}
		if b, _ := f.ledger.GetBalance(ctx, userID); !b.Equal(decimal.NewFromInt(1000)) {
			t.Fatalf("non-admin must not credit, got %s", b)
		}
	})

	t.Run("approve then repeat", func(t *testing.T) {
		f := newRelayFixture(t)
		f.relay.HandleCallback(ctx, callback(adminA, CallbackApprove+"1"))
		f.relay.HandleCallback(ctx, callback(adminB, CallbackApprove+"1"))

		if len(f.sender.Callbacks) != 2 {
			t.Fatalf("expected two answers, got %v", f.sender.Callbacks)
		}
		if !strings.Contains(f.sender.Callbacks[0], "Tasdiqlandi") || !strings.Contains(f.sender.Callbacks[1], "Allaqachon") {
			t.Fatalf("unexpected answers %v", f.sender.Callbacks)
		}
		if !f.sender.Contains(adminB, "allaqachon ko'rib chiqilgan") {
			t.Fatal("second admin must be told the deposit was already handled")
		}
		if b, _ := f.ledger.GetBalance(ctx, userID); !b.Equal(decimal.NewFromInt(51000)) {
			t.Fatalf("expected a single credit, got %s", b)
		}
	})

	t.Run("unknown transaction", func(t *testing.T) {
		f := newRelayFixture(t)
		f.relay.HandleCallback(ctx, callback(adminA, CallbackReject+"404"))

		if len(f.sender.Callbacks) != 1 || !strings.Contains(f.sender.Callbacks[0], "topilmadi") {
			t.Fatalf("unexpected answers %v", f.sender.Callbacks)
		}
	})

	t.Run("malformed data", func(t *testing.T) {
		f := newRelayFixture(t)
		f.relay.HandleCallback(ctx, callback(adminA, CallbackReject+"x"))

		if len(f.sender.Callbacks) != 1 || !strings.Contains(f.sender.Callbacks[0], "Noto'g'ri") {
			t.Fatalf("unexpected answers %v", f.sender.Callbacks)
		}
	})
}
