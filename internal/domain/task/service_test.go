package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aislide/aislide-bot/internal/domain/ledger"
)

const userID int64 = 1

func newTestService(t *testing.T, balance int64, attempts int) (*Service, *MemoryRepository, *ledger.Service) {
	t.Helper()
	ledgerRepo := ledger.NewMemoryRepository()
	ledgerRepo.Seed(userID, decimal.NewFromInt(balance), 0)
	ledgerSvc := ledger.NewService(ledgerRepo)

	repo := NewMemoryRepository()
	svc := NewService(repo, ledgerSvc, Config{Attempts: attempts, Backoff: time.Millisecond})
	svc.sleep = func(context.Context, time.Duration) error { return nil }
	return svc, repo, ledgerSvc
}

func chargeAndRequest(t *testing.T, ledgerSvc *ledger.Service, amount int64) Request {
	t.Helper()
	id := NewTaskUUID()
	if _, err := ledgerSvc.Debit(context.Background(), userID, decimal.NewFromInt(amount), id.String(), "deck"); err != nil {
		t.Fatalf("debit: %v", err)
	}
	return Request{
		TaskUUID:      id,
		UserID:        userID,
		Kind:          KindBasicDeck,
		Size:          10,
		Payload:       map[string]any{"topic": "Quyosh tizimi"},
		AmountCharged: decimal.NewFromInt(amount),
	}
}

func balanceOf(t *testing.T, ledgerSvc *ledger.Service) decimal.Decimal {
	t.Helper()
	b, err := ledgerSvc.GetBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b
}

func TestCreateTaskPersists(t *testing.T) {
	svc, repo, ledgerSvc := newTestService(t, 20000, 3)
	req := chargeAndRequest(t, ledgerSvc, 10000)

	id, err := svc.CreateTask(context.Background(), req)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if id != req.TaskUUID {
		t.Fatalf("expected uuid %s, got %s", req.TaskUUID, id)
	}
	stored, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !stored.AmountCharged.Equal(decimal.NewFromInt(10000)) || stored.Status != StatusPending {
		t.Fatalf("unexpected task %+v", stored)
	}
	if string(stored.Payload) != `{"topic":"Quyosh tizimi"}` {
		t.Fatalf("unexpected payload %s", stored.Payload)
	}
	if len(repo.All()) != 1 {
		t.Fatalf("expected one task, got %d", len(repo.All()))
	}
	if b := balanceOf(t, ledgerSvc); !b.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("expected balance 10000, got %s", b)
	}
}

func TestCreateTaskRetriesTransientFailure(t *testing.T) {
	svc, repo, ledgerSvc := newTestService(t, 10000, 3)
	req := chargeAndRequest(t, ledgerSvc, 10000)
	repo.FailNext(2, errors.New("connection reset"))

	if _, err := svc.CreateTask(context.Background(), req); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if repo.Attempts() != 3 {
		t.Fatalf("expected 3 insert attempts, got %d", repo.Attempts())
	}
	if b := balanceOf(t, ledgerSvc); !b.IsZero() {
		t.Fatalf("no refund expected, balance %s", b)
	}
}

func TestCreateTaskFailureRefundsExactlyOnce(t *testing.T) {
	svc, repo, ledgerSvc := newTestService(t, 10000, 2)
	req := chargeAndRequest(t, ledgerSvc, 10000)
	repo.FailNext(10, errors.New("db down"))

	_, err := svc.CreateTask(context.Background(), req)
	if !errors.Is(err, ErrAdmissionFailed) {
		t.Fatalf("expected ErrAdmissionFailed, got %v", err)
	}
	var admErr *AdmissionError
	if !errors.As(err, &admErr) || !admErr.Compensated {
		t.Fatalf("expected compensated admission error, got %v", err)
	}
	if b := balanceOf(t, ledgerSvc); !b.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("expected balance restored to 10000, got %s", b)
	}

	// Retrying the same submission must neither charge nor refund again.
	for i := 0; i < 3; i++ {
		if _, err := svc.CreateTask(context.Background(), req); !errors.Is(err, ErrAdmissionFailed) {
			t.Fatalf("retry %d: expected failure, got %v", i, err)
		}
	}
	if b := balanceOf(t, ledgerSvc); !b.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("double refund: balance %s", b)
	}
	if len(repo.All()) != 0 {
		t.Fatal("no task must be stored")
	}
}

func TestCreateTaskFreeQuotaNotCompensated(t *testing.T) {
	svc, repo, ledgerSvc := newTestService(t, 0, 1)
	repo.FailNext(1, errors.New("db down"))

	_, err := svc.CreateTask(context.Background(), Request{UserID: userID, Kind: KindPitchDeck, Size: 12})
	var admErr *AdmissionError
	if !errors.As(err, &admErr) {
		t.Fatalf("expected AdmissionError, got %v", err)
	}
	if admErr.Compensated || admErr.TaskUUID == uuid.Nil {
		t.Fatalf("unexpected admission error %+v", admErr)
	}
	if b := balanceOf(t, ledgerSvc); !b.IsZero() {
		t.Fatalf("free task must not credit, balance %s", b)
	}
}

func TestCreateTaskInvalidRequestStillRefunds(t *testing.T) {
	svc, repo, ledgerSvc := newTestService(t, 5000, 1)
	req := chargeAndRequest(t, ledgerSvc, 5000)
	req.Kind = "poster"

	_, err := svc.CreateTask(context.Background(), req)
	if !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask, got %v", err)
	}
	if repo.Attempts() != 0 {
		t.Fatalf("invalid task must not reach storage, got %d attempts", repo.Attempts())
	}
	if b := balanceOf(t, ledgerSvc); !b.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("expected refund, balance %s", b)
	}
}

type failingRefunder struct{ calls int }

func (f *failingRefunder) Refund(context.Context, int64, decimal.Decimal, string, string) (bool, decimal.Decimal, error) {
	f.calls++
	return false, decimal.Zero, ledger.ErrInternal
}

func TestCompensationFailureReported(t *testing.T) {
	repo := NewMemoryRepository()
	repo.FailNext(10, errors.New("db down"))
	refunder := &failingRefunder{}
	svc := NewService(repo, refunder, Config{Attempts: 3})
	svc.sleep = func(context.Context, time.Duration) error { return nil }

	_, err := svc.CreateTask(context.Background(), Request{UserID: userID, Kind: KindCourseWork, Size: 15, AmountCharged: decimal.NewFromInt(15000)})
	var admErr *AdmissionError
	if !errors.As(err, &admErr) {
		t.Fatalf("expected AdmissionError, got %v", err)
	}
	if admErr.Compensated || !errors.Is(admErr.CompensationErr, ledger.ErrInternal) {
		t.Fatalf("expected failed compensation, got %+v", admErr)
	}
	if refunder.calls != 3 {
		t.Fatalf("expected 3 refund attempts, got %d", refunder.calls)
	}
}

func TestCreateTaskAlreadyPersistedIsSuccess(t *testing.T) {
	svc, repo, ledgerSvc := newTestService(t, 10000, 1)
	req := chargeAndRequest(t, ledgerSvc, 10000)

	if _, err := svc.CreateTask(context.Background(), req); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := svc.CreateTask(context.Background(), req); err != nil {
		t.Fatalf("second: %v", err)
	}
	if len(repo.All()) != 1 {
		t.Fatalf("expected a single task, got %d", len(repo.All()))
	}
}
