package ledger

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestPostgresDebitSuccess(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SET balance = balance - $2")).
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("4000.00"))
	mock.ExpectQuery(q("INSERT INTO transactions")).
		WithArgs(int64(7), "withdrawal", sqlmock.AnyArg(), "approved", nil, "task-1", "deck").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectCommit()

	balance, err := repo.Debit(context.Background(), 7, decimal.NewFromInt(6000), "task-1", "deck")
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(4000)) {
		t.Fatalf("expected 4000, got %s", balance)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresDebitInsufficientFunds(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SET balance = balance - $2")).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))
	mock.ExpectQuery(q("SELECT balance FROM users WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("5000.00"))
	mock.ExpectRollback()

	_, err := repo.Debit(context.Background(), 7, decimal.NewFromInt(10000), "task-2", "deck")
	var ife *InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if !ife.Available.Equal(decimal.NewFromInt(5000)) || !ife.Shortfall().Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("unexpected error values %+v", ife)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresDebitUnknownUser(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SET balance = balance - $2")).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))
	mock.ExpectQuery(q("SELECT balance FROM users WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))
	mock.ExpectRollback()

	if _, err := repo.Debit(context.Background(), 7, decimal.NewFromInt(1), "", ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestPostgresCreditDuplicateReference(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO transactions")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := repo.Credit(context.Background(), 7, TypeRefund, decimal.NewFromInt(6000), "task-1", "refund")
	if !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("balance must not be touched: %v", err)
	}
}

func TestPostgresConsumeFreeQuota(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(q("SET free_quota_remaining = free_quota_remaining - 1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"free_quota_remaining"}).AddRow(0))

	remaining, err := repo.ConsumeFreeQuota(context.Background(), 7)
	if err != nil || remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d (%v)", remaining, err)
	}

	mock.ExpectQuery(q("SET free_quota_remaining = free_quota_remaining - 1")).
		WillReturnRows(sqlmock.NewRows([]string{"free_quota_remaining"}))
	mock.ExpectQuery(q("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	if _, err := repo.ConsumeFreeQuota(context.Background(), 7); !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

var txCols = []string{"id", "user_id", "type", "amount", "status", "receipt_file_id", "receipt_archive_key",
	"reference", "description", "created_at", "resolved_at"}

func TestPostgresResolveApprovesDeposit(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM transactions WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(txCols).
			AddRow(int64(5), int64(7), "deposit", "50000.00", "pending", "file-1", nil, nil, "Hisob to'ldirish", now, nil))
	mock.ExpectQuery(q("UPDATE transactions SET status = $2, resolved_at = now()")).
		WithArgs(int64(5), "approved").
		WillReturnRows(sqlmock.NewRows([]string{"resolved_at"}).AddRow(now))
	mock.ExpectQuery(q("SET balance = balance + $2")).
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("50000.00"))
	mock.ExpectCommit()

	res, err := repo.Resolve(context.Background(), 5, StatusApproved)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Transaction.Status != StatusApproved || !res.Credited.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("unexpected resolution %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresResolveAlreadyResolved(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows(txCols).
			AddRow(int64(5), int64(7), "deposit", "50000.00", "approved", nil, nil, nil, "", time.Now(), time.Now()))
	mock.ExpectRollback()

	res, err := repo.Resolve(context.Background(), 5, StatusApproved)
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
	if res == nil || res.Transaction.Status != StatusApproved {
		t.Fatalf("expected current transaction state, got %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no second credit expected: %v", err)
	}
}

func TestPostgresResolveNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WillReturnRows(sqlmock.NewRows(txCols))
	mock.ExpectRollback()

	if _, err := repo.Resolve(context.Background(), 5, StatusRejected); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestPostgresSetArchiveKeyNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(q("UPDATE transactions SET receipt_archive_key = $2")).
		WithArgs(int64(9), "receipts/7/9.jpg").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SetArchiveKey(context.Background(), 9, "receipts/7/9.jpg"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}
