package task

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

func newMock(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestInsertCreatesRow(t *testing.T) {
	repo, mock := newMock(t)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (task_uuid) DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), int64(3), "basic_deck", 10, sqlmock.AnyArg(), sqlmock.AnyArg(), "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))

	tk := &Task{TaskUUID: id, UserID: 3, Kind: KindBasicDeck, Size: 10, Payload: types.JSONText(`{}`), AmountCharged: decimal.NewFromInt(20000)}
	created, err := repo.Insert(context.Background(), tk)
	if err != nil || !created {
		t.Fatalf("expected created, got %v (%v)", created, err)
	}
	if tk.ID != 1 || tk.Status != StatusPending {
		t.Fatalf("unexpected task %+v", tk)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertConflictReturnsExisting(t *testing.T) {
	repo, mock := newMock(t)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO generation_tasks")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM generation_tasks WHERE task_uuid = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "task_uuid", "user_id", "kind", "size", "payload", "amount_charged", "status", "created_at"}).
			AddRow(int64(9), id.String(), int64(3), "basic_deck", 10, []byte(`{"topic":"x"}`), "20000.00", "processing", now))

	tk := &Task{TaskUUID: id, UserID: 3, Kind: KindBasicDeck, Size: 10, Payload: types.JSONText(`{}`)}
	created, err := repo.Insert(context.Background(), tk)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if created {
		t.Fatal("conflict must report created=false")
	}
	if tk.ID != 9 || tk.Status != "processing" {
		t.Fatalf("expected stored row, got %+v", tk)
	}
}

func TestInsertStoreError(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO generation_tasks")).WillReturnError(errors.New("connection refused"))

	_, err := repo.Insert(context.Background(), &Task{TaskUUID: uuid.New(), Payload: types.JSONText(`{}`)})
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
}
