package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

type Repository interface {
	// Insert persists t. A row with the same task_uuid already present counts
	// as success with created=false.
	Insert(ctx context.Context, t *Task) (created bool, err error)
	GetByUUID(ctx context.Context, id uuid.UUID) (*Task, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, t *Task) (bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var row struct {
		ID        int64     `db:"id"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := r.db.GetContext(ctx2, &row, `
		INSERT INTO generation_tasks (task_uuid, user_id, kind, size, payload, amount_charged, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (task_uuid) DO NOTHING
		RETURNING id, created_at
	`, t.TaskUUID, t.UserID, string(t.Kind), t.Size, t.Payload, t.AmountCharged, StatusPending)
	if err == nil {
		t.ID = row.ID
		t.CreatedAt = row.CreatedAt
		t.Status = StatusPending
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: insert task: %v", ErrInternal, err)
	}

	// Conflict: an earlier attempt with this uuid already landed.
	existing, err := r.GetByUUID(ctx2, t.TaskUUID)
	if err != nil {
		return false, err
	}
	*t = *existing
	return false, nil
}

func (r *repository) GetByUUID(ctx context.Context, id uuid.UUID) (*Task, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var t Task
	err := r.db.GetContext(ctx2, &t, `
		SELECT id, task_uuid, user_id, kind, size, payload, amount_charged, status, created_at
		FROM generation_tasks WHERE task_uuid = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("%w: get task", ErrInternal)
	}
	return &t, nil
}
