package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

type Repository interface {
	// Ensure inserts the user with freeQuota on first contact and refreshes
	// the display fields otherwise. created reports whether the row is new.
	Ensure(ctx context.Context, p Profile, freeQuota int) (user *User, created bool, err error)
	GetByID(ctx context.Context, id int64) (*User, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

type ensureRow struct {
	User
	Inserted bool `db:"inserted"`
}

func (r *repository) Ensure(ctx context.Context, p Profile, freeQuota int) (*User, bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// xmax = 0 only for freshly inserted tuples.
	var row ensureRow
	err := r.db.GetContext(ctx2, &row, `
		INSERT INTO users (id, username, full_name, free_quota_remaining)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username,
		    full_name = EXCLUDED.full_name,
		    updated_at = now()
		RETURNING id, username, full_name, balance, free_quota_remaining, created_at, updated_at,
		          (xmax = 0) AS inserted
	`, p.ID, p.Username, p.FullName, freeQuota)
	if err != nil {
		return nil, false, fmt.Errorf("%w: ensure user", ErrInternal)
	}

	user := row.User
	return &user, row.Inserted, nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*User, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var user User
	err := r.db.GetContext(ctx2, &user, `
		SELECT id, username, full_name, balance, free_quota_remaining, created_at, updated_at
		FROM users WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: get user", ErrInternal)
	}
	return &user, nil
}
