package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

type Repository interface {
	ListActive(ctx context.Context) ([]Channel, error)
	// Create registers ch, reactivating an earlier entry with the same chat_ref.
	Create(ctx context.Context, ch *Channel) error
	Deactivate(ctx context.Context, id int64) error
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListActive(ctx context.Context) ([]Channel, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]Channel, 0)
	err := r.db.SelectContext(ctx2, &items, `
		SELECT id, chat_ref, title, invite_link, is_active, created_at
		FROM required_channels
		WHERE is_active = TRUE
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list channels", ErrInternal)
	}
	return items, nil
}

func (r *repository) Create(ctx context.Context, ch *Channel) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := r.db.QueryRowxContext(ctx2, `
		INSERT INTO required_channels (chat_ref, title, invite_link)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_ref) DO UPDATE
		SET title = EXCLUDED.title, invite_link = EXCLUDED.invite_link, is_active = TRUE
		RETURNING id, is_active, created_at
	`, ch.ChatRef, ch.Title, ch.InviteLink).Scan(&ch.ID, &ch.IsActive, &ch.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: create channel", ErrInternal)
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, id int64) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `UPDATE required_channels SET is_active = FALSE WHERE id = $1 AND is_active`, id)
	if err != nil {
		return fmt.Errorf("%w: deactivate channel", ErrInternal)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrChannelNotFound
	}
	return nil
}
