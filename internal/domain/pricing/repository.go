package pricing

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
	Get(ctx context.Context, key string) (*PriceEntry, error)
	ListActive(ctx context.Context) ([]PriceEntry, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, key string) (*PriceEntry, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p PriceEntry
	err := r.db.GetContext(ctx2, &p, `
		SELECT service_key, unit_price, currency, description, is_active
		FROM prices WHERE service_key = $1
	`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPriceNotFound
		}
		return nil, fmt.Errorf("%w: get price", ErrInternal)
	}
	return &p, nil
}

func (r *repository) ListActive(ctx context.Context) ([]PriceEntry, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]PriceEntry, 0)
	err := r.db.SelectContext(ctx2, &items, `
		SELECT service_key, unit_price, currency, description, is_active
		FROM prices WHERE is_active = TRUE
		ORDER BY service_key
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list prices", ErrInternal)
	}
	return items, nil
}
