package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const queryTimeout = 3 * time.Second

// Repository is the storage behind the ledger. Every mutating method is
// atomic: it either applies fully or leaves balances untouched.
type Repository interface {
	GetAccount(ctx context.Context, userID int64) (*Account, error)
	ConsumeFreeQuota(ctx context.Context, userID int64) (remaining int, err error)
	Debit(ctx context.Context, userID int64, amount decimal.Decimal, reference, description string) (decimal.Decimal, error)
	Credit(ctx context.Context, userID int64, txType TransactionType, amount decimal.Decimal, reference, description string) (decimal.Decimal, error)
	InsertTransaction(ctx context.Context, t *Transaction) (int64, error)
	Resolve(ctx context.Context, id int64, status Status) (*Resolution, error)
	GetTransaction(ctx context.Context, id int64) (*Transaction, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]Transaction, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]Transaction, error)
	Stats(ctx context.Context, userID int64) (*Stats, error)
	SetArchiveKey(ctx context.Context, id int64, key string) error
}

const transactionColumns = `id, user_id, type, amount, status, receipt_file_id, receipt_archive_key,
	reference, description, created_at, resolved_at`

// PostgresRepository implements Repository on the users and transactions tables.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) beginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	return tx, nil
}

func (r *PostgresRepository) GetAccount(ctx context.Context, userID int64) (*Account, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var acc Account
	err := r.db.GetContext(ctx2, &acc, `
		SELECT id, balance, free_quota_remaining, created_at FROM users WHERE id = $1
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: get account", ErrInternal)
	}
	return &acc, nil
}

func (r *PostgresRepository) userExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID); err != nil {
		return false, fmt.Errorf("%w: check user", ErrInternal)
	}
	return exists, nil
}

func (r *PostgresRepository) ConsumeFreeQuota(ctx context.Context, userID int64) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var remaining int
	err := r.db.GetContext(ctx2, &remaining, `
		UPDATE users
		SET free_quota_remaining = free_quota_remaining - 1, updated_at = now()
		WHERE id = $1 AND free_quota_remaining > 0
		RETURNING free_quota_remaining
	`, userID)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: consume free quota", ErrInternal)
	}

	exists, err := r.userExists(ctx2, userID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrUserNotFound
	}
	return 0, ErrQuotaExhausted
}

func (r *PostgresRepository) Debit(ctx context.Context, userID int64, amount decimal.Decimal, reference, description string) (decimal.Decimal, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.beginTx(ctx2)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback()

	var balance decimal.Decimal
	err = tx.GetContext(ctx2, &balance, `
		UPDATE users
		SET balance = balance - $2, updated_at = now()
		WHERE id = $1 AND balance >= $2
		RETURNING balance
	`, userID, amount)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: debit balance", ErrInternal)
		}
		var available decimal.Decimal
		if err := tx.GetContext(ctx2, &available, `SELECT balance FROM users WHERE id = $1`, userID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return decimal.Zero, ErrUserNotFound
			}
			return decimal.Zero, fmt.Errorf("%w: read balance", ErrInternal)
		}
		return decimal.Zero, &InsufficientFundsError{Required: amount, Available: available}
	}

	if _, err := insertTransaction(ctx2, tx, &Transaction{
		UserID:      userID,
		Type:        TypeWithdrawal,
		Amount:      amount,
		Status:      StatusApproved,
		Reference:   nullable(reference),
		Description: description,
	}); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return balance, nil
}

// Credit adds amount to the balance and logs an approved entry of txType.
// A non-empty reference that was already used for txType yields ErrDuplicateReference
// and leaves the balance untouched.
func (r *PostgresRepository) Credit(ctx context.Context, userID int64, txType TransactionType, amount decimal.Decimal, reference, description string) (decimal.Decimal, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.beginTx(ctx2)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback()

	// Log first so a duplicate reference aborts before the balance moves.
	if _, err := insertTransaction(ctx2, tx, &Transaction{
		UserID:      userID,
		Type:        txType,
		Amount:      amount,
		Status:      StatusApproved,
		Reference:   nullable(reference),
		Description: description,
	}); err != nil {
		return decimal.Zero, err
	}

	balance, err := creditBalance(ctx2, tx, userID, amount)
	if err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return balance, nil
}

func creditBalance(ctx context.Context, tx *sqlx.Tx, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.GetContext(ctx, &balance, `
		UPDATE users
		SET balance = balance + $2, updated_at = now()
		WHERE id = $1
		RETURNING balance
	`, userID, amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, fmt.Errorf("%w: credit balance", ErrInternal)
	}
	return balance, nil
}

func insertTransaction(ctx context.Context, tx *sqlx.Tx, t *Transaction) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO transactions (user_id, type, amount, status, receipt_file_id, reference, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, t.UserID, string(t.Type), t.Amount, string(t.Status), t.ReceiptFileID, t.Reference, t.Description)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case "23505":
				return 0, ErrDuplicateReference
			case "23503":
				return 0, ErrUserNotFound
			}
		}
		return 0, fmt.Errorf("%w: insert transaction", ErrInternal)
	}
	t.ID = id
	return id, nil
}

func (r *PostgresRepository) InsertTransaction(ctx context.Context, t *Transaction) (int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.beginTx(ctx2)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	id, err := insertTransaction(ctx2, tx, t)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return id, nil
}

func (r *PostgresRepository) Resolve(ctx context.Context, id int64, status Status) (*Resolution, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.beginTx(ctx2)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var t Transaction
	err = tx.GetContext(ctx2, &t, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("%w: lock transaction", ErrInternal)
	}
	if !t.IsPending() {
		return &Resolution{Transaction: t}, ErrAlreadyResolved
	}

	var resolvedAt time.Time
	err = tx.GetContext(ctx2, &resolvedAt, `
		UPDATE transactions SET status = $2, resolved_at = now()
		WHERE id = $1
		RETURNING resolved_at
	`, id, string(status))
	if err != nil {
		return nil, fmt.Errorf("%w: update transaction status", ErrInternal)
	}
	t.Status = status
	t.ResolvedAt = &resolvedAt

	res := &Resolution{Transaction: t, Credited: decimal.Zero}
	if status == StatusApproved && t.Type == TypeDeposit {
		balance, err := creditBalance(ctx2, tx, t.UserID, t.Amount)
		if err != nil {
			return nil, err
		}
		res.Balance = balance
		res.Credited = t.Amount
	} else if err := tx.GetContext(ctx2, &res.Balance, `SELECT balance FROM users WHERE id = $1`, t.UserID); err != nil {
		return nil, fmt.Errorf("%w: read balance", ErrInternal)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return res, nil
}

func (r *PostgresRepository) GetTransaction(ctx context.Context, id int64) (*Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var t Transaction
	err := r.db.GetContext(ctx2, &t, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("%w: get transaction", ErrInternal)
	}
	return &t, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]Transaction, 0)
	err := r.db.SelectContext(ctx2, &items, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions", ErrInternal)
	}
	return items, nil
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status, limit int) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]Transaction, 0)
	err := r.db.SelectContext(ctx2, &items, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = $1 AND type = 'deposit'
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions by status", ErrInternal)
	}
	return items, nil
}

func (r *PostgresRepository) Stats(ctx context.Context, userID int64) (*Stats, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var s Stats
	err := r.db.GetContext(ctx2, &s, `
		SELECT u.id, u.balance, u.free_quota_remaining, u.created_at,
		       COALESCE(SUM(t.amount) FILTER (WHERE t.type = 'deposit' AND t.status = 'approved'), 0) AS total_deposited,
		       COALESCE(SUM(t.amount) FILTER (WHERE t.type = 'withdrawal' AND t.status = 'approved'), 0) AS total_withdrawn,
		       COALESCE(SUM(t.amount) FILTER (WHERE t.type = 'refund' AND t.status = 'approved'), 0) AS total_refunded
		FROM users u
		LEFT JOIN transactions t ON t.user_id = u.id
		WHERE u.id = $1
		GROUP BY u.id
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: user stats", ErrInternal)
	}
	return &s, nil
}

func (r *PostgresRepository) SetArchiveKey(ctx context.Context, id int64, key string) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `UPDATE transactions SET receipt_archive_key = $2 WHERE id = $1`, id, key)
	if err != nil {
		return fmt.Errorf("%w: set archive key", ErrInternal)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
