package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryRepository is an in-process Repository for tests and local runs
// without PostgreSQL. It enforces the same atomicity rules as PostgresRepository.
type MemoryRepository struct {
	mu       sync.Mutex
	accounts map[int64]*Account
	txs      []Transaction
	refs     map[string]bool
	nextID   int64
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts: make(map[int64]*Account),
		refs:     make(map[string]bool),
		now:      time.Now,
	}
}

// Seed creates or overwrites an account.
func (m *MemoryRepository) Seed(userID int64, balance decimal.Decimal, freeQuota int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[userID] = &Account{UserID: userID, Balance: balance, FreeQuota: freeQuota, CreatedAt: m.now()}
}

// Transactions returns a copy of the log in insertion order.
func (m *MemoryRepository) Transactions() []Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transaction, len(m.txs))
	copy(out, m.txs)
	return out
}

func (m *MemoryRepository) account(userID int64) (*Account, error) {
	acc, ok := m.accounts[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return acc, nil
}

func (m *MemoryRepository) GetAccount(_ context.Context, userID int64) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, err := m.account(userID)
	if err != nil {
		return nil, err
	}
	cp := *acc
	return &cp, nil
}

func (m *MemoryRepository) ConsumeFreeQuota(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, err := m.account(userID)
	if err != nil {
		return 0, err
	}
	if acc.FreeQuota <= 0 {
		return 0, ErrQuotaExhausted
	}
	acc.FreeQuota--
	return acc.FreeQuota, nil
}

func (m *MemoryRepository) Debit(_ context.Context, userID int64, amount decimal.Decimal, reference, description string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, err := m.account(userID)
	if err != nil {
		return decimal.Zero, err
	}
	if acc.Balance.LessThan(amount) {
		return decimal.Zero, &InsufficientFundsError{Required: amount, Available: acc.Balance}
	}
	if err := m.reserveRef(TypeWithdrawal, reference); err != nil {
		return decimal.Zero, err
	}
	acc.Balance = acc.Balance.Sub(amount)
	m.append(Transaction{UserID: userID, Type: TypeWithdrawal, Amount: amount, Status: StatusApproved, Reference: nullable(reference), Description: description})
	return acc.Balance, nil
}

func (m *MemoryRepository) Credit(_ context.Context, userID int64, txType TransactionType, amount decimal.Decimal, reference, description string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, err := m.account(userID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := m.reserveRef(txType, reference); err != nil {
		return decimal.Zero, err
	}
	acc.Balance = acc.Balance.Add(amount)
	m.append(Transaction{UserID: userID, Type: txType, Amount: amount, Status: StatusApproved, Reference: nullable(reference), Description: description})
	return acc.Balance, nil
}

func (m *MemoryRepository) reserveRef(txType TransactionType, reference string) error {
	if reference == "" {
		return nil
	}
	key := string(txType) + ":" + reference
	if m.refs[key] {
		return ErrDuplicateReference
	}
	m.refs[key] = true
	return nil
}

func (m *MemoryRepository) append(t Transaction) int64 {
	m.nextID++
	t.ID = m.nextID
	t.CreatedAt = m.now()
	m.txs = append(m.txs, t)
	return t.ID
}

func (m *MemoryRepository) InsertTransaction(_ context.Context, t *Transaction) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.account(t.UserID); err != nil {
		return 0, err
	}
	ref := ""
	if t.Reference != nil {
		ref = *t.Reference
	}
	if err := m.reserveRef(t.Type, ref); err != nil {
		return 0, err
	}
	t.ID = m.append(*t)
	return t.ID, nil
}

func (m *MemoryRepository) find(id int64) *Transaction {
	for i := range m.txs {
		if m.txs[i].ID == id {
			return &m.txs[i]
		}
	}
	return nil
}

func (m *MemoryRepository) Resolve(_ context.Context, id int64, status Status) (*Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.find(id)
	if t == nil {
		return nil, ErrTransactionNotFound
	}
	if !t.IsPending() {
		return &Resolution{Transaction: *t}, ErrAlreadyResolved
	}
	acc, err := m.account(t.UserID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	t.Status = status
	t.ResolvedAt = &now

	res := &Resolution{Transaction: *t, Credited: decimal.Zero}
	if status == StatusApproved && t.Type == TypeDeposit {
		acc.Balance = acc.Balance.Add(t.Amount)
		res.Credited = t.Amount
	}
	res.Balance = acc.Balance
	res.Transaction = *t
	return res, nil
}

func (m *MemoryRepository) GetTransaction(_ context.Context, id int64) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.find(id)
	if t == nil {
		return nil, ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryRepository) ListByUser(_ context.Context, userID int64, limit int) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transaction, 0)
	for i := len(m.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.txs[i].UserID == userID {
			out = append(out, m.txs[i])
		}
	}
	return out, nil
}

func (m *MemoryRepository) ListByStatus(_ context.Context, status Status, limit int) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transaction, 0)
	for _, t := range m.txs {
		if t.Status == status && t.Type == TypeDeposit && len(out) < limit {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) Stats(_ context.Context, userID int64) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, err := m.account(userID)
	if err != nil {
		return nil, err
	}
	s := &Stats{Account: *acc, TotalDeposited: decimal.Zero, TotalWithdrawn: decimal.Zero, TotalRefunded: decimal.Zero}
	for _, t := range m.txs {
		if t.UserID != userID || t.Status != StatusApproved {
			continue
		}
		switch t.Type {
		case TypeDeposit:
			s.TotalDeposited = s.TotalDeposited.Add(t.Amount)
		case TypeWithdrawal:
			s.TotalWithdrawn = s.TotalWithdrawn.Add(t.Amount)
		case TypeRefund:
			s.TotalRefunded = s.TotalRefunded.Add(t.Amount)
		}
	}
	return s, nil
}

func (m *MemoryRepository) SetArchiveKey(_ context.Context, id int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.find(id)
	if t == nil {
		return ErrTransactionNotFound
	}
	t.ReceiptArchiveKey = &key
	return nil
}
