package task

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps tasks in process. Failures can be injected to
// exercise the compensation path.
type MemoryRepository struct {
	mu       sync.Mutex
	tasks    map[uuid.UUID]Task
	order    []uuid.UUID
	failures int
	failErr  error
	attempts int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tasks: make(map[uuid.UUID]Task)}
}

// FailNext makes the next n Insert calls return err.
func (m *MemoryRepository) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	m.failErr = err
}

// Attempts counts Insert calls, failed ones included.
func (m *MemoryRepository) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// All returns stored tasks in insertion order.
func (m *MemoryRepository) All() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.tasks[id])
	}
	return out
}

func (m *MemoryRepository) Insert(_ context.Context, t *Task) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.failures > 0 {
		m.failures--
		return false, m.failErr
	}
	if existing, ok := m.tasks[t.TaskUUID]; ok {
		*t = existing
		return false, nil
	}
	t.ID = int64(len(m.order) + 1)
	t.Status = StatusPending
	t.CreatedAt = time.Now()
	m.tasks[t.TaskUUID] = *t
	m.order = append(m.order, t.TaskUUID)
	return true, nil
}

func (m *MemoryRepository) GetByUUID(_ context.Context, id uuid.UUID) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return &t, nil
}
