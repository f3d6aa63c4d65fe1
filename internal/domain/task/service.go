package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/aislide/aislide-bot/internal/pkg/metrics"
)

const compensationTimeout = 5 * time.Second

// Refunder returns a committed charge at most once per reference.
type Refunder interface {
	Refund(ctx context.Context, userID int64, amount decimal.Decimal, reference, description string) (applied bool, balance decimal.Decimal, err error)
}

type Config struct {
	Attempts int
	Backoff  time.Duration
}

// Service admits generation tasks and owns the refund-on-failure contract:
// callers charge first, then call CreateTask; if the task cannot be
// persisted the charge is refunded here.
type Service struct {
	repo     Repository
	refunder Refunder
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewService(repo Repository, refunder Refunder, cfg Config) *Service {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Service{
		repo:     repo,
		refunder: refunder,
		attempts: cfg.Attempts,
		backoff:  cfg.Backoff,
		sleep:    sleepCtx,
	}
}

// NewTaskUUID returns a fresh idempotency key. Use it as the debit reference
// and pass it on in Request.TaskUUID.
func NewTaskUUID() uuid.UUID {
	return uuid.New()
}

// CreateTask persists the request and returns its uuid. Any error is an
// *AdmissionError; the charge in req.AmountCharged has then been refunded
// unless Compensated is false.
func (s *Service) CreateTask(ctx context.Context, req Request) (uuid.UUID, error) {
	if req.TaskUUID == uuid.Nil {
		req.TaskUUID = NewTaskUUID()
	}

	t, err := buildTask(req)
	if err == nil {
		err = s.insertWithRetry(ctx, t)
	}
	metrics.RecordAdmission(string(req.Kind), err)
	if err == nil {
		log.Info().Int64("user_id", req.UserID).Str("task_uuid", req.TaskUUID.String()).
			Str("kind", string(req.Kind)).Int("size", req.Size).
			Str("amount_charged", req.AmountCharged.String()).Msg("task admitted")
		return req.TaskUUID, nil
	}

	log.Error().Err(err).Int64("user_id", req.UserID).Str("task_uuid", req.TaskUUID.String()).
		Str("kind", string(req.Kind)).Str("amount_charged", req.AmountCharged.String()).Msg("task admission failed")

	admErr := &AdmissionError{TaskUUID: req.TaskUUID, Cause: err}
	if req.AmountCharged.IsPositive() {
		admErr.Compensated, admErr.CompensationErr = s.compensate(ctx, req)
	}
	return req.TaskUUID, admErr
}

func buildTask(req Request) (*Task, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidTask, req.Kind)
	}
	if req.Size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive", ErrInvalidTask)
	}
	if req.AmountCharged.IsNegative() {
		return nil, fmt.Errorf("%w: negative charge", ErrInvalidTask)
	}

	payload := []byte("{}")
	if req.Payload != nil {
		b, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: payload: %v", ErrInvalidTask, err)
		}
		payload = b
	}

	return &Task{
		TaskUUID:      req.TaskUUID,
		UserID:        req.UserID,
		Kind:          req.Kind,
		Size:          req.Size,
		Payload:       types.JSONText(payload),
		AmountCharged: req.AmountCharged,
	}, nil
}

func (s *Service) insertWithRetry(ctx context.Context, t *Task) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		var created bool
		created, err = s.repo.Insert(ctx, t)
		if err == nil {
			if !created {
				log.Warn().Str("task_uuid", t.TaskUUID.String()).Msg("task already persisted")
			}
			return nil
		}
		if attempt == s.attempts {
			break
		}
		log.Warn().Err(err).Str("task_uuid", t.TaskUUID.String()).Int("attempt", attempt).Msg("task insert failed, retrying")
		if serr := s.sleep(ctx, s.backoff*time.Duration(attempt)); serr != nil {
			return errors.Join(err, serr)
		}
	}
	return err
}

// compensate refunds the charge with the task uuid as reference, so repeated
// calls credit at most once.
func (s *Service) compensate(ctx context.Context, req Request) (bool, error) {
	reference := req.TaskUUID.String()
	description := fmt.Sprintf("Qaytarildi: %s", req.Kind)

	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
		var applied bool
		applied, _, err = s.refunder.Refund(refundCtx, req.UserID, req.AmountCharged, reference, description)
		cancel()
		if err == nil {
			outcome := "refunded"
			if !applied {
				outcome = "duplicate"
			}
			metrics.RecordCompensation(outcome)
			log.Info().Int64("user_id", req.UserID).Str("task_uuid", reference).
				Str("amount", req.AmountCharged.String()).Str("outcome", outcome).Msg("charge compensated")
			return true, nil
		}
		if attempt < s.attempts {
			_ = s.sleep(context.WithoutCancel(ctx), s.backoff*time.Duration(attempt))
		}
	}

	metrics.RecordCompensation("failed")
	log.Error().Err(err).Int64("user_id", req.UserID).Str("task_uuid", reference).
		Str("op", "refund").Str("amount", req.AmountCharged.String()).
		Msg("compensation failed, manual reconciliation required")
	return false, err
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	return s.repo.GetByUUID(ctx, id)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
