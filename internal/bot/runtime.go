// Package bot runs the inbound event pipeline: flood limit, subscription
// gate, admin decisions and the conversation controller.
package bot

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aislide/aislide-bot/internal/domain/admin"
	"github.com/aislide/aislide-bot/internal/domain/subscription"
	"github.com/aislide/aislide-bot/internal/pkg/logger"
	"github.com/aislide/aislide-bot/internal/pkg/messenger"
	"github.com/aislide/aislide-bot/internal/pkg/metrics"
)

var ErrStopped = errors.New("bot runtime stopped")

const (
	defaultWorkers       = 64
	defaultHandleTimeout = 60 * time.Second
)

// Controller consumes events that passed the gate.
type Controller interface {
	Handle(ctx context.Context, ev messenger.Event) error
}

type Gate interface {
	Check(ctx context.Context, ev messenger.Event) subscription.Decision
	Block(ctx context.Context, sender messenger.Sender, ev messenger.Event, d subscription.Decision)
	Recheck(ctx context.Context, sender messenger.Sender, ev messenger.Event) bool
}

// DecisionHandler applies admin approve/reject callbacks.
type DecisionHandler interface {
	HandleCallback(ctx context.Context, ev messenger.Event)
}

type Config struct {
	Workers       int
	UserRate      float64
	UserBurst     int
	HandleTimeout time.Duration
}

type Runtime struct {
	controller Controller
	gate       Gate
	decisions  DecisionHandler
	sender     messenger.Sender

	sem     chan struct{}
	flood   *floodGuard
	timeout time.Duration

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func New(controller Controller, gate Gate, decisions DecisionHandler, sender messenger.Sender, cfg Config) *Runtime {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = defaultHandleTimeout
	}
	return &Runtime{
		controller: controller,
		gate:       gate,
		decisions:  decisions,
		sender:     sender,
		sem:        make(chan struct{}, cfg.Workers),
		flood:      newFloodGuard(cfg.UserRate, cfg.UserBurst),
		timeout:    cfg.HandleTimeout,
	}
}

// Dispatch schedules ev on its own goroutine. It blocks while all workers are
// busy and returns ctx.Err() if ctx ends first. A handler keeps running after
// ctx is cancelled; Shutdown waits for it.
func (r *Runtime) Dispatch(ctx context.Context, ev messenger.Event) error {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		<-r.sem
		return ErrStopped
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() { <-r.sem }()

		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		r.Process(hctx, ev)
	}()
	return nil
}

// OnEvent adapts Dispatch to the transport callback signature.
func (r *Runtime) OnEvent(ctx context.Context, ev messenger.Event) {
	if err := r.Dispatch(ctx, ev); err != nil {
		log.Warn().Err(err).Int64("user_id", ev.UserID).Str("kind", string(ev.Kind)).Msg("Event not scheduled")
	}
}

// Shutdown stops accepting events and waits for in-flight handlers.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process runs the pipeline for one event on the calling goroutine.
func (r *Runtime) Process(ctx context.Context, ev messenger.Event) {
	start := time.Now()
	ctx = logger.WithUser(ctx, ev.UserID, string(ev.Kind))
	l := logger.FromContext(ctx)

	outcome := "ok"
	defer func() {
		if rec := recover(); rec != nil {
			l.Error().
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("Panic while handling event")
			outcome = "panic"
		}
		metrics.RecordEvent(string(ev.Kind), outcome, time.Since(start))
	}()

	if !r.flood.Allow(ev.UserID) {
		l.Warn().Msg("Flood limit exceeded, event dropped")
		outcome = "throttled"
		return
	}

	if ev.Kind == messenger.KindCallback && admin.IsDecisionCallback(ev.CallbackData) {
		r.decisions.HandleCallback(ctx, ev)
		outcome = "admin"
		return
	}

	if ev.Kind == messenger.KindCallback && ev.CallbackData == subscription.CallbackRecheck {
		if !r.gate.Recheck(ctx, r.sender, ev) {
			outcome = "blocked"
			return
		}
	} else if d := r.gate.Check(ctx, ev); !d.Allowed {
		r.gate.Block(ctx, r.sender, ev, d)
		outcome = "blocked"
		return
	}

	if err := r.controller.Handle(ctx, ev); err != nil {
		l.Error().Err(err).Msg("Event handling failed")
		outcome = "error"
	}
}
