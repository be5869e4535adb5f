package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/foreman/internal/core/breaker"
	"github.com/example/foreman/internal/logging"
	"github.com/example/foreman/internal/ports/secondary"
)

// CircuitBreaker is the run-wide failure counter. The counter lives in the
// session row; every update goes through the repository's atomic operations
// so tracks never race on it. When it trips, the run context is cancelled.
type CircuitBreaker struct {
	sessions secondary.SessionRepository
	runID    string
	cancel   context.CancelFunc
	logger   *logging.Logger

	mu       sync.Mutex
	tripped  bool
	haltedAt string
}

// NewCircuitBreaker creates a breaker for one run. cancel is called once when
// the breaker opens.
func NewCircuitBreaker(sessions secondary.SessionRepository, runID string, cancel context.CancelFunc, logger *logging.Logger) *CircuitBreaker {
	return &CircuitBreaker{sessions: sessions, runID: runID, cancel: cancel, logger: logger}
}

// RecordFailure counts a task-level failure and reports whether the breaker
// is now open.
func (b *CircuitBreaker) RecordFailure(ctx context.Context, taskID string) (bool, error) {
	rec, err := b.sessions.IncrementFailures(context.WithoutCancel(ctx), b.runID)
	if err != nil {
		return false, fmt.Errorf("failed to record task failure: %w", err)
	}
	b.logger.Info("breaker failure recorded", "task_id", taskID,
		"consecutive_failures", rec.ConsecutiveFailures, "threshold", rec.MaxFailures)

	if rec.Open {
		b.trip(taskID, rec)
	}
	return rec.Open, nil
}

// RecordSuccess resets the counter. A tripped breaker stays open.
func (b *CircuitBreaker) RecordSuccess(ctx context.Context) error {
	if _, err := b.sessions.ResetFailures(context.WithoutCancel(ctx), b.runID); err != nil {
		return fmt.Errorf("failed to reset failure counter: %w", err)
	}
	return nil
}

// Admit evaluates whether another task may start.
func (b *CircuitBreaker) Admit(ctx context.Context) error {
	if b.Tripped() {
		return ErrBreakerOpen
	}
	s, err := b.sessions.GetByID(ctx, b.runID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	counter := breaker.Counter{ConsecutiveFailures: s.ConsecutiveFailures, Threshold: s.MaxFailures, Tripped: s.BreakerOpen}
	if err := breaker.CanAdmit(counter).Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	}
	return nil
}

// Tripped reports whether this run opened the breaker.
func (b *CircuitBreaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// HaltedAt names the task whose failure opened the breaker.
func (b *CircuitBreaker) HaltedAt() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.haltedAt
}

func (b *CircuitBreaker) trip(taskID string, rec *secondary.BreakerRecord) {
	b.mu.Lock()
	first := !b.tripped
	if first {
		b.tripped = true
		b.haltedAt = taskID
	}
	b.mu.Unlock()

	if !first {
		return
	}
	b.logger.Warn("circuit breaker opened", "task_id", taskID,
		"consecutive_failures", rec.ConsecutiveFailures, "threshold", rec.MaxFailures)
	if b.cancel != nil {
		b.cancel()
	}
}
