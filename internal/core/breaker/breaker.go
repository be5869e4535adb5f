// Package breaker contains the pure state rules of the run-wide circuit breaker.
// This is part of the Functional Core - no I/O, only pure functions.
package breaker

import "fmt"

// State is the breaker position. There is no half-open state: an open breaker
// stays open until an operator resets it.
type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

// DefaultThreshold is the consecutive-failure count that opens the breaker.
const DefaultThreshold = 5

// Counter is a snapshot of the session failure counter.
type Counter struct {
	ConsecutiveFailures int
	Threshold           int
	// Tripped is set once the breaker has opened and stays set until reset.
	Tripped bool
}

// State derives the breaker position from the counter.
func (c Counter) State() State {
	if c.Tripped || (c.Threshold > 0 && c.ConsecutiveFailures >= c.Threshold) {
		return StateOpen
	}
	return StateClosed
}

// RecordFailure returns the counter after one more task failure.
func (c Counter) RecordFailure() Counter {
	c.ConsecutiveFailures++
	if c.State() == StateOpen {
		c.Tripped = true
	}
	return c
}

// RecordSuccess returns the counter after a task passes. An open breaker is
// not closed by a late success from an in-flight task.
func (c Counter) RecordSuccess() Counter {
	if c.Tripped {
		return c
	}
	c.ConsecutiveFailures = 0
	return c
}

// Reset closes the breaker. Only an operator action calls this.
func (c Counter) Reset() Counter {
	c.ConsecutiveFailures = 0
	c.Tripped = false
	return c
}

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// CanAdmit evaluates whether the scheduler may start another task.
func CanAdmit(c Counter) GuardResult {
	if c.State() == StateOpen {
		return GuardResult{
			Allowed: false,
			Reason: fmt.Sprintf("circuit breaker is open after %d consecutive failures (threshold %d)",
				c.ConsecutiveFailures, c.Threshold),
		}
	}
	return GuardResult{Allowed: true}
}

// ValidateThreshold rejects thresholds that could never trip.
func ValidateThreshold(threshold int) error {
	if threshold < 1 {
		return fmt.Errorf("breaker threshold must be at least 1 (got %d)", threshold)
	}
	return nil
}
