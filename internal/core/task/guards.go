// Package task contains the pure business logic for task state.
// Guards are pure functions that evaluate preconditions without side effects.
package task

import (
	"fmt"
	"sort"
	"strings"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
	StatusEscalated Status = "escalated_to_council"
)

// Failure reasons recorded on failed tasks.
const (
	ReasonMaxIterations    = "max_iterations"
	ReasonCouncilFailed    = "council_failed"
	ReasonCircuitBreaker   = "circuit_breaker_open"
	ReasonDependencyFailed = "dependency_failed"
)

// IsTerminal reports whether no further work will happen on a task in this run.
func IsTerminal(s Status) bool {
	return s == StatusPassed || s == StatusFailed
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

// StartTaskContext provides context for the start guard.
type StartTaskContext struct {
	TaskID       string
	Status       Status
	Dependencies map[string]Status
	BreakerOpen  bool
}

// TransitionContext provides context for status transition guards.
type TransitionContext struct {
	TaskID string
	From   Status
	To     Status
}

// CanStartTask evaluates whether a task may move to running.
// Rules:
// - Circuit breaker must be closed
// - Task must be pending
// - Every dependency must be passed
func CanStartTask(ctx StartTaskContext) GuardResult {
	if ctx.BreakerOpen {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot start task %s: circuit breaker is open", ctx.TaskID),
		}
	}

	if ctx.Status != StatusPending {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("can only start pending tasks (task %s is %s)", ctx.TaskID, ctx.Status),
		}
	}

	var waiting []string
	for dep, st := range ctx.Dependencies {
		if st != StatusPassed {
			waiting = append(waiting, fmt.Sprintf("%s (%s)", dep, st))
		}
	}
	if len(waiting) > 0 {
		sort.Strings(waiting)
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("task %s is waiting on dependencies: %s", ctx.TaskID, strings.Join(waiting, ", ")),
		}
	}

	return GuardResult{Allowed: true}
}

var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusRunning, StatusFailed},
	StatusRunning:   {StatusPassed, StatusFailed, StatusEscalated, StatusPending},
	StatusEscalated: {StatusRunning, StatusFailed},
	StatusFailed:    {StatusPending},
}

// CanTransition evaluates whether a status change is legal.
// failed -> pending is only reachable through an operator reset.
func CanTransition(ctx TransitionContext) GuardResult {
	for _, to := range allowedTransitions[ctx.From] {
		if to == ctx.To {
			return GuardResult{Allowed: true}
		}
	}
	return GuardResult{
		Allowed: false,
		Reason:  fmt.Sprintf("task %s cannot move from %s to %s", ctx.TaskID, ctx.From, ctx.To),
	}
}

// DependencyFailed reports whether any dependency has ended without passing.
func DependencyFailed(deps map[string]Status) (string, bool) {
	ids := make([]string, 0, len(deps))
	for id := range deps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if deps[id] == StatusFailed {
			return id, true
		}
	}
	return "", false
}
