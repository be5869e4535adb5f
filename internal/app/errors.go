package app

import "errors"

var (
	// ErrBreakerOpen is returned when the circuit breaker refuses new work.
	ErrBreakerOpen = errors.New("circuit breaker is open")

	// ErrMergeConflict wraps a *merge.ConflictError when the merge pauses.
	ErrMergeConflict = errors.New("merge paused on conflict")

	// ErrRunIncomplete is returned when a merge is requested while tracks are
	// still unfinished; running again resumes them.
	ErrRunIncomplete = errors.New("run incomplete")

	// ErrNoPlan is returned when no plan has been created yet.
	ErrNoPlan = errors.New("no plan found; run 'foreman plan' first")

	// ErrNoSession is returned when no execution session exists.
	ErrNoSession = errors.New("no execution session found")

	// errInterrupted is returned by the task loop when its context ends
	// mid-iteration.
	errInterrupted = errors.New("task interrupted")
)
