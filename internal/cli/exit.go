package cli

import (
	"errors"
	"fmt"

	"github.com/example/foreman/internal/app"
	"github.com/example/foreman/internal/ports/primary"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitIntervene  = 1 // breaker open or a track failed; a human must look
	ExitIncomplete = 2 // resumable; run again
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Silent reports whether the command already printed everything the user
// needs and the error text should not be repeated.
func (e *ExitError) Silent() bool {
	return e.Err == nil
}

// outcomeError maps a run outcome to an exit error. Completed runs return nil.
func outcomeError(outcome string) error {
	switch outcome {
	case primary.RunOutcomeCompleted:
		return nil
	case primary.RunOutcomeBreakerOpen, primary.RunOutcomeFailed:
		return &ExitError{Code: ExitIntervene}
	default:
		return &ExitError{Code: ExitIncomplete}
	}
}

// classify maps service errors that have a dedicated exit code.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, app.ErrBreakerOpen):
		return &ExitError{Code: ExitIntervene, Err: err}
	case errors.Is(err, app.ErrMergeConflict), errors.Is(err, app.ErrRunIncomplete):
		return &ExitError{Code: ExitIncomplete, Err: err}
	default:
		return err
	}
}

// ExitCode returns the process exit code for an error returned by a command.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitIntervene
}
