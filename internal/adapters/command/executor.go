package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/foreman/internal/ports/secondary"
)

// Executor implements secondary.WorkExecutor. It runs the command line the
// registry selected for the item's tier inside the track workspace.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates an executor with a per-call timeout (0 = none).
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{timeout: timeout}
}

// Execute runs item.Command. A JSON object on stdout is taken as the result;
// otherwise success is the exit status and stderr (or stdout) is the diagnostic.
func (e *Executor) Execute(ctx context.Context, item secondary.WorkItem) (*secondary.ExecutionResult, error) {
	start := time.Now()
	out, err := run(ctx, item.Command, item.Workspace, itemEnv(item), nil, e.timeout)
	if err != nil {
		return nil, err
	}

	result := &secondary.ExecutionResult{Success: out.exitCode == 0}
	if looksLikeJSON(out.stdout) {
		if err := json.Unmarshal(out.stdout, result); err != nil {
			return nil, fmt.Errorf("executor %s returned malformed JSON: %w", item.Executor, err)
		}
	} else {
		result.DiagnosticText = lastLine(out.stderr)
		if result.DiagnosticText == "" {
			result.DiagnosticText = lastLine(out.stdout)
		}
	}
	result.Duration = time.Since(start)
	return result, nil
}

var _ secondary.WorkExecutor = (*Executor)(nil)
