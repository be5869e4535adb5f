package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/foreman/internal/core/escalation"
	"github.com/example/foreman/internal/ports/secondary"
)

// Validator implements secondary.Validator with a shell command. With no
// command configured, the executor's own success flag decides.
type Validator struct {
	command string
	timeout time.Duration
}

// NewValidator creates a validator.
func NewValidator(command string, timeout time.Duration) *Validator {
	return &Validator{command: command, timeout: timeout}
}

// Validate judges an execution result. A JSON object on stdout is taken as the
// verdict; otherwise exit 0 passes and the last output line is the unmet
// criterion. Failures without a known class are classed as logic.
func (v *Validator) Validate(ctx context.Context, item secondary.WorkItem, result *secondary.ExecutionResult) (*secondary.ValidationResult, error) {
	if strings.TrimSpace(v.command) == "" {
		return fromExecution(result), nil
	}

	env := append(itemEnv(item),
		"FOREMAN_EXEC_SUCCESS="+strconv.FormatBool(result.Success),
		"FOREMAN_FILES_CHANGED="+strings.Join(result.FilesChanged, ","),
		"FOREMAN_DIAGNOSTIC="+result.DiagnosticText,
	)
	out, err := run(ctx, v.command, item.Workspace, env, nil, v.timeout)
	if err != nil {
		return nil, err
	}

	verdict := &secondary.ValidationResult{Passed: out.exitCode == 0}
	if looksLikeJSON(out.stdout) {
		if err := json.Unmarshal(out.stdout, verdict); err != nil {
			return nil, fmt.Errorf("validator returned malformed JSON: %w", err)
		}
	} else if !verdict.Passed {
		msg := lastLine(out.stdout)
		if msg == "" {
			msg = lastLine(out.stderr)
		}
		if msg == "" {
			msg = fmt.Sprintf("validator exited with status %d", out.exitCode)
		}
		verdict.UnmetCriteria = []string{msg}
	}
	return normalize(verdict), nil
}

func fromExecution(result *secondary.ExecutionResult) *secondary.ValidationResult {
	if result.Success {
		return &secondary.ValidationResult{Passed: true}
	}
	msg := result.DiagnosticText
	if msg == "" {
		msg = "executor reported failure"
	}
	return normalize(&secondary.ValidationResult{UnmetCriteria: []string{msg}})
}

func normalize(v *secondary.ValidationResult) *secondary.ValidationResult {
	if v.Passed {
		v.FailureClass = ""
		return v
	}
	if !escalation.FailureClass(v.FailureClass).Valid() {
		v.FailureClass = string(escalation.ClassLogic)
	}
	return v
}

var _ secondary.Validator = (*Validator)(nil)
