package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/foreman/internal/ports/secondary"
)

// Analyzer implements secondary.Analyzer with one shell command serving every
// council role. The command reads a JSON brief on stdin and learns its role
// from FOREMAN_COUNCIL_ROLE and its phase from FOREMAN_COUNCIL_PHASE.
type Analyzer struct {
	command string
	timeout time.Duration
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(command string, timeout time.Duration) *Analyzer {
	return &Analyzer{command: command, timeout: timeout}
}

type attemptJSON struct {
	Iteration     int      `json:"iteration"`
	Tier          int      `json:"tier"`
	Passed        bool     `json:"passed"`
	FailureClass  string   `json:"failure_class,omitempty"`
	UnmetCriteria []string `json:"unmet_criteria,omitempty"`
	Diagnostic    string   `json:"diagnostic,omitempty"`
}

type briefJSON struct {
	RunID     string                `json:"run_id"`
	TaskID    string                `json:"task_id"`
	Title     string                `json:"title"`
	Role      string                `json:"role"`
	Attempts  []attemptJSON         `json:"attempts"`
	Proposals []secondary.Diagnosis `json:"proposals,omitempty"`
}

func (a *Analyzer) call(ctx context.Context, phase, role string, brief secondary.CouncilBrief, proposals []secondary.Diagnosis, into any) error {
	payload := briefJSON{RunID: brief.RunID, TaskID: brief.TaskID, Title: brief.Title, Role: role, Proposals: proposals}
	for _, at := range brief.Attempts {
		payload.Attempts = append(payload.Attempts, attemptJSON{
			Iteration:     at.Iteration,
			Tier:          at.Tier,
			Passed:        at.Passed,
			FailureClass:  at.FailureClass,
			UnmetCriteria: at.UnmetCriteria,
			Diagnostic:    at.Diagnostic,
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode council brief: %w", err)
	}

	env := []string{
		"FOREMAN_RUN_ID=" + brief.RunID,
		"FOREMAN_TASK_ID=" + brief.TaskID,
		"FOREMAN_COUNCIL_ROLE=" + role,
		"FOREMAN_COUNCIL_PHASE=" + phase,
	}
	out, err := run(ctx, a.command, "", env, bytes.NewReader(body), a.timeout)
	if err != nil {
		return fmt.Errorf("analyzer %s: %w", role, err)
	}
	if out.exitCode != 0 {
		return fmt.Errorf("analyzer %s exited with status %d: %s", role, out.exitCode, lastLine(out.stderr))
	}
	if err := json.Unmarshal(out.stdout, into); err != nil {
		return fmt.Errorf("analyzer %s returned malformed JSON: %w", role, err)
	}
	return nil
}

// Propose asks the role for its diagnosis.
func (a *Analyzer) Propose(ctx context.Context, role string, brief secondary.CouncilBrief) (*secondary.Diagnosis, error) {
	var d secondary.Diagnosis
	if err := a.call(ctx, "propose", role, brief, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Rank asks the role to rank every proposal.
func (a *Analyzer) Rank(ctx context.Context, role string, brief secondary.CouncilBrief, proposals []secondary.Diagnosis) ([]int, error) {
	var resp struct {
		Ranks []int `json:"ranks"`
	}
	if err := a.call(ctx, "rank", role, brief, proposals, &resp); err != nil {
		return nil, err
	}
	return resp.Ranks, nil
}

var _ secondary.Analyzer = (*Analyzer)(nil)
