package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/example/foreman/internal/app"
	"github.com/example/foreman/internal/ports/primary"
)

func TestOutcomeError(t *testing.T) {
	tests := []struct {
		outcome string
		want    int
	}{
		{primary.RunOutcomeCompleted, ExitOK},
		{primary.RunOutcomeBreakerOpen, ExitIntervene},
		{primary.RunOutcomeFailed, ExitIntervene},
		{primary.RunOutcomeIncomplete, ExitIncomplete},
	}
	for _, tt := range tests {
		t.Run(tt.outcome, func(t *testing.T) {
			err := outcomeError(tt.outcome)
			if got := ExitCode(err); got != tt.want {
				t.Errorf("ExitCode(%s) = %d, want %d", tt.outcome, got, tt.want)
			}
			if err != nil && !err.(*ExitError).Silent() {
				t.Error("expected outcome errors to be silent")
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"breaker", fmt.Errorf("run refused: %w", app.ErrBreakerOpen), ExitIntervene},
		{"merge conflict", fmt.Errorf("%w: TRACK-2", app.ErrMergeConflict), ExitIncomplete},
		{"merge before tracks finish", fmt.Errorf("%w: cannot merge until every track is completed: TRACK-2 (running)", app.ErrRunIncomplete), ExitIncomplete},
		{"other", errors.New("disk full"), ExitIntervene},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err)
			if got := ExitCode(err); got != tt.want {
				t.Errorf("ExitCode = %d, want %d", got, tt.want)
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Errorf("expected %v to wrap %v", err, tt.err)
			}
		})
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := RootCmd()
	for _, name := range []string{"init", "plan", "run", "merge", "reset", "status", "history"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("expected subcommand %s, got %v (%v)", name, cmd, err)
		}
	}
	run, _, _ := root.Find([]string{"run"})
	for _, flag := range []string{"tracks", "task-budget", "plan"} {
		if run.Flags().Lookup(flag) == nil {
			t.Errorf("expected run flag --%s", flag)
		}
	}
}
