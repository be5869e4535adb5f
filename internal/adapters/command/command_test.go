package command

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/example/foreman/internal/ctxutil"
	"github.com/example/foreman/internal/ports/secondary"
)

func item(cmd string) secondary.WorkItem {
	return secondary.WorkItem{RunID: "run-1", TaskID: "A", Title: "schema", Iteration: 2, Tier: 1, Command: cmd}
}

func TestExecutor_JSONResult(t *testing.T) {
	e := NewExecutor(0)
	res, err := e.Execute(context.Background(), item(`echo '{"files_changed":["a.go"],"success":true,"diagnostic":"ok"}'`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.Success || len(res.FilesChanged) != 1 || res.DiagnosticText != "ok" {
		t.Errorf("result = %+v", res)
	}
}

func TestExecutor_ExitStatus(t *testing.T) {
	e := NewExecutor(0)
	res, err := e.Execute(context.Background(), item(`echo "tier=$FOREMAN_TIER task=$FOREMAN_TASK_ID" >&2; exit 3`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Success {
		t.Error("non-zero exit should not succeed")
	}
	if res.DiagnosticText != "tier=T1 task=A" {
		t.Errorf("diagnostic = %q", res.DiagnosticText)
	}
}

func TestExecutor_TrackFromContext(t *testing.T) {
	ctx := ctxutil.WithTrackID(context.Background(), "TRACK-2")
	res, err := NewExecutor(0).Execute(ctx, item(`echo "$FOREMAN_TRACK_ID" >&2; exit 1`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.DiagnosticText != "TRACK-2" {
		t.Errorf("diagnostic = %q, want TRACK-2", res.DiagnosticText)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	e := NewExecutor(50 * time.Millisecond)
	_, err := e.Execute(context.Background(), item("sleep 5"))
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("err = %v, want timeout", err)
	}
}

func TestExecutor_NoCommand(t *testing.T) {
	if _, err := NewExecutor(0).Execute(context.Background(), item("")); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestValidator(t *testing.T) {
	ctx := context.Background()
	ok := &secondary.ExecutionResult{Success: true}

	tests := []struct {
		name      string
		command   string
		result    *secondary.ExecutionResult
		passed    bool
		class     string
		criterion string
	}{
		{"no command follows executor success", "", ok, true, "", ""},
		{"no command follows executor failure", "", &secondary.ExecutionResult{DiagnosticText: "boom"}, false, "logic", "boom"},
		{"exit zero passes", "true", ok, true, "", ""},
		{"exit status fails with last line", "echo first; echo 'TestLogin fails'; exit 1", ok, false, "logic", "TestLogin fails"},
		{"json verdict", `echo '{"passed":false,"unmet_criteria":["gofmt"],"failure_class":"syntax"}'`, ok, false, "syntax", "gofmt"},
		{"unknown class becomes logic", `echo '{"passed":false,"unmet_criteria":["x"],"failure_class":"weird"}'`, ok, false, "logic", "x"},
		{"sees execution result", `test "$FOREMAN_EXEC_SUCCESS" = true`, ok, true, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewValidator(tt.command, 0).Validate(ctx, item("unused"), tt.result)
			if err != nil {
				t.Fatalf("Validate failed: %v", err)
			}
			if v.Passed != tt.passed || v.FailureClass != tt.class {
				t.Errorf("verdict = %+v", v)
			}
			if tt.criterion != "" && (len(v.UnmetCriteria) == 0 || v.UnmetCriteria[0] != tt.criterion) {
				t.Errorf("unmet = %v, want %q", v.UnmetCriteria, tt.criterion)
			}
		})
	}
}

func TestAnalyzer(t *testing.T) {
	ctx := context.Background()
	script := `if [ "$FOREMAN_COUNCIL_PHASE" = propose ]; then
  echo "{\"summary\":\"$FOREMAN_COUNCIL_ROLE says retry\",\"confidence\":0.5}"
else
  echo '{"ranks":[2,1]}'
fi`
	a := NewAnalyzer(script, 0)
	brief := secondary.CouncilBrief{RunID: "run-1", TaskID: "C", Title: "payments"}

	d, err := a.Propose(ctx, "root-cause", brief)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if d.Summary != "root-cause says retry" || d.Confidence != 0.5 {
		t.Errorf("diagnosis = %+v", d)
	}

	ranks, err := a.Rank(ctx, "root-cause", brief, []secondary.Diagnosis{{Summary: "a"}, {Summary: "b"}})
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(ranks) != 2 || ranks[0] != 2 || ranks[1] != 1 {
		t.Errorf("ranks = %v", ranks)
	}

	if _, err := NewAnalyzer("echo nope", 0).Propose(ctx, "adversarial", brief); err == nil {
		t.Error("expected malformed JSON error")
	}
}
