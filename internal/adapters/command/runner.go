// Package command implements the collaborator ports by running shell commands.
// Commands receive the task through FOREMAN_* environment variables and may
// print a JSON result on stdout.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/example/foreman/internal/core/complexity"
	"github.com/example/foreman/internal/ctxutil"
	"github.com/example/foreman/internal/ports/secondary"
)

// output is what a finished command produced.
type output struct {
	stdout   []byte
	stderr   []byte
	exitCode int
}

// run executes line with sh -c. A non-zero exit is reported through
// exitCode, not as an error. A timeout or a failure to start is an error.
func run(ctx context.Context, line, dir string, env []string, stdin io.Reader, timeout time.Duration) (*output, error) {
	if strings.TrimSpace(line) == "" {
		return nil, errors.New("no command configured")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", line)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	if track := ctxutil.TrackFromContext(ctx); track != "" {
		cmd.Env = append(cmd.Env, "FOREMAN_TRACK_ID="+track)
	}
	cmd.Stdin = stdin
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("command timed out after %s: %s", timeout, line)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	out := &output{stdout: stdout.Bytes(), stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		out.exitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("failed to run %q: %w", line, err)
	}
	return out, nil
}

func itemEnv(item secondary.WorkItem) []string {
	return []string{
		"FOREMAN_RUN_ID=" + item.RunID,
		"FOREMAN_TASK_ID=" + item.TaskID,
		"FOREMAN_TASK_TITLE=" + item.Title,
		"FOREMAN_TASK_CATEGORY=" + item.Category,
		"FOREMAN_TASK_FILES=" + strings.Join(item.Files, ","),
		"FOREMAN_ITERATION=" + strconv.Itoa(item.Iteration),
		"FOREMAN_TIER=" + complexity.Tier(item.Tier).String(),
		"FOREMAN_EXECUTOR=" + item.Executor,
		"FOREMAN_CONTEXT=" + item.Context,
	}
}

// lastLine returns the last non-empty line of b.
func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

// looksLikeJSON reports whether stdout holds a JSON object.
func looksLikeJSON(b []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(b), []byte("{"))
}
