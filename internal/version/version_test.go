package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	Commit = "0123456789abcdef"
	BuildTime = "2026-01-01"
	t.Cleanup(func() { Commit = "" })

	got := String()
	if !strings.HasPrefix(got, "foreman dev") || !strings.Contains(got, "commit: 0123456,") {
		t.Errorf("String() = %q", got)
	}
}

func TestShortCommit_Short(t *testing.T) {
	Commit = "abc"
	t.Cleanup(func() { Commit = "" })

	if got := shortCommit(); got != "abc" {
		t.Errorf("shortCommit() = %q, want abc", got)
	}
}
