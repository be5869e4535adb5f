// Package version reports the foreman build.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set at build time via -ldflags "-X".
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = "unknown"
)

// String returns "foreman <version> (commit: <short>, built: <time>)".
func String() string {
	return fmt.Sprintf("foreman %s (commit: %s, built: %s)", Version, shortCommit(), BuildTime)
}

// shortCommit prefers the ldflags value and falls back to the VCS stamp the
// go tool embeds in module builds.
func shortCommit() string {
	c := Commit
	if c == "" {
		c = vcsRevision()
	}
	if c == "" {
		return "unknown"
	}
	if len(c) > 7 {
		return c[:7]
	}
	return c
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}
