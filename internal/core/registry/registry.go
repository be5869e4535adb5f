// Package registry maps tasks to the executor that performs them.
// Selection is a pure lookup over task metadata.
package registry

import (
	"fmt"

	"github.com/gobwas/glob"

	"github.com/example/foreman/internal/core/complexity"
)

// Kind says whether a handle follows the tier ladder.
type Kind string

const (
	// KindDynamic handles pick a command per escalation tier.
	KindDynamic Kind = "dynamic"
	// KindFixed handles run one command at every tier. Validators and
	// analyzers are fixed; they never take part in task selection.
	KindFixed Kind = "fixed"
)

// Entry declares an executor and the work it claims.
type Entry struct {
	Name string
	// Kind defaults to KindDynamic.
	Kind       Kind
	Files      []string
	Categories []complexity.Category
	// Commands holds the command line used at each tier. A fixed entry
	// holds exactly one command, under any tier.
	Commands map[complexity.Tier]string
}

// Handle is a selected executor.
type Handle struct {
	Name     string
	Kind     Kind
	Commands map[complexity.Tier]string
}

// Command returns the command for a tier. A fixed handle ignores the tier.
// For a dynamic handle, a tier without its own command falls back to the
// nearest lower tier, then to the nearest higher one.
func (h Handle) Command(tier complexity.Tier) (string, error) {
	if h.Kind == KindFixed {
		for _, c := range h.Commands {
			if c != "" {
				return c, nil
			}
		}
		return "", fmt.Errorf("%s has no command", h.Name)
	}
	tier = complexity.Clamp(tier)
	for t := tier; t >= complexity.Tier0; t-- {
		if c := h.Commands[t]; c != "" {
			return c, nil
		}
	}
	for t := tier + 1; t <= complexity.MaxTier; t++ {
		if c := h.Commands[t]; c != "" {
			return c, nil
		}
	}
	return "", fmt.Errorf("executor %s has no command for %s", h.Name, tier)
}

// Subject is the task metadata selection looks at.
type Subject struct {
	ID       string
	Category complexity.Category
	Files    []string
}

type compiled struct {
	entry Entry
	globs []glob.Glob
}

// Registry is an ordered list of executors with a fallback.
type Registry struct {
	entries  []compiled
	fallback Handle
}

// New compiles the entries. The default executor must be one of them.
func New(entries []Entry, defaultName string) (*Registry, error) {
	r := &Registry{}
	found := false
	seen := make(map[string]bool, len(entries))

	for _, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("executor entry with empty name")
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("duplicate executor %s", e.Name)
		}
		seen[e.Name] = true

		switch e.Kind {
		case "":
			e.Kind = KindDynamic
		case KindDynamic:
		case KindFixed:
			if len(e.Files) > 0 || len(e.Categories) > 0 {
				return nil, fmt.Errorf("fixed entry %s cannot claim files or categories", e.Name)
			}
			if len(e.Commands) != 1 {
				return nil, fmt.Errorf("fixed entry %s needs exactly one command, has %d", e.Name, len(e.Commands))
			}
		default:
			return nil, fmt.Errorf("entry %s: unknown kind %q", e.Name, e.Kind)
		}

		c := compiled{entry: e}
		for _, pattern := range e.Files {
			g, err := glob.Compile(pattern, '/')
			if err != nil {
				return nil, fmt.Errorf("executor %s: invalid file pattern %q: %w", e.Name, pattern, err)
			}
			c.globs = append(c.globs, g)
		}
		r.entries = append(r.entries, c)

		if e.Name == defaultName {
			if e.Kind == KindFixed {
				return nil, fmt.Errorf("default executor %q must follow the tier ladder", defaultName)
			}
			r.fallback = handle(e)
			found = true
		}
	}

	if !found {
		return nil, fmt.Errorf("default executor %q is not registered", defaultName)
	}
	return r, nil
}

// Select returns the first dynamic entry whose categories contain the task
// category or whose patterns match one of the task files, else the default.
func (r *Registry) Select(s Subject) Handle {
	for _, c := range r.entries {
		if c.entry.Kind == KindFixed {
			continue
		}
		for _, cat := range c.entry.Categories {
			if cat == s.Category {
				return handle(c.entry)
			}
		}
		for _, g := range c.globs {
			for _, f := range s.Files {
				if g.Match(f) {
					return handle(c.entry)
				}
			}
		}
	}
	return r.fallback
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (Handle, bool) {
	for _, c := range r.entries {
		if c.entry.Name == name {
			return handle(c.entry), true
		}
	}
	return Handle{}, false
}

// Fixed returns the single command of the fixed entry registered under name.
func (r *Registry) Fixed(name string) (string, error) {
	h, ok := r.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%s is not registered", name)
	}
	if h.Kind != KindFixed {
		return "", fmt.Errorf("%s is a tiered executor, not a fixed command", name)
	}
	return h.Command(complexity.Tier0)
}

func handle(e Entry) Handle {
	cmds := make(map[complexity.Tier]string, len(e.Commands))
	for t, c := range e.Commands {
		cmds[t] = c
	}
	return Handle{Name: e.Name, Kind: e.Kind, Commands: cmds}
}
