package registry

import (
	"testing"

	"github.com/example/foreman/internal/core/complexity"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New([]Entry{
		{
			Name:       "schema",
			Categories: []complexity.Category{complexity.CategoryArchitectural},
			Files:      []string{"migrations/**"},
			Commands:   map[complexity.Tier]string{complexity.Tier2: "run-schema --deep"},
		},
		{
			Name:     "frontend",
			Files:    []string{"web/**/*.tsx", "*.css"},
			Commands: map[complexity.Tier]string{complexity.Tier0: "fe-small", complexity.Tier1: "fe-medium"},
		},
		{
			Name:     "general",
			Commands: map[complexity.Tier]string{complexity.Tier0: "gen-0", complexity.Tier1: "gen-1", complexity.Tier2: "gen-2"},
		},
	}, "general")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return r
}

func TestSelect(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		name    string
		subject Subject
		want    string
	}{
		{"category match", Subject{ID: "A", Category: complexity.CategoryArchitectural}, "schema"},
		{"deep glob", Subject{ID: "B", Files: []string{"migrations/2024/001.sql"}}, "schema"},
		{"nested tsx", Subject{ID: "C", Files: []string{"README.md", "web/app/page.tsx"}}, "frontend"},
		{"single star stays in directory", Subject{ID: "D", Files: []string{"styles/site.css"}}, "general"},
		{"root css", Subject{ID: "E", Files: []string{"site.css"}}, "frontend"},
		{"fallback", Subject{ID: "F", Category: complexity.CategoryFix, Files: []string{"main.go"}}, "general"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Select(tt.subject); got.Name != tt.want {
				t.Errorf("Select = %s, want %s", got.Name, tt.want)
			}
		})
	}
}

func TestSelect_Deterministic(t *testing.T) {
	r := testRegistry(t)
	s := Subject{Category: complexity.CategoryArchitectural, Files: []string{"web/x.tsx"}}
	for i := 0; i < 20; i++ {
		if got := r.Select(s).Name; got != "schema" {
			t.Fatalf("Select = %s on attempt %d", got, i)
		}
	}
}

func TestHandleCommand(t *testing.T) {
	h := Handle{Name: "frontend", Commands: map[complexity.Tier]string{
		complexity.Tier0: "fe-small", complexity.Tier1: "fe-medium",
	}}
	tests := []struct {
		tier complexity.Tier
		want string
	}{
		{complexity.Tier0, "fe-small"},
		{complexity.Tier1, "fe-medium"},
		{complexity.Tier2, "fe-medium"},
	}
	for _, tt := range tests {
		got, err := h.Command(tt.tier)
		if err != nil || got != tt.want {
			t.Errorf("Command(%s) = %q, %v; want %q", tt.tier, got, err, tt.want)
		}
	}

	up := Handle{Name: "schema", Commands: map[complexity.Tier]string{complexity.Tier2: "deep"}}
	if got, _ := up.Command(complexity.Tier0); got != "deep" {
		t.Errorf("Command(T0) = %q, want fallback to higher tier", got)
	}

	if _, err := (Handle{Name: "empty"}).Command(complexity.Tier1); err == nil {
		t.Error("expected error for handle without commands")
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New([]Entry{{Name: "a"}}, "b"); err == nil {
		t.Error("expected error for unknown default")
	}
	if _, err := New([]Entry{{Name: "a"}, {Name: "a"}}, "a"); err == nil {
		t.Error("expected error for duplicate names")
	}
}

func TestLookup(t *testing.T) {
	r, err := New([]Entry{{Name: "default"}, {Name: "schema", Commands: map[complexity.Tier]string{complexity.Tier2: "deep"}}}, "default")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, ok := r.Lookup("schema")
	if !ok || h.Commands[complexity.Tier2] != "deep" {
		t.Errorf("Lookup(schema) = %+v, %v", h, ok)
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Error("Lookup(missing) should fail")
	}
}

func TestFixedEntries(t *testing.T) {
	r, err := New([]Entry{
		{Name: "validator", Kind: KindFixed, Commands: map[complexity.Tier]string{complexity.Tier0: "make check"}},
		{Name: "general", Commands: map[complexity.Tier]string{complexity.Tier0: "gen-0", complexity.Tier2: "gen-2"}},
	}, "general")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	h, ok := r.Lookup("validator")
	if !ok || h.Kind != KindFixed {
		t.Fatalf("Lookup(validator) = %+v, %v", h, ok)
	}
	for _, tier := range []complexity.Tier{complexity.Tier0, complexity.Tier1, complexity.Tier2} {
		if got, err := h.Command(tier); err != nil || got != "make check" {
			t.Errorf("Command(%s) = %q, %v; want the fixed command", tier, got, err)
		}
	}

	if got := r.Select(Subject{ID: "A"}).Name; got != "general" {
		t.Errorf("Select = %s, fixed entries must not be selected", got)
	}
	if got, _ := r.Select(Subject{ID: "A"}).Command(complexity.Tier2); got != "gen-2" {
		t.Errorf("dynamic Command(T2) = %q, want gen-2", got)
	}

	if cmd, err := r.Fixed("validator"); err != nil || cmd != "make check" {
		t.Errorf("Fixed(validator) = %q, %v", cmd, err)
	}
	if _, err := r.Fixed("general"); err == nil {
		t.Error("Fixed(general) should reject a tiered executor")
	}
	if _, err := r.Fixed("council"); err == nil {
		t.Error("Fixed(council) should fail when not registered")
	}
}

func TestNew_FixedErrors(t *testing.T) {
	general := Entry{Name: "general", Commands: map[complexity.Tier]string{complexity.Tier0: "gen"}}
	tests := []struct {
		name        string
		entries     []Entry
		defaultName string
	}{
		{"two commands", []Entry{general, {Name: "v", Kind: KindFixed, Commands: map[complexity.Tier]string{complexity.Tier0: "a", complexity.Tier1: "b"}}}, "general"},
		{"no command", []Entry{general, {Name: "v", Kind: KindFixed}}, "general"},
		{"claims files", []Entry{general, {Name: "v", Kind: KindFixed, Files: []string{"*.go"}, Commands: map[complexity.Tier]string{complexity.Tier0: "a"}}}, "general"},
		{"fixed default", []Entry{{Name: "v", Kind: KindFixed, Commands: map[complexity.Tier]string{complexity.Tier0: "a"}}}, "v"},
		{"unknown kind", []Entry{{Name: "general", Kind: "laddered"}}, "general"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.entries, tt.defaultName); err == nil {
				t.Error("expected error")
			}
		})
	}
}
