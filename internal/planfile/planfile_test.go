package planfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/foreman/internal/core/complexity"
)

const samplePlan = `
name: checkout
tasks:
  - id: A
    title: schema
    files: [db/schema.sql]
    category: fix
  - id: B
    title: api
    depends_on: [A]
    weight: 3
    category: enhancement
    files_affected: 3
    estimated_lines: 120
    new_dependencies: 1
  - id: C
    title: payments
    category: architectural
    risks: [security]
    complexity: 10
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(samplePlan))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if p.Name != "checkout" || len(p.Tasks) != 3 {
		t.Fatalf("plan = %+v", p)
	}

	nodes := p.Nodes()
	if nodes[1].Weight != 3 || len(nodes[1].DependsOn) != 1 || nodes[1].DependsOn[0] != "A" {
		t.Errorf("node B = %+v", nodes[1])
	}

	if f := p.Tasks[0].Factors(); f.FilesAffected != 1 {
		t.Errorf("files affected should default to len(files), got %d", f.FilesAffected)
	}

	policy := complexity.DefaultPolicy()
	if got := policy.Assess(p.Tasks[1].Factors(), p.Tasks[1].Complexity); got.Score != 4 {
		t.Errorf("B score = %d, want 4", got.Score)
	}
	if got := policy.Assess(p.Tasks[2].Factors(), p.Tasks[2].Complexity); got.Score != 10 || got.Tier != complexity.Tier2 {
		t.Errorf("C assessment = %+v, want override 10 at T2", got)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "  \n", "empty"},
		{"no tasks", "name: x\n", "no tasks"},
		{"missing id", "tasks:\n  - title: x\n", "no id"},
		{"duplicate id", "tasks:\n  - id: A\n  - id: A\n", "duplicate"},
		{"unknown category", "tasks:\n  - id: A\n    category: rewrite\n", "unknown category"},
		{"unknown field", "tasks:\n  - id: A\n    colour: red\n", "decode"},
		{"negative weight", "tasks:\n  - id: A\n    weight: -1\n", "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_DefaultsNameFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "release.yaml")
	if err := os.WriteFile(path, []byte("tasks:\n  - id: A\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Name != "release" {
		t.Errorf("Name = %q, want release", p.Name)
	}
}
