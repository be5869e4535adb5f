// Package planfile reads YAML plan documents.
package planfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/foreman/internal/core/complexity"
	"github.com/example/foreman/internal/core/graph"
)

// Plan is a named set of tasks.
type Plan struct {
	Name  string `yaml:"name"`
	Tasks []Task `yaml:"tasks"`
}

// Task is one unit of work as declared by the plan author.
type Task struct {
	ID              string   `yaml:"id"`
	Title           string   `yaml:"title"`
	DependsOn       []string `yaml:"depends_on"`
	Weight          int      `yaml:"weight"`
	Files           []string `yaml:"files"`
	Category        string   `yaml:"category"`
	FilesAffected   int      `yaml:"files_affected"`
	EstimatedLines  int      `yaml:"estimated_lines"`
	NewDependencies int      `yaml:"new_dependencies"`
	Risks           []string `yaml:"risks"`
	// Complexity overrides the computed score when set.
	Complexity *int `yaml:"complexity"`
	// Executor pins the task to a registry entry by name.
	Executor string `yaml:"executor"`
}

// Parse decodes and validates a plan. Unknown fields are rejected.
func Parse(data []byte) (*Plan, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("plan: document is empty")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Plan
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("plan: decode: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads and parses a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plan: read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, nil
}

// Validate checks task identity and field ranges. Dependency structure is
// checked later by the graph builder.
func (p *Plan) Validate() error {
	if len(p.Tasks) == 0 {
		return errors.New("plan: no tasks")
	}
	seen := make(map[string]bool, len(p.Tasks))
	for i, t := range p.Tasks {
		if strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("plan: task %d has no id", i+1)
		}
		if seen[t.ID] {
			return fmt.Errorf("plan: duplicate task id %s", t.ID)
		}
		seen[t.ID] = true

		if t.Category != "" && !complexity.KnownCategory(complexity.Category(t.Category)) {
			return fmt.Errorf("plan: task %s: unknown category %q", t.ID, t.Category)
		}
		if t.Weight < 0 || t.FilesAffected < 0 || t.EstimatedLines < 0 || t.NewDependencies < 0 {
			return fmt.Errorf("plan: task %s: counts must not be negative", t.ID)
		}
		if t.Complexity != nil && *t.Complexity < 0 {
			return fmt.Errorf("plan: task %s: complexity must not be negative", t.ID)
		}
	}
	return nil
}

// Nodes returns the graph input for the plan.
func (p *Plan) Nodes() []graph.Node {
	nodes := make([]graph.Node, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		nodes = append(nodes, graph.Node{ID: t.ID, DependsOn: t.DependsOn, Weight: t.Weight})
	}
	return nodes
}

// Factors returns the scoring inputs of a task. FilesAffected defaults to the
// number of declared files.
func (t Task) Factors() complexity.Factors {
	files := t.FilesAffected
	if files == 0 {
		files = len(t.Files)
	}
	return complexity.Factors{
		FilesAffected:   files,
		EstimatedLines:  t.EstimatedLines,
		NewDependencies: t.NewDependencies,
		Category:        complexity.Category(t.Category),
		Risks:           t.Risks,
	}
}
