// Package complexity scores tasks and assigns their starting capability tier.
// This is part of the Functional Core - no I/O, only pure functions.
package complexity

import (
	"fmt"
	"sort"
)

// Tier is a discrete capability/cost level.
type Tier int

const (
	Tier0 Tier = iota
	Tier1
	Tier2
)

// MaxTier is the top of the tier ladder.
const MaxTier = Tier2

func (t Tier) String() string {
	return fmt.Sprintf("T%d", int(t))
}

// ParseTier parses "T0".."T2" (or "0".."2").
func ParseTier(s string) (Tier, error) {
	switch s {
	case "T0", "t0", "0":
		return Tier0, nil
	case "T1", "t1", "1":
		return Tier1, nil
	case "T2", "t2", "2":
		return Tier2, nil
	}
	return Tier0, fmt.Errorf("unknown tier %q", s)
}

// Clamp keeps a tier within T0..T2.
func Clamp(t Tier) Tier {
	if t < Tier0 {
		return Tier0
	}
	if t > MaxTier {
		return MaxTier
	}
	return t
}

// Category is the kind of change a task makes.
type Category string

const (
	CategoryFix           Category = "fix"
	CategoryEnhancement   Category = "enhancement"
	CategoryNewCapability Category = "new-capability"
	CategoryArchitectural Category = "architectural"
)

// Risk flags add to the score.
const (
	RiskSecurity            = "security"
	RiskExternalIntegration = "external-integration"
	RiskSchemaMigration     = "schema-migration"
	RiskBreakingChange      = "breaking-change"
)

// Factors are the raw inputs to scoring.
type Factors struct {
	FilesAffected   int
	EstimatedLines  int
	NewDependencies int
	Category        Category
	Risks           []string
}

// Band maps a raw count to points: the result is the number of thresholds the
// value reaches. Thresholds must be ascending.
type Band []int

func (b Band) points(v int) int {
	p := 0
	for _, threshold := range b {
		if v >= threshold {
			p++
		}
	}
	return p
}

// Policy holds the scoring weights and tier boundaries.
type Policy struct {
	FilesBands      Band
	LinesBands      Band
	DependencyBands Band
	CategoryPoints  map[Category]int
	RiskPoints      map[string]int
	MaxScore        int
	Tier1Min        int
	Tier2Min        int
}

// DefaultPolicy returns the standard weights: files 0-3, lines 0-3,
// dependencies 0-2, category 0-3, additive risks, capped at 14.
func DefaultPolicy() Policy {
	return Policy{
		FilesBands:      Band{2, 4, 8},
		LinesBands:      Band{50, 200, 500},
		DependencyBands: Band{1, 2},
		CategoryPoints: map[Category]int{
			CategoryFix:           0,
			CategoryEnhancement:   1,
			CategoryNewCapability: 2,
			CategoryArchitectural: 3,
		},
		RiskPoints: map[string]int{
			RiskSecurity:            2,
			RiskExternalIntegration: 1,
			RiskSchemaMigration:     1,
			RiskBreakingChange:      1,
		},
		MaxScore: 14,
		Tier1Min: 5,
		Tier2Min: 9,
	}
}

// Validate checks that the policy is internally consistent.
func (p Policy) Validate() error {
	for name, b := range map[string]Band{"files": p.FilesBands, "lines": p.LinesBands, "dependencies": p.DependencyBands} {
		if !sort.IntsAreSorted(b) {
			return fmt.Errorf("%s bands must be ascending: %v", name, b)
		}
	}
	if p.MaxScore <= 0 {
		return fmt.Errorf("max score must be positive (got %d)", p.MaxScore)
	}
	if p.Tier1Min <= 0 || p.Tier2Min <= p.Tier1Min || p.Tier2Min > p.MaxScore {
		return fmt.Errorf("tier bands must satisfy 0 < tier1_min < tier2_min <= max_score (got %d, %d, %d)", p.Tier1Min, p.Tier2Min, p.MaxScore)
	}
	return nil
}

// Breakdown shows how a score was assembled.
type Breakdown struct {
	Files        int
	Lines        int
	Dependencies int
	Category     int
	Risk         int
	Total        int
}

// Score computes the complexity score in 0..MaxScore.
func (p Policy) Score(f Factors) Breakdown {
	b := Breakdown{
		Files:        p.FilesBands.points(f.FilesAffected),
		Lines:        p.LinesBands.points(f.EstimatedLines),
		Dependencies: p.DependencyBands.points(f.NewDependencies),
		Category:     p.CategoryPoints[f.Category],
	}

	seen := make(map[string]bool, len(f.Risks))
	for _, r := range f.Risks {
		if seen[r] {
			continue
		}
		seen[r] = true
		b.Risk += p.RiskPoints[r]
	}

	b.Total = p.ClampScore(b.Files + b.Lines + b.Dependencies + b.Category + b.Risk)
	return b
}

// ClampScore keeps an explicit score within 0..MaxScore.
func (p Policy) ClampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > p.MaxScore {
		return p.MaxScore
	}
	return s
}

// AssignTier maps a score to its starting tier. It is monotonic in s.
func (p Policy) AssignTier(s int) Tier {
	switch {
	case s >= p.Tier2Min:
		return Tier2
	case s >= p.Tier1Min:
		return Tier1
	default:
		return Tier0
	}
}

// Assessment is the result of assessing one task.
type Assessment struct {
	Score     int
	Tier      Tier
	Breakdown Breakdown
	Override  bool
}

// Assess scores a task. A non-nil override replaces the computed score.
func (p Policy) Assess(f Factors, override *int) Assessment {
	b := p.Score(f)
	a := Assessment{Score: b.Total, Breakdown: b}
	if override != nil {
		a.Score = p.ClampScore(*override)
		a.Override = true
	}
	a.Tier = p.AssignTier(a.Score)
	return a
}

// KnownCategory reports whether c is one of the four ordinals.
func KnownCategory(c Category) bool {
	switch c {
	case CategoryFix, CategoryEnhancement, CategoryNewCapability, CategoryArchitectural:
		return true
	}
	return false
}
