// Package council reduces the analyzers' diagnoses to one decision by
// ranked-choice voting.
// This is part of the Functional Core - no I/O, only pure functions.
package council

import (
	"fmt"
	"strings"

	"github.com/example/foreman/internal/core/task"
)

// Analyzer roles. Every council session runs all five.
const (
	RoleRootCause          = "root-cause"
	RoleHistoryArchaeology = "history-archaeology"
	RolePatternMatching    = "pattern-matching"
	RoleSystemsImpact      = "systems-impact"
	RoleAdversarial        = "adversarial"
)

// Roles returns the analyzer roles in proposal-index order.
func Roles() []string {
	return []string{RoleRootCause, RoleHistoryArchaeology, RolePatternMatching, RoleSystemsImpact, RoleAdversarial}
}

// Proposal is one analyzer's diagnosis.
type Proposal struct {
	Index      int
	Analyzer   string
	Summary    string
	Confidence float64
}

// Vote is one analyzer's total ordering over all proposals.
// Ranks[i] is the rank given to proposal i; 1 is best.
type Vote struct {
	Analyzer string
	Ranks    []int
}

// Tie-break stages recorded on the result.
const (
	DecidedByRankSum    = "rank_sum"
	DecidedByConfidence = "confidence"
	DecidedByIndex      = "index"
)

// Result is the outcome of a tally.
type Result struct {
	Winner    Proposal
	RankSums  []int
	DecidedBy string
}

// ValidateVote checks that a vote ranks every proposal exactly once.
func ValidateVote(v Vote, proposals int) error {
	if len(v.Ranks) != proposals {
		return fmt.Errorf("vote from %s ranks %d proposals, want %d", v.Analyzer, len(v.Ranks), proposals)
	}
	seen := make([]bool, proposals+1)
	for i, r := range v.Ranks {
		if r < 1 || r > proposals {
			return fmt.Errorf("vote from %s gives proposal %d rank %d outside 1..%d", v.Analyzer, i, r, proposals)
		}
		if seen[r] {
			return fmt.Errorf("vote from %s repeats rank %d", v.Analyzer, r)
		}
		seen[r] = true
	}
	return nil
}

// Tally picks the proposal with the lowest rank sum. Ties go to the higher
// confidence, then to the lowest proposal index.
func Tally(proposals []Proposal, votes []Vote) (Result, error) {
	if len(proposals) == 0 {
		return Result{}, fmt.Errorf("council has no proposals")
	}
	if len(votes) != len(proposals) {
		return Result{}, fmt.Errorf("council has %d votes for %d proposals", len(votes), len(proposals))
	}

	sums := make([]int, len(proposals))
	for _, v := range votes {
		if err := ValidateVote(v, len(proposals)); err != nil {
			return Result{}, err
		}
		for i, r := range v.Ranks {
			sums[i] += r
		}
	}

	lowest := sums[0]
	for _, s := range sums[1:] {
		if s < lowest {
			lowest = s
		}
	}
	var tied []int
	for i, s := range sums {
		if s == lowest {
			tied = append(tied, i)
		}
	}
	if len(tied) == 1 {
		return Result{Winner: proposals[tied[0]], RankSums: sums, DecidedBy: DecidedByRankSum}, nil
	}

	best := proposals[tied[0]].Confidence
	for _, i := range tied[1:] {
		if proposals[i].Confidence > best {
			best = proposals[i].Confidence
		}
	}
	var confident []int
	for _, i := range tied {
		if proposals[i].Confidence == best {
			confident = append(confident, i)
		}
	}
	if len(confident) == 1 {
		return Result{Winner: proposals[confident[0]], RankSums: sums, DecidedBy: DecidedByConfidence}, nil
	}

	// tied is ascending, so the first confident index is the lowest.
	return Result{Winner: proposals[confident[0]], RankSums: sums, DecidedBy: DecidedByIndex}, nil
}

// RetryContext renders the winning proposal for injection into the forced
// top-tier retry.
func RetryContext(r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Council diagnosis (%s, confidence %.2f, rank sums %v):\n", r.Winner.Analyzer, r.Winner.Confidence, r.RankSums)
	b.WriteString(strings.TrimSpace(r.Winner.Summary))
	return b.String()
}

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// CanConvene evaluates whether a council session may run for a task.
// Rules:
// - Task must be escalated_to_council
// - A task gets one council-informed retry only
func CanConvene(taskID string, status task.Status, councilAttempted bool) GuardResult {
	if status != task.StatusEscalated {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("task %s is %s, council requires %s", taskID, status, task.StatusEscalated),
		}
	}
	if councilAttempted {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("task %s already had its council-informed retry", taskID),
		}
	}
	return GuardResult{Allowed: true}
}
