// Package escalation holds the tier progression and failure handling rules of
// the task loop. This is part of the Functional Core - no I/O, only pure functions.
package escalation

import (
	"strings"

	"github.com/example/foreman/internal/core/complexity"
)

// FailureClass is the validator's classification of a failed attempt.
type FailureClass string

const (
	ClassSyntax       FailureClass = "syntax"
	ClassLogic        FailureClass = "logic"
	ClassArchitecture FailureClass = "architecture"
	ClassSecurity     FailureClass = "security"
	ClassFlaky        FailureClass = "flaky"
)

// Valid reports whether c is one of the known classes.
func (c FailureClass) Valid() bool {
	switch c {
	case ClassSyntax, ClassLogic, ClassArchitecture, ClassSecurity, ClassFlaky:
		return true
	}
	return false
}

// Structural failures force the top tier.
func (c FailureClass) Structural() bool {
	return c == ClassArchitecture || c == ClassSecurity
}

// Reasons recorded on escalation rows.
const (
	ReasonInitial         = "initial"
	ReasonProgression     = "progression"
	ReasonSyntaxDowngrade = "syntax_downgrade"
	ReasonStructural      = "structural_upgrade"
	ReasonRecurringDefect = "recurring_defect"
	ReasonFlakyHold       = "flaky_hold"
	ReasonCouncilRetry    = "council_retry"
)

// progression is the base tier table indexed by starting tier then iteration-1.
var progression = map[complexity.Tier][]complexity.Tier{
	complexity.Tier0: {complexity.Tier0, complexity.Tier0, complexity.Tier1, complexity.Tier1, complexity.Tier2},
	complexity.Tier1: {complexity.Tier1, complexity.Tier1, complexity.Tier2, complexity.Tier2, complexity.Tier2},
	complexity.Tier2: {complexity.Tier2, complexity.Tier2, complexity.Tier2, complexity.Tier2, complexity.Tier2},
}

// BaseTier returns the table tier for a 1-indexed iteration. Iterations past
// the table keep its last column.
func BaseTier(start complexity.Tier, iteration int) complexity.Tier {
	row, ok := progression[complexity.Clamp(start)]
	if !ok {
		row = progression[complexity.Tier0]
	}
	if iteration < 1 {
		iteration = 1
	}
	if iteration > len(row) {
		iteration = len(row)
	}
	return row[iteration-1]
}

// Attempt is one finished iteration of the loop.
type Attempt struct {
	Iteration     int
	Tier          complexity.Tier
	Passed        bool
	FailureClass  FailureClass
	UnmetCriteria []string
}

// SelectInput describes the iteration about to run.
type SelectInput struct {
	StartTier complexity.Tier
	Iteration int
	// History holds the finished attempts of this task, oldest first.
	History  []Attempt
	ForceTop bool
}

// Selection is the tier chosen for an iteration and why.
type Selection struct {
	Tier   complexity.Tier
	Base   complexity.Tier
	Reason string
}

// SelectTier picks the tier for the next iteration.
// Rules, applied to the previous failed attempt:
// - architecture/security, or the same defect in the two latest attempts: T2
// - syntax: one tier below the table value (floor T0)
// - flaky: the previous tier, never below the table value
// - otherwise the table value
func SelectTier(in SelectInput) Selection {
	base := BaseTier(in.StartTier, in.Iteration)
	sel := Selection{Tier: base, Base: base, Reason: ReasonProgression}

	if in.ForceTop {
		sel.Tier = complexity.MaxTier
		sel.Reason = ReasonCouncilRetry
		return sel
	}

	if len(in.History) == 0 {
		sel.Reason = ReasonInitial
		return sel
	}

	prev := in.History[len(in.History)-1]
	if prev.Passed {
		return sel
	}

	switch {
	case prev.FailureClass.Structural():
		sel.Tier = complexity.MaxTier
		sel.Reason = ReasonStructural
	case prev.FailureClass == ClassFlaky:
		sel.Tier = prev.Tier
		if sel.Tier < base {
			sel.Tier = base
		}
		sel.Reason = ReasonFlakyHold
	case recurring(in.History):
		sel.Tier = complexity.MaxTier
		sel.Reason = ReasonRecurringDefect
	case prev.FailureClass == ClassSyntax:
		sel.Tier = complexity.Clamp(base - 1)
		sel.Reason = ReasonSyntaxDowngrade
	}

	return sel
}

// recurring reports whether the two latest attempts failed on a shared
// unmet criterion. Flaky attempts never count.
func recurring(history []Attempt) bool {
	if len(history) < 2 {
		return false
	}
	last, before := history[len(history)-1], history[len(history)-2]
	if last.Passed || before.Passed || last.FailureClass == ClassFlaky || before.FailureClass == ClassFlaky {
		return false
	}
	seen := make(map[string]bool, len(before.UnmetCriteria))
	for _, c := range before.UnmetCriteria {
		seen[normalize(c)] = true
	}
	for _, c := range last.UnmetCriteria {
		if n := normalize(c); n != "" && seen[n] {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Outcome is what the loop does after a failed iteration.
type Outcome string

const (
	OutcomeRetry    Outcome = "retry"
	OutcomeEscalate Outcome = "escalate_to_council"
	OutcomeFail     Outcome = "fail"
)

// DecideInput describes a failed iteration.
type DecideInput struct {
	Iteration        int
	MaxIterations    int
	Tier             complexity.Tier
	FailureClass     FailureClass
	Complexity       int
	CouncilThreshold int
}

// Decision is the loop's next step.
type Decision struct {
	Outcome Outcome
	Reason  string
}

// Decide applies the escalation ceiling after a failed iteration.
// Rules:
// - A structural failure at the top tier goes to the council at once when the
//   task qualifies for it
// - At the last iteration the task goes to the council when it qualifies,
//   otherwise it fails
func Decide(in DecideInput) Decision {
	qualifies := in.Complexity >= in.CouncilThreshold

	if in.FailureClass.Structural() && in.Tier == complexity.MaxTier && qualifies {
		return Decision{Outcome: OutcomeEscalate, Reason: "structural failure at top tier"}
	}

	if in.Iteration >= in.MaxIterations {
		if qualifies {
			return Decision{Outcome: OutcomeEscalate, Reason: "max iterations reached"}
		}
		return Decision{Outcome: OutcomeFail, Reason: "max iterations reached"}
	}

	return Decision{Outcome: OutcomeRetry}
}
