package config

import (
	"fmt"
	"strings"

	"github.com/example/foreman/internal/core/breaker"
	"github.com/example/foreman/internal/core/complexity"
	"github.com/example/foreman/internal/logging"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Validate checks the Config and returns every problem found.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	add := func(field string, value any, msg string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: msg})
	}

	if c.StateDir == "" {
		add("state_dir", c.StateDir, "must not be empty")
	}
	if !logging.ValidLevel(c.Logging.Level) {
		add("logging.level", c.Logging.Level, "must be one of debug, info, warn, error")
	}
	if c.Loop.MaxIterations < 1 {
		add("loop.max_iterations", c.Loop.MaxIterations, "must be at least 1")
	}
	if c.Loop.CouncilThreshold < 0 || c.Loop.CouncilThreshold > c.Complexity.MaxScore {
		add("loop.council_threshold", c.Loop.CouncilThreshold, "must be within the score range")
	}
	if err := breaker.ValidateThreshold(c.Breaker.Threshold); err != nil {
		add("breaker.threshold", c.Breaker.Threshold, err.Error())
	}
	if c.Scheduler.Tracks < 1 {
		add("scheduler.tracks", c.Scheduler.Tracks, "must be at least 1")
	}
	if c.Scheduler.TaskBudget < 0 {
		add("scheduler.task_budget", c.Scheduler.TaskBudget, "must not be negative")
	}
	if err := c.Policy().Validate(); err != nil {
		add("complexity", c.Complexity, err.Error())
	}
	for k := range c.Complexity.CategoryPoints {
		if !complexity.KnownCategory(complexity.Category(strings.ToLower(k))) {
			add("complexity.category_points", k, "unknown category")
		}
	}
	if c.DefaultExecutor == "" {
		add("default_executor", c.DefaultExecutor, "must not be empty")
	}
	for i, e := range c.Executors {
		if e.Name == "" {
			add(fmt.Sprintf("executors[%d].name", i), e.Name, "must not be empty")
		}
		for key := range e.Tiers {
			if _, err := complexity.ParseTier(key); err != nil {
				add(fmt.Sprintf("executors[%d].tiers", i), key, "must be T0, T1 or T2")
			}
		}
	}
	if c.Timeouts.Executor < 0 || c.Timeouts.Validator < 0 || c.Timeouts.Analyzer < 0 {
		add("timeouts", c.Timeouts, "must not be negative")
	}
	if c.VCS.BaseBranch == "" {
		add("vcs.base_branch", c.VCS.BaseBranch, "must not be empty")
	}
	return errs
}
