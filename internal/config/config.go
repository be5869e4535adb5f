// Package config loads foreman configuration with viper. Values come from
// .foreman/config.yaml in the working directory, then
// $HOME/.config/foreman/config.yaml, with FOREMAN_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/example/foreman/internal/core/complexity"
	"github.com/example/foreman/internal/core/registry"
)

// Config represents the complete foreman configuration.
type Config struct {
	StateDir        string           `mapstructure:"state_dir"`
	DBPath          string           `mapstructure:"db_path"`
	Logging         LoggingConfig    `mapstructure:"logging"`
	Loop            LoopConfig       `mapstructure:"loop"`
	Breaker         BreakerConfig    `mapstructure:"breaker"`
	Scheduler       SchedulerConfig  `mapstructure:"scheduler"`
	Complexity      ComplexityConfig `mapstructure:"complexity"`
	Executor        CommandConfig    `mapstructure:"executor"`
	Executors       []ExecutorConfig `mapstructure:"executors"`
	DefaultExecutor string           `mapstructure:"default_executor"`
	Validator       CommandConfig    `mapstructure:"validator"`
	Council         CommandConfig    `mapstructure:"council"`
	Timeouts        TimeoutsConfig   `mapstructure:"timeouts"`
	VCS             VCSConfig        `mapstructure:"vcs"`
	Monitor         MonitorConfig    `mapstructure:"monitor"`
}

// LoggingConfig controls the structured log.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
}

// LoopConfig bounds the per-task execution loop.
type LoopConfig struct {
	MaxIterations int `mapstructure:"max_iterations"`
	// CouncilThreshold is the minimum complexity score that escalates to the
	// council instead of failing.
	CouncilThreshold int `mapstructure:"council_threshold"`
}

// BreakerConfig controls the session circuit breaker.
type BreakerConfig struct {
	Threshold int `mapstructure:"threshold"`
}

// SchedulerConfig controls track parallelism.
type SchedulerConfig struct {
	Tracks int `mapstructure:"tracks"`
	// TaskBudget stops admitting tasks once this many have started (0 = unlimited).
	TaskBudget int `mapstructure:"task_budget"`
}

// ComplexityConfig holds the scoring policy.
type ComplexityConfig struct {
	FilesBands      []int          `mapstructure:"files_bands"`
	LinesBands      []int          `mapstructure:"lines_bands"`
	DependencyBands []int          `mapstructure:"dependency_bands"`
	CategoryPoints  map[string]int `mapstructure:"category_points"`
	RiskPoints      map[string]int `mapstructure:"risk_points"`
	MaxScore        int            `mapstructure:"max_score"`
	Tier1Min        int            `mapstructure:"tier1_min"`
	Tier2Min        int            `mapstructure:"tier2_min"`
}

// CommandConfig is a shell command line.
type CommandConfig struct {
	Command string `mapstructure:"command"`
}

// ExecutorConfig declares a capability registry entry.
type ExecutorConfig struct {
	Name       string   `mapstructure:"name"`
	Files      []string `mapstructure:"files"`
	Categories []string `mapstructure:"categories"`
	// Tiers maps "T0".."T2" to a command line.
	Tiers map[string]string `mapstructure:"tiers"`
}

// TimeoutsConfig bounds collaborator calls. Zero disables the timeout.
type TimeoutsConfig struct {
	Executor  time.Duration `mapstructure:"executor"`
	Validator time.Duration `mapstructure:"validator"`
	Analyzer  time.Duration `mapstructure:"analyzer"`
}

// VCSConfig locates the repository and its track workspaces.
type VCSConfig struct {
	Repo         string `mapstructure:"repo"`
	BaseBranch   string `mapstructure:"base_branch"`
	WorktreesDir string `mapstructure:"worktrees_dir"`
	BranchPrefix string `mapstructure:"branch_prefix"`
}

// MonitorConfig controls the optional tmux track monitor.
type MonitorConfig struct {
	Tmux bool `mapstructure:"tmux"`
}

// DefaultStateDir is the per-project state directory.
const DefaultStateDir = ".foreman"

// Default returns the built-in configuration.
func Default() *Config {
	p := complexity.DefaultPolicy()
	categories := make(map[string]int, len(p.CategoryPoints))
	for c, v := range p.CategoryPoints {
		categories[string(c)] = v
	}
	return &Config{
		StateDir: DefaultStateDir,
		Logging:  LoggingConfig{Level: "info"},
		Loop:     LoopConfig{MaxIterations: 5, CouncilThreshold: 7},
		Breaker:  BreakerConfig{Threshold: 5},
		Scheduler: SchedulerConfig{
			Tracks: 1,
		},
		Complexity: ComplexityConfig{
			FilesBands:      p.FilesBands,
			LinesBands:      p.LinesBands,
			DependencyBands: p.DependencyBands,
			CategoryPoints:  categories,
			RiskPoints:      p.RiskPoints,
			MaxScore:        p.MaxScore,
			Tier1Min:        p.Tier1Min,
			Tier2Min:        p.Tier2Min,
		},
		DefaultExecutor: "default",
		Timeouts: TimeoutsConfig{
			Executor:  30 * time.Minute,
			Validator: 10 * time.Minute,
			Analyzer:  5 * time.Minute,
		},
		VCS: VCSConfig{
			Repo:         ".",
			BaseBranch:   "main",
			WorktreesDir: filepath.Join(DefaultStateDir, "worktrees"),
			BranchPrefix: "foreman",
		},
	}
}

// SetDefaults registers default values with v.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("state_dir", d.StateDir)
	v.SetDefault("db_path", "")
	v.SetDefault("logging.level", d.Logging.Level)

	v.SetDefault("loop.max_iterations", d.Loop.MaxIterations)
	v.SetDefault("loop.council_threshold", d.Loop.CouncilThreshold)
	v.SetDefault("breaker.threshold", d.Breaker.Threshold)
	v.SetDefault("scheduler.tracks", d.Scheduler.Tracks)
	v.SetDefault("scheduler.task_budget", d.Scheduler.TaskBudget)

	v.SetDefault("complexity.files_bands", d.Complexity.FilesBands)
	v.SetDefault("complexity.lines_bands", d.Complexity.LinesBands)
	v.SetDefault("complexity.dependency_bands", d.Complexity.DependencyBands)
	v.SetDefault("complexity.category_points", d.Complexity.CategoryPoints)
	v.SetDefault("complexity.risk_points", d.Complexity.RiskPoints)
	v.SetDefault("complexity.max_score", d.Complexity.MaxScore)
	v.SetDefault("complexity.tier1_min", d.Complexity.Tier1Min)
	v.SetDefault("complexity.tier2_min", d.Complexity.Tier2Min)

	v.SetDefault("executor.command", d.Executor.Command)
	v.SetDefault("default_executor", d.DefaultExecutor)
	v.SetDefault("validator.command", d.Validator.Command)
	v.SetDefault("council.command", d.Council.Command)

	v.SetDefault("timeouts.executor", d.Timeouts.Executor)
	v.SetDefault("timeouts.validator", d.Timeouts.Validator)
	v.SetDefault("timeouts.analyzer", d.Timeouts.Analyzer)

	v.SetDefault("vcs.repo", d.VCS.Repo)
	v.SetDefault("vcs.base_branch", d.VCS.BaseBranch)
	v.SetDefault("vcs.worktrees_dir", d.VCS.WorktreesDir)
	v.SetDefault("vcs.branch_prefix", d.VCS.BranchPrefix)

	v.SetDefault("monitor.tmux", d.Monitor.Tmux)
}

// New returns a viper instance with defaults, config file search paths and
// environment overrides. A missing config file is not an error.
func New(dir string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(dir, DefaultStateDir))
	v.AddConfigPath(ConfigDir())

	v.SetEnvPrefix("FOREMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load reads the configuration from v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.StateDir, "foreman.db")
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

// ConfigDir returns the user's foreman config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "foreman")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultStateDir
	}
	return filepath.Join(home, ".config", "foreman")
}

// Policy converts the complexity section to a scoring policy.
func (c *Config) Policy() complexity.Policy {
	p := complexity.Policy{
		FilesBands:      complexity.Band(c.Complexity.FilesBands),
		LinesBands:      complexity.Band(c.Complexity.LinesBands),
		DependencyBands: complexity.Band(c.Complexity.DependencyBands),
		CategoryPoints:  make(map[complexity.Category]int, len(c.Complexity.CategoryPoints)),
		RiskPoints:      make(map[string]int, len(c.Complexity.RiskPoints)),
		MaxScore:        c.Complexity.MaxScore,
		Tier1Min:        c.Complexity.Tier1Min,
		Tier2Min:        c.Complexity.Tier2Min,
	}
	for k, v := range c.Complexity.CategoryPoints {
		p.CategoryPoints[complexity.Category(strings.ToLower(k))] = v
	}
	for k, v := range c.Complexity.RiskPoints {
		p.RiskPoints[strings.ToLower(k)] = v
	}
	return p
}

// Registry names reserved for the fixed-command collaborators.
const (
	ValidatorEntry = "validator"
	CouncilEntry   = "council"
)

// Registry builds the capability registry. When no entry carries the
// default executor's name, one is synthesized from executor.command. The
// validator and council commands, when set, are registered as fixed entries
// under ValidatorEntry and CouncilEntry.
func (c *Config) Registry() (*registry.Registry, error) {
	var entries []registry.Entry
	hasDefault := false
	for _, e := range c.Executors {
		entry := registry.Entry{
			Name:     e.Name,
			Files:    e.Files,
			Commands: make(map[complexity.Tier]string, len(e.Tiers)),
		}
		for _, cat := range e.Categories {
			entry.Categories = append(entry.Categories, complexity.Category(cat))
		}
		for key, cmd := range e.Tiers {
			tier, err := complexity.ParseTier(key)
			if err != nil {
				return nil, fmt.Errorf("executor %s: %w", e.Name, err)
			}
			entry.Commands[tier] = cmd
		}
		if e.Name == c.DefaultExecutor {
			hasDefault = true
		}
		entries = append(entries, entry)
	}
	if !hasDefault {
		entries = append(entries, registry.Entry{
			Name:     c.DefaultExecutor,
			Commands: map[complexity.Tier]string{complexity.Tier0: c.Executor.Command},
		})
	}
	for _, fixed := range []struct{ name, cmd string }{
		{ValidatorEntry, c.Validator.Command},
		{CouncilEntry, c.Council.Command},
	} {
		if fixed.cmd == "" {
			continue
		}
		entries = append(entries, registry.Entry{
			Name:     fixed.name,
			Kind:     registry.KindFixed,
			Commands: map[complexity.Tier]string{complexity.Tier0: fixed.cmd},
		})
	}
	return registry.New(entries, c.DefaultExecutor)
}
