// Package wire provides dependency injection for foreman.
// It creates singleton services with lazy initialization.
package wire

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"

	cliadapter "github.com/example/foreman/internal/adapters/cli"
	"github.com/example/foreman/internal/adapters/command"
	"github.com/example/foreman/internal/adapters/filesystem"
	"github.com/example/foreman/internal/adapters/sqlite"
	"github.com/example/foreman/internal/adapters/tmux"
	"github.com/example/foreman/internal/app"
	"github.com/example/foreman/internal/config"
	"github.com/example/foreman/internal/core/registry"
	"github.com/example/foreman/internal/db"
	"github.com/example/foreman/internal/logging"
	"github.com/example/foreman/internal/ports/primary"
	"github.com/example/foreman/internal/ports/secondary"
)

var (
	v   *viper.Viper
	cfg *config.Config

	logger *logging.Logger

	planService   primary.PlanService
	runService    primary.RunService
	mergeService  primary.MergeService
	statusService primary.StatusService
	resetService  primary.ResetService

	once    sync.Once
	initErr error
)

// SetViper supplies the configuration source, typically with CLI flags bound.
// It must be called before Init; later calls have no effect.
func SetViper(vp *viper.Viper) {
	if v == nil {
		v = vp
	}
}

// Init builds every service. It is safe to call repeatedly; the first
// result is returned each time.
func Init() error {
	once.Do(initServices)
	return initErr
}

// Viper returns the configuration source.
func Viper() *viper.Viper {
	once.Do(initServices)
	return v
}

// Config returns the loaded configuration.
func Config() *config.Config {
	once.Do(initServices)
	return cfg
}

// Logger returns the structured run log.
func Logger() *logging.Logger {
	once.Do(initServices)
	return logger
}

// PlanService returns the singleton PlanService instance.
func PlanService() primary.PlanService {
	once.Do(initServices)
	return planService
}

// RunService returns the singleton RunService instance.
func RunService() primary.RunService {
	once.Do(initServices)
	return runService
}

// MergeService returns the singleton MergeService instance.
func MergeService() primary.MergeService {
	once.Do(initServices)
	return mergeService
}

// StatusService returns the singleton StatusService instance.
func StatusService() primary.StatusService {
	once.Do(initServices)
	return statusService
}

// ResetService returns the singleton ResetService instance.
func ResetService() primary.ResetService {
	once.Do(initServices)
	return resetService
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	if v == nil {
		cwd, err := os.Getwd()
		if err != nil {
			initErr = fmt.Errorf("failed to get working directory: %w", err)
			return
		}
		if v, err = config.New(cwd); err != nil {
			initErr = err
			return
		}
	}

	loaded, err := config.Load(v)
	if err != nil {
		initErr = err
		return
	}
	cfg = loaded

	logger, err = logging.NewLogger(cfg.StateDir, cfg.Logging.Level)
	if err != nil {
		initErr = fmt.Errorf("failed to initialize logger: %w", err)
		return
	}

	db.SetPath(cfg.DBPath)
	database, err := db.GetDB()
	if err != nil {
		initErr = fmt.Errorf("failed to initialize database: %w", err)
		return
	}
	store := sqlite.NewStore(database)

	reg, err := cfg.Registry()
	if err != nil {
		initErr = fmt.Errorf("failed to build executor registry: %w", err)
		return
	}

	// Collaborators (secondary ports)
	executor := command.NewExecutor(cfg.Timeouts.Executor)
	validatorCmd, err := fixedCommand(reg, config.ValidatorEntry)
	if err != nil {
		initErr = err
		return
	}
	analyzerCmd, err := fixedCommand(reg, config.CouncilEntry)
	if err != nil {
		initErr = err
		return
	}
	validator := command.NewValidator(validatorCmd, cfg.Timeouts.Validator)
	analyzer := command.NewAnalyzer(analyzerCmd, cfg.Timeouts.Analyzer)

	repoPath, err := filepath.Abs(cfg.VCS.Repo)
	if err != nil {
		initErr = fmt.Errorf("failed to resolve repository path: %w", err)
		return
	}
	workspace, err := filesystem.NewGitWorkspace(repoPath, cfg.VCS.WorktreesDir, cfg.VCS.BaseBranch, cfg.VCS.BranchPrefix)
	if err != nil {
		initErr = err
		return
	}
	marker := filesystem.NewRunMarker(cfg.StateDir)

	var monitor secondary.TrackMonitor
	if cfg.Monitor.Tmux {
		m, err := tmux.NewMonitor()
		if err != nil {
			logger.Warn("tmux monitor unavailable", "error", err)
		} else {
			monitor = m
		}
	}
	logPath, err := filepath.Abs(filepath.Join(cfg.StateDir, logging.FileName))
	if err != nil {
		logPath = filepath.Join(cfg.StateDir, logging.FileName)
	}

	// Services (primary ports implementation)
	checkpoints := app.NewCheckpointManager(store.Checkpoints, logger)
	council := app.NewCouncilService(analyzer, store.Council, store.Escalations, logger)
	loop := app.NewTaskLoop(store, executor, validator, workspace, council, checkpoints, reg, app.LoopConfig{
		MaxIterations:    cfg.Loop.MaxIterations,
		CouncilThreshold: cfg.Loop.CouncilThreshold,
	}, logger)
	merger := app.NewMergeService(store, workspace, checkpoints, logger)

	planService = app.NewPlanService(store.Plans, cfg.Policy(), reg, logger)
	runService = app.NewRunService(store, loop, merger, checkpoints, workspace, marker, monitor, app.RunConfig{
		Tracks:           cfg.Scheduler.Tracks,
		TaskBudget:       cfg.Scheduler.TaskBudget,
		BreakerThreshold: cfg.Breaker.Threshold,
		WorkingDir:       repoPath,
		MonitorCommand: func(trackID string) string {
			return tmux.TailCommand(logPath, trackID)
		},
	}, logger)
	mergeService = merger
	statusService = app.NewStatusService(store, marker)
	resetService = app.NewResetService(store.Sessions, marker, checkpoints, logger)
}

// fixedCommand returns the command of a fixed registry entry, or "" when it
// is not configured.
func fixedCommand(reg *registry.Registry, name string) (string, error) {
	if _, ok := reg.Lookup(name); !ok {
		return "", nil
	}
	cmd, err := reg.Fixed(name)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s command: %w", name, err)
	}
	return cmd, nil
}

// Close releases the database and the log file.
func Close() error {
	var firstErr error
	if err := db.Close(); err != nil {
		firstErr = err
	}
	if logger != nil {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PlanAdapter returns a new PlanAdapter writing to stdout.
// Each call creates a new adapter (adapters are stateless translators).
func PlanAdapter() *cliadapter.PlanAdapter {
	return PlanAdapterWithOutput(os.Stdout)
}

// PlanAdapterWithOutput returns a new PlanAdapter writing to the given output.
func PlanAdapterWithOutput(out io.Writer) *cliadapter.PlanAdapter {
	once.Do(initServices)
	return cliadapter.NewPlanAdapter(planService, out)
}

// RunAdapter returns a new RunAdapter writing to stdout.
func RunAdapter() *cliadapter.RunAdapter {
	return RunAdapterWithOutput(os.Stdout)
}

// RunAdapterWithOutput returns a new RunAdapter writing to the given output.
func RunAdapterWithOutput(out io.Writer) *cliadapter.RunAdapter {
	once.Do(initServices)
	return cliadapter.NewRunAdapter(runService, mergeService, resetService, out)
}

// StatusAdapter returns a new StatusAdapter writing to stdout.
func StatusAdapter() *cliadapter.StatusAdapter {
	return StatusAdapterWithOutput(os.Stdout)
}

// StatusAdapterWithOutput returns a new StatusAdapter writing to the given output.
func StatusAdapterWithOutput(out io.Writer) *cliadapter.StatusAdapter {
	once.Do(initServices)
	return cliadapter.NewStatusAdapter(statusService, out)
}
