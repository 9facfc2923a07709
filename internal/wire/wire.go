// Package wire provides dependency injection for the harness.
// It creates singleton services with lazy initialization.
package wire

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"sync"

	"github.com/example/harness/internal/adapters/beads"
	cliadapter "github.com/example/harness/internal/adapters/cli"
	"github.com/example/harness/internal/adapters/filesystem"
	"github.com/example/harness/internal/adapters/git"
	"github.com/example/harness/internal/adapters/process"
	"github.com/example/harness/internal/adapters/sqlite"
	tmuxadapter "github.com/example/harness/internal/adapters/tmux"
	"github.com/example/harness/internal/agent"
	"github.com/example/harness/internal/app"
	"github.com/example/harness/internal/config"
	"github.com/example/harness/internal/db"
	"github.com/example/harness/internal/logging"
	"github.com/example/harness/internal/ports/primary"
	"github.com/example/harness/internal/ports/secondary"
)

var (
	workDir = "."
	logger  *slog.Logger

	cfg             *config.Config
	store           secondary.IssueStore
	hookQueue       *app.HookQueueServiceImpl
	issueService    primary.IssueService
	convoyService   primary.ConvoyService
	redirectService primary.RedirectService
	checkpoints     *filesystem.CheckpointStore
	once            sync.Once
)

// Configure sets the directory holding .harness/ and the service logger.
// It has no effect once any service has been built.
func Configure(dir string, l *slog.Logger) {
	workDir = dir
	logger = l
}

// Config returns the loaded configuration.
func Config() *config.Config {
	once.Do(initServices)
	return cfg
}

// HookQueue returns the singleton HookQueue instance.
func HookQueue() primary.HookQueue {
	once.Do(initServices)
	return hookQueue
}

// IssueService returns the singleton IssueService instance.
func IssueService() primary.IssueService {
	once.Do(initServices)
	return issueService
}

// ConvoyService returns the singleton ConvoyService instance.
func ConvoyService() primary.ConvoyService {
	once.Do(initServices)
	return convoyService
}

// RedirectService returns the singleton RedirectService instance.
func RedirectService() primary.RedirectService {
	once.Do(initServices)
	return redirectService
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	var err error
	cfg, err = config.LoadOrDefault(workDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger = logging.OrDefault(logger)

	// Issue store (secondary port) - sqlite by default, bd when configured
	var events secondary.IssueEventReader
	switch cfg.Store.Backend {
	case config.BackendBeads:
		dir := cfg.Store.BeadsDir
		if dir == "" {
			dir = workDir
		}
		store = beads.NewStore(process.NewRunner(), cfg.Store.BeadsBinary, dir)
	default:
		path, err := db.ResolvePath(cfg.Store.DBPath)
		if err != nil {
			log.Fatalf("failed to resolve database path: %v", err)
		}
		database, err := db.Open(path)
		if err != nil {
			log.Fatalf("failed to initialize database: %v", err)
		}
		repo := sqlite.NewIssueRepository(database, cfg.Store.IDPrefix)
		store = repo
		events = repo
	}

	stateDir, err := cfg.ResolveStateDir()
	if err != nil {
		log.Fatalf("failed to resolve state dir: %v", err)
	}
	checkpoints, err = filesystem.NewCheckpointStore(stateDir)
	if err != nil {
		log.Fatalf("failed to initialize checkpoint store: %v", err)
	}

	// Create services (primary ports implementation)
	hookQueue = app.NewHookQueueService(store, agent.NewAgentID(cfg.HarnessID), app.HookQueueConfig{
		ClaimTimeout:      cfg.Queue.ClaimTimeout.Std(),
		HeartbeatInterval: cfg.Queue.HeartbeatInterval.Std(),
		MaxRetries:        cfg.Queue.MaxRetries,
	}, logger)
	issueService = app.NewIssueService(store, events)
	convoyService = app.NewConvoyService(store, cfg.Convoy.RepoAliases, logger)
	redirectService = app.NewRedirectService(store, logger)
}

// WorkerNames returns the ids of a pool of n workers.
func WorkerNames(n int) []string {
	names := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		names = append(names, fmt.Sprintf("worker-%d", i))
	}
	return names
}

// RunOptions overrides configuration for one `harness run`.
type RunOptions struct {
	Workers        int // zero keeps the configured count
	Once           bool
	Resume         bool
	PrimingContext string
}

// Coordinator builds a coordinator with a fresh worker pool.
func Coordinator(opts RunOptions) (*app.Coordinator, error) {
	once.Do(initServices)

	executor, err := newExecutor()
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if opts.Workers > 0 {
		workers = opts.Workers
	}
	pool := app.NewWorkerPool()
	for _, id := range WorkerNames(workers) {
		if err := pool.AddWorker(app.NewWorker(id, executor, logger)); err != nil {
			return nil, err
		}
	}

	lock, err := filesystem.NewRunLock(checkpoints.StateDir(), cfg.HarnessID)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare run lock: %w", err)
	}

	return app.NewCoordinator(app.CoordinatorConfig{
		HarnessID: cfg.HarnessID,
		Claim: primary.ClaimOptions{
			Labels:      cfg.Queue.Labels,
			MaxPriority: cfg.Queue.MaxPriority,
		},
		PrimingContext:   opts.PrimingContext,
		PollSchedule:     cfg.Schedule.Poll,
		StaleSchedule:    cfg.Schedule.StaleSweep,
		RedirectSchedule: cfg.Schedule.RedirectCheck,
		Resume:           opts.Resume,
		Once:             opts.Once,
	}, hookQueue, pool, redirectService, checkpoints, lock, logger), nil
}

// newExecutor builds the configured executor. Lightweight mode falls back to
// heavyweight when the skill cannot be loaded.
func newExecutor() (primary.Executor, error) {
	prompts, err := app.NewPromptBuilder()
	if err != nil {
		return nil, err
	}
	logDir, err := cfg.ResolveLogDir()
	if err != nil {
		return nil, err
	}
	dir := cfg.Executor.WorkDir
	if dir == "" {
		dir = workDir
	}

	execCfg := app.ExecutorConfig{
		Command: cfg.Executor.Command,
		Args:    cfg.Executor.Args,
		Model:   cfg.Executor.Model,
		WorkDir: dir,
		LogDir:  logDir,
		Timeout: cfg.Executor.Timeout.Std(),
	}
	runner := process.NewRunner()
	vcs := git.NewInspector()

	heavy := app.NewHeavyweightExecutor(execCfg, runner, vcs, prompts, logger)
	if cfg.Executor.Mode != config.ModeLightweight {
		return heavy, nil
	}
	light := app.NewLightweightExecutor(execCfg, cfg.Executor.SkillPath, runner, vcs, prompts, logger)
	return app.NewFallbackExecutor(light, heavy, logger), nil
}

// TMuxAdapter returns a tmux adapter for the observer session.
func TMuxAdapter() (secondary.TMuxAdapter, error) {
	return tmuxadapter.NewAdapter()
}

// QueueAdapter returns a new QueueAdapter writing to stdout.
// Each call creates a new adapter (adapters are stateless translators).
func QueueAdapter() *cliadapter.QueueAdapter {
	return QueueAdapterWithOutput(os.Stdout)
}

// QueueAdapterWithOutput returns a new QueueAdapter writing to the given output.
func QueueAdapterWithOutput(out io.Writer) *cliadapter.QueueAdapter {
	once.Do(initServices)
	return cliadapter.NewQueueAdapter(hookQueue, out)
}

// IssueAdapter returns a new IssueAdapter writing to stdout.
func IssueAdapter() *cliadapter.IssueAdapter {
	return IssueAdapterWithOutput(os.Stdout)
}

// IssueAdapterWithOutput returns a new IssueAdapter writing to the given output.
func IssueAdapterWithOutput(out io.Writer) *cliadapter.IssueAdapter {
	once.Do(initServices)
	return cliadapter.NewIssueAdapter(issueService, out)
}

// ConvoyAdapter returns a new ConvoyAdapter writing to stdout.
func ConvoyAdapter() *cliadapter.ConvoyAdapter {
	return ConvoyAdapterWithOutput(os.Stdout)
}

// ConvoyAdapterWithOutput returns a new ConvoyAdapter writing to the given output.
func ConvoyAdapterWithOutput(out io.Writer) *cliadapter.ConvoyAdapter {
	once.Do(initServices)
	return cliadapter.NewConvoyAdapter(convoyService, out)
}

// RedirectAdapter returns a new RedirectAdapter writing to stdout.
func RedirectAdapter() *cliadapter.RedirectAdapter {
	return RedirectAdapterWithOutput(os.Stdout)
}

// RedirectAdapterWithOutput returns a new RedirectAdapter writing to the given output.
func RedirectAdapterWithOutput(out io.Writer) *cliadapter.RedirectAdapter {
	once.Do(initServices)
	return cliadapter.NewRedirectAdapter(redirectService, checkpoints, out)
}
