package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/example/harness/internal/core/detection"
	"github.com/example/harness/internal/core/hook"
	"github.com/example/harness/internal/core/redirect"
	coreworker "github.com/example/harness/internal/core/worker"
	"github.com/example/harness/internal/logging"
	"github.com/example/harness/internal/ports/primary"
	"github.com/example/harness/internal/ports/secondary"
)

// ErrPaused is returned by Run when a redirect paused the harness, and by
// Run on start when the last checkpoint is paused and Resume is not set.
var ErrPaused = errors.New("harness paused")

// CoordinatorConfig configures the driving loop.
type CoordinatorConfig struct {
	HarnessID      string
	Claim          primary.ClaimOptions
	PrimingContext string

	PollSchedule     string
	StaleSchedule    string
	RedirectSchedule string

	// Resume clears a paused checkpoint on start.
	Resume bool
	// Once runs a single tick, waits for it and returns.
	Once bool
}

// DefaultCoordinatorConfig returns the default schedules.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		HarnessID:        "main",
		PollSchedule:     "@every 15s",
		StaleSchedule:    "@every 1m",
		RedirectSchedule: "@every 2m",
	}
}

// CoordinatorStatus is a point-in-time view of the loop.
type CoordinatorStatus struct {
	HarnessID         string
	Paused            bool
	PauseReason       string
	SessionsCompleted int
	InFlight          int
	Pool              primary.PoolMetrics
}

// Coordinator drives a WorkerPool against a HookQueue.
type Coordinator struct {
	cfg         CoordinatorConfig
	queue       primary.HookQueue
	pool        *WorkerPool
	redirects   primary.RedirectService
	checkpoints secondary.CheckpointStore
	lock        secondary.RunLock
	logger      *slog.Logger
	now         func() time.Time

	tickMu sync.Mutex
	runs   errgroup.Group

	mu                sync.Mutex
	paused            bool
	pauseReason       string
	snapshot          *redirect.Snapshot
	notes             string
	sessionsCompleted int
	inFlight          int
	pausedCh          chan struct{}
	// issues closed by CompleteWork that no snapshot has recorded as closed yet
	completed map[string]bool
}

// NewCoordinator creates a coordinator. checkpoints and lock may be nil.
func NewCoordinator(
	cfg CoordinatorConfig,
	queue primary.HookQueue,
	pool *WorkerPool,
	redirects primary.RedirectService,
	checkpoints secondary.CheckpointStore,
	lock secondary.RunLock,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		cfg:         cfg,
		queue:       queue,
		pool:        pool,
		redirects:   redirects,
		checkpoints: checkpoints,
		lock:        lock,
		logger:      logging.OrDefault(logger).With("harness", cfg.HarnessID),
		now:         time.Now,
		pausedCh:    make(chan struct{}),
		completed:   make(map[string]bool),
	}
}

// SetClock replaces the time source (tests).
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// Status returns the current loop state.
func (c *Coordinator) Status() CoordinatorStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CoordinatorStatus{
		HarnessID:         c.cfg.HarnessID,
		Paused:            c.paused,
		PauseReason:       c.pauseReason,
		SessionsCompleted: c.sessionsCompleted,
		InFlight:          c.inFlight,
		Pool:              c.pool.GetMetrics(),
	}
}

// Run drives the loop until ctx is done or a redirect pauses the harness,
// then waits for in-flight runs to report.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.lock != nil {
		locked, err := c.lock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to acquire run lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("another coordinator for harness %s holds %s", c.cfg.HarnessID, c.lock.Path())
		}
		defer func() { _ = c.lock.Unlock() }()
	}

	if err := c.restore(ctx); err != nil {
		return err
	}

	c.logger.Info("coordinator started", "agent", c.queue.AgentID(), "workers", len(c.pool.GetAllWorkers()))

	c.CheckRedirects(ctx)
	c.SweepStale(ctx)
	c.Tick(ctx)

	if c.cfg.Once {
		c.Wait()
		return c.finish(ctx)
	}

	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	jobs := []struct {
		name     string
		schedule string
		fn       func()
	}{
		{"poll", c.cfg.PollSchedule, func() { c.Tick(ctx) }},
		{"stale sweep", c.cfg.StaleSchedule, func() { c.SweepStale(ctx) }},
		{"redirect check", c.cfg.RedirectSchedule, func() { c.CheckRedirects(ctx) }},
	}
	for _, job := range jobs {
		if job.schedule == "" {
			continue
		}
		if _, err := sched.AddFunc(job.schedule, job.fn); err != nil {
			c.Wait()
			return fmt.Errorf("invalid %s schedule %q: %w", job.name, job.schedule, err)
		}
		c.logger.Debug("job registered", "job", job.name, "schedule", job.schedule)
	}

	sched.Start()
	select {
	case <-ctx.Done():
	case <-c.pausedCh:
	}
	<-sched.Stop().Done()

	c.logger.Info("coordinator stopping, waiting for in-flight work", "in_flight", c.Status().InFlight)
	c.Wait()
	return c.finish(ctx)
}

// restore loads the last checkpoint so snapshots carry across restarts.
func (c *Coordinator) restore(ctx context.Context) error {
	if c.checkpoints == nil {
		return nil
	}
	cp, err := c.checkpoints.Load(ctx, c.cfg.HarnessID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp == nil {
		return nil
	}
	if cp.Paused && !c.cfg.Resume {
		return fmt.Errorf("%w: %s (run with --resume to continue)", ErrPaused, cp.PauseReason)
	}

	c.mu.Lock()
	c.snapshot = cp.Snapshot
	c.notes = cp.Notes
	c.sessionsCompleted = cp.SessionsCompleted
	c.mu.Unlock()

	c.logger.Info("resumed from checkpoint", "saved_at", cp.SavedAt, "sessions_completed", cp.SessionsCompleted)
	return nil
}

func (c *Coordinator) finish(ctx context.Context) error {
	c.saveCheckpoint(context.WithoutCancel(ctx))
	st := c.Status()
	if st.Paused {
		c.logger.Warn("coordinator paused", "reason", st.PauseReason, "sessions_completed", st.SessionsCompleted)
		return fmt.Errorf("%w: %s", ErrPaused, st.PauseReason)
	}
	c.logger.Info("coordinator stopped", "sessions_completed", st.SessionsCompleted)
	return nil
}

// Wait blocks until every launched run has reported.
func (c *Coordinator) Wait() {
	_ = c.runs.Wait()
}

// Tick claims work for every idle worker and launches the runs.
// It returns how many runs were started.
func (c *Coordinator) Tick(ctx context.Context) int {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	started := 0
	for {
		if ctx.Err() != nil || c.isPaused() {
			return started
		}
		w := c.pool.GetAvailableWorker()
		if w == nil {
			return started
		}

		claim, err := c.queue.ClaimWork(ctx, c.cfg.Claim)
		if err != nil {
			c.logger.Error("claim failed", "error", err)
			return started
		}
		if !claim.Success {
			c.logger.Debug("nothing claimed", "reason", claim.Reason)
			return started
		}

		if !w.ClaimWork(claim.Issue) {
			c.logger.Warn("worker refused claimed issue", "worker", w.ID(), "issue", claim.Issue.ID)
			if err := c.queue.ReturnWork(context.WithoutCancel(ctx), claim.Issue.ID); err != nil {
				c.logger.Error("failed to release refused issue", "issue", claim.Issue.ID, "error", err)
			}
			return started
		}

		c.mu.Lock()
		c.inFlight++
		c.mu.Unlock()

		issue := claim.Issue
		c.runs.Go(func() error {
			c.runOne(ctx, w, issue)
			return nil
		})
		started++
	}
}

// runOne executes one claimed issue and reports the outcome to the queue.
func (c *Coordinator) runOne(ctx context.Context, w *Worker, issue *primary.Issue) {
	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}()

	log := c.logger.With("worker", w.ID(), "issue", issue.ID)
	log.Debug("run started", "title", issue.Title)

	stop := c.queue.StartHeartbeat(ctx, issue.ID)
	result, err := w.Execute(ctx, c.cfg.PrimingContext)
	stop()

	// Report even when shutting down so the issue does not wait for the stale sweep.
	rctx := context.WithoutCancel(ctx)

	if err != nil && ctx.Err() != nil {
		if rerr := c.queue.ReturnWork(rctx, issue.ID); rerr != nil {
			log.Error("failed to return interrupted issue", "error", rerr)
		} else {
			log.Info("returned interrupted issue", "error", err)
		}
		if w.Status() != coreworker.StatusIdle {
			w.Reset()
		}
		return
	}

	report := detection.RunReport{IssueID: issue.ID, InfraError: err}
	if result != nil {
		report.Outcome = result.Outcome
		report.Summary = result.Summary
		report.Error = result.Error
		c.mu.Lock()
		c.sessionsCompleted++
		c.mu.Unlock()
	}
	report.WorkerBlocked = w.Status() == coreworker.StatusBlocked
	action := detection.SelectAction(report)

	switch action.Type {
	case detection.ActionComplete:
		if err := c.queue.CompleteWork(rctx, issue.ID); err != nil {
			log.Error("failed to complete issue", "error", err)
		} else {
			c.mu.Lock()
			c.completed[issue.ID] = true
			c.mu.Unlock()
			attrs := []any{"outcome", report.Outcome}
			if result.GitCommit != "" {
				attrs = append(attrs, "commit", result.GitCommit)
			}
			log.Info("completed", attrs...)
		}
	case detection.ActionRelease:
		rel, err := c.queue.ReleaseWork(rctx, issue.ID, action.Reason)
		if err != nil {
			log.Error("failed to release issue", "reason", action.Reason, "error", err)
		} else if rel.NewState == primary.QueueStateFailed {
			log.Warn("issue failed permanently", "reason", action.Reason, "retries", rel.RetryCount)
		} else {
			log.Info("released", "reason", action.Reason, "retries", rel.RetryCount)
		}
	}

	if action.ResetWorker {
		log.Warn("resetting worker", "status", w.Status(), "reason", action.Reason)
		w.Reset()
	}
}

// SweepStale returns abandoned claims to ready.
func (c *Coordinator) SweepStale(ctx context.Context) {
	released, err := c.queue.ReleaseStaleClaims(ctx)
	if err != nil {
		c.logger.Error("stale sweep failed", "error", err)
		return
	}
	if len(released) > 0 {
		c.logger.Info("released stale claims", "issues", released)
	}
}

// CheckRedirects compares the backlog with the last snapshot. A pause
// request or a new urgent issue pauses claiming; other redirects are
// logged and recorded in the checkpoint notes.
func (c *Coordinator) CheckRedirects(ctx context.Context) {
	c.mu.Lock()
	old := c.snapshot
	c.mu.Unlock()

	if old == nil {
		snap, err := c.redirects.TakeSnapshot(ctx)
		if err != nil {
			c.logger.Error("failed to take snapshot", "error", err)
			return
		}
		c.mu.Lock()
		c.snapshot = snap
		c.pruneCompleted(snap)
		c.mu.Unlock()
		c.saveCheckpoint(ctx)
		return
	}

	check, err := c.redirects.CheckForRedirects(ctx, old, c.cfg.HarnessID)
	if err != nil {
		c.logger.Error("redirect check failed", "error", err)
		return
	}

	c.mu.Lock()
	redirects := make([]redirect.Redirect, 0, len(check.Redirects))
	for _, r := range check.Redirects {
		if r.Type == redirect.TypeIssueClosed && c.completed[r.IssueID] {
			continue
		}
		redirects = append(redirects, r)
	}
	c.snapshot = check.NewSnapshot
	c.pruneCompleted(check.NewSnapshot)
	if notes := c.redirects.FormatRedirectNotes(redirects); notes != "" {
		c.notes = notes
	}
	c.mu.Unlock()

	for _, r := range redirects {
		c.redirects.LogRedirect(ctx, r)
	}

	switch {
	case check.ShouldPause:
		c.pause(check.PauseReason)
	case c.redirects.RequiresImmediateAction(redirects):
		c.pause(immediateReason(redirects))
	}
	c.saveCheckpoint(ctx)
}

// pruneCompleted forgets own completions the snapshot already records as
// closed or no longer lists. Callers hold c.mu.
func (c *Coordinator) pruneCompleted(snap *redirect.Snapshot) {
	for id := range c.completed {
		st, ok := snap.Issues[id]
		if !ok || st.Status == hook.StatusClosed {
			delete(c.completed, id)
		}
	}
}

func immediateReason(redirects []redirect.Redirect) string {
	for _, r := range redirects {
		if redirect.RequiresImmediateAction([]redirect.Redirect{r}) {
			return redirect.Describe(r)
		}
	}
	return "redirect requires attention"
}

func (c *Coordinator) pause(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.paused = true
	c.pauseReason = reason
	close(c.pausedCh)
	c.logger.Warn("pausing: no new work will be claimed", "reason", reason)
}

func (c *Coordinator) isPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Coordinator) saveCheckpoint(ctx context.Context) {
	if c.checkpoints == nil {
		return
	}
	c.mu.Lock()
	cp := &secondary.Checkpoint{
		HarnessID:         c.cfg.HarnessID,
		SavedAt:           c.now(),
		Snapshot:          c.snapshot,
		Notes:             c.notes,
		Paused:            c.paused,
		PauseReason:       c.pauseReason,
		SessionsCompleted: c.sessionsCompleted,
	}
	c.mu.Unlock()

	if err := c.checkpoints.Save(ctx, cp); err != nil {
		c.logger.Error("failed to save checkpoint", "error", err)
	}
}
