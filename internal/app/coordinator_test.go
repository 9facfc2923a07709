package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/harness/internal/core/hook"
	"github.com/example/harness/internal/core/redirect"
	coreworker "github.com/example/harness/internal/core/worker"
	"github.com/example/harness/internal/logging"
	"github.com/example/harness/internal/ports/primary"
	"github.com/example/harness/internal/ports/secondary"
)

// fakeRunLock is an in-memory RunLock.
type fakeRunLock struct {
	held     bool
	unlocked bool
	err      error
}

func (l *fakeRunLock) TryLock() (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	return !l.held, nil
}

func (l *fakeRunLock) Unlock() error {
	l.unlocked = true
	return nil
}

func (l *fakeRunLock) Path() string { return "/state/main.lock" }

type coordinatorFixture struct {
	clock       *fakeClock
	store       *atomicIssueStore
	queue       *HookQueueServiceImpl
	pool        *WorkerPool
	exec        *mockExecutor
	checkpoints *mockCheckpointStore
	lock        *fakeRunLock
	coord       *Coordinator
}

func newCoordinatorFixture(t *testing.T, workers int, cfg CoordinatorConfig) *coordinatorFixture {
	t.Helper()
	f := &coordinatorFixture{
		clock:       newFakeClock(),
		exec:        &mockExecutor{},
		pool:        NewWorkerPool(),
		checkpoints: newMockCheckpointStore(),
		lock:        &fakeRunLock{},
	}
	f.store = seededStore(f.clock)
	f.queue = newTestHookQueue(f.store, "harness@test:1/abcd", f.clock)
	for i := 1; i <= workers; i++ {
		w := newTestWorker("worker-"+string(rune('0'+i)), f.exec, f.clock)
		if err := f.pool.AddWorker(w); err != nil {
			t.Fatal(err)
		}
	}
	redirects := newTestRedirectService(f.store, f.clock)
	if cfg.HarnessID == "" {
		cfg.HarnessID = "main"
	}
	f.coord = NewCoordinator(cfg, f.queue, f.pool, redirects, f.checkpoints, f.lock, logging.Discard())
	f.coord.SetClock(f.clock.Now)
	return f
}

// ============================================================================
// Tick Tests
// ============================================================================

func TestCoordinator_TickCompletesWork(t *testing.T) {
	f := newCoordinatorFixture(t, 2, CoordinatorConfig{})
	a := f.store.add("a", 0, hook.LabelReady)
	b := f.store.add("b", 1, hook.LabelReady)
	c := f.store.add("c", 2, hook.LabelReady)
	ctx := context.Background()

	// hold the runs so a finished worker cannot be refilled within the same tick
	f.exec.block = make(chan struct{})
	if started := f.coord.Tick(ctx); started != 2 {
		t.Fatalf("Tick started %d runs, want 2", started)
	}
	close(f.exec.block)
	f.coord.Wait()

	for _, id := range []string{a, b} {
		got := f.store.snapshot(id)
		if got.Status != hook.StatusClosed || hook.ResolveState(got.Labels) != hook.StateNone {
			t.Errorf("%s should be completed, got status %s labels %v", id, got.Status, got.Labels)
		}
	}
	if got := f.store.snapshot(c); hook.ResolveState(got.Labels) != hook.StateReady {
		t.Errorf("%s should still be ready, got %v", c, got.Labels)
	}

	if started := f.coord.Tick(ctx); started != 1 {
		t.Fatalf("second Tick started %d runs, want 1", started)
	}
	f.coord.Wait()

	st := f.coord.Status()
	if st.SessionsCompleted != 3 || st.InFlight != 0 || st.Pool.Idle != 2 {
		t.Errorf("unexpected status: %+v", st)
	}
	if f.coord.Tick(ctx) != 0 {
		t.Error("empty queue should start nothing")
	}
}

func TestCoordinator_TickReportsOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		result      *primary.ExecutionResult
		execErr     error
		wantState   hook.State
		wantStatus  string
		wantRetries int
		wantReason  string
	}{
		{
			name:       "code complete closes",
			result:     &primary.ExecutionResult{Outcome: primary.OutcomeCodeComplete},
			wantState:  hook.StateNone,
			wantStatus: hook.StatusClosed,
		},
		{
			name:        "failure releases",
			result:      &primary.ExecutionResult{Outcome: primary.OutcomeFailure, Error: "tests failed"},
			wantState:   hook.StateReady,
			wantStatus:  hook.StatusOpen,
			wantRetries: 1,
		},
		{
			name:        "partial releases",
			result:      &primary.ExecutionResult{Outcome: primary.OutcomePartial, Summary: "half"},
			wantState:   hook.StateReady,
			wantStatus:  hook.StatusOpen,
			wantRetries: 1,
		},
		{
			name:        "executor error releases and resets",
			execErr:     errors.New("claude not found"),
			wantState:   hook.StateReady,
			wantStatus:  hook.StatusOpen,
			wantRetries: 1,
		},
		{
			name:        "blocked worker releases and resets",
			result:      &primary.ExecutionResult{Outcome: primary.OutcomePartial, Blocked: true, Summary: "need creds"},
			wantState:   hook.StateReady,
			wantStatus:  hook.StatusOpen,
			wantRetries: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCoordinatorFixture(t, 1, CoordinatorConfig{})
			f.exec.result = tt.result
			f.exec.err = tt.execErr
			f.exec.block = make(chan struct{})
			id := f.store.add("work", 1, hook.LabelReady)

			if f.coord.Tick(context.Background()) != 1 {
				t.Fatal("expected one run")
			}
			close(f.exec.block)
			f.coord.Wait()

			got := f.store.snapshot(id)
			if state := hook.ResolveState(got.Labels); state != tt.wantState {
				t.Errorf("state = %q, want %q", state, tt.wantState)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", got.Status, tt.wantStatus)
			}
			if n := hook.RetryCount(got.Description); n != tt.wantRetries {
				t.Errorf("retries = %d, want %d", n, tt.wantRetries)
			}
			if _, held := hook.ParseClaim(got.Description); held {
				t.Error("claim blob should be cleared after reporting")
			}
			if w := f.pool.GetAllWorkers()[0]; w.Status() != coreworker.StatusIdle {
				t.Errorf("worker status = %q, want idle", w.Status())
			}
		})
	}
}

func TestCoordinator_TickPassesClaimFilterAndPriming(t *testing.T) {
	f := newCoordinatorFixture(t, 1, CoordinatorConfig{
		Claim:          primary.ClaimOptions{Labels: []string{"team:web"}},
		PrimingContext: "Use pnpm.",
	})
	f.store.add("other team", 0, hook.LabelReady, "team:api")
	web := f.store.add("web", 3, hook.LabelReady, "team:web")

	f.coord.Tick(context.Background())
	f.coord.Wait()

	if f.exec.calls() != 1 {
		t.Fatalf("expected 1 execution, got %d", f.exec.calls())
	}
	req := f.exec.requests[0]
	if req.Issue.ID != web || req.PrimingContext != "Use pnpm." || req.WorkerID != "worker-1" {
		t.Errorf("unexpected request: %+v", req)
	}
}

// ============================================================================
// Redirect / Pause Tests
// ============================================================================

func TestCoordinator_CheckRedirectsPausesOnNewUrgent(t *testing.T) {
	f := newCoordinatorFixture(t, 1, CoordinatorConfig{})
	ctx := context.Background()
	f.store.add("routine", 3)

	f.coord.CheckRedirects(ctx)
	cp := f.checkpoints.get("main")
	if cp == nil || cp.Snapshot == nil || len(cp.Snapshot.Issues) != 1 {
		t.Fatalf("first check should save a snapshot, got %+v", cp)
	}

	f.store.add("Prod down", 0, hook.LabelReady)
	f.coord.CheckRedirects(ctx)

	st := f.coord.Status()
	if !st.Paused || !strings.Contains(st.PauseReason, "Prod down") {
		t.Fatalf("expected pause for new urgent issue, got %+v", st)
	}
	if f.coord.Tick(ctx) != 0 {
		t.Error("paused coordinator must not claim")
	}
	cp = f.checkpoints.get("main")
	if !cp.Paused || !strings.Contains(cp.Notes, "New urgent issue") {
		t.Errorf("checkpoint should record the pause, got %+v", cp)
	}
}

func TestCoordinator_CheckRedirectsSoftRedirectsContinue(t *testing.T) {
	f := newCoordinatorFixture(t, 1, CoordinatorConfig{})
	ctx := context.Background()
	id := f.store.add("slow page", 3)

	f.coord.CheckRedirects(ctx)
	f.store.set(id, func(r *secondary.IssueRecord) { r.Priority = 1 })
	f.coord.CheckRedirects(ctx)

	if f.coord.Status().Paused {
		t.Error("priority change alone should not pause")
	}
	if cp := f.checkpoints.get("main"); !strings.Contains(cp.Notes, "Priority escalated") {
		t.Errorf("notes should record the escalation, got %q", cp.Notes)
	}
}

func TestCoordinator_CheckRedirectsIgnoresOwnCompletions(t *testing.T) {
	f := newCoordinatorFixture(t, 1, CoordinatorConfig{})
	ctx := context.Background()
	own := f.store.add("routine task", 3, hook.LabelReady)
	other := f.store.add("docs cleanup", 3)

	f.coord.CheckRedirects(ctx)
	if f.coord.Tick(ctx) != 1 {
		t.Fatal("expected one run")
	}
	f.coord.Wait()
	if got := f.store.snapshot(own); got.Status != hook.StatusClosed {
		t.Fatalf("%s should be completed, got %s", own, got.Status)
	}
	f.store.set(other, func(r *secondary.IssueRecord) { r.Status = hook.StatusClosed })

	f.coord.CheckRedirects(ctx)
	cp := f.checkpoints.get("main")
	if strings.Contains(cp.Notes, own) {
		t.Errorf("own completion reported as a redirect: %q", cp.Notes)
	}
	if !strings.Contains(cp.Notes, "Closed externally") || !strings.Contains(cp.Notes, other) {
		t.Errorf("external close should still be reported, got %q", cp.Notes)
	}

	// once seen closed, a later reopen and external close is reported again
	f.store.set(own, func(r *secondary.IssueRecord) { r.Status = hook.StatusOpen })
	f.coord.CheckRedirects(ctx)
	f.store.set(own, func(r *secondary.IssueRecord) { r.Status = hook.StatusClosed })
	f.coord.CheckRedirects(ctx)
	if cp := f.checkpoints.get("main"); !strings.Contains(cp.Notes, own) {
		t.Errorf("external close of %s after reopen should be reported, got %q", own, cp.Notes)
	}
}

func TestCoordinator_CheckRedirectsStoreFailure(t *testing.T) {
	f := newCoordinatorFixture(t, 1, CoordinatorConfig{})
	f.store.listErr = errors.New("db locked")

	f.coord.CheckRedirects(context.Background())
	if f.checkpoints.saves != 0 || f.coord.Status().Paused {
		t.Error("failed scan should neither save nor pause")
	}
}

// ============================================================================
// Run Tests
// ============================================================================

func TestCoordinator_RunOnce(t *testing.T) {
	f := newCoordinatorFixture(t, 2, CoordinatorConfig{Once: true})
	id := f.store.add("a", 1, hook.LabelReady)
	f.checkpoints.saved["main"] = &secondary.Checkpoint{HarnessID: "main", SessionsCompleted: 5}

	if err := f.coord.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := f.store.snapshot(id); got.Status != hook.StatusClosed {
		t.Errorf("issue should be completed, got %s", got.Status)
	}
	cp := f.checkpoints.get("main")
	if cp.SessionsCompleted != 6 {
		t.Errorf("SessionsCompleted = %d, want 6 (5 restored + 1)", cp.SessionsCompleted)
	}
	if cp.Snapshot == nil {
		t.Error("checkpoint should carry a snapshot")
	}
	if !f.lock.unlocked {
		t.Error("run lock should be released")
	}
}

func TestCoordinator_RunRefusesPausedCheckpoint(t *testing.T) {
	f := newCoordinatorFixture(t, 1, CoordinatorConfig{Once: true})
	f.store.add("a", 1, hook.LabelReady)
	f.checkpoints.saved["main"] = &secondary.Checkpoint{HarnessID: "main", Paused: true, PauseReason: "freeze"}

	err := f.coord.Run(context.Background())
	if !errors.Is(err, ErrPaused) || !strings.Contains(err.Error(), "freeze") {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
	if f.exec.calls() != 0 {
		t.Error("paused harness must not execute work")
	}
}

func TestCoordinator_RunResume(t *testing.T) {
	f := newCoordinatorFixture(t, 1, CoordinatorConfig{Once: true, Resume: true})
	f.store.add("a", 1, hook.LabelReady)
	f.checkpoints.saved["main"] = &secondary.Checkpoint{HarnessID: "main", Paused: true, PauseReason: "freeze"}

	if err := f.coord.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if f.exec.calls() != 1 {
		t.Errorf("expected 1 execution after resume, got %d", f.exec.calls())
	}
	if f.checkpoints.get("main").Paused {
		t.Error("resumed checkpoint should no longer be paused")
	}
}

func TestCoordinator_RunLockHeld(t *testing.T) {
	f := newCoordinatorFixture(t, 1, CoordinatorConfig{Once: true})
	f.lock.held = true

	err := f.coord.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "/state/main.lock") {
		t.Fatalf("expected lock error, got %v", err)
	}

	f.lock = &fakeRunLock{err: errors.New("permission denied")}
	f.coord.lock = f.lock
	if err := f.coord.Run(context.Background()); err == nil {
		t.Error("expected lock error to propagate")
	}
}

func TestCoordinator_RunStopsOnPauseRequest(t *testing.T) {
	f := newCoordinatorFixture(t, 1, CoordinatorConfig{
		PollSchedule:     "@every 1h",
		StaleSchedule:    "@every 1h",
		RedirectSchedule: "@every 1h",
	})
	snap := redirect.NewSnapshot(nil, f.clock.Now())
	f.checkpoints.saved["main"] = &secondary.Checkpoint{HarnessID: "main", Snapshot: snap}
	f.store.add("Release freeze", 3, redirect.PauseLabel, redirect.HarnessLabel("main"))

	done := make(chan error, 1)
	go func() { done <- f.coord.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrPaused) || !strings.Contains(err.Error(), "Release freeze") {
			t.Errorf("expected ErrPaused with reason, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after a pause request")
	}
	if cp := f.checkpoints.get("main"); !cp.Paused {
		t.Error("checkpoint should be paused")
	}
}

func TestCoordinator_RunStopsOnCancel(t *testing.T) {
	f := newCoordinatorFixture(t, 1, CoordinatorConfig{
		PollSchedule:     "@every 1h",
		StaleSchedule:    "@every 1h",
		RedirectSchedule: "@every 1h",
	})
	f.exec.block = make(chan struct{})
	id := f.store.add("long task", 1, hook.LabelReady)

	// repeated restarts must never use up the issue's retries
	for cycle := 1; cycle <= 3; cycle++ {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- f.coord.Run(ctx) }()

		deadline := time.After(5 * time.Second)
		for f.exec.calls() < cycle {
			select {
			case <-deadline:
				cancel()
				t.Fatalf("cycle %d: work was never started", cycle)
			case <-time.After(5 * time.Millisecond):
			}
		}
		cancel()

		select {
		case err := <-done:
			if err != nil {
				t.Errorf("cycle %d: Run returned %v", cycle, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("cycle %d: Run did not stop after cancel", cycle)
		}

		got := f.store.snapshot(id)
		if hook.ResolveState(got.Labels) != hook.StateReady || got.Status != hook.StatusOpen {
			t.Fatalf("cycle %d: interrupted issue should be back to ready, got %s %v", cycle, got.Status, got.Labels)
		}
		if n := hook.RetryCount(got.Description); n != 0 {
			t.Fatalf("cycle %d: retry count = %d, want 0", cycle, n)
		}
		if _, ok := hook.ParseClaim(got.Description); ok {
			t.Errorf("cycle %d: claim marker left behind", cycle)
		}
		if st := f.coord.Status(); st.Pool.Idle != 1 || st.InFlight != 0 {
			t.Errorf("cycle %d: worker should be idle after shutdown, got %+v", cycle, st)
		}
	}
}

func TestCoordinator_RunInvalidSchedule(t *testing.T) {
	f := newCoordinatorFixture(t, 1, CoordinatorConfig{PollSchedule: "every now and then"})

	if err := f.coord.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "poll") {
		t.Errorf("expected invalid schedule error, got %v", err)
	}
}
