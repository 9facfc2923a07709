package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/harness/internal/core/hook"
	"github.com/example/harness/internal/ctxutil"
	"github.com/example/harness/internal/logging"
	"github.com/example/harness/internal/ports/primary"
	"github.com/example/harness/internal/ports/secondary"
)

// ErrNoClaim is returned when this queue holds no claim on an issue.
var ErrNoClaim = errors.New("no claim held")

// noReadyWork is the ClaimResult reason when nothing can be claimed.
const noReadyWork = "no ready work"

// HookQueueConfig tunes lease timing and retries.
type HookQueueConfig struct {
	ClaimTimeout      time.Duration
	HeartbeatInterval time.Duration
	MaxRetries        int
}

// DefaultHookQueueConfig returns 10m timeout, 1m heartbeat, 2 retries.
func DefaultHookQueueConfig() HookQueueConfig {
	return HookQueueConfig{
		ClaimTimeout:      10 * time.Minute,
		HeartbeatInterval: time.Minute,
		MaxRetries:        2,
	}
}

// HookQueueServiceImpl implements the HookQueue interface over hook:* labels.
type HookQueueServiceImpl struct {
	store   secondary.IssueStore
	swapper secondary.LabelSwapper // nil when the store cannot compare-and-swap
	agentID string
	cfg     HookQueueConfig
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	claims map[string]*hook.Claim
}

// NewHookQueueService creates a new HookQueue with injected dependencies.
// Claims are atomic when store also implements secondary.LabelSwapper.
func NewHookQueueService(store secondary.IssueStore, agentID string, cfg HookQueueConfig, logger *slog.Logger) *HookQueueServiceImpl {
	swapper, _ := store.(secondary.LabelSwapper)
	return &HookQueueServiceImpl{
		store:   store,
		swapper: swapper,
		agentID: agentID,
		cfg:     cfg,
		logger:  logging.OrDefault(logger).With("agent", agentID),
		now:     time.Now,
		claims:  make(map[string]*hook.Claim),
	}
}

// SetClock replaces the time source.
func (s *HookQueueServiceImpl) SetClock(now func() time.Time) {
	s.now = now
}

// AgentID returns the unique id of this queue instance.
func (s *HookQueueServiceImpl) AgentID() string {
	return s.agentID
}

// Atomic reports whether claims go through a compare-and-swap.
func (s *HookQueueServiceImpl) Atomic() bool {
	return s.swapper != nil
}

// ClaimWork claims the most urgent ready issue for this agent.
func (s *HookQueueServiceImpl) ClaimWork(ctx context.Context, opts primary.ClaimOptions) (*primary.ClaimResult, error) {
	ctx = ctxutil.EnsureActor(ctx, s.agentID)

	records, err := s.store.List(ctx, secondary.IssueFilters{
		Labels:        append([]string{hook.LabelReady}, opts.Labels...),
		ExcludeStatus: hook.StatusClosed,
	})
	if err != nil {
		s.logger.Warn("listing ready work failed", "error", err)
		return &primary.ClaimResult{Success: false, Reason: noReadyWork}, nil
	}

	byID := make(map[string]*secondary.IssueRecord, len(records))
	candidates := make([]hook.Candidate, 0, len(records))
	for _, r := range records {
		byID[r.ID] = r
		candidates = append(candidates, hook.Candidate{ID: r.ID, Priority: r.Priority, Status: r.Status, Labels: r.Labels})
	}

	selected := hook.SelectCandidates(candidates, hook.ClaimFilter{Labels: opts.Labels, MaxPriority: opts.MaxPriority})
	if len(selected) == 0 {
		return &primary.ClaimResult{Success: false, Reason: noReadyWork}, nil
	}

	lost := 0
	for _, c := range selected {
		rec := byID[c.ID]
		won, err := s.moveState(ctx, rec, hook.StateInProgress)
		if err != nil {
			return nil, fmt.Errorf("failed to claim %s: %w", rec.ID, err)
		}
		if !won {
			lost++
			s.logger.Debug("lost claim race", "issue", rec.ID)
			continue
		}

		now := s.now()
		claim := &hook.Claim{
			IssueID:       rec.ID,
			AgentID:       s.agentID,
			ClaimedAt:     now,
			LastHeartbeat: now,
			Title:         rec.Title,
		}
		s.remember(claim)

		status := hook.StatusInProgress
		desc, err := hook.WithClaim(rec.Description, *claim)
		if err != nil {
			desc = rec.Description
		}
		if err := s.store.Update(ctx, rec.ID, secondary.IssueUpdate{Status: &status, Description: &desc}); err != nil {
			// The label already carries the lease; the blob only aids recovery.
			s.logger.Warn("failed to persist claim", "issue", rec.ID, "error", err)
		} else {
			rec.Status = status
			rec.Description = desc
		}
		rec.Labels = replaceHookLabels(rec.Labels, hook.StateInProgress)

		s.logger.Info("claimed work", "issue", rec.ID, "priority", rec.Priority)
		return &primary.ClaimResult{
			Success: true,
			Issue:   recordToIssue(rec),
			Claim:   claimToPrimary(claim),
		}, nil
	}

	return &primary.ClaimResult{
		Success: false,
		Reason:  fmt.Sprintf("all %d candidate(s) were claimed by other agents", lost),
	}, nil
}

// Heartbeat refreshes this agent's claim on an issue.
func (s *HookQueueServiceImpl) Heartbeat(ctx context.Context, issueID string) error {
	ctx = ctxutil.EnsureActor(ctx, s.agentID)

	claim := s.lookup(issueID)
	if claim == nil {
		return fmt.Errorf("issue %s: %w", issueID, ErrNoClaim)
	}

	rec, err := s.store.Get(ctx, issueID)
	if err != nil {
		return fmt.Errorf("failed to read issue for heartbeat: %w", err)
	}

	holder := ""
	if persisted, ok := hook.ParseClaim(rec.Description); ok {
		holder = persisted.AgentID
	}
	guard := hook.CanHeartbeat(hook.HeartbeatContext{
		IssueID:  issueID,
		HasClaim: true,
		State:    hook.ResolveState(rec.Labels),
		AgentID:  s.agentID,
		Holder:   holder,
	})
	if !guard.Allowed {
		s.forget(issueID)
		return guard.Error()
	}

	refreshed := *claim
	refreshed.LastHeartbeat = s.now()
	desc, err := hook.WithClaim(rec.Description, refreshed)
	if err != nil {
		return err
	}
	if err := s.store.Update(ctx, issueID, secondary.IssueUpdate{Description: &desc}); err != nil {
		return fmt.Errorf("failed to persist heartbeat: %w", err)
	}

	s.mu.Lock()
	if held, ok := s.claims[issueID]; ok {
		held.LastHeartbeat = refreshed.LastHeartbeat
	}
	s.mu.Unlock()

	s.logger.Debug("heartbeat", "issue", issueID)
	return nil
}

// StartHeartbeat refreshes the claim every heartbeat interval until stopped.
// The loop ends on its own once the claim is lost.
func (s *HookQueueServiceImpl) StartHeartbeat(ctx context.Context, issueID string) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Heartbeat(ctx, issueID); err != nil {
					if ctx.Err() != nil {
						return
					}
					s.logger.Warn("heartbeat failed", "issue", issueID, "error", err)
					if s.lookup(issueID) == nil {
						return
					}
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// ReleaseWork returns an issue to ready, or to failed once retries are exhausted.
func (s *HookQueueServiceImpl) ReleaseWork(ctx context.Context, issueID, reason string) (*primary.ReleaseResult, error) {
	ctx = ctxutil.EnsureActor(ctx, s.agentID)

	rec, err := s.store.Get(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if guard := hook.CanRelease(hook.ReleaseContext{IssueID: issueID, State: hook.ResolveState(rec.Labels), Status: rec.Status}); !guard.Allowed {
		return nil, guard.Error()
	}

	retries := hook.RetryCount(rec.Description)
	target := hook.ReleaseTarget(retries, s.cfg.MaxRetries)

	moved, err := s.moveState(ctx, rec, target)
	if err != nil {
		return nil, fmt.Errorf("failed to release %s: %w", issueID, err)
	}
	if !moved {
		return nil, fmt.Errorf("issue %s changed state during release", issueID)
	}

	desc := hook.WithRetryCount(hook.StripClaim(rec.Description), retries+1)
	if target == hook.StateFailed {
		failure := reason
		if failure == "" {
			failure = "retries exhausted"
		}
		desc = hook.WithFailureReason(desc, fmt.Sprintf("retries exhausted after %d releases: %s", retries+1, failure))
	}
	status := hook.StatusFor(target)
	if err := s.store.Update(ctx, issueID, secondary.IssueUpdate{Status: &status, Description: &desc}); err != nil {
		return nil, fmt.Errorf("failed to update released issue: %w", err)
	}
	s.forget(issueID)

	s.logger.Info("released work", "issue", issueID, "state", string(target), "retries", retries+1, "reason", reason)
	return &primary.ReleaseResult{
		IssueID:    issueID,
		NewState:   string(target),
		RetryCount: retries + 1,
	}, nil
}

// ReturnWork puts a claimed issue back to ready without counting a retry.
// Used when the run was interrupted rather than failed.
func (s *HookQueueServiceImpl) ReturnWork(ctx context.Context, issueID string) error {
	ctx = ctxutil.EnsureActor(ctx, s.agentID)

	rec, err := s.store.Get(ctx, issueID)
	if err != nil {
		return err
	}
	if guard := hook.CanRelease(hook.ReleaseContext{IssueID: issueID, State: hook.ResolveState(rec.Labels), Status: rec.Status}); !guard.Allowed {
		return guard.Error()
	}

	moved, err := s.moveState(ctx, rec, hook.StateReady)
	if err != nil {
		return fmt.Errorf("failed to return %s: %w", issueID, err)
	}
	if !moved {
		return fmt.Errorf("issue %s changed state during return", issueID)
	}

	status := hook.StatusOpen
	desc := hook.StripClaim(rec.Description)
	if err := s.store.Update(ctx, issueID, secondary.IssueUpdate{Status: &status, Description: &desc}); err != nil {
		return fmt.Errorf("failed to reopen returned issue: %w", err)
	}
	s.forget(issueID)

	s.logger.Info("returned work", "issue", issueID)
	return nil
}

// CompleteWork removes all hook labels and closes the issue. Idempotent.
func (s *HookQueueServiceImpl) CompleteWork(ctx context.Context, issueID string) error {
	ctx = ctxutil.EnsureActor(ctx, s.agentID)

	rec, err := s.store.Get(ctx, issueID)
	if err != nil {
		return err
	}
	defer s.forget(issueID)

	if rec.Status == hook.StatusClosed && hook.ResolveState(rec.Labels) == hook.StateNone {
		return nil
	}

	if _, err := s.moveState(ctx, rec, hook.StateNone); err != nil {
		return fmt.Errorf("failed to complete %s: %w", issueID, err)
	}

	status := hook.StatusClosed
	desc := hook.StripClaim(rec.Description)
	if err := s.store.Update(ctx, issueID, secondary.IssueUpdate{Status: &status, Description: &desc}); err != nil {
		return fmt.Errorf("failed to close issue: %w", err)
	}

	s.logger.Info("completed work", "issue", issueID)
	return nil
}

// MarkFailed forces an issue into hook:failed regardless of retries.
func (s *HookQueueServiceImpl) MarkFailed(ctx context.Context, issueID, reason string) error {
	ctx = ctxutil.EnsureActor(ctx, s.agentID)

	rec, err := s.store.Get(ctx, issueID)
	if err != nil {
		return err
	}
	if guard := hook.CanRelease(hook.ReleaseContext{IssueID: issueID, State: hook.ResolveState(rec.Labels), Status: rec.Status}); !guard.Allowed {
		return guard.Error()
	}

	moved, err := s.moveState(ctx, rec, hook.StateFailed)
	if err != nil {
		return fmt.Errorf("failed to mark %s failed: %w", issueID, err)
	}
	if !moved {
		return fmt.Errorf("issue %s changed state while marking it failed", issueID)
	}

	if reason == "" {
		reason = "marked failed"
	}
	status := hook.StatusBlocked
	desc := hook.WithFailureReason(hook.StripClaim(rec.Description), reason)
	if err := s.store.Update(ctx, issueID, secondary.IssueUpdate{Status: &status, Description: &desc}); err != nil {
		return fmt.Errorf("failed to update failed issue: %w", err)
	}
	s.forget(issueID)

	s.logger.Info("marked failed", "issue", issueID, "reason", reason)
	return nil
}

// ReleaseStaleClaims returns abandoned in-progress issues to ready without
// counting a retry.
func (s *HookQueueServiceImpl) ReleaseStaleClaims(ctx context.Context) ([]string, error) {
	ctx = ctxutil.EnsureActor(ctx, s.agentID)

	records, err := s.store.List(ctx, secondary.IssueFilters{Labels: []string{hook.LabelInProgress}})
	if err != nil {
		return nil, fmt.Errorf("failed to list in-progress issues: %w", err)
	}

	now := s.now()
	var released []string
	for _, rec := range records {
		if !hook.IsStale(s.lastHeartbeat(rec), now, s.cfg.ClaimTimeout) {
			continue
		}

		moved, err := s.moveState(ctx, rec, hook.StateReady)
		if err != nil {
			s.logger.Warn("failed to release stale claim", "issue", rec.ID, "error", err)
			continue
		}
		if !moved {
			continue
		}

		status := hook.StatusOpen
		desc := hook.StripClaim(rec.Description)
		if err := s.store.Update(ctx, rec.ID, secondary.IssueUpdate{Status: &status, Description: &desc}); err != nil {
			s.logger.Warn("failed to reopen stale issue", "issue", rec.ID, "error", err)
		}
		s.forget(rec.ID)

		s.logger.Info("released stale claim", "issue", rec.ID)
		released = append(released, rec.ID)
	}
	return released, nil
}

// RequeueFailed moves a failed issue back to ready.
func (s *HookQueueServiceImpl) RequeueFailed(ctx context.Context, issueID string, opts primary.RequeueOptions) error {
	ctx = ctxutil.EnsureActor(ctx, s.agentID)

	rec, err := s.store.Get(ctx, issueID)
	if err != nil {
		return err
	}

	guard := hook.CanRequeue(hook.RequeueContext{
		IssueID:      issueID,
		State:        hook.ResolveState(rec.Labels),
		RetryCount:   hook.RetryCount(rec.Description),
		MaxRetries:   s.cfg.MaxRetries,
		ResetRetries: opts.ResetRetries,
	})
	if !guard.Allowed {
		return guard.Error()
	}

	moved, err := s.moveState(ctx, rec, hook.StateReady)
	if err != nil {
		return fmt.Errorf("failed to requeue %s: %w", issueID, err)
	}
	if !moved {
		return fmt.Errorf("issue %s changed state during requeue", issueID)
	}

	status := hook.StatusOpen
	desc := hook.StripFailureReason(rec.Description)
	if opts.ResetRetries {
		desc = hook.WithRetryCount(desc, 0)
	}
	if err := s.store.Update(ctx, issueID, secondary.IssueUpdate{Status: &status, Description: &desc}); err != nil {
		return fmt.Errorf("failed to reopen issue: %w", err)
	}

	s.logger.Info("requeued failed issue", "issue", issueID, "reset", opts.ResetRetries)
	return nil
}

// GetStats counts issues per effective queue state.
func (s *HookQueueServiceImpl) GetStats(ctx context.Context) (*primary.QueueStats, error) {
	seen := make(map[string]*secondary.IssueRecord)
	for _, label := range []string{hook.LabelReady, hook.LabelInProgress, hook.LabelFailed} {
		records, err := s.store.List(ctx, secondary.IssueFilters{Labels: []string{label}})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s issues: %w", label, err)
		}
		for _, r := range records {
			seen[r.ID] = r
		}
	}

	now := s.now()
	stats := &primary.QueueStats{}
	for _, rec := range seen {
		switch hook.ResolveState(rec.Labels) {
		case hook.StateReady:
			if rec.Status != hook.StatusClosed {
				stats.Ready++
			}
		case hook.StateInProgress:
			stats.InProgress++
			if hook.IsStale(s.lastHeartbeat(rec), now, s.cfg.ClaimTimeout) {
				stats.StaleClaims++
			}
		case hook.StateFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// moveState puts rec into target, leaving exactly one hook label behind.
// With a LabelSwapper the transition out of the current state is a
// compare-and-swap and a lost swap reports false. Without one the target
// label is added before the old ones are removed, so a crash in between
// leaves a state that ResolveState can still interpret.
func (s *HookQueueServiceImpl) moveState(ctx context.Context, rec *secondary.IssueRecord, target hook.State) (bool, error) {
	current := hook.ResolveState(rec.Labels)
	swapped := ""

	switch {
	case s.swapper != nil && current != hook.StateNone && current != target && target != hook.StateNone:
		ok, err := s.swapper.SwapLabel(ctx, rec.ID, current.Label(), target.Label())
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		swapped = current.Label()
	case target != hook.StateNone && !hook.HasLabel(rec.Labels, target.Label()):
		if err := s.store.AddLabel(ctx, rec.ID, target.Label()); err != nil {
			return false, err
		}
	}

	for _, stray := range hook.StrayLabels(rec.Labels, target) {
		if stray == swapped {
			continue
		}
		if err := s.store.RemoveLabel(ctx, rec.ID, stray); err != nil {
			return false, err
		}
	}
	return true, nil
}

// lastHeartbeat prefers the in-memory claim, then the persisted blob,
// then the store's update time.
func (s *HookQueueServiceImpl) lastHeartbeat(rec *secondary.IssueRecord) time.Time {
	if c := s.lookup(rec.ID); c != nil {
		return c.LastHeartbeat
	}
	if c, ok := hook.ParseClaim(rec.Description); ok && !c.LastHeartbeat.IsZero() {
		return c.LastHeartbeat
	}
	return rec.UpdatedAt
}

func (s *HookQueueServiceImpl) remember(c *hook.Claim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[c.IssueID] = c
}

func (s *HookQueueServiceImpl) forget(issueID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, issueID)
}

func (s *HookQueueServiceImpl) lookup(issueID string) *hook.Claim {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.claims[issueID]; ok {
		copied := *c
		return &copied
	}
	return nil
}

// Helper functions

func replaceHookLabels(labels []string, target hook.State) []string {
	out := make([]string, 0, len(labels)+1)
	for _, l := range labels {
		if !hook.IsHookLabel(l) {
			out = append(out, l)
		}
	}
	if label := target.Label(); label != "" {
		out = append(out, label)
	}
	return out
}

func claimToPrimary(c *hook.Claim) *primary.Claim {
	return &primary.Claim{
		IssueID:       c.IssueID,
		AgentID:       c.AgentID,
		ClaimedAt:     c.ClaimedAt,
		LastHeartbeat: c.LastHeartbeat,
		Title:         c.Title,
	}
}

// Ensure HookQueueServiceImpl implements the interface
var _ primary.HookQueue = (*HookQueueServiceImpl)(nil)
