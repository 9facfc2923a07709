package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/harness/internal/core/hook"
	"github.com/example/harness/internal/ports/primary"
	"github.com/example/harness/internal/ports/secondary"
)

// ============================================================================
// Issue store
// ============================================================================

// Ensure mockIssueStore implements the interface
var _ secondary.IssueStore = (*mockIssueStore)(nil)

// mockIssueStore is an in-memory IssueStore without compare-and-swap.
type mockIssueStore struct {
	mu     sync.Mutex
	issues map[string]*secondary.IssueRecord
	order  []string
	seq    int
	now    func() time.Time

	listErr   error
	getErr    error
	updateErr error
	labelErr  error

	// beforeMutate runs (unlocked) before every label mutation; tests use it
	// to interleave agents.
	beforeMutate func(id string)
}

func newMockIssueStore() *mockIssueStore {
	return &mockIssueStore{
		issues: make(map[string]*secondary.IssueRecord),
		now:    time.Now,
	}
}

// add seeds an issue and returns its id.
func (m *mockIssueStore) add(title string, priority int, labels ...string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("hs-%d", m.seq)
	now := m.now()
	m.issues[id] = &secondary.IssueRecord{
		ID:        id,
		Title:     title,
		Priority:  priority,
		Status:    hook.StatusOpen,
		Labels:    append([]string(nil), labels...),
		IssueType: "task",
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.order = append(m.order, id)
	return id
}

// snapshot returns a copy of an issue for assertions.
func (m *mockIssueStore) snapshot(id string) *secondary.IssueRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRecord(m.issues[id])
}

func (m *mockIssueStore) set(id string, fn func(r *secondary.IssueRecord)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.issues[id])
}

func (m *mockIssueStore) List(ctx context.Context, filters secondary.IssueFilters) ([]*secondary.IssueRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*secondary.IssueRecord
	for _, id := range m.order {
		r := m.issues[id]
		if !hook.HasAllLabels(r.Labels, filters.Labels) {
			continue
		}
		if filters.Status != "" && r.Status != filters.Status {
			continue
		}
		if filters.ExcludeStatus != "" && r.Status == filters.ExcludeStatus {
			continue
		}
		if filters.Type != "" && r.IssueType != filters.Type {
			continue
		}
		out = append(out, copyRecord(r))
	}
	return out, nil
}

func (m *mockIssueStore) Get(ctx context.Context, id string) (*secondary.IssueRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	r, ok := m.issues[id]
	if !ok {
		return nil, fmt.Errorf("issue %s: %w", id, secondary.ErrIssueNotFound)
	}
	return copyRecord(r), nil
}

func (m *mockIssueStore) AddLabel(ctx context.Context, id, label string) error {
	if m.beforeMutate != nil {
		m.beforeMutate(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.labelErr != nil {
		return m.labelErr
	}
	r, ok := m.issues[id]
	if !ok {
		return fmt.Errorf("issue %s: %w", id, secondary.ErrIssueNotFound)
	}
	if !hook.HasLabel(r.Labels, label) {
		r.Labels = append(r.Labels, label)
		r.UpdatedAt = m.now()
	}
	return nil
}

func (m *mockIssueStore) RemoveLabel(ctx context.Context, id, label string) error {
	if m.beforeMutate != nil {
		m.beforeMutate(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.labelErr != nil {
		return m.labelErr
	}
	r, ok := m.issues[id]
	if !ok {
		return fmt.Errorf("issue %s: %w", id, secondary.ErrIssueNotFound)
	}
	r.Labels = without(r.Labels, label)
	r.UpdatedAt = m.now()
	return nil
}

func (m *mockIssueStore) Update(ctx context.Context, id string, update secondary.IssueUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	r, ok := m.issues[id]
	if !ok {
		return fmt.Errorf("issue %s: %w", id, secondary.ErrIssueNotFound)
	}
	if update.Status != nil {
		r.Status = *update.Status
	}
	if update.Description != nil {
		r.Description = *update.Description
	}
	if update.Priority != nil {
		r.Priority = *update.Priority
	}
	r.UpdatedAt = m.now()
	return nil
}

func (m *mockIssueStore) Create(ctx context.Context, req secondary.CreateIssueRecord) (*secondary.IssueRecord, error) {
	id := m.add(req.Title, req.PriorityOrDefault(), req.Labels...)
	m.set(id, func(r *secondary.IssueRecord) {
		r.Description = req.Description
		if req.Type != "" {
			r.IssueType = req.Type
		}
	})
	return m.snapshot(id), nil
}

// atomicIssueStore adds compare-and-swap to mockIssueStore.
type atomicIssueStore struct {
	*mockIssueStore
}

// Ensure atomicIssueStore implements the interfaces
var (
	_ secondary.IssueStore   = (*atomicIssueStore)(nil)
	_ secondary.LabelSwapper = (*atomicIssueStore)(nil)
)

func newAtomicIssueStore() *atomicIssueStore {
	return &atomicIssueStore{mockIssueStore: newMockIssueStore()}
}

func (a *atomicIssueStore) SwapLabel(ctx context.Context, id, from, to string) (bool, error) {
	if a.beforeMutate != nil {
		a.beforeMutate(id)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.issues[id]
	if !ok {
		return false, fmt.Errorf("issue %s: %w", id, secondary.ErrIssueNotFound)
	}
	if !hook.HasLabel(r.Labels, from) {
		return false, nil
	}
	r.Labels = without(r.Labels, from)
	if !hook.HasLabel(r.Labels, to) {
		r.Labels = append(r.Labels, to)
	}
	r.UpdatedAt = a.now()
	return true, nil
}

func copyRecord(r *secondary.IssueRecord) *secondary.IssueRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Labels = append([]string(nil), r.Labels...)
	return &c
}

func without(labels []string, label string) []string {
	out := labels[:0:0]
	for _, l := range labels {
		if l != label {
			out = append(out, l)
		}
	}
	return out
}

func sortedLabels(r *secondary.IssueRecord) []string {
	out := append([]string(nil), r.Labels...)
	sort.Strings(out)
	return out
}

// ============================================================================
// Clock
// ============================================================================

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// ============================================================================
// Executors and process plumbing
// ============================================================================

// Ensure mockExecutor implements the interface
var _ primary.Executor = (*mockExecutor)(nil)

// mockExecutor returns a canned result or error and records requests.
type mockExecutor struct {
	mu       sync.Mutex
	name     string
	result   *primary.ExecutionResult
	err      error
	requests []primary.ExecutionRequest
	block    chan struct{} // when set, Execute waits for it to close
}

func (m *mockExecutor) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockExecutor) Execute(ctx context.Context, req primary.ExecutionRequest) (*primary.ExecutionResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &primary.ExecutionResult{IssueID: req.Issue.ID, Outcome: primary.OutcomeSuccess}, nil
	}
	r := *m.result
	r.IssueID = req.Issue.ID
	return &r, nil
}

func (m *mockExecutor) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Ensure mockProcessRunner implements the interface
var _ secondary.ProcessRunner = (*mockProcessRunner)(nil)

// mockProcessRunner records specs and replays a result.
type mockProcessRunner struct {
	mu     sync.Mutex
	specs  []secondary.ProcessSpec
	result *secondary.ProcessResult
	err    error
	onRun  func(spec secondary.ProcessSpec)
}

func (m *mockProcessRunner) Run(ctx context.Context, spec secondary.ProcessSpec) (*secondary.ProcessResult, error) {
	m.mu.Lock()
	m.specs = append(m.specs, spec)
	m.mu.Unlock()
	if m.onRun != nil {
		m.onRun(spec)
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &secondary.ProcessResult{}, nil
	}
	if spec.Tee != nil {
		_, _ = spec.Tee.Write([]byte(m.result.Stdout))
	}
	r := *m.result
	return &r, nil
}

// Ensure mockVersionControl implements the interface
var _ secondary.VersionControl = (*mockVersionControl)(nil)

// mockVersionControl returns heads in sequence.
type mockVersionControl struct {
	mu    sync.Mutex
	heads []string
	err   error
}

func (m *mockVersionControl) HeadCommit(ctx context.Context, dir string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if len(m.heads) == 0 {
		return "", nil
	}
	h := m.heads[0]
	if len(m.heads) > 1 {
		m.heads = m.heads[1:]
	}
	return h, nil
}

// ============================================================================
// Checkpoints
// ============================================================================

// Ensure mockCheckpointStore implements the interface
var _ secondary.CheckpointStore = (*mockCheckpointStore)(nil)

type mockCheckpointStore struct {
	mu    sync.Mutex
	saved map[string]*secondary.Checkpoint
	saves int
}

func newMockCheckpointStore() *mockCheckpointStore {
	return &mockCheckpointStore{saved: make(map[string]*secondary.Checkpoint)}
}

func (m *mockCheckpointStore) Load(ctx context.Context, harnessID string) (*secondary.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.saved[harnessID]
	if !ok {
		return nil, nil
	}
	c := *cp
	return &c, nil
}

func (m *mockCheckpointStore) Save(ctx context.Context, cp *secondary.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cp.HarnessID == "" {
		return errors.New("missing harness id")
	}
	c := *cp
	m.saved[cp.HarnessID] = &c
	m.saves++
	return nil
}

func (m *mockCheckpointStore) get(harnessID string) *secondary.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[harnessID]
}

func intPtr(i int) *int { return &i }
