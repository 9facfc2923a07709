package hook

import (
	"strings"
	"testing"
	"time"
)

func TestResolveState(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   State
	}{
		{name: "no labels", labels: nil, want: StateNone},
		{name: "unrelated labels", labels: []string{"convoy:a", "bug"}, want: StateNone},
		{name: "ready", labels: []string{LabelReady}, want: StateReady},
		{name: "in progress", labels: []string{LabelInProgress}, want: StateInProgress},
		{name: "failed", labels: []string{LabelFailed}, want: StateFailed},
		{name: "in progress beats ready", labels: []string{LabelReady, LabelInProgress}, want: StateInProgress},
		{name: "in progress beats failed", labels: []string{LabelFailed, LabelInProgress}, want: StateInProgress},
		{name: "failed beats ready", labels: []string{LabelReady, LabelFailed}, want: StateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveState(tt.labels); got != tt.want {
				t.Errorf("ResolveState(%v) = %q, want %q", tt.labels, got, tt.want)
			}
		})
	}
}

func TestStrayLabels(t *testing.T) {
	labels := []string{LabelReady, "convoy:x", LabelInProgress, LabelFailed}

	stray := StrayLabels(labels, StateInProgress)
	if len(stray) != 2 || stray[0] != LabelReady || stray[1] != LabelFailed {
		t.Errorf("StrayLabels = %v, want [hook:ready hook:failed]", stray)
	}

	all := StrayLabels(labels, StateNone)
	if len(all) != 3 {
		t.Errorf("StrayLabels(none) = %v, want all three hook labels", all)
	}
}

func TestRetryCount(t *testing.T) {
	tests := []struct {
		name string
		desc string
		want int
	}{
		{name: "no marker", desc: "plain text", want: 0},
		{name: "empty", desc: "", want: 0},
		{name: "marker", desc: "text\n\n<!-- RETRY_COUNT: 3 -->", want: 3},
		{name: "marker mid text", desc: "a <!-- RETRY_COUNT: 12 --> b", want: 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RetryCount(tt.desc); got != tt.want {
				t.Errorf("RetryCount = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWithRetryCount(t *testing.T) {
	desc := WithRetryCount("do the thing", 1)
	if desc != "do the thing\n\n<!-- RETRY_COUNT: 1 -->" {
		t.Errorf("unexpected description: %q", desc)
	}

	desc = WithRetryCount(desc, 2)
	if strings.Count(desc, "RETRY_COUNT") != 1 {
		t.Errorf("expected a single marker, got %q", desc)
	}
	if RetryCount(desc) != 2 {
		t.Errorf("RetryCount = %d, want 2", RetryCount(desc))
	}

	if got := WithRetryCount("", 0); got != "<!-- RETRY_COUNT: 0 -->" {
		t.Errorf("empty description: got %q", got)
	}
}

func TestClaimBlob(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	claim := Claim{
		IssueID:       "web-12",
		AgentID:       "agent-1",
		ClaimedAt:     at,
		LastHeartbeat: at.Add(time.Minute),
		Title:         "fix <--> parser",
	}

	desc, err := WithClaim(WithRetryCount("body", 1), claim)
	if err != nil {
		t.Fatalf("WithClaim failed: %v", err)
	}
	if !strings.Contains(desc, `<!-- HOOK_CLAIM: {"issueId":"web-12"`) {
		t.Errorf("claim blob not found in %q", desc)
	}

	got, ok := ParseClaim(desc)
	if !ok {
		t.Fatal("expected claim to parse")
	}
	if got.AgentID != "agent-1" || !got.LastHeartbeat.Equal(claim.LastHeartbeat) || got.Title != claim.Title {
		t.Errorf("parsed claim = %+v", got)
	}

	// Rewriting replaces the blob instead of appending a second one.
	claim.LastHeartbeat = at.Add(5 * time.Minute)
	desc, _ = WithClaim(desc, claim)
	if strings.Count(desc, "HOOK_CLAIM") != 1 {
		t.Errorf("expected a single claim blob, got %q", desc)
	}

	stripped := StripClaim(desc)
	if strings.Contains(stripped, "HOOK_CLAIM") {
		t.Errorf("StripClaim left blob: %q", stripped)
	}
	if RetryCount(stripped) != 1 {
		t.Error("StripClaim must keep the retry marker")
	}
	if _, ok := ParseClaim(stripped); ok {
		t.Error("expected no claim after strip")
	}
}

func TestParseClaim_Malformed(t *testing.T) {
	if _, ok := ParseClaim("<!-- HOOK_CLAIM: {not json} -->"); ok {
		t.Error("expected malformed blob to be ignored")
	}
}

func TestFailureReason(t *testing.T) {
	desc := WithFailureReason("body", "tests failed --> see log\nline two")
	if got := FailureReason(desc); got != "tests failed -> see log line two" {
		t.Errorf("FailureReason = %q", got)
	}

	desc = WithFailureReason(desc, "second")
	if strings.Count(desc, "FAILURE_REASON") != 1 || FailureReason(desc) != "second" {
		t.Errorf("expected reason replaced, got %q", desc)
	}

	if got := StripFailureReason(desc); got != "body" {
		t.Errorf("StripFailureReason = %q, want %q", got, "body")
	}
}

func TestSelectCandidates(t *testing.T) {
	issues := []Candidate{
		{ID: "a", Priority: 2, Status: StatusOpen, Labels: []string{LabelReady}},
		{ID: "b", Priority: 1, Status: StatusOpen, Labels: []string{LabelReady, "team:x"}},
		{ID: "c", Priority: 1, Status: StatusOpen, Labels: []string{LabelReady}},
		{ID: "d", Priority: 0, Status: StatusOpen, Labels: []string{LabelReady, LabelInProgress}},
		{ID: "e", Priority: 0, Status: StatusClosed, Labels: []string{LabelReady}},
		{ID: "f", Priority: 0, Status: StatusOpen, Labels: []string{LabelFailed}},
		{ID: "g", Priority: 3, Status: StatusOpen, Labels: []string{LabelReady, "team:x"}},
	}

	ids := func(cs []Candidate) string {
		var s []string
		for _, c := range cs {
			s = append(s, c.ID)
		}
		return strings.Join(s, ",")
	}

	maxOne := 1
	tests := []struct {
		name   string
		filter ClaimFilter
		want   string
	}{
		{name: "priority then store order", filter: ClaimFilter{}, want: "b,c,a,g"},
		{name: "label filter", filter: ClaimFilter{Labels: []string{"team:x"}}, want: "b,g"},
		{name: "max priority", filter: ClaimFilter{MaxPriority: &maxOne}, want: "b,c"},
		{name: "no match", filter: ClaimFilter{Labels: []string{"team:y"}}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ids(SelectCandidates(issues, tt.filter)); got != tt.want {
				t.Errorf("SelectCandidates = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsStale(t *testing.T) {
	hb := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	timeout := 10 * time.Minute

	if IsStale(hb, hb.Add(timeout-time.Second), timeout) {
		t.Error("claim should be live before the timeout")
	}
	if IsStale(hb, hb.Add(timeout), timeout) {
		t.Error("claim should be live exactly at the timeout")
	}
	if !IsStale(hb, hb.Add(timeout+time.Millisecond), timeout) {
		t.Error("claim should be stale just past the timeout")
	}
}

func TestReleaseTarget(t *testing.T) {
	tests := []struct {
		retries, max int
		want         State
	}{
		{0, 2, StateReady},
		{1, 2, StateReady},
		{2, 2, StateFailed},
		{5, 2, StateFailed},
		{0, 0, StateFailed},
	}
	for _, tt := range tests {
		if got := ReleaseTarget(tt.retries, tt.max); got != tt.want {
			t.Errorf("ReleaseTarget(%d, %d) = %q, want %q", tt.retries, tt.max, got, tt.want)
		}
	}
}

func TestCanRequeue(t *testing.T) {
	tests := []struct {
		name        string
		ctx         RequeueContext
		wantAllowed bool
		wantReason  string
	}{
		{
			name:        "explicitly failed under limit",
			ctx:         RequeueContext{IssueID: "x-1", State: StateFailed, RetryCount: 0, MaxRetries: 2},
			wantAllowed: true,
		},
		{
			name:        "exhausted without reset",
			ctx:         RequeueContext{IssueID: "x-1", State: StateFailed, RetryCount: 3, MaxRetries: 2},
			wantAllowed: false,
			wantReason:  "issue x-1 exhausted its retries (3/2). Requeue with --reset to start over",
		},
		{
			name:        "exhausted with reset",
			ctx:         RequeueContext{IssueID: "x-1", State: StateFailed, RetryCount: 3, MaxRetries: 2, ResetRetries: true},
			wantAllowed: true,
		},
		{
			name:        "not failed",
			ctx:         RequeueContext{IssueID: "x-1", State: StateReady, MaxRetries: 2},
			wantAllowed: false,
			wantReason:  "issue x-1 is not failed (state: ready)",
		},
		{
			name:        "no hook label",
			ctx:         RequeueContext{IssueID: "x-1", State: StateNone, MaxRetries: 2},
			wantAllowed: false,
			wantReason:  "issue x-1 is not failed (state: none)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanRequeue(tt.ctx)
			if result.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", result.Allowed, tt.wantAllowed)
			}
			if !tt.wantAllowed && result.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", result.Reason, tt.wantReason)
			}
		})
	}
}

func TestCanHeartbeat(t *testing.T) {
	if r := CanHeartbeat(HeartbeatContext{IssueID: "a", HasClaim: false, State: StateInProgress}); r.Allowed {
		t.Error("expected heartbeat without claim to be rejected")
	}
	if r := CanHeartbeat(HeartbeatContext{IssueID: "a", HasClaim: true, State: StateReady}); r.Allowed {
		t.Error("expected heartbeat on released issue to be rejected")
	}
	if r := CanHeartbeat(HeartbeatContext{IssueID: "a", HasClaim: true, State: StateInProgress}); !r.Allowed {
		t.Errorf("expected heartbeat to be allowed, got %q", r.Reason)
	}
	if r := CanHeartbeat(HeartbeatContext{IssueID: "a", HasClaim: true, State: StateInProgress, AgentID: "me", Holder: "me"}); !r.Allowed {
		t.Errorf("expected own claim to be refreshable, got %q", r.Reason)
	}
	r := CanHeartbeat(HeartbeatContext{IssueID: "a", HasClaim: true, State: StateInProgress, AgentID: "me", Holder: "other"})
	if r.Allowed || r.Reason != "issue a was reclaimed by other" {
		t.Errorf("expected reclaimed claim to be rejected, got %+v", r)
	}
	if err := (GuardResult{Allowed: false, Reason: "nope"}).Error(); err == nil || err.Error() != "nope" {
		t.Errorf("GuardResult.Error = %v", err)
	}
}

func TestCanRelease(t *testing.T) {
	tests := []struct {
		name    string
		ctx     ReleaseContext
		allowed bool
	}{
		{"in progress", ReleaseContext{IssueID: "a", State: StateInProgress, Status: StatusInProgress}, true},
		{"ready", ReleaseContext{IssueID: "a", State: StateReady, Status: StatusOpen}, true},
		{"closed and unhooked", ReleaseContext{IssueID: "a", State: StateNone, Status: StatusClosed}, false},
		{"closed but still hooked", ReleaseContext{IssueID: "a", State: StateInProgress, Status: StatusClosed}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanRelease(tt.ctx); got.Allowed != tt.allowed {
				t.Errorf("CanRelease = %+v, want allowed=%v", got, tt.allowed)
			}
		})
	}
}

func TestStripMarkers(t *testing.T) {
	desc := WithRetryCount("Fix the login form.\n", 2)
	desc = WithFailureReason(desc, "tests failed")
	desc, err := WithClaim(desc, Claim{IssueID: "hs-1", AgentID: "a"})
	if err != nil {
		t.Fatal(err)
	}

	if got := StripMarkers(desc); got != "Fix the login form." {
		t.Errorf("StripMarkers() = %q", got)
	}
	if got := StripMarkers(""); got != "" {
		t.Errorf("StripMarkers(\"\") = %q", got)
	}
}
