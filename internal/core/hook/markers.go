package hook

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Description markers. The store has no metadata column, so claim data,
// retry counts and failure reasons ride along in the issue description.
const (
	claimMarkerOpen  = "<!-- HOOK_CLAIM: "
	claimMarkerClose = " -->"
)

var (
	retryPattern   = regexp.MustCompile(`<!-- RETRY_COUNT: (\d+) -->`)
	claimPattern   = regexp.MustCompile(`(?s)\n*<!-- HOOK_CLAIM: (\{.*?\}) -->`)
	failurePattern = regexp.MustCompile(`(?s)\n*<!-- FAILURE_REASON: (.*?) -->`)
)

// Claim is a lease on one issue held by one agent.
type Claim struct {
	IssueID       string    `json:"issueId"`
	AgentID       string    `json:"agentId"`
	ClaimedAt     time.Time `json:"claimedAt"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	Title         string    `json:"title"`
}

// RetryCount parses the retry marker. A missing or malformed marker counts as 0.
func RetryCount(description string) int {
	m := retryPattern.FindStringSubmatch(description)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// WithRetryCount returns description with its retry marker set to n.
func WithRetryCount(description string, n int) string {
	marker := fmt.Sprintf("<!-- RETRY_COUNT: %d -->", n)
	if retryPattern.MatchString(description) {
		return retryPattern.ReplaceAllLiteralString(description, marker)
	}
	return appendMarker(description, marker)
}

// ParseClaim extracts the claim blob, if any.
func ParseClaim(description string) (*Claim, bool) {
	m := claimPattern.FindStringSubmatch(description)
	if m == nil {
		return nil, false
	}
	var c Claim
	if err := json.Unmarshal([]byte(m[1]), &c); err != nil {
		return nil, false
	}
	return &c, true
}

// WithClaim returns description with the claim blob replaced by c.
func WithClaim(description string, c Claim) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode claim: %w", err)
	}
	return appendMarker(StripClaim(description), claimMarkerOpen+string(data)+claimMarkerClose), nil
}

// StripClaim removes the claim blob.
func StripClaim(description string) string {
	return claimPattern.ReplaceAllString(description, "")
}

// FailureReason returns the recorded failure reason, or "".
func FailureReason(description string) string {
	m := failurePattern.FindStringSubmatch(description)
	if m == nil {
		return ""
	}
	return m[1]
}

// WithFailureReason records reason, replacing any earlier one.
func WithFailureReason(description, reason string) string {
	// "-->" inside the reason would terminate the comment early.
	reason = strings.ReplaceAll(reason, "-->", "->")
	reason = strings.ReplaceAll(reason, "\n", " ")
	return appendMarker(StripFailureReason(description), fmt.Sprintf("<!-- FAILURE_REASON: %s -->", reason))
}

// StripFailureReason removes the failure reason marker.
func StripFailureReason(description string) string {
	return failurePattern.ReplaceAllString(description, "")
}

func appendMarker(description, marker string) string {
	if description == "" {
		return marker
	}
	return strings.TrimRight(description, "\n") + "\n\n" + marker
}

// StripMarkers returns the human-written part of a description.
func StripMarkers(description string) string {
	out := StripFailureReason(StripClaim(description))
	out = retryPattern.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}
