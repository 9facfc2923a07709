// Package detection classifies the captured output of an executor run.
package detection

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Outcome constants for an execution result.
const (
	OutcomeSuccess      = "success"       // Task finished
	OutcomePartial      = "partial"       // Agent stopped short, usually blocked
	OutcomeCodeComplete = "code_complete" // Code written, follow-up (review, deploy) pending
	OutcomeFailure      = "failure"       // Process or task failed
)

// MarkerPrefix starts the structured outcome line an executor may print.
const MarkerPrefix = "HARNESS_OUTCOME:"

var blockedMarkerPattern = regexp.MustCompile(`(?m)^\s*HARNESS_BLOCKED:[ \t]*(.*)$`)

// ANSI escape code pattern for stripping colors.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// BlockedPrefix starts the line an agent prints when it needs a human.
const BlockedPrefix = "HARNESS_BLOCKED:"

// markerPattern matches "HARNESS_OUTCOME: <outcome> [summary]" on its own line.
var markerPattern = regexp.MustCompile(`(?m)^\s*HARNESS_OUTCOME:\s*(success|partial|code_complete|failure)\b[ \t]*(.*)$`)

// Error patterns - something went wrong.
var errorPatterns = []string{
	"Error:",
	"ERROR:",
	"panic:",
	"PANIC:",
	"FAILED",
	"fatal:",
	"FATAL:",
	"Exception:",
	"Traceback",
	"Task failed",
}

// Blocked patterns - the agent could not finish on its own.
var blockedPatterns = []string{
	"blocked",
	"cannot proceed",
	"can't proceed",
	"unable to proceed",
	"need clarification",
	"needs clarification",
	"waiting for",
	"requires human",
	"need human input",
}

// Code-complete patterns - code is done but the work item is not.
var codeCompletePatterns = []string{
	"code complete",
	"code_complete",
	"ready for review",
	"pr created",
	"pull request created",
	"opened a pull request",
	"awaiting review",
}

// Success patterns.
var successPatterns = []string{
	"completed",
	"finished",
	"done",
	"success",
	"all tests pass",
	"committed",
}

// Classification is the detected outcome plus the text it was derived from.
type Classification struct {
	Outcome    string
	Summary    string
	Structured bool
}

// DetectOutcome classifies executor output.
// A structured marker line wins when present. Otherwise the priority order
// is: failure > partial (blocked) > code_complete > success words > success.
func DetectOutcome(output string, exitCode int) Classification {
	clean := stripANSI(output)

	if outcome, summary, ok := parseMarker(clean); ok {
		if summary == "" {
			summary = lastLine(clean)
		}
		return Classification{Outcome: outcome, Summary: summary, Structured: true}
	}

	summary := lastLine(clean)

	if exitCode != 0 || detectError(clean) {
		return Classification{Outcome: OutcomeFailure, Summary: summary}
	}

	lower := strings.ToLower(clean)

	if containsAny(lower, blockedPatterns) {
		return Classification{Outcome: OutcomePartial, Summary: summary}
	}

	if containsAny(lower, codeCompletePatterns) {
		return Classification{Outcome: OutcomeCodeComplete, Summary: summary}
	}

	if containsAny(lower, successPatterns) {
		return Classification{Outcome: OutcomeSuccess, Summary: summary}
	}

	// Clean exit with nothing recognisable still counts as success.
	return Classification{Outcome: OutcomeSuccess, Summary: summary}
}

// IsValidOutcome reports whether outcome is one of the known outcomes.
func IsValidOutcome(outcome string) bool {
	switch outcome {
	case OutcomeSuccess, OutcomePartial, OutcomeCodeComplete, OutcomeFailure:
		return true
	}
	return false
}

// DetectBlocked reports whether the output carries a blocked marker and
// returns the reason given with the last one.
func DetectBlocked(output string) (string, bool) {
	matches := blockedMarkerPattern.FindAllStringSubmatch(stripANSI(output), -1)
	if len(matches) == 0 {
		return "", false
	}
	return strings.TrimSpace(matches[len(matches)-1][1]), true
}

// parseMarker returns the last structured marker in the output.
func parseMarker(content string) (outcome, summary string, ok bool) {
	matches := markerPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return "", "", false
	}
	m := matches[len(matches)-1]
	return m[1], strings.TrimSpace(m[2]), true
}

// stripANSI removes ANSI escape codes from content.
func stripANSI(content string) string {
	return ansiPattern.ReplaceAllString(content, "")
}

// detectError checks for error patterns in content.
func detectError(content string) bool {
	return containsAny(content, errorPatterns)
}

func containsAny(content string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(content, pattern) {
			return true
		}
	}
	return false
}

const maxSummaryRunes = 200

// lastLine returns the last non-empty line, trimmed to a display length.
func lastLine(content string) string {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxSummaryRunes {
			line = string([]rune(line)[:maxSummaryRunes-3]) + "..."
		}
		return line
	}
	return ""
}
