// Package convoy contains the pure aggregation logic for convoys.
// A convoy has no storage of its own: it is recomputed from the issues that
// carry its label every time it is read.
package convoy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/example/harness/internal/core/hook"
)

// LabelPrefix prefixes every convoy label.
const LabelPrefix = "convoy:"

// TypeConvoy marks the sentinel issue that carries a convoy's title and description.
const TypeConvoy = "convoy"

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// Member is the view of an issue the aggregator needs.
type Member struct {
	ID        string
	Title     string
	Priority  int
	Status    string
	Labels    []string
	IssueType string
}

// Summary is the roll-up of one convoy.
type Summary struct {
	Sentinel         *Member
	Work             []Member
	TotalIssues      int
	CompletedIssues  int
	InProgressIssues int
	FailedIssues     int
	Progress         float64
	Repositories     []string
}

// Label returns the label for a convoy name.
func Label(name string) string {
	return LabelPrefix + name
}

// NameFromLabel returns the convoy name for a label, or "" if it is not a convoy label.
func NameFromLabel(label string) string {
	if !strings.HasPrefix(label, LabelPrefix) {
		return ""
	}
	return strings.TrimPrefix(label, LabelPrefix)
}

// CanCreate evaluates whether a convoy may be created.
// Rules:
// - name must be lowercase and label-safe
// - no sentinel may already exist for the name
func CanCreate(name string, sentinelExists bool) GuardResult {
	if !namePattern.MatchString(name) {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("invalid convoy name %q: use lowercase letters, digits, '.', '_' or '-'", name),
		}
	}
	if sentinelExists {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("convoy %s already exists", name),
		}
	}
	return GuardResult{Allowed: true}
}

// Summarize separates the sentinel from work issues and computes counts.
// Buckets are evaluated independently, so one issue may count in several
// (closed and hook:failed, for example).
func Summarize(members []Member, repoAliases map[string]string) Summary {
	var s Summary
	for i := range members {
		m := members[i]
		if m.IssueType == TypeConvoy {
			if s.Sentinel == nil {
				s.Sentinel = &m
			}
			continue
		}
		s.Work = append(s.Work, m)
	}

	s.TotalIssues = len(s.Work)
	for _, m := range s.Work {
		if m.Status == hook.StatusClosed {
			s.CompletedIssues++
		}
		if m.Status == hook.StatusInProgress || hook.HasLabel(m.Labels, hook.LabelInProgress) {
			s.InProgressIssues++
		}
		if hook.HasLabel(m.Labels, hook.LabelFailed) {
			s.FailedIssues++
		}
	}
	s.Progress = Progress(s.CompletedIssues, s.TotalIssues)
	s.Repositories = Repositories(s.Work, repoAliases)
	return s
}

// Progress returns completed/total as a percentage, 0 when total is 0.
func Progress(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}

// RepoPrefix extracts the repository prefix from an issue id such as
// "web-api-42" (prefix "web-api"). Ids without a dash have no prefix.
func RepoPrefix(id string) string {
	i := strings.LastIndex(id, "-")
	if i <= 0 {
		return ""
	}
	return id[:i]
}

// Repositories lists the distinct repositories of the members, sorted.
// aliases maps an id prefix to a repository name; unmapped prefixes are used as is.
func Repositories(members []Member, aliases map[string]string) []string {
	seen := make(map[string]bool)
	var repos []string
	for _, m := range members {
		prefix := RepoPrefix(m.ID)
		if prefix == "" {
			continue
		}
		repo := prefix
		if alias, ok := aliases[prefix]; ok {
			repo = alias
		}
		if !seen[repo] {
			seen[repo] = true
			repos = append(repos, repo)
		}
	}
	sort.Strings(repos)
	return repos
}

// NextIssue picks the convoy's next unit of work: the most urgent work issue
// that is not closed, not blocked and not already held or failed in the queue.
// Ties keep input order. Returns nil when nothing qualifies.
func NextIssue(members []Member) *Member {
	var open []Member
	for _, m := range members {
		if m.IssueType == TypeConvoy {
			continue
		}
		if m.Status == hook.StatusClosed || m.Status == hook.StatusBlocked {
			continue
		}
		switch hook.ResolveState(m.Labels) {
		case hook.StateInProgress, hook.StateFailed:
			continue
		}
		open = append(open, m)
	}
	if len(open) == 0 {
		return nil
	}
	sort.SliceStable(open, func(i, j int) bool {
		return open[i].Priority < open[j].Priority
	})
	return &open[0]
}
