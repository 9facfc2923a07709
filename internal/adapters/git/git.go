// Package git inspects working trees through the git CLI.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/example/harness/internal/ports/secondary"
)

// ErrNotARepository is returned when dir is not inside a git work tree.
var ErrNotARepository = errors.New("not a git repository")

// Inspector implements secondary.VersionControl.
type Inspector struct {
	binary string
}

// NewInspector creates a git inspector using the git binary on PATH.
func NewInspector() *Inspector {
	return &Inspector{binary: "git"}
}

// HeadCommit returns the full hash of HEAD. A repository without commits
// yields an empty hash and no error.
func (g *Inspector) HeadCommit(ctx context.Context, dir string) (string, error) {
	out, err := g.output(ctx, dir, "rev-parse", "--verify", "--quiet", "HEAD")
	if err != nil {
		if ok, _ := g.IsRepository(ctx, dir); ok {
			return "", nil
		}
		return "", fmt.Errorf("%s: %w", dir, ErrNotARepository)
	}
	return strings.TrimSpace(out), nil
}

// IsRepository reports whether dir is inside a git work tree.
func (g *Inspector) IsRepository(ctx context.Context, dir string) (bool, error) {
	out, err := g.output(ctx, dir, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return false, nil
	}
	return strings.TrimSpace(out) == "true", nil
}

// CurrentBranch returns the checked out branch name.
func (g *Inspector) CurrentBranch(ctx context.Context, dir string) (string, error) {
	out, err := g.output(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// IsDirty checks if the working directory has uncommitted changes.
func (g *Inspector) IsDirty(ctx context.Context, dir string) (bool, error) {
	out, err := g.output(ctx, dir, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("failed to check dirty state: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// output executes a git command and returns the stdout.
func (g *Inspector) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Ensure Inspector implements the interface
var _ secondary.VersionControl = (*Inspector)(nil)
