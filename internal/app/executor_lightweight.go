package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/example/harness/internal/core/skill"
	"github.com/example/harness/internal/ports/primary"
	"github.com/example/harness/internal/ports/secondary"
)

// ErrSkillUnavailable is returned when the skill descriptor cannot be used.
var ErrSkillUnavailable = errors.New("skill unavailable")

// LoadSkill reads and parses a skill descriptor.
func LoadSkill(path string) (*skill.Descriptor, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no skill path configured", ErrSkillUnavailable)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSkillUnavailable, err)
	}
	d, err := skill.Parse(content, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSkillUnavailable, path, err)
	}
	return d, nil
}

// LightweightExecutor runs the agent scoped by a skill descriptor.
// The descriptor is re-read on every run so edits apply without a restart.
type LightweightExecutor struct {
	agent     agentRunner
	skillPath string
}

// NewLightweightExecutor creates a skill-driven executor.
func NewLightweightExecutor(cfg ExecutorConfig, skillPath string, runner secondary.ProcessRunner, vcs secondary.VersionControl, prompts *PromptBuilder, logger *slog.Logger) *LightweightExecutor {
	return &LightweightExecutor{
		agent:     newAgentRunner(cfg, runner, vcs, prompts, logger),
		skillPath: skillPath,
	}
}

// Name implements primary.Executor.
func (e *LightweightExecutor) Name() string { return "lightweight" }

// Execute implements primary.Executor.
func (e *LightweightExecutor) Execute(ctx context.Context, req primary.ExecutionRequest) (*primary.ExecutionResult, error) {
	sk, err := LoadSkill(e.skillPath)
	if err != nil {
		return nil, err
	}

	if sk.Context != "" {
		if req.PrimingContext == "" {
			req.PrimingContext = sk.Context
		} else {
			req.PrimingContext = req.PrimingContext + "\n\n" + sk.Context
		}
	}

	prompt, err := e.agent.prompts.BuildForSkill(sk, req)
	if err != nil {
		return nil, err
	}

	var extra []string
	model := sk.Model
	if model == "" {
		model = e.agent.cfg.Model
	}
	if model != "" {
		extra = append(extra, "--model", model)
	}
	if len(sk.AllowedTools) > 0 {
		extra = append(extra, "--allowedTools", strings.Join(sk.AllowedTools, ","))
	}

	e.agent.logger.Debug("running skill", "skill", sk.Name, "issue", req.Issue.ID)
	return e.agent.run(ctx, req, prompt, extra)
}

// Ensure LightweightExecutor implements the interface
var _ primary.Executor = (*LightweightExecutor)(nil)
