package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/harness/internal/logging"
	"github.com/example/harness/internal/ports/primary"
)

// FallbackExecutor runs first and switches to fallback when first reports
// ErrSkillUnavailable. Other errors and all results pass through.
type FallbackExecutor struct {
	first    primary.Executor
	fallback primary.Executor
	logger   *slog.Logger
}

// NewFallbackExecutor creates the decorator.
func NewFallbackExecutor(first, fallback primary.Executor, logger *slog.Logger) *FallbackExecutor {
	return &FallbackExecutor{first: first, fallback: fallback, logger: logging.OrDefault(logger)}
}

// Name implements primary.Executor.
func (e *FallbackExecutor) Name() string {
	return e.first.Name() + "+" + e.fallback.Name()
}

// Execute implements primary.Executor.
func (e *FallbackExecutor) Execute(ctx context.Context, req primary.ExecutionRequest) (*primary.ExecutionResult, error) {
	result, err := e.first.Execute(ctx, req)
	if err == nil || !errors.Is(err, ErrSkillUnavailable) {
		return result, err
	}
	e.logger.Warn("falling back", "from", e.first.Name(), "to", e.fallback.Name(), "issue", req.Issue.ID, "error", err)
	return e.fallback.Execute(ctx, req)
}

// Ensure FallbackExecutor implements the interface
var _ primary.Executor = (*FallbackExecutor)(nil)
