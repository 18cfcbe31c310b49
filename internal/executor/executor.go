// Package executor runs single plan steps inside a backup/verify/rollback
// envelope. It never touches session state; the orchestrator owns that.
package executor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"steward/internal/backup"
	"steward/internal/registry"
	"steward/internal/secrets"
	"steward/internal/session"
)

// DefaultStepTimeout bounds tool invocations whose spec declares none.
const DefaultStepTimeout = 30 * time.Second

// Executor executes plan steps against the tool registry.
type Executor struct {
	registry    *registry.Registry
	snapshots   backup.Snapshotter
	secrets     secrets.Provider
	stepTimeout time.Duration
	logger      *logging.Logger
}

// New creates an executor. stepTimeout of zero means DefaultStepTimeout.
func New(reg *registry.Registry, snapshots backup.Snapshotter, sec secrets.Provider, stepTimeout time.Duration) *Executor {
	if stepTimeout <= 0 {
		stepTimeout = DefaultStepTimeout
	}
	return &Executor{
		registry:    reg,
		snapshots:   snapshots,
		secrets:     sec,
		stepTimeout: stepTimeout,
		logger:      logging.New().WithComponent("executor"),
	}
}

// ExecuteStep runs one step: snapshot, invoke under timeout, verify,
// and roll back on any failure. The returned result is complete either
// way; errors surface inside it, not as a Go error.
func (e *Executor) ExecuteStep(ctx context.Context, step session.PlanStep) session.ExecutionResult {
	result := session.ExecutionResult{
		StepID:    step.ID,
		Tool:      step.Tool,
		StartedAt: time.Now(),
	}

	tool, err := e.registry.Resolve(step.Tool)
	if err != nil {
		return e.fail(result, err, KindPermanent)
	}
	spec := tool.Spec()

	// Cheap re-check; plans are validated before approval, but a step
	// must not run with parameters the schema rejects.
	if err := e.registry.CheckParams(step.Tool, step.Parameters); err != nil {
		return e.fail(result, err, KindPermanent)
	}

	handle, err := e.snapshot(ctx, spec, step.Parameters)
	if err != nil {
		return e.fail(result, fmt.Errorf("acquiring backup: %w", err), KindTransient)
	}
	result.BackupHandle = handle

	if spec.NeedsCredential {
		ctx = registry.WithCredential(ctx, e.secrets.GetCredential(step.Tool))
	}

	timeout := e.stepTimeout
	if spec.TimeoutSeconds > 0 {
		timeout = time.Duration(spec.TimeoutSeconds) * time.Second
	}
	invokeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, invokeErr := tool.Invoke(invokeCtx, step.Parameters)
	if invokeErr != nil {
		e.rollback(ctx, &result)
		return e.fail(result, invokeErr, Classify(invokeCtx, invokeErr))
	}
	result.Output = output

	// Verification is separate from the tool merely returning: a tool can
	// succeed technically and still not have done what the step declared.
	if err := verifyOutcome(step.ExpectedOutcome, output); err != nil {
		e.rollback(ctx, &result)
		return e.fail(result, err, KindPermanent)
	}

	if err := e.snapshots.Discard(handle); err != nil {
		e.logger.Warn("discarding backup failed", map[string]interface{}{
			"handle": handle,
			"error":  err.Error(),
		})
	}

	result.Success = true
	result.FinishedAt = time.Now()
	e.logger.Info("step executed", map[string]interface{}{
		"tool":     step.Tool,
		"step_id":  step.ID,
		"duration": result.FinishedAt.Sub(result.StartedAt).String(),
	})
	return result
}

// StatusFor maps an execution result onto the step status it implies.
func StatusFor(result session.ExecutionResult) session.StepStatus {
	switch {
	case result.Success:
		return session.StepSucceeded
	case result.BackupRestored:
		return session.StepRolledBack
	default:
		return session.StepFailed
	}
}

func (e *Executor) snapshot(ctx context.Context, spec registry.Spec, params map[string]interface{}) (string, error) {
	if !spec.Mutating || spec.ResourceParam == "" {
		return e.snapshots.Snapshot(ctx, "")
	}
	resource, _ := params[spec.ResourceParam].(string)
	return e.snapshots.Snapshot(ctx, resource)
}

// rollback restores the step's backup. Restoration is unconditional on
// failure; a mutated-but-unverified resource must never survive.
func (e *Executor) rollback(ctx context.Context, result *session.ExecutionResult) {
	if result.BackupHandle == "" {
		return
	}
	if err := e.snapshots.Restore(ctx, result.BackupHandle); err != nil {
		e.logger.Error("rollback failed", map[string]interface{}{
			"handle": result.BackupHandle,
			"error":  err.Error(),
		})
		return
	}
	result.BackupRestored = true
}

func (e *Executor) fail(result session.ExecutionResult, err error, kind Kind) session.ExecutionResult {
	result.Success = false
	result.Error = err.Error()
	result.ErrorKind = string(kind)
	result.FinishedAt = time.Now()
	e.logger.Warn("step failed", map[string]interface{}{
		"tool":  result.Tool,
		"kind":  string(kind),
		"error": err.Error(),
	})
	return result
}

func verifyOutcome(outcome session.Outcome, output string) error {
	if outcome.Contains != "" && !strings.Contains(output, outcome.Contains) {
		return fmt.Errorf("verification failed: output missing %q", outcome.Contains)
	}
	if outcome.FileExists != "" {
		if _, err := os.Stat(outcome.FileExists); err != nil {
			return fmt.Errorf("verification failed: %s does not exist", outcome.FileExists)
		}
	}
	return nil
}
