// Tracing instrumentation for the orchestrator.
package orchestrator

import (
	"context"

	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"steward/internal/session"
)

// startStageSpan starts a span for one stage of the session state machine.
func (o *Orchestrator) startStageSpan(ctx context.Context, sess *session.Session) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "stage."+string(sess.State))
	span.SetAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("stage.name", string(sess.State)),
	)
	return ctx, span
}

// endStageSpan ends the stage span with the resulting state.
func (o *Orchestrator) endStageSpan(span trace.Span, sess *session.Session, err error) {
	span.SetAttributes(attribute.String("stage.result", string(sess.State)))
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// startStepSpan starts a span for a single tool step.
func (o *Orchestrator) startStepSpan(ctx context.Context, sess *session.Session, step session.PlanStep) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "step."+step.Tool)
	span.SetAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("step.id", step.ID),
		attribute.String("step.tool", step.Tool),
	)
	return ctx, span
}

// endStepSpan ends the step span with outcome info.
func (o *Orchestrator) endStepSpan(span trace.Span, result session.ExecutionResult) {
	span.SetAttributes(
		attribute.Bool("step.success", result.Success),
		attribute.Bool("step.rolled_back", result.BackupRestored),
	)
	if !result.Success && result.Error != "" {
		span.SetAttributes(attribute.String("step.error_kind", result.ErrorKind))
	}
	span.End()
}
