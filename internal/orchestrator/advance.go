package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"steward/internal/events"
	"steward/internal/executor"
	"steward/internal/plan"
	"steward/internal/session"
)

// Advance progresses a session through its current stage and returns the
// updated snapshot. Checkpoint states (CLARIFYING, AWAITING_PLAN_APPROVAL,
// REVIEWING) are idle: advancing them is a no-op and the next transition
// comes from SubmitFeedback.
func (o *Orchestrator) Advance(ctx context.Context, id string) (*session.Session, error) {
	unlock := o.lock(id)
	defer unlock()

	sess, err := o.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if sess.State.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrTerminalSession, sess.State)
	}

	stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()
	drop := o.registerCancel(id, cancel)
	defer drop()

	stageCtx, span := o.startStageSpan(stageCtx, sess)
	var stageErr error
	defer func() { o.endStageSpan(span, sess, stageErr) }()

	switch sess.State {
	case session.StateInterpreting:
		stageErr = o.advanceInterpreting(stageCtx, sess)
	case session.StatePlanning:
		stageErr = o.advancePlanning(stageCtx, sess)
	case session.StateExecuting:
		stageErr = o.advanceExecuting(stageCtx, sess)
	case session.StateClarifying, session.StateAwaitingApproval, session.StateReviewing:
		return sess, nil
	}
	if stageErr != nil {
		return nil, stageErr
	}

	if err := o.sessions.Update(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (o *Orchestrator) advanceInterpreting(ctx context.Context, sess *session.Session) error {
	result, err := o.interp.Interpret(ctx, sess.Request, sess.Clarifications)
	if err != nil {
		// The session stays in INTERPRETING; the caller may advance again.
		return fmt.Errorf("interpretation stage: %w", err)
	}

	sess.Interpretation = result
	o.publish(events.Event{
		SessionID: sess.ID,
		Type:      events.TypeContentChunk,
		Content:   result.Intent.Summary,
		Timestamp: time.Now(),
	})

	if result.NeedsClarification {
		o.transition(sess, session.StateClarifying)
	} else {
		o.transition(sess, session.StatePlanning)
	}
	return nil
}

func (o *Orchestrator) advancePlanning(ctx context.Context, sess *session.Session) error {
	pctx := plan.Context{
		Request:  sess.Request,
		Feedback: rejectionFeedback(sess),
	}

	result, err := o.planner.Plan(ctx, sess.Interpretation.Intent, pctx)
	if err != nil {
		if errors.Is(err, plan.ErrNoValidPlan) {
			sess.FailureReason = session.ReasonPlanValidationFailed
			sess.FailureDetail = err.Error()
			o.publishError(sess, err)
			o.transition(sess, session.StateFailed)
			return nil
		}
		return fmt.Errorf("planning stage: %w", err)
	}

	// The plan is replaced wholesale; earlier iterations stay inspectable
	// through the archived history.
	sess.Plan = result.Plan
	sess.PlanIterations = result.Plan.Iterations
	sess.PlanHistory = append(sess.PlanHistory, result.History...)
	sess.StepCursor = 0

	o.publish(events.Event{
		SessionID: sess.ID,
		Type:      events.TypeContentChunk,
		Content:   fmt.Sprintf("plan ready: %d steps, confidence %.2f", len(result.Plan.Steps), result.Plan.Confidence),
		Timestamp: time.Now(),
	})

	if o.cfg.RequireApproval {
		o.transition(sess, session.StateAwaitingApproval)
	} else {
		o.transition(sess, session.StateExecuting)
	}
	return nil
}

// advanceExecuting runs the remaining plan steps sequentially. A step's
// result is persisted before the next step starts, so rollback of step N
// can never race a concurrently mutating step N+1.
func (o *Orchestrator) advanceExecuting(ctx context.Context, sess *session.Session) error {
	if o.cfg.RequireApproval && !sess.ApprovedAt(session.StateAwaitingApproval) {
		return errors.New("executing without plan approval")
	}

	for sess.StepCursor < len(sess.Plan.Steps) {
		if err := ctx.Err(); err != nil {
			// Cancelled or timed out mid-plan. The in-flight step has
			// already rolled back; Cancel owns the terminal transition.
			return err
		}

		i := sess.StepCursor
		step := sess.Plan.Steps[i]
		sess.Plan.Steps[i].Status = session.StepRunning

		o.publish(events.Event{
			SessionID: sess.ID,
			Type:      events.TypeToolInvoked,
			Tool:      step.Tool,
			StepID:    step.ID,
			Timestamp: time.Now(),
		})

		result := o.runStepWithRetry(ctx, sess, step)

		sess.Plan.Steps[i].Status = executor.StatusFor(result)
		sess.Results = append(sess.Results, result)
		sess.StepCursor++
		if err := o.sessions.Update(sess); err != nil {
			return err
		}

		if result.Success {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		o.publishError(sess, errors.New(result.Error))
		if result.ErrorKind == string(executor.KindTransient) {
			// Retries exhausted on a transient failure.
			sess.FailureReason = session.ReasonToolError
			sess.FailureDetail = result.Error
			o.transition(sess, session.StateFailed)
			return nil
		}
		// Permanent failure: park for the reviewer's retry-or-abort call.
		o.transition(sess, session.StateReviewing)
		return nil
	}

	o.transition(sess, session.StateReviewing)
	return nil
}

func (o *Orchestrator) runStepWithRetry(ctx context.Context, sess *session.Session, step session.PlanStep) session.ExecutionResult {
	result := o.runStep(ctx, sess, step)
	for attempt := 0; attempt < o.cfg.StepRetries; attempt++ {
		if result.Success || result.ErrorKind != string(executor.KindTransient) || ctx.Err() != nil {
			break
		}
		o.logger.Warn("retrying step after transient failure", map[string]interface{}{
			"session": sess.ID,
			"tool":    step.Tool,
			"attempt": attempt + 1,
		})
		result = o.runStep(ctx, sess, step)
	}
	return result
}

func (o *Orchestrator) runStep(ctx context.Context, sess *session.Session, step session.PlanStep) session.ExecutionResult {
	ctx, span := o.startStepSpan(ctx, sess, step)
	result := o.exec.ExecuteStep(ctx, step)
	o.endStepSpan(span, result)
	return result
}

func (o *Orchestrator) publishError(sess *session.Session, err error) {
	o.publish(events.Event{
		SessionID: sess.ID,
		Type:      events.TypeError,
		Error:     err.Error(),
		Timestamp: time.Now(),
	})
}

// rejectionFeedback collects reviewer feedback text for planner context.
func rejectionFeedback(sess *session.Session) []string {
	var feedback []string
	for _, f := range sess.FeedbackLog {
		if f.Decision == session.DecisionReject && f.Message != "" {
			feedback = append(feedback, f.Message)
		}
	}
	return feedback
}
