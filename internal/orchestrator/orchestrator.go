// Package orchestrator drives workflow sessions through the interpret,
// plan, execute and review stages. It is the single writer of session
// state: every other component is a pure function from its point of view.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"steward/internal/events"
	"steward/internal/executor"
	"steward/internal/interpret"
	"steward/internal/plan"
	"steward/internal/session"
)

var (
	// ErrTerminalSession is returned for operations on finished sessions.
	ErrTerminalSession = errors.New("session is terminal")
	// ErrFeedbackNotExpected is returned when feedback arrives at a state
	// that is not a human checkpoint for that decision.
	ErrFeedbackNotExpected = errors.New("feedback not expected in current state")
	// ErrFeedbackRequired is returned when a rejection carries no
	// actionable feedback text.
	ErrFeedbackRequired = errors.New("rejection requires feedback text")
)

// Config tunes the orchestrator's own behavior. Interpreter and planner
// thresholds are configured on those components.
type Config struct {
	// RequireApproval inserts the AWAITING_PLAN_APPROVAL checkpoint.
	// Sessions skip straight to execution when false.
	RequireApproval bool

	// StepRetries is how many times a transient step failure is retried
	// with the same parameters before the session fails.
	StepRetries int

	// StageTimeout bounds one Advance call's model and tool work.
	StageTimeout time.Duration

	// MaxIdle is how long a non-terminal session may sit untouched before
	// an idle sweep expires it.
	MaxIdle time.Duration
}

// DefaultConfig returns the stock orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		RequireApproval: true,
		StepRetries:     1,
		StageTimeout:    5 * time.Minute,
		MaxIdle:         24 * time.Hour,
	}
}

// Orchestrator sequences sessions through the state machine.
type Orchestrator struct {
	sessions *session.Manager
	interp   *interpret.Interpreter
	planner  *plan.Planner
	exec     *executor.Executor
	broker   *events.Broker
	sink     events.Sink
	cfg      Config
	logger   *logging.Logger

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	cancels map[string]context.CancelFunc
}

// New wires an orchestrator. extraSinks receive every event the in-process
// broker sees (for example a NATS mirror).
func New(sessions *session.Manager, interp *interpret.Interpreter, planner *plan.Planner, exec *executor.Executor, cfg Config, extraSinks ...events.Sink) *Orchestrator {
	broker := events.NewBroker()
	sinks := append([]events.Sink{broker}, extraSinks...)
	return &Orchestrator{
		sessions: sessions,
		interp:   interp,
		planner:  planner,
		exec:     exec,
		broker:   broker,
		sink:     events.NewCompositeSink(sinks...),
		cfg:      cfg,
		logger:   logging.New().WithComponent("orchestrator"),
		locks:    make(map[string]*sync.Mutex),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start validates the request and creates a session in INTERPRETING.
// Invalid requests are rejected before any session exists.
func (o *Orchestrator) Start(ctx context.Context, request string) (*session.Session, error) {
	if strings.TrimSpace(request) == "" {
		return nil, fmt.Errorf("%w: empty request", interpret.ErrInvalidRequest)
	}

	sess, err := o.sessions.Create(request)
	if err != nil {
		return nil, err
	}

	o.logger.Info("session started", map[string]interface{}{"session": sess.ID})
	o.publish(events.Event{
		SessionID: sess.ID,
		Type:      events.TypeStateChanged,
		State:     sess.State,
		Timestamp: time.Now(),
	})
	return sess, nil
}

// GetStatus returns the full session snapshot. Read-only.
func (o *Orchestrator) GetStatus(id string) (*session.Session, error) {
	return o.sessions.Get(id)
}

// Subscribe attaches to a session's progress stream.
func (o *Orchestrator) Subscribe(id string) (<-chan events.Event, func(), error) {
	sess, err := o.sessions.Get(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := o.broker.Subscribe(id, sess.State)
	return ch, cancel, nil
}

// SubmitFeedback is the only way across a human checkpoint. Rejections
// from approval or review must carry actionable feedback text to trigger
// re-planning; an empty rejection at review terminates the session.
func (o *Orchestrator) SubmitFeedback(ctx context.Context, id string, decision session.Decision, message string) (*session.Session, error) {
	unlock := o.lock(id)
	defer unlock()

	sess, err := o.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if sess.State.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrTerminalSession, sess.State)
	}

	switch {
	case sess.State == session.StateClarifying && decision == session.DecisionClarify:
		if strings.TrimSpace(message) == "" {
			return nil, fmt.Errorf("%w: clarification text missing", ErrFeedbackRequired)
		}
		sess.AppendFeedback(decision, message)
		sess.Clarifications = append(sess.Clarifications, message)
		o.transition(sess, session.StateInterpreting)

	case sess.State == session.StateAwaitingApproval && decision == session.DecisionApprove:
		sess.AppendFeedback(decision, message)
		o.transition(sess, session.StateExecuting)

	case sess.State == session.StateAwaitingApproval && decision == session.DecisionReject:
		if strings.TrimSpace(message) == "" {
			return nil, ErrFeedbackRequired
		}
		sess.AppendFeedback(decision, message)
		o.transition(sess, session.StatePlanning)

	case sess.State == session.StateReviewing && decision == session.DecisionApprove:
		sess.AppendFeedback(decision, message)
		o.transition(sess, session.StateCompleted)

	case sess.State == session.StateReviewing && decision == session.DecisionReject:
		sess.AppendFeedback(decision, message)
		if strings.TrimSpace(message) == "" {
			// No actionable feedback: the reviewer is aborting.
			sess.FailureReason = session.ReasonReviewRejected
			o.transition(sess, session.StateFailed)
		} else {
			sess.StepCursor = 0
			o.transition(sess, session.StatePlanning)
		}

	default:
		return nil, fmt.Errorf("%w: %s at %s", ErrFeedbackNotExpected, decision, sess.State)
	}

	if err := o.sessions.Update(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Cancel terminates a session from any non-terminal state. An in-flight
// advance is interrupted so its current step rolls back before the session
// is marked cancelled.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*session.Session, error) {
	o.mu.Lock()
	if cancel, ok := o.cancels[id]; ok {
		cancel()
	}
	o.mu.Unlock()

	unlock := o.lock(id)
	defer unlock()

	sess, err := o.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if sess.State.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrTerminalSession, sess.State)
	}

	sess.FailureReason = session.ReasonCancelled
	o.transition(sess, session.StateCancelled)
	if err := o.sessions.Update(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ExpireIdle terminates non-terminal sessions idle past the configured
// maximum. Expiry is distinguishable from tool failure: the session ends
// CANCELLED with the approval-timeout reason.
func (o *Orchestrator) ExpireIdle() (int, error) {
	sessions, err := o.sessions.List()
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, sess := range sessions {
		if sess.State.Terminal() || time.Since(sess.UpdatedAt) < o.cfg.MaxIdle {
			continue
		}

		unlock := o.lock(sess.ID)
		current, err := o.sessions.Get(sess.ID)
		if err == nil && !current.State.Terminal() && time.Since(current.UpdatedAt) >= o.cfg.MaxIdle {
			current.FailureReason = session.ReasonApprovalTimeout
			current.FailureDetail = fmt.Sprintf("no decision within %s", o.cfg.MaxIdle)
			o.transition(current, session.StateCancelled)
			if err := o.sessions.Update(current); err == nil {
				expired++
			}
		}
		unlock()
	}
	return expired, nil
}

// transition moves a session to a new state and publishes the change.
// Human-decision transitions are additionally recorded by the callers via
// the feedback log; everything lands in the internal trace here.
func (o *Orchestrator) transition(sess *session.Session, to session.State) {
	from := sess.State
	sess.State = to
	o.logger.Info("state transition", map[string]interface{}{
		"session": sess.ID,
		"from":    string(from),
		"to":      string(to),
	})
	o.publish(events.Event{
		SessionID: sess.ID,
		Type:      events.TypeStateChanged,
		State:     to,
		Timestamp: time.Now(),
	})
}

func (o *Orchestrator) publish(evt events.Event) {
	o.sink.Publish(evt)
}

// lock serializes all writers of one session.
func (o *Orchestrator) lock(id string) func() {
	o.mu.Lock()
	l, ok := o.locks[id]
	if !ok {
		l = &sync.Mutex{}
		o.locks[id] = l
	}
	o.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// registerCancel exposes an in-flight advance to Cancel.
func (o *Orchestrator) registerCancel(id string, cancel context.CancelFunc) func() {
	o.mu.Lock()
	o.cancels[id] = cancel
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.cancels, id)
		o.mu.Unlock()
	}
}
