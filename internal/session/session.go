// Package session defines the workflow session model and its persistence.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State identifies where a session is in its lifecycle.
type State string

const (
	StateInterpreting     State = "interpreting"
	StateClarifying       State = "clarifying"
	StatePlanning         State = "planning"
	StateAwaitingApproval State = "awaiting_plan_approval"
	StateExecuting        State = "executing"
	StateReviewing        State = "reviewing"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
	StateCancelled        State = "cancelled"
)

// Terminal reports whether the state accepts no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// StepStatus tracks a plan step through execution.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepRunning    StepStatus = "running"
	StepSucceeded  StepStatus = "succeeded"
	StepFailed     StepStatus = "failed"
	StepRolledBack StepStatus = "rolled_back"
)

// Failure reasons recorded on terminal sessions. Every failed or expired
// session carries exactly one of these, never a bare error string alone.
const (
	ReasonPlanValidationFailed = "plan_validation_failed"
	ReasonToolError            = "tool_error"
	ReasonReviewRejected       = "review_rejected"
	ReasonApprovalTimeout      = "approval_timeout"
	ReasonCancelled            = "cancelled"
)

// Intent is the structured interpretation of a user request.
type Intent struct {
	Action     string            `json:"action"`
	Target     string            `json:"target,omitempty"`
	Summary    string            `json:"summary"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Confidence is the judge's verdict on a candidate. It is recomputed per
// input and never cached across differing inputs.
type Confidence struct {
	Score     float64  `json:"score"`
	Threshold float64  `json:"threshold"`
	Confident bool     `json:"confident"`
	Rationale []string `json:"rationale,omitempty"`
}

// Interpretation is the outcome of the semantic interpreter for one request.
type Interpretation struct {
	Intent             Intent     `json:"intent"`
	Confidence         Confidence `json:"confidence"`
	NeedsClarification bool       `json:"needs_clarification"`
	Questions          []string   `json:"questions,omitempty"`
}

// Outcome is a step-declared success predicate, checked by the executor
// after the tool returns. A tool returning without error is not enough.
type Outcome struct {
	Description string `json:"description,omitempty"`
	Contains    string `json:"contains,omitempty"`    // substring required in tool output
	FileExists  string `json:"file_exists,omitempty"` // path that must exist afterwards
}

// Empty reports whether the outcome declares no checkable predicate.
func (o Outcome) Empty() bool {
	return o.Contains == "" && o.FileExists == ""
}

// PlanStep is a single tool invocation in a plan.
type PlanStep struct {
	ID              string                 `json:"id"`
	Tool            string                 `json:"tool"`
	Parameters      map[string]interface{} `json:"parameters,omitempty"`
	Description     string                 `json:"description,omitempty"`
	ExpectedOutcome Outcome                `json:"expected_outcome"`
	Status          StepStatus             `json:"status"`
}

// Plan is an ordered sequence of steps. A session's plan is replaced
// wholesale on each planning iteration, never partially mutated.
type Plan struct {
	Steps         []PlanStep `json:"steps"`
	Confidence    float64    `json:"confidence"`
	Iterations    int        `json:"iterations"`
	FinalCritique string     `json:"final_critique,omitempty"`
}

// PlanIteration archives one refinement pass for audit.
type PlanIteration struct {
	Iteration int     `json:"iteration"`
	Quality   float64 `json:"quality"`
	Critique  string  `json:"critique,omitempty"`
}

// ExecutionResult records one step's outcome. Immutable once appended.
type ExecutionResult struct {
	StepID         string    `json:"step_id"`
	Tool           string    `json:"tool"`
	Success        bool      `json:"success"`
	Output         string    `json:"output,omitempty"`
	Error          string    `json:"error,omitempty"`
	ErrorKind      string    `json:"error_kind,omitempty"` // transient or permanent
	BackupHandle   string    `json:"backup_handle,omitempty"`
	BackupRestored bool      `json:"backup_restored,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Decision is a human checkpoint verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionClarify Decision = "clarify"
)

// Feedback is one human decision. The feedback log is append-only.
type Feedback struct {
	Decision  Decision  `json:"decision"`
	Stage     State     `json:"stage"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the unit of work driven through the state machine. Only the
// orchestrator writes to it; interpreter, planner and executor are pure
// functions from its point of view.
type Session struct {
	ID      string `json:"id"`
	Request string `json:"request"`
	State   State  `json:"state"`

	Interpretation *Interpretation `json:"interpretation,omitempty"`
	Clarifications []string        `json:"clarifications,omitempty"`

	Plan           *Plan           `json:"plan,omitempty"`
	PlanIterations int             `json:"plan_iterations"`
	PlanHistory    []PlanIteration `json:"plan_history,omitempty"`

	StepCursor int               `json:"step_cursor"`
	Results    []ExecutionResult `json:"results,omitempty"`

	FeedbackLog []Feedback `json:"feedback_log,omitempty"`

	FailureReason string `json:"failure_reason,omitempty"`
	FailureDetail string `json:"failure_detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppendFeedback records a human decision with a timestamp.
func (s *Session) AppendFeedback(decision Decision, message string) {
	s.FeedbackLog = append(s.FeedbackLog, Feedback{
		Decision:  decision,
		Stage:     s.State,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// ApprovedAt reports whether the feedback log contains an approval given
// while the session sat at the given checkpoint.
func (s *Session) ApprovedAt(stage State) bool {
	for _, f := range s.FeedbackLog {
		if f.Decision == DecisionApprove && f.Stage == stage {
			return true
		}
	}
	return false
}

// ErrNotFound is returned by stores when no session exists for an ID.
var ErrNotFound = errors.New("session not found")

// Store is the persistence contract: an atomic per-session key-value store.
type Store interface {
	Save(sess *Session) error
	Load(id string) (*Session, error)
	List() ([]*Session, error)
}

// Manager creates and updates sessions against a Store.
type Manager struct {
	store Store
	mu    sync.Mutex
}

// NewManager creates a session manager.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Create persists a new session in the interpreting state.
func (m *Manager) Create(request string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		Request:   request,
		State:     StateInterpreting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Save(sess); err != nil {
		return nil, fmt.Errorf("saving new session: %w", err)
	}
	return sess, nil
}

// Get retrieves a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	return m.store.Load(id)
}

// Update saves changes to a session, refreshing its updated-at stamp.
func (m *Manager) Update(sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess.UpdatedAt = time.Now()
	return m.store.Save(sess)
}

// List returns all persisted sessions.
func (m *Manager) List() ([]*Session, error) {
	return m.store.List()
}
