package session

import (
	"errors"
	"testing"
	"time"
)

func TestState_Terminal(t *testing.T) {
	terminal := []State{StateCompleted, StateFailed, StateCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	active := []State{StateInterpreting, StateClarifying, StatePlanning, StateAwaitingApproval, StateExecuting, StateReviewing}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestSession_ApprovedAt(t *testing.T) {
	sess := &Session{State: StateAwaitingApproval}
	sess.AppendFeedback(DecisionApprove, "")
	sess.State = StateReviewing

	if !sess.ApprovedAt(StateAwaitingApproval) {
		t.Error("expected approval recorded at the plan checkpoint")
	}
	if sess.ApprovedAt(StateReviewing) {
		t.Error("plan approval must not count as review approval")
	}
}

func TestManager_CreateAndRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(store)

	sess, err := m.Create("restart the api")
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if sess.State != StateInterpreting {
		t.Errorf("new session must start interpreting, got %s", sess.State)
	}
	if sess.ID == "" {
		t.Error("expected generated session ID")
	}

	loaded, err := m.Get(sess.ID)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if loaded.Request != "restart the api" {
		t.Errorf("request not persisted, got %q", loaded.Request)
	}
}

func TestManager_UpdateRefreshesTimestamp(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(store)

	sess, err := m.Create("do a thing")
	if err != nil {
		t.Fatal(err)
	}
	created := sess.UpdatedAt

	time.Sleep(5 * time.Millisecond)
	sess.State = StatePlanning
	if err := m.Update(sess); err != nil {
		t.Fatalf("update error: %v", err)
	}

	loaded, err := m.Get(sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.State != StatePlanning {
		t.Errorf("state change not persisted, got %s", loaded.State)
	}
	if !loaded.UpdatedAt.After(created) {
		t.Error("expected updated-at refreshed on update")
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, err = store.Load("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStore_ListNewestFirst(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(store)

	first, err := m.Create("first")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := m.Create("second")
	if err != nil {
		t.Fatal(err)
	}

	sessions, err := store.List()
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != second.ID || sessions[1].ID != first.ID {
		t.Error("expected newest-first ordering")
	}
}

func TestFileStore_FullSessionRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	sess := &Session{
		ID:      "full",
		Request: "write greeting",
		State:   StateReviewing,
		Interpretation: &Interpretation{
			Intent:     Intent{Action: "write", Target: "greeting.txt", Summary: "Write a greeting"},
			Confidence: Confidence{Score: 0.9, Threshold: 0.75, Confident: true},
		},
		Plan: &Plan{
			Steps: []PlanStep{{
				ID:              "s1",
				Tool:            "write_file",
				Parameters:      map[string]interface{}{"path": "/tmp/x", "count": float64(3)},
				ExpectedOutcome: Outcome{FileExists: "/tmp/x"},
				Status:          StepSucceeded,
			}},
			Confidence: 0.85,
			Iterations: 2,
		},
		StepCursor: 1,
		Results: []ExecutionResult{{
			StepID:  "s1",
			Tool:    "write_file",
			Success: true,
			Output:  "ok",
		}},
		FeedbackLog: []Feedback{{Decision: DecisionApprove, Stage: StateAwaitingApproval, Timestamp: time.Now()}},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := store.Save(sess); err != nil {
		t.Fatalf("save error: %v", err)
	}
	loaded, err := store.Load("full")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if loaded.Plan.Steps[0].Status != StepSucceeded {
		t.Errorf("step status lost, got %s", loaded.Plan.Steps[0].Status)
	}
	if len(loaded.Results) != 1 || !loaded.Results[0].Success {
		t.Errorf("results lost: %+v", loaded.Results)
	}
	if !loaded.ApprovedAt(StateAwaitingApproval) {
		t.Error("feedback log lost")
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store, err := OpenSQLiteStore(t.TempDir() + "/sessions.db")
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	defer store.Close()

	m := NewManager(store)
	sess, err := m.Create("sqlite backed")
	if err != nil {
		t.Fatal(err)
	}

	sess.State = StateCompleted
	if err := m.Update(sess); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load(sess.ID)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if loaded.State != StateCompleted {
		t.Errorf("expected completed, got %s", loaded.State)
	}

	if _, err := store.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
