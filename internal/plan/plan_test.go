package plan

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vinayprograms/agentkit/llm"

	"steward/internal/registry"
	"steward/internal/session"
)

func intentFor(summary string) session.Intent {
	return session.Intent{Action: "write", Summary: summary}
}

type fakeTool struct {
	spec registry.Spec
}

func (f *fakeTool) Spec() registry.Spec { return f.spec }
func (f *fakeTool) Invoke(ctx context.Context, params map[string]interface{}) (string, error) {
	return "ok", nil
}

func testRegistry() *registry.Registry {
	r := registry.New()
	r.Register(&fakeTool{spec: registry.Spec{
		Name:        "write_file",
		Description: "Write content to a file",
		Params: map[string]registry.ParamSpec{
			"path":    {Type: "string", Required: true},
			"content": {Type: "string", Required: true},
		},
		Mutating:      true,
		ResourceParam: "path",
	}})
	r.Register(&fakeTool{spec: registry.Spec{
		Name:        "read_file",
		Description: "Read a file",
		Params: map[string]registry.ParamSpec{
			"path": {Type: "string", Required: true},
		},
	}})
	return r
}

const validPlanReply = `STEP: write_file
DESC: Write the greeting
PARAM: path=/tmp/greeting.txt
PARAM: content=hello
EXPECT_FILE: /tmp/greeting.txt`

// planProvider scripts generation and critique replies in order.
func planProvider(t *testing.T, planReplies, critiqueReplies []string) *llm.MockProvider {
	t.Helper()
	var plans, critiques int
	provider := llm.NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		if strings.Contains(req.Messages[0].Content, "critique") {
			if critiques >= len(critiqueReplies) {
				t.Fatal("unexpected extra critique call")
			}
			reply := critiqueReplies[critiques]
			critiques++
			return &llm.ChatResponse{Content: reply}, nil
		}
		if plans >= len(planReplies) {
			t.Fatal("unexpected extra generation call")
		}
		reply := planReplies[plans]
		plans++
		return &llm.ChatResponse{Content: reply}, nil
	}
	return provider
}

func TestPlan_StopsAtThreshold(t *testing.T) {
	provider := planProvider(t,
		[]string{validPlanReply},
		[]string{"QUALITY: 0.9\nISSUE: none worth blocking on"},
	)

	p := New(provider, testRegistry(), 0.8, 3)
	result, err := p.Plan(context.Background(), intentFor("write a greeting"), Context{Request: "write a greeting file"})
	if err != nil {
		t.Fatalf("plan error: %v", err)
	}
	if result.Plan.Iterations != 1 {
		t.Errorf("expected 1 iteration, got %d", result.Plan.Iterations)
	}
	if result.Plan.Confidence != 0.9 {
		t.Errorf("expected confidence 0.9, got %v", result.Plan.Confidence)
	}
	if len(result.Plan.Steps) != 1 || result.Plan.Steps[0].Tool != "write_file" {
		t.Fatalf("unexpected steps: %+v", result.Plan.Steps)
	}
	if result.Plan.Steps[0].ExpectedOutcome.FileExists != "/tmp/greeting.txt" {
		t.Errorf("expected outcome file, got %+v", result.Plan.Steps[0].ExpectedOutcome)
	}
}

func TestPlan_RefinesUntilThreshold(t *testing.T) {
	provider := planProvider(t,
		[]string{validPlanReply, validPlanReply},
		[]string{
			"QUALITY: 0.5\nISSUE: no verification step",
			"QUALITY: 0.85\nISSUE: minor wording",
		},
	)

	p := New(provider, testRegistry(), 0.8, 3)
	result, err := p.Plan(context.Background(), intentFor("write a greeting"), Context{})
	if err != nil {
		t.Fatalf("plan error: %v", err)
	}
	if result.Plan.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", result.Plan.Iterations)
	}
	if result.Plan.Confidence != 0.85 {
		t.Errorf("expected best confidence 0.85, got %v", result.Plan.Confidence)
	}
	if len(result.History) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(result.History))
	}
}

func TestPlan_KeepsBestWhenQualityDips(t *testing.T) {
	provider := planProvider(t,
		[]string{validPlanReply, validPlanReply, validPlanReply},
		[]string{
			"QUALITY: 0.7\nISSUE: missing cleanup",
			"QUALITY: 0.5\nISSUE: regressed",
			"QUALITY: 0.6\nISSUE: still short",
		},
	)

	p := New(provider, testRegistry(), 0.9, 3)
	result, err := p.Plan(context.Background(), intentFor("write a greeting"), Context{})
	if err != nil {
		t.Fatalf("plan error: %v", err)
	}
	if result.Plan.Confidence != 0.7 {
		t.Errorf("expected best-so-far confidence 0.7, got %v", result.Plan.Confidence)
	}
	if result.Plan.Iterations != 3 {
		t.Errorf("expected iteration cap of 3, got %d", result.Plan.Iterations)
	}
}

func TestPlan_ValidationFailureFeedsBack(t *testing.T) {
	invalid := "STEP: delete_everything\nDESC: Nope\nPARAM: path=/"

	var secondPrompt string
	provider := llm.NewMockProvider()
	var generations int
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		if strings.Contains(req.Messages[0].Content, "critique") {
			return &llm.ChatResponse{Content: "QUALITY: 0.9\nISSUE: fine"}, nil
		}
		generations++
		if generations == 1 {
			return &llm.ChatResponse{Content: invalid}, nil
		}
		secondPrompt = req.Messages[1].Content
		return &llm.ChatResponse{Content: validPlanReply}, nil
	}

	p := New(provider, testRegistry(), 0.8, 3)
	result, err := p.Plan(context.Background(), intentFor("write a greeting"), Context{})
	if err != nil {
		t.Fatalf("plan error: %v", err)
	}
	if !strings.Contains(secondPrompt, "failed validation") {
		t.Error("validation failure was not fed back into the next generation")
	}
	if len(result.History) != 2 || result.History[0].Quality != 0 {
		t.Errorf("expected zero-quality history entry for the invalid plan, got %+v", result.History)
	}
}

func TestPlan_NoValidPlanWithinCap(t *testing.T) {
	invalid := "STEP: delete_everything\nPARAM: path=/"
	provider := planProvider(t,
		[]string{invalid, invalid, invalid},
		nil,
	)

	p := New(provider, testRegistry(), 0.8, 3)
	_, err := p.Plan(context.Background(), intentFor("destroy"), Context{})
	if !errors.Is(err, ErrNoValidPlan) {
		t.Fatalf("expected ErrNoValidPlan, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknown tool") {
		t.Errorf("expected last validation issue in error, got %v", err)
	}
}

func TestPlan_EmptyPlanRejected(t *testing.T) {
	provider := planProvider(t,
		[]string{"no step lines here", "no step lines here", "no step lines here"},
		nil,
	)

	p := New(provider, testRegistry(), 0.8, 3)
	_, err := p.Plan(context.Background(), intentFor("noop"), Context{})
	if !errors.Is(err, ErrNoValidPlan) {
		t.Fatalf("expected ErrNoValidPlan for empty plans, got %v", err)
	}
}

func TestPlan_ReviewerFeedbackInPrompt(t *testing.T) {
	var prompt string
	provider := llm.NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		if strings.Contains(req.Messages[0].Content, "critique") {
			return &llm.ChatResponse{Content: "QUALITY: 0.95"}, nil
		}
		prompt = req.Messages[1].Content
		return &llm.ChatResponse{Content: validPlanReply}, nil
	}

	p := New(provider, testRegistry(), 0.8, 3)
	_, err := p.Plan(context.Background(), intentFor("write a greeting"), Context{
		Request:  "write a greeting file",
		Feedback: []string{"use a different directory"},
	})
	if err != nil {
		t.Fatalf("plan error: %v", err)
	}
	if !strings.Contains(prompt, "REVIEWER FEEDBACK") || !strings.Contains(prompt, "use a different directory") {
		t.Error("reviewer feedback missing from the planning prompt")
	}
	if !strings.Contains(prompt, "write_file") {
		t.Error("available tools missing from the planning prompt")
	}
}

func TestParsePlan_CoercesParameterTypes(t *testing.T) {
	plan := parsePlan("STEP: t\nPARAM: count=3\nPARAM: ratio=0.5\nPARAM: force=true\nPARAM: name=web")
	params := plan.Steps[0].Parameters
	if v, ok := params["count"].(int); !ok || v != 3 {
		t.Errorf("expected int 3, got %T %v", params["count"], params["count"])
	}
	if v, ok := params["ratio"].(float64); !ok || v != 0.5 {
		t.Errorf("expected float 0.5, got %T %v", params["ratio"], params["ratio"])
	}
	if v, ok := params["force"].(bool); !ok || !v {
		t.Errorf("expected bool true, got %T %v", params["force"], params["force"])
	}
	if v, ok := params["name"].(string); !ok || v != "web" {
		t.Errorf("expected string web, got %T %v", params["name"], params["name"])
	}
}
