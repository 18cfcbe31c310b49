package plan

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/llm"

	"steward/internal/session"
)

const planSystemPrompt = `You plan a sequence of tool invocations to fulfil a user intent.
Use only the tools listed. Respond with one or more step blocks:
STEP: <tool name>
DESC: <what this step accomplishes>
PARAM: <key>=<value>            (repeat per parameter)
EXPECT: <substring the tool output must contain>        (optional)
EXPECT_FILE: <path that must exist after the step>      (optional)`

const critiqueSystemPrompt = `You critique a proposed tool-invocation plan against the intent it serves.
You did not write this plan. Look for missing steps, wrong tools, wrong
parameters, and steps that cannot verify their own success.
Respond with exactly these lines:
QUALITY: <number between 0.0 and 1.0>
ISSUE: <one concrete issue per line, repeat the ISSUE line for each>`

// generate asks the model for a candidate plan.
func (p *Planner) generate(ctx context.Context, intent session.Intent, pctx Context) (*session.Plan, error) {
	prompt := p.buildPlanPrompt(intent, pctx)

	resp, err := p.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: planSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, err
	}

	return parsePlan(resp.Content), nil
}

// critique runs the separate critique pass. Generation and critique use
// different prompts so the plan is not grading its own homework.
func (p *Planner) critique(ctx context.Context, intent session.Intent, candidate *session.Plan) (float64, []string, error) {
	prompt := buildCritiquePrompt(intent, candidate)

	resp, err := p.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: critiqueSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return 0, nil, err
	}

	quality, issues := parseCritique(resp.Content)
	return quality, issues, nil
}

func (p *Planner) buildPlanPrompt(intent session.Intent, pctx Context) string {
	var sb strings.Builder

	sb.WriteString("INTENT: ")
	sb.WriteString(intent.Summary)
	sb.WriteString("\n")
	if intent.Action != "" {
		sb.WriteString(fmt.Sprintf("ACTION: %s\n", intent.Action))
	}
	if intent.Target != "" {
		sb.WriteString(fmt.Sprintf("TARGET: %s\n", intent.Target))
	}
	for k, v := range intent.Parameters {
		sb.WriteString(fmt.Sprintf("DETAIL: %s=%s\n", k, v))
	}

	sb.WriteString("\nORIGINAL REQUEST:\n")
	sb.WriteString(pctx.Request)
	sb.WriteString("\n")

	sb.WriteString("\nAVAILABLE TOOLS:\n")
	for _, name := range p.registry.Names() {
		spec, err := p.registry.SpecOf(name)
		if err != nil || spec.Disabled {
			continue
		}
		sb.WriteString(fmt.Sprintf("- %s: %s", spec.Name, spec.Description))
		if len(spec.Params) > 0 {
			var params []string
			for pname, ps := range spec.Params {
				if ps.Required {
					pname += " (required)"
				}
				params = append(params, pname)
			}
			sb.WriteString(" [params: " + strings.Join(params, ", ") + "]")
		}
		sb.WriteString("\n")
	}

	if len(pctx.Feedback) > 0 {
		sb.WriteString("\nREVIEWER FEEDBACK ON EARLIER ATTEMPTS:\n")
		for _, f := range pctx.Feedback {
			sb.WriteString("- ")
			sb.WriteString(f)
			sb.WriteString("\n")
		}
	}

	if pctx.previousCritique != "" {
		sb.WriteString("\nCRITIQUE OF YOUR PREVIOUS PLAN:\n")
		sb.WriteString(pctx.previousCritique)
		sb.WriteString("\n")
	}

	sb.WriteString("\nProduce the plan.")
	return sb.String()
}

func buildCritiquePrompt(intent session.Intent, candidate *session.Plan) string {
	var sb strings.Builder

	sb.WriteString("INTENT: ")
	sb.WriteString(intent.Summary)
	sb.WriteString("\n\nPROPOSED PLAN:\n")
	for i, step := range candidate.Steps {
		sb.WriteString(fmt.Sprintf("%d. %s", i+1, step.Tool))
		if step.Description != "" {
			sb.WriteString(" - " + step.Description)
		}
		sb.WriteString("\n")
		for k, v := range step.Parameters {
			sb.WriteString(fmt.Sprintf("   %s=%v\n", k, v))
		}
	}
	sb.WriteString("\nCritique the plan.")
	return sb.String()
}

// parsePlan reads the STEP block line protocol into a plan. Parameter
// values are coerced: bools and numbers become typed values so they can
// pass the registry's schema check.
func parsePlan(content string) *session.Plan {
	plan := &session.Plan{}
	var current *session.PlanStep

	flush := func() {
		if current != nil {
			plan.Steps = append(plan.Steps, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "STEP:"):
			flush()
			current = &session.PlanStep{
				ID:     uuid.NewString(),
				Tool:   strings.TrimSpace(strings.TrimPrefix(line, "STEP:")),
				Status: session.StepPending,
			}
		case current == nil:
			continue
		case strings.HasPrefix(line, "DESC:"):
			current.Description = strings.TrimSpace(strings.TrimPrefix(line, "DESC:"))
		case strings.HasPrefix(line, "PARAM:"):
			kv := strings.TrimSpace(strings.TrimPrefix(line, "PARAM:"))
			if k, v, ok := strings.Cut(kv, "="); ok {
				if current.Parameters == nil {
					current.Parameters = make(map[string]interface{})
				}
				current.Parameters[strings.TrimSpace(k)] = coerceValue(strings.TrimSpace(v))
			}
		case strings.HasPrefix(line, "EXPECT:"):
			current.ExpectedOutcome.Contains = strings.TrimSpace(strings.TrimPrefix(line, "EXPECT:"))
		case strings.HasPrefix(line, "EXPECT_FILE:"):
			current.ExpectedOutcome.FileExists = strings.TrimSpace(strings.TrimPrefix(line, "EXPECT_FILE:"))
		}
	}
	flush()
	return plan
}

func parseCritique(content string) (float64, []string) {
	var (
		quality float64
		issues  []string
	)

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "QUALITY:") {
			v := strings.TrimSpace(strings.TrimPrefix(line, "QUALITY:"))
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				if n < 0 {
					n = 0
				}
				if n > 1 {
					n = 1
				}
				quality = n
			}
		} else if strings.HasPrefix(line, "ISSUE:") {
			if issue := strings.TrimSpace(strings.TrimPrefix(line, "ISSUE:")); issue != "" {
				issues = append(issues, issue)
			}
		}
	}
	return quality, issues
}

func coerceValue(v string) interface{} {
	if v == "true" {
		return true
	}
	if v == "false" {
		return false
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}
