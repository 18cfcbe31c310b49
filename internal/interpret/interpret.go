// Package interpret turns raw user requests into structured intents.
package interpret

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"

	"steward/internal/judge"
	"steward/internal/session"
)

// ErrInvalidRequest is returned for empty or whitespace-only requests,
// before any interpretation is attempted.
var ErrInvalidRequest = errors.New("invalid request")

const intentSystemPrompt = `You turn a user request into a structured intent.
Respond with exactly these lines:
ACTION: <verb describing what the user wants done>
TARGET: <the resource or subject acted on, or "none">
SUMMARY: <one sentence restating the request>
PARAM: <key>=<value>   (repeat for each extracted parameter, omit if none)`

const questionSystemPrompt = `The request below was too ambiguous to act on confidently.
Propose short clarifying questions, one per line:
QUESTION: <question>`

// Interpreter produces intents and gates them through the confidence judge.
type Interpreter struct {
	provider     llm.Provider
	judge        judge.Judge
	maxQuestions int
	logger       *logging.Logger
}

// New creates an interpreter. maxQuestions bounds how many clarifying
// questions a low-confidence interpretation may suggest.
func New(provider llm.Provider, j judge.Judge, maxQuestions int) *Interpreter {
	if maxQuestions <= 0 {
		maxQuestions = 3
	}
	return &Interpreter{
		provider:     provider,
		judge:        j,
		maxQuestions: maxQuestions,
		logger:       logging.New().WithComponent("interpreter"),
	}
}

// Interpret produces a structured intent for the request, folding in any
// prior clarification answers. Re-invocation with clarifications is the
// same function over richer input, so a fixed model yields the same
// decision for the same arguments.
func (i *Interpreter) Interpret(ctx context.Context, request string, clarifications []string) (*session.Interpretation, error) {
	if strings.TrimSpace(request) == "" {
		return nil, fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}

	input := buildInput(request, clarifications)

	resp, err := i.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: intentSystemPrompt},
			{Role: "user", Content: input},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("interpreting request: %w", err)
	}

	intent := parseIntent(resp.Content)

	conf, err := i.judge.Score(ctx, input, intent.Summary)
	if err != nil {
		if !errors.Is(err, judge.ErrScoringUnavailable) {
			return nil, err
		}
		// Fail safe: an unscorable interpretation is treated as
		// low-confidence, not silently trusted.
		i.logger.Warn("judge unavailable, treating interpretation as low confidence", map[string]interface{}{
			"error": err.Error(),
		})
		conf = &session.Confidence{
			Score:     0,
			Confident: false,
			Rationale: []string{"confidence scoring unavailable"},
		}
	}

	result := &session.Interpretation{
		Intent:     intent,
		Confidence: *conf,
	}

	if !conf.Confident {
		questions, err := i.suggestQuestions(ctx, input)
		if err != nil {
			i.logger.Warn("clarifying question generation failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		if len(questions) == 0 {
			questions = []string{"Can you restate what you want done, with more detail?"}
		}
		result.NeedsClarification = true
		result.Questions = questions
	}

	i.logger.Info("request interpreted", map[string]interface{}{
		"action":              intent.Action,
		"score":               conf.Score,
		"needs_clarification": result.NeedsClarification,
	})
	return result, nil
}

func (i *Interpreter) suggestQuestions(ctx context.Context, input string) ([]string, error) {
	resp, err := i.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: questionSystemPrompt},
			{Role: "user", Content: input},
		},
	})
	if err != nil {
		return nil, err
	}

	var questions []string
	for _, line := range strings.Split(resp.Content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "QUESTION:") {
			if q := strings.TrimSpace(strings.TrimPrefix(line, "QUESTION:")); q != "" {
				questions = append(questions, q)
			}
		}
		if len(questions) == i.maxQuestions {
			break
		}
	}
	return questions, nil
}

func buildInput(request string, clarifications []string) string {
	if len(clarifications) == 0 {
		return request
	}

	var sb strings.Builder
	sb.WriteString(request)
	sb.WriteString("\n\nCLARIFICATIONS:\n")
	for _, c := range clarifications {
		sb.WriteString("- ")
		sb.WriteString(c)
		sb.WriteString("\n")
	}
	return sb.String()
}

func parseIntent(content string) session.Intent {
	intent := session.Intent{Parameters: map[string]string{}}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "ACTION:"):
			intent.Action = strings.TrimSpace(strings.TrimPrefix(line, "ACTION:"))
		case strings.HasPrefix(line, "TARGET:"):
			t := strings.TrimSpace(strings.TrimPrefix(line, "TARGET:"))
			if !strings.EqualFold(t, "none") {
				intent.Target = t
			}
		case strings.HasPrefix(line, "SUMMARY:"):
			intent.Summary = strings.TrimSpace(strings.TrimPrefix(line, "SUMMARY:"))
		case strings.HasPrefix(line, "PARAM:"):
			kv := strings.TrimSpace(strings.TrimPrefix(line, "PARAM:"))
			if k, v, ok := strings.Cut(kv, "="); ok {
				intent.Parameters[strings.TrimSpace(k)] = strings.TrimSpace(v)
			}
		}
	}

	if intent.Summary == "" {
		intent.Summary = strings.TrimSpace(content)
	}
	if len(intent.Parameters) == 0 {
		intent.Parameters = nil
	}
	return intent
}
