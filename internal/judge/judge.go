// Package judge scores candidate interpretations and plans against the
// request they were derived from.
package judge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"

	"steward/internal/session"
)

// ErrScoringUnavailable signals that the underlying scoring call failed.
// It is distinct from a low score: callers decide whether to fall back to
// a conservative low-confidence treatment or abort.
var ErrScoringUnavailable = errors.New("confidence scoring unavailable")

// Judge scores how well a candidate matches an input. Implementations must
// be side-effect free and deterministic for a fixed underlying model.
type Judge interface {
	Score(ctx context.Context, input, candidate string) (*session.Confidence, error)
}

const scoreSystemPrompt = `You grade how faithfully a candidate artifact reflects a user request.
Respond with exactly these lines:
SCORE: <number between 0.0 and 1.0>
REASON: <one reason per line, repeat the REASON line for each reason>`

// LLMJudge scores candidates with a single model call and parses the
// SCORE/REASON line protocol out of the response.
type LLMJudge struct {
	provider  llm.Provider
	threshold float64
	logger    *logging.Logger
}

// New creates an LLM-backed judge with the given confidence threshold.
func New(provider llm.Provider, threshold float64) *LLMJudge {
	return &LLMJudge{
		provider:  provider,
		threshold: threshold,
		logger:    logging.New().WithComponent("judge"),
	}
}

// Threshold returns the configured confidence threshold.
func (j *LLMJudge) Threshold() float64 {
	return j.threshold
}

// Score grades the candidate against the input.
func (j *LLMJudge) Score(ctx context.Context, input, candidate string) (*session.Confidence, error) {
	prompt := buildScorePrompt(input, candidate)

	resp, err := j.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: scoreSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		j.logger.Error("scoring call failed", map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("%w: %v", ErrScoringUnavailable, err)
	}

	score, rationale, ok := parseScoreResponse(resp.Content)
	if !ok {
		j.logger.Warn("unparseable score response", map[string]interface{}{
			"response": truncate(resp.Content, 200),
		})
		return nil, fmt.Errorf("%w: response carried no SCORE line", ErrScoringUnavailable)
	}

	return &session.Confidence{
		Score:     score,
		Threshold: j.threshold,
		Confident: score >= j.threshold,
		Rationale: rationale,
	}, nil
}

func buildScorePrompt(input, candidate string) string {
	var sb strings.Builder
	sb.WriteString("USER REQUEST:\n")
	sb.WriteString(input)
	sb.WriteString("\n\nCANDIDATE:\n")
	sb.WriteString(candidate)
	sb.WriteString("\n\nGrade the candidate.")
	return sb.String()
}

// parseScoreResponse extracts the score and rationale lines. The score is
// clamped to [0,1] so a misbehaving model cannot push it out of range.
func parseScoreResponse(content string) (float64, []string, bool) {
	var (
		score     float64
		rationale []string
		found     bool
	)

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "SCORE:") {
			v := strings.TrimSpace(strings.TrimPrefix(line, "SCORE:"))
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			score = clamp(n)
			found = true
		} else if strings.HasPrefix(line, "REASON:") {
			if r := strings.TrimSpace(strings.TrimPrefix(line, "REASON:")); r != "" {
				rationale = append(rationale, r)
			}
		}
	}
	return score, rationale, found
}

func clamp(n float64) float64 {
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
