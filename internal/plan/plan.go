// Package plan generates tool-invocation plans from intents, refining them
// through a bounded critique loop.
package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"

	"steward/internal/registry"
	"steward/internal/session"
)

// ErrNoValidPlan is returned when every refinement iteration produced a
// plan that failed validation. The last critique rides along in the error.
var ErrNoValidPlan = errors.New("no valid plan within iteration limit")

// Context carries everything besides the intent that shapes a plan.
type Context struct {
	Request  string   // the original request, for grounding
	Feedback []string // reviewer feedback from rejected plans or reviews

	previousCritique string // fed back between refinement iterations
}

// Result is the planner's outcome: the best plan seen plus the full
// iteration archive.
type Result struct {
	Plan    *session.Plan
	History []session.PlanIteration
}

// Planner generates and refines plans.
type Planner struct {
	provider      llm.Provider
	registry      *registry.Registry
	threshold     float64
	maxIterations int
	logger        *logging.Logger
}

// New creates a planner. threshold gates refinement (default-worthy value
// 0.8); maxIterations hard-caps the loop regardless of score.
func New(provider llm.Provider, reg *registry.Registry, threshold float64, maxIterations int) *Planner {
	if maxIterations <= 0 {
		maxIterations = 3
	}
	return &Planner{
		provider:      provider,
		registry:      reg,
		threshold:     threshold,
		maxIterations: maxIterations,
		logger:        logging.New().WithComponent("planner"),
	}
}

// Plan produces a plan for the intent. Each iteration generates, validates
// and critiques a candidate; the loop stops at the quality threshold or the
// iteration cap, and the returned plan is the best-scoring one seen, which
// is not necessarily the last one generated.
func (p *Planner) Plan(ctx context.Context, intent session.Intent, pctx Context) (*Result, error) {
	var (
		best        *session.Plan
		bestQuality = -1.0
		history     []session.PlanIteration
		lastIssue   string
	)

	for i := 1; i <= p.maxIterations; i++ {
		candidate, err := p.generate(ctx, intent, pctx)
		if err != nil {
			return nil, fmt.Errorf("generating plan (iteration %d): %w", i, err)
		}

		if verr := p.validate(candidate); verr != nil {
			// Invalid plans go back into refinement, never to execution.
			lastIssue = verr.Error()
			history = append(history, session.PlanIteration{
				Iteration: i,
				Quality:   0,
				Critique:  "validation: " + lastIssue,
			})
			pctx.previousCritique = "The previous plan failed validation: " + lastIssue
			p.logger.Warn("plan failed validation", map[string]interface{}{
				"iteration": i,
				"error":     lastIssue,
			})
			continue
		}

		quality, issues, err := p.critique(ctx, intent, candidate)
		if err != nil {
			return nil, fmt.Errorf("critiquing plan (iteration %d): %w", i, err)
		}
		critique := strings.Join(issues, "; ")
		lastIssue = critique

		history = append(history, session.PlanIteration{
			Iteration: i,
			Quality:   quality,
			Critique:  critique,
		})

		if quality > bestQuality {
			bestQuality = quality
			candidate.Confidence = quality
			candidate.FinalCritique = critique
			best = candidate
		}

		p.logger.Debug("plan iteration scored", map[string]interface{}{
			"iteration": i,
			"quality":   quality,
		})

		if quality >= p.threshold {
			break
		}
		pctx.previousCritique = critique
	}

	if best == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoValidPlan, lastIssue)
	}

	best.Iterations = len(history)
	p.logger.Info("plan ready", map[string]interface{}{
		"steps":      len(best.Steps),
		"confidence": best.Confidence,
		"iterations": best.Iterations,
	})
	return &Result{Plan: best, History: history}, nil
}

// validate checks every step against the tool registry before the plan is
// allowed out of the refinement loop.
func (p *Planner) validate(plan *session.Plan) error {
	if len(plan.Steps) == 0 {
		return errors.New("plan has no steps")
	}
	for i, step := range plan.Steps {
		if _, err := p.registry.Resolve(step.Tool); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if err := p.registry.CheckParams(step.Tool, step.Parameters); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Tool, err)
		}
	}
	return nil
}
