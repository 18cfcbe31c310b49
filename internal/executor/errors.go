package executor

import (
	"context"
	"errors"
	"strings"
)

// Kind separates retry-eligible failures from final ones.
type Kind string

const (
	// KindTransient covers timeouts and rate limits; the orchestrator may
	// retry these with the same parameters.
	KindTransient Kind = "transient"
	// KindPermanent covers bad parameters, disabled tools and
	// verification failures; never retried automatically.
	KindPermanent Kind = "permanent"
)

// Classify decides whether a tool error is worth retrying. The invocation
// context is consulted because a deadline hit shows up there even when the
// tool wraps the underlying error.
func Classify(ctx context.Context, err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return KindTransient
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "timed out", "rate limit", "too many requests", "temporarily", "connection reset", "connection refused"} {
		if strings.Contains(msg, marker) {
			return KindTransient
		}
	}
	return KindPermanent
}
