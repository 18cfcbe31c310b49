// Package events carries per-session progress events to attached consumers.
package events

import (
	"time"

	"steward/internal/session"
)

// Type identifies a progress event.
type Type string

const (
	// TypeSnapshot is delivered first to a late subscriber: the current
	// state only, not history (history lives on the session itself).
	TypeSnapshot     Type = "snapshot"
	TypeStateChanged Type = "state_changed"
	TypeContentChunk Type = "content_chunk"
	TypeToolInvoked  Type = "tool_invoked"
	TypeError        Type = "error"
)

// Event is one entry in a session's finite progress stream.
type Event struct {
	SessionID string        `json:"session_id"`
	Type      Type          `json:"type"`
	State     session.State `json:"state,omitempty"`
	Tool      string        `json:"tool,omitempty"`
	StepID    string        `json:"step_id,omitempty"`
	Content   string        `json:"content,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Sink receives every published event. Implementations must be fast and
// non-blocking; slow consumers buffer or drop on their own side.
type Sink interface {
	Publish(evt Event)
}

// NoopSink discards events.
type NoopSink struct{}

// Publish discards the event.
func (NoopSink) Publish(evt Event) {}

// CompositeSink fans events out to several sinks.
type CompositeSink struct {
	sinks []Sink
}

// NewCompositeSink builds a sink forwarding to each non-nil sink given.
func NewCompositeSink(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	switch len(filtered) {
	case 0:
		return NoopSink{}
	case 1:
		return filtered[0]
	}
	return &CompositeSink{sinks: filtered}
}

// Publish forwards the event to every sink.
func (c *CompositeSink) Publish(evt Event) {
	for _, s := range c.sinks {
		s.Publish(evt)
	}
}
