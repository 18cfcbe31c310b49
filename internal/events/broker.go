package events

import (
	"sync"
	"time"

	"steward/internal/session"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber
// that falls this far behind loses events; full history is always
// recoverable from the session itself.
const subscriberBuffer = 64

// Broker is the in-process event stream. Consumers attach and detach at
// any time; each stream is finite and ends when its session terminates.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[int]chan Event
	next int
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[int]chan Event)}
}

// Subscribe attaches to a session's stream. The current state arrives
// first as a snapshot event, then subsequent events in order. The returned
// cancel function detaches; it is safe to call after the stream closed.
func (b *Broker) Subscribe(sessionID string, current session.State) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	ch <- Event{
		SessionID: sessionID,
		Type:      TypeSnapshot,
		State:     current,
		Timestamp: time.Now(),
	}

	if current.Terminal() {
		close(ch)
		return ch, func() {}
	}

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[int]chan Event)
	}
	id := b.next
	b.next++
	b.subs[sessionID][id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[sessionID][id]; ok {
			delete(b.subs[sessionID], id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers an event to all subscribers of its session. Sends never
// block: a full subscriber drops the event instead of stalling the
// orchestrator.
func (b *Broker) Publish(evt Event) {
	b.mu.Lock()
	terminal := evt.Type == TypeStateChanged && evt.State.Terminal()
	for _, ch := range b.subs[evt.SessionID] {
		select {
		case ch <- evt:
		default:
		}
	}
	if terminal {
		for _, ch := range b.subs[evt.SessionID] {
			close(ch)
		}
		delete(b.subs, evt.SessionID)
	}
	b.mu.Unlock()
}
