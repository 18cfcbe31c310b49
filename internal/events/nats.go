package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/vinayprograms/agentkit/logging"
)

// NATSSink mirrors session events onto NATS subjects so external consumers
// (dashboards, audit pipelines) can follow progress without holding an
// in-process subscription.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
	logger *logging.Logger
}

// NewNATSSink connects to a NATS server. prefix defaults to "steward".
func NewNATSSink(url, prefix string) (*NATSSink, error) {
	if prefix == "" {
		prefix = "steward"
	}
	conn, err := nats.Connect(url, nats.Name("steward-events"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return &NATSSink{
		conn:   conn,
		prefix: prefix,
		logger: logging.New().WithComponent("events-nats"),
	}, nil
}

// Publish sends the event to <prefix>.session.<id>.events. Publish errors
// are logged, not surfaced: event mirroring never blocks orchestration.
func (s *NATSSink) Publish(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("marshaling event", map[string]interface{}{"error": err.Error()})
		return
	}

	subject := fmt.Sprintf("%s.session.%s.events", s.prefix, evt.SessionID)
	if err := s.conn.Publish(subject, data); err != nil {
		s.logger.Warn("publishing event", map[string]interface{}{
			"subject": subject,
			"error":   err.Error(),
		})
	}
}

// Close drains and closes the connection.
func (s *NATSSink) Close() {
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
	}
}
