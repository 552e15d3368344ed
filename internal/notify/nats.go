package notify

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSNotifier publishes notices as JSON on a NATS subject so other processes can display them.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSNotifier constructs a publisher for the subject.
func NewNATSNotifier(conn *nats.Conn, subject string, logger zerolog.Logger) *NATSNotifier {
	return &NATSNotifier{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "nats_notifier").Logger(),
	}
}

// Notify publishes the notice. Publish failures are logged, never returned.
func (n *NATSNotifier) Notify(notice Notice) {
	if n.conn == nil || n.subject == "" {
		return
	}

	payload, err := json.Marshal(notice)
	if err != nil {
		n.logger.Warn().Err(err).Msg("failed to encode notice")
		return
	}

	if err := n.conn.Publish(n.subject, payload); err != nil {
		n.logger.Warn().Err(err).Str("subject", n.subject).Msg("failed to publish notice")
	}
}
