package mail

import (
	"context"

	"github.com/rs/zerolog"
)

// LogMailer writes messages to the log instead of sending them. It is used
// when no SMTP relay is configured.
type LogMailer struct {
	log zerolog.Logger
}

// NewLogMailer creates a LogMailer
func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log.With().Str("component", "mail").Logger()}
}

// Send logs msg and never fails
func (m *LogMailer) Send(ctx context.Context, msg *Message) error {
	m.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.TextBody).
		Msg("Email not sent, SMTP disabled")
	return nil
}
