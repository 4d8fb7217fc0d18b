package mail

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Sender dispatches transactional email. The auth flow only ever sends one
// kind of message (the magic link), but the contract stays generic so the
// provider can be swapped per deployment.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message represents an email to send.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
}

// LogSender logs emails instead of sending them. Default for local
// development where no provider is configured.
type LogSender struct{}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (l *LogSender) Send(_ context.Context, msg Message) error {
	log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.Text).
		Msg("email (log sender)")
	return nil
}
