package mailer

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LogProvider logs messages instead of delivering them.
type LogProvider struct{}

// Send logs the envelope (never the body) and returns a random id.
func (LogProvider) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := "log-" + uuid.NewString()
	log.Info().
		Str("provider", "log").
		Str("message_id", id).
		Str("from", msg.From).
		Strs("to", msg.To).
		Str("subject", msg.Subject).
		Int("html_bytes", len(msg.HTML)).
		Msg("email not delivered (log provider)")
	return id, nil
}
