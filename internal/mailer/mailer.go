// Package mailer delivers outbound email through a third-party provider.
//
// A Provider accepts a fully addressed Message and returns the provider's
// message id. Implementations:
//
//   - ResendClient: Resend REST API (POST /emails).
//   - GmailProvider: Gmail API users.messages.send with a service account.
//   - LogProvider: writes the message to the log and fabricates an id;
//     meant for local development.
//
// Providers never retry; the caller bounds each call with a context deadline.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// ErrInvalidMessage is returned when a message is missing a sender,
// recipient or subject.
var ErrInvalidMessage = errors.New("mailer: invalid message")

// Provider sends a message and returns the provider-assigned id.
type Provider interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Message is an email ready to hand to a provider.
type Message struct {
	From    string   // "Display Name <local@domain>"
	To      []string // at least one address
	Subject string
	HTML    string
	ReplyTo string // optional
}

// Validate checks the fields every provider needs.
func (m Message) Validate() error {
	if strings.TrimSpace(m.From) == "" {
		return fmt.Errorf("%w: from is required", ErrInvalidMessage)
	}
	if len(m.To) == 0 || strings.TrimSpace(m.To[0]) == "" {
		return fmt.Errorf("%w: at least one recipient is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	}
	return nil
}

// APIError is a non-2xx answer from a provider API.
type APIError struct {
	Provider   string
	StatusCode int
	Name       string
	Message    string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: status %d", e.Provider, e.StatusCode)
	if e.Name != "" {
		b.WriteString(" " + e.Name)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

// FormatAddress renders a display name and address as an RFC 5322 mailbox.
// Names with specials are quoted and non-ASCII names are RFC 2047 encoded,
// so the result is always a single parseable header value.
func FormatAddress(name, addr string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return addr
	}
	return (&mail.Address{Name: name, Address: addr}).String()
}
