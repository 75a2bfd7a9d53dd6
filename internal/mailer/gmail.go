package mailer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GmailProvider sends email with the Gmail API on behalf of one mailbox.
// The From header is kept as given; the mailbox must own it as a send-as
// alias or Gmail rewrites it.
type GmailProvider struct {
	service *gmail.Service
	userID  string
}

// NewGmailProvider wraps an existing Gmail service. userID is the mailbox
// the service acts for ("me" when empty).
func NewGmailProvider(svc *gmail.Service, userID string) *GmailProvider {
	if strings.TrimSpace(userID) == "" {
		userID = "me"
	}
	return &GmailProvider{service: svc, userID: userID}
}

// NewGmailProviderFromServiceAccount builds a provider from service account
// credentials with domain-wide delegation, impersonating mailbox.
func NewGmailProviderFromServiceAccount(ctx context.Context, credentialsJSON []byte, mailbox string) (*GmailProvider, error) {
	if len(credentialsJSON) == 0 {
		return nil, errors.New("gmail: credentials JSON is required")
	}
	if strings.TrimSpace(mailbox) == "" {
		return nil, errors.New("gmail: sender mailbox is required")
	}
	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to parse credentials: %w", err)
	}
	jwtConfig.Subject = mailbox

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to create service: %w", err)
	}
	return NewGmailProvider(svc, "me"), nil
}

// Send builds an RFC 5322 message and submits it via users.messages.send.
func (g *GmailProvider) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	raw := base64.URLEncoding.EncodeToString(buildMIME(msg))

	sent, err := g.service.Users.Messages.Send(g.userID, &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return "", &APIError{Provider: "gmail", StatusCode: gerr.Code, Message: gerr.Message}
		}
		return "", fmt.Errorf("gmail: failed to send email: %w", err)
	}
	if sent == nil || sent.Id == "" {
		return "", errors.New("gmail: response carried no message id")
	}
	return sent.Id, nil
}

var headerCleaner = strings.NewReplacer("\r", "", "\n", "")

func buildMIME(msg Message) []byte {
	headers := []string{
		"From: " + headerCleaner.Replace(msg.From),
		"To: " + headerCleaner.Replace(strings.Join(msg.To, ", ")),
	}
	if msg.ReplyTo != "" {
		headers = append(headers, "Reply-To: "+headerCleaner.Replace(msg.ReplyTo))
	}
	headers = append(headers,
		"Subject: "+mime.QEncoding.Encode("utf-8", msg.Subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"",
		msg.HTML,
	)
	return []byte(strings.Join(headers, "\r\n"))
}
