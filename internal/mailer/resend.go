package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultResendBaseURL is the public Resend API endpoint.
const DefaultResendBaseURL = "https://api.resend.com/"

// ResendClient sends email through the Resend API using the official SDK.
type ResendClient struct {
	client *resend.Client
}

type resendOptions struct {
	baseURL    string
	httpClient *http.Client
}

// ResendOption customizes a ResendClient.
type ResendOption func(*resendOptions)

// WithResendBaseURL points the client at another API host (tests, proxies).
func WithResendBaseURL(u string) ResendOption {
	return func(o *resendOptions) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			o.baseURL = u + "/"
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. Its transport is still
// wrapped so API failures keep their status code.
func WithHTTPClient(hc *http.Client) ResendOption {
	return func(o *resendOptions) {
		if hc != nil {
			o.httpClient = hc
		}
	}
}

// NewResendClient builds a client authenticated with apiKey. The default HTTP
// client is traced with otelhttp and times out after timeout (when > 0).
func NewResendClient(apiKey string, timeout time.Duration, opts ...ResendOption) *ResendClient {
	o := resendOptions{
		baseURL: DefaultResendBaseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, fn := range opts {
		fn(&o)
	}

	hc := *o.httpClient
	next := hc.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	hc.Transport = statusRecorder{next: next}

	c := resend.NewCustomClient(&hc, apiKey)
	if u, err := url.Parse(o.baseURL); err == nil {
		c.BaseURL = u
	}
	return &ResendClient{client: c}
}

// Send submits msg and returns the Resend message id.
func (c *ResendClient) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	params := &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		ReplyTo: msg.ReplyTo,
	}

	status := &responseStatus{}
	sent, err := c.client.Emails.SendWithContext(context.WithValue(ctx, responseStatusKey{}, status), params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("resend: send: %w", ctxErr)
		}
		if status.code >= http.StatusMultipleChoices {
			return "", &APIError{
				Provider:   "resend",
				StatusCode: status.code,
				Message:    strings.TrimSpace(strings.TrimPrefix(err.Error(), "[ERROR]:")),
			}
		}
		return "", fmt.Errorf("resend: send: %w", err)
	}
	if sent == nil || strings.TrimSpace(sent.Id) == "" {
		return "", errors.New("resend: response carried no message id")
	}
	return sent.Id, nil
}

// The SDK reports API failures as plain errors; statusRecorder keeps the
// HTTP status of the call so it can be surfaced in APIError.
type responseStatusKey struct{}

type responseStatus struct{ code int }

type statusRecorder struct{ next http.RoundTripper }

func (s statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := s.next.RoundTrip(req)
	if err == nil {
		if st, ok := req.Context().Value(responseStatusKey{}).(*responseStatus); ok {
			st.code = resp.StatusCode
		}
	}
	return resp, err
}
