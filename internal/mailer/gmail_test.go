package mailer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func newGmailTestProvider(t *testing.T, h http.HandlerFunc) *GmailProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("gmail.NewService: %v", err)
	}
	return NewGmailProvider(svc, "")
}

func TestGmailProvider_Send_Success(t *testing.T) {
	var raw string
	p := newGmailTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/users/me/messages/send") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var body struct {
			Raw string `json:"raw"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		raw = body.Raw
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"18c2f","threadId":"18c2f"}`))
	})

	id, err := p.Send(context.Background(), Message{
		From:    "Nova <hello@novatime.top>",
		To:      []string{"bob@example.com"},
		Subject: "Grüße",
		HTML:    "<p>hi</p>",
		ReplyTo: "alice@example.com",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "18c2f" {
		t.Fatalf("id = %q", id)
	}

	decoded, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("raw not base64url: %v", err)
	}
	mimeText := string(decoded)
	for _, want := range []string{
		"From: Nova <hello@novatime.top>\r\n",
		"To: bob@example.com\r\n",
		"Reply-To: alice@example.com\r\n",
		"Subject: =?utf-8?q?",
		"Content-Type: text/html; charset=UTF-8\r\n",
		"\r\n\r\n<p>hi</p>",
	} {
		if !strings.Contains(mimeText, want) {
			t.Fatalf("MIME missing %q:\n%s", want, mimeText)
		}
	}
}

func TestGmailProvider_Send_APIError(t *testing.T) {
	p := newGmailTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"Delegation denied"}}`))
	})
	_, err := p.Send(context.Background(), Message{From: "a@x.com", To: []string{"b@y.com"}, Subject: "s"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 403 || apiErr.Provider != "gmail" {
		t.Fatalf("expected gmail APIError 403, got %v", err)
	}
}

func TestBuildMIME_StripsHeaderBreaks(t *testing.T) {
	out := string(buildMIME(Message{
		From:    "a@x.com",
		To:      []string{"b@y.com"},
		Subject: "s",
		ReplyTo: "c@z.com\r\nBcc: victim@x.com",
	}))
	if strings.Contains(out, "\r\nBcc:") {
		t.Fatalf("header injection not neutralized:\n%s", out)
	}
}

func TestNewGmailProviderFromServiceAccount_Validation(t *testing.T) {
	if _, err := NewGmailProviderFromServiceAccount(context.Background(), nil, "a@x.com"); err == nil {
		t.Fatalf("expected error for empty credentials")
	}
	if _, err := NewGmailProviderFromServiceAccount(context.Background(), []byte(`{}`), " "); err == nil {
		t.Fatalf("expected error for empty mailbox")
	}
	if _, err := NewGmailProviderFromServiceAccount(context.Background(), []byte(`not json`), "a@x.com"); err == nil {
		t.Fatalf("expected error for malformed credentials")
	}
}
