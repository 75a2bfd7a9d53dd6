// Package handlers exposes the mail dispatch HTTP endpoints:
//   - POST /send      (dispatch one email, quota-checked)
//   - GET  /history   (list the caller's send records)
//   - GET  /quota     (today's usage and remaining sends)
//   - GET  /health, /readyz
//
// Handlers are transport-thin: they bind and normalize input, establish the
// requester identity, delegate to application services and translate
// service errors into the JSON error envelope.
package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mail-dispatch/internal/auth"
	"github.com/tbourn/go-mail-dispatch/internal/domain"
	"github.com/tbourn/go-mail-dispatch/internal/services"
)

//
// Service contracts (context-aware)
//

// Dispatcher runs one quota-checked send attempt.
type Dispatcher interface {
	Dispatch(ctx context.Context, req services.DispatchRequest) (*services.DispatchResult, error)
}

// HistoryReader reads a user's send records.
type HistoryReader interface {
	// Lookup resolves an email to an existing user (services.ErrUserNotFound otherwise).
	Lookup(ctx context.Context, email string) (*domain.User, error)
	// ListPage returns a page of records, newest first, plus the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.SendRecord, int64, error)
	// Stats returns the record count and newest sent_at, used for ETags.
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
}

// QuotaReader reports today's usage.
type QuotaReader interface {
	Summary(ctx context.Context, email string) (*services.QuotaSummary, error)
}

// ReplayStore tracks which record an Idempotency-Key produced. A key is
// reserved before dispatch and completed with the record id afterwards.
type ReplayStore interface {
	// Replay returns the record stored for a completed (owner, scope, key).
	Replay(ctx context.Context, owner, scope, key string) (*domain.SendRecord, bool)
	// Reserve claims the key; false means another request holds it.
	Reserve(ctx context.Context, owner, scope, key string) (bool, error)
	// Complete binds recordID to a reserved key.
	Complete(ctx context.Context, owner, scope, key, recordID string) error
	// Release drops a reservation after a failed dispatch.
	Release(ctx context.Context, owner, scope, key string) error
}

// Pinger checks a dependency for readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

//
// Handler wiring
//

// Options carries the optional collaborators of Handlers.
type Options struct {
	// Replays enables Idempotency-Key handling on POST /send.
	Replays ReplayStore
	// DailyLimit is reported in quota rejections and replays.
	DailyLimit int
	// Ready backs GET /readyz; nil means always ready.
	Ready Pinger
	// TrustRequestEmail accepts the email supplied in the request body or
	// query when no verified identity is present. Development only.
	TrustRequestEmail bool
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	dispatch Dispatcher
	history  HistoryReader
	quota    QuotaReader
	opts     Options
}

// New constructs a Handlers instance bound to the given services.
func New(d Dispatcher, h HistoryReader, q QuotaReader, opts Options) *Handlers {
	return &Handlers{dispatch: d, history: h, quota: q, opts: opts}
}

// requester returns the caller identity. A verified identity from the auth
// middleware always wins; the claimed email is used only when the handlers
// were configured to trust it.
func (h *Handlers) requester(c *gin.Context, claimed string) (auth.Identity, bool) {
	if id, ok := auth.FromContext(c.Request.Context()); ok {
		return id, true
	}
	claimed = strings.TrimSpace(claimed)
	if h.opts.TrustRequestEmail && claimed != "" {
		return auth.Identity{Email: claimed}, true
	}
	return auth.Identity{}, false
}
