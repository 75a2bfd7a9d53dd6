// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header on unsafe requests. A valid
// key is stashed in the Gin context for handlers (GetIdempotencyKey). When a
// lookup is configured and the requester already completed a request with the
// same key, the request is flagged as a replay (IsReplay) and excluded from
// rate limiting.
//
// Keys are scoped per requester: the same key sent by two different users
// never collides. Requests without a known requester skip the lookup.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key stored by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the requester already completed a request with
// this key.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Nil uses ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Scope names the operation a key belongs to. Empty derives it from the
	// last segment of the matched route ("/api/v1/send" → "send").
	Scope string
}

// IdempotencyLookup reports whether (owner, scope, key) already produced a
// stored result that is still valid. Errors are treated as a miss.
type IdempotencyLookup func(ctx context.Context, owner, scope, key string) (exists bool, err error)

// IdempotencyValidator validates and stashes the Idempotency-Key header.
// Invalid keys are rejected with 400; absent keys pass through untouched.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			rejections.WithLabelValues("bad_idempotency_key").Inc()
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success":    false,
				"request_id": RequestIDFrom(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		owner := RequesterFrom(c)
		if lookup != nil && owner != "" {
			scope := opts.Scope
			if scope == "" {
				scope = routeScope(c)
			}
			if exists, err := lookup(c.Request.Context(), owner, scope, key); err == nil && exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// routeScope returns the last segment of the matched route.
func routeScope(c *gin.Context) string {
	p := strings.TrimRight(c.FullPath(), "/")
	if p == "" {
		p = strings.TrimRight(c.Request.URL.Path, "/")
	}
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
