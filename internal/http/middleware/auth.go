package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mail-dispatch/internal/auth"
)

// requesterKey is the Gin context key holding the requester's email. The
// logger, rate limiter and idempotency validator read it.
const requesterKey = "userID"

// TokenVerifier validates a bearer token and returns the caller identity.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (auth.Identity, error)
}

// AuthOptions configures Authenticate.
type AuthOptions struct {
	// TrustRequestEmail keys unauthenticated requests by the `email` query
	// parameter or the X-User-Email header. Development only.
	TrustRequestEmail bool
}

// Authenticate verifies "Authorization: Bearer <token>" when present.
//
// A valid token stores the identity in the request context (auth.FromContext)
// and the requester email in the Gin context. An invalid token is rejected
// with 401. Requests without a token pass through; handlers that need an
// identity reject them. A nil verifier disables token checks.
func Authenticate(v TokenVerifier, opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, ok := bearerToken(c.GetHeader("Authorization")); ok && v != nil {
			id, err := v.Verify(c.Request.Context(), raw)
			if err != nil {
				LoggerFrom(c).Debug().Err(err).Msg("identity token rejected")
				rejections.WithLabelValues("invalid_token").Inc()
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"success":    false,
					"request_id": RequestIDFrom(c),
					"code":       "unauthorized",
					"message":    "invalid identity token",
				})
				return
			}
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
			c.Set(requesterKey, id.Email)
			c.Next()
			return
		}

		if opts.TrustRequestEmail {
			claimed := strings.TrimSpace(c.Query("email"))
			if claimed == "" {
				claimed = strings.TrimSpace(c.GetHeader("X-User-Email"))
			}
			if claimed != "" {
				c.Set(requesterKey, claimed)
			}
		}
		c.Next()
	}
}

// RequesterFrom returns the requester email set by Authenticate, if any.
func RequesterFrom(c *gin.Context) string {
	if v, ok := c.Get(requesterKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func bearerToken(h string) (string, bool) {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}
