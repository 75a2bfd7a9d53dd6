package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultGoogleJWKSURL is where Google publishes its ID token signing keys.
const DefaultGoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

const clockLeeway = 30 * time.Second

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"` // bool, or "true" in older tokens
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// GoogleVerifier checks Google ID tokens against a client id. Signing keys
// come from a JWK Set that is cached and refreshed in the background until
// the context given to NewGoogleVerifier is done.
type GoogleVerifier struct {
	clientID string
	keys     keyfunc.Keyfunc
}

// NewGoogleVerifier builds a verifier for tokens issued to clientID.
// An empty jwksURL uses DefaultGoogleJWKSURL.
func NewGoogleVerifier(ctx context.Context, clientID, jwksURL string) (*GoogleVerifier, error) {
	if strings.TrimSpace(jwksURL) == "" {
		jwksURL = DefaultGoogleJWKSURL
	}
	k, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("load google signing keys: %w", err)
	}
	return &GoogleVerifier{clientID: clientID, keys: k}, nil
}

// Verify validates the token's signature (RS256), audience, issuer and
// expiry, and requires a verified email claim.
func (v *GoogleVerifier) Verify(ctx context.Context, raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	var claims googleClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		v.keys.Keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !googleIssuers[claims.Issuer] {
		return Identity{}, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if strings.TrimSpace(claims.Email) == "" {
		return Identity{}, fmt.Errorf("%w: token carries no email", ErrInvalidToken)
	}
	if !truthy(claims.EmailVerified) {
		return Identity{}, fmt.Errorf("%w: email not verified", ErrInvalidToken)
	}

	return Identity{
		Subject:  claims.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
		Picture:  claims.Picture,
		Verified: true,
	}, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return strings.EqualFold(x, "true")
	default:
		return false
	}
}
