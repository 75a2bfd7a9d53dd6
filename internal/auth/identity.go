// Package auth verifies caller identity for the HTTP layer.
//
// The service accepts Google ID tokens (the credential produced by the
// Google sign-in widget). A verified token yields an Identity that travels
// in the request context; handlers read it instead of trusting any email
// the client put in the body or query string.
package auth

import (
	"context"
	"errors"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid identity token")

// Identity is the authenticated caller.
type Identity struct {
	Subject  string // stable provider user id ("sub")
	Email    string
	Name     string
	Picture  string
	Verified bool // false when the identity was taken from the request in development mode
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.Email != ""
}
