// Package access turns request credentials into an explicit authorization
// capability that is passed to entry points instead of read from ambient
// session state.
package access

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized is returned by operations invoked without a granted capability.
var ErrUnauthorized = errors.New("unauthorized")

// Grant is the "is the user authorized to proceed" signal. The zero value denies.
type Grant struct {
	allowed bool
	subject string
}

// Allow returns a granted capability for subject.
func Allow(subject string) Grant { return Grant{allowed: true, subject: subject} }

// Deny returns a refused capability.
func Deny() Grant { return Grant{} }

// Allowed reports whether the capability was granted.
func (g Grant) Allowed() bool { return g.allowed }

// Subject identifies who was granted, for logs.
func (g Grant) Subject() string { return g.subject }

// Check returns ErrUnauthorized unless the capability was granted.
func (g Grant) Check() error {
	if !g.allowed {
		return ErrUnauthorized
	}
	return nil
}

// Authorizer decides a Grant from an incoming request.
type Authorizer interface {
	Authorize(r *http.Request) Grant
}

// TokenAuthorizer grants requests carrying a static bearer token.
// An empty token denies everything unless Disabled is set.
type TokenAuthorizer struct {
	Token    string
	Disabled bool
}

// Authorize implements Authorizer.
func (a TokenAuthorizer) Authorize(r *http.Request) Grant {
	if a.Disabled {
		return Allow("anonymous")
	}
	if a.Token == "" {
		return Deny()
	}
	got, ok := bearerToken(r)
	if !ok {
		return Deny()
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.Token)) != 1 {
		return Deny()
	}
	return Allow("token")
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type grantKey struct{}

// WithGrant stores g on ctx.
func WithGrant(ctx context.Context, g Grant) context.Context {
	return context.WithValue(ctx, grantKey{}, g)
}

// FromContext returns the Grant stored on ctx, or a denial.
func FromContext(ctx context.Context) Grant {
	g, _ := ctx.Value(grantKey{}).(Grant)
	return g
}
