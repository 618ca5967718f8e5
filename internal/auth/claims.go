package auth

import (
	"context"
	"errors"
	"fmt"

	authlib "github.com/soniam4/carbonfootprint-tracker/pkg/auth"
)

// Claims mirrors the shared auth claims type for service convenience.
type Claims = authlib.Claims

// Config mirrors the shared auth config.
type Config = authlib.Config

var (
	// ErrUnauthenticated is returned when a request carries no usable identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the caller lacks the scope an operation needs.
	ErrForbidden = errors.New("forbidden")
)

// WithClaims stores the claims in the request context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return authlib.WithClaims(ctx, claims)
}

// FromContext retrieves claims from context.
func FromContext(ctx context.Context) (*Claims, bool) {
	return authlib.FromContext(ctx)
}

// Authorize returns the caller whose activities and recommendations the
// request may touch. The subject is the owning user id, so claims without one
// are unauthenticated. Holding activities:write also grants activities:read.
func Authorize(ctx context.Context, scope string) (*Claims, error) {
	claims, ok := FromContext(ctx)
	if !ok || claims == nil || claims.Subject == "" {
		return nil, ErrUnauthenticated
	}
	if claims.HasScope(scope) {
		return claims, nil
	}
	if scope == ScopeActivitiesRead && claims.HasScope(ScopeActivitiesWrite) {
		return claims, nil
	}
	return nil, fmt.Errorf("%w: scope %s required", ErrForbidden, scope)
}
