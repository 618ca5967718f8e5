package auth

import (
	"net/http"

	authlib "github.com/soniam4/carbonfootprint-tracker/pkg/auth"
)

// Middleware enforces bearer-token authentication on incoming requests.
type Middleware struct {
	inner authlib.Middleware
}

// NewMiddleware constructs Middleware with validation config. Health and
// metrics endpoints are public; the calculator accepts anonymous callers.
func NewMiddleware(cfg Config) Middleware {
	skipper := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/metrics" || r.Method == http.MethodOptions
	}
	optional := func(r *http.Request) bool {
		return r.URL.Path == "/v1/calculator"
	}
	return Middleware{inner: authlib.NewMiddleware(cfg, skipper, optional)}
}

// Wrap attaches authentication handling to an http.Handler.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return m.inner.Wrap(next)
}
