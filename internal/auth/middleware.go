package auth

import (
	"context"
	"net/http"

	"github.com/sifterhq/sifter/internal/models"
)

type contextKey int

const principalContextKey contextKey = iota

// PrincipalFromContext extracts the authenticated principal from the request
// context. Returns nil if no principal is present.
func PrincipalFromContext(ctx context.Context) *models.Principal {
	principal, _ := ctx.Value(principalContextKey).(*models.Principal)
	return principal
}

// WithPrincipal returns a context carrying the given principal. Exposed for
// handler tests that bypass the middleware.
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// ErrorWriter renders a credential failure on the wire. Injected by the
// server package so status mapping stays in one place.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware resolves the Authorization header into a Principal and attaches
// it to the request context. Routes that allow anonymous access are simply
// not wrapped.
type Middleware struct {
	resolver *Resolver
	writeErr ErrorWriter
}

// NewMiddleware creates the authentication middleware.
func NewMiddleware(resolver *Resolver, writeErr ErrorWriter) *Middleware {
	return &Middleware{resolver: resolver, writeErr: writeErr}
}

// Require wraps next with mandatory credential resolution. The request is
// rejected before the handler runs when the credential is missing, invalid,
// or the store cannot answer.
func (m *Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.resolver.Resolve(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			m.writeErr(w, r, err)
			return
		}

		ctx := WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
