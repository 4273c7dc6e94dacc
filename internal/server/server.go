// Package server exposes the classification gateway as a JSON HTTP API.
package server

import (
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/sifterhq/sifter/internal/auth"
	"github.com/sifterhq/sifter/internal/detect"
	httpmiddleware "github.com/sifterhq/sifter/internal/http"
	"github.com/sifterhq/sifter/internal/store"
	"github.com/sifterhq/sifter/internal/usage"
)

// Server wires the request pipeline: credential resolution, license gating,
// segmentation, detection fan-out, and usage accounting.
type Server struct {
	orgs         store.OrganizationStore
	users        store.UserStore
	gate         *auth.Gate
	middleware   *auth.Middleware
	orchestrator *detect.Orchestrator
	updater      *usage.Updater
}

// NewServer creates a server over the given stores and orchestrator.
func NewServer(orgs store.OrganizationStore, users store.UserStore, orchestrator *detect.Orchestrator) *Server {
	s := &Server{
		orgs:         orgs,
		users:        users,
		gate:         auth.NewGate(orgs),
		orchestrator: orchestrator,
		updater:      usage.NewUpdater(users),
	}
	s.middleware = auth.NewMiddleware(auth.NewResolver(orgs, users), s.writeError)
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler(log zerolog.Logger, corsOrigins []string, limiter *httpmiddleware.RateLimiter) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
	})

	mux.HandleFunc("POST /org/register", s.handleOrgRegister)
	mux.Handle("POST /org/users", s.middleware.Require(http.HandlerFunc(s.handleCreateUser)))
	mux.Handle("GET /org/users", s.middleware.Require(http.HandlerFunc(s.handleListUsers)))

	mux.Handle("POST /predict/spam", s.middleware.Require(http.HandlerFunc(s.handlePredictSpam)))
	mux.Handle("POST /predict/phishing", s.middleware.Require(http.HandlerFunc(s.handlePredictPhishing)))
	mux.Handle("POST /predict/spam-phishing", s.middleware.Require(http.HandlerFunc(s.handlePredictSpamPhishing)))

	var handler http.Handler = mux
	handler = withCORS(corsOrigins, handler)
	if limiter != nil {
		handler = limiter.Middleware()(handler)
	}
	handler = httpmiddleware.RequestLogger(log)(handler)
	handler = httpmiddleware.ClientIPMiddleware()(handler)

	return handler
}

// withCORS adds CORS support for browser-based API clients.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return middleware.Handler(h)
}
