// Package rpc mounts the RPC surface spec.md §6 names (events.getHistory,
// events.getSince, events.append, message.delete, model.switch,
// model.list) as a chi-routed HTTP API, plus the WebSocket streaming
// endpoint internal/orchestrator.Broadcaster serves.
//
// Grounded on the teacher's internal/server package: chi router +
// go-chi/cors + the standard middleware stack (RequestID/Logger/
// Recoverer/RealIP), its ErrorResponse/ErrorDetail envelope shape
// (response.go), and its route-registration style
// (routes.go). Diverges from the teacher by mapping errors onto this
// core's own closed error-code set instead of the teacher's
// (INVALID_REQUEST/PROVIDER_ERROR/RATE_LIMITED/...), since this RPC
// surface is a direct mapping of spec.md §6, not a general-purpose
// coding-agent API.
package rpc

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mhismail3/tron-sub003/internal/linearizer"
	"github.com/mhismail3/tron-sub003/internal/orchestrator"
	"github.com/mhismail3/tron-sub003/internal/store"
)

// Config configures the HTTP mount.
type Config struct {
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig matches the teacher's DefaultConfig, minus SSE-specific
// knobs this core doesn't carry (WriteTimeout stays 0 for the
// WebSocket streaming endpoint).
func DefaultConfig() Config {
	return Config{EnableCORS: true, ReadTimeout: 30 * time.Second, WriteTimeout: 0}
}

// Server mounts the RPC surface over an already-running core: Event
// Store for reads, Linearizer for durable writes, and the Orchestrator
// for the WebSocket streaming endpoint.
type Server struct {
	cfg         Config
	router      *chi.Mux
	store       *store.Store
	linearizer  *linearizer.Linearizer
	broadcaster *orchestrator.Broadcaster
}

// New wires the RPC surface's routes onto a fresh chi.Mux.
func New(cfg Config, s *store.Store, lin *linearizer.Linearizer, orch *orchestrator.Orchestrator) *Server {
	srv := &Server{
		cfg:         cfg,
		router:      chi.NewRouter(),
		store:       s,
		linearizer:  lin,
		broadcaster: orchestrator.NewBroadcaster(orch),
	}
	srv.setupMiddleware()
	srv.setupRoutes()
	return srv
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.cfg.EnableCORS {
		// AllowCredentials stays false: this surface authenticates via the
		// Authorization header (explicitly listed below), not browser-managed
		// cookies, so it doesn't need the credentialed-request dance — and
		// go-chi/cors would otherwise have to stop honoring the wildcard
		// AllowedOrigins and start reflecting the request's Origin verbatim,
		// which would let any origin make credentialed cross-origin requests.
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Route("/sessions/{sessionID}/events", func(r chi.Router) {
		r.Get("/", s.eventsGetHistory)
		r.Get("/since", s.eventsGetSince)
		r.Post("/", s.eventsAppend)
	})

	r.Delete("/sessions/{sessionID}/messages/{eventID}", s.messageDelete)

	r.Route("/sessions/{sessionID}/model", func(r chi.Router) {
		r.Post("/switch", s.modelSwitch)
	})
	r.Get("/models", s.modelList)

	r.Get("/sessions/{sessionID}/stream", s.sessionStream)
}

// Router returns the underlying chi.Mux, for mounting under a larger
// application router or driving directly with net/http/httptest.
func (s *Server) Router() *chi.Mux {
	return s.router
}
