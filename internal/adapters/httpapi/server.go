// Package httpapi exposes the webhook endpoints and the bot management
// API over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"log/slog"

	"github.com/LugmanS/chatbot/internal/logging"
	"github.com/LugmanS/chatbot/pkg/domain"
	"github.com/LugmanS/chatbot/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EventHandler is the engine surface the webhook needs.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev *domain.Event) error
}

// Server wires the HTTP surface: webhook verification and intake, the
// management API, health, and metrics.
type Server struct {
	events      EventHandler
	bots        ports.BotStore
	flows       ports.FlowStore
	verifyToken string
	logger      *slog.Logger

	wg sync.WaitGroup
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates the HTTP surface around the engine and the stores.
// verifyToken is the webhook verification secret.
func NewServer(events EventHandler, bots ports.BotStore, flows ports.FlowStore, verifyToken string, opts ...ServerOption) *Server {
	s := &Server{
		events:      events,
		bots:        bots,
		flows:       flows,
		verifyToken: verifyToken,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/webhook", s.verifyWebhook)
	r.Post("/webhook", s.receiveEvent)

	r.Route("/api/bots", func(r chi.Router) {
		r.Post("/", s.createBot)
		r.Put("/{botID}/publish", s.publishBot)
		r.Get("/{botID}/flows", s.listFlows)
		r.Post("/{botID}/flows", s.createFlow)
		r.Get("/{botID}/flows/{flowID}", s.getFlow)
		r.Patch("/{botID}/flows/{flowID}", s.updateFlow)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return r
}

// Wait blocks until all detached event-processing tasks finish. Used on
// shutdown and by tests.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}
