// Package server exposes the live view, sort and filter controls, and the signal
// history over HTTP, plus the websocket feed.
package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rewired-gh/strikewatch/internal/models"
	"github.com/rewired-gh/strikewatch/internal/monitor"
)

// SignalStore reads the flagged-strike history.
type SignalStore interface {
	GetRecentSignals(k int) ([]models.SignalRecord, error)
}

// Server holds the handler dependencies. Signals and WS may be nil.
type Server struct {
	controller *monitor.Controller
	signals    SignalStore
	ws         http.HandlerFunc
	logger     *zap.Logger
}

func NewServer(controller *monitor.Controller, signals SignalStore, ws http.HandlerFunc, logger *zap.Logger) *Server {
	return &Server{
		controller: controller,
		signals:    signals,
		ws:         ws,
		logger:     logger,
	}
}

func NewRouter(server *Server, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(corsOrigins))
	r.Use(zapLoggerMiddleware(server.logger))

	r.Get("/healthz", server.handleHealth)
	if server.ws != nil {
		r.Get("/ws", server.ws)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Compress(5))
		api.Get("/view", server.handleGetView)
		api.Post("/view/sort", server.handleSort)
		api.Post("/view/filter", server.handleFilter)
		api.Get("/signals", server.handleSignals)
	})

	return r
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := "*"
	if len(origins) > 0 {
		allowed = strings.Join(origins, ", ")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "*")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.String("requestID", middleware.GetReqID(r.Context())),
			)
			next.ServeHTTP(w, r)
		})
	}
}
