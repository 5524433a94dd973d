// Package server exposes the REST API: folder registration, search,
// indexing control, health, and stats.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trentonhq/trenton/internal/app"
	"github.com/trentonhq/trenton/internal/config"
)

// Server is the HTTP front end over the app container.
type Server struct {
	app    *app.App
	logger *slog.Logger
	http   *http.Server
}

// New creates the server with its routes and middleware installed.
func New(a *app.App, cfg config.ServerConfig, logger *slog.Logger) *Server {
	s := &Server{app: a, logger: logger}

	r := mux.NewRouter()
	r.Use(requestID, s.logRequests, measureRequests)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/folders", s.handleListFolders).Methods(http.MethodGet)
	api.HandleFunc("/folders", s.handleRegisterFolder).Methods(http.MethodPost)
	api.HandleFunc("/folders/{id:[0-9]+}", s.handleDeregisterFolder).Methods(http.MethodDelete)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)
	api.HandleFunc("/search/similar/{fileID:[0-9]+}", s.handleFindSimilar).Methods(http.MethodGet)
	api.HandleFunc("/index/trigger", s.handleTriggerIndex).Methods(http.MethodPost)
	api.HandleFunc("/index/status", s.handleIndexStatus).Methods(http.MethodGet)
	api.HandleFunc("/index/status/{id:[0-9]+}", s.handleJobStatus).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: searches against a cold model server can be
		// slow, and the per-request embed timeout already bounds them.
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
