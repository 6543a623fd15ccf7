// Package server exposes a site's directory over HTTP for a browser map
// front end: collection listings, refreshes, filtered search and the POI
// layer as GeoJSON.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gscoppino/STEM/internal/factory"
	"github.com/gscoppino/STEM/internal/logger"
)

// Server timeouts
const (
	ReadTimeout     = 30 * time.Second
	WriteTimeout    = 60 * time.Second
	IdleTimeout     = 120 * time.Second
	ShutdownTimeout = 10 * time.Second
)

// Server serves one directory.
type Server struct {
	dir    *factory.Directory
	router *chi.Mux
}

// New creates a server over dir and mounts its routes.
func New(dir *factory.Directory) *Server {
	s := &Server{dir: dir, router: chi.NewRouter()}

	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(requestLog)
	s.router.Use(chimw.Recoverer)

	s.router.Get("/health", s.health)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/collections", s.listCollections)
		r.Route("/collections/{name}", func(r chi.Router) {
			r.Get("/", s.getCollection)
			r.Post("/refresh", s.refreshCollection)
			r.Get("/search", s.searchCollection)
		})
		r.Get("/filters", s.listFilters)
		r.Post("/filters/{title}/toggle", s.toggleFilter)
		r.Get("/pois.geojson", s.poisGeoJSON)
	})

	return s
}

// ServeHTTP implements http.Handler so the server can be used directly in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server shutting down", slog.String("addr", addr))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// requestLog logs each request with its chi request id.
func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Debug("http request",
			slog.String("request_id", chimw.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    http.StatusText(status),
			"code":    status,
		},
	})
}
