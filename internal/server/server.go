// Package server exposes the ingestion endpoints and the inbound
// research callback over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/internal/store"
)

// Server routes ingestion and callback traffic onto one Pipeline.
// Uploads run asynchronously in an errgroup so independent tenants'
// pipelines proceed concurrently while each upload's batches stay
// sequential.
type Server struct {
	store    store.Store
	pipeline *pipeline.Pipeline
	uploads  *errgroup.Group
}

// New creates a Server. maxConcurrentUploads bounds how many upload
// pipelines run at once.
func New(st store.Store, p *pipeline.Pipeline, maxConcurrentUploads int) *Server {
	g := &errgroup.Group{}
	if maxConcurrentUploads > 0 {
		g.SetLimit(maxConcurrentUploads)
	}
	return &Server{store: st, pipeline: p, uploads: g}
}

// Router builds the chi router with all endpoints mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Client-ID", "X-User-ID"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/uploads/preview", s.handlePreview)
		r.Post("/uploads", s.handleProcess)
		r.Get("/uploads/{uploadID}", s.handleGetUpload)

		r.Get("/records", s.handleListRecords)
		r.Get("/records/{recordID}", s.handleGetRecord)
		r.Post("/records", s.handleCreateRecord)
		r.Post("/records/{recordID}/retry", s.handleRetryRecord)

		r.Post("/research/callback", s.handleCallback)
	})

	return r
}

// ListenAndServe runs the server until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}

	// Let in-flight upload pipelines drain.
	_ = s.uploads.Wait()
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// owner pulls the tenant/user scoping headers. Authentication itself
// is an upstream concern; these identify who the created rows belong to.
func owner(r *http.Request) (clientID, userID string) {
	clientID = r.Header.Get("X-Client-ID")
	userID = r.Header.Get("X-User-ID")
	if clientID == "" {
		clientID = "default"
	}
	if userID == "" {
		userID = "default"
	}
	return clientID, userID
}
