// Package httpapi exposes the upload, source and publish operations over
// HTTP. Every route under /api/v1 requires a bearer token; /health does not.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"github.com/dmitrijs2005/mediaflow/internal/server/auth"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
	"github.com/dmitrijs2005/mediaflow/internal/server/publish"
	"github.com/dmitrijs2005/mediaflow/internal/server/services"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// TransferAPI is the part of services.TransferService the routes use.
type TransferAPI interface {
	Init(ctx context.Context, userID string, in services.InitTransferInput) (*services.InitTransferResult, error)
	UploadPart(ctx context.Context, userID, id string, partNumber int, body []byte) (*services.PartResult, error)
	Complete(ctx context.Context, userID, id string) (*services.CompleteResult, error)
	Status(ctx context.Context, userID, id string) (*services.TransferStatus, error)
	FindResumable(ctx context.Context, userID, podcastID string) (*services.TransferStatus, error)
	Abort(ctx context.Context, userID, id string) error
}

// SourceAPI is the part of services.SourceService the routes use.
type SourceAPI interface {
	CheckDuplicates(ctx context.Context, userID, podcastID string, fingerprints []string) ([]string, error)
	Create(ctx context.Context, userID string, in services.CreateSourceInput) (*models.Source, error)
	Get(ctx context.Context, userID, id string) (*models.Source, error)
	Process(ctx context.Context, userID, id string) (models.SourceStatus, error)
}

// PublishAPI is the part of publish.Service the routes use.
type PublishAPI interface {
	Init(ctx context.Context, userID string, platform models.Platform, in publish.InitInput) (*models.PublishUpload, error)
	Status(ctx context.Context, userID string, platform models.Platform, id string) (*models.PublishUpload, error)
	Retry(ctx context.Context, userID string, platform models.Platform, id string) (*models.PublishUpload, error)
	Cancel(ctx context.Context, userID string, platform models.Platform, id string) error
}

// Pinger reports whether the database answers.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Server struct {
	address   string
	logger    logging.Logger
	transfers TransferAPI
	sources   SourceAPI
	publisher PublishAPI
	db        Pinger
	tokens    *auth.Verifier
	// maxPartBytes bounds the body read for one part.
	maxPartBytes int64
}

func NewServer(address string, l logging.Logger, t TransferAPI, s SourceAPI, p PublishAPI, db Pinger, jwtSecret []byte, maxPartBytes int64) *Server {
	return &Server{
		address:      address,
		logger:       l.With("module", "http_server"),
		transfers:    t,
		sources:      s,
		publisher:    p,
		db:           db,
		tokens:       auth.NewVerifier(jwtSecret, auth.DefaultLeeway),
		maxPartBytes: maxPartBytes,
	}
}

// Handler builds the router with CORS and panic recovery applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/uploads/init", s.initUpload).Methods(http.MethodPost)
	api.HandleFunc("/uploads/resume", s.resumableUpload).Methods(http.MethodGet)
	api.HandleFunc("/uploads/{id}/part/{n:[0-9]+}", s.uploadPart).Methods(http.MethodPost)
	api.HandleFunc("/uploads/{id}/complete", s.completeUpload).Methods(http.MethodPost)
	api.HandleFunc("/uploads/{id}/status", s.uploadStatus).Methods(http.MethodGet)
	api.HandleFunc("/uploads/{id}", s.abortUpload).Methods(http.MethodDelete)

	api.HandleFunc("/sources/duplicates", s.checkDuplicates).Methods(http.MethodPost)
	api.HandleFunc("/sources", s.createSource).Methods(http.MethodPost)
	api.HandleFunc("/sources/{id}", s.getSource).Methods(http.MethodGet)
	api.HandleFunc("/sources/{id}/process", s.processSource).Methods(http.MethodPost)

	api.HandleFunc("/{platform}/upload/init", s.initPublish).Methods(http.MethodPost)
	api.HandleFunc("/{platform}/upload/{id}/status", s.publishStatus).Methods(http.MethodGet)
	api.HandleFunc("/{platform}/upload/{id}/retry", s.retryPublish).Methods(http.MethodPost)
	api.HandleFunc("/{platform}/upload/{id}", s.cancelPublish).Methods(http.MethodDelete)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	recovery := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))

	return recovery(cors(r))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Warn(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// logRequest writes the access log through the structured logger.
func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.logger.Info(p.Request.Context(), "http request",
		"method", p.Request.Method,
		"path", p.URL.Path,
		"status", p.StatusCode,
		"size", p.Size,
		"duration", time.Since(p.TimeStamp),
	)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           handlers.CustomLoggingHandler(io.Discard, s.Handler(), s.logRequest),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
