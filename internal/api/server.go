// Package api exposes job submission, status, cancellation and results over
// HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Boomnana/test-agent/internal/ingest"
	"github.com/Boomnana/test-agent/internal/jobs"
	"github.com/Boomnana/test-agent/internal/model"
	"github.com/Boomnana/test-agent/internal/pipeline"
)

const shutdownTimeout = 30 * time.Second

// Analyzer runs the analysis for one job.
type Analyzer interface {
	Run(ctx context.Context, jobID string, src ingest.Source, logf pipeline.Logf) (string, error)
}

// JobManager is the part of jobs.Manager the API needs.
type JobManager interface {
	Submit(task jobs.Task) string
	Status(id string) model.JobStatus
	Cancel(id string) model.CancelResult
	List() []model.JobStatus
}

// Options configures a Server.
type Options struct {
	AllowedOrigins []string
	UploadDir      string
	MaxUploadBytes int64
	ReportsDir     string
	// ReportsPath is the URL path the report directory is served under.
	ReportsPath string
}

// Server routes API requests to the job manager.
type Server struct {
	opts     Options
	jobs     JobManager
	analyzer Analyzer
	router   *chi.Mux
}

// NewServer builds the router.
func NewServer(opts Options, jm JobManager, analyzer Analyzer) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	s := &Server{opts: opts, jobs: jm, analyzer: analyzer, router: r}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleCreateJob)
			r.Get("/", s.handleListJobs)
			r.Get("/{id}", s.handleGetJob)
			r.Delete("/{id}", s.handleCancelJob)
			r.Get("/{id}/result", s.handleGetResult)
		})
	})

	if s.opts.ReportsDir != "" && strings.HasPrefix(s.opts.ReportsPath, "/") {
		prefix := "/" + strings.Trim(s.opts.ReportsPath, "/")
		fs := http.StripPrefix(prefix, http.FileServer(http.Dir(s.opts.ReportsDir)))
		s.router.Handle(prefix+"/*", fs)
	}
}

func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			zap.L().Info("api: request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// Start serves on port until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("api: failed to shutdown server", zap.Error(err))
		}
	}()

	zap.L().Info("api: starting server", zap.Int("port", port))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "api: listen")
	}
	return nil
}
