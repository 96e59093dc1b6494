package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/palletscan/palletscan/pkg/config"
	"github.com/palletscan/palletscan/pkg/health"
	"github.com/palletscan/palletscan/pkg/log"
	"github.com/palletscan/palletscan/pkg/metrics"
	"github.com/palletscan/palletscan/pkg/types"
)

// Store is the slice of the result store the API reads from
type Store interface {
	GetResult(ctx context.Context, taskID string) (*types.ResultPayload, error)
	GetTaskMetadata(ctx context.Context, taskID string) (*types.TaskMetadata, error)
	ListAllResults(ctx context.Context, limit int) ([]*types.TaskMetadata, error)
	ListResultsByStatus(ctx context.Context, status types.TaskStatus, limit int) ([]*types.TaskMetadata, error)
	ListResultsByPeriod(ctx context.Context, start, end time.Time, limit int) ([]*types.TaskMetadata, error)
	CountTasks(ctx context.Context, status types.TaskStatus) (int, error)
	GetStorageStats(ctx context.Context) (*types.StorageStats, error)
	HealthCheck(ctx context.Context) *types.HealthReport
}

// Cache is the fallback read path for in-flight tasks
type Cache interface {
	GetProgress(ctx context.Context, taskID string) (types.ProgressState, bool, error)
}

// Bus accepts new jobs and exposes worker introspection
type Bus interface {
	Enqueue(ctx context.Context, imagePath string, metadata map[string]string, cfg *types.JobConfig) (string, error)
	InspectWorkers() (messages int, consumers int, err error)
}

// Server is the HTTP ingress
type Server struct {
	cfg    *config.Config
	store  Store
	cache  Cache
	bus    Bus
	router chi.Router
	http   *http.Server
	logger zerolog.Logger
}

// NewServer wires the ingress around its dependencies
func NewServer(cfg *config.Config, store Store, cache Cache, bus Bus) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		cache:  cache,
		bus:    bus,
		logger: log.WithComponent("api"),
	}
	s.router = s.buildRouter()
	s.http = &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/images/upload", s.instrument("upload", s.handleUpload))
		r.Get("/results/{task_id}", s.instrument("get_result", s.handleGetResult))
		r.Get("/results", s.instrument("list_results", s.handleListResults))
		r.Get("/health", s.instrument("health", s.handleHealth))
		r.Get("/stats", s.instrument("stats", s.handleStats))
	})
	r.Handle("/metrics", metrics.Handler())

	return r
}

// Handler exposes the router, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until it is shut down
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.cfg.APIAddr).Msg("API server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop drains in-flight requests and shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("API server shutting down")
	return s.http.Shutdown(ctx)
}

// healthCheckers builds the aggregate legs from the wired dependencies
func (s *Server) healthCheckers() []health.Checker {
	return []health.Checker{
		health.NewStoreChecker(s.store),
		health.NewBusChecker(s.bus),
		health.NewDirsChecker(s.cfg.UploadsDir, s.cfg.QRCropsDir, s.cfg.ProcessedImagesDir),
	}
}
