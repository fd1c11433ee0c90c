package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// POST /analyze bodies are capped at maxRecordBytes per allowed record
// plus a fixed envelope, so a batch is rejected before it is buffered.
const (
	maxRecordBytes   = 4 << 10
	maxEnvelopeBytes = 1 << 10
)

// Deps are the collaborators the HTTP layer serves.
type Deps struct {
	Repository   domain.Repository
	Cache        domain.Cache
	Bus          domain.EventBus
	Orchestrator *pipeline.Orchestrator
	Loader       *rules.Loader
	Compiler     *rules.ExpressionCompiler
	Metrics      *metrics.Metrics

	// Gatherer backs GET /metrics; the route is omitted when nil.
	Gatherer prometheus.Gatherer
	Version  string
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(MetricsMiddleware(deps.Metrics))
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if deps.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// Batch analysis
	bodyLimit := int64(deps.Orchestrator.MaxBatchSize())*maxRecordBytes + maxEnvelopeBytes
	router.With(middleware.RequestSize(bodyLimit)).Post("/analyze", handler.Analyze)
	router.Post("/batches/{batchId}/retry", handler.RetryBatch)

	router.Get("/transactions/{id}", handler.GetTransaction)
	router.Get("/transactions/{id}/scorecards", handler.ListScorecards)

	// Party graph
	router.Get("/graph/nodes/{partyId}", handler.GetNode)
	router.Get("/graph/nodes/{partyId}/edges", handler.ListEdges)
	router.Get("/graph/edges/{from}/{to}", handler.GetEdge)

	// Rule catalog
	router.Get("/rules", handler.ListRules)
	router.Post("/rules", handler.CreateRule)
	router.Post("/rules/reload", handler.ReloadRules)

	router.Put("/profiles/{partyId}", handler.PutProfile)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
