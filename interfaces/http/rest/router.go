package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"trellis-backend/application/services"
	"trellis-backend/infrastructure/config"
	"trellis-backend/interfaces/http/rest/handlers"
	"trellis-backend/interfaces/http/rest/middleware"
	pkgerrors "trellis-backend/pkg/errors"
	"trellis-backend/pkg/observability"
)

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Router creates and configures the HTTP router
type Router struct {
	nodes      *services.NodeService
	edges      *services.EdgeService
	retrieval  *services.RetrievalService
	extraction *services.ExtractionService
	answers    *services.AnswerService
	governance *services.GovernanceService

	authenticator *middleware.Authenticator
	store         Pinger
	cfg           config.ServerConfig
	metrics       *observability.Collector
	errors        *pkgerrors.ErrorHandler
	logger        *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	nodes *services.NodeService,
	edges *services.EdgeService,
	retrieval *services.RetrievalService,
	extraction *services.ExtractionService,
	answers *services.AnswerService,
	governance *services.GovernanceService,
	authenticator *middleware.Authenticator,
	store Pinger,
	cfg config.ServerConfig,
	metrics *observability.Collector,
	errors *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *Router {
	return &Router{
		nodes:         nodes,
		edges:         edges,
		retrieval:     retrieval,
		extraction:    extraction,
		answers:       answers,
		governance:    governance,
		authenticator: authenticator,
		store:         store,
		cfg:           cfg,
		metrics:       metrics,
		errors:        errors,
		logger:        logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(rt.errors.Recovery)
	router.Use(middleware.Logger(rt.logger))
	router.Use(middleware.Metrics(rt.metrics))

	if rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
		rt.metrics.GetRegistry(),
		promhttp.HandlerOpts{},
	))

	nodeHandler := handlers.NewNodeHandler(rt.nodes, rt.errors, rt.logger)
	edgeHandler := handlers.NewEdgeHandler(rt.edges, rt.errors, rt.logger)
	graphHandler := handlers.NewGraphHandler(rt.retrieval, rt.errors, rt.logger)
	knowledgeHandler := handlers.NewKnowledgeHandler(rt.extraction, rt.answers, rt.errors, rt.logger)
	governanceHandler := handlers.NewGovernanceHandler(rt.governance, rt.errors, rt.logger)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.authenticator.Middleware())

		r.Route("/nodes", func(r chi.Router) {
			r.Post("/", nodeHandler.CreateNode)
			r.Get("/", nodeHandler.ListNodes)
			r.Get("/{nodeID}", nodeHandler.GetNode)
			r.Put("/{nodeID}", nodeHandler.UpdateNode)
			r.Delete("/{nodeID}", nodeHandler.DeleteNode)

			r.Get("/{nodeID}/edges", edgeHandler.ListNodeEdges)
			r.Get("/{nodeID}/neighbors", graphHandler.Neighbors)

			r.Post("/{nodeID}/approve", governanceHandler.ApproveNode)
			r.Post("/{nodeID}/deprecate", governanceHandler.DeprecateNode)
			r.Post("/{nodeID}/suggest-links", governanceHandler.SuggestLinks)
		})

		r.Route("/edges", func(r chi.Router) {
			r.Post("/", edgeHandler.CreateEdge)
			r.Get("/{edgeID}", edgeHandler.GetEdge)
			r.Put("/{edgeID}", edgeHandler.UpdateEdge)
			r.Delete("/{edgeID}", edgeHandler.DeleteEdge)

			r.Post("/{edgeID}/approve", governanceHandler.ApproveEdge)
			r.Post("/{edgeID}/deprecate", governanceHandler.DeprecateEdge)
		})

		r.Get("/search", graphHandler.Search)
		r.Post("/search/vector", graphHandler.SearchByVector)
		r.Get("/tags", nodeHandler.ListTags)
		r.Get("/audit", nodeHandler.ListAudit)

		r.Post("/extract", knowledgeHandler.Extract)
		r.Post("/ask", knowledgeHandler.Ask)
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck reports ready once the store answers a ping
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if rt.store != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := rt.store.Ping(ctx); err != nil {
			rt.logger.Warn("readiness check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
