package di

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"trellis-backend/application/ports"
	"trellis-backend/application/services"
	"trellis-backend/infrastructure/ai"
	"trellis-backend/infrastructure/config"
	"trellis-backend/infrastructure/persistence/postgres"
	"trellis-backend/interfaces/http/rest"
	"trellis-backend/interfaces/http/rest/middleware"
	pkgerrors "trellis-backend/pkg/errors"
	"trellis-backend/pkg/observability"
)

// metricsNamespace prefixes every Prometheus series this process exports
const metricsNamespace = "trellis"

// ProvideLogger creates the process logger honoring environment and level
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = level

	return zapCfg.Build()
}

// ProvideCollector creates the Prometheus metrics collector
func ProvideCollector() *observability.Collector {
	return observability.NewCollector(metricsNamespace)
}

// ProvidePool connects the PostgreSQL pool
func ProvidePool(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	return postgres.Connect(ctx, postgres.Config{
		DSN:                 cfg.Database.DSN,
		MaxConns:            cfg.Database.MaxConns,
		MinConns:            cfg.Database.MinConns,
		ConnectTimeout:      cfg.Database.ConnectTimeout,
		MaxConnLifetime:     cfg.Database.MaxConnLifetime,
		EmbeddingDimensions: cfg.AI.EmbeddingDimensions,
	}, logger)
}

// ProvideStore creates the repository bundle on top of the pool
func ProvideStore(pool *pgxpool.Pool) *postgres.Store {
	return postgres.NewStore(pool)
}

// ProvideNodeRepository exposes the node repository port
func ProvideNodeRepository(store *postgres.Store) ports.NodeRepository {
	return store.Nodes()
}

// ProvideEdgeRepository exposes the edge repository port
func ProvideEdgeRepository(store *postgres.Store) ports.EdgeRepository {
	return store.Edges()
}

// ProvideLogRepository exposes the provenance ledger port
func ProvideLogRepository(store *postgres.Store) ports.LogRepository {
	return store.Logs()
}

// ProvideSearchRepository exposes the search port
func ProvideSearchRepository(store *postgres.Store) ports.SearchRepository {
	return store.Search()
}

// ProvideAIProvider creates the OpenAI-compatible capability client
func ProvideAIProvider(cfg *config.Config, logger *zap.Logger, metrics *observability.Collector) *ai.Provider {
	return ai.NewProvider(ai.ProviderConfig{
		BaseURL:                 cfg.AI.BaseURL,
		APIKey:                  cfg.AI.APIKey,
		CompletionModel:         cfg.AI.CompletionModel,
		CompletionModelVersion:  cfg.AI.CompletionModelVersion,
		EmbeddingModel:          cfg.AI.EmbeddingModel,
		EmbeddingDimensions:     cfg.AI.EmbeddingDimensions,
		RequestTimeout:          cfg.AI.RequestTimeout,
		BreakerMaxRequests:      cfg.AI.BreakerMaxRequests,
		BreakerInterval:         cfg.AI.BreakerInterval,
		BreakerTimeout:          cfg.AI.BreakerTimeout,
		BreakerFailureThreshold: cfg.AI.BreakerFailureThreshold,
		BreakerMinRequests:      cfg.AI.BreakerMinRequests,
	}, logger, metrics)
}

// ProvideEmbedder wraps the provider with the embedding cache
func ProvideEmbedder(provider *ai.Provider, cfg *config.Config, metrics *observability.Collector) ports.Embedder {
	return ai.NewCachingEmbedder(provider, cfg.AI.EmbedCacheTTL, cfg.AI.EmbedCacheCleanup, metrics)
}

// ProvideCompleter exposes the completion port
func ProvideCompleter(provider *ai.Provider) ports.Completer {
	return provider
}

// ProvideModelRef resolves the model identity stamped into AI provenance
func ProvideModelRef(provider *ai.Provider) ports.ModelRef {
	return provider.ModelRef()
}

// ProvideRetrievalConfig maps tuning knobs onto the retrieval bounds
func ProvideRetrievalConfig(cfg *config.Config) services.RetrievalConfig {
	return services.RetrievalConfig{
		DefaultSimilarityThreshold: cfg.Tuning.SimilarityThreshold,
		DefaultSearchLimit:         cfg.Tuning.SearchLimit,
		MaxSearchLimit:             cfg.Tuning.MaxSearchLimit,
		MaxTraversalDepth:          cfg.Tuning.MaxTraversalDepth,
		MaxEmbedChars:              cfg.Tuning.MaxEmbedChars,
	}
}

// ProvideAnswerConfig maps tuning knobs onto the answer pipeline
func ProvideAnswerConfig(cfg *config.Config) services.AnswerConfig {
	return services.AnswerConfig{
		SimilarityThreshold: cfg.Tuning.AnswerSimilarityThreshold,
		TopK:                cfg.Tuning.AnswerTopK,
		NeighborDepth:       cfg.Tuning.AnswerNeighborDepth,
		Temperature:         cfg.Tuning.AnswerTemperature,
		MaxCompletionTokens: cfg.Tuning.AnswerMaxTokens,
	}
}

// ProvideExtractionConfig maps tuning knobs onto the extraction pipeline
func ProvideExtractionConfig(cfg *config.Config) services.ExtractionConfig {
	return services.ExtractionConfig{
		Temperature:         cfg.Tuning.ExtractionTemperature,
		MaxCompletionTokens: cfg.Tuning.ExtractionMaxTokens,
	}
}

// ProvideGovernanceConfig maps tuning knobs onto link suggestion
func ProvideGovernanceConfig(cfg *config.Config) services.GovernanceConfig {
	return services.GovernanceConfig{
		SuggestThreshold:    cfg.Tuning.SuggestThreshold,
		SuggestCandidates:   cfg.Tuning.SuggestCandidates,
		Temperature:         cfg.Tuning.SuggestTemperature,
		MaxCompletionTokens: cfg.Tuning.SuggestMaxTokens,
	}
}

// ProvideEmbeddingConfig maps tuning knobs onto the backfill worker
func ProvideEmbeddingConfig(cfg *config.Config) services.EmbeddingConfig {
	return services.EmbeddingConfig{
		BatchSize:     cfg.Tuning.EmbedBatchSize,
		MaxEmbedChars: cfg.Tuning.MaxEmbedChars,
	}
}

// ProvideNodeService creates the node lifecycle service
func ProvideNodeService(
	nodes ports.NodeRepository,
	logs ports.LogRepository,
	logger *zap.Logger,
	metrics *observability.Collector,
) *services.NodeService {
	return services.NewNodeService(nodes, logs, logger, metrics)
}

// ProvideEdgeService creates the edge lifecycle service
func ProvideEdgeService(
	nodes ports.NodeRepository,
	edges ports.EdgeRepository,
	logger *zap.Logger,
	metrics *observability.Collector,
) *services.EdgeService {
	return services.NewEdgeService(nodes, edges, logger, metrics)
}

// ProvideRetrievalService creates the retrieval service
func ProvideRetrievalService(
	nodes ports.NodeRepository,
	edges ports.EdgeRepository,
	search ports.SearchRepository,
	embedder ports.Embedder,
	cfg services.RetrievalConfig,
	logger *zap.Logger,
	metrics *observability.Collector,
) *services.RetrievalService {
	return services.NewRetrievalService(nodes, edges, search, embedder, cfg, logger, metrics)
}

// ProvideExtractionService creates the extraction pipeline
func ProvideExtractionService(
	nodes ports.NodeRepository,
	edges ports.EdgeRepository,
	logs ports.LogRepository,
	completer ports.Completer,
	model ports.ModelRef,
	cfg services.ExtractionConfig,
	logger *zap.Logger,
	metrics *observability.Collector,
) *services.ExtractionService {
	return services.NewExtractionService(nodes, edges, logs, completer, model, cfg, logger, metrics)
}

// ProvideAnswerService creates the question answering pipeline
func ProvideAnswerService(
	retrieval *services.RetrievalService,
	completer ports.Completer,
	logs ports.LogRepository,
	model ports.ModelRef,
	cfg services.AnswerConfig,
	logger *zap.Logger,
	metrics *observability.Collector,
) *services.AnswerService {
	return services.NewAnswerService(retrieval, completer, logs, model, cfg, logger, metrics)
}

// ProvideGovernanceService creates the lifecycle and suggestion service
func ProvideGovernanceService(
	nodes ports.NodeRepository,
	edges ports.EdgeRepository,
	logs ports.LogRepository,
	retrieval *services.RetrievalService,
	completer ports.Completer,
	model ports.ModelRef,
	cfg services.GovernanceConfig,
	logger *zap.Logger,
	metrics *observability.Collector,
) *services.GovernanceService {
	return services.NewGovernanceService(nodes, edges, logs, retrieval, completer, model, cfg, logger, metrics)
}

// ProvideEmbeddingService creates the embedding backfill worker
func ProvideEmbeddingService(
	nodes ports.NodeRepository,
	embedder ports.Embedder,
	cfg services.EmbeddingConfig,
	logger *zap.Logger,
	metrics *observability.Collector,
) *services.EmbeddingService {
	return services.NewEmbeddingService(nodes, embedder, cfg, logger, metrics)
}

// ProvideErrorHandler creates the HTTP error responder. Stack traces and
// causes are only exposed outside production.
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *pkgerrors.ErrorHandler {
	return pkgerrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideAuthenticator creates the request authentication middleware.
// The dev fallback identity is only permitted outside production.
func ProvideAuthenticator(cfg *config.Config, logger *zap.Logger) (*middleware.Authenticator, error) {
	return middleware.NewAuthenticator(cfg.Auth, !cfg.IsProduction(), logger)
}

// ProvideRouter assembles the HTTP surface
func ProvideRouter(
	nodes *services.NodeService,
	edges *services.EdgeService,
	retrieval *services.RetrievalService,
	extraction *services.ExtractionService,
	answers *services.AnswerService,
	governance *services.GovernanceService,
	authenticator *middleware.Authenticator,
	store *postgres.Store,
	cfg *config.Config,
	metrics *observability.Collector,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *rest.Router {
	return rest.NewRouter(
		nodes,
		edges,
		retrieval,
		extraction,
		answers,
		governance,
		authenticator,
		store,
		cfg.Server,
		metrics,
		errorHandler,
		logger,
	)
}
