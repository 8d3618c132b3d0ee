//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"trellis-backend/application/services"
	"trellis-backend/infrastructure/config"
	"trellis-backend/infrastructure/persistence/postgres"
	"trellis-backend/interfaces/http/rest"
	"trellis-backend/interfaces/http/rest/middleware"
	pkgerrors "trellis-backend/pkg/errors"
	"trellis-backend/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	Pool    *pgxpool.Pool
	Store   *postgres.Store
	Metrics *observability.Collector

	NodeService       *services.NodeService
	EdgeService       *services.EdgeService
	RetrievalService  *services.RetrievalService
	ExtractionService *services.ExtractionService
	AnswerService     *services.AnswerService
	GovernanceService *services.GovernanceService
	EmbeddingService  *services.EmbeddingService

	ErrorHandler  *pkgerrors.ErrorHandler
	Authenticator *middleware.Authenticator
	Router        *rest.Router
}

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideCollector,
	ProvidePool,
	ProvideStore,
	ProvideNodeRepository,
	ProvideEdgeRepository,
	ProvideLogRepository,
	ProvideSearchRepository,
	ProvideAIProvider,
	ProvideEmbedder,
	ProvideCompleter,
	ProvideModelRef,
	ProvideRetrievalConfig,
	ProvideAnswerConfig,
	ProvideExtractionConfig,
	ProvideGovernanceConfig,
	ProvideEmbeddingConfig,
	ProvideNodeService,
	ProvideEdgeService,
	ProvideRetrievalService,
	ProvideExtractionService,
	ProvideAnswerService,
	ProvideGovernanceService,
	ProvideEmbeddingService,
	ProvideErrorHandler,
	ProvideAuthenticator,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
