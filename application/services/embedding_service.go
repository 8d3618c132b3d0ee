package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"trellis-backend/application/ports"
	"trellis-backend/pkg/observability"
)

// EmbeddingConfig tunes the backfill worker
type EmbeddingConfig struct {
	// BatchSize caps how many nodes one run embeds
	BatchSize int
	// MaxEmbedChars truncates node text before embedding
	MaxEmbedChars int
}

// DefaultEmbeddingConfig returns the standard tuning
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{BatchSize: 50, MaxEmbedChars: 8000}
}

// EmbeddingService computes missing node embeddings. Embeddings are
// ranking artifacts: writing one is maintenance, so it touches neither
// updated_at nor the provenance ledger.
type EmbeddingService struct {
	nodes    ports.NodeRepository
	embedder ports.Embedder
	cfg      EmbeddingConfig
	logger   *zap.Logger
	metrics  *observability.Collector
}

// NewEmbeddingService creates a new embedding service
func NewEmbeddingService(
	nodes ports.NodeRepository,
	embedder ports.Embedder,
	cfg EmbeddingConfig,
	logger *zap.Logger,
	metrics *observability.Collector,
) *EmbeddingService {
	return &EmbeddingService{
		nodes:    nodes,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// BackfillBatch embeds up to one batch of embedding-less nodes, oldest
// first. Per-node capability failures are skipped so one bad document
// cannot wedge the queue; a cancelled context stops the run.
func (s *EmbeddingService) BackfillBatch(ctx context.Context) (int, error) {
	batch, err := s.nodes.ListMissingEmbeddings(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, node := range batch {
		if ctx.Err() != nil {
			break
		}
		text := node.Content
		if strings.TrimSpace(text) == "" {
			text = node.Title
		}
		vector, err := s.embedder.Embed(ctx, truncateRunes(text, s.cfg.MaxEmbedChars))
		if err != nil {
			s.logger.Warn("embedding skipped",
				zap.String("nodeID", node.ID),
				zap.Error(err),
			)
			continue
		}
		if err := s.nodes.UpdateEmbedding(ctx, node.OwnerID, node.ID, vector); err != nil {
			s.logger.Warn("embedding write skipped",
				zap.String("nodeID", node.ID),
				zap.Error(err),
			)
			continue
		}
		s.metrics.EmbeddingsBackfilled.Inc()
		done++
	}

	if backlog, err := s.nodes.CountMissingEmbeddings(ctx); err == nil {
		s.metrics.EmbeddingBacklog.Set(float64(backlog))
	}

	if done > 0 {
		s.logger.Info("embedding backfill batch finished",
			zap.Int("embedded", done),
			zap.Int("batchSize", len(batch)),
		)
	}
	return done, nil
}

// Backlog reports how many nodes still lack an embedding
func (s *EmbeddingService) Backlog(ctx context.Context) (int, error) {
	return s.nodes.CountMissingEmbeddings(ctx)
}
