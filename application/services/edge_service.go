package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trellis-backend/application/ports"
	"trellis-backend/domain/ontology"
	"trellis-backend/pkg/observability"
)

// EdgeService provides edge lifecycle operations
type EdgeService struct {
	nodes   ports.NodeRepository
	edges   ports.EdgeRepository
	logger  *zap.Logger
	metrics *observability.Collector
}

// NewEdgeService creates a new edge service
func NewEdgeService(
	nodes ports.NodeRepository,
	edges ports.EdgeRepository,
	logger *zap.Logger,
	metrics *observability.Collector,
) *EdgeService {
	return &EdgeService{
		nodes:   nodes,
		edges:   edges,
		logger:  logger,
		metrics: metrics,
	}
}

// CreateEdge validates and persists a new edge together with its create
// log entry. Both endpoints must exist and belong to the owner; the
// (source, target, type) triple must not already exist.
func (s *EdgeService) CreateEdge(ctx context.Context, ownerID string, params ontology.NewEdgeParams) (*ontology.Edge, error) {
	edge, err := ontology.NewEdge(ownerID, params)
	if err != nil {
		return nil, err
	}

	if _, err := s.nodes.GetByID(ctx, ownerID, edge.SourceID); err != nil {
		return nil, err
	}
	if _, err := s.nodes.GetByID(ctx, ownerID, edge.TargetID); err != nil {
		return nil, err
	}

	entry, err := ontology.NewLogEntry(ownerID, ontology.ActionCreate, edge.Provenance.Creator)
	if err != nil {
		return nil, fmt.Errorf("failed to build create log entry: %w", err)
	}
	entry.WithEdge(edge.ID).
		WithModel(edge.Provenance.ModelID, edge.Provenance.ModelVersion).
		WithSnapshots(nil, edge.Snapshot())

	if err := s.edges.Create(ctx, edge, entry); err != nil {
		return nil, err
	}

	s.metrics.EdgesCreated.Inc()
	s.logger.Info("edge created",
		zap.String("edgeID", edge.ID),
		zap.String("source", edge.SourceID),
		zap.String("target", edge.TargetID),
		zap.String("type", string(edge.Type)),
		zap.Float64("weight", edge.Weight),
	)
	return edge, nil
}

// GetEdge retrieves an edge scoped by owner
func (s *EdgeService) GetEdge(ctx context.Context, ownerID, edgeID string) (*ontology.Edge, error) {
	return s.edges.GetByID(ctx, ownerID, edgeID)
}

// ListEdgesForNode returns every edge touching the node as source or target
func (s *EdgeService) ListEdgesForNode(ctx context.Context, ownerID, nodeID string, excludeDeprecated bool) ([]*ontology.Edge, error) {
	if _, err := s.nodes.GetByID(ctx, ownerID, nodeID); err != nil {
		return nil, err
	}
	return s.edges.ListByNodeIDs(ctx, ownerID, []string{nodeID}, excludeDeprecated)
}

// UpdateEdgeType retypes an edge, re-checking the (source, target, type)
// uniqueness invariant, and writes the update log entry
func (s *EdgeService) UpdateEdgeType(ctx context.Context, ownerID, edgeID string, newType ontology.EdgeType) (*ontology.Edge, error) {
	edge, err := s.edges.GetByID(ctx, ownerID, edgeID)
	if err != nil {
		return nil, err
	}

	before := edge.Snapshot()
	if _, err := edge.ChangeType(newType); err != nil {
		return nil, err
	}
	edge.UpdatedAt = time.Now()

	entry, err := ontology.NewLogEntry(ownerID, ontology.ActionUpdate, ontology.ActorUser)
	if err != nil {
		return nil, fmt.Errorf("failed to build update log entry: %w", err)
	}
	entry.WithEdge(edge.ID).WithSnapshots(before, edge.Snapshot())

	if err := s.edges.UpdateType(ctx, edge, entry); err != nil {
		return nil, err
	}

	s.logger.Info("edge retyped",
		zap.String("edgeID", edge.ID),
		zap.String("type", string(edge.Type)),
	)
	return edge, nil
}

// DeleteEdge removes the edge; ledger entries that referenced it survive
// with the reference nulled
func (s *EdgeService) DeleteEdge(ctx context.Context, ownerID, edgeID string) error {
	edge, err := s.edges.GetByID(ctx, ownerID, edgeID)
	if err != nil {
		return err
	}

	entry, err := ontology.NewLogEntry(ownerID, ontology.ActionDelete, ontology.ActorUser)
	if err != nil {
		return fmt.Errorf("failed to build delete log entry: %w", err)
	}
	entry.WithSnapshots(edge.Snapshot(), nil).
		WithMetadata(map[string]interface{}{"edge_id": edgeID})

	if err := s.edges.Delete(ctx, ownerID, edgeID, entry); err != nil {
		return err
	}

	s.logger.Info("edge deleted", zap.String("edgeID", edgeID))
	return nil
}
