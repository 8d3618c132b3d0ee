// Package services implements the application operations over the ontology
// graph: node and edge lifecycle, retrieval, extraction, question
// answering, governance and embedding maintenance. Services validate
// through the domain constructors and pair every mutation with its
// provenance log entry.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"trellis-backend/application/ports"
	"trellis-backend/domain/ontology"
	"trellis-backend/pkg/observability"
)

// NodeService provides node lifecycle operations
type NodeService struct {
	nodes   ports.NodeRepository
	logs    ports.LogRepository
	logger  *zap.Logger
	metrics *observability.Collector
}

// NewNodeService creates a new node service
func NewNodeService(
	nodes ports.NodeRepository,
	logs ports.LogRepository,
	logger *zap.Logger,
	metrics *observability.Collector,
) *NodeService {
	return &NodeService{
		nodes:   nodes,
		logs:    logs,
		logger:  logger,
		metrics: metrics,
	}
}

// CreateNode validates and persists a new node together with its create
// log entry. Status is derived from the provenance creator inside the
// domain constructor; callers cannot request it.
func (s *NodeService) CreateNode(ctx context.Context, ownerID string, params ontology.NewNodeParams) (*ontology.Node, error) {
	node, err := ontology.NewNode(ownerID, params)
	if err != nil {
		return nil, err
	}

	entry, err := ontology.NewLogEntry(ownerID, ontology.ActionCreate, node.Provenance.Creator)
	if err != nil {
		return nil, fmt.Errorf("failed to build create log entry: %w", err)
	}
	entry.WithNode(node.ID).
		WithModel(node.Provenance.ModelID, node.Provenance.ModelVersion).
		WithSnapshots(nil, node.Snapshot())

	if err := s.nodes.Create(ctx, node, entry); err != nil {
		return nil, err
	}

	s.metrics.NodesCreated.Inc()
	s.logger.Info("node created",
		zap.String("nodeID", node.ID),
		zap.String("type", string(node.Type)),
		zap.String("status", string(node.Status)),
		zap.String("creator", string(node.Provenance.Creator)),
	)
	return node, nil
}

// GetNode retrieves a node scoped by owner
func (s *NodeService) GetNode(ctx context.Context, ownerID, nodeID string) (*ontology.Node, error) {
	return s.nodes.GetByID(ctx, ownerID, nodeID)
}

// ListNodes returns a filtered page of the owner's nodes plus the total count
func (s *NodeService) ListNodes(ctx context.Context, ownerID string, q ports.NodeListQuery) ([]*ontology.Node, int, error) {
	// stored tags are lowercase, so the filter matches case-insensitively
	q.Tag = strings.ToLower(strings.TrimSpace(q.Tag))
	return s.nodes.List(ctx, ownerID, q)
}

// ListTags returns the owner's distinct tags
func (s *NodeService) ListTags(ctx context.Context, ownerID string) ([]string, error) {
	return s.nodes.ListTags(ctx, ownerID)
}

// UpdateNode applies a partial update, recomputing word count and clearing
// the stale embedding when content changed, and writes the update log
// entry with before/after snapshots.
func (s *NodeService) UpdateNode(ctx context.Context, ownerID, nodeID string, update ontology.NodeUpdate) (*ontology.Node, error) {
	node, err := s.nodes.GetByID(ctx, ownerID, nodeID)
	if err != nil {
		return nil, err
	}

	before := node.Snapshot()
	if _, err := node.ApplyUpdate(update); err != nil {
		return nil, err
	}
	node.UpdatedAt = time.Now()

	entry, err := ontology.NewLogEntry(ownerID, ontology.ActionUpdate, ontology.ActorUser)
	if err != nil {
		return nil, fmt.Errorf("failed to build update log entry: %w", err)
	}
	entry.WithNode(node.ID).WithSnapshots(before, node.Snapshot())

	if err := s.nodes.Update(ctx, node, entry); err != nil {
		return nil, err
	}

	s.logger.Info("node updated", zap.String("nodeID", node.ID))
	return node, nil
}

// DeleteNode removes the node and cascades to every edge touching it.
// Ledger entries that referenced the removed entities survive with their
// reference nulled; the delete entry itself carries the id in metadata and
// the last state in its before snapshot.
func (s *NodeService) DeleteNode(ctx context.Context, ownerID, nodeID string) error {
	node, err := s.nodes.GetByID(ctx, ownerID, nodeID)
	if err != nil {
		return err
	}

	entry, err := ontology.NewLogEntry(ownerID, ontology.ActionDelete, ontology.ActorUser)
	if err != nil {
		return fmt.Errorf("failed to build delete log entry: %w", err)
	}
	entry.WithSnapshots(node.Snapshot(), nil).
		WithMetadata(map[string]interface{}{"node_id": nodeID})

	if err := s.nodes.Delete(ctx, ownerID, nodeID, entry); err != nil {
		return err
	}

	s.metrics.NodesDeleted.Inc()
	s.logger.Info("node deleted", zap.String("nodeID", nodeID))
	return nil
}

// ListAudit returns a page of the owner's provenance ledger
func (s *NodeService) ListAudit(ctx context.Context, ownerID string, q ports.LogListQuery) ([]*ontology.LogEntry, int, error) {
	return s.logs.List(ctx, ownerID, q)
}
