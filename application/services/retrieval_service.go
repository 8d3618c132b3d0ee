package services

import (
	"context"

	"go.uber.org/zap"

	"trellis-backend/application/ports"
	"trellis-backend/domain/ontology"
	appErrors "trellis-backend/pkg/errors"
	"trellis-backend/pkg/observability"
)

// Traversal directions relative to the node being expanded
const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
)

// Neighbor is one entry of a neighborhood traversal: the reached node, the
// edge it was reached through, and the hop count from the origin.
type Neighbor struct {
	Node      *ontology.Node    `json:"node"`
	EdgeID    string            `json:"edge_id"`
	EdgeType  ontology.EdgeType `json:"edge_type"`
	Weight    float64           `json:"weight"`
	Direction string            `json:"direction"`
	Depth     int               `json:"depth"`
}

// RetrievalConfig bounds the retrieval primitives
type RetrievalConfig struct {
	// DefaultSimilarityThreshold is the vector search floor when the
	// caller does not supply one
	DefaultSimilarityThreshold float64
	// DefaultSearchLimit caps result sets when the caller does not ask
	DefaultSearchLimit int
	// MaxSearchLimit is the hard cap on caller-supplied limits
	MaxSearchLimit int
	// MaxTraversalDepth clamps neighborhood traversal depth
	MaxTraversalDepth int
	// MaxEmbedChars truncates text before it is sent for embedding
	MaxEmbedChars int
}

// DefaultRetrievalConfig returns the standard bounds
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		DefaultSimilarityThreshold: 0.5,
		DefaultSearchLimit:         10,
		MaxSearchLimit:             50,
		MaxTraversalDepth:          3,
		MaxEmbedChars:              8000,
	}
}

// RetrievalService exposes the three ranking primitives: vector search,
// lexical search and neighborhood traversal. They are independent reads;
// composition happens in the callers, never in here.
type RetrievalService struct {
	nodes    ports.NodeRepository
	edges    ports.EdgeRepository
	search   ports.SearchRepository
	embedder ports.Embedder
	cfg      RetrievalConfig
	logger   *zap.Logger
	metrics  *observability.Collector
}

// NewRetrievalService creates a new retrieval service
func NewRetrievalService(
	nodes ports.NodeRepository,
	edges ports.EdgeRepository,
	search ports.SearchRepository,
	embedder ports.Embedder,
	cfg RetrievalConfig,
	logger *zap.Logger,
	metrics *observability.Collector,
) *RetrievalService {
	return &RetrievalService{
		nodes:    nodes,
		edges:    edges,
		search:   search,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// SearchByVector ranks the owner's nodes by cosine similarity against the
// given query vector. Deprecated nodes and similarities at or below the
// threshold are excluded.
func (s *RetrievalService) SearchByVector(ctx context.Context, ownerID string, queryVector []float32, threshold float64, limit int) ([]ports.ScoredNode, error) {
	if len(queryVector) == 0 {
		return nil, appErrors.NewValidationError("query vector cannot be empty")
	}
	if threshold <= 0 {
		threshold = s.cfg.DefaultSimilarityThreshold
	}
	limit = s.clampLimit(limit)

	s.metrics.Searches.WithLabelValues("vector").Inc()
	return s.search.SearchByVector(ctx, ownerID, queryVector, threshold, limit)
}

// SearchSemantic embeds the query text and runs a vector search with it
func (s *RetrievalService) SearchSemantic(ctx context.Context, ownerID, query string, threshold float64, limit int) ([]ports.ScoredNode, error) {
	if query == "" {
		return nil, appErrors.NewValidationError("query cannot be empty")
	}

	vector, err := s.embedder.Embed(ctx, truncateRunes(query, s.cfg.MaxEmbedChars))
	if err != nil {
		return nil, appErrors.NewCapabilityError("embedding", err)
	}
	return s.SearchByVector(ctx, ownerID, vector, threshold, limit)
}

// SearchByText ranks the owner's nodes by trigram similarity against title
// and content; the rank is the greater of the two. Deprecated nodes are
// excluded.
func (s *RetrievalService) SearchByText(ctx context.Context, ownerID, query string, limit int) ([]ports.ScoredNode, error) {
	if query == "" {
		return nil, appErrors.NewValidationError("query cannot be empty")
	}
	limit = s.clampLimit(limit)

	s.metrics.Searches.WithLabelValues("text").Inc()
	return s.search.SearchByText(ctx, ownerID, query, limit)
}

// NeighborContext walks the undirected adjacency implied by directed
// edges, breadth-first from the origin, up to depth hops. Deprecated edges
// and deprecated nodes are invisible: they are neither returned nor
// traversed through. A node reached at a shallower depth is never
// revisited, and the origin is never part of the result even when a cycle
// leads back to it.
func (s *RetrievalService) NeighborContext(ctx context.Context, ownerID, nodeID string, depth int) ([]Neighbor, error) {
	if depth < 1 {
		depth = 1
	}
	if depth > s.cfg.MaxTraversalDepth {
		depth = s.cfg.MaxTraversalDepth
	}

	if _, err := s.nodes.GetByID(ctx, ownerID, nodeID); err != nil {
		return nil, err
	}

	type discovery struct {
		nodeID    string
		edge      *ontology.Edge
		direction string
	}

	visited := map[string]bool{nodeID: true}
	frontier := []string{nodeID}
	var out []Neighbor

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		edges, err := s.edges.ListByNodeIDs(ctx, ownerID, frontier, true)
		if err != nil {
			return nil, err
		}

		inFrontier := make(map[string]bool, len(frontier))
		for _, id := range frontier {
			inFrontier[id] = true
		}

		// Edges arrive ordered by id, so the first edge to reach a node
		// claims it and the expansion is deterministic.
		var found []discovery
		for _, edge := range edges {
			if inFrontier[edge.SourceID] && !visited[edge.TargetID] {
				visited[edge.TargetID] = true
				found = append(found, discovery{edge.TargetID, edge, DirectionOutgoing})
			}
			if inFrontier[edge.TargetID] && !visited[edge.SourceID] {
				visited[edge.SourceID] = true
				found = append(found, discovery{edge.SourceID, edge, DirectionIncoming})
			}
		}
		if len(found) == 0 {
			break
		}

		ids := make([]string, len(found))
		for i, d := range found {
			ids[i] = d.nodeID
		}
		neighborNodes, err := s.nodes.GetByIDs(ctx, ownerID, ids)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]*ontology.Node, len(neighborNodes))
		for _, n := range neighborNodes {
			byID[n.ID] = n
		}

		var next []string
		for _, d := range found {
			node, ok := byID[d.nodeID]
			if !ok || node.Status == ontology.StatusDeprecated {
				// stays in the visited set so no deeper path re-reaches it
				continue
			}
			out = append(out, Neighbor{
				Node:      node,
				EdgeID:    d.edge.ID,
				EdgeType:  d.edge.Type,
				Weight:    d.edge.Weight,
				Direction: d.direction,
				Depth:     level,
			})
			next = append(next, d.nodeID)
		}
		frontier = next
	}

	s.metrics.TraversalDepth.Observe(float64(depth))
	return out, nil
}

func (s *RetrievalService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultSearchLimit
	}
	if limit > s.cfg.MaxSearchLimit {
		return s.cfg.MaxSearchLimit
	}
	return limit
}

// truncateRunes cuts s to at most n runes
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
