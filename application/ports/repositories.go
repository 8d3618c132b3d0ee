package ports

import (
	"context"
	"time"

	"trellis-backend/domain/ontology"
)

// NodeRepository defines the interface for node persistence.
// Mutating methods take the entity together with its ledger entry and must
// apply both in one transaction: the audit entry never exists without its
// state change, and vice versa.
type NodeRepository interface {
	// Create persists a new node and its create log entry
	Create(ctx context.Context, node *ontology.Node, entry *ontology.LogEntry) error

	// GetByID retrieves a node scoped by owner. An id belonging to a
	// different owner is indistinguishable from an unknown id.
	GetByID(ctx context.Context, ownerID, nodeID string) (*ontology.Node, error)

	// GetByIDs retrieves the subset of the given ids that exist and belong
	// to the owner; unknown ids are omitted, not an error
	GetByIDs(ctx context.Context, ownerID string, nodeIDs []string) ([]*ontology.Node, error)

	// List returns a page of the owner's nodes plus the total count
	List(ctx context.Context, ownerID string, q NodeListQuery) ([]*ontology.Node, int, error)

	// Update persists modified fields and the update log entry
	Update(ctx context.Context, node *ontology.Node, entry *ontology.LogEntry) error

	// UpdateStatus applies a governance transition guarded by the expected
	// current status. Returns false without writing the log entry when a
	// concurrent mutation already moved the node away from `from`.
	UpdateStatus(ctx context.Context, ownerID, nodeID string, from, to ontology.Status, entry *ontology.LogEntry) (bool, error)

	// Delete removes the node, cascades every edge touching it, nulls the
	// node/edge references in ledger entries, and appends the delete entry
	Delete(ctx context.Context, ownerID, nodeID string, entry *ontology.LogEntry) error

	// UpdateEmbedding stores a freshly computed similarity vector
	UpdateEmbedding(ctx context.Context, ownerID, nodeID string, embedding []float32) error

	// ListMissingEmbeddings returns nodes whose embedding is absent,
	// oldest first, across owners (backfill worker scope)
	ListMissingEmbeddings(ctx context.Context, limit int) ([]*ontology.Node, error)

	// CountMissingEmbeddings reports the embedding backlog size
	CountMissingEmbeddings(ctx context.Context) (int, error)

	// ListTags returns the owner's distinct tags
	ListTags(ctx context.Context, ownerID string) ([]string, error)
}

// NodeListQuery filters and pages node listings
type NodeListQuery struct {
	Type     ontology.NodeType
	Status   ontology.Status
	Tag      string
	FolderID string
	Limit    int
	Offset   int
}

// EdgeRepository defines the interface for edge persistence
type EdgeRepository interface {
	// Create persists a new edge and its create log entry. Duplicate
	// (source, target, type) triples fail with a conflict error.
	Create(ctx context.Context, edge *ontology.Edge, entry *ontology.LogEntry) error

	// GetByID retrieves an edge scoped by owner
	GetByID(ctx context.Context, ownerID, edgeID string) (*ontology.Edge, error)

	// Exists reports whether an edge with the exact triple already exists
	Exists(ctx context.Context, ownerID, sourceID, targetID string, edgeType ontology.EdgeType) (bool, error)

	// UpdateType persists a retyped edge, re-checking uniqueness
	UpdateType(ctx context.Context, edge *ontology.Edge, entry *ontology.LogEntry) error

	// UpdateStatus mirrors NodeRepository.UpdateStatus for edges
	UpdateStatus(ctx context.Context, ownerID, edgeID string, from, to ontology.Status, entry *ontology.LogEntry) (bool, error)

	// Delete removes the edge, nulls ledger references to it, and appends
	// the delete entry
	Delete(ctx context.Context, ownerID, edgeID string, entry *ontology.LogEntry) error

	// ListByNodeIDs returns all edges touching any of the given nodes as
	// source or target, one adjacency level of a traversal
	ListByNodeIDs(ctx context.Context, ownerID string, nodeIDs []string, excludeDeprecated bool) ([]*ontology.Edge, error)
}

// ScoredNode pairs a node with its retrieval score
type ScoredNode struct {
	Node  *ontology.Node `json:"node"`
	Score float64        `json:"score"`
}

// SearchRepository exposes the store's ranking operators. Both searches
// exclude deprecated nodes, order by score descending with node id as the
// deterministic tie-break, and cap at limit.
type SearchRepository interface {
	// SearchByVector ranks by cosine similarity against stored embeddings;
	// nodes without an embedding never match. Only results with
	// similarity strictly greater than threshold are returned.
	SearchByVector(ctx context.Context, ownerID string, queryVector []float32, threshold float64, limit int) ([]ScoredNode, error)

	// SearchByText ranks by trigram similarity; the rank is the greater of
	// the title match and the content match.
	SearchByText(ctx context.Context, ownerID, query string, limit int) ([]ScoredNode, error)
}

// LogRepository reads and extends the provenance ledger. Entries written
// alongside an entity mutation go through the entity repositories; Append
// is for standalone pipeline entries (extract_graph, summarize,
// link_suggest).
type LogRepository interface {
	// Append adds one entry to the ledger
	Append(ctx context.Context, entry *ontology.LogEntry) error

	// List returns a page of the owner's entries, newest first, plus the
	// total count
	List(ctx context.Context, ownerID string, q LogListQuery) ([]*ontology.LogEntry, int, error)
}

// LogListQuery filters and pages ledger listings. From and To bound the
// entry creation time when non-zero; both bounds are inclusive.
type LogListQuery struct {
	Action ontology.Action
	NodeID string
	EdgeID string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}
