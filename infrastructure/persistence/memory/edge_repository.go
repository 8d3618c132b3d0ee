package memory

import (
	"context"
	"sort"
	"time"

	"trellis-backend/domain/ontology"
	appErrors "trellis-backend/pkg/errors"
)

// EdgeRepository is the in-memory edge persistence implementation
type EdgeRepository struct {
	store *Store
}

// Create persists a new edge together with its create log entry. Both
// endpoints must exist and belong to the owner, and the (source, target,
// type) triple must be unique.
func (r *EdgeRepository) Create(ctx context.Context, edge *ontology.Edge, entry *ontology.LogEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.edges[edge.ID]; exists {
		return appErrors.NewConflictError("edge already exists")
	}
	source, ok := r.store.nodes[edge.SourceID]
	if !ok || source.OwnerID != edge.OwnerID {
		return appErrors.NewNotFoundError("source node")
	}
	target, ok := r.store.nodes[edge.TargetID]
	if !ok || target.OwnerID != edge.OwnerID {
		return appErrors.NewNotFoundError("target node")
	}
	if r.tripleExists(edge.OwnerID, edge.SourceID, edge.TargetID, edge.Type, edge.ID) {
		return appErrors.NewConflictError("edge with this source, target and type already exists")
	}

	r.store.edges[edge.ID] = cloneEdge(edge)
	r.store.appendLog(entry)
	return nil
}

// GetByID retrieves an edge scoped by owner
func (r *EdgeRepository) GetByID(ctx context.Context, ownerID, edgeID string) (*ontology.Edge, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	edge, ok := r.store.edges[edgeID]
	if !ok || edge.OwnerID != ownerID {
		return nil, appErrors.NewNotFoundError("edge")
	}
	return cloneEdge(edge), nil
}

// Exists reports whether an edge with the exact triple already exists
func (r *EdgeRepository) Exists(ctx context.Context, ownerID, sourceID, targetID string, edgeType ontology.EdgeType) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.tripleExists(ownerID, sourceID, targetID, edgeType, ""), nil
}

// UpdateType persists a retyped edge, re-checking triple uniqueness
// against every other edge
func (r *EdgeRepository) UpdateType(ctx context.Context, edge *ontology.Edge, entry *ontology.LogEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.edges[edge.ID]
	if !ok || stored.OwnerID != edge.OwnerID {
		return appErrors.NewNotFoundError("edge")
	}
	if r.tripleExists(edge.OwnerID, edge.SourceID, edge.TargetID, edge.Type, edge.ID) {
		return appErrors.NewConflictError("edge with this source, target and type already exists")
	}
	r.store.edges[edge.ID] = cloneEdge(edge)
	r.store.appendLog(entry)
	return nil
}

// UpdateStatus applies a guarded governance transition, mirroring the
// node repository
func (r *EdgeRepository) UpdateStatus(ctx context.Context, ownerID, edgeID string, from, to ontology.Status, entry *ontology.LogEntry) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.edges[edgeID]
	if !ok || stored.OwnerID != ownerID {
		return false, appErrors.NewNotFoundError("edge")
	}
	if stored.Status != from {
		return false, nil
	}
	stored.Status = to
	stored.UpdatedAt = time.Now()
	r.store.appendLog(entry)
	return true, nil
}

// Delete removes the edge, nulls ledger references to it, and appends the
// delete entry
func (r *EdgeRepository) Delete(ctx context.Context, ownerID, edgeID string, entry *ontology.LogEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.edges[edgeID]
	if !ok || stored.OwnerID != ownerID {
		return appErrors.NewNotFoundError("edge")
	}
	delete(r.store.edges, edgeID)

	for _, logged := range r.store.logs {
		if logged.EdgeID != nil && *logged.EdgeID == edgeID {
			logged.EdgeID = nil
		}
	}

	r.store.appendLog(entry)
	return nil
}

// ListByNodeIDs returns all edges touching any of the given nodes as
// source or target, ordered by id for deterministic traversal expansion
func (r *EdgeRepository) ListByNodeIDs(ctx context.Context, ownerID string, nodeIDs []string, excludeDeprecated bool) ([]*ontology.Edge, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	want := make(map[string]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		want[id] = struct{}{}
	}

	var matched []*ontology.Edge
	for _, edge := range r.store.edges {
		if edge.OwnerID != ownerID {
			continue
		}
		if excludeDeprecated && edge.Status == ontology.StatusDeprecated {
			continue
		}
		_, fromSource := want[edge.SourceID]
		_, fromTarget := want[edge.TargetID]
		if !fromSource && !fromTarget {
			continue
		}
		matched = append(matched, cloneEdge(edge))
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched, nil
}

// tripleExists checks (source, target, type) uniqueness; callers hold at
// least the read lock. excludeID skips the edge being retyped.
func (r *EdgeRepository) tripleExists(ownerID, sourceID, targetID string, edgeType ontology.EdgeType, excludeID string) bool {
	for _, edge := range r.store.edges {
		if edge.ID == excludeID {
			continue
		}
		if edge.OwnerID == ownerID && edge.SourceID == sourceID && edge.TargetID == targetID && edge.Type == edgeType {
			return true
		}
	}
	return false
}
