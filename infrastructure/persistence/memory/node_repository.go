package memory

import (
	"context"
	"sort"
	"time"

	"trellis-backend/application/ports"
	"trellis-backend/domain/ontology"
	appErrors "trellis-backend/pkg/errors"
)

// NodeRepository is the in-memory node persistence implementation
type NodeRepository struct {
	store *Store
}

// Create persists a new node together with its create log entry
func (r *NodeRepository) Create(ctx context.Context, node *ontology.Node, entry *ontology.LogEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.nodes[node.ID]; exists {
		return appErrors.NewConflictError("node already exists")
	}
	r.store.nodes[node.ID] = cloneNode(node)
	r.store.appendLog(entry)
	return nil
}

// GetByID retrieves a node scoped by owner
func (r *NodeRepository) GetByID(ctx context.Context, ownerID, nodeID string) (*ontology.Node, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	node, ok := r.store.nodes[nodeID]
	if !ok || node.OwnerID != ownerID {
		return nil, appErrors.NewNotFoundError("node")
	}
	return cloneNode(node), nil
}

// GetByIDs retrieves the subset of the given ids owned by ownerID
func (r *NodeRepository) GetByIDs(ctx context.Context, ownerID string, nodeIDs []string) ([]*ontology.Node, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*ontology.Node, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		node, ok := r.store.nodes[id]
		if !ok || node.OwnerID != ownerID {
			continue
		}
		out = append(out, cloneNode(node))
	}
	return out, nil
}

// List returns a filtered, paginated page of the owner's nodes plus the
// total count before paging. Results order newest first with id as the
// tie-break so pages are stable.
func (r *NodeRepository) List(ctx context.Context, ownerID string, q ports.NodeListQuery) ([]*ontology.Node, int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var matched []*ontology.Node
	for _, node := range r.store.nodes {
		if node.OwnerID != ownerID {
			continue
		}
		if q.Type != "" && node.Type != q.Type {
			continue
		}
		if q.Status != "" && node.Status != q.Status {
			continue
		}
		if q.Tag != "" && !hasTag(node.Tags, q.Tag) {
			continue
		}
		if q.FolderID != "" && node.FolderID != q.FolderID {
			continue
		}
		matched = append(matched, node)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	page := paginate(matched, q.Offset, q.Limit)
	out := make([]*ontology.Node, len(page))
	for i, node := range page {
		out[i] = cloneNode(node)
	}
	return out, total, nil
}

// Update persists modified fields together with the update log entry
func (r *NodeRepository) Update(ctx context.Context, node *ontology.Node, entry *ontology.LogEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.nodes[node.ID]
	if !ok || stored.OwnerID != node.OwnerID {
		return appErrors.NewNotFoundError("node")
	}
	r.store.nodes[node.ID] = cloneNode(node)
	r.store.appendLog(entry)
	return nil
}

// UpdateStatus applies a guarded governance transition. The log entry is
// written only when the guard matches the stored status.
func (r *NodeRepository) UpdateStatus(ctx context.Context, ownerID, nodeID string, from, to ontology.Status, entry *ontology.LogEntry) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.nodes[nodeID]
	if !ok || stored.OwnerID != ownerID {
		return false, appErrors.NewNotFoundError("node")
	}
	if stored.Status != from {
		return false, nil
	}
	stored.Status = to
	stored.UpdatedAt = time.Now()
	r.store.appendLog(entry)
	return true, nil
}

// Delete removes the node, cascades every edge touching it, nulls ledger
// references to the removed entities, and appends the delete entry.
func (r *NodeRepository) Delete(ctx context.Context, ownerID, nodeID string, entry *ontology.LogEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.nodes[nodeID]
	if !ok || stored.OwnerID != ownerID {
		return appErrors.NewNotFoundError("node")
	}
	delete(r.store.nodes, nodeID)

	var cascaded []string
	for id, edge := range r.store.edges {
		if edge.SourceID == nodeID || edge.TargetID == nodeID {
			cascaded = append(cascaded, id)
			delete(r.store.edges, id)
		}
	}

	removedEdges := make(map[string]struct{}, len(cascaded))
	for _, id := range cascaded {
		removedEdges[id] = struct{}{}
	}
	for _, logged := range r.store.logs {
		if logged.NodeID != nil && *logged.NodeID == nodeID {
			logged.NodeID = nil
		}
		if logged.EdgeID != nil {
			if _, gone := removedEdges[*logged.EdgeID]; gone {
				logged.EdgeID = nil
			}
		}
	}

	r.store.appendLog(entry)
	return nil
}

// UpdateEmbedding stores a computed vector. No ledger entry and no
// updated_at bump: backfill is maintenance, not an authored change.
func (r *NodeRepository) UpdateEmbedding(ctx context.Context, ownerID, nodeID string, embedding []float32) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.nodes[nodeID]
	if !ok || stored.OwnerID != ownerID {
		return appErrors.NewNotFoundError("node")
	}
	stored.Embedding = make([]float32, len(embedding))
	copy(stored.Embedding, embedding)
	return nil
}

// ListMissingEmbeddings returns embedding-less, non-deprecated nodes
// oldest first across all owners
func (r *NodeRepository) ListMissingEmbeddings(ctx context.Context, limit int) ([]*ontology.Node, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var missing []*ontology.Node
	for _, node := range r.store.nodes {
		if len(node.Embedding) == 0 && node.Status != ontology.StatusDeprecated {
			missing = append(missing, node)
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		if !missing[i].CreatedAt.Equal(missing[j].CreatedAt) {
			return missing[i].CreatedAt.Before(missing[j].CreatedAt)
		}
		return missing[i].ID < missing[j].ID
	})
	if limit > 0 && len(missing) > limit {
		missing = missing[:limit]
	}
	out := make([]*ontology.Node, len(missing))
	for i, node := range missing {
		out[i] = cloneNode(node)
	}
	return out, nil
}

// CountMissingEmbeddings reports the backlog size
func (r *NodeRepository) CountMissingEmbeddings(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	count := 0
	for _, node := range r.store.nodes {
		if len(node.Embedding) == 0 && node.Status != ontology.StatusDeprecated {
			count++
		}
	}
	return count, nil
}

// ListTags returns the owner's distinct tags in lexical order
func (r *NodeRepository) ListTags(ctx context.Context, ownerID string) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, node := range r.store.nodes {
		if node.OwnerID != ownerID {
			continue
		}
		for _, tag := range node.Tags {
			seen[tag] = struct{}{}
		}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, nil
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if tag == want {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
