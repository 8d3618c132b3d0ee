package memory

import (
	"context"
	"sort"

	"trellis-backend/application/ports"
	"trellis-backend/domain/ontology"
	appErrors "trellis-backend/pkg/errors"
)

// LogRepository is the in-memory provenance ledger implementation
type LogRepository struct {
	store *Store
}

// Append adds one standalone entry to the ledger
func (r *LogRepository) Append(ctx context.Context, entry *ontology.LogEntry) error {
	if entry == nil {
		return appErrors.NewValidationError("log entry is required")
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.appendLog(entry)
	return nil
}

// List returns a filtered page of the owner's entries, newest first, plus
// the total count before paging
func (r *LogRepository) List(ctx context.Context, ownerID string, q ports.LogListQuery) ([]*ontology.LogEntry, int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var matched []*ontology.LogEntry
	for _, entry := range r.store.logs {
		if entry.OwnerID != ownerID {
			continue
		}
		if q.Action != "" && entry.Action != q.Action {
			continue
		}
		if q.NodeID != "" && (entry.NodeID == nil || *entry.NodeID != q.NodeID) {
			continue
		}
		if q.EdgeID != "" && (entry.EdgeID == nil || *entry.EdgeID != q.EdgeID) {
			continue
		}
		if !q.From.IsZero() && entry.CreatedAt.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && entry.CreatedAt.After(q.To) {
			continue
		}
		matched = append(matched, entry)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	page := paginate(matched, q.Offset, q.Limit)
	out := make([]*ontology.LogEntry, len(page))
	for i, entry := range page {
		out[i] = cloneLogEntry(entry)
	}
	return out, total, nil
}
