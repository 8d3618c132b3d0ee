package memory

import (
	"context"
	"sort"

	"trellis-backend/application/ports"
	"trellis-backend/domain/ontology"
)

// SearchRepository is the in-memory ranking implementation. It mirrors the
// Postgres operators: cosine distance over pgvector embeddings and pg_trgm
// similarity over title and content.
type SearchRepository struct {
	store *Store
}

// SearchByVector ranks the owner's non-deprecated, embedded nodes by
// cosine similarity. Only results strictly above threshold are returned,
// ordered by score descending with node id as the tie-break.
func (r *SearchRepository) SearchByVector(ctx context.Context, ownerID string, queryVector []float32, threshold float64, limit int) ([]ports.ScoredNode, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var scored []ports.ScoredNode
	for _, node := range r.store.nodes {
		if node.OwnerID != ownerID || node.Status == ontology.StatusDeprecated {
			continue
		}
		if len(node.Embedding) == 0 {
			continue
		}
		score := cosineSimilarity(queryVector, node.Embedding)
		if score <= threshold {
			continue
		}
		scored = append(scored, ports.ScoredNode{Node: cloneNode(node), Score: score})
	}

	sortScored(scored)
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// SearchByText ranks the owner's non-deprecated nodes by trigram
// similarity; the rank is the greater of the title match and the content
// match. Zero-similarity nodes are dropped.
func (r *SearchRepository) SearchByText(ctx context.Context, ownerID, query string, limit int) ([]ports.ScoredNode, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var scored []ports.ScoredNode
	for _, node := range r.store.nodes {
		if node.OwnerID != ownerID || node.Status == ontology.StatusDeprecated {
			continue
		}
		score := trigramSimilarity(query, node.Title)
		if contentScore := trigramSimilarity(query, node.Content); contentScore > score {
			score = contentScore
		}
		if score <= 0 {
			continue
		}
		scored = append(scored, ports.ScoredNode{Node: cloneNode(node), Score: score})
	}

	sortScored(scored)
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func sortScored(scored []ports.ScoredNode) {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Node.ID < scored[j].Node.ID
	})
}
