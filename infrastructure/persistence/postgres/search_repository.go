package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"trellis-backend/application/ports"
	"trellis-backend/domain/ontology"
)

// SearchRepository implements ports.SearchRepository on PostgreSQL.
// Cosine similarity is 1 - (embedding <=> query); lexical rank is the
// greater of the pg_trgm similarity against title and content.
type SearchRepository struct {
	pool *pgxpool.Pool
}

// SearchByVector ranks the owner's embedded, non-deprecated nodes by
// cosine similarity, strictly above threshold.
func (r *SearchRepository) SearchByVector(ctx context.Context, ownerID string, queryVector []float32, threshold float64, limit int) ([]ports.ScoredNode, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+nodeColumns+`, 1 - (embedding <=> $2) AS score
		FROM nodes
		WHERE owner_id = $1
			AND status != $3
			AND embedding IS NOT NULL
			AND 1 - (embedding <=> $2) > $4
		ORDER BY score DESC, id ASC
		LIMIT $5`,
		ownerID, pgvector.NewVector(queryVector), ontology.StatusDeprecated, threshold, limit,
	)
	if err != nil {
		return nil, wrapQueryError("vector search", err)
	}
	defer rows.Close()

	return collectScored(rows)
}

// SearchByText ranks by trigram similarity; zero-similarity rows never match
func (r *SearchRepository) SearchByText(ctx context.Context, ownerID, query string, limit int) ([]ports.ScoredNode, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+nodeColumns+`, GREATEST(similarity(title, $2), similarity(content, $2)) AS score
		FROM nodes
		WHERE owner_id = $1
			AND status != $3
			AND GREATEST(similarity(title, $2), similarity(content, $2)) > 0
		ORDER BY score DESC, id ASC
		LIMIT $4`,
		ownerID, query, ontology.StatusDeprecated, limit,
	)
	if err != nil {
		return nil, wrapQueryError("text search", err)
	}
	defer rows.Close()

	return collectScored(rows)
}

// collectScored scans node rows that carry a trailing score column
func collectScored(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]ports.ScoredNode, error) {
	var results []ports.ScoredNode
	for rows.Next() {
		var (
			node      ontology.Node
			tags      []string
			embedding *pgvector.Vector
			score     float64
		)
		err := rows.Scan(
			&node.ID, &node.OwnerID, &node.Title, &node.Content, &node.Type, &node.Status,
			&tags, &node.FolderID, &node.WordCount,
			&embedding, &node.Provenance.Creator, &node.Provenance.ModelID,
			&node.Provenance.ModelVersion, &node.Provenance.SourceNodeID,
			&node.Provenance.Confidence, &node.Provenance.Method,
			&node.CreatedAt, &node.UpdatedAt,
			&score,
		)
		if err != nil {
			return nil, wrapQueryError("scan search result", err)
		}
		if len(tags) > 0 {
			node.Tags = tags
		}
		if embedding != nil {
			node.Embedding = embedding.Slice()
		}
		results = append(results, ports.ScoredNode{Node: &node, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError("search", err)
	}
	return results, nil
}
