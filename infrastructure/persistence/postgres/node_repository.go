package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"trellis-backend/application/ports"
	"trellis-backend/domain/ontology"
	appErrors "trellis-backend/pkg/errors"
)

const nodeColumns = `id, owner_id, title, content, node_type, status, tags, folder_id, word_count,
	embedding, created_by, model_id, model_version, source_node_id, confidence, method,
	created_at, updated_at`

// NodeRepository implements ports.NodeRepository on PostgreSQL
type NodeRepository struct {
	pool *pgxpool.Pool
}

func scanNode(row rowScanner) (*ontology.Node, error) {
	var (
		node      ontology.Node
		tags      []string
		embedding *pgvector.Vector
	)
	err := row.Scan(
		&node.ID, &node.OwnerID, &node.Title, &node.Content, &node.Type, &node.Status,
		&tags, &node.FolderID, &node.WordCount,
		&embedding, &node.Provenance.Creator, &node.Provenance.ModelID,
		&node.Provenance.ModelVersion, &node.Provenance.SourceNodeID,
		&node.Provenance.Confidence, &node.Provenance.Method,
		&node.CreatedAt, &node.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		node.Tags = tags
	}
	if embedding != nil {
		node.Embedding = embedding.Slice()
	}
	return &node, nil
}

// nodeEmbeddingParam renders the nullable vector column value
func nodeEmbeddingParam(v []float32) interface{} {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

// nodeTagsParam keeps the jsonb column a real array even for nil tags
func nodeTagsParam(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// Create inserts the node and its ledger entry in one transaction
func (r *NodeRepository) Create(ctx context.Context, node *ontology.Node, entry *ontology.LogEntry) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO nodes (`+nodeColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			node.ID, node.OwnerID, node.Title, node.Content, node.Type, node.Status,
			nodeTagsParam(node.Tags), node.FolderID, node.WordCount,
			nodeEmbeddingParam(node.Embedding), node.Provenance.Creator, node.Provenance.ModelID,
			node.Provenance.ModelVersion, node.Provenance.SourceNodeID,
			node.Provenance.Confidence, node.Provenance.Method,
			node.CreatedAt, node.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return appErrors.NewConflictError("node with this id already exists")
			}
			return err
		}
		return insertLog(ctx, tx, entry)
	})
	return wrapQueryError("create node", err)
}

// GetByID retrieves a node scoped by owner
func (r *NodeRepository) GetByID(ctx context.Context, ownerID, nodeID string) (*ontology.Node, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		WHERE id = $1 AND owner_id = $2`,
		nodeID, ownerID,
	)
	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, appErrors.NewNotFoundError("node")
		}
		return nil, wrapQueryError("get node", err)
	}
	return node, nil
}

// GetByIDs retrieves the owner's subset of the given ids
func (r *NodeRepository) GetByIDs(ctx context.Context, ownerID string, nodeIDs []string) ([]*ontology.Node, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		WHERE owner_id = $1 AND id = ANY($2)`,
		ownerID, nodeIDs,
	)
	if err != nil {
		return nil, wrapQueryError("get nodes", err)
	}
	defer rows.Close()

	var nodes []*ontology.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, wrapQueryError("get nodes", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError("get nodes", err)
	}
	return nodes, nil
}

// List returns a page of the owner's nodes plus the total count
func (r *NodeRepository) List(ctx context.Context, ownerID string, q ports.NodeListQuery) ([]*ontology.Node, int, error) {
	var (
		where = []string{"owner_id = $1"}
		args  = []interface{}{ownerID}
	)
	addFilter := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if q.Type != "" {
		addFilter("node_type = $%d", q.Type)
	}
	if q.Status != "" {
		addFilter("status = $%d", q.Status)
	}
	if q.Tag != "" {
		addFilter("tags ? $%d", q.Tag)
	}
	if q.FolderID != "" {
		addFilter("folder_id = $%d", q.FolderID)
	}
	condition := strings.Join(where, " AND ")

	var total int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM nodes WHERE "+condition, args...).Scan(&total)
	if err != nil {
		return nil, 0, wrapQueryError("count nodes", err)
	}

	query := "SELECT " + nodeColumns + " FROM nodes WHERE " + condition + " ORDER BY created_at DESC, id ASC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, wrapQueryError("list nodes", err)
	}
	defer rows.Close()

	var nodes []*ontology.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, 0, wrapQueryError("list nodes", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapQueryError("list nodes", err)
	}
	return nodes, total, nil
}

// Update persists modified fields and the update entry in one transaction
func (r *NodeRepository) Update(ctx context.Context, node *ontology.Node, entry *ontology.LogEntry) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE nodes
			SET title = $3, content = $4, node_type = $5, tags = $6, folder_id = $7,
				word_count = $8, embedding = $9, updated_at = $10
			WHERE id = $1 AND owner_id = $2`,
			node.ID, node.OwnerID, node.Title, node.Content, node.Type,
			nodeTagsParam(node.Tags), node.FolderID, node.WordCount,
			nodeEmbeddingParam(node.Embedding), node.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return appErrors.NewNotFoundError("node")
		}
		return insertLog(ctx, tx, entry)
	})
	return wrapQueryError("update node", err)
}

// UpdateStatus applies a transition guarded by the expected current status
func (r *NodeRepository) UpdateStatus(ctx context.Context, ownerID, nodeID string, from, to ontology.Status, entry *ontology.LogEntry) (bool, error) {
	applied := false
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE nodes SET status = $4, updated_at = now()
			WHERE id = $1 AND owner_id = $2 AND status = $3`,
			nodeID, ownerID, from, to,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			// distinguish a lost race from an unknown node
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM nodes WHERE id = $1 AND owner_id = $2)`,
				nodeID, ownerID,
			).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return appErrors.NewNotFoundError("node")
			}
			return nil
		}
		applied = true
		return insertLog(ctx, tx, entry)
	})
	return applied, wrapQueryError("update node status", err)
}

// Delete removes the node and appends the delete entry. Edge cascade and
// ledger reference nulling ride on the schema's foreign keys.
func (r *NodeRepository) Delete(ctx context.Context, ownerID, nodeID string, entry *ontology.LogEntry) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM nodes WHERE id = $1 AND owner_id = $2`,
			nodeID, ownerID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return appErrors.NewNotFoundError("node")
		}
		return insertLog(ctx, tx, entry)
	})
	return wrapQueryError("delete node", err)
}

// UpdateEmbedding stores a vector without touching updated_at
func (r *NodeRepository) UpdateEmbedding(ctx context.Context, ownerID, nodeID string, embedding []float32) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE nodes SET embedding = $3
		WHERE id = $1 AND owner_id = $2`,
		nodeID, ownerID, nodeEmbeddingParam(embedding),
	)
	if err != nil {
		return wrapQueryError("update embedding", err)
	}
	if tag.RowsAffected() == 0 {
		return appErrors.NewNotFoundError("node")
	}
	return nil
}

// ListMissingEmbeddings returns embedding-less nodes, oldest first.
// Deprecated nodes never rank, so they are not worth embedding.
func (r *NodeRepository) ListMissingEmbeddings(ctx context.Context, limit int) ([]*ontology.Node, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		WHERE embedding IS NULL AND status != $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`,
		ontology.StatusDeprecated, limit,
	)
	if err != nil {
		return nil, wrapQueryError("list missing embeddings", err)
	}
	defer rows.Close()

	var nodes []*ontology.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, wrapQueryError("list missing embeddings", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError("list missing embeddings", err)
	}
	return nodes, nil
}

// CountMissingEmbeddings reports the backlog size
func (r *NodeRepository) CountMissingEmbeddings(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM nodes
		WHERE embedding IS NULL AND status != $1`,
		ontology.StatusDeprecated,
	).Scan(&count)
	if err != nil {
		return 0, wrapQueryError("count missing embeddings", err)
	}
	return count, nil
}

// ListTags returns the owner's distinct tags, sorted
func (r *NodeRepository) ListTags(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT jsonb_array_elements_text(tags) AS tag
		FROM nodes WHERE owner_id = $1
		ORDER BY tag`,
		ownerID,
	)
	if err != nil {
		return nil, wrapQueryError("list tags", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, wrapQueryError("list tags", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError("list tags", err)
	}
	return tags, nil
}
