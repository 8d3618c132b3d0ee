package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trellis-backend/domain/ontology"
	appErrors "trellis-backend/pkg/errors"
)

const edgeColumns = `id, owner_id, source_id, target_id, edge_type, status, weight, label,
	created_by, model_id, model_version, source_node_id, confidence, method,
	created_at, updated_at`

// EdgeRepository implements ports.EdgeRepository on PostgreSQL
type EdgeRepository struct {
	pool *pgxpool.Pool
}

func scanEdge(row rowScanner) (*ontology.Edge, error) {
	var edge ontology.Edge
	err := row.Scan(
		&edge.ID, &edge.OwnerID, &edge.SourceID, &edge.TargetID, &edge.Type, &edge.Status,
		&edge.Weight, &edge.Label,
		&edge.Provenance.Creator, &edge.Provenance.ModelID, &edge.Provenance.ModelVersion,
		&edge.Provenance.SourceNodeID, &edge.Provenance.Confidence, &edge.Provenance.Method,
		&edge.CreatedAt, &edge.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

// checkEndpoints verifies both endpoints exist and belong to the owner.
// A foreign node is indistinguishable from a missing one.
func checkEndpoints(ctx context.Context, tx pgx.Tx, ownerID, sourceID, targetID string) error {
	rows, err := tx.Query(ctx,
		`SELECT id FROM nodes WHERE owner_id = $1 AND id = ANY($2)`,
		ownerID, []string{sourceID, targetID},
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	found := make(map[string]bool, 2)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if !found[sourceID] {
		return appErrors.NewNotFoundError("source node")
	}
	if !found[targetID] {
		return appErrors.NewNotFoundError("target node")
	}
	return nil
}

// Create inserts the edge and its ledger entry in one transaction
func (r *EdgeRepository) Create(ctx context.Context, edge *ontology.Edge, entry *ontology.LogEntry) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := checkEndpoints(ctx, tx, edge.OwnerID, edge.SourceID, edge.TargetID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO edges (`+edgeColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			edge.ID, edge.OwnerID, edge.SourceID, edge.TargetID, edge.Type, edge.Status,
			edge.Weight, edge.Label,
			edge.Provenance.Creator, edge.Provenance.ModelID, edge.Provenance.ModelVersion,
			edge.Provenance.SourceNodeID, edge.Provenance.Confidence, edge.Provenance.Method,
			edge.CreatedAt, edge.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return appErrors.NewConflictError("edge with this source, target and type already exists")
			}
			return err
		}
		return insertLog(ctx, tx, entry)
	})
	return wrapQueryError("create edge", err)
}

// GetByID retrieves an edge scoped by owner
func (r *EdgeRepository) GetByID(ctx context.Context, ownerID, edgeID string) (*ontology.Edge, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+edgeColumns+` FROM edges
		WHERE id = $1 AND owner_id = $2`,
		edgeID, ownerID,
	)
	edge, err := scanEdge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, appErrors.NewNotFoundError("edge")
		}
		return nil, wrapQueryError("get edge", err)
	}
	return edge, nil
}

// Exists reports whether the exact triple already exists
func (r *EdgeRepository) Exists(ctx context.Context, ownerID, sourceID, targetID string, edgeType ontology.EdgeType) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM edges
			WHERE owner_id = $1 AND source_id = $2 AND target_id = $3 AND edge_type = $4
		)`,
		ownerID, sourceID, targetID, edgeType,
	).Scan(&exists)
	if err != nil {
		return false, wrapQueryError("check edge exists", err)
	}
	return exists, nil
}

// UpdateType persists a retyped edge; the unique index re-checks the triple
func (r *EdgeRepository) UpdateType(ctx context.Context, edge *ontology.Edge, entry *ontology.LogEntry) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE edges SET edge_type = $3, weight = $4, label = $5, updated_at = $6
			WHERE id = $1 AND owner_id = $2`,
			edge.ID, edge.OwnerID, edge.Type, edge.Weight, edge.Label, edge.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return appErrors.NewConflictError("edge with this source, target and type already exists")
			}
			return err
		}
		if tag.RowsAffected() == 0 {
			return appErrors.NewNotFoundError("edge")
		}
		return insertLog(ctx, tx, entry)
	})
	return wrapQueryError("update edge type", err)
}

// UpdateStatus applies a transition guarded by the expected current status
func (r *EdgeRepository) UpdateStatus(ctx context.Context, ownerID, edgeID string, from, to ontology.Status, entry *ontology.LogEntry) (bool, error) {
	applied := false
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE edges SET status = $4, updated_at = now()
			WHERE id = $1 AND owner_id = $2 AND status = $3`,
			edgeID, ownerID, from, to,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM edges WHERE id = $1 AND owner_id = $2)`,
				edgeID, ownerID,
			).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return appErrors.NewNotFoundError("edge")
			}
			return nil
		}
		applied = true
		return insertLog(ctx, tx, entry)
	})
	return applied, wrapQueryError("update edge status", err)
}

// Delete removes the edge and appends the delete entry; ledger references
// go NULL via the schema's foreign key.
func (r *EdgeRepository) Delete(ctx context.Context, ownerID, edgeID string, entry *ontology.LogEntry) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM edges WHERE id = $1 AND owner_id = $2`,
			edgeID, ownerID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return appErrors.NewNotFoundError("edge")
		}
		return insertLog(ctx, tx, entry)
	})
	return wrapQueryError("delete edge", err)
}

// ListByNodeIDs returns all edges touching any of the given nodes, sorted
// by id for deterministic traversal expansion
func (r *EdgeRepository) ListByNodeIDs(ctx context.Context, ownerID string, nodeIDs []string, excludeDeprecated bool) ([]*ontology.Edge, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + edgeColumns + ` FROM edges
		WHERE owner_id = $1 AND (source_id = ANY($2) OR target_id = ANY($2))`
	args := []interface{}{ownerID, nodeIDs}
	if excludeDeprecated {
		query += ` AND status != $3`
		args = append(args, ontology.StatusDeprecated)
	}
	query += ` ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapQueryError("list edges", err)
	}
	defer rows.Close()

	var edges []*ontology.Edge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, wrapQueryError("list edges", err)
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError("list edges", err)
	}
	return edges, nil
}
