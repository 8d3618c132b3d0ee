package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trellis-backend/application/ports"
	"trellis-backend/domain/ontology"
	appErrors "trellis-backend/pkg/errors"
)

const logColumns = `id, owner_id, action, actor, model_id, model_version,
	node_id, edge_id, before_state, after_state, metadata, created_at`

// LogRepository implements ports.LogRepository on PostgreSQL
type LogRepository struct {
	pool *pgxpool.Pool
}

// insertLog writes one ledger entry inside the caller's transaction. The
// entity repositories call it so every mutation commits atomically with
// its audit record.
func insertLog(ctx context.Context, tx pgx.Tx, entry *ontology.LogEntry) error {
	if entry == nil {
		return appErrors.NewValidationError("log entry cannot be nil")
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO graph_log (`+logColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID, entry.OwnerID, entry.Action, entry.Actor,
		entry.ModelID, entry.ModelVersion,
		entry.NodeID, entry.EdgeID,
		entry.BeforeState, entry.AfterState, entry.Metadata,
		entry.CreatedAt,
	)
	return err
}

func scanLogEntry(row rowScanner) (*ontology.LogEntry, error) {
	var entry ontology.LogEntry
	err := row.Scan(
		&entry.ID, &entry.OwnerID, &entry.Action, &entry.Actor,
		&entry.ModelID, &entry.ModelVersion,
		&entry.NodeID, &entry.EdgeID,
		&entry.BeforeState, &entry.AfterState, &entry.Metadata,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Append adds one standalone entry to the ledger
func (r *LogRepository) Append(ctx context.Context, entry *ontology.LogEntry) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		return insertLog(ctx, tx, entry)
	})
	return wrapQueryError("append log entry", err)
}

// List returns a page of the owner's entries, newest first
func (r *LogRepository) List(ctx context.Context, ownerID string, q ports.LogListQuery) ([]*ontology.LogEntry, int, error) {
	var (
		where = []string{"owner_id = $1"}
		args  = []interface{}{ownerID}
	)
	addFilter := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if q.Action != "" {
		addFilter("action = $%d", q.Action)
	}
	if q.NodeID != "" {
		addFilter("node_id = $%d", q.NodeID)
	}
	if q.EdgeID != "" {
		addFilter("edge_id = $%d", q.EdgeID)
	}
	if !q.From.IsZero() {
		addFilter("created_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		addFilter("created_at <= $%d", q.To)
	}
	condition := strings.Join(where, " AND ")

	var total int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM graph_log WHERE "+condition, args...).Scan(&total)
	if err != nil {
		return nil, 0, wrapQueryError("count log entries", err)
	}

	query := "SELECT " + logColumns + " FROM graph_log WHERE " + condition + " ORDER BY created_at DESC, id DESC"
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
		return nil, 0, wrapQueryError("list log entries", err)
	}
	defer rows.Close()

	var entries []*ontology.LogEntry
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, 0, wrapQueryError("list log entries", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapQueryError("list log entries", err)
	}
	return entries, total, nil
}
