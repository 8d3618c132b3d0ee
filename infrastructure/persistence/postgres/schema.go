package postgres

import "fmt"

// schemaStatements returns the DDL in dependency order. The embedding
// column is typed to the configured dimensions because HNSW indexes
// require a fixed width. Deleting a node cascades its edges; ledger
// references go NULL instead so history survives entity deletion.
func schemaStatements(dimensions int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE EXTENSION IF NOT EXISTS pg_trgm`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS nodes (
			id             TEXT PRIMARY KEY,
			owner_id       TEXT NOT NULL,
			title          TEXT NOT NULL DEFAULT '',
			content        TEXT NOT NULL DEFAULT '',
			node_type      TEXT NOT NULL,
			status         TEXT NOT NULL,
			tags           JSONB NOT NULL DEFAULT '[]',
			folder_id      TEXT NOT NULL DEFAULT '',
			word_count     INTEGER NOT NULL DEFAULT 0,
			embedding      vector(%d),
			created_by     TEXT NOT NULL,
			model_id       TEXT NOT NULL DEFAULT '',
			model_version  TEXT NOT NULL DEFAULT '',
			source_node_id TEXT NOT NULL DEFAULT '',
			confidence     DOUBLE PRECISION,
			method         TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dimensions),

		`CREATE TABLE IF NOT EXISTS edges (
			id             TEXT PRIMARY KEY,
			owner_id       TEXT NOT NULL,
			source_id      TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
			target_id      TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
			edge_type      TEXT NOT NULL,
			status         TEXT NOT NULL,
			weight         DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			label          TEXT NOT NULL DEFAULT '',
			created_by     TEXT NOT NULL,
			model_id       TEXT NOT NULL DEFAULT '',
			model_version  TEXT NOT NULL DEFAULT '',
			source_node_id TEXT NOT NULL DEFAULT '',
			confidence     DOUBLE PRECISION,
			method         TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (source_id, target_id, edge_type)
		)`,

		`CREATE TABLE IF NOT EXISTS graph_log (
			id            TEXT PRIMARY KEY,
			owner_id      TEXT NOT NULL,
			action        TEXT NOT NULL,
			actor         TEXT NOT NULL,
			model_id      TEXT NOT NULL DEFAULT '',
			model_version TEXT NOT NULL DEFAULT '',
			node_id       TEXT REFERENCES nodes(id) ON DELETE SET NULL,
			edge_id       TEXT REFERENCES edges(id) ON DELETE SET NULL,
			before_state  JSONB,
			after_state   JSONB,
			metadata      JSONB,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_nodes_owner ON nodes (owner_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_owner_status ON nodes (owner_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_missing_embedding ON nodes (created_at) WHERE embedding IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_embedding ON nodes USING hnsw (embedding vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_title_trgm ON nodes USING gin (title gin_trgm_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_content_trgm ON nodes USING gin (content gin_trgm_ops)`,

		`CREATE INDEX IF NOT EXISTS idx_edges_owner ON edges (owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_source ON edges (source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_target ON edges (target_id)`,

		`CREATE INDEX IF NOT EXISTS idx_graph_log_owner ON graph_log (owner_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_log_node ON graph_log (node_id) WHERE node_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_graph_log_edge ON graph_log (edge_id) WHERE edge_id IS NOT NULL`,
	}
}
