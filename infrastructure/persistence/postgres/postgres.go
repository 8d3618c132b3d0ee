// Package postgres implements the persistence ports on PostgreSQL with
// the pgvector and pg_trgm extensions. Vector similarity uses the <=>
// cosine distance operator, lexical similarity uses trigram similarity(),
// and every entity write pairs with its ledger entry in one transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	appErrors "trellis-backend/pkg/errors"

	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// Config holds connection settings for the database pool
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	ConnectTimeout  time.Duration
	MaxConnLifetime time.Duration
	// EmbeddingDimensions fixes the width of the nodes.embedding column
	EmbeddingDimensions int
}

// Connect builds a pgx pool, registers the pgvector type codecs on every
// connection, and verifies connectivity.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connected",
		zap.Int32("maxConns", poolCfg.MaxConns),
	)
	return pool, nil
}

// Migrate applies the schema statements in order. Every statement is
// idempotent so the call is safe on startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dimensions int) error {
	for _, stmt := range schemaStatements(dimensions) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Store bundles the repository implementations over one pool
type Store struct {
	pool   *pgxpool.Pool
	nodes  *NodeRepository
	edges  *EdgeRepository
	logs   *LogRepository
	search *SearchRepository
}

// NewStore creates repositories sharing the given pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:   pool,
		nodes:  &NodeRepository{pool: pool},
		edges:  &EdgeRepository{pool: pool},
		logs:   &LogRepository{pool: pool},
		search: &SearchRepository{pool: pool},
	}
}

// Nodes returns the node repository
func (s *Store) Nodes() *NodeRepository { return s.nodes }

// Edges returns the edge repository
func (s *Store) Edges() *EdgeRepository { return s.edges }

// Logs returns the ledger repository
func (s *Store) Logs() *LogRepository { return s.logs }

// Search returns the search repository
func (s *Store) Search() *SearchRepository { return s.search }

// Ping verifies database connectivity, used by readiness probes
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool
func (s *Store) Close() {
	s.pool.Close()
}

// rowScanner lets scan helpers accept both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// isUniqueViolation reports whether err is a unique constraint violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// inTx runs fn inside a transaction, rolling back on error
func inTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// wrapQueryError keeps database errors distinguishable from domain errors
func wrapQueryError(op string, err error) error {
	if err == nil || appErrors.IsAppError(err) {
		return err
	}
	return appErrors.NewDatabaseError(op, err)
}
