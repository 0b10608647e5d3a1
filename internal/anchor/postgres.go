package anchor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresStore persists anchors to PostgreSQL. It implements Store.
// The merkle_anchors table is append-only; rows are never updated or deleted.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, a *Anchor) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO merkle_anchors (id, root_hash, ledger_count, created_at)
		 VALUES ($1, $2, $3, $4)`,
		a.ID, a.RootHash, a.EntryCount, a.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert anchor: %w", err)
	}
	s.logger.Debug("anchor persisted", zap.String("anchor_id", a.ID.String()))
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Anchor, error) {
	a := &Anchor{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, root_hash, ledger_count, created_at
		 FROM merkle_anchors WHERE id = $1`, id,
	).Scan(&a.ID, &a.RootHash, &a.EntryCount, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get anchor %s: %w", id, err)
	}
	return a, nil
}
