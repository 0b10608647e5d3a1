package ledger

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// lockKeySalt namespaces this package's advisory lock keys so they cannot
// collide with other advisory lock users on the same database.
const lockKeySalt = "chainledger.ledger"

// PostgresStore persists ledger entries to PostgreSQL. It implements Store.
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

// scopeLockKey derives a stable 64-bit advisory lock key for a scope. Appends
// to different scopes take different locks and run fully in parallel.
func scopeLockKey(scopeKey string) int64 {
	h := fnv.New64a()
	h.Write([]byte(lockKeySalt))
	h.Write([]byte{0})
	h.Write([]byte(scopeKey))
	return int64(h.Sum64())
}

// Head implements Store.
func (s *PostgresStore) Head(ctx context.Context, scopeKey string) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT entry_hash FROM ledger_entries
		 WHERE scope_key = $1
		 ORDER BY created_at DESC LIMIT 1`, scopeKey,
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read chain head for %q: %w", scopeKey, err)
	}
	return hash, nil
}

// Insert implements Store.
// It takes a transaction-scoped advisory lock for the entry's scope,
// re-reads the head, and inserts only if the head still matches
// expectedHead. The unique index on (scope_key, prev_hash) is a backstop:
// a violation also reports ErrConcurrentAppend.
func (s *PostgresStore) Insert(ctx context.Context, e *Entry, expectedHead string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", scopeLockKey(e.ScopeKey)); err != nil {
		return fmt.Errorf("acquire scope lock: %w", err)
	}

	var head string
	err = tx.QueryRow(ctx,
		`SELECT entry_hash FROM ledger_entries
		 WHERE scope_key = $1
		 ORDER BY created_at DESC LIMIT 1`, e.ScopeKey,
	).Scan(&head)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("read chain head: %w", err)
	}
	if head != expectedHead {
		return ErrConcurrentAppend
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (scope_key, entry_hash, prev_hash, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ScopeKey, e.EntryHash, e.PrevHash, e.Payload, e.CreatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConcurrentAppend
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}

	s.logger.Debug("ledger entry persisted",
		zap.String("scope", e.ScopeKey),
		zap.String("hash", e.EntryHash),
	)
	return nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, scopeKey string) ([]*Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT scope_key, entry_hash, prev_hash, payload, created_at
		 FROM ledger_entries
		 WHERE scope_key = $1
		 ORDER BY created_at ASC`, scopeKey,
	)
	if err != nil {
		return nil, fmt.Errorf("list scope %q: %w", scopeKey, err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ScopeKey, &e.EntryHash, &e.PrevHash, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListHashes implements Store.
func (s *PostgresStore) ListHashes(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entry_hash FROM ledger_entries ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list entry hashes: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan entry hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}
