package policy

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// lockKeySalt namespaces this package's advisory lock keys.
const lockKeySalt = "chainledger.policy"

// PostgresRepository persists policies and offers to PostgreSQL.
// It implements Repository.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepository creates a PostgresRepository backed by the given pool.
func NewPostgresRepository(pool *pgxpool.Pool, logger *zap.Logger) *PostgresRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresRepository{pool: pool, logger: logger}
}

// scopeLockKey derives a stable 64-bit advisory lock key for a policy scope.
func scopeLockKey(scope string) int64 {
	h := fnv.New64a()
	h.Write([]byte(lockKeySalt))
	h.Write([]byte{0})
	h.Write([]byte(scope))
	return int64(h.Sum64())
}

// InsertPolicy implements Repository. The whole check-then-insert sequence
// runs inside one transaction holding a scope-keyed advisory lock, so
// concurrent inserts for the same scope serialise and cannot both pass the
// retroactivity check against a stale snapshot.
func (r *PostgresRepository) InsertPolicy(ctx context.Context, p *Policy) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", scopeLockKey(p.Scope)); err != nil {
		return fmt.Errorf("acquire scope lock: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM policies WHERE policy_id = $1 AND version = $2)`,
		p.PolicyID, p.Version,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check policy version: %w", err)
	}
	if exists {
		return ErrDuplicateVersion
	}

	var latest time.Time
	err = tx.QueryRow(ctx,
		`SELECT effective_from FROM policies
		 WHERE scope = $1
		 ORDER BY effective_from DESC LIMIT 1`, p.Scope,
	).Scan(&latest)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("read latest effective_from: %w", err)
	}
	if err == nil && p.EffectiveFrom.Before(latest) {
		return ErrRetroactiveEffectiveFrom
	}

	if p.EffectiveUntil != nil && !p.EffectiveUntil.After(p.EffectiveFrom) {
		return ErrInvalidEffectiveRange
	}

	if err := tx.QueryRow(ctx,
		`INSERT INTO policies (policy_id, version, scope, effective_from, effective_until, payload, signature)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING seq`,
		p.PolicyID, p.Version, p.Scope, p.EffectiveFrom, p.EffectiveUntil, p.Payload, p.Signature,
	).Scan(&p.Seq); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Same (policy_id, version) raced in from another scope's lock.
			return ErrDuplicateVersion
		}
		return fmt.Errorf("insert policy: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit policy tx: %w", err)
	}

	r.logger.Debug("policy inserted",
		zap.String("policy_id", p.PolicyID),
		zap.String("version", p.Version),
		zap.String("scope", p.Scope),
	)
	return nil
}

// DeprecatePolicy implements Repository.
func (r *PostgresRepository) DeprecatePolicy(ctx context.Context, policyID, version string, until time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var from time.Time
	err = tx.QueryRow(ctx,
		`SELECT effective_from FROM policies
		 WHERE policy_id = $1 AND version = $2
		 FOR UPDATE`, policyID, version,
	).Scan(&from)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPolicyNotFound
	}
	if err != nil {
		return fmt.Errorf("lock policy row: %w", err)
	}

	if !until.After(from) {
		return ErrInvalidDeprecationRange
	}

	if _, err := tx.Exec(ctx,
		`UPDATE policies SET effective_until = $3
		 WHERE policy_id = $1 AND version = $2`,
		policyID, version, until,
	); err != nil {
		return fmt.Errorf("update effective_until: %w", err)
	}
	return tx.Commit(ctx)
}

// PoliciesByScope implements Repository.
func (r *PostgresRepository) PoliciesByScope(ctx context.Context, scope string) ([]*Policy, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT policy_id, version, scope, effective_from, effective_until, payload, signature, seq
		 FROM policies
		 WHERE scope = $1
		 ORDER BY effective_from ASC, seq ASC`, scope,
	)
	if err != nil {
		return nil, fmt.Errorf("list policies for %q: %w", scope, err)
	}
	defer rows.Close()

	var out []*Policy
	for rows.Next() {
		p := &Policy{}
		if err := rows.Scan(
			&p.PolicyID, &p.Version, &p.Scope,
			&p.EffectiveFrom, &p.EffectiveUntil,
			&p.Payload, &p.Signature, &p.Seq,
		); err != nil {
			return nil, fmt.Errorf("scan policy row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertOffer implements Repository.
func (r *PostgresRepository) InsertOffer(ctx context.Context, o *Offer) error {
	if o.EffectiveUntil != nil && !o.EffectiveUntil.After(o.EffectiveFrom) {
		return ErrInvalidEffectiveRange
	}

	if _, err := r.pool.Exec(ctx,
		`INSERT INTO offers (offer_id, scope, effective_from, effective_until, payload)
		 VALUES ($1, $2, $3, $4, $5)`,
		o.OfferID, o.Scope, o.EffectiveFrom, o.EffectiveUntil, o.Payload,
	); err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

// OffersActiveAt implements Repository.
func (r *PostgresRepository) OffersActiveAt(ctx context.Context, scope string, at time.Time) ([]*Offer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT offer_id, scope, effective_from, effective_until, payload
		 FROM offers
		 WHERE (scope = $1 OR scope = $2)
		   AND effective_from <= $3
		   AND (effective_until IS NULL OR effective_until > $3)
		 ORDER BY effective_from ASC`,
		ScopeAll, scope, at,
	)
	if err != nil {
		return nil, fmt.Errorf("list offers for %q: %w", scope, err)
	}
	defer rows.Close()

	var out []*Offer
	for rows.Next() {
		o := &Offer{}
		if err := rows.Scan(&o.OfferID, &o.Scope, &o.EffectiveFrom, &o.EffectiveUntil, &o.Payload); err != nil {
			return nil, fmt.Errorf("scan offer row: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
