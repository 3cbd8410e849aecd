package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so the store works with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

const upsertContextSQL = `
INSERT INTO expected_contexts (principal_id, address, client_signature, location, last_seen)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (principal_id) DO UPDATE SET
    address = EXCLUDED.address,
    client_signature = EXCLUDED.client_signature,
    location = EXCLUDED.location,
    last_seen = EXCLUDED.last_seen
WHERE expected_contexts.address IS DISTINCT FROM EXCLUDED.address
   OR expected_contexts.client_signature IS DISTINCT FROM EXCLUDED.client_signature
   OR expected_contexts.location IS DISTINCT FROM EXCLUDED.location`

// PostgresContextStore keeps one expected context per principal in the
// expected_contexts table. Apply [RunMigrations] before first use.
type PostgresContextStore struct {
	db DBTX
}

// NewPostgresContextStore creates a [PostgresContextStore] over a pool or transaction.
func NewPostgresContextStore(db DBTX) *PostgresContextStore {
	return &PostgresContextStore{db: db}
}

// Get returns the stored context, or nil and no error when none exists.
func (s *PostgresContextStore) Get(ctx context.Context, principalID string) (*ContextRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT principal_id, address, client_signature, location, last_seen
		 FROM expected_contexts WHERE principal_id = $1`, principalID)

	rec := &ContextRecord{}
	err := row.Scan(&rec.PrincipalID, &rec.Address, &rec.ClientSignature, &rec.Location, &rec.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContextBackend, err)
	}
	return rec, nil
}

// Upsert inserts or updates the principal's context in one statement. An
// unchanged row is not rewritten, so last_seen only moves on a real change.
func (s *PostgresContextStore) Upsert(ctx context.Context, principalID string, obs Observed, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, upsertContextSQL,
		principalID, obs.Address, obs.ClientSignature, obs.Location, now.UTC())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrContextBackend, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes the principal's context. Deleting a missing row is not an error.
func (s *PostgresContextStore) Delete(ctx context.Context, principalID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM expected_contexts WHERE principal_id = $1`, principalID); err != nil {
		return fmt.Errorf("%w: %v", ErrContextBackend, err)
	}
	return nil
}

// Ping checks backend reachability.
func (s *PostgresContextStore) Ping(ctx context.Context) error {
	pinger, ok := s.db.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	if err := pinger.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrContextBackend, err)
	}
	return nil
}

// NewPostgresPool creates a pgx connection pool and verifies connectivity.
func NewPostgresPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
