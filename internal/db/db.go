// Package db provides PostgreSQL-backed repository implementations for the
// luach reminder mailer. All repositories accept a DBTX interface that is
// satisfied by both *pgxpool.Pool (for normal queries) and pgx.Tx (for
// transactional execution).
//
// The store is append-mostly: send records and opt-outs are inserted and
// read, never updated; subscriptions are read plus the bounce-status write.
// No cross-row transactions are required because each occurrence's dedup
// check and commit only touch rows scoped to its own identity.
package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"luach/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect opens a pgx pool and verifies connectivity with a ping. A failure
// here is fatal for the calling worker: no partial run is attempted against
// an unreachable store.
func Connect(ctx context.Context, url string, maxConns int, maxLifetime time.Duration) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "invalid database URL", err)
	}
	pcfg.MaxConns = int32(maxConns)
	pcfg.MaxConnLifetime = maxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create connection pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, types.NewAppError(types.ErrCodeInternalDB, "database unreachable", err)
	}
	return pool, nil
}
