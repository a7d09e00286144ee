package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	connKey contextKey = "db_conn"
	txKey   contextKey = "db_tx"
)

// WithConn returns a context carrying a pinned connection. Repositories
// prefer it over the pool, so a caller can hold one session across several
// repository calls (the integration tests lean on this).
func WithConn(ctx context.Context, conn *pgxpool.Conn) context.Context {
	return context.WithValue(ctx, connKey, conn)
}

// ConnFromContext returns the pinned connection, or nil when the context
// carries none.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(connKey).(*pgxpool.Conn)
	return conn
}

// WithTx returns a context carrying an open transaction. It takes precedence
// over a pinned connection, so repository calls made inside the transaction
// join it.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// TxFromContext returns the open transaction, or nil when the context
// carries none.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}
