// Package database provides PostgreSQL-backed implementations of the
// core persistence contracts (sessions, catalog records, import runs,
// assets) using pgx. Each store is safe for concurrent use; the pool
// handles connection management.
package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx. The session, run and
// asset stores are typed against it; CatalogStore holds the pool
// directly because advisory locking needs a dedicated connection.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

var (
	_ DBTX = (*pgxpool.Pool)(nil)
	_ DBTX = (pgx.Tx)(nil)
)

// intsTo32 converts chunk indices for int[] columns.
func intsTo32(in []int) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

// ints32To converts int[] column values back to chunk indices.
func ints32To(in []int32) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}
