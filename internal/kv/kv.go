// Package kv is the persistence substrate for the escrow ledger: a flat
// key-value store with read-after-write consistency inside one operation.
// Backends: in-memory (tests, dev), LevelDB (embedded single node) and
// PostgreSQL (shared deployments).
package kv

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("key not found")

// ReadWriter is the surface the typed ledger accessors operate on. Both a
// Store (autocommit) and a Tx (staged) satisfy it.
type ReadWriter interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Has(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Scan returns the keys starting with prefix, in no particular order.
	Scan(ctx context.Context, prefix string) ([]string, error)
}

type Store interface {
	ReadWriter

	// Begin opens a transaction. Staged writes are invisible to the store
	// until Commit; the transaction itself reads its own writes.
	Begin(ctx context.Context) (Tx, error)

	Close() error
}

type Tx interface {
	ReadWriter

	Commit() error
	Rollback() error
}
