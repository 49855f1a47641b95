package kv

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
)

// PostgresStore keeps the ledger in a single kv_records table so multiple
// engine instances can share one database. Transactions map directly onto
// SQL transactions, which already give read-your-writes semantics.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the kv_records table if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS kv_records (key TEXT PRIMARY KEY, value BYTEA NOT NULL)`)
	return err
}

type sqlRunner interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func pgGet(ctx context.Context, r sqlRunner, key string) ([]byte, error) {
	var value []byte
	err := r.QueryRowContext(ctx, `SELECT value FROM kv_records WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func pgHas(ctx context.Context, r sqlRunner, key string) (bool, error) {
	var exists bool
	err := r.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM kv_records WHERE key = $1)`, key).Scan(&exists)
	return exists, err
}

func pgPut(ctx context.Context, r sqlRunner, key string, value []byte) error {
	_, err := r.ExecContext(ctx,
		`INSERT INTO kv_records (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	return err
}

func pgDelete(ctx context.Context, r sqlRunner, key string) error {
	_, err := r.ExecContext(ctx, `DELETE FROM kv_records WHERE key = $1`, key)
	return err
}

func pgScan(ctx context.Context, r sqlRunner, prefix string) ([]string, error) {
	// substr comparison instead of LIKE: keys embed caller-supplied account
	// IDs which may contain LIKE metacharacters.
	rows, err := r.QueryContext(ctx,
		`SELECT key FROM kv_records WHERE substr(key, 1, $2) = $1`, prefix, len(prefix))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	return pgGet(ctx, s.db, key)
}

func (s *PostgresStore) Has(ctx context.Context, key string) (bool, error) {
	return pgHas(ctx, s.db, key)
}

func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	return pgPut(ctx, s.db, key, value)
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	return pgDelete(ctx, s.db, key)
}

func (s *PostgresStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	return pgScan(ctx, s.db, prefix)
}

func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &postgresTx{tx: tx}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) Get(ctx context.Context, key string) ([]byte, error) {
	return pgGet(ctx, t.tx, key)
}

func (t *postgresTx) Has(ctx context.Context, key string) (bool, error) {
	return pgHas(ctx, t.tx, key)
}

func (t *postgresTx) Put(ctx context.Context, key string, value []byte) error {
	return pgPut(ctx, t.tx, key, value)
}

func (t *postgresTx) Delete(ctx context.Context, key string) error {
	return pgDelete(ctx, t.tx, key)
}

func (t *postgresTx) Scan(ctx context.Context, prefix string) ([]string, error) {
	return pgScan(ctx, t.tx, prefix)
}

func (t *postgresTx) Commit() error   { return t.tx.Commit() }
func (t *postgresTx) Rollback() error { return t.tx.Rollback() }
