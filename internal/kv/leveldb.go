package kv

import (
	"context"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_util "github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore persists the ledger in an embedded LevelDB database. Staged
// writes go into a leveldb.Batch with a read-through overlay, so commit is
// a single atomic batch write.
type LevelDBStore struct {
	db *leveldb.DB
}

func NewLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Get(_ context.Context, key string) ([]byte, error) {
	value, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *LevelDBStore) Has(_ context.Context, key string) (bool, error) {
	return s.db.Has([]byte(key), nil)
}

func (s *LevelDBStore) Put(_ context.Context, key string, value []byte) error {
	return s.db.Put([]byte(key), value, nil)
}

func (s *LevelDBStore) Delete(_ context.Context, key string) error {
	return s.db.Delete([]byte(key), nil)
}

func (s *LevelDBStore) Scan(_ context.Context, prefix string) ([]string, error) {
	iter := s.db.NewIterator(ldb_util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	return keys, iter.Error()
}

func (s *LevelDBStore) Begin(_ context.Context) (Tx, error) {
	return &levelDBTx{
		store:  s,
		batch:  new(leveldb.Batch),
		staged: make(map[string]stagedValue),
	}, nil
}

func (s *LevelDBStore) Close() error { return s.db.Close() }

type levelDBTx struct {
	store  *LevelDBStore
	batch  *leveldb.Batch
	staged map[string]stagedValue
	done   bool
}

func (t *levelDBTx) Get(ctx context.Context, key string) ([]byte, error) {
	if sv, ok := t.staged[key]; ok {
		if sv.op == stagedDelete {
			return nil, ErrKeyNotFound
		}
		return sv.value, nil
	}
	return t.store.Get(ctx, key)
}

func (t *levelDBTx) Has(ctx context.Context, key string) (bool, error) {
	if sv, ok := t.staged[key]; ok {
		return sv.op == stagedPut, nil
	}
	return t.store.Has(ctx, key)
}

func (t *levelDBTx) Put(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	t.staged[key] = stagedValue{op: stagedPut, value: stored}
	t.batch.Put([]byte(key), stored)
	return nil
}

func (t *levelDBTx) Delete(_ context.Context, key string) error {
	t.staged[key] = stagedValue{op: stagedDelete}
	t.batch.Delete([]byte(key))
	return nil
}

func (t *levelDBTx) Scan(ctx context.Context, prefix string) ([]string, error) {
	keys, err := t.store.Scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]bool, len(keys))
	for _, k := range keys {
		merged[k] = true
	}
	for k, sv := range t.staged {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		merged[k] = sv.op == stagedPut
	}
	var out []string
	for k, present := range merged {
		if present {
			out = append(out, k)
		}
	}
	return out, nil
}

func (t *levelDBTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.store.db.Write(t.batch, nil)
}

func (t *levelDBTx) Rollback() error {
	t.done = true
	t.batch.Reset()
	t.staged = make(map[string]stagedValue)
	return nil
}
