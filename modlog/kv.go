package modlog

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// kvPrefix namespaces ledger documents within the key-value store.
var kvPrefix = []byte("modlog/")

// KVStore keeps one encoded ledger document per community in a Badger
// database. The document value is identical to the flat-file format.
type KVStore struct {
	db *badger.DB
}

// OpenKV wraps an open Badger database as a ledger store.
// Closing the store closes the database.
func OpenKV(db *badger.DB) *KVStore {
	return &KVStore{db: db}
}

// Load implements [Store].
func (s *KVStore) Load(ctx context.Context) (map[string]map[int]*Case, error) {
	all := make(map[string]map[int]*Case)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = kvPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			community := string(item.Key()[len(kvPrefix):])
			err := item.Value(func(v []byte) error {
				cases, err := unmarshalCases(community, v)
				if err != nil {
					return err
				}
				all[community] = cases
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't load ledgers from kv store: %w", err)
	}
	return all, nil
}

// Save implements [Store].
func (s *KVStore) Save(ctx context.Context, community string, cases map[int]*Case) error {
	b, err := marshalCases(cases)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(string(kvPrefix)+community), b)
	})
	if err != nil {
		return fmt.Errorf("couldn't save ledger for %s: %w", community, err)
	}
	return nil
}

// Reset implements [Store].
func (s *KVStore) Reset(ctx context.Context, community string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(string(kvPrefix) + community))
	})
	if err != nil {
		return fmt.Errorf("couldn't reset ledger for %s: %w", community, err)
	}
	return nil
}

// Close implements [Store].
func (s *KVStore) Close() error { return s.db.Close() }
