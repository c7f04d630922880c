package memory

import (
	"context"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

var badgerKeyPrefix = []byte("memory/")

// BadgerStore keeps each user's log under its own key in an embedded
// Badger database. Save writes the whole snapshot in one transaction and
// removes keys for users that are no longer present.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

func badgerKey(userID string) []byte {
	return append(append([]byte(nil), badgerKeyPrefix...), userID...)
}

func (s *BadgerStore) Load(_ context.Context) (Snapshot, error) {
	out := make(Snapshot)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(badgerKeyPrefix); it.ValidForPrefix(badgerKeyPrefix); it.Next() {
			item := it.Item()
			userID := string(item.KeyCopy(nil)[len(badgerKeyPrefix):])
			err := item.Value(func(val []byte) error {
				var log []Message
				if err := json.Unmarshal(val, &log); err != nil {
					return fmt.Errorf("decode memory for %q: %w", userID, err)
				}
				out[userID] = log
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: load memory: %w", err)
	}
	return out, nil
}

func (s *BadgerStore) Save(_ context.Context, snapshot Snapshot) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var stale [][]byte
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		for it.Seek(badgerKeyPrefix); it.ValidForPrefix(badgerKeyPrefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if _, ok := snapshot[string(key[len(badgerKeyPrefix):])]; !ok {
				stale = append(stale, key)
			}
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for userID, log := range snapshot {
			raw, err := json.Marshal(log)
			if err != nil {
				return fmt.Errorf("encode memory for %q: %w", userID, err)
			}
			if err := txn.Set(badgerKey(userID), raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger: save memory: %w", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
