// Package hashcache persists file content digests in Badger so repeated index
// builds over an unchanged library skip re-hashing. A cached digest is only
// used when the file's size and modification time still match.
package hashcache

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when no valid entry exists for a path.
var ErrNotFound = errors.New("cache entry not found")

// Store wraps Badger for digest lookups.
type Store struct {
	db *badger.DB
}

// Open opens or creates a cache at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening hash cache: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the cached digest for path when size and mtime match.
func (s *Store) Lookup(path string, size int64, mtime time.Time) (string, error) {
	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(makeKey(path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(entry.Decode)
	})
	if err != nil {
		return "", err
	}
	if entry.Size != size || entry.Mtime != mtime.UnixNano() {
		return "", ErrNotFound
	}
	return entry.Hash, nil
}

// PutBatch stores digests keyed by path in one write batch.
func (s *Store) PutBatch(entries map[string]Entry) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for path, e := range entries {
		value, err := e.Encode()
		if err != nil {
			return err
		}
		if err := wb.Set(makeKey(path), value); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Stats describes the cache contents.
type Stats struct {
	Entries  int
	LSMBytes int64
	LogBytes int64
}

// Stats counts entries and reports on-disk sizes.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := keyPrefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			st.Entries++
		}
		return nil
	})
	st.LSMBytes, st.LogBytes = s.db.Size()
	return st, err
}

// Prune deletes entries whose file no longer exists and returns the count.
func (s *Store) Prune() (int, error) {
	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := keyPrefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if _, err := os.Stat(keyPath(key)); os.IsNotExist(err) {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// Clear removes every entry.
func (s *Store) Clear() error {
	return s.db.DropAll()
}
