package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps the token in a local Badger directory.
// Badger locks its directory, so only one process can hold it open.
type BadgerStore struct {
	db  *badger.DB
	key []byte
}

// NewBadgerStore opens the token database at path.
// Pass path="" to keep everything in memory (tests, throwaway sessions).
func NewBadgerStore(path, key string) (*BadgerStore, error) {
	if key == "" {
		key = DefaultKey
	}

	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Silence default logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db, key: []byte(key)}, nil
}

func (s *BadgerStore) Set(_ context.Context, token string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, []byte(token))
	})
}

func (s *BadgerStore) Get(_ context.Context) (string, error) {
	var token string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			token = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *BadgerStore) Clear(_ context.Context) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key)
	})
}

// Close flushes and releases the directory lock.
func (s *BadgerStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
