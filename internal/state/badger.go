package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

const defaultBadgerKey = "watermarks"

type BadgerBackend struct {
	db  *badger.DB
	key []byte
}

func NewBadgerBackend(path string) (*BadgerBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("badger path is required")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerBackend{db: db, key: []byte(defaultBadgerKey)}, nil
}

func (b *BadgerBackend) Load(_ context.Context) (Watermarks, error) {
	var w Watermarks
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &w)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Watermarks{}, ErrNotFound
	}
	if err != nil {
		return Watermarks{}, fmt.Errorf("load badger state: %w", err)
	}
	return w, nil
}

func (b *BadgerBackend) Save(_ context.Context, w Watermarks) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.key, data)
	}); err != nil {
		return fmt.Errorf("save badger state: %w", err)
	}
	return nil
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
