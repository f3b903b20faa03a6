// Package payload caches compressed book payloads between the codec
// and the network. Staged uploads survive a failed sync pass and a
// repeated download of the same book version skips the transfer.
package payload

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	payloadPrefix = "payload:"

	// Staged payloads outlive a few retry rounds but not a library
	// rebuild; a stale entry for an old book version is never served
	// because the key carries the version.
	payloadCacheDuration = 7 * 24 * time.Hour
)

// CachedPayload wraps a compressed payload with cache info.
type CachedPayload struct {
	Data      []byte    `json:"data"`
	Backend   string    `json:"backend"`
	StagedAt  time.Time `json:"staged_at"`
	UpdatedAt int64     `json:"updated_at"`
}

// Cache is a Badger-backed staging area for compressed payloads.
type Cache struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens the payload cache at the given directory.
func Open(path string, logger *slog.Logger) (*Cache, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.CompactL0OnClose = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open payload cache: %w", err)
	}

	logger.Debug("payload cache opened", slog.String("path", path))
	return &Cache{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// key identifies one version of one book. A changed updatedAt yields a
// new key, so a stale payload can never be served for a newer book.
func key(uniqueID string, updatedAt int64) []byte {
	return fmt.Appendf(nil, "%s%s:%d", payloadPrefix, uniqueID, updatedAt)
}

// Get retrieves a staged payload for the given book version.
// Returns nil, nil if not found or expired.
func (c *Cache) Get(ctx context.Context, uniqueID string, updatedAt int64) (*CachedPayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cached CachedPayload
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(uniqueID, updatedAt))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cached)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get staged payload: %w", err)
	}

	if time.Since(cached.StagedAt) > payloadCacheDuration {
		return nil, nil // Treat as cache miss
	}

	return &cached, nil
}

// Put stages a compressed payload for the given book version.
func (c *Cache) Put(ctx context.Context, uniqueID string, updatedAt int64, backend string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cached := CachedPayload{
		Data:      data,
		Backend:   backend,
		StagedAt:  time.Now(),
		UpdatedAt: updatedAt,
	}

	encoded, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshal staged payload: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(uniqueID, updatedAt), encoded)
	})
}

// Delete removes a staged payload. Missing entries are not an error.
func (c *Cache) Delete(ctx context.Context, uniqueID string, updatedAt int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key(uniqueID, updatedAt))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil // Idempotent
		}
		return err
	})
}

// DeleteBook removes all staged versions of one book, typically after
// a successful upload or a local delete.
func (c *Cache) DeleteBook(ctx context.Context, uniqueID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := fmt.Appendf(nil, "%s%s:", payloadPrefix, uniqueID)

	return c.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
