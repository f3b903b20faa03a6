// Package main provides a tool to inspect the payload staging cache.
//
// Usage:
//
//	CACHE_PATH=~/Inkwell/payloads go run ./cmd/cacheinspect
package main

import (
	"encoding/json/v2"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/inkwellapp/inkwell-client/internal/payload"
)

const stagedTTL = 7 * 24 * time.Hour

func main() {
	cachePath := os.Getenv("CACHE_PATH")
	if cachePath == "" {
		cachePath = os.ExpandEnv("$HOME/Inkwell/payloads")
	}

	opts := badger.DefaultOptions(cachePath).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open cache: %v", err)
	}
	defer db.Close()

	fmt.Println("=== Payload Cache Inspection ===")
	fmt.Println()

	var (
		entries    int
		expired    int
		totalBytes int64
	)

	err = db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte("payload:")
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(iterOpts.Prefix); it.ValidForPrefix(iterOpts.Prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())

			err := item.Value(func(val []byte) error {
				var cached payload.CachedPayload
				if err := json.Unmarshal(val, &cached); err != nil {
					return err
				}

				entries++
				totalBytes += int64(len(cached.Data))
				age := time.Since(cached.StagedAt)
				stale := age > stagedTTL
				if stale {
					expired++
				}

				fmt.Printf("Entry: %s\n", key)
				fmt.Printf("  Size: %d bytes\n", len(cached.Data))
				fmt.Printf("  Backend: %s\n", cached.Backend)
				fmt.Printf("  Staged: %s ago", age.Round(time.Minute))
				if stale {
					fmt.Print(" (EXPIRED)")
				}
				fmt.Println()
				fmt.Printf("  Book version: %d\n", cached.UpdatedAt)
				fmt.Println()

				return nil
			})
			if err != nil {
				log.Printf("Error reading entry %s: %v", key, err)
			}
		}
		return nil
	})

	if err != nil {
		log.Fatalf("Error iterating cache: %v", err)
	}

	fmt.Println("=== Summary ===")
	fmt.Printf("Total entries: %d\n", entries)
	fmt.Printf("Expired entries: %d\n", expired)
	fmt.Printf("Total staged bytes: %d\n", totalBytes)
}
