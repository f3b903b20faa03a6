// Package main provides a tool to export a library book as an
// .inkbook bundle, the format the import watcher ingests. Useful for
// moving a book between devices without the sync service.
//
// Usage:
//
//	DATA_PATH=~/Inkwell go run ./cmd/bundle <unique-id> [output-dir]
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/inkwellapp/inkwell-client/internal/codec"
	"github.com/inkwellapp/inkwell-client/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: bundle <unique-id> [output-dir]")
		os.Exit(2)
	}
	uniqueID := os.Args[1]

	outDir := "."
	if len(os.Args) > 2 {
		outDir = os.Args[2]
	}

	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		dataPath = os.ExpandEnv("$HOME/Inkwell")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s, err := store.Open(filepath.Join(dataPath, "library.db"), logger)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	book, err := s.GetBookByUniqueID(context.Background(), uniqueID)
	if err != nil {
		log.Fatalf("Failed to load book %s: %v", uniqueID, err)
	}

	// LocalID is device-specific and must not travel with the book.
	book.LocalID = 0

	data, err := codec.New(logger).Compress(book)
	if err != nil {
		log.Fatalf("Failed to encode bundle: %v", err)
	}

	outPath := filepath.Join(outDir, uniqueID+".inkbook")
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		log.Fatalf("Failed to write bundle: %v", err)
	}

	fmt.Printf("Wrote %s (%d bytes): %s by %s\n", outPath, len(data), book.Title, book.Author)
}
