package search

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkwellapp/inkwell-client/internal/events"
	"github.com/inkwellapp/inkwell-client/internal/store"
)

func newUpdaterEnv(t *testing.T) (*Index, *store.Store, *events.Bus, context.CancelFunc) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	idx := newTestIndex(t)

	s, err := store.Open(filepath.Join(t.TempDir(), "library.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	bus := events.NewBus(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go bus.Start(ctx)
	s.SetEmitter(bus)

	updater := NewUpdater(idx, s, bus, logger)
	go func() { _ = updater.Run(ctx) }()

	return idx, s, bus, cancel
}

func waitForCount(t *testing.T, idx *Index, want uint64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		count, err := idx.DocumentCount()
		require.NoError(t, err)
		if count == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	count, _ := idx.DocumentCount()
	t.Fatalf("index has %d documents, want %d", count, want)
}

func TestUpdaterFollowsStoreChanges(t *testing.T) {
	idx, s, _, _ := newUpdaterEnv(t)
	ctx := context.Background()

	book := testBook("followed", "Followed Into The Index", "Bus Author", "en",
		"Content that arrives through the event bus.")
	require.NoError(t, s.PutBook(ctx, book, nil))
	waitForCount(t, idx, 1)

	result, err := idx.Search(ctx, Params{Query: "followed", Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, result.Hits)
	require.Equal(t, "followed", result.Hits[0].UniqueID)

	require.NoError(t, s.DeleteBook(ctx, book.LocalID))
	waitForCount(t, idx, 0)
}

func TestUpdaterReindexesEmptyIndex(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	idx := newTestIndex(t)
	s, err := store.Open(filepath.Join(t.TempDir(), "library.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	// Books exist before the updater ever runs.
	ctx := context.Background()
	require.NoError(t, s.PutBook(ctx, testBook("pre-1", "First", "", "en", "one"), nil))
	require.NoError(t, s.PutBook(ctx, testBook("pre-2", "Second", "", "en", "two"), nil))

	bus := events.NewBus(logger)
	runCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	go bus.Start(runCtx)

	updater := NewUpdater(idx, s, bus, logger)
	go func() { _ = updater.Run(runCtx) }()

	waitForCount(t, idx, 2)
}
