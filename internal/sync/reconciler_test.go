package sync

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwellapp/inkwell-client/internal/codec"
	"github.com/inkwellapp/inkwell-client/internal/domain"
	"github.com/inkwellapp/inkwell-client/internal/payload"
	"github.com/inkwellapp/inkwell-client/internal/remote"
	"github.com/inkwellapp/inkwell-client/internal/remote/remotetest"
	"github.com/inkwellapp/inkwell-client/internal/store"
)

type fixture struct {
	store      *store.Store
	reconciler *Reconciler
	server     *remotetest.Server
}

func newFixture(t *testing.T, srv *remotetest.Server) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := store.Open(filepath.Join(t.TempDir(), "library.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	payloads, err := payload.Open(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { payloads.Close() })

	client := remote.New(srv.URL(), remote.StaticToken("tok"), logger)
	client.SetRate(1000, 1000)

	r := NewReconciler(s, client, codec.New(logger), payloads, nil, logger)
	return &fixture{store: s, reconciler: r, server: srv}
}

func seedLocalBook(t *testing.T, s *store.Store, uniqueID string, updatedMs int64) *domain.Book {
	t.Helper()

	updatedAt := remote.FromMillis(updatedMs)
	book := &domain.Book{
		UniqueID:   uniqueID,
		Title:      "Book " + uniqueID,
		Author:     "Author",
		Language:   "en",
		TotalChars: 10000,
		CurrChars:  1200,
		Sections: []domain.Section{
			{ID: "s1", Title: "One", HTML: "<p>hello</p>", Chars: 5},
		},
		Images: []domain.ImageAsset{
			{Name: "cover.png", MediaType: "image/png", Data: []byte{0x89, 0x50, 0x4e, 0x47}},
		},
		Timestamps: domain.Timestamps{CreatedAt: updatedAt, UpdatedAt: updatedAt},
	}
	summary := &domain.BookSummary{
		UniqueID:   uniqueID,
		Title:      book.Title,
		Author:     book.Author,
		Language:   book.Language,
		TotalChars: book.TotalChars,
		CurrChars:  book.CurrChars,
		Timestamps: book.Timestamps,
	}
	require.NoError(t, s.PutBook(context.Background(), book, summary))
	return book
}

func TestSyncBooksUploadsLocalOnly(t *testing.T) {
	srv := remotetest.New()
	t.Cleanup(srv.Close)
	fx := newFixture(t, srv)
	ctx := context.Background()

	seedLocalBook(t, fx.store, "book-1", 1000)

	result, err := fx.reconciler.SyncBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.BooksUploaded)
	assert.Zero(t, result.Failures)

	meta, ok := srv.Book("book-1")
	require.True(t, ok)
	assert.Equal(t, int64(1000), meta.UpdatedAt)
	assert.NotEmpty(t, srv.Payload("book-1"))

	// Nothing changed, so a second pass transfers nothing.
	result, err = fx.reconciler.SyncBooks(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.BooksUploaded)
	assert.Zero(t, result.BooksDownloaded)
}

func TestSyncBooksDownloadsToSecondDevice(t *testing.T) {
	srv := remotetest.New()
	t.Cleanup(srv.Close)
	ctx := context.Background()

	first := newFixture(t, srv)
	original := seedLocalBook(t, first.store, "book-1", 1000)
	_, err := first.reconciler.SyncBooks(ctx)
	require.NoError(t, err)

	second := newFixture(t, srv)
	result, err := second.reconciler.SyncBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.BooksDownloaded)

	got, err := second.store.GetBookByUniqueID(ctx, "book-1")
	require.NoError(t, err)
	assert.Equal(t, original.Title, got.Title)
	assert.Equal(t, original.Sections, got.Sections)
	assert.Equal(t, original.Images, got.Images)
	// The remote timestamp arrives verbatim, not re-advanced.
	assert.Equal(t, int64(1000), remote.ToMillis(got.UpdatedAt))
}

func TestSyncBooksPushesNewerProgress(t *testing.T) {
	srv := remotetest.New()
	t.Cleanup(srv.Close)
	fx := newFixture(t, srv)
	ctx := context.Background()

	seedLocalBook(t, fx.store, "book-1", 1000)
	_, err := fx.reconciler.SyncBooks(ctx)
	require.NoError(t, err)

	// Reading advances locally.
	require.NoError(t, fx.store.UpdateProgress(ctx, "book-1", 4500, 9, remote.FromMillis(2000)))

	result, err := fx.reconciler.SyncBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.BooksUploaded)

	meta, ok := srv.Book("book-1")
	require.True(t, ok)
	assert.Equal(t, 4500, meta.CurrChars)
	assert.Equal(t, int64(2000), meta.UpdatedAt)
}

func TestSyncBooksPullsNewerProgress(t *testing.T) {
	srv := remotetest.New()
	t.Cleanup(srv.Close)
	fx := newFixture(t, srv)
	ctx := context.Background()

	seedLocalBook(t, fx.store, "book-1", 1000)
	_, err := fx.reconciler.SyncBooks(ctx)
	require.NoError(t, err)

	// Another device read further.
	srv.SeedBook(remote.BookMeta{
		UniqueID:      "book-1",
		Title:         "Book book-1",
		CurrChars:     7700,
		CurrParagraph: 14,
		UpdatedAt:     3000,
	}, nil)

	result, err := fx.reconciler.SyncBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.BooksDownloaded)

	got, err := fx.store.GetBookByUniqueID(ctx, "book-1")
	require.NoError(t, err)
	assert.Equal(t, 7700, got.CurrChars)
	assert.Equal(t, 14, got.CurrParagraph)
	assert.Equal(t, int64(3000), remote.ToMillis(got.UpdatedAt))
}

func TestSyncBooksConnectionFailureSkipsPass(t *testing.T) {
	srv := remotetest.New()
	srv.Close() // Remote unreachable from the start.
	fx := newFixture(t, srv)
	ctx := context.Background()

	seedLocalBook(t, fx.store, "book-1", 1000)

	_, err := fx.reconciler.SyncBooks(ctx)
	require.Error(t, err)

	snap := fx.reconciler.Status()
	assert.True(t, snap.Retryable)
	assert.NotEmpty(t, snap.LastError)
}

func seedSession(t *testing.T, s *store.Store, snowflake int64, endedMs int64) {
	t.Helper()
	started := remote.FromMillis(endedMs - 120_000)
	session := &domain.ReadingSession{
		Snowflake: snowflake,
		BookID:    "book-1",
		BookTitle: "Book book-1",
		StartedAt: started,
		EndedAt:   remote.FromMillis(endedMs),
		CharsRead: 900,
		TimeSpent: 2 * time.Minute,
		DeviceID:  "device-a",
		Status:    domain.SessionActive,
	}
	require.NoError(t, s.CreateSession(context.Background(), session))
}

func TestSyncSessionsPartialAck(t *testing.T) {
	srv := remotetest.New()
	t.Cleanup(srv.Close)
	fx := newFixture(t, srv)
	ctx := context.Background()

	seedSession(t, fx.store, 1, 10_000)
	seedSession(t, fx.store, 2, 20_000)
	seedSession(t, fx.store, 3, 30_000)
	srv.FailNextSessions(2)

	synced, err := fx.reconciler.SyncSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, synced)

	pending, err := fx.store.ListUnsyncedSessions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(2), pending[0].Snowflake)

	// Next pass delivers the remainder; resent sessions dedup remotely.
	synced, err = fx.reconciler.SyncSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)

	pending, err = fx.store.ListUnsyncedSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.True(t, srv.HasSession(2))
}

func TestSyncSessionsPropagatesTombstones(t *testing.T) {
	srv := remotetest.New()
	t.Cleanup(srv.Close)
	fx := newFixture(t, srv)
	ctx := context.Background()

	seedSession(t, fx.store, 7, 10_000)
	synced, err := fx.reconciler.SyncSessions(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, synced)
	require.True(t, srv.HasSession(7))

	require.NoError(t, fx.store.TombstoneSession(ctx, 7))

	synced, err = fx.reconciler.SyncSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	assert.False(t, srv.HasSession(7))

	// The tombstone is purged once the remote confirms.
	_, err = fx.store.GetSession(ctx, 7)
	require.Error(t, err)
}

func TestSyncAllReportsStatus(t *testing.T) {
	srv := remotetest.New()
	t.Cleanup(srv.Close)
	fx := newFixture(t, srv)
	ctx := context.Background()

	seedLocalBook(t, fx.store, "book-1", 1000)
	seedSession(t, fx.store, 11, 10_000)

	result, err := fx.reconciler.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.BooksUploaded)
	assert.Equal(t, 1, result.SessionsSynced)

	snap := fx.reconciler.Status()
	assert.False(t, snap.InProgress)
	assert.Equal(t, 1, snap.BooksUploaded)
	assert.Equal(t, 1, snap.SessionsSynced)
	assert.Empty(t, snap.LastError)
	assert.False(t, snap.Retryable)
}
