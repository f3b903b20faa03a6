package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwellapp/inkwell-client/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-client/internal/errors"
	"github.com/inkwellapp/inkwell-client/internal/store"
)

type recordingSyncer struct {
	called chan struct{}
}

func (s *recordingSyncer) SyncSessions(_ context.Context) (int, error) {
	select {
	case s.called <- struct{}{}:
	default:
	}
	return 1, nil
}

type testEnv struct {
	store   *store.Store
	clock   *fakeClock
	manager *Manager
	syncer  *recordingSyncer
	book    *domain.Book
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := store.Open(filepath.Join(t.TempDir(), "library.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	book := &domain.Book{
		UniqueID:   "book-1",
		Title:      "Walden",
		Language:   "en",
		TotalChars: 50000,
		CurrChars:  1000,
	}
	book.Touch()
	summary := &domain.BookSummary{
		UniqueID:   book.UniqueID,
		Title:      book.Title,
		Language:   book.Language,
		TotalChars: book.TotalChars,
		CurrChars:  book.CurrChars,
		Timestamps: book.Timestamps,
	}
	require.NoError(t, s.PutBook(context.Background(), book, summary))

	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	syncer := &recordingSyncer{called: make(chan struct{}, 1)}
	manager := NewManagerWithClock(s, syncer, nil, logger, clock)

	return &testEnv{store: s, clock: clock, manager: manager, syncer: syncer, book: book}
}

func TestStartCreatesSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.manager.Start(ctx, env.book))
	assert.Equal(t, StateActive, env.manager.State())

	current := env.manager.Current()
	require.NotNil(t, current)
	assert.Equal(t, "book-1", current.BookID)
	assert.Equal(t, "Walden", current.BookTitle)
	assert.Equal(t, 1000, current.StartChars)
	assert.NotEmpty(t, current.DeviceID)

	stored, err := env.store.GetSession(ctx, current.Snowflake)
	require.NoError(t, err)
	assert.False(t, stored.Synced)
	assert.Equal(t, domain.SessionActive, stored.Status)
}

func TestDebounceCoalescesProgressWrites(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.manager.Start(ctx, env.book))
	snowflake := env.manager.Current().Snowflake

	// A burst of scroll events inside the idle window.
	for i, pos := range []int{1100, 1200, 1300, 1400, 1500} {
		env.clock.Advance(time.Second)
		require.NoError(t, env.manager.UpdateProgress(ctx, pos, 10+i))
	}

	// No flush has fired yet, so the rows still show initial values.
	stored, err := env.store.GetSession(ctx, snowflake)
	require.NoError(t, err)
	assert.Zero(t, stored.CharsRead)

	env.clock.Advance(progressFlushDelay)

	stored, err = env.store.GetSession(ctx, snowflake)
	require.NoError(t, err)
	assert.Equal(t, 500, stored.CharsRead)
	assert.Equal(t, 1500, stored.EndChars)

	book, err := env.store.GetBookByUniqueID(ctx, "book-1")
	require.NoError(t, err)
	assert.Equal(t, 1500, book.CurrChars)
	assert.Equal(t, 14, book.CurrParagraph)
}

func TestPauseFlushesPendingProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.manager.Start(ctx, env.book))
	snowflake := env.manager.Current().Snowflake

	env.clock.Advance(time.Second)
	require.NoError(t, env.manager.UpdateProgress(ctx, 2000, 20))

	// Pause before the debounce window elapses.
	require.NoError(t, env.manager.Pause(ctx))
	assert.Equal(t, StatePaused, env.manager.State())

	stored, err := env.store.GetSession(ctx, snowflake)
	require.NoError(t, err)
	assert.Equal(t, 1000, stored.CharsRead)
	assert.Equal(t, 2000, stored.EndChars)

	// Progress while paused is ignored.
	require.NoError(t, env.manager.UpdateProgress(ctx, 9999, 99))
	env.clock.Advance(progressFlushDelay)
	stored, err = env.store.GetSession(ctx, snowflake)
	require.NoError(t, err)
	assert.Equal(t, 2000, stored.EndChars)
}

func TestPauseAndResumeNoOps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Nothing in progress: both are quiet no-ops.
	require.NoError(t, env.manager.Pause(ctx))
	require.NoError(t, env.manager.Resume(ctx))
	assert.Equal(t, StateInactive, env.manager.State())

	require.NoError(t, env.manager.Start(ctx, env.book))
	require.NoError(t, env.manager.Resume(ctx)) // already active
	assert.Equal(t, StateActive, env.manager.State())

	require.NoError(t, env.manager.Pause(ctx))
	require.NoError(t, env.manager.Pause(ctx)) // already paused
	assert.Equal(t, StatePaused, env.manager.State())
}

func TestPausedTimeDoesNotCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.manager.Start(ctx, env.book))
	snowflake := env.manager.Current().Snowflake

	env.clock.Advance(20 * time.Second)
	require.NoError(t, env.manager.Pause(ctx))
	env.clock.Advance(10 * time.Minute) // away from the book
	require.NoError(t, env.manager.Resume(ctx))
	env.clock.Advance(15 * time.Second)
	require.NoError(t, env.manager.End(ctx))

	stored, err := env.store.GetSession(ctx, snowflake)
	require.NoError(t, err)
	assert.Equal(t, 35*time.Second, stored.TimeSpent)
}

func TestShortSessionDiscarded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.manager.Start(ctx, env.book))
	snowflake := env.manager.Current().Snowflake

	env.clock.Advance(29 * time.Second)
	require.NoError(t, env.manager.End(ctx))
	assert.Equal(t, StateInactive, env.manager.State())

	_, err := env.store.GetSession(ctx, snowflake)
	assert.True(t, errors.Is(err, domainerrors.ErrNotFound))
}

func TestLongSessionKept(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.manager.Start(ctx, env.book))
	snowflake := env.manager.Current().Snowflake

	env.clock.Advance(31 * time.Second)
	require.NoError(t, env.manager.End(ctx))

	stored, err := env.store.GetSession(ctx, snowflake)
	require.NoError(t, err)
	assert.Equal(t, 31*time.Second, stored.TimeSpent)
	assert.False(t, stored.EndedAt.IsZero())

	// Eligible for sync.
	pending, err := env.store.ListUnsyncedSessions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, snowflake, pending[0].Snowflake)

	select {
	case <-env.syncer.called:
	case <-time.After(2 * time.Second):
		t.Fatal("session end did not trigger sync")
	}
}

func TestStartClosesPreviousSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.manager.Start(ctx, env.book))
	first := env.manager.Current().Snowflake

	env.clock.Advance(45 * time.Second)

	other := &domain.Book{UniqueID: "book-2", Title: "Second", CurrChars: 0}
	other.Touch()
	otherSummary := &domain.BookSummary{UniqueID: other.UniqueID, Title: other.Title, Timestamps: other.Timestamps}
	require.NoError(t, env.store.PutBook(ctx, other, otherSummary))

	require.NoError(t, env.manager.Start(ctx, other))

	current := env.manager.Current()
	require.NotNil(t, current)
	assert.Equal(t, "book-2", current.BookID)
	assert.NotEqual(t, first, current.Snowflake)

	// The first session was ended, not abandoned.
	stored, err := env.store.GetSession(ctx, first)
	require.NoError(t, err)
	assert.False(t, stored.EndedAt.IsZero())
	assert.Equal(t, 45*time.Second, stored.TimeSpent)
}

func TestCloseFlushesAndEnds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.manager.Start(ctx, env.book))
	snowflake := env.manager.Current().Snowflake

	env.clock.Advance(time.Minute)
	require.NoError(t, env.manager.UpdateProgress(ctx, 3000, 30))

	// Teardown before the debounce fires.
	require.NoError(t, env.manager.Close(ctx))
	assert.Equal(t, StateInactive, env.manager.State())

	stored, err := env.store.GetSession(ctx, snowflake)
	require.NoError(t, err)
	assert.Equal(t, 3000, stored.EndChars)
	assert.Equal(t, 2000, stored.CharsRead)
}
