package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inkwellapp/inkwell-client/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-client/internal/errors"
)

func makeTestSession(snowflake int64, bookID string, startedAt time.Time) *domain.ReadingSession {
	return &domain.ReadingSession{
		Snowflake:    snowflake,
		BookID:       bookID,
		BookTitle:    "Some Title",
		BookLanguage: "en",
		StartedAt:    startedAt,
		EndedAt:      startedAt.Add(25 * time.Minute),
		CharsRead:    3200,
		TimeSpent:    24 * time.Minute,
		StartChars:   1000,
		EndChars:     4200,
		DeviceID:     "device-test",
		Status:       domain.SessionActive,
	}
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2025, 5, 10, 21, 0, 0, 0, time.UTC)
	session := makeTestSession(1001, "hash-dune", started)
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := s.GetSession(ctx, 1001)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.BookID != "hash-dune" {
		t.Errorf("book id = %q", got.BookID)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("started at = %v, want %v", got.StartedAt, started)
	}
	if got.TimeSpent != 24*time.Minute {
		t.Errorf("time spent = %v, want 24m", got.TimeSpent)
	}
	if got.Synced {
		t.Error("new session must not be synced")
	}
	if got.Status != domain.SessionActive {
		t.Errorf("status = %q, want active", got.Status)
	}

	if err := s.CreateSession(ctx, session); !errors.Is(err, domainerrors.ErrAlreadyExists) {
		t.Errorf("expected already exists on duplicate snowflake, got %v", err)
	}
}

func TestUpdateSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := makeTestSession(1002, "hash-emma", time.Now().UTC())
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	session.CharsRead = 9000
	session.TimeSpent = 45 * time.Minute
	if err := s.UpdateSession(ctx, session); err != nil {
		t.Fatalf("update session: %v", err)
	}

	got, err := s.GetSession(ctx, 1002)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.CharsRead != 9000 || got.TimeSpent != 45*time.Minute {
		t.Errorf("got chars=%d spent=%v", got.CharsRead, got.TimeSpent)
	}

	missing := makeTestSession(9999, "hash-x", time.Now())
	if err := s.UpdateSession(ctx, missing); !errors.Is(err, domainerrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDeleteSessionIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := makeTestSession(1003, "hash-x", time.Now().UTC())
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := s.DeleteSession(ctx, 1003); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if err := s.DeleteSession(ctx, 1003); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := s.GetSession(ctx, 1003); !errors.Is(err, domainerrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestTombstoneSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := makeTestSession(1004, "hash-x", time.Now().UTC())
	session.Synced = true
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := s.TombstoneSession(ctx, 1004); err != nil {
		t.Fatalf("tombstone session: %v", err)
	}

	got, err := s.GetSession(ctx, 1004)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Status != domain.SessionRemoved {
		t.Errorf("status = %q, want removed", got.Status)
	}
	if got.Synced {
		t.Error("tombstone must clear the synced flag")
	}

	if err := s.TombstoneSession(ctx, 42); !errors.Is(err, domainerrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestListUnsyncedSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC)

	// Completed, unsynced: included.
	if err := s.CreateSession(ctx, makeTestSession(2001, "b1", base)); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Completed, synced: excluded.
	synced := makeTestSession(2002, "b1", base.Add(time.Hour))
	synced.Synced = true
	if err := s.CreateSession(ctx, synced); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Still running (no end time): excluded.
	running := makeTestSession(2003, "b2", base.Add(2*time.Hour))
	running.EndedAt = time.Time{}
	if err := s.CreateSession(ctx, running); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Tombstone without end time: included so the delete propagates.
	tombstone := makeTestSession(2004, "b2", base.Add(3*time.Hour))
	tombstone.EndedAt = time.Time{}
	tombstone.Status = domain.SessionRemoved
	if err := s.CreateSession(ctx, tombstone); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.ListUnsyncedSessions(ctx)
	if err != nil {
		t.Fatalf("list unsynced: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("unsynced = %d, want 2", len(got))
	}
	// Oldest first.
	if got[0].Snowflake != 2001 || got[1].Snowflake != 2004 {
		t.Errorf("order = [%d %d], want [2001 2004]", got[0].Snowflake, got[1].Snowflake)
	}
}

func TestListSessionsInRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, snowflake := range []int64{3001, 3002, 3003} {
		if err := s.CreateSession(ctx, makeTestSession(snowflake, "b1", base.AddDate(0, 0, i))); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	// Tombstones are excluded from history queries.
	tomb := makeTestSession(3004, "b1", base.Add(12*time.Hour))
	tomb.Status = domain.SessionRemoved
	if err := s.CreateSession(ctx, tomb); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.ListSessionsInRange(ctx, base, base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("list in range: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("in range = %d, want 2", len(got))
	}
	// Most recent first.
	if got[0].Snowflake != 3002 || got[1].Snowflake != 3001 {
		t.Errorf("order = [%d %d], want [3002 3001]", got[0].Snowflake, got[1].Snowflake)
	}
}

func TestMarkSessionsSynced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	if err := s.CreateSession(ctx, makeTestSession(4001, "b1", base)); err != nil {
		t.Fatalf("create: %v", err)
	}
	tomb := makeTestSession(4002, "b1", base.Add(time.Minute))
	tomb.Status = domain.SessionRemoved
	if err := s.CreateSession(ctx, tomb); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateSession(ctx, makeTestSession(4003, "b1", base.Add(2*time.Minute))); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Partial ack: 4001 and 4002 confirmed, 4003 not.
	if err := s.MarkSessionsSynced(ctx, []int64{4001, 4002}); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	got, err := s.GetSession(ctx, 4001)
	if err != nil {
		t.Fatalf("get 4001: %v", err)
	}
	if !got.Synced {
		t.Error("4001 should be synced")
	}

	// Acknowledged tombstones are purged.
	if _, err := s.GetSession(ctx, 4002); !errors.Is(err, domainerrors.ErrNotFound) {
		t.Errorf("expected tombstone purged, got %v", err)
	}

	unsynced, err := s.ListUnsyncedSessions(ctx)
	if err != nil {
		t.Fatalf("list unsynced: %v", err)
	}
	if len(unsynced) != 1 || unsynced[0].Snowflake != 4003 {
		t.Errorf("unsynced = %+v, want only 4003", unsynced)
	}

	// Empty batch is a no-op.
	if err := s.MarkSessionsSynced(ctx, nil); err != nil {
		t.Fatalf("empty mark synced: %v", err)
	}
}
