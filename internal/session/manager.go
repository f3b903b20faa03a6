package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/inkwellapp/inkwell-client/internal/domain"
	"github.com/inkwellapp/inkwell-client/internal/events"
	"github.com/inkwellapp/inkwell-client/internal/id"
	"github.com/inkwellapp/inkwell-client/internal/store"
)

// State is the manager's lifecycle position.
type State string

const (
	StateInactive State = "inactive"
	StateActive   State = "active"
	StatePaused   State = "paused"
)

const (
	// progressFlushDelay is the idle window before buffered progress
	// reaches the store. Scroll events arrive in bursts; one write per
	// burst is enough.
	progressFlushDelay = 3 * time.Second

	// minSessionLength filters out reading noise: a session shorter
	// than this at end time is discarded, not persisted.
	minSessionLength = 30 * time.Second
)

// Syncer pushes finished sessions to the remote. Session end triggers
// it fire-and-forget; failures there never affect session teardown.
type Syncer interface {
	SyncSessions(ctx context.Context) (int, error)
}

// Manager owns the single in-progress reading session. All session
// mutation goes through it; other components may only mark sessions
// synced or tombstoned.
type Manager struct {
	store    *store.Store
	syncer   Syncer
	emitter  store.EventEmitter
	logger   *slog.Logger
	clock    Clock
	debounce *debouncer
	ids      *id.SnowflakeGenerator

	mu           sync.Mutex
	state        State
	current      *domain.ReadingSession
	initialChars int
	lastActive   time.Time
}

// NewManager creates a session manager using the wall clock.
func NewManager(s *store.Store, syncer Syncer, emitter store.EventEmitter, logger *slog.Logger) *Manager {
	return NewManagerWithClock(s, syncer, emitter, logger, NewClock())
}

// NewManagerWithClock creates a session manager on an injected clock.
func NewManagerWithClock(s *store.Store, syncer Syncer, emitter store.EventEmitter, logger *slog.Logger, clock Clock) *Manager {
	if emitter == nil {
		emitter = store.NoopEmitter{}
	}
	return &Manager{
		store:    s,
		syncer:   syncer,
		emitter:  emitter,
		logger:   logger,
		clock:    clock,
		debounce: newDebouncer(clock, progressFlushDelay),
		ids:      id.NewSnowflakeGenerator(),
		state:    StateInactive,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns a copy of the in-progress session, or nil.
func (m *Manager) Current() *domain.ReadingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	snapshot := *m.current
	return &snapshot
}

// Start begins a session for the given book. An in-progress session
// is ended first, never silently abandoned.
func (m *Manager) Start(ctx context.Context, book *domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if m.state != StateInactive {
		if err := m.endLocked(ctx, now); err != nil {
			return fmt.Errorf("close previous session: %w", err)
		}
	}

	deviceID, err := m.store.DeviceID(ctx)
	if err != nil {
		return fmt.Errorf("resolve device id: %w", err)
	}

	session := &domain.ReadingSession{
		Snowflake:    m.ids.Next(),
		BookID:       book.UniqueID,
		BookTitle:    book.Title,
		BookLanguage: book.Language,
		StartedAt:    now,
		StartChars:   book.CurrChars,
		EndChars:     book.CurrChars,
		DeviceID:     deviceID,
		Status:       domain.SessionActive,
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	m.current = session
	m.initialChars = book.CurrChars
	m.lastActive = now
	m.state = StateActive

	m.logger.Debug("reading session started",
		slog.Int64("snowflake", session.Snowflake),
		slog.String("book_id", session.BookID))
	m.emitter.Emit(events.New(events.EventSessionStarted, events.SessionEventData{
		Snowflake: session.Snowflake,
		BookID:    session.BookID,
	}))
	return nil
}

// Pause suspends the session. Already paused or inactive is a no-op.
func (m *Manager) Pause(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return nil
	}

	now := m.clock.Now()
	m.current.TimeSpent += now.Sub(m.lastActive)
	m.debounce.Flush()
	m.state = StatePaused
	return nil
}

// Resume continues a paused session. Not paused is a no-op.
func (m *Manager) Resume(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StatePaused {
		return nil
	}

	m.lastActive = m.clock.Now()
	m.state = StateActive
	return nil
}

// UpdateProgress records a new reading position. Calls while paused
// or inactive are no-ops. The store write is debounced: a burst of
// calls inside the idle window results in one write carrying the last
// call's values.
func (m *Manager) UpdateProgress(ctx context.Context, charsPosition, paragraph int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return nil
	}

	now := m.clock.Now()
	m.current.TimeSpent += now.Sub(m.lastActive)
	m.lastActive = now
	m.current.CharsRead = charsPosition - m.initialChars
	m.current.EndChars = charsPosition

	snapshot := *m.current
	m.debounce.Schedule(func() {
		m.writeProgress(snapshot, paragraph)
	})
	return nil
}

// writeProgress persists a progress snapshot: the session row and the
// book's progress cursors in one debounced flush.
func (m *Manager) writeProgress(snapshot domain.ReadingSession, paragraph int) {
	ctx := context.Background()

	if err := m.store.UpdateSession(ctx, &snapshot); err != nil {
		m.logger.Warn("session progress write failed",
			slog.Int64("snowflake", snapshot.Snowflake),
			slog.String("error", err.Error()))
	}
	if err := m.store.UpdateProgress(ctx, snapshot.BookID, snapshot.EndChars, paragraph, m.clock.Now()); err != nil {
		m.logger.Warn("book progress write failed",
			slog.String("book_id", snapshot.BookID),
			slog.String("error", err.Error()))
	}
}

// End finalizes the session. Sessions shorter than the noise
// threshold are discarded: hard-deleted, or tombstoned when the
// remote already saw them. Inactive is a no-op.
func (m *Manager) End(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateInactive {
		return nil
	}
	return m.endLocked(ctx, m.clock.Now())
}

// endLocked runs the end transition. Callers hold m.mu.
func (m *Manager) endLocked(ctx context.Context, now time.Time) error {
	if m.state == StateActive {
		m.current.TimeSpent += now.Sub(m.lastActive)
	}
	m.debounce.Flush()

	session := m.current
	m.current = nil
	m.state = StateInactive

	session.EndedAt = now

	if session.TimeSpent < minSessionLength {
		m.logger.Debug("short session discarded",
			slog.Int64("snowflake", session.Snowflake),
			slog.Duration("time_spent", session.TimeSpent))
		if session.Synced {
			return m.store.TombstoneSession(ctx, session.Snowflake)
		}
		return m.store.DeleteSession(ctx, session.Snowflake)
	}

	if err := m.store.UpdateSession(ctx, session); err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}

	m.logger.Debug("reading session ended",
		slog.Int64("snowflake", session.Snowflake),
		slog.Duration("time_spent", session.TimeSpent),
		slog.Int("chars_read", session.CharsRead))
	m.emitter.Emit(events.New(events.EventSessionEnded, events.SessionEventData{
		Snowflake: session.Snowflake,
		BookID:    session.BookID,
	}))

	if m.syncer != nil {
		go func() {
			if _, err := m.syncer.SyncSessions(context.Background()); err != nil {
				m.logger.Debug("post-session sync failed", slog.String("error", err.Error()))
			}
		}()
	}
	return nil
}

// Close flushes and ends any in-progress session. Called on app
// teardown so buffered progress is never lost.
func (m *Manager) Close(ctx context.Context) error {
	return m.End(ctx)
}
