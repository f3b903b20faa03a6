package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/inkwellapp/inkwell-client/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-client/internal/errors"
)

// sessionColumns is the ordered list of columns selected in session queries.
// Must match the scan order in scanSession.
const sessionColumns = `snowflake, book_id, book_title, book_language,
	started_at, ended_at, chars_read, time_spent_ms, start_chars, end_chars,
	device_id, synced, status`

// scanSession scans a sql.Row (or sql.Rows via its Scan method) into a domain.ReadingSession.
func scanSession(scanner interface{ Scan(dest ...any) error }) (*domain.ReadingSession, error) {
	var rs domain.ReadingSession

	var (
		bookLanguage sql.NullString
		startedAt    string
		endedAt      sql.NullString
		timeSpentMs  int64
		synced       int
		status       string
	)

	err := scanner.Scan(
		&rs.Snowflake,
		&rs.BookID,
		&rs.BookTitle,
		&bookLanguage,
		&startedAt,
		&endedAt,
		&rs.CharsRead,
		&timeSpentMs,
		&rs.StartChars,
		&rs.EndChars,
		&rs.DeviceID,
		&synced,
		&status,
	)
	if err != nil {
		return nil, err
	}

	if bookLanguage.Valid {
		rs.BookLanguage = bookLanguage.String
	}

	rs.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return nil, err
	}
	rs.EndedAt, err = parseNullableTime(endedAt)
	if err != nil {
		return nil, err
	}

	rs.TimeSpent = time.Duration(timeSpentMs) * time.Millisecond
	rs.Synced = synced != 0
	rs.Status = domain.SessionStatus(status)

	return &rs, nil
}

// CreateSession inserts a new reading session.
// Returns an ALREADY_EXISTS error if the snowflake is already present.
func (s *Store) CreateSession(ctx context.Context, session *domain.ReadingSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reading_sessions (
			snowflake, book_id, book_title, book_language,
			started_at, ended_at, chars_read, time_spent_ms, start_chars, end_chars,
			device_id, synced, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.Snowflake,
		session.BookID,
		session.BookTitle,
		nullString(session.BookLanguage),
		formatTime(session.StartedAt),
		nullTimeString(session.EndedAt),
		session.CharsRead,
		session.TimeSpent.Milliseconds(),
		session.StartChars,
		session.EndChars,
		session.DeviceID,
		boolToInt(session.Synced),
		string(session.Status),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domainerrors.AlreadyExistsf("session %d already exists", session.Snowflake)
		}
		return err
	}
	return nil
}

// UpdateSession performs a full row update on an existing session.
// Returns a NOT_FOUND error if the session does not exist.
func (s *Store) UpdateSession(ctx context.Context, session *domain.ReadingSession) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reading_sessions SET
			book_id = ?,
			book_title = ?,
			book_language = ?,
			started_at = ?,
			ended_at = ?,
			chars_read = ?,
			time_spent_ms = ?,
			start_chars = ?,
			end_chars = ?,
			device_id = ?,
			synced = ?,
			status = ?
		WHERE snowflake = ?`,
		session.BookID,
		session.BookTitle,
		nullString(session.BookLanguage),
		formatTime(session.StartedAt),
		nullTimeString(session.EndedAt),
		session.CharsRead,
		session.TimeSpent.Milliseconds(),
		session.StartChars,
		session.EndChars,
		session.DeviceID,
		boolToInt(session.Synced),
		string(session.Status),
		session.Snowflake,
	)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domainerrors.NotFoundf("session %d not found", session.Snowflake)
	}
	return nil
}

// GetSession retrieves a single reading session by snowflake.
// Returns a NOT_FOUND error if the session does not exist.
func (s *Store) GetSession(ctx context.Context, snowflake int64) (*domain.ReadingSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM reading_sessions WHERE snowflake = ?`, snowflake)

	rs, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, domainerrors.NotFoundf("session %d not found", snowflake)
	}
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// DeleteSession removes a reading session by snowflake.
// This operation is idempotent.
func (s *Store) DeleteSession(ctx context.Context, snowflake int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM reading_sessions WHERE snowflake = ?`, snowflake)
	return err
}

// TombstoneSession marks a session as removed instead of deleting it,
// so the removal can still be propagated to the remote. The synced
// flag is cleared to put the tombstone back on the upload queue.
// Returns a NOT_FOUND error if the session does not exist.
func (s *Store) TombstoneSession(ctx context.Context, snowflake int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE reading_sessions SET status = ?, synced = 0
		WHERE snowflake = ?`,
		string(domain.SessionRemoved), snowflake)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domainerrors.NotFoundf("session %d not found", snowflake)
	}
	return nil
}

// ListUnsyncedSessions returns completed sessions that have not been
// acknowledged by the remote, oldest first. Active sessions (no end
// time) are excluded; tombstones are included so deletions propagate.
func (s *Store) ListUnsyncedSessions(ctx context.Context) ([]*domain.ReadingSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM reading_sessions
		WHERE synced = 0 AND (ended_at IS NOT NULL OR status = ?)
		ORDER BY started_at`,
		string(domain.SessionRemoved),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

// ListSessionsInRange returns active-status sessions whose start time
// falls within [from, to), most recent first.
func (s *Store) ListSessionsInRange(ctx context.Context, from, to time.Time) ([]*domain.ReadingSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM reading_sessions
		WHERE status = ? AND started_at >= ? AND started_at < ?
		ORDER BY started_at DESC`,
		string(domain.SessionActive),
		formatTime(from),
		formatTime(to),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

// ListSessionsForBook returns active-status sessions for a book,
// most recent first.
func (s *Store) ListSessionsForBook(ctx context.Context, bookID string) ([]*domain.ReadingSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM reading_sessions
		WHERE status = ? AND book_id = ?
		ORDER BY started_at DESC`,
		string(domain.SessionActive),
		bookID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

func collectSessions(rows *sql.Rows) ([]*domain.ReadingSession, error) {
	var sessions []*domain.ReadingSession
	for rows.Next() {
		rs, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// MarkSessionsSynced flags the given sessions as acknowledged by the
// remote. Tombstoned sessions are hard-deleted once acknowledged since
// nothing references them afterwards.
func (s *Store) MarkSessionsSynced(ctx context.Context, snowflakes []int64) error {
	if len(snowflakes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, snowflake := range snowflakes {
		if _, err := tx.ExecContext(ctx, `
			UPDATE reading_sessions SET synced = 1 WHERE snowflake = ?`, snowflake); err != nil {
			return fmt.Errorf("mark session %d synced: %w", snowflake, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM reading_sessions WHERE synced = 1 AND status = ?`,
		string(domain.SessionRemoved)); err != nil {
		return err
	}

	return tx.Commit()
}
