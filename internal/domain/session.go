package domain

import "time"

// SessionStatus tracks a reading session's lifecycle in the store.
type SessionStatus string

const (
	// SessionActive is a live or completed session awaiting sync.
	SessionActive SessionStatus = "active"
	// SessionRemoved marks a tombstone: the session was discarded
	// locally after part of it may have reached the remote, so the
	// deletion itself still has to be propagated.
	SessionRemoved SessionStatus = "removed"
)

// ReadingSession is one contiguous stint of reading. Snowflake is the
// globally unique, time-ordered identifier minted when the session
// starts; the remote deduplicates on it, which makes session upload
// batches safe to retry.
type ReadingSession struct {
	Snowflake int64 `json:"snowflake"`

	// BookID is the book's unique id. Title and language are
	// denormalized so session history stays readable after the book
	// itself is deleted from the device.
	BookID       string `json:"bookId"`
	BookTitle    string `json:"bookTitle"`
	BookLanguage string `json:"bookLanguage,omitempty"`

	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`

	CharsRead int           `json:"charsRead"`
	TimeSpent time.Duration `json:"timeSpent"`

	StartChars int `json:"startChars"`
	EndChars   int `json:"endChars"`

	DeviceID string `json:"deviceId"`

	Synced bool          `json:"synced"`
	Status SessionStatus `json:"status"`
}

// Duration returns active reading time, falling back to wall-clock
// span for sessions recorded before pause tracking existed.
func (s *ReadingSession) Duration() time.Duration {
	if s.TimeSpent > 0 {
		return s.TimeSpent
	}
	if s.EndedAt.After(s.StartedAt) {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return 0
}
