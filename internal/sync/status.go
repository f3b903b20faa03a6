package sync

import (
	"errors"
	"sync"
	"time"

	domainerrors "github.com/inkwellapp/inkwell-client/internal/errors"
)

// Snapshot is a point-in-time view of the reconciler's state, read by
// the UI layer for the sync indicator.
type Snapshot struct {
	InProgress      bool      `json:"in_progress"`
	LastSyncAt      time.Time `json:"last_sync_at,omitzero"`
	LastError       string    `json:"last_error,omitempty"`
	Retryable       bool      `json:"retryable"`
	BooksUploaded   int       `json:"books_uploaded"`
	BooksDownloaded int       `json:"books_downloaded"`
	SessionsSynced  int       `json:"sessions_synced"`
	Failures        int       `json:"failures"`
}

// status tracks the outcome of the most recent sync pass.
type status struct {
	mu       sync.Mutex
	snapshot Snapshot
}

func (s *status) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.InProgress = true
}

// finish records the pass outcome. Connection failures and internal
// errors are marked retryable so the indicator can offer a retry.
func (s *status) finish(result Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.InProgress = false
	s.snapshot.LastSyncAt = time.Now().UTC()
	s.snapshot.BooksUploaded = result.BooksUploaded
	s.snapshot.BooksDownloaded = result.BooksDownloaded
	s.snapshot.SessionsSynced = result.SessionsSynced
	s.snapshot.Failures = result.Failures

	if err == nil {
		s.snapshot.LastError = ""
		s.snapshot.Retryable = result.Failures > 0
		return
	}

	s.snapshot.LastError = err.Error()
	var derr *domainerrors.Error
	s.snapshot.Retryable = !errors.As(err, &derr) || derr.Retryable()
}

func (s *status) get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}
