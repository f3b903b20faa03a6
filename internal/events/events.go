// Package events implements the in-process event bus that fans out
// library and reading changes to interested components (UI bindings,
// the search indexer, sync status views).
package events

import "time"

// EventType represents the type of bus event.
type EventType string

const (
	// EventBookImported represents a new book landing in the library.
	EventBookImported EventType = "book.imported"
	// EventBookUpdated represents a book metadata or progress update.
	EventBookUpdated EventType = "book.updated"
	// EventBookDeleted represents a book removal.
	EventBookDeleted EventType = "book.deleted"

	// EventShelfCreated represents a bookshelf creation.
	EventShelfCreated EventType = "shelf.created"
	// EventShelfUpdated represents a bookshelf rename or membership change.
	EventShelfUpdated EventType = "shelf.updated"
	// EventShelfDeleted represents a bookshelf removal.
	EventShelfDeleted EventType = "shelf.deleted"

	// EventSessionStarted represents a reading session starting.
	EventSessionStarted EventType = "session.started"
	// EventSessionEnded represents a reading session ending.
	EventSessionEnded EventType = "session.ended"

	// EventSyncStarted represents a sync pass beginning.
	EventSyncStarted EventType = "sync.started"
	// EventSyncCompleted represents a sync pass finishing.
	EventSyncCompleted EventType = "sync.completed"
)

// Event is a single bus event. Data carries the event-specific payload
// so subscribers can render updates without a follow-up store read.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
}

// BookEventData is the data payload for book events.
type BookEventData struct {
	UniqueID string `json:"uniqueId"`
	LocalID  int64  `json:"localId"`
	Title    string `json:"title"`
}

// ShelfEventData is the data payload for bookshelf events.
type ShelfEventData struct {
	ShelfID string `json:"shelfId"`
	Name    string `json:"name"`
}

// SessionEventData is the data payload for reading session events.
type SessionEventData struct {
	Snowflake int64  `json:"snowflake"`
	BookID    string `json:"bookId"`
}

// SyncEventData is the data payload for sync events.
type SyncEventData struct {
	BooksUploaded   int `json:"booksUploaded"`
	BooksDownloaded int `json:"booksDownloaded"`
	SessionsSynced  int `json:"sessionsSynced"`
	Failures        int `json:"failures"`
}

// New builds an event with the current timestamp.
func New(eventType EventType, data any) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}
}
