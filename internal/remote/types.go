package remote

import "time"

// BookSummary is the remote's view of one book, returned by the list
// endpoint. UpdatedAt is unix milliseconds; the reconciler compares it
// against local modification times at millisecond granularity.
type BookSummary struct {
	UniqueID  string `json:"unique_id"`
	Title     string `json:"title"`
	Author    string `json:"author,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
}

// BookMeta carries the cheap metadata fields synced without a full
// payload transfer.
type BookMeta struct {
	UniqueID      string `json:"unique_id"`
	Title         string `json:"title"`
	Author        string `json:"author,omitempty"`
	Language      string `json:"language,omitempty"`
	TotalChars    int    `json:"total_chars"`
	CurrChars     int    `json:"curr_chars"`
	CurrParagraph int    `json:"curr_paragraph"`
	UpdatedAt     int64  `json:"updated_at"`
}

// syncBookRequest is the body of the metadata sync call.
type syncBookRequest struct {
	Book BookMeta `json:"book"`
}

// syncBookResponse carries the remote's answer to a metadata sync: the
// remote's newer copy, or null when the local copy won.
type syncBookResponse struct {
	Book *BookMeta `json:"book"`
}

// uploadResponse is returned after a payload upload.
type uploadResponse struct {
	URL string `json:"url"`
}

// SessionRecord is one reading session on the wire. Timestamps are
// unix milliseconds.
type SessionRecord struct {
	Snowflake    int64  `json:"snowflake"`
	BookID       string `json:"book_id"`
	BookTitle    string `json:"book_title"`
	BookLanguage string `json:"book_language,omitempty"`
	StartedAt    int64  `json:"started_at"`
	EndedAt      int64  `json:"ended_at,omitempty"`
	CharsRead    int    `json:"chars_read"`
	TimeSpentMs  int64  `json:"time_spent_ms"`
	DeviceID     string `json:"device_id"`
}

// Session ack statuses. Duplicate acks count as success: the remote
// already has the record, so the local copy can be marked synced.
const (
	SessionCreated   = "created"
	SessionDuplicate = "duplicate"
)

// SessionAck is the remote's per-session answer to a batch create.
type SessionAck struct {
	Snowflake int64  `json:"snowflake"`
	Status    string `json:"status"`
}

type createSessionsRequest struct {
	Sessions []SessionRecord `json:"sessions"`
}

type createSessionsResponse struct {
	Results []SessionAck `json:"results"`
}

// PullSessionsResponse is a page of remote session deltas.
type PullSessionsResponse struct {
	Sessions []SessionRecord `json:"sessions"`
	Cursor   string          `json:"cursor,omitempty"`
}

// ToMillis converts a time to the wire's unix-millisecond form,
// zero mapping to zero.
func ToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis converts a wire timestamp back to a UTC time,
// zero mapping to the zero time.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
