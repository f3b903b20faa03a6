package domain

// BookSummary is the lightweight row shown in library views. It is
// written atomically with its Book and shares the book's identifiers
// and timestamps, so a summary list never disagrees with the payloads
// on disk.
type BookSummary struct {
	LocalID  int64  `json:"localId"`
	UniqueID string `json:"uniqueId"`

	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
	// Description is plain markdown, converted once at import time.
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`

	TotalChars int `json:"totalChars"`
	CurrChars  int `json:"currChars"`

	Cover          []byte `json:"cover,omitempty"`
	CoverMediaType string `json:"coverMediaType,omitempty"`
	CoverBlurHash  string `json:"coverBlurHash,omitempty"`

	Timestamps
}

// Progress returns the fraction of the book read, in [0, 1].
func (s *BookSummary) Progress() float64 {
	if s.TotalChars <= 0 {
		return 0
	}
	p := float64(s.CurrChars) / float64(s.TotalChars)
	if p > 1 {
		return 1
	}
	return p
}
