package domain

import "time"

// Timestamps is embedded in every persisted entity. UpdatedAt drives
// last-write-wins conflict resolution, so callers must go through Touch
// rather than assigning it directly.
type Timestamps struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Touch bumps UpdatedAt, setting CreatedAt on the first call.
func (t *Timestamps) Touch() {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}

// TouchAt is Touch with an explicit instant, used when replaying
// remote state that must keep its original modification time.
func (t *Timestamps) TouchAt(at time.Time) {
	at = at.UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = at
	}
	t.UpdatedAt = at
}
