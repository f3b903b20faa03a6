// Package session owns the reading session lifecycle: one session at
// a time moves through active and paused states, progress writes are
// debounced, and sessions shorter than the noise threshold are
// discarded at the end instead of persisted.
package session

import "time"

// Clock abstracts wall-clock time and timer creation so tests can
// drive the debounce window without real waiting.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a stoppable pending callback.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// NewClock returns the wall clock.
func NewClock() Clock { return realClock{} }
