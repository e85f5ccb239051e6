package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when the referenced tracker does not exist.
var ErrNotFound = errors.New("tracker not found")

// ErrStopped is returned when a write targets a tracker whose StoppedAt is
// already set. Stop is sticky: a stale in-flight poll must never un-stop or
// reschedule a terminated tracker. Callers treat this as a benign no-op.
var ErrStopped = errors.New("tracker already stopped")

// Config configures storage.
//
// Driver values:
//   - "memory": dependency-free in-process backend (lost on restart)
//   - "sqlite": SQLite database file (default)
//   - "postgres": PostgreSQL via DSN, for shared deployments
type Config struct {
	Driver      string
	Path        string        // sqlite only
	DSN         string        // postgres only
	BusyTimeout time.Duration // sqlite only; 0 means default
}
