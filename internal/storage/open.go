package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"viewtrack/internal/model"
	logx "viewtrack/pkg/logx"
)

// Store is the persistence API consumed by the tracker core and the admin
// surface. All three backends implement the same contract:
//
//   - Trackers carry their own scheduling state (next_due, stopped_at).
//   - Records are append-only per tracker, ordered by created_at.
//   - Events are append-only and survive tracker deletion.
//   - Stop is idempotent; schedule updates against a stopped tracker fail
//     with ErrStopped so stale in-flight polls cannot resurrect it.
//
// Reads may run concurrently; writes are serialized per backend.
type Store interface {
	CreateTracker(ctx context.Context, t *model.Tracker) error
	GetTracker(ctx context.Context, id string) (*model.Tracker, error)
	ListTrackers(ctx context.Context) ([]*model.Tracker, error)

	// ListDue returns live trackers whose next_due is at or before now,
	// ordered by next_due ascending.
	ListDue(ctx context.Context, now time.Time) ([]*model.Tracker, error)
	// NextDue returns the earliest next_due among live trackers.
	// ok is false when no live tracker exists.
	NextDue(ctx context.Context) (next time.Time, ok bool, err error)

	UpdateSchedule(ctx context.Context, id string, nextDue time.Time) error
	StopTracker(ctx context.Context, id string, at time.Time) error
	DeleteTracker(ctx context.Context, id string) error

	AppendRecord(ctx context.Context, r *model.Record) error
	ListRecords(ctx context.Context, trackerID string) ([]model.Record, error)

	AppendEvent(ctx context.Context, e *model.Event) error
	// ListEvents returns the newest events first. trackerID == "" means all.
	ListEvents(ctx context.Context, trackerID string, limit int) ([]model.Event, error)
	PruneEvents(ctx context.Context, olderThan time.Time) (int, error)

	// Checkpoint performs backend maintenance (WAL truncation on sqlite).
	// No-op on backends that need none.
	Checkpoint(ctx context.Context) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	case "postgres", "postgresql":
		return openPostgres(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
