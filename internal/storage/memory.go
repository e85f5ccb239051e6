package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"viewtrack/internal/model"
)

// Memory is the dependency-free backend. Everything is lost on restart,
// which is fine for tests and local experiments.
type Memory struct {
	mu       sync.RWMutex
	trackers map[string]*model.Tracker
	records  map[string][]model.Record
	events   []model.Event
}

func NewMemory() *Memory {
	return &Memory{
		trackers: map[string]*model.Tracker{},
		records:  map[string][]model.Record{},
	}
}

func (m *Memory) CreateTracker(_ context.Context, t *model.Tracker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trackers[t.ID] = t.Clone()
	return nil
}

func (m *Memory) GetTracker(_ context.Context, id string) (*model.Tracker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trackers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (m *Memory) ListTrackers(_ context.Context) ([]*model.Tracker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Tracker, 0, len(m.trackers))
	for _, t := range m.trackers {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListDue(_ context.Context, now time.Time) ([]*model.Tracker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Tracker
	for _, t := range m.trackers {
		if t.Stopped() || t.NextDue.After(now) {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextDue.Before(out[j].NextDue) })
	return out, nil
}

func (m *Memory) NextDue(_ context.Context) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var next time.Time
	found := false
	for _, t := range m.trackers {
		if t.Stopped() {
			continue
		}
		if !found || t.NextDue.Before(next) {
			next = t.NextDue
			found = true
		}
	}
	return next, found, nil
}

func (m *Memory) UpdateSchedule(_ context.Context, id string, nextDue time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trackers[id]
	if !ok {
		return ErrNotFound
	}
	if t.Stopped() {
		return ErrStopped
	}
	t.NextDue = nextDue
	return nil
}

func (m *Memory) StopTracker(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trackers[id]
	if !ok {
		return ErrNotFound
	}
	if t.Stopped() {
		return nil // idempotent
	}
	stopped := at
	t.StoppedAt = &stopped
	return nil
}

func (m *Memory) DeleteTracker(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trackers[id]; !ok {
		return ErrNotFound
	}
	delete(m.trackers, id)
	delete(m.records, id)
	return nil
}

func (m *Memory) AppendRecord(_ context.Context, r *model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trackers[r.TrackerID]
	if !ok {
		return ErrNotFound
	}
	if t.Stopped() {
		return ErrStopped
	}
	m.records[r.TrackerID] = append(m.records[r.TrackerID], *r)
	return nil
}

func (m *Memory) ListRecords(_ context.Context, trackerID string) ([]model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.trackers[trackerID]; !ok {
		return nil, ErrNotFound
	}
	recs := m.records[trackerID]
	out := make([]model.Record, len(recs))
	copy(out, recs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) AppendEvent(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *Memory) ListEvents(_ context.Context, trackerID string, limit int) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if trackerID != "" && e.TrackerID != trackerID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) PruneEvents(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	pruned := 0
	for _, e := range m.events {
		if e.At.Before(olderThan) {
			pruned++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return pruned, nil
}

func (m *Memory) Checkpoint(context.Context) error { return nil }
func (m *Memory) Close() error                     { return nil }
