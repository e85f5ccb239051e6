package model

import (
	"time"

	"github.com/google/uuid"
)

// Record is one immutable measurement of a tracker's video. Records form an
// append-only time series per tracker; they are never mutated and the core
// never deletes them (retention is a data-lifecycle concern outside the core).
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	TrackerID string    `json:"tracker_id"`
	Views     int64     `json:"views"`
	Likes     int64     `json:"likes"`
}

func NewRecord(trackerID string, views, likes int64, at time.Time) Record {
	return Record{
		ID:        uuid.NewString(),
		CreatedAt: at,
		TrackerID: trackerID,
		Views:     views,
		Likes:     likes,
	}
}

// EventType enumerates tracker lifecycle transitions kept in the event log.
type EventType string

const (
	EventCreated    EventType = "tracker.created"
	EventRecorded   EventType = "poll.recorded"
	EventPollFailed EventType = "poll.failed"
	EventCompleted  EventType = "tracker.completed" // milestone reached
	EventStopped    EventType = "tracker.stopped"   // explicit stop
	EventDeleted    EventType = "tracker.deleted"
)

// Event is an append-only audit entry. Unlike records, events survive
// tracker deletion so operators can reconstruct what happened.
type Event struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Type      EventType `json:"type"`
	TrackerID string    `json:"tracker_id"`
	Video     string    `json:"video,omitempty"`
	Views     int64     `json:"views,omitempty"`
	Likes     int64     `json:"likes,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

func NewEvent(typ EventType, trackerID string, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		At:        at,
		Type:      typ,
		TrackerID: trackerID,
	}
}
