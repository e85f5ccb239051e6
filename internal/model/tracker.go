// Package model holds the persisted domain types: trackers, records and
// the tracker event log.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalid marks tracker validation failures. Callers can match it with
// errors.Is to distinguish bad input from infrastructure errors.
var ErrInvalid = errors.New("invalid tracker")

// MinInterval is the smallest poll interval accepted at creation time.
const MinInterval = time.Second

// Status is the logical scheduling state of a tracker. It is derived from
// the stored fields, never persisted on its own.
type Status string

const (
	StatusPending Status = "pending"
	StatusDue     Status = "due"
	StatusStopped Status = "stopped"
)

// Tracker is a long-lived tracking job for one video.
//
// Title, Video, ScheduledOn and Interval are immutable after creation.
// NextDue advances after every completed poll; StoppedAt, once set, is
// terminal: no code path clears it and schedule updates against a stopped
// tracker are rejected by the store.
type Tracker struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Title string `json:"title"`
	Video string `json:"video"`

	ScheduledOn time.Time     `json:"scheduled_on"`
	Interval    time.Duration `json:"interval"`
	Milestone   *int64        `json:"milestone,omitempty"`

	NextDue   time.Time  `json:"next_due"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
}

// NewTracker validates the input and builds a tracker whose first poll is
// due at scheduledOn.
func NewTracker(title, video string, scheduledOn time.Time, interval time.Duration, milestone *int64) (*Tracker, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	id, err := ParseVideoID(video)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if interval < MinInterval {
		return nil, fmt.Errorf("%w: interval %s is below the %s minimum", ErrInvalid, interval, MinInterval)
	}
	if milestone != nil && *milestone <= 0 {
		return nil, fmt.Errorf("%w: milestone must be > 0", ErrInvalid)
	}
	if scheduledOn.IsZero() {
		scheduledOn = time.Now()
	}

	var m *int64
	if milestone != nil {
		v := *milestone
		m = &v
	}

	return &Tracker{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now(),
		Title:       title,
		Video:       id,
		ScheduledOn: scheduledOn,
		Interval:    interval,
		Milestone:   m,
		NextDue:     scheduledOn,
	}, nil
}

func (t *Tracker) Stopped() bool { return t.StoppedAt != nil }

// Status derives the scheduling state at the given instant.
func (t *Tracker) Status(now time.Time) Status {
	switch {
	case t.Stopped():
		return StatusStopped
	case now.Before(t.NextDue):
		return StatusPending
	default:
		return StatusDue
	}
}

// NextAfter computes the schedule position following a poll completed at
// polledAt.
//
// This is the drift-tolerant variant (lastPollTime + interval) rather than
// phase-locking to ScheduledOn: after transient provider failures the
// tracker resumes at a steady cadence instead of bursting to catch up.
func (t *Tracker) NextAfter(polledAt time.Time) time.Time {
	return polledAt.Add(t.Interval)
}

// MilestoneReached reports whether the fetched view count satisfies the
// configured milestone. Always false when no milestone is set.
func (t *Tracker) MilestoneReached(views int64) bool {
	return t.Milestone != nil && views >= *t.Milestone
}

// Clone returns a deep copy, so store implementations can hand out
// trackers without aliasing their internal state.
func (t *Tracker) Clone() *Tracker {
	cp := *t
	if t.Milestone != nil {
		v := *t.Milestone
		cp.Milestone = &v
	}
	if t.StoppedAt != nil {
		v := *t.StoppedAt
		cp.StoppedAt = &v
	}
	return &cp
}
