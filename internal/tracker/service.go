package tracker

import (
	"context"
	"time"

	"viewtrack/internal/model"
	"viewtrack/internal/search"
	"viewtrack/internal/storage"
	logx "viewtrack/pkg/logx"
)

// Waker wakes the scheduler after tracker mutations. Decoupled as an
// interface so the admin surface can be tested without a running scheduler.
type Waker interface {
	Kick()
}

type nopWaker struct{}

func (nopWaker) Kick() {}

// Service is the administrative facade over trackers: create, stop,
// delete, status and history. An external CLI/API layer talks to this,
// never to the store directly.
type Service struct {
	store storage.Store
	index search.Index
	waker Waker
	log   logx.Logger
	now   func() time.Time
}

func NewService(store storage.Store, index search.Index, waker Waker, log logx.Logger) *Service {
	if waker == nil {
		waker = nopWaker{}
	}
	return &Service{
		store: store,
		index: index,
		waker: waker,
		log:   log,
		now:   time.Now,
	}
}

// CreateParams is the external input for a new tracker. Video accepts a
// bare id or any supported YouTube URL form.
type CreateParams struct {
	Title       string
	Video       string
	ScheduledOn time.Time
	Interval    time.Duration
	Milestone   *int64
}

func (s *Service) Create(ctx context.Context, p CreateParams) (*model.Tracker, error) {
	t, err := model.NewTracker(p.Title, p.Video, p.ScheduledOn, p.Interval, p.Milestone)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateTracker(ctx, t); err != nil {
		return nil, err
	}

	ev := model.NewEvent(model.EventCreated, t.ID, t.CreatedAt)
	ev.Video = t.Video
	ev.Detail = t.Title
	s.appendEvent(ctx, &ev)

	if s.index != nil {
		s.index.Index(t.ID, t.Title)
	}
	s.waker.Kick()

	s.log.Info("tracker created",
		logx.String("tracker", t.ID),
		logx.String("video", t.Video),
		logx.Time("scheduled_on", t.ScheduledOn),
		logx.Duration("interval", t.Interval))
	return t, nil
}

// Stop terminates a tracker. Stopping an already-stopped tracker is a
// no-op success so explicit stops can race milestone stops safely.
func (s *Service) Stop(ctx context.Context, id string) (*model.Tracker, error) {
	t, err := s.store.GetTracker(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Stopped() {
		return t, nil
	}

	at := s.now()
	if err := s.store.StopTracker(ctx, id, at); err != nil {
		return nil, err
	}

	ev := model.NewEvent(model.EventStopped, id, at)
	ev.Video = t.Video
	s.appendEvent(ctx, &ev)
	s.waker.Kick()

	s.log.Info("tracker stopped", logx.String("tracker", id))
	return s.store.GetTracker(ctx, id)
}

// Delete removes a tracker and its records. Events are kept for audit.
// An in-flight poll for the deleted tracker finishes, but its writes are
// rejected by the store as NotFound and discarded.
func (s *Service) Delete(ctx context.Context, id string) error {
	t, err := s.store.GetTracker(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTracker(ctx, id); err != nil {
		return err
	}

	ev := model.NewEvent(model.EventDeleted, id, s.now())
	ev.Video = t.Video
	ev.Detail = t.Title
	s.appendEvent(ctx, &ev)

	if s.index != nil {
		s.index.Remove(id)
	}
	s.waker.Kick()

	s.log.Info("tracker deleted", logx.String("tracker", id))
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Tracker, error) {
	return s.store.GetTracker(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*model.Tracker, error) {
	return s.store.ListTrackers(ctx)
}

func (s *Service) Records(ctx context.Context, id string) ([]model.Record, error) {
	return s.store.ListRecords(ctx, id)
}

func (s *Service) Events(ctx context.Context, trackerID string, limit int) ([]model.Event, error) {
	return s.store.ListEvents(ctx, trackerID, limit)
}

func (s *Service) Search(query string, limit int) []search.Match {
	if s.index == nil {
		return nil
	}
	return s.index.Search(query, limit)
}

// Reindex rebuilds the title index from the store, used at startup since
// the bundled index is in-memory only.
func (s *Service) Reindex(ctx context.Context) error {
	if s.index == nil {
		return nil
	}
	trackers, err := s.store.ListTrackers(ctx)
	if err != nil {
		return err
	}
	for _, t := range trackers {
		s.index.Index(t.ID, t.Title)
	}
	s.log.Debug("title index rebuilt", logx.Int("trackers", len(trackers)))
	return nil
}

func (s *Service) appendEvent(ctx context.Context, ev *model.Event) {
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		s.log.Warn("event append failed", logx.String("type", string(ev.Type)), logx.Err(err))
	}
}
