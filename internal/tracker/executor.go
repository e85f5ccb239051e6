package tracker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"viewtrack/internal/model"
	"viewtrack/internal/stats"
	"viewtrack/internal/storage"
	logx "viewtrack/pkg/logx"
)

// RetryConfig bounds the fetch retries inside a single poll cycle.
type RetryConfig struct {
	Attempts int           // total provider attempts per poll
	Base     time.Duration // first backoff delay, doubled per attempt
	MaxDelay time.Duration
	Jitter   float64 // 0.2 = ±20%
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.Base <= 0 {
		c.Base = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 15 * time.Second
	}
	if c.Jitter <= 0 {
		c.Jitter = 0.2
	}
	return c
}

// Executor runs exactly one poll cycle for one tracker: fetch live stats,
// persist the record, evaluate the milestone, reschedule or stop.
//
// The executor never advances a tracker's schedule on a failed poll; after
// retries are exhausted the next run is deferred by one interval and the
// tracker stays live. Writes that race a delete or a stop come back as
// ErrNotFound/ErrStopped and are swallowed: stop is sticky and a stale
// in-flight poll must leave no trace.
type Executor struct {
	store    storage.Store
	provider stats.Provider
	log      logx.Logger

	mu  sync.Mutex
	cfg RetryConfig

	now func() time.Time
}

func NewExecutor(store storage.Store, provider stats.Provider, cfg RetryConfig, log logx.Logger) *Executor {
	return &Executor{
		store:    store,
		provider: provider,
		log:      log,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// ApplyRetry swaps retry settings at runtime (config hot reload).
func (e *Executor) ApplyRetry(cfg RetryConfig) {
	e.mu.Lock()
	e.cfg = cfg.withDefaults()
	e.mu.Unlock()
}

func (e *Executor) retryConfig() RetryConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Poll executes one cycle. It never returns an error: every outcome is
// either persisted, deferred or logged, and the scheduler's next scan picks
// up whatever is still due.
func (e *Executor) Poll(ctx context.Context, id string) {
	// Fresh read so a poll queued before a config change or stop request
	// does not act on stale state.
	t, err := e.store.GetTracker(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		e.log.Debug("tracker gone before poll", logx.String("tracker", id))
		return
	}
	if err != nil {
		e.log.Error("tracker read failed", logx.String("tracker", id), logx.Err(err))
		return
	}
	if t.Stopped() {
		return
	}

	fetched, err := e.fetch(ctx, t.Video)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown: leave the schedule untouched, the tracker is
			// re-polled after restart.
			return
		}
		e.deferPoll(ctx, t, err)
		return
	}

	rec := model.NewRecord(t.ID, fetched.Views, fetched.Likes, e.now())
	if err := e.store.AppendRecord(ctx, &rec); err != nil {
		if benign(err) {
			e.log.Debug("poll result dropped, tracker deleted or stopped mid-flight",
				logx.String("tracker", t.ID))
		} else {
			// Store failure: next_due stays in the past, so the tracker is
			// simply due again on the next scan. No data is lost.
			e.log.Error("record append failed", logx.String("tracker", t.ID), logx.Err(err))
		}
		return
	}

	ev := model.NewEvent(model.EventRecorded, t.ID, rec.CreatedAt)
	ev.Video = t.Video
	ev.Views = rec.Views
	ev.Likes = rec.Likes
	e.appendEvent(ctx, &ev)

	if t.MilestoneReached(fetched.Views) {
		e.complete(ctx, t, rec)
		return
	}

	next := t.NextAfter(rec.CreatedAt)
	if err := e.store.UpdateSchedule(ctx, t.ID, next); err != nil && !benign(err) {
		e.log.Error("reschedule failed", logx.String("tracker", t.ID), logx.Err(err))
		return
	}
	e.log.Debug("poll recorded",
		logx.String("tracker", t.ID),
		logx.String("video", t.Video),
		logx.Int64("views", rec.Views),
		logx.Int64("likes", rec.Likes),
		logx.Time("next_due", next))
}

// fetch calls the provider with bounded retry. Only ErrUnavailable is
// retried; anything else (typically context cancellation) aborts the poll.
func (e *Executor) fetch(ctx context.Context, videoID string) (stats.Stats, error) {
	cfg := e.retryConfig()

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		st, err := e.provider.Fetch(ctx, videoID)
		if err == nil {
			return st, nil
		}
		lastErr = err
		if !errors.Is(err, stats.ErrUnavailable) || attempt == cfg.Attempts {
			break
		}

		delay := backoffDelay(cfg, attempt)
		e.log.Debug("provider unavailable, retrying",
			logx.String("video", videoID),
			logx.Int("attempt", attempt),
			logx.Duration("delay", delay),
			logx.Err(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return stats.Stats{}, ctx.Err()
		case <-timer.C:
		}
	}
	return stats.Stats{}, lastErr
}

// deferPoll pushes the tracker's next run out by one interval after a
// failed poll, without marking it stopped.
func (e *Executor) deferPoll(ctx context.Context, t *model.Tracker, cause error) {
	deferred := e.now().Add(t.Interval)
	if err := e.store.UpdateSchedule(ctx, t.ID, deferred); err != nil && !benign(err) {
		e.log.Error("schedule deferral failed", logx.String("tracker", t.ID), logx.Err(err))
	}

	ev := model.NewEvent(model.EventPollFailed, t.ID, e.now())
	ev.Video = t.Video
	ev.Detail = cause.Error()
	e.appendEvent(ctx, &ev)

	e.log.Warn("poll failed, deferred one interval",
		logx.String("tracker", t.ID),
		logx.String("video", t.Video),
		logx.Time("next_due", deferred),
		logx.Err(cause))
}

func (e *Executor) complete(ctx context.Context, t *model.Tracker, rec model.Record) {
	// StopTracker is idempotent, so racing an explicit stop is harmless.
	if err := e.store.StopTracker(ctx, t.ID, rec.CreatedAt); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.log.Error("milestone stop failed", logx.String("tracker", t.ID), logx.Err(err))
		}
		return
	}

	ev := model.NewEvent(model.EventCompleted, t.ID, rec.CreatedAt)
	ev.Video = t.Video
	ev.Views = rec.Views
	ev.Likes = rec.Likes
	ev.Detail = fmt.Sprintf("reached %d views, milestone %d", rec.Views, *t.Milestone)
	e.appendEvent(ctx, &ev)

	e.log.Info("milestone reached, tracker stopped",
		logx.String("tracker", t.ID),
		logx.String("video", t.Video),
		logx.Int64("views", rec.Views),
		logx.Int64("milestone", *t.Milestone))
}

// appendEvent is best-effort: the event log is an audit aid, never worth
// failing a poll over.
func (e *Executor) appendEvent(ctx context.Context, ev *model.Event) {
	if err := e.store.AppendEvent(ctx, ev); err != nil {
		e.log.Warn("event append failed", logx.String("type", string(ev.Type)), logx.Err(err))
	}
}

func benign(err error) bool {
	return errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrStopped)
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	d := cfg.Base << (attempt - 1)
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	// Jitter to avoid thundering herds when many trackers hit the same
	// outage window.
	f := 1 + cfg.Jitter*(2*rand.Float64()-1)
	d = time.Duration(float64(d) * f)
	if d < 0 {
		d = 0
	}
	return d
}
