package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"viewtrack/internal/storage"
	"viewtrack/internal/tracker"
	logx "viewtrack/pkg/logx"
)

// JanitorConfig controls periodic maintenance cadences. A zero
// EventRetention disables event pruning.
type JanitorConfig struct {
	CheckpointEvery time.Duration
	EventRetention  time.Duration
}

// Janitor runs background maintenance on a cron schedule: storage
// checkpoints, event log retention and a periodic health line with
// scheduler load.
type Janitor struct {
	cfg   JanitorConfig
	store storage.Store
	sched *tracker.Scheduler
	log   logx.Logger

	mu     sync.Mutex
	c      *cron.Cron
	cancel context.CancelFunc
}

func NewJanitor(cfg JanitorConfig, store storage.Store, sched *tracker.Scheduler, log logx.Logger) *Janitor {
	return &Janitor{cfg: cfg, store: store, sched: sched, log: log}
}

func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.c != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.c = cron.New()

	if j.cfg.CheckpointEvery > 0 {
		spec := fmt.Sprintf("@every %s", j.cfg.CheckpointEvery)
		j.c.AddFunc(spec, func() { j.checkpoint(runCtx) }) //nolint:errcheck
	}
	if j.cfg.EventRetention > 0 {
		// Prune more often than the retention window so the log never
		// holds much more than one window of expired entries.
		every := j.cfg.EventRetention / 4
		if every < time.Minute {
			every = time.Minute
		}
		if every > 6*time.Hour {
			every = 6 * time.Hour
		}
		spec := fmt.Sprintf("@every %s", every)
		j.c.AddFunc(spec, func() { j.pruneEvents(runCtx) }) //nolint:errcheck
	}
	j.c.AddFunc("@every 10m", func() { j.heartbeat(runCtx) }) //nolint:errcheck

	j.c.Start()
	j.log.Info("janitor started",
		logx.Duration("checkpoint_every", j.cfg.CheckpointEvery),
		logx.Duration("event_retention", j.cfg.EventRetention))
}

func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.c == nil {
		return
	}
	<-j.c.Stop().Done()
	j.c = nil
	if j.cancel != nil {
		j.cancel()
		j.cancel = nil
	}
	j.log.Info("janitor stopped")
}

func (j *Janitor) checkpoint(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := j.store.Checkpoint(ctx); err != nil {
		j.log.Warn("checkpoint failed", logx.Err(err))
		return
	}
	j.log.Debug("storage checkpoint done")
}

func (j *Janitor) pruneEvents(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	cutoff := time.Now().Add(-j.cfg.EventRetention)
	n, err := j.store.PruneEvents(ctx, cutoff)
	if err != nil {
		j.log.Warn("event prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		j.log.Info("events pruned", logx.Int("count", n), logx.Time("older_than", cutoff))
	}
}

func (j *Janitor) heartbeat(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	trackers, err := j.store.ListTrackers(ctx)
	if err != nil {
		j.log.Warn("heartbeat listing failed", logx.Err(err))
		return
	}
	live := 0
	for _, t := range trackers {
		if !t.Stopped() {
			live++
		}
	}
	j.log.Info("janitor heartbeat",
		logx.Int("trackers", len(trackers)),
		logx.Int("live", live),
		logx.Int("in_flight", j.sched.InFlight()))
}
