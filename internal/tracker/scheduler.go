package tracker

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	logx "viewtrack/pkg/logx"

	"viewtrack/internal/storage"
)

// SchedulerConfig controls the dispatch loop and its worker pool.
type SchedulerConfig struct {
	// Workers caps simultaneous in-flight polls (provider backpressure).
	Workers int
	// QueueSize is the dispatch buffer between the scan loop and the
	// workers. A full queue only delays a tracker until the next scan.
	QueueSize int
	// ScanInterval is the upper bound between due scans. The loop wakes
	// earlier when the store reports a sooner next_due.
	ScanInterval time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = 5 * time.Second
	}
	return c
}

// minWake keeps the dispatch loop from spinning when a next_due is
// essentially "now".
const minWake = 5 * time.Millisecond

// Scheduler owns the dispatch loop: it scans the store for due trackers,
// hands them to a bounded worker pool and excludes trackers that already
// have a poll in flight. The due set itself lives in the store, so the
// scheduler is fully reconstructible after a restart.
//
// A tracker never has two polls in flight: ids enter the in-flight set
// under the scheduler mutex before they are queued and leave it only when
// the poll completes.
type Scheduler struct {
	store storage.Store
	exec  *Executor
	log   logx.Logger
	cfg   SchedulerConfig

	mu       sync.Mutex
	inflight map[string]struct{}
	stopCh   chan struct{}
	wg       sync.WaitGroup

	// kickCh wakes the dispatch loop early after tracker mutations and
	// completed polls. Buffered so Kick never blocks.
	kickCh chan struct{}

	now func() time.Time
}

func NewScheduler(store storage.Store, exec *Executor, cfg SchedulerConfig, log logx.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		exec:     exec,
		log:      log,
		cfg:      cfg.withDefaults(),
		inflight: map[string]struct{}{},
		kickCh:   make(chan struct{}, 1),
		now:      time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})

	queue := make(chan string, s.cfg.QueueSize)
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, s.stopCh, queue)
	}
	s.wg.Add(1)
	go s.dispatch(ctx, s.stopCh, queue)

	s.log.Info("scheduler started",
		logx.Int("workers", s.cfg.Workers),
		logx.Duration("scan_interval", s.cfg.ScanInterval))
}

// Stop cancels future dispatch and waits for in-flight polls to finish,
// up to the context deadline. In-flight polls are not aborted; their
// writes land or are rejected by the store's sticky-stop rules.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with polls in flight")
	}
}

// Kick wakes the dispatch loop ahead of its timer, e.g. after a tracker
// was created, stopped or deleted.
func (s *Scheduler) Kick() {
	select {
	case s.kickCh <- struct{}{}:
	default:
	}
}

// InFlight reports the number of polls currently dispatched or running.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

func (s *Scheduler) dispatch(ctx context.Context, stopCh <-chan struct{}, queue chan<- string) {
	defer s.wg.Done()

	for {
		s.scanOnce(ctx, queue)

		timer := time.NewTimer(s.nextWake(ctx))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stopCh:
			timer.Stop()
			return
		case <-s.kickCh:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (s *Scheduler) scanOnce(ctx context.Context, queue chan<- string) {
	due, err := s.store.ListDue(ctx, s.now())
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("due scan failed", logx.Err(err))
		}
		return
	}

	for _, t := range due {
		s.mu.Lock()
		if _, busy := s.inflight[t.ID]; busy {
			// Still polling from a previous scan; never double-dispatch.
			s.mu.Unlock()
			continue
		}
		s.inflight[t.ID] = struct{}{}
		s.mu.Unlock()

		select {
		case queue <- t.ID:
		default:
			// Pool saturated: the tracker stays due and is retried on a
			// later scan. Trackers wait, they are never dropped.
			s.release(t.ID)
			s.log.Debug("dispatch queue full", logx.String("tracker", t.ID))
		}
	}
}

// nextWake picks the sooner of the scan cadence and the earliest next_due.
func (s *Scheduler) nextWake(ctx context.Context) time.Duration {
	wait := s.cfg.ScanInterval
	if next, ok, err := s.store.NextDue(ctx); err == nil && ok {
		if d := next.Sub(s.now()); d < wait {
			wait = d
		}
	}
	if wait < minWake {
		wait = minWake
	}
	return wait
}

func (s *Scheduler) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan string) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case id := <-queue:
			s.poll(ctx, id)
			s.release(id)
			// The completed poll changed next_due; let the loop
			// recompute its wake time.
			s.Kick()
		}
	}
}

// poll guards the executor against panics so one bad cycle cannot kill a
// worker for good.
func (s *Scheduler) poll(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("poll panic",
				logx.String("tracker", id),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	s.exec.Poll(ctx, id)
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}
