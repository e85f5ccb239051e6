package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"viewtrack/internal/model"
	"viewtrack/internal/stats"
	"viewtrack/internal/storage"
	logx "viewtrack/pkg/logx"
)

// fakeProvider replays a scripted sequence of results, one per call.
// A nil entry's err means success with the given stats.
type fakeProvider struct {
	mu      sync.Mutex
	script  []fakeResult
	calls   int
	onFetch func(call int) // runs before returning, for mid-flight races
}

type fakeResult struct {
	stats stats.Stats
	err   error
}

func (f *fakeProvider) Fetch(_ context.Context, _ string) (stats.Stats, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	var res fakeResult
	if call < len(f.script) {
		res = f.script[call]
	} else if len(f.script) > 0 {
		res = f.script[len(f.script)-1]
	}
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	return res.stats, res.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func ok(views, likes int64) fakeResult {
	return fakeResult{stats: stats.Stats{Views: views, Likes: likes}}
}

func unavailable() fakeResult {
	return fakeResult{err: fmt.Errorf("%w: test outage", stats.ErrUnavailable)}
}

var fastRetry = RetryConfig{Attempts: 3, Base: time.Millisecond, MaxDelay: 5 * time.Millisecond, Jitter: 0.1}

func newTrackerAt(t *testing.T, st storage.Store, interval time.Duration, milestone *int64, due time.Time) *model.Tracker {
	t.Helper()
	tr, err := model.NewTracker("test video", "dQw4w9WgXcQ", due, interval, milestone)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	if err := st.CreateTracker(context.Background(), tr); err != nil {
		t.Fatalf("CreateTracker: %v", err)
	}
	return tr
}

func TestPollSuccessAppendsAndReschedules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	tr := newTrackerAt(t, st, time.Hour, nil, time.Now())
	prov := &fakeProvider{script: []fakeResult{ok(100, 10)}}
	exec := NewExecutor(st, prov, fastRetry, logx.Nop())

	before := time.Now()
	exec.Poll(ctx, tr.ID)

	recs, err := st.ListRecords(ctx, tr.ID)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(recs) != 1 || recs[0].Views != 100 || recs[0].Likes != 10 {
		t.Fatalf("records = %+v", recs)
	}

	got, _ := st.GetTracker(ctx, tr.ID)
	if got.Stopped() {
		t.Fatal("tracker stopped without milestone")
	}
	wantMin := before.Add(time.Hour)
	if got.NextDue.Before(wantMin) {
		t.Fatalf("next due %v, want >= %v", got.NextDue, wantMin)
	}
}

func TestPollMilestoneStopsTracker(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	m := int64(1000)
	tr := newTrackerAt(t, st, time.Hour, &m, time.Now())
	prov := &fakeProvider{script: []fakeResult{ok(1200, 50)}}
	exec := NewExecutor(st, prov, fastRetry, logx.Nop())

	exec.Poll(ctx, tr.ID)

	got, _ := st.GetTracker(ctx, tr.ID)
	if !got.Stopped() {
		t.Fatal("milestone reached but tracker still live")
	}
	recs, _ := st.ListRecords(ctx, tr.ID)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want the milestone record", len(recs))
	}
	// stopped_at equals the final record's timestamp.
	if !got.StoppedAt.Equal(recs[0].CreatedAt) {
		t.Fatalf("stoppedAt %v != record %v", got.StoppedAt, recs[0].CreatedAt)
	}

	evs, _ := st.ListEvents(ctx, tr.ID, 0)
	var completed bool
	for _, e := range evs {
		if e.Type == model.EventCompleted {
			completed = true
		}
	}
	if !completed {
		t.Fatal("missing completed event")
	}
}

func TestPollRetriesThenSucceedsWithinOneCycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	tr := newTrackerAt(t, st, time.Hour, nil, time.Now())
	prov := &fakeProvider{script: []fakeResult{unavailable(), unavailable(), ok(300, 30)}}
	exec := NewExecutor(st, prov, fastRetry, logx.Nop())

	exec.Poll(ctx, tr.ID)

	if prov.callCount() != 3 {
		t.Fatalf("provider calls = %d, want 3", prov.callCount())
	}
	recs, _ := st.ListRecords(ctx, tr.ID)
	if len(recs) != 1 || recs[0].Views != 300 {
		t.Fatalf("records = %+v, want single success record", recs)
	}
}

func TestPollExhaustedRetriesDefersWithoutRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	tr := newTrackerAt(t, st, time.Hour, nil, time.Now())
	prov := &fakeProvider{script: []fakeResult{unavailable()}}
	exec := NewExecutor(st, prov, fastRetry, logx.Nop())

	before := time.Now()
	exec.Poll(ctx, tr.ID)

	if prov.callCount() != fastRetry.Attempts {
		t.Fatalf("provider calls = %d, want %d", prov.callCount(), fastRetry.Attempts)
	}
	recs, _ := st.ListRecords(ctx, tr.ID)
	if len(recs) != 0 {
		t.Fatalf("failed poll produced records: %+v", recs)
	}

	got, _ := st.GetTracker(ctx, tr.ID)
	if got.Stopped() {
		t.Fatal("failed poll stopped the tracker")
	}
	if got.NextDue.Before(before.Add(time.Hour)) {
		t.Fatalf("next due %v not deferred by one interval", got.NextDue)
	}

	evs, _ := st.ListEvents(ctx, tr.ID, 0)
	var failed bool
	for _, e := range evs {
		if e.Type == model.EventPollFailed {
			failed = true
		}
	}
	if !failed {
		t.Fatal("missing poll_failed event")
	}
}

func TestPollDeletedMidFlightLeavesNoTrace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	tr := newTrackerAt(t, st, time.Hour, nil, time.Now())

	prov := &fakeProvider{script: []fakeResult{ok(100, 1)}}
	prov.onFetch = func(int) {
		// Delete while the poll is "on the wire".
		if err := st.DeleteTracker(ctx, tr.ID); err != nil {
			t.Errorf("delete: %v", err)
		}
	}
	exec := NewExecutor(st, prov, fastRetry, logx.Nop())

	exec.Poll(ctx, tr.ID) // must not panic or persist anything

	if _, err := st.GetTracker(ctx, tr.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("tracker resurrected: %v", err)
	}
}

func TestPollStoppedMidFlightDoesNotReschedule(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	tr := newTrackerAt(t, st, time.Hour, nil, time.Now())

	var stoppedAt time.Time
	prov := &fakeProvider{script: []fakeResult{ok(100, 1)}}
	prov.onFetch = func(int) {
		stoppedAt = time.Now()
		if err := st.StopTracker(ctx, tr.ID, stoppedAt); err != nil {
			t.Errorf("stop: %v", err)
		}
	}
	exec := NewExecutor(st, prov, fastRetry, logx.Nop())

	exec.Poll(ctx, tr.ID)

	got, _ := st.GetTracker(ctx, tr.ID)
	if !got.Stopped() || !got.StoppedAt.Equal(stoppedAt) {
		t.Fatalf("sticky stop violated: %+v", got)
	}
	// The stale poll's record must have been rejected.
	recs, _ := st.ListRecords(ctx, tr.ID)
	if len(recs) != 0 {
		t.Fatalf("record persisted after stop: %+v", recs)
	}
}

func TestPollSkipsStoppedTracker(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	tr := newTrackerAt(t, st, time.Hour, nil, time.Now())
	if err := st.StopTracker(ctx, tr.ID, time.Now()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	prov := &fakeProvider{script: []fakeResult{ok(1, 1)}}
	exec := NewExecutor(st, prov, fastRetry, logx.Nop())
	exec.Poll(ctx, tr.ID)

	if prov.callCount() != 0 {
		t.Fatal("stopped tracker was polled")
	}
}

func TestBackoffDelayBoundedAndPositive(t *testing.T) {
	t.Parallel()
	cfg := RetryConfig{Attempts: 5, Base: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Jitter: 0.2}
	for attempt := 1; attempt < 5; attempt++ {
		for i := 0; i < 50; i++ {
			d := backoffDelay(cfg, attempt)
			if d < 0 {
				t.Fatalf("negative delay %v", d)
			}
			if d > time.Duration(float64(cfg.MaxDelay)*1.2)+time.Millisecond {
				t.Fatalf("delay %v exceeds jittered cap", d)
			}
		}
	}
}
