package tracker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"viewtrack/internal/model"
	"viewtrack/internal/search"
	"viewtrack/internal/storage"
	logx "viewtrack/pkg/logx"
)

type countingWaker struct{ kicks atomic.Int64 }

func (w *countingWaker) Kick() { w.kicks.Add(1) }

func newTestService(t *testing.T) (*Service, storage.Store, *countingWaker) {
	t.Helper()
	st := storage.NewMemory()
	waker := &countingWaker{}
	svc := NewService(st, search.NewMemory(), waker, logx.Nop())
	return svc, st, waker
}

func TestServiceCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, st, waker := newTestService(t)

	tr, err := svc.Create(ctx, CreateParams{
		Title:       "launch trailer",
		Video:       "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		ScheduledOn: time.Now(),
		Interval:    time.Minute,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tr.Video != "dQw4w9WgXcQ" {
		t.Fatalf("video not normalized: %q", tr.Video)
	}
	if waker.kicks.Load() == 0 {
		t.Fatal("create did not wake the scheduler")
	}

	got, err := st.GetTracker(ctx, tr.ID)
	if err != nil || got.Title != "launch trailer" {
		t.Fatalf("persisted tracker: %+v err=%v", got, err)
	}

	evs, _ := st.ListEvents(ctx, tr.ID, 0)
	if len(evs) != 1 || evs[0].Type != model.EventCreated {
		t.Fatalf("events = %+v, want single created event", evs)
	}
}

func TestServiceCreateRejectsInvalid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	cases := []CreateParams{
		{Title: "", Video: "dQw4w9WgXcQ", ScheduledOn: time.Now(), Interval: time.Minute},
		{Title: "x", Video: "not a video!", ScheduledOn: time.Now(), Interval: time.Minute},
		{Title: "x", Video: "dQw4w9WgXcQ", ScheduledOn: time.Now(), Interval: 200 * time.Millisecond},
	}
	for _, p := range cases {
		if _, err := svc.Create(ctx, p); !errors.Is(err, model.ErrInvalid) {
			t.Fatalf("params %+v: err = %v, want ErrInvalid", p, err)
		}
	}
	trackers, _ := st.ListTrackers(ctx)
	if len(trackers) != 0 {
		t.Fatalf("invalid creates persisted: %d trackers", len(trackers))
	}
}

func TestServiceStopIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	tr, err := svc.Create(ctx, CreateParams{
		Title: "x", Video: "dQw4w9WgXcQ", ScheduledOn: time.Now(), Interval: time.Minute,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := svc.Stop(ctx, tr.ID)
	if err != nil || !first.Stopped() {
		t.Fatalf("first stop: %+v err=%v", first, err)
	}

	second, err := svc.Stop(ctx, tr.ID)
	if err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if !second.StoppedAt.Equal(*first.StoppedAt) {
		t.Fatalf("stop timestamp moved: %v then %v", first.StoppedAt, second.StoppedAt)
	}

	// Only one stopped event despite two stop calls.
	evs, _ := st.ListEvents(ctx, tr.ID, 0)
	var stops int
	for _, e := range evs {
		if e.Type == model.EventStopped {
			stops++
		}
	}
	if stops != 1 {
		t.Fatalf("stopped events = %d, want 1", stops)
	}
}

func TestServiceStopUnknown(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)
	if _, err := svc.Stop(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestServiceDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	tr, err := svc.Create(ctx, CreateParams{
		Title: "doomed", Video: "dQw4w9WgXcQ", ScheduledOn: time.Now(), Interval: time.Minute,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(ctx, tr.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, tr.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
	if err := svc.Delete(ctx, tr.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	// Events survive deletion for audit.
	evs, _ := st.ListEvents(ctx, tr.ID, 0)
	if len(evs) < 2 {
		t.Fatalf("audit events lost: %+v", evs)
	}
	// Deleted trackers fall out of search.
	if got := svc.Search("doomed", 10); len(got) != 0 {
		t.Fatalf("deleted tracker still searchable: %+v", got)
	}
}

func TestServiceSearchAndReindex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()

	seed := NewService(st, search.NewMemory(), nil, logx.Nop())
	titles := []string{"album teaser", "album release party", "cooking stream"}
	for _, title := range titles {
		if _, err := seed.Create(ctx, CreateParams{
			Title: title, Video: "dQw4w9WgXcQ", ScheduledOn: time.Now(), Interval: time.Minute,
		}); err != nil {
			t.Fatalf("create %q: %v", title, err)
		}
	}

	// A fresh service starts with an empty index; Reindex rebuilds it.
	svc := NewService(st, search.NewMemory(), nil, logx.Nop())
	if got := svc.Search("album", 10); len(got) != 0 {
		t.Fatalf("empty index returned %+v", got)
	}
	if err := svc.Reindex(ctx); err != nil {
		t.Fatalf("reindex: %v", err)
	}

	got := svc.Search("album", 10)
	if len(got) != 2 {
		t.Fatalf("search matches = %d, want 2: %+v", len(got), got)
	}
	if got := svc.Search("album release party", 1); len(got) != 1 || got[0].Title != "album release party" {
		t.Fatalf("exact title not ranked first: %+v", got)
	}
}

func TestServiceRecordsAndEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	tr, err := svc.Create(ctx, CreateParams{
		Title: "x", Video: "dQw4w9WgXcQ", ScheduledOn: time.Now(), Interval: time.Minute,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := int64(1); i <= 3; i++ {
		rec := model.NewRecord(tr.ID, i*100, i*10, time.Now())
		if err := st.AppendRecord(ctx, &rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	recs, err := svc.Records(ctx, tr.ID)
	if err != nil || len(recs) != 3 {
		t.Fatalf("records = %d err=%v", len(recs), err)
	}
	evs, err := svc.Events(ctx, tr.ID, 1)
	if err != nil || len(evs) != 1 {
		t.Fatalf("events = %d err=%v", len(evs), err)
	}
}
