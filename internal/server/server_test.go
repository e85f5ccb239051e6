package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"viewtrack/internal/model"
	"viewtrack/internal/search"
	"viewtrack/internal/storage"
	"viewtrack/internal/tracker"
	logx "viewtrack/pkg/logx"
)

const testToken = "test-token"

func newTestServer(t *testing.T) (*httptest.Server, storage.Store) {
	t.Helper()
	st := storage.NewMemory()
	svc := tracker.NewService(st, search.NewMemory(), nil, logx.Nop())
	srv := New(Config{Token: testToken}, svc, logx.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func doJSON(t *testing.T, method, url string, body any, token string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func createReq(title string) map[string]any {
	return map[string]any{
		"title":    title,
		"video":    "https://youtu.be/dQw4w9WgXcQ",
		"interval": "1m",
	}
}

func TestHealthzIsOpen(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	for _, token := range []string{"", "wrong-token"} {
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/trackers", nil, token)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("token %q: status = %d, want 401", token, resp.StatusCode)
		}
	}
}

func TestNoTokenDisablesAPI(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	svc := tracker.NewService(st, search.NewMemory(), nil, logx.Nop())
	srv := New(Config{}, svc, logx.Nop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/trackers", nil, "anything")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 with api disabled", resp.StatusCode)
	}
}

func TestTrackerLifecycle(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/trackers", createReq("launch day"), testToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	created := decode[trackerView](t, resp)
	if created.ID == "" || created.Video != "dQw4w9WgXcQ" {
		t.Fatalf("created = %+v", created)
	}
	if created.Status != model.StatusPending {
		t.Fatalf("created status = %s, want pending", created.Status)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/trackers/"+created.ID, nil, testToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/trackers", nil, testToken)
	if got := decode[[]model.Tracker](t, resp); len(got) != 1 {
		t.Fatalf("list = %+v", got)
	}

	// Stop twice: both succeed, timestamp pinned by the first.
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/trackers/"+created.ID+"/stop", nil, testToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d", resp.StatusCode)
	}
	first := decode[trackerView](t, resp)
	if first.StoppedAt == nil {
		t.Fatal("stop did not set stopped_at")
	}
	if first.Status != model.StatusStopped {
		t.Fatalf("stopped status = %s, want stopped", first.Status)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/trackers/"+created.ID+"/stop", nil, testToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second stop status = %d", resp.StatusCode)
	}
	second := decode[model.Tracker](t, resp)
	if !second.StoppedAt.Equal(*first.StoppedAt) {
		t.Fatalf("stop timestamp moved: %v then %v", first.StoppedAt, second.StoppedAt)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/trackers/"+created.ID, nil, testToken)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/trackers/"+created.ID, nil, testToken)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", resp.StatusCode)
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing title", map[string]any{"video": "dQw4w9WgXcQ", "interval": "1m"}},
		{"bad video", map[string]any{"title": "x", "video": "???", "interval": "1m"}},
		{"bad interval", map[string]any{"title": "x", "video": "dQw4w9WgXcQ", "interval": "soon"}},
		{"interval too short", map[string]any{"title": "x", "video": "dQw4w9WgXcQ", "interval": "10ms"}},
		{"bad scheduled_on", map[string]any{"title": "x", "video": "dQw4w9WgXcQ", "interval": "1m", "scheduled_on": "tomorrow"}},
		{"zero milestone", map[string]any{"title": "x", "video": "dQw4w9WgXcQ", "interval": "1m", "milestone": 0}},
	}
	for _, tc := range cases {
		resp := doJSON(t, http.MethodPost, ts.URL+"/api/trackers", tc.body, testToken)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", tc.name, resp.StatusCode)
		}
	}
}

func TestRecordsEndpoint(t *testing.T) {
	t.Parallel()
	ts, st := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/trackers", createReq("x"), testToken)
	created := decode[model.Tracker](t, resp)

	// Empty history is an empty array, not null.
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/trackers/"+created.ID+"/records", nil, testToken)
	if got := decode[[]model.Record](t, resp); got == nil || len(got) != 0 {
		t.Fatalf("empty records = %#v", got)
	}

	rec := model.NewRecord(created.ID, 500, 20, time.Now())
	if err := st.AppendRecord(context.Background(), &rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/trackers/"+created.ID+"/records", nil, testToken)
	got := decode[[]model.Record](t, resp)
	if len(got) != 1 || got[0].Views != 500 {
		t.Fatalf("records = %+v", got)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/trackers/missing/records", nil, testToken)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("records for missing tracker = %d", resp.StatusCode)
	}
}

func TestEventsEndpoint(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/trackers", createReq("a"), testToken)
	created := decode[model.Tracker](t, resp)
	doJSON(t, http.MethodPost, ts.URL+"/api/trackers/"+created.ID+"/stop", nil, testToken)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/events?tracker="+created.ID, nil, testToken)
	evs := decode[[]model.Event](t, resp)
	if len(evs) != 2 {
		t.Fatalf("events = %+v, want created+stopped", evs)
	}
	// Newest first.
	if evs[0].Type != model.EventStopped {
		t.Fatalf("first event = %s, want stopped", evs[0].Type)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/events?tracker="+created.ID+"&limit=1", nil, testToken)
	if got := decode[[]model.Event](t, resp); len(got) != 1 {
		t.Fatalf("limited events = %+v", got)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/events?limit=abc", nil, testToken)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", resp.StatusCode)
	}
}

func TestSearchEndpoint(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	for _, title := range []string{"tour vlog day one", "tour vlog day two", "studio session"} {
		doJSON(t, http.MethodPost, ts.URL+"/api/trackers", createReq(title), testToken)
	}

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/search?q=tour+vlog", nil, testToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search status = %d", resp.StatusCode)
	}
	matches := decode[[]search.Match](t, resp)
	if len(matches) != 2 {
		t.Fatalf("matches = %+v, want the two vlogs", matches)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/search", nil, testToken)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing q status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/search?q=nothing+matches+this", nil, testToken)
	if got := decode[[]search.Match](t, resp); got == nil || len(got) != 0 {
		t.Fatalf("no-hit search = %#v, want empty array", got)
	}
}
