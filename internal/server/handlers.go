package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"viewtrack/internal/model"
	"viewtrack/internal/search"
	"viewtrack/internal/storage"
	"viewtrack/internal/tracker"
	logx "viewtrack/pkg/logx"
)

type handlers struct {
	svc *tracker.Service
	log logx.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload) //nolint:errcheck
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeStoreError maps domain errors onto HTTP statuses.
func (h *handlers) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "tracker not found")
	case errors.Is(err, model.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("request failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// trackerView decorates a tracker with its derived scheduling state.
type trackerView struct {
	*model.Tracker
	Status model.Status `json:"status"`
}

func viewOf(t *model.Tracker) trackerView {
	return trackerView{Tracker: t, Status: t.Status(time.Now())}
}

func viewsOf(ts []*model.Tracker) []trackerView {
	now := time.Now()
	out := make([]trackerView, 0, len(ts))
	for _, t := range ts {
		out = append(out, trackerView{Tracker: t, Status: t.Status(now)})
	}
	return out
}

// createTrackerRequest is the POST /api/trackers body. Video accepts a bare
// id or a YouTube URL. ScheduledOn defaults to now; Interval is a Go
// duration string.
type createTrackerRequest struct {
	Title       string `json:"title"`
	Video       string `json:"video"`
	ScheduledOn string `json:"scheduled_on,omitempty"`
	Interval    string `json:"interval"`
	Milestone   *int64 `json:"milestone,omitempty"`
}

func (h *handlers) createTracker(w http.ResponseWriter, r *http.Request) {
	var req createTrackerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	interval, err := time.ParseDuration(req.Interval)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid interval: "+req.Interval)
		return
	}
	scheduledOn := time.Now()
	if req.ScheduledOn != "" {
		scheduledOn, err = time.Parse(time.RFC3339, req.ScheduledOn)
		if err != nil {
			writeError(w, http.StatusBadRequest, "scheduled_on must be RFC3339")
			return
		}
	}

	t, err := h.svc.Create(r.Context(), tracker.CreateParams{
		Title:       req.Title,
		Video:       req.Video,
		ScheduledOn: scheduledOn,
		Interval:    interval,
		Milestone:   req.Milestone,
	})
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(t))
}

func (h *handlers) listTrackers(w http.ResponseWriter, r *http.Request) {
	trackers, err := h.svc.List(r.Context())
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(trackers))
}

func (h *handlers) getTracker(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(t))
}

// stopTracker is idempotent: stopping an already-stopped tracker returns
// 200 with the unchanged tracker.
func (h *handlers) stopTracker(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Stop(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(t))
}

func (h *handlers) deleteTracker(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listRecords(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.svc.Get(r.Context(), id); err != nil {
		h.writeStoreError(w, err)
		return
	}
	recs, err := h.svc.Records(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if recs == nil {
		recs = []model.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	evs, err := h.svc.Events(r.Context(), r.URL.Query().Get("tracker"), limit)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if evs == nil {
		evs = []model.Event{}
	}
	writeJSON(w, http.StatusOK, evs)
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	matches := h.svc.Search(q, limit)
	if matches == nil {
		matches = []search.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
