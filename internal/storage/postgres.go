package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"viewtrack/internal/model"
	logx "viewtrack/pkg/logx"
)

// Postgres timestamps have microsecond precision, so nanosecond instants
// are kept as BIGINT here too, mirroring the sqlite schema.
const pgSchema = `
CREATE TABLE IF NOT EXISTS trackers (
    id           TEXT PRIMARY KEY,
    created_at   BIGINT NOT NULL,
    title        TEXT NOT NULL,
    video        TEXT NOT NULL,
    scheduled_on BIGINT NOT NULL,
    interval_ns  BIGINT NOT NULL,
    milestone    BIGINT,
    next_due     BIGINT NOT NULL,
    stopped_at   BIGINT
);
CREATE INDEX IF NOT EXISTS idx_trackers_due ON trackers(next_due) WHERE stopped_at IS NULL;

CREATE TABLE IF NOT EXISTS records (
    id         TEXT PRIMARY KEY,
    created_at BIGINT NOT NULL,
    tracker_id TEXT NOT NULL REFERENCES trackers(id) ON DELETE CASCADE,
    views      BIGINT NOT NULL,
    likes      BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_tracker ON records(tracker_id, created_at);

CREATE TABLE IF NOT EXISTS events (
    id         TEXT PRIMARY KEY,
    at         BIGINT NOT NULL,
    type       TEXT NOT NULL,
    tracker_id TEXT NOT NULL,
    video      TEXT,
    views      BIGINT NOT NULL DEFAULT 0,
    likes      BIGINT NOT NULL DEFAULT 0,
    detail     TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_tracker ON events(tracker_id, at);
CREATE INDEX IF NOT EXISTS idx_events_at ON events(at);
`

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, err
	}
	return &postgresStore{pool: pool, log: log}, nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *postgresStore) CreateTracker(ctx context.Context, t *model.Tracker) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trackers(id, created_at, title, video, scheduled_on, interval_ns, milestone, next_due, stopped_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		t.ID, ns(t.CreatedAt), t.Title, t.Video, ns(t.ScheduledOn),
		int64(t.Interval), t.Milestone, ns(t.NextDue), nullTimePG(t.StoppedAt),
	)
	return err
}

func (s *postgresStore) GetTracker(ctx context.Context, id string) (*model.Tracker, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+trackerCols+` FROM trackers WHERE id = $1`, id)
	t, err := scanTracker(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *postgresStore) ListTrackers(ctx context.Context) ([]*model.Tracker, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+trackerCols+` FROM trackers ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrackersPG(rows)
}

func (s *postgresStore) ListDue(ctx context.Context, now time.Time) ([]*model.Tracker, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+trackerCols+` FROM trackers
		 WHERE stopped_at IS NULL AND next_due <= $1
		 ORDER BY next_due`, ns(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrackersPG(rows)
}

func (s *postgresStore) NextDue(ctx context.Context) (time.Time, bool, error) {
	var raw *int64
	err := s.pool.QueryRow(ctx,
		`SELECT MIN(next_due) FROM trackers WHERE stopped_at IS NULL`).Scan(&raw)
	if err != nil {
		return time.Time{}, false, err
	}
	if raw == nil {
		return time.Time{}, false, nil
	}
	return fromNS(*raw), true, nil
}

func (s *postgresStore) UpdateSchedule(ctx context.Context, id string, nextDue time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trackers SET next_due = $1 WHERE id = $2 AND stopped_at IS NULL`,
		ns(nextDue), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrStopped(ctx, id)
	}
	return nil
}

func (s *postgresStore) StopTracker(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trackers SET stopped_at = $1 WHERE id = $2 AND stopped_at IS NULL`,
		ns(at), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if err := s.missingOrStopped(ctx, id); errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

func (s *postgresStore) DeleteTracker(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trackers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) AppendRecord(ctx context.Context, r *model.Record) error {
	if err := s.missingOrStopped(ctx, r.TrackerID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO records(id, created_at, tracker_id, views, likes) VALUES($1,$2,$3,$4,$5)`,
		r.ID, ns(r.CreatedAt), r.TrackerID, r.Views, r.Likes)
	return err
}

func (s *postgresStore) ListRecords(ctx context.Context, trackerID string) ([]model.Record, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM trackers WHERE id = $1`, trackerID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, created_at, tracker_id, views, likes FROM records
		 WHERE tracker_id = $1 ORDER BY created_at`, trackerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var r model.Record
		var created int64
		if err := rows.Scan(&r.ID, &created, &r.TrackerID, &r.Views, &r.Likes); err != nil {
			return nil, err
		}
		r.CreatedAt = fromNS(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *postgresStore) AppendEvent(ctx context.Context, e *model.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events(id, at, type, tracker_id, video, views, likes, detail)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, ns(e.At), string(e.Type), e.TrackerID, nullStr(e.Video), e.Views, e.Likes, nullStr(e.Detail))
	return err
}

func (s *postgresStore) ListEvents(ctx context.Context, trackerID string, limit int) ([]model.Event, error) {
	q := `SELECT id, at, type, tracker_id, video, views, likes, detail FROM events`
	args := []any{}
	if trackerID != "" {
		q += ` WHERE tracker_id = $1`
		args = append(args, trackerID)
	}
	q += ` ORDER BY at DESC`
	if limit > 0 {
		if trackerID != "" {
			q += ` LIMIT $2`
		} else {
			q += ` LIMIT $1`
		}
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var e model.Event
		var at int64
		var typ string
		var video, detail *string
		if err := rows.Scan(&e.ID, &at, &typ, &e.TrackerID, &video, &e.Views, &e.Likes, &detail); err != nil {
			return nil, err
		}
		e.At = fromNS(at)
		e.Type = model.EventType(typ)
		if video != nil {
			e.Video = *video
		}
		if detail != nil {
			e.Detail = *detail
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *postgresStore) PruneEvents(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE at < $1`, ns(olderThan))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *postgresStore) Checkpoint(context.Context) error { return nil }

func (s *postgresStore) missingOrStopped(ctx context.Context, id string) error {
	var stopped *int64
	err := s.pool.QueryRow(ctx, `SELECT stopped_at FROM trackers WHERE id = $1`, id).Scan(&stopped)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if stopped != nil {
		return ErrStopped
	}
	return nil
}

func collectTrackersPG(rows pgx.Rows) ([]*model.Tracker, error) {
	var out []*model.Tracker
	for rows.Next() {
		t, err := scanTracker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullTimePG(v *time.Time) *int64 {
	if v == nil {
		return nil
	}
	n := ns(*v)
	return &n
}
