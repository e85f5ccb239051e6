package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"viewtrack/internal/model"
	logx "viewtrack/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) CreateTracker(ctx context.Context, t *model.Tracker) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trackers(id, created_at, title, video, scheduled_on, interval_ns, milestone, next_due, stopped_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		t.ID, ns(t.CreatedAt), t.Title, t.Video, ns(t.ScheduledOn),
		int64(t.Interval), nullInt64(t.Milestone), ns(t.NextDue), nullTime(t.StoppedAt),
	)
	return err
}

const trackerCols = `id, created_at, title, video, scheduled_on, interval_ns, milestone, next_due, stopped_at`

func (s *sqliteStore) GetTracker(ctx context.Context, id string) (*model.Tracker, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackerCols+` FROM trackers WHERE id = ?`, id)
	t, err := scanTracker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *sqliteStore) ListTrackers(ctx context.Context) ([]*model.Tracker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+trackerCols+` FROM trackers ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrackers(rows)
}

func (s *sqliteStore) ListDue(ctx context.Context, now time.Time) ([]*model.Tracker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+trackerCols+` FROM trackers
		 WHERE stopped_at IS NULL AND next_due <= ?
		 ORDER BY next_due`, ns(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrackers(rows)
}

func (s *sqliteStore) NextDue(ctx context.Context) (time.Time, bool, error) {
	var raw sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MIN(next_due) FROM trackers WHERE stopped_at IS NULL`).Scan(&raw)
	if err != nil {
		return time.Time{}, false, err
	}
	if !raw.Valid {
		return time.Time{}, false, nil
	}
	return fromNS(raw.Int64), true, nil
}

func (s *sqliteStore) UpdateSchedule(ctx context.Context, id string, nextDue time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trackers SET next_due = ? WHERE id = ? AND stopped_at IS NULL`,
		ns(nextDue), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.missingOrStopped(ctx, id)
	}
	return nil
}

func (s *sqliteStore) StopTracker(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trackers SET stopped_at = ? WHERE id = ? AND stopped_at IS NULL`,
		ns(at), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Missing is an error; already stopped is an idempotent success.
		if err := s.missingOrStopped(ctx, id); errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) DeleteTracker(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trackers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) AppendRecord(ctx context.Context, r *model.Record) error {
	if err := s.missingOrStopped(ctx, r.TrackerID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records(id, created_at, tracker_id, views, likes) VALUES(?,?,?,?,?)`,
		r.ID, ns(r.CreatedAt), r.TrackerID, r.Views, r.Likes)
	return err
}

func (s *sqliteStore) ListRecords(ctx context.Context, trackerID string) ([]model.Record, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM trackers WHERE id = ?`, trackerID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, tracker_id, views, likes FROM records
		 WHERE tracker_id = ? ORDER BY created_at`, trackerID)
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

func (s *sqliteStore) AppendEvent(ctx context.Context, e *model.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(id, at, type, tracker_id, video, views, likes, detail)
		 VALUES(?,?,?,?,?,?,?,?)`,
		e.ID, ns(e.At), string(e.Type), e.TrackerID, nullStr(e.Video), e.Views, e.Likes, nullStr(e.Detail))
	return err
}

func (s *sqliteStore) ListEvents(ctx context.Context, trackerID string, limit int) ([]model.Event, error) {
	q := `SELECT id, at, type, tracker_id, video, views, likes, detail FROM events`
	args := []any{}
	if trackerID != "" {
		q += ` WHERE tracker_id = ?`
		args = append(args, trackerID)
	}
	q += ` ORDER BY at DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var e model.Event
		var at int64
		var typ string
		var video, detail sql.NullString
		if err := rows.Scan(&e.ID, &at, &typ, &e.TrackerID, &video, &e.Views, &e.Likes, &detail); err != nil {
			return nil, err
		}
		e.At = fromNS(at)
		e.Type = model.EventType(typ)
		e.Video = video.String
		e.Detail = detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneEvents(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE at < ?`, ns(olderThan))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *sqliteStore) Checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	return err
}

// missingOrStopped resolves the reason a guarded write matched no rows.
func (s *sqliteStore) missingOrStopped(ctx context.Context, id string) error {
	var stopped sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT stopped_at FROM trackers WHERE id = ?`, id).Scan(&stopped)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if stopped.Valid {
		return ErrStopped
	}
	return nil
}

// ---- scan helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTracker(row rowScanner) (*model.Tracker, error) {
	var t model.Tracker
	var created, scheduled, nextDue, intervalNS int64
	var milestone, stopped sql.NullInt64

	err := row.Scan(&t.ID, &created, &t.Title, &t.Video, &scheduled, &intervalNS, &milestone, &nextDue, &stopped)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = fromNS(created)
	t.ScheduledOn = fromNS(scheduled)
	t.NextDue = fromNS(nextDue)
	t.Interval = time.Duration(intervalNS)
	if milestone.Valid {
		v := milestone.Int64
		t.Milestone = &v
	}
	if stopped.Valid {
		at := fromNS(stopped.Int64)
		t.StoppedAt = &at
	}
	return &t, nil
}

func collectTrackers(rows *sql.Rows) ([]*model.Tracker, error) {
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

func ns(t time.Time) int64 { return t.UnixNano() }

func fromNS(v int64) time.Time { return time.Unix(0, v).UTC() }

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return ns(*v)
}
