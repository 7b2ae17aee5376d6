package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rendis/timeline/pkg/schema"
)

// Supported database/sql driver names.
const (
	DriverLibSQL = "libsql"
	DriverSQLite = "sqlite"
)

// SQLStore implements Store over database/sql. It runs on libSQL (embedded
// SQLite fork, cgo) or on the pure-Go modernc SQLite driver.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// Open opens the database file at path with the named driver.
func Open(driver, path string) (*SQLStore, error) {
	var dsn string
	switch driver {
	case DriverLibSQL:
		dsn = path
		if !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + dsn
		}
	case DriverSQLite:
		dsn = strings.TrimPrefix(path, "file:")
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &SQLStore{db: db, driver: driver}, nil
}

// NewLibSQLStore opens a libSQL database. The path may be a file URI.
func NewLibSQLStore(path string) (*SQLStore, error) { return Open(DriverLibSQL, path) }

// NewSQLiteStore opens a database with the pure-Go SQLite driver.
func NewSQLiteStore(path string) (*SQLStore, error) { return Open(DriverSQLite, path) }

// DB returns the underlying *sql.DB for advanced usage (e.g. event log).
func (s *SQLStore) DB() *sql.DB { return s.db }

// Driver returns the driver name the store was opened with.
func (s *SQLStore) Driver() string { return s.driver }

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *SQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *SQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Timelines ---

func (s *SQLStore) CreateTimeline(ctx context.Context, tl *Timeline) error {
	if len(tl.Snapshot) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "timeline snapshot is required")
	}
	if tl.CreatedAt.IsZero() {
		tl.CreatedAt = time.Now().UTC()
	}
	if tl.UpdatedAt.IsZero() {
		tl.UpdatedAt = tl.CreatedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO timelines (id, name, description, snapshot, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tl.ID, tl.Name, nullStr(tl.Description), string(tl.Snapshot),
		tl.CreatedAt.UnixMilli(), tl.UpdatedAt.UnixMilli(),
	)
	if err != nil && isUniqueViolation(err) {
		return schema.NewErrorf(schema.ErrCodeConflict, "timeline %q already exists", tl.ID).WithCause(err)
	}
	return err
}

func (s *SQLStore) GetTimeline(ctx context.Context, id string) (*Timeline, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, snapshot, created_at, updated_at FROM timelines WHERE id = ?`, id)
	tl, err := scanTimeline(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("timeline", id)
	}
	return tl, err
}

func (s *SQLStore) UpdateTimeline(ctx context.Context, id string, update TimelineUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().UnixMilli()}
	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nullStr(*update.Description))
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE timelines SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "timeline", id)
}

func (s *SQLStore) SaveSnapshot(ctx context.Context, id string, snapshot json.RawMessage) error {
	if len(snapshot) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "timeline snapshot is required").WithDetails(map[string]any{"timeline_id": id})
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE timelines SET snapshot = ?, updated_at = ? WHERE id = ?`,
		string(snapshot), time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "timeline", id)
}

func (s *SQLStore) ListTimelines(ctx context.Context, filter TimelineFilter) ([]*Timeline, error) {
	var where []string
	var args []any
	if filter.Name != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+filter.Name+"%")
	}

	q := `SELECT id, name, description, snapshot, created_at, updated_at FROM timelines`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at ASC, id ASC"
	q, args = appendLimit(q, args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Timeline
	for rows.Next() {
		tl, err := scanTimeline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tl)
	}
	return out, rows.Err()
}

// DeleteTimeline removes the timeline together with its events, sessions and schedules.
func (s *SQLStore) DeleteTimeline(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM timelines WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res, "timeline", id); err != nil {
		return err
	}
	for _, table := range []string{"events", "sessions", "schedules"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE timeline_id = ?`, id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTimeline(r rowScanner) (*Timeline, error) {
	tl := &Timeline{}
	var desc sql.NullString
	var snapshot string
	var created, updated int64
	if err := r.Scan(&tl.ID, &tl.Name, &desc, &snapshot, &created, &updated); err != nil {
		return nil, err
	}
	tl.Description = desc.String
	tl.Snapshot = json.RawMessage(snapshot)
	tl.CreatedAt = fromMillis(created)
	tl.UpdatedAt = fromMillis(updated)
	return tl, nil
}

// --- Events ---

func (s *SQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := appendEventTx(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// appendEventTx assigns the next per-timeline sequence and inserts the event.
func appendEventTx(ctx context.Context, tx *sql.Tx, event *Event) error {
	if event.TimelineID == "" {
		return schema.NewError(schema.ErrCodeValidation, "event timeline_id is required")
	}
	var seq int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE timeline_id = ?`, event.TimelineID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq
	event.Timestamp = timeOrNow(event.Timestamp)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (timeline_id, node_id, session_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.TimelineID, nullStr(event.NodeID), nullStr(event.SessionID), event.Type,
		nullRaw(event.Payload), event.Timestamp.UnixMilli(), seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

func (s *SQLStore) GetEvents(ctx context.Context, timelineID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timeline_id, node_id, session_id, event_type, payload, timestamp, sequence
		 FROM events WHERE timeline_id = ? AND sequence > ? ORDER BY sequence ASC`,
		timelineID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLStore) QueryEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	var where []string
	var args []any

	if filter.TimelineID != "" {
		where = append(where, "timeline_id = ?")
		args = append(args, filter.TimelineID)
	}
	if filter.NodeID != "" {
		where = append(where, "node_id = ?")
		args = append(args, filter.NodeID)
	}
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.Since.UnixMilli())
	}

	q := `SELECT id, timeline_id, node_id, session_id, event_type, payload, timestamp, sequence FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY timestamp ASC, id ASC"
	q, args = appendLimit(q, args, filter.Limit, 0)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var nodeID, sessionID, payload sql.NullString
		var ts int64
		if err := rows.Scan(&e.ID, &e.TimelineID, &nodeID, &sessionID, &e.Type, &payload, &ts, &e.Sequence); err != nil {
			return nil, err
		}
		e.NodeID = nodeID.String
		e.SessionID = sessionID.String
		e.Payload = rawOrNil(payload)
		e.Timestamp = fromMillis(ts)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Sessions ---

func (s *SQLStore) CreateSession(ctx context.Context, sess *Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, timeline_id, started_at, ended_at, total_actual_ms, total_expected_ms, action_count, stats, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.TimelineID, timeOrNow(sess.StartedAt).UnixMilli(), nullMillis(sess.EndedAt),
		sess.TotalActualMs, sess.TotalExpectedMs, sess.ActionCount, nullRaw(sess.Stats),
		sess.CreatedAt.UnixMilli(),
	)
	if err != nil && isUniqueViolation(err) {
		return schema.NewErrorf(schema.ErrCodeConflict, "session %q already exists", sess.ID).WithCause(err)
	}
	return err
}

func (s *SQLStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, timeline_id, started_at, ended_at, total_actual_ms, total_expected_ms, action_count, stats, created_at
		 FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("session", id)
	}
	return sess, err
}

func (s *SQLStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*Session, error) {
	q := `SELECT id, timeline_id, started_at, ended_at, total_actual_ms, total_expected_ms, action_count, stats, created_at FROM sessions`
	var args []any
	if filter.TimelineID != "" {
		q += " WHERE timeline_id = ?"
		args = append(args, filter.TimelineID)
	}
	q += " ORDER BY started_at DESC"
	q, args = appendLimit(q, args, filter.Limit, 0)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func scanSession(r rowScanner) (*Session, error) {
	sess := &Session{}
	var started, created int64
	var ended sql.NullInt64
	var stats sql.NullString
	if err := r.Scan(&sess.ID, &sess.TimelineID, &started, &ended, &sess.TotalActualMs,
		&sess.TotalExpectedMs, &sess.ActionCount, &stats, &created); err != nil {
		return nil, err
	}
	sess.StartedAt = fromMillis(started)
	sess.EndedAt = millisPtr(ended)
	sess.Stats = rawOrNil(stats)
	sess.CreatedAt = fromMillis(created)
	return sess, nil
}

// --- Schedules ---

func (s *SQLStore) CreateSchedule(ctx context.Context, sched *Schedule) error {
	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, timeline_id, start_node_id, cron_expression, manual, enabled, last_run_at, next_run_at, last_run_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID, sched.TimelineID, sched.StartNodeID, sched.CronExpression,
		boolInt(sched.Manual), boolInt(sched.Enabled),
		nullMillis(sched.LastRunAt), nullMillis(sched.NextRunAt), nullStr(sched.LastRunStatus),
		sched.CreatedAt.UnixMilli(),
	)
	return err
}

func (s *SQLStore) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, timeline_id, start_node_id, cron_expression, manual, enabled, last_run_at, next_run_at, last_run_status, created_at
		 FROM schedules WHERE id = ?`, id)
	sched, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("schedule", id)
	}
	return sched, err
}

func (s *SQLStore) UpdateSchedule(ctx context.Context, id string, update ScheduleUpdate) error {
	var sets []string
	var args []any
	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, update.LastRunAt.UnixMilli())
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, update.NextRunAt.UnixMilli())
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "schedule", id)
}

func (s *SQLStore) ListSchedules(ctx context.Context, filter ScheduleFilter) ([]*Schedule, error) {
	var where []string
	var args []any
	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolInt(*filter.Enabled))
	}
	if filter.TimelineID != "" {
		where = append(where, "timeline_id = ?")
		args = append(args, filter.TimelineID)
	}

	q := `SELECT id, timeline_id, start_node_id, cron_expression, manual, enabled, last_run_at, next_run_at, last_run_status, created_at FROM schedules`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at ASC, id ASC"
	q, args = appendLimit(q, args, filter.Limit, 0)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "schedule", id)
}

func scanSchedule(r rowScanner) (*Schedule, error) {
	sched := &Schedule{}
	var manual, enabled int
	var lastRun, nextRun sql.NullInt64
	var status sql.NullString
	var created int64
	if err := r.Scan(&sched.ID, &sched.TimelineID, &sched.StartNodeID, &sched.CronExpression,
		&manual, &enabled, &lastRun, &nextRun, &status, &created); err != nil {
		return nil, err
	}
	sched.Manual = manual != 0
	sched.Enabled = enabled != 0
	sched.LastRunAt = millisPtr(lastRun)
	sched.NextRunAt = millisPtr(nextRun)
	sched.LastRunStatus = status.String
	sched.CreatedAt = fromMillis(created)
	return sched, nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.TimelineError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed")
}

func appendLimit(q string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			q += " OFFSET ?"
			args = append(args, offset)
		}
	}
	return q, args
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func millisPtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
