package storage

// sqlite.go: durable store of the attention markets.
//
// Layout:
//   - `events`: one row per trading window. Status changes are compare-and-set
//     (`UPDATE ... WHERE status = ?`), so two schedulers can never resolve twice.
//     `recur_pending` is raised with the resolution of a live event and
//     cleared by the insert of its next window (`recur_of`).
//   - `index_snapshots`: append-only series, (event_id, ts) primary key.
//   - `trades` + `event_positions`: ledger and running totals, always written
//     in the same transaction as the event prices.
//
// Timestamps are stored as INTEGER unix nanoseconds so ordering in SQL is exact.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/attention/internal/domain"
	"github.com/alejandrodnm/attention/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
    id            TEXT PRIMARY KEY,
    name          TEXT    NOT NULL,
    market_type   TEXT    NOT NULL,
    status        TEXT    NOT NULL,
    window_start  INTEGER NOT NULL,
    window_end    INTEGER NOT NULL,
    index_start   REAL    NOT NULL DEFAULT 0,
    index_current REAL    NOT NULL DEFAULT 0,
    resolution    TEXT    NOT NULL DEFAULT '',
    reject_reason TEXT    NOT NULL DEFAULT '',
    explanation   TEXT    NOT NULL DEFAULT '',
    channels      TEXT    NOT NULL DEFAULT '{}',
    source_url    TEXT    NOT NULL DEFAULT '',
    description   TEXT    NOT NULL DEFAULT '',
    headline      TEXT    NOT NULL DEFAULT '',
    subline       TEXT    NOT NULL DEFAULT '',
    label_up      TEXT    NOT NULL DEFAULT '',
    label_down    TEXT    NOT NULL DEFAULT '',
    price_up      REAL    NOT NULL DEFAULT 0.5,
    price_down    REAL    NOT NULL DEFAULT 0.5,
    created_at    INTEGER NOT NULL,
    resolved_at   INTEGER,
    recur_of      TEXT    NOT NULL DEFAULT '',
    recur_pending INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS index_snapshots (
    event_id TEXT    NOT NULL,
    ts       INTEGER NOT NULL,
    value    REAL    NOT NULL,
    PRIMARY KEY (event_id, ts)
);

CREATE TABLE IF NOT EXISTS trades (
    id              TEXT PRIMARY KEY,
    event_id        TEXT    NOT NULL,
    side            TEXT    NOT NULL,
    amount          TEXT    NOT NULL,
    trader_id       TEXT    NOT NULL DEFAULT '',
    execution_price REAL    NOT NULL,
    price_up        REAL    NOT NULL,
    price_down      REAL    NOT NULL,
    created_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS event_positions (
    event_id   TEXT PRIMARY KEY,
    net_up     TEXT    NOT NULL DEFAULT '0',
    net_down   TEXT    NOT NULL DEFAULT '0',
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_status  ON events(status, window_end);
CREATE INDEX IF NOT EXISTS idx_events_name    ON events(name);
CREATE INDEX IF NOT EXISTS idx_events_recur   ON events(recur_pending, resolved_at);
CREATE INDEX IF NOT EXISTS idx_trades_event   ON trades(event_id, created_at);
CREATE INDEX IF NOT EXISTS idx_trades_trader  ON trades(trader_id, created_at DESC);
`

const eventColumns = `id, name, market_type, status, window_start, window_end,
	index_start, index_current, resolution, reject_reason, explanation, channels,
	source_url, description, headline, subline, label_up, label_down,
	price_up, price_down, created_at, resolved_at, recur_of, recur_pending`

// SQLiteStorage implements ports.Store using SQLite (pure Go, no CGo).
type SQLiteStorage struct {
	db *sql.DB
}

var _ ports.Store = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (or creates) the database at path and applies the schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// CreateEvent inserts ev. Its status must be draft. When ev.RecurOf is set
// the insert also clears recur_pending on that event, and fails with a
// *domain.ConflictError if its next window was already created.
func (s *SQLiteStorage) CreateEvent(ctx context.Context, ev domain.Event) error {
	if ev.Status != domain.StatusDraft {
		return fmt.Errorf("storage.CreateEvent: %s: status must be draft, got %s", ev.ID, ev.Status)
	}
	if !ev.WindowEnd.After(ev.WindowStart) {
		return fmt.Errorf("storage.CreateEvent: %s: window_end must be after window_start", ev.ID)
	}
	channels, err := json.Marshal(ev.Channels)
	if err != nil {
		return fmt.Errorf("storage.CreateEvent: encode channels: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.CreateEvent: begin tx: %w", err)
	}
	defer tx.Rollback()

	if ev.RecurOf != "" {
		res, err := tx.ExecContext(ctx,
			`UPDATE events SET recur_pending = 0 WHERE id = ? AND recur_pending = 1`, ev.RecurOf)
		if err != nil {
			return fmt.Errorf("storage.CreateEvent: claim recurrence of %s: %w", ev.RecurOf, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("storage.CreateEvent: rows affected: %w", err)
		}
		if n != 1 {
			return &domain.ConflictError{
				EventID: ev.RecurOf, Status: domain.StatusResolved, Op: "recur",
				Msg: "next window already proposed",
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events
			(id, name, market_type, status, window_start, window_end,
			 index_start, index_current, channels, source_url, description,
			 headline, subline, label_up, label_down, price_up, price_down, created_at, recur_of)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Name, string(ev.MarketType), string(ev.Status),
		toNanos(ev.WindowStart), toNanos(ev.WindowEnd),
		ev.IndexStart, ev.IndexCurrent, string(channels), ev.SourceURL, ev.Description,
		ev.Headline, ev.Subline, ev.LabelUp, ev.LabelDown,
		domain.EvenPrices.Up, domain.EvenPrices.Down, toNanos(ev.CreatedAt), ev.RecurOf,
	)
	if err != nil {
		return fmt.Errorf("storage.CreateEvent: insert %s: %w", ev.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.CreateEvent: commit: %w", err)
	}
	return nil
}

// Transition moves an event between two non-terminal states.
func (s *SQLiteStorage) Transition(ctx context.Context, id string, from, to domain.EventStatus) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("storage.Transition: %s: %s → %s not allowed", id, from, to)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("storage.Transition: %s: %w", id, err)
	}
	return s.checkCAS(ctx, s.db, res, id, "transition")
}

// OpenEvent fixes the window and index_start, and writes the first snapshot
// and an empty position.
func (s *SQLiteStorage) OpenEvent(ctx context.Context, id string, p ports.OpenParams) error {
	if !p.WindowEnd.After(p.WindowStart) {
		return fmt.Errorf("storage.OpenEvent: %s: window_end must be after window_start", id)
	}
	channels, err := json.Marshal(p.Channels)
	if err != nil {
		return fmt.Errorf("storage.OpenEvent: encode channels: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.OpenEvent: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE events
		SET status = ?, window_start = ?, window_end = ?,
		    index_start = ?, index_current = ?, channels = ?,
		    price_up = ?, price_down = ?
		WHERE id = ? AND status = ?`,
		string(domain.StatusOpen), toNanos(p.WindowStart), toNanos(p.WindowEnd),
		p.IndexStart, p.IndexStart, string(channels),
		domain.EvenPrices.Up, domain.EvenPrices.Down,
		id, string(domain.StatusProposed),
	)
	if err != nil {
		return fmt.Errorf("storage.OpenEvent: update %s: %w", id, err)
	}
	if err := s.checkCAS(ctx, tx, res, id, "open"); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO index_snapshots (event_id, ts, value) VALUES (?, ?, ?)`,
		id, toNanos(p.WindowStart), p.IndexStart,
	); err != nil {
		return fmt.Errorf("storage.OpenEvent: first snapshot %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO event_positions (event_id, net_up, net_down, updated_at) VALUES (?, '0', '0', ?)`,
		id, toNanos(p.WindowStart),
	); err != nil {
		return fmt.Errorf("storage.OpenEvent: position %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.OpenEvent: commit: %w", err)
	}
	return nil
}

// RejectEvent records the gate reason on a proposed event.
func (s *SQLiteStorage) RejectEvent(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET status = ?, reject_reason = ? WHERE id = ? AND status = ?`,
		string(domain.StatusRejected), reason, id, string(domain.StatusProposed),
	)
	if err != nil {
		return fmt.Errorf("storage.RejectEvent: %s: %w", id, err)
	}
	return s.checkCAS(ctx, s.db, res, id, "reject")
}

// RecordTick appends snap and moves index_current, only while the event is open.
func (s *SQLiteStorage) RecordTick(ctx context.Context, snap domain.IndexSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.RecordTick: begin tx: %w", err)
	}
	defer tx.Rollback()

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM index_snapshots WHERE event_id = ?`, snap.EventID,
	).Scan(&last); err != nil {
		return fmt.Errorf("storage.RecordTick: last snapshot %s: %w", snap.EventID, err)
	}
	if last.Valid && toNanos(snap.Timestamp) <= last.Int64 {
		return fmt.Errorf("storage.RecordTick: %s: %w", snap.EventID, domain.ErrSnapshotOrder)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE events SET index_current = ? WHERE id = ? AND status = ?`,
		snap.Value, snap.EventID, string(domain.StatusOpen),
	)
	if err != nil {
		return fmt.Errorf("storage.RecordTick: update %s: %w", snap.EventID, err)
	}
	if err := s.checkCAS(ctx, tx, res, snap.EventID, "tick"); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO index_snapshots (event_id, ts, value) VALUES (?, ?, ?)`,
		snap.EventID, toNanos(snap.Timestamp), snap.Value,
	); err != nil {
		return fmt.Errorf("storage.RecordTick: insert %s: %w", snap.EventID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.RecordTick: commit: %w", err)
	}
	return nil
}

// ResolveEvent sets the resolution exactly once. A live event is left with
// recur_pending raised in the same statement.
func (s *SQLiteStorage) ResolveEvent(ctx context.Context, id string, r domain.Resolution, at time.Time) (bool, error) {
	if r != domain.ResolutionUp && r != domain.ResolutionDown {
		return false, fmt.Errorf("storage.ResolveEvent: %s: invalid resolution %q", id, r)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET status = ?, resolution = ?, resolved_at = ?,
		    recur_pending = CASE WHEN market_type = ? THEN 0 ELSE 1 END
		WHERE id = ? AND status = ?`,
		string(domain.StatusResolved), string(r), toNanos(at), string(domain.MarketDemo),
		id, string(domain.StatusOpen),
	)
	if err != nil {
		return false, fmt.Errorf("storage.ResolveEvent: %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage.ResolveEvent: rows affected: %w", err)
	}
	return n == 1, nil
}

// SetChannels replaces the channel config of an open event.
func (s *SQLiteStorage) SetChannels(ctx context.Context, id string, cfg domain.ChannelConfig) error {
	channels, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("storage.SetChannels: encode channels: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET channels = ? WHERE id = ? AND status = ?`,
		string(channels), id, string(domain.StatusOpen),
	)
	if err != nil {
		return fmt.Errorf("storage.SetChannels: %s: %w", id, err)
	}
	return s.checkCAS(ctx, s.db, res, id, "channels")
}

// PendingRecurrences returns the resolved events whose next window was not
// created yet, oldest resolution first.
func (s *SQLiteStorage) PendingRecurrences(ctx context.Context) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE recur_pending = 1 AND status = ?
		ORDER BY resolved_at, id`,
		string(domain.StatusResolved),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.PendingRecurrences: query: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.PendingRecurrences: scan row: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SetExplanation stores text if the event is resolved and has no explanation yet.
func (s *SQLiteStorage) SetExplanation(ctx context.Context, id, text string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET explanation = ? WHERE id = ? AND status = ? AND explanation = ''`,
		text, id, string(domain.StatusResolved),
	)
	if err != nil {
		return fmt.Errorf("storage.SetExplanation: %s: %w", id, err)
	}
	return nil
}

// GetEvent returns the event with id or domain.ErrNotFound.
func (s *SQLiteStorage) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	ev, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, fmt.Errorf("storage.GetEvent: %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("storage.GetEvent: %s: %w", id, err)
	}
	return ev, nil
}

// ListEvents returns events in status (all statuses when empty), newest first.
func (s *SQLiteStorage) ListEvents(ctx context.Context, status domain.EventStatus, name string) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE (? = '' OR status = ?) AND (? = '' OR name = ?)
		ORDER BY created_at DESC, id`,
		string(status), string(status), name, name,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.ListEvents: query: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListEvents: scan row: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// IndexHistory returns the snapshots of an event in time order.
func (s *SQLiteStorage) IndexHistory(ctx context.Context, eventID string) ([]domain.IndexSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, value FROM index_snapshots WHERE event_id = ? ORDER BY ts`, eventID)
	if err != nil {
		return nil, fmt.Errorf("storage.IndexHistory: query: %w", err)
	}
	defer rows.Close()

	var out []domain.IndexSnapshot
	for rows.Next() {
		var ts int64
		snap := domain.IndexSnapshot{EventID: eventID}
		if err := rows.Scan(&ts, &snap.Value); err != nil {
			return nil, fmt.Errorf("storage.IndexHistory: scan row: %w", err)
		}
		snap.Timestamp = fromNanos(ts)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- internal helpers ---

type execQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkCAS turns a zero-row status update into a ConflictError or ErrNotFound.
func (s *SQLiteStorage) checkCAS(ctx context.Context, q execQuerier, res sql.Result, id, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.%s: rows affected: %w", op, err)
	}
	if n == 1 {
		return nil
	}
	var status string
	err = q.QueryRowContext(ctx, `SELECT status FROM events WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("storage.%s: %s: %w", op, id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("storage.%s: %s: %w", op, id, err)
	}
	return &domain.ConflictError{EventID: id, Status: domain.EventStatus(status), Op: op}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (domain.Event, error) {
	var (
		ev                      domain.Event
		marketType, status, res string
		channels                string
		windowStart, windowEnd  int64
		createdAt               int64
		resolvedAt              sql.NullInt64
	)
	if err := row.Scan(
		&ev.ID, &ev.Name, &marketType, &status, &windowStart, &windowEnd,
		&ev.IndexStart, &ev.IndexCurrent, &res, &ev.RejectReason, &ev.Explanation, &channels,
		&ev.SourceURL, &ev.Description, &ev.Headline, &ev.Subline, &ev.LabelUp, &ev.LabelDown,
		&ev.PriceUp, &ev.PriceDown, &createdAt, &resolvedAt, &ev.RecurOf, &ev.RecurPending,
	); err != nil {
		return domain.Event{}, err
	}
	ev.MarketType = domain.MarketType(marketType)
	ev.Status = domain.EventStatus(status)
	ev.Resolution = domain.Resolution(res)
	ev.WindowStart = fromNanos(windowStart)
	ev.WindowEnd = fromNanos(windowEnd)
	ev.CreatedAt = fromNanos(createdAt)
	if resolvedAt.Valid {
		t := fromNanos(resolvedAt.Int64)
		ev.ResolvedAt = &t
	}
	if err := json.Unmarshal([]byte(channels), &ev.Channels); err != nil {
		return domain.Event{}, fmt.Errorf("decode channels of %s: %w", ev.ID, err)
	}
	return ev, nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
