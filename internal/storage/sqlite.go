package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazz-dev/sitewatch/internal/probe"
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    checked_at    TEXT    NOT NULL,
    is_up         INTEGER NOT NULL CHECK(is_up IN (0, 1)),
    response_time REAL,
    status_code   INTEGER,
    error_message TEXT,
    kind          TEXT    NOT NULL DEFAULT '',
    profile       TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_outcomes_checked_at ON outcomes(checked_at DESC);
`

const columns = `checked_at, is_up, response_time, status_code, error_message, kind, profile`

// timeLayout is fixed-width so checked_at orders correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB wraps a SQLite database holding probe outcomes.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writes.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// InsertOutcome persists an outcome. Absent latency, status code and error
// are stored as NULL.
func (d *DB) InsertOutcome(ctx context.Context, o probe.Outcome) error {
	var (
		latency    sql.NullFloat64
		statusCode sql.NullInt64
		errMsg     sql.NullString
	)
	if ms, ok := o.LatencyMs(); ok {
		latency = sql.NullFloat64{Float64: ms, Valid: true}
	}
	if o.StatusCode != 0 {
		statusCode = sql.NullInt64{Int64: int64(o.StatusCode), Valid: true}
	}
	if o.Error != "" {
		errMsg = sql.NullString{String: o.Error, Valid: true}
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO outcomes (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.CheckedAt.UTC().Format(timeLayout),
		o.Up,
		latency,
		statusCode,
		errMsg,
		string(o.Kind),
		o.Profile,
	)
	if err != nil {
		return fmt.Errorf("inserting outcome: %w", err)
	}
	return nil
}

// Latest returns the most recent outcome, or nil if none.
func (d *DB) Latest(ctx context.Context) (*probe.Outcome, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM outcomes ORDER BY checked_at DESC, id DESC LIMIT 1`,
	)
	o, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest outcome: %w", err)
	}
	return o, nil
}

// Recent returns up to limit outcomes, most recent first.
func (d *DB) Recent(ctx context.Context, limit int) ([]probe.Outcome, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+columns+` FROM outcomes ORDER BY checked_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recent outcomes: %w", err)
	}
	defer rows.Close()
	return scanOutcomes(rows)
}

// Count returns the number of stored outcomes.
func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outcomes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting outcomes: %w", err)
	}
	return n, nil
}

// UptimePercent returns the percentage of up outcomes among the last N.
func (d *DB) UptimePercent(ctx context.Context, last int) (float64, error) {
	var total int
	var upCount sql.NullInt64
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(is_up)
		FROM (
			SELECT is_up FROM outcomes ORDER BY checked_at DESC, id DESC LIMIT ?
		)
	`, last).Scan(&total, &upCount)
	if err != nil {
		return 0, fmt.Errorf("calculating uptime: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(upCount.Int64) / float64(total) * 100, nil
}

// Prune deletes everything but the newest keep outcomes and reports how many
// rows were removed.
func (d *DB) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := d.db.ExecContext(ctx, `
		DELETE FROM outcomes WHERE id NOT IN (
			SELECT id FROM outcomes ORDER BY checked_at DESC, id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning outcomes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned outcomes: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOutcome(row scanner) (*probe.Outcome, error) {
	var (
		o          probe.Outcome
		checkedAt  string
		latency    sql.NullFloat64
		statusCode sql.NullInt64
		errMsg     sql.NullString
		kind       string
	)
	err := row.Scan(&checkedAt, &o.Up, &latency, &statusCode, &errMsg, &kind, &o.Profile)
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, checkedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing checked_at %q: %w", checkedAt, err)
	}
	o.CheckedAt = t
	o.Kind = probe.Kind(kind)
	if latency.Valid {
		o.Latency = time.Duration(latency.Float64 * float64(time.Millisecond))
	}
	if statusCode.Valid {
		o.StatusCode = int(statusCode.Int64)
	}
	if errMsg.Valid {
		o.Error = errMsg.String
	}
	return &o, nil
}

func scanOutcomes(rows *sql.Rows) ([]probe.Outcome, error) {
	var outcomes []probe.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning outcome row: %w", err)
		}
		outcomes = append(outcomes, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcome rows: %w", err)
	}
	return outcomes, nil
}
