// Package journal records every probe outcome of the current run in an
// embedded SQLite database and answers summary queries over it.
//
// The default location is ":memory:", so nothing outlives the process.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazz-dev/availmon/internal/probe"
)

// InMemory opens a journal that lives only as long as the process.
const InMemory = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS probes (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    endpoint    TEXT    NOT NULL,
    host        TEXT    NOT NULL,
    status      TEXT    NOT NULL CHECK(status IN ('up', 'down')),
    status_code INTEGER NOT NULL,
    latency_us  INTEGER NOT NULL,
    kind        TEXT    NOT NULL DEFAULT '',
    error       TEXT    NOT NULL DEFAULT '',
    checked_at  TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_probes_endpoint ON probes(endpoint, host);
CREATE INDEX IF NOT EXISTS idx_probes_host ON probes(host);
`

// Entry is one recorded probe.
type Entry struct {
	ID         int64
	Endpoint   string
	Host       string
	Status     string
	StatusCode int
	Latency    time.Duration
	Kind       probe.ErrorKind
	Error      string
	CheckedAt  time.Time
}

// EndpointStats summarises all probes of one endpoint.
type EndpointStats struct {
	Endpoint     string
	Host         string
	Probes       int
	Healthy      int
	AvgLatencyMS float64
	// LastError is the error of the most recent probe when that probe was
	// unhealthy. Filled by Summary.
	LastError string
}

// Journal wraps the SQLite database. It is safe for concurrent use.
type Journal struct {
	db *sql.DB
}

// Open opens the journal at path, creating the schema if needed.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=5000",
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

	return &Journal{db: db}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores one probe outcome.
func (j *Journal) Record(ctx context.Context, o probe.Outcome) error {
	errText := ""
	if o.Err != nil {
		errText = o.Err.Error()
	}
	checkedAt := o.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO probes (endpoint, host, status, status_code, latency_us, kind, error, checked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.Endpoint,
		o.Host,
		o.Status(),
		o.StatusCode,
		o.Latency.Microseconds(),
		string(o.Kind()),
		errText,
		checkedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording probe for %q: %w", o.Endpoint, err)
	}
	return nil
}

// Latest returns the most recent entry for the endpoint with the given name
// and host, or nil if it has never been probed.
func (j *Journal) Latest(ctx context.Context, endpoint, host string) (*Entry, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT id, endpoint, host, status, status_code, latency_us, kind, error, checked_at
		 FROM probes WHERE endpoint = ? AND host = ? ORDER BY id DESC LIMIT 1`,
		endpoint, host,
	)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest probe for %q: %w", endpoint, err)
	}
	return e, nil
}

// Stats returns one summary per endpoint, in the order endpoints were first
// recorded. Endpoints sharing a name but not a host are reported separately.
func (j *Journal) Stats(ctx context.Context) ([]EndpointStats, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT endpoint, host, COUNT(*),
		       SUM(CASE WHEN status = 'up' THEN 1 ELSE 0 END),
		       AVG(latency_us)
		FROM probes
		GROUP BY endpoint, host
		ORDER BY MIN(id)
	`)
	if err != nil {
		return nil, fmt.Errorf("querying endpoint stats: %w", err)
	}
	defer rows.Close()

	var stats []EndpointStats
	for rows.Next() {
		var s EndpointStats
		var avgUS float64
		if err := rows.Scan(&s.Endpoint, &s.Host, &s.Probes, &s.Healthy, &avgUS); err != nil {
			return nil, fmt.Errorf("scanning stats row: %w", err)
		}
		s.AvgLatencyMS = avgUS / 1000
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stats rows: %w", err)
	}
	return stats, nil
}

// Summary returns Stats with LastError set for every endpoint whose most
// recent probe failed.
func (j *Journal) Summary(ctx context.Context) ([]EndpointStats, error) {
	stats, err := j.Stats(ctx)
	if err != nil {
		return nil, err
	}
	for i, s := range stats {
		if s.Healthy == s.Probes {
			continue
		}
		last, err := j.Latest(ctx, s.Endpoint, s.Host)
		if err != nil {
			return nil, err
		}
		if last != nil && last.Status == "down" {
			stats[i].LastError = last.Error
		}
	}
	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	var latencyUS int64
	var kind, checkedAt string
	err := row.Scan(&e.ID, &e.Endpoint, &e.Host, &e.Status, &e.StatusCode, &latencyUS, &kind, &e.Error, &checkedAt)
	if err != nil {
		return nil, err
	}
	e.Latency = time.Duration(latencyUS) * time.Microsecond
	e.Kind = probe.ErrorKind(kind)
	t, err := time.Parse(time.RFC3339Nano, checkedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing checked_at %q: %w", checkedAt, err)
	}
	e.CheckedAt = t
	return &e, nil
}
