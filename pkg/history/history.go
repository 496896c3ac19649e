// Package history records gate reports so release pipelines can query past
// verdicts. SQLite (modernc) and PostgreSQL (lib/pq) are supported.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/cuilabs/aios/pkg/gate"
)

// ErrNoPassingRelease is returned when no passing run carries a valid version.
var ErrNoPassingRelease = errors.New("history: no passing release recorded")

// Dialect selects placeholder syntax.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// Record is one persisted gate run.
type Record struct {
	RunID       string
	Release     string
	Passed      bool
	FailedGates []string
	Digest      string
	Timestamp   time.Time
	Report      []byte
}

// Decode returns the stored report.
func (r Record) Decode() (*gate.Report, error) {
	var rep gate.Report
	if err := json.Unmarshal(r.Report, &rep); err != nil {
		return nil, fmt.Errorf("decode stored report %s: %w", r.RunID, err)
	}
	return &rep, nil
}

// Store persists reports in a SQL database.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects using dsn. postgres:// and postgresql:// URLs use lib/pq;
// anything else is a SQLite path, optionally prefixed with sqlite://.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, source, dialect := "sqlite", strings.TrimPrefix(dsn, "sqlite://"), SQLite
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver, source, dialect = "postgres", dsn, Postgres
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect history db: %w", err)
	}
	s, err := New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and ensures the schema exists.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS gate_runs (
		run_id TEXT PRIMARY KEY,
		release TEXT NOT NULL DEFAULT '',
		passed BOOLEAN NOT NULL,
		failed_gates TEXT NOT NULL DEFAULT '[]',
		digest TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		report TEXT NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Save records a report. Saving the same run twice is an error.
func (s *Store) Save(ctx context.Context, r *gate.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	digest, err := gate.Digest(r)
	if err != nil {
		return err
	}
	failed := r.Failed()
	if failed == nil {
		failed = []string{}
	}
	failedJSON, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("marshal failed gates: %w", err)
	}

	// recorded_at is fixed-width UTC so text order is chronological.
	query := s.rebind(`INSERT INTO gate_runs (run_id, release, passed, failed_gates, digest, recorded_at, report)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query,
		r.RunID, r.Release, r.OverallPassed(), string(failedJSON), digest,
		r.Timestamp.UTC().Format(gate.TimestampFormat), string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to insert gate run: %w", err)
	}
	return nil
}

const selectColumns = `SELECT run_id, release, passed, failed_gates, digest, recorded_at, report FROM gate_runs`

// List returns up to limit runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(selectColumns+` ORDER BY recorded_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list gate runs: %w", err)
	}
	return scanRecords(rows)
}

// LatestPassing returns the passing run with the highest semantic version.
// Runs without a parseable release are ignored.
func (s *Store) LatestPassing(ctx context.Context) (*Record, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(selectColumns+` WHERE passed = ? AND release <> ''`), true)
	if err != nil {
		return nil, fmt.Errorf("failed to query passing runs: %w", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	var (
		best    *Record
		bestVer *semver.Version
	)
	for i := range records {
		v, err := semver.NewVersion(records[i].Release)
		if err != nil {
			continue
		}
		if bestVer == nil || v.GreaterThan(bestVer) ||
			(v.Equal(bestVer) && records[i].Timestamp.After(best.Timestamp)) {
			best, bestVer = &records[i], v
		}
	}
	if best == nil {
		return nil, ErrNoPassingRelease
	}
	return best, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var (
			rec      Record
			failed   string
			recorded string
			report   string
		)
		if err := rows.Scan(&rec.RunID, &rec.Release, &rec.Passed, &failed, &rec.Digest, &recorded, &report); err != nil {
			return nil, fmt.Errorf("scan gate run: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, recorded)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at for %s: %w", rec.RunID, err)
		}
		rec.Timestamp = ts
		if failed != "" {
			if err := json.Unmarshal([]byte(failed), &rec.FailedGates); err != nil {
				return nil, fmt.Errorf("decode failed gates for %s: %w", rec.RunID, err)
			}
		}
		rec.Report = []byte(report)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
