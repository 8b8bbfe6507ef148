package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists refresh history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while the refresher writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS refresh_runs (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp      INTEGER NOT NULL,
			run_trigger    TEXT,
			duration_ms    INTEGER,
			metrics        INTEGER,
			stale          INTEGER,
			failed         INTEGER,
			backup_written INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_ts ON refresh_runs(timestamp)`,

		`CREATE TABLE IF NOT EXISTS metric_events (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			metric    TEXT NOT NULL,
			source    TEXT,
			stale     INTEGER,
			warning   TEXT,
			error     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metric_ts ON metric_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_metric_key ON metric_events(metric, timestamp)`,

		`CREATE TABLE IF NOT EXISTS inflation_snapshots (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp        INTEGER NOT NULL,
			kind             TEXT NOT NULL,
			period           TEXT,
			window_days      INTEGER,
			absolute         REAL,
			rate_circulating REAL,
			rate_total       REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inflation_ts ON inflation_snapshots(timestamp)`,

		`CREATE TABLE IF NOT EXISTS supply_checks (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			token     TEXT,
			cached    REAL,
			live      REAL,
			delta     REAL,
			mismatch  INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_supply_ts ON supply_checks(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordRefresh(run *RefreshRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := run.StartedAt
	if ts.IsZero() {
		ts = r.now()
	}
	_, err := r.db.Exec(`INSERT INTO refresh_runs
		(timestamp, run_trigger, duration_ms, metrics, stale, failed, backup_written)
		VALUES (?,?,?,?,?,?,?)`,
		ts.Unix(), run.Trigger, run.Duration.Milliseconds(),
		run.Metrics, run.Stale, run.Failed, boolInt(run.BackupWritten),
	)
	return err
}

func (r *SQLiteRecorder) RecordMetric(evt *MetricEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO metric_events
		(timestamp, metric, source, stale, warning, error)
		VALUES (?,?,?,?,?,?)`,
		r.now().Unix(), evt.Key, evt.Source, boolInt(evt.Stale), evt.Warning, evt.Error,
	)
	return err
}

// RecordInflation writes all rows of one table in a single transaction.
func (r *SQLiteRecorder) RecordInflation(rows []InflationSnapshot) error {
	if len(rows) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	ts := r.now().Unix()
	for _, row := range rows {
		if _, err := tx.Exec(`INSERT INTO inflation_snapshots
			(timestamp, kind, period, window_days, absolute, rate_circulating, rate_total)
			VALUES (?,?,?,?,?,?,?)`,
			ts, row.Kind, row.Period, row.WindowDays, row.Absolute, row.RateCirculating, row.RateTotal,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert inflation %s/%s: %w", row.Kind, row.Period, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordSupplyCheck(evt *SupplyCheckEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO supply_checks
		(timestamp, token, cached, live, delta, mismatch)
		VALUES (?,?,?,?,?,?)`,
		r.now().Unix(), evt.Token, evt.Cached, evt.Live, evt.Delta, boolInt(evt.Mismatch),
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
