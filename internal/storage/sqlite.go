package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/complyscan/airouter/internal/ledger"
	"github.com/complyscan/airouter/internal/provider"
)

const schema = `
-- Usage records: one row per completed provider call
CREATE TABLE IF NOT EXISTS usage_records (
    id TEXT PRIMARY KEY,
    timestamp DATETIME NOT NULL,
    task TEXT NOT NULL,
    provider TEXT NOT NULL,
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    cost REAL NOT NULL DEFAULT 0,
    latency_ms INTEGER NOT NULL DEFAULT 0,
    success INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_records(timestamp);
CREATE INDEX IF NOT EXISTS idx_usage_provider ON usage_records(provider);
`

// SQLiteStore persists usage records. It implements ledger.Store.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore satisfies the ledger's store
// interface.
var _ ledger.Store = (*SQLiteStore)(nil)

// New opens (or creates) the usage database at path.
func New(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL mode for better concurrency with readers
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append inserts one usage record.
func (s *SQLiteStore) Append(e ledger.Entry) error {
	_, err := s.db.Exec(`
		INSERT INTO usage_records (id, timestamp, task, provider, input_tokens, output_tokens, cost, latency_ms, success)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UTC(), string(e.Task), string(e.Provider),
		e.InputTokens, e.OutputTokens, e.Cost, e.Latency.Milliseconds(), boolToInt(e.Success),
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}

// LoadRecent returns up to limit most recent records, oldest first, so
// they can seed a fresh ledger at startup.
func (s *SQLiteStore) LoadRecent(limit int) ([]ledger.Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, task, provider, input_tokens, output_tokens, cost, latency_ms, success
		FROM usage_records
		ORDER BY timestamp DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage records: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var task, prov string
		var latencyMs int64
		var success int
		if err := rows.Scan(&e.ID, &e.Timestamp, &task, &prov,
			&e.InputTokens, &e.OutputTokens, &e.Cost, &latencyMs, &success); err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		e.Task = provider.Task(task)
		e.Provider = provider.ID(prov)
		e.Latency = time.Duration(latencyMs) * time.Millisecond
		e.Success = success != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to oldest-first for ledger.Load.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// MonthlyTotal sums the cost of records in the given UTC calendar
// month. Lets the budget monitor reconcile against history that
// predates this process.
func (s *SQLiteStore) MonthlyTotal(year int, month time.Month) (float64, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	var total sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT SUM(cost) FROM usage_records
		WHERE timestamp >= ? AND timestamp < ?`, start, end).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum monthly cost: %w", err)
	}
	return total.Float64, nil
}

// Prune deletes records older than the retention window.
func (s *SQLiteStore) Prune(olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM usage_records WHERE timestamp < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage records: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
