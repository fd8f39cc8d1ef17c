package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/tbckr/posture/internal/apperr"
	"github.com/tbckr/posture/internal/netpolicy"
)

// SQLiteStore persists ledger snapshots so past runs can be audited later.
type SQLiteStore struct {
	dsn string

	mu sync.Mutex
	db *sql.DB
}

// RunSummary is one row of ListRuns.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	Domain    string    `json:"domain"`
	Mode      string    `json:"mode"`
	DNSPolicy string    `json:"dns_policy"`
	SavedAt   time.Time `json:"saved_at"`
	Entries   int       `json:"entries"`
}

// NewSQLiteStore opens the database at dsn and creates the schema if needed.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("missing sqlite dsn")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{dsn: dsn, db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS ledger_runs (
  run_id TEXT PRIMARY KEY,
  domain TEXT NOT NULL,
  mode TEXT NOT NULL,
  dns_policy TEXT NOT NULL,
  saved_at_unix INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_entries (
  run_id TEXT NOT NULL,
  seq INTEGER NOT NULL,
  ts_unix_nano INTEGER NOT NULL,
  category TEXT NOT NULL,
  host TEXT NOT NULL,
  url TEXT NOT NULL,
  method TEXT NOT NULL,
  query_name TEXT NOT NULL,
  record_type TEXT NOT NULL,
  status TEXT NOT NULL,
  error TEXT NOT NULL,
  values_json TEXT NOT NULL,
  bytes_out INTEGER NOT NULL,
  bytes_in INTEGER NOT NULL,
  duration_ms INTEGER NOT NULL,
  success INTEGER NOT NULL,
  PRIMARY KEY (run_id, seq)
);
`)
	return err
}

// SaveSnapshot stores snap, replacing any earlier snapshot with the same run ID.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if strings.TrimSpace(snap.RunID) == "" {
		return fmt.Errorf("%w: snapshot has no run id", apperr.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("sqlite store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE run_id = ?`, snap.RunID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT OR REPLACE INTO ledger_runs (run_id, domain, mode, dns_policy, saved_at_unix)
VALUES (?, ?, ?, ?, ?)
`, snap.RunID, snap.Domain, snap.Mode.String(), snap.DNSPolicy.String(), time.Now().UTC().Unix()); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO ledger_entries (
  run_id, seq, ts_unix_nano, category, host, url, method,
  query_name, record_type, status, error, values_json,
  bytes_out, bytes_in, duration_ms, success
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, e := range snap.Entries {
		valuesJSON, _ := json.Marshal(e.Values)
		if _, err := stmt.ExecContext(ctx,
			snap.RunID, i, e.Timestamp.UnixNano(), string(e.Category), e.Host, e.URL, e.Method,
			e.QueryName, e.RecordType, e.Status, e.Error, string(valuesJSON),
			e.BytesOut, e.BytesIn, e.DurationMS, boolToInt(e.Success),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadSnapshot reads the snapshot for runID. Totals are recomputed from the entries.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, runID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return Snapshot{}, fmt.Errorf("sqlite store is closed")
	}

	var (
		snap      Snapshot
		mode      string
		dnsPolicy string
		savedAt   int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT run_id, domain, mode, dns_policy, saved_at_unix FROM ledger_runs WHERE run_id = ?
`, runID).Scan(&snap.RunID, &snap.Domain, &mode, &dnsPolicy, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("%w: no ledger stored for run %q", apperr.ErrInvalidInput, runID)
	}
	if err != nil {
		return Snapshot{}, err
	}
	if snap.Mode, err = netpolicy.ParseMode(mode); err != nil {
		return Snapshot{}, err
	}
	if snap.DNSPolicy, err = netpolicy.ParseDNSPolicy(dnsPolicy); err != nil {
		return Snapshot{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT ts_unix_nano, category, host, url, method, query_name, record_type,
  status, error, values_json, bytes_out, bytes_in, duration_ms, success
FROM ledger_entries WHERE run_id = ? ORDER BY seq
`, runID)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()

	snap.Entries = []Entry{}
	for rows.Next() {
		var (
			e          Entry
			ts         int64
			category   string
			valuesJSON string
			success    int
		)
		if err := rows.Scan(&ts, &category, &e.Host, &e.URL, &e.Method, &e.QueryName, &e.RecordType,
			&e.Status, &e.Error, &valuesJSON, &e.BytesOut, &e.BytesIn, &e.DurationMS, &success); err != nil {
			return Snapshot{}, err
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.Category = netpolicy.Category(category)
		e.Success = success != 0
		if valuesJSON != "" {
			if err := json.Unmarshal([]byte(valuesJSON), &e.Values); err != nil {
				return Snapshot{}, fmt.Errorf("decoding values of entry %d in run %s: %w", len(snap.Entries), runID, err)
			}
		}
		snap.Entries = append(snap.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}
	snap.Totals = computeTotals(snap.Entries)
	return snap, nil
}

// ListRuns returns every stored run, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("sqlite store is closed")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT r.run_id, r.domain, r.mode, r.dns_policy, r.saved_at_unix,
  (SELECT COUNT(*) FROM ledger_entries e WHERE e.run_id = r.run_id)
FROM ledger_runs r ORDER BY r.saved_at_unix DESC, r.run_id
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			rs      RunSummary
			savedAt int64
		)
		if err := rows.Scan(&rs.RunID, &rs.Domain, &rs.Mode, &rs.DNSPolicy, &savedAt, &rs.Entries); err != nil {
			return nil, err
		}
		rs.SavedAt = time.Unix(savedAt, 0).UTC()
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
