package cache

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

	"github.com/tbckr/posture/internal/appdir"
)

// SQLite is a Store in a single SQLite table.
type SQLite struct {
	ttl time.Duration
	now func() time.Time

	mu sync.Mutex
	db *sql.DB
}

// NewSQLite opens or creates the cache database at path.
func NewSQLite(path string, ttl time.Duration, opts ...Option) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("missing cache path")
	}
	if err := appdir.EnsureParent(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS cache (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  stored_at_unix_nano INTEGER NOT NULL
);
`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	s := newSettings(opts)
	return &SQLite{ttl: ttl, now: s.now, db: db}, nil
}

func (c *SQLite) Get(ctx context.Context, key string, v any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return false, fmt.Errorf("cache is closed")
	}
	var (
		raw    string
		stored int64
	)
	err := c.db.QueryRowContext(ctx, `SELECT value, stored_at_unix_nano FROM cache WHERE key = ?`, key).
		Scan(&raw, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if expired(time.Unix(0, stored), c.ttl, c.now()) {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decoding cached %s: %w", key, err)
	}
	return true, nil
}

func (c *SQLite) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s for cache: %w", key, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return fmt.Errorf("cache is closed")
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache (key, value, stored_at_unix_nano) VALUES (?, ?, ?)`,
		key, string(data), c.now().UnixNano())
	return err
}

func (c *SQLite) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
