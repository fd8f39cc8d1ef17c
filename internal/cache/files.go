package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tbckr/posture/internal/appdir"
)

// Files is a Store with one JSON file per key.
type Files struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

type fileEntry struct {
	Key      string          `json:"key"`
	StoredAt time.Time       `json:"stored_at"`
	Value    json.RawMessage `json:"value"`
}

// NewFiles uses dir, creating it with 0700 permissions.
func NewFiles(dir string, ttl time.Duration, opts ...Option) (*Files, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("missing cache directory")
	}
	if err := appdir.EnsureDir(dir); err != nil {
		return nil, err
	}
	s := newSettings(opts)
	return &Files{dir: dir, ttl: ttl, now: s.now}, nil
}

// path hashes key so any key maps to a safe file name.
func (c *Files) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".json")
}

func (c *Files) Get(ctx context.Context, key string, v any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	data, err := os.ReadFile(c.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var e fileEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return false, fmt.Errorf("decoding cached %s: %w", key, err)
	}
	if e.Key != key || expired(e.StoredAt, c.ttl, c.now()) {
		return false, nil
	}
	if err := json.Unmarshal(e.Value, v); err != nil {
		return false, fmt.Errorf("decoding cached %s: %w", key, err)
	}
	return true, nil
}

// Set writes through a temporary file and a rename so readers never see a partial entry.
func (c *Files) Set(ctx context.Context, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s for cache: %w", key, err)
	}
	data, err := json.MarshalIndent(fileEntry{Key: key, StoredAt: c.now().UTC(), Value: value}, "", "  ")
	if err != nil {
		return err
	}

	path := c.path(key)
	tmp, err := os.CreateTemp(c.dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (c *Files) Close() error { return nil }
