// Package cache keeps decoded third-party responses between runs so that repeated
// assessments of the same domain do not repeat the same lookups.
//
// A cache hit is not network activity and is never recorded in a run's ledger.
package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/tbckr/posture/internal/appdir"
	"github.com/tbckr/posture/internal/apperr"
)

// Kinds accepted by Open.
const (
	KindNone   = "none"
	KindSQLite = "sqlite"
	KindFiles  = "files"
)

// Store holds JSON-encodable values under string keys.
type Store interface {
	// Get decodes the value stored under key into v. It reports false when the key is
	// missing or expired.
	Get(ctx context.Context, key string, v any) (bool, error)
	Set(ctx context.Context, key string, v any) error
	Close() error
}

// Option configures a store.
type Option func(*settings)

type settings struct {
	now func() time.Time
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option { return func(s *settings) { s.now = now } }

func newSettings(opts []Option) settings {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// DefaultPath returns the cache location for kind under appdir.DataDir.
func DefaultPath(kind string) (string, error) {
	dir, err := appdir.DataDir()
	if err != nil {
		return "", err
	}
	if kind == KindFiles {
		return filepath.Join(dir, "cache"), nil
	}
	return filepath.Join(dir, "cache.db"), nil
}

// Open returns the store for kind at path. KindNone (or "") returns a nil Store and no error.
// A ttl of zero keeps entries forever.
func Open(kind, path string, ttl time.Duration, opts ...Option) (Store, error) {
	switch kind {
	case KindNone, "":
		return nil, nil
	case KindSQLite:
		s, err := NewSQLite(path, ttl, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindFiles:
		s, err := NewFiles(path, ttl, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown cache kind %q", apperr.ErrInvalidInput, kind)
}

func expired(stored time.Time, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(stored) >= ttl
}
