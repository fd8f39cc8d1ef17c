package ledger

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tbckr/posture/internal/netpolicy"
)

// RunInfo identifies the run a ledger belongs to.
type RunInfo struct {
	RunID     string              `json:"run_id"`
	Domain    string              `json:"domain"`
	Mode      netpolicy.Mode      `json:"mode"`
	DNSPolicy netpolicy.DNSPolicy `json:"dns_policy"`
}

// Sink receives each entry right after it is appended.
type Sink interface {
	Write(ctx context.Context, e Entry) error
	Close() error
}

// Observer is notified of every appended entry (metrics).
type Observer interface {
	ObserveEntry(e Entry)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now for entry timestamps.
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

// WithSink registers a sink that mirrors every entry.
func WithSink(s Sink) Option { return func(l *Ledger) { l.sinks = append(l.sinks, s) } }

// WithObserver registers an entry observer.
func WithObserver(o Observer) Option { return func(l *Ledger) { l.observer = o } }

// WithLogger sets the logger used to report sink failures.
func WithLogger(logger *slog.Logger) Option { return func(l *Ledger) { l.logger = logger } }

// Ledger is the append-only audit trail of one run. It is safe for concurrent use.
type Ledger struct {
	info     RunInfo
	now      func() time.Time
	sinks    []Sink
	observer Observer
	logger   *slog.Logger

	mu      sync.RWMutex
	entries []Entry
}

// New returns an empty ledger for the given run.
func New(info RunInfo, opts ...Option) *Ledger {
	l := &Ledger{
		info:   info,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Info returns the run identity the ledger was created with.
func (l *Ledger) Info() RunInfo { return l.info }

// Add stamps e with the current UTC time, appends it, and returns the stored copy.
// A failing sink is logged but never prevents the entry from being recorded.
func (l *Ledger) Add(ctx context.Context, e Entry) Entry {
	e = e.clone()
	e.Timestamp = l.now().UTC()

	l.mu.Lock()
	l.entries = append(l.entries, e)
	for _, s := range l.sinks {
		if err := s.Write(ctx, e); err != nil {
			l.logger.Warn("ledger sink write failed", "error", err)
		}
	}
	l.mu.Unlock()

	if l.observer != nil {
		l.observer.ObserveEntry(e)
	}
	return e.clone()
}

// Len returns the number of recorded entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a copy of all entries in append order.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.clone()
	}
	return out
}

// Totals aggregates counts and byte sums per category.
type Totals struct {
	Counts       map[netpolicy.Category]int   `json:"counts"`
	BytesOut     map[netpolicy.Category]int64 `json:"bytes_out"`
	BytesIn      map[netpolicy.Category]int64 `json:"bytes_in"`
	TotalEntries int                          `json:"total_entries"`
}

// Totals aggregates the entries appended before the call. It never mutates entries.
func (l *Ledger) Totals() Totals {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return computeTotals(l.entries)
}

func computeTotals(entries []Entry) Totals {
	t := Totals{
		Counts:       make(map[netpolicy.Category]int),
		BytesOut:     make(map[netpolicy.Category]int64),
		BytesIn:      make(map[netpolicy.Category]int64),
		TotalEntries: len(entries),
	}
	for _, e := range entries {
		t.Counts[e.Category]++
		t.BytesOut[e.Category] += e.BytesOut
		t.BytesIn[e.Category] += e.BytesIn
	}
	return t
}

// Close closes every registered sink and returns the first error.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var first error
	for _, s := range l.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.sinks = nil
	return first
}
