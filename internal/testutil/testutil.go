// Package testutil provides shared test helpers for the guard, clients and recon modules.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// MockResolver implements both netpolicy.AddrResolver and resolver.RecordResolver for testing.
// Each field is a function so tests can set only the methods they need.
type MockResolver struct {
	LookupIPAddrFn func(ctx context.Context, host string) ([]net.IPAddr, error)
	ResolveFn      func(ctx context.Context, name, recordType string) ([]string, error)

	mu    sync.Mutex
	calls []string
}

// LookupIPAddr returns a single public address unless LookupIPAddrFn is set.
func (m *MockResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	if m.LookupIPAddrFn != nil {
		return m.LookupIPAddrFn(ctx, host)
	}
	return []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}, nil
}

// Resolve records the call and delegates to ResolveFn.
func (m *MockResolver) Resolve(ctx context.Context, name, recordType string) ([]string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, name+" "+recordType)
	m.mu.Unlock()
	if m.ResolveFn != nil {
		return m.ResolveFn(ctx, name, recordType)
	}
	return nil, nil
}

// Calls returns every "name TYPE" pair passed to Resolve, in call order.
func (m *MockResolver) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// StaticAddrs returns a LookupIPAddrFn that always answers with the given addresses.
func StaticAddrs(ips ...string) func(context.Context, string) ([]net.IPAddr, error) {
	return func(context.Context, string) ([]net.IPAddr, error) {
		out := make([]net.IPAddr, 0, len(ips))
		for _, ip := range ips {
			out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
		}
		return out, nil
	}
}

// FakeClock is a manually advanced clock for window and ledger timestamp tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// NopLogger returns a logger that discards all output.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
