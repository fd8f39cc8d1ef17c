// Package dnsclient is the guarded DNS client: every query against the target is admitted by
// the network policy guard and recorded in the ledger before its result reaches the caller.
package dnsclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/tbckr/posture/internal/apperr"
	"github.com/tbckr/posture/internal/ledger"
	"github.com/tbckr/posture/internal/netpolicy"
	"github.com/tbckr/posture/internal/resolver"
)

// Admitter decides whether a DNS query may be sent. *netpolicy.Guard implements it.
type Admitter interface {
	EnforceDNSQuery(ctx context.Context, name, recordType string) error
}

// Recorder appends ledger entries. *ledger.Ledger implements it.
type Recorder interface {
	Add(ctx context.Context, e ledger.Entry) ledger.Entry
}

// Client wraps a RecordResolver with the guard and ledger. It is safe for concurrent use.
type Client struct {
	resolver resolver.RecordResolver
	guard    Admitter
	ledger   Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// New returns a guarded DNS client.
func New(r resolver.RecordResolver, guard Admitter, led Recorder, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{resolver: r, guard: guard, ledger: led, logger: logger, now: time.Now}
}

// Resolve admits and resolves one query. A blocked query returns nil and the
// *netpolicy.Violation; a resolution failure returns nil and an error wrapping
// apperr.ErrRequestFailed. A name with no records returns an empty slice and no error.
// Every call produces exactly one ledger entry before returning.
func (c *Client) Resolve(ctx context.Context, name, recordType string) ([]string, error) {
	name = netpolicy.NormalizeHost(name)
	recordType = strings.ToUpper(strings.TrimSpace(recordType))
	entry := ledger.Entry{
		Category:   netpolicy.CategoryTargetDNS,
		Host:       name,
		QueryName:  name,
		RecordType: recordType,
	}

	if err := c.guard.EnforceDNSQuery(ctx, name, recordType); err != nil {
		entry.Status = "blocked"
		entry.Error = err.Error()
		c.ledger.Add(ctx, entry)
		return nil, err
	}

	start := c.now()
	values, err := c.resolver.Resolve(ctx, name, recordType)
	entry.DurationMS = c.now().Sub(start).Milliseconds()
	if err != nil {
		entry.Status = "failed"
		entry.Error = err.Error()
		c.ledger.Add(ctx, entry)
		return nil, fmt.Errorf("%w: resolving %s %s: %w", apperr.ErrRequestFailed, name, recordType, err)
	}
	if values == nil {
		values = []string{}
	}

	entry.Status = "ok"
	entry.Values = values
	entry.Success = true
	c.ledger.Add(ctx, entry)
	return values, nil
}

// Records is the degrade-gracefully form of Resolve used by recon modules: a blocked or failed
// query yields an empty slice, since "no records" and "query not permitted" lead to the same
// conclusion downstream. The outcome is still in the ledger.
func (c *Client) Records(ctx context.Context, name, recordType string) []string {
	values, err := c.Resolve(ctx, name, recordType)
	if err != nil {
		c.logger.Debug("dns lookup yielded no records", "name", name, "type", recordType, "error", err)
		return []string{}
	}
	return values
}
