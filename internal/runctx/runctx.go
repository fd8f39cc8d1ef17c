// Package runctx composes the per-run network stack: one policy guard, one ledger, the
// pacing limiter, and the guarded HTTP and DNS clients that share them. Close releases the
// shared transport and persists the ledger whether the run succeeded or not.
package runctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/imroc/req/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbckr/posture/internal/appdir"
	"github.com/tbckr/posture/internal/cache"
	"github.com/tbckr/posture/internal/config"
	"github.com/tbckr/posture/internal/dnsclient"
	"github.com/tbckr/posture/internal/httpclient"
	"github.com/tbckr/posture/internal/ledger"
	"github.com/tbckr/posture/internal/metrics"
	"github.com/tbckr/posture/internal/netpolicy"
	"github.com/tbckr/posture/internal/ratelimit"
	"github.com/tbckr/posture/internal/resolver"
	"github.com/tbckr/posture/internal/validate"
	"github.com/tbckr/posture/internal/worker"
)

// File names written into the run directory.
const (
	StreamFile   = "network_ledger.jsonl"
	SnapshotFile = "network_ledger.json"
	AuditFile    = "network_activity.md"
)

// Ledger store kinds accepted by config.
const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
	StoreNone   = "none"
)

type options struct {
	client   *req.Client
	records  resolver.RecordResolver
	addrs    netpolicy.AddrResolver
	now      func() time.Time
	runID    string
	registry *prometheus.Registry
}

// Option customizes Open, mostly for tests.
type Option func(*options)

// WithHTTPClient replaces the transport built from the config.
func WithHTTPClient(c *req.Client) Option { return func(o *options) { o.client = c } }

// WithRecordResolver replaces the DNS transport built from the config.
func WithRecordResolver(r resolver.RecordResolver) Option { return func(o *options) { o.records = r } }

// WithAddrResolver replaces the resolver used for the guard's destination check.
func WithAddrResolver(r netpolicy.AddrResolver) Option { return func(o *options) { o.addrs = r } }

// WithClock sets the clock shared by the guard and the ledger.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithRunID fixes the run identifier instead of generating a UUID.
func WithRunID(id string) Option { return func(o *options) { o.runID = id } }

// WithRegistry collects metrics into reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option { return func(o *options) { o.registry = reg } }

// Run is one assessment of one domain.
type Run struct {
	ID      string
	Domain  string
	Dir     string
	Started time.Time

	Guard    *netpolicy.Guard
	Ledger   *ledger.Ledger
	Limiter  *ratelimit.Limiter
	HTTP     *httpclient.Guarded
	DNS      *dnsclient.Client
	Pool     *worker.Pool
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	// Cache is nil unless a third-party response cache is configured.
	Cache cache.Store

	cfg    *config.Config
	client *req.Client
	logger *slog.Logger

	closeOnce sync.Once
	snap      ledger.Snapshot
	closeErr  error
}

// Open validates domain and builds the run's network stack from cfg. When cfg.OutDir is set
// the run directory <out_dir>/<domain>-<run id> is created and every ledger entry is
// streamed to it as JSON lines.
func Open(ctx context.Context, cfg *config.Config, domain string, logger *slog.Logger, opts ...Option) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	domain, err := validate.Domain(domain)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	r := &Run{
		ID:       o.runID,
		Domain:   domain,
		Started:  o.now().UTC(),
		Registry: o.registry,
		cfg:      cfg,
		logger:   logger.With("run_id", o.runID, "domain", domain),
	}

	if r.Metrics, err = metrics.New(r.Registry); err != nil {
		return nil, err
	}

	r.client = o.client
	if r.client == nil {
		r.client, err = httpclient.New(httpclient.Options{
			Proxy:     cfg.Proxy,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.Timeout,
			Logger:    logger,
			Debug:     cfg.Verbose,
		})
		if err != nil {
			return nil, err
		}
	}

	if o.addrs == nil {
		sys, err := resolver.NewSystem(cfg.Proxy)
		if err != nil {
			return nil, err
		}
		o.addrs = sys
	}
	if o.records == nil {
		if o.records, err = resolver.New(cfg.Resolver, cfg.Nameserver, cfg.Proxy, r.client); err != nil {
			return nil, err
		}
	}

	r.Guard, err = netpolicy.New(cfg.GuardConfig(domain),
		netpolicy.WithResolver(o.addrs),
		netpolicy.WithClock(o.now),
		netpolicy.WithLogger(r.logger),
		netpolicy.WithObserver(r.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("building policy guard: %w", err)
	}

	ledgerOpts := []ledger.Option{
		ledger.WithClock(o.now),
		ledger.WithObserver(r.Metrics),
		ledger.WithLogger(r.logger),
	}
	if cfg.OutDir != "" {
		r.Dir = filepath.Join(cfg.OutDir, domain+"-"+r.ID)
		if err := appdir.EnsureDir(r.Dir); err != nil {
			return nil, fmt.Errorf("creating run dir: %w", err)
		}
		sink, err := ledger.NewJSONLSink(filepath.Join(r.Dir, StreamFile))
		if err != nil {
			return nil, err
		}
		ledgerOpts = append(ledgerOpts, ledger.WithSink(sink))
	}
	r.Ledger = ledger.New(ledger.RunInfo{
		RunID:     r.ID,
		Domain:    domain,
		Mode:      cfg.Mode,
		DNSPolicy: cfg.DNSPolicy,
	}, ledgerOpts...)

	r.Limiter = ratelimit.New(cfg.MaxRequestsPerMinute,
		ratelimit.WithJitter(float64(cfg.RateLimitJitter)/100))
	r.HTTP = httpclient.NewGuarded(r.client, r.Guard, r.Ledger, r.Limiter, httpclient.GuardedOptions{
		Retries:          cfg.Retries,
		Backoff:          cfg.RetryBackoff,
		MaxResponseBytes: cfg.Budgets.MaxResponseBytes,
		Logger:           r.logger,
		Observer:         r.Metrics,
	})
	r.DNS = dnsclient.New(o.records, r.Guard, r.Ledger, r.logger)
	r.Pool = worker.NewPool(cfg.Concurrency, r.logger)

	if r.Cache, err = cache.Open(cfg.Cache, cfg.CachePath, cfg.CacheTTL, cache.WithClock(o.now)); err != nil {
		_ = r.Ledger.Close()
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	r.logger.Info("run opened", "mode", cfg.Mode, "dns_policy", cfg.DNSPolicy, "dir", r.Dir)
	return r, nil
}

// Close releases the shared transport, the cache and the ledger sinks, then snapshots the ledger and
// persists it according to the configured store. It is safe to call more than once; later
// calls return the first result.
func (r *Run) Close(ctx context.Context) (ledger.Snapshot, error) {
	r.closeOnce.Do(func() {
		r.snap, r.closeErr = r.close(ctx)
	})
	return r.snap, r.closeErr
}

func (r *Run) close(ctx context.Context) (ledger.Snapshot, error) {
	var errs []error
	r.client.GetClient().CloseIdleConnections()
	if err := r.Ledger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing ledger sinks: %w", err))
	}
	if r.Cache != nil {
		if err := r.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing cache: %w", err))
		}
	}

	snap := r.Ledger.Snapshot()
	if r.Dir != "" {
		if err := r.writeAudit(snap); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.persist(ctx, snap); err != nil {
		errs = append(errs, err)
	}
	if r.cfg.MetricsFile != "" {
		if err := metrics.WriteTextFile(r.Registry, r.cfg.MetricsFile); err != nil {
			errs = append(errs, err)
		}
	}

	r.logger.Info("run closed",
		"entries", snap.Totals.TotalEntries,
		"third_party_http", snap.Totals.Counts[netpolicy.CategoryThirdPartyHTTP],
		"target_dns", snap.Totals.Counts[netpolicy.CategoryTargetDNS],
		"target_http", snap.Totals.Counts[netpolicy.CategoryTargetHTTP],
	)
	return snap, errors.Join(errs...)
}

func (r *Run) persist(ctx context.Context, snap ledger.Snapshot) error {
	switch r.cfg.LedgerStore {
	case StoreJSON, "":
		if r.Dir == "" {
			return nil
		}
		return ledger.WriteSnapshotFile(filepath.Join(r.Dir, SnapshotFile), snap)
	case StoreSQLite:
		if err := appdir.EnsureParent(r.cfg.SQLitePath); err != nil {
			return err
		}
		store, err := ledger.NewSQLiteStore(r.cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		return store.SaveSnapshot(ctx, snap)
	default:
		return nil
	}
}

func (r *Run) writeAudit(snap ledger.Snapshot) error {
	f, err := os.OpenFile(filepath.Join(r.Dir, AuditFile), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("creating audit file: %w", err)
	}
	if err := ledger.WriteAudit(f, snap); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing audit file: %w", err)
	}
	return f.Close()
}
