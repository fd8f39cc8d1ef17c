package netpolicy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"time"
)

// window is the length of the fixed per-minute admission window.
const window = time.Minute

// Budgets holds the six quantitative ceilings of a run.
type Budgets struct {
	MaxTargetHTTPTotal     int   `json:"max_target_http_requests_total" yaml:"max_target_http_requests_total"`
	MaxTargetHTTPPerHost   int   `json:"max_target_http_per_host" yaml:"max_target_http_per_host"`
	MaxTargetHTTPPerMinute int   `json:"max_target_http_per_minute" yaml:"max_target_http_per_minute"`
	MaxRedirects           int   `json:"max_redirects" yaml:"max_redirects"`
	MaxResponseBytes       int64 `json:"max_bytes_per_response" yaml:"max_bytes_per_response"`
	MaxTargetDNSQueries    int   `json:"max_target_dns_queries" yaml:"max_target_dns_queries"`
}

// DefaultBudgets returns the ceilings used when a run does not override them.
func DefaultBudgets() Budgets {
	return Budgets{
		MaxTargetHTTPTotal:     12,
		MaxTargetHTTPPerHost:   3,
		MaxTargetHTTPPerMinute: 12,
		MaxRedirects:           0,
		MaxResponseBytes:       262_144,
		MaxTargetDNSQueries:    25,
	}
}

func (b Budgets) validate() error {
	for name, v := range map[string]int64{
		"max_target_http_requests_total": int64(b.MaxTargetHTTPTotal),
		"max_target_http_per_host":       int64(b.MaxTargetHTTPPerHost),
		"max_target_http_per_minute":     int64(b.MaxTargetHTTPPerMinute),
		"max_redirects":                  int64(b.MaxRedirects),
		"max_bytes_per_response":         b.MaxResponseBytes,
		"max_target_dns_queries":         int64(b.MaxTargetDNSQueries),
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, v)
		}
	}
	return nil
}

// Config is the per-run input to New.
type Config struct {
	Domain    string
	Mode      Mode
	DNSPolicy DNSPolicy
	Budgets   Budgets
}

// AddrResolver resolves a hostname for the destination safety check.
// *net.Resolver satisfies this interface directly.
type AddrResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Observer receives one call per admission decision. rule is empty for approvals.
type Observer interface {
	ObserveDecision(category Category, allowed bool, rule Rule)
}

// Option configures a Guard.
type Option func(*Guard)

// WithResolver sets the resolver used for the destination safety check.
func WithResolver(r AddrResolver) Option { return func(g *Guard) { g.resolver = r } }

// WithClock replaces time.Now for the per-minute window.
func WithClock(now func() time.Time) Option { return func(g *Guard) { g.now = now } }

// WithLogger sets the logger used for rejection diagnostics.
func WithLogger(l *slog.Logger) Option { return func(g *Guard) { g.logger = l } }

// WithObserver registers an admission observer (metrics).
func WithObserver(o Observer) Option { return func(g *Guard) { g.observer = o } }

// Guard is the single arbiter of outbound operations for one run. All admission checks and
// counter increments happen under one mutex, so concurrent callers can never both pass a
// budget check before either has been debited.
type Guard struct {
	domain    string
	mode      Mode
	dnsPolicy DNSPolicy
	budgets   Budgets

	resolver AddrResolver
	now      func() time.Time
	logger   *slog.Logger
	observer Observer

	mu          sync.Mutex
	httpTotal   int
	httpPerHost map[string]int
	dnsTotal    int
	windowStart time.Time
	windowCount int
}

// New validates cfg and returns a Guard with zeroed counters.
func New(cfg Config, opts ...Option) (*Guard, error) {
	domain := NormalizeHost(cfg.Domain)
	if domain == "" {
		return nil, fmt.Errorf("domain must not be empty")
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("invalid mode %d", int(cfg.Mode))
	}
	if !cfg.DNSPolicy.Valid() {
		return nil, fmt.Errorf("invalid DNS policy %d", int(cfg.DNSPolicy))
	}
	if err := cfg.Budgets.validate(); err != nil {
		return nil, err
	}

	g := &Guard{
		domain:      domain,
		mode:        cfg.Mode,
		dnsPolicy:   cfg.DNSPolicy,
		budgets:     cfg.Budgets,
		resolver:    net.DefaultResolver,
		now:         time.Now,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		httpPerHost: make(map[string]int),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.windowStart = g.now()
	return g, nil
}

// Domain returns the normalized assessment domain.
func (g *Guard) Domain() string { return g.domain }

// Mode returns the run's operating mode.
func (g *Guard) Mode() Mode { return g.mode }

// DNSPolicy returns the run's DNS query policy.
func (g *Guard) DNSPolicy() DNSPolicy { return g.dnsPolicy }

// AllowTargetHTTP reports whether the operating mode permits any target HTTP at all.
func (g *Guard) AllowTargetHTTP() bool { return g.mode == ModeLowNoise }

// Classify returns target_http when the URL's host is the assessment domain or one of its
// subdomains and third_party_http otherwise. Unparseable URLs classify as third party.
func (g *Guard) Classify(rawURL string) Category {
	host, _ := hostOf(rawURL)
	if InScope(host, g.domain) {
		return CategoryTargetHTTP
	}
	return CategoryThirdPartyHTTP
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := NormalizeHost(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("no host in %q", rawURL)
	}
	return host, nil
}

// EnforceHTTPRequest admits or rejects one HTTP request and, on admission of a target
// request, debits the total, per-host and per-minute counters. The returned category is
// meaningful even when err is a *Violation so callers can ledger the rejection.
func (g *Guard) EnforceHTTPRequest(ctx context.Context, method, rawURL string) (Category, error) {
	method = strings.ToUpper(strings.TrimSpace(method))

	host, err := hostOf(rawURL)
	if err != nil {
		return CategoryThirdPartyHTTP, g.reject(CategoryThirdPartyHTTP,
			violation(RuleInvalidURL, "cannot determine destination host: %v", err))
	}

	cat := g.Classify(rawURL)
	if cat == CategoryThirdPartyHTTP {
		if g.mode == ModeLowNoise && method == "HEAD" {
			return cat, g.reject(cat,
				violation(RuleOffDomainHead, "off-domain HEAD requests are blocked in low-noise mode (%s)", host))
		}
		g.approve(cat)
		return cat, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.AllowTargetHTTP() {
		return cat, g.reject(cat, violation(RulePassiveMode, "target HTTP is disabled in passive mode"))
	}
	if g.budgets.MaxRedirects != 0 {
		return cat, g.reject(cat, violation(RuleRedirects,
			"redirects must remain disabled for target HTTP (max_redirects=%d)", g.budgets.MaxRedirects))
	}
	if method != "HEAD" && method != "GET" {
		return cat, g.reject(cat, violation(RuleMethod, "only HEAD/GET are allowed for target HTTP, got %s", method))
	}
	if g.httpTotal >= g.budgets.MaxTargetHTTPTotal {
		return cat, g.reject(cat, violation(RuleTotalBudget,
			"target HTTP total budget exceeded (%d)", g.budgets.MaxTargetHTTPTotal))
	}
	if g.httpPerHost[host] >= g.budgets.MaxTargetHTTPPerHost {
		return cat, g.reject(cat, violation(RuleHostBudget,
			"target HTTP per-host budget exceeded for %s (%d)", host, g.budgets.MaxTargetHTTPPerHost))
	}

	now := g.now()
	if now.Sub(g.windowStart) >= window {
		g.windowStart = now
		g.windowCount = 0
	}
	if g.windowCount >= g.budgets.MaxTargetHTTPPerMinute {
		return cat, g.reject(cat, violation(RuleMinuteBudget,
			"target HTTP per-minute budget exceeded (%d)", g.budgets.MaxTargetHTTPPerMinute))
	}

	if !InScope(host, g.domain) {
		return cat, g.reject(cat, violation(RuleScope, "host %s is outside %s", host, g.domain))
	}
	if v := g.checkPublicResolution(ctx, host); v != nil {
		return cat, g.reject(cat, v)
	}

	g.httpTotal++
	g.httpPerHost[host]++
	g.windowCount++
	g.approve(cat)
	return cat, nil
}

// checkPublicResolution fails closed: a lookup error or an empty answer is a rejection.
func (g *Guard) checkPublicResolution(ctx context.Context, host string) *Violation {
	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return violation(RuleResolution, "failed to resolve host %s: %v", host, err)
	}
	if len(addrs) == 0 {
		return violation(RuleResolution, "host %s resolved to no addresses", host)
	}
	for _, a := range addrs {
		ip, ok := netip.AddrFromSlice(a.IP)
		if !ok || !IsPublicAddr(ip) {
			return violation(RuleUnsafeAddress, "blocked target HTTP to non-public IP %s", a.IP)
		}
	}
	return nil
}

// EnforceDNSQuery admits or rejects one DNS query against the target and debits the DNS
// counter on admission.
func (g *Guard) EnforceDNSQuery(_ context.Context, name, recordType string) error {
	q := NormalizeHost(name)
	rt := strings.ToUpper(strings.TrimSpace(recordType))
	const cat = CategoryTargetDNS

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dnsPolicy == DNSNone {
		return g.reject(cat, violation(RuleDNSDisabled, "DNS policy is none; DNS queries are disabled"))
	}
	if g.dnsTotal >= g.budgets.MaxTargetDNSQueries {
		return g.reject(cat, violation(RuleDNSBudget,
			"target DNS query budget exceeded (%d)", g.budgets.MaxTargetDNSQueries))
	}
	if g.dnsPolicy == DNSMinimal && !g.minimalAllows(q, rt) {
		return g.reject(cat, violation(RuleDNSMinimal, "DNS query blocked by minimal policy: %s %s", q, rt))
	}
	// DNSFull imposes only the budget above. A DKIM selector allow-list would go here.

	g.dnsTotal++
	g.approve(cat)
	return nil
}

func (g *Guard) minimalAllows(name, recordType string) bool {
	switch {
	case name == g.domain && (recordType == "MX" || recordType == "TXT"):
		return true
	case name == "_dmarc."+g.domain && recordType == "TXT":
		return true
	}
	return false
}

func (g *Guard) reject(cat Category, v *Violation) *Violation {
	g.logger.Debug("network policy rejection", "category", cat, "rule", v.Rule, "detail", v.Detail)
	if g.observer != nil {
		g.observer.ObserveDecision(cat, false, v.Rule)
	}
	return v
}

func (g *Guard) approve(cat Category) {
	if g.observer != nil {
		g.observer.ObserveDecision(cat, true, "")
	}
}

// BudgetsSnapshot is the read-only view returned by Budgets.
type BudgetsSnapshot struct {
	Domain          string    `json:"domain" yaml:"domain"`
	Mode            Mode      `json:"mode" yaml:"mode"`
	DNSPolicy       DNSPolicy `json:"dns_policy" yaml:"dns_policy"`
	AllowTargetHTTP bool      `json:"allow_target_http" yaml:"allow_target_http"`
	Budgets         `yaml:",inline"`
}

// Budgets returns the run's configuration and derived flags. It never touches counters.
func (g *Guard) Budgets() BudgetsSnapshot {
	return BudgetsSnapshot{
		Domain:          g.domain,
		Mode:            g.mode,
		DNSPolicy:       g.dnsPolicy,
		AllowTargetHTTP: g.AllowTargetHTTP(),
		Budgets:         g.budgets,
	}
}

// Usage is a point-in-time copy of the guard's counters.
type Usage struct {
	TargetHTTPTotal   int            `json:"target_http_total"`
	TargetHTTPPerHost map[string]int `json:"target_http_per_host"`
	TargetDNSTotal    int            `json:"target_dns_total"`
	WindowCount       int            `json:"window_count"`
	WindowStart       time.Time      `json:"window_start"`
}

// Usage returns a copy of the current counters.
func (g *Guard) Usage() Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	perHost := make(map[string]int, len(g.httpPerHost))
	for h, n := range g.httpPerHost {
		perHost[h] = n
	}
	return Usage{
		TargetHTTPTotal:   g.httpTotal,
		TargetHTTPPerHost: perHost,
		TargetDNSTotal:    g.dnsTotal,
		WindowCount:       g.windowCount,
		WindowStart:       g.windowStart,
	}
}
