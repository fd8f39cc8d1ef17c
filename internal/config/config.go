// Package config loads posture's settings from flags, POSTURE_* environment variables and the
// YAML config file, in that order of precedence, and validates them before any run starts.
package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tbckr/posture/internal/appdir"
	"github.com/tbckr/posture/internal/apperr"
	"github.com/tbckr/posture/internal/cache"
	"github.com/tbckr/posture/internal/netpolicy"
)

// EnvPrefix prefixes every environment variable override, e.g. POSTURE_DNS_POLICY.
const EnvPrefix = "POSTURE"

// Config is the fully resolved and validated configuration.
type Config struct {
	ConfigFile string

	Verbose     bool
	Output      string
	Proxy       string
	UserAgent   string
	Concurrency int

	Mode                 netpolicy.Mode
	DNSPolicy            netpolicy.DNSPolicy
	Budgets              netpolicy.Budgets
	MaxRequestsPerMinute int
	// RateLimitJitter is the maximum extra pacing wait in percent of the interval.
	RateLimitJitter int

	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration

	Resolver   string
	Nameserver string

	OutDir      string
	LedgerStore string
	SQLitePath  string
	MetricsFile string
	MaxPages    int

	Company  string
	MaxUsers int

	Cache     string
	CachePath string
	CacheTTL  time.Duration

	// Deprecations lists warnings about deprecated values that were accepted.
	Deprecations []string

	values map[string]any
}

// DefaultConfigPath returns <UserConfigDir>/posture/config.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := appdir.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// RegisterFlags registers --config and one flag per setting on flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "config file (default is $XDG_CONFIG_HOME/posture/config.yaml)")
	for _, key := range ValidKeys() {
		spec := keys[key]
		name := flagName(key)
		switch spec.kind {
		case kindBool:
			flags.BoolP(name, spec.shorthand, spec.def.(bool), spec.usage)
		case kindInt:
			flags.IntP(name, spec.shorthand, spec.def.(int), spec.usage)
		case kindInt64:
			flags.Int64P(name, spec.shorthand, spec.def.(int64), spec.usage)
		case kindDuration:
			flags.DurationP(name, spec.shorthand, spec.def.(time.Duration), spec.usage)
		default:
			flags.StringP(name, spec.shorthand, spec.def.(string), spec.usage)
		}
	}
}

// Load resolves the configuration from flags, environment and the config file. The config
// file is created empty with 0600 permissions when it does not exist.
func Load(flags *pflag.FlagSet) (*Config, error) {
	cfgFile, _ := flags.GetString("config")
	if cfgFile == "" {
		var err error
		if cfgFile, err = DefaultConfigPath(); err != nil {
			return nil, err
		}
	}
	if err := appdir.EnsureFile(cfgFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(cfgFile)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, spec := range keys {
		v.SetDefault(key, spec.def)
		if f := flags.Lookup(flagName(key)); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding flag %s: %w", f.Name, err)
			}
		}
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		ConfigFile:           cfgFile,
		Verbose:              v.GetBool("verbose"),
		Output:               v.GetString("output"),
		Proxy:                v.GetString("proxy"),
		UserAgent:            v.GetString("user_agent"),
		Concurrency:          v.GetInt("concurrency"),
		MaxRequestsPerMinute: v.GetInt("max_requests_per_minute"),
		RateLimitJitter:      v.GetInt("rate_limit_jitter"),
		Budgets: netpolicy.Budgets{
			MaxTargetHTTPTotal:     v.GetInt("max_target_http_requests_total"),
			MaxTargetHTTPPerHost:   v.GetInt("max_target_http_per_host"),
			MaxTargetHTTPPerMinute: v.GetInt("max_target_http_per_minute"),
			MaxRedirects:           v.GetInt("max_redirects"),
			MaxResponseBytes:       v.GetInt64("max_bytes_per_response"),
			MaxTargetDNSQueries:    v.GetInt("max_target_dns_queries"),
		},
		Timeout:      v.GetDuration("timeout"),
		Retries:      v.GetInt("retries"),
		RetryBackoff: v.GetDuration("retry_backoff"),
		Resolver:     strings.ToLower(v.GetString("resolver")),
		Nameserver:   v.GetString("nameserver"),
		OutDir:       v.GetString("out_dir"),
		LedgerStore:  strings.ToLower(v.GetString("ledger_store")),
		SQLitePath:   v.GetString("sqlite_path"),
		MetricsFile:  v.GetString("metrics_file"),
		MaxPages:     v.GetInt("max_pages"),
		Company:      strings.TrimSpace(v.GetString("company")),
		MaxUsers:     v.GetInt("max_users"),
		Cache:        strings.ToLower(v.GetString("cache")),
		CachePath:    v.GetString("cache_path"),
		CacheTTL:     v.GetDuration("cache_ttl"),
		values:       make(map[string]any, len(keys)),
	}
	for key := range keys {
		cfg.values[key] = v.Get(key)
	}
	if err := cfg.resolve(v.GetString("mode"), v.GetString("dns_policy")); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve parses enumerations and rejects invalid values so misconfiguration fails before a run.
func (c *Config) resolve(mode, dnsPolicy string) error {
	m, deprecated, err := ParseMode(mode)
	if err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	if deprecated {
		c.Deprecations = append(c.Deprecations,
			fmt.Sprintf("mode %q is deprecated and treated as %q", mode, m))
	}
	c.Mode = m

	if c.DNSPolicy, err = netpolicy.ParseDNSPolicy(dnsPolicy); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}

	for key, got := range map[string]string{"output": c.Output, "resolver": c.Resolver, "ledger_store": c.LedgerStore, "cache": c.Cache} {
		if _, err := ParseValue(key, got); err != nil {
			return fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
		}
	}
	for key, n := range map[string]int64{
		"concurrency":                    int64(c.Concurrency),
		"max_requests_per_minute":        int64(c.MaxRequestsPerMinute),
		"max_target_http_requests_total": int64(c.Budgets.MaxTargetHTTPTotal),
		"max_target_http_per_host":       int64(c.Budgets.MaxTargetHTTPPerHost),
		"max_target_http_per_minute":     int64(c.Budgets.MaxTargetHTTPPerMinute),
		"max_redirects":                  int64(c.Budgets.MaxRedirects),
		"max_bytes_per_response":         c.Budgets.MaxResponseBytes,
		"max_target_dns_queries":         int64(c.Budgets.MaxTargetDNSQueries),
		"retries":                        int64(c.Retries),
		"max_pages":                      int64(c.MaxPages),
		"rate_limit_jitter":              int64(c.RateLimitJitter),
		"max_users":                      int64(c.MaxUsers),
	} {
		spec := keys[key]
		if n < spec.min {
			return fmt.Errorf("%w: --%s must be at least %d, got %d", apperr.ErrInvalidInput, flagName(key), spec.min, n)
		}
		if spec.max > 0 && n > spec.max {
			return fmt.Errorf("%w: --%s must be at most %d, got %d", apperr.ErrInvalidInput, flagName(key), spec.max, n)
		}
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: --timeout must be positive, got %s", apperr.ErrInvalidInput, c.Timeout)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("%w: --retry-backoff must not be negative", apperr.ErrInvalidInput)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("%w: --cache-ttl must not be negative", apperr.ErrInvalidInput)
	}

	if c.LedgerStore == "sqlite" && c.SQLitePath == "" {
		path, err := DefaultSQLitePath()
		if err != nil {
			return err
		}
		c.SQLitePath = path
	}
	if c.Cache != cache.KindNone && c.CachePath == "" {
		path, err := cache.DefaultPath(c.Cache)
		if err != nil {
			return err
		}
		c.CachePath = path
	}
	return nil
}

// DefaultSQLitePath returns the ledger store under appdir.DataDir.
func DefaultSQLitePath() (string, error) {
	dir, err := appdir.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ledger.db"), nil
}

// Value returns the effective value of key as a string, or "" for unknown keys.
func (c *Config) Value(key string) string {
	v, ok := c.values[NormalizeKey(key)]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Effective returns every key with its effective value, for display.
func (c *Config) Effective() map[string]string {
	out := make(map[string]string, len(c.values))
	for k := range c.values {
		out[k] = c.Value(k)
	}
	return out
}

// EffectiveRows returns Effective as key-sorted pairs.
func (c *Config) EffectiveRows() [][2]string {
	names := make([]string, 0, len(c.values))
	for k := range c.values {
		names = append(names, k)
	}
	sort.Strings(names)
	rows := make([][2]string, len(names))
	for i, k := range names {
		rows[i] = [2]string{k, c.Value(k)}
	}
	return rows
}

// GuardConfig returns the network policy configuration for domain.
func (c *Config) GuardConfig(domain string) netpolicy.Config {
	return netpolicy.Config{
		Domain:    domain,
		Mode:      c.Mode,
		DNSPolicy: c.DNSPolicy,
		Budgets:   c.Budgets,
	}
}
