package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownKey is returned for a key that is not a recognised config setting.
var ErrUnknownKey = errors.New("unknown config key")

type kind int

const (
	kindString kind = iota
	kindBool
	kindInt
	kindInt64
	kindDuration
)

// keySpec describes one setting: its type, default, flag help and allowed values.
type keySpec struct {
	kind      kind
	def       any
	usage     string
	shorthand string
	enum      []string
	min       int64
	max       int64 // zero means unbounded
}

// keys is the single table of settings. Flag names are the keys with "_" replaced by "-".
var keys = map[string]keySpec{
	"verbose":     {kind: kindBool, def: false, shorthand: "v", usage: "enable debug logging"},
	"output":      {kind: kindString, def: "text", shorthand: "o", enum: []string{"text", "json"}, usage: "output format: text or json"},
	"proxy":       {kind: kindString, def: "", usage: "proxy URL for HTTP and DNS (http://, https://, socks5://)"},
	"user_agent":  {kind: kindString, def: "", usage: "override the User-Agent header"},
	"concurrency": {kind: kindInt, def: 1, shorthand: "c", min: 1, usage: "parallel workers inside a run"},

	"mode":                    {kind: kindString, def: "passive", enum: []string{"passive", "low-noise"}, usage: "operating mode: passive or low-noise"},
	"dns_policy":              {kind: kindString, def: "minimal", enum: []string{"none", "minimal", "full"}, usage: "DNS query policy: none, minimal or full"},
	"max_requests_per_minute": {kind: kindInt, def: 60, min: 1, usage: "global pacing for all outbound HTTP"},
	"rate_limit_jitter":       {kind: kindInt, def: 0, max: 99, usage: "lengthen each pacing wait by a random 0-N percent"},

	"max_target_http_requests_total": {kind: kindInt, def: 12, usage: "target HTTP requests per run"},
	"max_target_http_per_host":       {kind: kindInt, def: 3, usage: "target HTTP requests per host"},
	"max_target_http_per_minute":     {kind: kindInt, def: 12, usage: "target HTTP requests per minute"},
	"max_redirects":                  {kind: kindInt, def: 0, usage: "redirect ceiling for target HTTP (must stay 0)"},
	"max_bytes_per_response":         {kind: kindInt64, def: int64(262_144), usage: "abort responses larger than this many bytes"},
	"max_target_dns_queries":         {kind: kindInt, def: 25, usage: "DNS queries against the target per run"},

	"timeout":       {kind: kindDuration, def: 8 * time.Second, usage: "timeout of a single HTTP attempt"},
	"retries":       {kind: kindInt, def: 2, usage: "extra attempts after a transport failure"},
	"retry_backoff": {kind: kindDuration, def: 200 * time.Millisecond, usage: "base of the linear retry backoff"},

	"resolver":   {kind: kindString, def: "system", enum: []string{"system", "wire", "doh"}, usage: "DNS transport: system, wire or doh"},
	"nameserver": {kind: kindString, def: "", usage: "nameserver host:port (wire) or endpoint URL (doh)"},

	"out_dir":      {kind: kindString, def: "output", usage: "directory receiving per-run artifacts"},
	"ledger_store": {kind: kindString, def: "json", enum: []string{"json", "sqlite", "none"}, usage: "where the ledger is persisted: json, sqlite or none"},
	"sqlite_path":  {kind: kindString, def: "", usage: "SQLite ledger database (default in the user cache dir)"},
	"metrics_file": {kind: kindString, def: "", usage: "write Prometheus metrics to this file after each run"},
	"max_pages":    {kind: kindInt, def: 10, usage: "portal and document candidates probed per module"},

	"company":    {kind: kindString, def: "", usage: "organisation name added to passive user searches"},
	"max_users":  {kind: kindInt, def: 10, min: 1, usage: "accounts kept per user search and in the result"},
	"cache":      {kind: kindString, def: "none", enum: []string{"none", "sqlite", "files"}, usage: "third-party response cache: none, sqlite or files"},
	"cache_path": {kind: kindString, def: "", usage: "cache database or directory (default in the user data dir)"},
	"cache_ttl":  {kind: kindDuration, def: 24 * time.Hour, usage: "age after which cached responses are refetched (0 keeps them)"},
}

// flagName returns the flag spelling of key.
func flagName(key string) string { return strings.ReplaceAll(key, "_", "-") }

// NormalizeKey converts hyphenated flag names to their key equivalents (e.g. "dns-policy" → "dns_policy").
func NormalizeKey(key string) string { return strings.ReplaceAll(strings.TrimSpace(key), "-", "_") }

// ValidKeys returns all config keys, sorted.
func ValidKeys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ValidateKey returns ErrUnknownKey unless key (underscore or hyphen form) is a setting.
func ValidateKey(key string) error {
	if _, ok := keys[NormalizeKey(key)]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return nil
}

// KeyCompletions returns the allowed values of key, or nil for free-form settings.
func KeyCompletions(key string) []string {
	spec, ok := keys[NormalizeKey(key)]
	if !ok {
		return nil
	}
	if spec.kind == kindBool {
		return []string{"true", "false"}
	}
	return spec.enum
}

// ParseValue validates value for key and returns it typed for writing to the config file.
func ParseValue(key, value string) (any, error) {
	key = NormalizeKey(key)
	spec, ok := keys[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	switch spec.kind {
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q for %s: must be true or false", value, key)
		}
		return b, nil
	case kindInt, kindInt64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q for %s: must be an integer", value, key)
		}
		if n < spec.min {
			return nil, fmt.Errorf("invalid value %q for %s: must be at least %d", value, key, spec.min)
		}
		if spec.max > 0 && n > spec.max {
			return nil, fmt.Errorf("invalid value %q for %s: must be at most %d", value, key, spec.max)
		}
		if spec.kind == kindInt {
			return int(n), nil
		}
		return n, nil
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid value %q for %s: must be a non-negative duration like 8s", value, key)
		}
		return d.String(), nil
	default:
		if len(spec.enum) > 0 && !slices.Contains(spec.enum, value) {
			if key == "mode" && isModeAlias(value) {
				return value, nil
			}
			return nil, fmt.Errorf("invalid value %q for %s: must be one of %s", value, key, strings.Join(spec.enum, ", "))
		}
		return value, nil
	}
}
