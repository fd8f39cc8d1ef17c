// Package validate provides shared input validation helpers.
package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tbckr/posture/internal/apperr"
)

// domainRegexp validates RFC-compliant hostnames.
var domainRegexp = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

// IsDomain reports whether s is a valid RFC-compliant hostname.
func IsDomain(s string) bool {
	return len(s) <= 253 && domainRegexp.MatchString(s)
}

// NormalizeDomain lowercases s, trims surrounding whitespace and a trailing dot.
func NormalizeDomain(s string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
}

// Domain normalizes s and rejects it unless it is a valid hostname.
func Domain(s string) (string, error) {
	d := NormalizeDomain(s)
	if !IsDomain(d) {
		return "", fmt.Errorf("%w: must be a valid domain name: %q", apperr.ErrInvalidInput, s)
	}
	return d, nil
}

// Subdomains is the outcome of cleaning raw certificate names.
type Subdomains struct {
	Names            []string
	RemovedWildcards int
	Invalid          int
	Seen             int
}

// CleanSubdomains normalizes names, strips wildcard labels, drops invalid entries and names
// outside domain, and returns the sorted unique remainder. The apex itself is kept.
func CleanSubdomains(names []string, domain string) Subdomains {
	domain = NormalizeDomain(domain)
	out := Subdomains{Names: []string{}}
	seen := make(map[string]struct{})
	for _, raw := range names {
		name := NormalizeDomain(raw)
		if name == "" {
			continue
		}
		out.Seen++
		if strings.HasPrefix(name, "*.") {
			out.RemovedWildcards++
			name = strings.TrimLeft(name, "*.")
		}
		if strings.Contains(name, "..") || !IsDomain(name) {
			out.Invalid++
			continue
		}
		if name != domain && !strings.HasSuffix(name, "."+domain) {
			out.Invalid++
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out.Names = append(out.Names, name)
	}
	sort.Strings(out.Names)
	return out
}
