// Package detect identifies hosted mail and DNS providers from the records a run collects.
package detect

import "strings"

// ServiceType identifies the category of a detected provider.
type ServiceType string

// ServiceType constants for each detection category.
const (
	TypeEmail        ServiceType = "Email"
	TypeDNS          ServiceType = "DNS"
	TypeVerification ServiceType = "Verification"
)

// Detection holds the result of matching a record against known provider patterns.
type Detection struct {
	Type     ServiceType `json:"type"`
	Provider string      `json:"provider"`
	Evidence string      `json:"evidence"`
	Source   string      `json:"source"`
}

// Detector matches records against a loaded pattern set.
type Detector struct {
	patterns Patterns
}

// NewDetector returns a Detector over p.
func NewDetector(p Patterns) *Detector {
	return &Detector{patterns: p}
}

// EmailProvider reports the mail providers behind the given MX exchange hosts.
func (d *Detector) EmailProvider(mxHosts []string) []Detection {
	return detectAll(d.patterns.Email, TypeEmail, "mx", mxHosts, strings.TrimSpace)
}

// DNSHost reports the DNS hosting providers behind the given NS hosts.
func (d *Detector) DNSHost(nsHosts []string) []Detection {
	return detectAll(d.patterns.DNS, TypeDNS, "ns", nsHosts, strings.TrimSpace)
}

// TXTRecord reports providers referenced by TXT values (SPF includes, site verification
// tokens). Surrounding quotes are ignored.
func (d *Detector) TXTRecord(txts []string) []Detection {
	return detectAll(d.patterns.TXT, TypeVerification, "txt", txts, func(s string) string {
		return strings.Trim(strings.TrimSpace(s), `"`)
	})
}

// detectAll reports every rule matching each value once per (provider, evidence) pair.
// Rules without a type take fallback.
func detectAll(rules []Rule, fallback ServiceType, source string, values []string, evidence func(string) string) []Detection {
	var out []Detection
	seen := make(map[string]struct{})
	for _, raw := range values {
		ev := evidence(raw)
		if ev == "" {
			continue
		}
		for _, r := range rules {
			if !r.matches(ev) {
				continue
			}
			key := r.Provider + "\x00" + ev
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			typ := r.Type
			if typ == "" {
				typ = fallback
			}
			out = append(out, Detection{Type: typ, Provider: r.Provider, Evidence: ev, Source: source})
		}
	}
	return out
}

// matchSuffix returns true when host == suffix or host ends with "."+suffix.
func matchSuffix(host, suffix string) bool {
	h := strings.TrimSuffix(strings.ToLower(host), ".")
	suffix = strings.TrimPrefix(strings.ToLower(suffix), ".")
	return h == suffix || strings.HasSuffix(h, "."+suffix)
}

// MXHost extracts the exchange host from a rendered MX value ("10 mx.example.com.").
func MXHost(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(fields[len(fields)-1]), ".")
}
