package netpolicy

import (
	"fmt"
	"strings"
)

// Mode is the operating mode of a run. It governs whether any direct contact with the
// target is permitted.
type Mode int

const (
	// ModePassive forbids every HTTP request to the target domain.
	ModePassive Mode = iota
	// ModeLowNoise permits a small, capped number of HEAD/GET requests to the target.
	ModeLowNoise
)

// ParseMode converts a case-insensitive string ("passive", "low-noise") to a Mode.
// Deprecated aliases are resolved by the config layer, not here.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "passive":
		return ModePassive, nil
	case "low-noise":
		return ModeLowNoise, nil
	default:
		return ModePassive, fmt.Errorf("unknown mode %q: must be one of passive, low-noise", s)
	}
}

// String returns the canonical lowercase name of the mode.
func (m Mode) String() string {
	switch m {
	case ModePassive:
		return "passive"
	case ModeLowNoise:
		return "low-noise"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool {
	return m == ModePassive || m == ModeLowNoise
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// DNSPolicy governs which DNS queries against the target are permitted,
// independently of the operating mode.
type DNSPolicy int

const (
	// DNSNone rejects every DNS query.
	DNSNone DNSPolicy = iota
	// DNSMinimal permits only the apex MX and TXT records and the _dmarc TXT record.
	DNSMinimal
	// DNSFull permits any query within the DNS budget.
	DNSFull
)

// ParseDNSPolicy converts a case-insensitive string ("none", "minimal", "full") to a DNSPolicy.
func ParseDNSPolicy(s string) (DNSPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return DNSNone, nil
	case "minimal":
		return DNSMinimal, nil
	case "full":
		return DNSFull, nil
	default:
		return DNSNone, fmt.Errorf("unknown DNS policy %q: must be one of none, minimal, full", s)
	}
}

// String returns the canonical lowercase name of the policy.
func (p DNSPolicy) String() string {
	switch p {
	case DNSNone:
		return "none"
	case DNSMinimal:
		return "minimal"
	case DNSFull:
		return "full"
	default:
		return fmt.Sprintf("dns_policy(%d)", int(p))
	}
}

// Valid reports whether p is one of the declared policies.
func (p DNSPolicy) Valid() bool {
	return p >= DNSNone && p <= DNSFull
}

// MarshalText implements encoding.TextMarshaler.
func (p DNSPolicy) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid DNS policy %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *DNSPolicy) UnmarshalText(b []byte) error {
	parsed, err := ParseDNSPolicy(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Category classifies an outbound operation for budgeting and the ledger.
type Category string

// Category values recorded in the ledger.
const (
	CategoryTargetHTTP     Category = "target_http"
	CategoryThirdPartyHTTP Category = "third_party_http"
	CategoryTargetDNS      Category = "target_dns"
)

// Categories lists every category in report order.
var Categories = []Category{CategoryThirdPartyHTTP, CategoryTargetDNS, CategoryTargetHTTP}
