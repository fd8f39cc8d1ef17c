package recon

import (
	"regexp"
	"strings"
)

// maxSPFIncludes approximates the RFC 7208 DNS lookup limit.
const maxSPFIncludes = 10

var spfRe = regexp.MustCompile(`(?i)v=spf1\s+(.*)`)

// SPF is the parsed form of the first SPF TXT record.
type SPF struct {
	Raw           string   `json:"raw,omitempty"`
	Mechanisms    []string `json:"mechanisms"`
	All           string   `json:"all,omitempty"`
	Redirect      string   `json:"redirect,omitempty"`
	Exp           string   `json:"exp,omitempty"`
	IncludeCount  int      `json:"include_count"`
	OverlyBroadIP bool     `json:"has_overly_broad_ip"`
	Warnings      []string `json:"warnings"`
}

// Present reports whether an SPF record was found.
func (s SPF) Present() bool { return s.Raw != "" }

// ParseSPF extracts the first "v=spf1" record from txts.
func ParseSPF(txts []string) SPF {
	spf := SPF{Mechanisms: []string{}, Warnings: []string{}}
	for _, rec := range txts {
		m := spfRe.FindStringSubmatch(rec)
		if m == nil {
			continue
		}
		spf.Raw = rec
		for _, part := range strings.Fields(m[1]) {
			lower := strings.ToLower(part)
			switch {
			case strings.HasPrefix(lower, "redirect="):
				spf.Redirect = part[len("redirect="):]
				continue
			case strings.HasPrefix(lower, "exp="):
				spf.Exp = part[len("exp="):]
				continue
			case strings.HasPrefix(lower, "include:"):
				spf.IncludeCount++
			}
			if !strings.HasSuffix(lower, "all") {
				spf.Mechanisms = append(spf.Mechanisms, part)
				continue
			}
			spf.All = part
			switch {
			case strings.HasPrefix(part, "~"):
				spf.Warnings = append(spf.Warnings, "SPF uses softfail (~all). Consider -all for stricter policy.")
			case strings.HasPrefix(part, "+"), strings.HasPrefix(part, "?"), lower == "all":
				spf.Warnings = append(spf.Warnings, "SPF allows all. Consider restricting with -all.")
			}
		}
		if spf.IncludeCount > maxSPFIncludes {
			spf.Warnings = append(spf.Warnings, "SPF contains many includes; review for overly broad scope.")
		}
		if strings.Contains(rec, "ip4:0.0.0.0/0") || strings.Contains(rec, "ip6::/0") {
			spf.OverlyBroadIP = true
			spf.Warnings = append(spf.Warnings, "SPF contains overly broad IP ranges (0.0.0.0/0 or ::/0).")
		}
		break
	}
	if !spf.Present() {
		spf.Warnings = append(spf.Warnings, "No SPF record found.")
	}
	return spf
}
