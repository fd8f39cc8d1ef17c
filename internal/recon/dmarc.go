package recon

import (
	"regexp"
	"strconv"
	"strings"
)

var dmarcRe = regexp.MustCompile(`(?i)v=DMARC1;\s*(.*)`)

// DMARC is the parsed form of the first DMARC TXT record.
type DMARC struct {
	Raw         string            `json:"raw,omitempty"`
	Policy      string            `json:"policy,omitempty"`
	Pct         string            `json:"pct,omitempty"`
	RUA         string            `json:"rua,omitempty"`
	RUF         string            `json:"ruf,omitempty"`
	RUAParsed   []string          `json:"rua_parsed"`
	RUFParsed   []string          `json:"ruf_parsed"`
	Alignment   map[string]string `json:"alignment"`
	Valid       bool              `json:"valid"`
	InvalidTags []string          `json:"invalid_tags"`
	Warnings    []string          `json:"warnings"`
}

// Present reports whether a DMARC record was found.
func (d DMARC) Present() bool { return d.Raw != "" }

// Enforcing reports whether the policy is quarantine or reject.
func (d DMARC) Enforcing() bool { return d.Policy == "quarantine" || d.Policy == "reject" }

// ParseDMARC extracts the first "v=DMARC1" record from txts.
func ParseDMARC(txts []string) DMARC {
	d := DMARC{
		RUAParsed:   []string{},
		RUFParsed:   []string{},
		Alignment:   map[string]string{},
		Valid:       true,
		InvalidTags: []string{},
		Warnings:    []string{},
	}
	for _, rec := range txts {
		m := dmarcRe.FindStringSubmatch(rec)
		if m == nil {
			continue
		}
		d.Raw = rec
		for _, tag := range strings.Split(m[1], ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(tag), "=")
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)
			switch strings.ToLower(strings.TrimSpace(key)) {
			case "p":
				d.Policy = strings.ToLower(value)
			case "pct":
				d.Pct = value
			case "rua":
				d.RUA = value
				d.RUAParsed = parseMailto(value)
			case "ruf":
				d.RUF = value
				d.RUFParsed = parseMailto(value)
			case "adkim":
				d.Alignment["adkim"] = value
			case "aspf":
				d.Alignment["aspf"] = value
			}
		}
		switch d.Policy {
		case "", "none", "quarantine", "reject":
		default:
			d.Valid = false
			d.InvalidTags = append(d.InvalidTags, "p")
		}
		if d.Pct != "" {
			if n, err := strconv.Atoi(d.Pct); err != nil || n < 0 || n > 100 {
				d.Valid = false
				d.InvalidTags = append(d.InvalidTags, "pct")
			}
		}
		if d.Policy == "" || d.Policy == "none" {
			d.Warnings = append(d.Warnings, "DMARC policy is none; consider quarantine or reject.")
		}
		if d.Pct != "" && d.Pct != "100" {
			d.Warnings = append(d.Warnings, "DMARC enforcement is not 100% (pct != 100).")
		}
		if d.Enforcing() && d.RUA == "" {
			d.Warnings = append(d.Warnings, "DMARC policy is enforce but rua reporting is missing.")
		}
		break
	}
	if !d.Present() {
		d.Warnings = append(d.Warnings, "No DMARC record found.")
	}
	return d
}

func parseMailto(value string) []string {
	uris := []string{}
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if strings.HasPrefix(strings.ToLower(item), "mailto:") {
			uris = append(uris, item)
		}
	}
	return uris
}
