package recon

import (
	"context"

	"github.com/tbckr/posture/internal/detect"
	"github.com/tbckr/posture/internal/netpolicy"
)

// DKIMSelectors is the safe list probed in low-noise mode under the full DNS policy.
var DKIMSelectors = []string{"default", "selector1", "selector2", "google", "k1", "k2"}

// recordTypes are the apex records reported by the mail profile, in report order.
var recordTypes = []string{"A", "AAAA", "NS", "MX", "TXT"}

// DKIM status values.
const (
	DKIMUnknown = "unknown"
	DKIMSkipped = "skipped"
	DKIMChecked = "checked"
)

// DKIMSelector is a selector that returned at least one TXT record.
type DKIMSelector struct {
	Selector string   `json:"selector"`
	Records  []string `json:"records"`
}

// DKIM describes whether and how selectors were probed.
type DKIM struct {
	Status           string         `json:"status"`
	Mode             string         `json:"mode"`
	Note             string         `json:"note"`
	SelectorsChecked []string       `json:"selectors_checked"`
	Found            []DKIMSelector `json:"found"`
}

// MailProfileResult is the DNS mail posture of a domain.
type MailProfileResult struct {
	Records         map[string][]string `json:"records"`
	DMARCRecords    []string            `json:"dmarc_records"`
	SPF             SPF                 `json:"spf"`
	DMARC           DMARC               `json:"dmarc"`
	DKIM            DKIM                `json:"dkim"`
	Providers       []detect.Detection  `json:"providers"`
	RiskFlags       []string            `json:"risk_flags"`
	Recommendations []string            `json:"recommendations"`
}

// MailProfile collects MX, TXT and _dmarc TXT records and derives SPF, DMARC and DKIM
// findings. Apex A, AAAA and NS are queried only under the full DNS policy, and nothing is
// queried under the none policy. det may be nil to skip provider detection.
func MailProfile(ctx context.Context, dns RecordLookup, det *detect.Detector, domain string,
	mode netpolicy.Mode, policy netpolicy.DNSPolicy) *MailProfileResult {
	res := &MailProfileResult{
		Records:         make(map[string][]string, len(recordTypes)),
		DMARCRecords:    []string{},
		Providers:       []detect.Detection{},
		RiskFlags:       []string{},
		Recommendations: []string{},
	}
	for _, rt := range recordTypes {
		res.Records[rt] = []string{}
	}

	if policy == netpolicy.DNSNone {
		res.SPF = ParseSPF(nil)
		res.DMARC = ParseDMARC(nil)
		res.DKIM = DKIM{
			Status:           DKIMSkipped,
			Mode:             mode.String(),
			Note:             "DNS policy none does not permit selector queries.",
			SelectorsChecked: []string{},
			Found:            []DKIMSelector{},
		}
		res.RiskFlags = append(res.RiskFlags, "DNS lookups skipped because DNS policy is none; mail posture is unknown.")
		return res
	}

	if policy == netpolicy.DNSFull {
		for _, rt := range []string{"A", "AAAA", "NS"} {
			res.Records[rt] = dns.Records(ctx, domain, rt)
		}
	}
	res.Records["MX"] = dns.Records(ctx, domain, "MX")
	res.Records["TXT"] = dns.Records(ctx, domain, "TXT")
	res.DMARCRecords = dns.Records(ctx, "_dmarc."+domain, "TXT")

	res.SPF = ParseSPF(res.Records["TXT"])
	res.DMARC = ParseDMARC(res.DMARCRecords)
	res.DKIM = CheckDKIM(ctx, dns, domain, mode, policy)

	if det != nil {
		mx := make([]string, 0, len(res.Records["MX"]))
		for _, v := range res.Records["MX"] {
			mx = append(mx, detect.MXHost(v))
		}
		res.Providers = append(res.Providers, det.EmailProvider(mx)...)
		res.Providers = append(res.Providers, det.TXTRecord(res.Records["TXT"])...)
		res.Providers = append(res.Providers, det.DNSHost(res.Records["NS"])...)
	}

	res.RiskFlags = append(res.RiskFlags, res.SPF.Warnings...)
	res.RiskFlags = append(res.RiskFlags, res.DMARC.Warnings...)
	if len(res.Records["MX"]) == 0 {
		res.RiskFlags = append(res.RiskFlags, "No MX records found.")
	}
	res.Recommendations = recommendations(res)
	return res
}

func recommendations(res *MailProfileResult) []string {
	out := []string{}
	if !res.SPF.Present() {
		out = append(out, "Publish an SPF record scoped to authorized senders.")
	}
	if !res.DMARC.Present() {
		out = append(out, "Publish a DMARC record with at least quarantine policy.")
	}
	if res.DMARC.Policy == "none" {
		out = append(out, "Move DMARC policy to quarantine or reject once monitoring is stable.")
	}
	if res.DKIM.Status == DKIMChecked && len(res.DKIM.Found) == 0 {
		out = append(out, "Confirm DKIM signing is enabled for outbound mail.")
	}
	return out
}

// CheckDKIM probes DKIMSelectors only in low-noise mode under the full DNS policy.
func CheckDKIM(ctx context.Context, dns RecordLookup, domain string, mode netpolicy.Mode, policy netpolicy.DNSPolicy) DKIM {
	d := DKIM{Mode: mode.String(), SelectorsChecked: []string{}, Found: []DKIMSelector{}}
	switch {
	case mode != netpolicy.ModeLowNoise:
		d.Status = DKIMUnknown
		d.Note = "Passive mode does not query selectors."
		return d
	case policy != netpolicy.DNSFull:
		d.Status = DKIMSkipped
		d.Note = "DNS policy " + policy.String() + " does not permit selector queries."
		return d
	}

	for _, sel := range DKIMSelectors {
		if ctx.Err() != nil {
			break
		}
		d.SelectorsChecked = append(d.SelectorsChecked, sel)
		if recs := dns.Records(ctx, sel+"._domainkey."+domain, "TXT"); len(recs) > 0 {
			d.Found = append(d.Found, DKIMSelector{Selector: sel, Records: recs})
		}
	}
	d.Status = DKIMChecked
	d.Note = "Low-noise mode checked common safe-list selectors."
	return d
}
