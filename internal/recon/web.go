package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tbckr/posture/internal/netpolicy"
	"github.com/tbckr/posture/internal/output"
	"github.com/tbckr/posture/internal/worker"
)

// CommonPortals are the labels always considered as portal candidates.
var CommonPortals = []string{"www", "login", "portal", "sso", "id", "account"}

// SecurityHeaderNames are the response headers checked on each sampled page.
var SecurityHeaderNames = []string{
	"strict-transport-security",
	"content-security-policy",
	"x-frame-options",
	"x-content-type-options",
}

// maxCandidateDots keeps deeply nested names out of the candidate list.
const maxCandidateDots = 3

// HeaderSample is one HEAD response with credential headers redacted.
type HeaderSample struct {
	URL     string            `json:"url"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
}

// SecurityHeaders lists which of SecurityHeaderNames a sampled page set.
type SecurityHeaders struct {
	URL     string   `json:"url"`
	Present []string `json:"present"`
	Missing []string `json:"missing"`
}

// WebSignalsResult is the outcome of the web signals module.
type WebSignalsResult struct {
	PortalCandidates []string          `json:"portal_candidates"`
	TechnologyHints  []string          `json:"technology_hints"`
	HeaderSamples    []HeaderSample    `json:"headers_samples"`
	SecurityHeaders  []SecurityHeaders `json:"security_headers"`
	Blocked          []string          `json:"blocked,omitempty"`
	Errors           []string          `json:"errors,omitempty"`
}

// PortalCandidates returns the common portal names under domain followed by subdomains with
// at most three dots, deduplicated and capped at maxPages.
func PortalCandidates(domain string, subdomains []string, maxPages int) []string {
	out := []string{}
	seen := make(map[string]struct{})
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, p := range CommonPortals {
		add(p + "." + domain)
	}
	for _, s := range subdomains {
		if strings.Count(s, ".") <= maxCandidateDots {
			add(s)
		}
	}
	if maxPages >= 0 && len(out) > maxPages {
		out = out[:maxPages]
	}
	return out
}

// TechnologyHints infers coarse hints from subdomain naming.
func TechnologyHints(subdomains []string) []string {
	set := make(map[string]struct{})
	for _, name := range subdomains {
		if strings.HasPrefix(name, "login.") || strings.HasPrefix(name, "sso.") {
			set["SSO or identity portal detected via subdomain naming."] = struct{}{}
		}
		if strings.Contains(name, "mail") {
			set["Mail-related subdomain detected."] = struct{}{}
		}
	}
	return output.SortedKeys(set)
}

// CheckSecurityHeaders reports which security headers a sample carries.
func CheckSecurityHeaders(s HeaderSample) SecurityHeaders {
	out := SecurityHeaders{URL: s.URL, Present: []string{}, Missing: []string{}}
	for _, h := range SecurityHeaderNames {
		if _, ok := s.Headers[h]; ok {
			out.Present = append(out.Present, h)
		} else {
			out.Missing = append(out.Missing, h)
		}
	}
	return out
}

// WebSignals builds portal candidates and, in low-noise mode only, issues one HEAD per
// candidate through the guarded client on pool. Rejections by the guard are expected once
// budgets run out; they are listed in Blocked and remain in the ledger.
func WebSignals(ctx context.Context, http HTTPClient, domain string, subdomains []string,
	mode netpolicy.Mode, maxPages int, pool *worker.Pool, logger *slog.Logger) *WebSignalsResult {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	res := &WebSignalsResult{
		PortalCandidates: PortalCandidates(domain, subdomains, maxPages),
		TechnologyHints:  TechnologyHints(subdomains),
		HeaderSamples:    []HeaderSample{},
		SecurityHeaders:  []SecurityHeaders{},
	}
	if mode != netpolicy.ModeLowNoise {
		return res
	}

	results := worker.Map(ctx, pool, res.PortalCandidates, func(ctx context.Context, host string) (HeaderSample, error) {
		u := "https://" + host
		resp, err := http.Head(ctx, u, nil)
		if err != nil {
			return HeaderSample{}, err
		}
		return HeaderSample{URL: u, Status: resp.StatusCode, Headers: output.RedactHeaders(resp.Header)}, nil
	})

	servers := make(map[string]struct{})
	for _, r := range results {
		var v *netpolicy.Violation
		switch {
		case errors.As(r.Error, &v):
			res.Blocked = append(res.Blocked, fmt.Sprintf("%s: %s", r.Input, v.Rule))
			logger.Debug("web signal blocked", "host", r.Input, "rule", v.Rule)
		case r.Error != nil:
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", r.Input, r.Error))
			logger.Debug("web signal failed", "host", r.Input, "error", r.Error)
		default:
			res.HeaderSamples = append(res.HeaderSamples, r.Value)
			res.SecurityHeaders = append(res.SecurityHeaders, CheckSecurityHeaders(r.Value))
			if s := r.Value.Headers["server"]; s != "" {
				servers[s] = struct{}{}
			}
		}
	}
	for _, s := range output.SortedKeys(servers) {
		res.TechnologyHints = append(res.TechnologyHints, "Server banner disclosed: "+s)
	}
	sort.Strings(res.TechnologyHints)
	return res
}
