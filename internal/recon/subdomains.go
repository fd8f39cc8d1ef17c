package recon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/tbckr/posture/internal/apperr"
	"github.com/tbckr/posture/internal/validate"
)

// maxSourceErrorBody bounds how much of an error response is quoted in a warning.
const maxSourceErrorBody = 200

// Source is one passive certificate transparency or passive DNS provider.
type Source struct {
	Name  string
	URL   func(domain string) string
	Parse func(body []byte) ([]string, error)
}

// DefaultSources are queried in order by Subdomains.
var DefaultSources = []Source{
	{Name: "crt.sh", URL: crtshURL, Parse: parseCrtsh},
	{Name: "certspotter", URL: certspotterURL, Parse: parseCertspotter},
	{Name: "bufferover", URL: bufferoverURL, Parse: parseBufferover},
}

func crtshURL(domain string) string {
	return "https://crt.sh/?q=%25." + url.QueryEscape(domain) + "&output=json"
}

func certspotterURL(domain string) string {
	return "https://api.certspotter.com/v1/issuances?domain=" + url.QueryEscape(domain) +
		"&include_subdomains=true&expand=dns_names"
}

func bufferoverURL(domain string) string {
	return "https://dns.bufferover.run/dns?q=." + url.QueryEscape(domain)
}

func parseCrtsh(body []byte) ([]string, error) {
	var rows []struct {
		CommonName string `json:"common_name"`
		NameValue  string `json:"name_value"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}
	var names []string
	for _, r := range rows {
		names = append(names, strings.Split(r.NameValue, "\n")...)
		if r.CommonName != "" {
			names = append(names, r.CommonName)
		}
	}
	return names, nil
}

func parseCertspotter(body []byte) ([]string, error) {
	var rows []struct {
		DNSNames []string `json:"dns_names"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}
	var names []string
	for _, r := range rows {
		names = append(names, r.DNSNames...)
	}
	return names, nil
}

// parseBufferover reads "ip,name" pairs from the FDNS_A and RDNS arrays.
func parseBufferover(body []byte) ([]string, error) {
	var doc struct {
		FDNSA []string `json:"FDNS_A"`
		RDNS  []string `json:"RDNS"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	var names []string
	for _, pair := range append(doc.FDNSA, doc.RDNS...) {
		if i := strings.LastIndex(pair, ","); i >= 0 {
			names = append(names, pair[i+1:])
		}
	}
	return names, nil
}

// SourceRef attributes results to a source URL.
type SourceRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// SubdomainsResult is the merged outcome of every source.
type SubdomainsResult struct {
	Subdomains       []string       `json:"subdomains"`
	Sources          []SourceRef    `json:"sources"`
	PerSourceCounts  map[string]int `json:"per_source_counts"`
	Warnings         []string       `json:"warnings,omitempty"`
	CachedSources    []string       `json:"cached_sources,omitempty"`
	RemovedWildcards int            `json:"removed_wildcards"`
	InvalidEntries   int            `json:"invalid_entries"`
	TotalSeen        int            `json:"total_seen"`
}

// Subdomains queries DefaultSources for names under domain. A failing source becomes a
// warning; the remaining sources still contribute. Answers found in cache are used without
// contacting the source, and fresh answers are stored in it.
func Subdomains(ctx context.Context, http HTTPClient, cache Cache, domain string) (*SubdomainsResult, error) {
	return SubdomainsFrom(ctx, http, cache, domain, DefaultSources)
}

// SubdomainsFrom is Subdomains over an explicit source list.
func SubdomainsFrom(ctx context.Context, http HTTPClient, cache Cache, domain string, sources []Source) (*SubdomainsResult, error) {
	domain, err := validate.Domain(domain)
	if err != nil {
		return nil, err
	}

	res := &SubdomainsResult{PerSourceCounts: make(map[string]int, len(sources))}
	var all []string
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u := src.URL(domain)
		res.Sources = append(res.Sources, SourceRef{Name: src.Name, URL: u})

		names, cached, err := sourceNames(ctx, http, cache, src, u, domain)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", src.Name, err))
			res.PerSourceCounts[src.Name] = 0
			continue
		}
		if cached {
			res.CachedSources = append(res.CachedSources, src.Name)
		}
		res.PerSourceCounts[src.Name] = len(validate.CleanSubdomains(names, domain).Names)
		all = append(all, names...)
	}

	cleaned := validate.CleanSubdomains(all, domain)
	res.Subdomains = cleaned.Names
	res.RemovedWildcards = cleaned.RemovedWildcards
	res.InvalidEntries = cleaned.Invalid
	res.TotalSeen = cleaned.Seen
	return res, nil
}

// sourceNames returns the names src reports for domain, from cache when present. An
// unreadable entry counts as a miss and a failed write is ignored.
func sourceNames(ctx context.Context, http HTTPClient, cache Cache, src Source, u, domain string) ([]string, bool, error) {
	key := "subdomains:" + src.Name + ":" + domain
	if cache != nil {
		var names []string
		if ok, err := cache.Get(ctx, key, &names); ok && err == nil {
			return names, true, nil
		}
	}
	names, err := fetchJSON(ctx, http, u, src.Parse)
	if err != nil {
		return nil, false, err
	}
	if cache != nil {
		_ = cache.Set(ctx, key, names)
	}
	return names, false, nil
}

// fetchJSON GETs u through the guarded client and decodes a 2xx body with parse.
func fetchJSON[T any](ctx context.Context, http HTTPClient, u string, parse func([]byte) (T, error)) (T, error) {
	var zero T
	resp, err := http.Get(ctx, u, map[string]string{"Accept": "application/json"})
	if err != nil {
		return zero, err
	}
	if !resp.IsSuccess() {
		body := string(resp.Body)
		if len(body) > maxSourceErrorBody {
			body = body[:maxSourceErrorBody] + "..."
		}
		return zero, fmt.Errorf("%w: HTTP %d: %q", apperr.ErrRequestFailed, resp.StatusCode, body)
	}
	v, err := parse(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("%w: decoding response: %w", apperr.ErrRequestFailed, err)
	}
	return v, nil
}
