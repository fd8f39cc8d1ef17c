package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tbckr/posture/internal/netpolicy"
	"github.com/tbckr/posture/internal/worker"
)

// DocumentPaths are probed on www and every discovered subdomain.
var DocumentPaths = []string{"/privacy", "/security", "/policies", "/documents"}

var documentExts = []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx"}

var documentTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.ms-excel",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument",
}

// maxDocumentBytes skips documents announced larger than this.
const maxDocumentBytes = 5_000_000

// Document is a published file found by a HEAD probe.
type Document struct {
	URL           string `json:"url"`
	ContentType   string `json:"content_type"`
	ContentLength int64  `json:"content_length,omitempty"`
	DiscoveredVia string `json:"discovered_via"`
}

// DocSignalsResult is the outcome of the document signals module.
type DocSignalsResult struct {
	Candidates  []string   `json:"candidates"`
	PolicyPages []string   `json:"policy_pages"`
	Documents   []Document `json:"documents"`
	Oversized   []string   `json:"oversized,omitempty"`
	Blocked     []string   `json:"blocked,omitempty"`
	Errors      []string   `json:"errors,omitempty"`
}

// DocumentCandidates returns every DocumentPaths URL on www.<domain> and on each subdomain
// with at most three dots, in that order, capped at maxPages.
func DocumentCandidates(domain string, subdomains []string, maxPages int) []string {
	hosts := []string{"www." + domain}
	seen := map[string]struct{}{hosts[0]: {}}
	for _, s := range subdomains {
		if _, ok := seen[s]; ok || strings.Count(s, ".") > maxCandidateDots {
			continue
		}
		seen[s] = struct{}{}
		hosts = append(hosts, s)
	}
	out := []string{}
	for _, h := range hosts {
		for _, p := range DocumentPaths {
			out = append(out, "https://"+h+p)
		}
	}
	if maxPages >= 0 && len(out) > maxPages {
		out = out[:maxPages]
	}
	return out
}

// IsDocument reports whether a URL or its content type names a published office document.
func IsDocument(rawURL, contentType string) bool {
	u := strings.ToLower(rawURL)
	for _, ext := range documentExts {
		if strings.Contains(u, ext) {
			return true
		}
	}
	ct := strings.ToLower(contentType)
	for _, t := range documentTypes {
		if strings.HasPrefix(ct, t) {
			return true
		}
	}
	return false
}

type docProbe struct {
	status        int
	contentType   string
	contentLength int64
}

// DocSignals lists document candidates and, in low-noise mode only, sends one HEAD per
// candidate on pool. Candidates answering 2xx are policy pages; those whose URL or content
// type marks a document are reported as documents unless announced above 5 MB.
func DocSignals(ctx context.Context, http HTTPClient, domain string, subdomains []string,
	mode netpolicy.Mode, maxPages int, pool *worker.Pool, logger *slog.Logger) *DocSignalsResult {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	res := &DocSignalsResult{
		Candidates:  DocumentCandidates(domain, subdomains, maxPages),
		PolicyPages: []string{},
		Documents:   []Document{},
	}
	if mode != netpolicy.ModeLowNoise {
		return res
	}

	results := worker.Map(ctx, pool, res.Candidates, func(ctx context.Context, u string) (docProbe, error) {
		resp, err := http.Head(ctx, u, nil)
		if err != nil {
			return docProbe{}, err
		}
		p := docProbe{status: resp.StatusCode, contentType: resp.Header.Get("Content-Type"), contentLength: -1}
		if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil {
			p.contentLength = n
		}
		return p, nil
	})

	for _, r := range results {
		var v *netpolicy.Violation
		switch {
		case errors.As(r.Error, &v):
			res.Blocked = append(res.Blocked, fmt.Sprintf("%s: %s", r.Input, v.Rule))
			logger.Debug("doc signal blocked", "url", r.Input, "rule", v.Rule)
			continue
		case r.Error != nil:
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", r.Input, r.Error))
			logger.Debug("doc signal failed", "url", r.Input, "error", r.Error)
			continue
		}
		p := r.Value
		if p.status < 200 || p.status >= 300 {
			continue
		}
		res.PolicyPages = append(res.PolicyPages, r.Input)
		if !IsDocument(r.Input, p.contentType) {
			continue
		}
		if p.contentLength > maxDocumentBytes {
			res.Oversized = append(res.Oversized, r.Input)
			continue
		}
		doc := Document{URL: r.Input, ContentType: p.contentType, DiscoveredVia: "heuristic"}
		if doc.ContentType == "" {
			doc.ContentType = "unknown"
		}
		if p.contentLength >= 0 {
			doc.ContentLength = p.contentLength
		}
		res.Documents = append(res.Documents, doc)
	}
	return res
}
