package recon_test

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/posture/internal/apperr"
	"github.com/tbckr/posture/internal/cache"
	"github.com/tbckr/posture/internal/netpolicy"
	"github.com/tbckr/posture/internal/recon"
)

func TestSubdomains_AggregatesSources(t *testing.T) {
	e := newEnv(t, envOpts{mode: netpolicy.ModePassive, policy: netpolicy.DNSMinimal})
	registerDefaultSources()

	res, err := recon.Subdomains(context.Background(), e.http, nil, "Example.com")
	require.NoError(t, err)

	assert.Equal(t, []string{"api.example.com", "bar.example.com", "dev.example.com", "foo.example.com"}, res.Subdomains)
	assert.Equal(t, map[string]int{"crt.sh": 2, "certspotter": 2, "bufferover": 1}, res.PerSourceCounts)
	assert.Equal(t, 1, res.RemovedWildcards)
	assert.Equal(t, 5, res.TotalSeen)
	assert.Empty(t, res.Warnings)
	require.Len(t, res.Sources, 3)
	assert.Equal(t, "https://crt.sh/?q=%25.example.com&output=json", res.Sources[0].URL)

	entries := e.ledger.Entries()
	assert.Len(t, entries, 3)
	assert.Equal(t, 3, countCategory(entries, netpolicy.CategoryThirdPartyHTTP))
	assert.Equal(t, 0, e.guard.Usage().TargetHTTPTotal)
}

func TestSubdomains_SourceErrorsBecomeWarnings(t *testing.T) {
	e := newEnv(t, envOpts{mode: netpolicy.ModePassive, policy: netpolicy.DNSMinimal})
	registerSources(
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "down"),
		httpmock.NewErrorResponder(errors.New("connection reset")),
		httpmock.NewStringResponder(http.StatusOK, "not json"),
	)

	res, err := recon.Subdomains(context.Background(), e.http, nil, "example.com")
	require.NoError(t, err)
	assert.Empty(t, res.Subdomains)
	assert.NotNil(t, res.Subdomains)
	require.Len(t, res.Warnings, 3)
	assert.Contains(t, res.Warnings[0], "crt.sh: ")
	assert.Contains(t, res.Warnings[0], "503")
	assert.Contains(t, res.Warnings[1], "certspotter: ")
	assert.Contains(t, res.Warnings[2], "decoding response")
	assert.Equal(t, 0, res.PerSourceCounts["crt.sh"])
}

func TestSubdomains_PartialFailureKeepsOtherSources(t *testing.T) {
	e := newEnv(t, envOpts{mode: netpolicy.ModePassive, policy: netpolicy.DNSMinimal})
	registerSources(
		httpmock.NewStringResponder(http.StatusOK, `[{"name_value":"www.example.com","common_name":"example.com"}]`),
		httpmock.NewStringResponder(http.StatusTooManyRequests, ""),
		httpmock.NewStringResponder(http.StatusOK, `{"FDNS_A":["1.1.1.1,mail.example.com","2.2.2.2,evil.org"]}`),
	)

	res, err := recon.Subdomains(context.Background(), e.http, nil, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com", "mail.example.com", "www.example.com"}, res.Subdomains)
	assert.Equal(t, 1, res.InvalidEntries)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "certspotter")
}

func TestSubdomains_InvalidDomain(t *testing.T) {
	e := newEnv(t, envOpts{mode: netpolicy.ModePassive, policy: netpolicy.DNSMinimal})
	for _, bad := range []string{"", "not_a_domain", "has space.com"} {
		_, err := recon.Subdomains(context.Background(), e.http, nil, bad)
		require.Error(t, err, "input %q should be invalid", bad)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	}
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestSubdomains_CustomSources(t *testing.T) {
	e := newEnv(t, envOpts{mode: netpolicy.ModePassive, policy: netpolicy.DNSMinimal})
	httpmock.RegisterResponder(http.MethodGet, "https://ct.example.net/example.com",
		httpmock.NewStringResponder(http.StatusOK, "a.example.com b.example.com"))

	src := recon.Source{
		Name: "custom",
		URL:  func(d string) string { return "https://ct.example.net/" + d },
		Parse: func(body []byte) ([]string, error) {
			return strings.Fields(string(body)), nil
		},
	}
	res, err := recon.SubdomainsFrom(context.Background(), e.http, nil, "example.com", []recon.Source{src})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, res.Subdomains)
	assert.Equal(t, 2, res.PerSourceCounts["custom"])
}

func TestSubdomains_CachedAnswersSkipTheNetwork(t *testing.T) {
	e := newEnv(t, envOpts{mode: netpolicy.ModePassive, policy: netpolicy.DNSMinimal})
	store, err := cache.NewSQLite(filepath.Join(t.TempDir(), "cache.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	registerSources(
		httpmock.NewStringResponder(http.StatusOK, `[{"name_value":"foo.example.com"}]`),
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "down"),
		httpmock.NewStringResponder(http.StatusOK, `{"FDNS_A":["1.1.1.1,dev.example.com"]}`),
	)

	first, err := recon.Subdomains(context.Background(), e.http, store, "example.com")
	require.NoError(t, err)
	assert.Empty(t, first.CachedSources)
	require.Equal(t, 3, e.ledger.Len())

	second, err := recon.Subdomains(context.Background(), e.http, store, "example.com")
	require.NoError(t, err)
	assert.Equal(t, first.Subdomains, second.Subdomains)
	assert.Equal(t, []string{"crt.sh", "bufferover"}, second.CachedSources)
	// Only the failed source is asked again; cache hits leave no ledger entry.
	assert.Equal(t, 4, e.ledger.Len())
	assert.Equal(t, 4, httpmock.GetTotalCallCount())
}
