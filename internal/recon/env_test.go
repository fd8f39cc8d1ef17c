package recon_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/posture/internal/detect"
	"github.com/tbckr/posture/internal/dnsclient"
	"github.com/tbckr/posture/internal/httpclient"
	"github.com/tbckr/posture/internal/ledger"
	"github.com/tbckr/posture/internal/netpolicy"
	"github.com/tbckr/posture/internal/ratelimit"
	"github.com/tbckr/posture/internal/testutil"
)

type env struct {
	http   *httpclient.Guarded
	dns    *dnsclient.Client
	guard  *netpolicy.Guard
	ledger *ledger.Ledger
	mock   *testutil.MockResolver
	det    *detect.Detector
}

type envOpts struct {
	mode    netpolicy.Mode
	policy  netpolicy.DNSPolicy
	records map[string][]string
	budgets func(*netpolicy.Budgets)
}

func newEnv(t *testing.T, o envOpts) env {
	t.Helper()
	b := netpolicy.DefaultBudgets()
	if o.budgets != nil {
		o.budgets(&b)
	}
	mock := &testutil.MockResolver{
		ResolveFn: func(_ context.Context, name, rtype string) ([]string, error) {
			return o.records[name+" "+rtype], nil
		},
	}
	guard, err := netpolicy.New(netpolicy.Config{
		Domain:    "example.com",
		Mode:      o.mode,
		DNSPolicy: o.policy,
		Budgets:   b,
	}, netpolicy.WithResolver(mock), netpolicy.WithLogger(testutil.NopLogger()))
	require.NoError(t, err)

	client, err := httpclient.New(httpclient.Options{})
	require.NoError(t, err)
	httpmock.ActivateNonDefault(client.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	led := ledger.New(ledger.RunInfo{RunID: "recon-test", Domain: "example.com"})
	guarded := httpclient.NewGuarded(client, guard, led, ratelimit.New(60_000), httpclient.GuardedOptions{
		Backoff:          time.Millisecond,
		MaxResponseBytes: b.MaxResponseBytes,
		Logger:           testutil.NopLogger(),
	})

	p, err := detect.LoadPatterns()
	require.NoError(t, err)

	return env{
		http:   guarded,
		dns:    dnsclient.New(mock, guard, led, testutil.NopLogger()),
		guard:  guard,
		ledger: led,
		mock:   mock,
		det:    detect.NewDetector(p),
	}
}

func registerSources(crt, certspotter, bufferover httpmock.Responder) {
	httpmock.RegisterResponder(http.MethodGet, `=~^https://crt\.sh/`, crt)
	httpmock.RegisterResponder(http.MethodGet, `=~^https://api\.certspotter\.com/`, certspotter)
	httpmock.RegisterResponder(http.MethodGet, `=~^https://dns\.bufferover\.run/`, bufferover)
}

func registerDefaultSources() {
	registerSources(
		httpmock.NewStringResponder(http.StatusOK, `[{"name_value":"foo.example.com\n*.bar.example.com"}]`),
		httpmock.NewStringResponder(http.StatusOK, `[{"dns_names":["api.example.com","foo.example.com"]}]`),
		httpmock.NewStringResponder(http.StatusOK, `{"FDNS_A":["1.1.1.1,dev.example.com"]}`),
	)
}

func countCategory(entries []ledger.Entry, cat netpolicy.Category) int {
	n := 0
	for _, e := range entries {
		if e.Category == cat {
			n++
		}
	}
	return n
}

func registerUserSources(github, gitlab, keybase httpmock.Responder) {
	httpmock.RegisterResponder(http.MethodGet, `=~^https://api\.github\.com/search/users`, github)
	httpmock.RegisterResponder(http.MethodGet, `=~^https://gitlab\.com/api/v4/users`, gitlab)
	httpmock.RegisterResponder(http.MethodGet, `=~^https://keybase\.io/_/api/1\.0/user/autocomplete\.json`, keybase)
}

func registerEmptyUserSources() {
	registerUserSources(
		httpmock.NewStringResponder(http.StatusOK, `{"items":[]}`),
		httpmock.NewStringResponder(http.StatusOK, `[]`),
		httpmock.NewStringResponder(http.StatusOK, `{"completions":[]}`),
	)
}
