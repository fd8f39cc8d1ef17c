package recon_test

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/posture/internal/netpolicy"
	"github.com/tbckr/posture/internal/output"
	"github.com/tbckr/posture/internal/recon"
	"github.com/tbckr/posture/internal/testutil"
	"github.com/tbckr/posture/internal/worker"
)

func newPipeline(e env, mode netpolicy.Mode, policy netpolicy.DNSPolicy) *recon.Pipeline {
	return &recon.Pipeline{
		HTTP:      e.http,
		DNS:       e.dns,
		Detector:  e.det,
		Pool:      worker.NewPool(2, testutil.NopLogger()),
		Mode:      mode,
		DNSPolicy: policy,
		MaxPages:  10,
		MaxUsers:  10,
		Logger:    testutil.NopLogger(),
	}
}

func TestPipeline_PassiveRun(t *testing.T) {
	e := newEnv(t, envOpts{
		mode:    netpolicy.ModePassive,
		policy:  netpolicy.DNSMinimal,
		records: map[string][]string{"example.com MX": {"10 mx.example.com."}},
	})
	registerDefaultSources()
	registerUserSources(
		httpmock.NewStringResponder(http.StatusOK, `{"items":[{"login":"example","html_url":"https://github.com/example","type":"Organization"}]}`),
		httpmock.NewStringResponder(http.StatusOK, `[]`),
		httpmock.NewStringResponder(http.StatusOK, `{"completions":[]}`),
	)

	res := newPipeline(e, netpolicy.ModePassive, netpolicy.DNSMinimal).Run(context.Background(), "run-1", "example.com")

	require.Len(t, res.Modules, 5)
	for _, m := range res.Modules {
		assert.Equal(t, recon.StatusOK, m.Status, m.Name)
	}
	assert.Equal(t, "passive", res.Mode)
	assert.Equal(t, "minimal", res.DNSPolicy)
	assert.Len(t, res.Subdomains.Subdomains, 4)
	assert.Equal(t, []string{"10 mx.example.com."}, res.Mail.Records["MX"])
	assert.Empty(t, res.Web.HeaderSamples)
	assert.Len(t, res.Docs.Candidates, 10)
	assert.Empty(t, res.Docs.PolicyPages)
	require.Len(t, res.Users.Users, 1)
	assert.Equal(t, "example", res.Users.Users[0].Handle)
	assert.Equal(t, recon.ConfidenceHigh, res.Users.Users[0].Confidence)

	entries := e.ledger.Entries()
	// Three subdomain sources plus three user searches per query term.
	assert.Equal(t, 9, countCategory(entries, netpolicy.CategoryThirdPartyHTTP))
	assert.Equal(t, 3, countCategory(entries, netpolicy.CategoryTargetDNS))
	assert.Equal(t, 0, countCategory(entries, netpolicy.CategoryTargetHTTP))
}

func TestPipeline_SubdomainErrorDoesNotStopLaterModules(t *testing.T) {
	e := newEnv(t, envOpts{mode: netpolicy.ModePassive, policy: netpolicy.DNSNone})

	res := newPipeline(e, netpolicy.ModePassive, netpolicy.DNSNone).Run(context.Background(), "run-2", "not a domain")

	assert.Equal(t, recon.StatusError, res.Status(recon.ModuleSubdomains))
	assert.Equal(t, recon.StatusOK, res.Status(recon.ModuleMail))
	assert.Equal(t, recon.StatusOK, res.Status(recon.ModuleWeb))
	assert.Equal(t, recon.StatusOK, res.Status(recon.ModuleDocs))
	assert.Equal(t, recon.StatusError, res.Status(recon.ModuleUsers))
	assert.Equal(t, "", res.Status("unknown"))
}

func TestPipeline_CanceledContextSkipsModules(t *testing.T) {
	e := newEnv(t, envOpts{mode: netpolicy.ModePassive, policy: netpolicy.DNSMinimal})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newPipeline(e, netpolicy.ModePassive, netpolicy.DNSMinimal).Run(ctx, "run-3", "example.com")

	require.Len(t, res.Modules, 5)
	for _, m := range res.Modules {
		assert.Equal(t, recon.StatusSkipped, m.Status)
	}
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
	assert.Equal(t, 0, e.ledger.Len())
}

func TestResult_WriteText(t *testing.T) {
	e := newEnv(t, envOpts{
		mode:    netpolicy.ModePassive,
		policy:  netpolicy.DNSMinimal,
		records: map[string][]string{"example.com TXT": {"v=spf1 -all"}},
	})
	registerSources(
		httpmock.NewStringResponder(http.StatusOK, `[{"name_value":"login.example.com"}]`),
		httpmock.NewStringResponder(http.StatusOK, `[]`),
		httpmock.NewStringResponder(http.StatusOK, `{}`),
	)
	registerEmptyUserSources()

	res := newPipeline(e, netpolicy.ModePassive, netpolicy.DNSMinimal).Run(context.Background(), "run-4", "example.com")
	snap := e.ledger.Snapshot()
	res.Network = &snap
	res.Budget = &recon.BudgetUsage{
		Used: netpolicy.Usage{
			TargetHTTPTotal:   2,
			TargetHTTPPerHost: map[string]int{"www.example.com": 2},
			TargetDNSTotal:    3,
		},
		Limits: netpolicy.DefaultBudgets(),
	}

	var buf bytes.Buffer
	require.NoError(t, output.Write(&buf, output.FormatText, res))
	text := buf.String()
	assert.Contains(t, text, "# example.com (run run-4, mode passive, dns policy minimal)")
	assert.Contains(t, text, "## Subdomains")
	assert.Contains(t, text, "login.example.com")
	assert.Contains(t, text, "## Mail Profile")
	assert.Contains(t, text, "SPF: present (-all)")
	assert.Contains(t, text, "DMARC: missing")
	assert.Contains(t, text, "## Web Signals")
	assert.Contains(t, text, "SSO or identity portal detected via subdomain naming.")
	assert.Contains(t, text, "## Network Activity")
	assert.Contains(t, text, "## Document Signals (8 candidates)")
	assert.Contains(t, text, "## Public Accounts (0)")
	assert.Contains(t, text, "Passive third-party user discovery")
	assert.Contains(t, text, "- Third-party HTTP calls: 9")
	assert.Contains(t, text, "- Target DNS queries: 3")
	assert.Contains(t, text, "## Budget Use")
	assert.Contains(t, text, "- Target HTTP: 2 of 12")
	assert.Contains(t, text, "- Target DNS: 3 of 25")
	assert.Contains(t, text, "  - www.example.com: 2 of 3")

	buf.Reset()
	require.NoError(t, output.Write(&buf, output.FormatJSON, res))
	assert.Contains(t, buf.String(), `"passive_subdomains"`)
	assert.Contains(t, buf.String(), `"network_ledger"`)
	assert.Contains(t, buf.String(), `"budget_usage"`)
	assert.Contains(t, buf.String(), `"doc_signals"`)
	assert.Contains(t, buf.String(), `"passive_users"`)
}
