package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/posture/internal/apperr"
	"github.com/tbckr/posture/internal/config"
	"github.com/tbckr/posture/internal/detect"
	"github.com/tbckr/posture/internal/httpclient"
	"github.com/tbckr/posture/internal/ledger"
	"github.com/tbckr/posture/internal/netpolicy"
	"github.com/tbckr/posture/internal/recon"
	"github.com/tbckr/posture/internal/runctx"
	"github.com/tbckr/posture/internal/testutil"
)

// execute runs the root command with a private config file and returns stdout.
func execute(t *testing.T, cfgFile string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(append(args, "--config", cfgFile))
	cmd.SetIn(strings.NewReader(""))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func tempConfig(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.yaml")
}

func testDeps(t *testing.T, args ...string) *deps {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	require.NoError(t, flags.Parse(append([]string{"--config", tempConfig(t)}, args...)))
	cfg, err := config.Load(flags)
	require.NoError(t, err)
	return &deps{cfg: cfg, logger: testutil.NopLogger()}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"canceled", fmt.Errorf("run: %w", context.Canceled), ExitInterrupted},
		{"invalid input", fmt.Errorf("%w: bad domain", apperr.ErrInvalidInput), ExitUsage},
		{"unknown key", fmt.Errorf("%w: %q", config.ErrUnknownKey, "nope"), ExitUsage},
		{"other", errors.New("boom"), ExitFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}

func TestResolveInputs_ArgsWin(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetIn(strings.NewReader("ignored.com\n"))
	got, err := resolveInputs(cmd, []string{"example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, got)
}

func TestResolveInputs_Stdin(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetIn(strings.NewReader("# targets\nexample.com\n\nexample.org\nexample.com\n"))
	got, err := resolveInputs(cmd, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com", "example.org"}, got)
}

func TestResolveInputs_EmptyStdin(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetIn(strings.NewReader("\n# nothing\n"))
	_, err := resolveInputs(cmd, nil)
	assert.ErrorContains(t, err, "no input")
}

func TestRunCmd_NoInput(t *testing.T) {
	_, err := execute(t, tempConfig(t), "run")
	assert.ErrorContains(t, err, "no input")
}

func TestRootCmd_InvalidMode(t *testing.T) {
	_, err := execute(t, tempConfig(t), "budgets", "example.com", "--mode", "loud")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := execute(t, tempConfig(t), "version", "-o", "json")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.NotEmpty(t, got["version"])
	assert.NotEmpty(t, got["go_version"])
}

func TestBudgetsCmd_JSON(t *testing.T) {
	out, err := execute(t, tempConfig(t), "budgets", "Example.COM", "--mode", "low-noise", "-o", "json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "example.com", got["domain"])
	assert.Equal(t, "low-noise", got["mode"])
	assert.Equal(t, "minimal", got["dns_policy"])
	assert.Equal(t, true, got["allow_target_http"])
	assert.EqualValues(t, 12, got["max_target_http_requests_total"])
}

func TestBudgetsCmd_PassiveText(t *testing.T) {
	out, err := execute(t, tempConfig(t), "budgets", "example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "allow_target_http")
	assert.Contains(t, out, "false")
	assert.Contains(t, out, "passive")
}

func TestBudgetsCmd_YAML(t *testing.T) {
	out, err := execute(t, tempConfig(t), "budgets", "example.com", "--yaml", "--dns-policy", "full")
	require.NoError(t, err)
	assert.Contains(t, out, "dns_policy: full")
	assert.Contains(t, out, "max_target_dns_queries: 25")
}

func TestBudgetsCmd_InvalidDomain(t *testing.T) {
	_, err := execute(t, tempConfig(t), "budgets", "not a domain")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestConfigCmd_SetThenGet(t *testing.T) {
	cfgFile := tempConfig(t)
	_, err := execute(t, cfgFile, "config", "set", "dns-policy", "full")
	require.NoError(t, err)

	out, err := execute(t, cfgFile, "config", "get", "dns_policy")
	require.NoError(t, err)
	assert.Equal(t, "full\n", out)

	out, err = execute(t, cfgFile, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, cfgFile+"\n", out)
}

func TestConfigCmd_SetRejectsBadValue(t *testing.T) {
	_, err := execute(t, tempConfig(t), "config", "set", "mode", "loud")
	assert.Error(t, err)
}

func TestConfigCmd_GetUnknownKey(t *testing.T) {
	_, err := execute(t, tempConfig(t), "config", "get", "pap_limit")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrUnknownKey)
}

func TestConfigCmd_ShowJSON(t *testing.T) {
	out, err := execute(t, tempConfig(t), "config", "show", "-o", "json")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "passive", got["mode"])
	assert.Equal(t, "minimal", got["dns_policy"])
}

func TestCompletionCmd(t *testing.T) {
	out, err := execute(t, tempConfig(t), "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "posture")

	_, err = execute(t, tempConfig(t), "completion", "tcsh")
	assert.Error(t, err)
}

func writeSnapshot(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), runctx.SnapshotFile)
	snap := ledger.Snapshot{
		RunInfo: ledger.RunInfo{RunID: "run-1", Domain: "example.com", Mode: netpolicy.ModeLowNoise, DNSPolicy: netpolicy.DNSFull},
		Entries: []ledger.Entry{
			{Category: netpolicy.CategoryThirdPartyHTTP, Host: "crt.sh", URL: "https://crt.sh/", Status: "200", BytesIn: 40, Success: true},
			{Category: netpolicy.CategoryTargetDNS, Host: "example.com", QueryName: "example.com", RecordType: "MX", Status: "ok", Success: true},
			{Category: netpolicy.CategoryTargetHTTP, Host: "example.com", URL: "https://example.com/", Status: "blocked", Error: "target_http_per_host_exceeded"},
		},
	}
	require.NoError(t, ledger.WriteSnapshotFile(path, snap))
	return path
}

func TestAuditCmd_SnapshotText(t *testing.T) {
	out, err := execute(t, tempConfig(t), "audit", writeSnapshot(t))
	require.NoError(t, err)
	assert.Contains(t, out, "## Network Activity")
	assert.Contains(t, out, "- Mode: low-noise")
	assert.Contains(t, out, "- Third-party HTTP calls: 1")
	assert.Contains(t, out, "Blocked operations (1)")
	assert.Contains(t, out, "target_http_per_host_exceeded")
}

func TestAuditCmd_SnapshotJSON(t *testing.T) {
	out, err := execute(t, tempConfig(t), "audit", writeSnapshot(t), "-o", "json")
	require.NoError(t, err)

	var got struct {
		RunID   string         `json:"run_id"`
		Blocked []ledger.Entry `json:"blocked"`
		Totals  ledger.Totals  `json:"totals"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Len(t, got.Blocked, 1)
	assert.Equal(t, 3, got.Totals.TotalEntries)
}

func TestAuditCmd_SQLite(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ledger.db")
	store, err := ledger.NewSQLiteStore(db)
	require.NoError(t, err)
	snap, err := ledger.ReadSnapshotFile(writeSnapshot(t))
	require.NoError(t, err)
	require.NoError(t, store.SaveSnapshot(context.Background(), snap))
	require.NoError(t, store.Close())

	cfgFile := tempConfig(t)
	out, err := execute(t, cfgFile, "audit", "--db", db, "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "run-1")

	out, err = execute(t, cfgFile, "audit", "--db", db, "--run-id", "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, "- Target DNS queries: 1")
}

func TestAuditCmd_Stream(t *testing.T) {
	id := "0b6b2bbf-7c5e-4d1e-9a5e-3f1d2c4b5a69"
	dir := filepath.Join(t.TempDir(), "example.com-"+id)
	require.NoError(t, os.Mkdir(dir, 0o700))
	path := filepath.Join(dir, runctx.StreamFile)
	sink, err := ledger.NewJSONLSink(path)
	require.NoError(t, err)
	src, err := ledger.ReadSnapshotFile(writeSnapshot(t))
	require.NoError(t, err)
	for _, e := range src.Entries {
		require.NoError(t, sink.Write(context.Background(), e))
	}
	require.NoError(t, sink.Close())

	out, err := execute(t, tempConfig(t), "audit", path, "--mode", "low-noise")
	require.NoError(t, err)
	assert.Contains(t, out, "# example.com (run "+id+")")
	assert.Contains(t, out, "- Mode: low-noise")
	assert.Contains(t, out, "- Target DNS queries: 1")
	assert.Contains(t, out, "Blocked operations (1)")
}

func TestSplitRunDir(t *testing.T) {
	domain, id := splitRunDir("mail.example.com-0b6b2bbf-7c5e-4d1e-9a5e-3f1d2c4b5a69")
	assert.Equal(t, "mail.example.com", domain)
	assert.Equal(t, "0b6b2bbf-7c5e-4d1e-9a5e-3f1d2c4b5a69", id)

	domain, id = splitRunDir("example.com-run-1")
	assert.Empty(t, domain)
	assert.Equal(t, "example.com-run-1", id)
}

func TestAuditCmd_NoSource(t *testing.T) {
	_, err := execute(t, tempConfig(t), "audit")
	assert.ErrorContains(t, err, "no ledger")
}

func TestRunDomain_PersistsLedger(t *testing.T) {
	outDir := t.TempDir()
	d := testDeps(t, "--out-dir", outDir, "--max-requests-per-minute", "6000")

	client, err := httpclient.New(httpclient.Options{Timeout: time.Second})
	require.NoError(t, err)
	httpmock.ActivateNonDefault(client.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterNoResponder(httpmock.NewStringResponder(200, "[]"))

	det, err := detect.Default()
	require.NoError(t, err)
	mock := &testutil.MockResolver{}
	res, err := runDomain(context.Background(), d, det, "example.com",
		runctx.WithHTTPClient(client),
		runctx.WithRecordResolver(mock),
		runctx.WithAddrResolver(mock),
		runctx.WithRunID("run-1"),
	)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotNil(t, res.Network)

	assert.Equal(t, recon.StatusOK, res.Status(recon.ModuleSubdomains))
	assert.Equal(t, recon.StatusOK, res.Status(recon.ModuleMail))
	assert.Equal(t, recon.StatusOK, res.Status(recon.ModuleDocs))
	assert.Equal(t, recon.StatusOK, res.Status(recon.ModuleUsers))
	// Three subdomain sources plus three user searches for each of example.com and example.
	assert.Equal(t, 9, res.Network.Totals.Counts[netpolicy.CategoryThirdPartyHTTP])
	assert.Equal(t, 3, res.Network.Totals.Counts[netpolicy.CategoryTargetDNS])
	assert.Zero(t, res.Network.Totals.Counts[netpolicy.CategoryTargetHTTP])

	dir := filepath.Join(outDir, "example.com-run-1")
	assert.FileExists(t, filepath.Join(dir, runctx.StreamFile))
	assert.FileExists(t, filepath.Join(dir, runctx.SnapshotFile))
	assert.FileExists(t, filepath.Join(dir, runctx.AuditFile))

	persisted, err := ledger.ReadSnapshotFile(filepath.Join(dir, runctx.SnapshotFile))
	require.NoError(t, err)
	assert.Equal(t, res.Network.Totals, persisted.Totals)
}

func TestRunDomain_InvalidDomain(t *testing.T) {
	d := testDeps(t, "--ledger-store", "none")
	det, err := detect.Default()
	require.NoError(t, err)

	res, err := runDomain(context.Background(), d, det, "not a domain")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestEditor(t *testing.T) {
	env := map[string]string{}
	getenv := func(k string) string { return env[k] }
	assert.Equal(t, "vi", editor(getenv))
	env["EDITOR"] = "nano"
	assert.Equal(t, "nano", editor(getenv))
	env["VISUAL"] = "code -w"
	assert.Equal(t, "code -w", editor(getenv))
}
