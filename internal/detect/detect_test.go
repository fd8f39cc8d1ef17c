package detect_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/posture/internal/detect"
)

func embedded(t *testing.T) *detect.Detector {
	t.Helper()
	p, err := detect.LoadPatterns()
	require.NoError(t, err)
	return detect.NewDetector(p)
}

func TestEmailProvider_KnownProviders(t *testing.T) {
	d := embedded(t)
	tests := []struct {
		host     string
		provider string
	}{
		{"aspmx.l.google.com.", "Google Workspace"},
		{"contoso-com.mail.protection.outlook.com", "Microsoft 365"},
		{"mxa-001.pphosted.com", "Proofpoint"},
		{"eu-smtp-inbound-1.mimecast.com", "Mimecast"},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			got := d.EmailProvider([]string{tt.host})
			require.Len(t, got, 1)
			assert.Equal(t, detect.TypeEmail, got[0].Type)
			assert.Equal(t, tt.provider, got[0].Provider)
			assert.Equal(t, tt.host, got[0].Evidence)
			assert.Equal(t, "mx", got[0].Source)
		})
	}
}

func TestEmailProvider_DeduplicatesAndIgnoresUnknown(t *testing.T) {
	d := embedded(t)
	got := d.EmailProvider([]string{"aspmx.l.google.com", "aspmx.l.google.com", "mx.unknown.example"})
	require.Len(t, got, 1)
	assert.Empty(t, d.EmailProvider(nil))
}

func TestEmailProvider_SuffixBoundary(t *testing.T) {
	d := embedded(t)
	assert.Empty(t, d.EmailProvider([]string{"notgoogle.com"}))
}

func TestDNSHost(t *testing.T) {
	d := embedded(t)
	tests := []struct {
		host     string
		provider string
	}{
		{"liz.ns.cloudflare.com.", "Cloudflare"},
		{"ns-123.awsdns-45.com.", "AWS Route 53"},
		{"ns1-01.azure-dns.com.", "Azure DNS"},
		{"ns-cloud-a1.googledomains.com.", "Google Cloud DNS"},
		{"dns1.p01.nsone.net.", "NS1"},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			got := d.DNSHost([]string{tt.host})
			require.Len(t, got, 1)
			assert.Equal(t, detect.TypeDNS, got[0].Type)
			assert.Equal(t, tt.provider, got[0].Provider)
			assert.Equal(t, "ns", got[0].Source)
		})
	}
	assert.Empty(t, d.DNSHost([]string{"ns1.unknown-dns.example."}))
}

func TestTXTRecord(t *testing.T) {
	d := embedded(t)
	got := d.TXTRecord([]string{
		"v=spf1 include:_spf.google.com include:sendgrid.net ~all",
		"google-site-verification=abc123",
		"unrelated",
	})
	require.Len(t, got, 3)
	providers := []string{got[0].Provider, got[1].Provider, got[2].Provider}
	assert.ElementsMatch(t, []string{"Google Workspace", "SendGrid", "Google"}, providers)
	for _, det := range got {
		assert.Equal(t, "txt", det.Source)
	}
}

func TestMXHost(t *testing.T) {
	assert.Equal(t, "mx.example.com", detect.MXHost("10 MX.example.com."))
	assert.Equal(t, "mx.example.com", detect.MXHost("mx.example.com"))
	assert.Equal(t, "", detect.MXHost("  "))
}

func TestLoadPatterns_OverrideFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "detect.yaml")
	content := `email:
  - suffix: "mail.example.net"
    provider: "ExampleMail"
`
	require.NoError(t, os.WriteFile(f, []byte(content), 0o600))

	p, err := detect.LoadPatterns(filepath.Join(dir, "missing.yaml"), f)
	require.NoError(t, err)
	require.Len(t, p.Email, 1)
	assert.Empty(t, p.TXT)

	got := detect.NewDetector(p).EmailProvider([]string{"in.mail.example.net"})
	require.Len(t, got, 1)
	assert.Equal(t, "ExampleMail", got[0].Provider)
}

func TestLoadPatterns_MalformedFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "detect.yaml")
	require.NoError(t, os.WriteFile(f, []byte("email: [unterminated"), 0o600))
	_, err := detect.LoadPatterns(f)
	require.Error(t, err)
}

func TestLoadPatterns_EmbeddedFallback(t *testing.T) {
	p, err := detect.LoadPatterns("/nonexistent/path/detect.yaml")
	require.NoError(t, err)
	assert.NotEmpty(t, p.Email)
	assert.NotEmpty(t, p.DNS)
	assert.NotEmpty(t, p.TXT)
}

func TestDefaultPatternPaths(t *testing.T) {
	paths, err := detect.DefaultPatternPaths()
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Contains(t, paths[0], "detect.yaml")
}

func TestLoadPatterns_RejectsIncompleteRule(t *testing.T) {
	f := filepath.Join(t.TempDir(), "detect.yaml")
	content := `dns:
  - suffix: ns.example.net
    contains: example
    provider: Both
`
	require.NoError(t, os.WriteFile(f, []byte(content), 0o600))
	_, err := detect.LoadPatterns(f)
	assert.ErrorContains(t, err, "exactly one of suffix or contains")
}

func TestLoadPatterns_RejectsUnknownKey(t *testing.T) {
	f := filepath.Join(t.TempDir(), "detect.yaml")
	require.NoError(t, os.WriteFile(f, []byte("email:\n  - sufix: x.example\n    provider: Typo\n"), 0o600))
	_, err := detect.LoadPatterns(f)
	assert.Error(t, err)
}

func TestTXTRecord_TypesFromRules(t *testing.T) {
	d := embedded(t)
	got := d.TXTRecord([]string{`"google-site-verification=abc"`})
	require.Len(t, got, 1)
	assert.Equal(t, detect.TypeVerification, got[0].Type)
	assert.Equal(t, "google-site-verification=abc", got[0].Evidence)

	got = d.TXTRecord([]string{"v=spf1 include:spf.protection.outlook.com -all"})
	require.Len(t, got, 1)
	assert.Equal(t, detect.TypeEmail, got[0].Type)
}
