package httpclient_test

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/posture/internal/httpclient"
)

func TestNew_Options(t *testing.T) {
	tests := []struct {
		name    string
		opts    httpclient.Options
		wantErr string
	}{
		{name: "defaults", opts: httpclient.Options{}},
		{name: "http proxy", opts: httpclient.Options{Proxy: "http://proxy.example.com:8080"}},
		{name: "https proxy", opts: httpclient.Options{Proxy: "https://proxy.example.com:8080"}},
		{name: "socks5 proxy", opts: httpclient.Options{Proxy: "socks5://127.0.0.1:9050"}},
		{name: "debug hook", opts: httpclient.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), Debug: true}},
		{name: "ftp proxy rejected", opts: httpclient.Options{Proxy: "ftp://proxy.example.com:8080"}, wantErr: "proxy scheme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := httpclient.New(tt.opts)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client)
		})
	}
}

func TestNew_UserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want string
	}{
		{name: "default", ua: "", want: httpclient.DefaultUserAgent},
		{name: "custom", ua: "MyBot/1.0", want: "MyBot/1.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := httpclient.New(httpclient.Options{UserAgent: tt.ua})
			require.NoError(t, err)
			httpmock.ActivateNonDefault(client.GetClient())
			t.Cleanup(httpmock.DeactivateAndReset)

			var got string
			httpmock.RegisterResponder(http.MethodGet, "https://example.com/",
				func(r *http.Request) (*http.Response, error) {
					got = r.Header.Get("User-Agent")
					return httpmock.NewStringResponse(http.StatusOK, ""), nil
				})
			_, err = client.R().Get("https://example.com/")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_DoesNotFollowRedirects(t *testing.T) {
	client, err := httpclient.New(httpclient.Options{})
	require.NoError(t, err)
	httpmock.ActivateNonDefault(client.GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodGet, "https://example.com/",
		func(*http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(http.StatusFound, "")
			resp.Header.Set("Location", "https://elsewhere.example.net/")
			return resp, nil
		})
	httpmock.RegisterResponder(http.MethodGet, "https://elsewhere.example.net/",
		httpmock.NewStringResponder(http.StatusOK, "followed"))

	resp, _ := client.R().Get("https://example.com/")
	require.NotNil(t, resp)
	assert.Equal(t, 0, httpmock.GetCallCountInfo()["GET https://elsewhere.example.net/"])
}

func TestResolveProxy(t *testing.T) {
	clearEnv := func(t *testing.T) {
		for _, env := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy", "ALL_PROXY", "all_proxy"} {
			t.Setenv(env, "")
		}
	}

	t.Run("nothing configured", func(t *testing.T) {
		clearEnv(t)
		assert.Equal(t, "", httpclient.ResolveProxy(""))
	})
	t.Run("explicit wins over environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HTTPS_PROXY", "http://envproxy.example.com:8080")
		assert.Equal(t, "http://explicit.example.com:8080", httpclient.ResolveProxy("http://explicit.example.com:8080"))
	})
	for _, env := range []string{"HTTPS_PROXY", "HTTP_PROXY", "ALL_PROXY", "https_proxy"} {
		t.Run("environment "+env, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(env, "http://envproxy.example.com:8080")
			assert.Equal(t, "<from environment>", httpclient.ResolveProxy(""))
		})
	}
}
