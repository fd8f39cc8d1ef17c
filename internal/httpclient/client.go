package httpclient

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/imroc/req/v3"

	"github.com/tbckr/posture/internal/version"
)

// DefaultUserAgent is the User-Agent sent when no explicit value is configured.
// It identifies posture honestly so server operators can recognise its traffic.
// var (not const) because version.Version is a link-time variable, not a compile-time constant.
var DefaultUserAgent = "posture/" + version.Version + " (+https://github.com/tbckr/posture)"

// DefaultTimeout bounds a single attempt when Options.Timeout is zero.
const DefaultTimeout = 8 * time.Second

// Options configures the underlying transport.
type Options struct {
	// Proxy is an http://, https:// or socks5:// URL. Empty falls back to the environment.
	Proxy     string
	UserAgent string
	Timeout   time.Duration
	Logger    *slog.Logger
	// Debug attaches a response logging hook at DEBUG level.
	Debug bool
}

// ResolveProxy returns the proxy value that will actually be used.
// If proxy is explicitly configured, it is returned as-is.
// Otherwise the standard proxy env vars are checked; if any are set
// "<from environment>" is returned. If none are set, an empty string is returned.
func ResolveProxy(proxy string) string {
	if proxy != "" {
		return proxy
	}
	for _, env := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy", "ALL_PROXY", "all_proxy"} {
		if os.Getenv(env) != "" {
			return "<from environment>"
		}
	}
	return ""
}

// New builds the *req.Client shared by every guarded call of a run.
// Redirect following is always disabled: the guard's redirect ceiling is zero and
// assumes no implicit hop ever reaches the network. req-level retries stay off because
// Guarded re-admits each retry through the guard itself.
func New(opts Options) (*req.Client, error) {
	client := req.NewClient()

	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	client.SetUserAgent(ua)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client.SetTimeout(timeout)
	client.SetRedirectPolicy(req.NoRedirectPolicy())
	client.SetCommonRetryCount(0)

	if opts.Proxy != "" {
		if err := validateProxy(opts.Proxy); err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", opts.Proxy, err)
		}
		// socks5:// forwards hostnames through the proxy, so HTTP targets are not
		// resolved locally. DNS transports use resolver.NewSystem for the same reason.
		client.SetProxyURL(opts.Proxy)
	} else {
		client.SetProxy(http.ProxyFromEnvironment)
	}

	if opts.Debug && opts.Logger != nil {
		attachDebugHook(client, opts.Logger)
	}
	return client, nil
}

// attachDebugHook registers an OnAfterResponse hook that logs the HTTP method,
// URL, and status code at DEBUG level.
func attachDebugHook(client *req.Client, logger *slog.Logger) {
	client.OnAfterResponse(func(_ *req.Client, resp *req.Response) error {
		if resp.Request == nil || resp.Request.RawRequest == nil || resp.Response == nil {
			return nil
		}
		logger.Debug("http response",
			"method", resp.Request.RawRequest.Method,
			"url", resp.Request.RawRequest.URL.String(),
			"status", resp.StatusCode,
		)
		return nil
	})
}

// validateProxy performs a basic check that the proxy URL has a recognised scheme.
func validateProxy(proxy string) error {
	for _, scheme := range []string{"http://", "https://", "socks5://"} {
		if strings.HasPrefix(proxy, scheme) {
			return nil
		}
	}
	return fmt.Errorf("proxy scheme must be http://, https://, or socks5://")
}
