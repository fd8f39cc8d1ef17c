package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/imroc/req/v3"

	"github.com/tbckr/posture/internal/apperr"
	"github.com/tbckr/posture/internal/ledger"
	"github.com/tbckr/posture/internal/netpolicy"
)

// readChunk is the buffer size used while streaming response bodies.
const readChunk = 16 * 1024

// Admitter decides whether an HTTP attempt may leave the process. *netpolicy.Guard implements it.
type Admitter interface {
	EnforceHTTPRequest(ctx context.Context, method, rawURL string) (netpolicy.Category, error)
}

// Recorder appends ledger entries. *ledger.Ledger implements it.
type Recorder interface {
	Add(ctx context.Context, e ledger.Entry) ledger.Entry
}

// Waiter paces outbound sends. *ratelimit.Limiter implements it.
type Waiter interface {
	Wait(ctx context.Context) error
}

// AttemptObserver is told the duration of every attempt that reached the transport.
type AttemptObserver interface {
	ObserveAttempt(category netpolicy.Category, d time.Duration)
}

// GuardedOptions tunes retries and the byte cap.
type GuardedOptions struct {
	// Retries is the number of extra attempts after a transport failure.
	Retries int
	// Backoff is the base of the linear backoff between attempts.
	Backoff time.Duration
	// MaxResponseBytes aborts any body larger than this. Zero disables the cap.
	MaxResponseBytes int64
	Logger           *slog.Logger
	Observer         AttemptObserver
}

// Response is a fully read, size-checked HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string
	Category   netpolicy.Category
}

// IsSuccess reports whether the status code is 2xx.
func (r *Response) IsSuccess() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: decoding response from %s: %w", apperr.ErrRequestFailed, r.URL, err)
	}
	return nil
}

// Guarded executes HTTP operations through the guard, limiter and ledger.
// It is safe for concurrent use.
type Guarded struct {
	client  *req.Client
	guard   Admitter
	ledger  Recorder
	limiter Waiter
	opts    GuardedOptions
	logger  *slog.Logger
	now     func() time.Time
}

// NewGuarded wraps client. Every attempt made through the returned value is admitted by guard,
// paced by limiter and recorded in led.
func NewGuarded(client *req.Client, guard Admitter, led Recorder, limiter Waiter, opts GuardedOptions) *Guarded {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	return &Guarded{
		client:  client,
		guard:   guard,
		ledger:  led,
		limiter: limiter,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// Get issues a GET.
func (g *Guarded) Get(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	return g.Do(ctx, http.MethodGet, rawURL, nil, headers)
}

// Head issues a HEAD.
func (g *Guarded) Head(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	return g.Do(ctx, http.MethodHead, rawURL, nil, headers)
}

// Post issues a POST with body encoded as JSON.
func (g *Guarded) Post(ctx context.Context, rawURL string, body any, headers map[string]string) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request body: %w", apperr.ErrInvalidInput, err)
	}
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		h[k] = v
	}
	return g.Do(ctx, http.MethodPost, rawURL, payload, h)
}

// Do performs method against rawURL. Policy violations (including an oversized response) are
// returned as *netpolicy.Violation and never retried. Transport failures are retried up to
// Retries times with linear backoff; once exhausted the last failure is returned wrapped in
// apperr.ErrTransport. Each attempt is admitted separately and produces one ledger entry.
func (g *Guarded) Do(ctx context.Context, method, rawURL string, body []byte, headers map[string]string) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= g.opts.Retries; attempt++ {
		resp, err := g.attempt(ctx, method, rawURL, body, headers)
		if err == nil {
			return resp, nil
		}
		var v *netpolicy.Violation
		if errors.As(err, &v) || !retryable(ctx, err) {
			return nil, err
		}
		lastErr = err
		g.logger.Debug("http attempt failed", "method", method, "url", rawURL, "attempt", attempt, "error", err)
		if attempt < g.opts.Retries {
			if err := sleepCtx(ctx, backoffDelay(g.opts.Backoff, attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: %s %s failed after %d attempts: %w",
		apperr.ErrTransport, method, rawURL, g.opts.Retries+1, lastErr)
}

func (g *Guarded) attempt(ctx context.Context, method, rawURL string, body []byte, headers map[string]string) (*Response, error) {
	entry := ledger.Entry{
		Host:     hostOf(rawURL),
		URL:      rawURL,
		Method:   method,
		BytesOut: int64(len(body)),
	}

	category, err := g.guard.EnforceHTTPRequest(ctx, method, rawURL)
	entry.Category = category
	if err != nil {
		entry.Status = "blocked"
		entry.Error = err.Error()
		g.ledger.Add(ctx, entry)
		return nil, err
	}

	if err := g.limiter.Wait(ctx); err != nil {
		entry.Status = "failed"
		entry.Error = err.Error()
		g.ledger.Add(ctx, entry)
		return nil, err
	}

	start := g.now()
	r := g.client.R().SetContext(ctx).DisableAutoReadResponse()
	if headers != nil {
		r.SetHeaders(headers)
	}
	if body != nil {
		r.SetBodyBytes(body)
	}
	resp, err := r.Send(method, rawURL)
	if err != nil {
		entry.Status = "failed"
		entry.Error = err.Error()
		entry.DurationMS = g.since(start, category)
		g.ledger.Add(ctx, entry)
		return nil, err
	}
	defer resp.Body.Close()

	entry.Status = strconv.Itoa(resp.StatusCode)
	data, n, readErr := readCapped(resp.Body, g.opts.MaxResponseBytes)
	entry.BytesIn = n
	entry.DurationMS = g.since(start, category)
	if readErr != nil {
		entry.Error = readErr.Error()
		g.ledger.Add(ctx, entry)
		return nil, readErr
	}

	entry.Success = true
	g.ledger.Add(ctx, entry)
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
		URL:        rawURL,
		Category:   category,
	}, nil
}

func (g *Guarded) since(start time.Time, category netpolicy.Category) int64 {
	d := g.now().Sub(start)
	if g.opts.Observer != nil {
		g.opts.Observer.ObserveAttempt(category, d)
	}
	return d.Milliseconds()
}

// readCapped streams body in chunks. If the running total exceeds maxBytes (when positive) the
// transfer is abandoned and a response-size violation is returned along with the bytes read so far.
func readCapped(body io.Reader, maxBytes int64) ([]byte, int64, error) {
	var (
		buf   bytes.Buffer
		chunk = make([]byte, readChunk)
		total int64
	)
	for {
		n, err := body.Read(chunk)
		if n > 0 {
			total += int64(n)
			if maxBytes > 0 && total > maxBytes {
				return nil, total, netpolicy.NewViolation(netpolicy.RuleResponseSize,
					"response exceeded %d bytes", maxBytes)
			}
			buf.Write(chunk[:n])
		}
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), total, nil
		}
		if err != nil {
			return nil, total, err
		}
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return netpolicy.NormalizeHost(u.Hostname())
}
