package resolver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/imroc/req/v3"
	"github.com/miekg/dns"

	"github.com/tbckr/posture/internal/apperr"
)

// DefaultDoHEndpoint is the Quad9 DNS-over-HTTPS endpoint.
const DefaultDoHEndpoint = "https://dns.quad9.net/dns-query"

// DoH resolves over DNS-over-HTTPS using RFC 8484 wire format.
type DoH struct {
	Client   *req.Client
	Endpoint string
}

// Resolve implements RecordResolver. The query is sent as the base64url "dns" query parameter.
func (d *DoH) Resolve(ctx context.Context, name, rtype string) ([]string, error) {
	qtype, err := recordType(rtype)
	if err != nil {
		return nil, err
	}
	m := newQuery(name, qtype)
	// RFC 8484 §4.1: use ID 0 for cache friendliness.
	m.Id = 0
	packed, err := m.Pack()
	if err != nil {
		return nil, fmt.Errorf("%w: packing query for %q type %s: %w", apperr.ErrRequestFailed, name, rtype, err)
	}

	endpoint := d.Endpoint
	if endpoint == "" {
		endpoint = DefaultDoHEndpoint
	}
	httpResp, err := d.Client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/dns-message").
		SetQueryParam("dns", base64.RawURLEncoding.EncodeToString(packed)).
		Get(endpoint)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: doh request error for %q type %s: %w", apperr.ErrRequestFailed, name, rtype, err)
	}
	if !httpResp.IsSuccessState() {
		return nil, fmt.Errorf("%w: doh endpoint returned HTTP %d for %q type %s", apperr.ErrRequestFailed, httpResp.StatusCode, name, rtype)
	}

	in := new(dns.Msg)
	if err := in.Unpack(httpResp.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: parsing DNS response: %w", apperr.ErrRequestFailed, err)
	}
	return answers(in, qtype)
}
