package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/imroc/req/v3"
	"golang.org/x/net/proxy"

	"github.com/tbckr/posture/internal/apperr"
)

// Transport kinds accepted by New.
const (
	KindSystem = "system"
	KindWire   = "wire"
	KindDoH    = "doh"
)

// RecordResolver resolves one record type for a name into presentation-format values.
// A name that does not exist yields an empty slice and no error.
type RecordResolver interface {
	Resolve(ctx context.Context, name, recordType string) ([]string, error)
}

// New returns the transport named by kind. nameserver is the host:port for "wire" (empty reads
// /etc/resolv.conf) and the endpoint URL for "doh" (empty uses Quad9). proxyURL applies to
// "system" and "wire"; "doh" inherits the proxy of httpClient.
func New(kind, nameserver, proxyURL string, httpClient *req.Client) (RecordResolver, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindSystem:
		r, err := NewSystem(proxyURL)
		if err != nil {
			return nil, err
		}
		return &System{Resolver: r}, nil
	case KindWire:
		return NewWire(nameserver, proxyURL)
	case KindDoH:
		if httpClient == nil {
			return nil, fmt.Errorf("%w: doh resolver needs an HTTP client", apperr.ErrInvalidInput)
		}
		return &DoH{Client: httpClient, Endpoint: nameserver}, nil
	default:
		return nil, fmt.Errorf("%w: unknown resolver %q: must be one of system, wire, doh", apperr.ErrInvalidInput, kind)
	}
}

// NewSystem returns a *net.Resolver appropriate for the given proxy URL.
//
// When proxyURL is empty or its scheme is not "socks5", the standard system
// resolver is returned (nil Dial field, so Go uses the platform resolver).
//
// When proxyURL is a socks5:// URL, DNS queries are tunnelled through the
// SOCKS5 proxy using DNS-over-TCP, preventing DNS leaks to the local ISP.
func NewSystem(proxyURL string) (*net.Resolver, error) {
	if proxyURL == "" || !strings.HasPrefix(proxyURL, "socks5://") {
		return &net.Resolver{}, nil
	}
	dial, err := socksDialer(proxyURL)
	if err != nil {
		return nil, err
	}
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, _, address string) (net.Conn, error) {
			return dial(ctx, "tcp", address)
		},
	}, nil
}

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

func socksDialer(proxyURL string) (dialFunc, error) {
	host := strings.TrimPrefix(proxyURL, "socks5://")
	dialer, err := proxy.SOCKS5("tcp", host, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("creating SOCKS5 dialer for DNS: %w", err)
	}
	// proxy.SOCKS5 returns a ContextDialer; type-assert to get DialContext.
	ctxDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer does not implement ContextDialer")
	}
	return ctxDialer.DialContext, nil
}

// System resolves through a *net.Resolver. It supports A, AAAA, MX, NS, TXT, CNAME and PTR.
type System struct {
	Resolver *net.Resolver
}

// Resolve implements RecordResolver.
func (s *System) Resolve(ctx context.Context, name, recordType string) ([]string, error) {
	r := s.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	var (
		out []string
		err error
	)
	switch strings.ToUpper(recordType) {
	case "A", "AAAA":
		network := "ip4"
		if strings.EqualFold(recordType, "AAAA") {
			network = "ip6"
		}
		var ips []net.IP
		ips, err = r.LookupIP(ctx, network, name)
		for _, ip := range ips {
			out = append(out, ip.String())
		}
	case "MX":
		var mxs []*net.MX
		mxs, err = r.LookupMX(ctx, name)
		for _, mx := range mxs {
			out = append(out, fmt.Sprintf("%d %s", mx.Pref, mx.Host))
		}
	case "NS":
		var nss []*net.NS
		nss, err = r.LookupNS(ctx, name)
		for _, ns := range nss {
			out = append(out, ns.Host)
		}
	case "TXT":
		out, err = r.LookupTXT(ctx, name)
	case "CNAME":
		var cname string
		cname, err = r.LookupCNAME(ctx, name)
		if cname != "" {
			out = []string{cname}
		}
	case "PTR":
		out, err = r.LookupAddr(ctx, name)
	default:
		return nil, fmt.Errorf("%w: record type %q not supported by the system resolver", apperr.ErrInvalidInput, recordType)
	}
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %s %s: %w", apperr.ErrRequestFailed, name, recordType, err)
	}
	sort.Strings(out)
	return out, nil
}
