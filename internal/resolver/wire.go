package resolver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/tbckr/posture/internal/apperr"
)

const resolvConf = "/etc/resolv.conf"

// Wire queries a single nameserver directly with miekg/dns.
type Wire struct {
	Client *dns.Client
	// Server is host:port.
	Server string
	// Dial, when set, opens the TCP connection used for every exchange (SOCKS5 tunnelling).
	Dial dialFunc
}

// NewWire returns a Wire client for server (host or host:port). An empty server uses the
// first nameserver of /etc/resolv.conf. A socks5:// proxyURL forces TCP through the proxy.
func NewWire(server, proxyURL string) (*Wire, error) {
	if server == "" {
		cfg, err := dns.ClientConfigFromFile(resolvConf)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", resolvConf, err)
		}
		if len(cfg.Servers) == 0 {
			return nil, fmt.Errorf("%w: no nameserver in %s", apperr.ErrInvalidInput, resolvConf)
		}
		server = net.JoinHostPort(cfg.Servers[0], cfg.Port)
	} else if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	w := &Wire{
		Client: &dns.Client{Timeout: 5 * time.Second},
		Server: server,
	}
	if strings.HasPrefix(proxyURL, "socks5://") {
		dial, err := socksDialer(proxyURL)
		if err != nil {
			return nil, err
		}
		w.Client.Net = "tcp"
		w.Dial = dial
	}
	return w, nil
}

// Resolve implements RecordResolver.
func (w *Wire) Resolve(ctx context.Context, name, rtype string) ([]string, error) {
	qtype, err := recordType(rtype)
	if err != nil {
		return nil, err
	}
	m := newQuery(name, qtype)

	var in *dns.Msg
	if w.Dial != nil {
		conn, derr := w.Dial(ctx, "tcp", w.Server)
		if derr != nil {
			return nil, fmt.Errorf("%w: dialing %s: %w", apperr.ErrRequestFailed, w.Server, derr)
		}
		defer conn.Close()
		in, _, err = w.Client.ExchangeWithConnContext(ctx, m, &dns.Conn{Conn: conn})
	} else {
		in, _, err = w.Client.ExchangeContext(ctx, m, w.Server)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s via %s: %w", apperr.ErrRequestFailed, name, rtype, w.Server, err)
	}
	if in.Truncated && w.Client.Net != "tcp" {
		tcp := *w.Client
		tcp.Net = "tcp"
		if in, _, err = tcp.ExchangeContext(ctx, m, w.Server); err != nil {
			return nil, fmt.Errorf("%w: %s %s via %s (tcp): %w", apperr.ErrRequestFailed, name, rtype, w.Server, err)
		}
	}
	return answers(in, qtype)
}
