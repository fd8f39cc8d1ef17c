package resolver

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"

	"github.com/tbckr/posture/internal/apperr"
)

// recordType maps a record type name to its numeric code.
func recordType(name string) (uint16, error) {
	t, ok := dns.StringToType[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown DNS record type %q", apperr.ErrInvalidInput, name)
	}
	return t, nil
}

// newQuery builds a recursive query message for name and qtype.
func newQuery(name string, qtype uint16) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true
	return m
}

// answers renders every answer RR of the requested type. CNAME chains are skipped unless
// the CNAME itself was asked for.
func answers(m *dns.Msg, qtype uint16) ([]string, error) {
	switch m.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return []string{}, nil
	default:
		return nil, fmt.Errorf("%w: server answered %s", apperr.ErrRequestFailed, dns.RcodeToString[m.Rcode])
	}
	out := []string{}
	for _, rr := range m.Answer {
		if rr.Header().Rrtype != qtype {
			continue
		}
		if s, ok := renderRR(rr); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// renderRR returns the value part of rr in presentation format.
func renderRR(rr dns.RR) (string, bool) {
	switch v := rr.(type) {
	case *dns.A:
		return v.A.String(), true
	case *dns.AAAA:
		return v.AAAA.String(), true
	case *dns.NS:
		return v.Ns, true
	case *dns.MX:
		return fmt.Sprintf("%d %s", v.Preference, v.Mx), true
	case *dns.CNAME:
		return v.Target, true
	case *dns.PTR:
		return v.Ptr, true
	case *dns.SOA:
		return fmt.Sprintf("%s %s %d %d %d %d %d", v.Ns, v.Mbox, v.Serial, v.Refresh, v.Retry, v.Expire, v.Minttl), true
	case *dns.SRV:
		return fmt.Sprintf("%d %d %d %s", v.Priority, v.Weight, v.Port, v.Target), true
	case *dns.TXT:
		return strings.Join(v.Txt, ""), true
	case *dns.CAA:
		return fmt.Sprintf("%d %s %q", v.Flag, v.Tag, v.Value), true
	case *dns.DNSKEY:
		return fmt.Sprintf("%d %d %d %s", v.Flags, v.Protocol, v.Algorithm, v.PublicKey), true
	case *dns.SSHFP:
		return fmt.Sprintf("%d %d %s", v.Algorithm, v.Type, v.FingerPrint), true
	default:
		return "", false
	}
}
