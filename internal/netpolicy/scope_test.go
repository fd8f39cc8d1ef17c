package netpolicy_test

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tbckr/posture/internal/netpolicy"
)

func TestInScope(t *testing.T) {
	tests := []struct {
		host, domain string
		want         bool
	}{
		{"example.com", "example.com", true},
		{"www.example.com", "example.com", true},
		{"WWW.EXAMPLE.COM.", "example.com", true},
		{"deep.a.b.example.com", "example.com", true},
		{"evil.example", "example.com", false},
		{"badexample.com", "example.com", false},
		{"example.com.attacker.net", "example.com", false},
		{"", "example.com", false},
		{"example.com", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.host+"/"+tt.domain, func(t *testing.T) {
			assert.Equal(t, tt.want, netpolicy.InScope(tt.host, tt.domain))
		})
	}
}

func TestIsPublicAddr(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"93.184.216.34", true},
		{"8.8.8.8", true},
		{"2606:2800:220:1:248:1893:25c8:1946", true},
		{"127.0.0.1", false},
		{"10.0.0.1", false},
		{"172.31.255.255", false},
		{"192.168.1.1", false},
		{"169.254.169.254", false},
		{"100.64.0.1", false},
		{"0.0.0.0", false},
		{"224.0.0.1", false},
		{"192.0.2.10", false},
		{"::1", false},
		{"::", false},
		{"fe80::1", false},
		{"fc00::1", false},
		{"2001:db8::1", false},
		{"::ffff:10.0.0.1", false},
		{"::ffff:8.8.8.8", true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, netpolicy.IsPublicAddr(netip.MustParseAddr(tt.addr)))
		})
	}
	assert.False(t, netpolicy.IsPublicAddr(netip.Addr{}))
}
