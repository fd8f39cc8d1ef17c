package netpolicy_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/posture/internal/netpolicy"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input    string
		expected netpolicy.Mode
	}{
		{"passive", netpolicy.ModePassive},
		{"PASSIVE", netpolicy.ModePassive},
		{"low-noise", netpolicy.ModeLowNoise},
		{"  Low-Noise  ", netpolicy.ModeLowNoise},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := netpolicy.ParseMode(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseMode_Invalid(t *testing.T) {
	for _, bad := range []string{"", "active", "enhanced", "low_noise", "loud"} {
		_, err := netpolicy.ParseMode(bad)
		require.Error(t, err, "expected error for %q", bad)
		assert.Contains(t, err.Error(), "unknown mode")
	}
}

func TestParseDNSPolicy(t *testing.T) {
	tests := []struct {
		input    string
		expected netpolicy.DNSPolicy
	}{
		{"none", netpolicy.DNSNone},
		{"Minimal", netpolicy.DNSMinimal},
		{"FULL", netpolicy.DNSFull},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := netpolicy.ParseDNSPolicy(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := netpolicy.ParseDNSPolicy("some")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown DNS policy")
}

func TestString(t *testing.T) {
	assert.Equal(t, "passive", netpolicy.ModePassive.String())
	assert.Equal(t, "low-noise", netpolicy.ModeLowNoise.String())
	assert.Equal(t, "none", netpolicy.DNSNone.String())
	assert.Equal(t, "minimal", netpolicy.DNSMinimal.String())
	assert.Equal(t, "full", netpolicy.DNSFull.String())
	assert.Equal(t, "mode(9)", netpolicy.Mode(9).String())
}

func TestTextMarshaling(t *testing.T) {
	snap := struct {
		Mode netpolicy.Mode      `json:"mode"`
		DNS  netpolicy.DNSPolicy `json:"dns"`
	}{netpolicy.ModeLowNoise, netpolicy.DNSFull}

	b, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"low-noise","dns":"full"}`, string(b))

	var back struct {
		Mode netpolicy.Mode      `json:"mode"`
		DNS  netpolicy.DNSPolicy `json:"dns"`
	}
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, snap.Mode, back.Mode)
	assert.Equal(t, snap.DNS, back.DNS)

	require.Error(t, json.Unmarshal([]byte(`{"mode":"active"}`), &back))
	_, err = netpolicy.Mode(5).MarshalText()
	require.Error(t, err)
}
