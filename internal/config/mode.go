package config

import (
	"strings"

	"github.com/tbckr/posture/internal/netpolicy"
)

// modeAliases are deprecated mode names kept for older config files and scripts.
var modeAliases = map[string]netpolicy.Mode{
	"enhanced": netpolicy.ModeLowNoise,
	"active":   netpolicy.ModeLowNoise,
}

func isModeAlias(s string) bool {
	_, ok := modeAliases[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// ParseMode resolves a mode name, including the deprecated aliases "enhanced" and "active"
// which map to low-noise. deprecated is true when an alias was used.
func ParseMode(s string) (mode netpolicy.Mode, deprecated bool, err error) {
	if m, ok := modeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m, true, nil
	}
	m, err := netpolicy.ParseMode(s)
	return m, false, err
}
