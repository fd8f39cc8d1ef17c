package output

import (
	"net/http"
	"regexp"
	"sort"
	"strings"
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes ANSI escape sequences from external data before terminal output.
func StripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// Redacted replaces the value of credential-bearing headers.
const Redacted = "[redacted]"

var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
}

// RedactHeaders flattens h into lowercase keys with comma-joined values. Credential headers
// are replaced with Redacted and the remaining values are stripped of ANSI escapes.
func RedactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		key := strings.ToLower(k)
		if sensitiveHeaders[key] {
			out[key] = Redacted
			continue
		}
		out[key] = StripANSI(strings.Join(vs, ", "))
	}
	return out
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
