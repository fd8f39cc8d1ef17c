package output_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tbckr/posture/internal/output"
)

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"clean string", "hello world", "hello world"},
		{"red color", "\x1b[31mred\x1b[0m", "red"},
		{"multiple sequences", "\x1b[1m\x1b[31merror\x1b[0m", "error"},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, output.StripANSI(tc.input))
		})
	}
}

func TestRedactHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")
	h.Set("Cookie", "sid=x")
	h.Add("Vary", "Accept")
	h.Add("Vary", "Origin")
	h.Set("Server", "\x1b[31mnginx\x1b[0m")

	got := output.RedactHeaders(h)
	assert.Equal(t, map[string]string{
		"authorization": output.Redacted,
		"set-cookie":    output.Redacted,
		"cookie":        output.Redacted,
		"vary":          "Accept, Origin",
		"server":        "nginx",
	}, got)
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, output.SortedKeys(map[string]int{"c": 1, "a": 2, "b": 3}))
}
