package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/posture/internal/apperr"
	"github.com/tbckr/posture/internal/validate"
)

func TestIsDomain(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"example.com", true},
		{"a.b.example.co.uk", true},
		{"xn--bcher-kva.example", true},
		{"", false},
		{"localhost", false},
		{"has space.com", false},
		{"-bad.example.com", false},
		{"bad..example.com", false},
		{"$(injection).com", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, validate.IsDomain(tt.in))
		})
	}
}

func TestDomain(t *testing.T) {
	got, err := validate.Domain("  Example.COM. ")
	require.NoError(t, err)
	assert.Equal(t, "example.com", got)

	_, err = validate.Domain("not_a_domain")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestCleanSubdomains_NormalizesAndCounts(t *testing.T) {
	got := validate.CleanSubdomains([]string{
		"*.a.example.com",
		"foo.example.com",
		"FOO.example.com.",
		"bad..example.com",
		"other.org",
		"",
	}, "example.com")

	assert.Equal(t, []string{"a.example.com", "foo.example.com"}, got.Names)
	assert.Equal(t, 1, got.RemovedWildcards)
	assert.Equal(t, 2, got.Invalid)
	assert.Equal(t, 5, got.Seen)
}

func TestCleanSubdomains_WildcardApex(t *testing.T) {
	got := validate.CleanSubdomains([]string{"*.Example.com", "invalid..com"}, "example.com")
	assert.Equal(t, []string{"example.com"}, got.Names)
}

func TestCleanSubdomains_Empty(t *testing.T) {
	got := validate.CleanSubdomains(nil, "example.com")
	assert.NotNil(t, got.Names)
	assert.Empty(t, got.Names)
}
