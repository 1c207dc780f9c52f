package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeWebsite(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "bare domain gets https", in: "example.com", want: "https://example.com"},
		{name: "surrounding whitespace", in: "  example.com  ", want: "https://example.com"},
		{name: "uppercase host folded", in: "HTTPS://Example.COM", want: "https://example.com"},
		{name: "explicit http preserved", in: "http://example.com", want: "http://example.com"},
		{name: "default https port stripped", in: "https://example.com:443/pricing", want: "https://example.com/pricing"},
		{name: "default http port stripped", in: "http://example.com:80", want: "http://example.com"},
		{name: "custom port kept", in: "https://example.com:8443", want: "https://example.com:8443"},
		{name: "fragment dropped", in: "https://example.com/about#team", want: "https://example.com/about"},
		{name: "query kept", in: "https://example.com/search?q=x", want: "https://example.com/search?q=x"},
		{name: "empty", in: "", wantErr: true},
		{name: "whitespace only", in: "   ", wantErr: true},
		{name: "unsupported scheme", in: "ftp://example.com", wantErr: true},
		{name: "no host", in: "https://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeWebsite(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeWebsiteIdempotent(t *testing.T) {
	first, err := NormalizeWebsite("Example.com:443/Pricing#x")
	require.NoError(t, err)

	second, err := NormalizeWebsite(first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSameHost(t *testing.T) {
	assert.True(t, SameHost("https://example.com", "https://example.com/pricing"))
	assert.True(t, SameHost("https://example.com", "https://EXAMPLE.com/about"))
	assert.False(t, SameHost("https://example.com", "https://blog.example.com/post"))
	assert.False(t, SameHost("https://example.com", "https://other.com"))
	assert.False(t, SameHost("https://example.com", "not a url \x7f"))
}
