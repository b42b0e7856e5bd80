package metadata

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"

	"teller/pkg/requestcontext"
)

func TestResolverClientIP(t *testing.T) {
	proxies := NewResolver([]netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("::1/128"),
	})

	tests := []struct {
		name       string
		resolver   *Resolver
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "untrusted peer cannot spoof forwarded-for",
			resolver:   NewResolver(nil),
			remoteAddr: "198.51.100.9:4000",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:       "198.51.100.9",
		},
		{
			name:       "untrusted peer cannot spoof real ip",
			resolver:   proxies,
			remoteAddr: "198.51.100.9:4000",
			headers:    map[string]string{"X-Real-IP": "203.0.113.7"},
			want:       "198.51.100.9",
		},
		{
			name:       "trusted proxy forwards the client",
			resolver:   proxies,
			remoteAddr: "10.0.0.2:4000",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:       "203.0.113.7",
		},
		{
			name:       "right-most untrusted hop wins over a prepended value",
			resolver:   proxies,
			remoteAddr: "10.0.0.2:4000",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.7, 10.0.0.5"},
			want:       "203.0.113.7",
		},
		{
			name:       "trusted proxy with real ip only",
			resolver:   proxies,
			remoteAddr: "[::1]:53211",
			headers:    map[string]string{"X-Real-IP": "198.51.100.2"},
			want:       "198.51.100.2",
		},
		{
			name:       "trusted proxy without headers",
			resolver:   proxies,
			remoteAddr: "10.0.0.2:4000",
			want:       "10.0.0.2",
		},
		{
			name:       "remote addr port is stripped",
			resolver:   NewResolver(nil),
			remoteAddr: "[::1]:53211",
			want:       "::1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, tt.resolver.ClientIP(r))
		})
	}
}

func TestClientIPFromRequestIgnoresHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.10:4000"
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, "192.0.2.10", ClientIPFromRequest(r))
}

func TestClientMetadata(t *testing.T) {
	var gotIP, gotUA string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIP = requestcontext.ClientIP(r.Context())
		gotUA = requestcontext.UserAgent(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.10:4000"
	r.Header.Set("User-Agent", "tellerctl/1.0")
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "192.0.2.10", gotIP)
	assert.Equal(t, "tellerctl/1.0", gotUA)
}
