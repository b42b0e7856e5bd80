package metadata

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"teller/pkg/requestcontext"
)

// Resolver decides which address a request came from. Forwarding headers are
// only believed when the direct peer is one of the trusted proxies.
type Resolver struct {
	trusted []netip.Prefix
}

func NewResolver(trustedProxies []netip.Prefix) *Resolver {
	return &Resolver{trusted: trustedProxies}
}

// ClientMetadata records the caller IP and User-Agent in the request context.
// Apply it before rate limiting, which keys on the IP.
func (res *Resolver) ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), res.ClientIP(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientMetadata is the resolver without trusted proxies.
func ClientMetadata(next http.Handler) http.Handler {
	return NewResolver(nil).ClientMetadata(next)
}

// ClientIP returns the peer address, or for a trusted peer the right-most
// X-Forwarded-For hop that is not itself a trusted proxy.
func (res *Resolver) ClientIP(r *http.Request) string {
	peer := remoteHost(r)
	if !res.isTrusted(peer) {
		return peer
	}

	// X-Forwarded-For: client, proxy1, proxy2
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !res.isTrusted(hop) {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

// ClientIPFromRequest resolves the direct peer address and ignores forwarding headers.
func ClientIPFromRequest(r *http.Request) string {
	return remoteHost(r)
}

func (res *Resolver) isTrusted(ip string) bool {
	if len(res.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range res.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
