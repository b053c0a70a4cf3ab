package metadata

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"onboarding/pkg/requestcontext"
)

// ClientMetadata records the client IP and User-Agent on the request
// context. Forwarding headers are ignored; servers behind a proxy use a
// Resolver built with NewResolver instead.
func ClientMetadata(next http.Handler) http.Handler {
	return Resolver{}.Middleware(next)
}

// ClientIPFromRequest is the connection peer address, without the port.
func ClientIPFromRequest(r *http.Request) string {
	return Resolver{}.ClientIP(r)
}

// Resolver derives the client IP. X-Forwarded-For and X-Real-IP are only
// honoured when the connection peer is one of the trusted proxies, so a
// client cannot pick its own address.
type Resolver struct {
	trusted []netip.Prefix
}

// NewResolver accepts CIDRs ("10.0.0.0/8") and bare addresses ("10.0.0.1").
func NewResolver(trustedProxies []string) (Resolver, error) {
	var r Resolver
	for _, raw := range trustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return Resolver{}, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			r.trusted = append(r.trusted, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return Resolver{}, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		r.trusted = append(r.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return r, nil
}

func (res Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), res.ClientIP(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP walks X-Forwarded-For from the right, skipping trusted hops, and
// returns the first untrusted entry. Anything unparseable falls back to the
// peer address.
func (res Resolver) ClientIP(r *http.Request) string {
	peer := peerHost(r.RemoteAddr)
	if peer == "" {
		return "unknown"
	}
	if !res.isTrusted(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			addr, err := netip.ParseAddr(hop)
			if err != nil {
				return peer
			}
			if !res.isTrusted(hop) || i == 0 {
				return addr.Unmap().String()
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if addr, err := netip.ParseAddr(xri); err == nil {
			return addr.Unmap().String()
		}
	}
	return peer
}

func (res Resolver) isTrusted(host string) bool {
	if len(res.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range res.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func peerHost(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
