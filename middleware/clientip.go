package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/viridial/authcore"
)

// IPResolver derives the caller address of a request. Forwarding headers are
// read only when the direct peer is one of the trusted proxies. A nil
// *IPResolver trusts nobody.
type IPResolver struct {
	trusted []netip.Prefix
}

// NewIPResolver trusts the given proxies, each a CIDR or a bare address.
func NewIPResolver(proxies ...string) (*IPResolver, error) {
	res := &IPResolver{}
	for _, raw := range proxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			res.trusted = append(res.trusted, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		res.trusted = append(res.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return res, nil
}

func (res *IPResolver) trusts(addr netip.Addr) bool {
	if res == nil || !addr.IsValid() {
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

// ClientIP returns the peer address, or, when the peer is a trusted proxy,
// the nearest untrusted X-Forwarded-For hop, then X-Real-IP.
func (res *IPResolver) ClientIP(r *http.Request) string {
	peer := peerHost(r)
	addr, err := netip.ParseAddr(peer)
	if err != nil || !res.trusts(addr) {
		return peer
	}

	if fwd := r.Header.Get("X-Forwarded-For"); strings.TrimSpace(fwd) != "" {
		if ip, ok := res.forwardedFor(fwd); ok {
			return ip
		}
		return peer
	}
	if realIP, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return realIP.Unmap().String()
	}
	return peer
}

// forwardedFor walks the hops right to left, skipping trusted proxies. A
// malformed hop ends the walk.
func (res *IPResolver) forwardedFor(header string) (string, bool) {
	hops := strings.Split(header, ",")
	var last netip.Addr
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		last = addr.Unmap()
		if !res.trusts(last) {
			return last.String(), true
		}
	}
	if last.IsValid() {
		return last.String(), true
	}
	return "", false
}

// ClientContext copies the caller address and User-Agent into the request
// context so sign-in can record them.
func (res *IPResolver) ClientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := authcore.WithClientIP(r.Context(), res.ClientIP(r))
		if ua := r.UserAgent(); ua != "" {
			ctx = authcore.WithUserAgent(ctx, ua)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP is the connection's peer host. Forwarding headers are ignored.
func ClientIP(r *http.Request) string {
	return peerHost(r)
}

// ClientContext is IPResolver.ClientContext without trusted proxies.
func ClientContext(next http.Handler) http.Handler {
	return (*IPResolver)(nil).ClientContext(next)
}

func peerHost(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return host
	}
	if remote == "" {
		return "unknown"
	}
	return remote
}
