package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

const clientIPKey ctxKey = "client_ip"

// trustedProxies are the peers allowed to speak for the client through
// X-Forwarded-For and X-Real-IP. With none configured every forwarding
// header is ignored.
type trustedProxies []netip.Prefix

// parseTrustedProxies accepts IPs and CIDRs. Bad entries are reported
// together; the good ones are still returned.
func parseTrustedProxies(entries []string) (trustedProxies, error) {
	var (
		out  trustedProxies
		errs []error
	)
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(e)
		if err != nil {
			errs = append(errs, fmt.Errorf("trusted proxy %q: %w", e, err))
			continue
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, errors.Join(errs...)
}

func (tp trustedProxies) trusts(a netip.Addr) bool {
	a = a.Unmap()
	for _, p := range tp {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// resolve picks the client address for r. Forwarding headers only count
// when the TCP peer is trusted; X-Forwarded-For is read right to left and
// the first hop that is not a trusted proxy wins.
func (tp trustedProxies) resolve(r *http.Request) string {
	peer := remoteHost(r)
	peerAddr, err := netip.ParseAddr(peer)
	if err != nil || !tp.trusts(peerAddr) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		client := peerAddr.Unmap()
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			client = hop.Unmap()
			if !tp.trusts(client) {
				break
			}
		}
		return client.String()
	}

	if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xri.Unmap().String()
	}
	return peer
}

// middleware resolves the client address once and stores it for the
// logging, audit and rate limiting layers.
func (tp trustedProxies) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), clientIPKey, tp.resolve(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// getClientIP returns the resolved client address, or the TCP peer when
// the request did not pass through the middleware.
func getClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
