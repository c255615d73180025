package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIdentity derives the client identifier used by the blocklist, rate
// limiters and attempt tracker. proxyHops is the number of trusted proxies in
// front of the gateway; zero ignores X-Forwarded-For entirely.
func ClientIdentity(proxyHops int) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, info := withInfo(r)
			info.ClientID = clientIP(r, proxyHops)
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP counts proxyHops entries back from the right of X-Forwarded-For.
// Proxies append, so everything left of that entry came from the client and
// is ignored.
func clientIP(r *http.Request, proxyHops int) string {
	if proxyHops > 0 {
		var hops []string
		for _, v := range r.Header.Values("X-Forwarded-For") {
			hops = append(hops, strings.Split(v, ",")...)
		}
		if i := len(hops) - proxyHops; i >= 0 {
			if ip := net.ParseIP(strings.TrimSpace(hops[i])); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
