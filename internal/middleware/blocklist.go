package middleware

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/raakeshmj/vpnshield/internal/apierr"
	"github.com/raakeshmj/vpnshield/internal/blocklist"
	"github.com/raakeshmj/vpnshield/internal/detect"
)

const msgAccessDenied = "Access denied"

// Blocklist refuses blocked client identifiers and known scanner user agents
// before any other processing. A failing lookup refuses the request.
func Blocklist(set blocklist.Set, log zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ClientID(r.Context())

			blocked, err := set.Contains(r.Context(), client)
			if err != nil {
				reject(log, w, r, "blocklist", apierr.Security(msgAccessDenied, err))
				return
			}
			if blocked {
				reject(log, w, r, "blocklist", apierr.Security(msgAccessDenied, errors.New("blocked client")))
				return
			}

			if d := detect.CheckUserAgent(r.UserAgent()); d.Blocked {
				reject(log, w, r, "blocklist", apierr.Security(msgAccessDenied, errors.New("suspicious user agent: "+d.Reason)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
