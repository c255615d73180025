package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/raakeshmj/vpnshield/internal/apierr"
	"github.com/raakeshmj/vpnshield/internal/config"
	"github.com/raakeshmj/vpnshield/internal/limiter"
	"github.com/raakeshmj/vpnshield/internal/reliability"
)

const msgTooManyRequests = "Too many requests, please try again later."

// RateLimit is the global fixed-window limit per client identifier. The limit
// and window are read from cfgMgr on every request so admins can change them
// at runtime. Store failures follow strategy.
func RateLimit(l limiter.Limiter, cfgMgr *config.DynamicConfigManager, strategy reliability.FailureStrategy, log zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := cfgMgr.GetPolicy()
			key := "global:" + ClientID(r.Context())

			res, err := l.Allow(r.Context(), key, p.RateLimitMax, p.RateLimitWindow)
			if err != nil && !errors.Is(err, limiter.ErrRateLimitExceeded) {
				if reliability.ShouldAllow(strategy, err) {
					log.Warn().Err(err).Msg("rate limiter unavailable, failing open")
					next.ServeHTTP(w, r)
					return
				}
				reject(log, w, r, "ratelimit", apierr.Unavailable("Service temporarily unavailable", err))
				return
			}

			now := time.Now()
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				reject(log, w, r, "ratelimit", apierr.Lockout(msgTooManyRequests, res.RetryAfter(now), err))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuthRateLimit is the stricter limiter on authentication routes, keyed by
// client identifier. It applies to paths under prefix and sits in the outer
// chain, so requests later rejected as malformed or hostile still count.
func AuthRateLimit(prefix string, max int, window time.Duration, log zerolog.Logger) Middleware {
	limit := httprate.Limit(max, window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return "auth:" + ClientID(r.Context()), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			retry := window
			if secs, err := strconv.Atoi(w.Header().Get("Retry-After")); err == nil {
				retry = time.Duration(secs) * time.Second
			}
			reject(log, w, r, "auth_ratelimit", apierr.Lockout("Too many authentication attempts, please try again later.", retry, nil))
		}),
	)
	return func(next http.Handler) http.Handler {
		limited := limit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, prefix) {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
