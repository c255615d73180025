package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/raakeshmj/vpnshield/internal/apierr"
)

// SecurityConfig options
type SecurityConfig struct {
	EnableReplayProtection bool
	ReplayWindow           time.Duration
}

var securityHeaders = map[string]string{
	"X-Content-Type-Options":       "nosniff",
	"X-Frame-Options":              "DENY",
	"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
	"Strict-Transport-Security":    "max-age=31536000; includeSubDomains",
	"Referrer-Policy":              "no-referrer",
	"Cross-Origin-Opener-Policy":   "same-origin",
	"Cross-Origin-Resource-Policy": "same-origin",
	"Cache-Control":                "no-store",
}

// Headers that reveal the server stack.
var fingerprintHeaders = []string{"Server", "X-Powered-By"}

// scrubWriter strips fingerprinting headers however late a handler sets them.
type scrubWriter struct {
	http.ResponseWriter
	scrubbed bool
}

func (s *scrubWriter) scrub() {
	if s.scrubbed {
		return
	}
	s.scrubbed = true
	for _, h := range fingerprintHeaders {
		s.Header().Del(h)
	}
}

func (s *scrubWriter) WriteHeader(code int) {
	s.scrub()
	s.ResponseWriter.WriteHeader(code)
}

func (s *scrubWriter) Write(b []byte) (int, error) {
	s.scrub()
	return s.ResponseWriter.Write(b)
}

func (s *scrubWriter) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func SecureHeaders(cfg SecurityConfig, log zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, v := range securityHeaders {
				w.Header().Set(k, v)
			}
			w = &scrubWriter{ResponseWriter: w}

			// Replay protection (optional)
			if cfg.EnableReplayProtection {
				ts := r.Header.Get("X-Timestamp")
				if ts == "" {
					reject(log, w, r, "replay", apierr.Validation("Missing X-Timestamp header", nil))
					return
				}

				reqTime, err := strconv.ParseInt(ts, 10, 64)
				if err != nil {
					reject(log, w, r, "replay", apierr.Validation("Invalid X-Timestamp header", err))
					return
				}

				now := time.Now().Unix()
				if math.Abs(float64(now-reqTime)) > cfg.ReplayWindow.Seconds() {
					reject(log, w, r, "replay", apierr.Security("Request timestamp skewed",
						fmt.Errorf("server %d, request %d", now, reqTime)))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
