package middleware

import (
	"net/http"
	"time"

	"github.com/raakeshmj/vpnshield/internal/audit"
)

// AuditMiddleware records one entry per request. It must be the outermost
// stage so rejections by every inner stage are captured.
func AuditMiddleware(logger audit.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			r, info := withInfo(r)

			rw := newInterceptor(w)
			next.ServeHTTP(rw, r)

			actorID := "anonymous"
			if info.Actor != "" {
				actorID = info.Actor
			}

			logger.Log(audit.LogEntry{
				Timestamp: start,
				RequestID: info.ID,
				ClientID:  info.ClientID,
				ActorID:   actorID,
				Action:    r.Method + " " + r.URL.Path,
				Resource:  r.URL.Path,
				Status:    rw.statusCode,
				Rejection: info.Rejection,
				Duration:  time.Since(start),
				Metadata: map[string]interface{}{
					"remote_addr": r.RemoteAddr,
					"user_agent":  r.UserAgent(),
				},
			})
		})
	}
}
