package middleware

import (
	"net/http"
	"time"

	"github.com/raakeshmj/vpnshield/internal/metrics"
)

func MetricsMiddleware(collector *metrics.MetricsCollector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			r, info := withInfo(r)

			rw := newInterceptor(w)
			next.ServeHTTP(rw, r)

			collector.Record(time.Since(start), rw.statusCode)
			if info.Rejection != "" {
				collector.RecordRejection(info.Rejection)
			}
		})
	}
}
