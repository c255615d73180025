package middleware

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/raakeshmj/vpnshield/internal/apierr"
)

var bodyMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// BodyLimit caps request payloads at maxBytes and requires a JSON content
// type on non-empty bodies. The body is buffered so later stages can re-read
// it.
func BodyLimit(maxBytes int64, log zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				reject(log, w, r, "bodylimit", apierr.TooLarge(fmt.Errorf("content-length %d", r.ContentLength)))
				return
			}

			var body []byte
			if r.Body != nil && r.Body != http.NoBody {
				var err error
				body, err = io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
				r.Body.Close()
				if err != nil {
					reject(log, w, r, "bodylimit", apierr.Validation("Could not read request body", err))
					return
				}
				if int64(len(body)) > maxBytes {
					reject(log, w, r, "bodylimit", apierr.TooLarge(fmt.Errorf("body exceeds %d bytes", maxBytes)))
					return
				}
			}

			if len(body) > 0 && bodyMethods[r.Method] {
				mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
				if err != nil || mt != "application/json" {
					reject(log, w, r, "bodylimit", apierr.UnsupportedMediaType(fmt.Errorf("content-type %q", r.Header.Get("Content-Type"))))
					return
				}
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			next.ServeHTTP(w, r)
		})
	}
}
