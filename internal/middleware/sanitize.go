package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/raakeshmj/vpnshield/internal/apierr"
	"github.com/raakeshmj/vpnshield/internal/detect"
	"github.com/raakeshmj/vpnshield/internal/sanitize"
)

// Sanitize replaces the body, query and path parameters with their
// sanitized equivalents. It must run after route matching so mux.Vars is
// populated. The decoded input as received is kept in the context for Detect.
func Sanitize(log zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var surfaces []detect.Surface

			raw, err := io.ReadAll(r.Body)
			if err != nil {
				reject(log, w, r, "sanitize", apierr.Validation("Could not read request body", err))
				return
			}
			if len(bytes.TrimSpace(raw)) > 0 {
				body, err := sanitize.FromJSON(raw)
				if err != nil {
					reject(log, w, r, "sanitize", apierr.Validation("Malformed JSON body", err))
					return
				}
				surfaces = append(surfaces, detect.Surface{Name: "body", Value: body})

				clean, err := json.Marshal(sanitize.Sanitize(body))
				if err != nil {
					reject(log, w, r, "sanitize", apierr.Internal(err))
					return
				}
				raw = clean
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))
			r.ContentLength = int64(len(raw))

			query := sanitize.FromQuery(r.URL.Query())
			surfaces = append(surfaces, detect.Surface{Name: "query", Value: query})
			r.URL.RawQuery = sanitize.ToQuery(sanitize.Sanitize(query)).Encode()

			if vars := mux.Vars(r); len(vars) > 0 {
				params := sanitize.FromStrings(vars)
				surfaces = append(surfaces, detect.Surface{Name: "params", Value: params})
				r = mux.SetURLVars(r, sanitize.ToStrings(sanitize.Sanitize(params)))
			}

			ctx := context.WithValue(r.Context(), surfacesContextKey, surfaces)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Detect blocks requests whose raw input matches an injection pattern. The
// class, pattern and location are logged; the client sees one generic error.
func Detect(d *detect.Detector, log zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dec := d.Inspect(RawSurfaces(r.Context())...)
			if dec.Blocked {
				log.Warn().
					Str("client", ClientID(r.Context())).
					Str("class", string(dec.Class)).
					Str("pattern", dec.Reason).
					Str("location", dec.Path).
					Msg("injection attempt")
				reject(log, w, r, "detect", apierr.InvalidInput(nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
