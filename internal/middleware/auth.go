package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/raakeshmj/vpnshield/internal/apierr"
	"github.com/raakeshmj/vpnshield/internal/auth"
	"github.com/raakeshmj/vpnshield/internal/authz"
)

// TokenVerifier checks a session token.
type TokenVerifier interface {
	Verify(token string) (*auth.TokenClaims, error)
}

// Auth verifies the bearer token. Routes whose policy does not require a
// session are served anonymously when the token is missing or invalid.
func Auth(verifier TokenVerifier, log zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			required := GetPolicy(r.Context()).Rules.AuthRequired

			tokenStr, ok := bearerToken(r)
			if !ok {
				if required {
					reject(log, w, r, "auth", apierr.Authentication("Authentication required", nil))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verifier.Verify(tokenStr)
			if err != nil {
				if required {
					reject(log, w, r, "auth", apierr.Authentication("Invalid or expired token", err))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			infoFrom(r.Context()).Actor = claims.Email
			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}

// Authorize enforces the policy's minimum role and plan against the session.
func Authorize(log zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rules := GetPolicy(r.Context()).Rules
			if rules.MinRole == "" && rules.MinPlan == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, ok := Claims(r.Context())
			if !ok {
				reject(log, w, r, "authorize", apierr.Authentication("Authentication required", nil))
				return
			}
			if rules.MinRole != "" {
				if err := authz.RequireRole(authz.Role(claims.Role), rules.MinRole); err != nil {
					reject(log, w, r, "authorize", apierr.Forbidden(err))
					return
				}
			}
			if rules.MinPlan != "" {
				if err := authz.RequirePlan(authz.Plan(claims.Plan), rules.MinPlan); err != nil {
					reject(log, w, r, "authorize", apierr.UpgradeRequired(string(rules.MinPlan), claims.Plan, err))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
