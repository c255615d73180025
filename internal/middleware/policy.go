package middleware

import (
	"context"
	"net/http"

	"github.com/raakeshmj/vpnshield/internal/policy"
)

const PolicyContextKey ContextKey = "policy"

// PolicyEnforcer evaluates the request and attaches the policy to context.
// Unmatched routes get policy.Default, which requires a session.
func PolicyEnforcer(engine *policy.Engine) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := engine.Evaluate(r)
			ctx := context.WithValue(r.Context(), PolicyContextKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPolicy returns the policy attached by PolicyEnforcer, or the default.
func GetPolicy(ctx context.Context) *policy.Policy {
	if p, ok := ctx.Value(PolicyContextKey).(*policy.Policy); ok {
		return p
	}
	d := policy.Default
	return &d
}
