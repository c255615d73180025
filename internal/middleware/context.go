package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/raakeshmj/vpnshield/internal/apierr"
	"github.com/raakeshmj/vpnshield/internal/auth"
	"github.com/raakeshmj/vpnshield/internal/detect"
)

type ContextKey string

const (
	UserContextKey     ContextKey = "user"
	requestInfoKey     ContextKey = "request_info"
	surfacesContextKey ContextKey = "raw_surfaces"
)

// requestInfo is shared by every stage of one request so the outer audit and
// metrics wrappers can see what the inner stages decided.
type requestInfo struct {
	ID        string
	ClientID  string
	Actor     string
	Rejection string
}

// withInfo returns r carrying a requestInfo, creating one if needed.
func withInfo(r *http.Request) (*http.Request, *requestInfo) {
	if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
		return r, info
	}
	info := &requestInfo{ID: uuid.NewString()}
	return r.WithContext(context.WithValue(r.Context(), requestInfoKey, info)), info
}

func infoFrom(ctx context.Context) *requestInfo {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		return info
	}
	return &requestInfo{}
}

// ClientID returns the identifier derived by ClientIdentity.
func ClientID(ctx context.Context) string {
	return infoFrom(ctx).ClientID
}

// RequestID returns the request's generated id.
func RequestID(ctx context.Context) string {
	return infoFrom(ctx).ID
}

// Claims returns the verified session claims, if any.
func Claims(ctx context.Context) (*auth.TokenClaims, bool) {
	c, ok := ctx.Value(UserContextKey).(*auth.TokenClaims)
	return c, ok
}

// RawSurfaces returns the request surfaces as decoded before sanitisation.
func RawSurfaces(ctx context.Context) []detect.Surface {
	s, _ := ctx.Value(surfacesContextKey).([]detect.Surface)
	return s
}

// reject logs the internal cause, marks the rejecting stage and writes the
// public error.
func reject(log zerolog.Logger, w http.ResponseWriter, r *http.Request, stage string, err error) {
	info := infoFrom(r.Context())
	info.Rejection = stage
	e := apierr.From(err)

	ev := log.Warn()
	if e.Status() >= 500 {
		ev = log.Error()
	}
	ev.Str("stage", stage).
		Str("request_id", info.ID).
		Str("client", info.ClientID).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", e.Status()).
		Err(err).
		Msg("request rejected")

	apierr.Write(w, e)
}
