package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raakeshmj/vpnshield/internal/blocklist"
	"github.com/raakeshmj/vpnshield/internal/cache"
	"github.com/raakeshmj/vpnshield/internal/config"
	"github.com/raakeshmj/vpnshield/internal/limiter"
	"github.com/raakeshmj/vpnshield/internal/reliability"
)

var nopLog = zerolog.Nop()

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
})

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler, mark("a"), mark("b"), mark("c"))
	serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestClientIdentity(t *testing.T) {
	var got string
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientID(r.Context())
	})

	tests := []struct {
		name string
		hops int
		xff  []string
		want string
	}{
		{"header ignored without a trusted proxy", 0, []string{"203.0.113.9, 10.0.0.1"}, "198.51.100.7"},
		{"one hop takes the right-most entry", 1, []string{"203.0.113.9, 10.0.0.1"}, "10.0.0.1"},
		{"two hops", 2, []string{"203.0.113.9, 10.0.0.1"}, "203.0.113.9"},
		{"repeated headers are one list", 2, []string{"6.6.6.6", "203.0.113.9, 10.0.0.1"}, "203.0.113.9"},
		{"fewer entries than hops", 3, []string{"203.0.113.9, 10.0.0.1"}, "198.51.100.7"},
		{"unparseable entry", 1, []string{"garbage"}, "198.51.100.7"},
		{"no header", 1, nil, "198.51.100.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "198.51.100.7:4321"
			for _, v := range tt.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			serve(ClientIdentity(tt.hops)(capture), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClientIdentity_SpoofedLeftEntriesShareOneID(t *testing.T) {
	ids := map[string]bool{}
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids[ClientID(r.Context())] = true
	})
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d, 192.0.2.50", i))
		serve(ClientIdentity(1)(capture), req)
	}
	assert.Equal(t, map[string]bool{"192.0.2.50": true}, ids)
}

func TestSecureHeaders(t *testing.T) {
	leaky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "nginx/1.2")
		w.Header().Set("X-Powered-By", "Express")
		w.WriteHeader(http.StatusOK)
	})

	rec := serve(SecureHeaders(SecurityConfig{}, nopLog)(leaky), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'none'; frame-ancestors 'none'", rec.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("Server"))
	assert.Empty(t, rec.Header().Get("X-Powered-By"))
}

func TestSecureHeaders_ReplayProtection(t *testing.T) {
	h := SecureHeaders(SecurityConfig{EnableReplayProtection: true, ReplayWindow: time.Minute}, nopLog)(okHandler)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Timestamp", "1000")
	rec = serve(h, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"), "rejections still carry security headers")
}

type failingSet struct{}

func (failingSet) Contains(context.Context, string) (bool, error) { return false, errors.New("down") }
func (failingSet) Add(context.Context, string) error              { return errors.New("down") }
func (failingSet) Remove(context.Context, string) error           { return errors.New("down") }
func (failingSet) List(context.Context) ([]string, error)         { return nil, errors.New("down") }

func TestBlocklist(t *testing.T) {
	set := blocklist.NewMemorySet("203.0.113.66")
	h := Chain(okHandler, ClientIdentity(0), Blocklist(set, nopLog))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.66:1000"
	rec := serve(h, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Access denied", errorBody(t, rec)["error"])

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.1:1000"
	assert.Equal(t, http.StatusOK, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "sqlmap/1.7.2#stable (https://sqlmap.org)")
	rec = serve(h, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Access denied", errorBody(t, rec)["error"])
}

func TestBlocklist_LookupFailureDenies(t *testing.T) {
	h := Chain(okHandler, ClientIdentity(0), Blocklist(failingSet{}, nopLog))
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example.com"}, nopLog)(okHandler)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "no origin passes")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = serve(h, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Origin not allowed", errorBody(t, rec)["error"])
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec = serve(h, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec = serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, int, time.Duration) (limiter.Result, error) {
	return limiter.Result{}, errors.New("connection refused")
}

func TestRateLimit(t *testing.T) {
	cfgMgr := config.NewDynamicConfigManager(config.PolicyConfig{RateLimitMax: 2, RateLimitWindow: time.Minute})
	l := limiter.NewMemoryLimiter(cache.NewMemoryCache())
	h := Chain(okHandler, ClientIdentity(0), RateLimit(l, cfgMgr, reliability.FailClosed, nopLog))

	newReq := func(addr string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		return req
	}

	for i := 0; i < 2; i++ {
		rec := serve(h, newReq("192.0.2.1:1"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := serve(h, newReq("192.0.2.1:1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := errorBody(t, rec)
	assert.Equal(t, "Too many requests, please try again later.", body["error"])
	assert.Equal(t, "1 minutes", body["retryAfter"])
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, serve(h, newReq("192.0.2.2:1")).Code, "other clients unaffected")

	// Raising the limit takes effect on the next request.
	require.NoError(t, cfgMgr.UpdatePolicy(config.PolicyConfig{RateLimitMax: 10, RateLimitWindow: time.Minute}))
	assert.Equal(t, http.StatusOK, serve(h, newReq("192.0.2.1:1")).Code)
}

func TestRateLimit_StoreFailure(t *testing.T) {
	cfgMgr := config.NewDynamicConfigManager(config.PolicyConfig{RateLimitMax: 2, RateLimitWindow: time.Minute})

	closed := RateLimit(brokenLimiter{}, cfgMgr, reliability.FailClosed, nopLog)(okHandler)
	assert.Equal(t, http.StatusServiceUnavailable, serve(closed, httptest.NewRequest(http.MethodGet, "/", nil)).Code)

	open := RateLimit(brokenLimiter{}, cfgMgr, reliability.FailOpen, nopLog)(okHandler)
	assert.Equal(t, http.StatusOK, serve(open, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

func TestAuthRateLimit(t *testing.T) {
	h := Chain(okHandler, ClientIdentity(0), AuthRateLimit("/api/auth/", 2, time.Minute, nopLog))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		require.Equal(t, http.StatusOK, serve(h, req).Code)
	}
	rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/auth/register", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many authentication attempts, please try again later.", errorBody(t, rec)["error"])

	// Other paths are not counted.
	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/api/vpn/servers", nil)).Code)
}

func TestBodyLimit(t *testing.T) {
	var seen string
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
	})
	h := BodyLimit(32, nopLog)(echo)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"`+strings.Repeat("x", 64)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(h, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Payload too large", errorBody(t, rec)["error"])

	// Unknown length is still capped while reading.
	req = httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader(strings.Repeat("x", 64))))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusRequestEntityTooLarge, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`a=b`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusUnsupportedMediaType, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	assert.Equal(t, http.StatusOK, serve(h, req).Code)
	assert.Equal(t, `{"a":1}`, seen)

	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodPost, "/", nil)).Code, "empty body needs no content type")
}
