package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raakeshmj/vpnshield/internal/audit"
	"github.com/raakeshmj/vpnshield/internal/auth"
	"github.com/raakeshmj/vpnshield/internal/authz"
	"github.com/raakeshmj/vpnshield/internal/detect"
	"github.com/raakeshmj/vpnshield/internal/metrics"
	"github.com/raakeshmj/vpnshield/internal/policy"
)

type captured struct {
	body  map[string]any
	query string
	vars  map[string]string
}

func inputRouter(out *captured) *mux.Router {
	r := mux.NewRouter()
	r.Use(mux.MiddlewareFunc(Sanitize(nopLog)), mux.MiddlewareFunc(Detect(detect.New(), nopLog)))
	h := func(w http.ResponseWriter, r *http.Request) {
		out.body = nil
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			json.Unmarshal(raw, &out.body)
		}
		out.query = r.URL.Query().Get("q")
		out.vars = mux.Vars(r)
		w.WriteHeader(http.StatusOK)
	}
	r.HandleFunc("/items", h)
	r.HandleFunc("/items/{name}", h)
	return r
}

func TestSanitize_ReplacesInput(t *testing.T) {
	var out captured
	r := inputRouter(&out)

	body := `{"name":"  <b>Ann</b>\u0000 ","__proto__":{"admin":true},"na$me":"dup","tags":["a&b"]}`
	req := httptest.NewRequest(http.MethodPost, "/items?q=%3Ci%3E", strings.NewReader(body))
	rec := serve(r, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "&lt;b&gt;Ann&lt;/b&gt;", out.body["name"])
	assert.NotContains(t, out.body, "__proto__")
	assert.Equal(t, []any{"a&amp;b"}, out.body["tags"])
	assert.Equal(t, "&lt;i&gt;", out.query)

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/items/o'neil", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "o&#39;neil", out.vars["name"])
}

func TestSanitize_MalformedJSON(t *testing.T) {
	var out captured
	rec := serve(inputRouter(&out), httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(`{"a":`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Malformed JSON body", errorBody(t, rec)["error"])
}

func TestDetect_BlocksRawInput(t *testing.T) {
	var out captured
	r := inputRouter(&out)

	attacks := []*http.Request{
		httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(`{"email":"a@b.com' OR '1'='1"}`)),
		httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(`{"bio":"<script>alert(1)</script>"}`)),
		httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(`{"deep":{"list":["ok","1; DROP TABLE users"]}}`)),
		httptest.NewRequest(http.MethodGet, "/items?q=1+UNION+SELECT+password+FROM+users", nil),
		httptest.NewRequest(http.MethodGet, "/items?file=..%2F..%2Fetc%2Fpasswd", nil),
	}
	for _, req := range attacks {
		rec := serve(r, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, req.URL.String())
		assert.Equal(t, `{"error":"Invalid input detected"}`, strings.TrimSpace(rec.Body.String()))
	}

	benign := []*http.Request{
		httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(`{"email":"a@b.com","password":"Passw0rd"}`)),
		httptest.NewRequest(http.MethodPost, "/items", strings.NewReader(`{"note":"Fastest server in Amsterdam, please"}`)),
		httptest.NewRequest(http.MethodGet, "/items?q=rock+%26+roll", nil),
	}
	for _, req := range benign {
		rec := serve(r, req)
		assert.Equal(t, http.StatusOK, rec.Code, req.URL.String())
	}
}

const testSecret = "middleware-test-secret-0123456789abcdef"

func protectedRouter(engine *policy.Engine) (*mux.Router, *auth.JWTManager, *string) {
	jwtm := auth.NewJWTManager(testSecret)
	actor := new(string)
	r := mux.NewRouter()
	r.Use(
		mux.MiddlewareFunc(PolicyEnforcer(engine)),
		mux.MiddlewareFunc(Auth(jwtm, nopLog)),
		mux.MiddlewareFunc(Authorize(nopLog)),
	)
	h := func(w http.ResponseWriter, r *http.Request) {
		*actor = "anonymous"
		if c, ok := Claims(r.Context()); ok {
			*actor = c.Email
		}
		w.WriteHeader(http.StatusOK)
	}
	r.HandleFunc("/public", h)
	r.HandleFunc("/private", h)
	r.HandleFunc("/admin/users", h)
	r.HandleFunc("/analytics", h)
	return r, jwtm, actor
}

func testEngine() *policy.Engine {
	return policy.NewEngine(
		policy.Policy{ID: "public", Matcher: policy.Matcher{Path: "/public"}, Rules: policy.Rules{}},
		policy.Policy{ID: "admin", Matcher: policy.Matcher{Path: "/admin/"}, Rules: policy.Rules{AuthRequired: true, MinRole: authz.RoleAdmin}},
		policy.Policy{ID: "analytics", Matcher: policy.Matcher{Path: "/analytics"}, Rules: policy.Rules{AuthRequired: true, MinPlan: authz.PlanPremium}},
	)
}

func withBearer(req *http.Request, tok string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+tok)
	return req
}

func TestAuth(t *testing.T) {
	r, jwtm, actor := protectedRouter(testEngine())
	tok, err := jwtm.Issue("a@b.com", "free", "user")
	require.NoError(t, err)

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "unmatched routes require a session")
	assert.Equal(t, "Authentication required", errorBody(t, rec)["error"])

	rec = serve(r, withBearer(httptest.NewRequest(http.MethodGet, "/private", nil), tok[:len(tok)-3]+"abc"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired token", errorBody(t, rec)["error"])

	rec = serve(r, withBearer(httptest.NewRequest(http.MethodGet, "/private", nil), tok))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@b.com", *actor)

	rec = serve(r, httptest.NewRequest(http.MethodGet, "/public", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", *actor)

	rec = serve(r, withBearer(httptest.NewRequest(http.MethodGet, "/public", nil), "garbage"))
	assert.Equal(t, http.StatusOK, rec.Code, "public routes ignore a bad token")
	assert.Equal(t, "anonymous", *actor)
}

func TestAuthorize(t *testing.T) {
	r, jwtm, _ := protectedRouter(testEngine())
	user, _ := jwtm.Issue("u@b.com", "free", "user")
	admin, _ := jwtm.Issue("root@b.com", "enterprise", "admin")
	premium, _ := jwtm.Issue("p@b.com", "premium", "user")

	rec := serve(r, withBearer(httptest.NewRequest(http.MethodGet, "/admin/users", nil), user))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Insufficient permissions", errorBody(t, rec)["error"])

	rec = serve(r, withBearer(httptest.NewRequest(http.MethodGet, "/admin/users", nil), admin))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(r, withBearer(httptest.NewRequest(http.MethodGet, "/analytics", nil), user))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, map[string]string{
		"error":        "Plan upgrade required",
		"requiredPlan": "premium",
		"currentPlan":  "free",
	}, errorBody(t, rec))

	for _, tok := range []string{premium, admin} {
		rec = serve(r, withBearer(httptest.NewRequest(http.MethodGet, "/analytics", nil), tok))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestGetPolicy_DefaultWhenUnset(t *testing.T) {
	p := GetPolicy(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.Equal(t, "default", p.ID)
	assert.True(t, p.Rules.AuthRequired)
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.LogEntry
}

func (a *recordingAudit) Log(e audit.LogEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func TestAuditAndMetrics_RecordRejectingStage(t *testing.T) {
	rec := &recordingAudit{}
	coll := metrics.NewCollector(10)
	router, jwtm, _ := protectedRouter(testEngine())
	h := Chain(router, AuditMiddleware(rec), MetricsMiddleware(coll), ClientIdentity(0))

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.RemoteAddr = "192.0.2.10:555"
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)

	tok, _ := jwtm.Issue("a@b.com", "free", "user")
	assert.Equal(t, http.StatusOK, serve(h, withBearer(httptest.NewRequest(http.MethodGet, "/private", nil), tok)).Code)

	require.Len(t, rec.entries, 2)
	first := rec.entries[0]
	assert.Equal(t, "auth", first.Rejection)
	assert.Equal(t, "anonymous", first.ActorID)
	assert.Equal(t, "192.0.2.10", first.ClientID)
	assert.Equal(t, http.StatusUnauthorized, first.Status)
	assert.NotEmpty(t, first.RequestID)

	second := rec.entries[1]
	assert.Empty(t, second.Rejection)
	assert.Equal(t, "a@b.com", second.ActorID)
	assert.NotEqual(t, first.RequestID, second.RequestID)

	stats := coll.GetStats()
	assert.Equal(t, uint64(2), stats.TotalRequests)
	assert.Equal(t, uint64(1), stats.TotalErrors)
	assert.Equal(t, uint64(1), stats.Rejections["auth"])
}
