package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raakeshmj/vpnshield/internal/cache"
	"github.com/raakeshmj/vpnshield/internal/circuitbreaker"
)

func newProvider(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestHTTPVerifier_Google(t *testing.T) {
	url := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"email":"a@b.com","email_verified":true,"name":"Alice"}`))
	})
	v := NewHTTPVerifier(map[string]string{ProviderGoogle: url}, circuitbreaker.New(3, 1, time.Minute))

	p, err := v.Verify(context.Background(), "Google", "good")
	require.NoError(t, err)
	assert.Equal(t, &Profile{Provider: "google", Email: "a@b.com", Name: "Alice"}, p)

	_, err = v.Verify(context.Background(), "google", "forged")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(context.Background(), "google", "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHTTPVerifier_GitHubFallsBackToLogin(t *testing.T) {
	url := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"email":"dev@example.com","login":"octocat"}`))
	})
	v := NewHTTPVerifier(map[string]string{ProviderGitHub: url}, circuitbreaker.New(3, 1, time.Minute))

	p, err := v.Verify(context.Background(), "github", "tok")
	require.NoError(t, err)
	assert.Equal(t, "octocat", p.Name)
}

func TestHTTPVerifier_RejectsMissingOrUnverifiedEmail(t *testing.T) {
	body := `{"name":"x"}`
	url := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
	v := NewHTTPVerifier(map[string]string{ProviderGoogle: url}, circuitbreaker.New(3, 1, time.Minute))

	_, err := v.Verify(context.Background(), "google", "tok")
	assert.ErrorIs(t, err, ErrEmailMissing)

	body = `{"email":"a@b.com","email_verified":false}`
	_, err = v.Verify(context.Background(), "google", "tok")
	assert.ErrorIs(t, err, ErrEmailUnverified)
}

func TestHTTPVerifier_UnknownProvider(t *testing.T) {
	v := NewHTTPVerifier(map[string]string{}, circuitbreaker.New(3, 1, time.Minute))
	_, err := v.Verify(context.Background(), "myspace", "tok")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestHTTPVerifier_BreakerOpensOnProviderFailures(t *testing.T) {
	var calls int32
	url := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})
	v := NewHTTPVerifier(map[string]string{ProviderGoogle: url}, circuitbreaker.New(2, 1, time.Minute))

	for i := 0; i < 3; i++ {
		_, err := v.Verify(context.Background(), "google", "tok")
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHTTPVerifier_RejectedTokensDoNotTripBreaker(t *testing.T) {
	url := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	cb := circuitbreaker.New(1, 1, time.Minute)
	v := NewHTTPVerifier(map[string]string{ProviderGoogle: url}, cb)

	for i := 0; i < 3; i++ {
		_, err := v.Verify(context.Background(), "google", "tok")
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
	assert.Equal(t, circuitbreaker.StateClosed, cb.State("google"))
}

func TestHTTPVerifier_CachesConfirmedProfiles(t *testing.T) {
	var hits atomic.Int32
	url := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"email":"a@b.com","name":"Alice"}`))
	})
	v := NewHTTPVerifier(map[string]string{ProviderGoogle: url}, circuitbreaker.New(3, 1, time.Minute)).
		WithCache(cache.NewMemoryCache(), time.Minute)

	for i := 0; i < 3; i++ {
		p, err := v.Verify(context.Background(), "google", "good")
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", p.Email)
	}
	assert.Equal(t, int32(1), hits.Load())

	for i := 0; i < 2; i++ {
		_, err := v.Verify(context.Background(), "google", "bad")
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
	assert.Equal(t, int32(3), hits.Load(), "rejections are not cached")
}
