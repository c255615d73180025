// Package oauth verifies third-party access tokens against the issuing
// provider. The profile a client claims is never trusted; only what the
// provider returns for the token is.
package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/raakeshmj/vpnshield/internal/cache"
	"github.com/raakeshmj/vpnshield/internal/circuitbreaker"
)

const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

var (
	ErrUnknownProvider = errors.New("unknown oauth provider")
	ErrInvalidToken    = errors.New("provider rejected access token")
	ErrEmailMissing    = errors.New("provider returned no email")
	ErrEmailUnverified = errors.New("provider email not verified")
	ErrUnavailable     = errors.New("oauth provider unavailable")
)

// Profile is the identity confirmed by the provider.
type Profile struct {
	Provider string
	Email    string
	Name     string
}

type userInfo struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
	Login         string `json:"login"`
}

// HTTPVerifier calls each provider's userinfo endpoint with the bearer token.
type HTTPVerifier struct {
	client    *http.Client
	endpoints map[string]string
	breaker   *circuitbreaker.CircuitBreaker

	profiles *cache.MemoryCache
	ttl      time.Duration
}

func NewHTTPVerifier(endpoints map[string]string, breaker *circuitbreaker.CircuitBreaker) *HTTPVerifier {
	return &HTTPVerifier{
		client:    &http.Client{Timeout: 5 * time.Second},
		endpoints: endpoints,
		breaker:   breaker,
	}
}

// WithCache remembers confirmed profiles for ttl, keyed by a hash of the
// access token. Rejections are never cached.
func (v *HTTPVerifier) WithCache(c *cache.MemoryCache, ttl time.Duration) *HTTPVerifier {
	v.profiles = c
	v.ttl = ttl
	return v
}

func cacheKey(provider, token string) string {
	sum := sha256.Sum256([]byte(token))
	return "oauth:" + provider + ":" + hex.EncodeToString(sum[:])
}

func (v *HTTPVerifier) Verify(ctx context.Context, provider, accessToken string) (*Profile, error) {
	provider = strings.ToLower(provider)
	endpoint, ok := v.endpoints[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}
	if accessToken == "" {
		return nil, ErrInvalidToken
	}
	if v.profiles != nil {
		if cached, ok := v.profiles.Get(cacheKey(provider, accessToken)); ok {
			p := cached.(Profile)
			return &p, nil
		}
	}

	var (
		info   userInfo
		status int
	)
	// Only transport failures and 5xx count against the breaker.
	err := v.breaker.Execute(provider, func() error {
		var err error
		status, err = v.fetch(ctx, endpoint, accessToken, &info)
		return err
	})
	switch {
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, ErrInvalidToken
	case status != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrInvalidToken, status)
	}

	if info.Email == "" {
		return nil, ErrEmailMissing
	}
	if info.EmailVerified != nil && !*info.EmailVerified {
		return nil, ErrEmailUnverified
	}
	name := info.Name
	if name == "" {
		name = info.Login
	}
	p := Profile{Provider: provider, Email: info.Email, Name: name}
	if v.profiles != nil {
		v.profiles.Set(cacheKey(provider, accessToken), p, v.ttl)
	}
	return &p, nil
}

func (v *HTTPVerifier) fetch(ctx context.Context, endpoint, token string, out *userInfo) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return resp.StatusCode, fmt.Errorf("provider status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode userinfo: %w", err)
	}
	return resp.StatusCode, nil
}
