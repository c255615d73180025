package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidToken is the only verification error callers should act on.
	// Expired, malformed and forged tokens all wrap it.
	ErrInvalidToken = errors.New("invalid token")
)

// SessionTTL is the fixed lifetime of a session token.
const SessionTTL = 7 * 24 * time.Hour

const issuer = "vpnshield"

type TokenClaims struct {
	Email string `json:"email"`
	Plan  string `json:"plan"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Password Hashing (Bcrypt)

// Hasher hashes and compares passwords. It keeps a dummy hash of the same
// cost so lookups for unknown accounts cost as much as real ones.
//
// Passwords are reduced to a base64 SHA-256 digest before bcrypt, which
// rejects inputs over 72 bytes. Every accepted password, including its
// escaped form, fits.
type Hasher struct {
	cost  int
	dummy []byte
}

func NewHasher(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cost)
	}
	dummy, err := bcrypt.GenerateFromPassword(prehash("dummy-password-for-timing"), cost)
	if err != nil {
		return nil, err
	}
	return &Hasher{cost: cost, dummy: dummy}, nil
}

// prehash maps any password to 44 bytes.
func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}

func (h *Hasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword(prehash(password), h.cost)
	return string(bytes), err
}

// Compare reports whether password matches storedHash. An empty or unusable
// storedHash (no such user, OAuth-only account) is compared against the dummy
// hash and always fails.
func (h *Hasher) Compare(password, storedHash string) bool {
	hash := []byte(storedHash)
	usable := true
	if _, err := bcrypt.Cost(hash); storedHash == "" || err != nil {
		hash, usable = h.dummy, false
	}
	err := bcrypt.CompareHashAndPassword(hash, prehash(password))
	return usable && err == nil
}

// JWT Logic
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
	now           func() time.Time
}

func NewJWTManager(secretKey string) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: SessionTTL,
		now:           time.Now,
	}
}

// Issue signs a session token for the given identity.
func (m *JWTManager) Issue(email, plan, role string) (string, error) {
	now := m.now()
	claims := TokenClaims{
		Email: email,
		Plan:  plan,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Verify checks signature, algorithm, issuer and expiry. Every failure wraps
// ErrInvalidToken.
func (m *JWTManager) Verify(tokenStr string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.IssuedAt == nil || claims.Email == "" || claims.Subject != claims.Email {
		return nil, fmt.Errorf("%w: missing identity claims", ErrInvalidToken)
	}
	if claims.ExpiresAt.Sub(claims.IssuedAt.Time) > m.tokenDuration {
		return nil, fmt.Errorf("%w: lifetime exceeds session ttl", ErrInvalidToken)
	}

	return claims, nil
}
