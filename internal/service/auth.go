package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/raakeshmj/vpnshield/internal/apierr"
	"github.com/raakeshmj/vpnshield/internal/attempts"
	"github.com/raakeshmj/vpnshield/internal/auth"
	"github.com/raakeshmj/vpnshield/internal/authz"
	"github.com/raakeshmj/vpnshield/internal/db"
	"github.com/raakeshmj/vpnshield/internal/oauth"
	"github.com/raakeshmj/vpnshield/internal/repository"
)

const msgInvalidCredentials = "Invalid credentials"

// OAuthVerifier confirms a provider access token and returns the identity
// behind it.
type OAuthVerifier interface {
	Verify(ctx context.Context, provider, accessToken string) (*oauth.Profile, error)
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type OAuthRequest struct {
	Provider    string `json:"provider"`
	AccessToken string `json:"accessToken"`
}

// Session is what a successful authentication returns to the client.
type Session struct {
	Token string   `json:"token"`
	User  *db.User `json:"user"`
}

type AuthService struct {
	users      repository.UserRepository
	hasher     *auth.Hasher
	jwtManager *auth.JWTManager
	tracker    *attempts.Tracker
	oauth      OAuthVerifier
	log        zerolog.Logger
	now        func() time.Time
}

func NewAuthService(u repository.UserRepository, h *auth.Hasher, j *auth.JWTManager, t *attempts.Tracker, o OAuthVerifier, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:      u,
		hasher:     h,
		jwtManager: j,
		tracker:    t,
		oauth:      o,
		log:        log,
		now:        time.Now,
	}
}

func (s *AuthService) JWTManager() *auth.JWTManager {
	return s.jwtManager
}

func (s *AuthService) issue(u *db.User) (*Session, error) {
	token, err := s.jwtManager.Issue(u.Email, u.Plan, u.Role)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return &Session{Token: token, User: u}, nil
}

// Register creates a password account on the free plan.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	email := db.NormalizeEmail(req.Email)
	if err := auth.ValidateRegistration(email, req.Password); err != nil {
		return nil, apierr.Validation(err.Error(), err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	u := &db.User{
		Email:        email,
		PasswordHash: hash,
		Name:         req.Name,
		Role:         string(authz.RoleUser),
		Plan:         string(authz.PlanFree),
		Provider:     "password",
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, apierr.Conflict("User already exists", err)
		}
		return nil, apierr.Internal(err)
	}

	s.log.Info().Str("email", email).Msg("user registered")
	return s.issue(u)
}

// Login checks credentials for clientID. A locked client is refused before
// the password is looked at; every failure, including unknown emails, costs
// one bcrypt comparison and returns the same error.
func (s *AuthService) Login(ctx context.Context, clientID string, req LoginRequest) (*Session, error) {
	email := db.NormalizeEmail(req.Email)
	if err := auth.ValidateLogin(email, req.Password); err != nil {
		return nil, apierr.Validation(err.Error(), err)
	}

	st, err := s.tracker.Check(ctx, clientID)
	if err != nil {
		return nil, apierr.Unavailable("Service temporarily unavailable", err)
	}
	if st.Locked {
		s.log.Warn().Str("client", clientID).Dur("retry_after", st.RetryAfter).Msg("login refused: locked out")
		return nil, apierr.Lockout("Too many failed login attempts. Please try again later.", st.RetryAfter, nil)
	}

	u, err := s.users.Get(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apierr.Internal(err)
	}
	stored := ""
	if u != nil {
		stored = u.PasswordHash
	}

	if !s.hasher.Compare(req.Password, stored) {
		st, ferr := s.tracker.Fail(ctx, clientID)
		if ferr != nil {
			s.log.Error().Err(ferr).Str("client", clientID).Msg("record failed login")
		}
		s.log.Warn().Str("client", clientID).Int("failures", st.Failures).Bool("locked", st.Locked).Msg("login failed")
		return nil, apierr.Authentication(msgInvalidCredentials, nil)
	}

	if err := s.tracker.Succeed(ctx, clientID); err != nil {
		s.log.Error().Err(err).Str("client", clientID).Msg("reset login attempts")
	}
	return s.issue(u)
}

// OAuthLogin signs in with a provider access token. New accounts get an
// empty password hash so password login can never succeed for them.
func (s *AuthService) OAuthLogin(ctx context.Context, req OAuthRequest) (*Session, error) {
	profile, err := s.oauth.Verify(ctx, req.Provider, req.AccessToken)
	if err != nil {
		switch {
		case errors.Is(err, oauth.ErrUnknownProvider):
			return nil, apierr.Validation("Unsupported OAuth provider", err)
		case errors.Is(err, oauth.ErrUnavailable):
			return nil, apierr.Unavailable("OAuth provider unavailable", err)
		default:
			return nil, apierr.Authentication("OAuth verification failed", err)
		}
	}

	email := db.NormalizeEmail(profile.Email)
	if len(email) > auth.MaxEmailLength {
		return nil, apierr.Validation(auth.ErrEmailTooLong.Error(), auth.ErrEmailTooLong)
	}

	u, err := s.users.Get(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		u = &db.User{
			Email:     email,
			Name:      profile.Name,
			Role:      string(authz.RoleUser),
			Plan:      string(authz.PlanFree),
			Provider:  profile.Provider,
			CreatedAt: s.now().UTC(),
		}
		err = s.users.Create(ctx, u)
		if errors.Is(err, repository.ErrAlreadyExists) {
			u, err = s.users.Get(ctx, email)
		}
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return s.issue(u)
}

// Verify checks a session token.
func (s *AuthService) Verify(token string) (*auth.TokenClaims, error) {
	claims, err := s.jwtManager.Verify(token)
	if err != nil {
		return nil, apierr.Authentication("Invalid or expired token", err)
	}
	return claims, nil
}

func (s *AuthService) Profile(ctx context.Context, email string) (*db.User, error) {
	u, err := s.users.Get(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apierr.NotFound("User not found", err)
		}
		return nil, apierr.Internal(err)
	}
	return u, nil
}

// ErrSelfUpgrade is returned when a user asks for a higher plan themselves.
// Upgrades go through an administrator (SetPlan).
var ErrSelfUpgrade = errors.New("plan upgrades require an administrator")

// ChangePlan moves the caller's own plan down (or keeps it) and re-issues the
// session so the token carries the new plan.
func (s *AuthService) ChangePlan(ctx context.Context, email, plan string) (*Session, error) {
	p, err := authz.ParsePlan(plan)
	if err != nil {
		return nil, apierr.Validation("Invalid plan", err)
	}
	u, err := s.Profile(ctx, email)
	if err != nil {
		return nil, err
	}
	if !authz.Plan(u.Plan).AtLeast(p) {
		s.log.Warn().Str("email", u.Email).Str("from", u.Plan).Str("to", string(p)).Msg("self-service plan upgrade refused")
		return nil, apierr.Forbidden(ErrSelfUpgrade)
	}
	if err := s.SetPlan(ctx, email, string(p)); err != nil {
		return nil, err
	}
	u.Plan = string(p)
	return s.issue(u)
}

func (s *AuthService) ListUsers(ctx context.Context) ([]*db.User, error) {
	list, err := s.users.List(ctx)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return list, nil
}

func (s *AuthService) SetRole(ctx context.Context, email, role string) error {
	r, err := authz.ParseRole(role)
	if err != nil {
		return apierr.Validation("Invalid role", err)
	}
	return s.mutate(s.users.SetRole(ctx, email, string(r)))
}

func (s *AuthService) SetPlan(ctx context.Context, email, plan string) error {
	p, err := authz.ParsePlan(plan)
	if err != nil {
		return apierr.Validation("Invalid plan", err)
	}
	return s.mutate(s.users.SetPlan(ctx, email, string(p)))
}

func (s *AuthService) DeleteUser(ctx context.Context, email string) error {
	return s.mutate(s.users.Delete(ctx, email))
}

func (s *AuthService) mutate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apierr.NotFound("User not found", err)
	default:
		return apierr.Internal(err)
	}
}
