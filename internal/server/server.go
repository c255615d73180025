package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/raakeshmj/vpnshield/internal/apierr"
	"github.com/raakeshmj/vpnshield/internal/attempts"
	"github.com/raakeshmj/vpnshield/internal/audit"
	"github.com/raakeshmj/vpnshield/internal/auth"
	"github.com/raakeshmj/vpnshield/internal/authz"
	"github.com/raakeshmj/vpnshield/internal/blocklist"
	"github.com/raakeshmj/vpnshield/internal/config"
	"github.com/raakeshmj/vpnshield/internal/detect"
	"github.com/raakeshmj/vpnshield/internal/limiter"
	"github.com/raakeshmj/vpnshield/internal/metrics"
	"github.com/raakeshmj/vpnshield/internal/middleware"
	"github.com/raakeshmj/vpnshield/internal/policy"
	"github.com/raakeshmj/vpnshield/internal/repository"
	"github.com/raakeshmj/vpnshield/internal/service"
	"github.com/raakeshmj/vpnshield/internal/vpn"
)

const sweepInterval = time.Minute

// ReadinessCheck reports whether a backing store is reachable.
type ReadinessCheck func(ctx context.Context) error

// Sweeper is implemented by in-memory stores that reclaim expired entries.
type Sweeper interface {
	Sweep() int
}

// Deps are the stores and collaborators the gateway runs on. main picks the
// Redis/Postgres or in-memory implementations.
type Deps struct {
	Users     repository.UserRepository
	Limiter   limiter.Limiter
	Attempts  attempts.Store
	Blocklist blocklist.Set
	OAuth     service.OAuthVerifier
	VPN       vpn.Service

	Checks   map[string]ReadinessCheck
	Sweepers []Sweeper
}

type Server struct {
	cfg           *config.Config
	log           zerolog.Logger
	router        *mux.Router
	handler       http.Handler
	authService   *service.AuthService
	vpnService    *service.VPNService
	metrics       *metrics.MetricsCollector
	auditLogger   audit.Logger
	configManager *config.DynamicConfigManager
	policyEngine  *policy.Engine
	blocked       blocklist.Set
	checks        map[string]ReadinessCheck
	sweepers      []Sweeper
}

func New(cfg *config.Config, log zerolog.Logger, deps Deps) (*Server, error) {
	hasher, err := auth.NewHasher(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hasher: %w", err)
	}
	jwtManager := auth.NewJWTManager(cfg.JWTSecret)
	tracker := attempts.NewTracker(deps.Attempts)

	for _, ip := range cfg.BlockedIPs {
		if err := deps.Blocklist.Add(context.Background(), ip); err != nil {
			return nil, fmt.Errorf("seed blocklist: %w", err)
		}
	}

	s := &Server{
		cfg:         cfg,
		log:         log,
		router:      mux.NewRouter(),
		authService: service.NewAuthService(deps.Users, hasher, jwtManager, tracker, deps.OAuth, log),
		vpnService:  service.NewVPNService(deps.VPN, deps.Users, log),
		metrics:     metrics.NewCollector(1000),
		auditLogger: audit.NewZerologLogger(log),
		configManager: config.NewDynamicConfigManager(config.PolicyConfig{
			RateLimitMax:    cfg.RateLimitMax,
			RateLimitWindow: cfg.RateLimitWindow,
		}),
		policyEngine: policy.NewEngine(routePolicies()...),
		blocked:      deps.Blocklist,
		checks:       deps.Checks,
		sweepers:     deps.Sweepers,
	}

	s.routes(deps.Limiter)
	return s, nil
}

// routePolicies lists specific paths first; anything unmatched requires a
// session.
func routePolicies() []policy.Policy {
	public := policy.Rules{AuthRequired: false}
	return []policy.Policy{
		{ID: "health", Matcher: policy.Matcher{Path: "/health"}, Rules: public},
		{ID: "ready", Matcher: policy.Matcher{Path: "/ready"}, Rules: public},
		{ID: "register", Matcher: policy.Matcher{Method: http.MethodPost, Path: "/api/auth/register"}, Rules: public},
		{ID: "login", Matcher: policy.Matcher{Method: http.MethodPost, Path: "/api/auth/login"}, Rules: public},
		{ID: "oauth", Matcher: policy.Matcher{Method: http.MethodPost, Path: "/api/auth/oauth"}, Rules: public},
		{ID: "analytics", Matcher: policy.Matcher{Path: "/api/analytics"}, Rules: policy.Rules{AuthRequired: true, MinPlan: authz.PlanPremium}},
		{ID: "admin", Matcher: policy.Matcher{Path: "/api/admin/"}, Rules: policy.Rules{AuthRequired: true, MinRole: authz.RoleAdmin}},
	}
}

func (s *Server) routes(l limiter.Limiter) {
	r := s.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierr.Write(w, apierr.NotFound("Not found", nil))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierr.WriteJSON(w, http.StatusMethodNotAllowed, apierr.Body{Error: "Method not allowed"})
	})

	// Post-match stages: path parameters are only known once a route matched.
	r.Use(
		mux.MiddlewareFunc(middleware.Sanitize(s.log)),
		mux.MiddlewareFunc(middleware.Detect(detect.New(), s.log)),
		mux.MiddlewareFunc(middleware.PolicyEnforcer(s.policyEngine)),
		mux.MiddlewareFunc(middleware.Auth(s.authService, s.log)),
		mux.MiddlewareFunc(middleware.Authorize(s.log)),
	)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.ready).Methods(http.MethodGet)

	authR := r.PathPrefix("/api/auth").Subrouter()
	authR.HandleFunc("/register", s.register).Methods(http.MethodPost)
	authR.HandleFunc("/login", s.login).Methods(http.MethodPost)
	authR.HandleFunc("/oauth", s.oauthLogin).Methods(http.MethodPost)
	authR.HandleFunc("/verify", s.verify).Methods(http.MethodGet)

	r.HandleFunc("/api/user/profile", s.profile).Methods(http.MethodGet)
	r.HandleFunc("/api/user/plan", s.changePlan).Methods(http.MethodPut)
	r.HandleFunc("/api/analytics", s.analytics).Methods(http.MethodGet)

	r.HandleFunc("/api/vpn/servers", s.vpnServers).Methods(http.MethodGet)
	r.HandleFunc("/api/vpn/status", s.vpnStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/vpn/connect", s.vpnConnect).Methods(http.MethodPost)
	r.HandleFunc("/api/vpn/disconnect", s.vpnDisconnect).Methods(http.MethodPost)

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.HandleFunc("/users", s.ListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users/{email}/role", s.SetUserRole).Methods(http.MethodPut)
	admin.HandleFunc("/users/{email}/plan", s.SetUserPlan).Methods(http.MethodPut)
	admin.HandleFunc("/users/{email}", s.DeleteUser).Methods(http.MethodDelete)
	admin.HandleFunc("/blocked-ips", s.ListBlockedIPs).Methods(http.MethodGet)
	admin.HandleFunc("/blocked-ips", s.BlockIP).Methods(http.MethodPost)
	admin.HandleFunc("/blocked-ips/{ip}", s.UnblockIP).Methods(http.MethodDelete)
	admin.HandleFunc("/metrics", s.Metrics).Methods(http.MethodGet)
	admin.HandleFunc("/config/rate-limit", s.UpdateRateLimit).Methods(http.MethodPost)

	proxyHops := 0
	if s.cfg.TrustProxy {
		proxyHops = s.cfg.ProxyHops
	}

	// Order: Audit (outer) -> Metrics -> identity -> headers -> blocklist ->
	// CORS -> global rate limit -> auth rate limit -> body limit -> router
	// stages -> handler.
	s.handler = middleware.Chain(r,
		middleware.AuditMiddleware(s.auditLogger),
		middleware.MetricsMiddleware(s.metrics),
		middleware.ClientIdentity(proxyHops),
		middleware.SecureHeaders(middleware.SecurityConfig{}, s.log),
		middleware.Blocklist(s.blocked, s.log),
		middleware.CORS(s.cfg.AllowedOrigins, s.log),
		middleware.RateLimit(l, s.configManager, s.cfg.LimiterStrategy, s.log),
		middleware.AuthRateLimit("/api/auth/", s.cfg.AuthRateLimitMax, s.cfg.AuthRateLimitWindow, s.log),
		middleware.BodyLimit(s.cfg.MaxBodyBytes, s.log),
	)
}

// Handler returns the fully wrapped gateway.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// janitor reclaims expired entries from in-memory stores until ctx is done.
func (s *Server) janitor(ctx context.Context, every time.Duration) {
	if len(s.sweepers) == 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := 0
			for _, sw := range s.sweepers {
				n += sw.Sweep()
			}
			if n > 0 {
				s.log.Debug().Int("removed", n).Msg("swept expired entries")
			}
		}
	}
}

func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.ServerPort,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.janitor(ctx, sweepInterval)

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)

	go func() {
		s.log.Info().Str("port", s.cfg.ServerPort).Str("env", s.cfg.Env).Msg("server starting")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		s.log.Info().Str("signal", sig.String()).Msg("start shutdown")

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}
