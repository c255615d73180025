package main

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/raakeshmj/vpnshield/internal/attempts"
	"github.com/raakeshmj/vpnshield/internal/blocklist"
	"github.com/raakeshmj/vpnshield/internal/cache"
	"github.com/raakeshmj/vpnshield/internal/circuitbreaker"
	"github.com/raakeshmj/vpnshield/internal/config"
	"github.com/raakeshmj/vpnshield/internal/limiter"
	"github.com/raakeshmj/vpnshield/internal/logging"
	"github.com/raakeshmj/vpnshield/internal/oauth"
	"github.com/raakeshmj/vpnshield/internal/repository/memory"
	"github.com/raakeshmj/vpnshield/internal/repository/postgres"
	"github.com/raakeshmj/vpnshield/internal/server"
	"github.com/raakeshmj/vpnshield/internal/vpn"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		ServiceName: "vpnshield",
		Pretty:      !cfg.IsProduction(),
	})

	deps, cleanup, err := buildDeps(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise dependencies")
	}
	defer cleanup()

	srv, err := server.New(cfg, log, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build server")
	}

	if err := srv.Start(); err != nil {
		log.Error().Err(err).Msg("server stopped")
		cleanup()
		os.Exit(1)
	}
}

// buildDeps uses Redis and Postgres when configured and in-memory stores
// otherwise.
func buildDeps(cfg *config.Config, log zerolog.Logger) (server.Deps, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		closers = nil
	}

	deps := server.Deps{Checks: map[string]server.ReadinessCheck{}}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		closers = append(closers, rdb.Close)
		deps.Limiter = limiter.NewRedisLimiter(rdb)
		deps.Attempts = attempts.NewRedisStore(rdb, cfg.LockoutMaxFailures, cfg.LockoutWindow)
		deps.Blocklist = blocklist.NewRedisSet(rdb)
		deps.Checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis stores")
	} else {
		ml := limiter.NewMemoryLimiter(cache.NewMemoryCache())
		ms := attempts.NewMemoryStore(cfg.LockoutMaxFailures, cfg.LockoutWindow)
		deps.Limiter = ml
		deps.Attempts = ms
		deps.Blocklist = blocklist.NewMemorySet()
		deps.Sweepers = append(deps.Sweepers, ml, ms)
		log.Warn().Msg("REDIS_ADDR not set, using in-memory stores")
	}

	if cfg.DatabaseURL != "" {
		conn, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return deps, nil, err
		}
		closers = append(closers, conn.Close)
		if err := postgres.Migrate(ctx, conn); err != nil {
			cleanup()
			return deps, nil, err
		}
		repo := postgres.NewPostgresRepository(conn)
		deps.Users = repo
		deps.Checks["postgres"] = repo.Ping
		log.Info().Msg("using postgres user directory")
	} else {
		deps.Users = memory.New()
		log.Warn().Msg("DATABASE_URL not set, using in-memory user directory")
	}

	profiles := cache.NewMemoryCache()
	deps.OAuth = oauth.NewHTTPVerifier(map[string]string{
		oauth.ProviderGoogle: cfg.GoogleUserInfoURL,
		oauth.ProviderGitHub: cfg.GitHubUserURL,
	}, circuitbreaker.New(5, 2, 30*time.Second)).WithCache(profiles, time.Minute)
	deps.Sweepers = append(deps.Sweepers, profiles)

	tunnels, err := vpn.NewMockService(vpn.DefaultServers)
	if err != nil {
		cleanup()
		return deps, nil, err
	}
	deps.VPN = tunnels

	return deps, cleanup, nil
}
