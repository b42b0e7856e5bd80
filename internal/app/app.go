// Package app is the composition root: it turns a config into a ready HTTP
// handler plus the background workers that keep the in-process stores tidy.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"teller/internal/auth/adapters"
	"teller/internal/auth/device"
	authHandler "teller/internal/auth/handler"
	authMetrics "teller/internal/auth/metrics"
	authService "teller/internal/auth/service"
	refreshtoken "teller/internal/auth/store/refresh-token"
	"teller/internal/auth/store/revocation"
	"teller/internal/auth/store/user"
	jwttoken "teller/internal/jwt_token"
	"teller/internal/platform/config"
	"teller/internal/platform/httpserver"
	platformMetrics "teller/internal/platform/metrics"
	platformRedis "teller/internal/platform/redis"
	rlMetrics "teller/internal/ratelimit/metrics"
	rlMiddleware "teller/internal/ratelimit/middleware"
	rlService "teller/internal/ratelimit/service"
	"teller/internal/ratelimit/store/window"
	httptransport "teller/internal/transport/http"
	"teller/pkg/platform/circuit"
	authmw "teller/pkg/platform/middleware/auth"
)

const tokenCleanupInterval = 10 * time.Minute

// revocationList is satisfied by both revocation stores.
type revocationList interface {
	authService.TokenRevocationList
	authmw.RevocationChecker
}

// expiringStore is an in-process store that needs periodic sweeping.
type expiringStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

type App struct {
	Handler http.Handler

	cfg     config.Server
	logger  *slog.Logger
	workers []func(ctx context.Context) error
	closers []func() error
}

// Build wires every dependency named by cfg. Metrics are registered on reg.
func Build(ctx context.Context, cfg config.Server, logger *slog.Logger, reg *prometheus.Registry) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	routerOpts := []httptransport.Option{httptransport.WithTrustedProxies(cfg.TrustedProxies)}

	users, err := a.buildUsers(ctx, &routerOpts)
	if err != nil {
		a.Close()
		return nil, err
	}

	redisClient, err := platformRedis.New(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		a.closers = append(a.closers, redisClient.Close)
		routerOpts = append(routerOpts, httptransport.WithHealthCheck("redis", redisClient.Health))
	}

	var (
		refreshTokens authService.RefreshTokenStore
		revocations   revocationList
	)
	if redisClient != nil {
		refreshTokens = refreshtoken.NewRedis(redisClient.Client)
		revocations = revocation.NewRedis(redisClient.Client)
	} else {
		memTokens := refreshtoken.New()
		memRevocations := revocation.New()
		refreshTokens = memTokens
		revocations = memRevocations
		a.workers = append(a.workers, func(ctx context.Context) error {
			return sweepExpired(ctx, logger, map[string]expiringStore{
				"refresh tokens":        memTokens,
				"revoked access tokens": memRevocations,
			})
		})
	}

	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience,
		jwttoken.WithAccessTTL(cfg.Auth.AccessTokenTTL),
		jwttoken.WithLegacyTokens(cfg.Auth.LegacyTokens),
		jwttoken.WithLogger(logger),
	)

	validator := jwttoken.NewJWTServiceAdapter(tokens)
	svc := authService.New(users, refreshTokens, tokens,
		authService.WithLogger(logger),
		authService.WithMetrics(authMetrics.New(reg)),
		authService.WithRefreshTokenTTL(cfg.Auth.RefreshTokenTTL),
		authService.WithDeviceService(device.NewService(cfg.Auth.DeviceFingerprint)),
		authService.WithAccessTokenRevocation(validator, revocations),
	)
	authenticator := authmw.NewAuthenticator(validator, adapters.NewPrincipalStore(users), logger,
		authmw.WithRevocationChecker(revocations))

	fallback := window.New()
	a.workers = append(a.workers, func(ctx context.Context) error {
		return ignoreCanceled(fallback.StartCleanup(ctx, cfg.RateLimit.CleanupInterval))
	})
	limiterOpts := []rlService.Option{
		rlService.WithLogger(logger),
		rlService.WithMetrics(rlMetrics.New(reg)),
	}
	var primary rlService.Store = fallback
	if redisClient != nil {
		primary = window.NewRedis(redisClient.Client)
		breaker := circuit.New("ratelimit-redis",
			circuit.WithFailureThreshold(cfg.RateLimit.FailureThreshold),
			circuit.WithSuccessThreshold(cfg.RateLimit.SuccessThreshold),
		)
		limiterOpts = append(limiterOpts, rlService.WithFallback(fallback, breaker))
	}
	limiter := rlMiddleware.New(rlService.New(primary, limiterOpts...), logger,
		rlMiddleware.WithDisabled(cfg.RateLimit.Disabled))

	routerOpts = append(routerOpts, httptransport.WithMetrics(platformMetrics.New(reg), reg))
	a.Handler = httptransport.NewRouter(logger,
		[]httptransport.Registrar{authHandler.New(svc, authenticator, limiter, logger)},
		routerOpts...,
	)
	return a, nil
}

func (a *App) buildUsers(ctx context.Context, routerOpts *[]httptransport.Option) (authService.UserStore, error) {
	seeds := user.DefaultSeeds()
	if a.cfg.UsersFile != "" {
		loaded, err := user.LoadSeeds(a.cfg.UsersFile)
		if err != nil {
			return nil, err
		}
		seeds = loaded
	}

	if a.cfg.DatabaseURL == "" {
		store, err := user.New(seeds)
		if err != nil {
			return nil, err
		}
		a.logger.Info("using in-memory user registry", "users", len(seeds))
		return store, nil
	}

	db, err := sql.Open("postgres", a.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	store := user.NewPostgres(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	if err := store.Seed(ctx, seeds); err != nil {
		return nil, err
	}
	*routerOpts = append(*routerOpts, httptransport.WithHealthCheck("postgres", db.PingContext))
	a.logger.Info("using postgres user registry")
	return store, nil
}

// Run serves HTTP and runs the background workers until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, worker := range a.workers {
		g.Go(func() error { return worker(ctx) })
	}
	g.Go(func() error {
		return httpserver.Run(ctx, httpserver.New(a.cfg.Addr, a.Handler), a.logger)
	})
	return g.Wait()
}

// Close releases database and redis connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func sweepExpired(ctx context.Context, logger *slog.Logger, stores map[string]expiringStore) error {
	ticker := time.NewTicker(tokenCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			for name, store := range stores {
				removed, err := store.DeleteExpired(ctx, now)
				if err != nil {
					return fmt.Errorf("sweep %s: %w", name, err)
				}
				if removed > 0 {
					logger.DebugContext(ctx, "removed expired entries", "store", name, "count", removed)
				}
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
