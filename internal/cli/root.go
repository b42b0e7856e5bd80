// Package cli implements tellerctl, a terminal client for the auth service
// that keeps its session between invocations.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	jwttoken "teller/internal/jwt_token"
	"teller/internal/platform/logger"
	"teller/internal/session/client"
	"teller/internal/session/controller"
	"teller/internal/session/persistence"
	"teller/internal/session/storage"
)

type flags struct {
	server         string
	stateDir       string
	redisURL       string
	redisNamespace string
	logLevel       string
	logFormat      string
}

// runtime is what every subcommand works against. It is built once the
// persistent flags are parsed.
type runtime struct {
	logger     *slog.Logger
	store      *persistence.Store
	controller *controller.Controller
	redis      *redis.Client
}

func (rt *runtime) close() error {
	if rt.redis != nil {
		return rt.redis.Close()
	}
	return nil
}

// defaultServer returns TELLER_SERVER when set.
func defaultServer() string {
	if s := os.Getenv("TELLER_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for tellerctl.
func NewRootCmd() *cobra.Command {
	var f flags
	rt := &runtime{}

	root := &cobra.Command{
		Use:   "tellerctl",
		Short: "Sign in to the banking dashboard API from a terminal",
		Long:  "tellerctl signs in against the dashboard auth service and keeps the session on disk or in Redis between runs.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.init(cmd, f)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return rt.close()
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&f.server, "server", defaultServer(), "Auth server URL (or TELLER_SERVER env)")
	root.PersistentFlags().StringVar(&f.stateDir, "state-dir", "", "Directory holding the session (default ~/.teller)")
	root.PersistentFlags().StringVar(&f.redisURL, "redis-url", os.Getenv("TELLER_REDIS_URL"), "Keep the session in Redis instead of on disk")
	root.PersistentFlags().StringVar(&f.redisNamespace, "redis-namespace", "", "Key namespace for the Redis session")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&f.logFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newLoginCmd(rt),
		newLogoutCmd(rt),
		newRefreshCmd(rt),
		newWhoamiCmd(rt),
		newWatchCmd(rt),
	)
	return root
}

func (rt *runtime) init(cmd *cobra.Command, f flags) error {
	rt.logger = logger.NewWithWriter(f.logLevel, f.logFormat, cmd.ErrOrStderr())

	backend, err := rt.backend(f)
	if err != nil {
		return err
	}
	rt.store = persistence.New(backend, persistence.WithLogger(rt.logger))

	gateway := client.New(f.server, client.WithLogger(rt.logger))
	expiry := jwttoken.NewJWTService("", "", "", jwttoken.WithLegacyTokens(true), jwttoken.WithLogger(rt.logger))
	rt.controller = controller.New(gateway, rt.store,
		controller.WithLogger(rt.logger),
		controller.WithExpiryChecker(expiry),
	)
	rt.controller.CheckSession(cmd.Context())
	return nil
}

func (rt *runtime) backend(f flags) (storage.Backend, error) {
	if f.redisURL != "" {
		opts, err := redis.ParseURL(f.redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis URL: %w", err)
		}
		rt.redis = redis.NewClient(opts)
		return storage.NewRedis(rt.redis, storage.WithNamespace(f.redisNamespace)), nil
	}

	dir := f.stateDir
	if dir == "" {
		var err error
		if dir, err = storage.DefaultDir(); err != nil {
			return nil, err
		}
	}
	return storage.NewFile(dir)
}
