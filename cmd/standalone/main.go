package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"authgate/core"
	"authgate/storage"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Core core.Config `yaml:",inline"`

	DB   DBConfig  `yaml:"db"`
	Log  LogConfig `yaml:"log"`
	Port string    `yaml:"port"`
}

type DBConfig struct {
	Type        string              `yaml:"type"`
	SQLitePath  string              `yaml:"sqlite_path"`
	PostgresURL string              `yaml:"postgres_url"`
	Redis       storage.RedisConfig `yaml:"redis"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "authgate",
		Short:         "Passwordless sign-in pages behind a session access gate",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", getEnv("CONFIG_PATH", "config.yaml"), "path to the YAML config file")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		providersCmd(),
		sessionsCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			logger, err := newLogger(appConfig.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			repo, err := initRepository(ctx, appConfig.DB, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			handler, err := buildHandler(appConfig, repo, core.EnvSource{}, logger)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              ":" + appConfig.Port,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()

			logger.Info("authgate started",
				zap.String("port", appConfig.Port),
				zap.Strings("providers", providerNames(core.ResolveAvailableProviders(core.EnvSource{}))),
				zap.Bool("magic_link", core.ResolveMagicLinkEnabled(core.EnvSource{})),
			)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutdown signal received")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			logger.Info("authgate stopped cleanly")
			return nil
		},
	}
}

func buildHandler(appConfig *AppConfig, repo core.Repository, source core.ConfigSource, logger *zap.Logger) (http.Handler, error) {
	cfg := &appConfig.Core

	var cache *core.SessionCache
	if cfg.Session.CacheEnabled() {
		cache = core.NewSessionCache(cfg.Session.CacheSecret, cfg.Session.CacheDuration())
	} else {
		logger.Warn("session cookie cache disabled, every request hits the session store")
	}

	sessions := core.NewSessionService(repo, cache, &cfg.Session, logger.Named("session"))

	exclusions, err := core.NewExclusionMatcher(cfg.Gate.Exclude)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := core.NewMetrics(registry)

	gate := core.NewGate(sessions, core.AccessRules{PublicPaths: cfg.Gate.PublicPaths}, exclusions, metrics, logger.Named("gate"))

	server, err := core.NewServer(sessions, cfg, source, logger.Named("http"))
	if err != nil {
		return nil, err
	}

	return server.Routes(core.RouterOptions{
		Gate:    gate,
		Limiter: core.NewRateLimiter(cfg.RateLimit.RequestsPerMinute),
		Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}), nil
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show which sign-in providers are configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			out := cmd.OutOrStdout()
			writeProviderReport(out, core.EnvSource{})
			return nil
		},
	}
}

func sessionsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Session store maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <user-id>",
		Short: "Delete every session of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[0], err)
			}

			return withSessions(cmd.Context(), *configPath, func(sessions *core.SessionService, logger *zap.Logger) error {
				if err := sessions.RevokeUser(cmd.Context(), userID); err != nil {
					return err
				}
				logger.Info("user sessions revoked", zap.String("user_id", userID.String()))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete expired sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(cmd.Context(), *configPath, func(sessions *core.SessionService, logger *zap.Logger) error {
				count, err := sessions.PruneExpired(cmd.Context())
				if err != nil {
					return err
				}
				logger.Info("expired sessions pruned", zap.Int64("count", count))
				return nil
			})
		},
	})

	return cmd
}

// withSessions opens the configured store for a maintenance command.
func withSessions(ctx context.Context, configPath string, fn func(*core.SessionService, *zap.Logger) error) error {
	appConfig, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(appConfig.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	repo, err := initRepository(ctx, appConfig.DB, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	return fn(core.NewSessionService(repo, nil, &appConfig.Core.Session, logger), logger)
}

func loadConfig(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	config := &AppConfig{
		Port: "3000",
		DB:   DBConfig{Type: "sqlite", SQLitePath: "authgate.db"},
		Log:  LogConfig{Level: "info", Format: "json"},
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if port := os.Getenv("PORT"); port != "" {
		config.Port = port
	}
	if secret := os.Getenv("SESSION_CACHE_SECRET"); secret != "" {
		config.Core.Session.CacheSecret = secret
	}
	if baseURL := os.Getenv("BASE_URL"); baseURL != "" {
		config.Core.BaseURL = baseURL
	}

	config.Core.ApplyDefaults()
	return config, nil
}

func initRepository(ctx context.Context, dbConfig DBConfig, logger *zap.Logger) (core.Repository, error) {
	switch strings.ToLower(dbConfig.Type) {
	case "sqlite":
		repo, err := storage.NewSQLiteRepository(dbConfig.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		logger.Info("using SQLite database", zap.String("path", dbConfig.SQLitePath))
		return repo, nil

	case "postgres":
		repo, err := storage.NewPostgresRepository(ctx, dbConfig.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		logger.Info("using Postgres database")
		return repo, nil

	case "redis":
		repo, err := storage.NewRedisRepository(ctx, dbConfig.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis repository: %w", err)
		}
		logger.Info("using Redis session store", zap.String("addr", dbConfig.Redis.Addr))
		return repo, nil

	case "mock":
		logger.Info("using mock repository (in-memory)")
		return storage.NewMockRepository(), nil

	default:
		return nil, fmt.Errorf("unsupported DB type: %s (supported: sqlite, postgres, redis, mock)", dbConfig.Type)
	}
}

func newLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = level

	return zcfg.Build()
}

func providerNames(providers []core.Provider) []string {
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, string(p))
	}
	return names
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
