package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wellness/portal/internal/config"
	"github.com/wellness/portal/internal/domain/account"
	"github.com/wellness/portal/internal/domain/patient"
	"github.com/wellness/portal/internal/platform/auth"
	"github.com/wellness/portal/internal/platform/db"
	"github.com/wellness/portal/internal/platform/middleware"
	"github.com/wellness/portal/internal/platform/telemetry"
	"github.com/wellness/portal/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wellness-server",
		Short: "Wellness portal API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openStore connects to the configured backend and, for Mongo, makes sure
// the unique email indexes exist.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*db.Store, error) {
	store, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if store.MongoDB != nil {
		if err := ensureMongoIndexes(ctx, store); err != nil {
			_ = store.Close(ctx)
			return nil, err
		}
	}
	return store, nil
}

func ensureMongoIndexes(ctx context.Context, store *db.Store) error {
	if err := patient.EnsureMongoIndexes(ctx, store.MongoDB); err != nil {
		return err
	}
	return account.EnsureMongoIndexes(ctx, store.MongoDB)
}

// repositories picks the repository implementations matching the store.
func repositories(store *db.Store) (patient.Repository, account.Repository) {
	if store.Pool != nil {
		return patient.NewPGRepo(store.Pool), account.NewPGRepo(store.Pool)
	}
	return patient.NewMongoRepo(store.MongoDB), account.NewMongoRepo(store.MongoDB)
}

type deps struct {
	patients patient.Repository
	accounts account.Repository
	store    db.Pinger
	backend  string
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	ctx := context.Background()
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}

	patients, accounts := repositories(store)
	e, err := newServer(cfg, logger, deps{
		patients: patients,
		accounts: accounts,
		store:    store,
		backend:  store.Backend,
	})
	if err != nil {
		_ = store.Close(ctx)
		return err
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("database close failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer assembles the echo instance: global middleware, public routes,
// the token-protected /api routes and the auth routes.
func newServer(cfg *config.Config, logger zerolog.Logger, d deps) (*echo.Echo, error) {
	key, generated, err := signingKey(cfg)
	if err != nil {
		return nil, err
	}
	if generated {
		logger.Warn().Msg("JWT_SECRET not set; using a random signing key, tokens will not survive a restart")
	}
	tokens, err := auth.NewTokenIssuer(key, cfg.JWTIssuer, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	hasher, err := auth.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.HTTPErrorHandler(logger)
	e.Validator = middleware.NewValidator()
	e.JSONSerializer = middleware.StrictJSONSerializer{}

	metrics := telemetry.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	e.Use(middleware.RateLimit(rateLimitCfg))

	// Public routes
	e.GET("/api/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "OK",
			"message": "Health Care API is running",
		})
	})
	e.GET("/health/db", db.HealthHandler(d.store, d.backend))
	e.GET("/metrics", metrics.Handler())

	// Auth middleware
	requireToken := auth.JWTMiddleware(tokens.Config())
	apiAuth := requireToken
	if cfg.ResolvedAuthMode() == "development" {
		apiAuth = auth.DevAuthMiddleware(requireToken)
	}

	api := e.Group("/api", apiAuth, middleware.Audit(logger, metrics))
	patient.NewHandler(patient.NewService(d.patients)).RegisterRoutes(api)

	accountSvc := account.NewService(d.accounts, hasher, tokens)
	account.NewHandler(accountSvc).RegisterRoutes(e.Group("/auth"), requireToken)

	return e, nil
}

// signingKey returns the JWT key from config. Development runs without one
// get a random per-process key.
func signingKey(cfg *config.Config) ([]byte, bool, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), false, nil
	}
	if !cfg.IsDev() {
		return nil, false, fmt.Errorf("JWT_SECRET is required when ENV=%q", cfg.Env)
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random signing key: %w", err)
	}
	return key, true, nil
}

func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// withMigrator runs fn against a postgres store. Mongo has no schema to
	// migrate; its indexes are ensured instead.
	withMigrator := func(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator, schema string) error) error {
		schema, _ := cmd.Flags().GetString("schema")
		dir, _ := cmd.Flags().GetString("dir")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Env)

		ctx := context.Background()
		store, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close(ctx)

		if store.Pool == nil {
			fmt.Println("MongoDB backend: no schema migrations to run; indexes are up to date.")
			return nil
		}
		return fn(ctx, db.NewMigrator(store.Pool, migrationsFS(dir)), schema)
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				fmt.Printf("Running migrations on schema: %s\n", schema)
				count, err := m.Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				statuses, err := m.Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}

				fmt.Printf("Migration status for schema: %s\n", schema)
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}

	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().String("schema", "public", "Target schema for migrations")
		c.Flags().String("dir", "", "Path to a migrations directory (default: embedded migrations)")
		cmd.AddCommand(c)
	}
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the sample patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			reset, _ := cmd.Flags().GetBool("reset")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx := context.Background()
			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			samples, err := patient.SamplePatients()
			if err != nil {
				return err
			}
			patients, _ := repositories(store)
			res, err := patient.NewService(patients).Seed(ctx, samples, reset)
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}

			if reset {
				logger.Info().Int64("deleted", res.Deleted).Msg("cleared existing patients")
			}
			for _, p := range res.Inserted {
				logger.Info().Str("id", p.ID).Str("name", p.Name).Msg("inserted patient")
			}
			for _, email := range res.Skipped {
				logger.Warn().Str("email", email).Msg("patient already exists, skipped")
			}
			fmt.Printf("Seeded %d patient(s), skipped %d.\n", len(res.Inserted), len(res.Skipped))
			return nil
		},
	}
	cmd.Flags().Bool("reset", false, "Delete every existing patient first")
	return cmd
}
