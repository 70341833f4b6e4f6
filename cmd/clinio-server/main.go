package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinio/clinio/internal/config"
	"github.com/clinio/clinio/internal/domain/billing"
	"github.com/clinio/clinio/internal/domain/scheduling"
	"github.com/clinio/clinio/internal/platform/auth"
	"github.com/clinio/clinio/internal/platform/db"
	"github.com/clinio/clinio/internal/platform/events"
	"github.com/clinio/clinio/internal/platform/middleware"
	"github.com/clinio/clinio/internal/platform/telemetry"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinio-server",
		Short: "Clinic scheduling and billing API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			target, _ := cmd.Flags().GetInt("to")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)

			var count int
			if target > 0 {
				count, err = migrator.UpTo(ctx, target)
			} else {
				count, err = migrator.Up(ctx)
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	upCmd.Flags().Int("to", 0, "Stop after this version (0 applies everything)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

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
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	// migrate down - the runner is forward-only
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Write a forward migration that reverses the change, or restore from a backup.")
			return nil
		},
	})

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed service token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			secret, _ := cmd.Flags().GetString("secret")

			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			switch role {
			case auth.RoleAdmin, auth.RoleTherapist, auth.RoleFrontdesk:
			default:
				return fmt.Errorf("--role must be admin, therapist or frontdesk, got %q", role)
			}
			if secret == "" {
				secret = os.Getenv("AUTH_TOKEN_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("set AUTH_TOKEN_SECRET or pass --secret")
			}

			tok, err := auth.Sign([]byte(secret), subject, role, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "Token subject (user identifier)")
	cmd.Flags().String("role", auth.RoleFrontdesk, "Role claim: admin, therapist or frontdesk")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	cmd.Flags().String("secret", "", "Signing secret (defaults to AUTH_TOKEN_SECRET)")
	return cmd
}

func runServer() error {
	// Config first; every environment decision below flows from it.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	txRunner := db.NewTxRunner(pool)
	recorder := events.NewRecorder(pool)

	// Metrics
	metrics := telemetry.NewProvider(telemetry.Config{
		ServiceName:    "clinio-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
	})
	defer metrics.Shutdown(context.Background())

	go refreshPoolGauges(metrics, 15*time.Second, func() (int32, int32) {
		s := pool.Stat()
		return s.AcquiredConns(), s.IdleConns()
	})

	// Outbox relay. With no brokers configured Run logs a warning and
	// returns, leaving events in the outbox table.
	publisher := events.NewPublisher(pool, logger, events.PublisherConfig{
		Brokers:   cfg.Brokers(),
		PollEvery: cfg.OutboxPollInterval,
		BatchSize: cfg.OutboxBatchSize,
	})
	relayCtx, relayCancel := context.WithCancel(ctx)
	defer relayCancel()
	go publisher.Run(relayCtx)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(metrics.MetricsMiddleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware. Probe endpoints stay token-free via the skipper.
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Secret:  []byte(cfg.AuthTokenSecret),
			Skipper: auth.AuthSkipper,
		}))
	}

	// API group
	apiV1 := e.Group("/api/v1")

	// Rate limiting middleware
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Scheduling domain
	apptRepo := scheduling.NewAppointmentRepoPG(pool)
	requestRepo := scheduling.NewRescheduleRequestRepoPG(pool)
	cycleRepo := scheduling.NewTreatmentCycleRepoPG(pool)

	schedSvc := scheduling.NewService(apptRepo, requestRepo, cycleRepo, txRunner, recorder, schedulingSettings(cfg))
	scheduling.NewHandler(schedSvc, metrics).RegisterRoutes(apiV1)

	// Billing domain
	alloc := billing.NewAllocator(revenueRates(cfg))
	billingSvc := billing.NewService(apptRepo, billing.NewRepoPG(pool), alloc, txRunner, recorder, cfg.Location())
	billing.NewHandler(billingSvc, metrics).RegisterRoutes(apiV1)

	// Health and metrics endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", metrics.PrometheusHandler())

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	relayCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newLogger builds the process logger: human-readable console output in
// development, JSON elsewhere.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// schedulingSettings translates the flat environment config into the
// scheduling policy the service enforces.
func schedulingSettings(cfg *config.Config) scheduling.Settings {
	return scheduling.Settings{
		Location:       cfg.Location(),
		OpeningMinutes: cfg.OpeningMinutes(),
		ClosingMinutes: cfg.ClosingMinutes(),
		SlotInterval:   time.Duration(cfg.SlotIntervalMinutes) * time.Minute,
		MinNoticeDays:  cfg.RescheduleMinNoticeDays,
	}
}

// revenueRates translates the configured percentages into allocator rates.
func revenueRates(cfg *config.Config) billing.Rates {
	return billing.Rates{
		Platform:       cfg.PlatformFeeRate,
		AdminShare:     cfg.AdminShare,
		TherapistShare: cfg.TherapistShare,
	}
}

// refreshPoolGauges copies pool connection counts into the metrics provider
// until the provider shuts down.
func refreshPoolGauges(metrics *telemetry.Provider, every time.Duration, stat func() (active, idle int32)) {
	gauges := metrics.PoolMetrics()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-metrics.Done():
			return
		case <-ticker.C:
			active, idle := stat()
			gauges.SetActive(int64(active))
			gauges.SetIdle(int64(idle))
		}
	}
}
