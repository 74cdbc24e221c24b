package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/patientdesk/patientdesk/internal/config"
	"github.com/patientdesk/patientdesk/internal/domain/account"
	"github.com/patientdesk/patientdesk/internal/domain/patient"
	"github.com/patientdesk/patientdesk/internal/platform/auth"
	"github.com/patientdesk/patientdesk/internal/platform/db"
	"github.com/patientdesk/patientdesk/internal/platform/graphql"
	"github.com/patientdesk/patientdesk/internal/platform/logging"
	"github.com/patientdesk/patientdesk/internal/platform/middleware"
	"github.com/patientdesk/patientdesk/internal/platform/ratelimit"
	"github.com/patientdesk/patientdesk/internal/platform/trace"
)

const (
	serviceName    = "Patient Management API"
	serviceVersion = "1.0.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "patient-server",
		Short: "Patient Management API Server",
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
		Short: "Start the GraphQL API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			gdb, err := db.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}

			if err := db.Migrate(gdb, &patient.Patient{}); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Schema up to date: %s\n", cfg.DatabasePath)
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo patients into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			gdb, err := db.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			if err := db.Migrate(gdb, &patient.Patient{}); err != nil {
				return err
			}

			svc := patient.NewService(patient.NewGormRepository(gdb), logging.NewDefault(cfg.LogLevel))
			ctx := context.Background()

			created := 0
			for _, in := range seedPatients() {
				if _, err := svc.Create(ctx, in); err != nil {
					// Re-running seed hits uniqueness on email/ssn; skip those rows.
					continue
				}
				created++
			}

			fmt.Printf("Seeded %d patient(s).\n", created)
			return nil
		},
	}
}

func seedPatients() []*patient.CreateInput {
	str := func(s string) *string { return &s }
	return []*patient.CreateInput{
		{
			FirstName:   "John",
			LastName:    "Doe",
			Email:       "john.doe@example.com",
			Phone:       "555-123-4567",
			DateOfBirth: "1985-03-15",
			SSN:         "123456789",
			Address:     str("123 Main St, Springfield"),
			Allergies:   str("Penicillin"),
		},
		{
			FirstName:   "Jane",
			LastName:    "Smith",
			Email:       "jane.smith@example.com",
			Phone:       "555-987-6543",
			DateOfBirth: "1992-07-22",
			SSN:         "987654321",
			Medications: str("Lisinopril 10mg"),
		},
		{
			FirstName:         "Robert",
			LastName:          "Johnson",
			Email:             "robert.johnson@example.com",
			Phone:             "555-456-7890",
			DateOfBirth:       "1978-11-03",
			SSN:               "456789123",
			InsuranceProvider: str("Acme Health"),
			InsuranceNumber:   str("AH-001122"),
		},
	}
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Logger
	logger := logging.New(os.Stdout, cfg.LogLevel)
	if cfg.IsLocal() {
		logger = logging.New(zerolog.ConsoleWriter{Out: os.Stdout}, cfg.LogLevel)
	}
	ctx := context.Background()

	// Database
	gdb, err := db.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error(ctx, "failed to open database", map[string]interface{}{"error": err.Error()})
		return err
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(gdb, &patient.Patient{}); err != nil {
			logger.Error(ctx, "failed to migrate database", map[string]interface{}{"error": err.Error()})
			return err
		}
	}
	logger.Info(ctx, "database ready", map[string]interface{}{"path": cfg.DatabasePath})

	// Rate limiter
	limiter := ratelimit.New([]ratelimit.Window{
		{Name: "short", Interval: cfg.RateLimitShortWindow, Limit: cfg.RateLimitShort},
		{Name: "long", Interval: cfg.RateLimitLongWindow, Limit: cfg.RateLimitLong},
	})
	limiterCtx, stopLimiter := context.WithCancel(ctx)
	defer stopLimiter()
	go limiter.Run(limiterCtx)

	// Token service
	tokens := auth.NewTokenService(cfg.JWTSecret)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(trace.Middleware())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.OriginList(),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Trace-ID", "X-Request-ID", "X-Correlation-ID"},
	}))
	e.Use(auth.Middleware(tokens))

	// GraphQL
	engine := graphql.NewEngine(limiter, logger)
	patient.NewResolver(patient.NewService(patient.NewGormRepository(gdb), logger), logger).Register(engine)
	account.NewResolver(tokens).Register(engine)
	graphql.NewHandler(engine, cfg.IsLocal()).RegisterRoutes(e)

	// Health check
	e.GET("/health", healthHandler, ratelimit.Middleware(limiter, logger))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info(ctx, "starting server", map[string]interface{}{"addr": addr, "env": cfg.AppEnv})
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "server error", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "server shutdown failed", map[string]interface{}{"error": err.Error()})
		return err
	}
	logger.Info(ctx, "server stopped", nil)
	return nil
}

func healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   serviceName,
		"version":   serviceVersion,
	})
}
