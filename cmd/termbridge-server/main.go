package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/termbridge/termbridge/internal/config"
	"github.com/termbridge/termbridge/internal/domain/audit"
	"github.com/termbridge/termbridge/internal/domain/bundle"
	"github.com/termbridge/termbridge/internal/domain/concept"
	"github.com/termbridge/termbridge/internal/domain/mapping"
	"github.com/termbridge/termbridge/internal/domain/search"
	"github.com/termbridge/termbridge/internal/platform/auth"
	"github.com/termbridge/termbridge/internal/platform/db"
	"github.com/termbridge/termbridge/internal/platform/icd11"
	"github.com/termbridge/termbridge/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "termbridge-server",
		Short: "NAMASTE / ICD-11 terminology mapping service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(ingestCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the terminology API server",
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

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				migrator := db.NewMigrator(pool, dir)
				count, err := migrator.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				migrator := db.NewMigrator(pool, dir)
				statuses, err := migrator.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			return nil
		},
	})

	return cmd
}

// seedConcepts are the starter terminology rows matching the default mapping
// set.
var seedConcepts = []concept.Concept{
	{System: concept.SystemNAMASTE, Code: "NAM-AY-0001", Display: "Jwara", Definition: "Fever in Ayurvedic terminology", Source: "seed", Metadata: concept.Metadata{"sanskrit_name": "ज्वर", "english_name": "Fever", "category": "Vyadhi"}},
	{System: concept.SystemNAMASTE, Code: "NAM-AY-0002", Display: "Atisara", Definition: "Diarrheal disorder", Source: "seed", Metadata: concept.Metadata{"sanskrit_name": "अतिसार", "english_name": "Diarrhea", "category": "Vyadhi"}},
	{System: concept.SystemNAMASTE, Code: "NAM-AY-0003", Display: "Kasa", Definition: "Cough disorder", Source: "seed", Metadata: concept.Metadata{"sanskrit_name": "कास", "english_name": "Cough", "category": "Vyadhi"}},
	{System: concept.SystemNAMASTE, Code: "NAM-AY-0004", Display: "Shwasa", Definition: "Breathing disorder", Source: "seed", Metadata: concept.Metadata{"sanskrit_name": "श्वास", "english_name": "Dyspnea", "category": "Vyadhi"}},
	{System: concept.SystemNAMASTE, Code: "NAM-AY-0005", Display: "Shiroroga", Definition: "Disorder of the head", Source: "seed", Metadata: concept.Metadata{"sanskrit_name": "शिरोरोग", "english_name": "Headache", "category": "Vyadhi"}},
	{System: concept.SystemICD11, Code: "AB11", Display: "Fever, unspecified", Source: "seed", Version: "2025-01"},
	{System: concept.SystemICD11, Code: "AB12", Display: "Diarrhoea, unspecified", Source: "seed", Version: "2025-01"},
	{System: concept.SystemICD11, Code: "AB13", Display: "Cough", Source: "seed", Version: "2025-01"},
	{System: concept.SystemICD11, Code: "AB14", Display: "Dyspnoea", Source: "seed", Version: "2025-01"},
	{System: concept.SystemICD11, Code: "AB15", Display: "Headache", Source: "seed", Version: "2025-01"},
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the starter concepts and mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				conceptRepo := concept.NewRepoPG(pool)
				mappingSvc := mapping.NewService(mapping.NewRepoPG(pool), conceptRepo, pool)

				loaded := 0
				for i := range seedConcepts {
					c := seedConcepts[i]
					existing, err := conceptRepo.FindBySystemCode(ctx, c.System, c.Code)
					if err != nil {
						return err
					}
					if existing != nil {
						continue
					}
					if err := conceptRepo.Insert(ctx, &c); err != nil {
						return err
					}
					loaded++
				}

				added, err := mappingSvc.SeedDefaults(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Seeded %d concept(s) and %d mapping(s).\n", loaded, added)
				return nil
			})
		},
	}
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest NAMASTE concepts from a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				if path == "" {
					path = cfg.NamasteCSVPath
				}
				if path == "" {
					return fmt.Errorf("--file or NAMASTE_CSV_PATH is required")
				}
				svc := concept.NewService(concept.NewRepoPG(pool))
				loaded, skipped, err := svc.LoadCSV(ctx, path)
				if err != nil {
					return err
				}
				fmt.Printf("Ingested %d concept(s), skipped %d.\n", loaded, skipped)
				return nil
			})
		},
	}
	cmd.Flags().String("file", "", "Path to the NAMASTE CSV export")
	return cmd
}

// withPool loads config, opens the database pool and runs fn.
func withPool(fn func(context.Context, *config.Config, *pgxpool.Pool) error) error {
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
	return fn(ctx, cfg, pool)
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	zlog.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	verifier := auth.NewVerifier(auth.Config{
		IntrospectionURL: cfg.ABHAIntrospectURL,
		DevSecret:        cfg.ABHADevSecret,
		DevMode:          cfg.IsDev(),
	})

	apiV1 := e.Group("/api/v1", auth.Middleware(verifier))
	fhirGroup := e.Group("/fhir", auth.Middleware(verifier))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	fhirGroup.Use(middleware.RateLimit(rateLimitCfg))

	if cfg.RequestTimeoutSecs > 0 {
		timeout := time.Duration(cfg.RequestTimeoutSecs) * time.Second
		apiV1.Use(middleware.RequestTimeout(timeout))
		fhirGroup.Use(middleware.RequestTimeout(timeout))
	}

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// External ICD-11 provider
	icd11Client := icd11.NewClient(icd11.Config{
		BaseURL:      cfg.ICD11BaseURL,
		TokenURL:     cfg.ICD11TokenURL,
		ClientID:     cfg.ICD11ClientID,
		ClientSecret: cfg.ICD11ClientSecret,
	})
	apiV1.GET("/icd11/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, icd11Client.Health(c.Request().Context()))
	})

	// Repositories and services
	conceptRepo := concept.NewRepoPG(pool)
	mappingRepo := mapping.NewRepoPG(pool)
	auditRepo := audit.NewRepoPG(pool)

	auditSvc := audit.NewService(auditRepo)
	conceptSvc := concept.NewService(conceptRepo)
	mappingSvc := mapping.NewService(mappingRepo, conceptRepo, pool)
	searchSvc := search.NewService(conceptRepo, mappingRepo, icd11Client)
	bundleSvc := bundle.NewService(mappingSvc, auditSvc)

	// Handlers
	concept.NewHandler(conceptSvc).RegisterRoutes(apiV1, fhirGroup)
	mapping.NewHandler(mappingSvc, auditSvc).RegisterRoutes(apiV1, fhirGroup)
	search.NewHandler(searchSvc, auditSvc, cfg.DefaultSearchLimit, cfg.MaxSearchResults).RegisterRoutes(apiV1)
	audit.NewHandler(auditSvc).RegisterRoutes(apiV1)
	bundle.NewHandler(bundleSvc).RegisterRoutes(fhirGroup)

	// Start server with graceful shutdown
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

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	return nil
}
