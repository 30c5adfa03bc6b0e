package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/auth"
	"github.com/mikepea/biolink/pkg/biolink/avatars"
	"github.com/mikepea/biolink/pkg/biolink/cache"
	"github.com/mikepea/biolink/pkg/biolink/config"
	"github.com/mikepea/biolink/pkg/biolink/database"
	"github.com/mikepea/biolink/pkg/biolink/logging"
	"github.com/mikepea/biolink/pkg/biolink/profiles"
	"github.com/mikepea/biolink/pkg/biolink/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// @title Biolink API
// @version 1.0
// @description Link-in-bio pages with ordered links, social profiles and bilingual pages.

// @contact.name Biolink Support
// @contact.url https://github.com/mikepea/biolink

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token or API key. Format: "Bearer {token}"

var envFile string

var rootCmd = &cobra.Command{
	Use:           "biolink-server",
	Short:         "Link-in-bio pages server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Connect to the database, apply migrations and serve the API and pages.

Redis and MinIO are used when REDIS_URL and MINIO_ENDPOINT are set.`,
	RunE: runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	// bare invocation serves
	rootCmd.RunE = runServe
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("biolink-server failed")
		os.Exit(1)
	}
}

// setup loads configuration and opens the migrated database
func setup() (config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return cfg, err
	}
	logging.Init(cfg.AppEnv, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := database.Connect(cfg.DatabaseURL, cfg.LogLevel == "debug"); err != nil {
		return cfg, fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		return cfg, fmt.Errorf("migrate database: %w", err)
	}
	log.Info().Msg("database migrations completed")
	return cfg, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if _, err := setup(); err != nil {
		return err
	}
	return database.Close()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer database.Close()

	auth.Configure(cfg.JWTSecret, cfg.TokenTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := database.GetDB()
	if cfg.AdminEmail != "" {
		svc := auth.NewService(db, profiles.NewService(db, nil))
		if err := svc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminUsername); err != nil {
			return fmt.Errorf("ensure admin: %w", err)
		}
	}

	var backends server.Backends
	if cfg.CacheEnabled() {
		store, err := cache.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer store.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := store.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, page views will be assembled per request")
		}
		cancel()
		backends.Cache = store
	}
	if cfg.StorageEnabled() {
		storage, err := avatars.NewMinioStorage(ctx, avatars.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
		if err != nil {
			return fmt.Errorf("object storage: %w", err)
		}
		backends.Storage = storage
	} else {
		log.Info().Msg("MINIO_ENDPOINT not set, avatar uploads disabled")
	}

	router := server.NewRouter(cfg, db, backends)
	return server.Serve(ctx, ":"+cfg.Port, router)
}
