package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"photo-trade-backend/internal/config"
	"photo-trade-backend/internal/handlers"
	"photo-trade-backend/internal/logger"
	"photo-trade-backend/internal/middleware"
	"photo-trade-backend/internal/repository"
	"photo-trade-backend/internal/services"
	"photo-trade-backend/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	autoMigrate bool

	rootCmd = &cobra.Command{
		Use:           "photo-trade",
		Short:         "Photo trading backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the config file")
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply the schema before serving")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

// bootstrap loads config, sets up logging and connects to the database
func bootstrap(ctx context.Context) (*config.Config, *pgxpool.Pool, io.Closer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logFile := logger.Setup(cfg.Log)

	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		logFile.Close()
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		logFile.Close()
		return nil, nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info().Msg("Database connection established")

	return cfg, db, logFile, nil
}

func runMigrate(ctx context.Context) error {
	_, db, logFile, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer logFile.Close()
	defer db.Close()

	return repository.Migrate(ctx, db)
}

func runServe(ctx context.Context) error {
	cfg, db, logFile, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer logFile.Close()
	defer db.Close()

	if autoMigrate {
		if err := repository.Migrate(ctx, db); err != nil {
			return err
		}
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	photoRepo := repository.NewPhotoRepository(db)
	friendRepo := repository.NewFriendRepository(db)
	tradeRepo := repository.NewTradeRepository(db)

	// Object storage and the watermark deriver
	store, err := storage.NewS3Store(ctx, cfg.AWS)
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}
	watermarker := storage.NewWatermarker(cfg.Assets.WatermarkBrand)

	// Notification fan-out: hub, optional relay, optional push
	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()

	wsHub := services.NewWSHub()
	var live services.Notifier = wsHub
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		relay := services.NewRedisRelay(client, cfg.Redis.Channel, wsHub)
		go func() {
			if err := relay.Run(relayCtx); err != nil {
				log.Error().Err(err).Msg("Event relay stopped")
			}
		}()
		live = relay
	}

	var pusher services.Pusher
	if cfg.APNs.Enabled {
		apns, err := services.NewAPNsPusher(cfg.APNs, userRepo)
		if err != nil {
			return fmt.Errorf("failed to create push client: %w", err)
		}
		pusher = apns
	}
	notifier := services.NewDispatcher(live, pusher)

	// Initialize services
	userService := services.NewUserService(db, userRepo, photoRepo, cfg.Assets.DefaultPhotos, cfg.JWT)
	photoService := services.NewPhotoService(db, photoRepo, friendRepo, store, watermarker, cfg.Assets)
	friendService := services.NewFriendService(db, userRepo, friendRepo)
	tradeService := services.NewTradeService(db, tradeRepo, photoRepo, friendRepo, notifier)

	router := handlers.NewRouter(handlers.Routes{
		Users:     handlers.NewUserHandler(userService),
		Photos:    handlers.NewPhotoHandler(photoService, cfg.Assets.MaxUploadBytes),
		Friends:   handlers.NewFriendHandler(friendService),
		Trades:    handlers.NewTradeHandler(tradeService),
		WebSocket: handlers.NewWebSocketHandler(wsHub, userService, cfg.WebSocket),
		Auth:      middleware.AuthMiddleware(userService),
		Limiter:   middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		Metrics:   promhttp.Handler(),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Close websocket sessions first; hijacked connections are not tracked by Shutdown
	wsHub.Close()
	stopRelay()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
	return nil
}
