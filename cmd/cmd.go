package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pairspace-backend/internal/config"
	"pairspace-backend/internal/database"
	"pairspace-backend/internal/repository"
	"pairspace-backend/internal/security"
	"pairspace-backend/internal/services"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const uploadsURLPrefix = "/uploads"

func Run() {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log, cfg.Server.Development)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Apply migrations
	if cfg.Database.MigrateOnStart {
		if err := database.RunMigrations(cfg.Database.URL()); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}

	// Connect to database
	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	// Initialize repositories
	coupleRepo := repository.NewCoupleRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	quizRepo := repository.NewQuizRepository(db)
	spaceRepo := repository.NewSpaceRepository(db)

	// Realtime delivery
	wsHub := services.NewWSHub()
	publisher, closeEvents := setupPublisher(ctx, cfg, wsHub, deviceRepo)
	defer closeEvents()

	// Initialize services
	hasher := security.NewPasswordHasher(cfg.Auth.Argon2)
	coupleService := services.NewCoupleService(coupleRepo, deviceRepo, hasher, cfg.Auth.TokenSecret)
	quizService := services.NewQuizService(quizRepo, coupleService, cfg.Quiz.Policy(), publisher)
	spaceService := services.NewSpaceService(spaceRepo, coupleRepo, publisher)

	mediaStore, uploadsDir, err := setupMediaStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create media store")
	}
	mediaService := services.NewMediaService(mediaStore, cfg.Storage.MaxUploadBytes)

	// Setup router
	router, err := newRouter(routerDeps{
		coupleService: coupleService,
		quizService:   quizService,
		spaceService:  spaceService,
		mediaService:  mediaService,
		hub:           wsHub,
		db:            db,
		uploadsDir:    uploadsDir,
		authRate:      cfg.RateLimit.Auth,
		corsOrigins:   cfg.Server.CORSOrigins,
		development:   cfg.Server.Development,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create router")
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// setupPublisher builds the event pipeline. Events reach local WebSocket
// clients directly, or through Redis when configured, and APNs devices when a
// signing key is configured.
func setupPublisher(ctx context.Context, cfg *config.Config, hub *services.WSHub, devices services.DeviceStore) (services.Publisher, func()) {
	publishers := services.Fanout{}
	closeFn := func() {}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid redis url")
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}

		broadcaster := services.NewRedisBroadcaster(client, cfg.Redis.Channel, hub)
		go func() {
			if err := broadcaster.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Redis subscriber stopped")
			}
		}()
		publishers = append(publishers, broadcaster)
		closeFn = func() { client.Close() }
		log.Info().Str("channel", cfg.Redis.Channel).Msg("Redis event relay enabled")
	} else {
		publishers = append(publishers, hub)
	}

	if cfg.APNS.KeyPath != "" {
		notifier, err := services.NewPushNotifier(services.APNSOptions{
			KeyPath:    cfg.APNS.KeyPath,
			KeyID:      cfg.APNS.KeyID,
			TeamID:     cfg.APNS.TeamID,
			Topic:      cfg.APNS.Topic,
			Production: cfg.APNS.Production,
		}, devices)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create push notifier")
		}
		publishers = append(publishers, notifier)
		log.Info().Bool("production", cfg.APNS.Production).Msg("Push notifications enabled")
	}

	return publishers, closeFn
}

// setupMediaStore returns the configured blob store and, for the disk
// backend, the directory to serve under /uploads
func setupMediaStore(ctx context.Context, cfg config.StorageConfig) (services.MediaStore, string, error) {
	switch cfg.Backend {
	case "s3":
		store, err := services.NewS3Store(ctx, services.S3Options{
			Region:        cfg.S3.Region,
			Bucket:        cfg.S3.Bucket,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			Endpoint:      cfg.S3.Endpoint,
			PublicBaseURL: cfg.S3.PublicBaseURL,
			UsePathStyle:  cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, "", err
		}
		log.Info().Str("bucket", cfg.S3.Bucket).Msg("Using S3 media storage")
		return store, "", nil
	default:
		if err := os.MkdirAll(cfg.Disk.Root, 0o755); err != nil {
			return nil, "", fmt.Errorf("failed to create uploads directory: %w", err)
		}
		log.Info().Str("root", cfg.Disk.Root).Msg("Using disk media storage")
		return services.NewDiskStore(cfg.Disk.Root, uploadsURLPrefix), cfg.Disk.Root, nil
	}
}

// setupLogger configures zerolog logger
func setupLogger(cfg config.LogConfig, development bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Pretty || development {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
