package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"game-session-system/config"
	"game-session-system/handlers"
	"game-session-system/models"
	"game-session-system/services"
	"game-session-system/utils"
	"game-session-system/workers"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		logger.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL environment variable not set")
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := db.AutoMigrate(
		&models.PlayerStats{},
		&models.MatchResult{},
		&models.UserBadge{},
	); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	authenticator := newAuthenticator(cfg, logger)

	// Redis presence mirror (optional)
	var (
		redisClient *redis.Client
		mirror      *services.RedisPresenceMirror
		presence    *services.PresenceRegistry
	)
	if cfg.RedisAddress != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddress).Msg("redis unreachable at startup, mirror will retry on sync")
		}
		mirror = services.NewRedisPresenceMirror(redisClient)
		presence = services.NewPresenceRegistry(logger, mirror)
	} else {
		logger.Info().Msg("REDIS_ADDRESS not set, presence mirror disabled")
		presence = services.NewPresenceRegistry(logger, nil)
	}

	// R2 match archive (optional)
	var archiver services.MatchArchiver
	if cfg.ArchiveEnabled() {
		r2, err := utils.NewR2Archiver(ctx, utils.R2Options{
			AccountID:       cfg.CloudflareAccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			Bucket:          cfg.R2BucketName,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize R2 client")
		}
		archiver = r2
	}

	scheduler, err := services.NewCronScheduler(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start scheduler")
	}

	tokens := services.NewMatchTokenIssuer(cfg.MatchTokenSecret, cfg.MatchTokenTTL())
	progression := services.NewProgressionService(db, logger)
	parties := services.NewPartyRegistry(logger, presence)
	queue := services.NewMatchmakingQueue(logger, presence, parties, tokens, scheduler, services.QueueConfig{
		AcceptTimeout: cfg.AcceptTimeout(),
		JoinBaseURL:   cfg.MatchJoinBaseURL,
	})
	matches := services.NewMatchSessionStore(logger, presence, progression, archiver, services.MatchStoreConfig{
		KillThreshold:  cfg.KillThreshold,
		PersistTimeout: cfg.PersistTimeout(),
	})
	coord := services.NewCoordinator(logger, authenticator, presence, parties, queue, matches, tokens, services.CoordinatorConfig{
		SendBuffer:        cfg.SendBuffer,
		RequireMatchToken: cfg.RequireMatchToken,
	})

	if err := scheduler.Every(time.Minute, "session-gauge", func() {
		logger.Info().
			Int("online", presence.Count()).
			Int("parties", parties.Count()).
			Int("queued", queue.Len()).
			Int("pending_matches", queue.PendingCount()).
			Int("live_matches", matches.Count()).
			Msg("session gauge")
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule session gauge")
	}

	if mirror != nil {
		workers.NewPresenceSyncWorker(presence, mirror, cfg.PresenceSyncInterval(), logger).Start(ctx)
	}

	app := fiber.New(fiber.Config{
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.OriginList(), ","),
		AllowMethods:     "GET,POST,OPTIONS,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	handlers.SetupSessionRoutes(ctx, app, coord, logger)
	handlers.SetupAdminRoutes(app, handlers.SessionState{
		Presence: presence,
		Parties:  parties,
		Queue:    queue,
		Matches:  matches,
	}, cfg.GameServiceToken, logger)
	handlers.SetupStatsRoutes(app, progression, logger)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error().Err(err).Msg("server error")
		}
	}()

	logger.Info().Str("port", cfg.Port).Strs("origins", cfg.OriginList()).
		Dur("accept_timeout", cfg.AcceptTimeout()).Int("kill_threshold", cfg.KillThreshold).
		Bool("archive", cfg.ArchiveEnabled()).Msg("session server running")

	<-ctx.Done()
	logger.Info().Msg("shutting down server")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error().Err(err).Msg("fiber shutdown")
	}
	if err := scheduler.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("scheduler shutdown")
	}
	presence.Close()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close")
		}
	}
}

func newAuthenticator(cfg config.Config, logger zerolog.Logger) services.Authenticator {
	switch {
	case cfg.AuthServiceURL != "":
		logger.Info().Str("url", cfg.AuthServiceURL).Msg("validating session credentials with auth service")
		return services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.GameServiceToken)
	case cfg.AuthJWTSecret != "":
		return services.NewJWTAuthenticator(cfg.AuthJWTSecret)
	default:
		logger.Fatal().Msg("AUTH_SERVICE_URL or AUTH_JWT_SECRET must be set, sessions cannot be authenticated")
		return nil
	}
}
