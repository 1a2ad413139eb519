package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playmatatu/pairrooms/internal/api"
	"github.com/playmatatu/pairrooms/internal/broker"
	"github.com/playmatatu/pairrooms/internal/config"
	"github.com/playmatatu/pairrooms/internal/database"
	"github.com/playmatatu/pairrooms/internal/logging"
	"github.com/playmatatu/pairrooms/internal/migrations"
	"github.com/playmatatu/pairrooms/internal/redis"
	"github.com/playmatatu/pairrooms/internal/rooms"
	"github.com/playmatatu/pairrooms/internal/ws"
	"github.com/rs/zerolog/log"
)

func main() {
	// Initialize configuration (loads .env when present)
	cfg := config.Load()
	logging.Setup(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Redis
	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer rdb.Close()

	// Initialize database (admin features only)
	var db *sqlx.DB
	if cfg.DatabaseURL != "" {
		if cfg.MigrateOnStart {
			log.Info().Str("module", "migrate").Msg("running DB migrations on startup")
			if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
				log.Fatal().Err(err).Msg("failed to run migrations")
			}
		}
		db, err = database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
	} else {
		log.Warn().Msg("DATABASE_URL not set; admin login and audit log disabled")
	}

	// Event broker
	var b broker.Broker
	switch cfg.BroadcastBackend {
	case "nats":
		b, err = broker.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
	default:
		b = broker.NewRedis(rdb)
	}
	defer b.Close()
	log.Info().Str("backend", cfg.BroadcastBackend).Msg("event broker ready")

	regions := make(map[string]int, len(cfg.Regions))
	for _, r := range cfg.Regions {
		regions[r.Name] = r.RoomCount
	}

	engine := rooms.NewEngine(ctx, rdb, regions, b, rooms.Options{
		PresenceTTL:       cfg.PresenceTTL,
		CountdownDuration: cfg.CountdownDuration,
		MatchedViewDelay:  cfg.MatchedViewDelay,
		CountdownTick:     cfg.CountdownTick,
	})

	hub := ws.NewHub(cfg.KeepaliveInterval)
	go hub.Run(ctx)
	ws.StartEventSubscriber(ctx, b, hub, cfg.RegionNames())
	go rooms.StartCleanupSweeper(ctx, engine, cfg.RegionNames(), cfg.SweepInterval)

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Fatal().Err(err).Msg("invalid TRUSTED_PROXIES")
	}

	api.SetupRoutes(router, db, rdb, engine, hub, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Strs("regions", cfg.RegionNames()).Msg("starting pairrooms server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	engine.Scheduler().Wait()
}
