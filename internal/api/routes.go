package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playmatatu/pairrooms/internal/api/handlers"
	"github.com/playmatatu/pairrooms/internal/config"
	"github.com/playmatatu/pairrooms/internal/middleware"
	"github.com/playmatatu/pairrooms/internal/rooms"
	"github.com/playmatatu/pairrooms/internal/ws"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SetupRoutes configures all API routes. db may be nil, in which case admin
// login is unavailable.
func SetupRoutes(router *gin.Engine, db *sqlx.DB, rdb *redis.Client, engine *rooms.Engine, hub *ws.Hub, cfg *config.Config) {
	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.WebSocketCORSCheck(cfg))

	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Next()
		})
		log.Debug().Str("module", "api").Msg("no-cache headers enabled for all routes")
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck(rdb))
		v1.GET("/config", handlers.GetConfig(cfg))

		region := v1.Group("/regions/:region")
		{
			region.GET("/rooms", handlers.ListRooms(engine))
			region.GET("/events", ws.HandleEvents(engine, hub))

			room := region.Group("/rooms/:roomId")
			{
				room.POST("/join", middleware.RateLimitByAddress(cfg.JoinRatePerMinute), handlers.JoinRoom(engine))
				room.POST("/leave", handlers.LeaveRoom(engine))
				room.POST("/heartbeat", handlers.Heartbeat(engine))
				room.POST("/confirm", handlers.ConfirmMatch(engine))
			}
		}

		adminGroup := v1.Group("/admin")
		{
			adminGroup.POST("/login", handlers.AdminLogin(db, cfg))

			protected := adminGroup.Group("", middleware.AdminAuth(cfg.JWTSecret))
			{
				protected.POST("/regions/:region/rooms/:roomId/reset", handlers.AdminResetRoom(db, engine))
				protected.POST("/regions/:region/sweep", handlers.AdminSweep(db, engine))
				protected.GET("/audit", handlers.GetAdminAuditLogs(db))
			}
		}
	}
}
