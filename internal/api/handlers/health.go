package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

var startTime = time.Now()

const version = "1.0.0"

// HealthCheck returns server health status. Redis is the only hard
// dependency, so an unreachable Redis reports degraded.
func HealthCheck(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if rdb != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		c.JSON(code, gin.H{
			"status":  status,
			"service": "pairrooms-api",
			"version": version,
			"uptime":  time.Since(startTime).String(),
		})
	}
}
