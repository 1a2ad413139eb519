package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/pairrooms/internal/config"
	"github.com/playmatatu/pairrooms/internal/models"
)

// GetConfig returns the timing values clients need to drive heartbeats and
// render countdowns
func GetConfig(cfg *config.Config) gin.HandlerFunc {
	regions := make([]gin.H, 0, len(cfg.Regions))
	for _, r := range cfg.Regions {
		regions = append(regions, gin.H{"name": r.Name, "room_count": r.RoomCount})
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"heartbeat_interval_seconds": int(cfg.HeartbeatInterval.Seconds()),
			"presence_ttl_seconds":       int(cfg.PresenceTTL.Seconds()),
			"countdown_seconds":          int(cfg.CountdownDuration.Seconds()),
			"matched_view_seconds":       int(cfg.MatchedViewDelay.Seconds()),
			"keepalive_seconds":          int(cfg.KeepaliveInterval.Seconds()),
			"max_players":                models.MaxPlayers,
			"regions":                    regions,
		})
	}
}
