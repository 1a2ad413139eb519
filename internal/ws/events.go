package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/pairrooms/internal/rooms"
	"github.com/rs/zerolog/log"
)

// HandleEvents upgrades to a WebSocket that streams a region's room feed:
// a snapshot right away, then every snapshot and tick published anywhere in
// the cluster, plus keep-alive frames.
func HandleEvents(engine *rooms.Engine, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		region := c.Param("region")
		if !engine.HasRegion(region) {
			c.JSON(http.StatusNotFound, gin.H{"error": "region not found", "code": "not_found"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Str("module", "ws").Err(err).Msg("upgrade failed")
			return
		}

		client := newClient(hub, conn, region)
		if !hub.Register(client) {
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()

		// Registered before the read so no broadcast is missed. A broadcast
		// racing the read may still land ahead of this older snapshot; the
		// next snapshot frame replaces it.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		list, err := engine.Snapshot(ctx, region)
		if err != nil {
			log.Warn().Str("module", "ws").Str("region", region).Err(err).Msg("initial snapshot failed")
			return
		}
		client.sendEvent(rooms.SnapshotEvent(region, list))
	}
}
