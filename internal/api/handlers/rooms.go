package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/pairrooms/internal/rooms"
)

// ListRooms returns the current snapshot of a region
func ListRooms(engine *rooms.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		region := c.Param("region")
		list, err := engine.Snapshot(c.Request.Context(), region)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"region": region, "rooms": list})
	}
}

// JoinRoom places a new player into a room
func JoinRoom(engine *rooms.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			DisplayTag string `json:"display_tag"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "display_tag required", "code": "invalid_format"})
			return
		}

		player, err := engine.Join(c.Request.Context(), c.Param("region"), c.Param("roomId"),
			strings.TrimSpace(req.DisplayTag), c.ClientIP())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"player_id": player.ID, "player": player})
	}
}

// LeaveRoom removes a player, or every player when no id is given. Browsers
// closing a tab send this with navigator.sendBeacon, which arrives as
// text/plain holding either the JSON body or the bare player id.
func LeaveRoom(engine *rooms.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body", "code": "invalid_format"})
			return
		}
		playerID, ok := leavePlayerID(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed body", "code": "invalid_format"})
			return
		}

		if err := engine.Leave(c.Request.Context(), c.Param("region"), c.Param("roomId"), playerID, c.ClientIP()); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func leavePlayerID(raw []byte) (string, bool) {
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return "", true
	}
	if strings.HasPrefix(body, "{") {
		var req struct {
			PlayerID string `json:"player_id"`
		}
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			return "", false
		}
		return strings.TrimSpace(req.PlayerID), true
	}
	return body, true
}

// Heartbeat refreshes a player's presence marker
func Heartbeat(engine *rooms.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			PlayerID string `json:"player_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "player_id required", "code": "invalid_format"})
			return
		}
		if err := engine.Heartbeat(c.Request.Context(), c.Param("region"), c.Param("roomId"), req.PlayerID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// ConfirmMatch resolves a full room to matched immediately
func ConfirmMatch(engine *rooms.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := engine.ConfirmMatch(c.Request.Context(), c.Param("region"), c.Param("roomId")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
