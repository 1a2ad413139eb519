package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/playmatatu/pairrooms/internal/admin"
	"github.com/playmatatu/pairrooms/internal/config"
	"github.com/playmatatu/pairrooms/internal/middleware"
	"github.com/playmatatu/pairrooms/internal/rooms"
	"github.com/rs/zerolog/log"
)

func adminUsername(c *gin.Context) string {
	return c.GetString(middleware.AdminContextKey)
}

// AdminLogin validates username/password and issues a bearer token
func AdminLogin(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required", "code": "invalid_format"})
			return
		}
		username := strings.TrimSpace(req.Username)

		acc, err := admin.ValidateAdminCredentials(db, username, req.Password)
		if err != nil {
			if errors.Is(err, admin.ErrDisabled) {
				c.JSON(http.StatusNotImplemented, gin.H{"error": "admin login requires a database", "code": "disabled"})
				return
			}
			admin.LogAdminAction(db, username, c.ClientIP(), c.FullPath(), "login", nil, false)
			if errors.Is(err, admin.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials", "code": "unauthorized"})
				return
			}
			log.Error().Str("module", "admin").Err(err).Msg("credential lookup failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable", "code": "unavailable"})
			return
		}

		token, exp, err := middleware.IssueAdminToken(cfg.JWTSecret, acc.Username, acc.Roles, cfg.AdminSessionTTL)
		if err != nil {
			log.Error().Str("module", "admin").Err(err).Msg("failed to sign token")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		admin.LogAdminAction(db, acc.Username, c.ClientIP(), c.FullPath(), "login", nil, true)
		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_at": exp.UTC(),
			"admin":      gin.H{"username": acc.Username, "display_name": acc.DisplayName, "roles": acc.Roles},
		})
	}
}

// AdminResetRoom forces a room back to empty waiting
func AdminResetRoom(db *sqlx.DB, engine *rooms.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		region, roomID := c.Param("region"), c.Param("roomId")
		details := map[string]interface{}{"region": region, "room": roomID}

		err := engine.ResetRoom(c.Request.Context(), region, roomID)
		admin.LogAdminAction(db, adminUsername(c), c.ClientIP(), c.FullPath(), "reset_room", details, err == nil)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// AdminSweep runs one cleanup pass over a region right away
func AdminSweep(db *sqlx.DB, engine *rooms.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		region := c.Param("region")

		res, err := engine.Sweep(c.Request.Context(), region)
		details := map[string]interface{}{"region": region, "evicted": res.Evicted, "released_addresses": res.ReleasedAddress}
		admin.LogAdminAction(db, adminUsername(c), c.ClientIP(), c.FullPath(), "sweep", details, err == nil)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// GetAdminAuditLogs returns paginated audit log entries
func GetAdminAuditLogs(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.DefaultQuery("admin_username", "")
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if limit <= 0 {
			limit = 25
		}
		if limit > 200 {
			limit = 200
		}
		if offset < 0 {
			offset = 0
		}

		logs, total, err := admin.GetAdminAuditLogs(db, username, limit, offset)
		if err != nil {
			if errors.Is(err, admin.ErrDisabled) {
				c.JSON(http.StatusNotImplemented, gin.H{"error": "audit log requires a database", "code": "disabled"})
				return
			}
			log.Error().Str("module", "admin").Err(err).Msg("failed to fetch audit logs")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch audit logs"})
			return
		}

		// Viewing the log is not itself audited
		c.JSON(http.StatusOK, gin.H{"logs": logs, "total": total, "limit": limit, "offset": offset})
	}
}
