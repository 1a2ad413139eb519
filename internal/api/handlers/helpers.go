package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/pairrooms/internal/rooms"
	"github.com/rs/zerolog/log"
)

// apiError maps engine errors to a status code and a stable error code
func apiError(err error) (int, string) {
	switch {
	case errors.Is(err, rooms.ErrInvalidTag):
		return http.StatusBadRequest, "invalid_format"
	case errors.Is(err, rooms.ErrRegionNotFound), errors.Is(err, rooms.ErrRoomNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, rooms.ErrRoomFull):
		return http.StatusConflict, "full"
	case errors.Is(err, rooms.ErrDuplicateTag):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, rooms.ErrAddressRestricted):
		return http.StatusForbidden, "restricted"
	case errors.Is(err, rooms.ErrWrongCount):
		return http.StatusConflict, "wrong_count"
	default:
		return http.StatusServiceUnavailable, "unavailable"
	}
}

// respondError writes the JSON error body for err
func respondError(c *gin.Context, err error) {
	status, code := apiError(err)
	if status == http.StatusServiceUnavailable {
		log.Error().Str("module", "api").Str("path", c.FullPath()).Err(err).Msg("request failed")
		c.JSON(status, gin.H{"error": "service temporarily unavailable", "code": code})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
