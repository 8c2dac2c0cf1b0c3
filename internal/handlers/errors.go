package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/rooms"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/sessions"
)

// writeError maps domain sentinels onto HTTP status codes. Anything
// unrecognized is a 500 with a generic body; the detail goes to the log,
// not the client.
func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case errors.Is(err, rooms.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, sessions.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, rooms.ErrRoomFull):
		c.JSON(http.StatusConflict, gin.H{"error": "room is full"})
	case errors.Is(err, rooms.ErrRoomEnded):
		c.JSON(http.StatusConflict, gin.H{"error": "room already ended"})
	case errors.Is(err, rooms.ErrRoomClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "room is not accepting participants"})
	case errors.Is(err, rooms.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "operation not permitted"})
	case errors.Is(err, rooms.ErrNotMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this group"})
	default:
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
