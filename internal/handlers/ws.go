package handlers

import (
	"github.com/gin-gonic/gin"
)

// HandleWebSocket attaches the caller to the pub/sub transport. The
// connection is subscribed to the caller's private addresses immediately;
// room broadcast addresses can be added with subscribe frames.
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	userID := callerID(c)

	conn, err := h.wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "user_id", userID, "error", err)
		return
	}

	h.logger.Debug("ws attached", "user_id", userID, "ip", c.ClientIP())

	client := h.hub.Attach(conn, userID)
	go h.hub.WritePump(client)
	h.hub.ReadPump(client)
}
