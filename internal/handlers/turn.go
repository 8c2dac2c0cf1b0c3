package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetTURNConfig hands clients the ICE server list for their RTCPeerConnection.
func (h *Handlers) GetTURNConfig(c *gin.Context) {
	creds := h.turnServer.GetCredentials()

	host := h.config.Domain
	if host == "" {
		host = c.Request.Host
	}

	c.JSON(http.StatusOK, gin.H{
		"iceServers": []gin.H{
			{
				"urls": []string{"stun:stun.l.google.com:19302"},
			},
			{
				"urls":       []string{fmt.Sprintf("turn:%s:%d", host, h.config.TURNPort)},
				"username":   creds.Username,
				"credential": creds.Password,
			},
		},
	})
}
