package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/signaling"
)

type directSignalRequest struct {
	To   string          `json:"to" binding:"required"`
	Body json.RawMessage `json:"body" binding:"required"`
}

func (h *Handlers) SendOffer(c *gin.Context) {
	h.sendDirect(c, h.relay.SendOffer)
}

func (h *Handlers) SendAnswer(c *gin.Context) {
	h.sendDirect(c, h.relay.SendAnswer)
}

func (h *Handlers) SendICECandidate(c *gin.Context) {
	h.sendDirect(c, h.relay.SendICECandidate)
}

func (h *Handlers) sendDirect(c *gin.Context, send func(roomCode, from, to string, body json.RawMessage) error) {
	var req directSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := send(c.Param("room_id"), callerID(c), req.To, req.Body); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

type broadcastRequest struct {
	Kind string          `json:"kind" binding:"required"`
	Body json.RawMessage `json:"body"`
}

func (h *Handlers) BroadcastToRoom(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.relay.BroadcastToRoom(c.Param("room_id"), callerID(c), req.Kind, req.Body); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

type invitationRequest struct {
	To string `json:"to" binding:"required"`
}

func (h *Handlers) SendCallInvitation(c *gin.Context) {
	var req invitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.relay.SendCallInvitation(c.Param("room_id"), callerID(c), req.To); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

type responseRequest struct {
	To       string `json:"to" binding:"required"`
	Accepted *bool  `json:"accepted" binding:"required"`
}

func (h *Handlers) SendCallResponse(c *gin.Context) {
	var req responseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.relay.SendCallResponse(c.Param("room_id"), callerID(c), req.To, *req.Accepted); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

// relayMediaToggles mirrors media state changes to the room as control
// messages. Delivery problems are the relay's to log; the caller's
// mutation has already succeeded.
func (h *Handlers) relayMediaToggles(roomID, from string, req mediaStateRequest) {
	emit := func(kind string, value bool) {
		body, _ := json.Marshal(map[string]bool{"value": value})
		if err := h.relay.BroadcastToRoom(roomID, from, kind, body); err != nil {
			h.logger.Debug("media toggle relay failed", "room", roomID, "kind", kind, "error", err)
		}
	}

	if req.Muted != nil {
		emit(signaling.KindMuteToggle, *req.Muted)
	}
	if req.VideoEnabled != nil {
		emit(signaling.KindVideoToggle, *req.VideoEnabled)
	}
	if req.Speaking != nil {
		emit(signaling.KindSpeaking, *req.Speaking)
	}
}
