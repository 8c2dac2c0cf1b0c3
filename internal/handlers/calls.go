package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/models"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/rooms"
)

type createRoomRequest struct {
	Name      string   `json:"name"`
	CallType  string   `json:"call_type" binding:"required,oneof=voice video screen_share conference"`
	GroupID   *string  `json:"group_id,omitempty"`
	Invitees  []string `json:"invitees,omitempty"`
	Scheduled bool     `json:"scheduled,omitempty"`
}

type roomResponse struct {
	RoomID          string            `json:"room_id"`
	Name            string            `json:"name"`
	Kind            models.RoomKind   `json:"kind"`
	CallType        models.CallType   `json:"call_type"`
	Status          models.RoomStatus `json:"status"`
	CreatorID       string            `json:"creator_id"`
	Participants    []string          `json:"participants"`
	MaxParticipants int               `json:"max_participants"`
	Active          bool              `json:"active"`
}

func toRoomResponse(room *models.Room) roomResponse {
	return roomResponse{
		RoomID:          room.Code,
		Name:            room.Name,
		Kind:            room.Kind,
		CallType:        room.CallType,
		Status:          room.Status,
		CreatorID:       room.CreatorID,
		Participants:    room.ParticipantIDs(),
		MaxParticipants: room.MaxParticipants,
		Active:          room.Active,
	}
}

func (h *Handlers) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.registry.CreateRoom(rooms.CreateRoomParams{
		CreatorID: callerID(c),
		Name:      req.Name,
		CallType:  models.CallType(req.CallType),
		GroupID:   req.GroupID,
		Invitees:  req.Invitees,
		Scheduled: req.Scheduled,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toRoomResponse(room))
}

func (h *Handlers) GetRoom(c *gin.Context) {
	room, err := h.registry.Get(c.Param("room_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRoomResponse(room))
}

func (h *Handlers) JoinRoom(c *gin.Context) {
	room, err := h.registry.JoinRoom(c.Param("room_id"), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRoomResponse(room))
}

func (h *Handlers) LeaveRoom(c *gin.Context) {
	if err := h.registry.LeaveRoom(c.Param("room_id"), callerID(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": true})
}

func (h *Handlers) EndRoom(c *gin.Context) {
	room, err := h.registry.EndRoom(c.Param("room_id"), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRoomResponse(room))
}

func (h *Handlers) CancelRoom(c *gin.Context) {
	room, err := h.registry.CancelRoom(c.Param("room_id"), callerID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRoomResponse(room))
}

type participantRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handlers) AddParticipant(c *gin.Context) {
	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.registry.AddParticipant(c.Param("room_id"), callerID(c), req.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRoomResponse(room))
}

func (h *Handlers) RemoveParticipant(c *gin.Context) {
	room, err := h.registry.RemoveParticipant(c.Param("room_id"), callerID(c), c.Param("user_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRoomResponse(room))
}

func (h *Handlers) GetStatistics(c *gin.Context) {
	stats, err := h.registry.GetStatistics(c.Param("room_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type connectionStateRequest struct {
	ConnectionState string `json:"connection_state" binding:"required"`
	ICEState        string `json:"ice_state"`
}

// UpdateConnectionState records client-reported WebRTC telemetry.
func (h *Handlers) UpdateConnectionState(c *gin.Context) {
	var req connectionStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.registry.UpdateConnectionState(
		c.Param("room_id"), callerID(c), req.ConnectionState, req.ICEState)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type mediaStateRequest struct {
	Muted        *bool `json:"muted,omitempty"`
	VideoEnabled *bool `json:"video_enabled,omitempty"`
	Speaking     *bool `json:"speaking,omitempty"`
}

// UpdateMediaState persists the caller's media toggles and relays them to
// the rest of the room.
func (h *Handlers) UpdateMediaState(c *gin.Context) {
	var req mediaStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	roomID := c.Param("room_id")
	sess, err := h.registry.UpdateMediaState(roomID, callerID(c), req.Muted, req.VideoEnabled, req.Speaking)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.relayMediaToggles(roomID, callerID(c), req)
	c.JSON(http.StatusOK, sess)
}
