package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionStatus is the connection lifecycle state of one participant.
type SessionStatus string

const (
	SessionStatusJoining      SessionStatus = "joining"
	SessionStatusConnected    SessionStatus = "connected"
	SessionStatusDisconnected SessionStatus = "disconnected"
	SessionStatusFailed       SessionStatus = "failed"
)

// Terminal reports whether the status can no longer progress.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusDisconnected
}

// Session is the per-(room, user) record of one participant's connection
// lifecycle. It references its room by id only; room-level cleanup looks
// sessions up through the store, never through a back-pointer.
type Session struct {
	ID     string `gorm:"type:varchar(36);primaryKey" json:"id"`
	RoomID string `gorm:"type:varchar(36);not null;index:idx_session_room_user,unique" json:"room_id"`
	UserID string `gorm:"type:varchar(36);not null;index:idx_session_room_user,unique" json:"user_id"`

	Status       SessionStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	Muted        bool          `gorm:"not null;default:false" json:"muted"`
	VideoEnabled bool          `gorm:"not null;default:true" json:"video_enabled"`
	Speaking     bool          `gorm:"not null;default:false" json:"speaking"`

	// Client-reported WebRTC telemetry, stored verbatim. The server never
	// validates these against its own state machine and never uses them
	// for access control.
	ConnectionState string `gorm:"type:varchar(32)" json:"connection_state"`
	ICEState        string `gorm:"type:varchar(32)" json:"ice_state"`

	Token        string     `gorm:"type:varchar(36);not null" json:"token"`
	JoinedAt     time.Time  `json:"joined_at"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
	LastActivity time.Time  `json:"last_activity"`
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Token == "" {
		s.Token = uuid.New().String()
	}
	return nil
}
