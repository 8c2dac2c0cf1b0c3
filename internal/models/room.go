package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoomKind distinguishes direct/multi-party call rooms from group-scoped
// ones. It is resolved once from the room code namespace at the system
// boundary and carried explicitly from then on.
type RoomKind string

const (
	KindDirect RoomKind = "direct"
	KindGroup  RoomKind = "group"
)

// Room code prefixes. Keep values stable because they are part of the
// public API: clients pass codes back verbatim.
const (
	DirectRoomPrefix = "call-"
	GroupRoomPrefix  = "gcall-"
)

// KindFromCode resolves the room kind from a room code namespace.
// The second return value is false for codes outside either namespace.
func KindFromCode(code string) (RoomKind, bool) {
	switch {
	case strings.HasPrefix(code, DirectRoomPrefix):
		return KindDirect, true
	case strings.HasPrefix(code, GroupRoomPrefix):
		return KindGroup, true
	default:
		return "", false
	}
}

// CallType is the media profile requested for a room.
type CallType string

const (
	CallTypeVoice       CallType = "voice"
	CallTypeVideo       CallType = "video"
	CallTypeScreenShare CallType = "screen_share"
	CallTypeConference  CallType = "conference"
)

// RoomStatus is the lifecycle state of a call room.
// Keep values stable because they are part of the public API.
type RoomStatus string

const (
	RoomStatusScheduled RoomStatus = "scheduled"
	RoomStatusWaiting   RoomStatus = "waiting"
	RoomStatusActive    RoomStatus = "active"
	RoomStatusEnded     RoomStatus = "ended"
	RoomStatusCancelled RoomStatus = "cancelled"
)

// Room is the addressable container for a call's participants and
// lifecycle state. Group rooms carry a GroupID and gate joins/ends
// through group membership.
type Room struct {
	ID              string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Code            string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Name            string     `gorm:"type:varchar(200)" json:"name"`
	CreatorID       string     `gorm:"type:varchar(36);not null;index" json:"creator_id"`
	Kind            RoomKind   `gorm:"type:varchar(16);not null" json:"kind"`
	CallType        CallType   `gorm:"type:varchar(16);not null" json:"call_type"`
	Status          RoomStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	GroupID         *string    `gorm:"type:varchar(36);index" json:"group_id,omitempty"`
	MaxParticipants int        `gorm:"not null" json:"max_participants"`
	CapacityGrown   bool       `gorm:"not null;default:false" json:"-"`
	Active          bool       `gorm:"not null;index" json:"active"`
	CreatedAt       time.Time  `json:"created_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`

	// Participants is the ordered roster. Position drives ownership
	// handoff when the creator leaves.
	Participants []Participant `gorm:"foreignKey:RoomID" json:"participants,omitempty"`
}

func (r *Room) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// CanJoin reports whether the room accepts another participant under the
// normal join rules. Policy special cases (reactivation, capacity grow)
// are applied by the registry when this returns false.
func (r *Room) CanJoin() bool {
	if !r.Active {
		return false
	}
	if r.Status != RoomStatusWaiting && r.Status != RoomStatusActive {
		return false
	}
	return len(r.Participants) < r.MaxParticipants
}

// HasParticipant reports whether the user is currently in the roster.
func (r *Room) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// ParticipantIDs returns the roster user ids in insertion order.
func (r *Room) ParticipantIDs() []string {
	ids := make([]string, 0, len(r.Participants))
	for _, p := range r.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// Participant is one ordered roster entry of a room.
type Participant struct {
	ID       uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	RoomID   string    `gorm:"type:varchar(36);not null;index:idx_room_user,unique" json:"room_id"`
	UserID   string    `gorm:"type:varchar(36);not null;index:idx_room_user,unique" json:"user_id"`
	Position int       `gorm:"not null" json:"position"`
	JoinedAt time.Time `json:"joined_at"`
}
