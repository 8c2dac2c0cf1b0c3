package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the slice of the account record this core reads: identity and
// the display fields embedded in signaling envelopes and invitations.
type User struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Username    string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	DisplayName string    `gorm:"type:varchar(200)" json:"display_name"`
	AvatarURL   string    `gorm:"type:text" json:"avatar_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// GroupMember links a user to a group with a role. Group call rooms gate
// join on membership and end on the admin role.
type GroupMember struct {
	ID       uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	GroupID  string    `gorm:"type:varchar(36);not null;index:idx_group_user,unique" json:"group_id"`
	UserID   string    `gorm:"type:varchar(36);not null;index:idx_group_user,unique" json:"user_id"`
	Role     string    `gorm:"type:varchar(16);not null;default:member" json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

const GroupRoleAdmin = "admin"

// PushSubscription is one browser push endpoint registered by a user.
// Call invitations are mirrored to these endpoints best-effort.
type PushSubscription struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Endpoint  string    `gorm:"type:text;not null" json:"endpoint"`
	P256DH    string    `gorm:"type:text;not null" json:"p256dh"`
	Auth      string    `gorm:"type:text;not null" json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *PushSubscription) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
