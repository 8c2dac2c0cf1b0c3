package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence layer for rooms, rosters and sessions.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the sqlite database at path and migrates the
// schema. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.GroupMember{},
		&models.PushSubscription{},
		&models.Room{},
		&models.Participant{},
		&models.Session{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// New wraps an already-open gorm handle. Used by Transaction.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn atomically. All store methods called on the passed
// store run inside the same database transaction.
func (s *Store) Transaction(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// CreateRoom persists a new room together with its initial roster.
func (s *Store) CreateRoom(room *models.Room) error {
	return s.db.Create(room).Error
}

// RoomByCode loads a room with its roster ordered by position.
func (s *Store) RoomByCode(code string) (*models.Room, error) {
	var room models.Room
	err := s.db.Preload("Participants", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Where("code = ?", code).First(&room).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &room, nil
}

// SaveRoom persists the room's scalar fields. The roster is managed
// through AddParticipant/RemoveParticipant, not through this call.
func (s *Store) SaveRoom(room *models.Room) error {
	return s.db.Omit("Participants").Save(room).Error
}

// AddParticipant appends a roster entry at the given position.
func (s *Store) AddParticipant(p *models.Participant) error {
	return s.db.Create(p).Error
}

// RemoveParticipant deletes the roster entry for (room, user).
func (s *Store) RemoveParticipant(roomID, userID string) error {
	return s.db.Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&models.Participant{}).Error
}

// ClearParticipants empties the roster of a room.
func (s *Store) ClearParticipants(roomID string) error {
	return s.db.Where("room_id = ?", roomID).Delete(&models.Participant{}).Error
}

// NextPosition returns the position for the next roster append. Positions
// only grow, so insertion order stays stable across removals.
func (s *Store) NextPosition(roomID string) (int, error) {
	var max *int
	err := s.db.Model(&models.Participant{}).
		Where("room_id = ?", roomID).
		Select("MAX(position)").Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}

// SessionByRoomAndUser loads the unique session for a (room, user) pair.
func (s *Store) SessionByRoomAndUser(roomID, userID string) (*models.Session, error) {
	var sess models.Session
	err := s.db.Where("room_id = ? AND user_id = ?", roomID, userID).First(&sess).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &sess, nil
}

// CreateSession persists a new session record.
func (s *Store) CreateSession(sess *models.Session) error {
	return s.db.Create(sess).Error
}

// SaveSession persists session mutations.
func (s *Store) SaveSession(sess *models.Session) error {
	return s.db.Save(sess).Error
}

// SessionsByRoom returns every session of a room.
func (s *Store) SessionsByRoom(roomID string) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.Where("room_id = ?", roomID).Find(&sessions).Error
	return sessions, err
}

// NonTerminalSessionsByRoom returns sessions of a room still in a
// non-terminal state. The reaper force-disconnects these.
func (s *Store) NonTerminalSessionsByRoom(roomID string) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.Where("room_id = ? AND status <> ?", roomID, models.SessionStatusDisconnected).
		Find(&sessions).Error
	return sessions, err
}

// ActiveSessionCount counts the non-terminal sessions of a room.
func (s *Store) ActiveSessionCount(roomID string) (int64, error) {
	var count int64
	err := s.db.Model(&models.Session{}).
		Where("room_id = ? AND status <> ?", roomID, models.SessionStatusDisconnected).
		Count(&count).Error
	return count, err
}

// RoomsEndedBefore returns rooms in the ended state whose EndedAt precedes
// the cutoff. This is the reaper's feed.
func (s *Store) RoomsEndedBefore(cutoff time.Time) ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.Where("status = ? AND ended_at IS NOT NULL AND ended_at < ?",
		models.RoomStatusEnded, cutoff).Find(&rooms).Error
	return rooms, err
}

// UserByID loads a user record.
func (s *Store) UserByID(id string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &user, nil
}

// CreateUser persists a user record.
func (s *Store) CreateUser(user *models.User) error {
	return s.db.Create(user).Error
}

// IsGroupMember reports whether the user belongs to the group.
func (s *Store) IsGroupMember(groupID, userID string) (bool, error) {
	var count int64
	err := s.db.Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).Count(&count).Error
	return count > 0, err
}

// IsGroupAdmin reports whether the user holds the admin role in the group.
func (s *Store) IsGroupAdmin(groupID, userID string) (bool, error) {
	var count int64
	err := s.db.Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ? AND role = ?", groupID, userID, models.GroupRoleAdmin).
		Count(&count).Error
	return count > 0, err
}

// AddGroupMember persists a group membership row.
func (s *Store) AddGroupMember(m *models.GroupMember) error {
	return s.db.Create(m).Error
}

// PushSubscriptionsByUser returns the push endpoints of a user.
func (s *Store) PushSubscriptionsByUser(userID string) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := s.db.Where("user_id = ?", userID).Find(&subs).Error
	return subs, err
}

// ReplacePushSubscription keeps a single subscription per user.
func (s *Store) ReplacePushSubscription(sub *models.PushSubscription) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", sub.UserID).
			Delete(&models.PushSubscription{}).Error; err != nil {
			return err
		}
		return tx.Create(sub).Error
	})
}

// DeletePushSubscription removes one endpoint of a user.
func (s *Store) DeletePushSubscription(userID, endpoint string) error {
	return s.db.Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Delete(&models.PushSubscription{}).Error
}
