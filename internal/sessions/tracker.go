package sessions

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/models"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/store"
)

// ErrSessionNotFound is returned when no session exists for a (room, user)
// pair.
var ErrSessionNotFound = errors.New("session not found")

// Tracker owns the per-(room, user) session records. Sessions reference
// their room by id; the tracker never walks from a room object to its
// sessions except through store queries.
//
// Callers serialize access per room: the tracker itself takes no locks and
// expects to run under the registry's per-room lock (and, for compound
// mutations, inside the registry's transaction via WithStore).
type Tracker struct {
	store  *store.Store
	logger *slog.Logger
}

func NewTracker(st *store.Store, logger *slog.Logger) *Tracker {
	return &Tracker{store: st, logger: logger}
}

// WithStore returns a tracker bound to a different store handle, typically
// a transaction. The logger is shared.
func (t *Tracker) WithStore(st *store.Store) *Tracker {
	return &Tracker{store: st, logger: t.logger}
}

// GetOrCreate returns the session for (room, user), creating it on first
// join. A re-join reuses the existing record and resets it to joining
// rather than creating a duplicate; under the per-room lock a concurrent
// duplicate join observes the same row.
func (t *Tracker) GetOrCreate(roomID, userID string, now time.Time) (*models.Session, error) {
	sess, err := t.store.SessionByRoomAndUser(roomID, userID)
	if err == nil {
		sess.Status = models.SessionStatusJoining
		sess.LeftAt = nil
		sess.LastActivity = now
		if err := t.store.SaveSession(sess); err != nil {
			return nil, fmt.Errorf("refresh session: %w", err)
		}
		return sess, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	sess = &models.Session{
		RoomID:       roomID,
		UserID:       userID,
		Status:       models.SessionStatusJoining,
		VideoEnabled: true,
		JoinedAt:     now,
		LastActivity: now,
	}
	if err := t.store.CreateSession(sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// UpdateConnectionState stores the client-reported connection and ICE
// state strings verbatim and refreshes last activity. The values are
// telemetry, not an access-control signal; the server applies no state
// machine to them.
func (t *Tracker) UpdateConnectionState(roomID, userID, connectionState, iceState string, now time.Time) (*models.Session, error) {
	sess, err := t.get(roomID, userID)
	if err != nil {
		return nil, err
	}

	sess.ConnectionState = connectionState
	sess.ICEState = iceState
	sess.LastActivity = now
	switch connectionState {
	case "connected", "completed":
		if sess.Status == models.SessionStatusJoining {
			sess.Status = models.SessionStatusConnected
		}
	case "failed":
		sess.Status = models.SessionStatusFailed
	}

	if err := t.store.SaveSession(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// UpdateMediaState persists the client's media toggle flags. Nil means
// "leave unchanged".
func (t *Tracker) UpdateMediaState(roomID, userID string, muted, videoEnabled, speaking *bool, now time.Time) (*models.Session, error) {
	sess, err := t.get(roomID, userID)
	if err != nil {
		return nil, err
	}

	if muted != nil {
		sess.Muted = *muted
	}
	if videoEnabled != nil {
		sess.VideoEnabled = *videoEnabled
	}
	if speaking != nil {
		sess.Speaking = *speaking
	}
	sess.LastActivity = now

	if err := t.store.SaveSession(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Leave marks the session disconnected. Missing sessions are tolerated:
// a leave for a user who never joined is a no-op.
func (t *Tracker) Leave(roomID, userID string, now time.Time) error {
	sess, err := t.get(roomID, userID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if sess.Status.Terminal() {
		return nil
	}
	return t.disconnect(sess, now)
}

// DisconnectAll force-disconnects every non-terminal session of a room.
func (t *Tracker) DisconnectAll(roomID string, now time.Time) error {
	sessions, err := t.store.NonTerminalSessionsByRoom(roomID)
	if err != nil {
		return err
	}
	for i := range sessions {
		if err := t.disconnect(&sessions[i], now); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tracker) disconnect(sess *models.Session, now time.Time) error {
	sess.Status = models.SessionStatusDisconnected
	left := now
	sess.LeftAt = &left
	sess.LastActivity = now
	return t.store.SaveSession(sess)
}

func (t *Tracker) get(roomID, userID string) (*models.Session, error) {
	sess, err := t.store.SessionByRoomAndUser(roomID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// SessionsByRoom returns every session of a room.
func (t *Tracker) SessionsByRoom(roomID string) ([]models.Session, error) {
	return t.store.SessionsByRoom(roomID)
}

// ActiveCount counts the room's non-terminal sessions.
func (t *Tracker) ActiveCount(roomID string) (int64, error) {
	return t.store.ActiveSessionCount(roomID)
}

// NonTerminalByRoom returns the room's sessions still short of a terminal
// state. The reaper uses this to find lingerers.
func (t *Tracker) NonTerminalByRoom(roomID string) ([]models.Session, error) {
	return t.store.NonTerminalSessionsByRoom(roomID)
}
