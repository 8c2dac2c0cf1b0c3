package rooms

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/models"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/sessions"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/store"
)

const roomCodeLength = 12

// MembershipOracle answers group membership questions. Group rooms gate
// joins on membership and privileged actions on the admin role.
type MembershipOracle interface {
	IsMember(groupID, userID string) (bool, error)
	IsAdmin(groupID, userID string) (bool, error)
}

// UserDirectory resolves user identities at the system edge.
type UserDirectory interface {
	Resolve(id string) (*models.User, error)
}

// EventSink receives lifecycle events after a mutation commits. All
// methods are fire-and-forget; their outcome never reaches the caller.
type EventSink interface {
	UserJoined(room *models.Room, userID string)
	UserLeft(room *models.Room, userID string)
	StatusChanged(room *models.Room, previous models.RoomStatus)
	CapacityChanged(room *models.Room, previous int)
	RoomEnded(room *models.Room, recipients []string, reason string)
	ParticipantList(room *models.Room)
	SignalingReady(room *models.Room)
}

// Registry owns room entities and the room lifecycle state machine.
// Every mutation is serialized per room code: validate, mutate, commit,
// then broadcast.
type Registry struct {
	store    *store.Store
	sessions *sessions.Tracker
	events   EventSink
	groups   MembershipOracle
	users    UserDirectory
	policy   JoinPolicy
	locks    *keyedMutex
	logger   *slog.Logger
	nowFn    func() time.Time
}

func NewRegistry(
	st *store.Store,
	tracker *sessions.Tracker,
	events EventSink,
	groups MembershipOracle,
	users UserDirectory,
	policy JoinPolicy,
	logger *slog.Logger,
) *Registry {
	return &Registry{
		store:    st,
		sessions: tracker,
		events:   events,
		groups:   groups,
		users:    users,
		policy:   policy,
		locks:    newKeyedMutex(),
		logger:   logger,
		nowFn:    time.Now,
	}
}

// CreateRoomParams describes a room creation request.
type CreateRoomParams struct {
	CreatorID string
	Name      string
	CallType  models.CallType
	// GroupID makes this a group-scoped room.
	GroupID *string
	// Invitees sizes two-party voice/video rooms. They are not added to
	// the roster; they join (or are invited) separately.
	Invitees []string
	// Scheduled creates a group room in the scheduled state instead of
	// waiting. Ignored for direct rooms.
	Scheduled bool
}

// CreateRoom creates a room with the creator as its first participant and
// an open session for them.
func (r *Registry) CreateRoom(params CreateRoomParams) (*models.Room, error) {
	now := r.nowFn()

	kind := models.KindDirect
	prefix := models.DirectRoomPrefix
	if params.GroupID != nil {
		kind = models.KindGroup
		prefix = models.GroupRoomPrefix

		member, err := r.groups.IsMember(*params.GroupID, params.CreatorID)
		if err != nil {
			return nil, fmt.Errorf("check group membership: %w", err)
		}
		if !member {
			return nil, ErrNotMember
		}
	}

	suffix, err := gonanoid.New(roomCodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate room code: %w", err)
	}

	status := models.RoomStatusWaiting
	if params.Scheduled && kind == models.KindGroup {
		status = models.RoomStatusScheduled
	}

	room := &models.Room{
		Code:            prefix + suffix,
		Name:            params.Name,
		CreatorID:       params.CreatorID,
		Kind:            kind,
		CallType:        params.CallType,
		Status:          status,
		GroupID:         params.GroupID,
		MaxParticipants: initialCapacity(kind, params.CallType, len(params.Invitees)),
		Active:          true,
		CreatedAt:       now,
	}

	err = r.store.Transaction(func(tx *store.Store) error {
		if err := tx.CreateRoom(room); err != nil {
			return err
		}
		participant := &models.Participant{
			RoomID:   room.ID,
			UserID:   params.CreatorID,
			Position: 0,
			JoinedAt: now,
		}
		if err := tx.AddParticipant(participant); err != nil {
			return err
		}
		room.Participants = []models.Participant{*participant}

		_, err := r.sessions.WithStore(tx).GetOrCreate(room.ID, params.CreatorID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("room created",
		"room", room.Code, "kind", room.Kind, "call_type", room.CallType,
		"creator", params.CreatorID, "max_participants", room.MaxParticipants)
	return room, nil
}

// Get loads a room by its code.
func (r *Registry) Get(code string) (*models.Room, error) {
	return r.loadRoom(r.store, code)
}

// JoinRoom adds the user to the room, creating or refreshing their
// session. On reaching two participants the room transitions from waiting
// to active and signaling is announced.
func (r *Registry) JoinRoom(code, userID string) (*models.Room, error) {
	r.locks.Lock(code)
	defer r.locks.Unlock(code)

	now := r.nowFn()

	var (
		room          *models.Room
		statusBefore  models.RoomStatus
		capBefore     int
		grown         bool
		alreadyJoined bool
	)

	err := r.store.Transaction(func(tx *store.Store) error {
		var err error
		room, err = r.loadRoom(tx, code)
		if err != nil {
			return err
		}
		statusBefore = room.Status
		capBefore = room.MaxParticipants

		if room.Kind == models.KindGroup {
			member, err := r.groups.IsMember(*room.GroupID, userID)
			if err != nil {
				return fmt.Errorf("check group membership: %w", err)
			}
			if !member {
				return ErrNotMember
			}
		}

		// Re-adding an existing participant is a no-op; the session is
		// still refreshed so a reconnecting client lands back in joining.
		// Resolved before the policy block so a reconnect never consumes
		// the one-time capacity grow.
		alreadyJoined = room.HasParticipant(userID)

		if !room.CanJoin() {
			switch {
			case room.Status == models.RoomStatusCancelled:
				return ErrRoomClosed
			case room.Status == models.RoomStatusEnded || !room.Active:
				if !r.policy.TryReactivate(room, now) {
					return ErrRoomEnded
				}
			case alreadyJoined:
				// Not taking a slot; the capacity branch doesn't apply.
			case len(room.Participants) >= room.MaxParticipants:
				if !r.policy.TryGrowCapacity(room) {
					return ErrRoomFull
				}
				grown = true
			default:
				return ErrRoomClosed
			}
		}

		if !alreadyJoined {
			position, err := tx.NextPosition(room.ID)
			if err != nil {
				return err
			}
			participant := &models.Participant{
				RoomID:   room.ID,
				UserID:   userID,
				Position: position,
				JoinedAt: now,
			}
			if err := tx.AddParticipant(participant); err != nil {
				return err
			}
			room.Participants = append(room.Participants, *participant)
		}

		if _, err := r.sessions.WithStore(tx).GetOrCreate(room.ID, userID, now); err != nil {
			return err
		}

		if room.Status == models.RoomStatusWaiting && len(room.Participants) >= 2 {
			room.Status = models.RoomStatusActive
		}

		return tx.SaveRoom(room)
	})
	if err != nil {
		return nil, err
	}

	// Mutation is committed; everything below is best-effort fan-out.
	if !alreadyJoined {
		r.events.UserJoined(room, userID)
	}
	if grown {
		r.events.CapacityChanged(room, capBefore)
	}
	if room.Status != statusBefore && room.Status == models.RoomStatusActive {
		r.events.StatusChanged(room, statusBefore)
		r.events.SignalingReady(room)
	}
	r.events.ParticipantList(room)

	r.logger.Info("user joined room",
		"room", room.Code, "user_id", userID, "status", room.Status,
		"participants", len(room.Participants))
	return room, nil
}

// LeaveRoom removes the user from the roster and disconnects their
// session. An emptied room auto-ends; a departing creator hands ownership
// to the first remaining participant in insertion order.
func (r *Registry) LeaveRoom(code, userID string) error {
	r.locks.Lock(code)
	defer r.locks.Unlock(code)

	now := r.nowFn()

	var (
		room    *models.Room
		roster  []string
		ended   bool
		removed bool
	)

	err := r.store.Transaction(func(tx *store.Store) error {
		var err error
		room, err = r.loadRoom(tx, code)
		if err != nil {
			return err
		}

		if err := r.sessions.WithStore(tx).Leave(room.ID, userID, now); err != nil {
			return err
		}
		if !room.HasParticipant(userID) {
			return nil
		}
		removed = true

		if err := tx.RemoveParticipant(room.ID, userID); err != nil {
			return err
		}
		remaining := room.Participants[:0]
		for _, p := range room.Participants {
			if p.UserID != userID {
				remaining = append(remaining, p)
			}
		}
		room.Participants = remaining

		if len(room.Participants) == 0 {
			roster = nil
			ended = true
			return r.endLocked(tx, room, now)
		}

		if room.CreatorID == userID {
			room.CreatorID = room.Participants[0].UserID
			r.logger.Info("room ownership transferred",
				"room", room.Code, "new_creator", room.CreatorID)
		}
		return tx.SaveRoom(room)
	})
	if err != nil {
		return err
	}

	if !removed {
		return nil
	}

	r.events.UserLeft(room, userID)
	if ended {
		r.events.RoomEnded(room, roster, "empty")
	} else {
		r.events.ParticipantList(room)
	}

	r.logger.Info("user left room",
		"room", room.Code, "user_id", userID, "participants", len(room.Participants))
	return nil
}

// EndRoom ends the call. Only the creator may end a direct room; a group
// room may also be ended by a group admin.
func (r *Registry) EndRoom(code, userID string) (*models.Room, error) {
	r.locks.Lock(code)
	defer r.locks.Unlock(code)

	now := r.nowFn()

	var (
		room   *models.Room
		roster []string
	)

	err := r.store.Transaction(func(tx *store.Store) error {
		var err error
		room, err = r.loadRoom(tx, code)
		if err != nil {
			return err
		}
		if room.Status == models.RoomStatusEnded {
			return ErrRoomEnded
		}

		allowed := room.CreatorID == userID
		if !allowed && room.Kind == models.KindGroup {
			admin, err := r.groups.IsAdmin(*room.GroupID, userID)
			if err != nil {
				return fmt.Errorf("check group admin: %w", err)
			}
			allowed = admin
		}
		if !allowed {
			return ErrForbidden
		}

		roster = room.ParticipantIDs()
		return r.endLocked(tx, room, now)
	})
	if err != nil {
		return nil, err
	}

	r.events.RoomEnded(room, roster, "ended-by-"+userID)

	r.logger.Info("room ended",
		"room", room.Code, "ended_by", userID, "duration_seconds", room.DurationSeconds)
	return room, nil
}

// CancelRoom cancels a room that never got going. Creator-only; valid for
// scheduled and waiting rooms.
func (r *Registry) CancelRoom(code, userID string) (*models.Room, error) {
	r.locks.Lock(code)
	defer r.locks.Unlock(code)

	now := r.nowFn()

	var (
		room         *models.Room
		statusBefore models.RoomStatus
	)

	err := r.store.Transaction(func(tx *store.Store) error {
		var err error
		room, err = r.loadRoom(tx, code)
		if err != nil {
			return err
		}
		if room.CreatorID != userID {
			return ErrForbidden
		}
		if room.Status != models.RoomStatusScheduled && room.Status != models.RoomStatusWaiting {
			return ErrRoomClosed
		}

		statusBefore = room.Status
		room.Status = models.RoomStatusCancelled
		room.Active = false
		if err := r.sessions.WithStore(tx).DisconnectAll(room.ID, now); err != nil {
			return err
		}
		return tx.SaveRoom(room)
	})
	if err != nil {
		return nil, err
	}

	r.events.StatusChanged(room, statusBefore)
	return room, nil
}

// AddParticipant lets the creator pull another user into the room.
func (r *Registry) AddParticipant(code, actingUser, targetID string) (*models.Room, error) {
	r.locks.Lock(code)
	defer r.locks.Unlock(code)

	now := r.nowFn()

	var (
		room         *models.Room
		statusBefore models.RoomStatus
		added        bool
	)

	err := r.store.Transaction(func(tx *store.Store) error {
		var err error
		room, err = r.loadRoom(tx, code)
		if err != nil {
			return err
		}
		statusBefore = room.Status

		if room.CreatorID != actingUser {
			return ErrForbidden
		}
		if _, err := r.users.Resolve(targetID); err != nil {
			return ErrUserNotFound
		}
		if room.HasParticipant(targetID) {
			return nil
		}
		if len(room.Participants) >= room.MaxParticipants {
			return ErrRoomFull
		}

		position, err := tx.NextPosition(room.ID)
		if err != nil {
			return err
		}
		participant := &models.Participant{
			RoomID:   room.ID,
			UserID:   targetID,
			Position: position,
			JoinedAt: now,
		}
		if err := tx.AddParticipant(participant); err != nil {
			return err
		}
		room.Participants = append(room.Participants, *participant)
		added = true

		if _, err := r.sessions.WithStore(tx).GetOrCreate(room.ID, targetID, now); err != nil {
			return err
		}

		if room.Status == models.RoomStatusWaiting && len(room.Participants) >= 2 {
			room.Status = models.RoomStatusActive
		}
		return tx.SaveRoom(room)
	})
	if err != nil {
		return nil, err
	}

	if added {
		r.events.UserJoined(room, targetID)
		if room.Status != statusBefore && room.Status == models.RoomStatusActive {
			r.events.StatusChanged(room, statusBefore)
			r.events.SignalingReady(room)
		}
		r.events.ParticipantList(room)
	}
	return room, nil
}

// RemoveParticipant lets the creator eject a participant.
func (r *Registry) RemoveParticipant(code, actingUser, targetID string) (*models.Room, error) {
	r.locks.Lock(code)
	defer r.locks.Unlock(code)

	now := r.nowFn()

	var (
		room   *models.Room
		roster []string
		ended  bool
	)

	err := r.store.Transaction(func(tx *store.Store) error {
		var err error
		room, err = r.loadRoom(tx, code)
		if err != nil {
			return err
		}
		if room.CreatorID != actingUser {
			return ErrForbidden
		}
		if !room.HasParticipant(targetID) {
			return ErrUserNotFound
		}
		roster = room.ParticipantIDs()

		if err := r.sessions.WithStore(tx).Leave(room.ID, targetID, now); err != nil {
			return err
		}
		if err := tx.RemoveParticipant(room.ID, targetID); err != nil {
			return err
		}
		remaining := room.Participants[:0]
		for _, p := range room.Participants {
			if p.UserID != targetID {
				remaining = append(remaining, p)
			}
		}
		room.Participants = remaining

		if len(room.Participants) == 0 {
			ended = true
			return r.endLocked(tx, room, now)
		}

		// A creator removing themselves hands ownership off exactly like
		// LeaveRoom does.
		if room.CreatorID == targetID {
			room.CreatorID = room.Participants[0].UserID
			r.logger.Info("room ownership transferred",
				"room", room.Code, "new_creator", room.CreatorID)
		}
		return tx.SaveRoom(room)
	})
	if err != nil {
		return nil, err
	}

	r.events.UserLeft(room, targetID)
	if ended {
		r.events.RoomEnded(room, roster, "empty")
	} else {
		r.events.ParticipantList(room)
	}
	return room, nil
}

// Statistics is the per-room stats snapshot served by the API.
type Statistics struct {
	RoomID           string            `json:"room_id"`
	Code             string            `json:"code"`
	Name             string            `json:"name"`
	Kind             models.RoomKind   `json:"kind"`
	CallType         models.CallType   `json:"call_type"`
	Status           models.RoomStatus `json:"status"`
	ParticipantCount int               `json:"participant_count"`
	MaxParticipants  int               `json:"max_participants"`
	ActiveSessions   int64             `json:"active_sessions"`
	DurationSeconds  int               `json:"duration_seconds"`
	CreatedAt        time.Time         `json:"created_at"`
	EndedAt          *time.Time        `json:"ended_at,omitempty"`
}

// GetStatistics computes the stats snapshot for a room. For a live room
// the duration runs from creation to now; for an ended one it is the
// stored final duration.
func (r *Registry) GetStatistics(code string) (*Statistics, error) {
	room, err := r.loadRoom(r.store, code)
	if err != nil {
		return nil, err
	}

	duration := room.DurationSeconds
	if room.Status != models.RoomStatusEnded {
		duration = int(r.nowFn().Sub(room.CreatedAt).Seconds())
	}

	active, err := r.sessions.ActiveCount(room.ID)
	if err != nil {
		return nil, err
	}

	return &Statistics{
		RoomID:           room.ID,
		Code:             room.Code,
		Name:             room.Name,
		Kind:             room.Kind,
		CallType:         room.CallType,
		Status:           room.Status,
		ParticipantCount: len(room.Participants),
		MaxParticipants:  room.MaxParticipants,
		ActiveSessions:   active,
		DurationSeconds:  duration,
		CreatedAt:        room.CreatedAt,
		EndedAt:          room.EndedAt,
	}, nil
}

// UpdateConnectionState records client-reported WebRTC telemetry for the
// user's session under the room's serialization discipline.
func (r *Registry) UpdateConnectionState(code, userID, connectionState, iceState string) (*models.Session, error) {
	r.locks.Lock(code)
	defer r.locks.Unlock(code)

	room, err := r.loadRoom(r.store, code)
	if err != nil {
		return nil, err
	}
	return r.sessions.UpdateConnectionState(room.ID, userID, connectionState, iceState, r.nowFn())
}

// UpdateMediaState records the user's media toggle flags.
func (r *Registry) UpdateMediaState(code, userID string, muted, videoEnabled, speaking *bool) (*models.Session, error) {
	r.locks.Lock(code)
	defer r.locks.Unlock(code)

	room, err := r.loadRoom(r.store, code)
	if err != nil {
		return nil, err
	}
	return r.sessions.UpdateMediaState(room.ID, userID, muted, videoEnabled, speaking, r.nowFn())
}

// endLocked finalizes a room: disconnect lingering sessions, stamp the
// end, clear the roster. Callers hold the room lock and run inside a
// transaction.
func (r *Registry) endLocked(tx *store.Store, room *models.Room, now time.Time) error {
	if err := r.sessions.WithStore(tx).DisconnectAll(room.ID, now); err != nil {
		return err
	}

	room.Status = models.RoomStatusEnded
	room.Active = false
	endedAt := now
	room.EndedAt = &endedAt
	room.DurationSeconds = int(now.Sub(room.CreatedAt).Seconds())
	if room.DurationSeconds < 0 {
		room.DurationSeconds = 0
	}
	room.Participants = nil

	if err := tx.ClearParticipants(room.ID); err != nil {
		return err
	}
	return tx.SaveRoom(room)
}

// loadRoom resolves the code's namespace once and fetches the room. Codes
// outside either namespace, and namespace/row mismatches, surface as not
// found.
func (r *Registry) loadRoom(s *store.Store, code string) (*models.Room, error) {
	kind, ok := models.KindFromCode(code)
	if !ok {
		return nil, ErrRoomNotFound
	}
	room, err := s.RoomByCode(code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	if room.Kind != kind {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// SetNowFunc overrides the clock. Tests only.
func (r *Registry) SetNowFunc(fn func() time.Time) {
	r.nowFn = fn
}
