package signaling

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/models"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/rooms"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/transport"
)

// Message kinds forwarded on the call-signaling channel. Payloads are
// opaque: the relay never inspects SDP or candidate contents.
const (
	KindOffer        = "offer"
	KindAnswer       = "answer"
	KindICECandidate = "ice-candidate"
)

// Control kinds relayed room-wide on the call-signaling channel.
const (
	KindMuteToggle   = "mute-toggle"
	KindVideoToggle  = "video-toggle"
	KindSpeaking     = "speaking"
	KindCallInvite   = "call-invitation"
	KindCallAccepted = "call-accepted"
	KindCallDeclined = "call-declined"
)

// Envelope is the frame every relayed message travels in.
type Envelope struct {
	Kind     string          `json:"kind"`
	FromID   string          `json:"from_id"`
	FromName string          `json:"from_name"`
	RoomID   string          `json:"room_id"`
	Body     json.RawMessage `json:"body,omitempty"`
	SentAt   time.Time       `json:"sent_at"`
}

// Invitation is the body of a call-invitation message: enough metadata to
// render an incoming-call prompt without another round trip.
type Invitation struct {
	RoomID        string          `json:"room_id"`
	RoomName      string          `json:"room_name"`
	CallType      models.CallType `json:"call_type"`
	InviterID     string          `json:"inviter_id"`
	InviterName   string          `json:"inviter_name"`
	InviterAvatar string          `json:"inviter_avatar,omitempty"`
}

// Response is the body of a call accept/decline echo.
type Response struct {
	RoomID   string `json:"room_id"`
	FromID   string `json:"from_id"`
	FromName string `json:"from_name"`
	Accepted bool   `json:"accepted"`
}

// RoomSource resolves rooms for validation and live roster reads. The
// registry satisfies this.
type RoomSource interface {
	Get(code string) (*models.Room, error)
}

// Notifier pushes asynchronous call notifications. Failures stay inside
// the gateway; the relay never sees them.
type Notifier interface {
	NotifyCallInvitation(recipientID string, sender *models.User, room *models.Room)
	NotifyCallResponse(recipientID string, sender *models.User, roomID string, accepted bool)
}

// Relay forwards WebRTC negotiation primitives and out-of-band control
// messages between participants without interpreting payloads beyond
// their kind. It gives no ordering guarantee beyond the transport's
// per-destination FIFO: ICE candidates may overtake or trail the answer
// and are never held back or reordered.
type Relay struct {
	roomSrc  RoomSource
	users    rooms.UserDirectory
	pub      transport.Publisher
	notifier Notifier
	logger   *slog.Logger
	nowFn    func() time.Time
}

func NewRelay(
	roomSrc RoomSource,
	users rooms.UserDirectory,
	pub transport.Publisher,
	notifier Notifier,
	logger *slog.Logger,
) *Relay {
	return &Relay{
		roomSrc:  roomSrc,
		users:    users,
		pub:      pub,
		notifier: notifier,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// SendOffer forwards an SDP offer to one recipient.
func (r *Relay) SendOffer(roomCode, from, to string, body json.RawMessage) error {
	return r.sendDirect(roomCode, from, to, KindOffer, body)
}

// SendAnswer forwards an SDP answer to one recipient.
func (r *Relay) SendAnswer(roomCode, from, to string, body json.RawMessage) error {
	return r.sendDirect(roomCode, from, to, KindAnswer, body)
}

// SendICECandidate forwards one trickled ICE candidate to one recipient.
func (r *Relay) SendICECandidate(roomCode, from, to string, body json.RawMessage) error {
	return r.sendDirect(roomCode, from, to, KindICECandidate, body)
}

// sendDirect validates the room and delivers to the recipient's private
// signaling address. The recipient's current room membership is not
// re-verified before delivery; stale-destination sends are tolerated in
// exchange for not re-reading the roster on every candidate.
func (r *Relay) sendDirect(roomCode, from, to, kind string, body json.RawMessage) error {
	room, err := r.roomSrc.Get(roomCode)
	if err != nil {
		return err
	}

	env := r.envelope(room, from, kind, body)

	addr := transport.UserAddress(to, transport.ChannelCallSignaling)
	if err := r.pub.Publish(addr, env); err != nil {
		return fmt.Errorf("deliver %s: %w", kind, err)
	}

	r.logger.Debug("signaling forwarded",
		"kind", kind, "room", room.Code, "from", from, "to", to, "body_bytes", len(body))
	return nil
}

// BroadcastToRoom delivers a control message to every current participant
// except the sender. The roster is re-read at send time so someone who
// just left gets nothing. The sender must still be a participant.
func (r *Relay) BroadcastToRoom(roomCode, from, kind string, body json.RawMessage) error {
	room, err := r.roomSrc.Get(roomCode)
	if err != nil {
		return err
	}
	if !room.HasParticipant(from) {
		return rooms.ErrForbidden
	}

	env := r.envelope(room, from, kind, body)

	for _, userID := range room.ParticipantIDs() {
		if userID == from {
			continue
		}
		addr := transport.UserAddress(userID, transport.ChannelCallSignaling)
		if err := r.pub.Publish(addr, env); err != nil {
			// One failed recipient must not starve the rest.
			r.logger.Warn("broadcast delivery failed",
				"kind", kind, "room", room.Code, "user_id", userID, "error", err)
		}
	}
	return nil
}

// SendCallInvitation delivers an incoming-call prompt to one user. Group
// room invitations are additionally mirrored to the room's invitation
// address so subscribed group members see that a call started. A push
// notification is fired alongside, fire-and-forget.
func (r *Relay) SendCallInvitation(roomCode, from, to string) error {
	room, err := r.roomSrc.Get(roomCode)
	if err != nil {
		return err
	}

	sender, err := r.users.Resolve(from)
	if err != nil {
		return rooms.ErrUserNotFound
	}
	if _, err := r.users.Resolve(to); err != nil {
		return rooms.ErrUserNotFound
	}

	invitation := Invitation{
		RoomID:        room.Code,
		RoomName:      room.Name,
		CallType:      room.CallType,
		InviterID:     sender.ID,
		InviterName:   displayName(sender),
		InviterAvatar: sender.AvatarURL,
	}
	body, err := json.Marshal(invitation)
	if err != nil {
		return err
	}
	env := r.envelope(room, from, KindCallInvite, body)

	addr := transport.UserAddress(to, transport.ChannelCallInvitations)
	if err := r.pub.Publish(addr, env); err != nil {
		return fmt.Errorf("deliver invitation: %w", err)
	}

	if room.Kind == models.KindGroup {
		roomAddr := transport.RoomAddress(room.Code, transport.ChannelCallInvitations)
		if err := r.pub.Publish(roomAddr, env); err != nil {
			r.logger.Warn("invitation mirror failed", "room", room.Code, "error", err)
		}
	}

	go r.notifier.NotifyCallInvitation(to, sender, room)

	r.logger.Info("call invitation sent", "room", room.Code, "from", from, "to", to)
	return nil
}

// SendCallResponse echoes an accept/decline to the inviter.
func (r *Relay) SendCallResponse(roomCode, from, to string, accepted bool) error {
	room, err := r.roomSrc.Get(roomCode)
	if err != nil {
		return err
	}

	sender, err := r.users.Resolve(from)
	if err != nil {
		return rooms.ErrUserNotFound
	}

	kind := KindCallDeclined
	if accepted {
		kind = KindCallAccepted
	}
	body, err := json.Marshal(Response{
		RoomID:   room.Code,
		FromID:   sender.ID,
		FromName: displayName(sender),
		Accepted: accepted,
	})
	if err != nil {
		return err
	}
	env := r.envelope(room, from, kind, body)

	addr := transport.UserAddress(to, transport.ChannelCallInvitations)
	if err := r.pub.Publish(addr, env); err != nil {
		return fmt.Errorf("deliver response: %w", err)
	}

	go r.notifier.NotifyCallResponse(to, sender, room.Code, accepted)
	return nil
}

func (r *Relay) envelope(room *models.Room, from, kind string, body json.RawMessage) Envelope {
	name := from
	if sender, err := r.users.Resolve(from); err == nil {
		name = displayName(sender)
	}
	return Envelope{
		Kind:     kind,
		FromID:   from,
		FromName: name,
		RoomID:   room.Code,
		Body:     body,
		SentAt:   r.nowFn().UTC(),
	}
}

func displayName(u *models.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// SetNowFunc overrides the clock. Tests only.
func (r *Relay) SetNowFunc(fn func() time.Time) {
	r.nowFn = fn
}
