package events

import (
	"log/slog"
	"time"

	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/models"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/transport"
)

// Event kinds delivered on the room-events channel.
const (
	KindUserJoined      = "user-joined"
	KindUserLeft        = "user-left"
	KindStatusChanged   = "room-status-changed"
	KindCapacityChanged = "room-capacity-changed"
	KindRoomEnded       = "room-ended"
	KindParticipants    = "participant-list-update"
	KindSignalingReady  = "signaling-ready"
)

// Event is one lifecycle notification pushed to a participant.
type Event struct {
	Kind   string `json:"kind"`
	RoomID string `json:"room_id"`
	SentAt string `json:"sent_at"`
	Data   any    `json:"data,omitempty"`
}

// Broadcaster emits room lifecycle events to every current participant's
// private room-events address. All sends are best-effort: a failed
// delivery is logged and never blocks the rest of the fan-out, and the
// caller's state mutation has already committed by the time any event is
// sent.
type Broadcaster struct {
	pub    transport.Publisher
	logger *slog.Logger
	nowFn  func() time.Time
}

func NewBroadcaster(pub transport.Publisher, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{pub: pub, logger: logger, nowFn: time.Now}
}

// UserJoined announces a new roster entry to the room.
func (b *Broadcaster) UserJoined(room *models.Room, userID string) {
	b.fanOut(room, room.ParticipantIDs(), Event{
		Kind:   KindUserJoined,
		RoomID: room.Code,
		Data:   map[string]any{"user_id": userID},
	})
}

// UserLeft announces a departure to the remaining roster.
func (b *Broadcaster) UserLeft(room *models.Room, userID string) {
	b.fanOut(room, room.ParticipantIDs(), Event{
		Kind:   KindUserLeft,
		RoomID: room.Code,
		Data:   map[string]any{"user_id": userID},
	})
}

// StatusChanged announces a lifecycle transition.
func (b *Broadcaster) StatusChanged(room *models.Room, previous models.RoomStatus) {
	b.fanOut(room, room.ParticipantIDs(), Event{
		Kind:   KindStatusChanged,
		RoomID: room.Code,
		Data: map[string]any{
			"previous_status": previous,
			"status":          room.Status,
		},
	})
}

// CapacityChanged announces a participant cap adjustment.
func (b *Broadcaster) CapacityChanged(room *models.Room, previous int) {
	b.fanOut(room, room.ParticipantIDs(), Event{
		Kind:   KindCapacityChanged,
		RoomID: room.Code,
		Data: map[string]any{
			"previous_max_participants": previous,
			"max_participants":          room.MaxParticipants,
		},
	})
}

// RoomEnded announces the end of the call. The recipient list is the
// roster captured before the end cleared it.
func (b *Broadcaster) RoomEnded(room *models.Room, recipients []string, reason string) {
	b.fanOut(room, recipients, Event{
		Kind:   KindRoomEnded,
		RoomID: room.Code,
		Data: map[string]any{
			"reason":           reason,
			"duration_seconds": room.DurationSeconds,
		},
	})
}

// ParticipantList pushes the full roster, recomputed from live room state
// at send time.
func (b *Broadcaster) ParticipantList(room *models.Room) {
	roster := room.ParticipantIDs()
	b.fanOut(room, roster, Event{
		Kind:   KindParticipants,
		RoomID: room.Code,
		Data: map[string]any{
			"participants":     roster,
			"max_participants": room.MaxParticipants,
		},
	})
}

// SignalingReady tells participants that negotiation may begin.
func (b *Broadcaster) SignalingReady(room *models.Room) {
	b.fanOut(room, room.ParticipantIDs(), Event{
		Kind:   KindSignalingReady,
		RoomID: room.Code,
	})
}

// Custom emits an application-defined event kind to the current roster.
func (b *Broadcaster) Custom(room *models.Room, kind string, data any) {
	b.fanOut(room, room.ParticipantIDs(), Event{
		Kind:   kind,
		RoomID: room.Code,
		Data:   data,
	})
}

// fanOut delivers the event to each recipient's private address, one send
// per recipient with per-send error containment. A failed recipient never
// blocks the rest.
func (b *Broadcaster) fanOut(room *models.Room, recipients []string, ev Event) {
	ev.SentAt = b.nowFn().UTC().Format(time.RFC3339Nano)

	for _, userID := range recipients {
		addr := transport.UserAddress(userID, transport.ChannelRoomEvents)
		if err := b.pub.Publish(addr, ev); err != nil {
			b.logger.Warn("room event delivery failed",
				"kind", ev.Kind, "room", room.Code, "user_id", userID, "error", err)
		}
	}
}
