package rooms

import (
	"time"

	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/models"
)

// Capacity defaults. Two-party voice/video calls size to the invite list,
// unconstrained call types get a fixed default, group rooms a larger one.
const (
	DefaultOpenCapacity  = 10
	DefaultGroupCapacity = 50
	capacityGrowStep     = 2
	capacityGrowCeiling  = 4
)

// JoinPolicy holds the join-path accommodations that go beyond the plain
// canJoin rules. They are isolated here so product can toggle them
// independently of the lifecycle state machine.
type JoinPolicy struct {
	// AllowReactivation lets a recently ended room be silently revived to
	// waiting/active when someone joins it within ReactivationWindow.
	AllowReactivation  bool
	ReactivationWindow time.Duration

	// AllowCapacityGrow lets a small room at capacity grow by two slots
	// exactly once instead of rejecting the join.
	AllowCapacityGrow bool
}

// DefaultJoinPolicy preserves the behavior the product currently ships.
func DefaultJoinPolicy() JoinPolicy {
	return JoinPolicy{
		AllowReactivation:  true,
		ReactivationWindow: 2 * time.Hour,
		AllowCapacityGrow:  true,
	}
}

// TryReactivate revives an ended room if the policy allows it. Reports
// whether the room was changed.
func (p JoinPolicy) TryReactivate(room *models.Room, now time.Time) bool {
	if !p.AllowReactivation {
		return false
	}
	if room.Status != models.RoomStatusEnded || room.Active {
		return false
	}
	if room.EndedAt == nil || now.Sub(*room.EndedAt) >= p.ReactivationWindow {
		return false
	}
	room.Status = models.RoomStatusWaiting
	room.Active = true
	room.EndedAt = nil
	room.DurationSeconds = 0
	return true
}

// TryGrowCapacity widens a small live room once. Reports whether the cap
// was changed.
func (p JoinPolicy) TryGrowCapacity(room *models.Room) bool {
	if !p.AllowCapacityGrow {
		return false
	}
	if !room.Active {
		return false
	}
	if room.Status != models.RoomStatusWaiting && room.Status != models.RoomStatusActive {
		return false
	}
	if room.CapacityGrown || room.MaxParticipants > capacityGrowCeiling {
		return false
	}
	if len(room.Participants) < room.MaxParticipants {
		return false
	}
	room.MaxParticipants += capacityGrowStep
	room.CapacityGrown = true
	return true
}

// initialCapacity computes the participant cap for a new room.
func initialCapacity(kind models.RoomKind, callType models.CallType, invitees int) int {
	if kind == models.KindGroup {
		return DefaultGroupCapacity
	}
	switch callType {
	case models.CallTypeVoice, models.CallTypeVideo:
		if invitees+1 > 2 {
			return invitees + 1
		}
		return 2
	default:
		return DefaultOpenCapacity
	}
}
