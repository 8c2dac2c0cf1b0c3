package reaper

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/models"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/sessions"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/store"
)

func newTestReaper(t *testing.T) (*Reaper, *store.Store, time.Time) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracker := sessions.NewTracker(st, logger)
	r := New(st, tracker, DefaultInterval, DefaultRetention, logger)

	now := time.Unix(1_700_000_000, 0)
	r.SetNowFunc(func() time.Time { return now })
	return r, st, now
}

func seedEndedRoom(t *testing.T, st *store.Store, code string, now time.Time, endedAgo time.Duration, active bool) *models.Room {
	t.Helper()
	endedAt := now.Add(-endedAgo)
	room := &models.Room{
		Code:            code,
		CreatorID:       "alice",
		Kind:            models.KindDirect,
		CallType:        models.CallTypeVideo,
		Status:          models.RoomStatusEnded,
		MaxParticipants: 2,
		Active:          active,
		CreatedAt:       endedAt.Add(-10 * time.Minute),
		EndedAt:         &endedAt,
	}
	if err := st.CreateRoom(room); err != nil {
		t.Fatalf("seed room %s: %v", code, err)
	}
	return room
}

func TestSweepRepairsStaleRoom(t *testing.T) {
	r, st, now := newTestReaper(t)

	room := seedEndedRoom(t, st, "call-stale001", now, 2*time.Hour, true)
	if err := st.CreateSession(&models.Session{
		RoomID: room.ID, UserID: "alice",
		Status:   models.SessionStatusJoining,
		JoinedAt: room.CreatedAt, LastActivity: room.CreatedAt,
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	r.Sweep()

	swept, err := st.RoomByCode(room.Code)
	if err != nil {
		t.Fatalf("reload room: %v", err)
	}
	if swept.Active {
		t.Fatal("swept room should have active=false")
	}

	sess, err := st.SessionByRoomAndUser(room.ID, "alice")
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if sess.Status != models.SessionStatusDisconnected {
		t.Fatalf("lingering session should be force-disconnected, got %s", sess.Status)
	}
	if sess.LeftAt == nil || !sess.LeftAt.Equal(now) {
		t.Fatalf("LeftAt should be stamped with sweep time, got %v", sess.LeftAt)
	}
}

func TestSweepSkipsRoomsInsideRetention(t *testing.T) {
	r, st, now := newTestReaper(t)

	room := seedEndedRoom(t, st, "call-recent01", now, 30*time.Minute, true)

	r.Sweep()

	kept, err := st.RoomByCode(room.Code)
	if err != nil {
		t.Fatalf("reload room: %v", err)
	}
	if !kept.Active {
		t.Fatal("rooms inside the retention window must not be touched")
	}
}

func TestSweepHandlesRoomsIndependently(t *testing.T) {
	r, st, now := newTestReaper(t)

	first := seedEndedRoom(t, st, "call-stale001", now, 2*time.Hour, true)
	second := seedEndedRoom(t, st, "call-stale002", now, 3*time.Hour, true)

	r.Sweep()

	for _, code := range []string{first.Code, second.Code} {
		room, err := st.RoomByCode(code)
		if err != nil {
			t.Fatalf("reload %s: %v", code, err)
		}
		if room.Active {
			t.Fatalf("%s should be repaired", code)
		}
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	r, st, now := newTestReaper(t)

	room := seedEndedRoom(t, st, "call-stale001", now, 2*time.Hour, false)

	r.Sweep()
	r.Sweep()

	kept, err := st.RoomByCode(room.Code)
	if err != nil {
		t.Fatalf("reload room: %v", err)
	}
	if kept.Active || kept.Status != models.RoomStatusEnded {
		t.Fatalf("repeated sweeps must not change a clean room, got %s active=%v", kept.Status, kept.Active)
	}
}
