package rooms

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/directory"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/models"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/sessions"
	"github.com/bharat-jangir/socialmedia-backend-sub000/internal/store"
)

// recordedEvent is one EventSink call, flattened for assertions.
type recordedEvent struct {
	kind       string
	userID     string
	recipients []string
	reason     string
}

type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (s *recordingSink) record(ev recordedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) UserJoined(room *models.Room, userID string) {
	s.record(recordedEvent{kind: "user-joined", userID: userID})
}

func (s *recordingSink) UserLeft(room *models.Room, userID string) {
	s.record(recordedEvent{kind: "user-left", userID: userID})
}

func (s *recordingSink) StatusChanged(room *models.Room, previous models.RoomStatus) {
	s.record(recordedEvent{kind: "status-changed", reason: string(previous) + ">" + string(room.Status)})
}

func (s *recordingSink) CapacityChanged(room *models.Room, previous int) {
	s.record(recordedEvent{kind: "capacity-changed"})
}

func (s *recordingSink) RoomEnded(room *models.Room, recipients []string, reason string) {
	s.record(recordedEvent{kind: "room-ended", recipients: recipients, reason: reason})
}

func (s *recordingSink) ParticipantList(room *models.Room) {
	s.record(recordedEvent{kind: "participant-list"})
}

func (s *recordingSink) SignalingReady(room *models.Room) {
	s.record(recordedEvent{kind: "signaling-ready"})
}

func (s *recordingSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.kind)
	}
	return out
}

func (s *recordingSink) last(kind string) (recordedEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].kind == kind {
			return s.events[i], true
		}
	}
	return recordedEvent{}, false
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type testEnv struct {
	registry *Registry
	store    *store.Store
	tracker  *sessions.Tracker
	sink     *recordingSink
	now      time.Time
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	// A file-backed database rather than ":memory:": the registry's
	// directory lookups run on a second connection, and every in-memory
	// sqlite connection is its own empty database.
	st, err := store.Open(filepath.Join(t.TempDir(), "rooms.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracker := sessions.NewTracker(st, logger)
	sink := &recordingSink{}

	env := &testEnv{
		store:   st,
		tracker: tracker,
		sink:    sink,
		now:     time.Unix(1_700_000_000, 0),
	}

	env.registry = NewRegistry(
		st, tracker, sink,
		directory.NewGroups(st), directory.NewUsers(st),
		DefaultJoinPolicy(), logger,
	)
	env.registry.SetNowFunc(func() time.Time { return env.now })
	return env
}

func (e *testEnv) addUser(t *testing.T, id string) {
	t.Helper()
	if err := e.store.CreateUser(&models.User{ID: id, Username: id}); err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
}

func (e *testEnv) addGroupMember(t *testing.T, groupID, userID, role string) {
	t.Helper()
	err := e.store.AddGroupMember(&models.GroupMember{
		GroupID: groupID, UserID: userID, Role: role, JoinedAt: e.now,
	})
	if err != nil {
		t.Fatalf("add group member: %v", err)
	}
}

func TestCreateRoomVoiceDefaults(t *testing.T) {
	env := newTestEnv(t)

	room, err := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice",
		Name:      "quick call",
		CallType:  models.CallTypeVoice,
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	if !strings.HasPrefix(room.Code, models.DirectRoomPrefix) {
		t.Fatalf("expected %s prefix, got code %s", models.DirectRoomPrefix, room.Code)
	}
	if room.Kind != models.KindDirect {
		t.Fatalf("expected direct kind, got %s", room.Kind)
	}
	if room.MaxParticipants != 2 {
		t.Fatalf("voice room should default to 2 slots, got %d", room.MaxParticipants)
	}
	if room.Status != models.RoomStatusWaiting {
		t.Fatalf("new room should be waiting, got %s", room.Status)
	}
	if len(room.Participants) != 1 || room.Participants[0].UserID != "alice" {
		t.Fatalf("creator should be the sole participant, got %+v", room.Participants)
	}

	sess, err := env.store.SessionByRoomAndUser(room.ID, "alice")
	if err != nil {
		t.Fatalf("creator session missing: %v", err)
	}
	if sess.Status != models.SessionStatusJoining {
		t.Fatalf("creator session should be joining, got %s", sess.Status)
	}
}

func TestCreateRoomInviteesSizeCapacity(t *testing.T) {
	env := newTestEnv(t)

	room, err := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice",
		CallType:  models.CallTypeVideo,
		Invitees:  []string{"bob", "carol", "dave"},
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if room.MaxParticipants != 4 {
		t.Fatalf("expected capacity 4 (3 invitees + creator), got %d", room.MaxParticipants)
	}
	// Invitees are not added to the roster; they join separately.
	if len(room.Participants) != 1 {
		t.Fatalf("expected only the creator in the roster, got %d", len(room.Participants))
	}
}

func TestCreateRoomConferenceDefaultCapacity(t *testing.T) {
	env := newTestEnv(t)

	room, err := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice",
		CallType:  models.CallTypeConference,
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if room.MaxParticipants != DefaultOpenCapacity {
		t.Fatalf("expected capacity %d, got %d", DefaultOpenCapacity, room.MaxParticipants)
	}
}

func TestCreateGroupRoomRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	groupID := "g1"
	env.addGroupMember(t, groupID, "alice", "member")

	_, err := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "mallory",
		CallType:  models.CallTypeConference,
		GroupID:   &groupID,
	})
	if !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember for non-member creator, got %v", err)
	}

	room, err := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice",
		CallType:  models.CallTypeConference,
		GroupID:   &groupID,
	})
	if err != nil {
		t.Fatalf("member create failed: %v", err)
	}
	if !strings.HasPrefix(room.Code, models.GroupRoomPrefix) {
		t.Fatalf("expected %s prefix, got %s", models.GroupRoomPrefix, room.Code)
	}
	if room.MaxParticipants != DefaultGroupCapacity {
		t.Fatalf("expected group capacity %d, got %d", DefaultGroupCapacity, room.MaxParticipants)
	}
}

func TestJoinActivatesAtTwoParticipants(t *testing.T) {
	env := newTestEnv(t)

	room, err := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeVideo,
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	env.sink.reset()

	joined, err := env.registry.JoinRoom(room.Code, "bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.Status != models.RoomStatusActive {
		t.Fatalf("room should activate at two participants, got %s", joined.Status)
	}

	kinds := env.sink.kinds()
	want := []string{"user-joined", "status-changed", "signaling-ready", "participant-list"}
	if len(kinds) != len(want) {
		t.Fatalf("expected events %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s (all: %v)", i, want[i], kinds[i], kinds)
		}
	}
}

func TestJoinSameUserTwiceKeepsSingleSession(t *testing.T) {
	env := newTestEnv(t)

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeVideo,
	})
	if _, err := env.registry.JoinRoom(room.Code, "bob"); err != nil {
		t.Fatalf("first join: %v", err)
	}
	env.sink.reset()

	joined, err := env.registry.JoinRoom(room.Code, "bob")
	if err != nil {
		t.Fatalf("duplicate join: %v", err)
	}
	if len(joined.Participants) != 2 {
		t.Fatalf("duplicate join must not add a roster entry, got %d", len(joined.Participants))
	}

	all, err := env.tracker.SessionsByRoom(room.ID)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	bobSessions := 0
	for _, s := range all {
		if s.UserID == "bob" {
			bobSessions++
		}
	}
	if bobSessions != 1 {
		t.Fatalf("expected exactly one session for bob, got %d", bobSessions)
	}

	if _, joinedEvent := env.sink.last("user-joined"); joinedEvent {
		t.Fatalf("duplicate join must not announce user-joined, events: %v", env.sink.kinds())
	}
}

func TestJoinFullSmallRoomGrowsCapacityOnce(t *testing.T) {
	env := newTestEnv(t)

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeVoice,
	})
	if _, err := env.registry.JoinRoom(room.Code, "bob"); err != nil {
		t.Fatalf("bob join: %v", err)
	}

	// Room is now at 2/2. A third join grows the cap to 4.
	env.sink.reset()
	grown, err := env.registry.JoinRoom(room.Code, "carol")
	if err != nil {
		t.Fatalf("carol join should grow capacity, got %v", err)
	}
	if grown.MaxParticipants != 4 {
		t.Fatalf("expected cap 4 after grow, got %d", grown.MaxParticipants)
	}
	if !grown.CapacityGrown {
		t.Fatal("grow flag should be set")
	}
	if _, ok := env.sink.last("capacity-changed"); !ok {
		t.Fatalf("expected capacity-changed event, got %v", env.sink.kinds())
	}

	if _, err := env.registry.JoinRoom(room.Code, "dave"); err != nil {
		t.Fatalf("dave join at 3/4: %v", err)
	}

	// 4/4 and already grown once: the next join is rejected.
	if _, err := env.registry.JoinRoom(room.Code, "eve"); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull after single grow, got %v", err)
	}

	final, err := env.registry.Get(room.Code)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(final.Participants) > final.MaxParticipants {
		t.Fatalf("roster %d exceeds cap %d", len(final.Participants), final.MaxParticipants)
	}
}

func TestRejoinFullRoomDoesNotConsumeGrow(t *testing.T) {
	env := newTestEnv(t)

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeVoice,
	})
	if _, err := env.registry.JoinRoom(room.Code, "bob"); err != nil {
		t.Fatalf("bob join: %v", err)
	}

	// Room is at 2/2. A participant reconnecting holds their existing
	// slot and must not trigger the one-time capacity bump.
	env.sink.reset()
	rejoined, err := env.registry.JoinRoom(room.Code, "alice")
	if err != nil {
		t.Fatalf("re-join: %v", err)
	}
	if rejoined.MaxParticipants != 2 {
		t.Fatalf("re-join must not change the cap, got %d", rejoined.MaxParticipants)
	}
	if rejoined.CapacityGrown {
		t.Fatal("re-join must not set the grow flag")
	}
	if len(rejoined.Participants) != 2 {
		t.Fatalf("re-join must not add a roster entry, got %d", len(rejoined.Participants))
	}
	if _, ok := env.sink.last("capacity-changed"); ok {
		t.Fatalf("re-join must not announce capacity-changed, events: %v", env.sink.kinds())
	}

	// The grow is still available for a genuinely new caller.
	grown, err := env.registry.JoinRoom(room.Code, "carol")
	if err != nil {
		t.Fatalf("carol join: %v", err)
	}
	if grown.MaxParticipants != 4 || !grown.CapacityGrown {
		t.Fatalf("new caller should still grow the cap, got %d grown=%v",
			grown.MaxParticipants, grown.CapacityGrown)
	}
}

func TestJoinGroupRoomRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	groupID := "g1"
	env.addGroupMember(t, groupID, "alice", "member")
	env.addGroupMember(t, groupID, "bob", "member")

	room, err := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeConference, GroupID: &groupID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := env.registry.JoinRoom(room.Code, "mallory"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	if _, err := env.registry.JoinRoom(room.Code, "bob"); err != nil {
		t.Fatalf("member join failed: %v", err)
	}
}

func TestJoinCancelledRoom(t *testing.T) {
	env := newTestEnv(t)

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeVideo,
	})
	if _, err := env.registry.CancelRoom(room.Code, "alice"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := env.registry.JoinRoom(room.Code, "bob"); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("expected ErrRoomClosed for cancelled room, got %v", err)
	}
}

func TestJoinReactivatesRecentlyEndedRoom(t *testing.T) {
	env := newTestEnv(t)

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeVideo,
	})
	if _, err := env.registry.EndRoom(room.Code, "alice"); err != nil {
		t.Fatalf("end: %v", err)
	}

	env.advance(30 * time.Minute)
	revived, err := env.registry.JoinRoom(room.Code, "bob")
	if err != nil {
		t.Fatalf("join within reactivation window failed: %v", err)
	}
	if revived.Status != models.RoomStatusWaiting {
		t.Fatalf("revived room should be waiting, got %s", revived.Status)
	}
	if !revived.Active {
		t.Fatal("revived room should be active")
	}
	if revived.EndedAt != nil {
		t.Fatal("revived room should clear EndedAt")
	}
}

func TestJoinEndedRoomOutsideWindow(t *testing.T) {
	env := newTestEnv(t)

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeVideo,
	})
	if _, err := env.registry.EndRoom(room.Code, "alice"); err != nil {
		t.Fatalf("end: %v", err)
	}

	env.advance(3 * time.Hour)
	if _, err := env.registry.JoinRoom(room.Code, "bob"); !errors.Is(err, ErrRoomEnded) {
		t.Fatalf("expected ErrRoomEnded outside window, got %v", err)
	}
}

func TestLeaveTransfersOwnershipInInsertionOrder(t *testing.T) {
	env := newTestEnv(t)

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeConference,
	})
	for _, u := range []string{"bob", "carol"} {
		if _, err := env.registry.JoinRoom(room.Code, u); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
	}

	if err := env.registry.LeaveRoom(room.Code, "alice"); err != nil {
		t.Fatalf("creator leave: %v", err)
	}

	after, err := env.registry.Get(room.Code)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.CreatorID != "bob" {
		t.Fatalf("ownership should pass to the first remaining participant (bob), got %s", after.CreatorID)
	}
	if after.Status == models.RoomStatusEnded {
		t.Fatal("room with remaining participants must not end")
	}
}

func TestLeaveLastParticipantEndsRoom(t *testing.T) {
	env := newTestEnv(t)

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeVideo,
	})
	env.advance(5 * time.Minute)

	if err := env.registry.LeaveRoom(room.Code, "alice"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	after, err := env.registry.Get(room.Code)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.Status != models.RoomStatusEnded {
		t.Fatalf("emptied room should end, got %s", after.Status)
	}
	if after.Active {
		t.Fatal("ended room should not be active")
	}
	if after.DurationSeconds != 300 {
		t.Fatalf("expected duration 300s, got %d", after.DurationSeconds)
	}

	sess, err := env.store.SessionByRoomAndUser(room.ID, "alice")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if sess.Status != models.SessionStatusDisconnected {
		t.Fatalf("session should be disconnected, got %s", sess.Status)
	}
}

func TestLeaveNonParticipantEmitsNothing(t *testing.T) {
	env := newTestEnv(t)

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeVideo,
	})
	env.sink.reset()

	if err := env.registry.LeaveRoom(room.Code, "stranger"); err != nil {
		t.Fatalf("leave by non-participant should be a no-op, got %v", err)
	}
	if kinds := env.sink.kinds(); len(kinds) != 0 {
		t.Fatalf("expected no events, got %v", kinds)
	}
}

func TestEndRoomPermissions(t *testing.T) {
	env := newTestEnv(t)

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeVideo,
	})
	if _, err := env.registry.JoinRoom(room.Code, "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := env.registry.EndRoom(room.Code, "bob"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-creator end should be forbidden, got %v", err)
	}

	ended, err := env.registry.EndRoom(room.Code, "alice")
	if err != nil {
		t.Fatalf("creator end: %v", err)
	}
	if ended.Status != models.RoomStatusEnded || ended.Active {
		t.Fatalf("room should be ended/inactive, got %s active=%v", ended.Status, ended.Active)
	}

	// Ending again conflicts.
	if _, err := env.registry.EndRoom(room.Code, "alice"); !errors.Is(err, ErrRoomEnded) {
		t.Fatalf("double end should report ErrRoomEnded, got %v", err)
	}
}

func TestGroupAdminMayEndRoom(t *testing.T) {
	env := newTestEnv(t)
	groupID := "g1"
	env.addGroupMember(t, groupID, "alice", "member")
	env.addGroupMember(t, groupID, "root", models.GroupRoleAdmin)

	room, err := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeConference, GroupID: &groupID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := env.registry.EndRoom(room.Code, "root"); err != nil {
		t.Fatalf("group admin end failed: %v", err)
	}
}

func TestEndRoomNotifiesFullRoster(t *testing.T) {
	env := newTestEnv(t)

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeVideo,
	})
	if _, err := env.registry.JoinRoom(room.Code, "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	env.sink.reset()

	if _, err := env.registry.EndRoom(room.Code, "alice"); err != nil {
		t.Fatalf("end: %v", err)
	}

	ev, ok := env.sink.last("room-ended")
	if !ok {
		t.Fatalf("expected room-ended event, got %v", env.sink.kinds())
	}
	if len(ev.recipients) != 2 {
		t.Fatalf("room-ended should address the pre-end roster (2), got %v", ev.recipients)
	}
}

func TestCancelRoomCreatorOnly(t *testing.T) {
	env := newTestEnv(t)

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeVideo,
	})

	if _, err := env.registry.CancelRoom(room.Code, "bob"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	cancelled, err := env.registry.CancelRoom(room.Code, "alice")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.RoomStatusCancelled || cancelled.Active {
		t.Fatalf("expected cancelled/inactive, got %s active=%v", cancelled.Status, cancelled.Active)
	}
}

func TestCancelActiveRoomRejected(t *testing.T) {
	env := newTestEnv(t)

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeVideo,
	})
	if _, err := env.registry.JoinRoom(room.Code, "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := env.registry.CancelRoom(room.Code, "alice"); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("cancelling an active room should fail, got %v", err)
	}
}

func TestAddParticipantCreatorOnlyAndCapacityChecked(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "bob")

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeVideo,
	})

	if _, err := env.registry.AddParticipant(room.Code, "bob", "carol"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-creator add should be forbidden, got %v", err)
	}
	if _, err := env.registry.AddParticipant(room.Code, "alice", "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown target should be not found, got %v", err)
	}

	added, err := env.registry.AddParticipant(room.Code, "alice", "bob")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added.HasParticipant("bob") {
		t.Fatal("bob should be in the roster")
	}
	if added.Status != models.RoomStatusActive {
		t.Fatalf("room should activate at two participants, got %s", added.Status)
	}

	// Room is at 2/2; a third direct add is rejected (no auto-grow on the
	// privileged path).
	env.addUser(t, "carol")
	if _, err := env.registry.AddParticipant(room.Code, "alice", "carol"); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
}

func TestRemoveParticipant(t *testing.T) {
	env := newTestEnv(t)

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeConference,
	})
	if _, err := env.registry.JoinRoom(room.Code, "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := env.registry.RemoveParticipant(room.Code, "bob", "alice"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-creator removal should be forbidden, got %v", err)
	}
	if _, err := env.registry.RemoveParticipant(room.Code, "alice", "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("removing a non-participant should be not found, got %v", err)
	}

	after, err := env.registry.RemoveParticipant(room.Code, "alice", "bob")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if after.HasParticipant("bob") {
		t.Fatal("bob should be out of the roster")
	}

	sess, err := env.store.SessionByRoomAndUser(room.ID, "bob")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if sess.Status != models.SessionStatusDisconnected {
		t.Fatalf("removed participant's session should be disconnected, got %s", sess.Status)
	}
}

func TestRemoveLastParticipantEndsRoomAndNotifies(t *testing.T) {
	env := newTestEnv(t)

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeVideo,
	})
	if _, err := env.registry.JoinRoom(room.Code, "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := env.registry.LeaveRoom(room.Code, "bob"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	env.sink.reset()

	after, err := env.registry.RemoveParticipant(room.Code, "alice", "alice")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if after.Status != models.RoomStatusEnded {
		t.Fatalf("emptied room should end, got %s", after.Status)
	}

	ev, ok := env.sink.last("room-ended")
	if !ok {
		t.Fatalf("expected room-ended event, got %v", env.sink.kinds())
	}
	if len(ev.recipients) != 1 || ev.recipients[0] != "alice" {
		t.Fatalf("room-ended should address the pre-removal roster, got %v", ev.recipients)
	}
}

func TestRemoveSelfTransfersOwnership(t *testing.T) {
	env := newTestEnv(t)

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeConference,
	})
	for _, u := range []string{"bob", "carol"} {
		if _, err := env.registry.JoinRoom(room.Code, u); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
	}

	after, err := env.registry.RemoveParticipant(room.Code, "alice", "alice")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if after.CreatorID != "bob" {
		t.Fatalf("ownership should pass to the first remaining participant (bob), got %s", after.CreatorID)
	}
	if after.Status == models.RoomStatusEnded {
		t.Fatal("room with remaining participants must not end")
	}
}

func TestStatisticsRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	room, err := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeVideo,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	stats, err := env.registry.GetStatistics(room.Code)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.ParticipantCount != 1 {
		t.Fatalf("expected 1 participant, got %d", stats.ParticipantCount)
	}
	if stats.DurationSeconds != 0 {
		t.Fatalf("expected 0s duration right after create, got %d", stats.DurationSeconds)
	}
	if stats.Status != models.RoomStatusWaiting {
		t.Fatalf("expected waiting, got %s", stats.Status)
	}
	if stats.ActiveSessions != 1 {
		t.Fatalf("expected 1 active session, got %d", stats.ActiveSessions)
	}

	// Live rooms report elapsed time; ended rooms report the stored final
	// duration.
	env.advance(90 * time.Second)
	stats, err = env.registry.GetStatistics(room.Code)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.DurationSeconds != 90 {
		t.Fatalf("expected live duration 90s, got %d", stats.DurationSeconds)
	}

	if _, err := env.registry.EndRoom(room.Code, "alice"); err != nil {
		t.Fatalf("end: %v", err)
	}
	env.advance(time.Hour)
	stats, err = env.registry.GetStatistics(room.Code)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.DurationSeconds != 90 {
		t.Fatalf("ended room should keep its final duration, got %d", stats.DurationSeconds)
	}
}

func TestUnknownCodeNamespace(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.registry.Get("meeting-abc123"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("codes outside either namespace should be not found, got %v", err)
	}
	if _, err := env.registry.Get(models.DirectRoomPrefix + "nonexistent"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("missing room should be not found, got %v", err)
	}
}

func TestUpdateConnectionStateThroughRegistry(t *testing.T) {
	env := newTestEnv(t)

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeVideo,
	})

	sess, err := env.registry.UpdateConnectionState(room.Code, "alice", "connected", "checking")
	if err != nil {
		t.Fatalf("update connection state: %v", err)
	}
	if sess.Status != models.SessionStatusConnected {
		t.Fatalf("expected connected, got %s", sess.Status)
	}
	if sess.ConnectionState != "connected" || sess.ICEState != "checking" {
		t.Fatalf("telemetry strings should be stored verbatim, got %q/%q", sess.ConnectionState, sess.ICEState)
	}

	muted := true
	sess, err = env.registry.UpdateMediaState(room.Code, "alice", &muted, nil, nil)
	if err != nil {
		t.Fatalf("update media state: %v", err)
	}
	if !sess.Muted {
		t.Fatal("muted flag should be set")
	}
	if !sess.VideoEnabled {
		t.Fatal("nil video flag must leave the previous value unchanged")
	}
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	env := newTestEnv(t)

	room, _ := env.registry.CreateRoom(CreateRoomParams{
		CreatorID: "alice", CallType: models.CallTypeConference,
	})

	users := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8", "u9", "u10", "u11", "u12"}
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := env.registry.JoinRoom(room.Code, id)
			if err != nil && !errors.Is(err, ErrRoomFull) {
				t.Errorf("join %s: %v", id, err)
			}
		}(u)
	}
	wg.Wait()

	final, err := env.registry.Get(room.Code)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(final.Participants) > final.MaxParticipants {
		t.Fatalf("roster %d exceeds cap %d", len(final.Participants), final.MaxParticipants)
	}
}
