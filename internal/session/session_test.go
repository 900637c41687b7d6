package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coview/internal/protocol"
	"coview/internal/rooms"
)

type fakeSink struct {
	mu   sync.Mutex
	sent [][]byte
}

func (s *fakeSink) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, data)
	return nil
}

func (s *fakeSink) messages(t *testing.T) []map[string]interface{} {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(s.sent))
	for _, raw := range s.sent {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

func (s *fakeSink) types(t *testing.T) []string {
	t.Helper()
	msgs := s.messages(t)
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m["type"].(string))
	}
	return out
}

func (s *fakeSink) last(t *testing.T) map[string]interface{} {
	t.Helper()
	msgs := s.messages(t)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

type fixture struct {
	manager *rooms.Manager
	caster  *rooms.Broadcaster
}

func newFixture() *fixture {
	manager := rooms.NewManager()
	return &fixture{manager: manager, caster: rooms.NewBroadcaster(manager)}
}

func (f *fixture) connect() (*Session, *fakeSink) {
	sink := &fakeSink{}
	return New(f.manager, f.caster, sink), sink
}

func (f *fixture) createRoom(t *testing.T, sess *Session, sink *fakeSink, name string) string {
	t.Helper()
	sess.HandleFrame(context.Background(),
		[]byte(fmt.Sprintf(`{"type":"create_room","userName":%q,"platform":"youtube"}`, name)))
	msgs := sink.messages(t)
	require.NotEmpty(t, msgs)
	require.Equal(t, "room_created", msgs[len(msgs)-2]["type"])
	return msgs[len(msgs)-2]["roomId"].(string)
}

func TestCreateRoomFlow(t *testing.T) {
	f := newFixture()
	sess, sink := f.connect()

	sess.HandleFrame(context.Background(),
		[]byte(`{"type":"create_room","userName":"Alice","platform":"youtube"}`))

	msgs := sink.messages(t)
	require.Len(t, msgs, 2, "creator gets room_created then room_joined")

	created := msgs[0]
	assert.Equal(t, "room_created", created["type"])
	roomID := created["roomId"].(string)
	assert.Regexp(t, `^[A-Z]{4}$`, roomID)

	joined := msgs[1]
	assert.Equal(t, "room_joined", joined["type"])
	assert.Equal(t, roomID, joined["roomId"])
	assert.Equal(t, "youtube", joined["platform"])
	assert.Equal(t, "paused", joined["state"])
	assert.Equal(t, 0.0, joined["currentTime"])

	users := joined["users"].([]interface{})
	require.Len(t, users, 1)
	assert.Equal(t, "Alice", users[0].(map[string]interface{})["name"])
}

func TestJoinUnknownRoom(t *testing.T) {
	f := newFixture()
	sess, sink := f.connect()

	sess.HandleFrame(context.Background(),
		[]byte(`{"type":"join_room","roomId":"QQQQ","userName":"Bob"}`))

	errMsg := sink.last(t)
	assert.Equal(t, "error", errMsg["type"])
	assert.Equal(t, "ROOM_NOT_FOUND", errMsg["code"])
	assert.Contains(t, errMsg["message"], "QQQQ")
	assert.Equal(t, 0, f.manager.RoomCount(), "failed join must not create a room")
}

func TestJoinRoomNotifiesOthers(t *testing.T) {
	f := newFixture()
	host, hostSink := f.connect()
	roomID := f.createRoom(t, host, hostSink, "Alice")

	joiner, joinerSink := f.connect()
	joiner.HandleFrame(context.Background(),
		[]byte(fmt.Sprintf(`{"type":"join_room","roomId":%q,"userName":"Bob"}`, roomID)))

	joined := joinerSink.last(t)
	assert.Equal(t, "room_joined", joined["type"])
	assert.Len(t, joined["users"], 2)

	hostMsg := hostSink.last(t)
	assert.Equal(t, "user_joined", hostMsg["type"])
	assert.Equal(t, "Bob", hostMsg["userName"])
	assert.Equal(t, 2.0, hostMsg["userCount"])

	assert.NotContains(t, joinerSink.types(t), "user_joined",
		"the joiner itself must not receive user_joined")
}

func TestJoinRoomCodeCaseInsensitive(t *testing.T) {
	f := newFixture()
	host, hostSink := f.connect()
	roomID := f.createRoom(t, host, hostSink, "Alice")

	joiner, joinerSink := f.connect()
	lower := []byte(fmt.Sprintf(`{"type":"join_room","roomId":%q,"userName":"Bob"}`, roomIDToLower(roomID)))
	joiner.HandleFrame(context.Background(), lower)

	assert.Equal(t, "room_joined", joinerSink.last(t)["type"])
}

func roomIDToLower(s string) string {
	b := []byte(s)
	for i := range b {
		b[i] |= 0x20
	}
	return string(b)
}

func TestVideoUpdateBroadcastExcludesOriginator(t *testing.T) {
	f := newFixture()
	host, hostSink := f.connect()
	roomID := f.createRoom(t, host, hostSink, "Alice")

	member, memberSink := f.connect()
	member.HandleFrame(context.Background(),
		[]byte(fmt.Sprintf(`{"type":"join_room","roomId":%q,"userName":"Bob"}`, roomID)))

	host.HandleFrame(context.Background(),
		[]byte(`{"type":"video_update","state":"playing","currentTime":30.0}`))

	update := memberSink.last(t)
	assert.Equal(t, "sync_update", update["type"])
	assert.Equal(t, "playing", update["state"])
	assert.Equal(t, 30.0, update["currentTime"])
	assert.Equal(t, host.UserID(), update["fromUserId"])

	assert.NotContains(t, hostSink.types(t), "sync_update",
		"the originator must not receive its own update back")

	snap := f.manager.GetRoomForUser(host.UserID()).Snapshot()
	assert.Equal(t, protocol.StatePlaying, snap.State)
	assert.Equal(t, 30.0, snap.CurrentTime)
}

func TestVideoUpdateOutsideRoomIgnored(t *testing.T) {
	f := newFixture()
	sess, sink := f.connect()

	sess.HandleFrame(context.Background(),
		[]byte(`{"type":"video_update","state":"playing","currentTime":5.0}`))

	assert.Empty(t, sink.messages(t), "update from a user in no room is silently ignored")
}

func TestNavigateBroadcastIncludesSender(t *testing.T) {
	f := newFixture()
	host, hostSink := f.connect()
	roomID := f.createRoom(t, host, hostSink, "Alice")

	member, memberSink := f.connect()
	member.HandleFrame(context.Background(),
		[]byte(fmt.Sprintf(`{"type":"join_room","roomId":%q,"userName":"Bob"}`, roomID)))

	host.HandleFrame(context.Background(),
		[]byte(`{"type":"navigate","url":"https://www.youtube.com/watch?v=abc"}`))

	hostNav := hostSink.last(t)
	assert.Equal(t, "navigate_update", hostNav["type"], "navigate reaches the sender too")
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", hostNav["url"])
	assert.Equal(t, host.UserID(), hostNav["fromUserId"])

	assert.Equal(t, "navigate_update", memberSink.last(t)["type"])
}

func TestNavigateRejectsForeignURL(t *testing.T) {
	f := newFixture()
	host, hostSink := f.connect()
	roomID := f.createRoom(t, host, hostSink, "Alice")

	member, memberSink := f.connect()
	member.HandleFrame(context.Background(),
		[]byte(fmt.Sprintf(`{"type":"join_room","roomId":%q,"userName":"Bob"}`, roomID)))
	memberMsgsBefore := len(memberSink.messages(t))

	host.HandleFrame(context.Background(),
		[]byte(`{"type":"navigate","url":"https://www.netflix.com/watch/81"}`))

	errMsg := hostSink.last(t)
	assert.Equal(t, "error", errMsg["type"])
	assert.Equal(t, "INVALID_URL", errMsg["code"])
	assert.Contains(t, errMsg["message"], "youtube")

	assert.Len(t, memberSink.messages(t), memberMsgsBefore,
		"a rejected navigate must not reach other members")
}

func TestInvalidPayloadKeepsConnectionUsable(t *testing.T) {
	f := newFixture()
	sess, sink := f.connect()

	sess.HandleFrame(context.Background(), []byte(`{"type":`))

	errMsg := sink.last(t)
	assert.Equal(t, "error", errMsg["type"])
	assert.Equal(t, "INVALID_MESSAGE", errMsg["code"])

	// The connection stays open; a later valid message still works.
	sess.HandleFrame(context.Background(),
		[]byte(`{"type":"create_room","userName":"Alice","platform":"netflix"}`))
	assert.Contains(t, sink.types(t), "room_created")
}

func TestHeartbeatIsNoOp(t *testing.T) {
	f := newFixture()
	sess, sink := f.connect()

	sess.HandleFrame(context.Background(), []byte(`{"type":"heartbeat"}`))

	assert.Empty(t, sink.messages(t))
	assert.Equal(t, 0, f.manager.RoomCount())
}

func TestDisconnectAnnouncesDeparture(t *testing.T) {
	f := newFixture()
	host, hostSink := f.connect()
	roomID := f.createRoom(t, host, hostSink, "Alice")

	member, _ := f.connect()
	member.HandleFrame(context.Background(),
		[]byte(fmt.Sprintf(`{"type":"join_room","roomId":%q,"userName":"Bob"}`, roomID)))

	member.Close()

	left := hostSink.last(t)
	assert.Equal(t, "user_left", left["type"])
	assert.Equal(t, "Bob", left["userName"])
	assert.Equal(t, 1.0, left["userCount"])
	users := left["users"].([]interface{})
	require.Len(t, users, 1)
	assert.Equal(t, "Alice", users[0].(map[string]interface{})["name"])
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newFixture()
	host, hostSink := f.connect()
	roomID := f.createRoom(t, host, hostSink, "Alice")

	member, _ := f.connect()
	member.HandleFrame(context.Background(),
		[]byte(fmt.Sprintf(`{"type":"join_room","roomId":%q,"userName":"Bob"}`, roomID)))

	member.Close()
	member.Close()

	leftCount := 0
	for _, typ := range hostSink.types(t) {
		if typ == "user_left" {
			leftCount++
		}
	}
	assert.Equal(t, 1, leftCount, "cleanup must announce the departure exactly once")
}

func TestLastMemberDisconnectDeletesRoom(t *testing.T) {
	f := newFixture()
	host, hostSink := f.connect()
	roomID := f.createRoom(t, host, hostSink, "Alice")

	host.Close()

	assert.Equal(t, 0, f.manager.RoomCount())

	// A fresh join on the dead code must fail.
	late, lateSink := f.connect()
	late.HandleFrame(context.Background(),
		[]byte(fmt.Sprintf(`{"type":"join_room","roomId":%q,"userName":"Carol"}`, roomID)))
	assert.Equal(t, "ROOM_NOT_FOUND", lateSink.last(t)["code"])
}

func TestLeaveRoomThenCreateAgain(t *testing.T) {
	f := newFixture()
	host, hostSink := f.connect()
	f.createRoom(t, host, hostSink, "Alice")

	host.HandleFrame(context.Background(), []byte(`{"type":"leave_room"}`))
	assert.Equal(t, 0, f.manager.RoomCount())

	// The connection survives an explicit leave; the same user can open a
	// new room afterwards and final cleanup still runs.
	host.HandleFrame(context.Background(),
		[]byte(`{"type":"create_room","userName":"Alice","platform":"crunchyroll"}`))
	assert.Equal(t, 1, f.manager.RoomCount())

	host.Close()
	assert.Equal(t, 0, f.manager.RoomCount())
}

func TestDepartedUserAbsentFromLaterSnapshots(t *testing.T) {
	f := newFixture()
	host, hostSink := f.connect()
	roomID := f.createRoom(t, host, hostSink, "Alice")

	member, _ := f.connect()
	member.HandleFrame(context.Background(),
		[]byte(fmt.Sprintf(`{"type":"join_room","roomId":%q,"userName":"Bob"}`, roomID)))
	member.Close()

	late, lateSink := f.connect()
	late.HandleFrame(context.Background(),
		[]byte(fmt.Sprintf(`{"type":"join_room","roomId":%q,"userName":"Carol"}`, roomID)))

	joined := lateSink.last(t)
	require.Equal(t, "room_joined", joined["type"])
	names := make([]string, 0)
	for _, u := range joined["users"].([]interface{}) {
		names = append(names, u.(map[string]interface{})["name"].(string))
	}
	assert.ElementsMatch(t, []string{"Alice", "Carol"}, names)
}
