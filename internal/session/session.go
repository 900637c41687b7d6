// Package session holds the transport-agnostic half of a connection: one
// Session per active socket, dispatching decoded client messages against
// the room registry and guaranteeing registry cleanup on every exit path.
package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/RanFeng/ilog"
	"github.com/google/uuid"

	"coview/internal/protocol"
	"coview/internal/rooms"
)

// Session is the per-connection message handler. The owning transport
// feeds it inbound text frames via HandleFrame and must call Close exactly
// when the connection ends, on every exit path; Close itself is
// idempotent.
type Session struct {
	userID  string
	manager *rooms.Manager
	caster  *rooms.Broadcaster
	sink    rooms.Sink
	cleanup sync.Once
}

// New assigns a fresh user id to the connection. The id is not associated
// with any room until a create_room or join_room message arrives.
func New(manager *rooms.Manager, caster *rooms.Broadcaster, sink rooms.Sink) *Session {
	return &Session{
		userID:  uuid.New().String(),
		manager: manager,
		caster:  caster,
		sink:    sink,
	}
}

func (s *Session) UserID() string {
	return s.userID
}

// HandleFrame decodes one inbound text payload and dispatches it. A
// payload that fails to decode is answered with an INVALID_MESSAGE error;
// the connection stays open.
func (s *Session) HandleFrame(ctx context.Context, data []byte) {
	msg := protocol.ParseClientMessage(data)
	if msg == nil {
		log.Printf("session: unparseable message from user %s: %s", s.userID, data)
		s.sendError(protocol.ErrCodeInvalidMessage, "Could not parse message")
		return
	}

	switch m := msg.(type) {
	case protocol.CreateRoomMessage:
		s.handleCreateRoom(ctx, m)
	case protocol.JoinRoomMessage:
		s.handleJoinRoom(ctx, m)
	case protocol.VideoUpdateMessage:
		s.handleVideoUpdate(m)
	case protocol.NavigateMessage:
		s.handleNavigate(ctx, m)
	case protocol.LeaveRoomMessage:
		// Same cleanup as a disconnect, but the connection stays open and
		// the user may create or join another room afterwards.
		s.leaveCurrentRoom()
	case protocol.HeartbeatMessage:
		// Keep-alive only.
	}
}

// Close runs disconnect cleanup exactly once, regardless of how many exit
// paths reach it.
func (s *Session) Close() {
	s.cleanup.Do(s.disconnectOnce)
}

func (s *Session) handleCreateRoom(ctx context.Context, m protocol.CreateRoomMessage) {
	room := s.manager.CreateRoom(s.userID, m.UserName, m.Platform, s.sink)
	snap := room.Snapshot()

	ilog.EventInfo(ctx, "create_room",
		"roomID", snap.ID, "userID", s.userID, "userName", m.UserName, "platform", m.Platform)

	s.send(protocol.NewRoomCreated(snap.ID))
	// The creator also gets the full snapshot so it need not infer its own
	// state from room_created.
	s.send(roomJoinedMessage(snap))
}

func (s *Session) handleJoinRoom(ctx context.Context, m protocol.JoinRoomMessage) {
	// Codes are case-insensitive on input, canonical uppercase internally.
	roomID := strings.ToUpper(m.RoomID)
	room := s.manager.JoinRoom(roomID, s.userID, m.UserName, s.sink)
	if room == nil {
		s.sendError(protocol.ErrCodeRoomNotFound, fmt.Sprintf("Room %s does not exist", m.RoomID))
		return
	}
	snap := room.Snapshot()

	ilog.EventInfo(ctx, "join_room",
		"roomID", snap.ID, "userID", s.userID, "userName", m.UserName, "userCount", snap.UserCount())

	s.send(roomJoinedMessage(snap))
	s.broadcast(snap.ID, protocol.NewUserJoined(m.UserName, snap.Users), s.userID)
}

func (s *Session) handleVideoUpdate(m protocol.VideoUpdateMessage) {
	room := s.manager.GetRoomForUser(s.userID)
	if room == nil {
		return
	}
	currentTime := *m.CurrentTime
	s.manager.UpdateRoomState(room.ID(), m.State, currentTime)
	s.broadcast(room.ID(), protocol.NewSyncUpdate(m.State, currentTime, s.userID), s.userID)
}

func (s *Session) handleNavigate(ctx context.Context, m protocol.NavigateMessage) {
	room := s.manager.GetRoomForUser(s.userID)
	if room == nil {
		return
	}
	if !room.Platform().AllowsURL(m.URL) {
		s.sendError(protocol.ErrCodeInvalidURL,
			fmt.Sprintf("URL does not match room platform (%s)", room.Platform()))
		return
	}

	ilog.EventInfo(ctx, "navigate", "roomID", room.ID(), "userID", s.userID, "url", m.URL)

	// Unlike other broadcasts this includes the sender: its own page must
	// navigate too.
	s.broadcast(room.ID(), protocol.NewNavigateUpdate(m.URL, s.userID), "")
}

func (s *Session) disconnectOnce() {
	s.leaveCurrentRoom()
}

// leaveCurrentRoom removes the user from its room, if any, and announces
// the departure to the remaining members. Safe to call when the user is
// not in a room; LeaveRoom then returns nothing to announce.
func (s *Session) leaveCurrentRoom() {
	room, user := s.manager.LeaveRoom(s.userID)
	if room == nil || user == nil {
		return
	}
	snap := room.Snapshot()
	ilog.EventInfo(context.Background(), "user_left",
		"roomID", snap.ID, "userID", user.ID, "userName", user.Name, "remaining", snap.UserCount())
	s.broadcast(snap.ID, protocol.NewUserLeft(user.Name, snap.Users), "")
}

func (s *Session) broadcast(roomID string, msg interface{}, excludeUserID string) {
	data, err := protocol.Encode(msg)
	if err != nil {
		log.Printf("session: encode broadcast for room %s: %v", roomID, err)
		return
	}
	s.caster.Broadcast(roomID, data, excludeUserID)
}

func (s *Session) send(msg interface{}) {
	data, err := protocol.Encode(msg)
	if err != nil {
		log.Printf("session: encode reply for user %s: %v", s.userID, err)
		return
	}
	if err := s.sink.Send(data); err != nil {
		log.Printf("session: send to user %s: %v", s.userID, err)
	}
}

func (s *Session) sendError(code, message string) {
	s.send(protocol.NewError(code, message))
}

func roomJoinedMessage(snap rooms.Snapshot) protocol.RoomJoinedMessage {
	return protocol.RoomJoinedMessage{
		Type:        protocol.MsgTypeRoomJoined,
		RoomID:      snap.ID,
		Platform:    snap.Platform,
		State:       snap.State,
		CurrentTime: snap.CurrentTime,
		Users:       snap.Users,
	}
}
