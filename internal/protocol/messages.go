package protocol

import (
	"encoding/json"
)

// Message type discriminators.
const (
	// Client -> Server
	MsgTypeJoinRoom    = "join_room"
	MsgTypeCreateRoom  = "create_room"
	MsgTypeVideoUpdate = "video_update"
	MsgTypeHeartbeat   = "heartbeat"
	MsgTypeLeaveRoom   = "leave_room"
	MsgTypeNavigate    = "navigate"

	// Server -> Client
	MsgTypeRoomJoined     = "room_joined"
	MsgTypeRoomCreated    = "room_created"
	MsgTypeSyncUpdate     = "sync_update"
	MsgTypeUserJoined     = "user_joined"
	MsgTypeUserLeft       = "user_left"
	MsgTypeNavigateUpdate = "navigate_update"
	MsgTypeError          = "error"
)

// Error codes carried by ErrorMessage.
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeRoomNotFound   = "ROOM_NOT_FOUND"
	ErrCodeInvalidURL     = "INVALID_URL"
)

// ClientMessage is the closed set of inbound message variants.
type ClientMessage interface {
	clientMessage()
}

type JoinRoomMessage struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

type CreateRoomMessage struct {
	Type        string   `json:"type"`
	UserName    string   `json:"userName"`
	Platform    Platform `json:"platform"`
	CurrentTime float64  `json:"currentTime"`
}

type VideoUpdateMessage struct {
	Type        string     `json:"type"`
	State       VideoState `json:"state"`
	CurrentTime *float64   `json:"currentTime"`
}

type HeartbeatMessage struct {
	Type string `json:"type"`
}

type LeaveRoomMessage struct {
	Type string `json:"type"`
}

type NavigateMessage struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

func (JoinRoomMessage) clientMessage()    {}
func (CreateRoomMessage) clientMessage()  {}
func (VideoUpdateMessage) clientMessage() {}
func (HeartbeatMessage) clientMessage()   {}
func (LeaveRoomMessage) clientMessage()   {}
func (NavigateMessage) clientMessage()    {}

// ParseClientMessage decodes one text payload into exactly one client
// message variant, selected by the "type" discriminator. Malformed JSON,
// an unknown discriminator, or a payload missing required fields for the
// matched type all yield nil; the caller decides how to surface that.
func ParseClientMessage(data []byte) ClientMessage {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil
	}

	switch head.Type {
	case MsgTypeJoinRoom:
		var m JoinRoomMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil
		}
		if m.RoomID == "" || m.UserName == "" {
			return nil
		}
		return m
	case MsgTypeCreateRoom:
		var m CreateRoomMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil
		}
		if m.UserName == "" || !m.Platform.Valid() {
			return nil
		}
		return m
	case MsgTypeVideoUpdate:
		var m VideoUpdateMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil
		}
		if !m.State.Valid() || m.CurrentTime == nil {
			return nil
		}
		return m
	case MsgTypeHeartbeat:
		return HeartbeatMessage{Type: MsgTypeHeartbeat}
	case MsgTypeLeaveRoom:
		return LeaveRoomMessage{Type: MsgTypeLeaveRoom}
	case MsgTypeNavigate:
		var m NavigateMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil
		}
		if m.URL == "" {
			return nil
		}
		return m
	default:
		return nil
	}
}

// UserInfo is the membership entry carried by room snapshots.
type UserInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type RoomJoinedMessage struct {
	Type        string     `json:"type"`
	RoomID      string     `json:"roomId"`
	Platform    Platform   `json:"platform"`
	State       VideoState `json:"state"`
	CurrentTime float64    `json:"currentTime"`
	Users       []UserInfo `json:"users"`
}

type RoomCreatedMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type SyncUpdateMessage struct {
	Type        string     `json:"type"`
	State       VideoState `json:"state"`
	CurrentTime float64    `json:"currentTime"`
	FromUserID  string     `json:"fromUserId"`
}

type UserJoinedMessage struct {
	Type      string     `json:"type"`
	UserName  string     `json:"userName"`
	UserCount int        `json:"userCount"`
	Users     []UserInfo `json:"users"`
}

type UserLeftMessage struct {
	Type      string     `json:"type"`
	UserName  string     `json:"userName"`
	UserCount int        `json:"userCount"`
	Users     []UserInfo `json:"users"`
}

type NavigateUpdateMessage struct {
	Type       string `json:"type"`
	URL        string `json:"url"`
	FromUserID string `json:"fromUserId"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewRoomCreated(roomID string) RoomCreatedMessage {
	return RoomCreatedMessage{Type: MsgTypeRoomCreated, RoomID: roomID}
}

func NewSyncUpdate(state VideoState, currentTime float64, fromUserID string) SyncUpdateMessage {
	return SyncUpdateMessage{
		Type:        MsgTypeSyncUpdate,
		State:       state,
		CurrentTime: currentTime,
		FromUserID:  fromUserID,
	}
}

func NewUserJoined(userName string, users []UserInfo) UserJoinedMessage {
	return UserJoinedMessage{
		Type:      MsgTypeUserJoined,
		UserName:  userName,
		UserCount: len(users),
		Users:     users,
	}
}

func NewUserLeft(userName string, users []UserInfo) UserLeftMessage {
	return UserLeftMessage{
		Type:      MsgTypeUserLeft,
		UserName:  userName,
		UserCount: len(users),
		Users:     users,
	}
}

func NewNavigateUpdate(url, fromUserID string) NavigateUpdateMessage {
	return NavigateUpdateMessage{Type: MsgTypeNavigateUpdate, URL: url, FromUserID: fromUserID}
}

func NewError(code, message string) ErrorMessage {
	return ErrorMessage{Type: MsgTypeError, Code: code, Message: message}
}

// Encode renders an outbound message to its wire form.
func Encode(msg interface{}) ([]byte, error) {
	return json.Marshal(msg)
}
