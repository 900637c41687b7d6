package rooms

import (
	"context"
	"math/rand"
	"sync"

	"github.com/RanFeng/ilog"

	"coview/internal/protocol"
)

const roomCodeLength = 4

const roomCodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Manager is the shared registry of live rooms and the user->room index.
// All operations are safe under unbounded concurrent callers; multi-step
// sequences built on top of them (read room, then broadcast) are not
// atomic as a whole.
type Manager struct {
	mu         sync.RWMutex
	rooms      map[string]*Room
	userToRoom map[string]string
}

func NewManager() *Manager {
	return &Manager{
		rooms:      make(map[string]*Room),
		userToRoom: make(map[string]string),
	}
}

// CreateRoom allocates a fresh room code, inserts a room with the host as
// its only member and returns the room. It never fails.
func (m *Manager) CreateRoom(hostID, hostName string, platform protocol.Platform, sink Sink) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID := m.generateRoomID()
	room := newRoom(roomID, platform, hostID)
	room.addUser(NewUser(hostID, hostName, sink))
	m.rooms[roomID] = room
	m.userToRoom[hostID] = roomID

	ilog.EventInfo(context.Background(), "room_created",
		"roomID", roomID, "hostID", hostID, "platform", platform)
	return room
}

// JoinRoom adds the user to the room with the given code. The code must
// already be canonical uppercase. Returns nil if no such room is live; no
// room is created as a side effect.
func (m *Manager) JoinRoom(roomID, userID, userName string, sink Sink) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	room.addUser(NewUser(userID, userName, sink))
	m.userToRoom[userID] = roomID
	return room
}

// LeaveRoom removes the user's index entry and room membership. A room
// that becomes empty is deleted from the registry in the same operation.
// Returns the post-removal room and the removed user so the caller can
// still announce the departure; both are nil when the user was not in a
// room.
func (m *Manager) LeaveRoom(userID string) (*Room, *User) {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID, ok := m.userToRoom[userID]
	if !ok {
		return nil, nil
	}
	delete(m.userToRoom, userID)

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, nil
	}
	user := room.removeUser(userID)

	if room.userCount() == 0 {
		delete(m.rooms, roomID)
		ilog.EventInfo(context.Background(), "room_deleted", "roomID", roomID)
	}
	return room, user
}

// UpdateRoomState replaces the room's playback state and position. A
// no-op when the room no longer exists; it may have been deleted by a
// concurrent leave.
func (m *Manager) UpdateRoomState(roomID string, state protocol.VideoState, currentTime float64) {
	m.mu.RLock()
	room, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	room.setState(state, currentTime)
}

// GetRoomForUser resolves the user's current room. Either lookup may race
// with a concurrent removal and legitimately return nil.
func (m *Manager) GetRoomForUser(userID string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roomID, ok := m.userToRoom[userID]
	if !ok {
		return nil
	}
	return m.rooms[roomID]
}

// GetUsersInRoom returns a point-in-time snapshot of the room's members.
func (m *Manager) GetUsersInRoom(roomID string) []*User {
	m.mu.RLock()
	room, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return room.Users()
}

// RoomCount reports the number of live rooms.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Rooms returns the live rooms for the admin listing.
func (m *Manager) Rooms() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		out = append(out, room)
	}
	return out
}

// generateRoomID draws 4 characters from A-Z and retries on collision
// with a live code. Uniqueness is a soft invariant: 26^4 codes are plenty
// for the expected concurrent-room count, but the loop is unbounded and
// would spin on a saturated code space. Callers must hold m.mu.
func (m *Manager) generateRoomID() string {
	buf := make([]byte, roomCodeLength)
	for {
		for i := range buf {
			buf[i] = roomCodeChars[rand.Intn(len(roomCodeChars))]
		}
		code := string(buf)
		if _, exists := m.rooms[code]; !exists {
			return code
		}
	}
}
