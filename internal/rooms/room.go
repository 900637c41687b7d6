package rooms

import (
	"sync"

	"coview/internal/protocol"
)

// Sink is a member's outbound delivery handle; the transport that owns the
// connection implements it. Send must not block the caller.
type Sink interface {
	Send(data []byte) error
}

// User is one connected participant. Created once per connection on
// create_room or join_room, removed once on leave or disconnect, never
// updated in place.
type User struct {
	ID   string
	Name string
	sink Sink
}

func NewUser(id, name string, sink Sink) *User {
	return &User{ID: id, Name: name, sink: sink}
}

// Deliver writes one rendered message to the user's sink.
func (u *User) Deliver(data []byte) error {
	return u.sink.Send(data)
}

// Snapshot is a point-in-time copy of a room; members may join or leave
// between snapshot and use.
type Snapshot struct {
	ID          string
	Platform    protocol.Platform
	HostID      string
	State       protocol.VideoState
	CurrentTime float64
	Users       []protocol.UserInfo
}

func (s Snapshot) UserCount() int {
	return len(s.Users)
}

// Room is a synchronization group sharing platform, playback state and
// position. Mutated only through the Manager.
type Room struct {
	id       string
	platform protocol.Platform
	hostID   string

	mu          sync.RWMutex
	users       map[string]*User
	state       protocol.VideoState
	currentTime float64
}

func newRoom(id string, platform protocol.Platform, hostID string) *Room {
	return &Room{
		id:       id,
		platform: platform,
		hostID:   hostID,
		users:    make(map[string]*User),
		state:    protocol.StatePaused,
	}
}

func (r *Room) ID() string                  { return r.id }
func (r *Room) Platform() protocol.Platform { return r.platform }
func (r *Room) HostID() string              { return r.hostID }

func (r *Room) addUser(u *User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *Room) removeUser(userID string) *User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil
	}
	delete(r.users, userID)
	return u
}

func (r *Room) setState(state protocol.VideoState, currentTime float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.currentTime = currentTime
}

func (r *Room) userCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Users returns a point-in-time copy of the membership.
func (r *Room) Users() []*User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out
}

// Snapshot copies the room's current state and membership.
func (r *Room) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]protocol.UserInfo, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, protocol.UserInfo{ID: u.ID, Name: u.Name})
	}
	return Snapshot{
		ID:          r.id,
		Platform:    r.platform,
		HostID:      r.hostID,
		State:       r.state,
		CurrentTime: r.currentTime,
		Users:       users,
	}
}

// DTO renders the room for the admin listing.
func (r *Room) DTO() protocol.RoomDTO {
	snap := r.Snapshot()
	return protocol.RoomDTO{
		ID:           snap.ID,
		Platform:     snap.Platform,
		HostID:       snap.HostID,
		CurrentState: snap.State,
		CurrentTime:  snap.CurrentTime,
		Users:        snap.Users,
	}
}
