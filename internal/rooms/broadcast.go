package rooms

import (
	"log"
)

// Broadcaster fans one rendered message out to a room's members. Delivery
// is best effort: membership is snapshotted first, and a failed write to
// one recipient is logged and skipped without aborting the rest.
type Broadcaster struct {
	manager *Manager
}

func NewBroadcaster(manager *Manager) *Broadcaster {
	return &Broadcaster{manager: manager}
}

// Broadcast delivers data to every member of the room except
// excludeUserID. Pass an empty excludeUserID to reach all members.
func (b *Broadcaster) Broadcast(roomID string, data []byte, excludeUserID string) {
	users := b.manager.GetUsersInRoom(roomID)
	for _, user := range users {
		if user.ID == excludeUserID {
			continue
		}
		if err := user.Deliver(data); err != nil {
			log.Printf("broadcast: failed to deliver to user %s in room %s: %v", user.ID, roomID, err)
		}
	}
}
