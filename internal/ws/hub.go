package ws

import (
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var ErrUnauthorizedRoomJoin = errors.New("unauthorized_room_join")

// Hub keeps member sets per room name. Rooms come into existence on first
// join and are reclaimed when their last member leaves; nothing outside
// this type touches the maps.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func NewHub() *Hub { return &Hub{rooms: make(map[string]*room)} }

// Join adds c to roomName. Names under "user:" are private: the suffix
// must match the connection's resolved identity.
func (h *Hub) Join(c *Conn, roomName string) error {
	if strings.HasPrefix(roomName, RoomUserPrefix) {
		ident := c.Identity()
		userID := ""
		if ident != nil {
			userID = ident.ID
		}
		if ident == nil || roomName != RoomUserPrefix+ident.ID {
			zap.L().Warn("unauthorized_room_join",
				zap.String("room", roomName),
				zap.String("conn_id", c.ID()),
				zap.String("user_id", userID),
			)
			return ErrUnauthorizedRoomJoin
		}
	}

	h.mu.Lock()
	r, ok := h.rooms[roomName]
	if !ok {
		r = newRoom()
		h.rooms[roomName] = r
	}
	r.add(c)
	h.mu.Unlock()

	c.markJoined(roomName)
	return nil
}

// Leave is idempotent: leaving a room the connection is not in is a no-op.
func (h *Hub) Leave(c *Conn, roomName string) {
	h.mu.Lock()
	if r, ok := h.rooms[roomName]; ok {
		if r.remove(c) == 0 {
			// last one out: reclaim the entry, it is recreated on next join
			delete(h.rooms, roomName)
		}
	}
	h.mu.Unlock()
	c.markLeft(roomName)
}

// Broadcast delivers msg to every connection that is a member of roomName
// at call time, except exclude if given. Delivery is best-effort: a
// recipient with a full outbound buffer loses that one frame.
func (h *Hub) Broadcast(roomName, eventName string, msg []byte, exclude *Conn) {
	h.mu.Lock()
	r, ok := h.rooms[roomName]
	h.mu.Unlock()
	if !ok {
		return
	}

	// Snapshot the membership, then enqueue outside the lock.
	for _, c := range r.snapshot() {
		if c == exclude {
			continue
		}
		if !c.enqueue(msg) {
			zap.L().Warn("broadcast_backpressure",
				zap.String("room", roomName),
				zap.String("event", eventName),
				zap.String("conn_id", c.ID()),
			)
		}
	}
}

// RemoveAll takes c out of every room it is a member of. Called once from
// the disconnect path.
func (h *Hub) RemoveAll(c *Conn) {
	for _, roomName := range c.roomSnapshot() {
		h.Leave(c, roomName)
	}
}

// OnlineUsers returns the ids of identities with at least one live
// connection, derived from membership of their private rooms.
func (h *Hub) OnlineUsers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.rooms))
	for name, r := range h.rooms {
		if strings.HasPrefix(name, RoomUserPrefix) && r.size() > 0 {
			ids = append(ids, strings.TrimPrefix(name, RoomUserPrefix))
		}
	}
	return ids
}
