package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"session-service/internal/models"
	"session-service/internal/observability"
)

// Hub maintains the set of connections inside each trip-session room and
// the ephemeral typing state per (session, user). All room-affecting
// operations are serialized under one mutex, so every connection observes
// membership, typing and message broadcasts for a room in a single
// consistent order.
type Hub struct {
	registry *Registry

	mu     sync.Mutex
	rooms  map[string]map[string]struct{}
	byConn map[string]map[string]struct{}
	typing map[string]map[int64]typingEntry

	typingTTL  time.Duration
	sweepEvery time.Duration
	now        func() time.Time
}

// NewHub creates an empty hub bound to the registry.
func NewHub(registry *Registry) *Hub {
	return &Hub{
		registry:   registry,
		rooms:      make(map[string]map[string]struct{}),
		byConn:     make(map[string]map[string]struct{}),
		typing:     make(map[string]map[int64]typingEntry),
		typingTTL:  typingIdleWindow,
		sweepEvery: typingSweepInterval,
		now:        time.Now,
	}
}

// Join adds the connection to the room and broadcasts a full membership
// snapshot: joined_session to the joiner, members_changed to everyone
// else. Snapshots rather than diffs keep clients free of reconciliation
// logic.
func (h *Hub) Join(sessionID, connID string) error {
	conn, err := h.registry.Lookup(connID)
	if err != nil {
		return fmt.Errorf("join %s: %w", sessionID, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[sessionID]; !ok {
		h.rooms[sessionID] = make(map[string]struct{})
	}
	h.rooms[sessionID][connID] = struct{}{}
	if _, ok := h.byConn[connID]; !ok {
		h.byConn[connID] = make(map[string]struct{})
	}
	h.byConn[connID][sessionID] = struct{}{}

	members := h.membersLocked(sessionID)
	conn.sink.Deliver(models.ServerEvent{
		Type:      models.ServerJoinedSession,
		SessionID: sessionID,
		Members:   members,
	})
	h.broadcastLocked(sessionID, models.ServerEvent{
		Type:      models.ServerMembersChanged,
		SessionID: sessionID,
		Members:   members,
	}, connID)
	observability.IncSessionEvent("join")
	return nil
}

// Leave removes the connection from the room. Leaving a room the
// connection is not in is a no-op; an unregistered connection is an error.
func (h *Hub) Leave(sessionID, connID string) error {
	if _, err := h.registry.Lookup(connID); err != nil {
		return fmt.Errorf("leave %s: %w", sessionID, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sessionID, connID)
	observability.IncSessionEvent("leave")
	return nil
}

// Unregister drops the connection from every room it joined, broadcasting
// updated membership, then removes it from the registry. Safe to call for
// unknown connections.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	for sessionID := range h.byConn[connID] {
		h.removeLocked(sessionID, connID)
	}
	h.mu.Unlock()

	h.registry.Unregister(connID)
}

// MembersOf returns the room's members deduplicated by user. The result
// order is not part of the contract; it is sorted only for determinism.
func (h *Hub) MembersOf(sessionID string) []models.Member {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.membersLocked(sessionID)
}

// UserInRoom reports whether any of the user's connections is currently
// in the room.
func (h *Hub) UserInRoom(sessionID string, userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.userInRoomLocked(sessionID, userID)
}

// BroadcastMessage fans a persisted message out to every connection in
// its session room, the sender's other connections included.
func (h *Hub) BroadcastMessage(sessionID string, msg models.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(sessionID, models.ServerEvent{
		Type:      models.ServerNewMessage,
		SessionID: sessionID,
		Message:   &msg,
	}, "")
}

// BroadcastRead fans an incremental read-receipt event out to the room.
// Receipts are additive and idempotent on the client, so no snapshot is
// needed.
func (h *Hub) BroadcastRead(sessionID string, messageID, userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(sessionID, models.ServerEvent{
		Type:      models.ServerMessageRead,
		SessionID: sessionID,
		MessageID: messageID,
		UserID:    userID,
	}, "")
}

// Shutdown emits a best-effort members_changed for every room showing all
// connections of this instance removed. Called before transports close.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID := range h.rooms {
		h.broadcastLocked(sessionID, models.ServerEvent{
			Type:      models.ServerMembersChanged,
			SessionID: sessionID,
			Members:   []models.Member{},
		}, "")
	}
	zap.L().Info("hub shutdown broadcast sent", zap.Int("rooms", len(h.rooms)))
}

// removeLocked drops the membership, clears the user's typing state when
// their last connection leaves, and broadcasts the new snapshot to the
// remaining members. Empty rooms are garbage-collected.
func (h *Hub) removeLocked(sessionID, connID string) {
	conns, ok := h.rooms[sessionID]
	if !ok {
		return
	}
	if _, member := conns[connID]; !member {
		return
	}
	delete(conns, connID)
	if sessions, ok := h.byConn[connID]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(h.byConn, connID)
		}
	}

	if conn, err := h.registry.Lookup(connID); err == nil {
		if !h.userInRoomLocked(sessionID, conn.UserID) {
			h.clearTypingLocked(sessionID, conn.UserID)
		}
	}

	if len(conns) == 0 {
		delete(h.rooms, sessionID)
		delete(h.typing, sessionID)
		return
	}
	h.broadcastLocked(sessionID, models.ServerEvent{
		Type:      models.ServerMembersChanged,
		SessionID: sessionID,
		Members:   h.membersLocked(sessionID),
	}, "")
}

func (h *Hub) membersLocked(sessionID string) []models.Member {
	seen := make(map[int64]struct{})
	members := make([]models.Member, 0, len(h.rooms[sessionID]))
	for connID := range h.rooms[sessionID] {
		conn, err := h.registry.Lookup(connID)
		if err != nil {
			continue
		}
		if _, dup := seen[conn.UserID]; dup {
			continue
		}
		seen[conn.UserID] = struct{}{}
		members = append(members, conn.Member())
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members
}

func (h *Hub) userInRoomLocked(sessionID string, userID int64) bool {
	for connID := range h.rooms[sessionID] {
		if conn, err := h.registry.Lookup(connID); err == nil && conn.UserID == userID {
			return true
		}
	}
	return false
}

// broadcastLocked enqueues the event on every member sink except
// exceptConn. Sinks never block, so holding the lock here is what keeps
// per-connection delivery order consistent across event types.
func (h *Hub) broadcastLocked(sessionID string, ev models.ServerEvent, exceptConn string) {
	for connID := range h.rooms[sessionID] {
		if connID == exceptConn {
			continue
		}
		conn, err := h.registry.Lookup(connID)
		if err != nil {
			continue
		}
		conn.sink.Deliver(ev)
	}
}
