package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"session-service/internal/models"
	"session-service/internal/presencestore"
)

// Sink receives server events destined for one connection. The websocket
// client implements it with a buffered channel, so delivery never blocks
// the caller.
type Sink interface {
	Deliver(ev models.ServerEvent)
}

// Connection is one live authenticated link. Identity comes from the auth
// handshake and is trusted for the connection's lifetime.
type Connection struct {
	ID          string
	UserID      int64
	DisplayName string
	Role        string
	ConnectedAt time.Time
	sink        Sink
}

// Member returns the room-member view of the connection's user.
func (c Connection) Member() models.Member {
	return models.Member{UserID: c.UserID, DisplayName: c.DisplayName, Role: c.Role}
}

// Registry owns every live connection and the per-user global presence
// derived from them.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]Connection
	byUser   map[int64]int
	presence presencestore.Store
}

// NewRegistry builds an empty registry backed by the given presence store.
func NewRegistry(presence presencestore.Store) *Registry {
	return &Registry{
		conns:    make(map[string]Connection),
		byUser:   make(map[int64]int),
		presence: presence,
	}
}

// Register records a new live connection. The first connection of a user
// marks them online in the presence store; a store failure is logged and
// does not fail registration.
func (r *Registry) Register(connID string, userID int64, displayName, role string, sink Sink) {
	r.mu.Lock()
	conn := Connection{
		ID:          connID,
		UserID:      userID,
		DisplayName: displayName,
		Role:        role,
		ConnectedAt: time.Now(),
		sink:        sink,
	}
	r.conns[connID] = conn
	r.byUser[userID]++
	first := r.byUser[userID] == 1
	r.mu.Unlock()

	if first {
		r.markOnline(conn)
	}
}

// Unregister removes the connection. Unknown connection ids are a no-op.
// Room cleanup is the hub's job; it calls this after dropping memberships.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connID)
	r.byUser[conn.UserID]--
	last := r.byUser[conn.UserID] <= 0
	if last {
		delete(r.byUser, conn.UserID)
	}
	r.mu.Unlock()

	if last {
		r.markOffline(conn.UserID)
	}
}

// Lookup resolves a connection id to its identity.
func (r *Registry) Lookup(connID string) (Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	if !ok {
		return Connection{}, fmt.Errorf("connection %s: %w", connID, ErrNotFound)
	}
	return conn, nil
}

func (r *Registry) markOnline(conn Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	entry := presencestore.Entry{
		UserID:      conn.UserID,
		DisplayName: conn.DisplayName,
		Role:        conn.Role,
		Since:       conn.ConnectedAt,
	}
	if err := r.presence.MarkOnline(ctx, entry); err != nil {
		zap.L().Warn("presence mark online failed", zap.Int64("user_id", conn.UserID), zap.Error(err))
	}
}

func (r *Registry) markOffline(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.presence.MarkOffline(ctx, userID); err != nil {
		zap.L().Warn("presence mark offline failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}
