package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"session-service/internal/models"
	"session-service/internal/observability"
)

// typingIdleWindow matches the client-side debounce: a typing state not
// refreshed within it is treated as expired even if no typing_stop ever
// arrives.
const (
	typingIdleWindow    = 2 * time.Second
	typingSweepInterval = 250 * time.Millisecond
)

// Typing state is tracked per (session, user), not per connection: any of
// the user's connections refreshes it, any clears it.
type typingEntry struct {
	displayName string
	expiresAt   time.Time
}

// StartTyping records or refreshes the typing state and broadcasts
// user_typing only for a new state, never for a refresh. Typing from a
// connection that is not in the room is silently ignored.
func (h *Hub) StartTyping(sessionID, connID string) error {
	conn, err := h.registry.Lookup(connID)
	if err != nil {
		return fmt.Errorf("typing start %s: %w", sessionID, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, member := h.rooms[sessionID][connID]; !member {
		return nil
	}

	if _, ok := h.typing[sessionID]; !ok {
		h.typing[sessionID] = make(map[int64]typingEntry)
	}
	_, refresh := h.typing[sessionID][conn.UserID]
	h.typing[sessionID][conn.UserID] = typingEntry{
		displayName: conn.DisplayName,
		expiresAt:   h.now().Add(h.typingTTL),
	}
	if refresh {
		return nil
	}
	h.broadcastTypingLocked(sessionID, conn.UserID, conn.DisplayName, true)
	observability.IncSessionEvent("typing_start")
	return nil
}

// StopTyping clears the state immediately and broadcasts the stop if a
// state existed.
func (h *Hub) StopTyping(sessionID, connID string) error {
	conn, err := h.registry.Lookup(connID)
	if err != nil {
		return fmt.Errorf("typing stop %s: %w", sessionID, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if entry, ok := h.typing[sessionID][conn.UserID]; ok {
		delete(h.typing[sessionID], conn.UserID)
		h.broadcastTypingLocked(sessionID, conn.UserID, entry.displayName, false)
	}
	return nil
}

// TypingUsersIn returns the display names of users actively typing in the
// session, expired states excluded even before the sweep collects them.
func (h *Hub) TypingUsersIn(sessionID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	names := make([]string, 0, len(h.typing[sessionID]))
	for _, entry := range h.typing[sessionID] {
		if entry.expiresAt.After(now) {
			names = append(names, entry.displayName)
		}
	}
	sort.Strings(names)
	return names
}

// Run drives the expiry sweep until the context is cancelled. Without it
// a client that crashes mid-type would leave a stuck indicator forever.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweepTyping(h.now())
		}
	}
}

func (h *Hub) sweepTyping(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID, entries := range h.typing {
		for userID, entry := range entries {
			if entry.expiresAt.After(now) {
				continue
			}
			delete(entries, userID)
			h.broadcastTypingLocked(sessionID, userID, entry.displayName, false)
			observability.IncSessionEvent("typing_expired")
		}
		if len(entries) == 0 {
			delete(h.typing, sessionID)
		}
	}
}

// clearTypingLocked drops the user's typing state when their last
// connection leaves the room, broadcasting the stop to whoever remains.
func (h *Hub) clearTypingLocked(sessionID string, userID int64) {
	entry, ok := h.typing[sessionID][userID]
	if !ok {
		return
	}
	delete(h.typing[sessionID], userID)
	h.broadcastTypingLocked(sessionID, userID, entry.displayName, false)
}

// broadcastTypingLocked sends user_typing to every member except the
// typist's own connections.
func (h *Hub) broadcastTypingLocked(sessionID string, userID int64, displayName string, typing bool) {
	ev := models.TypingEvent(sessionID, userID, displayName, typing)
	for connID := range h.rooms[sessionID] {
		conn, err := h.registry.Lookup(connID)
		if err != nil || conn.UserID == userID {
			continue
		}
		conn.sink.Deliver(ev)
	}
}
