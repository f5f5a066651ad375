package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"session-service/internal/presencestore"
	"session-service/internal/session"
)

// SessionHandler serves the REST views of session state: message history,
// per-session members and global presence.
type SessionHandler struct {
	relay    *session.Relay
	hub      *session.Hub
	presence presencestore.Store
}

// NewSessionHandler builds a SessionHandler.
func NewSessionHandler(relay *session.Relay, hub *session.Hub, presence presencestore.Store) *SessionHandler {
	return &SessionHandler{relay: relay, hub: hub, presence: presence}
}

// GetHistory returns session messages oldest-first, paginated backwards
// by the before_id cursor.
func (h *SessionHandler) GetHistory(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	beforeID, err := strconv.ParseInt(c.DefaultQuery("before_id", "0"), 10, 64)
	if err != nil || beforeID < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before_id"})
		return
	}

	msgs, err := h.relay.History(c.Request.Context(), sessionID, limit, beforeID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrTimeout) {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// GetOnline returns the session room's current members, deduplicated by
// user.
func (h *SessionHandler) GetOnline(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"members":    h.hub.MembersOf(sessionID),
		"typing":     h.hub.TypingUsersIn(sessionID),
	})
}

// GetGlobalOnline returns every user currently online on this platform,
// whatever session they are watching.
func (h *SessionHandler) GetGlobalOnline(c *gin.Context) {
	entries, err := h.presence.Online(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load presence"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"online": entries})
}
