package models

import "encoding/json"

// Client-to-server event names.
const (
	ClientJoinSession    = "join_session"
	ClientLeaveSession   = "leave_session"
	ClientSendMessage    = "send_message"
	ClientTypingStart    = "typing_start"
	ClientTypingStop     = "typing_stop"
	ClientMarkRead       = "mark_read"
	ClientGetOnlineUsers = "get_online_users"
)

// Server-to-client event names.
const (
	ServerJoinedSession  = "joined_session"
	ServerMembersChanged = "members_changed"
	ServerNewMessage     = "new_message"
	ServerUserTyping     = "user_typing"
	ServerMessageRead    = "message_read"
	ServerOnlineUsers    = "online_users"
	ServerError          = "error"
)

// ClientEvent is one inbound frame on a session websocket.
type ClientEvent struct {
	Type        string          `json:"type"`
	SessionID   string          `json:"session_id,omitempty"`
	Body        string          `json:"body,omitempty"`
	MessageType string          `json:"message_type,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	MessageID   int64           `json:"message_id,omitempty"`
}

// ServerEvent is one outbound frame. Field presence depends on Type.
type ServerEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	// Members stays explicit so an empty snapshot reads as "members":[]
	// rather than a missing key; snapshots are authoritative.
	Members     []Member `json:"members"`
	Message     *Message `json:"message,omitempty"`
	MessageID   int64    `json:"message_id,omitempty"`
	UserID      int64    `json:"user_id,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	IsTyping    *bool    `json:"is_typing,omitempty"`
	Kind        string   `json:"kind,omitempty"`
	Detail      string   `json:"detail,omitempty"`
}

// TypingEvent builds a user_typing frame. IsTyping is always serialized,
// so the flag is carried as a pointer.
func TypingEvent(sessionID string, userID int64, displayName string, typing bool) ServerEvent {
	return ServerEvent{
		Type:        ServerUserTyping,
		SessionID:   sessionID,
		UserID:      userID,
		DisplayName: displayName,
		IsTyping:    &typing,
	}
}

// ErrorEvent builds an error frame addressed to a single connection.
func ErrorEvent(kind, detail string) ServerEvent {
	return ServerEvent{Type: ServerError, Kind: kind, Detail: detail}
}
