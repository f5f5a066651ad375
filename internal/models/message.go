package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// Message type discriminators. Free-form text messages carry a body;
// system messages carry a structured metadata payload instead.
const (
	MessageTypeText   = "text"
	MessageTypeSystem = "system"
)

// Message is a chat message scoped to exactly one trip session.
// Sender identity, session id and creation timestamp are immutable once
// persisted; only ReadBy may grow.
type Message struct {
	ID         int64           `db:"id" json:"id"`
	SessionID  string          `db:"session_id" json:"session_id"`
	SenderID   int64           `db:"sender_id" json:"sender_id"`
	SenderName string          `db:"sender_name" json:"sender_name"`
	SenderRole string          `db:"sender_role" json:"sender_role"`
	Body       string          `db:"body" json:"body"`
	Type       string          `db:"type" json:"type"`
	Metadata   json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	ReadBy     pq.Int64Array   `db:"read_by" json:"read_by"`
}
