package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"session-service/internal/models"
	"session-service/internal/observability"
	"session-service/internal/repositories"
)

const (
	defaultPersistTimeout = 5 * time.Second
	defaultHistoryLimit   = 50
	maxHistoryLimit       = 200
)

// Relay accepts message submissions, delegates durability to the message
// store and fans persisted messages out to the session room. Nothing is
// broadcast for a message the store did not accept.
type Relay struct {
	registry       *Registry
	hub            *Hub
	messages       repositories.MessageRepository
	persistTimeout time.Duration
}

// NewRelay wires the relay. A non-positive timeout falls back to the
// default persistence bound.
func NewRelay(registry *Registry, hub *Hub, messages repositories.MessageRepository, persistTimeout time.Duration) *Relay {
	if persistTimeout <= 0 {
		persistTimeout = defaultPersistTimeout
	}
	return &Relay{
		registry:       registry,
		hub:            hub,
		messages:       messages,
		persistTimeout: persistTimeout,
	}
}

// Send validates and persists a message, then broadcasts it to every
// connection in the room, the sender's other connections included.
func (r *Relay) Send(ctx context.Context, sessionID, connID, body, messageType string, metadata json.RawMessage) (models.Message, error) {
	conn, err := r.registry.Lookup(connID)
	if err != nil {
		return models.Message{}, fmt.Errorf("send: %w", err)
	}

	if messageType == "" {
		messageType = models.MessageTypeText
	}
	if messageType == models.MessageTypeText && strings.TrimSpace(body) == "" {
		return models.Message{}, fmt.Errorf("empty message body: %w", ErrValidation)
	}

	pctx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()
	msg, err := r.messages.CreateMessage(pctx, repositories.NewMessage{
		SessionID:  sessionID,
		SenderID:   conn.UserID,
		SenderName: conn.DisplayName,
		SenderRole: conn.Role,
		Body:       body,
		Type:       messageType,
		Metadata:   metadata,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.Message{}, fmt.Errorf("persist message: %w", ErrTimeout)
		}
		return models.Message{}, fmt.Errorf("persist message: %v: %w", err, ErrPersistence)
	}

	r.hub.BroadcastMessage(sessionID, msg)
	observability.IncSessionEvent("message_sent")
	return msg, nil
}

// History returns up to limit messages older than beforeID, oldest-first.
// Each call re-reads the store; it is not a resumable stream.
func (r *Relay) History(ctx context.Context, sessionID string, limit int, beforeID int64) ([]models.Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	pctx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()
	msgs, err := r.messages.ListMessages(pctx, sessionID, limit, beforeID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("load history: %w", ErrTimeout)
		}
		return nil, fmt.Errorf("load history: %v: %w", err, ErrPersistence)
	}
	return msgs, nil
}

// MarkRead records a read receipt and broadcasts the incremental update.
// Failures are logged, never surfaced: a stale mark-read from a
// late-arriving client must not disturb the session.
func (r *Relay) MarkRead(ctx context.Context, messageID int64, connID string) {
	conn, err := r.registry.Lookup(connID)
	if err != nil {
		zap.L().Warn("mark read from unknown connection", zap.String("conn_id", connID))
		return
	}

	pctx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()
	msg, err := r.messages.GetMessage(pctx, messageID)
	if err != nil {
		zap.L().Warn("mark read lookup failed", zap.Int64("message_id", messageID), zap.Error(err))
		return
	}
	if !r.hub.UserInRoom(msg.SessionID, conn.UserID) {
		zap.L().Warn("mark read from non-participant",
			zap.Int64("message_id", messageID),
			zap.String("session_id", msg.SessionID),
			zap.Int64("user_id", conn.UserID))
		return
	}

	added, err := r.messages.AddReader(pctx, messageID, conn.UserID)
	if err != nil {
		zap.L().Warn("mark read upsert failed", zap.Int64("message_id", messageID), zap.Error(err))
		return
	}
	if !added {
		return
	}
	r.hub.BroadcastRead(msg.SessionID, messageID, conn.UserID)
	observability.IncSessionEvent("message_read")
}
