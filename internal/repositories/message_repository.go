package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"session-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// NewMessage carries the store-bound fields of a message submission. The
// store assigns the id and timestamp.
type NewMessage struct {
	SessionID  string
	SenderID   int64
	SenderName string
	SenderRole string
	Body       string
	Type       string
	Metadata   json.RawMessage
}

// MessageRepository is the durable message store collaborator. The
// realtime layer holds no message durably itself.
type MessageRepository interface {
	CreateMessage(ctx context.Context, m NewMessage) (models.Message, error)
	ListMessages(ctx context.Context, sessionID string, limit int, beforeID int64) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	AddReader(ctx context.Context, messageID int64, userID int64) (bool, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage persists a message. The BIGSERIAL id gives messages in a
// session a monotonic order; concurrent sends serialize on the insert.
func (r *MessageRepo) CreateMessage(ctx context.Context, m NewMessage) (models.Message, error) {
	metadata := m.Metadata
	if metadata == nil {
		metadata = json.RawMessage(`{}`)
	}
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (session_id, sender_id, sender_name, sender_role, body, type, metadata)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, session_id, sender_id, sender_name, sender_role, body, type, metadata, created_at`,
		m.SessionID, m.SenderID, m.SenderName, m.SenderRole, m.Body, m.Type, metadata).
		Scan(&msg.ID, &msg.SessionID, &msg.SenderID, &msg.SenderName, &msg.SenderRole, &msg.Body, &msg.Type, &msg.Metadata, &msg.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}
	msg.ReadBy = []int64{}
	return msg, nil
}

// ListMessages returns up to limit messages older than beforeID (all when
// beforeID is zero), oldest-first. The inner query pages backwards from
// the cursor; the outer one restores chat order.
func (r *MessageRepo) ListMessages(ctx context.Context, sessionID string, limit int, beforeID int64) ([]models.Message, error) {
	query := `SELECT * FROM (
            SELECT m.id, m.session_id, m.sender_id, m.sender_name, m.sender_role, m.body, m.type, m.metadata, m.created_at,
                COALESCE(array_agg(mr.user_id) FILTER (WHERE mr.user_id IS NOT NULL), '{}') AS read_by
            FROM messages m
            LEFT JOIN message_reads mr ON mr.message_id = m.id
            WHERE m.session_id = $1 AND ($3 = 0 OR m.id < $3)
            GROUP BY m.id
            ORDER BY m.id DESC
            LIMIT $2
        ) page ORDER BY id ASC`
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, query, sessionID, limit, beforeID); err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetMessage retrieves a single message with its read set.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	query := `SELECT m.id, m.session_id, m.sender_id, m.sender_name, m.sender_role, m.body, m.type, m.metadata, m.created_at,
            COALESCE(array_agg(mr.user_id) FILTER (WHERE mr.user_id IS NOT NULL), '{}') AS read_by
        FROM messages m
        LEFT JOIN message_reads mr ON mr.message_id = m.id
        WHERE m.id = $1
        GROUP BY m.id`
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, query, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// AddReader records that the user has read the message. The upsert is
// idempotent; the bool reports whether the reader was newly added.
func (r *MessageRepo) AddReader(ctx context.Context, messageID int64, userID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id) VALUES ($1, $2)
        ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
