package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chat-core/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository stores messages and maintains conversation summaries.
type MessageRepository interface {
	CreateMessage(ctx context.Context, senderID, receiverID, text string) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message and upserts the pair's conversation summary
// in one transaction.
func (r *MessageRepo) CreateMessage(ctx context.Context, senderID, receiverID, text string) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var msg models.Message
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO messages (id, sender_id, receiver_id, text) VALUES ($1, $2, $3, $4)
         RETURNING id, sender_id, receiver_id, text, sent_at`,
		uuid.NewString(), senderID, receiverID, text).StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}

	user1, user2 := orderPair(senderID, receiverID)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (user1_id, user2_id, last_message, updated_at) VALUES ($1, $2, $3, $4)
         ON CONFLICT (user1_id, user2_id) DO UPDATE SET last_message = EXCLUDED.last_message, updated_at = EXCLUDED.updated_at`,
		user1, user2, msg.Text, msg.SentAt)
	if err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT id, sender_id, receiver_id, text, sent_at FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListConversations returns the user's conversation summaries, most recent
// first, with both participants resolved.
func (r *MessageRepo) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	type row struct {
		User1ID     string       `db:"user1_id"`
		User2ID     string       `db:"user2_id"`
		User1Name   string       `db:"user1_name"`
		User2Name   string       `db:"user2_name"`
		User1Role   string       `db:"user1_role"`
		User2Role   string       `db:"user2_role"`
		LastMessage string       `db:"last_message"`
		UpdatedAt   sql.NullTime `db:"updated_at"`
	}

	query := `SELECT c.user1_id, c.user2_id, c.last_message, c.updated_at,
            u1.name AS user1_name, u1.role AS user1_role,
            u2.name AS user2_name, u2.role AS user2_role
        FROM conversations c
        JOIN users u1 ON u1.id = c.user1_id
        JOIN users u2 ON u2.id = c.user2_id
        WHERE c.user1_id=$1 OR c.user2_id=$1
        ORDER BY c.updated_at DESC`

	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	conversations := make([]models.Conversation, 0, len(rows))
	for _, rw := range rows {
		conv := models.Conversation{
			Participants: []models.User{
				{ID: rw.User1ID, Name: rw.User1Name, Role: rw.User1Role},
				{ID: rw.User2ID, Name: rw.User2Name, Role: rw.User2Role},
			},
			LastMessage: rw.LastMessage,
		}
		if rw.UpdatedAt.Valid {
			conv.UpdatedAt = rw.UpdatedAt.Time
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

func orderPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}
