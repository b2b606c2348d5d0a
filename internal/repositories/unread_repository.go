package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"chat-core/internal/models"
)

// UnreadRepository tracks per-peer unread counts on the server side. The
// client coarsens these to a boolean; the exact count is kept here so other
// surfaces (badges, digests) can still use it.
type UnreadRepository interface {
	ListUnread(ctx context.Context, userID string) ([]models.UnreadCount, error)
	Increment(ctx context.Context, userID, peerID string) error
	Clear(ctx context.Context, userID, peerID string) error
}

// UnreadRepo is a sqlx implementation of UnreadRepository.
type UnreadRepo struct {
	db *sqlx.DB
}

// NewUnreadRepo constructs an UnreadRepo.
func NewUnreadRepo(db *sqlx.DB) *UnreadRepo {
	return &UnreadRepo{db: db}
}

// ListUnread returns peers with at least one unread message for the user.
func (r *UnreadRepo) ListUnread(ctx context.Context, userID string) ([]models.UnreadCount, error) {
	var counts []models.UnreadCount
	err := r.db.SelectContext(ctx, &counts,
		`SELECT peer_id, count FROM unread WHERE user_id=$1 AND count > 0`, userID)
	return counts, err
}

// Increment bumps the unread count of messages from peer to user.
func (r *UnreadRepo) Increment(ctx context.Context, userID, peerID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO unread (user_id, peer_id, count) VALUES ($1, $2, 1)
         ON CONFLICT (user_id, peer_id) DO UPDATE SET count = unread.count + 1`,
		userID, peerID)
	return err
}

// Clear zeroes the unread count after the user read the peer's messages.
func (r *UnreadRepo) Clear(ctx context.Context, userID, peerID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE unread SET count = 0 WHERE user_id=$1 AND peer_id=$2`, userID, peerID)
	return err
}
