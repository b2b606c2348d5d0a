package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

// ChatHandler serves the preload endpoints the chat client fetches at
// initialization.
type ChatHandler struct {
	users    repositories.UserRepository
	messages repositories.MessageRepository
	unread   repositories.UnreadRepository
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(users repositories.UserRepository, messages repositories.MessageRepository, unread repositories.UnreadRepository) *ChatHandler {
	return &ChatHandler{users: users, messages: messages, unread: unread}
}

// ListUsers returns the chat user directory.
func (h *ChatHandler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load users"})
		return
	}
	if users == nil {
		users = []models.User{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": users})
}

// ListUnread returns the caller's per-peer unread counts.
func (h *ChatHandler) ListUnread(c *gin.Context) {
	userID := c.GetString("userID")

	counts, err := h.unread.ListUnread(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load unread counts"})
		return
	}
	if counts == nil {
		counts = []models.UnreadCount{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": counts})
}

// ListConversations returns the caller's conversation summaries.
func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID := c.GetString("userID")

	conversations, err := h.messages.ListConversations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load conversations"})
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": conversations})
}
