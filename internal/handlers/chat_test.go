package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-core/internal/mocks"
	"chat-core/internal/models"
)

func setupChatRouter(users *mocks.UserRepositoryMock, messages *mocks.MessageRepositoryMock, unread *mocks.UnreadRepositoryMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userID", "u1")
		c.Next()
	})

	h := NewChatHandler(users, messages, unread)
	router.GET("/chat/users", h.ListUsers)
	router.GET("/chat/unread", h.ListUnread)
	router.GET("/chat/conversations", h.ListConversations)
	return router
}

func doGet(router *gin.Engine, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(rec, req)
	return rec
}

func TestListUsers(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("ListUsers", mock.Anything).Return([]models.User{
		{ID: "u2", Name: "Bea", Role: "member"},
	}, nil)
	router := setupChatRouter(users, new(mocks.MessageRepositoryMock), new(mocks.UnreadRepositoryMock))

	rec := doGet(router, "/chat/users")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success bool          `json:"success"`
		Data    []models.User `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Bea", body.Data[0].Name)
	users.AssertExpectations(t)
}

func TestListUsersRepoError(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("ListUsers", mock.Anything).Return(nil, errors.New("db down"))
	router := setupChatRouter(users, new(mocks.MessageRepositoryMock), new(mocks.UnreadRepositoryMock))

	rec := doGet(router, "/chat/users")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestListUsersEmptyIsArrayNotNull(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("ListUsers", mock.Anything).Return(nil, nil)
	router := setupChatRouter(users, new(mocks.MessageRepositoryMock), new(mocks.UnreadRepositoryMock))

	rec := doGet(router, "/chat/users")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestListUnread(t *testing.T) {
	unread := new(mocks.UnreadRepositoryMock)
	unread.On("ListUnread", mock.Anything, "u1").Return([]models.UnreadCount{
		{PeerID: "u2", Count: 3},
	}, nil)
	router := setupChatRouter(new(mocks.UserRepositoryMock), new(mocks.MessageRepositoryMock), unread)

	rec := doGet(router, "/chat/unread")

	require.Equal(t, http.StatusOK, rec.Code)
	// Wire shape keeps the peer id under "_id".
	assert.Contains(t, rec.Body.String(), `"_id":"u2"`)
	assert.Contains(t, rec.Body.String(), `"count":3`)
	unread.AssertExpectations(t)
}

func TestListUnreadRepoError(t *testing.T) {
	unread := new(mocks.UnreadRepositoryMock)
	unread.On("ListUnread", mock.Anything, "u1").Return(nil, errors.New("db down"))
	router := setupChatRouter(new(mocks.UserRepositoryMock), new(mocks.MessageRepositoryMock), unread)

	rec := doGet(router, "/chat/unread")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestListConversations(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	messages.On("ListConversations", mock.Anything, "u1").Return([]models.Conversation{
		{
			Participants: []models.User{{ID: "u1", Name: "Ada"}, {ID: "u2", Name: "Bea"}},
			LastMessage:  "see you there",
			UpdatedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}, nil)
	router := setupChatRouter(new(mocks.UserRepositoryMock), messages, new(mocks.UnreadRepositoryMock))

	rec := doGet(router, "/chat/conversations")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success bool                  `json:"success"`
		Data    []models.Conversation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "see you there", body.Data[0].LastMessage)
	peer, ok := body.Data[0].Peer("u1")
	require.True(t, ok)
	assert.Equal(t, "u2", peer.ID)
	messages.AssertExpectations(t)
}

func TestListConversationsRepoError(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	messages.On("ListConversations", mock.Anything, "u1").Return(nil, errors.New("db down"))
	router := setupChatRouter(new(mocks.UserRepositoryMock), messages, new(mocks.UnreadRepositoryMock))

	rec := doGet(router, "/chat/conversations")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}
