// Package rest consumes the chat backend's preload endpoints. Responses use
// the backend's {success, data} envelope.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chat-core/internal/models"
)

// Client is a bearer-authenticated HTTP client for the chat API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a Client for the given API base URL and bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Users fetches the chat user directory.
func (c *Client) Users(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.get(ctx, "/chat/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Unread fetches per-peer unread counts for the current user.
func (c *Client) Unread(ctx context.Context) ([]models.UnreadCount, error) {
	var counts []models.UnreadCount
	if err := c.get(ctx, "/chat/unread", &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

// Conversations fetches the current user's conversation summaries.
func (c *Client) Conversations(ctx context.Context) ([]models.Conversation, error) {
	var convs []models.Conversation
	if err := c.get(ctx, "/chat/conversations", &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	if !envelope.Success {
		return fmt.Errorf("GET %s: backend reported failure", path)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("GET %s: decode data: %w", path, err)
	}
	return nil
}
