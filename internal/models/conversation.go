package models

import "time"

// Conversation is the API-friendly summary of a one-to-one conversation:
// both participants, the most recent message text and when it arrived.
type Conversation struct {
	Participants []User    `json:"participants"`
	LastMessage  string    `json:"lastMessage"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Peer returns the participant that is not the given user. A conversation is
// always between exactly two users; self-conversations do not exist.
func (c Conversation) Peer(userID string) (User, bool) {
	for _, p := range c.Participants {
		if p.ID != userID {
			return p, true
		}
	}
	return User{}, false
}
