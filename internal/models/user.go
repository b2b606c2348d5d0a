package models

// User is an identity known to chat, sourced from the external user directory.
// Immutable once fetched for the session.
type User struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Role string `db:"role" json:"role"`
}

// UnreadCount is one row of the unread summary. The peer id is serialized as
// "_id" to match the directory backend's document ids.
type UnreadCount struct {
	PeerID string `db:"peer_id" json:"_id"`
	Count  int    `db:"count" json:"count"`
}
