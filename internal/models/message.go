package models

import "time"

// Message represents a chat message between two users.
type Message struct {
	ID       string    `db:"id" json:"id"`
	Sender   string    `db:"sender_id" json:"sender"`
	Receiver string    `db:"receiver_id" json:"receiver"`
	Text     string    `db:"text" json:"text"`
	SentAt   time.Time `db:"sent_at" json:"sentAt"`
}

// DeliveryStatus is the lifecycle stage of a sent message as acknowledged by
// the server. It only ever advances forward.
type DeliveryStatus int

const (
	DeliverySent DeliveryStatus = iota
	DeliveryDelivered
	DeliveryRead
)

func (s DeliveryStatus) String() string {
	switch s {
	case DeliverySent:
		return "sent"
	case DeliveryDelivered:
		return "delivered"
	case DeliveryRead:
		return "read"
	default:
		return "unknown"
	}
}
