// Package protocol defines the socket wire protocol shared by the chat client
// and the reference server: a closed set of typed events serialized as flat
// JSON frames with a "type" discriminator.
package protocol

import "time"

// Frame type tags.
const (
	TypeAuth             = "AUTH"
	TypeAuthSuccess      = "AUTH_SUCCESS"
	TypeSendMessage      = "SEND_MESSAGE"
	TypeNewMessage       = "NEW_MESSAGE"
	TypeUserOnline       = "USER_ONLINE"
	TypeUserOffline      = "USER_OFFLINE"
	TypeTypingStart      = "TYPING_START"
	TypeTypingStop       = "TYPING_STOP"
	TypeMessageDelivered = "MESSAGE_DELIVERED"
	TypeMessageRead      = "MESSAGE_READ"
)

// Event is the sealed union of all protocol events. Adding a new event kind
// means adding a type here and a case to Encode and Decode.
type Event interface {
	frameType() string
}

// Auth is the client's handshake frame, sent first on every connection.
type Auth struct {
	Token string
}

// AuthSuccess acknowledges a valid handshake. The connection is usable for
// chat traffic only after it arrives.
type AuthSuccess struct{}

// SendMessage asks the server to deliver text to a receiver.
type SendMessage struct {
	ReceiverID string
	Text       string
}

// NewMessage carries a stored chat message to both participants.
type NewMessage struct {
	MessageID string
	Sender    string
	Receiver  string
	Text      string
	SentAt    time.Time
}

// UserOnline reports a user's connection coming up.
type UserOnline struct {
	UserID string
}

// UserOffline reports a user's connection going away.
type UserOffline struct {
	UserID string
}

// TypingStart is a transient typing indicator. Client frames name the peer to
// notify; server frames name the user who is typing.
type TypingStart struct {
	UserID string
}

// TypingStop clears a typing indicator.
type TypingStop struct {
	UserID string
}

// MessageDelivered advances a message's delivery status.
type MessageDelivered struct {
	MessageID string
}

// MessageRead is both the receiver's read receipt and the sender's
// notification that the message was read.
type MessageRead struct {
	MessageID string
}

func (Auth) frameType() string             { return TypeAuth }
func (AuthSuccess) frameType() string      { return TypeAuthSuccess }
func (SendMessage) frameType() string      { return TypeSendMessage }
func (NewMessage) frameType() string       { return TypeNewMessage }
func (UserOnline) frameType() string       { return TypeUserOnline }
func (UserOffline) frameType() string      { return TypeUserOffline }
func (TypingStart) frameType() string      { return TypeTypingStart }
func (TypingStop) frameType() string       { return TypeTypingStop }
func (MessageDelivered) frameType() string { return TypeMessageDelivered }
func (MessageRead) frameType() string      { return TypeMessageRead }
