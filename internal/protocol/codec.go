package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownType marks a frame whose type tag is not part of the protocol.
// Receivers drop such frames and keep the connection open.
var ErrUnknownType = errors.New("unknown frame type")

// frame is the flat wire representation of every event.
type frame struct {
	Type       string    `json:"type"`
	Token      string    `json:"token,omitempty"`
	MessageID  string    `json:"messageId,omitempty"`
	Sender     string    `json:"sender,omitempty"`
	Receiver   string    `json:"receiver,omitempty"`
	ReceiverID string    `json:"receiverId,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	Text       string    `json:"text,omitempty"`
	SentAt     time.Time `json:"sentAt,omitempty"`
}

// Encode serializes an event to its JSON frame.
func Encode(ev Event) ([]byte, error) {
	f := frame{Type: ev.frameType()}
	switch e := ev.(type) {
	case Auth:
		f.Token = e.Token
	case AuthSuccess:
	case SendMessage:
		f.ReceiverID = e.ReceiverID
		f.Text = e.Text
	case NewMessage:
		f.MessageID = e.MessageID
		f.Sender = e.Sender
		f.Receiver = e.Receiver
		f.Text = e.Text
		f.SentAt = e.SentAt
	case UserOnline:
		f.UserID = e.UserID
	case UserOffline:
		f.UserID = e.UserID
	case TypingStart:
		f.UserID = e.UserID
	case TypingStop:
		f.UserID = e.UserID
	case MessageDelivered:
		f.MessageID = e.MessageID
	case MessageRead:
		f.MessageID = e.MessageID
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, ev)
	}
	return json.Marshal(f)
}

// Decode parses a JSON frame into its typed event. Malformed JSON and unknown
// type tags are errors; the caller decides whether the connection survives.
func Decode(data []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	switch f.Type {
	case TypeAuth:
		return Auth{Token: f.Token}, nil
	case TypeAuthSuccess:
		return AuthSuccess{}, nil
	case TypeSendMessage:
		return SendMessage{ReceiverID: f.ReceiverID, Text: f.Text}, nil
	case TypeNewMessage:
		return NewMessage{MessageID: f.MessageID, Sender: f.Sender, Receiver: f.Receiver, Text: f.Text, SentAt: f.SentAt}, nil
	case TypeUserOnline:
		return UserOnline{UserID: f.UserID}, nil
	case TypeUserOffline:
		return UserOffline{UserID: f.UserID}, nil
	case TypeTypingStart:
		return TypingStart{UserID: f.UserID}, nil
	case TypeTypingStop:
		return TypingStop{UserID: f.UserID}, nil
	case TypeMessageDelivered:
		return MessageDelivered{MessageID: f.MessageID}, nil
	case TypeMessageRead:
		return MessageRead{MessageID: f.MessageID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
}
