package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-core/internal/models"
	"chat-core/internal/protocol"
)

type fakeTransport struct {
	sent      []protocol.SendMessage
	raw       []protocol.Event
	events    chan protocol.Event
	connected bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan protocol.Event, 16)}
}

func (t *fakeTransport) Send(receiverID, text string) {
	t.sent = append(t.sent, protocol.SendMessage{ReceiverID: receiverID, Text: text})
}

func (t *fakeTransport) SendRaw(ev protocol.Event) {
	t.raw = append(t.raw, ev)
}

func (t *fakeTransport) Events() <-chan protocol.Event { return t.events }

func (t *fakeTransport) Connected() bool { return t.connected }

type fakeRest struct {
	users     []models.User
	unread    []models.UnreadCount
	convs     []models.Conversation
	usersErr  error
	unreadErr error
	convsErr  error
}

func (r *fakeRest) Users(context.Context) ([]models.User, error) {
	return r.users, r.usersErr
}

func (r *fakeRest) Unread(context.Context) ([]models.UnreadCount, error) {
	return r.unread, r.unreadErr
}

func (r *fakeRest) Conversations(context.Context) ([]models.Conversation, error) {
	return r.convs, r.convsErr
}

func TestPreloadCoarsensCountsToBoolean(t *testing.T) {
	rest := &fakeRest{unread: []models.UnreadCount{{PeerID: "u1", Count: 3}, {PeerID: "u2", Count: 0}}}
	s := New("me", rest, newFakeTransport())
	s.Preload(context.Background())

	assert.True(t, s.IsUnread("u1"))
	assert.False(t, s.IsUnread("u2"))
}

func TestPreloadNeverMarksActivePeerUnread(t *testing.T) {
	rest := &fakeRest{unread: []models.UnreadCount{{PeerID: "u1", Count: 2}, {PeerID: "u2", Count: 5}}}
	s := New("me", rest, newFakeTransport())

	// Selection before the seed arrives; u2's counter is stale by then.
	s.SelectActivePeer("u2")
	s.Preload(context.Background())

	assert.True(t, s.IsUnread("u1"))
	assert.False(t, s.IsUnread("u2"))
}

func TestPreloadKeysLastMessageByPeer(t *testing.T) {
	updated := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rest := &fakeRest{convs: []models.Conversation{{
		Participants: []models.User{{ID: "me"}, {ID: "u2", Name: "Bo"}},
		LastMessage:  "see you",
		UpdatedAt:    updated,
	}}}
	s := New("me", rest, newFakeTransport())
	s.Preload(context.Background())

	last := s.LastMessages()
	require.Contains(t, last, "u2")
	assert.Equal(t, "see you", last["u2"].Text)
	assert.Equal(t, updated, last["u2"].Time)
	assert.NotContains(t, last, "me")
}

func TestPreloadFailuresLeaveEmptyState(t *testing.T) {
	rest := &fakeRest{usersErr: assert.AnError, unreadErr: assert.AnError, convsErr: assert.AnError}
	s := New("me", rest, newFakeTransport())
	s.Preload(context.Background())

	assert.Empty(t, s.Users())
	assert.Empty(t, s.UnreadPeers())
	assert.Empty(t, s.LastMessages())
}

func TestNewMessageMarksNonActiveSenderUnread(t *testing.T) {
	s := New("me", &fakeRest{}, newFakeTransport())
	s.SelectActivePeer("u3")

	s.Apply(protocol.NewMessage{MessageID: "m1", Sender: "u2", Receiver: "me", Text: "hi"})

	assert.True(t, s.IsUnread("u2"))
	assert.False(t, s.IsUnread("u3"))
	require.Len(t, s.Messages(), 1)
}

func TestNewMessageFromActivePeerStaysRead(t *testing.T) {
	s := New("me", &fakeRest{}, newFakeTransport())
	s.SelectActivePeer("u2")

	s.Apply(protocol.NewMessage{MessageID: "m1", Sender: "u2", Receiver: "me", Text: "hi"})

	assert.False(t, s.IsUnread("u2"))
	require.Len(t, s.Messages(), 1)
}

func TestSelectActivePeerClearsUnread(t *testing.T) {
	tr := newFakeTransport()
	s := New("me", &fakeRest{}, tr)
	s.Apply(protocol.NewMessage{MessageID: "m1", Sender: "u2", Receiver: "me", Text: "hi"})
	require.True(t, s.IsUnread("u2"))

	s.SelectActivePeer("u2")

	assert.False(t, s.IsUnread("u2"))
	assert.Equal(t, "u2", s.ActivePeer())
	// Read receipt for the peer's latest message goes out through the transport.
	require.Len(t, tr.raw, 1)
	assert.Equal(t, protocol.MessageRead{MessageID: "m1"}, tr.raw[0])
}

func TestLastMessageReflectsArrivalOrder(t *testing.T) {
	s := New("me", &fakeRest{}, newFakeTransport())

	later := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	// Second arrival wins even with an older timestamp.
	s.Apply(protocol.NewMessage{MessageID: "m1", Sender: "u2", Receiver: "me", Text: "first", SentAt: later})
	s.Apply(protocol.NewMessage{MessageID: "m2", Sender: "u2", Receiver: "me", Text: "second", SentAt: earlier})

	last := s.LastMessages()
	assert.Equal(t, "second", last["u2"].Text)
}

func TestOwnEchoUpdatesLastMessageWithoutUnread(t *testing.T) {
	s := New("me", &fakeRest{}, newFakeTransport())

	s.Apply(protocol.NewMessage{MessageID: "m1", Sender: "me", Receiver: "u2", Text: "hello"})

	last := s.LastMessages()
	assert.Equal(t, "hello", last["u2"].Text)
	assert.Empty(t, s.UnreadPeers())

	status, ok := s.Delivery("m1")
	require.True(t, ok)
	assert.Equal(t, models.DeliverySent, status)
}

func TestDeliveryStatusNeverRegresses(t *testing.T) {
	s := New("me", &fakeRest{}, newFakeTransport())

	s.Apply(protocol.NewMessage{MessageID: "m1", Sender: "me", Receiver: "u2", Text: "x"})
	s.Apply(protocol.MessageRead{MessageID: "m1"})
	s.Apply(protocol.MessageDelivered{MessageID: "m1"})

	status, ok := s.Delivery("m1")
	require.True(t, ok)
	assert.Equal(t, models.DeliveryRead, status)
}

func TestPresenceAndTypingEvents(t *testing.T) {
	s := New("me", &fakeRest{}, newFakeTransport())

	s.Apply(protocol.UserOnline{UserID: "u2"})
	assert.True(t, s.IsOnline("u2"))
	assert.False(t, s.IsOnline("u9"), "unknown users are offline")

	s.Apply(protocol.TypingStart{UserID: "u2"})
	assert.True(t, s.IsTyping("u2"))

	// A new message supersedes the typing indicator.
	s.Apply(protocol.NewMessage{MessageID: "m1", Sender: "u2", Receiver: "me", Text: "hi"})
	assert.False(t, s.IsTyping("u2"))

	s.Apply(protocol.UserOffline{UserID: "u2"})
	assert.False(t, s.IsOnline("u2"))
}

func TestSendTextDelegatesWithoutOptimisticAppend(t *testing.T) {
	tr := newFakeTransport()
	s := New("me", &fakeRest{}, tr)

	s.SendText("u2", "hello")

	require.Len(t, tr.sent, 1)
	assert.Equal(t, protocol.SendMessage{ReceiverID: "u2", Text: "hello"}, tr.sent[0])
	assert.Empty(t, s.Messages(), "message appears only once echoed back")
}

func TestRunAppliesEventsInOrder(t *testing.T) {
	tr := newFakeTransport()
	s := New("me", &fakeRest{}, tr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	tr.events <- protocol.NewMessage{MessageID: "m1", Sender: "u2", Receiver: "me", Text: "a"}
	tr.events <- protocol.NewMessage{MessageID: "m2", Sender: "u2", Receiver: "me", Text: "b"}

	require.Eventually(t, func() bool {
		return len(s.Messages()) == 2
	}, time.Second, 10*time.Millisecond)

	msgs := s.Messages()
	assert.Equal(t, "a", msgs[0].Text)
	assert.Equal(t, "b", msgs[1].Text)

	cancel()
	<-done
}
