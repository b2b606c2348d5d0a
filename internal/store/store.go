// Package store is the single source of truth for chat UI state. It seeds
// itself from the REST preload, then applies socket events in arrival order.
package store

import (
	"context"
	"log"
	"sync"
	"time"

	"chat-core/internal/models"
	"chat-core/internal/protocol"
)

// Transport is the slice of the socket manager the store depends on.
type Transport interface {
	Send(receiverID, text string)
	SendRaw(ev protocol.Event)
	Events() <-chan protocol.Event
	Connected() bool
}

// Preloader is the slice of the REST client the store depends on.
type Preloader interface {
	Users(ctx context.Context) ([]models.User, error)
	Unread(ctx context.Context) ([]models.UnreadCount, error)
	Conversations(ctx context.Context) ([]models.Conversation, error)
}

// LastMessage is the most recent message exchanged with a peer.
type LastMessage struct {
	Text string
	Time time.Time
}

// Store aggregates users, per-peer last messages, unread flags, presence,
// typing and delivery state.
type Store struct {
	userID    string
	rest      Preloader
	transport Transport

	mu           sync.RWMutex
	users        []models.User
	messages     []models.Message
	lastMessages map[string]LastMessage
	unread       map[string]bool
	online       map[string]bool
	typing       map[string]bool
	delivery     map[string]models.DeliveryStatus
	latestFrom   map[string]string
	activePeer   string
}

// New builds a Store for the given current user.
func New(userID string, rest Preloader, transport Transport) *Store {
	return &Store{
		userID:       userID,
		rest:         rest,
		transport:    transport,
		lastMessages: make(map[string]LastMessage),
		unread:       make(map[string]bool),
		online:       make(map[string]bool),
		typing:       make(map[string]bool),
		delivery:     make(map[string]models.DeliveryStatus),
		latestFrom:   make(map[string]string),
	}
}

// Preload seeds the store from the REST endpoints. Each fetch failure is
// logged and leaves its map empty; the chat renders (possibly empty) either
// way.
func (s *Store) Preload(ctx context.Context) {
	users, err := s.rest.Users(ctx)
	if err != nil {
		log.Printf("preload users failed: %v", err)
	}

	counts, err := s.rest.Unread(ctx)
	if err != nil {
		log.Printf("preload unread failed: %v", err)
	}

	convs, err := s.rest.Conversations(ctx)
	if err != nil {
		log.Printf("preload conversations failed: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = users
	for _, c := range counts {
		// Unread is a presence flag, not an exact count. The active
		// conversation is read by definition, whenever the seed arrives.
		if c.Count > 0 && c.PeerID != s.activePeer {
			s.unread[c.PeerID] = true
		}
	}
	for _, conv := range convs {
		peer, ok := conv.Peer(s.userID)
		if !ok {
			continue
		}
		s.lastMessages[peer.ID] = LastMessage{Text: conv.LastMessage, Time: conv.UpdatedAt}
	}
}

// Run applies transport events until the context is cancelled. Events are
// applied strictly in arrival order.
func (s *Store) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.transport.Events():
			s.Apply(ev)
		}
	}
}

// Apply folds one socket event into the state.
func (s *Store) Apply(ev protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case protocol.AuthSuccess:
		// Connected state is observed via the transport.
	case protocol.NewMessage:
		s.applyNewMessage(e)
	case protocol.UserOnline:
		s.online[e.UserID] = true
	case protocol.UserOffline:
		s.online[e.UserID] = false
	case protocol.TypingStart:
		s.typing[e.UserID] = true
	case protocol.TypingStop:
		delete(s.typing, e.UserID)
	case protocol.MessageDelivered:
		s.advanceDelivery(e.MessageID, models.DeliveryDelivered)
	case protocol.MessageRead:
		s.advanceDelivery(e.MessageID, models.DeliveryRead)
	case protocol.Auth, protocol.SendMessage:
		// Client-to-server frames; a server echoing them back is a protocol
		// violation and they carry no state.
		log.Printf("ignoring outbound-only frame %T", e)
	}
}

func (s *Store) applyNewMessage(e protocol.NewMessage) {
	msg := models.Message{ID: e.MessageID, Sender: e.Sender, Receiver: e.Receiver, Text: e.Text, SentAt: e.SentAt}
	s.messages = append(s.messages, msg)

	peer := e.Sender
	if peer == s.userID {
		peer = e.Receiver
	}
	s.lastMessages[peer] = LastMessage{Text: e.Text, Time: e.SentAt}

	if e.Sender == s.userID {
		// Own message echoed back by the server; starts its delivery lifecycle.
		s.advanceDelivery(e.MessageID, models.DeliverySent)
		return
	}

	s.latestFrom[e.Sender] = e.MessageID
	// A message supersedes any typing indicator from its sender.
	delete(s.typing, e.Sender)

	if e.Receiver == s.userID && e.Sender != s.activePeer {
		s.unread[e.Sender] = true
	}
}

// advanceDelivery moves a message's delivery status forward, never backward.
func (s *Store) advanceDelivery(messageID string, status models.DeliveryStatus) {
	if current, ok := s.delivery[messageID]; ok && current >= status {
		return
	}
	s.delivery[messageID] = status
}

// SelectActivePeer opens the conversation with a peer. This is the only place
// a peer's unread marker is cleared. A read receipt for the peer's latest
// message is sent so the backend can clear its side too.
func (s *Store) SelectActivePeer(peerID string) {
	s.mu.Lock()
	s.activePeer = peerID
	delete(s.unread, peerID)
	latest := s.latestFrom[peerID]
	s.mu.Unlock()

	if latest != "" {
		s.transport.SendRaw(protocol.MessageRead{MessageID: latest})
	}
}

// SendText hands a message to the transport. The message appears in the log
// only once the server echoes it back as NEW_MESSAGE.
func (s *Store) SendText(receiverID, text string) {
	s.transport.Send(receiverID, text)
}

// SetTyping notifies the peer that the current user started or stopped typing.
// Ephemeral; dropped by the transport when not connected.
func (s *Store) SetTyping(peerID string, active bool) {
	if active {
		s.transport.SendRaw(protocol.TypingStart{UserID: peerID})
		return
	}
	s.transport.SendRaw(protocol.TypingStop{UserID: peerID})
}

// Connected reports whether the send affordance should be enabled.
func (s *Store) Connected() bool {
	return s.transport.Connected()
}

// ActivePeer returns the currently selected peer id, empty when none.
func (s *Store) ActivePeer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activePeer
}

// Users returns a copy of the user directory.
func (s *Store) Users() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.User, len(s.users))
	copy(out, s.users)
	return out
}

// Messages returns a copy of the in-memory message log.
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ConversationWith returns the logged messages exchanged with one peer.
func (s *Store) ConversationWith(peerID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.Sender == peerID || m.Receiver == peerID {
			out = append(out, m)
		}
	}
	return out
}

// LastMessages returns a copy of the per-peer last-message map.
func (s *Store) LastMessages() map[string]LastMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]LastMessage, len(s.lastMessages))
	for k, v := range s.lastMessages {
		out[k] = v
	}
	return out
}

// UnreadPeers returns a copy of the unread marker map.
func (s *Store) UnreadPeers() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.unread))
	for k, v := range s.unread {
		out[k] = v
	}
	return out
}

// IsUnread reports whether the peer has unread messages.
func (s *Store) IsUnread(peerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread[peerID]
}

// IsOnline reports a peer's presence. Unknown peers are offline.
func (s *Store) IsOnline(peerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online[peerID]
}

// IsTyping reports a peer's transient typing flag.
func (s *Store) IsTyping(peerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.typing[peerID]
}

// Delivery returns a message's delivery status.
func (s *Store) Delivery(messageID string) (models.DeliveryStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.delivery[messageID]
	return status, ok
}
