// Package transport owns the client side of the chat socket: a single live
// connection, the auth handshake, replay of the persisted outbox, and
// reconnection. A Manager is constructed once at composition root and passed
// to whoever needs it; there is no package-level connection handle.
package transport

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-core/internal/observability"
	"chat-core/internal/outbox"
	"chat-core/internal/protocol"
)

// State is the connection lifecycle stage.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthPending
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthPending:
		return "auth_pending"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	initialReconnectDelay   = 500 * time.Millisecond
	defaultMaxBackoff       = 30 * time.Second
)

// Options tunes a Manager. The zero value gives sane defaults with
// reconnection disabled.
type Options struct {
	HandshakeTimeout time.Duration
	Reconnect        bool
	MaxBackoff       time.Duration
	Dialer           *websocket.Dialer
}

// Manager maintains at most one physical connection at a time.
type Manager struct {
	url  string
	box  outbox.Store
	opts Options

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
	token string
	delay time.Duration

	// writeMu serializes writes; gorilla connections allow one writer.
	writeMu sync.Mutex
	closed  bool

	// boxMu serializes outbox access between enqueue and drain, so a message
	// queued while auth completes is never erased unsent or stranded.
	boxMu sync.Mutex

	events chan protocol.Event
}

// NewManager builds a Manager for the given socket URL and outbox store.
func NewManager(url string, box outbox.Store, opts Options) *Manager {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Manager{
		url:    url,
		box:    box,
		opts:   opts,
		events: make(chan protocol.Event, 256),
	}
}

// Events yields decoded inbound events in arrival order. The channel is never
// closed; consumers stop via their own context. A consumer must keep draining
// the channel: when the buffer fills, further events are shed rather than
// allowed to stall the read loop.
func (m *Manager) Events() <-chan protocol.Event {
	return m.events
}

// State returns the current lifecycle stage.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the auth handshake has completed.
func (m *Manager) Connected() bool {
	return m.State() == StateAuthenticated
}

// Connect opens the connection and starts the handshake in the background.
// It is a no-op when a connection is already open or pending, when the
// Manager is closed, or when the token is empty.
func (m *Manager) Connect(token string) {
	if token == "" {
		return
	}

	m.mu.Lock()
	if m.closed || m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.token = token
	m.mu.Unlock()

	go m.dial(token)
}

func (m *Manager) dial(token string) {
	conn, _, err := m.opts.Dialer.Dial(m.url, nil)
	if err != nil {
		log.Printf("chat socket dial failed: %v", err)
		observability.IncSocketConnect("dial_error")
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		m.scheduleReconnect()
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.state = StateAuthPending
	m.mu.Unlock()

	if err := m.write(conn, protocol.Auth{Token: token}); err != nil {
		log.Printf("chat socket auth write failed: %v", err)
		observability.IncSocketConnect("auth_write_error")
		m.teardown(conn)
		m.scheduleReconnect()
		return
	}

	// The handshake deadline doubles as the auth timeout: a server that never
	// acknowledges auth fails the next read and the connection is torn down.
	_ = conn.SetReadDeadline(time.Now().Add(m.opts.HandshakeTimeout))
	m.readLoop(conn)
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("chat socket read error: %v", err)
			}
			break
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			// Malformed frames are dropped; the connection stays open.
			log.Printf("chat socket dropped frame: %v", err)
			observability.IncDroppedFrame()
			continue
		}

		if _, ok := ev.(protocol.AuthSuccess); ok {
			_ = conn.SetReadDeadline(time.Time{})
			m.mu.Lock()
			m.state = StateAuthenticated
			m.delay = 0
			m.mu.Unlock()
			observability.IncSocketConnect("authenticated")
			m.drain(conn)
		}

		select {
		case m.events <- ev:
		default:
			// The read loop must stay live to notice closes and drive
			// reconnection, so an unconsumed backlog is shed, not waited on.
			log.Printf("chat event buffer full, dropping %T", ev)
			observability.IncDroppedEvent()
		}
	}

	m.teardown(conn)
	m.scheduleReconnect()
}

// drain replays the persisted outbox in enqueue order, then clears it. Runs
// only after auth success so queued messages are never sent unauthenticated.
func (m *Manager) drain(conn *websocket.Conn) {
	m.boxMu.Lock()
	defer m.boxMu.Unlock()

	queue, err := m.box.Load()
	if err != nil {
		log.Printf("outbox load failed, skipping drain: %v", err)
		return
	}
	for i, p := range queue {
		if err := m.write(conn, protocol.SendMessage{ReceiverID: p.ReceiverID, Text: p.Text}); err != nil {
			log.Printf("outbox drain interrupted: %v", err)
			// Keep the unsent tail for the next connection.
			if saveErr := m.box.Save(queue[i:]); saveErr != nil {
				log.Printf("outbox save failed: %v", saveErr)
			}
			return
		}
	}
	if err := m.box.Clear(); err != nil {
		log.Printf("outbox clear failed: %v", err)
	}
	observability.SetOutboxDepth(0)
}

// Send delivers a chat message immediately when authenticated, otherwise
// appends it to the persisted outbox. It never blocks on the network state.
func (m *Manager) Send(receiverID, text string) {
	m.mu.Lock()
	conn, authed := m.conn, m.state == StateAuthenticated
	m.mu.Unlock()

	if authed {
		err := m.write(conn, protocol.SendMessage{ReceiverID: receiverID, Text: text})
		if err == nil {
			return
		}
		log.Printf("chat send failed, queueing: %v", err)
	}
	m.enqueue(outbox.Pending{ReceiverID: receiverID, Text: text})
}

// SendRaw sends an ephemeral event (typing indicators, read receipts).
// Dropped silently when not authenticated; ephemeral events are never queued.
func (m *Manager) SendRaw(ev protocol.Event) {
	m.mu.Lock()
	conn, authed := m.conn, m.state == StateAuthenticated
	m.mu.Unlock()

	if !authed {
		return
	}
	if err := m.write(conn, ev); err != nil {
		log.Printf("chat raw send dropped: %v", err)
	}
}

// Close tears down the connection and stops reconnection attempts.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (m *Manager) write(conn *websocket.Conn, ev protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (m *Manager) enqueue(p outbox.Pending) {
	m.boxMu.Lock()
	defer m.boxMu.Unlock()

	// Auth may have completed after the caller's state check. A drain running
	// in that window has already consumed the queue, so the message goes
	// straight to the wire instead.
	m.mu.Lock()
	conn, authed := m.conn, m.state == StateAuthenticated
	m.mu.Unlock()
	if authed {
		if err := m.write(conn, protocol.SendMessage{ReceiverID: p.ReceiverID, Text: p.Text}); err == nil {
			return
		}
	}

	queue, err := m.box.Load()
	if err != nil {
		log.Printf("outbox load failed: %v", err)
		queue = nil
	}
	queue = append(queue, p)
	if err := m.box.Save(queue); err != nil {
		log.Printf("outbox save failed, message lost: %v", err)
		return
	}
	observability.IncQueuedSend()
	observability.SetOutboxDepth(len(queue))
}

func (m *Manager) teardown(conn *websocket.Conn) {
	conn.Close()
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
		m.state = StateDisconnected
	}
	m.mu.Unlock()
}

func (m *Manager) scheduleReconnect() {
	if !m.opts.Reconnect {
		return
	}

	m.mu.Lock()
	if m.closed || m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	if m.delay == 0 {
		m.delay = initialReconnectDelay
	} else {
		m.delay *= 2
		if m.delay > m.opts.MaxBackoff {
			m.delay = m.opts.MaxBackoff
		}
	}
	delay, token := m.delay, m.token
	m.mu.Unlock()

	observability.IncReconnectScheduled()
	go func() {
		time.Sleep(delay)
		m.Connect(token)
	}()
}
