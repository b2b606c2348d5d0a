package transport

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-core/internal/outbox"
	"chat-core/internal/protocol"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeServer speaks the server side of the socket protocol for tests.
type fakeServer struct {
	srv      *httptest.Server
	frames   chan protocol.Event
	upgrades atomic.Int32
	ackAuth  bool
}

func newFakeServer(t *testing.T, ackAuth bool) *fakeServer {
	t.Helper()
	fs := &fakeServer{frames: make(chan protocol.Event, 32), ackAuth: ackAuth}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.upgrades.Add(1)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ev, err := protocol.Decode(data)
			if err != nil {
				continue
			}
			if _, ok := ev.(protocol.Auth); ok && fs.ackAuth {
				ack, _ := protocol.Encode(protocol.AuthSuccess{})
				if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
					return
				}
			}
			fs.frames <- ev
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) next(t *testing.T) protocol.Event {
	t.Helper()
	select {
	case ev := <-fs.frames:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func waitAuthenticated(t *testing.T, m *Manager) {
	t.Helper()
	require.Eventually(t, m.Connected, 2*time.Second, 10*time.Millisecond)
}

func TestConnectEmptyTokenIsNoop(t *testing.T) {
	m := NewManager("ws://unreachable.invalid", outbox.NewMemoryStore(), Options{})
	m.Connect("")
	assert.Equal(t, StateDisconnected, m.State())
}

func TestSendWhileDisconnectedQueuesInOrder(t *testing.T) {
	box := outbox.NewMemoryStore()
	m := NewManager("ws://unreachable.invalid", box, Options{})

	m.Send("u2", "first")
	m.Send("u3", "second")
	m.Send("u2", "third")

	queue, err := box.Load()
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, outbox.Pending{ReceiverID: "u2", Text: "first"}, queue[0])
	assert.Equal(t, outbox.Pending{ReceiverID: "u3", Text: "second"}, queue[1])
	assert.Equal(t, outbox.Pending{ReceiverID: "u2", Text: "third"}, queue[2])
}

func TestSendRawWhileDisconnectedIsDropped(t *testing.T) {
	box := outbox.NewMemoryStore()
	m := NewManager("ws://unreachable.invalid", box, Options{})

	m.SendRaw(protocol.TypingStart{UserID: "u2"})

	queue, err := box.Load()
	require.NoError(t, err)
	assert.Empty(t, queue, "ephemeral events are never queued")
}

func TestConnectAuthenticatesThenDrainsQueue(t *testing.T) {
	fs := newFakeServer(t, true)
	box := outbox.NewMemoryStore()
	require.NoError(t, box.Save([]outbox.Pending{
		{ReceiverID: "u2", Text: "queued-1"},
		{ReceiverID: "u3", Text: "queued-2"},
	}))

	m := NewManager(fs.url(), box, Options{})
	defer m.Close()
	m.Connect("tok")

	// Auth goes out before any queued chat message.
	ev := fs.next(t)
	authFrame, ok := ev.(protocol.Auth)
	require.True(t, ok, "first frame must be AUTH, got %T", ev)
	assert.Equal(t, "tok", authFrame.Token)

	assert.Equal(t, protocol.SendMessage{ReceiverID: "u2", Text: "queued-1"}, fs.next(t))
	assert.Equal(t, protocol.SendMessage{ReceiverID: "u3", Text: "queued-2"}, fs.next(t))

	waitAuthenticated(t, m)
	require.Eventually(t, func() bool {
		queue, err := box.Load()
		return err == nil && len(queue) == 0
	}, 2*time.Second, 10*time.Millisecond, "outbox must be cleared after drain")
}

func TestConnectIsSingleflight(t *testing.T) {
	fs := newFakeServer(t, true)
	m := NewManager(fs.url(), outbox.NewMemoryStore(), Options{})
	defer m.Close()

	m.Connect("tok")
	waitAuthenticated(t, m)
	m.Connect("tok")
	m.Connect("tok")

	// Give any wrongly spawned dial a chance to land.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), fs.upgrades.Load())
}

func TestSendWhileConnectedSkipsQueue(t *testing.T) {
	fs := newFakeServer(t, true)
	box := outbox.NewMemoryStore()
	m := NewManager(fs.url(), box, Options{})
	defer m.Close()

	m.Connect("tok")
	waitAuthenticated(t, m)
	fs.next(t) // AUTH

	m.Send("u2", "live")
	assert.Equal(t, protocol.SendMessage{ReceiverID: "u2", Text: "live"}, fs.next(t))

	queue, err := box.Load()
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestEnqueueAfterAuthSendsDirectly(t *testing.T) {
	fs := newFakeServer(t, true)
	box := outbox.NewMemoryStore()
	m := NewManager(fs.url(), box, Options{})
	defer m.Close()

	m.Connect("tok")
	waitAuthenticated(t, m)
	fs.next(t) // AUTH

	// A sender that observed the pre-auth state must not strand its message
	// in the box once auth has completed and the drain already ran.
	m.enqueue(outbox.Pending{ReceiverID: "u2", Text: "late"})

	assert.Equal(t, protocol.SendMessage{ReceiverID: "u2", Text: "late"}, fs.next(t))
	queue, err := box.Load()
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestConcurrentSendDuringConnectLosesNothing(t *testing.T) {
	fs := newFakeServer(t, true)
	box := outbox.NewMemoryStore()
	require.NoError(t, box.Save([]outbox.Pending{{ReceiverID: "u2", Text: "seed"}}))

	m := NewManager(fs.url(), box, Options{})
	defer m.Close()

	m.Connect("tok")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m.Send("u2", fmt.Sprintf("msg-%d", n))
		}(i)
	}
	wg.Wait()
	waitAuthenticated(t, m)

	// Every message arrives exactly once, whether it went over the wire
	// directly or rode the outbox through the drain.
	got := map[string]int{}
	deadline := time.After(3 * time.Second)
	for len(got) < 17 {
		select {
		case ev := <-fs.frames:
			if msg, ok := ev.(protocol.SendMessage); ok {
				got[msg.Text]++
			}
		case <-deadline:
			t.Fatalf("received %d of 17 messages", len(got))
		}
	}
	for text, count := range got {
		assert.Equal(t, 1, count, "message %q sent %d times", text, count)
	}

	require.Eventually(t, func() bool {
		queue, err := box.Load()
		return err == nil && len(queue) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnconsumedEventsDoNotStallReadLoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if _, _, err := conn.ReadMessage(); err != nil { // AUTH
			return
		}
		ack, _ := protocol.Encode(protocol.AuthSuccess{})
		conn.WriteMessage(websocket.TextMessage, ack)
		frame, _ := protocol.Encode(protocol.TypingStart{UserID: "u2"})
		for i := 0; i < 400; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		conn.Close()
	}))
	defer srv.Close()

	m := NewManager("ws"+strings.TrimPrefix(srv.URL, "http"), outbox.NewMemoryStore(), Options{})
	defer m.Close()
	m.Connect("tok")

	// Nobody drains Events; the read loop must still notice the close and
	// come back down instead of blocking on the full buffer.
	require.Eventually(t, func() bool {
		return m.State() == StateDisconnected
	}, 5*time.Second, 20*time.Millisecond)
}

func TestHandshakeTimeoutDisconnects(t *testing.T) {
	fs := newFakeServer(t, false) // never acks auth
	m := NewManager(fs.url(), outbox.NewMemoryStore(), Options{HandshakeTimeout: 100 * time.Millisecond})
	defer m.Close()

	m.Connect("tok")
	fs.next(t) // AUTH arrives but is never acknowledged

	require.Eventually(t, func() bool {
		return m.State() == StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, m.Connected())
}

func TestEventsDeliveredInArrivalOrder(t *testing.T) {
	frames := make(chan []byte, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if _, _, err := conn.ReadMessage(); err != nil { // AUTH
			return
		}
		ack, _ := protocol.Encode(protocol.AuthSuccess{})
		conn.WriteMessage(websocket.TextMessage, ack)
		for data := range frames {
			conn.WriteMessage(websocket.TextMessage, data)
		}
	}))
	defer srv.Close()
	defer close(frames)

	m := NewManager("ws"+strings.TrimPrefix(srv.URL, "http"), outbox.NewMemoryStore(), Options{})
	defer m.Close()
	m.Connect("tok")

	first, _ := protocol.Encode(protocol.NewMessage{MessageID: "m1", Sender: "u2", Receiver: "me", Text: "a"})
	second, _ := protocol.Encode(protocol.MessageRead{MessageID: "m1"})
	frames <- first
	frames <- second

	var got []protocol.Event
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case ev := <-m.Events():
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out, got %d events", len(got))
		}
	}

	assert.IsType(t, protocol.AuthSuccess{}, got[0])
	assert.Equal(t, "m1", got[1].(protocol.NewMessage).MessageID)
	assert.IsType(t, protocol.MessageRead{}, got[2])
}

func TestReconnectAfterServerDrop(t *testing.T) {
	fs := newFakeServer(t, true)
	m := NewManager(fs.url(), outbox.NewMemoryStore(), Options{Reconnect: true, MaxBackoff: time.Second})
	defer m.Close()

	m.Connect("tok")
	waitAuthenticated(t, m)
	fs.next(t) // AUTH

	fs.srv.CloseClientConnections()

	require.Eventually(t, m.Connected, 5*time.Second, 20*time.Millisecond, "manager should reconnect on its own")
	assert.GreaterOrEqual(t, fs.upgrades.Load(), int32(2))
}
