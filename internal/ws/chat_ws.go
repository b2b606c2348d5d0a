package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-core/internal/auth"
	"chat-core/internal/observability"
	"chat-core/internal/protocol"
	"chat-core/internal/repositories"
	"chat-core/internal/telemetry"
)

// ChatSocketHandler upgrades connections and runs the in-band auth handshake:
// the first frame must be AUTH with a valid token, answered by AUTH_SUCCESS.
type ChatSocketHandler struct {
	hub          *Hub
	messages     repositories.MessageRepository
	unread       repositories.UnreadRepository
	tokens       *auth.JWT
	authDeadline time.Duration
}

// NewChatSocketHandler constructs a ChatSocketHandler.
func NewChatSocketHandler(hub *Hub, messages repositories.MessageRepository, unread repositories.UnreadRepository, tokens *auth.JWT, authDeadline time.Duration) *ChatSocketHandler {
	return &ChatSocketHandler{hub: hub, messages: messages, unread: unread, tokens: tokens, authDeadline: authDeadline}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, authenticates it and pumps client frames.
func (h *ChatSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-core/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	userID, ok := h.handshake(conn)
	if !ok {
		conn.Close()
		return
	}

	traceID := telemetry.TraceIDFromContext(ctx)
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.Register(userID, conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishLifecycle(ctx, "ws_connect", info, "")

	go h.readLoop(context.Background(), conn, userID, info)
}

// handshake enforces AUTH-first within the deadline. Anything else closes the
// connection before it touches the hub.
func (h *ChatSocketHandler) handshake(conn *websocket.Conn) (string, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(h.authDeadline))

	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}
	ev, err := protocol.Decode(data)
	if err != nil {
		return "", false
	}
	authFrame, ok := ev.(protocol.Auth)
	if !ok {
		return "", false
	}

	userID, err := h.tokens.ValidateToken(authFrame.Token)
	if err != nil {
		return "", false
	}

	_ = conn.SetReadDeadline(time.Time{})
	data, err = protocol.Encode(protocol.AuthSuccess{})
	if err != nil {
		return "", false
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return "", false
	}
	return userID, true
}

func (h *ChatSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, userID string, info ConnInfo) {
	var closeReason string
	defer func() {
		h.hub.Unregister(userID, conn)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishLifecycle(ctx, "ws_disconnect", info, closeReason)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishLifecycle(ctx, "ws_error", info, closeReason)
			}
			return
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			// Malformed frames are dropped; the connection survives.
			observability.IncWSEvent("ws_bad_frame")
			continue
		}
		h.dispatch(ctx, userID, ev)
	}
}

func (h *ChatSocketHandler) dispatch(ctx context.Context, senderID string, ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.SendMessage:
		h.handleSend(ctx, senderID, e)
	case protocol.TypingStart:
		// The client names the peer to notify; the relayed frame names the
		// user who is typing.
		h.hub.SendTo(e.UserID, protocol.TypingStart{UserID: senderID})
	case protocol.TypingStop:
		h.hub.SendTo(e.UserID, protocol.TypingStop{UserID: senderID})
	case protocol.MessageRead:
		h.handleRead(ctx, senderID, e)
	default:
		observability.IncWSEvent("ws_unexpected_frame")
	}
}

func (h *ChatSocketHandler) handleSend(ctx context.Context, senderID string, e protocol.SendMessage) {
	if e.ReceiverID == "" || e.Text == "" || e.ReceiverID == senderID {
		return
	}

	msg, err := h.messages.CreateMessage(ctx, senderID, e.ReceiverID, e.Text)
	if err != nil {
		observability.IncWSEvent("ws_store_error")
		return
	}

	out := protocol.NewMessage{
		MessageID: msg.ID,
		Sender:    msg.Sender,
		Receiver:  msg.Receiver,
		Text:      msg.Text,
		SentAt:    msg.SentAt,
	}

	// Echo to the sender; their client renders the message from this frame.
	h.hub.SendTo(senderID, out)

	if err := h.unread.Increment(ctx, msg.Receiver, msg.Sender); err != nil {
		observability.IncWSEvent("ws_store_error")
	}

	if h.hub.SendTo(msg.Receiver, out) {
		h.hub.SendTo(senderID, protocol.MessageDelivered{MessageID: msg.ID})
	}
}

func (h *ChatSocketHandler) handleRead(ctx context.Context, readerID string, e protocol.MessageRead) {
	msg, err := h.messages.GetMessage(ctx, e.MessageID)
	if err != nil || msg.Receiver != readerID {
		return
	}

	if err := h.unread.Clear(ctx, readerID, msg.Sender); err != nil {
		observability.IncWSEvent("ws_store_error")
	}
	h.hub.SendTo(msg.Sender, protocol.MessageRead{MessageID: msg.ID})
}

func (h *ChatSocketHandler) publishLifecycle(ctx context.Context, event string, info ConnInfo, reason string) {
	_ = observability.PublishEvent(ctx, "ws_events.chat", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
