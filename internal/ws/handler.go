package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"session-service/internal/auth"
	"session-service/internal/models"
	"session-service/internal/observability"
	"session-service/internal/session"
	"session-service/internal/telemetry"
)

// Handler upgrades session websocket connections and dispatches their
// protocol events. One connection serves all sessions the client joins.
type Handler struct {
	registry *session.Registry
	hub      *session.Hub
	relay    *session.Relay
	verifier *auth.Verifier
	emitter  *telemetry.AuditEmitter
}

// NewHandler constructs a Handler.
func NewHandler(registry *session.Registry, hub *session.Hub, relay *session.Relay, verifier *auth.Verifier, emitter *telemetry.AuditEmitter) *Handler {
	return &Handler{registry: registry, hub: hub, relay: relay, verifier: verifier, emitter: emitter}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type connInfo struct {
	connID      string
	userID      int64
	deviceID    string
	ip          string
	requestID   string
	traceID     string
	connectedAt time.Time
}

// Handle authenticates the handshake, upgrades the connection and runs
// the event loop until the transport drops.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("session-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	claims, err := h.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	meta := observability.MetaFromRequest(c.Request)
	info := connInfo{
		connID:      uuid.NewString(),
		userID:      claims.UserID,
		deviceID:    meta.DeviceID,
		ip:          meta.IP,
		requestID:   meta.RequestID,
		traceID:     span.SpanContext().TraceID().String(),
		connectedAt: time.Now(),
	}

	client := newClient(info.connID, conn)
	h.registry.Register(info.connID, claims.UserID, claims.DisplayName, claims.Role, client)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishWSEvent(ctx, "ws_connect", info, "")

	go client.writePump()
	go h.readPump(ctx, client, info)
}

// readPump consumes client events until the transport errors out, then
// tears the connection down. The teardown is what guarantees no ghost
// members: every room the connection joined gets a fresh snapshot.
func (h *Handler) readPump(ctx context.Context, client *Client, info connInfo) {
	var closeReason string
	defer func() {
		h.hub.Unregister(info.connID)
		client.close()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishWSEvent(ctx, "ws_disconnect", info, closeReason)
	}()

	client.conn.SetReadLimit(64 << 10)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var ev models.ClientEvent
		if err := client.conn.ReadJSON(&ev); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishWSEvent(ctx, "ws_error", info, closeReason)
			}
			return
		}
		h.dispatch(ctx, client, info, ev)
	}
}

func (h *Handler) dispatch(ctx context.Context, client *Client, info connInfo, ev models.ClientEvent) {
	switch ev.Type {
	case models.ClientJoinSession:
		if err := h.hub.Join(ev.SessionID, info.connID); err != nil {
			client.Deliver(models.ErrorEvent(session.Kind(err), err.Error()))
		}
	case models.ClientLeaveSession:
		if err := h.hub.Leave(ev.SessionID, info.connID); err != nil {
			client.Deliver(models.ErrorEvent(session.Kind(err), err.Error()))
		}
	case models.ClientSendMessage:
		msg, err := h.relay.Send(ctx, ev.SessionID, info.connID, ev.Body, ev.MessageType, ev.Metadata)
		if err != nil {
			client.Deliver(models.ErrorEvent(session.Kind(err), err.Error()))
			return
		}
		h.emitter.Emit(ctx, "INFO", "message sent", info.requestID, msg.SessionID, &info.userID)
	case models.ClientTypingStart:
		// fire-and-forget: typing failures are never surfaced
		if err := h.hub.StartTyping(ev.SessionID, info.connID); err != nil {
			zap.L().Debug("typing start ignored", zap.String("conn_id", info.connID), zap.Error(err))
		}
	case models.ClientTypingStop:
		if err := h.hub.StopTyping(ev.SessionID, info.connID); err != nil {
			zap.L().Debug("typing stop ignored", zap.String("conn_id", info.connID), zap.Error(err))
		}
	case models.ClientMarkRead:
		h.relay.MarkRead(ctx, ev.MessageID, info.connID)
	case models.ClientGetOnlineUsers:
		client.Deliver(models.ServerEvent{
			Type:      models.ServerOnlineUsers,
			SessionID: ev.SessionID,
			Members:   h.hub.MembersOf(ev.SessionID),
		})
	default:
		client.Deliver(models.ErrorEvent(session.KindValidation, "unknown event type"))
	}
}

func (h *Handler) validateToken(header string) (auth.Claims, error) {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return h.verifier.Verify(header[len(prefix):])
	}
	return auth.Claims{}, auth.ErrInvalidToken
}

func (h *Handler) publishWSEvent(ctx context.Context, name string, info connInfo, reason string) {
	_ = observability.PublishEvent(ctx, "ws_events.sessions", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       name,
				"conn_id":     info.connID,
				"duration_ms": time.Since(info.connectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.userID,
				"device_id": info.deviceID,
				"ip":        info.ip,
			},
		},
	}, observability.TraceHeaders(info.requestID, info.traceID))
}
