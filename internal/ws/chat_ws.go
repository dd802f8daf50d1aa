package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"messaging-service/internal/errs"
	"messaging-service/internal/observability"
	"messaging-service/internal/telemetry"
)

// Handler upgrades authenticated HTTP requests into messaging sessions.
type Handler struct {
	lifecycle *Lifecycle
	upgrader  websocket.Upgrader
	client    ClientOptions
}

// NewHandler builds the websocket endpoint. An empty allowedOrigins accepts
// any origin.
func NewHandler(lifecycle *Lifecycle, client ClientOptions, allowedOrigins []string) *Handler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &Handler{
		lifecycle: lifecycle,
		client:    client,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// Handle authenticates before upgrading. A rejected handshake never becomes
// a websocket and leaves no state behind.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	c.Request = c.Request.WithContext(ctx)

	identity, source, err := h.lifecycle.Authenticate(ctx, c.Request)
	if err != nil {
		span.End()
		observability.IncWSEvent("in", "ws_rejected")
		message, _ := errs.Public(err)
		c.JSON(http.StatusUnauthorized, gin.H{"result": "error", "code": errs.KindOf(err), "message": message})
		return
	}
	span.SetAttributes(attribute.String("user.id", identity.UserID), attribute.String("ws.credential", string(source)))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		h.lifecycle.Logger.Warn("websocket upgrade failed", zap.String("user_id", identity.UserID), zap.Error(err))
		return
	}

	info := newConnInfo(c.Request, identity.UserID, source, span.SpanContext().TraceID().String())
	span.End()

	client := NewClient(info.ConnID, info.UserID, conn, h.client)
	session := h.lifecycle.Open(ctx, client, info)

	go client.writePump()
	go h.serve(client, session)
}

func (h *Handler) serve(client *Client, session *Session) {
	err := client.readPump(session.Handle)

	reason := "closed"
	if err != nil {
		reason = err.Error()
	}
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		observability.IncWSEvent("in", telemetry.EventWSError)
		h.lifecycle.Audit.EmitEvent(session.ctx, telemetry.EventWSError, session.UserID(), session.info.auditPayload(telemetry.EventWSError, reason))
	}

	session.Close(reason)
	_ = client.Close()
}
