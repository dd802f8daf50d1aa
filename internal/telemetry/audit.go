package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      *zap.Logger
}

type AuditEnvelope struct {
	SchemaVersion int     `json:"schema_version"`
	EventType     string  `json:"event_type"`
	OccurredAt    string  `json:"occurred_at"`
	Service       string  `json:"service"`
	Environment   string  `json:"environment"`
	RequestID     string  `json:"request_id"`
	UserID        *string `json:"user_id,omitempty"`
	Payload       any     `json:"payload"`
}

type AuditPayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Event types published for messaging activity.
const (
	EventChatOpened     = "chat_opened"
	EventMessageSent    = "message_sent"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
	EventChatRead       = "chat_read"
	EventWSConnect      = "ws_connect"
	EventWSDisconnect   = "ws_disconnect"
	EventWSError        = "ws_error"
)

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger *zap.Logger) *AuditEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger.Named("audit"),
	}
}

// Emit publishes a free-form audit log line.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *string) {
	if e == nil || e.publisher == nil {
		return
	}

	e.logger.Debug("audit emit",
		zap.String("level", level),
		zap.String("request_id", requestID),
		zap.Stringp("user_id", userID),
		zap.String("text", text),
	)
	e.publish(ctx, e.routingKey, e.envelope("audit_log", requestID, userID, AuditPayload{Level: level, Text: text}))
}

// EmitEvent publishes a typed messaging event under routingKey.eventType.
// The request id is taken from ctx.
func (e *AuditEmitter) EmitEvent(ctx context.Context, eventType, userID string, payload map[string]any) {
	if e == nil || e.publisher == nil {
		return
	}

	var uid *string
	if userID != "" {
		uid = &userID
	}
	if payload == nil {
		payload = map[string]any{}
	}
	e.publish(ctx, e.routingKey+"."+eventType, e.envelope(eventType, RequestIDFrom(ctx), uid, payload))
}

func (e *AuditEmitter) envelope(eventType, requestID string, userID *string, payload any) AuditEnvelope {
	return AuditEnvelope{
		SchemaVersion: 1,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload:       payload,
	}
}

func (e *AuditEmitter) publish(ctx context.Context, routingKey string, envelope AuditEnvelope) {
	if err := e.publisher.Publish(ctx, routingKey, envelope); err != nil {
		e.logger.Warn("audit publish failed",
			zap.String("routing_key", routingKey),
			zap.String("event_type", envelope.EventType),
			zap.Error(err),
		)
	}
}

type requestIDKey struct{}

// WithRequestID attaches the request (or connection) id used to correlate
// audit events.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}
