package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"messaging-service/internal/auth"
	"messaging-service/internal/observability"
)

// ConnInfo describes where a connection came from, for logs and audit.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	Source      auth.Source
	ConnectedAt time.Time
}

func newConnInfo(r *http.Request, userID string, source auth.Source, traceID string) ConnInfo {
	requestID := observability.RequestIDFromRequest(r)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(r),
		IP:          observability.IPFromRequest(r),
		RequestID:   requestID,
		TraceID:     traceID,
		Source:      source,
		ConnectedAt: time.Now(),
	}
}

func (i ConnInfo) auditPayload(event, reason string) map[string]any {
	return map[string]any{
		"ws": map[string]any{
			"event":       event,
			"conn_id":     i.ConnID,
			"duration_ms": time.Since(i.ConnectedAt).Milliseconds(),
			"reason":      reason,
			"credential":  string(i.Source),
		},
		"identity": map[string]any{
			"user_id":   i.UserID,
			"device_id": i.DeviceID,
			"ip":        i.IP,
		},
	}
}

func newConnID() string {
	return uuid.NewString()
}
