package ws

import (
	"context"

	"go.uber.org/zap"

	"messaging-service/internal/errs"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
)

// RoomAccess authorizes room subscriptions.
type RoomAccess interface {
	CanAccessChats(ctx context.Context, userID string, chatIDs []string) (bool, []models.Chat, error)
}

// Dispatcher routes events to the live connections of chat participants.
// Delivery is best effort: a connection that cannot take an event is closed
// and dropped, and nothing is queued for later.
type Dispatcher struct {
	hub      *Hub
	presence *presence.Registry
	access   RoomAccess
	logger   *zap.Logger
}

func NewDispatcher(hub *Hub, registry *presence.Registry, access RoomAccess, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{hub: hub, presence: registry, access: access, logger: logger.Named("dispatcher")}
}

// JoinRooms subscribes the connection to every chat or to none of them.
func (d *Dispatcher) JoinRooms(ctx context.Context, connID, userID string, chatIDs []string) error {
	ok, _, err := d.access.CanAccessChats(ctx, userID, chatIDs)
	if err != nil {
		d.logger.Error("room access check failed", zap.String("user_id", userID), zap.Error(err))
		return errs.Internal("check chat access", err)
	}
	if !ok {
		return errs.Forbidden("you are not a participant of every requested chat")
	}
	if !d.hub.Join(connID, chatIDs...) {
		return errs.Conflict("connection is closed")
	}
	return nil
}

// DeliverToChat sends ev to every connection in the room except
// excludeConnID and returns the number of successful deliveries.
func (d *Dispatcher) DeliverToChat(chatID string, ev Outbound, excludeConnID string) int {
	delivered := 0
	for _, c := range d.hub.Members(chatID) {
		if c.ID() == excludeConnID {
			continue
		}
		if d.deliver(c, ev) {
			delivered++
		}
	}
	return delivered
}

// DeliverToChatByUser sends each room member the event built for its user.
// Members whose user has no entry get nothing.
func (d *Dispatcher) DeliverToChatByUser(chatID string, byUser map[string]Outbound, excludeConnID string) int {
	delivered := 0
	for _, c := range d.hub.Members(chatID) {
		if c.ID() == excludeConnID {
			continue
		}
		ev, ok := byUser[c.UserID()]
		if !ok {
			continue
		}
		if d.deliver(c, ev) {
			delivered++
		}
	}
	return delivered
}

// EnsureSubscribed joins every live connection of userID to the chat room,
// so a chat started after the user connected still reaches them.
func (d *Dispatcher) EnsureSubscribed(chatID, userID string) {
	if userID == "" {
		return
	}
	for _, connID := range d.presence.ConnectionsOf(userID) {
		if !d.hub.IsSubscribed(connID, chatID) {
			d.hub.Join(connID, chatID)
		}
	}
}

// BroadcastPresence tells the rooms of the user's chats that the user came
// online or went offline. The user's own connections are skipped.
func (d *Dispatcher) BroadcastPresence(userID string, online bool, chatIDs []string) int {
	event := EventUserOffline
	if online {
		event = EventUserOnline
	}

	delivered := 0
	for _, chatID := range chatIDs {
		ev := push(event, PresencePayload{UserID: userID, ChatID: chatID})
		for _, c := range d.hub.Members(chatID) {
			if c.UserID() == userID {
				continue
			}
			if d.deliver(c, ev) {
				delivered++
			}
		}
	}
	return delivered
}

// Reply sends a direct response to one connection.
func (d *Dispatcher) Reply(c Conn, ev Outbound) bool {
	return d.deliver(c, ev)
}

func (d *Dispatcher) deliver(c Conn, ev Outbound) bool {
	if err := c.Send(ev); err != nil {
		observability.IncFanoutDelivery(ev.Event, "dropped")
		d.logger.Warn("websocket delivery failed, dropping connection",
			zap.String("conn_id", c.ID()),
			zap.String("user_id", c.UserID()),
			zap.String("event", ev.Event),
			zap.Error(err),
		)
		d.hub.Remove(c.ID())
		_ = c.Close()
		return false
	}
	observability.IncFanoutDelivery(ev.Event, "ok")
	observability.IncWSEvent("out", ev.Event)
	return true
}
