package ws

import (
	"encoding/json"
	"time"

	"messaging-service/internal/errs"
	"messaging-service/internal/models"
)

// Inbound commands.
const (
	EventJoinChatRooms  = "joinChatRooms"
	EventSendMessage    = "sendMessage"
	EventEditMessage    = "editMessage"
	EventDeleteMessage  = "deleteMessage"
	EventSendTyping     = "sendTyping"
	EventSendStopTyping = "sendStopTyping"
	EventReadChat       = "readChat"
	EventGetStatus      = "getStatus"
)

// Outbound events. editMessage and deleteMessage reuse the command names.
const (
	EventNewMessage  = "newMessage"
	EventTyping      = "typing"
	EventStopTyping  = "stopTyping"
	EventReadReceipt = "readReceipt"
	EventUserOnline  = "userOnline"
	EventUserOffline = "userOffline"
	EventError       = "error"
)

const (
	ResultSuccess = "success"
	ResultError   = "error"

	StatusOnline  = "ONLINE"
	StatusOffline = "OFFLINE"
)

// Inbound is one client frame.
type Inbound struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data"`

	seq uint64 // arrival order on the connection
}

// Outbound is one server frame: a pushed event, a command ack or an error.
type Outbound struct {
	Event       string            `json:"event"`
	ID          string            `json:"id,omitempty"`
	Result      string            `json:"result,omitempty"`
	Message     string            `json:"message,omitempty"`
	Code        errs.Kind         `json:"code,omitempty"`
	ErrorFields []errs.FieldError `json:"errorFields,omitempty"`
	Data        any               `json:"data,omitempty"`
}

func push(event string, data any) Outbound {
	return Outbound{Event: event, Data: data}
}

func ack(in Inbound, data any) Outbound {
	return Outbound{Event: in.Event, ID: in.ID, Result: ResultSuccess, Data: data}
}

func failure(id string, err error) Outbound {
	message, fields := errs.Public(err)
	return Outbound{
		Event:       EventError,
		ID:          id,
		Result:      ResultError,
		Code:        errs.KindOf(err),
		Message:     message,
		ErrorFields: fields,
	}
}

type NewMessagePayload struct {
	Message   models.MessageDTO `json:"message"`
	ChatInbox *models.InboxRow  `json:"chatInbox,omitempty"`
}

type EditMessagePayload struct {
	ChatID     string     `json:"chatId"`
	MessageID  string     `json:"messageId"`
	NewMessage string     `json:"newMessage"`
	EditedAt   *time.Time `json:"editedAt"`
}

type DeleteMessagePayload struct {
	ChatID    string     `json:"chatId"`
	MessageID string     `json:"messageId"`
	DeletedAt *time.Time `json:"deletedAt"`
}

type TypingPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type ReadReceiptPayload struct {
	ChatID   string               `json:"chatId"`
	Messages []models.ReadReceipt `json:"messages"`
}

type PresencePayload struct {
	UserID string `json:"userId"`
	ChatID string `json:"chatId"`
}

type StatusPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type JoinedPayload struct {
	ChatIDs []string `json:"chatIds"`
}
