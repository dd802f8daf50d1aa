// Package pagination serves inbox and message history pages.
//
// Rows are ranked over a total order and a cursor is the id of the first
// row of the requested page. The cursor resolves to that row's current rank,
// so rows inserted ahead of it never shift the page and nothing is skipped
// or repeated while a client walks the pages.
package pagination

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"messaging-service/internal/access"
	"messaging-service/internal/errs"
	"messaging-service/internal/models"
)

// Limits bounds the page size of one surface.
type Limits struct {
	Default int
	Max     int
}

var (
	InboxLimits   = Limits{Default: 15, Max: 100}
	HistoryLimits = Limits{Default: 25, Max: 100}
)

type Request struct {
	Cursor string
	Limit  int
}

type Meta struct {
	Cursor     *string `json:"cursor"`
	Limit      int     `json:"limit"`
	NextCursor *string `json:"nextCursor"`
}

type Page[T any] struct {
	Items []T
	Meta  Meta
}

// ParseRequest validates raw query values. An empty limit takes the
// surface default and any other value is clamped into [1, Max].
func ParseRequest(cursor, limit string, limits Limits) (Request, error) {
	req := Request{Limit: limits.Default}
	var fields []errs.FieldError

	if c := strings.TrimSpace(cursor); c != "" {
		id, ok := models.ParseID(c)
		if !ok {
			fields = append(fields, errs.FieldError{Field: "cursor", Message: "cursor must be a valid UUID"})
		}
		req.Cursor = id
	}

	if l := strings.TrimSpace(limit); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			fields = append(fields, errs.FieldError{Field: "limit", Message: "limit must be an integer"})
		}
		req.Limit = clamp(n, 1, limits.Max)
	}

	if len(fields) > 0 {
		return Request{}, errs.InvalidFields("Validation failed", fields)
	}
	return req, nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// Trim drops the look-ahead row fetched beyond limit and returns its id as
// the next cursor.
func Trim[T any](rows []T, limit int, idOf func(T) string) ([]T, *string) {
	if len(rows) <= limit {
		return rows, nil
	}
	next := idOf(rows[limit])
	return rows[:limit], &next
}

func newMeta(req Request, next *string) Meta {
	var cursor *string
	if req.Cursor != "" {
		c := req.Cursor
		cursor = &c
	}
	return Meta{Cursor: cursor, Limit: req.Limit, NextCursor: next}
}

// InboxSource returns ranked inbox rows from the cursor rank on.
type InboxSource interface {
	InboxPage(ctx context.Context, userID string, title string, cursor string, fetch int) ([]models.InboxRow, error)
}

// HistorySource returns ranked messages from the cursor rank on.
type HistorySource interface {
	HistoryPage(ctx context.Context, chatID string, cursor string, fetch int) ([]models.Message, error)
}

type ChatAccess interface {
	CanAccessChat(ctx context.Context, userID, chatID string) (models.Chat, access.Denial, error)
}

type Engine struct {
	inbox   InboxSource
	history HistorySource
	access  ChatAccess
	logger  *zap.Logger
}

func NewEngine(inbox InboxSource, history HistorySource, checker ChatAccess, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{inbox: inbox, history: history, access: checker, logger: logger.Named("pagination")}
}

// Inbox pages the user's chats, most recently active first. title filters
// by a case-insensitive substring of the peer's username.
func (e *Engine) Inbox(ctx context.Context, userID, title string, req Request) (Page[models.InboxRow], error) {
	rows, err := e.inbox.InboxPage(ctx, userID, title, req.Cursor, req.Limit+1)
	if err != nil {
		e.logger.Error("inbox page failed", zap.String("user_id", userID), zap.Error(err))
		return Page[models.InboxRow]{}, errs.Internal("load inbox", err)
	}
	if rows == nil {
		rows = []models.InboxRow{}
	}
	items, next := Trim(rows, req.Limit, func(r models.InboxRow) string { return r.ChatID })
	return Page[models.InboxRow]{Items: items, Meta: newMeta(req, next)}, nil
}

// History pages the messages of a chat, newest first.
func (e *Engine) History(ctx context.Context, userID, chatID string, req Request) (Page[models.MessageDTO], error) {
	id, ok := models.ParseID(chatID)
	if !ok {
		return Page[models.MessageDTO]{}, errs.InvalidFields("Validation failed", []errs.FieldError{{Field: "chatId", Message: "chatId must be a valid UUID"}})
	}
	_, denial, err := e.access.CanAccessChat(ctx, userID, id)
	if err != nil {
		e.logger.Error("history access check failed", zap.String("chat_id", id), zap.Error(err))
		return Page[models.MessageDTO]{}, errs.Internal("check chat access", err)
	}
	if denial != access.Allowed {
		return Page[models.MessageDTO]{}, denial.Err("chat")
	}

	msgs, err := e.history.HistoryPage(ctx, id, req.Cursor, req.Limit+1)
	if err != nil {
		e.logger.Error("history page failed", zap.String("chat_id", id), zap.Error(err))
		return Page[models.MessageDTO]{}, errs.Internal("load history", err)
	}
	msgs, next := Trim(msgs, req.Limit, func(m models.Message) string { return m.ID })

	items := make([]models.MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, m.DTO())
	}
	return Page[models.MessageDTO]{Items: items, Meta: newMeta(req, next)}, nil
}
