package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/errs"
	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/pagination"
)

// Pages serves the paginated read side.
type Pages interface {
	Inbox(ctx context.Context, userID, title string, req pagination.Request) (pagination.Page[models.InboxRow], error)
	History(ctx context.Context, userID, chatID string, req pagination.Request) (pagination.Page[models.MessageDTO], error)
}

// ChatOpener creates or finds the private chat with a peer.
type ChatOpener interface {
	OpenChat(ctx context.Context, userID, peerID string) (models.InboxRow, error)
}

// ChatHandler manages private chat endpoints.
type ChatHandler struct {
	pages  Pages
	opener ChatOpener
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(pages Pages, opener ChatOpener) *ChatHandler {
	return &ChatHandler{pages: pages, opener: opener}
}

// Inbox returns the caller's chats, most recently active first.
func (h *ChatHandler) Inbox(c *gin.Context) {
	req, err := pagination.ParseRequest(c.Query("cursor"), c.Query("limit"), pagination.InboxLimits)
	if err != nil {
		fail(c, err)
		return
	}

	page, err := h.pages.Inbox(c.Request.Context(), middleware.UserID(c), c.Query("title"), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Inbox fetched", page.Items, &page.Meta)
}

// History returns one page of a chat's messages, newest first.
func (h *ChatHandler) History(c *gin.Context) {
	req, err := pagination.ParseRequest(c.Query("cursor"), c.Query("limit"), pagination.HistoryLimits)
	if err != nil {
		fail(c, err)
		return
	}

	page, err := h.pages.History(c.Request.Context(), middleware.UserID(c), c.Param("chat_id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Messages fetched", page.Items, &page.Meta)
}

// StartChat creates or returns the private chat with another user.
func (h *ChatHandler) StartChat(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, envelope{
			Result:  "error",
			Message: "userId is required",
			Code:    errs.KindInvalidArgument,
		})
		return
	}

	row, err := h.opener.OpenChat(c.Request.Context(), middleware.UserID(c), req.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Chat opened", row, nil)
}
