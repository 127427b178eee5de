// Chat HTTP handlers.
//
// This file exposes REST endpoints for chat resources:
//   - POST   /chats               (create)
//   - GET    /chats               (list, paginated, ETag support)
//   - PUT    /chats/{id}/title    (rename)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/support-chat-backend/internal/domain"
	"github.com/tbourn/support-chat-backend/internal/services"
)

//
// DTOs
//

// CreateChatRequest is the JSON payload for creating a chat.
type CreateChatRequest struct {
	// Title optionally sets the chat title; a dated default is used when empty.
	Title string `json:"title" example:"Alterar praca da proposta"`
}

// UpdateChatTitleRequest is the JSON payload for updating a chat title.
type UpdateChatTitleRequest struct {
	// Title is the new chat name (1–255 chars).
	Title string `json:"title" binding:"required,min=1,max=255" example:"Assinatura digital"`
}

// ListChatsResponse wraps a page of chats and pagination information.
type ListChatsResponse struct {
	Chats      []domain.Chat `json:"chats"`
	Pagination Pagination    `json:"pagination"`
}

//
// Handlers
//

// CreateChat godoc
// @ID          createChat
// @Summary     Create a new chat
// @Description Creates a chat owned by the caller and returns the chat resource.
// @Tags        Chats
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateChatRequest  false  "Create chat payload"
// @Success     201   {object}  domain.Chat
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chats [post]
func (h *Handlers) CreateChat(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	var req CreateChatRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}

	ch, err := h.chatSvc.Create(c.Request.Context(), p, strings.TrimSpace(req.Title))
	if err != nil {
		failErr(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not create chat", err)
		return
	}
	ok(c, http.StatusCreated, ch)
}

// ListChats godoc
// @ID          listChats
// @Summary     List chats (paginated)
// @Description Returns a page of the caller's chats, most recently updated first. Administrators see every chat with its owner's email.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Chats
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"chats:u1:3:1700000000\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListChatsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid token"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chats [get]
func (h *Handlers) ListChats(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	page, pageSize := pageParams(c)

	scope := p.UserID
	if p.Admin {
		scope = "all"
	}
	if count, newest, err := h.chatSvc.Stats(ctx, p); err == nil {
		if notModified(c, "chats:"+scope, count, newest) {
			return
		}
	}

	items, total, err := h.chatSvc.ListPage(ctx, p, page, pageSize)
	if err != nil {
		failErr(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list chats", err)
		return
	}
	ok(c, http.StatusOK, ListChatsResponse{
		Chats:      items,
		Pagination: pagination(page, pageSize, total),
	})
}

// UpdateChatTitle godoc
// @ID          updateChatTitle
// @Summary     Rename a chat
// @Description Updates the title of a chat owned by the caller (or any chat, for administrators).
// @Tags        Chats
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path    string  true  "Chat ID (UUID)"  format(uuid) example(141add05-4415-4938-b5a1-17e0d3171aff)
// @Param       body  body    handlers.UpdateChatTitleRequest  true  "New title"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid token"
// @Failure     403  {object} handlers.ErrorResponse "Not the chat owner"
// @Failure     404  {object} handlers.ErrorResponse "Chat not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chats/{id}/title [put]
func (h *Handlers) UpdateChatTitle(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	chatID := c.Param("id")
	if _, err := uuid.Parse(chatID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat id must be a UUID")
		return
	}

	var req UpdateChatTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title required (1–255 chars)")
		return
	}

	if err := h.chatSvc.UpdateTitle(c.Request.Context(), p, chatID, req.Title); err != nil {
		switch {
		case errors.Is(err, services.ErrChatNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
		case errors.Is(err, services.ErrForbidden):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "access denied")
		default:
			failErr(c, http.StatusInternalServerError, ErrCodeInternal, "internal error", err)
		}
		return
	}
	noContent(c)
}
