// Message HTTP handlers.
//
// This file exposes REST endpoints for chat messages:
//   - POST /chats/{id}/messages   (append a user message and the assistant reply)
//   - GET  /chats/{id}/messages   (list paginated messages for a chat)
//
// Idempotency:
// When the client supplies an Idempotency-Key and the same caller already
// completed an exchange on the chat with that key, the recorded pair is
// returned with `Idempotency-Replayed: true` and no new rows are written.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/support-chat-backend/internal/domain"
	"github.com/tbourn/support-chat-backend/internal/http/middleware"
	"github.com/tbourn/support-chat-backend/internal/services"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a user message.
//
// Content is normalized by the handler (line endings and excessive blank lines)
// before being passed to the service layer.
type PostMessageRequest struct {
	// Content is the user prompt. It must be non-empty.
	Content string `json:"content" binding:"required,min=1" example:"Como altero a praca de uma proposta?"`
}

// PostMessageResponse carries both rows written by the exchange.
type PostMessageResponse struct {
	// Message is the stored user message.
	Message *domain.Message `json:"message"`
	// Reply is the assistant message generated for it.
	Reply *domain.Message `json:"reply"`
}

// ListMessagesResponse contains a page of chat messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
// CRLF/CR become LF, runs of 3+ LFs collapse to two, and surrounding
// whitespace is trimmed.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// failChatAccess maps the chat lookup errors shared by both endpoints and
// reports whether it wrote a response.
func failChatAccess(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, services.ErrChatNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "chat not found")
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "access denied")
	default:
		return false
	}
	return true
}

//
// Handlers
//

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message and get the assistant reply
// @Description Appends a user message to the chat, forwards the recent history to the completion service and stores the reply, all in one transaction.
// @Description A failed completion rolls back the user message too.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       id               path    string  true  "Chat ID (UUID)"              format(uuid)
// @Param       body             body    handlers.PostMessageRequest  true  "User message payload"
// @Success     201  {object}  handlers.PostMessageResponse  "Stored user message and assistant reply"
// @Header      201  {string}  Idempotency-Replayed "true when the result was replayed"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse        "Missing or invalid token"
// @Failure     403  {object}  handlers.ErrorResponse        "Not the chat owner"
// @Failure     404  {object}  handlers.ErrorResponse        "Chat not found"
// @Failure     500  {object}  handlers.ErrorResponse        "Completion or storage failure"
// @Router      /chats/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	chatID := c.Param("id")
	if _, err := uuid.Parse(chatID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat id must be a UUID")
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	content := sanitizeContent(req.Content)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	if h.MaxContentRunes > 0 && utf8.RuneCountInString(content) > h.MaxContentRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", h.MaxContentRunes))
		return
	}

	idemKey, _ := middleware.GetIdempotencyKey(c)

	res, err := h.msgSvc.Exchange(c.Request.Context(), p, chatID, content, idemKey)
	if err != nil {
		if failChatAccess(c, err) {
			return
		}
		switch {
		case errors.Is(err, services.ErrEmptyPrompt):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content too long")
		case errors.Is(err, services.ErrCompletionFailed):
			failErr(c, http.StatusInternalServerError, ErrCodeCompletionFailed, "assistant unavailable", err)
		default:
			failErr(c, http.StatusInternalServerError, ErrCodeInternal, "internal error", err)
		}
		return
	}

	if res.Replayed {
		c.Header("Idempotency-Replayed", "true")
	}
	ok(c, http.StatusCreated, PostMessageResponse{Message: res.UserMessage, Reply: res.Reply})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a chat
// @Description Returns a page of messages for the given chat in chronological order. Supports weak ETag via If-None-Match.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       id             path    string  true  "Chat ID (UUID)"  format(uuid)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListMessagesResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid token"
// @Failure     403  {object} handlers.ErrorResponse "Not the chat owner"
// @Failure     404  {object} handlers.ErrorResponse "Chat not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chats/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	chatID := c.Param("id")
	if _, err := uuid.Parse(chatID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat id must be a UUID")
		return
	}

	// Stats authorizes, so a 304 is never served to a caller without access.
	count, newest, err := h.msgSvc.Stats(ctx, p, chatID)
	if err != nil {
		if !failChatAccess(c, err) {
			failErr(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list messages", err)
		}
		return
	}
	if notModified(c, "messages:"+chatID, count, newest) {
		return
	}

	page, pageSize := pageParams(c)
	items, total, err := h.msgSvc.ListPage(ctx, p, chatID, page, pageSize)
	if err != nil {
		if !failChatAccess(c, err) {
			failErr(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list messages", err)
		}
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: pagination(page, pageSize, total),
	})
}
