// Feedback HTTP handlers.
//
//   - POST /messages/{id}/feedback  (rate an assistant message)
//
// Values are constrained to {-1, +1}; one rating per (message, user).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/support-chat-backend/internal/services"
)

// LeaveFeedbackRequest is the JSON payload for creating feedback on a message.
type LeaveFeedbackRequest struct {
	// Value is the feedback signal: +1 (positive) or -1 (negative).
	Value int `json:"value" binding:"required,oneof=-1 1" example:"1"`
}

// LeaveFeedback godoc
// @ID          leaveFeedback
// @Summary     Leave feedback on a message
// @Description Records positive (+1) or negative (-1) feedback for an assistant message in a chat the caller may read.
// @Tags        Feedback
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path    string  true  "Message ID (UUID)"  format(uuid) example(fa4dfbe0-c3bf-47bd-b32f-d7de221cf43b)
// @Param       body  body    handlers.LeaveFeedbackRequest true "Feedback payload"
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Invalid payload"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid token"
// @Failure     403  {object} handlers.ErrorResponse "Not allowed to leave feedback"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Failure     409  {object} handlers.ErrorResponse "Feedback already exists"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /messages/{id}/feedback [post]
func (h *Handlers) LeaveFeedback(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	messageID := c.Param("id")
	if _, err := uuid.Parse(messageID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id must be a UUID")
		return
	}

	var req LeaveFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "value must be -1 or 1")
		return
	}

	if err := h.fbSvc.Leave(c.Request.Context(), p, messageID, req.Value); err != nil {
		switch {
		case errors.Is(err, services.ErrMessageNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		case errors.Is(err, services.ErrInvalidFeedback):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "value must be -1 or 1")
		case errors.Is(err, services.ErrForbiddenFeedback):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "cannot leave feedback on this message")
		case errors.Is(err, services.ErrDuplicateFeedback):
			fail(c, http.StatusConflict, ErrCodeConflict, "feedback already exists")
		default:
			failErr(c, http.StatusInternalServerError, ErrCodeInternal, "internal error", err)
		}
		return
	}
	noContent(c)
}
