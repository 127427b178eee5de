// Completion proxy handler.
//
//   - POST /proxy/chat  (identity token, proxy CORS allow-list)
//
// Companion front-ends send a whole conversation and receive the assistant's
// next reply. Nothing is stored.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/support-chat-backend/internal/http/middleware"
	"github.com/tbourn/support-chat-backend/internal/llm"
	"github.com/tbourn/support-chat-backend/internal/services"
)

// ProxyChatRequest is a client-supplied conversation.
type ProxyChatRequest struct {
	Messages []llm.Turn `json:"messages"`
	// Temperature defaults to the configured value when omitted.
	Temperature *float64 `json:"temperature,omitempty" example:"0.3"`
}

// ProxyChatResponse carries the completion text.
type ProxyChatResponse struct {
	Reply string `json:"reply" example:"Ola! Vamos la..."`
}

// ProxyChat godoc
// @ID          proxyChat
// @Summary     Completion proxy
// @Description Prepends the guard instruction to the supplied conversation, keeps the most recent turns and returns the completion.
// @Tags        Proxy
// @Accept      json
// @Produce     json
// @Security    IdentityToken
// @Param       body  body      handlers.ProxyChatRequest  true  "Conversation"
// @Success     200   {object}  handlers.ProxyChatResponse
// @Failure     400   {object}  handlers.ErrorResponse "Invalid conversation or temperature"
// @Failure     401   {object}  handlers.ErrorResponse "Missing or invalid identity token"
// @Failure     500   {object}  handlers.ErrorResponse "Completion failure"
// @Failure     503   {object}  handlers.ErrorResponse "Proxy not configured"
// @Router      /proxy/chat [post]
func (h *Handlers) ProxyChat(c *gin.Context) {
	var req ProxyChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	reply, err := h.proxySvc.Complete(c.Request.Context(), middleware.IdentityFrom(c), services.ProxyRequest{
		Messages:    req.Messages,
		Temperature: req.Temperature,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidMessages), errors.Is(err, services.ErrInvalidTemp):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrCompletionFailed):
			failErr(c, http.StatusInternalServerError, ErrCodeCompletionFailed, "assistant unavailable", err)
		default:
			failErr(c, http.StatusInternalServerError, ErrCodeInternal, "internal error", err)
		}
		return
	}
	ok(c, http.StatusOK, ProxyChatResponse{Reply: reply})
}
