// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response utilities shared by all endpoints: the
// error envelope, success writers, the caller lookup, and the weak ETag
// check used by the list endpoints.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "error": "chat not found"
//	}
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/support-chat-backend/internal/auth"
	"github.com/tbourn/support-chat-backend/internal/http/middleware"
	"github.com/tbourn/support-chat-backend/internal/utils"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Error string `json:"error" example:"chat not found"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// fail aborts the request with a structured error. Server errors (>=500)
// are logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	abortJSON(c, status, code, msg)
}

// failErr aborts with a fixed client message and logs err, which may carry
// upstream or database detail, only on the server side.
func failErr(c *gin.Context, status int, code, msg string, err error) {
	middleware.LoggerFrom(c).Error().
		Err(err).
		Int("status", status).
		Str("code", code).
		Msg("api error")
	abortJSON(c, status, code, msg)
}

func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Error:     msg,
	})
}

// Fail is the exported variant of fail() for router-level responses.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// principal returns the caller set by the auth middleware. Routes that reach
// a handler without one are misconfigured, so the request fails with 401.
func principal(c *gin.Context) (auth.Principal, bool) {
	p, found := middleware.PrincipalFrom(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "token missing")
		return auth.Principal{}, false
	}
	return p, true
}

// pageParams reads page and page_size from the query string.
func pageParams(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), utils.DefaultPageSize),
	)
}

func pagination(page, pageSize int, total int64) Pagination {
	pages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: pages,
		HasNext:    page < pages,
	}
}

// notModified sets a weak ETag derived from (scope, count, newest) and
// reports whether the client's If-None-Match already matches it. The caller
// then answers 304 without a body.
func notModified(c *gin.Context, scope string, count int64, newest *time.Time) bool {
	var ts int64
	if newest != nil {
		ts = newest.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%d:%d"`, scope, count, ts)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
