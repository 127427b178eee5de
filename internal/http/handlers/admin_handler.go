// Administrator HTTP handlers.
//
//   - GET /admin/export  (CSV transcript of every chat)
//   - GET /admin/report  (aggregate usage counts)
//
// Both routes sit behind RequireAuth and RequireAdmin.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/support-chat-backend/internal/http/middleware"
)

// ExportFilename is the attachment name of the CSV export.
const ExportFilename = "adsim_chats.csv"

// ExportChats godoc
// @ID          exportChats
// @Summary     Export transcripts as CSV
// @Description Streams every message with its chat and owner as CSV (header chat_id,owner_id,owner_email,role,content,created_at).
// @Tags        Admin
// @Produce     text/csv
// @Security    BearerAuth
// @Success     200  {string} string "CSV document"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid token"
// @Failure     403  {object} handlers.ErrorResponse "Admin only"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/export [get]
func (h *Handlers) ExportChats(c *gin.Context) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+ExportFilename+`"`)

	if err := h.adminSvc.Export(c.Request.Context(), c.Writer); err != nil {
		if !c.Writer.Written() {
			c.Writer.Header().Del("Content-Disposition")
			c.Writer.Header().Del("Content-Type")
			failErr(c, http.StatusInternalServerError, ErrCodeExportFailed, "export failed", err)
			return
		}
		// Headers are already on the wire; the truncated body is all we can do.
		middleware.LoggerFrom(c).Error().Err(err).Msg("export aborted mid-stream")
		c.Abort()
	}
}

// Report godoc
// @ID          adminReport
// @Summary     Usage report
// @Description Returns chats per owner, the most frequent opening words of user questions, table totals and feedback counts.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object} services.Report
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid token"
// @Failure     403  {object} handlers.ErrorResponse "Admin only"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/report [get]
func (h *Handlers) Report(c *gin.Context) {
	rep, err := h.adminSvc.Report(c.Request.Context())
	if err != nil {
		failErr(c, http.StatusInternalServerError, ErrCodeReportFailed, "report failed", err)
		return
	}
	ok(c, http.StatusOK, rep)
}
