package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/http/response"
	"github.com/yungbote/planforge-backend/internal/services"
)

type ExportHandler struct {
	exports services.ExportService
}

func NewExportHandler(exports services.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// exportView omits the file payload; it is only served by the download.
type exportView struct {
	ID              uuid.UUID  `json:"id"`
	SessionID       uuid.UUID  `json:"session_id"`
	JobID           *uuid.UUID `json:"job_id,omitempty"`
	Variant         string     `json:"variant"`
	Status          string     `json:"status"`
	Progress        int        `json:"progress"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func viewOf(e *domain.Export) exportView {
	return exportView{
		ID:              e.ID,
		SessionID:       e.SessionID,
		JobID:           e.JobID,
		Variant:         e.Variant,
		Status:          e.Status,
		Progress:        e.Progress,
		ProgressMessage: e.ProgressMessage,
		ErrorMessage:    e.ErrorMessage,
		CompletedAt:     e.CompletedAt,
		CreatedAt:       e.CreatedAt,
	}
}

// POST /api/sessions/:id/exports
func (h *ExportHandler) StartExport(c *gin.Context) {
	owner, id, ok := ownerAndID(c, "invalid_session_id")
	if !ok {
		return
	}
	var opts domain.ExportOptions
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	export, err := h.exports.StartExport(c.Request.Context(), owner, id, opts)
	if err != nil {
		response.RespondPipelineError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"export_id": export.ID, "export": viewOf(export)})
}

// GET /api/exports/:id
func (h *ExportHandler) GetExport(c *gin.Context) {
	owner, id, ok := ownerAndID(c, "invalid_export_id")
	if !ok {
		return
	}
	export, err := h.exports.GetExportStatus(c.Request.Context(), owner, id)
	if err != nil {
		response.RespondPipelineError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"export": viewOf(export)})
}

// GET /api/exports/:id/download
func (h *ExportHandler) DownloadExport(c *gin.Context) {
	owner, id, ok := ownerAndID(c, "invalid_export_id")
	if !ok {
		return
	}
	archive, err := h.exports.DownloadExport(c.Request.Context(), owner, id)
	if err != nil {
		response.RespondPipelineError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archive.Name))
	c.Data(http.StatusOK, "application/zip", archive.Bytes)
}
