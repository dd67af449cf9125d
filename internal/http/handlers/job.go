package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/planforge-backend/internal/http/response"
	"github.com/yungbote/planforge-backend/internal/services"
)

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	owner, id, ok := ownerAndID(c, "invalid_job_id")
	if !ok {
		return
	}
	job, err := h.jobs.GetForOwner(c.Request.Context(), owner, id)
	if err != nil {
		response.RespondPipelineError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}
