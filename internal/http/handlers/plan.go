package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/planforge-backend/internal/http/response"
	"github.com/yungbote/planforge-backend/internal/services"
)

type PlanHandler struct {
	plans services.PlanService
}

func NewPlanHandler(plans services.PlanService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// POST /api/sessions/:id/plan
func (h *PlanHandler) GeneratePlan(c *gin.Context) {
	owner, id, ok := ownerAndID(c, "invalid_session_id")
	if !ok {
		return
	}
	res, err := h.plans.GeneratePlan(c.Request.Context(), owner, id)
	if err != nil {
		response.RespondPipelineError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/sessions/:id/plan/jobs
func (h *PlanHandler) EnqueuePlan(c *gin.Context) {
	owner, id, ok := ownerAndID(c, "invalid_session_id")
	if !ok {
		return
	}
	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	job, err := h.plans.EnqueueGeneration(c.Request.Context(), owner, id, key)
	if err != nil {
		response.RespondPipelineError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// GET /api/sessions/:id/plan
func (h *PlanHandler) GetPlan(c *gin.Context) {
	owner, id, ok := ownerAndID(c, "invalid_session_id")
	if !ok {
		return
	}
	plan, err := h.plans.GetPlan(c.Request.Context(), owner, id)
	if err != nil {
		response.RespondPipelineError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"plan": plan})
}

type editPlanRequest struct {
	Content string `json:"content"`
}

// PUT /api/sessions/:id/plan
func (h *PlanHandler) EditPlan(c *gin.Context) {
	owner, id, ok := ownerAndID(c, "invalid_session_id")
	if !ok {
		return
	}
	var req editPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	plan, err := h.plans.SaveEdit(c.Request.Context(), owner, id, req.Content)
	if err != nil {
		response.RespondPipelineError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"plan": plan})
}

// POST /api/sessions/:id/plan/approve
func (h *PlanHandler) ApprovePlan(c *gin.Context) {
	owner, id, ok := ownerAndID(c, "invalid_session_id")
	if !ok {
		return
	}
	plan, err := h.plans.Approve(c.Request.Context(), owner, id)
	if err != nil {
		response.RespondPipelineError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"plan": plan})
}
