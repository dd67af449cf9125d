package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/planforge-backend/internal/http/response"
	"github.com/yungbote/planforge-backend/internal/services"
)

type SessionHandler struct {
	sessions services.SessionService
}

func NewSessionHandler(sessions services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type createSessionRequest struct {
	Description string `json:"description"`
	Name        string `json:"name"`
	Audience    string `json:"audience"`
}

// POST /api/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	owner, ok := requestUserID(c)
	if !ok {
		return
	}
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	session, err := h.sessions.Create(c.Request.Context(), owner, services.CreateSessionInput{
		Description: req.Description,
		Name:        req.Name,
		Audience:    req.Audience,
	})
	if err != nil {
		response.RespondPipelineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": session})
}

// GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	owner, id, ok := ownerAndID(c, "invalid_session_id")
	if !ok {
		return
	}
	session, err := h.sessions.Get(c.Request.Context(), owner, id)
	if err != nil {
		response.RespondPipelineError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"session": session})
}

type answerRequest struct {
	QuestionID string   `json:"question_id"`
	Answer     string   `json:"answer"`
	Choices    []string `json:"choices"`
}

type savePhaseRequest struct {
	Answers []answerRequest `json:"answers"`
}

// PUT /api/sessions/:id/phases/:phase
func (h *SessionHandler) SavePhase(c *gin.Context) {
	owner, id, ok := ownerAndID(c, "invalid_session_id")
	if !ok {
		return
	}
	phase, err := strconv.Atoi(c.Param("phase"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_phase", errors.New("phase must be a number"))
		return
	}
	var req savePhaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	answers := make([]services.AnswerInput, 0, len(req.Answers))
	for _, a := range req.Answers {
		answers = append(answers, services.AnswerInput{QuestionID: a.QuestionID, Text: a.Answer, Choices: a.Choices})
	}
	session, err := h.sessions.SavePhase(c.Request.Context(), owner, id, phase, answers)
	if err != nil {
		response.RespondPipelineError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"session": session})
}

// POST /api/sessions/:id/archive
func (h *SessionHandler) ArchiveSession(c *gin.Context) {
	owner, id, ok := ownerAndID(c, "invalid_session_id")
	if !ok {
		return
	}
	if err := h.sessions.Archive(c.Request.Context(), owner, id); err != nil {
		response.RespondPipelineError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
