package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/planforge-backend/internal/http/response"
	"github.com/yungbote/planforge-backend/internal/platform/apierr"
	"github.com/yungbote/planforge-backend/internal/platform/ctxutil"
)

func requestUserID(c *gin.Context) (uuid.UUID, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing authenticated user"))
		return uuid.Nil, false
	}
	return rd.UserID, true
}

func uuidParam(c *gin.Context, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil || id == uuid.Nil {
		response.RespondPipelineError(c, apierr.BadRequest(code, errors.New("invalid "+name)))
		return uuid.Nil, false
	}
	return id, true
}

// ownerAndID resolves the caller and the :id path parameter, writing the
// error response itself when either is missing.
func ownerAndID(c *gin.Context, code string) (owner, id uuid.UUID, ok bool) {
	owner, ok = requestUserID(c)
	if !ok {
		return
	}
	id, ok = uuidParam(c, "id", code)
	return
}
