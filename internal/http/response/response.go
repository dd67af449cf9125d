package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/planforge-backend/internal/pipeline/errs"
	"github.com/yungbote/planforge-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Found   *int   `json:"found,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

var kindStatus = map[errs.Kind]int{
	errs.KindUnauthorized:      http.StatusForbidden,
	errs.KindNotFound:          http.StatusNotFound,
	errs.KindIncompletePhases:  http.StatusUnprocessableEntity,
	errs.KindGenerationFailed:  http.StatusBadGateway,
	errs.KindParseFailure:      http.StatusBadGateway,
	errs.KindAssemblyFailure:   http.StatusInternalServerError,
	errs.KindNotReady:          http.StatusConflict,
	errs.KindNoFiles:           http.StatusGone,
	errs.KindAlreadyInProgress: http.StatusConflict,
	errs.KindPlanApproved:      http.StatusConflict,
	errs.KindInvalidArgument:   http.StatusBadRequest,
}

// StatusFor maps an error to the status RespondPipelineError would use.
func StatusFor(err error) int {
	if ae, ok := apierr.As(err); ok && ae.Status != 0 {
		return ae.Status
	}
	if status, ok := kindStatus[errs.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondPipelineError writes err with the status and code of its kind.
// Errors without a kind are reported as internal without their message.
func RespondPipelineError(c *gin.Context, err error) {
	if ae, ok := apierr.As(err); ok {
		RespondError(c, StatusFor(err), ae.Code, ae)
		return
	}
	kind := errs.KindOf(err)
	if kind == "" {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorEnvelope{
			Error: APIError{Message: "internal error", Code: "internal"},
		})
		return
	}
	body := APIError{Message: err.Error(), Code: string(kind)}
	if kind == errs.KindIncompletePhases {
		var e *errs.Error
		if errors.As(err, &e) {
			found := e.Found
			body.Found = &found
		}
	}
	c.JSON(StatusFor(err), ErrorEnvelope{Error: body})
}
