package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quantgate/internal/apperr"
)

// Every /api/v1 response is wrapped in this envelope, success and failure
// alike. Health and metrics are the only bare endpoints.
type envelope struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// codeKey carries the taxonomy code from fail() to the request logger.
const codeKey = "qg.code"

func respond(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{
		Success: true,
		Code:    apperr.CodeOK.String(),
		Message: "ok",
		Data:    data,
	})
}

func fail(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	c.Set(codeKey, code.String())
	c.JSON(httpStatus(code), envelope{
		Success: false,
		Code:    code.String(),
		Message: apperr.MessageOf(err),
	})
}

func abort(c *gin.Context, err error) {
	fail(c, err)
	c.Abort()
}

// httpStatus maps taxonomy codes onto HTTP statuses. POLICY_BLOCKED never
// reaches a client, so it falls into the 500 default.
func httpStatus(code apperr.Code) int {
	switch code {
	case apperr.CodeOK:
		return http.StatusOK
	case apperr.CodeAuthMissing, apperr.CodeAuthInvalid:
		return http.StatusUnauthorized
	case apperr.CodeInvalidArgument, apperr.CodeFailedPrecondition,
		apperr.CodeFirehoseDisabled, apperr.CodeNotSupportedInSim:
		return http.StatusBadRequest
	case apperr.CodeEmptySymbols:
		return http.StatusUnprocessableEntity
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeSubLimit:
		return http.StatusTooManyRequests
	case apperr.CodeUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
