package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/wellchat-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
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

// RespondDomainError picks the status and code from a domain or API error.
func RespondDomainError(c *gin.Context, err error) {
	if err == nil {
		err = errInternal
	}
	_ = c.Error(err)
	ae := apierr.FromError(err)
	RespondError(c, ae.Status, ae.Code, ae)
}

func AbortError(c *gin.Context, status int, code string, err error) {
	RespondError(c, status, code, err)
	c.Abort()
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

var errInternal = apierr.New(http.StatusInternalServerError, "internal", nil)
