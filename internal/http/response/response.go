package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Hint    string `json:"hint,omitempty"`
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

// RespondAPIError writes e as the error envelope. The wrapped cause is never
// exposed; only Message and Hint reach the client.
func RespondAPIError(c *gin.Context, e *apierr.Error) {
	if e == nil {
		e = apierr.Internal(nil)
	}
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: e.Error(),
			Code:    e.Code,
			Hint:    e.Hint,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
