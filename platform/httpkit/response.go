package httpkit

import (
	"errors"
	"net/http"

	"zapflow_backend/platform/apperr"
	"zapflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const msgInternalError = "internal error"

// ErrorResponse is the body of every non-2xx response. RequestID is only
// filled for 5xx so operators can find the matching log line.
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

func Error(c *gin.Context, status int, message string, details any) {
	resp := ErrorResponse{Error: message, Details: details}
	if status >= http.StatusInternalServerError {
		resp.RequestID = requestID(c)
	}
	c.JSON(status, resp)
}

func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// HandleError writes err as a response and reports whether it did. Typed
// errors use their Kind; internal and untyped errors hide their cause and are
// attached to the gin context for the request logger.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	var domainErr *apperr.Error
	if !errors.As(err, &domainErr) {
		_ = c.Error(err)
		Error(c, http.StatusInternalServerError, msgInternalError, nil)
		return true
	}

	message := domainErr.Message
	if domainErr.Kind == apperr.KindInternal {
		_ = c.Error(err)
		message = msgInternalError
	}
	Error(c, domainErr.HTTPStatus(), message, domainErr.Details)
	return true
}

func requestID(c *gin.Context) string {
	id, _ := c.Request.Context().Value(logger.RequestIDKey).(string)
	return id
}
