package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ghiac/vaultcoach/log"
	"github.com/ghiac/vaultcoach/model"
)

// StatusFor maps an error code to its HTTP status
func StatusFor(code model.ErrorCode) int {
	switch code {
	case model.CodeUnauthenticated:
		return http.StatusUnauthorized
	case model.CodeInvalidArgument:
		return http.StatusBadRequest
	case model.CodePermissionDenied:
		return http.StatusForbidden
	case model.CodeNotFound:
		return http.StatusNotFound
	case model.CodeFailedPrecondition:
		return http.StatusPreconditionFailed
	case model.CodeResourceExhausted:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// RespondError aborts the request with {"error", "code"}. Unclassified
// errors are reported as internal without their details.
func RespondError(c *gin.Context, err error) {
	code := model.ErrorCodeOf(err)
	status := StatusFor(code)
	if status >= http.StatusInternalServerError {
		log.Log.Errorf("[Server] ❌ %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error": model.PublicMessage(err),
		"code":  code,
	})
}

// BindJSON decodes the request body, responding with invalid-argument on
// failure. It returns false when the request was aborted.
func BindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		RespondError(c, model.WrapError(model.CodeInvalidArgument, "Invalid request body", err))
		return false
	}
	return true
}
