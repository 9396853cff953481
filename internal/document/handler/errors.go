package handler

import (
	"errors"
	"net/http"

	"github.com/docledger/docledger/internal/document"
	"github.com/gin-gonic/gin"
)

// statusClientClosed is the nginx convention for a request abandoned by the caller.
const statusClientClosed = 499

// statusOf maps an error kind to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, document.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, document.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, document.ErrDenied):
		return http.StatusForbidden
	case errors.Is(err, document.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, document.ErrRetentionLock):
		return http.StatusLocked
	case document.ReasonOf(err) == document.ReasonCanceled:
		return statusClientClosed
	default:
		return http.StatusServiceUnavailable
	}
}

// writeError renders err. Infrastructure causes are not echoed to clients.
func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	body := gin.H{"error": http.StatusText(status), "reason": document.ReasonOf(err)}
	switch status {
	case http.StatusServiceUnavailable:
		body["reason"] = "infrastructure"
		_ = c.Error(err)
	case statusClientClosed:
		body["error"] = "request canceled"
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest), "reason": msg})
}
