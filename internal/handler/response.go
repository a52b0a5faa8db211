package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"crmsync/internal/service"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// syncResponse is the body of the sync invocation endpoints, which callers
// poll with auto_mode until is_complete turns true.
type syncResponse struct {
	Success    bool           `json:"success"`
	DurationMS int64          `json:"duration_ms"`
	IsComplete bool           `json:"is_complete"`
	Results    map[string]any `json:"results"`
}

type syncErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

func SyncOk(c *gin.Context, duration time.Duration, complete bool, results map[string]any) {
	c.JSON(http.StatusOK, syncResponse{
		Success:    true,
		DurationMS: duration.Milliseconds(),
		IsComplete: complete,
		Results:    results,
	})
}

func SyncError(c *gin.Context, status int, err error) {
	c.JSON(status, syncErrorResponse{
		Success:   false,
		Error:     err.Error(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func syncErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrOriginRequired), errors.Is(err, service.ErrUnknownEntity):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrSyncDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
