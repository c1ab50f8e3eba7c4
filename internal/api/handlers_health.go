// handlers_health.go - Health check handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sheetviz/backend/internal/state"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	started time.Time
	state   *state.Store
	uploads UploadService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, st *state.Store, uploads UploadService) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		started: time.Now(),
		state:   st,
		uploads: uploads,
	}
}

// HandleHealth returns server health status with the worker positions
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	}
	if h.uploads != nil {
		resp["upload"] = h.uploads.Status().State
	}
	if h.state != nil {
		resp["generating"] = h.state.IsGenerating()
	}
	return c.JSON(http.StatusOK, resp)
}
