// handlers_state.go - Shared dashboard state handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sheetviz/backend/internal/state"
)

// StateHandlerImpl implements the StateHandler interface
type StateHandlerImpl struct {
	state     *state.Store
	generator ChartService
	usage     func() int64
}

// NewStateHandler creates a new state handler. usage, when set, reports the
// bytes currently held in scratch storage.
func NewStateHandler(st *state.Store, generator ChartService, usage func() int64) StateHandler {
	return &StateHandlerImpl{
		state:     st,
		generator: generator,
		usage:     usage,
	}
}

// HandleGetColumns returns the column registry
func (h *StateHandlerImpl) HandleGetColumns(c echo.Context) error {
	return c.JSON(http.StatusOK, h.state.Columns())
}

// HandleGetState returns a consistent snapshot of the whole state
func (h *StateHandlerImpl) HandleGetState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.state.Snapshot())
}

// HandleClearError resets the published generation error
func (h *StateHandlerImpl) HandleClearError(c echo.Context) error {
	h.generator.ClearError()
	return c.NoContent(http.StatusNoContent)
}

// HandleDashboardStats returns the dashboard totals
func (h *StateHandlerImpl) HandleDashboardStats(c echo.Context) error {
	stats := h.state.Stats()
	resp := map[string]interface{}{
		"totalUploads": stats.TotalUploads,
		"totalCharts":  stats.TotalCharts,
		"storageUsed":  stats.StorageUsed,
	}
	if h.usage != nil {
		resp["scratchBytes"] = h.usage()
	}
	return c.JSON(http.StatusOK, resp)
}
