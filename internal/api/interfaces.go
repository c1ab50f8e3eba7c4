// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"image"

	"github.com/labstack/echo/v4"

	"github.com/sheetviz/backend/internal/chart"
	"github.com/sheetviz/backend/internal/models"
	"github.com/sheetviz/backend/internal/upload"
)

// UploadHandler handles spreadsheet submission and the upload log
type UploadHandler interface {
	HandleSubmit(c echo.Context) error
	HandleListUploads(c echo.Context) error
	HandleGetUpload(c echo.Context) error
	HandleUploadState(c echo.Context) error
	HandleReset(c echo.Context) error
}

// ChartHandler handles chart generation, lookup and export
type ChartHandler interface {
	HandleGenerate(c echo.Context) error
	HandleListCharts(c echo.Context) error
	HandleGetCurrent(c echo.Context) error
	HandleSetCurrent(c echo.Context) error
	HandleGetChart(c echo.Context) error
	HandleGetSeries(c echo.Context) error
	HandleGetDataMsgpack(c echo.Context) error
	HandleExportPNG(c echo.Context) error
	HandleExportDocument(c echo.Context) error
}

// StateHandler exposes the shared dashboard state
type StateHandler interface {
	HandleGetColumns(c echo.Context) error
	HandleGetState(c echo.Context) error
	HandleClearError(c echo.Context) error
	HandleDashboardStats(c echo.Context) error
}

// UserHandler handles identity and the admin user list
type UserHandler interface {
	HandleMe(c echo.Context) error
	HandleListUsers(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// StreamHandler handles websocket endpoints
type StreamHandler interface {
	HandleStateStream(c echo.Context) error
	HandleScene(c echo.Context) error
}

// UploadService is the upload state machine as seen by the API.
// This allows mocking in tests
type UploadService interface {
	Submit(f upload.File) (*models.UploadRecord, error)
	Status() upload.Status
	Reset() error
}

// ChartService is the chart generator as seen by the API.
type ChartService interface {
	Generate(req chart.Request) (*chart.Task, error)
	SetCurrent(id string) error
	ClearError()
}

// ChartRenderer draws chart records for export.
type ChartRenderer interface {
	RenderPNG(rec *models.ChartRecord, width, height int) ([]byte, error)
	RenderImage(rec *models.ChartRecord, width, height int) (image.Image, error)
}

// UserDirectory resolves request identities.
type UserDirectory interface {
	Lookup(id string) (*models.User, error)
	List() []models.User
}
