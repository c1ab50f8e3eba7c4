// handlers_chart.go - Chart generation, lookup and export handlers
package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/sheetviz/backend/internal/chart"
	"github.com/sheetviz/backend/internal/logger"
	"github.com/sheetviz/backend/internal/models"
	"github.com/sheetviz/backend/internal/render"
	"github.com/sheetviz/backend/internal/state"
)

const (
	mimeMsgpack = "application/msgpack"
	mimeDocx    = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// ChartHandlerImpl implements the ChartHandler interface
type ChartHandlerImpl struct {
	state     *state.Store
	generator ChartService
	renderer  ChartRenderer
	log       logger.Logger
}

// NewChartHandler creates a new chart handler instance
func NewChartHandler(st *state.Store, generator ChartService, renderer ChartRenderer, log logger.Logger) ChartHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ChartHandlerImpl{
		state:     st,
		generator: generator,
		renderer:  renderer,
		log:       log,
	}
}

// HandleGenerate starts a chart generation. The record is committed in the
// background; clients follow the state feed or poll the current chart.
func (h *ChartHandlerImpl) HandleGenerate(c echo.Context) error {
	var req chart.Request
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if _, err := h.generator.Generate(req); err != nil {
		return FromDomainError(err)
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"status": "generating",
	})
}

// HandleListCharts returns chart summaries in creation order
func (h *ChartHandlerImpl) HandleListCharts(c echo.Context) error {
	charts := h.state.Charts()
	out := make([]models.ChartSummary, len(charts))
	for i, rec := range charts {
		out[i] = rec.Summary()
	}
	return c.JSON(http.StatusOK, out)
}

// HandleGetCurrent returns the current chart, or 204 when there is none
func (h *ChartHandlerImpl) HandleGetCurrent(c echo.Context) error {
	rec, ok := h.state.CurrentChart()
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, rec)
}

// HandleSetCurrent selects an existing chart as current
func (h *ChartHandlerImpl) HandleSetCurrent(c echo.Context) error {
	var req setCurrentRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	if err := h.generator.SetCurrent(req.ID); err != nil {
		return FromDomainError(err)
	}
	rec, _ := h.state.CurrentChart()
	return c.JSON(http.StatusOK, rec)
}

// HandleGetChart returns a chart record with its data
func (h *ChartHandlerImpl) HandleGetChart(c echo.Context) error {
	rec, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// HandleGetSeries returns the plotted series of a chart
func (h *ChartHandlerImpl) HandleGetSeries(c echo.Context) error {
	rec, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, render.BuildSeries(rec))
}

// HandleGetDataMsgpack returns the chart record using MessagePack encoding
func (h *ChartHandlerImpl) HandleGetDataMsgpack(c echo.Context) error {
	rec, err := h.lookup(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(rec)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}

	return c.Blob(http.StatusOK, mimeMsgpack, data)
}

// HandleExportPNG renders the chart and returns it as a PNG download
func (h *ChartHandlerImpl) HandleExportPNG(c echo.Context) error {
	rec, err := h.lookup(c)
	if err != nil {
		return err
	}
	w, hgt, err := imageSize(c)
	if err != nil {
		return err
	}

	data, err := h.renderer.RenderPNG(rec, w, hgt)
	if err != nil {
		return FromDomainError(err)
	}

	setAttachment(c, render.ExportFilename(rec.Title, ".png"))
	return c.Blob(http.StatusOK, "image/png", data)
}

// HandleExportDocument renders the chart into a paginated DOCX document
func (h *ChartHandlerImpl) HandleExportDocument(c echo.Context) error {
	rec, err := h.lookup(c)
	if err != nil {
		return err
	}
	w, hgt, err := imageSize(c)
	if err != nil {
		return err
	}

	img, err := h.renderer.RenderImage(rec, w, hgt)
	if err != nil {
		return FromDomainError(err)
	}
	data, err := render.ExportDocument(rec.Title, img)
	if err != nil {
		return NewInternalError("failed to build document", err)
	}

	h.log.Debug("api", "chart exported", map[string]interface{}{
		"chart": logger.ShortID(rec.ID),
		"bytes": len(data),
	})

	setAttachment(c, render.ExportFilename(rec.Title, ".docx"))
	return c.Blob(http.StatusOK, mimeDocx, data)
}

func (h *ChartHandlerImpl) lookup(c echo.Context) (*models.ChartRecord, error) {
	id := c.Param("id")
	if id == "" {
		return nil, NewValidationError("id")
	}

	rec, ok := h.state.Chart(id)
	if !ok {
		return nil, NewNotFoundError("chart", id)
	}
	return rec, nil
}

// Request/Response types

type setCurrentRequest struct {
	ID string `json:"id"`
}

func (r *setCurrentRequest) validate() error {
	if r.ID == "" {
		return NewValidationError("id")
	}
	return nil
}

// Helper functions

// imageSize reads the optional width and height query parameters.
func imageSize(c echo.Context) (int, int, error) {
	w, err := intQuery(c, "width", render.DefaultWidth)
	if err != nil {
		return 0, 0, err
	}
	h, err := intQuery(c, "height", render.DefaultHeight)
	if err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

func intQuery(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, NewValidationError(name)
	}
	return v, nil
}

func setAttachment(c echo.Context, filename string) {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
}
