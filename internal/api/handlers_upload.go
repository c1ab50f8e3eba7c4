// handlers_upload.go - Spreadsheet upload handlers
package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sheetviz/backend/internal/logger"
	"github.com/sheetviz/backend/internal/state"
	"github.com/sheetviz/backend/internal/storage"
	"github.com/sheetviz/backend/internal/upload"
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	store   storage.Store
	state   *state.Store
	machine UploadService
	log     logger.Logger
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(store storage.Store, st *state.Store, machine UploadService, log logger.Logger) UploadHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &UploadHandlerImpl{
		store:   store,
		state:   st,
		machine: machine,
		log:     log,
	}
}

// HandleSubmit accepts a multipart spreadsheet, saves it to scratch storage
// and hands it to the upload machine. Processing continues in the background.
func (h *UploadHandlerImpl) HandleSubmit(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	req := submitRequest{Encoding: c.FormValue("encoding")}
	if err := req.validate(); err != nil {
		return err
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	contentType := file.Header.Get(echo.HeaderContentType)
	info, err := h.store.Save(file.Filename, contentType, src)
	if err != nil {
		return FromDomainError(err)
	}
	path, err := h.store.GetFilePath(info.ID)
	if err != nil {
		h.store.Delete(info.ID)
		return NewInternalError("failed to locate saved file", err)
	}

	rec, err := h.machine.Submit(upload.File{
		Name:        info.Name,
		ContentType: contentType,
		Size:        file.Size,
		Path:        path,
		ScratchID:   info.ID,
		Encoding:    req.encoding(),
	})
	if err != nil {
		// Rejected files never reach processing, so the scratch copy is ours.
		h.store.Delete(info.ID)
		h.log.Info("api", "upload rejected", map[string]interface{}{
			"filename": info.Name,
			"reason":   err.Error(),
		})
		return FromDomainError(err)
	}

	return c.JSON(http.StatusAccepted, rec)
}

// HandleListUploads returns the upload log, newest first
func (h *UploadHandlerImpl) HandleListUploads(c echo.Context) error {
	return c.JSON(http.StatusOK, h.state.Uploads())
}

// HandleGetUpload returns one upload record
func (h *UploadHandlerImpl) HandleGetUpload(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	rec, ok := h.state.Upload(id)
	if !ok {
		return NewNotFoundError("upload", id)
	}
	return c.JSON(http.StatusOK, rec)
}

// HandleUploadState returns the state machine position
func (h *UploadHandlerImpl) HandleUploadState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.machine.Status())
}

// HandleReset returns the machine to idle
func (h *UploadHandlerImpl) HandleReset(c echo.Context) error {
	if err := h.machine.Reset(); err != nil {
		return FromDomainError(err)
	}
	return c.JSON(http.StatusOK, h.machine.Status())
}

// Request/Response types

type submitRequest struct {
	Encoding string
}

func (r *submitRequest) validate() error {
	switch strings.ToLower(strings.TrimSpace(r.Encoding)) {
	case "", "none", "identity", "gzip":
		return nil
	}
	return NewValidationError("encoding")
}

func (r *submitRequest) encoding() string {
	if strings.EqualFold(strings.TrimSpace(r.Encoding), "gzip") {
		return "gzip"
	}
	return ""
}
