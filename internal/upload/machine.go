// Package upload drives one spreadsheet at a time from submission through
// parsing to a completed or failed upload record.
package upload

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/sheetviz/backend/internal/logger"
	"github.com/sheetviz/backend/internal/models"
	"github.com/sheetviz/backend/internal/spreadsheet"
	"github.com/sheetviz/backend/internal/state"
	"github.com/sheetviz/backend/internal/storage"
)

var (
	// ErrInvalidFormat is returned when neither the file extension nor the
	// declared content type names a spreadsheet.
	ErrInvalidFormat = errors.New("invalid file format")
	// ErrUploadInProgress is returned by Submit and Reset while processing.
	ErrUploadInProgress = errors.New("an upload is already being processed")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("upload machine closed")
)

// State is the machine's lifecycle position.
type State string

const (
	StateIdle       State = "idle"
	StateSelected   State = "selected"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// DefaultContentTypes are the spreadsheet MIME types accepted on their own.
var DefaultContentTypes = []string{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-excel",
}

// DefaultExtensions are the accepted file extensions.
var DefaultExtensions = []string{".xlsx", ".xls"}

// File describes a submitted file already written to scratch storage.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Path        string
	// ScratchID is passed to Scratch.Delete once processing ends.
	ScratchID string
	// Encoding is "gzip" when the client compressed the body.
	Encoding string
}

// Status is a point-in-time view of the machine.
type Status struct {
	State    State   `json:"state"`
	UploadID string  `json:"uploadId,omitempty"`
	Filename string  `json:"filename,omitempty"`
	Stage    string  `json:"stage,omitempty"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error,omitempty"`
}

// ParserFinder picks a spreadsheet parser from a file name, falling back to
// its content type.
type ParserFinder interface {
	FindParser(filename, contentType string) (spreadsheet.Parser, error)
}

// DatasetWriter stores parsed rows for later chart queries.
type DatasetWriter interface {
	Put(ctx context.Context, uploadID string, sheet *models.Sheet) error
}

// Scratch removes uploaded bytes that are no longer needed.
type Scratch interface {
	Delete(id string) error
}

// Options configures a Machine.
type Options struct {
	Delay        time.Duration
	Extensions   []string
	// MaxBytes bounds a decompressed upload. Zero disables the bound.
	MaxBytes     int64
	ContentTypes []string
	Datasets     DatasetWriter
	Scratch      Scratch
	Logger       logger.Logger
	NewID        func() string
}

// Machine handles async upload processing.
type Machine struct {
	mu     sync.RWMutex
	status Status
	closed bool

	store    *state.Store
	parsers  ParserFinder
	datasets DatasetWriter
	scratch  Scratch
	log      logger.Logger

	delay        time.Duration
	maxBytes     int64
	extensions   []string
	contentTypes []string
	newID        func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMachine creates an idle machine writing into store.
func NewMachine(store *state.Store, parsers ParserFinder, opts Options) *Machine {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		status:       Status{State: StateIdle},
		store:        store,
		parsers:      parsers,
		datasets:     opts.Datasets,
		scratch:      opts.Scratch,
		log:          opts.Logger,
		delay:        opts.Delay,
		maxBytes:     opts.MaxBytes,
		extensions:   opts.Extensions,
		contentTypes: opts.ContentTypes,
		newID:        opts.NewID,
		ctx:          ctx,
		cancel:       cancel,
	}
	if m.log == nil {
		m.log = logger.NewNop()
	}
	if len(m.extensions) == 0 {
		m.extensions = DefaultExtensions
	}
	if len(m.contentTypes) == 0 {
		m.contentTypes = DefaultContentTypes
	}
	if m.newID == nil {
		m.newID = func() string { return uuid.New().String() }
	}
	return m
}

// Accepts reports whether the file is a spreadsheet by extension or by
// declared content type. An empty or generic content type is sniffed from
// the scratch file.
func (m *Machine) Accepts(f File) bool {
	ext := strings.ToLower(filepath.Ext(f.Name))
	for _, e := range m.extensions {
		if ext == e {
			return true
		}
	}
	sniff := f.Path
	if f.Encoding != "" {
		sniff = ""
	}
	ct := effectiveContentType(f.ContentType, sniff)
	for _, allowed := range m.contentTypes {
		if ct == allowed {
			return true
		}
	}
	return false
}

// effectiveContentType returns the declared type, or the type sniffed from
// path when the declaration is empty or generic.
func effectiveContentType(declared, path string) string {
	ct := normalizeContentType(declared)
	if (ct == "" || ct == "application/octet-stream") && path != "" {
		if mt, err := mimetype.DetectFile(path); err == nil {
			ct = normalizeContentType(mt.String())
		}
	}
	return ct
}

func normalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// Submit validates the file, appends a processing record to the upload log
// and starts processing. The returned record is a copy.
func (m *Machine) Submit(f File) (*models.UploadRecord, error) {
	if !m.Accepts(f) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, f.Name)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.status.State == StateProcessing {
		m.mu.Unlock()
		return nil, ErrUploadInProgress
	}

	m.status = Status{State: StateSelected, Filename: f.Name}
	rec := models.NewUploadRecord(m.newID(), f.Name, f.Size)
	if err := m.store.AddUpload(rec); err != nil {
		m.status = Status{State: StateIdle}
		m.mu.Unlock()
		return nil, err
	}
	m.status = Status{State: StateProcessing, UploadID: rec.ID, Filename: f.Name, Stage: "queued"}
	m.wg.Add(1)
	m.mu.Unlock()

	m.log.Info("upload", "upload accepted", map[string]interface{}{
		"upload":   logger.ShortID(rec.ID),
		"filename": f.Name,
		"size":     f.Size,
	})

	go m.process(rec.ID, f)
	return rec.Clone(), nil
}

// process runs on its own goroutine; every outcome is written to the store.
func (m *Machine) process(id string, f File) {
	defer m.wg.Done()
	defer m.releaseScratch(f)
	defer func() {
		if r := recover(); r != nil {
			m.markFailed(id, fmt.Sprintf("internal error: %v", r))
		}
	}()

	start := time.Now()
	m.updateStage(id, "waiting", 10)
	if err := sleepContext(m.ctx, m.delay); err != nil {
		m.markFailed(id, "upload canceled")
		return
	}

	path := f.Path
	if f.Encoding == "gzip" {
		m.updateStage(id, "decompressing", 20)
		unpacked, err := decompress(f.Path, m.maxBytes)
		if err != nil {
			m.markFailed(id, fmt.Sprintf("failed to decompress file: %v", err))
			return
		}
		defer os.Remove(unpacked)
		path = unpacked
	}

	p, err := m.parsers.FindParser(f.Name, effectiveContentType(f.ContentType, path))
	if err != nil {
		m.markFailed(id, err.Error())
		return
	}

	m.updateStage(id, "parsing", 40)
	sheet, err := p.Parse(m.ctx, path)
	if err != nil {
		m.markFailed(id, m.failureReason(err))
		return
	}

	if m.datasets != nil {
		m.updateStage(id, "storing", 80)
		if err := m.datasets.Put(m.ctx, id, sheet); err != nil {
			m.markFailed(id, m.failureReason(fmt.Errorf("failed to store rows: %w", err)))
			return
		}
	}

	if err := m.ctx.Err(); err != nil {
		m.markFailed(id, "upload canceled")
		return
	}
	if err := m.store.CompleteUpload(id, sheet.RowCount(), sheet.Columns); err != nil {
		m.markFailed(id, err.Error())
		return
	}
	m.markComplete(id)

	m.log.Info("upload", "upload processed", map[string]interface{}{
		"upload":  logger.ShortID(id),
		"parser":  p.Name(),
		"rows":    sheet.RowCount(),
		"columns": len(sheet.Columns),
		"elapsed": time.Since(start).String(),
	})
}

func (m *Machine) failureReason(err error) string {
	if errors.Is(err, context.Canceled) || m.ctx.Err() != nil {
		return "upload canceled"
	}
	return err.Error()
}

func (m *Machine) releaseScratch(f File) {
	if m.scratch == nil || f.ScratchID == "" {
		return
	}
	if err := m.scratch.Delete(f.ScratchID); err != nil {
		m.log.Warn("upload", "failed to remove scratch file", map[string]interface{}{
			"scratch": f.ScratchID,
			"error":   err,
		})
	}
}

// updateStage updates progress (thread-safe).
func (m *Machine) updateStage(id, stage string, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.UploadID != id {
		return
	}
	m.status.Stage = stage
	m.status.Progress = progress
}

// markComplete marks the machine completed (thread-safe).
func (m *Machine) markComplete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.UploadID != id {
		return
	}
	m.status.State = StateCompleted
	m.status.Stage = ""
	m.status.Progress = 100
}

// markFailed records the failure on the upload and the machine (thread-safe).
// Records that already reached a terminal status are left alone.
func (m *Machine) markFailed(id, reason string) {
	if err := m.store.FailUpload(id, reason); err != nil {
		m.log.Debug("upload", "fail transition skipped", map[string]interface{}{
			"upload": logger.ShortID(id),
			"error":  err,
		})
		return
	}

	m.mu.Lock()
	if m.status.UploadID == id {
		m.status.State = StateFailed
		m.status.Stage = ""
		m.status.Error = reason
	}
	m.mu.Unlock()

	m.log.Warn("upload", "upload failed", map[string]interface{}{
		"upload": logger.ShortID(id),
		"reason": reason,
	})
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.State
}

// Status returns a copy of the current status.
func (m *Machine) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Reset returns the machine to idle. The upload log is not touched.
func (m *Machine) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.State == StateProcessing {
		return ErrUploadInProgress
	}
	m.status = Status{State: StateIdle}
	return nil
}

// Wait blocks until in-flight processing has finished.
func (m *Machine) Wait() {
	m.wg.Wait()
}

// Close cancels in-flight processing and waits for it to end.
func (m *Machine) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// decompress gunzips path into a sibling file and returns its path. Output
// beyond maxBytes fails with storage.ErrTooLarge.
func decompress(path string, maxBytes int64) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	reader, err := gzip.NewReader(in)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	outPath := path + ".unpacked"
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	var src io.Reader = reader
	if maxBytes > 0 {
		src = io.LimitReader(reader, maxBytes+1)
	}
	n, err := io.Copy(out, src)
	if err == nil && maxBytes > 0 && n > maxBytes {
		err = storage.ErrTooLarge
	}
	if err != nil {
		out.Close()
		os.Remove(outPath)
		if errors.Is(err, storage.ErrTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("read error: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(outPath)
		return "", err
	}
	return outPath, nil
}
