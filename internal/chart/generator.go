// Package chart turns an axis selection over an uploaded dataset into an
// immutable chart record.
package chart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sheetviz/backend/internal/logger"
	"github.com/sheetviz/backend/internal/models"
	"github.com/sheetviz/backend/internal/state"
)

var (
	// ErrCanceled is the outcome of a task canceled before commit.
	ErrCanceled = errors.New("chart generation canceled")
	// ErrChartNotFound is returned by SetCurrent for unknown ids.
	ErrChartNotFound = errors.New("chart not found")
)

// ValidationError reports a request rejected before any work started.
type ValidationError struct {
	Field  string
	Reason string
	// Conflict is set when another generation is in flight.
	Conflict bool
	Err      error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// RowSource loads projected rows of an upload's dataset.
type RowSource interface {
	Rows(ctx context.Context, uploadID string, columns []string, limit int) ([]models.Row, error)
}

// Request describes the chart to generate. When Data is nil the rows are
// loaded from the upload's dataset.
type Request struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	XAxis    string       `json:"xAxis"`
	YAxis    string       `json:"yAxis"`
	UploadID string       `json:"uploadId,omitempty"`
	Data     []models.Row `json:"data,omitempty"`
}

// Options configures a Generator.
type Options struct {
	Delay   time.Duration
	Rows    RowSource
	MaxRows int
	Logger  logger.Logger
	NewID   func() string
}

// Generator runs at most one chart generation at a time.
type Generator struct {
	store   *state.Store
	rows    RowSource
	delay   time.Duration
	maxRows int
	log     logger.Logger
	newID   func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGenerator creates a generator committing into store.
func NewGenerator(store *state.Store, opts Options) *Generator {
	ctx, cancel := context.WithCancel(context.Background())
	g := &Generator{
		store:   store,
		rows:    opts.Rows,
		delay:   opts.Delay,
		maxRows: opts.MaxRows,
		log:     opts.Logger,
		newID:   opts.NewID,
		ctx:     ctx,
		cancel:  cancel,
	}
	if g.log == nil {
		g.log = logger.NewNop()
	}
	if g.newID == nil {
		g.newID = func() string { return uuid.New().String() }
	}
	return g
}

// Task is a handle to one running generation.
type Task struct {
	done   chan struct{}
	cancel context.CancelFunc
	result *models.ChartRecord
	err    error
}

// Done is closed once the task has committed or failed.
func (t *Task) Done() <-chan struct{} { return t.done }

// Result waits for the task and returns its record or error.
func (t *Task) Result() (*models.ChartRecord, error) {
	<-t.done
	return t.result, t.err
}

// Cancel asks the task to stop. A task past its commit point is unaffected.
func (t *Task) Cancel() { t.cancel() }

type validated struct {
	typ      models.ChartType
	title    string
	xAxis    string
	yAxis    string
	uploadID string
}

func (g *Generator) validate(req Request) (*validated, error) {
	v := &validated{
		title: strings.TrimSpace(req.Title),
		xAxis: strings.TrimSpace(req.XAxis),
		yAxis: strings.TrimSpace(req.YAxis),
	}
	switch {
	case v.title == "":
		return nil, &ValidationError{Field: "title", Reason: "title is required"}
	case v.xAxis == "":
		return nil, &ValidationError{Field: "xAxis", Reason: "x axis is required"}
	case v.yAxis == "":
		return nil, &ValidationError{Field: "yAxis", Reason: "y axis is required"}
	}

	typ, err := models.ParseChartType(req.Type)
	if err != nil {
		return nil, &ValidationError{Field: "type", Reason: err.Error(), Err: err}
	}
	v.typ = typ

	registry := g.store.Columns()
	if !registry.Contains(v.xAxis) {
		return nil, &ValidationError{Field: "xAxis", Reason: fmt.Sprintf("column %q is not available", v.xAxis)}
	}
	if !registry.Contains(v.yAxis) {
		return nil, &ValidationError{Field: "yAxis", Reason: fmt.Sprintf("column %q is not available", v.yAxis)}
	}

	v.uploadID = strings.TrimSpace(req.UploadID)
	if v.uploadID == "" {
		v.uploadID = registry.UploadID
	}
	if req.Data == nil && g.rows == nil {
		return nil, &ValidationError{Field: "data", Reason: "data is required"}
	}
	return v, nil
}

// Generate validates the request and starts a generation. Validation
// failures leave the shared state untouched.
func (g *Generator) Generate(req Request) (*Task, error) {
	v, err := g.validate(req)
	if err != nil {
		return nil, err
	}
	if err := g.ctx.Err(); err != nil {
		return nil, ErrCanceled
	}
	if err := g.store.BeginGeneration(); err != nil {
		return nil, &ValidationError{Reason: err.Error(), Conflict: true, Err: err}
	}

	ctx, cancel := context.WithCancel(g.ctx)
	task := &Task{done: make(chan struct{}), cancel: cancel}
	data := models.CloneRows(req.Data)

	g.wg.Add(1)
	go g.run(ctx, task, v, data)
	return task, nil
}

func (g *Generator) run(ctx context.Context, task *Task, v *validated, data []models.Row) {
	defer g.wg.Done()
	defer close(task.done)
	defer task.cancel()
	defer func() {
		if r := recover(); r != nil {
			g.fail(task, fmt.Errorf("internal error: %v", r))
		}
	}()

	if err := sleepContext(ctx, g.delay); err != nil {
		g.fail(task, ErrCanceled)
		return
	}

	if data == nil {
		cols := []string{v.xAxis}
		if v.yAxis != v.xAxis {
			cols = append(cols, v.yAxis)
		}
		rows, err := g.rows.Rows(ctx, v.uploadID, cols, g.maxRows)
		if err != nil {
			if ctx.Err() != nil {
				err = ErrCanceled
			}
			g.fail(task, err)
			return
		}
		data = rows
	}

	if ctx.Err() != nil {
		g.fail(task, ErrCanceled)
		return
	}

	rec := &models.ChartRecord{
		ID:        g.newID(),
		Type:      v.typ,
		Title:     v.title,
		XAxis:     v.xAxis,
		YAxis:     v.yAxis,
		Data:      data,
		CreatedAt: time.Now(),
		UploadID:  v.uploadID,
	}
	g.store.FinishGeneration(rec)
	task.result = rec

	g.log.Info("chart", "chart generated", map[string]interface{}{
		"chart": logger.ShortID(rec.ID),
		"type":  string(rec.Type),
		"rows":  len(rec.Data),
	})
}

func (g *Generator) fail(task *Task, err error) {
	task.err = err
	g.store.FailGeneration(err.Error())
	g.log.Warn("chart", "chart generation failed", map[string]interface{}{
		"error": err,
	})
}

// SetCurrent points the current chart at an existing record.
func (g *Generator) SetCurrent(id string) error {
	if err := g.store.SetCurrentChart(id); err != nil {
		return fmt.Errorf("%w: %s", ErrChartNotFound, id)
	}
	return nil
}

// ClearError resets the published generation error.
func (g *Generator) ClearError() {
	g.store.ClearError()
}

// Close cancels any running task and waits for it.
func (g *Generator) Close() error {
	g.cancel()
	g.wg.Wait()
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
