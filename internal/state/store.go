// Package state holds the process-wide dashboard state: the upload log, the
// column registry, the chart log and the generation flag.
//
// All mutations go through Store methods and are applied under one lock, so
// readers never observe a partially applied change. Readers receive copies.
package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sheetviz/backend/internal/models"
)

// ErrGenerationInProgress is returned by BeginGeneration while another
// generation has not finished.
var ErrGenerationInProgress = errors.New("a chart generation is already in progress")

// EventKind identifies a state change.
type EventKind string

const (
	EventUploadAdded         EventKind = "upload:added"
	EventUploadCompleted     EventKind = "upload:completed"
	EventUploadFailed        EventKind = "upload:failed"
	EventColumnsPublished    EventKind = "columns:published"
	EventGenerationStarted   EventKind = "chart:generating"
	EventChartGenerated      EventKind = "chart:generated"
	EventGenerationFailed    EventKind = "chart:failed"
	EventCurrentChartChanged EventKind = "chart:current"
	EventErrorCleared        EventKind = "error:cleared"
)

// Event describes one applied mutation.
type Event struct {
	Kind     EventKind `json:"type"`
	UploadID string    `json:"uploadId,omitempty"`
	ChartID  string    `json:"chartId,omitempty"`
	Columns  []string  `json:"columns,omitempty"`
	Message  string    `json:"message,omitempty"`
	Seq      uint64    `json:"seq"`
	At       time.Time `json:"at"`
}

// ColumnRegistry is the set of columns exposed by the latest completed upload.
type ColumnRegistry struct {
	UploadID string   `json:"uploadId"`
	Columns  []string `json:"columns"`
}

// Contains reports whether name is a registered column.
func (r ColumnRegistry) Contains(name string) bool {
	for _, c := range r.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Snapshot is a consistent view of the whole state.
type Snapshot struct {
	Uploads        []*models.UploadRecord `json:"uploads"`
	Columns        ColumnRegistry         `json:"availableColumns"`
	Charts         []models.ChartSummary  `json:"charts"`
	CurrentChartID string                 `json:"currentChartId,omitempty"`
	IsGenerating   bool                   `json:"isGenerating"`
	Error          string                 `json:"error,omitempty"`
	Stats          models.DashboardStats  `json:"stats"`
}

// Store is the application state container.
type Store struct {
	mu         sync.RWMutex
	uploads    []*models.UploadRecord // newest first
	uploadIdx  map[string]*models.UploadRecord
	columns    ColumnRegistry
	charts     []*models.ChartRecord // creation order
	chartIdx   map[string]*models.ChartRecord
	current    *models.ChartRecord
	generating bool
	lastError  string

	seq     uint64
	subs    map[int]chan Event
	nextSub int
	onDrop  func(Event)
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		uploadIdx: make(map[string]*models.UploadRecord),
		chartIdx:  make(map[string]*models.ChartRecord),
		columns:   ColumnRegistry{Columns: []string{}},
		subs:      make(map[int]chan Event),
	}
}

// OnDrop registers a callback invoked when a slow subscriber misses an event.
func (s *Store) OnDrop(fn func(Event)) {
	s.mu.Lock()
	s.onDrop = fn
	s.mu.Unlock()
}

// Subscribe returns a channel receiving events in mutation order and a
// function that ends the subscription.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// emit must be called with s.mu held for writing.
func (s *Store) emit(e Event) {
	s.seq++
	e.Seq = s.seq
	e.At = time.Now()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
			if s.onDrop != nil {
				s.onDrop(e)
			}
		}
	}
}

// AddUpload prepends a new record to the upload log.
func (s *Store) AddUpload(rec *models.UploadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.uploadIdx[rec.ID]; exists {
		return fmt.Errorf("upload already recorded: %s", rec.ID)
	}
	c := rec.Clone()
	s.uploads = append([]*models.UploadRecord{c}, s.uploads...)
	s.uploadIdx[c.ID] = c
	s.emit(Event{Kind: EventUploadAdded, UploadID: c.ID})
	return nil
}

// CompleteUpload publishes the upload's columns to the registry and then
// marks it completed. Both happen in one critical section; subscribers see
// the columns event first.
func (s *Store) CompleteUpload(id string, rowCount int, columns []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.uploadIdx[id]
	if !ok {
		return fmt.Errorf("upload not found: %s", id)
	}
	if rec.IsTerminal() {
		return fmt.Errorf("upload %s already %s", id, rec.Status)
	}

	cols := append([]string(nil), columns...)
	s.columns = ColumnRegistry{UploadID: id, Columns: cols}
	s.emit(Event{Kind: EventColumnsPublished, UploadID: id, Columns: append([]string(nil), cols...)})

	rec.RowCount = rowCount
	rec.Columns = append([]string(nil), cols...)
	rec.Status = models.UploadStatusCompleted
	s.emit(Event{Kind: EventUploadCompleted, UploadID: id})
	return nil
}

// FailUpload marks an upload failed. The column registry is not touched.
func (s *Store) FailUpload(id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.uploadIdx[id]
	if !ok {
		return fmt.Errorf("upload not found: %s", id)
	}
	if rec.IsTerminal() {
		return fmt.Errorf("upload %s already %s", id, rec.Status)
	}
	rec.Status = models.UploadStatusFailed
	rec.Error = reason
	s.emit(Event{Kind: EventUploadFailed, UploadID: id, Message: reason})
	return nil
}

// Uploads returns the upload log, newest first.
func (s *Store) Uploads() []*models.UploadRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uploadsLocked()
}

func (s *Store) uploadsLocked() []*models.UploadRecord {
	out := make([]*models.UploadRecord, len(s.uploads))
	for i, u := range s.uploads {
		out[i] = u.Clone()
	}
	return out
}

// Upload returns one upload record.
func (s *Store) Upload(id string) (*models.UploadRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.uploadIdx[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Columns returns a snapshot of the column registry.
func (s *Store) Columns() ColumnRegistry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ColumnRegistry{UploadID: s.columns.UploadID, Columns: append([]string{}, s.columns.Columns...)}
}

// BeginGeneration sets the generating flag and clears the last error.
// It fails with ErrGenerationInProgress when the flag is already set.
func (s *Store) BeginGeneration() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generating {
		return ErrGenerationInProgress
	}
	s.generating = true
	s.lastError = ""
	s.emit(Event{Kind: EventGenerationStarted})
	return nil
}

// FinishGeneration appends the chart, makes it current and clears the flag.
func (s *Store) FinishGeneration(rec *models.ChartRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.charts = append(s.charts, rec)
	s.chartIdx[rec.ID] = rec
	s.current = rec
	if up, ok := s.uploadIdx[rec.UploadID]; ok {
		up.ChartsGenerated++
	}
	s.generating = false
	s.emit(Event{Kind: EventChartGenerated, ChartID: rec.ID, UploadID: rec.UploadID})
}

// FailGeneration clears the flag and records the error without touching the chart log.
func (s *Store) FailGeneration(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if message == "" {
		message = "Failed to generate chart"
	}
	s.generating = false
	s.lastError = message
	s.emit(Event{Kind: EventGenerationFailed, Message: message})
}

// IsGenerating reports whether a generation is in flight.
func (s *Store) IsGenerating() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generating
}

// LastError returns the last generation error message.
func (s *Store) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// ClearError resets the last generation error.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastError == "" {
		return
	}
	s.lastError = ""
	s.emit(Event{Kind: EventErrorCleared})
}

// Charts returns the chart log in creation order.
// Records are immutable once stored and are shared, not copied.
func (s *Store) Charts() []*models.ChartRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.ChartRecord(nil), s.charts...)
}

// Chart returns a chart by ID.
func (s *Store) Chart(id string) (*models.ChartRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.chartIdx[id]
	return rec, ok
}

// CurrentChart returns the most recently generated or selected chart.
func (s *Store) CurrentChart() (*models.ChartRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.current != nil
}

// SetCurrentChart points the current chart at an existing record.
func (s *Store) SetCurrentChart(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.chartIdx[id]
	if !ok {
		return fmt.Errorf("chart not found: %s", id)
	}
	s.current = rec
	s.emit(Event{Kind: EventCurrentChartChanged, ChartID: id})
	return nil
}

// Stats aggregates the dashboard totals.
func (s *Store) Stats() models.DashboardStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statsLocked()
}

func (s *Store) statsLocked() models.DashboardStats {
	st := models.DashboardStats{
		TotalUploads: len(s.uploads),
		TotalCharts:  len(s.charts),
	}
	for _, u := range s.uploads {
		st.StorageUsed += u.FileSize
	}
	return st
}

// Snapshot returns a consistent copy of the whole state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	charts := make([]models.ChartSummary, len(s.charts))
	for i, c := range s.charts {
		charts[i] = c.Summary()
	}
	snap := Snapshot{
		Uploads:      s.uploadsLocked(),
		Columns:      ColumnRegistry{UploadID: s.columns.UploadID, Columns: append([]string{}, s.columns.Columns...)},
		Charts:       charts,
		IsGenerating: s.generating,
		Error:        s.lastError,
		Stats:        s.statsLocked(),
	}
	if s.current != nil {
		snap.CurrentChartID = s.current.ID
	}
	return snap
}
