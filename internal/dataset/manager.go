package dataset

import (
	"context"
	"fmt"
	"sync"

	"github.com/sheetviz/backend/internal/logger"
	"github.com/sheetviz/backend/internal/models"
)

// Manager owns one Store per upload.
type Manager struct {
	mu      sync.RWMutex
	stores  map[string]*Store
	tempDir string
	log     logger.Logger
}

func NewManager(tempDir string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		stores:  make(map[string]*Store),
		tempDir: tempDir,
		log:     log,
	}
}

// Put stores the sheet for uploadID, replacing a previous dataset.
func (m *Manager) Put(ctx context.Context, uploadID string, sheet *models.Sheet) error {
	m.Drop(uploadID)

	st, err := NewStore(m.tempDir, uploadID)
	if err != nil {
		return err
	}
	if err := st.Load(ctx, sheet); err != nil {
		st.Close()
		return err
	}

	m.mu.Lock()
	m.stores[uploadID] = st
	m.mu.Unlock()

	m.log.Debug("dataset", "dataset stored", map[string]interface{}{
		"upload": logger.ShortID(uploadID),
		"rows":   sheet.RowCount(),
		"cols":   len(sheet.Columns),
	})
	return nil
}

// Rows returns projected rows of an upload's dataset.
func (m *Manager) Rows(ctx context.Context, uploadID string, columns []string, limit int) ([]models.Row, error) {
	m.mu.RLock()
	st, ok := m.stores[uploadID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no dataset for upload: %s", uploadID)
	}
	return st.Rows(ctx, columns, limit)
}

// Has reports whether a dataset exists for the upload.
func (m *Manager) Has(uploadID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.stores[uploadID]
	return ok
}

// Drop closes and removes one dataset.
func (m *Manager) Drop(uploadID string) {
	m.mu.Lock()
	st, ok := m.stores[uploadID]
	delete(m.stores, uploadID)
	m.mu.Unlock()
	if ok {
		st.Close()
	}
}

// Close removes every dataset.
func (m *Manager) Close() error {
	m.mu.Lock()
	stores := m.stores
	m.stores = make(map[string]*Store)
	m.mu.Unlock()

	for _, st := range stores {
		st.Close()
	}
	return nil
}
