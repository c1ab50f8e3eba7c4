// Package storage keeps uploaded spreadsheet bytes on disk until they have
// been parsed.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sheetviz/backend/internal/models"
)

var (
	// ErrNotFound is returned for unknown file ids.
	ErrNotFound = errors.New("file not found")
	// ErrTooLarge is returned when a file exceeds the size limit.
	ErrTooLarge = errors.New("file exceeds size limit")
)

// Store defines the interface for scratch file storage.
type Store interface {
	Save(name, contentType string, r io.Reader) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(id string) error
	GetFilePath(id string) (string, error)
}

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	maxBytes  int64
	files     map[string]*models.FileInfo
}

// NewLocalStore creates a new LocalStore. maxBytes <= 0 disables the limit.
func NewLocalStore(uploadDir string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	return &LocalStore{
		uploadDir: uploadDir,
		maxBytes:  maxBytes,
		files:     make(map[string]*models.FileInfo),
	}, nil
}

// path keeps the original extension so content sniffing and parsers that
// look at names still work.
func (s *LocalStore) path(info *models.FileInfo) string {
	return filepath.Join(s.uploadDir, info.ID+strings.ToLower(filepath.Ext(info.Name)))
}

// Save writes r to a new scratch file.
func (s *LocalStore) Save(name, contentType string, r io.Reader) (*models.FileInfo, error) {
	info := &models.FileInfo{
		ID:          uuid.New().String(),
		Name:        filepath.Base(name),
		ContentType: contentType,
		UploadedAt:  time.Now(),
	}
	path := s.path(info)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	size, err := io.Copy(f, src)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		os.Remove(path)
		return nil, ErrTooLarge
	}
	info.Size = size

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[info.ID] = info

	return info, nil
}

// Get retrieves file metadata by ID.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c := *info
	return &c, nil
}

// List returns the most recent files. limit <= 0 returns all.
func (s *LocalStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		c := *info
		list = append(list, &c)
	}

	// Sort by UploadedAt desc
	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// Delete removes a file from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := os.Remove(s.path(info)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return nil
}

// GetFilePath returns the absolute path to a file.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return s.path(info), nil
}

// Usage returns the total bytes held.
func (s *LocalStore) Usage() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, info := range s.files {
		total += info.Size
	}
	return total
}

// CleanupOlderThan removes files saved before maxAge ago and returns how
// many were removed.
func (s *LocalStore) CleanupOlderThan(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	s.mu.RLock()
	var stale []string
	for id, info := range s.files {
		if info.UploadedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()

	removed := 0
	for _, id := range stale {
		if err := s.Delete(id); err == nil {
			removed++
		}
	}
	return removed
}
