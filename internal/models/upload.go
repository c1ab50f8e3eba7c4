// Package models contains domain types for the spreadsheet chart dashboard.
package models

import "time"

// UploadStatus represents the processing status of an upload.
type UploadStatus string

const (
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusFailed     UploadStatus = "failed"
)

// UploadRecord represents one submitted spreadsheet and its derived metadata.
type UploadRecord struct {
	ID              string       `json:"id"`
	Filename        string       `json:"filename"`
	UploadedAt      time.Time    `json:"uploadedAt"`
	FileSize        int64        `json:"fileSize"`
	RowCount        int          `json:"rows"`
	Columns         []string     `json:"columns"`
	ChartsGenerated int          `json:"chartsGenerated"`
	Status          UploadStatus `json:"status"`
	Error           string       `json:"error,omitempty"`
}

// NewUploadRecord creates a new UploadRecord in processing status.
func NewUploadRecord(id, filename string, size int64) *UploadRecord {
	return &UploadRecord{
		ID:         id,
		Filename:   filename,
		UploadedAt: time.Now(),
		FileSize:   size,
		Columns:    make([]string, 0),
		Status:     UploadStatusProcessing,
	}
}

// Clone returns a deep copy of the record.
func (u *UploadRecord) Clone() *UploadRecord {
	if u == nil {
		return nil
	}
	c := *u
	c.Columns = append([]string(nil), u.Columns...)
	return &c
}

// IsTerminal reports whether the upload has finished processing.
func (u *UploadRecord) IsTerminal() bool {
	return u.Status == UploadStatusCompleted || u.Status == UploadStatusFailed
}
