package model

import "time"

// UploadStatus represents the state of a CSV/XLSX import job.
type UploadStatus string

const (
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusFailed     UploadStatus = "failed"
)

// Upload tracks one bulk import and its progress. ProcessedRows is
// monotonically non-decreasing and never exceeds TotalRows. Individual
// record failures do not fail the upload; only a pipeline-level abort
// does.
type Upload struct {
	ID            string       `json:"id"`
	FileName      string       `json:"file_name"`
	TotalRows     int          `json:"total_rows"`
	ProcessedRows int          `json:"processed_rows"`
	SkippedRows   int          `json:"skipped_rows"`
	Status        UploadStatus `json:"status"`
	ClientID      string       `json:"client_id"`
	UserID        string       `json:"user_id"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
