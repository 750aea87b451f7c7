package store

import (
	"context"
	"encoding/json"

	"github.com/sells-group/prospect-cli/internal/model"
)

// RecordFilter specifies criteria for listing records.
type RecordFilter struct {
	Status   model.RecordStatus `json:"status,omitempty"`
	UploadID string             `json:"upload_id,omitempty"`
	ClientID string             `json:"client_id,omitempty"`
	UserID   string             `json:"user_id,omitempty"`
	Limit    int                `json:"limit,omitempty"`
	Offset   int                `json:"offset,omitempty"`
}

// Store defines the persistence interface for records and uploads.
//
// The three transition methods (CompleteRecord, FailRecord,
// ReopenRecord) are guarded: they only move a record out of the
// expected source status and report whether the transition happened.
// A false return with nil error means the record was already past
// that state, which callers treat as a no-op. This is what makes the
// async correlation path safe to interleave with dispatch cycles.
type Store interface {
	// Records
	CreateRecord(ctx context.Context, identity model.Identity, clientID, userID, uploadID string) (*model.Record, error)
	GetRecord(ctx context.Context, recordID string) (*model.Record, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.Record, error)
	CompleteRecord(ctx context.Context, recordID string, result json.RawMessage) (bool, error)
	FailRecord(ctx context.Context, recordID string, errorMessage string) (bool, error)
	ReopenRecord(ctx context.Context, recordID string) (bool, error)

	// Uploads
	CreateUpload(ctx context.Context, fileName string, totalRows, skippedRows int, clientID, userID string) (*model.Upload, error)
	GetUpload(ctx context.Context, uploadID string) (*model.Upload, error)
	AddUploadProgress(ctx context.Context, uploadID string, resolved int) (*model.Upload, error)
	UpdateUploadStatus(ctx context.Context, uploadID string, status model.UploadStatus) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
