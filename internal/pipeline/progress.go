package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

// Tracker advances an upload's processed-row counter as its batches
// resolve and marks the upload completed once every row is accounted
// for.
type Tracker struct {
	store store.Store
}

// NewTracker creates a Tracker backed by the given store.
func NewTracker(st store.Store) *Tracker {
	return &Tracker{store: st}
}

// OnBatchResolved records that resolved more rows reached a terminal
// state. Single-record dispatches outside an upload pass an empty id.
func (t *Tracker) OnBatchResolved(ctx context.Context, uploadID string, resolved int) error {
	if uploadID == "" || resolved == 0 {
		return nil
	}

	up, err := t.store.AddUploadProgress(ctx, uploadID, resolved)
	if err != nil {
		return eris.Wrap(err, "progress: add upload progress")
	}

	if up.ProcessedRows >= up.TotalRows && up.Status == model.UploadStatusProcessing {
		if err := t.store.UpdateUploadStatus(ctx, uploadID, model.UploadStatusCompleted); err != nil {
			return eris.Wrap(err, "progress: mark upload completed")
		}
		zap.L().Info("upload completed",
			zap.String("upload_id", uploadID),
			zap.Int("total_rows", up.TotalRows),
		)
	}
	return nil
}

// Abort marks the upload failed after a pipeline-level error.
// Already-created records are left intact for inspection.
func (t *Tracker) Abort(ctx context.Context, uploadID string) {
	if uploadID == "" {
		return
	}
	if err := t.store.UpdateUploadStatus(ctx, uploadID, model.UploadStatusFailed); err != nil {
		zap.L().Error("progress: mark upload failed", zap.String("upload_id", uploadID), zap.Error(err))
	}
}
