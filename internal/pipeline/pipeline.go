// Package pipeline implements the batch-dispatch core: partitioning
// ingested rows into dispatch batches, sending them to the research
// webhook, correlating results back onto records, and tracking upload
// progress.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

// Settings is the immutable pipeline configuration captured at
// construction. Dispatch behavior never reads process-wide state, so
// retry and timeout handling stay testable in isolation.
type Settings struct {
	WebhookURL      string
	WebhookTimeout  time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	BatchSize       int
	InterBatchDelay time.Duration
	DispatchRate    float64
}

// SettingsFromConfig lifts the validated config into pipeline settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		WebhookURL:      cfg.Webhook.URL,
		WebhookTimeout:  time.Duration(cfg.Webhook.TimeoutSecs) * time.Second,
		MaxRetries:      cfg.Webhook.MaxRetries,
		RetryDelay:      time.Duration(cfg.Webhook.RetryDelaySecs) * time.Second,
		BatchSize:       cfg.Batch.Size,
		InterBatchDelay: time.Duration(cfg.Batch.InterBatchDelaySecs) * time.Second,
		DispatchRate:    cfg.Batch.DispatchRate,
	}
}

// Pipeline wires the partitioner, dispatcher, correlator, and progress
// tracker over one store. One Pipeline serves the whole process;
// uploads from different tenants run their batch loops concurrently
// while each upload's batches stay strictly sequential.
type Pipeline struct {
	settings   Settings
	store      store.Store
	dispatcher *Dispatcher
	correlator *Correlator
	tracker    *Tracker
}

// New creates a Pipeline from settings and a store.
func New(settings Settings, st store.Store) *Pipeline {
	return &Pipeline{
		settings: settings,
		store:    st,
		dispatcher: NewDispatcher(settings.WebhookURL, settings.WebhookTimeout,
			settings.MaxRetries, settings.RetryDelay, settings.DispatchRate),
		correlator: NewCorrelator(st),
		tracker:    NewTracker(st),
	}
}

// Correlator exposes the correlator for the async callback endpoint.
func (p *Pipeline) Correlator() *Correlator {
	return p.correlator
}

// UploadParams carries one upload's inputs. BatchSize of 0 uses the
// configured default.
type UploadParams struct {
	FileName    string
	Identities  []model.Identity
	SkippedRows int
	BatchSize   int
	ClientID    string
	UserID      string
}

// BeginUpload persists the upload and one processing record per row,
// then partitions the rows into dispatch batches. Records exist before
// any network call so a dispatch failure still leaves durable,
// inspectable state. A store failure here aborts the upload (marked
// failed); records already created are left intact.
func (p *Pipeline) BeginUpload(ctx context.Context, params UploadParams) (*model.Upload, []model.DispatchBatch, error) {
	fileName := params.FileName
	identities := params.Identities
	skippedRows := params.SkippedRows
	clientID, userID := params.ClientID, params.UserID

	batchSize := params.BatchSize
	if batchSize == 0 {
		batchSize = p.settings.BatchSize
	}

	if len(identities) == 0 {
		return nil, nil, eris.New("pipeline: no valid rows to process")
	}

	up, err := p.store.CreateUpload(ctx, fileName, len(identities), skippedRows, clientID, userID)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: create upload")
	}

	entries := make([]model.BatchEntry, 0, len(identities))
	for _, id := range identities {
		rec, err := p.store.CreateRecord(ctx, id, clientID, userID, up.ID)
		if err != nil {
			p.tracker.Abort(ctx, up.ID)
			return nil, nil, eris.Wrap(err, "pipeline: create record")
		}
		entries = append(entries, model.BatchEntry{RecordID: rec.ID, Identity: id})
	}

	groups, err := Partition(entries, batchSize)
	if err != nil {
		p.tracker.Abort(ctx, up.ID)
		return nil, nil, err
	}

	batches := make([]model.DispatchBatch, len(groups))
	for i, g := range groups {
		batches[i] = model.DispatchBatch{
			UploadID: up.ID,
			Number:   i + 1,
			Token:    uuid.New().String(),
			Entries:  g,
		}
	}

	zap.L().Info("upload prepared",
		zap.String("upload_id", up.ID),
		zap.Int("records", len(entries)),
		zap.Int("batches", len(batches)),
		zap.Int("skipped_rows", skippedRows),
	)
	return up, batches, nil
}

// ProcessBatches runs the dispatch cycles sequentially with the
// configured inter-batch delay. Context cancellation stops between
// batches; the in-flight webhook call is bounded by its own timeout.
func (p *Pipeline) ProcessBatches(ctx context.Context, batches []model.DispatchBatch) error {
	for i, batch := range batches {
		if i > 0 && p.settings.InterBatchDelay > 0 {
			timer := time.NewTimer(p.settings.InterBatchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return eris.Wrap(ctx.Err(), "pipeline: cancelled between batches")
			case <-timer.C:
			}
		}
		p.dispatchCycle(ctx, batch)
	}
	return nil
}

// RunUpload is BeginUpload plus ProcessBatches, for synchronous CLI use.
func (p *Pipeline) RunUpload(ctx context.Context, params UploadParams) (*model.Upload, error) {
	up, batches, err := p.BeginUpload(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := p.ProcessBatches(ctx, batches); err != nil {
		return up, err
	}
	return p.store.GetUpload(ctx, up.ID)
}

// RunSingle creates and dispatches one record outside any upload.
func (p *Pipeline) RunSingle(ctx context.Context, identity model.Identity, clientID, userID string) (*model.Record, error) {
	rec, err := p.store.CreateRecord(ctx, identity, clientID, userID, "")
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create record")
	}

	batch := model.DispatchBatch{
		Number:  1,
		Token:   uuid.New().String(),
		Entries: []model.BatchEntry{{RecordID: rec.ID, Identity: identity}},
	}
	p.dispatchCycle(ctx, batch)

	return p.store.GetRecord(ctx, rec.ID)
}

// RetryRecord moves a failed record back to processing and re-enters
// it as a batch of one. Retried records do not advance their upload's
// progress counter a second time.
func (p *Pipeline) RetryRecord(ctx context.Context, recordID string) (*model.Record, error) {
	rec, err := p.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	reopened, err := p.store.ReopenRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !reopened {
		return nil, eris.Errorf("pipeline: record %s is %s, only failed records can be retried", recordID, rec.Status)
	}

	batch := model.DispatchBatch{
		Number:  1,
		Token:   uuid.New().String(),
		Entries: []model.BatchEntry{{RecordID: rec.ID, Identity: rec.Identity}},
	}
	p.dispatchCycle(ctx, batch)

	return p.store.GetRecord(ctx, recordID)
}

// dispatchCycle runs one batch end to end: dispatch, correlate or
// fail, advance progress. The batch is atomic at this layer: either
// every record gets a correlation attempt or every record fails.
func (p *Pipeline) dispatchCycle(ctx context.Context, batch model.DispatchBatch) {
	p.correlator.RegisterBatch(batch)
	defer p.correlator.ReleaseBatch(batch)

	body, err := p.dispatcher.Dispatch(ctx, batch)
	if err != nil {
		zap.L().Error("batch dispatch failed",
			zap.Int("batch", batch.Number),
			zap.Int("records", len(batch.Entries)),
			zap.Error(err),
		)
		p.failBatch(ctx, batch, err.Error())
		return
	}

	result, err := DecodeResult(body)
	if err != nil {
		zap.L().Error("batch response undecodable",
			zap.Int("batch", batch.Number),
			zap.Error(err),
		)
		p.failBatch(ctx, batch, "undecodable research response: "+err.Error())
		return
	}

	if err := p.correlator.ApplyToBatch(ctx, batch.RecordIDs(), result); err != nil {
		zap.L().Error("batch correlation failed", zap.Int("batch", batch.Number), zap.Error(err))
	}

	if err := p.tracker.OnBatchResolved(ctx, batch.UploadID, len(batch.Entries)); err != nil {
		zap.L().Error("progress update failed", zap.String("upload_id", batch.UploadID), zap.Error(err))
	}
}

// failBatch transitions every record in the batch to failed with the
// same message and still advances upload progress (the rows resolved,
// just not successfully).
func (p *Pipeline) failBatch(ctx context.Context, batch model.DispatchBatch, message string) {
	for _, id := range batch.RecordIDs() {
		if _, err := p.store.FailRecord(ctx, id, message); err != nil {
			zap.L().Error("fail record", zap.String("record_id", id), zap.Error(err))
		}
	}
	if err := p.tracker.OnBatchResolved(ctx, batch.UploadID, len(batch.Entries)); err != nil {
		zap.L().Error("progress update failed", zap.String("upload_id", batch.UploadID), zap.Error(err))
	}
}
