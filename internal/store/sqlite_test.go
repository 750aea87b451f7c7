package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testIdentity(first, email string) model.Identity {
	return model.Identity{
		FirstName: first,
		LastName:  "Smith",
		Company:   "Acme Corp",
		Title:     "CEO",
		Email:     email,
	}
}

func TestRecordLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.CreateRecord(ctx, testIdentity("John", "john@acme.com"), "client-1", "user-1", "")
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	assert.Equal(t, model.RecordStatusProcessing, rec.Status)

	got, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "John", got.Identity.FirstName)
	assert.Equal(t, "john@acme.com", got.Identity.Email)
	assert.Equal(t, "client-1", got.ClientID)
	assert.Empty(t, got.UploadID)

	result := json.RawMessage(`{"summary":"great prospect"}`)
	ok, err := s.CompleteRecord(ctx, rec.ID, result)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordStatusCompleted, got.Status)
	assert.JSONEq(t, string(result), string(got.ResearchResult))
	assert.Empty(t, got.ErrorMessage)
}

func TestGuardedTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.CreateRecord(ctx, testIdentity("Jane", "jane@acme.com"), "c", "u", "")
	require.NoError(t, err)

	ok, err := s.CompleteRecord(ctx, rec.ID, json.RawMessage(`{}`))
	require.NoError(t, err)
	require.True(t, ok)

	// Second completion and a late failure are both no-ops.
	ok, err = s.CompleteRecord(ctx, rec.ID, json.RawMessage(`{"late":true}`))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.FailRecord(ctx, rec.ID, "too late")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordStatusCompleted, got.Status)
	assert.JSONEq(t, `{}`, string(got.ResearchResult))
}

func TestGuardedTransitions_MissingRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.CompleteRecord(ctx, "no-such-id", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReopenRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.CreateRecord(ctx, testIdentity("Bob", "bob@acme.com"), "c", "u", "")
	require.NoError(t, err)

	// Only failed records can reopen.
	ok, err := s.ReopenRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.FailRecord(ctx, rec.ID, "webhook timed out")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordStatusFailed, got.Status)
	assert.Equal(t, "webhook timed out", got.ErrorMessage)

	ok, err = s.ReopenRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordStatusProcessing, got.Status)
	assert.Empty(t, got.ErrorMessage, "reopen clears the failure message")
}

func TestListRecords_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	up, err := s.CreateUpload(ctx, "list.csv", 2, 0, "client-a", "user-a")
	require.NoError(t, err)

	r1, err := s.CreateRecord(ctx, testIdentity("A", "a@x.com"), "client-a", "user-a", up.ID)
	require.NoError(t, err)
	_, err = s.CreateRecord(ctx, testIdentity("B", "b@x.com"), "client-a", "user-a", up.ID)
	require.NoError(t, err)
	_, err = s.CreateRecord(ctx, testIdentity("C", "c@x.com"), "client-b", "user-b", "")
	require.NoError(t, err)

	ok, err := s.FailRecord(ctx, r1.ID, "boom")
	require.NoError(t, err)
	require.True(t, ok)

	all, err := s.ListRecords(ctx, RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byUpload, err := s.ListRecords(ctx, RecordFilter{UploadID: up.ID})
	require.NoError(t, err)
	assert.Len(t, byUpload, 2)

	byClient, err := s.ListRecords(ctx, RecordFilter{ClientID: "client-b"})
	require.NoError(t, err)
	require.Len(t, byClient, 1)
	assert.Equal(t, "C", byClient[0].Identity.FirstName)

	failed, err := s.ListRecords(ctx, RecordFilter{Status: model.RecordStatusFailed, UploadID: up.ID})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, r1.ID, failed[0].ID)

	limited, err := s.ListRecords(ctx, RecordFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestUploadProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	up, err := s.CreateUpload(ctx, "prospects.csv", 25, 3, "c", "u")
	require.NoError(t, err)
	assert.Equal(t, 0, up.ProcessedRows)
	assert.Equal(t, model.UploadStatusProcessing, up.Status)

	up, err = s.AddUploadProgress(ctx, up.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, up.ProcessedRows)

	up, err = s.AddUploadProgress(ctx, up.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 20, up.ProcessedRows)

	// Over-counting is capped at total_rows.
	up, err = s.AddUploadProgress(ctx, up.ID, 99)
	require.NoError(t, err)
	assert.Equal(t, 25, up.ProcessedRows)

	require.NoError(t, s.UpdateUploadStatus(ctx, up.ID, model.UploadStatusCompleted))
	got, err := s.GetUpload(ctx, up.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UploadStatusCompleted, got.Status)
}

func TestUploadNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetUpload(ctx, "missing")
	require.Error(t, err)

	_, err = s.AddUploadProgress(ctx, "missing", 1)
	require.Error(t, err)

	err = s.UpdateUploadStatus(ctx, "missing", model.UploadStatusFailed)
	require.Error(t, err)
}
