package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

// strPtr matches the *string scan destinations for nullable columns.
func strPtr(s string) *string { return &s }

var recordColumns = []string{
	"id", "first_name", "last_name", "company", "title", "email", "linkedin_url",
	"status", "research_result", "error_message", "client_id", "user_id", "upload_id",
	"created_at", "updated_at",
}

func TestPostgresCreateRecord(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO records").
		WithArgs(pgxmock.AnyArg(), "John", "Smith", "Acme", "CEO", "john@acme.com", "",
			"processing", "client-1", "user-1", "upload-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec, err := s.CreateRecord(context.Background(), model.Identity{
		FirstName: "John", LastName: "Smith", Company: "Acme", Title: "CEO", Email: "john@acme.com",
	}, "client-1", "user-1", "upload-1")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, model.RecordStatusProcessing, rec.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetRecord(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	result := `{"summary":"ok"}`
	mock.ExpectQuery("SELECT .+ FROM records WHERE id").
		WithArgs("rec-1").
		WillReturnRows(pgxmock.NewRows(recordColumns).AddRow(
			"rec-1", "Jane", "Doe", "Globex", "CTO", "jane@globex.io", "",
			"completed", []byte(result), nil, "c", "u", nil, now, now,
		))

	rec, err := s.GetRecord(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, model.RecordStatusCompleted, rec.Status)
	assert.JSONEq(t, result, string(rec.ResearchResult))
	assert.Empty(t, rec.UploadID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompleteRecord_Guarded(t *testing.T) {
	s, mock := newMockStore(t)
	payload := json.RawMessage(`{"x":1}`)

	mock.ExpectExec("UPDATE records SET status").
		WithArgs("completed", []byte(payload), pgxmock.AnyArg(), "rec-1", "processing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := s.CompleteRecord(context.Background(), "rec-1", payload)
	require.NoError(t, err)
	assert.True(t, ok)

	// Already terminal: zero rows affected, reported as a no-op.
	mock.ExpectExec("UPDATE records SET status").
		WithArgs("completed", []byte(payload), pgxmock.AnyArg(), "rec-1", "processing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err = s.CompleteRecord(context.Background(), "rec-1", payload)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFailRecord_Guarded(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE records SET status").
		WithArgs("failed", "webhook timed out", pgxmock.AnyArg(), "rec-1", "processing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := s.FailRecord(context.Background(), "rec-1", "webhook timed out")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReopenRecord(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE records SET status").
		WithArgs("processing", pgxmock.AnyArg(), "rec-1", "failed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := s.ReopenRecord(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListRecords_Filtered(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM records WHERE true AND status = \\$1 AND upload_id = \\$2").
		WithArgs("failed", "up-1", 100).
		WillReturnRows(pgxmock.NewRows(recordColumns).AddRow(
			"rec-1", "A", "B", "C", "D", "a@b.com", "",
			"failed", nil, strPtr("boom"), "c", "u", strPtr("up-1"), now, now,
		))

	recs, err := s.ListRecords(context.Background(), RecordFilter{
		Status:   model.RecordStatusFailed,
		UploadID: "up-1",
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "boom", recs[0].ErrorMessage)
	assert.Equal(t, "up-1", recs[0].UploadID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddUploadProgress(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	uploadColumns := []string{
		"id", "file_name", "total_rows", "processed_rows", "skipped_rows",
		"status", "client_id", "user_id", "created_at", "updated_at",
	}
	mock.ExpectQuery("UPDATE uploads SET processed_rows = least").
		WithArgs(10, pgxmock.AnyArg(), "up-1").
		WillReturnRows(pgxmock.NewRows(uploadColumns).AddRow(
			"up-1", "prospects.csv", 25, 10, 0, "processing", "c", "u", now, now,
		))

	up, err := s.AddUploadProgress(context.Background(), "up-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, up.ProcessedRows)
	assert.Equal(t, 25, up.TotalRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateUploadStatus_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE uploads SET status").
		WithArgs("completed", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateUploadStatus(context.Background(), "missing", model.UploadStatusCompleted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
