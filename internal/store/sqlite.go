package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospect-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS records (
	id              TEXT PRIMARY KEY,
	first_name      TEXT NOT NULL DEFAULT '',
	last_name       TEXT NOT NULL DEFAULT '',
	company         TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	email           TEXT NOT NULL DEFAULT '',
	linkedin_url    TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'processing',
	research_result TEXT,
	error_message   TEXT,
	client_id       TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	upload_id       TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS uploads (
	id             TEXT PRIMARY KEY,
	file_name      TEXT NOT NULL,
	total_rows     INTEGER NOT NULL,
	processed_rows INTEGER NOT NULL DEFAULT 0,
	skipped_rows   INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'processing',
	client_id      TEXT NOT NULL,
	user_id        TEXT NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
CREATE INDEX IF NOT EXISTS idx_records_upload_id ON records(upload_id);
CREATE INDEX IF NOT EXISTS idx_records_client_id ON records(client_id);
CREATE INDEX IF NOT EXISTS idx_records_email ON records(email);
CREATE INDEX IF NOT EXISTS idx_uploads_status ON uploads(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRecord(ctx context.Context, identity model.Identity, clientID, userID, uploadID string) (*model.Record, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, first_name, last_name, company, title, email, linkedin_url, status, client_id, user_id, upload_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, identity.FirstName, identity.LastName, identity.Company, identity.Title,
		identity.Email, identity.LinkedInURL, string(model.RecordStatusProcessing),
		clientID, userID, nullable(uploadID), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert record")
	}

	return &model.Record{
		ID:        id,
		Identity:  identity,
		Status:    model.RecordStatusProcessing,
		ClientID:  clientID,
		UserID:    userID,
		UploadID:  uploadID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, recordID string) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecordSQLite+` WHERE id = ?`, recordID)
	return scanRecord(row)
}

const selectRecordSQLite = `SELECT id, first_name, last_name, company, title, email, linkedin_url, status, research_result, error_message, client_id, user_id, upload_id, created_at, updated_at FROM records`

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.Record, error) {
	query := selectRecordSQLite + ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.UploadID != "" {
		query += ` AND upload_id = ?`
		args = append(args, filter.UploadID)
	}
	if filter.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, filter.ClientID)
	}
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

// CompleteRecord transitions processing→completed. Returns false when
// the record is missing or already terminal.
func (s *SQLiteStore) CompleteRecord(ctx context.Context, recordID string, result json.RawMessage) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET status = ?, research_result = ?, error_message = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.RecordStatusCompleted), string(result), time.Now().UTC(),
		recordID, string(model.RecordStatusProcessing),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: complete record %s", recordID)
	}
	return rowsAffected(res)
}

// FailRecord transitions processing→failed. Returns false when the
// record is missing or already terminal.
func (s *SQLiteStore) FailRecord(ctx context.Context, recordID string, errorMessage string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET status = ?, error_message = ?, research_result = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.RecordStatusFailed), errorMessage, time.Now().UTC(),
		recordID, string(model.RecordStatusProcessing),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: fail record %s", recordID)
	}
	return rowsAffected(res)
}

// ReopenRecord transitions failed→processing for an explicit retry.
// Returns false unless the record is currently failed.
func (s *SQLiteStore) ReopenRecord(ctx context.Context, recordID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET status = ?, research_result = NULL, error_message = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.RecordStatusProcessing), time.Now().UTC(),
		recordID, string(model.RecordStatusFailed),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: reopen record %s", recordID)
	}
	return rowsAffected(res)
}

func (s *SQLiteStore) CreateUpload(ctx context.Context, fileName string, totalRows, skippedRows int, clientID, userID string) (*model.Upload, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (id, file_name, total_rows, processed_rows, skipped_rows, status, client_id, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?, ?)`,
		id, fileName, totalRows, skippedRows, string(model.UploadStatusProcessing),
		clientID, userID, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert upload")
	}

	return &model.Upload{
		ID:          id,
		FileName:    fileName,
		TotalRows:   totalRows,
		SkippedRows: skippedRows,
		Status:      model.UploadStatusProcessing,
		ClientID:    clientID,
		UserID:      userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *SQLiteStore) GetUpload(ctx context.Context, uploadID string) (*model.Upload, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, file_name, total_rows, processed_rows, skipped_rows, status, client_id, user_id, created_at, updated_at
		 FROM uploads WHERE id = ?`,
		uploadID,
	)
	var u model.Upload
	err := row.Scan(&u.ID, &u.FileName, &u.TotalRows, &u.ProcessedRows, &u.SkippedRows,
		&u.Status, &u.ClientID, &u.UserID, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("upload not found: %s", uploadID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get upload")
	}
	return &u, nil
}

// AddUploadProgress increments processed_rows, capped at total_rows,
// and returns the updated upload.
func (s *SQLiteStore) AddUploadProgress(ctx context.Context, uploadID string, resolved int) (*model.Upload, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE uploads SET processed_rows = min(processed_rows + ?, total_rows), updated_at = ? WHERE id = ?`,
		resolved, time.Now().UTC(), uploadID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: add upload progress %s", uploadID)
	}
	if err := checkRowsAffected(res, "upload", uploadID); err != nil {
		return nil, err
	}
	return s.GetUpload(ctx, uploadID)
}

func (s *SQLiteStore) UpdateUploadStatus(ctx context.Context, uploadID string, status model.UploadStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE uploads SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), uploadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update upload status %s", uploadID)
	}
	return checkRowsAffected(res, "upload", uploadID)
}

// helpers

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func rowsAffected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.Record, error) {
	var r model.Record
	var result, errMsg, uploadID sql.NullString

	err := row.Scan(&r.ID, &r.Identity.FirstName, &r.Identity.LastName, &r.Identity.Company,
		&r.Identity.Title, &r.Identity.Email, &r.Identity.LinkedInURL, &r.Status,
		&result, &errMsg, &r.ClientID, &r.UserID, &uploadID, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("record not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan record")
	}

	if result.Valid {
		r.ResearchResult = json.RawMessage(result.String)
	}
	if errMsg.Valid {
		r.ErrorMessage = errMsg.String
	}
	if uploadID.Valid {
		r.UploadID = uploadID.String
	}
	return &r, nil
}
