package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock
// satisfies it for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS records (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	first_name      TEXT NOT NULL DEFAULT '',
	last_name       TEXT NOT NULL DEFAULT '',
	company         TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	email           TEXT NOT NULL DEFAULT '',
	linkedin_url    TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'processing',
	research_result JSONB,
	error_message   TEXT,
	client_id       TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	upload_id       TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS uploads (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	file_name      TEXT NOT NULL,
	total_rows     INTEGER NOT NULL,
	processed_rows INTEGER NOT NULL DEFAULT 0,
	skipped_rows   INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'processing',
	client_id      TEXT NOT NULL,
	user_id        TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
CREATE INDEX IF NOT EXISTS idx_records_upload_id ON records(upload_id);
CREATE INDEX IF NOT EXISTS idx_records_client_id ON records(client_id);
CREATE INDEX IF NOT EXISTS idx_records_email ON records(lower(email));
CREATE INDEX IF NOT EXISTS idx_uploads_status ON uploads(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRecord(ctx context.Context, identity model.Identity, clientID, userID, uploadID string) (*model.Record, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	var upload any
	if uploadID != "" {
		upload = uploadID
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO records (id, first_name, last_name, company, title, email, linkedin_url, status, client_id, user_id, upload_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id, identity.FirstName, identity.LastName, identity.Company, identity.Title,
		identity.Email, identity.LinkedInURL, string(model.RecordStatusProcessing),
		clientID, userID, upload, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert record")
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

const selectRecordPostgres = `SELECT id, first_name, last_name, company, title, email, linkedin_url, status, research_result, error_message, client_id, user_id, upload_id, created_at, updated_at FROM records`

func (s *PostgresStore) GetRecord(ctx context.Context, recordID string) (*model.Record, error) {
	row := s.pool.QueryRow(ctx, selectRecordPostgres+` WHERE id = $1`, recordID)
	r, err := scanPgRecord(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get record %s", recordID)
	}
	return r, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.Record, error) {
	query := selectRecordPostgres + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.UploadID != "" {
		query += fmt.Sprintf(` AND upload_id = $%d`, argIdx)
		args = append(args, filter.UploadID)
		argIdx++
	}
	if filter.ClientID != "" {
		query += fmt.Sprintf(` AND client_id = $%d`, argIdx)
		args = append(args, filter.ClientID)
		argIdx++
	}
	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		r, err := scanPgRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func (s *PostgresStore) CompleteRecord(ctx context.Context, recordID string, result json.RawMessage) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE records SET status = $1, research_result = $2, error_message = NULL, updated_at = $3
		 WHERE id = $4 AND status = $5`,
		string(model.RecordStatusCompleted), []byte(result), time.Now().UTC(),
		recordID, string(model.RecordStatusProcessing),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: complete record %s", recordID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) FailRecord(ctx context.Context, recordID string, errorMessage string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE records SET status = $1, error_message = $2, research_result = NULL, updated_at = $3
		 WHERE id = $4 AND status = $5`,
		string(model.RecordStatusFailed), errorMessage, time.Now().UTC(),
		recordID, string(model.RecordStatusProcessing),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: fail record %s", recordID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ReopenRecord(ctx context.Context, recordID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE records SET status = $1, research_result = NULL, error_message = NULL, updated_at = $2
		 WHERE id = $3 AND status = $4`,
		string(model.RecordStatusProcessing), time.Now().UTC(),
		recordID, string(model.RecordStatusFailed),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: reopen record %s", recordID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) CreateUpload(ctx context.Context, fileName string, totalRows, skippedRows int, clientID, userID string) (*model.Upload, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO uploads (id, file_name, total_rows, processed_rows, skipped_rows, status, client_id, user_id, created_at, updated_at)
		 VALUES ($1, $2, $3, 0, $4, $5, $6, $7, $8, $9)`,
		id, fileName, totalRows, skippedRows, string(model.UploadStatusProcessing),
		clientID, userID, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert upload")
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

func (s *PostgresStore) GetUpload(ctx context.Context, uploadID string) (*model.Upload, error) {
	var u model.Upload
	err := s.pool.QueryRow(ctx,
		`SELECT id, file_name, total_rows, processed_rows, skipped_rows, status, client_id, user_id, created_at, updated_at
		 FROM uploads WHERE id = $1`,
		uploadID,
	).Scan(&u.ID, &u.FileName, &u.TotalRows, &u.ProcessedRows, &u.SkippedRows,
		&u.Status, &u.ClientID, &u.UserID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get upload %s", uploadID)
	}
	return &u, nil
}

func (s *PostgresStore) AddUploadProgress(ctx context.Context, uploadID string, resolved int) (*model.Upload, error) {
	var u model.Upload
	err := s.pool.QueryRow(ctx,
		`UPDATE uploads SET processed_rows = least(processed_rows + $1, total_rows), updated_at = $2
		 WHERE id = $3
		 RETURNING id, file_name, total_rows, processed_rows, skipped_rows, status, client_id, user_id, created_at, updated_at`,
		resolved, time.Now().UTC(), uploadID,
	).Scan(&u.ID, &u.FileName, &u.TotalRows, &u.ProcessedRows, &u.SkippedRows,
		&u.Status, &u.ClientID, &u.UserID, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("upload not found: %s", uploadID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: add upload progress %s", uploadID)
	}
	return &u, nil
}

func (s *PostgresStore) UpdateUploadStatus(ctx context.Context, uploadID string, status model.UploadStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE uploads SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), uploadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update upload status %s", uploadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("upload not found: %s", uploadID)
	}
	return nil
}

func scanPgRecord(row pgx.Row) (*model.Record, error) {
	var r model.Record
	var result []byte
	var errMsg, uploadID *string

	err := row.Scan(&r.ID, &r.Identity.FirstName, &r.Identity.LastName, &r.Identity.Company,
		&r.Identity.Title, &r.Identity.Email, &r.Identity.LinkedInURL, &r.Status,
		&result, &errMsg, &r.ClientID, &r.UserID, &uploadID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if result != nil {
		r.ResearchResult = json.RawMessage(result)
	}
	if errMsg != nil {
		r.ErrorMessage = *errMsg
	}
	if uploadID != nil {
		r.UploadID = *uploadID
	}
	return &r, nil
}
