package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/ingest"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/internal/store"
)

// maxUploadBytes caps uploaded file size at 20 MiB.
const maxUploadBytes = 20 << 20

// handlePreview accepts raw file bytes and returns headers, row count,
// sample rows, and a proposed column mapping.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	preview, err := ingest.PreviewFile(data)
	if err != nil {
		switch {
		case eris.Is(err, ingest.ErrEmptyInput):
			writeError(w, http.StatusUnprocessableEntity, "file has no data rows")
		case eris.Is(err, ingest.ErrMalformedInput):
			writeError(w, http.StatusUnprocessableEntity, "file could not be parsed")
		default:
			writeError(w, http.StatusInternalServerError, "preview failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, struct {
		*ingest.Preview
		ProposedMapping ingest.Mapping `json:"proposed_mapping"`
	}{preview, ingest.ProposeMapping(preview.Headers)})
}

// processRequest is the decoded upload submission, from either body
// encoding.
type processRequest struct {
	fileName  string
	data      []byte
	mapping   ingest.Mapping
	batchSize int
	rng       ingest.RowRange
}

// parseProcessForm decodes a multipart submission (file, mapping,
// batch_size, start_row, max_rows).
func parseProcessForm(r *http.Request) (*processRequest, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, eris.New("expected multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, eris.New("file field is required")
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, eris.New("read file")
	}

	var mapping ingest.Mapping
	if err := json.Unmarshal([]byte(r.FormValue("mapping")), &mapping); err != nil {
		return nil, eris.New("mapping field must be JSON")
	}

	return &processRequest{
		fileName:  header.Filename,
		data:      data,
		mapping:   mapping,
		batchSize: formInt(r, "batch_size", 0),
		rng: ingest.RowRange{
			Start:   formInt(r, "start_row", 0),
			MaxRows: formInt(r, "max_rows", 0),
		},
	}, nil
}

// parseProcessJSON decodes a JSON submission; the file travels
// base64-encoded in the "file" field.
func parseProcessJSON(r *http.Request) (*processRequest, error) {
	var body struct {
		FileName  string         `json:"file_name"`
		File      []byte         `json:"file"`
		Mapping   ingest.Mapping `json:"mapping"`
		BatchSize int            `json:"batch_size"`
		StartRow  int            `json:"start_row"`
		MaxRows   int            `json:"max_rows"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&body); err != nil {
		return nil, eris.New("invalid JSON body")
	}
	if len(body.File) == 0 {
		return nil, eris.New("file field is required")
	}

	fileName := body.FileName
	if fileName == "" {
		fileName = "upload"
	}
	return &processRequest{
		fileName:  fileName,
		data:      body.File,
		mapping:   body.Mapping,
		batchSize: body.BatchSize,
		rng:       ingest.RowRange{Start: body.StartRow, MaxRows: body.MaxRows},
	}, nil
}

// handleProcess accepts an upload as either a multipart form or a JSON
// body, creates the upload, and kicks off the dispatch pipeline
// asynchronously. Responds 202 with the upload id.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var (
		req *processRequest
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		req, err = parseProcessJSON(r)
	} else {
		req, err = parseProcessForm(r)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.batchSize != 0 && (req.batchSize < 1 || req.batchSize > 100) {
		writeError(w, http.StatusBadRequest, "batch_size must be 1-100")
		return
	}

	identities, skipped, err := ingest.ParseRows(req.data, req.mapping, req.rng)
	if err != nil {
		switch {
		case eris.Is(err, ingest.ErrUnmappedField):
			writeError(w, http.StatusBadRequest, err.Error())
		case eris.Is(err, ingest.ErrEmptyInput), eris.Is(err, ingest.ErrMalformedInput):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "parse failed")
		}
		return
	}

	clientID, userID := owner(r)
	up, batches, err := s.pipeline.BeginUpload(r.Context(), pipeline.UploadParams{
		FileName:    req.fileName,
		Identities:  identities,
		SkippedRows: skipped,
		BatchSize:   req.batchSize,
		ClientID:    clientID,
		UserID:      userID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "upload could not be created")
		return
	}

	// The batch loop outlives this request.
	s.uploads.Go(func() error {
		if err := s.pipeline.ProcessBatches(context.Background(), batches); err != nil {
			zap.L().Error("upload pipeline stopped",
				zap.String("upload_id", up.ID),
				zap.Error(err),
			)
		}
		return nil
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"upload_id":    up.ID,
		"total_rows":   up.TotalRows,
		"skipped_rows": up.SkippedRows,
		"batches":      len(batches),
	})
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	up, err := s.store.GetUpload(r.Context(), chi.URLParam(r, "uploadID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "upload not found")
		return
	}
	writeJSON(w, http.StatusOK, up)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	clientID, userID := owner(r)
	filter := store.RecordFilter{
		Status:   model.RecordStatus(r.URL.Query().Get("status")),
		UploadID: r.URL.Query().Get("upload_id"),
		ClientID: clientID,
		UserID:   userID,
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		filter.Limit = limit
	}

	records, err := s.store.ListRecords(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetRecord(r.Context(), chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleCreateRecord creates a single record and dispatches it as a
// batch of one, asynchronously.
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var identity model.Identity
	if err := json.NewDecoder(r.Body).Decode(&identity); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if identity.FirstName == "" || identity.LastName == "" || identity.Company == "" {
		writeError(w, http.StatusBadRequest, "first_name, last_name, and company are required")
		return
	}
	if !ingest.ValidEmail(identity.Email) {
		writeError(w, http.StatusBadRequest, "email is invalid")
		return
	}

	clientID, userID := owner(r)
	s.uploads.Go(func() error {
		if _, err := s.pipeline.RunSingle(context.Background(), identity, clientID, userID); err != nil {
			zap.L().Error("single record pipeline failed", zap.Error(err))
		}
		return nil
	})

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleRetryRecord moves a failed record back to processing and
// re-dispatches it as a batch of one.
func (s *Server) handleRetryRecord(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "recordID")

	rec, err := s.store.GetRecord(r.Context(), recordID)
	if err != nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	if rec.Status != model.RecordStatusFailed {
		writeError(w, http.StatusConflict, "only failed records can be retried")
		return
	}

	s.uploads.Go(func() error {
		if _, err := s.pipeline.RetryRecord(context.Background(), recordID); err != nil {
			zap.L().Error("record retry failed", zap.String("record_id", recordID), zap.Error(err))
		}
		return nil
	})

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "record_id": recordID})
}

// handleCallback receives an out-of-band research result. Well-formed
// JSON is always accepted with 202; a correlation miss is logged and
// dropped, never surfaced to the external service (it would only
// retry a payload we cannot place).
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	if err := s.pipeline.Correlator().ApplyCallback(r.Context(), payload); err != nil {
		if eris.Is(err, pipeline.ErrUnknownShape) {
			writeError(w, http.StatusUnprocessableEntity, "unrecognized payload shape")
			return
		}
		zap.L().Error("callback correlation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "correlation failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// formInt parses an optional integer form value.
func formInt(r *http.Request, key string, def int) int {
	v := r.FormValue(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
