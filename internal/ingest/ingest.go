// Package ingest parses uploaded prospect files (CSV or XLSX) and maps
// their columns onto record identity fields.
package ingest

import (
	"bytes"
	"encoding/csv"
	"net/mail"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/prospect-cli/internal/model"
)

var (
	// ErrMalformedInput marks a file that cannot be parsed as
	// delimited text or a spreadsheet.
	ErrMalformedInput = eris.New("malformed input file")

	// ErrEmptyInput marks a file with no data rows.
	ErrEmptyInput = eris.New("input file has no data rows")

	// ErrUnmappedField marks a confirmed mapping missing a required field.
	ErrUnmappedField = eris.New("required field not mapped")
)

// Preview summarizes an uploaded file before mapping confirmation.
type Preview struct {
	Headers    []string   `json:"headers"`
	RowCount   int        `json:"row_count"`
	SampleRows [][]string `json:"sample_rows"`
}

const sampleRowLimit = 5

// xlsxMagic is the ZIP local-file-header signature; XLSX files are ZIP
// archives, CSVs are not.
var xlsxMagic = []byte{'P', 'K', 0x03, 0x04}

// readRows parses file bytes into rows, dispatching on format.
func readRows(data []byte) ([][]string, error) {
	if bytes.HasPrefix(data, xlsxMagic) {
		return readXLSXRows(data)
	}
	return readCSVRows(data)
}

func readCSVRows(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(ErrMalformedInput, "ingest: read csv: %v", err)
	}
	return rows, nil
}

func readXLSXRows(data []byte) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrapf(ErrMalformedInput, "ingest: open xlsx: %v", err)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Wrap(ErrEmptyInput, "ingest: xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// PreviewFile parses the uploaded bytes and returns headers, data row
// count, and up to five sample rows.
func PreviewFile(data []byte) (*Preview, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, eris.Wrap(ErrEmptyInput, "ingest: empty file")
	}

	rows, err := readRows(data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Wrap(ErrEmptyInput, "ingest: no rows")
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	dataRows := rows[1:]
	if len(dataRows) == 0 {
		return nil, eris.Wrap(ErrEmptyInput, "ingest: header only, no data rows")
	}

	sample := dataRows
	if len(sample) > sampleRowLimit {
		sample = sample[:sampleRowLimit]
	}

	return &Preview{
		Headers:    headers,
		RowCount:   len(dataRows),
		SampleRows: sample,
	}, nil
}

// RowRange optionally restricts processing to a slice of the data rows.
// Start is 0-based among data rows; MaxRows of 0 means no cap.
type RowRange struct {
	Start   int `json:"start"`
	MaxRows int `json:"max_rows"`
}

// ParseRows applies a confirmed mapping to the file and returns the
// valid identities plus the count of rows skipped by per-row
// validation. Row-level problems (missing required value, bad email)
// are counted and skipped, never fatal.
func ParseRows(data []byte, mapping Mapping, rng RowRange) ([]model.Identity, int, error) {
	if err := mapping.Validate(); err != nil {
		return nil, 0, err
	}

	rows, err := readRows(data)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) < 2 {
		return nil, 0, eris.Wrap(ErrEmptyInput, "ingest: no data rows")
	}

	header := rows[0]
	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		colIdx[strings.TrimSpace(col)] = i
	}

	dataRows := rows[1:]
	if rng.Start > 0 {
		if rng.Start >= len(dataRows) {
			return nil, 0, eris.Wrapf(ErrEmptyInput, "ingest: start row %d past end", rng.Start)
		}
		dataRows = dataRows[rng.Start:]
	}
	if rng.MaxRows > 0 && rng.MaxRows < len(dataRows) {
		dataRows = dataRows[:rng.MaxRows]
	}

	var identities []model.Identity
	skipped := 0
	for _, row := range dataRows {
		id, ok := rowToIdentity(row, colIdx, mapping)
		if !ok {
			skipped++
			continue
		}
		identities = append(identities, id)
	}

	return identities, skipped, nil
}

// rowToIdentity extracts and validates one row. Required: first name,
// last name, company, and a structurally valid email. Title must be
// mapped but a blank cell is tolerated; the webhook accepts an empty
// Title.
func rowToIdentity(row []string, colIdx map[string]int, m Mapping) (model.Identity, bool) {
	id := model.Identity{
		FirstName:   normalizeName(getCol(row, colIdx, m.FirstName)),
		LastName:    normalizeName(getCol(row, colIdx, m.LastName)),
		Company:     getCol(row, colIdx, m.Company),
		Title:       getCol(row, colIdx, m.Title),
		Email:       strings.ToLower(getCol(row, colIdx, m.Email)),
		LinkedInURL: getCol(row, colIdx, m.LinkedInURL),
	}

	if id.FirstName == "" || id.LastName == "" || id.Company == "" {
		return model.Identity{}, false
	}
	if !ValidEmail(id.Email) {
		return model.Identity{}, false
	}
	return id, true
}

// ValidEmail reports whether s parses as a bare address.
func ValidEmail(s string) bool {
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// getCol safely retrieves a column value from a row.
func getCol(row []string, colIdx map[string]int, col string) string {
	idx, ok := colIdx[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
