package ingest

import (
	"bytes"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

const sampleCSV = `First Name,Last Name,Company,Title,EMail,LinkedIn URL
John,Smith,Acme Corp,CEO,john@acme.com,https://linkedin.com/in/jsmith
Jane,Doe,Globex,CTO,jane@globex.io,
MARY,JOHNSON,Initech,VP Sales,mary@initech.com,
`

func sampleMapping() Mapping {
	return Mapping{
		FirstName:   "First Name",
		LastName:    "Last Name",
		Company:     "Company",
		Title:       "Title",
		Email:       "EMail",
		LinkedInURL: "LinkedIn URL",
	}
}

func TestPreviewFile_CSV(t *testing.T) {
	p, err := PreviewFile([]byte(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"First Name", "Last Name", "Company", "Title", "EMail", "LinkedIn URL"}, p.Headers)
	assert.Equal(t, 3, p.RowCount)
	assert.Len(t, p.SampleRows, 3)
	assert.Equal(t, "John", p.SampleRows[0][0])
}

func TestPreviewFile_SampleCapped(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("First Name,Last Name,Company,Title,EMail\n")
	for i := 0; i < 20; i++ {
		buf.WriteString("A,B,C,D,a@b.com\n")
	}

	p, err := PreviewFile(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 20, p.RowCount)
	assert.Len(t, p.SampleRows, 5)
}

func TestPreviewFile_Empty(t *testing.T) {
	_, err := PreviewFile([]byte("  \n"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrEmptyInput))
}

func TestPreviewFile_HeaderOnly(t *testing.T) {
	_, err := PreviewFile([]byte("First Name,Last Name\n"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrEmptyInput))
}

func TestPreviewFile_Malformed(t *testing.T) {
	// ZIP magic followed by garbage: claims XLSX, isn't one.
	_, err := PreviewFile([]byte("PK\x03\x04not really a spreadsheet"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMalformedInput))
}

func TestPreviewFile_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Prospects")
	require.NoError(t, err)

	for _, rowVals := range [][]string{
		{"First Name", "Last Name", "Company", "Title", "EMail"},
		{"John", "Smith", "Acme Corp", "CEO", "john@acme.com"},
		{"Jane", "Doe", "Globex", "CTO", "jane@globex.io"},
	} {
		row := sheet.AddRow()
		for _, v := range rowVals {
			row.AddCell().SetString(v)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	p, err := PreviewFile(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"First Name", "Last Name", "Company", "Title", "EMail"}, p.Headers)
	assert.Equal(t, 2, p.RowCount)
}

func TestParseRows_AllValid(t *testing.T) {
	ids, skipped, err := ParseRows([]byte(sampleCSV), sampleMapping(), RowRange{})
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	require.Len(t, ids, 3)

	assert.Equal(t, "John", ids[0].FirstName)
	assert.Equal(t, "Acme Corp", ids[0].Company)
	assert.Equal(t, "john@acme.com", ids[0].Email)
	assert.Equal(t, "https://linkedin.com/in/jsmith", ids[0].LinkedInURL)

	// Shouty CRM names get normalized.
	assert.Equal(t, "Mary", ids[2].FirstName)
	assert.Equal(t, "Johnson", ids[2].LastName)
}

func TestParseRows_SkipsInvalidRows(t *testing.T) {
	csvData := `First Name,Last Name,Company,Title,EMail
John,Smith,Acme,CEO,john@acme.com
,Missing,Acme,CEO,missing@acme.com
Bad,Email,Acme,CEO,not-an-email
Tina,Turner,Acme,,tina@acme.com
Jane,Doe,Globex,CTO,jane@globex.io
`
	ids, skipped, err := ParseRows([]byte(csvData), sampleMapping2(), RowRange{})
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, ids, 3)
	assert.Equal(t, "John", ids[0].FirstName)

	// Title must be mapped, but a blank cell does not skip the row.
	assert.Equal(t, "Tina", ids[1].FirstName)
	assert.Empty(t, ids[1].Title)

	assert.Equal(t, "Jane", ids[2].FirstName)
}

func sampleMapping2() Mapping {
	m := sampleMapping()
	m.LinkedInURL = ""
	return m
}

func TestParseRows_RowRange(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("First Name,Last Name,Company,Title,EMail\n")
	for i := 0; i < 10; i++ {
		buf.WriteString("A,B,C,D,a@b.com\n")
	}

	ids, _, err := ParseRows(buf.Bytes(), sampleMapping2(), RowRange{Start: 3, MaxRows: 4})
	require.NoError(t, err)
	assert.Len(t, ids, 4)

	_, _, err = ParseRows(buf.Bytes(), sampleMapping2(), RowRange{Start: 50})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrEmptyInput))
}

func TestParseRows_UnmappedField(t *testing.T) {
	m := sampleMapping()
	m.Email = ""
	_, _, err := ParseRows([]byte(sampleCSV), m, RowRange{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnmappedField))
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("a@b.com"))
	assert.True(t, ValidEmail("first.last+tag@sub.example.org"))
	assert.False(t, ValidEmail(""))
	assert.False(t, ValidEmail("not-an-email"))
	assert.False(t, ValidEmail("John Smith <a@b.com>"))
}
