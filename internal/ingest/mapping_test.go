package ingest

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProposeMapping(t *testing.T) {
	headers := []string{
		"First Name", "Last Name", "Company Name", "Job Title",
		"Email Address", "LinkedIn Profile", "Mailing Address",
	}

	m := ProposeMapping(headers)
	assert.Equal(t, "First Name", m.FirstName)
	assert.Equal(t, "Last Name", m.LastName)
	assert.Equal(t, "Company Name", m.Company)
	assert.Equal(t, "Job Title", m.Title)
	assert.Equal(t, "Email Address", m.Email)
	assert.Equal(t, "LinkedIn Profile", m.LinkedInURL)
}

func TestProposeMapping_FirstMatchWins(t *testing.T) {
	m := ProposeMapping([]string{"Work Email", "Personal Email"})
	assert.Equal(t, "Work Email", m.Email)
}

func TestProposeMapping_Partial(t *testing.T) {
	m := ProposeMapping([]string{"First Name", "Surname", "Org"})
	assert.Equal(t, "First Name", m.FirstName)
	assert.Empty(t, m.LastName)
	assert.Empty(t, m.Company)
	require.Error(t, m.Validate())
}

func TestMapping_Validate(t *testing.T) {
	m := sampleMapping()
	require.NoError(t, m.Validate())

	m.LinkedInURL = ""
	require.NoError(t, m.Validate(), "linkedin is optional")

	m.Title = ""
	err := m.Validate()
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnmappedField))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "Smith", normalizeName("SMITH"))
	assert.Equal(t, "Smith", normalizeName("smith"))
	assert.Equal(t, "McDonald", normalizeName("McDonald"))
	assert.Equal(t, "Van Der Berg", normalizeName("VAN DER BERG"))
	assert.Equal(t, "", normalizeName("   "))
}
