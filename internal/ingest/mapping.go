package ingest

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Mapping assigns an uploaded file's column headers to record identity
// fields. Values are header names as they appear in the file; empty
// means unassigned. LinkedInURL is the only optional field.
type Mapping struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Company     string `json:"company"`
	Title       string `json:"title"`
	Email       string `json:"email"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
}

// Validate checks that every required field has a header assigned.
func (m Mapping) Validate() error {
	required := []struct{ field, header string }{
		{"first_name", m.FirstName},
		{"last_name", m.LastName},
		{"company", m.Company},
		{"title", m.Title},
		{"email", m.Email},
	}
	for _, r := range required {
		if r.header == "" {
			return eris.Wrapf(ErrUnmappedField, "ingest: %s", r.field)
		}
	}
	return nil
}

// matchRule maps a logical field to substrings that must all appear in
// a header (case-insensitive) for it to auto-match.
type matchRule struct {
	assign func(*Mapping, string)
	needs  []string
}

var matchRules = []matchRule{
	{func(m *Mapping, h string) { m.FirstName = h }, []string{"first", "name"}},
	{func(m *Mapping, h string) { m.LastName = h }, []string{"last", "name"}},
	{func(m *Mapping, h string) { m.LinkedInURL = h }, []string{"linkedin"}},
	{func(m *Mapping, h string) { m.Email = h }, []string{"email"}},
	{func(m *Mapping, h string) { m.Company = h }, []string{"company"}},
	{func(m *Mapping, h string) { m.Title = h }, []string{"title"}},
}

// ProposeMapping auto-matches headers to identity fields using
// substring heuristics. Fields with no matching header stay empty for
// manual assignment. The first matching header wins per field.
func ProposeMapping(headers []string) Mapping {
	var m Mapping
	assigned := make(map[int]bool, len(matchRules))

	for ri, rule := range matchRules {
		for _, h := range headers {
			if assigned[ri] {
				break
			}
			lower := strings.ToLower(h)
			ok := true
			for _, n := range rule.needs {
				if !strings.Contains(lower, n) {
					ok = false
					break
				}
			}
			if ok {
				rule.assign(&m, h)
				assigned[ri] = true
			}
		}
	}

	return m
}

var titleCaser = cases.Title(language.English)

// normalizeName fixes shouty all-caps names from CRM exports
// ("SMITH" → "Smith") but leaves mixed-case names untouched so
// "McDonald" survives.
func normalizeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if s == strings.ToUpper(s) || s == strings.ToLower(s) {
		return titleCaser.String(strings.ToLower(s))
	}
	return s
}
