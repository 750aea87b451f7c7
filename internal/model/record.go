package model

import (
	"encoding/json"
	"time"
)

// RecordStatus represents the current state of a prospect record.
type RecordStatus string

const (
	RecordStatusProcessing RecordStatus = "processing"
	RecordStatusCompleted  RecordStatus = "completed"
	RecordStatusFailed     RecordStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s RecordStatus) Terminal() bool {
	return s == RecordStatusCompleted || s == RecordStatusFailed
}

// Identity holds the prospect fields sent to the research service.
type Identity struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Company     string `json:"company"`
	Title       string `json:"title"`
	Email       string `json:"email"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
}

// FullName returns "First Last" with single-field fallback.
func (id Identity) FullName() string {
	switch {
	case id.FirstName != "" && id.LastName != "":
		return id.FirstName + " " + id.LastName
	case id.FirstName != "":
		return id.FirstName
	default:
		return id.LastName
	}
}

// Record is a single prospect plus its research status and result.
// While processing, both ResearchResult and ErrorMessage are empty;
// once terminal, exactly one of them is set.
type Record struct {
	ID             string          `json:"id"`
	Identity       Identity        `json:"identity"`
	Status         RecordStatus    `json:"status"`
	ResearchResult json.RawMessage `json:"research_result,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	ClientID       string          `json:"client_id"`
	UserID         string          `json:"user_id"`
	UploadID       string          `json:"upload_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
