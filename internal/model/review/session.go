package review

import (
	"encoding/json"
	"time"
)

// SessionStatus tracks the lifecycle of a review session.
type SessionStatus string

const (
	SessionUploaded  SessionStatus = "uploaded"
	SessionAnalyzing SessionStatus = "analyzing"
	SessionCompleted SessionStatus = "completed"
	SessionPartial   SessionStatus = "partial"
	SessionFailed    SessionStatus = "failed"
)

// Terminal reports whether the session can no longer change on its own.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionPartial, SessionFailed:
		return true
	}
	return false
}

// Session captures one submitted document and its selected reviewers.
type Session struct {
	ID              string          `json:"id"`
	OwnerEmail      string          `json:"ownerEmail"`
	FileName        string          `json:"fileName"`
	FileMetadata    json.RawMessage `json:"fileMetadata,omitempty"`
	DocumentRef     string          `json:"documentRef"`
	PersonaIDs      []string        `json:"selectedPersonaIds"`
	Workflow        WorkflowKind    `json:"workflow"`
	WorkflowConfig  json.RawMessage `json:"workflowConfig,omitempty"`
	DisplayProvider string          `json:"displayProvider,omitempty"`
	DisplayModel    string          `json:"displayModel,omitempty"`
	Status          SessionStatus   `json:"status"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`
	ShareWith       []string        `json:"shareWithEmails,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// SharedWith reports whether the session was explicitly shared with email.
func (s *Session) SharedWith(email string) bool {
	for _, e := range s.ShareWith {
		if e == email {
			return true
		}
	}
	return false
}
