package review

import (
	"encoding/json"
	"time"
)

// AnalysisStatus tracks a single persona's evaluation attempt.
type AnalysisStatus string

const (
	AnalysisPending   AnalysisStatus = "pending"
	AnalysisRunning   AnalysisStatus = "running"
	AnalysisCompleted AnalysisStatus = "completed"
	AnalysisFailed    AnalysisStatus = "failed"
)

// Terminal reports whether the analysis attempt has resolved.
func (s AnalysisStatus) Terminal() bool {
	return s == AnalysisCompleted || s == AnalysisFailed
}

// Analysis is one persona's structured critique of a session document.
// A retry resets the row in place rather than creating a new one.
type Analysis struct {
	ID           int64           `json:"id"`
	SessionID    string          `json:"sessionId"`
	PersonaID    string          `json:"personaId"`
	PersonaName  string          `json:"personaName,omitempty"`
	Status       AnalysisStatus  `json:"status"`
	Provider     string          `json:"provider,omitempty"`
	Model        string          `json:"model,omitempty"`
	Verdict      json.RawMessage `json:"verdict,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}

// Reset clears the mutable fields ahead of a retry.
func (a *Analysis) Reset() {
	a.Status = AnalysisPending
	a.Provider = ""
	a.Model = ""
	a.Verdict = nil
	a.ErrorMessage = ""
	a.CompletedAt = nil
}
