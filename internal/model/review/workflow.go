package review

import (
	"encoding/json"
	"fmt"
)

// WorkflowKind selects how persona analyses are orchestrated.
type WorkflowKind string

const (
	WorkflowStandard   WorkflowKind = "standard"
	WorkflowCouncil    WorkflowKind = "council"
	WorkflowDiscussion WorkflowKind = "discussion"
)

// Valid reports whether k names a known workflow.
func (k WorkflowKind) Valid() bool {
	switch k {
	case WorkflowStandard, WorkflowCouncil, WorkflowDiscussion:
		return true
	}
	return false
}

// BackendRef is a loose (provider, model) pair as supplied by a client.
// It is not trusted until it passes backend resolution.
type BackendRef struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Backend is a validated, canonical (provider, model) pair.
type Backend struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (b Backend) String() string {
	return b.Provider + "/" + b.Model
}

// IsZero reports whether the backend is unset.
func (b Backend) IsZero() bool {
	return b.Provider == "" && b.Model == ""
}

// StandardConfig runs one analysis per persona on a single backend.
type StandardConfig struct {
	Backend BackendRef `json:"backend"`
}

// CouncilConfig has several member backends independently analyze each
// persona, a reviewer rank the member outputs, and a chair synthesize
// the final verdict. Reviewer defaults to the chair; chair defaults to
// the session backend.
type CouncilConfig struct {
	Members  []BackendRef `json:"members"`
	Reviewer *BackendRef  `json:"reviewer,omitempty"`
	Chair    *BackendRef  `json:"chair,omitempty"`
}

// DiscussionConfig has N variants of a single role analyze the document,
// critique each other all-against-all, and a chair synthesize one final
// verdict plus dissent notes.
type DiscussionConfig struct {
	Variants int         `json:"variants"`
	Backend  *BackendRef `json:"backend,omitempty"`
	Chair    *BackendRef `json:"chair,omitempty"`
}

// WorkflowConfig is the tagged union parsed from a session's opaque
// workflow configuration JSON.
type WorkflowConfig struct {
	Kind       WorkflowKind
	Standard   *StandardConfig
	Council    *CouncilConfig
	Discussion *DiscussionConfig
}

// ParseWorkflowConfig validates a session's workflow kind and raw config
// blob into a tagged variant. A nil/empty blob is valid for the standard
// workflow and yields defaults.
func ParseWorkflowConfig(kind WorkflowKind, raw json.RawMessage) (WorkflowConfig, error) {
	if !kind.Valid() {
		return WorkflowConfig{}, fmt.Errorf("unknown workflow kind %q", kind)
	}

	cfg := WorkflowConfig{Kind: kind}
	switch kind {
	case WorkflowStandard:
		std := &StandardConfig{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, std); err != nil {
				return WorkflowConfig{}, fmt.Errorf("invalid standard workflow config: %w", err)
			}
		}
		cfg.Standard = std
	case WorkflowCouncil:
		council := &CouncilConfig{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, council); err != nil {
				return WorkflowConfig{}, fmt.Errorf("invalid council workflow config: %w", err)
			}
		}
		if len(council.Members) == 0 {
			return WorkflowConfig{}, fmt.Errorf("council workflow requires at least one member backend")
		}
		cfg.Council = council
	case WorkflowDiscussion:
		discussion := &DiscussionConfig{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, discussion); err != nil {
				return WorkflowConfig{}, fmt.Errorf("invalid discussion workflow config: %w", err)
			}
		}
		if discussion.Variants < 2 {
			return WorkflowConfig{}, fmt.Errorf("discussion workflow requires at least 2 variants, got %d", discussion.Variants)
		}
		cfg.Discussion = discussion
	}

	return cfg, nil
}
