package review

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorkflowConfigStandard(t *testing.T) {
	cfg, err := ParseWorkflowConfig(WorkflowStandard, nil)
	require.NoError(t, err)
	require.NotNil(t, cfg.Standard)
	assert.True(t, cfg.Standard.Backend.Provider == "" && cfg.Standard.Backend.Model == "")

	cfg, err = ParseWorkflowConfig(WorkflowStandard, json.RawMessage(`{"backend":{"provider":"openai","model":"gpt-4o"}}`))
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Standard.Backend.Provider)
}

func TestParseWorkflowConfigCouncil(t *testing.T) {
	_, err := ParseWorkflowConfig(WorkflowCouncil, nil)
	assert.Error(t, err, "council without members must be rejected")

	cfg, err := ParseWorkflowConfig(WorkflowCouncil, json.RawMessage(`{
		"members": [{"provider":"anthropic","model":"claude-sonnet-4"}],
		"reviewer": {"provider":"openai","model":"gpt-4o"}
	}`))
	require.NoError(t, err)
	require.Len(t, cfg.Council.Members, 1)
	require.NotNil(t, cfg.Council.Reviewer)
	assert.Nil(t, cfg.Council.Chair)
}

func TestParseWorkflowConfigDiscussion(t *testing.T) {
	_, err := ParseWorkflowConfig(WorkflowDiscussion, json.RawMessage(`{"variants":1}`))
	assert.Error(t, err)

	cfg, err := ParseWorkflowConfig(WorkflowDiscussion, json.RawMessage(`{"variants":3}`))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Discussion.Variants)
}

func TestParseWorkflowConfigRejectsUnknownKind(t *testing.T) {
	_, err := ParseWorkflowConfig("tribunal", nil)
	assert.Error(t, err)
}

func TestParseWorkflowConfigRejectsMalformedJSON(t *testing.T) {
	_, err := ParseWorkflowConfig(WorkflowStandard, json.RawMessage(`{not json`))
	assert.Error(t, err)
}

func TestSessionStatusTerminal(t *testing.T) {
	assert.False(t, SessionUploaded.Terminal())
	assert.False(t, SessionAnalyzing.Terminal())
	assert.True(t, SessionCompleted.Terminal())
	assert.True(t, SessionPartial.Terminal())
	assert.True(t, SessionFailed.Terminal())
}

func TestAnalysisReset(t *testing.T) {
	now := time.Now().UTC()
	a := Analysis{
		Status:       AnalysisFailed,
		Provider:     "openai",
		Model:        "gpt-4o",
		Verdict:      json.RawMessage(`{}`),
		ErrorMessage: "boom",
		CompletedAt:  &now,
	}
	a.Reset()

	assert.Equal(t, AnalysisPending, a.Status)
	assert.Empty(t, a.Provider)
	assert.Nil(t, a.Verdict)
	assert.Empty(t, a.ErrorMessage)
	assert.Nil(t, a.CompletedAt)
}

func TestSessionSharedWith(t *testing.T) {
	s := Session{ShareWith: []string{"a@x.com"}}
	assert.True(t, s.SharedWith("a@x.com"))
	assert.False(t, s.SharedWith("b@x.com"))
}
