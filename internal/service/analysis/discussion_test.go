package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browsium/roundtable/backend/internal/model/review"
)

const discussionConfig = `{"variants": 3}`

const discussionChairResponse = `{
	"final_verdict": {
		"overall_score": 6,
		"dimension_scores": {
			"relevance": {"score": 6, "commentary": "reconciled"},
			"technical_credibility": {"score": 6, "commentary": "reconciled"},
			"differentiation": {"score": 6, "commentary": "reconciled"},
			"actionability": {"score": 6, "commentary": "reconciled"},
			"trust_signals": {"score": 6, "commentary": "reconciled"},
			"language_fit": {"score": 6, "commentary": "reconciled"}
		},
		"top_3_issues": [],
		"what_works_well": ["panel agreed on pricing"],
		"overall_verdict": "Panel consensus.",
		"rewritten_headline_suggestion": "The panel's headline"
	},
	"dissents": [
		{"variant": 2, "point": "score too generous", "reason_excluded": "outvoted"}
	]
}`

func discussionRespond(call gatewayCall) (string, int) {
	switch {
	case strings.Contains(call.System, "chair of a discussion panel"):
		return discussionChairResponse, http.StatusOK
	case strings.Contains(call.System, "Critique it"):
		return `{"agreements":["pricing critique"],"disagreements":[{"point":"score","reason":"too low"}],"missed":[]}`, http.StatusOK
	default:
		// Variant analysis.
		return testVerdict, http.StatusOK
	}
}

func TestDiscussionRunsVariantsCritiquesAndChair(t *testing.T) {
	env := newTestEnv(t, fakeGateway(t, func(call gatewayCall) (string, int) {
		return discussionRespond(call)
	}))
	sess := env.createSession(t, review.WorkflowDiscussion, json.RawMessage(discussionConfig), "skeptical-ciso")

	require.NoError(t, env.registry.ForSession(sess.ID).Start(context.Background(), testOwner))
	final := waitForTerminal(t, env.records, sess.ID)
	assert.Equal(t, review.SessionCompleted, final.Status)

	ctx := context.Background()
	analyses, err := env.records.ListAnalyses(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, analyses, 3)
	for _, a := range analyses {
		assert.Equal(t, review.AnalysisCompleted, a.Status)
		assert.Contains(t, a.PersonaID, "skeptical-ciso#v")
	}

	// 3 variants critique each other all-against-all: 3*2 critiques.
	critiques, err := env.records.ListArtifacts(ctx, sess.ID, review.ArtifactDiscussionCritique)
	require.NoError(t, err)
	assert.Len(t, critiques, 6)

	chairs, err := env.records.ListArtifacts(ctx, sess.ID, review.ArtifactDiscussionChairFinal)
	require.NoError(t, err)
	require.Len(t, chairs, 1)

	var v map[string]any
	require.NoError(t, json.Unmarshal(chairs[0].Payload, &v))
	assert.Equal(t, "Panel consensus.", v["overall_verdict"])

	dissents, err := env.records.ListArtifacts(ctx, sess.ID, review.ArtifactDiscussionDissents)
	require.NoError(t, err)
	require.Len(t, dissents, 1)
	assert.Contains(t, string(dissents[0].Payload), "score too generous")
}

func TestDiscussionChairReceivesErroredCritiques(t *testing.T) {
	var mu sync.Mutex
	var chairPrompt string
	env := newTestEnv(t, fakeGateway(t, func(call gatewayCall) (string, int) {
		switch {
		case strings.Contains(call.System, "chair of a discussion panel"):
			mu.Lock()
			chairPrompt = call.Messages[0].Content
			mu.Unlock()
			return discussionChairResponse, http.StatusOK
		case strings.Contains(call.System, "independent reviewer #1 holding the role"):
			// Critiques authored by variant 1.
			return "critic down", http.StatusBadGateway
		default:
			return discussionRespond(call)
		}
	}))
	sess := env.createSession(t, review.WorkflowDiscussion, json.RawMessage(discussionConfig), "skeptical-ciso")

	require.NoError(t, env.registry.ForSession(sess.ID).Start(context.Background(), testOwner))
	final := waitForTerminal(t, env.records, sess.ID)
	assert.Equal(t, review.SessionCompleted, final.Status)

	ctx := context.Background()
	critiques, err := env.records.ListArtifacts(ctx, sess.ID, review.ArtifactDiscussionCritique)
	require.NoError(t, err)
	require.Len(t, critiques, 6)

	errored := 0
	for _, c := range critiques {
		if strings.Contains(string(c.Payload), `"error"`) {
			errored++
		}
	}
	assert.Equal(t, 2, errored, "variant 1's two critique calls fail")

	// The chair still receives all 3 verdicts and all 6 critique records,
	// the errored pair records included.
	mu.Lock()
	prompt := chairPrompt
	mu.Unlock()
	assert.Equal(t, 6, strings.Count(prompt, "<critique>"))
	assert.Equal(t, 3, strings.Count(prompt, "<verdict"))
}

func TestDiscussionChairFailureCapsAtPartial(t *testing.T) {
	env := newTestEnv(t, fakeGateway(t, func(call gatewayCall) (string, int) {
		if strings.Contains(call.System, "chair of a discussion panel") {
			return "chair unavailable", http.StatusBadGateway
		}
		return discussionRespond(call)
	}))
	sess := env.createSession(t, review.WorkflowDiscussion, json.RawMessage(discussionConfig), "skeptical-ciso")

	require.NoError(t, env.registry.ForSession(sess.ID).Start(context.Background(), testOwner))
	final := waitForTerminal(t, env.records, sess.ID)

	assert.Equal(t, review.SessionPartial, final.Status)
	assert.Contains(t, final.ErrorMessage, "chair synthesis failed")

	// Variants themselves completed; only the synthesis is missing.
	analyses, err := env.records.ListAnalyses(context.Background(), sess.ID)
	require.NoError(t, err)
	for _, a := range analyses {
		assert.Equal(t, review.AnalysisCompleted, a.Status)
	}
}

func TestDiscussionVariantFailureStillSynthesizes(t *testing.T) {
	env := newTestEnv(t, fakeGateway(t, func(call gatewayCall) (string, int) {
		if strings.Contains(call.System, "independent reviewer #2 holding this role") {
			return "variant down", http.StatusBadGateway
		}
		return discussionRespond(call)
	}))
	sess := env.createSession(t, review.WorkflowDiscussion, json.RawMessage(discussionConfig), "skeptical-ciso")

	require.NoError(t, env.registry.ForSession(sess.ID).Start(context.Background(), testOwner))
	final := waitForTerminal(t, env.records, sess.ID)
	assert.Equal(t, review.SessionPartial, final.Status)

	ctx := context.Background()
	failedVariant, err := env.records.GetAnalysis(ctx, sess.ID, "skeptical-ciso#v2")
	require.NoError(t, err)
	assert.Equal(t, review.AnalysisFailed, failedVariant.Status)

	// Two surviving variants critique each other: 2*1 critiques.
	critiques, err := env.records.ListArtifacts(ctx, sess.ID, review.ArtifactDiscussionCritique)
	require.NoError(t, err)
	assert.Len(t, critiques, 2)

	chairs, err := env.records.ListArtifacts(ctx, sess.ID, review.ArtifactDiscussionChairFinal)
	require.NoError(t, err)
	assert.Len(t, chairs, 1)
}
