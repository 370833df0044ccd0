package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/browsium/roundtable/backend/internal/analysis/verdict"
	"github.com/browsium/roundtable/backend/internal/model/persona"
	"github.com/browsium/roundtable/backend/internal/model/review"
	"github.com/browsium/roundtable/backend/internal/service/ai"
)

// runDiscussion runs the discussion pipeline: N independent variants of
// the persona analyze the document, completed variants critique each
// other all-against-all, and the chair reconciles everything into one
// final verdict plus dissents. Returns a session status cap when the
// chair stage fails after variants succeeded.
func (o *Orchestrator) runDiscussion(ctx context.Context, plan Plan, p persona.Persona, document string) (review.SessionStatus, string) {
	RunChunked(ctx, plan.Variants, o.deps.Gateway.Concurrency, func(ctx context.Context, i int) error {
		n := i + 1
		a, err := o.deps.Records.GetAnalysis(ctx, o.sessionID, variantID(p.ID, n))
		if err != nil {
			log.Printf("[discussion] session %s: loading variant %d: %v", o.sessionID, n, err)
			return err
		}
		return o.runVariant(ctx, plan, p, document, a, n)
	})

	completed := o.completedVariants(ctx, p.ID, plan.Variants)
	if len(completed) == 0 {
		return "", ""
	}

	type pair struct{ from, to int }
	var pairs []pair
	for _, from := range completed {
		for _, to := range completed {
			if from != to {
				pairs = append(pairs, pair{from, to})
			}
		}
	}
	RunChunked(ctx, len(pairs), o.deps.Gateway.Concurrency, func(ctx context.Context, i int) error {
		return o.critique(ctx, plan, p, pairs[i].from, pairs[i].to)
	})

	return o.chairSynthesis(ctx, plan, p)
}

func (o *Orchestrator) runVariant(ctx context.Context, plan Plan, p persona.Persona, document string, a *review.Analysis, n int) error {
	system, messages := ai.BuildVariantPrompt(p.Profile, p.Role, document, n, o.deps.Gateway.MaxDocumentChars)
	return o.executeAnalysis(ctx, a, plan.Variant, system, messages)
}

// critique has variant `from` critique variant `to`'s verdict. The
// result is recorded as an artifact either way; a failed critique never
// fails the session, its error record simply reaches the chair instead
// of a substantive critique.
func (o *Orchestrator) critique(ctx context.Context, plan Plan, p persona.Persona, from, to int) error {
	target, err := o.deps.Records.GetAnalysis(ctx, o.sessionID, variantID(p.ID, to))
	if err != nil || len(target.Verdict) == 0 {
		return err
	}

	groupID := critiqueGroupID(from, to)
	system, messages := ai.BuildCritiquePrompt(p.Role, from, to, target.Verdict)
	text, err := o.deps.Client.Generate(ctx, plan.Variant, system, messages, o.streamOptions(nil))
	if err != nil {
		o.appendArtifact(ctx, review.ArtifactDiscussionCritique, groupID, plan.Variant, errorPayload(ai.FriendlyError(err)))
		return err
	}

	payload := rawPayload(text)
	if obj, ok := verdict.ExtractObject(text); ok {
		if encoded, merr := json.Marshal(obj); merr == nil {
			payload = encoded
		}
	}
	o.appendArtifact(ctx, review.ArtifactDiscussionCritique, groupID, plan.Variant, payload)
	return nil
}

// rerunCritiques refreshes the critiques a retried variant participates
// in, both directions, against the currently completed variants.
func (o *Orchestrator) rerunCritiques(ctx context.Context, plan Plan, p persona.Persona, variant int) {
	completed := o.completedVariants(ctx, p.ID, plan.Variants)

	type pair struct{ from, to int }
	var pairs []pair
	for _, other := range completed {
		if other == variant {
			continue
		}
		pairs = append(pairs, pair{variant, other}, pair{other, variant})
	}
	RunChunked(ctx, len(pairs), o.deps.Gateway.Concurrency, func(ctx context.Context, i int) error {
		return o.critique(ctx, plan, p, pairs[i].from, pairs[i].to)
	})
}

// chairSynthesis reconciles persisted variant verdicts and critiques
// into the final verdict and dissent artifacts. It reads everything
// from the store so a retry can re-run it without the original run's
// in-memory state. A chair failure caps the session at partial.
func (o *Orchestrator) chairSynthesis(ctx context.Context, plan Plan, p persona.Persona) (review.SessionStatus, string) {
	analyses, err := o.deps.Records.ListAnalyses(ctx, o.sessionID)
	if err != nil {
		log.Printf("[discussion] session %s: listing analyses for chair: %v", o.sessionID, err)
		return review.SessionPartial, "chair synthesis could not load variant verdicts"
	}

	byID := make(map[string]*review.Analysis, len(analyses))
	for _, a := range analyses {
		byID[a.PersonaID] = a
	}

	var verdicts []json.RawMessage
	for n := 1; n <= plan.Variants; n++ {
		a, ok := byID[variantID(p.ID, n)]
		if ok && a.Status == review.AnalysisCompleted && len(a.Verdict) > 0 {
			verdicts = append(verdicts, a.Verdict)
		}
	}
	if len(verdicts) == 0 {
		return "", ""
	}

	critiques := o.latestCritiques(ctx)

	system, messages := ai.BuildDiscussionChairPrompt(p.Role, verdicts, critiques)
	text, err := o.deps.Client.Generate(ctx, plan.Chair, system, messages, o.streamOptions(nil))
	if err != nil {
		msg := "chair synthesis failed: " + ai.FriendlyError(err)
		o.appendArtifact(ctx, review.ArtifactDiscussionChairFinal, p.ID, plan.Chair, errorPayload(msg))
		return review.SessionPartial, msg
	}

	obj, ok := verdict.ExtractObject(text)
	if !ok {
		o.appendArtifact(ctx, review.ArtifactDiscussionChairFinal, p.ID, plan.Chair, rawPayload(text))
		return review.SessionPartial, "chair synthesis returned no parsable verdict"
	}

	// Chairs that skip the envelope and return a bare verdict still count.
	verdictObj := obj
	if inner, ok := obj["final_verdict"].(map[string]any); ok {
		verdictObj = inner
	}
	final, err := json.Marshal(verdict.FromObject(verdictObj))
	if err != nil {
		return review.SessionPartial, "chair synthesis produced an unencodable verdict"
	}
	o.appendArtifact(ctx, review.ArtifactDiscussionChairFinal, p.ID, plan.Chair, final)

	if dissents, ok := obj["dissents"]; ok {
		if payload, merr := json.Marshal(dissents); merr == nil {
			o.appendArtifact(ctx, review.ArtifactDiscussionDissents, p.ID, plan.Chair, payload)
		}
	}
	return "", ""
}

// completedVariants returns the 1-based variant numbers whose analyses
// completed, in order.
func (o *Orchestrator) completedVariants(ctx context.Context, baseID string, variants int) []int {
	var completed []int
	for n := 1; n <= variants; n++ {
		a, err := o.deps.Records.GetAnalysis(ctx, o.sessionID, variantID(baseID, n))
		if err == nil && a.Status == review.AnalysisCompleted {
			completed = append(completed, n)
		}
	}
	return completed
}

// latestCritiques returns the newest critique payload per variant pair,
// error records included. The chair sees the full picture: a failed
// critique call shows up as its error payload, not as a missing record.
func (o *Orchestrator) latestCritiques(ctx context.Context) []json.RawMessage {
	arts, err := o.deps.Records.ListArtifacts(ctx, o.sessionID, review.ArtifactDiscussionCritique)
	if err != nil {
		log.Printf("[discussion] session %s: listing critiques: %v", o.sessionID, err)
		return nil
	}

	latest := make(map[string]json.RawMessage)
	var order []string
	for _, art := range arts {
		if _, seen := latest[art.GroupID]; !seen {
			order = append(order, art.GroupID)
		}
		latest[art.GroupID] = art.Payload
	}

	out := make([]json.RawMessage, 0, len(latest))
	for _, group := range order {
		out = append(out, latest[group])
	}
	return out
}

func critiqueGroupID(from, to int) string {
	return fmt.Sprintf("v%d->v%d", from, to)
}
