package analysis

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/browsium/roundtable/backend/internal/analysis/verdict"
	"github.com/browsium/roundtable/backend/internal/model/persona"
	"github.com/browsium/roundtable/backend/internal/model/review"
	"github.com/browsium/roundtable/backend/internal/service/ai"
)

// runCouncil runs the council pipeline persona by persona. Personas are
// sequential; the member fan-out inside each persona already consumes
// the concurrency budget.
func (o *Orchestrator) runCouncil(ctx context.Context, plan Plan, personas []persona.Persona, document string) {
	for _, p := range personas {
		a, err := o.deps.Records.GetAnalysis(ctx, o.sessionID, p.ID)
		if err != nil {
			log.Printf("[council] session %s: loading analysis for %s: %v", o.sessionID, p.ID, err)
			continue
		}
		o.councilForPersona(ctx, plan, p, document, a)
	}
}

// councilForPersona runs members, reviewer and chair for one persona.
// Every member's output is recorded as an artifact whether or not it
// parsed; only parsed outputs become candidates. The reviewer is best
// effort. A chair failure falls back to the strongest candidate rather
// than failing the analysis.
func (o *Orchestrator) councilForPersona(ctx context.Context, plan Plan, p persona.Persona, document string, a *review.Analysis) {
	o.markRunning(ctx, a, plan.Chair)

	system, messages := ai.BuildAnalysisPrompt(p.Profile, p.Role, document, o.deps.Gateway.MaxDocumentChars)

	outputs := make([]string, len(plan.Members))
	errs := RunChunked(ctx, len(plan.Members), o.deps.Gateway.Concurrency, func(ctx context.Context, i int) error {
		text, err := o.deps.Client.Generate(ctx, plan.Members[i], system, messages, o.streamOptions(nil))
		if err != nil {
			o.appendArtifact(ctx, review.ArtifactCouncilMemberOutput, p.ID, plan.Members[i], errorPayload(ai.FriendlyError(err)))
			return err
		}
		outputs[i] = text
		return nil
	})

	var candidates []json.RawMessage
	for i, text := range outputs {
		if errs[i] != nil {
			continue
		}
		v, ok := verdict.TryParse(text)
		if !ok {
			o.appendArtifact(ctx, review.ArtifactCouncilMemberOutput, p.ID, plan.Members[i], rawPayload(text))
			continue
		}
		payload, err := json.Marshal(v)
		if err != nil {
			continue
		}
		o.appendArtifact(ctx, review.ArtifactCouncilMemberOutput, p.ID, plan.Members[i], payload)
		candidates = append(candidates, payload)
	}

	if len(candidates) == 0 {
		o.failAnalysis(ctx, a, "no council member produced a usable critique")
		return
	}

	peerReview := ""
	reviewSystem, reviewMessages := ai.BuildCouncilReviewPrompt(p.Role, candidates)
	if text, err := o.deps.Client.Generate(ctx, plan.Reviewer, reviewSystem, reviewMessages, o.streamOptions(nil)); err != nil {
		log.Printf("[council] session %s: peer review for %s failed: %v", o.sessionID, p.ID, err)
	} else {
		peerReview = text
		o.appendArtifact(ctx, review.ArtifactCouncilPeerReview, p.ID, plan.Reviewer, rawPayload(text))
	}

	final := candidates[0]
	chairSystem, chairMessages := ai.BuildCouncilChairPrompt(p.Role, candidates, peerReview)
	text, err := o.deps.Client.Generate(ctx, plan.Chair, chairSystem, chairMessages, o.streamOptions(a))
	switch {
	case err != nil:
		log.Printf("[council] session %s: chair for %s failed, using strongest candidate: %v", o.sessionID, p.ID, err)
		o.appendArtifact(ctx, review.ArtifactCouncilChairFinal, p.ID, plan.Chair, errorPayload(ai.FriendlyError(err)))
	default:
		if v, ok := verdict.TryParse(text); ok {
			if payload, merr := json.Marshal(v); merr == nil {
				final = payload
			}
			o.appendArtifact(ctx, review.ArtifactCouncilChairFinal, p.ID, plan.Chair, final)
		} else {
			log.Printf("[council] session %s: chair output for %s did not parse, using strongest candidate", o.sessionID, p.ID)
			o.appendArtifact(ctx, review.ArtifactCouncilChairFinal, p.ID, plan.Chair, rawPayload(text))
		}
	}

	o.completeAnalysis(ctx, a, final)
}

// streamOptions builds the gateway call options. When a is non-nil the
// call streams chunk events for that analysis; synthesis-internal calls
// pass nil and stay quiet.
func (o *Orchestrator) streamOptions(a *review.Analysis) ai.StreamOptions {
	opts := ai.StreamOptions{
		IdleTimeout:  o.deps.Gateway.IdleTimeout,
		TotalTimeout: o.deps.Gateway.TotalTimeout,
	}
	if a != nil {
		opts.OnChunk = func(chunk string) {
			o.observers.Broadcast(Event{
				Type:      EventChunk,
				SessionID: o.sessionID,
				PersonaID: a.PersonaID,
				Text:      chunk,
			})
		}
	}
	return opts
}

func (o *Orchestrator) appendArtifact(ctx context.Context, kind review.ArtifactKind, groupID string, backend review.Backend, payload json.RawMessage) {
	art := &review.Artifact{
		SessionID: o.sessionID,
		Kind:      kind,
		GroupID:   groupID,
		Provider:  backend.Provider,
		Model:     backend.Model,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.deps.Records.AppendArtifact(ctx, art); err != nil {
		log.Printf("[orchestrator] session %s: appending %s artifact: %v", o.sessionID, kind, err)
	}
}

func rawPayload(text string) json.RawMessage {
	payload, _ := json.Marshal(map[string]string{"raw": text})
	return payload
}

func errorPayload(msg string) json.RawMessage {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return payload
}
