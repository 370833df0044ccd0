// Package analysis orchestrates review runs: it plans workflow
// execution, fans persona analyses out to the model gateway under a
// concurrency ceiling, persists every state change, and streams
// progress events to session observers. Session outcome is always
// recomputed from persisted analysis rows, never from in-memory state.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/browsium/roundtable/backend/internal/analysis/verdict"
	"github.com/browsium/roundtable/backend/internal/model/persona"
	"github.com/browsium/roundtable/backend/internal/model/review"
	"github.com/browsium/roundtable/backend/internal/service/ai"
)

var (
	ErrAlreadyRunning    = errors.New("session analysis is already running")
	ErrAlreadyStarted    = errors.New("session analysis was already started")
	ErrNotOwner          = errors.New("only the session owner may do this")
	ErrSessionActive     = errors.New("session is still analyzing")
	ErrAnalysisNotFailed = errors.New("only failed analyses can be retried")
	ErrGatewayDisabled   = errors.New("model gateway is not configured")
)

// Orchestrator drives all runs for one session. At most one run is in
// flight at a time; starts and retries while one is active are rejected.
type Orchestrator struct {
	sessionID string
	deps      Deps
	observers *ObserverSet

	mu      sync.Mutex
	running bool
}

func newOrchestrator(sessionID string, deps Deps) *Orchestrator {
	return &Orchestrator{
		sessionID: sessionID,
		deps:      deps,
		observers: NewObserverSet(),
	}
}

// Observers returns the session's progress event feed.
func (o *Orchestrator) Observers() *ObserverSet {
	return o.observers
}

// Start validates the session and launches its workflow in the
// background. Validation failures mark the session failed before
// returning; once Start returns nil the run proceeds detached from the
// request context.
func (o *Orchestrator) Start(ctx context.Context, email string) error {
	sess, err := o.deps.Records.GetSession(ctx, o.sessionID)
	if err != nil {
		return err
	}
	if sess.OwnerEmail != email {
		return ErrNotOwner
	}
	if sess.Status == review.SessionAnalyzing {
		return ErrAlreadyRunning
	}
	if sess.Status != review.SessionUploaded {
		return ErrAlreadyStarted
	}

	if !o.acquire() {
		return ErrAlreadyRunning
	}

	plan, personas, document, err := o.prepare(ctx, sess)
	if err != nil {
		o.release()
		o.failSession(ctx, sess, err)
		return err
	}

	if err := o.seedAnalyses(ctx, sess, plan, personas); err != nil {
		o.release()
		o.failSession(ctx, sess, err)
		return err
	}

	sess.Status = review.SessionAnalyzing
	sess.ErrorMessage = ""
	sess.UpdatedAt = time.Now().UTC()
	if err := o.deps.Records.UpdateSession(ctx, sess); err != nil {
		o.release()
		return err
	}
	o.broadcastStatus("", string(review.SessionAnalyzing))

	// The run outlives the HTTP request that triggered it.
	go func() {
		defer o.release()
		o.run(context.Background(), plan, personas, document)
	}()
	return nil
}

// Retry re-runs a single failed analysis on a terminal session. For
// discussion sessions the retried variant's cross-critiques and the
// chair synthesis are re-run as well, from persisted state.
func (o *Orchestrator) Retry(ctx context.Context, email, personaID string) error {
	sess, err := o.deps.Records.GetSession(ctx, o.sessionID)
	if err != nil {
		return err
	}
	if sess.OwnerEmail != email {
		return ErrNotOwner
	}
	if !sess.Status.Terminal() {
		return ErrSessionActive
	}

	target, err := o.deps.Records.GetAnalysis(ctx, o.sessionID, personaID)
	if err != nil {
		return err
	}
	if target.Status != review.AnalysisFailed {
		return ErrAnalysisNotFailed
	}

	if !o.acquire() {
		return ErrAlreadyRunning
	}

	plan, _, document, err := o.prepare(ctx, sess)
	if err != nil {
		o.release()
		return err
	}

	target.Reset()
	if err := o.deps.Records.UpdateAnalysis(ctx, target); err != nil {
		o.release()
		return err
	}

	sess.Status = review.SessionAnalyzing
	sess.ErrorMessage = ""
	sess.UpdatedAt = time.Now().UTC()
	if err := o.deps.Records.UpdateSession(ctx, sess); err != nil {
		o.release()
		return err
	}
	o.broadcastStatus("", string(review.SessionAnalyzing))

	go func() {
		defer o.release()
		o.retryRun(context.Background(), plan, document, target)
	}()
	return nil
}

func (o *Orchestrator) acquire() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return false
	}
	o.running = true
	return true
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

// prepare resolves everything a run needs up front so failures surface
// before any analysis row changes state.
func (o *Orchestrator) prepare(ctx context.Context, sess *review.Session) (Plan, []persona.Persona, string, error) {
	if !o.deps.Gateway.Enabled() {
		return Plan{}, nil, "", ErrGatewayDisabled
	}

	plan, err := BuildPlan(sess, o.deps.Gateway)
	if err != nil {
		return Plan{}, nil, "", err
	}

	if len(sess.PersonaIDs) == 0 {
		return Plan{}, nil, "", fmt.Errorf("session has no personas selected")
	}

	personas := make([]persona.Persona, 0, len(sess.PersonaIDs))
	for _, id := range sess.PersonaIDs {
		p, ok := o.deps.Personas.FindByID(id)
		if !ok {
			return Plan{}, nil, "", fmt.Errorf("persona %q not found", id)
		}
		personas = append(personas, p)
	}

	data, err := o.deps.Documents.Fetch(ctx, sess.DocumentRef)
	if err != nil {
		return Plan{}, nil, "", fmt.Errorf("fetching document: %w", err)
	}

	return plan, personas, string(data), nil
}

// seedAnalyses creates the pending rows the run will fill in. The
// discussion workflow runs variants of the first selected persona, one
// row per variant.
func (o *Orchestrator) seedAnalyses(ctx context.Context, sess *review.Session, plan Plan, personas []persona.Persona) error {
	now := time.Now().UTC()

	if plan.Kind == review.WorkflowDiscussion {
		base := personas[0]
		for i := 1; i <= plan.Variants; i++ {
			a := &review.Analysis{
				SessionID:   sess.ID,
				PersonaID:   variantID(base.ID, i),
				PersonaName: fmt.Sprintf("%s (reviewer %d)", base.Name, i),
				Status:      review.AnalysisPending,
				CreatedAt:   now,
			}
			if err := o.deps.Records.CreateAnalysis(ctx, a); err != nil {
				return err
			}
		}
		return nil
	}

	for _, p := range personas {
		a := &review.Analysis{
			SessionID:   sess.ID,
			PersonaID:   p.ID,
			PersonaName: p.Name,
			Status:      review.AnalysisPending,
			CreatedAt:   now,
		}
		if err := o.deps.Records.CreateAnalysis(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, plan Plan, personas []persona.Persona, document string) {
	var capStatus review.SessionStatus
	var capMsg string

	switch plan.Kind {
	case review.WorkflowStandard:
		o.runStandard(ctx, plan, personas, document)
	case review.WorkflowCouncil:
		o.runCouncil(ctx, plan, personas, document)
	case review.WorkflowDiscussion:
		capStatus, capMsg = o.runDiscussion(ctx, plan, personas[0], document)
	}

	o.finalize(ctx, capStatus, capMsg)
}

func (o *Orchestrator) retryRun(ctx context.Context, plan Plan, document string, target *review.Analysis) {
	var capStatus review.SessionStatus
	var capMsg string

	switch plan.Kind {
	case review.WorkflowStandard:
		if p, ok := o.deps.Personas.FindByID(target.PersonaID); ok {
			system, messages := ai.BuildAnalysisPrompt(p.Profile, p.Role, document, o.deps.Gateway.MaxDocumentChars)
			_ = o.executeAnalysis(ctx, target, plan.Default, system, messages)
		} else {
			o.failAnalysis(ctx, target, fmt.Sprintf("persona %q no longer exists", target.PersonaID))
		}

	case review.WorkflowCouncil:
		if p, ok := o.deps.Personas.FindByID(target.PersonaID); ok {
			o.councilForPersona(ctx, plan, p, document, target)
		} else {
			o.failAnalysis(ctx, target, fmt.Sprintf("persona %q no longer exists", target.PersonaID))
		}

	case review.WorkflowDiscussion:
		base, variant, ok := splitVariantID(target.PersonaID)
		if !ok {
			o.failAnalysis(ctx, target, fmt.Sprintf("malformed variant id %q", target.PersonaID))
			break
		}
		p, found := o.deps.Personas.FindByID(base)
		if !found {
			o.failAnalysis(ctx, target, fmt.Sprintf("persona %q no longer exists", base))
			break
		}
		if err := o.runVariant(ctx, plan, p, document, target, variant); err == nil {
			o.rerunCritiques(ctx, plan, p, variant)
		}
		capStatus, capMsg = o.chairSynthesis(ctx, plan, p)
	}

	o.finalize(ctx, capStatus, capMsg)
}

func (o *Orchestrator) runStandard(ctx context.Context, plan Plan, personas []persona.Persona, document string) {
	RunChunked(ctx, len(personas), o.deps.Gateway.Concurrency, func(ctx context.Context, i int) error {
		p := personas[i]
		a, err := o.deps.Records.GetAnalysis(ctx, o.sessionID, p.ID)
		if err != nil {
			log.Printf("[orchestrator] session %s: loading analysis for %s: %v", o.sessionID, p.ID, err)
			return err
		}
		system, messages := ai.BuildAnalysisPrompt(p.Profile, p.Role, document, o.deps.Gateway.MaxDocumentChars)
		return o.executeAnalysis(ctx, a, plan.Default, system, messages)
	})
}

// executeAnalysis drives one persona analysis end to end: running state,
// gateway call with chunk streaming, verdict normalization, terminal
// state. Model output that fails to parse still completes the analysis
// with a fallback verdict; only transport-level failures fail it.
func (o *Orchestrator) executeAnalysis(ctx context.Context, a *review.Analysis, backend review.Backend, system string, messages []ai.Message) error {
	o.markRunning(ctx, a, backend)

	text, err := o.deps.Client.Generate(ctx, backend, system, messages, ai.StreamOptions{
		IdleTimeout:  o.deps.Gateway.IdleTimeout,
		TotalTimeout: o.deps.Gateway.TotalTimeout,
		OnChunk: func(chunk string) {
			o.observers.Broadcast(Event{
				Type:      EventChunk,
				SessionID: o.sessionID,
				PersonaID: a.PersonaID,
				Text:      chunk,
			})
		},
	})
	if err != nil {
		o.failAnalysis(ctx, a, ai.FriendlyError(err))
		return err
	}

	payload, err := json.Marshal(verdict.Parse(text))
	if err != nil {
		o.failAnalysis(ctx, a, "failed to encode verdict")
		return err
	}

	o.completeAnalysis(ctx, a, payload)
	return nil
}

func (o *Orchestrator) markRunning(ctx context.Context, a *review.Analysis, backend review.Backend) {
	a.Status = review.AnalysisRunning
	a.Provider = backend.Provider
	a.Model = backend.Model
	if err := o.deps.Records.UpdateAnalysis(ctx, a); err != nil {
		log.Printf("[orchestrator] session %s: persisting running state for %s: %v", o.sessionID, a.PersonaID, err)
	}
	o.broadcastStatus(a.PersonaID, string(review.AnalysisRunning))
}

func (o *Orchestrator) completeAnalysis(ctx context.Context, a *review.Analysis, verdictJSON json.RawMessage) {
	now := time.Now().UTC()
	a.Status = review.AnalysisCompleted
	a.Verdict = verdictJSON
	a.ErrorMessage = ""
	a.CompletedAt = &now
	if err := o.deps.Records.UpdateAnalysis(ctx, a); err != nil {
		log.Printf("[orchestrator] session %s: persisting verdict for %s: %v", o.sessionID, a.PersonaID, err)
	}
	o.observers.Broadcast(Event{
		Type:      EventComplete,
		SessionID: o.sessionID,
		PersonaID: a.PersonaID,
		Status:    string(review.AnalysisCompleted),
		Result:    verdictJSON,
	})
}

func (o *Orchestrator) failAnalysis(ctx context.Context, a *review.Analysis, msg string) {
	now := time.Now().UTC()
	a.Status = review.AnalysisFailed
	a.ErrorMessage = msg
	a.CompletedAt = &now
	if err := o.deps.Records.UpdateAnalysis(ctx, a); err != nil {
		log.Printf("[orchestrator] session %s: persisting failure for %s: %v", o.sessionID, a.PersonaID, err)
	}
	o.observers.Broadcast(Event{
		Type:      EventError,
		SessionID: o.sessionID,
		PersonaID: a.PersonaID,
		Status:    string(review.AnalysisFailed),
		Error:     msg,
	})
}

// finalize recomputes the session outcome from persisted analysis rows.
// capStatus, when set, bounds an otherwise completed session (used when
// a discussion chair fails after the variants succeeded).
func (o *Orchestrator) finalize(ctx context.Context, capStatus review.SessionStatus, capMsg string) {
	analyses, err := o.deps.Records.ListAnalyses(ctx, o.sessionID)
	if err != nil {
		log.Printf("[orchestrator] session %s: listing analyses for finalize: %v", o.sessionID, err)
		return
	}

	failed := 0
	for _, a := range analyses {
		if a.Status == review.AnalysisFailed {
			failed++
		}
	}

	status := review.SessionCompleted
	switch {
	case failed == 0:
		status = review.SessionCompleted
	case failed == len(analyses):
		status = review.SessionFailed
	default:
		status = review.SessionPartial
	}

	errMsg := ""
	if capStatus != "" && status != review.SessionFailed {
		if status == review.SessionCompleted {
			status = capStatus
		}
		errMsg = capMsg
	}

	sess, err := o.deps.Records.GetSession(ctx, o.sessionID)
	if err != nil {
		log.Printf("[orchestrator] session %s: loading session for finalize: %v", o.sessionID, err)
		return
	}
	sess.Status = status
	sess.ErrorMessage = errMsg
	sess.UpdatedAt = time.Now().UTC()
	if err := o.deps.Records.UpdateSession(ctx, sess); err != nil {
		log.Printf("[orchestrator] session %s: persisting final status: %v", o.sessionID, err)
	}

	log.Printf("[orchestrator] session %s finished: %s (%d/%d failed)", o.sessionID, status, failed, len(analyses))
	o.observers.Broadcast(Event{
		Type:      EventAllComplete,
		SessionID: o.sessionID,
		Status:    string(status),
		Error:     errMsg,
	})
}

func (o *Orchestrator) failSession(ctx context.Context, sess *review.Session, cause error) {
	sess.Status = review.SessionFailed
	sess.ErrorMessage = cause.Error()
	sess.UpdatedAt = time.Now().UTC()
	if err := o.deps.Records.UpdateSession(ctx, sess); err != nil {
		log.Printf("[orchestrator] session %s: persisting validation failure: %v", o.sessionID, err)
	}
	o.observers.Broadcast(Event{
		Type:      EventError,
		SessionID: o.sessionID,
		Status:    string(review.SessionFailed),
		Error:     cause.Error(),
	})
}

func (o *Orchestrator) broadcastStatus(personaID, status string) {
	o.observers.Broadcast(Event{
		Type:      EventStatus,
		SessionID: o.sessionID,
		PersonaID: personaID,
		Status:    status,
	})
}

func variantID(baseID string, variant int) string {
	return baseID + "#v" + strconv.Itoa(variant)
}

func splitVariantID(id string) (base string, variant int, ok bool) {
	base, suffix, found := strings.Cut(id, "#v")
	if !found {
		return "", 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 1 {
		return "", 0, false
	}
	return base, n, true
}
