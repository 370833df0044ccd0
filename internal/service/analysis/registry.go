package analysis

import (
	"sync"

	"github.com/browsium/roundtable/backend/internal/config"
	"github.com/browsium/roundtable/backend/internal/model/persona"
	"github.com/browsium/roundtable/backend/internal/service/ai"
	"github.com/browsium/roundtable/backend/internal/store"
)

// Deps bundles the collaborators every orchestrator needs.
type Deps struct {
	Records   store.RecordStore
	Documents store.DocumentStore
	Personas  persona.Store
	Client    *ai.Client
	Gateway   config.GatewayConfig
}

// Registry hands out one orchestrator per session so concurrent starts,
// retries and observers for the same session share a single guard and
// event feed.
type Registry struct {
	mu    sync.Mutex
	deps  Deps
	items map[string]*Orchestrator
}

// NewRegistry returns an empty registry.
func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, items: make(map[string]*Orchestrator)}
}

// ForSession returns the session's orchestrator, creating it on first use.
func (r *Registry) ForSession(sessionID string) *Orchestrator {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o, ok := r.items[sessionID]; ok {
		return o
	}
	o := newOrchestrator(sessionID, r.deps)
	r.items[sessionID] = o
	return o
}

// Observers returns the session's event feed, creating the orchestrator
// if needed so observers can attach before the run starts.
func (r *Registry) Observers(sessionID string) *ObserverSet {
	return r.ForSession(sessionID).Observers()
}

// Drop forgets a session's orchestrator after the session is deleted.
// A run already in flight keeps its own references and finishes.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	delete(r.items, sessionID)
	r.mu.Unlock()
}
