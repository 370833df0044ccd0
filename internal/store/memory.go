package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/browsium/roundtable/backend/internal/model/review"
)

// MemoryStore implements RecordStore in memory. Used by tests and as a
// fallback when no database path is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]*review.Session
	analyses  map[string][]*review.Analysis
	artifacts map[string][]*review.Artifact
	nextID    int64
}

// NewMemoryStore returns an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]*review.Session),
		analyses:  make(map[string][]*review.Analysis),
		artifacts: make(map[string][]*review.Artifact),
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, s *review.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	clone := *s
	m.sessions[s.ID] = &clone
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*review.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	clone := *s
	return &clone, nil
}

func (m *MemoryStore) ListSessions(_ context.Context, email string, includeShared bool) ([]*review.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*review.Session
	for _, s := range m.sessions {
		if s.OwnerEmail == email || (includeShared && s.SharedWith(email)) {
			clone := *s
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, s *review.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return ErrSessionNotFound
	}
	s.UpdatedAt = time.Now().UTC()
	clone := *s
	m.sessions[s.ID] = &clone
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	delete(m.analyses, id)
	delete(m.artifacts, id)
	return nil
}

func (m *MemoryStore) CreateAnalysis(_ context.Context, a *review.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.nextID++
	a.ID = m.nextID
	clone := *a
	m.analyses[a.SessionID] = append(m.analyses[a.SessionID], &clone)
	return nil
}

func (m *MemoryStore) UpdateAnalysis(_ context.Context, a *review.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.analyses[a.SessionID] {
		if existing.PersonaID == a.PersonaID {
			clone := *a
			clone.ID = existing.ID
			m.analyses[a.SessionID][i] = &clone
			return nil
		}
	}
	return ErrAnalysisNotFound
}

func (m *MemoryStore) GetAnalysis(_ context.Context, sessionID, personaID string) (*review.Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.analyses[sessionID] {
		if a.PersonaID == personaID {
			clone := *a
			return &clone, nil
		}
	}
	return nil, ErrAnalysisNotFound
}

func (m *MemoryStore) ListAnalyses(_ context.Context, sessionID string) ([]*review.Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*review.Analysis, 0, len(m.analyses[sessionID]))
	for _, a := range m.analyses[sessionID] {
		clone := *a
		out = append(out, &clone)
	}
	return out, nil
}

func (m *MemoryStore) AppendArtifact(_ context.Context, a *review.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.nextID++
	a.ID = m.nextID
	clone := *a
	m.artifacts[a.SessionID] = append(m.artifacts[a.SessionID], &clone)
	return nil
}

func (m *MemoryStore) LatestArtifact(_ context.Context, sessionID string, kind review.ArtifactKind, groupID string) (*review.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := m.artifacts[sessionID]
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Kind == kind && items[i].GroupID == groupID {
			clone := *items[i]
			return &clone, nil
		}
	}
	return nil, ErrArtifactNotFound
}

func (m *MemoryStore) ListArtifacts(_ context.Context, sessionID string, kind review.ArtifactKind) ([]*review.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*review.Artifact
	for _, a := range m.artifacts[sessionID] {
		if a.Kind == kind {
			clone := *a
			out = append(out, &clone)
		}
	}
	return out, nil
}
