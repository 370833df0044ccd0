package persona

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrNotFound      = errors.New("persona not found")
	ErrAlreadyExists = errors.New("persona already exists")
)

// Store exposes persona retrieval and mutation for HTTP handlers and the
// analysis pipeline.
type Store interface {
	// List returns system personas plus the custom personas owned by
	// email. An empty email returns system personas only.
	List(email string) []Persona
	FindByID(id string) (Persona, bool)
	Create(p Persona) error
	Update(p Persona) error
	Delete(id string) error
	// ReplaceSystem swaps the full set of system personas, keeping
	// custom ones untouched. Returns (loaded, removed) counts.
	ReplaceSystem(items []Persona) (int, int)
}

// MemoryStore implements Store with an in-memory map guarded by a RWMutex.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	s := &MemoryStore{items: make(map[string]Persona, len(items))}
	for _, p := range items {
		s.items[p.ID] = p
	}
	return s
}

func (s *MemoryStore) List(email string) []Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Persona, 0, len(s.items))
	for _, p := range s.items {
		if p.IsSystem || (email != "" && p.OwnerEmail == email) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[id]
	return p, ok
}

func (s *MemoryStore) Create(p Persona) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[p.ID]; ok {
		return ErrAlreadyExists
	}
	s.items[p.ID] = p
	return nil
}

func (s *MemoryStore) Update(p Persona) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[p.ID]; !ok {
		return ErrNotFound
	}
	s.items[p.ID] = p
	return nil
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) ReplaceSystem(items []Persona) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, p := range s.items {
		if p.IsSystem {
			delete(s.items, id)
			removed++
		}
	}
	for _, p := range items {
		p.IsSystem = true
		p.IsCustom = false
		s.items[p.ID] = p
	}
	return len(items), removed
}
