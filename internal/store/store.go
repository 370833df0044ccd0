// Package store holds the durable source of truth for sessions, persona
// analyses and synthesis artifacts, plus raw document storage. Derived
// state (like "all analyses resolved") is always recomputed from these
// records rather than trusted from memory.
package store

import (
	"context"
	"errors"

	"github.com/browsium/roundtable/backend/internal/model/review"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrAnalysisNotFound = errors.New("analysis not found")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrDocumentNotFound = errors.New("document not found")
)

// RecordStore persists sessions, analyses and artifacts. Reads are
// idempotent and safe to repeat.
type RecordStore interface {
	CreateSession(ctx context.Context, s *review.Session) error
	GetSession(ctx context.Context, id string) (*review.Session, error)
	ListSessions(ctx context.Context, email string, includeShared bool) ([]*review.Session, error)
	UpdateSession(ctx context.Context, s *review.Session) error
	DeleteSession(ctx context.Context, id string) error

	CreateAnalysis(ctx context.Context, a *review.Analysis) error
	UpdateAnalysis(ctx context.Context, a *review.Analysis) error
	GetAnalysis(ctx context.Context, sessionID, personaID string) (*review.Analysis, error)
	ListAnalyses(ctx context.Context, sessionID string) ([]*review.Analysis, error)

	AppendArtifact(ctx context.Context, a *review.Artifact) error
	LatestArtifact(ctx context.Context, sessionID string, kind review.ArtifactKind, groupID string) (*review.Artifact, error)
	ListArtifacts(ctx context.Context, sessionID string, kind review.ArtifactKind) ([]*review.Artifact, error)
}

// DocumentStore keeps the raw uploaded document bytes. Text extraction
// happens upstream; Fetch returns whatever was saved.
type DocumentStore interface {
	Save(ctx context.Context, sessionID, fileName string, data []byte) (ref string, err error)
	Fetch(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}
