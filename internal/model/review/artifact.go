package review

import (
	"encoding/json"
	"time"
)

// ArtifactKind labels an intermediate synthesis output.
type ArtifactKind string

const (
	ArtifactCouncilMemberOutput  ArtifactKind = "council_member_output"
	ArtifactCouncilPeerReview    ArtifactKind = "council_peer_review"
	ArtifactCouncilChairFinal    ArtifactKind = "council_chair_final"
	ArtifactDiscussionCritique   ArtifactKind = "discussion_critique"
	ArtifactDiscussionChairFinal ArtifactKind = "discussion_chair_final"
	ArtifactDiscussionDissents   ArtifactKind = "discussion_dissents"
)

// Artifact is an append-only record of one synthesis step. Write-once per
// step; readers take the latest row by id when rendering results.
type Artifact struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"sessionId"`
	Kind      ArtifactKind    `json:"kind"`
	GroupID   string          `json:"groupId"`
	Provider  string          `json:"provider,omitempty"`
	Model     string          `json:"model,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}
