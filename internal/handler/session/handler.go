package session

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/browsium/roundtable/backend/internal/middleware"
	"github.com/browsium/roundtable/backend/internal/model/persona"
	"github.com/browsium/roundtable/backend/internal/model/review"
	"github.com/browsium/roundtable/backend/internal/service/ai"
	"github.com/browsium/roundtable/backend/internal/service/analysis"
	"github.com/browsium/roundtable/backend/internal/store"
	"github.com/browsium/roundtable/backend/pkg/utils"
)

// maxUploadBytes bounds one uploaded document. Analysis truncates much
// earlier; this only protects the server from runaway uploads.
const maxUploadBytes = 4 << 20

// Handler serves the session lifecycle: upload, start, progress reads,
// retry, sharing and deletion.
type Handler struct {
	records   store.RecordStore
	documents store.DocumentStore
	personas  persona.Store
	registry  *analysis.Registry
	providers []string
}

// New creates the session handler.
func New(records store.RecordStore, documents store.DocumentStore, personas persona.Store, registry *analysis.Registry, providers []string) *Handler {
	return &Handler{
		records:   records,
		documents: documents,
		personas:  personas,
		registry:  registry,
		providers: providers,
	}
}

// RegisterRoutes registers session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreate)
	r.Get("/sessions", h.handleList)
	r.Get("/sessions/{sessionID}", h.handleGet)
	r.Post("/sessions/{sessionID}/start", h.handleStart)
	r.Post("/sessions/{sessionID}/analyses/{personaID}/retry", h.handleRetry)
	r.Post("/sessions/{sessionID}/share", h.handleShare)
	r.Delete("/sessions/{sessionID}", h.handleDelete)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}
	if len(data) > maxUploadBytes {
		utils.RespondError(w, http.StatusRequestEntityTooLarge, "document too large")
		return
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "document is empty")
		return
	}

	personaIDs, err := parsePersonaIDs(r.FormValue("personas"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, pid := range personaIDs {
		if _, ok := h.personas.FindByID(pid); !ok {
			utils.RespondError(w, http.StatusBadRequest, "unknown persona: "+pid)
			return
		}
	}

	workflow := review.WorkflowKind(strings.TrimSpace(r.FormValue("workflow")))
	if workflow == "" {
		workflow = review.WorkflowStandard
	}
	var workflowConfig json.RawMessage
	if raw := strings.TrimSpace(r.FormValue("workflow_config")); raw != "" {
		workflowConfig = json.RawMessage(raw)
	}
	if _, err := review.ParseWorkflowConfig(workflow, workflowConfig); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess := &review.Session{
		ID:             uuid.NewString(),
		OwnerEmail:     id.Email,
		FileName:       header.Filename,
		PersonaIDs:     personaIDs,
		Workflow:       workflow,
		WorkflowConfig: workflowConfig,
		Status:         review.SessionUploaded,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	provider := strings.TrimSpace(r.FormValue("provider"))
	model := strings.TrimSpace(r.FormValue("model"))
	if provider != "" || model != "" {
		backend, err := ai.ResolveBackend(review.BackendRef{Provider: provider, Model: model}, h.providers)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		sess.DisplayProvider = backend.Provider
		sess.DisplayModel = backend.Model
	}

	if meta, err := json.Marshal(map[string]any{
		"size":        len(data),
		"contentType": header.Header.Get("Content-Type"),
	}); err == nil {
		sess.FileMetadata = meta
	}

	ref, err := h.documents.Save(r.Context(), sess.ID, header.Filename, data)
	if err != nil {
		log.Printf("[session] saving document for %s: %v", sess.ID, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to store document")
		return
	}
	sess.DocumentRef = ref

	if err := h.records.CreateSession(r.Context(), sess); err != nil {
		log.Printf("[session] creating session %s: %v", sess.ID, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.FromContext(r.Context())

	sessions, err := h.records.ListSessions(r.Context(), id.Email, true)
	if err != nil {
		log.Printf("[session] listing sessions for %s: %v", id.Email, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.FromContext(r.Context())

	sess, ok := h.loadReadable(w, r, id)
	if !ok {
		return
	}

	analyses, err := h.records.ListAnalyses(r.Context(), sess.ID)
	if err != nil {
		log.Printf("[session] listing analyses for %s: %v", sess.ID, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load analyses")
		return
	}

	artifacts := make(map[string][]*review.Artifact)
	for _, kind := range artifactKinds(sess.Workflow) {
		items, err := h.records.ListArtifacts(r.Context(), sess.ID, kind)
		if err != nil {
			log.Printf("[session] listing %s artifacts for %s: %v", kind, sess.ID, err)
			continue
		}
		if len(items) > 0 {
			artifacts[string(kind)] = items
		}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session":   sess,
		"analyses":  analyses,
		"artifacts": artifacts,
	})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.FromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	err := h.registry.ForSession(sessionID).Start(r.Context(), id.Email)
	if err != nil {
		h.respondOrchestratorError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": string(review.SessionAnalyzing)})
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.FromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")
	personaID := chi.URLParam(r, "personaID")

	err := h.registry.ForSession(sessionID).Retry(r.Context(), id.Email, personaID)
	if err != nil {
		h.respondOrchestratorError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": string(review.SessionAnalyzing)})
}

type shareRequest struct {
	Emails []string `json:"emails"`
}

func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.FromContext(r.Context())

	sess, ok := h.loadOwned(w, r, id)
	if !ok {
		return
	}

	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	seen := make(map[string]struct{})
	var emails []string
	for _, email := range req.Emails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" || email == sess.OwnerEmail {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		emails = append(emails, email)
	}

	sess.ShareWith = emails
	sess.UpdatedAt = time.Now().UTC()
	if err := h.records.UpdateSession(r.Context(), sess); err != nil {
		log.Printf("[session] updating share list for %s: %v", sess.ID, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to update session")
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.FromContext(r.Context())

	sess, ok := h.loadOwned(w, r, id)
	if !ok {
		return
	}
	if sess.Status == review.SessionAnalyzing {
		utils.RespondError(w, http.StatusConflict, "session is still analyzing")
		return
	}

	if sess.DocumentRef != "" {
		if err := h.documents.Delete(r.Context(), sess.DocumentRef); err != nil {
			log.Printf("[session] deleting document for %s: %v", sess.ID, err)
		}
	}
	if err := h.records.DeleteSession(r.Context(), sess.ID); err != nil {
		log.Printf("[session] deleting session %s: %v", sess.ID, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	h.registry.Drop(sess.ID)

	w.WriteHeader(http.StatusNoContent)
}

// loadReadable fetches the session and enforces read access: owner,
// shared recipient, or admin.
func (h *Handler) loadReadable(w http.ResponseWriter, r *http.Request, id middleware.Identity) (*review.Session, bool) {
	sess, err := h.records.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
		} else {
			utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		}
		return nil, false
	}
	if sess.OwnerEmail != id.Email && !sess.SharedWith(id.Email) && !id.Admin {
		utils.RespondError(w, http.StatusForbidden, "you do not have access to this session")
		return nil, false
	}
	return sess, true
}

// loadOwned fetches the session and enforces owner-or-admin access for
// mutations.
func (h *Handler) loadOwned(w http.ResponseWriter, r *http.Request, id middleware.Identity) (*review.Session, bool) {
	sess, err := h.records.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
		} else {
			utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		}
		return nil, false
	}
	if sess.OwnerEmail != id.Email && !id.Admin {
		utils.RespondError(w, http.StatusForbidden, "only the session owner may do this")
		return nil, false
	}
	return sess, true
}

func (h *Handler) respondOrchestratorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound), errors.Is(err, store.ErrAnalysisNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, analysis.ErrNotOwner):
		utils.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, analysis.ErrAlreadyRunning), errors.Is(err, analysis.ErrAlreadyStarted),
		errors.Is(err, analysis.ErrSessionActive):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, analysis.ErrAnalysisNotFailed):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, analysis.ErrGatewayDisabled):
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	}
}

// parsePersonaIDs accepts either a JSON array or a comma-separated list.
func parsePersonaIDs(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("personas field is required")
	}

	var ids []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return nil, errors.New("personas must be a JSON array of ids")
		}
	} else {
		ids = strings.Split(raw, ",")
	}

	seen := make(map[string]struct{})
	var out []string
	for _, id := range ids {
		if id = strings.TrimSpace(id); id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, errors.New("at least one persona is required")
	}
	return out, nil
}

func artifactKinds(workflow review.WorkflowKind) []review.ArtifactKind {
	switch workflow {
	case review.WorkflowCouncil:
		return []review.ArtifactKind{
			review.ArtifactCouncilMemberOutput,
			review.ArtifactCouncilPeerReview,
			review.ArtifactCouncilChairFinal,
		}
	case review.WorkflowDiscussion:
		return []review.ArtifactKind{
			review.ArtifactDiscussionCritique,
			review.ArtifactDiscussionChairFinal,
			review.ArtifactDiscussionDissents,
		}
	}
	return nil
}
