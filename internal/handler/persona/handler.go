package persona

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/browsium/roundtable/backend/internal/middleware"
	"github.com/browsium/roundtable/backend/internal/model/persona"
	"github.com/browsium/roundtable/backend/pkg/utils"
)

// Handler serves reviewer persona management.
type Handler struct {
	personas persona.Store
	dir      string
}

// New creates the persona handler. dir is the system persona directory
// used by the reload endpoint; empty disables reloads.
func New(personas persona.Store, dir string) *Handler {
	return &Handler{personas: personas, dir: dir}
}

// RegisterRoutes registers persona routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleList)
	r.Post("/personas", h.handleCreate)
	r.Put("/personas/{personaID}", h.handleUpdate)
	r.Delete("/personas/{personaID}", h.handleDelete)
	r.Post("/personas/reload", h.handleReload)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.FromContext(r.Context())
	utils.RespondJSON(w, http.StatusOK, h.personas.List(id.Email))
}

type personaRequest struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Role    string          `json:"role"`
	Profile json.RawMessage `json:"profile"`
}

func (req *personaRequest) validate() error {
	if strings.TrimSpace(req.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(req.Role) == "" {
		return errors.New("role is required")
	}
	if len(req.Profile) > 0 && !json.Valid(req.Profile) {
		return errors.New("profile must be valid JSON")
	}
	return nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.FromContext(r.Context())

	var req personaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	pid := strings.TrimSpace(req.ID)
	if pid == "" {
		pid = slugify(req.Name)
	}

	p := persona.Persona{
		ID:         pid,
		Name:       strings.TrimSpace(req.Name),
		Role:       strings.TrimSpace(req.Role),
		IsCustom:   true,
		OwnerEmail: id.Email,
		Profile:    req.Profile,
	}
	if err := h.personas.Create(p); err != nil {
		if errors.Is(err, persona.ErrAlreadyExists) {
			utils.RespondError(w, http.StatusConflict, "persona id already in use")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to create persona")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.FromContext(r.Context())

	existing, ok := h.loadEditable(w, r, id)
	if !ok {
		return
	}

	var req personaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing.Name = strings.TrimSpace(req.Name)
	existing.Role = strings.TrimSpace(req.Role)
	existing.Profile = req.Profile
	if err := h.personas.Update(existing); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to update persona")
		return
	}
	utils.RespondJSON(w, http.StatusOK, existing)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.FromContext(r.Context())

	existing, ok := h.loadEditable(w, r, id)
	if !ok {
		return
	}
	if err := h.personas.Delete(existing.ID); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete persona")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReload re-reads the system persona directory. Admin only.
func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.FromContext(r.Context())
	if !id.Admin {
		utils.RespondError(w, http.StatusForbidden, "admin access required")
		return
	}
	if h.dir == "" {
		utils.RespondError(w, http.StatusConflict, "no persona directory configured")
		return
	}

	items, err := persona.LoadDir(h.dir)
	if err != nil {
		log.Printf("[persona] reload from %s failed: %v", h.dir, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to reload personas")
		return
	}
	loaded, removed := h.personas.ReplaceSystem(items)
	utils.RespondJSON(w, http.StatusOK, map[string]int{"loaded": loaded, "removed": removed})
}

// loadEditable fetches a persona and enforces edit access: custom
// personas belong to their owner, system personas to admins.
func (h *Handler) loadEditable(w http.ResponseWriter, r *http.Request, id middleware.Identity) (persona.Persona, bool) {
	p, ok := h.personas.FindByID(chi.URLParam(r, "personaID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "persona not found")
		return persona.Persona{}, false
	}
	if p.IsSystem && !id.Admin {
		utils.RespondError(w, http.StatusForbidden, "system personas can only be edited by admins")
		return persona.Persona{}, false
	}
	if p.IsCustom && p.OwnerEmail != id.Email && !id.Admin {
		utils.RespondError(w, http.StatusForbidden, "you do not own this persona")
		return persona.Persona{}, false
	}
	return p, true
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
