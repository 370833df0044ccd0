package session

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/browsium/roundtable/backend/internal/config"
	"github.com/browsium/roundtable/backend/internal/middleware"
	"github.com/browsium/roundtable/backend/internal/model/persona"
	"github.com/browsium/roundtable/backend/internal/model/review"
	"github.com/browsium/roundtable/backend/internal/service/ai"
	"github.com/browsium/roundtable/backend/internal/service/analysis"
	"github.com/browsium/roundtable/backend/internal/store"
)

const emailHeader = "CF-Access-Authenticated-User-Email"

func setupRouter(t *testing.T) *chi.Mux {
	t.Helper()

	records := store.NewMemoryStore()
	documents, err := store.NewLocalDocumentStore(t.TempDir())
	if err != nil {
		t.Fatalf("document store: %v", err)
	}
	personas := persona.NewMemoryStore(persona.Seed())
	registry := analysis.NewRegistry(analysis.Deps{
		Records:   records,
		Documents: documents,
		Personas:  personas,
		Client:    ai.NewClient("", ""),
	})

	handler := New(records, documents, personas, registry, nil)

	r := chi.NewRouter()
	r.Use(middleware.Identify(config.IdentityConfig{
		EmailHeader: emailHeader,
		AdminUsers:  []string{"admin@example.com"},
	}))
	handler.RegisterRoutes(r)
	return r
}

func uploadRequest(t *testing.T, fields map[string]string, fileContent string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if fileContent != "" {
		fw, err := w.CreateFormFile("file", "landing.md")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		fw.Write([]byte(fileContent))
	}
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/sessions", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func createSession(t *testing.T, r *chi.Mux, email string) review.Session {
	t.Helper()

	req := uploadRequest(t, map[string]string{"personas": `["skeptical-ciso"]`}, "Try our revolutionary platform.")
	req.Header.Set(emailHeader, email)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var sess review.Session
	if err := json.Unmarshal(resp.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decoding session: %v", err)
	}
	return sess
}

func TestCreateSession(t *testing.T) {
	r := setupRouter(t)
	sess := createSession(t, r, "owner@example.com")

	if sess.Status != review.SessionUploaded {
		t.Fatalf("expected uploaded status, got %s", sess.Status)
	}
	if sess.OwnerEmail != "owner@example.com" {
		t.Fatalf("expected owner email, got %s", sess.OwnerEmail)
	}
	if sess.Workflow != review.WorkflowStandard {
		t.Fatalf("expected standard workflow default, got %s", sess.Workflow)
	}
}

func TestCreateSessionRequiresAuth(t *testing.T) {
	r := setupRouter(t)
	req := uploadRequest(t, map[string]string{"personas": `["skeptical-ciso"]`}, "content")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestCreateSessionMissingFile(t *testing.T) {
	r := setupRouter(t)
	req := uploadRequest(t, map[string]string{"personas": `["skeptical-ciso"]`}, "")
	req.Header.Set(emailHeader, "owner@example.com")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCreateSessionUnknownPersona(t *testing.T) {
	r := setupRouter(t)
	req := uploadRequest(t, map[string]string{"personas": `["ghost"]`}, "content")
	req.Header.Set(emailHeader, "owner@example.com")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCreateSessionInvalidWorkflowConfig(t *testing.T) {
	r := setupRouter(t)
	req := uploadRequest(t, map[string]string{
		"personas":        `["skeptical-ciso"]`,
		"workflow":        "council",
		"workflow_config": `{"members":[]}`,
	}, "content")
	req.Header.Set(emailHeader, "owner@example.com")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCreateSessionInvalidProvider(t *testing.T) {
	r := setupRouter(t)
	req := uploadRequest(t, map[string]string{
		"personas": `["skeptical-ciso"]`,
		"provider": "mystery",
		"model":    "m",
	}, "content")
	req.Header.Set(emailHeader, "owner@example.com")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetSessionAccessControl(t *testing.T) {
	r := setupRouter(t)
	sess := createSession(t, r, "owner@example.com")

	get := func(email string) int {
		req := httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID, nil)
		req.Header.Set(emailHeader, email)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := get("owner@example.com"); code != http.StatusOK {
		t.Fatalf("owner expected 200, got %d", code)
	}
	if code := get("stranger@example.com"); code != http.StatusForbidden {
		t.Fatalf("stranger expected 403, got %d", code)
	}
	if code := get("admin@example.com"); code != http.StatusOK {
		t.Fatalf("admin expected 200, got %d", code)
	}
}

func TestShareGrantsReadAccess(t *testing.T) {
	r := setupRouter(t)
	sess := createSession(t, r, "owner@example.com")

	payload := []byte(`{"emails":["Friend@Example.com","friend@example.com"]}`)
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID+"/share", bytes.NewReader(payload))
	req.Header.Set(emailHeader, "owner@example.com")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("share expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var shared review.Session
	if err := json.Unmarshal(resp.Body.Bytes(), &shared); err != nil {
		t.Fatalf("decoding session: %v", err)
	}
	if len(shared.ShareWith) != 1 || shared.ShareWith[0] != "friend@example.com" {
		t.Fatalf("expected deduped lowercase share list, got %v", shared.ShareWith)
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID, nil)
	req.Header.Set(emailHeader, "friend@example.com")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("shared reader expected 200, got %d", resp.Code)
	}

	// Shared sessions appear in the recipient's list.
	req = httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set(emailHeader, "friend@example.com")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	var listed []review.Session
	if err := json.Unmarshal(resp.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 shared session, got %d", len(listed))
	}
}

func TestShareRequiresOwner(t *testing.T) {
	r := setupRouter(t)
	sess := createSession(t, r, "owner@example.com")

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID+"/share", bytes.NewReader([]byte(`{"emails":["x@y.com"]}`)))
	req.Header.Set(emailHeader, "stranger@example.com")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	r := setupRouter(t)
	sess := createSession(t, r, "owner@example.com")

	req := httptest.NewRequest(http.MethodDelete, "/sessions/"+sess.ID, nil)
	req.Header.Set(emailHeader, "stranger@example.com")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("stranger delete expected 403, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/sessions/"+sess.ID, nil)
	req.Header.Set(emailHeader, "owner@example.com")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("owner delete expected 204, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID, nil)
	req.Header.Set(emailHeader, "owner@example.com")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.Code)
	}
}

func TestStartWithoutGatewayIsUnavailable(t *testing.T) {
	r := setupRouter(t)
	sess := createSession(t, r, "owner@example.com")

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID+"/start", nil)
	req.Header.Set(emailHeader, "owner@example.com")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestRetryUnknownAnalysis(t *testing.T) {
	r := setupRouter(t)
	sess := createSession(t, r, "owner@example.com")

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID+"/analyses/skeptical-ciso/retry", nil)
	req.Header.Set(emailHeader, "owner@example.com")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	// A session that never ran is not terminal, so retry conflicts.
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}
