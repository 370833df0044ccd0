package progress

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/browsium/roundtable/backend/internal/middleware"
	"github.com/browsium/roundtable/backend/internal/service/analysis"
	"github.com/browsium/roundtable/backend/internal/store"
	"github.com/browsium/roundtable/backend/pkg/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Handler streams analysis progress events over WebSocket.
type Handler struct {
	records  store.RecordStore
	registry *analysis.Registry
	upgrader websocket.Upgrader
}

// New creates the progress handler.
func New(records store.RecordStore, registry *analysis.Registry) *Handler {
	return &Handler{
		records:  records,
		registry: registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the progress WebSocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/sessions/{sessionID}", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.FromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.records.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
		} else {
			utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		}
		return
	}
	if sess.OwnerEmail != id.Email && !sess.SharedWith(id.Email) && !id.Admin {
		utils.RespondError(w, http.StatusForbidden, "you do not have access to this session")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed for session %s: %v", sessionID, err)
		return
	}
	defer conn.Close()

	observers := h.registry.Observers(sessionID)
	sub := observers.Subscribe()
	defer observers.Unsubscribe(sub)

	// Late subscribers get the current status so a refreshed page is not
	// stuck waiting for the next transition. Sent to this connection
	// only; existing subscribers already saw it.
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(analysis.Event{
		Type:      analysis.EventStatus,
		SessionID: sessionID,
		Status:    string(sess.Status),
	}); err != nil {
		log.Printf("[ws] write failed for session %s: %v", sessionID, err)
		return
	}

	// Read pump: clients send nothing meaningful, but reads detect
	// closes and feed the pong handler.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("[ws] write failed for session %s: %v", sessionID, err)
				return
			}
		}
	}
}
