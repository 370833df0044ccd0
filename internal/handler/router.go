package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/browsium/roundtable/backend/internal/config"
	personaHandler "github.com/browsium/roundtable/backend/internal/handler/persona"
	"github.com/browsium/roundtable/backend/internal/handler/progress"
	sessionHandler "github.com/browsium/roundtable/backend/internal/handler/session"
	middlewarePkg "github.com/browsium/roundtable/backend/internal/middleware"
	personaModel "github.com/browsium/roundtable/backend/internal/model/persona"
	"github.com/browsium/roundtable/backend/internal/service/analysis"
	"github.com/browsium/roundtable/backend/internal/store"
	"github.com/browsium/roundtable/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(cfg *config.Config, personas personaModel.Store, records store.RecordStore, documents store.DocumentStore, registry *analysis.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	sessions := sessionHandler.New(records, documents, personas, registry, cfg.Gateway.Providers)
	personasAPI := personaHandler.New(personas, cfg.Personas.Dir)
	progressAPI := progress.New(records, registry)

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.Identify(cfg.Identity))

		sessions.RegisterRoutes(api)
		personasAPI.RegisterRoutes(api)
		progressAPI.RegisterRoutes(api)
	})

	return r
}
