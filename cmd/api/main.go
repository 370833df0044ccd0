package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/browsium/roundtable/backend/internal/config"
	"github.com/browsium/roundtable/backend/internal/handler"
	"github.com/browsium/roundtable/backend/internal/model/persona"
	"github.com/browsium/roundtable/backend/internal/service/ai"
	"github.com/browsium/roundtable/backend/internal/service/analysis"
	"github.com/browsium/roundtable/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Persona store: profiles from the configured directory, falling
	// back to the built-in panel when the directory is empty or absent.
	personaStore := persona.NewMemoryStore(persona.Seed())
	if items, err := persona.LoadDir(cfg.Personas.Dir); err != nil {
		log.Printf("warning: failed to load personas from %s: %v", cfg.Personas.Dir, err)
		log.Println("continuing with built-in personas")
	} else if len(items) > 0 {
		loaded, removed := personaStore.ReplaceSystem(items)
		log.Printf("loaded %d personas from %s (replaced %d built-in)", loaded, cfg.Personas.Dir, removed)
	}

	if cfg.Personas.Watch {
		go func() {
			if err := persona.Watch(ctx, cfg.Personas.Dir, personaStore); err != nil {
				log.Printf("warning: persona watcher stopped: %v", err)
			}
		}()
	}

	// Record store: SQLite when a path is configured, in-memory otherwise.
	var records store.RecordStore
	if cfg.Storage.SQLitePath != "" {
		if err := os.MkdirAll(cfg.Storage.DataDir, 0o750); err != nil {
			log.Fatalf("failed to create data directory: %v", err)
		}
		sqlite, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open sqlite store: %v", err)
		}
		defer sqlite.Close()
		records = sqlite
		log.Printf("using sqlite store at %s", cfg.Storage.SQLitePath)
	} else {
		records = store.NewMemoryStore()
		log.Println("SQLITE_PATH not set, using in-memory store")
	}

	documents, err := store.NewLocalDocumentStore(cfg.Storage.DataDir + "/documents")
	if err != nil {
		log.Fatalf("failed to initialize document store: %v", err)
	}

	if !cfg.Gateway.Enabled() {
		log.Println("warning: model gateway not configured, analysis runs will be rejected")
	}

	registry := analysis.NewRegistry(analysis.Deps{
		Records:   records,
		Documents: documents,
		Personas:  personaStore,
		Client:    ai.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey),
		Gateway:   cfg.Gateway,
	})

	router := handler.NewRouter(cfg, personaStore, records, documents, registry)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Roundtable backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
