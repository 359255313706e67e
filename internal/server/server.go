// Package server exposes the memory store to the assistant-integration
// collaborator over HTTP. Handlers are thin: all algorithmic work lives in
// the engine and store packages.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lumen-tools/engram/internal/engine"
	"github.com/lumen-tools/engram/internal/store"
)

// Server is the engram HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server with the given database, engine, and version string.
func New(db *store.DB, eng *engine.Engine, version string) *Server {
	s := &Server{
		db:      db,
		engine:  eng,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/facts", s.handleStoreFact)
		r.Get("/facts", s.handleAllFacts)
		r.Get("/facts/search", s.handleSearchFacts)
		r.Delete("/facts/{factID}", s.handleDeleteFact)
		r.Post("/facts/{factID}/promote", s.handlePromoteFact)
		r.Get("/facts/candidates", s.handlePromotionCandidates)

		r.Post("/proposals", s.handleCreateProposal)
		r.Get("/proposals", s.handleListProposals)
		r.Get("/proposals/unsynced", s.handleUnsyncedProposals)
		r.Patch("/proposals/{proposalID}", s.handleUpdateProposal)

		r.Post("/prd", s.handleIngestPRD)
		r.Get("/prd/context", s.handlePRDContext)

		r.Get("/memory/stats", s.handleMemoryStats)
		r.Get("/memory/metrics", s.handleMemoryMetrics)
		r.Post("/memory/sweep", s.handleSweep)
		r.Get("/memory/cold", s.handleListCold)
		r.Post("/memory/cold/{factID}/restore", s.handleRestoreCold)

		r.Get("/sync/state", s.handleGetSyncState)
		r.Put("/sync/state/{key}", s.handleSetSyncState)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  s.version,
		"uptime":   time.Since(s.started).Seconds(),
		"db":       dbOK,
		"db_path":  s.db.Path,
		"embedder": s.engine.Provider.Model(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
