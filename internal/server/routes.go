package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lumen-tools/engram/internal/engine"
	"github.com/lumen-tools/engram/internal/store"
)

type factJSON struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Category      string   `json:"category"`
	Scope         string   `json:"scope"`
	Model         string   `json:"model,omitempty"`
	SourceContext string   `json:"source_context,omitempty"`
	Relevance     float64  `json:"relevance"`
	AccessCount   int      `json:"access_count"`
	RecallCount   int      `json:"recall_count"`
	PromotedTo    string   `json:"promoted_to,omitempty"`
	CreatedAt     int64    `json:"created_at"`
	LastAccessed  *int64   `json:"last_accessed,omitempty"`
	Similarity    *float64 `json:"similarity,omitempty"`
}

func toFactJSON(f store.Fact) factJSON {
	return factJSON{
		ID:            f.ID,
		Text:          f.Text,
		Category:      f.Category,
		Scope:         f.Scope,
		Model:         f.Model,
		SourceContext: f.SourceContext,
		Relevance:     f.Relevance,
		AccessCount:   f.AccessCount,
		RecallCount:   f.RecallCount,
		PromotedTo:    f.PromotedTo,
		CreatedAt:     f.CreatedAt,
		LastAccessed:  f.LastAccessed,
	}
}

func (s *Server) handleStoreFact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text          string `json:"text"`
		Category      string `json:"category"`
		Scope         string `json:"scope"`
		Model         string `json:"model"`
		SourceContext string `json:"source_context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text required")
		return
	}

	id, err := s.engine.StoreFact(r.Context(), engine.StoreFactParams{
		Text:          req.Text,
		Category:      req.Category,
		Scope:         req.Scope,
		Model:         req.Model,
		SourceContext: req.SourceContext,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleAllFacts(w http.ResponseWriter, r *http.Request) {
	facts, err := s.engine.AllFacts(r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]factJSON, len(facts))
	for i, f := range facts {
		out[i] = toFactJSON(f)
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "facts": out})
}

func (s *Server) handleSearchFacts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q parameter required")
		return
	}

	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	opts := engine.SearchOpts{
		Category:   r.URL.Query().Get("category"),
		Model:      r.URL.Query().Get("model"),
		Scope:      r.URL.Query().Get("scope"),
		Limit:      limit,
		NoTracking: r.URL.Query().Get("track") == "false",
	}

	results, err := s.engine.SearchFacts(r.Context(), query, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]factJSON, len(results))
	for i, res := range results {
		fj := toFactJSON(res.Fact)
		sim := res.Similarity
		fj.Similarity = &sim
		out[i] = fj
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "count": len(out), "results": out})
}

func (s *Server) handleDeleteFact(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.engine.DeleteFact(chi.URLParam(r, "factID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, map[string]any{"deleted": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handlePromoteFact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Destination string `json:"destination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Destination == "" {
		writeError(w, http.StatusBadRequest, "destination required")
		return
	}

	found, err := s.engine.MarkFactPromoted(chi.URLParam(r, "factID"), req.Destination)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "fact not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "promoted"})
}

func (s *Server) handlePromotionCandidates(w http.ResponseWriter, r *http.Request) {
	minRelevance := 0.8
	if v := r.URL.Query().Get("min_relevance"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			minRelevance = f
		}
	}
	minAccess := 3
	if v := r.URL.Query().Get("min_access"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			minAccess = n
		}
	}

	facts, err := s.engine.GetPromotionCandidates(minRelevance, minAccess)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]factJSON, len(facts))
	for i, f := range facts {
		out[i] = toFactJSON(f)
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "candidates": out})
}

type proposalJSON struct {
	ID            string   `json:"id"`
	Rule          string   `json:"rule"`
	Category      string   `json:"category"`
	Rationale     string   `json:"rationale,omitempty"`
	SourceContext string   `json:"source_context,omitempty"`
	Status        string   `json:"status"`
	Votes         []string `json:"votes"`
	Synced        bool     `json:"synced"`
	RemoteID      string   `json:"remote_id,omitempty"`
	CreatedAt     int64    `json:"created_at"`
	DecidedAt     *int64   `json:"decided_at,omitempty"`
}

func toProposalJSON(p store.Proposal) proposalJSON {
	votes := p.Votes
	if votes == nil {
		votes = []string{}
	}
	return proposalJSON{
		ID:            p.ID,
		Rule:          p.Rule,
		Category:      p.Category,
		Rationale:     p.Rationale,
		SourceContext: p.SourceContext,
		Status:        p.Status,
		Votes:         votes,
		Synced:        p.Synced,
		RemoteID:      p.RemoteID,
		CreatedAt:     p.CreatedAt,
		DecidedAt:     p.DecidedAt,
	}
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rule          string `json:"rule"`
		Category      string `json:"category"`
		Rationale     string `json:"rationale"`
		SourceContext string `json:"source_context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Rule == "" {
		writeError(w, http.StatusBadRequest, "rule required")
		return
	}

	p := &store.Proposal{
		ID:            store.NewID(),
		Rule:          req.Rule,
		Category:      req.Category,
		Rationale:     req.Rationale,
		SourceContext: req.SourceContext,
	}
	if err := s.db.InsertProposal(p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": p.ID})
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := s.db.ListProposals(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]proposalJSON, len(proposals))
	for i, p := range proposals {
		out[i] = toProposalJSON(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "proposals": out})
}

func (s *Server) handleUnsyncedProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := s.db.UnsyncedProposals()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]proposalJSON, len(proposals))
	for i, p := range proposals {
		out[i] = toProposalJSON(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "proposals": out})
}

func (s *Server) handleUpdateProposal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status   *string   `json:"status"`
		Synced   *bool     `json:"synced"`
		RemoteID *string   `json:"remote_id"`
		Votes    *[]string `json:"votes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	updated, err := s.db.UpdateProposal(chi.URLParam(r, "proposalID"), store.ProposalUpdate{
		Status:   req.Status,
		Synced:   req.Synced,
		RemoteID: req.RemoteID,
		Votes:    req.Votes,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !updated {
		writeJSON(w, http.StatusOK, map[string]any{"updated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (s *Server) handleIngestPRD(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PRDID    string `json:"prd_id"`
		FileName string `json:"file_name"`
		Content  string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.PRDID == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "prd_id and content required")
		return
	}

	count, err := s.engine.IngestPRD(r.Context(), req.PRDID, req.FileName, req.Content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"prd_id": req.PRDID, "chunks": count})
}

func (s *Server) handlePRDContext(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q parameter required")
		return
	}

	maxTokens := 2000
	if v := r.URL.Query().Get("max_tokens"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxTokens = n
		}
	}

	result, err := s.engine.GetPRDContext(r.Context(), query, maxTokens, r.URL.Query().Get("prd_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "no chunks stored")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	maxFacts := s.engine.Config.MaxFacts
	if v := r.URL.Query().Get("max_facts"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxFacts = n
		}
	}

	stats, err := s.engine.GetEntropyStats(maxFacts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMemoryMetrics(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	metrics, err := s.db.ListMetrics(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(metrics), "metrics": metrics})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Sweep(r.Context(), "manual_sweep"); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	stats, err := s.engine.GetEntropyStats(s.engine.Config.MaxFacts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListCold(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	cold, err := s.db.ListColdFacts(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type coldJSON struct {
		factJSON
		ArchivedAt    int64  `json:"archived_at"`
		ArchiveReason string `json:"archive_reason"`
	}
	out := make([]coldJSON, len(cold))
	for i, cf := range cold {
		out[i] = coldJSON{
			factJSON:      toFactJSON(cf.Fact),
			ArchivedAt:    cf.ArchivedAt,
			ArchiveReason: cf.ArchiveReason,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "cold_facts": out})
}

func (s *Server) handleRestoreCold(w http.ResponseWriter, r *http.Request) {
	restored, err := s.engine.RestoreFromColdStorage(chi.URLParam(r, "factID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !restored {
		writeError(w, http.StatusNotFound, "fact not in cold storage")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

func (s *Server) handleGetSyncState(w http.ResponseWriter, r *http.Request) {
	state, err := s.db.AllSyncState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSetSyncState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := s.db.SetSyncState(chi.URLParam(r, "key"), req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
