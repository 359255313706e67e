package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/lumen-tools/engram/internal/store"
)

// StoreFactParams are the caller-supplied fields of a new fact.
type StoreFactParams struct {
	Text          string
	Category      string
	Scope         string
	Model         string
	SourceContext string
}

// StoreFact embeds and persists a new fact, returning its ID. A degraded
// provider stores the fact without an embedding.
func (e *Engine) StoreFact(ctx context.Context, p StoreFactParams) (string, error) {
	if p.Text == "" {
		return "", fmt.Errorf("fact text required")
	}

	fact := &store.Fact{
		ID:            store.NewID(),
		Text:          p.Text,
		Category:      p.Category,
		Scope:         p.Scope,
		Model:         p.Model,
		SourceContext: p.SourceContext,
		Embedding:     e.Provider.Embed(ctx, p.Text),
	}
	if err := e.DB.InsertFact(fact); err != nil {
		return "", err
	}
	return fact.ID, nil
}

// SearchOpts controls fact search behavior.
type SearchOpts struct {
	Category    string
	Model       string
	Scope       string
	Limit       int  // default 10
	NoTracking  bool // suppress the access-boost side effect
}

func (o SearchOpts) limit() int {
	if o.Limit <= 0 {
		return 10
	}
	return o.Limit
}

// FactResult is a ranked search hit.
type FactResult struct {
	Fact       store.Fact
	Similarity float64
}

// SearchFacts ranks facts against the query: cosine similarity when both the
// query and the fact carry embeddings, lexical word matching otherwise. Ties
// keep insertion order. Unless tracking is suppressed, every returned fact
// gets the retrieval boost, the only path by which relevance increases.
func (e *Engine) SearchFacts(ctx context.Context, query string, opts SearchOpts) ([]FactResult, error) {
	facts, err := e.DB.ListFacts(store.FactFilter{
		Category: opts.Category,
		Scope:    opts.Scope,
		Model:    opts.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	if len(facts) == 0 {
		return nil, nil
	}

	queryVec := e.Provider.Embed(ctx, query)

	results := make([]FactResult, 0, len(facts))
	for _, f := range facts {
		var sim float64
		if queryVec != nil && len(f.Embedding) > 0 {
			sim = CosineSimilarity(queryVec, f.Embedding)
		} else {
			sim = LexicalScore(query, f.Text)
		}
		results = append(results, FactResult{Fact: f, Similarity: sim})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	limit := opts.limit()
	if len(results) > limit {
		results = results[:limit]
	}

	if !opts.NoTracking && len(results) > 0 {
		ids := make([]string, len(results))
		for i, r := range results {
			ids[i] = r.Fact.ID
		}
		if err := e.DB.TouchFacts(ids); err != nil {
			return nil, fmt.Errorf("track access: %w", err)
		}
		now := nowMillis()
		for i := range results {
			f := &results[i].Fact
			f.LastAccessed = &now
			f.AccessCount++
			f.RecallCount++
			if f.Relevance += 0.1; f.Relevance > 1.0 {
				f.Relevance = 1.0
			}
		}
	}

	return results, nil
}

// DeleteFact hard-deletes a fact by ID. Returns false when absent so batch
// callers can continue.
func (e *Engine) DeleteFact(id string) (bool, error) {
	return e.DB.DeleteFact(id)
}

// AllFacts returns every fact in the given scope (all scopes when empty) for
// export and sync. Never triggers access tracking.
func (e *Engine) AllFacts(scope string) ([]store.Fact, error) {
	return e.DB.ListFacts(store.FactFilter{Scope: scope})
}
