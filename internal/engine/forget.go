package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lumen-tools/engram/internal/store"
)

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

const millisPerDay = 24 * 60 * 60 * 1000

// EntropyStats is the health report for the active fact store.
type EntropyStats struct {
	Entropy         float64 `json:"entropy"`
	Status          string  `json:"status"` // healthy, moderate, needs_cleanup
	NeedsCompaction bool    `json:"needs_compaction"`
	TotalFacts      int     `json:"total_facts"`
	ColdFacts       int     `json:"cold_facts"`
	NeverAccessed   int     `json:"never_accessed"`
	LowRelevance    int     `json:"low_relevance"`
	AvgRelevance    float64 `json:"avg_relevance"`
	AvgAgeDays      float64 `json:"avg_age_days"`
}

// GetEntropyStats computes the entropy score: a weighted blend of capacity
// pressure, average age, never-accessed density, and low-relevance density,
// each clamped to [0,1]. A deliberately simple linear formula so behavior is
// auditable and the thresholds stay tunable.
func (e *Engine) GetEntropyStats(maxFacts int) (*EntropyStats, error) {
	if maxFacts <= 0 {
		maxFacts = 1000
	}

	fs, err := e.DB.GetFactStats()
	if err != nil {
		return nil, err
	}
	cold, err := e.DB.CountColdFacts()
	if err != nil {
		return nil, fmt.Errorf("count cold facts: %w", err)
	}

	capacityRatio := clamp01(float64(fs.Total) / float64(maxFacts))
	ageRatio := clamp01(fs.AvgAgeDays / 30)

	var neverAccessedRatio, lowRelevanceRatio float64
	if fs.Total > 0 {
		neverAccessedRatio = clamp01(float64(fs.NeverAccessed) / float64(fs.Total))
		lowRelevanceRatio = clamp01(float64(fs.LowRelevance) / float64(fs.Total))
	}

	entropy := 0.30*capacityRatio + 0.20*ageRatio + 0.25*neverAccessedRatio + 0.25*lowRelevanceRatio

	status := "healthy"
	switch {
	case entropy >= 0.7:
		status = "needs_cleanup"
	case entropy >= 0.4:
		status = "moderate"
	}

	return &EntropyStats{
		Entropy:         entropy,
		Status:          status,
		NeedsCompaction: entropy > 0.7,
		TotalFacts:      fs.Total,
		ColdFacts:       cold,
		NeverAccessed:   fs.NeverAccessed,
		LowRelevance:    fs.LowRelevance,
		AvgRelevance:    fs.AvgRelevance,
		AvgAgeDays:      fs.AvgAgeDays,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ApplyRelevanceDecay lowers fact relevance over time. Accessed facts decay
// proportionally to staleness; never-accessed facts older than seven days
// pay a flat penalty per pass so they reach the demotion threshold
// predictably. Relevance never rises here and never drops below the floor.
// Returns the number of facts updated.
func (e *Engine) ApplyRelevanceDecay(decayRate, neverAccessedPenalty float64) (int, error) {
	if decayRate <= 0 {
		decayRate = 0.033
	}
	if neverAccessedPenalty <= 0 {
		neverAccessedPenalty = 0.1
	}

	facts, err := e.DB.ListFacts(store.FactFilter{})
	if err != nil {
		return 0, fmt.Errorf("list facts: %w", err)
	}

	now := nowMillis()
	updated := 0
	for _, f := range facts {
		var newRelevance float64

		if f.LastAccessed != nil {
			days := float64(now-*f.LastAccessed) / millisPerDay
			if days <= 0 {
				continue
			}
			newRelevance = f.Relevance * (1 - decayRate*days)
		} else {
			ageDays := float64(now-f.CreatedAt) / millisPerDay
			if ageDays <= 7 {
				continue
			}
			newRelevance = f.Relevance - neverAccessedPenalty
		}

		if newRelevance < store.RelevanceFloor {
			newRelevance = store.RelevanceFloor
		}
		if newRelevance >= f.Relevance {
			continue
		}

		if err := e.DB.SetFactRelevance(f.ID, newRelevance); err != nil {
			return updated, err
		}
		updated++
	}

	return updated, nil
}

// DemoteToColdStorage moves low-relevance facts into the cold archive.
// Promoted facts are exempt.
func (e *Engine) DemoteToColdStorage(relevanceThreshold float64) (int, error) {
	if relevanceThreshold <= 0 {
		relevanceThreshold = 0.3
	}
	return e.DB.DemoteFacts(relevanceThreshold)
}

// PurgeColdFacts hard-deletes cold facts archived longer than retentionDays
// ago.
func (e *Engine) PurgeColdFacts(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	cutoff := nowMillis() - int64(retentionDays)*millisPerDay
	return e.DB.PurgeColdFacts(cutoff)
}

// MergeSimilarFacts deletes near-duplicate facts, keeping the higher
// relevance of each pair (ties keep the first encountered). Pairwise O(n²)
// over facts with embeddings; acceptable while periodic demotion and purge
// bound the active set to the low thousands. Returns the number removed.
func (e *Engine) MergeSimilarFacts(threshold float64) (int, error) {
	if threshold <= 0 {
		threshold = 0.95
	}

	all, err := e.DB.ListFacts(store.FactFilter{})
	if err != nil {
		return 0, fmt.Errorf("list facts: %w", err)
	}

	var facts []store.Fact
	for _, f := range all {
		if len(f.Embedding) > 0 {
			facts = append(facts, f)
		}
	}

	toDelete := make(map[string]bool)
	for i := 0; i < len(facts); i++ {
		if toDelete[facts[i].ID] {
			continue
		}
		for j := i + 1; j < len(facts); j++ {
			if toDelete[facts[j].ID] {
				continue
			}
			sim := CosineSimilarity(facts[i].Embedding, facts[j].Embedding)
			if sim < threshold {
				continue
			}
			if facts[j].Relevance > facts[i].Relevance {
				toDelete[facts[i].ID] = true
				break
			}
			toDelete[facts[j].ID] = true
		}
	}

	ids := make([]string, 0, len(toDelete))
	for id := range toDelete {
		ids = append(ids, id)
	}
	merged, err := e.DB.DeleteFacts(ids)
	if err != nil {
		return 0, fmt.Errorf("delete duplicates: %w", err)
	}
	return merged, nil
}

// GetPromotionCandidates returns unpromoted facts eligible for elevation
// into the rules file, relevance descending then access count descending.
// Read-only: committing a promotion is a separate MarkFactPromoted call.
func (e *Engine) GetPromotionCandidates(minRelevance float64, minAccessCount int) ([]store.Fact, error) {
	if minRelevance <= 0 {
		minRelevance = 0.8
	}
	if minAccessCount <= 0 {
		minAccessCount = 3
	}
	return e.DB.PromotionCandidates(minRelevance, minAccessCount)
}

// MarkFactPromoted records the promotion destination. Idempotent: the first
// destination sticks and re-promotion is a no-op. Returns false when the
// fact does not exist.
func (e *Engine) MarkFactPromoted(id, destination string) (bool, error) {
	return e.DB.MarkFactPromoted(id, destination)
}

// RestoreFromColdStorage moves a cold fact back to the active store with a
// fresh-start relevance of 0.5. Returns false when the ID is not archived.
func (e *Engine) RestoreFromColdStorage(id string) (bool, error) {
	return e.DB.RestoreColdFact(id)
}

// RecordMemoryMetric appends a snapshot of current entropy stats, tagged
// with the triggering action, to the append-only metrics log.
func (e *Engine) RecordMemoryMetric(action string) error {
	if action == "" {
		action = "snapshot"
	}
	stats, err := e.GetEntropyStats(e.Config.MaxFacts)
	if err != nil {
		return err
	}
	return e.DB.InsertMetric(&store.MemoryMetric{
		TotalFacts:    stats.TotalFacts,
		ColdFacts:     stats.ColdFacts,
		EntropyScore:  stats.Entropy,
		AvgRelevance:  stats.AvgRelevance,
		NeverAccessed: stats.NeverAccessed,
		ActionTaken:   action,
	})
}

// Sweep runs the full forgetting cycle: decay, demote, purge, merge, then a
// metric snapshot.
func (e *Engine) Sweep(ctx context.Context, action string) error {
	decayed, err := e.ApplyRelevanceDecay(e.Config.DecayRate, e.Config.NeverAccessedPenalty)
	if err != nil {
		return fmt.Errorf("decay: %w", err)
	}
	demoted, err := e.DemoteToColdStorage(e.Config.DemoteThreshold)
	if err != nil {
		return fmt.Errorf("demote: %w", err)
	}
	purged, err := e.PurgeColdFacts(e.Config.RetentionDays)
	if err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	merged, err := e.MergeSimilarFacts(e.Config.MergeThreshold)
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}

	if decayed+demoted+purged+merged > 0 {
		log.Printf("sweep: decayed %d, demoted %d, purged %d, merged %d",
			decayed, demoted, purged, merged)
	}

	return e.RecordMemoryMetric(action)
}
