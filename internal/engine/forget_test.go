package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/lumen-tools/engram/internal/store"
)

func addFact(t *testing.T, e *Engine, f store.Fact) string {
	t.Helper()
	if f.ID == "" {
		f.ID = store.NewID()
	}
	if f.Text == "" {
		f.Text = "test fact"
	}
	if err := e.DB.InsertFact(&f); err != nil {
		t.Fatalf("InsertFact: %v", err)
	}
	return f.ID
}

// backdate rewrites a fact's created_at, and last_accessed when accessed is
// true, to daysAgo days in the past.
func backdate(t *testing.T, e *Engine, id string, daysAgo int, accessed bool) {
	t.Helper()
	ts := time.Now().AddDate(0, 0, -daysAgo).UnixMilli()
	if _, err := e.DB.Exec("UPDATE facts SET created_at = ? WHERE id = ?", ts, id); err != nil {
		t.Fatalf("backdate created_at: %v", err)
	}
	if accessed {
		if _, err := e.DB.Exec("UPDATE facts SET last_accessed = ? WHERE id = ?", ts, id); err != nil {
			t.Fatalf("backdate last_accessed: %v", err)
		}
	}
}

func relevance(t *testing.T, e *Engine, id string) float64 {
	t.Helper()
	f, err := e.DB.GetFact(id)
	if err != nil {
		t.Fatalf("GetFact: %v", err)
	}
	if f == nil {
		t.Fatalf("fact %s missing", id)
	}
	return f.Relevance
}

func TestDecayAccessedFactProportional(t *testing.T) {
	e := testEngine(t)
	id := addFact(t, e, store.Fact{})
	backdate(t, e, id, 10, true)

	n, err := e.ApplyRelevanceDecay(0.033, 0.1)
	if err != nil {
		t.Fatalf("ApplyRelevanceDecay: %v", err)
	}
	if n != 1 {
		t.Errorf("decayed = %d, want 1", n)
	}

	// 1.0 * (1 - 0.033*10) = 0.67
	got := relevance(t, e, id)
	if math.Abs(got-0.67) > 0.01 {
		t.Errorf("relevance = %v, want ~0.67", got)
	}
}

func TestDecayNeverAccessedFlatPenalty(t *testing.T) {
	e := testEngine(t)
	old := addFact(t, e, store.Fact{Text: "old and unloved"})
	fresh := addFact(t, e, store.Fact{Text: "brand new"})
	backdate(t, e, old, 10, false)

	if _, err := e.ApplyRelevanceDecay(0.033, 0.1); err != nil {
		t.Fatalf("ApplyRelevanceDecay: %v", err)
	}

	got := relevance(t, e, old)
	if math.Abs(got-0.9) > 0.001 {
		t.Errorf("old relevance = %v, want 0.9", got)
	}
	// The grace window: never-accessed facts under 7 days old are untouched.
	if r := relevance(t, e, fresh); r != 1.0 {
		t.Errorf("fresh relevance = %v, want untouched 1.0", r)
	}
}

func TestDecayNeverRaisesAndFloors(t *testing.T) {
	e := testEngine(t)
	id := addFact(t, e, store.Fact{})
	e.DB.SetFactRelevance(id, 0.15)
	backdate(t, e, id, 40, true)

	if _, err := e.ApplyRelevanceDecay(0.033, 0.1); err != nil {
		t.Fatalf("ApplyRelevanceDecay: %v", err)
	}

	// 0.15 * (1 - 0.033*40) is negative; the floor holds.
	if got := relevance(t, e, id); got != store.RelevanceFloor {
		t.Errorf("relevance = %v, want floor %v", got, store.RelevanceFloor)
	}

	// A second pass at the floor changes nothing.
	n, _ := e.ApplyRelevanceDecay(0.033, 0.1)
	if n != 0 {
		t.Errorf("second pass decayed %d facts, want 0", n)
	}
}

func TestDecayMonotonic(t *testing.T) {
	e := testEngine(t)
	id := addFact(t, e, store.Fact{})
	backdate(t, e, id, 5, true)

	before := relevance(t, e, id)
	e.ApplyRelevanceDecay(0.033, 0.1)
	mid := relevance(t, e, id)
	e.ApplyRelevanceDecay(0.033, 0.1)
	after := relevance(t, e, id)

	if mid > before || after > mid {
		t.Errorf("relevance rose under decay: %v -> %v -> %v", before, mid, after)
	}
}

func TestEntropyStatsEmptyStore(t *testing.T) {
	e := testEngine(t)

	stats, err := e.GetEntropyStats(1000)
	if err != nil {
		t.Fatalf("GetEntropyStats: %v", err)
	}
	if stats.Entropy != 0 {
		t.Errorf("entropy = %v, want 0 for empty store", stats.Entropy)
	}
	if stats.Status != "healthy" {
		t.Errorf("status = %q, want healthy", stats.Status)
	}
	if stats.NeedsCompaction {
		t.Error("needs_compaction = true for empty store")
	}
}

func TestEntropyStatsBounded(t *testing.T) {
	e := testEngine(t)

	// Overfill a tiny capacity with stale never-accessed low-relevance facts.
	for i := 0; i < 5; i++ {
		id := addFact(t, e, store.Fact{})
		backdate(t, e, id, 100, false)
		e.DB.SetFactRelevance(id, 0.1)
	}

	stats, err := e.GetEntropyStats(2)
	if err != nil {
		t.Fatalf("GetEntropyStats: %v", err)
	}
	if stats.Entropy < 0 || stats.Entropy > 1 {
		t.Errorf("entropy = %v, out of [0,1]", stats.Entropy)
	}
	if stats.Status != "needs_cleanup" {
		t.Errorf("status = %q, want needs_cleanup", stats.Status)
	}
	if !stats.NeedsCompaction {
		t.Error("needs_compaction = false under maximal pressure")
	}
}

func TestEntropyStatusThresholds(t *testing.T) {
	e := testEngine(t)

	// A few healthy, recently created, accessed facts: low entropy.
	for i := 0; i < 3; i++ {
		id := addFact(t, e, store.Fact{})
		e.DB.TouchFacts([]string{id})
	}

	stats, err := e.GetEntropyStats(1000)
	if err != nil {
		t.Fatalf("GetEntropyStats: %v", err)
	}
	if stats.Status != "healthy" {
		t.Errorf("status = %q (entropy %v), want healthy", stats.Status, stats.Entropy)
	}
}

func TestMergeSimilarFactsKeepsHighestRelevance(t *testing.T) {
	e := testEngine(t)

	// Three pairwise near-identical vectors; only the highest relevance
	// survives regardless of insertion order.
	a := addFact(t, e, store.Fact{Text: "a", Embedding: []float64{1, 0, 0}, Relevance: 0.5})
	b := addFact(t, e, store.Fact{Text: "b", Embedding: []float64{0.999, 0.001, 0}, Relevance: 0.9})
	c := addFact(t, e, store.Fact{Text: "c", Embedding: []float64{0.998, 0.002, 0}, Relevance: 0.7})

	merged, err := e.MergeSimilarFacts(0.95)
	if err != nil {
		t.Fatalf("MergeSimilarFacts: %v", err)
	}
	if merged != 2 {
		t.Errorf("merged = %d, want 2", merged)
	}

	if f, _ := e.DB.GetFact(b); f == nil {
		t.Error("highest-relevance fact was deleted")
	}
	if f, _ := e.DB.GetFact(a); f != nil {
		t.Error("lower-relevance duplicate a survived")
	}
	if f, _ := e.DB.GetFact(c); f != nil {
		t.Error("lower-relevance duplicate c survived")
	}
}

func TestMergeSimilarFactsTieKeepsFirst(t *testing.T) {
	e := testEngine(t)

	first := addFact(t, e, store.Fact{Text: "first", Embedding: []float64{1, 0}, Relevance: 0.8})
	second := addFact(t, e, store.Fact{Text: "second", Embedding: []float64{1, 0}, Relevance: 0.8})

	merged, err := e.MergeSimilarFacts(0.95)
	if err != nil {
		t.Fatalf("MergeSimilarFacts: %v", err)
	}
	if merged != 1 {
		t.Errorf("merged = %d, want 1", merged)
	}
	if f, _ := e.DB.GetFact(first); f == nil {
		t.Error("tie did not keep the first fact")
	}
	if f, _ := e.DB.GetFact(second); f != nil {
		t.Error("tie kept the second fact")
	}
}

func TestMergeSkipsFactsWithoutEmbeddings(t *testing.T) {
	e := testEngine(t)

	addFact(t, e, store.Fact{Text: "identical text"})
	addFact(t, e, store.Fact{Text: "identical text"})

	merged, err := e.MergeSimilarFacts(0.95)
	if err != nil {
		t.Fatalf("MergeSimilarFacts: %v", err)
	}
	if merged != 0 {
		t.Errorf("merged = %d, want 0 without embeddings", merged)
	}
}

func TestMergeBelowThresholdUntouched(t *testing.T) {
	e := testEngine(t)

	addFact(t, e, store.Fact{Text: "a", Embedding: []float64{1, 0}})
	addFact(t, e, store.Fact{Text: "b", Embedding: []float64{0, 1}})

	merged, err := e.MergeSimilarFacts(0.95)
	if err != nil {
		t.Fatalf("MergeSimilarFacts: %v", err)
	}
	if merged != 0 {
		t.Errorf("merged = %d, want 0 for dissimilar facts", merged)
	}
}

func TestSweepFullCycle(t *testing.T) {
	e := testEngine(t)

	// One fact destined for demotion, one healthy.
	stale := addFact(t, e, store.Fact{Text: "stale"})
	e.DB.SetFactRelevance(stale, 0.15)
	backdate(t, e, stale, 20, true)
	healthy := addFact(t, e, store.Fact{Text: "healthy"})
	e.DB.TouchFacts([]string{healthy})

	if err := e.Sweep(context.Background(), "test_sweep"); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if f, _ := e.DB.GetFact(stale); f != nil {
		t.Error("stale fact survived the sweep")
	}
	if f, _ := e.DB.GetFact(healthy); f == nil {
		t.Error("healthy fact lost in the sweep")
	}
	cold, _ := e.DB.CountColdFacts()
	if cold != 1 {
		t.Errorf("cold facts = %d, want 1", cold)
	}

	// The sweep records a metric snapshot.
	metrics, _ := e.DB.ListMetrics(5)
	if len(metrics) != 1 || metrics[0].ActionTaken != "test_sweep" {
		t.Errorf("metrics = %v, want one test_sweep snapshot", metrics)
	}
}

func TestRestoreFromColdStorageViaEngine(t *testing.T) {
	e := testEngine(t)

	id := addFact(t, e, store.Fact{Text: "archived"})
	e.DB.SetFactRelevance(id, 0.1)
	if _, err := e.DemoteToColdStorage(0.3); err != nil {
		t.Fatalf("DemoteToColdStorage: %v", err)
	}

	restored, err := e.RestoreFromColdStorage(id)
	if err != nil {
		t.Fatalf("RestoreFromColdStorage: %v", err)
	}
	if !restored {
		t.Fatal("restored = false")
	}
	if got := relevance(t, e, id); got != 0.5 {
		t.Errorf("relevance = %v, want 0.5", got)
	}
}

func TestPurgeColdFactsRetention(t *testing.T) {
	e := testEngine(t)

	id := addFact(t, e, store.Fact{Text: "expiring"})
	e.DB.SetFactRelevance(id, 0.1)
	e.DemoteToColdStorage(0.3)

	longAgo := time.Now().AddDate(0, 0, -120).UnixMilli()
	e.DB.Exec("UPDATE cold_facts SET archived_at = ?", longAgo)

	purged, err := e.PurgeColdFacts(90)
	if err != nil {
		t.Fatalf("PurgeColdFacts: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
}

func TestDecayPenalizesStaleNotRecent(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	stale := addFact(t, e, store.Fact{Text: "Use kebab-case for files"})
	backdate(t, e, stale, 10, false)

	recent := addFact(t, e, store.Fact{Text: "Use PascalCase for components"})
	for i := 0; i < 5; i++ {
		if err := e.DB.TouchFacts([]string{recent}); err != nil {
			t.Fatalf("TouchFacts: %v", err)
		}
	}

	if _, err := e.ApplyRelevanceDecay(0.033, 0.1); err != nil {
		t.Fatalf("ApplyRelevanceDecay: %v", err)
	}

	if got := relevance(t, e, stale); got > 0.9 {
		t.Errorf("stale relevance = %v, want penalized to <= 0.9", got)
	}

	preSearch := relevance(t, e, recent)
	if _, err := e.SearchFacts(ctx, "PascalCase components", SearchOpts{}); err != nil {
		t.Fatalf("SearchFacts: %v", err)
	}
	if got := relevance(t, e, recent); got < preSearch {
		t.Errorf("searched fact relevance fell: %v -> %v", preSearch, got)
	}
}

func TestPromotionCandidatesAccessThreshold(t *testing.T) {
	e := testEngine(t)

	often := addFact(t, e, store.Fact{Text: "often used"})
	rarely := addFact(t, e, store.Fact{Text: "rarely used"})
	for i := 0; i < 5; i++ {
		e.DB.TouchFacts([]string{often})
	}
	e.DB.TouchFacts([]string{rarely})
	e.DB.SetFactRelevance(often, 0.9)
	e.DB.SetFactRelevance(rarely, 0.9)

	candidates, err := e.GetPromotionCandidates(0.8, 3)
	if err != nil {
		t.Fatalf("GetPromotionCandidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want exactly 1", len(candidates))
	}
	if candidates[0].ID != often {
		t.Errorf("candidate = %s, want the frequently accessed fact", candidates[0].ID)
	}
}

func TestRecordMemoryMetric(t *testing.T) {
	e := testEngine(t)
	addFact(t, e, store.Fact{})

	if err := e.RecordMemoryMetric(""); err != nil {
		t.Fatalf("RecordMemoryMetric: %v", err)
	}

	metrics, _ := e.DB.ListMetrics(1)
	if len(metrics) != 1 {
		t.Fatal("no metric recorded")
	}
	if metrics[0].ActionTaken != "snapshot" {
		t.Errorf("action = %q, want default snapshot", metrics[0].ActionTaken)
	}
	if metrics[0].TotalFacts != 1 {
		t.Errorf("total = %d, want 1", metrics[0].TotalFacts)
	}
}
