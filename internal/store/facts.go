package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Fact is a single stored natural-language statement with decay metadata.
type Fact struct {
	ID            string
	Text          string
	Category      string
	Scope         string // "local" or "team"
	Model         string
	Embedding     []float64
	SourceContext string
	CreatedAt     int64
	UpdatedAt     int64
	LastAccessed  *int64
	AccessCount   int
	RecallCount   int
	Relevance     float64
	PromotedTo    string
}

// RelevanceFloor is the minimum relevance a fact can decay to. Facts are
// never erased by decay alone, only by explicit delete or demotion.
const RelevanceFloor = 0.1

// encodeEmbedding serializes a vector as a JSON float array, or empty for nil.
func encodeEmbedding(vec []float64) string {
	if len(vec) == 0 {
		return ""
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return ""
	}
	return string(b)
}

// decodeEmbedding parses a stored JSON vector. Malformed or empty input
// decodes to nil so a corrupt row degrades to similarity 0 instead of
// failing the whole query.
func decodeEmbedding(s string) []float64 {
	if s == "" {
		return nil
	}
	var vec []float64
	if err := json.Unmarshal([]byte(s), &vec); err != nil {
		return nil
	}
	return vec
}

const factColumns = `id, text, category, scope, model, embedding, source_context,
	created_at, updated_at, last_accessed, access_count, recall_count, relevance, promoted_to`

// InsertFact inserts a new fact. Missing category/scope get defaults and the
// relevance floor is enforced. The fact's ID must already be assigned.
func (db *DB) InsertFact(f *Fact) error {
	if f.Category == "" {
		f.Category = "general"
	}
	if f.Scope == "" {
		f.Scope = "local"
	}
	if f.Relevance == 0 {
		f.Relevance = 1.0
	}
	if f.Relevance < RelevanceFloor {
		f.Relevance = RelevanceFloor
	}

	now := nowMillis()
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := db.Exec(`
		INSERT INTO facts (`+factColumns+`)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, ?, ?, NULLIF(?, ''))
	`, f.ID, f.Text, f.Category, f.Scope, f.Model, encodeEmbedding(f.Embedding), f.SourceContext,
		f.CreatedAt, f.UpdatedAt, f.LastAccessed, f.AccessCount, f.RecallCount, f.Relevance, f.PromotedTo)
	if err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

// GetFact returns a fact by ID, or nil if not found.
func (db *DB) GetFact(id string) (*Fact, error) {
	row := db.QueryRow(`SELECT `+factColumns+` FROM facts WHERE id = ?`, id)
	f, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fact: %w", err)
	}
	return f, nil
}

// FactFilter narrows ListFacts. Empty fields match everything.
type FactFilter struct {
	Category string
	Scope    string
	Model    string
}

// ListFacts returns facts matching the filter in insertion order. Insertion
// order is the stable tie-break for search ranking.
func (db *DB) ListFacts(filter FactFilter) ([]Fact, error) {
	where := []string{"1=1"}
	var args []any
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Scope != "" {
		where = append(where, "scope = ?")
		args = append(args, filter.Scope)
	}
	if filter.Model != "" {
		where = append(where, "model = ?")
		args = append(args, filter.Model)
	}

	rows, err := db.Query(`
		SELECT `+factColumns+` FROM facts
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY rowid
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// DeleteFact hard-deletes a fact. Returns false if the ID was not present.
func (db *DB) DeleteFact(id string) (bool, error) {
	result, err := db.Exec("DELETE FROM facts WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete fact: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// DeleteFacts removes a batch of facts in one transaction, so a merge pass
// is all-or-nothing on disk. Returns the number actually deleted.
func (db *DB) DeleteFacts(ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin delete facts: %w", err)
	}
	defer tx.Rollback()

	deleted := 0
	for _, id := range ids {
		result, err := tx.Exec("DELETE FROM facts WHERE id = ?", id)
		if err != nil {
			return 0, fmt.Errorf("delete fact %s: %w", id, err)
		}
		n, _ := result.RowsAffected()
		deleted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete facts: %w", err)
	}
	return deleted, nil
}

// TouchFacts applies the retrieval boost to the given facts: last_accessed
// set to now, access and recall counts incremented, relevance +0.1 capped at
// 1.0. This is the only operation that increases relevance.
func (db *DB) TouchFacts(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := nowMillis()
	for _, id := range ids {
		_, err := db.Exec(`
			UPDATE facts
			SET last_accessed = ?, access_count = access_count + 1,
			    recall_count = recall_count + 1, relevance = MIN(1.0, relevance + 0.1)
			WHERE id = ?
		`, now, id)
		if err != nil {
			return fmt.Errorf("touch fact %s: %w", id, err)
		}
	}
	return nil
}

// SetFactRelevance writes a decayed relevance value, clamped to the floor.
func (db *DB) SetFactRelevance(id string, relevance float64) error {
	if relevance < RelevanceFloor {
		relevance = RelevanceFloor
	}
	_, err := db.Exec("UPDATE facts SET relevance = ? WHERE id = ?", relevance, id)
	if err != nil {
		return fmt.Errorf("set relevance: %w", err)
	}
	return nil
}

// MarkFactPromoted records a fact's promotion destination. Re-promotion is a
// no-op, not an error: the first destination sticks. Returns false if the
// fact does not exist.
func (db *DB) MarkFactPromoted(id, destination string) (bool, error) {
	var existing sql.NullString
	err := db.QueryRow("SELECT promoted_to FROM facts WHERE id = ?", id).Scan(&existing)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check promotion: %w", err)
	}
	if existing.Valid && existing.String != "" {
		return true, nil
	}

	_, err = db.Exec("UPDATE facts SET promoted_to = ?, updated_at = ? WHERE id = ?",
		destination, nowMillis(), id)
	if err != nil {
		return false, fmt.Errorf("mark promoted: %w", err)
	}
	return true, nil
}

// PromotionCandidates returns unpromoted facts worth elevating into a rules
// file, ordered by relevance then access count, both descending.
func (db *DB) PromotionCandidates(minRelevance float64, minAccessCount int) ([]Fact, error) {
	rows, err := db.Query(`
		SELECT `+factColumns+` FROM facts
		WHERE promoted_to IS NULL AND relevance >= ? AND access_count >= ?
		ORDER BY relevance DESC, access_count DESC
	`, minRelevance, minAccessCount)
	if err != nil {
		return nil, fmt.Errorf("promotion candidates: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// FactStats holds the aggregates the entropy formula is computed from.
type FactStats struct {
	Total         int
	NeverAccessed int
	LowRelevance  int // relevance < 0.3
	AvgRelevance  float64
	AvgAgeDays    float64
}

// GetFactStats computes store-wide aggregates in a single query.
func (db *DB) GetFactStats() (*FactStats, error) {
	now := nowMillis()
	var s FactStats
	var avgAgeMs float64
	err := db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN last_accessed IS NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN relevance < 0.3 THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(relevance), 0),
		       COALESCE(AVG(? - created_at), 0)
		FROM facts
	`, now).Scan(&s.Total, &s.NeverAccessed, &s.LowRelevance, &s.AvgRelevance, &avgAgeMs)
	if err != nil {
		return nil, fmt.Errorf("fact stats: %w", err)
	}
	s.AvgAgeDays = avgAgeMs / millisPerDay
	return &s, nil
}

const millisPerDay = 24 * 60 * 60 * 1000

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFact(row rowScanner) (*Fact, error) {
	var f Fact
	var model, embedding, sourceContext, promotedTo sql.NullString
	var lastAccessed sql.NullInt64
	err := row.Scan(&f.ID, &f.Text, &f.Category, &f.Scope, &model, &embedding, &sourceContext,
		&f.CreatedAt, &f.UpdatedAt, &lastAccessed, &f.AccessCount, &f.RecallCount,
		&f.Relevance, &promotedTo)
	if err != nil {
		return nil, err
	}
	f.Model = model.String
	f.Embedding = decodeEmbedding(embedding.String)
	f.SourceContext = sourceContext.String
	f.PromotedTo = promotedTo.String
	if lastAccessed.Valid {
		f.LastAccessed = &lastAccessed.Int64
	}
	return &f, nil
}

func scanFacts(rows *sql.Rows) ([]Fact, error) {
	var facts []Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		facts = append(facts, *f)
	}
	return facts, rows.Err()
}
