package store

import (
	"fmt"
)

// MemoryMetric is an append-only health snapshot. Rows are never mutated or
// deleted; they exist for historical trend display.
type MemoryMetric struct {
	ID            int64
	Timestamp     int64
	TotalFacts    int
	ColdFacts     int
	EntropyScore  float64
	AvgRelevance  float64
	NeverAccessed int
	ActionTaken   string
}

// InsertMetric appends a snapshot to the metrics log.
func (db *DB) InsertMetric(m *MemoryMetric) error {
	m.Timestamp = nowMillis()
	result, err := db.Exec(`
		INSERT INTO memory_metrics (timestamp, total_facts, cold_facts, entropy_score, avg_relevance, never_accessed, action_taken)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.Timestamp, m.TotalFacts, m.ColdFacts, m.EntropyScore, m.AvgRelevance, m.NeverAccessed, m.ActionTaken)
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	m.ID, _ = result.LastInsertId()
	return nil
}

// ListMetrics returns the most recent snapshots, newest first.
func (db *DB) ListMetrics(limit int) ([]MemoryMetric, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT id, timestamp, total_facts, cold_facts, entropy_score, avg_relevance, never_accessed, action_taken
		FROM memory_metrics ORDER BY timestamp DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	var metrics []MemoryMetric
	for rows.Next() {
		var m MemoryMetric
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.TotalFacts, &m.ColdFacts,
			&m.EntropyScore, &m.AvgRelevance, &m.NeverAccessed, &m.ActionTaken); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
