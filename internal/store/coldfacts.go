package store

import (
	"database/sql"
	"fmt"
)

// ColdFact is a demoted fact plus its archive stamp.
type ColdFact struct {
	Fact
	ArchivedAt    int64
	ArchiveReason string
}

const coldFactColumns = factColumns + `, archived_at, archive_reason`

// DemoteFacts moves every fact below the relevance threshold into cold
// storage. Facts with a promotion destination are exempt: promotion is a
// permanence guarantee. The insert-then-delete pair runs in one transaction
// so no partial move is ever visible on disk. Returns the number demoted.
func (db *DB) DemoteFacts(relevanceThreshold float64) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin demote: %w", err)
	}
	defer tx.Rollback()

	now := nowMillis()
	result, err := tx.Exec(`
		INSERT INTO cold_facts (`+coldFactColumns+`)
		SELECT `+factColumns+`, ?, 'low_relevance'
		FROM facts
		WHERE relevance < ? AND promoted_to IS NULL
	`, now, relevanceThreshold)
	if err != nil {
		return 0, fmt.Errorf("archive facts: %w", err)
	}
	moved, _ := result.RowsAffected()

	if _, err := tx.Exec(`
		DELETE FROM facts WHERE relevance < ? AND promoted_to IS NULL
	`, relevanceThreshold); err != nil {
		return 0, fmt.Errorf("remove demoted facts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit demote: %w", err)
	}
	return int(moved), nil
}

// PurgeColdFacts hard-deletes cold facts archived before the cutoff.
// Irreversible. Returns the number purged.
func (db *DB) PurgeColdFacts(archivedBefore int64) (int, error) {
	result, err := db.Exec("DELETE FROM cold_facts WHERE archived_at < ?", archivedBefore)
	if err != nil {
		return 0, fmt.Errorf("purge cold facts: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// RestoreColdFact moves a cold fact back into the active store with a
// fresh-start relevance of 0.5 and current access/update stamps. Returns
// false if the ID is not in cold storage.
func (db *DB) RestoreColdFact(id string) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin restore: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT `+coldFactColumns+` FROM cold_facts WHERE id = ?`, id)
	cf, err := scanColdFact(row)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get cold fact: %w", err)
	}

	now := nowMillis()
	_, err = tx.Exec(`
		INSERT INTO facts (`+factColumns+`)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, ?, ?, NULLIF(?, ''))
	`, cf.ID, cf.Text, cf.Category, cf.Scope, cf.Model, encodeEmbedding(cf.Embedding), cf.SourceContext,
		cf.CreatedAt, now, now, cf.AccessCount, cf.RecallCount, 0.5, cf.PromotedTo)
	if err != nil {
		return false, fmt.Errorf("reinsert fact: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM cold_facts WHERE id = ?", id); err != nil {
		return false, fmt.Errorf("remove cold fact: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit restore: %w", err)
	}
	return true, nil
}

// ListColdFacts returns cold facts, most recently archived first.
func (db *DB) ListColdFacts(limit int) ([]ColdFact, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT `+coldFactColumns+` FROM cold_facts
		ORDER BY archived_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list cold facts: %w", err)
	}
	defer rows.Close()

	var facts []ColdFact
	for rows.Next() {
		cf, err := scanColdFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cold fact: %w", err)
		}
		facts = append(facts, *cf)
	}
	return facts, rows.Err()
}

// CountColdFacts returns the size of the cold archive.
func (db *DB) CountColdFacts() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM cold_facts").Scan(&count)
	return count, err
}

func scanColdFact(row rowScanner) (*ColdFact, error) {
	var cf ColdFact
	var model, embedding, sourceContext, promotedTo sql.NullString
	var lastAccessed sql.NullInt64
	err := row.Scan(&cf.ID, &cf.Text, &cf.Category, &cf.Scope, &model, &embedding, &sourceContext,
		&cf.CreatedAt, &cf.UpdatedAt, &lastAccessed, &cf.AccessCount, &cf.RecallCount,
		&cf.Relevance, &promotedTo, &cf.ArchivedAt, &cf.ArchiveReason)
	if err != nil {
		return nil, err
	}
	cf.Model = model.String
	cf.Embedding = decodeEmbedding(embedding.String)
	cf.SourceContext = sourceContext.String
	cf.PromotedTo = promotedTo.String
	if lastAccessed.Valid {
		cf.LastAccessed = &lastAccessed.Int64
	}
	return &cf, nil
}
