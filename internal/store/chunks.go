package store

import (
	"database/sql"
	"fmt"
)

// PRDChunk is a classified fragment of a requirements document.
type PRDChunk struct {
	ID        string
	PRDID     string
	Section   string
	Content   string
	ChunkType string // constraint, criteria, goal, technical, description, list
	Embedding []float64
	FileName  string
	CreatedAt int64
}

const chunkColumns = `id, prd_id, section, content, chunk_type, embedding, file_name, created_at`

// ReplacePRDChunks atomically swaps all chunks of a PRD for the given set.
// Re-ingesting a document never leaves stale partial chunks behind.
func (db *DB) ReplacePRDChunks(prdID string, chunks []PRDChunk) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace chunks: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM prd_chunks WHERE prd_id = ?", prdID); err != nil {
		return fmt.Errorf("clear prd chunks: %w", err)
	}

	now := nowMillis()
	for i := range chunks {
		c := &chunks[i]
		c.PRDID = prdID
		c.CreatedAt = now
		_, err := tx.Exec(`
			INSERT INTO prd_chunks (`+chunkColumns+`)
			VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?)
		`, c.ID, c.PRDID, c.Section, c.Content, c.ChunkType,
			encodeEmbedding(c.Embedding), c.FileName, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace chunks: %w", err)
	}
	return nil
}

// ListPRDChunks returns chunks for one PRD, or all chunks when prdID is
// empty, in insertion order.
func (db *DB) ListPRDChunks(prdID string) ([]PRDChunk, error) {
	var rows *sql.Rows
	var err error
	if prdID == "" {
		rows, err = db.Query(`SELECT ` + chunkColumns + ` FROM prd_chunks ORDER BY rowid`)
	} else {
		rows, err = db.Query(`SELECT `+chunkColumns+` FROM prd_chunks WHERE prd_id = ? ORDER BY rowid`, prdID)
	}
	if err != nil {
		return nil, fmt.Errorf("list prd chunks: %w", err)
	}
	defer rows.Close()

	var chunks []PRDChunk
	for rows.Next() {
		var c PRDChunk
		var embedding, fileName sql.NullString
		if err := rows.Scan(&c.ID, &c.PRDID, &c.Section, &c.Content, &c.ChunkType,
			&embedding, &fileName, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Embedding = decodeEmbedding(embedding.String)
		c.FileName = fileName.String
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CountPRDChunks returns the chunk count for a PRD.
func (db *DB) CountPRDChunks(prdID string) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM prd_chunks WHERE prd_id = ?", prdID).Scan(&count)
	return count, err
}
