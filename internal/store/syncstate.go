package store

import (
	"database/sql"
	"fmt"
)

// SetSyncState writes a coordination key. Last write wins per key.
func (db *DB) SetSyncState(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, nowMillis())
	if err != nil {
		return fmt.Errorf("set sync state: %w", err)
	}
	return nil
}

// GetSyncState reads a coordination key. The bool reports presence.
func (db *DB) GetSyncState(key string) (string, bool, error) {
	var value string
	err := db.QueryRow("SELECT value FROM sync_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get sync state: %w", err)
	}
	return value, true, nil
}

// AllSyncState returns the full coordination map.
func (db *DB) AllSyncState() (map[string]string, error) {
	rows, err := db.Query("SELECT key, value FROM sync_state")
	if err != nil {
		return nil, fmt.Errorf("all sync state: %w", err)
	}
	defer rows.Close()

	state := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan sync state: %w", err)
		}
		state[k] = v
	}
	return state, rows.Err()
}
