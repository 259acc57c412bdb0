package index

import (
	"fmt"
	"time"
)

// ResultRow is one persisted plugin result for a note. Payload is the
// JSON-encoded plugin output (string, tag list, or block map by kind).
type ResultRow struct {
	NotePath  string
	PluginID  string
	Kind      string
	Payload   string
	UpdatedAt time.Time
}

// SaveResult inserts or replaces the stored result of one plugin run.
func (db *DB) SaveResult(r ResultRow) error {
	_, err := db.conn.Exec(`
		INSERT INTO plugin_results (note_path, plugin_id, kind, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(note_path, plugin_id) DO UPDATE SET
			kind       = excluded.kind,
			payload    = excluded.payload,
			updated_at = excluded.updated_at
	`, r.NotePath, r.PluginID, r.Kind, r.Payload, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: save result: %w", err)
	}
	return nil
}

// ResultsForNote returns every stored plugin result for the given note.
func (db *DB) ResultsForNote(notePath string) ([]ResultRow, error) {
	rows, err := db.conn.Query(`
		SELECT note_path, plugin_id, kind, payload, updated_at
		FROM plugin_results
		WHERE note_path = ?
		ORDER BY plugin_id
	`, notePath)
	if err != nil {
		return nil, fmt.Errorf("index: results for note: %w", err)
	}
	defer rows.Close()

	var out []ResultRow
	for rows.Next() {
		var r ResultRow
		if err := rows.Scan(&r.NotePath, &r.PluginID, &r.Kind, &r.Payload, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteResults removes all stored plugin results for a note.
func (db *DB) DeleteResults(notePath string) error {
	if _, err := db.conn.Exec(`DELETE FROM plugin_results WHERE note_path = ?`, notePath); err != nil {
		return fmt.Errorf("index: delete results: %w", err)
	}
	return nil
}
