package store

import (
	"database/sql"
	"time"

	"assistantcore/internal/semantic"
)

// UpsertSemanticEntry inserts a new semantic_entries row, or, if a row with
// the same content_hash already exists, bumps its access_count and
// last_access instead. Returns inserted=true only on a fresh insert.
func (s *Store) UpsertSemanticEntry(id, content, contentHash string, embedding []byte, importance float64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existingID string
	err := s.db.QueryRow(`SELECT id FROM semantic_entries WHERE content_hash = ?`, contentHash).Scan(&existingID)
	if err == nil {
		_, err := s.db.Exec(
			`UPDATE semantic_entries SET access_count = access_count + 1, last_access = ? WHERE id = ?`,
			now, existingID,
		)
		if err != nil {
			return false, &Error{Kind: Unavailable, Op: "UpsertSemanticEntry", Err: err}
		}
		return false, nil
	}
	if err != sql.ErrNoRows {
		return false, &Error{Kind: Unavailable, Op: "UpsertSemanticEntry", Err: err}
	}

	_, err = s.db.Exec(
		`INSERT INTO semantic_entries (id, content, content_hash, embedding, importance, access_count, created_at, last_access)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		id, content, contentHash, embedding, importance, now, now,
	)
	if err != nil {
		return false, &Error{Kind: Unavailable, Op: "UpsertSemanticEntry", Err: err}
	}
	return true, nil
}

// AllSemanticEntries returns every row for the brute-force similarity scan.
func (s *Store) AllSemanticEntries() ([]semantic.SemanticRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, content, content_hash, embedding, importance, access_count, created_at, last_access FROM semantic_entries`,
	)
	if err != nil {
		return nil, &Error{Kind: Unavailable, Op: "AllSemanticEntries", Err: err}
	}
	defer rows.Close()

	var out []semantic.SemanticRow
	for rows.Next() {
		var r semantic.SemanticRow
		if err := rows.Scan(&r.ID, &r.Content, &r.ContentHash, &r.Embedding, &r.Importance, &r.AccessCount, &r.CreatedAt, &r.LastAccess); err != nil {
			return nil, &Error{Kind: Unavailable, Op: "AllSemanticEntries", Err: err}
		}
		out = append(out, r)
	}
	return out, nil
}

// DeleteSemanticEntries removes the given rows (used by Prune).
func (s *Store) DeleteSemanticEntries(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.WithTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`DELETE FROM semantic_entries WHERE id = ?`)
		if err != nil {
			return &Error{Kind: Unavailable, Op: "DeleteSemanticEntries", Err: err}
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.Exec(id); err != nil {
				return &Error{Kind: Unavailable, Op: "DeleteSemanticEntries", Err: err}
			}
		}
		return nil
	})
}

// BumpSemanticAccess increments access_count and sets last_access to now.
func (s *Store) BumpSemanticAccess(id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE semantic_entries SET access_count = access_count + 1, last_access = ? WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "BumpSemanticAccess", Err: err}
	}
	return nil
}
