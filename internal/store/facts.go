package store

import (
	"encoding/json"
	"strings"

	"assistantcore/internal/types"
)

// InsertFact appends a new fact row. Facts are always inserted, never
// merged - duplicate detection and reinforcement semantics live in
// internal/facts, which always calls this as a plain append.
func (s *Store) InsertFact(f types.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags, err := json.Marshal(f.Tags)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "InsertFact", Err: err}
	}
	meta, err := json.Marshal(f.Metadata)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "InsertFact", Err: err}
	}

	_, err = s.db.Exec(
		`INSERT INTO facts
			(id, type, content, context, importance, access_count, timestamp,
			 last_access, session_id, episode_id, tags, metadata, fingerprint)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, string(f.Type), f.Content, f.Context, f.Importance, f.AccessCount,
		f.Timestamp, f.LastAccess, f.SessionID, f.EpisodeID, string(tags), string(meta), f.Fingerprint,
	)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "InsertFact", Err: err}
	}
	return nil
}

// FactsByType returns every fact of the given type, most recent first.
func (s *Store) FactsByType(t types.FactType) ([]types.Fact, error) {
	return s.queryFacts(
		`SELECT id, type, content, context, importance, access_count, timestamp,
			last_access, session_id, episode_id, tags, metadata, fingerprint
		 FROM facts WHERE type = ? ORDER BY timestamp DESC`,
		string(t),
	)
}

// SearchFacts does a plain substring match over content and context,
// restricted to a fact type when one is given, ordered by importance then
// recency - the keyword-matching counterpart the router falls back to
// before reaching for the semantic store.
func (s *Store) SearchFacts(query string, t types.FactType, limit int) ([]types.Fact, error) {
	like := "%" + strings.ToLower(query) + "%"
	if t != "" {
		return s.queryFacts(
			`SELECT id, type, content, context, importance, access_count, timestamp,
				last_access, session_id, episode_id, tags, metadata, fingerprint
			 FROM facts WHERE type = ? AND (LOWER(content) LIKE ? OR LOWER(context) LIKE ?)
			 ORDER BY importance DESC, timestamp DESC LIMIT ?`,
			string(t), like, like, limit,
		)
	}
	return s.queryFacts(
		`SELECT id, type, content, context, importance, access_count, timestamp,
			last_access, session_id, episode_id, tags, metadata, fingerprint
		 FROM facts WHERE LOWER(content) LIKE ? OR LOWER(context) LIKE ?
		 ORDER BY importance DESC, timestamp DESC LIMIT ?`,
		like, like, limit,
	)
}

// TopAccessedFacts returns the n facts with the highest access_count, for
// the facts-store stats surface supplemented from the original prototype.
func (s *Store) TopAccessedFacts(n int) ([]types.Fact, error) {
	return s.queryFacts(
		`SELECT id, type, content, context, importance, access_count, timestamp,
			last_access, session_id, episode_id, tags, metadata, fingerprint
		 FROM facts ORDER BY access_count DESC LIMIT ?`,
		n,
	)
}

// FactStats returns per-type counts for the facts store.
func (s *Store) FactStats() (map[types.FactType]int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT type, COUNT(*) FROM facts GROUP BY type`)
	if err != nil {
		return nil, 0, &Error{Kind: Unavailable, Op: "FactStats", Err: err}
	}
	defer rows.Close()

	counts := make(map[types.FactType]int)
	total := 0
	for rows.Next() {
		var t string
		var c int
		if err := rows.Scan(&t, &c); err != nil {
			return nil, 0, &Error{Kind: Unavailable, Op: "FactStats", Err: err}
		}
		counts[types.FactType(t)] = c
		total += c
	}
	return counts, total, nil
}

// BumpFactAccess increments access_count and updates last_access to now.
func (s *Store) BumpFactAccess(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE facts SET access_count = access_count + 1, last_access = CURRENT_TIMESTAMP WHERE id = ?`,
		id,
	)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "BumpFactAccess", Err: err}
	}
	return nil
}

func (s *Store) queryFacts(query string, args ...interface{}) ([]types.Fact, error) {
	s.mu.RLock()
	rows, err := s.db.Query(query, args...)
	s.mu.RUnlock()
	if err != nil {
		return nil, &Error{Kind: Unavailable, Op: "queryFacts", Err: err}
	}
	defer rows.Close()

	var out []types.Fact
	for rows.Next() {
		var f types.Fact
		var typ, tagsJSON, metaJSON string
		if err := rows.Scan(
			&f.ID, &typ, &f.Content, &f.Context, &f.Importance, &f.AccessCount, &f.Timestamp,
			&f.LastAccess, &f.SessionID, &f.EpisodeID, &tagsJSON, &metaJSON, &f.Fingerprint,
		); err != nil {
			return nil, &Error{Kind: Unavailable, Op: "queryFacts", Err: err}
		}
		f.Type = types.FactType(typ)
		_ = json.Unmarshal([]byte(tagsJSON), &f.Tags)
		_ = json.Unmarshal([]byte(metaJSON), &f.Metadata)
		out = append(out, f)
	}
	return out, nil
}
