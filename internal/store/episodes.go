package store

import (
	"database/sql"

	"assistantcore/internal/types"
)

// InsertEpisode writes a new episode row. Callers compute ExchangeNumber
// via LastExchangeNumber+1 so the sequence stays gap-free per session.
func (s *Store) InsertEpisode(e types.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO episodes
			(id, session_id, exchange_number, created_at, user_text, agent_text,
			 summary, importance, in_buffer, summarized, compression_level, facts_extracted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.ExchangeNumber, e.CreatedAt, e.UserText, e.AgentText,
		e.Summary, e.Importance, e.InBuffer, e.Summarized, e.CompressionLevel, e.FactsExtracted,
	)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "InsertEpisode", Err: err}
	}
	return nil
}

// BufferedEpisodes returns the episodes still marked in_buffer for a
// session, oldest first, for FIFO eviction/reload on startup.
func (s *Store) BufferedEpisodes(sessionID string) ([]types.Episode, error) {
	return s.queryEpisodes(
		`SELECT id, session_id, exchange_number, created_at, user_text, agent_text,
			summary, importance, in_buffer, summarized, compression_level, facts_extracted
		 FROM episodes WHERE session_id = ? AND in_buffer = 1 ORDER BY exchange_number ASC`,
		sessionID,
	)
}

// RecentEpisodes returns the most recent n episodes for a session, oldest
// first, regardless of buffer membership (used to reload a FIFO buffer at
// startup per spec.md's buffer-reload requirement).
func (s *Store) RecentEpisodes(sessionID string, n int) ([]types.Episode, error) {
	s.mu.RLock()
	rows, err := s.db.Query(
		`SELECT id, session_id, exchange_number, created_at, user_text, agent_text,
			summary, importance, in_buffer, summarized, compression_level, facts_extracted
		 FROM episodes WHERE session_id = ? ORDER BY exchange_number DESC LIMIT ?`,
		sessionID, n,
	)
	s.mu.RUnlock()
	if err != nil {
		return nil, &Error{Kind: Unavailable, Op: "RecentEpisodes", Err: err}
	}
	defer rows.Close()

	out, err := scanEpisodes(rows)
	if err != nil {
		return nil, err
	}
	// reverse to oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// UnsummarizedEpisodes returns in-buffer episodes not yet folded into a
// rolling summary, oldest first.
func (s *Store) UnsummarizedEpisodes(sessionID string) ([]types.Episode, error) {
	return s.queryEpisodes(
		`SELECT id, session_id, exchange_number, created_at, user_text, agent_text,
			summary, importance, in_buffer, summarized, compression_level, facts_extracted
		 FROM episodes WHERE session_id = ? AND summarized = 0 ORDER BY exchange_number ASC`,
		sessionID,
	)
}

func (s *Store) queryEpisodes(query string, args ...interface{}) ([]types.Episode, error) {
	s.mu.RLock()
	rows, err := s.db.Query(query, args...)
	s.mu.RUnlock()
	if err != nil {
		return nil, &Error{Kind: Unavailable, Op: "queryEpisodes", Err: err}
	}
	defer rows.Close()
	return scanEpisodes(rows)
}

func scanEpisodes(rows *sql.Rows) ([]types.Episode, error) {
	var out []types.Episode
	for rows.Next() {
		var e types.Episode
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.ExchangeNumber, &e.CreatedAt, &e.UserText, &e.AgentText,
			&e.Summary, &e.Importance, &e.InBuffer, &e.Summarized, &e.CompressionLevel, &e.FactsExtracted,
		); err != nil {
			return nil, &Error{Kind: Unavailable, Op: "scanEpisodes", Err: err}
		}
		out = append(out, e)
	}
	return out, nil
}

// MarkEpisodesSummarized flips summarized=1, in_buffer=0 for the given
// episode ids after they have been folded into a rolling summary.
func (s *Store) MarkEpisodesSummarized(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.WithTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE episodes SET summarized = 1, in_buffer = 0 WHERE id = ?`)
		if err != nil {
			return &Error{Kind: Unavailable, Op: "MarkEpisodesSummarized", Err: err}
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.Exec(id); err != nil {
				return &Error{Kind: Unavailable, Op: "MarkEpisodesSummarized", Err: err}
			}
		}
		return nil
	})
}

// MarkFactsExtracted flips facts_extracted=1 on an episode.
func (s *Store) MarkFactsExtracted(episodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE episodes SET facts_extracted = 1 WHERE id = ?`, episodeID)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "MarkFactsExtracted", Err: err}
	}
	return nil
}
