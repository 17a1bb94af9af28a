package store

import (
	"database/sql"
	"encoding/json"
	"strings"

	"assistantcore/internal/types"
)

// InsertSummary writes a buffer/session/rolling summary row.
func (s *Store) InsertSummary(sm types.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := json.Marshal(sm.SourceEpisodeIDs)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "InsertSummary", Err: err}
	}
	_, err = s.db.Exec(
		`INSERT INTO summaries (id, session_id, type, content, source_episode_ids, importance, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sm.ID, sm.SessionID, string(sm.Type), sm.Content, string(ids), sm.Importance, sm.CreatedAt,
	)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "InsertSummary", Err: err}
	}
	return nil
}

// RollingSummaries returns every rolling summary for a session, oldest
// first, the layer the memory manager folds into mid-tier context.
func (s *Store) RollingSummaries(sessionID string) ([]types.Summary, error) {
	s.mu.RLock()
	rows, err := s.db.Query(
		`SELECT id, session_id, type, content, source_episode_ids, importance, created_at
		 FROM summaries WHERE session_id = ? AND type = ? ORDER BY created_at ASC`,
		sessionID, string(types.SummaryRolling),
	)
	s.mu.RUnlock()
	if err != nil {
		return nil, &Error{Kind: Unavailable, Op: "RollingSummaries", Err: err}
	}
	defer rows.Close()

	var out []types.Summary
	for rows.Next() {
		var sm types.Summary
		var typ, idsJSON string
		if err := rows.Scan(&sm.ID, &sm.SessionID, &typ, &sm.Content, &idsJSON, &sm.Importance, &sm.CreatedAt); err != nil {
			return nil, &Error{Kind: Unavailable, Op: "RollingSummaries", Err: err}
		}
		sm.Type = types.SummaryType(typ)
		_ = json.Unmarshal([]byte(idsJSON), &sm.SourceEpisodeIDs)
		out = append(out, sm)
	}
	return out, nil
}

// InsertConversationSummary persists a facet-extracted cross-session
// summary (spec.md §3's ConversationSummary).
func (s *Store) InsertConversationSummary(cs types.ConversationSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyExchangeIDs := make([]string, len(cs.KeyExchanges))
	for i, ke := range cs.KeyExchanges {
		keyExchangeIDs[i] = ke.Episode.ID + "|" + ke.Reason
	}

	marshal := func(v interface{}) string {
		b, _ := json.Marshal(v)
		return string(b)
	}

	_, err := s.db.Exec(
		`INSERT INTO session_summaries
			(id, session_id, opening_episode_id, closing_episode_id, key_exchanges, key_points,
			 insights, progress_made, topics, decisions, unfinished_threads, technical_solutions,
			 trust_indicators, collaboration_patterns, communication_style,
			 timestamp_start, timestamp_end, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cs.ID, cs.SessionID, cs.OpeningExchange.ID, cs.ClosingExchange.ID,
		marshal(keyExchangeIDs), marshal(cs.KeyPoints), marshal(cs.Insights), marshal(cs.ProgressMade),
		marshal(cs.Topics), marshal(cs.Decisions), marshal(cs.UnfinishedThreads), marshal(cs.TechnicalSolutions),
		marshal(cs.TrustIndicators), marshal(cs.CollaborationPatterns), cs.CommunicationStyle,
		cs.TimestampStart, cs.TimestampEnd, cs.CreatedAt,
	)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "InsertConversationSummary", Err: err}
	}
	return nil
}

// LatestConversationSummary returns the most recently created
// ConversationSummary across all sessions, used to seed identity continuity
// at the start of a new session. Episode bodies are not rehydrated here;
// only the id/reason pairs are - callers needing full episode text should
// join against episodes themselves.
func (s *Store) LatestConversationSummary() (types.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cs types.ConversationSummary
	var openingID, closingID string
	var keyExchangesJSON, keyPointsJSON, insightsJSON, progressJSON, topicsJSON string
	var decisionsJSON, unfinishedJSON, technicalJSON, trustJSON, collabJSON string

	row := s.db.QueryRow(
		`SELECT id, session_id, opening_episode_id, closing_episode_id, key_exchanges, key_points,
			insights, progress_made, topics, decisions, unfinished_threads, technical_solutions,
			trust_indicators, collaboration_patterns, communication_style, timestamp_start,
			timestamp_end, created_at
		 FROM session_summaries ORDER BY created_at DESC LIMIT 1`,
	)
	err := row.Scan(
		&cs.ID, &cs.SessionID, &openingID, &closingID, &keyExchangesJSON, &keyPointsJSON,
		&insightsJSON, &progressJSON, &topicsJSON, &decisionsJSON, &unfinishedJSON, &technicalJSON,
		&trustJSON, &collabJSON, &cs.CommunicationStyle, &cs.TimestampStart, &cs.TimestampEnd, &cs.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return types.ConversationSummary{}, &Error{Kind: NotFound, Op: "LatestConversationSummary"}
	}
	if err != nil {
		return types.ConversationSummary{}, &Error{Kind: Unavailable, Op: "LatestConversationSummary", Err: err}
	}

	cs.OpeningExchange.ID = openingID
	cs.ClosingExchange.ID = closingID
	_ = json.Unmarshal([]byte(keyPointsJSON), &cs.KeyPoints)
	_ = json.Unmarshal([]byte(insightsJSON), &cs.Insights)
	_ = json.Unmarshal([]byte(progressJSON), &cs.ProgressMade)
	_ = json.Unmarshal([]byte(topicsJSON), &cs.Topics)
	_ = json.Unmarshal([]byte(decisionsJSON), &cs.Decisions)
	_ = json.Unmarshal([]byte(unfinishedJSON), &cs.UnfinishedThreads)
	_ = json.Unmarshal([]byte(technicalJSON), &cs.TechnicalSolutions)
	_ = json.Unmarshal([]byte(trustJSON), &cs.TrustIndicators)
	_ = json.Unmarshal([]byte(collabJSON), &cs.CollaborationPatterns)

	var keyExchangeIDs []string
	_ = json.Unmarshal([]byte(keyExchangesJSON), &keyExchangeIDs)
	for _, kid := range keyExchangeIDs {
		id, reason, _ := strings.Cut(kid, "|")
		cs.KeyExchanges = append(cs.KeyExchanges, types.KeyExchange{Episode: types.Episode{ID: id}, Reason: reason})
	}
	return cs, nil
}
