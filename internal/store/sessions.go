package store

import (
	"database/sql"

	"assistantcore/internal/types"
)

// CreateSession inserts a new session row.
func (s *Store) CreateSession(sess types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO sessions (id, name, created_at) VALUES (?, ?, ?)`,
		sess.ID, sess.Name, sess.CreatedAt,
	)
	if err != nil {
		return &Error{Kind: Unavailable, Op: "CreateSession", Err: err}
	}
	return nil
}

// GetSession fetches a session by id.
func (s *Store) GetSession(id string) (types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sess types.Session
	err := s.db.QueryRow(`SELECT id, name, created_at FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.Name, &sess.CreatedAt)
	if err == sql.ErrNoRows {
		return types.Session{}, &Error{Kind: NotFound, Op: "GetSession"}
	}
	if err != nil {
		return types.Session{}, &Error{Kind: Unavailable, Op: "GetSession", Err: err}
	}
	return sess, nil
}

// ListSessions returns every session, most recent first.
func (s *Store) ListSessions() ([]types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, name, created_at FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, &Error{Kind: Unavailable, Op: "ListSessions", Err: err}
	}
	defer rows.Close()

	var out []types.Session
	for rows.Next() {
		var sess types.Session
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.CreatedAt); err != nil {
			return nil, &Error{Kind: Unavailable, Op: "ListSessions", Err: err}
		}
		out = append(out, sess)
	}
	return out, nil
}

// LastExchangeNumber returns the highest exchange_number recorded for a
// session, or -1 if none exist yet, so callers can compute the next
// gap-free number by adding one.
func (s *Store) LastExchangeNumber(sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n sql.NullInt64
	err := s.db.QueryRow(
		`SELECT MAX(exchange_number) FROM episodes WHERE session_id = ?`, sessionID,
	).Scan(&n)
	if err != nil {
		return -1, &Error{Kind: Unavailable, Op: "LastExchangeNumber", Err: err}
	}
	if !n.Valid {
		return -1, nil
	}
	return int(n.Int64), nil
}
