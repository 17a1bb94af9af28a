package facts

import (
	"time"

	"assistantcore/internal/logging"
	"assistantcore/internal/types"
)

// Backend is the persistence surface the Facts Store needs.
type Backend interface {
	InsertFact(f types.Fact) error
	FactsByType(t types.FactType) ([]types.Fact, error)
	SearchFacts(query string, t types.FactType, limit int) ([]types.Fact, error)
	TopAccessedFacts(n int) ([]types.Fact, error)
	FactStats() (map[types.FactType]int, int, error)
	BumpFactAccess(id string) error
}

// Store is the Facts Store (Module C).
type Store struct {
	backend Backend
	idSeq   func() string
	now     func() time.Time
}

// New constructs a Facts Store.
func New(backend Backend, idSeq func() string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{backend: backend, idSeq: idSeq, now: now}
}

// StoreCandidates inserts extracted fact candidates as new rows. Duplicates
// (same type+fingerprint) are inserted again rather than merged: repetition
// is meaningful as reinforcement, per spec.md §3. A single row's insert
// failure is an ExtractionError (spec.md §7): it is logged and skipped, the
// rest of the batch still proceeds, and the return value is the count
// actually persisted.
func (s *Store) StoreCandidates(candidates []Candidate, episodeID, sessionID string) (int, error) {
	stored := 0
	now := s.now()
	for _, c := range candidates {
		f := types.Fact{
			ID:          s.idSeq(),
			Type:        c.Type,
			Content:     c.Content,
			Context:     c.Context,
			Importance:  c.Importance,
			AccessCount: 0,
			Timestamp:   now,
			LastAccess:  now,
			SessionID:   sessionID,
			EpisodeID:   episodeID,
			Tags:        c.Tags,
			Metadata:    c.Metadata,
			Fingerprint: c.Fingerprint,
		}
		if f.Metadata == nil {
			f.Metadata = map[string]string{}
		}
		if err := s.backend.InsertFact(f); err != nil {
			logging.Get(logging.CategoryFacts).Warn("failed to persist fact type=%s fingerprint=%s: %v", f.Type, f.Fingerprint, err)
			continue
		}
		stored++
	}
	return stored, nil
}

// Search does a substring match over content and context, ranked by
// (importance DESC, timestamp DESC), and bumps access_count/last_access on
// every hit.
func (s *Store) Search(query string, typeFilter types.FactType, limit int, minImportance float64) ([]types.Fact, error) {
	if limit <= 0 {
		limit = 20
	}
	hits, err := s.backend.SearchFacts(query, typeFilter, limit*2)
	if err != nil {
		return nil, err
	}

	filtered := make([]types.Fact, 0, len(hits))
	for _, f := range hits {
		if f.Importance < minImportance {
			continue
		}
		filtered = append(filtered, f)
		if len(filtered) >= limit {
			break
		}
	}

	for _, f := range filtered {
		_ = s.backend.BumpFactAccess(f.ID)
	}
	return filtered, nil
}

// Stats summarizes the Facts Store per spec.md §4.C.
type Stats struct {
	Total          int
	PerTypeCounts  map[types.FactType]int
	AvgImportance  float64
	TopAccessed    []types.Fact
	LatestTimestamp time.Time
}

// GetStats computes the stats surface, including top_accessed - a facet
// supplemented from the original prototype's access-count tracking
// (SPEC_FULL.md §12).
func (s *Store) GetStats() (Stats, error) {
	counts, total, err := s.backend.FactStats()
	if err != nil {
		return Stats{}, err
	}
	top, err := s.backend.TopAccessedFacts(10)
	if err != nil {
		return Stats{}, err
	}

	var latest time.Time
	var importanceSum float64
	all, err := s.allFactsForAverages()
	if err == nil {
		for _, f := range all {
			importanceSum += f.Importance
			if f.Timestamp.After(latest) {
				latest = f.Timestamp
			}
		}
	}

	avg := 0.0
	if total > 0 {
		avg = importanceSum / float64(total)
	}

	return Stats{
		Total:           total,
		PerTypeCounts:   counts,
		AvgImportance:   avg,
		TopAccessed:     top,
		LatestTimestamp: latest,
	}, nil
}

// allFactsForAverages gathers every fact across types to compute
// avg_importance and latest_ts without a dedicated backend aggregate query.
func (s *Store) allFactsForAverages() ([]types.Fact, error) {
	var all []types.Fact
	for _, t := range types.AllFactTypes {
		fs, err := s.backend.FactsByType(t)
		if err != nil {
			return nil, err
		}
		all = append(all, fs...)
	}
	return all, nil
}
