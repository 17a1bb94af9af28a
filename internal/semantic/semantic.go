// Package semantic implements the Semantic Store (Module D): an opaque,
// approximate-similarity memory keyed on raw text. Storage is brute-force
// cosine similarity over embeddings from internal/embedding - there is no
// ANN index, since the sqlite-vec extension this was originally modeled on
// requires a cgo build tag this module does not carry (see DESIGN.md).
package semantic

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"assistantcore/internal/embedding"
	"assistantcore/internal/logging"
)

// Record is one stored semantic memory.
type Record struct {
	ID          string
	Content     string
	ContentHash string
	Embedding   []float64
	Importance  float64
	AccessCount int
	CreatedAt   time.Time
	LastAccess  time.Time
}

// Backend is the minimal persistence surface Store needs; internal/store.Store
// satisfies it via the methods in semantic.go of that package - kept
// as an interface here so this package doesn't import database/sql directly.
type Backend interface {
	UpsertSemanticEntry(id, content, contentHash string, embedding []byte, importance float64, now time.Time) (inserted bool, err error)
	AllSemanticEntries() ([]SemanticRow, error)
	DeleteSemanticEntries(ids []string) error
	BumpSemanticAccess(id string, now time.Time) error
}

// SemanticRow is the wire shape a Backend returns for AllSemanticEntries.
type SemanticRow struct {
	ID          string
	Content     string
	ContentHash string
	Embedding   []byte
	Importance  float64
	AccessCount int
	CreatedAt   time.Time
	LastAccess  time.Time
}

// Store is the Semantic Store.
type Store struct {
	backend Backend
	engine  embedding.EmbeddingEngine
	idSeq   func() string
}

// New constructs a Semantic Store over backend using engine to embed text.
func New(backend Backend, engine embedding.EmbeddingEngine, idSeq func() string) *Store {
	return &Store{backend: backend, engine: engine, idSeq: idSeq}
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(int64(f*1e9)))
	}
	return buf
}

func decodeVector(b []byte) []float64 {
	n := len(b) / 8
	v := make([]float64, n)
	for i := 0; i < n; i++ {
		raw := binary.LittleEndian.Uint64(b[i*8:])
		v[i] = float64(int64(raw)) / 1e9
	}
	return v
}

// StoreText embeds and persists text with the given importance. Duplicate
// stores (same normalized content hash) bump access_count and timestamp
// instead of inserting a new row - the opposite reinforcement model from
// the Facts Store, per spec.md §4.D and the Open Question decision in
// DESIGN.md.
func (s *Store) StoreText(text string, importance float64) (stored bool, err error) {
	if strings.TrimSpace(text) == "" {
		return false, fmt.Errorf("semantic: empty text")
	}
	vec, err := s.engine.Embed(text)
	if err != nil {
		return false, fmt.Errorf("semantic: embed: %w", err)
	}
	hash := contentHash(text)
	now := time.Now()

	inserted, err := s.backend.UpsertSemanticEntry(s.idSeq(), text, hash, encodeVector(vec), importance, now)
	if err != nil {
		return false, err
	}
	if inserted {
		logging.Get(logging.CategorySemantic).Debug("stored new semantic entry hash=%s", hash[:12])
	} else {
		logging.Get(logging.CategorySemantic).Debug("reinforced semantic entry hash=%s", hash[:12])
	}
	return inserted, nil
}

// Result is one ranked match from Retrieve.
type Result struct {
	Content string
	Score   float64
}

// recencyBoost implements the curve from spec.md §4.D.
func recencyBoost(age time.Duration) float64 {
	switch {
	case age <= time.Hour:
		return 1.5
	case age <= 24*time.Hour:
		return 1.3
	case age <= 7*24*time.Hour:
		return 1.1
	default:
		return 1.0
	}
}

// Retrieve returns up to k texts ranked by similarity × importance ×
// recency_boost, highest first.
func (s *Store) Retrieve(query string, k int) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	qVec, err := s.engine.Embed(query)
	if err != nil {
		return nil, fmt.Errorf("semantic: embed query: %w", err)
	}

	rows, err := s.backend.AllSemanticEntries()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	type hit struct {
		res Result
		id  string
	}
	hits := make([]hit, 0, len(rows))
	for _, r := range rows {
		vec := decodeVector(r.Embedding)
		sim := embedding.CosineSimilarity(qVec, vec)
		score := sim * r.Importance * recencyBoost(now.Sub(r.LastAccess))
		hits = append(hits, hit{res: Result{Content: r.Content, Score: score}, id: r.ID})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].res.Score > hits[j].res.Score })
	if len(hits) > k {
		hits = hits[:k]
	}

	scored := make([]Result, 0, len(hits))
	for _, h := range hits {
		scored = append(scored, h.res)
		_ = s.backend.BumpSemanticAccess(h.id, now)
	}
	return scored, nil
}

// GetContext renders the top-k matches into a single bounded text block.
func (s *Store) GetContext(query string, k int) (string, error) {
	results, err := s.Retrieve(query, k)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString("--- SEMANTIC CONTEXT ---\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- %s\n", r.Content)
	}
	b.WriteString("--- END SEMANTIC CONTEXT ---\n")
	return b.String(), nil
}

// Prune deletes records that are simultaneously older than olderThan,
// less important than minImportance, and accessed fewer than
// minAccessCount times.
func (s *Store) Prune(olderThan time.Time, minImportance float64, minAccessCount int) (int, error) {
	rows, err := s.backend.AllSemanticEntries()
	if err != nil {
		return 0, err
	}
	var toDelete []string
	for _, r := range rows {
		if r.CreatedAt.Before(olderThan) && r.Importance < minImportance && r.AccessCount < minAccessCount {
			toDelete = append(toDelete, r.ID)
		}
	}
	if len(toDelete) == 0 {
		return 0, nil
	}
	if err := s.backend.DeleteSemanticEntries(toDelete); err != nil {
		return 0, err
	}
	logging.Get(logging.CategorySemantic).Info("pruned %d semantic entries", len(toDelete))
	return len(toDelete), nil
}
