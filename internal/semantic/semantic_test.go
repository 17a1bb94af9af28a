package semantic

import (
	"testing"
	"time"

	"assistantcore/internal/embedding"
)

type fakeSemanticBackend struct {
	rows map[string]SemanticRow
}

func newFakeSemanticBackend() *fakeSemanticBackend {
	return &fakeSemanticBackend{rows: map[string]SemanticRow{}}
}

func (f *fakeSemanticBackend) UpsertSemanticEntry(id, content, contentHash string, emb []byte, importance float64, now time.Time) (bool, error) {
	for _, r := range f.rows {
		if r.ContentHash == contentHash {
			r.AccessCount++
			r.LastAccess = now
			f.rows[r.ID] = r
			return false, nil
		}
	}
	f.rows[id] = SemanticRow{ID: id, Content: content, ContentHash: contentHash, Embedding: emb, Importance: importance, CreatedAt: now, LastAccess: now}
	return true, nil
}

func (f *fakeSemanticBackend) AllSemanticEntries() ([]SemanticRow, error) {
	var out []SemanticRow
	for _, r := range f.rows {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeSemanticBackend) DeleteSemanticEntries(ids []string) error {
	for _, id := range ids {
		delete(f.rows, id)
	}
	return nil
}

func (f *fakeSemanticBackend) BumpSemanticAccess(id string, now time.Time) error {
	r := f.rows[id]
	r.AccessCount++
	r.LastAccess = now
	f.rows[id] = r
	return nil
}

func newTestEngine(t *testing.T) embedding.EmbeddingEngine {
	t.Helper()
	eng, err := embedding.NewEngine(embedding.Config{Dimensions: 32})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

func idSeq() func() string {
	n := 0
	return func() string {
		n++
		if n == 1 {
			return "sem-1"
		}
		return "sem-2"
	}
}

// TestStoreText_DedupeWithReinforcement exercises the Open Question
// decision: a second store of the same normalized content reinforces the
// existing row instead of inserting a new one.
func TestStoreText_DedupeWithReinforcement(t *testing.T) {
	backend := newFakeSemanticBackend()
	s := New(backend, newTestEngine(t), idSeq())

	inserted, err := s.StoreText("The user prefers dark mode", 0.6)
	if err != nil {
		t.Fatalf("StoreText: %v", err)
	}
	if !inserted {
		t.Errorf("first store should insert")
	}

	inserted, err = s.StoreText("the user prefers dark mode", 0.6)
	if err != nil {
		t.Fatalf("StoreText (dup): %v", err)
	}
	if inserted {
		t.Errorf("duplicate store should reinforce, not insert")
	}
	if len(backend.rows) != 1 {
		t.Errorf("rows = %d, want 1", len(backend.rows))
	}
}

func TestRetrieve_RanksBySimilarity(t *testing.T) {
	backend := newFakeSemanticBackend()
	s := New(backend, newTestEngine(t), idSeq())

	if _, err := s.StoreText("the user loves hiking in the mountains", 0.5); err != nil {
		t.Fatalf("StoreText: %v", err)
	}
	if _, err := s.StoreText("unrelated completely different topic entirely", 0.5); err != nil {
		t.Fatalf("StoreText: %v", err)
	}

	results, err := s.Retrieve("hiking mountains", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected results")
	}
	if results[0].Content != "the user loves hiking in the mountains" {
		t.Errorf("top result = %q, want the hiking entry", results[0].Content)
	}
}

func TestPrune_RemovesOnlyStaleUnimportantEntries(t *testing.T) {
	backend := newFakeSemanticBackend()
	old := time.Now().Add(-30 * 24 * time.Hour)
	backend.rows["a"] = SemanticRow{ID: "a", Content: "stale", Importance: 0.1, AccessCount: 0, CreatedAt: old, LastAccess: old}
	backend.rows["b"] = SemanticRow{ID: "b", Content: "important", Importance: 0.9, AccessCount: 0, CreatedAt: old, LastAccess: old}

	s := New(backend, newTestEngine(t), idSeq())
	n, err := s.Prune(time.Now().Add(-24*time.Hour), 0.5, 1)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	if _, ok := backend.rows["a"]; ok {
		t.Errorf("stale entry should have been pruned")
	}
	if _, ok := backend.rows["b"]; !ok {
		t.Errorf("important entry should survive")
	}
}
