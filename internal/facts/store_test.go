package facts

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"testing"
	"time"

	"assistantcore/internal/types"
)

type fakeFactsBackend struct {
	facts []types.Fact
}

func (f *fakeFactsBackend) InsertFact(fact types.Fact) error {
	f.facts = append(f.facts, fact)
	return nil
}

func (f *fakeFactsBackend) FactsByType(t types.FactType) ([]types.Fact, error) {
	var out []types.Fact
	for _, fa := range f.facts {
		if fa.Type == t {
			out = append(out, fa)
		}
	}
	return out, nil
}

func (f *fakeFactsBackend) SearchFacts(query string, t types.FactType, limit int) ([]types.Fact, error) {
	var out []types.Fact
	for _, fa := range f.facts {
		if t != "" && fa.Type != t {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(fa.Content), strings.ToLower(query)) &&
			!strings.Contains(strings.ToLower(fa.Context), strings.ToLower(query)) {
			continue
		}
		out = append(out, fa)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeFactsBackend) TopAccessedFacts(n int) ([]types.Fact, error) {
	out := append([]types.Fact{}, f.facts...)
	sort.Slice(out, func(i, j int) bool { return out[i].AccessCount > out[j].AccessCount })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (f *fakeFactsBackend) FactStats() (map[types.FactType]int, int, error) {
	counts := map[types.FactType]int{}
	for _, fa := range f.facts {
		counts[fa.Type]++
	}
	return counts, len(f.facts), nil
}

func (f *fakeFactsBackend) BumpFactAccess(id string) error {
	for i := range f.facts {
		if f.facts[i].ID == id {
			f.facts[i].AccessCount++
			f.facts[i].LastAccess = time.Now()
		}
	}
	return nil
}

func idGen() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

// TestStoreCandidates_AppendAsReinforcement exercises the Open Question
// decision: duplicate candidates (same fingerprint) are stored again as
// new rows, never merged.
func TestStoreCandidates_AppendAsReinforcement(t *testing.T) {
	backend := &fakeFactsBackend{}
	s := New(backend, idGen(), func() time.Time { return time.Unix(0, 0) })

	cands := []Candidate{
		{Type: types.FactNote, Content: "remember the meeting", Fingerprint: "fp1", Importance: 0.7},
		{Type: types.FactNote, Content: "remember the meeting", Fingerprint: "fp1", Importance: 0.7},
	}
	n, err := s.StoreCandidates(cands, "ep-1", "sess-1")
	if err != nil {
		t.Fatalf("StoreCandidates: %v", err)
	}
	if n != 2 {
		t.Errorf("stored = %d, want 2 (reinforcement keeps both rows)", n)
	}
	if len(backend.facts) != 2 {
		t.Errorf("backend has %d facts, want 2", len(backend.facts))
	}
}

// flakyFactsBackend fails InsertFact for a configured set of fingerprints,
// used to exercise the ExtractionError "skip and continue" contract.
type flakyFactsBackend struct {
	fakeFactsBackend
	failFingerprints map[string]bool
}

func (f *flakyFactsBackend) InsertFact(fact types.Fact) error {
	if f.failFingerprints[fact.Fingerprint] {
		return fmt.Errorf("simulated insert failure for %s", fact.Fingerprint)
	}
	return f.fakeFactsBackend.InsertFact(fact)
}

// TestStoreCandidates_SkipsFailedRowsAndContinues exercises spec.md §4.C/§7:
// a single row's insert failure is logged and skipped, the rest of the
// batch still proceeds, and the count returned is the number actually
// persisted - never an abort of the whole batch.
func TestStoreCandidates_SkipsFailedRowsAndContinues(t *testing.T) {
	backend := &flakyFactsBackend{failFingerprints: map[string]bool{"fp-bad": true}}
	s := New(backend, idGen(), func() time.Time { return time.Unix(0, 0) })

	cands := []Candidate{
		{Type: types.FactNote, Content: "good one", Fingerprint: "fp-good-1", Importance: 0.5},
		{Type: types.FactNote, Content: "bad one", Fingerprint: "fp-bad", Importance: 0.5},
		{Type: types.FactNote, Content: "another good one", Fingerprint: "fp-good-2", Importance: 0.5},
	}
	n, err := s.StoreCandidates(cands, "ep-1", "sess-1")
	if err != nil {
		t.Fatalf("StoreCandidates: %v", err)
	}
	if n != 2 {
		t.Errorf("stored = %d, want 2 (one row's failure must not abort the batch)", n)
	}
	if len(backend.facts) != 2 {
		t.Errorf("backend has %d facts, want 2", len(backend.facts))
	}
}

func TestSearch_FiltersByMinImportance(t *testing.T) {
	backend := &fakeFactsBackend{facts: []types.Fact{
		{ID: "f1", Type: types.FactNote, Content: "low importance note", Importance: 0.2},
		{ID: "f2", Type: types.FactNote, Content: "high importance note", Importance: 0.9},
	}}
	s := New(backend, idGen(), nil)

	hits, err := s.Search("note", "", 10, 0.5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "f2" {
		t.Errorf("Search = %+v, want only f2", hits)
	}
}

func TestGetStats_ComputesAverageAndLatest(t *testing.T) {
	backend := &fakeFactsBackend{facts: []types.Fact{
		{ID: "f1", Type: types.FactNote, Importance: 0.4, Timestamp: time.Unix(100, 0)},
		{ID: "f2", Type: types.FactTask, Importance: 0.8, Timestamp: time.Unix(200, 0)},
	}}
	s := New(backend, idGen(), nil)

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
	if math.Abs(stats.AvgImportance-0.6) > 1e-9 {
		t.Errorf("AvgImportance = %v, want 0.6", stats.AvgImportance)
	}
	if !stats.LatestTimestamp.Equal(time.Unix(200, 0)) {
		t.Errorf("LatestTimestamp = %v, want %v", stats.LatestTimestamp, time.Unix(200, 0))
	}
}
