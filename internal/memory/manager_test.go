package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"assistantcore/internal/embedding"
	"assistantcore/internal/facts"
	"assistantcore/internal/identity"
	"assistantcore/internal/semantic"
	"assistantcore/internal/summary"
	"assistantcore/internal/types"
)

// fakeBackend implements memory.Backend entirely in memory.
type fakeBackend struct {
	mu       sync.Mutex
	episodes []types.Episode
	summaries []types.Summary
}

func (f *fakeBackend) InsertEpisode(e types.Episode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.episodes = append(f.episodes, e)
	return nil
}

func (f *fakeBackend) LastExchangeNumber(sessionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := -1
	for _, e := range f.episodes {
		if e.SessionID == sessionID && e.ExchangeNumber > max {
			max = e.ExchangeNumber
		}
	}
	return max, nil
}

func (f *fakeBackend) BufferedEpisodes(sessionID string) ([]types.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Episode
	for _, e := range f.episodes {
		if e.SessionID == sessionID && e.InBuffer {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeBackend) RecentEpisodes(sessionID string, n int) ([]types.Episode, error) {
	eps, _ := f.BufferedEpisodes(sessionID)
	if len(eps) > n {
		eps = eps[len(eps)-n:]
	}
	return eps, nil
}

func (f *fakeBackend) UnsummarizedEpisodes(sessionID string) ([]types.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Episode
	for _, e := range f.episodes {
		if e.SessionID == sessionID && e.InBuffer {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeBackend) MarkEpisodesSummarized(ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := map[string]bool{}
	for _, id := range ids {
		set[id] = true
	}
	for i := range f.episodes {
		if set[f.episodes[i].ID] {
			f.episodes[i].InBuffer = false
		}
	}
	return nil
}

func (f *fakeBackend) MarkFactsExtracted(episodeID string) error { return nil }

func (f *fakeBackend) InsertSummary(s types.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, s)
	return nil
}

func (f *fakeBackend) RollingSummaries(sessionID string) ([]types.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Summary
	for _, s := range f.summaries {
		if s.SessionID == sessionID {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeFactsBackend struct {
	mu    sync.Mutex
	facts []types.Fact
}

func (f *fakeFactsBackend) InsertFact(fact types.Fact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	return f.facts, nil
}

func (f *fakeFactsBackend) TopAccessedFacts(n int) ([]types.Fact, error) { return f.facts, nil }

func (f *fakeFactsBackend) FactStats() (map[types.FactType]int, int, error) {
	counts := map[types.FactType]int{}
	for _, fa := range f.facts {
		counts[fa.Type]++
	}
	return counts, len(f.facts), nil
}

func (f *fakeFactsBackend) BumpFactAccess(id string) error { return nil }

type fakeSemanticBackend struct {
	mu   sync.Mutex
	rows map[string]semantic.SemanticRow
}

func newFakeSemanticBackend() *fakeSemanticBackend {
	return &fakeSemanticBackend{rows: map[string]semantic.SemanticRow{}}
}

func (f *fakeSemanticBackend) UpsertSemanticEntry(id, content, contentHash string, emb []byte, importance float64, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ContentHash == contentHash {
			r.AccessCount++
			r.LastAccess = now
			f.rows[r.ID] = r
			return false, nil
		}
	}
	f.rows[id] = semantic.SemanticRow{ID: id, Content: content, ContentHash: contentHash, Embedding: emb, Importance: importance, CreatedAt: now, LastAccess: now}
	return true, nil
}

func (f *fakeSemanticBackend) AllSemanticEntries() ([]semantic.SemanticRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []semantic.SemanticRow
	for _, r := range f.rows {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeSemanticBackend) DeleteSemanticEntries(ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.rows, id)
	}
	return nil
}

func (f *fakeSemanticBackend) BumpSemanticAccess(id string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rows[id]
	r.AccessCount++
	r.LastAccess = now
	f.rows[id] = r
	return nil
}

type fakeSummaryBackend struct {
	mu       sync.Mutex
	inserted []types.ConversationSummary
}

func (f *fakeSummaryBackend) InsertConversationSummary(cs types.ConversationSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, cs)
	return nil
}

func (f *fakeSummaryBackend) LatestConversationSummary() (types.ConversationSummary, error) {
	return types.ConversationSummary{}, fmt.Errorf("no rows")
}

func idCounter() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestManager(t *testing.T) (*Manager, *fakeBackend) {
	t.Helper()

	backend := &fakeBackend{}

	factsStore := facts.New(&fakeFactsBackend{}, idCounter(), func() time.Time { return time.Unix(0, 0) })

	eng, err := embedding.NewEngine(embedding.Config{Dimensions: 16})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	semStore := semantic.New(newFakeSemanticBackend(), eng, idCounter())

	sumBuf := summary.New(&fakeSummaryBackend{}, idCounter(), func() time.Time { return time.Unix(0, 0) }, 5)
	sumBuf.StartSession("sess-1")

	idStore, err := identity.New(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("identity.New: %v", err)
	}
	t.Cleanup(func() { _ = idStore.Close() })

	mgr := New("sess-1", Config{
		Backend:          backend,
		Facts:            factsStore,
		Semantic:         semStore,
		Identity:         idStore,
		Summary:          sumBuf,
		IDSeq:            idCounter(),
		Now:              func() time.Time { return time.Unix(0, 0) },
		BufferTruncateAt: 35,
	})
	return mgr, backend
}

func TestRecordExchange_AssignsSequentialExchangeNumbers(t *testing.T) {
	mgr, backend := newTestManager(t)

	id1, err := mgr.RecordExchange("hello", "hi there")
	if err != nil {
		t.Fatalf("RecordExchange: %v", err)
	}
	id2, err := mgr.RecordExchange("what's up", "not much")
	if err != nil {
		t.Fatalf("RecordExchange: %v", err)
	}
	if id1 == id2 {
		t.Errorf("expected distinct episode ids, got %q twice", id1)
	}

	eps, err := backend.BufferedEpisodes("sess-1")
	if err != nil {
		t.Fatalf("BufferedEpisodes: %v", err)
	}
	if len(eps) != 2 {
		t.Fatalf("len(eps) = %d, want 2", len(eps))
	}
	if eps[0].ExchangeNumber != 0 || eps[1].ExchangeNumber != 1 {
		t.Errorf("exchange numbers = %d, %d, want 0, 1", eps[0].ExchangeNumber, eps[1].ExchangeNumber)
	}
}

func TestRecall_RoutesToFactsOrSemantic(t *testing.T) {
	mgr, _ := newTestManager(t)

	if _, err := mgr.RecordExchange("I need to call the dentist tomorrow", "Noted, I'll remind you."); err != nil {
		t.Fatalf("RecordExchange: %v", err)
	}

	result, err := mgr.Recall("what do I need to call about", 5)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if result.Source != "facts" && result.Source != "semantic" {
		t.Errorf("Recall source = %q, want facts or semantic", result.Source)
	}
}

func TestContextForPrompt_EmptyBufferFallsBackToSentinel(t *testing.T) {
	mgr, _ := newTestManager(t)

	ctx, err := mgr.ContextForPrompt(ContextOptions{})
	if err != nil {
		t.Fatalf("ContextForPrompt: %v", err)
	}
	if ctx != noContextSentinel {
		t.Errorf("ContextForPrompt (empty buffer) = %q, want %q", ctx, noContextSentinel)
	}
}

func TestContextForPrompt_IncludesRecentExchanges(t *testing.T) {
	mgr, _ := newTestManager(t)

	if _, err := mgr.RecordExchange("hello there", "hi, how can I help"); err != nil {
		t.Fatalf("RecordExchange: %v", err)
	}

	ctx, err := mgr.ContextForPrompt(ContextOptions{MaxTokens: 2000})
	if err != nil {
		t.Fatalf("ContextForPrompt: %v", err)
	}
	if ctx == noContextSentinel {
		t.Errorf("ContextForPrompt should include the recorded exchange, got sentinel")
	}
}

func TestEvictToCap_FoldsEvictedEpisodesIntoSummary(t *testing.T) {
	backend := &fakeBackend{}
	factsStore := facts.New(&fakeFactsBackend{}, idCounter(), func() time.Time { return time.Unix(0, 0) })
	eng, err := embedding.NewEngine(embedding.Config{Dimensions: 16})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	semStore := semantic.New(newFakeSemanticBackend(), eng, idCounter())
	sumBuf := summary.New(&fakeSummaryBackend{}, idCounter(), func() time.Time { return time.Unix(0, 0) }, 5)
	sumBuf.StartSession("sess-1")
	idStore, err := identity.New(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("identity.New: %v", err)
	}
	t.Cleanup(func() { _ = idStore.Close() })

	mgr := New("sess-1", Config{
		Backend:          backend,
		Facts:            factsStore,
		Semantic:         semStore,
		Identity:         idStore,
		Summary:          sumBuf,
		IDSeq:            idCounter(),
		Now:              func() time.Time { return time.Unix(0, 0) },
		BufferSize:       2,
		BufferTruncateAt: 35,
	})

	for i := 0; i < 4; i++ {
		if _, err := mgr.RecordExchange(fmt.Sprintf("message %d", i), "ack"); err != nil {
			t.Fatalf("RecordExchange %d: %v", i, err)
		}
	}

	if len(mgr.buffer) > 2 {
		t.Errorf("in-memory buffer len = %d, want <= 2 (BufferSize cap enforced)", len(mgr.buffer))
	}
	if len(backend.summaries) == 0 {
		t.Errorf("expected at least one eviction summary to be persisted")
	}

	ctx, err := mgr.ContextForPrompt(ContextOptions{MaxTokens: 2000})
	if err != nil {
		t.Fatalf("ContextForPrompt: %v", err)
	}
	wantMarker := "[Earlier conversation: 2 exchanges compressed into semantic memory]"
	if !strings.Contains(ctx, wantMarker) {
		t.Errorf("ContextForPrompt = %q, want it to contain %q (evicted exchanges not in the in-memory buffer must still surface in the marker)", ctx, wantMarker)
	}
}

func TestStartStopBackgroundWorker_NoLeakAndStopsCleanly(t *testing.T) {
	mgr, _ := newTestManager(t)

	mgr.StartBackgroundWorker(context.Background(), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if err := mgr.StopBackgroundWorker(); err != nil {
		t.Fatalf("StopBackgroundWorker: %v", err)
	}
	// Calling Stop again should be a safe no-op.
	if err := mgr.StopBackgroundWorker(); err != nil {
		t.Fatalf("StopBackgroundWorker (2nd): %v", err)
	}
}

func TestOnSessionEnd_FlushesSummaryAndUpdatesIdentity(t *testing.T) {
	mgr, _ := newTestManager(t)

	if _, err := mgr.RecordExchange("hello", "hi"); err != nil {
		t.Fatalf("RecordExchange: %v", err)
	}
	if err := mgr.OnSessionEnd(); err != nil {
		t.Fatalf("OnSessionEnd: %v", err)
	}
}
