package summary

import (
	"strings"
	"testing"
	"time"

	"assistantcore/internal/types"
)

type fakeSummaryBackend struct {
	inserted []types.ConversationSummary
	latest   types.ConversationSummary
	hasLatest bool
}

func (f *fakeSummaryBackend) InsertConversationSummary(cs types.ConversationSummary) error {
	f.inserted = append(f.inserted, cs)
	return nil
}

func (f *fakeSummaryBackend) LatestConversationSummary() (types.ConversationSummary, error) {
	if !f.hasLatest {
		return types.ConversationSummary{}, errNoRows
	}
	return f.latest, nil
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const errNoRows = sentinelErr("no rows")

func idSeq() func() string {
	n := 0
	return func() string {
		n++
		return "summary-id"
	}
}

func TestGenerate_RequiresMinimumExchangesUnlessForced(t *testing.T) {
	b := New(&fakeSummaryBackend{}, idSeq(), func() time.Time { return time.Unix(0, 0) }, 5)
	b.StartSession("sess-1")
	b.TrackExchange("hi", "hello")

	if _, ok := b.Generate(false); ok {
		t.Errorf("Generate(false) should refuse with only 1 exchange")
	}
	if _, ok := b.Generate(true); !ok {
		t.Errorf("Generate(true) should force a summary regardless of exchange count")
	}
}

func TestEndSession_PersistsAndResetsTracking(t *testing.T) {
	backend := &fakeSummaryBackend{}
	b := New(backend, idSeq(), func() time.Time { return time.Unix(0, 0) }, 5)
	b.StartSession("sess-1")
	b.TrackExchange("hi", "hello")
	b.TrackExchange("what's next", "let's continue")
	b.TrackExchange("ok thanks", "you're welcome")

	if err := b.EndSession(false); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if len(backend.inserted) != 1 {
		t.Fatalf("inserted = %d, want 1", len(backend.inserted))
	}
	if b.ExchangeCount() != 0 {
		t.Errorf("ExchangeCount after EndSession = %d, want 0", b.ExchangeCount())
	}
}

// TestNew_ReloadsMostRecentSummary mirrors the FIFO-reload-at-startup
// behavior described in spec.md §4.F.
func TestNew_ReloadsMostRecentSummary(t *testing.T) {
	backend := &fakeSummaryBackend{
		hasLatest: true,
		latest:    types.ConversationSummary{ID: "prior", SessionID: "sess-0"},
	}
	b := New(backend, idSeq(), nil, 5)
	got := b.Summaries()
	if len(got) != 1 || got[0].ID != "prior" {
		t.Errorf("Summaries() = %+v, want reloaded prior summary", got)
	}
}

func TestAdd_EvictsOldestBeyondCapacity(t *testing.T) {
	backend := &fakeSummaryBackend{}
	b := New(backend, idSeq(), func() time.Time { return time.Unix(0, 0) }, 2)

	for i := 0; i < 3; i++ {
		cs := types.ConversationSummary{ID: string(rune('a' + i))}
		if err := b.Add(cs); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	got := b.Summaries()
	if len(got) != 2 {
		t.Fatalf("len(Summaries()) = %d, want 2", len(got))
	}
	if got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("Summaries() = %+v, want [c, b] (most recent first, oldest evicted)", got)
	}
}

func TestRenderContext_EmptyWhenNoSummaries(t *testing.T) {
	b := New(&fakeSummaryBackend{}, idSeq(), nil, 5)
	if r := b.RenderContext(); r != "" {
		t.Errorf("RenderContext() = %q, want empty", r)
	}
}

func TestRenderContext_IncludesMarkersAndContent(t *testing.T) {
	backend := &fakeSummaryBackend{}
	b := New(backend, idSeq(), func() time.Time { return time.Unix(0, 0) }, 5)
	if err := b.Add(types.ConversationSummary{
		ID:              "s1",
		OpeningExchange: types.Episode{UserText: "hello there"},
		KeyPoints:       []string{"discussed project scope"},
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	rendered := b.RenderContext()
	if !strings.Contains(rendered, "BEGIN CONVERSATION MEMORY LAYER 2") {
		t.Errorf("RenderContext missing begin marker: %q", rendered)
	}
	if !strings.Contains(rendered, "hello there") {
		t.Errorf("RenderContext missing opening exchange text: %q", rendered)
	}
}
