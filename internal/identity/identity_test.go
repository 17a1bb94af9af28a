package identity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNew_CreatesDefaultDocuments(t *testing.T) {
	s := newTestStore(t)

	doc, err := s.Identity()
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if doc.Metadata["version"] != "1.0.0" {
		t.Errorf("Identity metadata version = %q, want 1.0.0", doc.Metadata["version"])
	}
	if !strings.Contains(doc.Body, "# Identity") {
		t.Errorf("Identity body missing heading: %q", doc.Body)
	}
	if doc.Metadata["awakening_count"] != "1" {
		t.Errorf("awakening_count after first process start = %q, want 1", doc.Metadata["awakening_count"])
	}

	if _, err := s.UserProfile(); err != nil {
		t.Errorf("UserProfile: %v", err)
	}
	if _, err := s.Preferences(); err != nil {
		t.Errorf("Preferences: %v", err)
	}
}

func TestParseRenderDocument_RoundTrips(t *testing.T) {
	raw := "---\nfoo: bar\nbaz: qux\n---\n# Body\n\nsome text\n"
	doc, err := parseDocument(raw)
	if err != nil {
		t.Fatalf("parseDocument: %v", err)
	}
	if doc.Metadata["foo"] != "bar" || doc.Metadata["baz"] != "qux" {
		t.Errorf("Metadata = %+v, want foo=bar baz=qux", doc.Metadata)
	}
	if doc.Body != "# Body\n\nsome text\n" {
		t.Errorf("Body = %q", doc.Body)
	}

	rendered := renderDocument(doc)
	doc2, err := parseDocument(rendered)
	if err != nil {
		t.Fatalf("parseDocument(rendered): %v", err)
	}
	if doc2.Metadata["foo"] != "bar" || doc2.Body != doc.Body {
		t.Errorf("round trip mismatch: %+v", doc2)
	}
}

func TestParseDocument_MissingFrontmatterIsError(t *testing.T) {
	if _, err := parseDocument("# just a body\n"); err == nil {
		t.Errorf("expected error for missing frontmatter")
	}
}

func TestUpdateMinimal_OnlyTouchesLastUpdated(t *testing.T) {
	s := newTestStore(t)
	before, err := s.Identity()
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}

	if err := s.UpdateMinimal(identityFile); err != nil {
		t.Fatalf("UpdateMinimal: %v", err)
	}

	after, err := s.Identity()
	if err != nil {
		t.Fatalf("Identity (after): %v", err)
	}
	if after.Body != before.Body {
		t.Errorf("UpdateMinimal changed body: %q vs %q", after.Body, before.Body)
	}
	if after.Metadata["last_updated"] == before.Metadata["last_updated"] {
		t.Errorf("UpdateMinimal did not refresh last_updated")
	}
	if after.Metadata["awakening_count"] != before.Metadata["awakening_count"] {
		t.Errorf("UpdateMinimal changed awakening_count: %q vs %q", after.Metadata["awakening_count"], before.Metadata["awakening_count"])
	}
}

func TestNew_IncrementsAwakeningCountOncePerProcessStart(t *testing.T) {
	dir := t.TempDir()

	s1, err := New(dir, 3)
	if err != nil {
		t.Fatalf("New (first start): %v", err)
	}
	first, err := s1.Identity()
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if first.Metadata["awakening_count"] != "1" {
		t.Errorf("awakening_count after first start = %q, want 1", first.Metadata["awakening_count"])
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := New(dir, 3)
	if err != nil {
		t.Fatalf("New (second start): %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })
	second, err := s2.Identity()
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if second.Metadata["awakening_count"] != "2" {
		t.Errorf("awakening_count after second start = %q, want 2", second.Metadata["awakening_count"])
	}
}

func TestUpdateFull_MergesMetadataAndAppendsBody(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpdateFull(identityFile, map[string]string{"coherence_score": "0.9"}, "[pattern] new behavior observed"); err != nil {
		t.Fatalf("UpdateFull: %v", err)
	}

	doc, err := s.Identity()
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if doc.Metadata["coherence_score"] != "0.9" {
		t.Errorf("coherence_score = %q, want 0.9", doc.Metadata["coherence_score"])
	}
	if !strings.Contains(doc.Body, "[pattern] new behavior observed") {
		t.Errorf("body missing appended content: %q", doc.Body)
	}
}

func TestSaveConversationMemory_WritesAndRotatesArchive(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		if err := s.SaveConversationMemory("transcript"); err != nil {
			t.Fatalf("SaveConversationMemory: %v", err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(s.workspace, memoriesDir))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) > s.archiveMax {
		t.Errorf("archive has %d entries, want at most %d", len(entries), s.archiveMax)
	}

	content, ok := s.PreviousConversation()
	if !ok {
		t.Fatalf("PreviousConversation: expected a saved transcript")
	}
	if content != "transcript" {
		t.Errorf("PreviousConversation = %q, want %q", content, "transcript")
	}
}

func TestPreviousConversation_FalseWhenAbsent(t *testing.T) {
	s := newTestStore(t)
	if _, ok := s.PreviousConversation(); ok {
		t.Errorf("expected no previous conversation in a fresh workspace")
	}
}

func TestRecordSessionActive_IncrementsSessionNumber(t *testing.T) {
	s := newTestStore(t)

	if err := s.RecordSessionActive(); err != nil {
		t.Fatalf("RecordSessionActive: %v", err)
	}
	if err := s.RecordSessionActive(); err != nil {
		t.Fatalf("RecordSessionActive (2nd): %v", err)
	}

	doc, err := s.UserProfile()
	if err != nil {
		t.Fatalf("UserProfile: %v", err)
	}
	if !strings.Contains(doc.Body, "Session 1 active") {
		t.Errorf("body missing Session 1 marker: %q", doc.Body)
	}
	if !strings.Contains(doc.Body, "Session 2 active") {
		t.Errorf("body missing Session 2 marker: %q", doc.Body)
	}
}

func TestCoherence_AveragesFourInputs(t *testing.T) {
	got := Coherence(CoherenceInputs{
		MemoryConsistency:    1.0,
		ResponseQuality:      0.5,
		ContextMaintenance:   0.5,
		PersonalityStability: 0.0,
	})
	if got != 0.5 {
		t.Errorf("Coherence = %v, want 0.5", got)
	}
}

func TestCoherenceFromContent_CapsAtOne(t *testing.T) {
	content := strings.Repeat("## Section\n[trait] x: 0.5\n[pattern] y\n", 50)
	if got := CoherenceFromContent(content); got > 1.0 {
		t.Errorf("CoherenceFromContent = %v, want <= 1.0", got)
	}
}
