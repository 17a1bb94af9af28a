// Package identity implements the Identity Store (Module G): three
// canonical frontmatter+body documents (identity, user profile,
// preferences), a rotating conversation-memory archive, and an
// fsnotify-backed cache so external edits are picked up without a
// restart.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"assistantcore/internal/logging"
)

const (
	identityFile    = "IDENTITY.md"
	userProfileFile = "USER_PROFILE.md"
	preferencesFile = "PREFERENCES.md"
	conversationMem = "previous_conversation.md"
	memoriesDir     = "conversation_memories"
)

// Document is a parsed frontmatter+body markdown document.
type Document struct {
	Metadata map[string]string
	Body     string
	Raw      string
}

// Store manages the three canonical documents plus the conversation-memory
// archive under workspacePath.
type Store struct {
	workspace  string
	archiveMax int

	mu    sync.RWMutex
	cache map[string]Document

	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// New opens (creating if absent) the identity workspace and starts a
// file-watcher that invalidates the in-memory cache on external edits.
func New(workspacePath string, archiveMax int) (*Store, error) {
	if archiveMax <= 0 {
		archiveMax = 100
	}
	if err := os.MkdirAll(workspacePath, 0755); err != nil {
		return nil, fmt.Errorf("create identity workspace: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(workspacePath, memoriesDir), 0755); err != nil {
		return nil, fmt.Errorf("create conversation memories dir: %w", err)
	}

	s := &Store{
		workspace:  workspacePath,
		archiveMax: archiveMax,
		cache:      map[string]Document{},
		stop:       make(chan struct{}),
	}

	if err := s.ensureDefaults(); err != nil {
		return nil, err
	}
	if err := s.incrementAwakeningCount(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Get(logging.CategoryIdentity).Warn("fsnotify unavailable, cache invalidation disabled: %v", err)
		return s, nil
	}
	if err := watcher.Add(workspacePath); err != nil {
		logging.Get(logging.CategoryIdentity).Warn("failed to watch %s: %v", workspacePath, err)
	}
	s.watcher = watcher
	go s.watch()
	return s, nil
}

// Close stops the file watcher.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.stop)
	return s.watcher.Close()
}

func (s *Store) watch() {
	for {
		select {
		case <-s.stop:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				s.invalidate(filepath.Base(event.Name))
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryIdentity).Error("identity watcher error: %v", err)
		}
	}
}

func (s *Store) invalidate(name string) {
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
}

func (s *Store) ensureDefaults() error {
	if _, err := os.Stat(filepath.Join(s.workspace, identityFile)); os.IsNotExist(err) {
		if err := s.writeAtomic(identityFile, initialIdentityContent()); err != nil {
			return err
		}
	}
	if _, err := os.Stat(filepath.Join(s.workspace, userProfileFile)); os.IsNotExist(err) {
		if err := s.writeAtomic(userProfileFile, initialUserProfileContent()); err != nil {
			return err
		}
	}
	if _, err := os.Stat(filepath.Join(s.workspace, preferencesFile)); os.IsNotExist(err) {
		if err := s.writeAtomic(preferencesFile, initialPreferencesContent()); err != nil {
			return err
		}
	}
	return nil
}

// incrementAwakeningCount bumps IDENTITY.md's awakening_count frontmatter
// field by one, once per process start, mirroring the original prototype's
// load-time increment (markdown_consciousness.py's on-load counter bump).
func (s *Store) incrementAwakeningCount() error {
	doc, err := s.load(identityFile, initialIdentityContent)
	if err != nil {
		return err
	}
	count := 0
	if v, ok := doc.Metadata["awakening_count"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			count = n
		}
	}
	doc.Metadata["awakening_count"] = strconv.Itoa(count + 1)
	doc.Metadata["last_updated"] = time.Now().UTC().Format(time.RFC3339)
	return s.writeAtomic(identityFile, renderDocument(doc))
}

// writeAtomic writes content to name via a temp file + rename so a reader
// never observes a half-written document.
func (s *Store) writeAtomic(name, content string) error {
	path := filepath.Join(s.workspace, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	s.invalidate(name)
	return nil
}

// Load reads and parses a document, backing up and recreating it from a
// recovery template if it is corrupt (unreadable or unparsable).
func (s *Store) load(name string, recover func() string) (Document, error) {
	s.mu.RLock()
	if d, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return d, nil
	}
	s.mu.RUnlock()

	path := filepath.Join(s.workspace, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := s.writeAtomic(name, recover()); err != nil {
				return Document{}, err
			}
			return s.load(name, recover)
		}
		return Document{}, fmt.Errorf("read %s: %w", name, err)
	}

	doc, err := parseDocument(string(raw))
	if err != nil {
		s.backupCorrupted(name, raw)
		if err := s.writeAtomic(name, recover()); err != nil {
			return Document{}, err
		}
		return s.load(name, recover)
	}

	s.mu.Lock()
	s.cache[name] = doc
	s.mu.Unlock()
	return doc, nil
}

// backupCorrupted copies a corrupt file aside with a timestamp suffix for
// later inspection, mirroring the original prototype's recovery path.
func (s *Store) backupCorrupted(name string, raw []byte) {
	path := filepath.Join(s.workspace, name)
	backup := fmt.Sprintf("%s.corrupted_%d", path, time.Now().Unix())
	if err := os.WriteFile(backup, raw, 0644); err != nil {
		logging.Get(logging.CategoryIdentity).Warn("failed to back up corrupted %s: %v", name, err)
	}
}

// Identity returns the parsed IDENTITY.md document.
func (s *Store) Identity() (Document, error) {
	return s.load(identityFile, initialIdentityContent)
}

// UserProfile returns the parsed USER_PROFILE.md document.
func (s *Store) UserProfile() (Document, error) {
	return s.load(userProfileFile, initialUserProfileContent)
}

// Preferences returns the parsed PREFERENCES.md document.
func (s *Store) Preferences() (Document, error) {
	return s.load(preferencesFile, initialPreferencesContent)
}

// UpdateMinimal rewrites only the last_updated frontmatter field (preserving
// awakening_count, which New already bumped once for this process start),
// leaving the body untouched - the cheap path taken on every session end
// unless a significant change requires UpdateFull.
func (s *Store) UpdateMinimal(name string) error {
	doc, err := s.load(name, func() string { return "" })
	if err != nil {
		return err
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]string{}
	}
	doc.Metadata["last_updated"] = time.Now().UTC().Format(time.RFC3339)
	return s.writeAtomic(name, renderDocument(doc))
}

// UpdateFull replaces metadata and appends body content, used when a
// session produced significant changes worth folding into the document
// (new patterns, a coherence jump, behavioral changes).
func (s *Store) UpdateFull(name string, metadata map[string]string, appendBody string) error {
	doc, err := s.load(name, func() string { return "" })
	if err != nil {
		return err
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]string{}
	}
	for k, v := range metadata {
		doc.Metadata[k] = v
	}
	doc.Metadata["last_updated"] = time.Now().UTC().Format(time.RFC3339)
	if appendBody != "" {
		doc.Body = strings.TrimRight(doc.Body, "\n") + "\n\n" + appendBody + "\n"
	}
	return s.writeAtomic(name, renderDocument(doc))
}

// Coherence computes the advisory coherence score from the four
// sub-measures: memory consistency, response quality, context maintenance,
// personality stability. Each is a stub signal in [0,1]; the score is their
// mean, matching the original prototype's calculate_coherence.
type CoherenceInputs struct {
	MemoryConsistency    float64
	ResponseQuality      float64
	ContextMaintenance   float64
	PersonalityStability float64
}

func Coherence(in CoherenceInputs) float64 {
	return (in.MemoryConsistency + in.ResponseQuality + in.ContextMaintenance + in.PersonalityStability) / 4
}

// CoherenceFromContent estimates coherence from a document's structural
// density (section count + trait/pattern annotation count), for use when no
// live session data is available. New does not call it.
func CoherenceFromContent(content string) float64 {
	sections := strings.Count(content, "##")
	traits := len(traitPattern.FindAllString(content, -1))
	patterns := len(patternPattern.FindAllString(content, -1))
	score := float64(sections)*0.1 + float64(traits)*0.05 + float64(patterns)*0.05 + 0.5
	if score > 1.0 {
		score = 1.0
	}
	return score
}

var (
	traitPattern   = regexp.MustCompile(`\[trait\]\s*\w+:\s*.+`)
	patternPattern = regexp.MustCompile(`\[pattern\]\s*.+`)
)

// SaveConversationMemory writes a timestamped session transcript to the
// archive and to previous_conversation.md, then rotates the archive down
// to archiveMax entries.
func (s *Store) SaveConversationMemory(content string) error {
	ts := time.Now().Format("20060102_150405")
	memPath := filepath.Join(s.workspace, memoriesDir, "session_"+ts+".md")
	if err := os.WriteFile(memPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("write conversation memory: %w", err)
	}
	if err := s.writeAtomic(conversationMem, content); err != nil {
		return err
	}
	return s.rotateConversationMemories()
}

// rotateConversationMemories deletes the oldest archived sessions once the
// archive exceeds archiveMax, keeping the most recent ones.
func (s *Store) rotateConversationMemories() error {
	dir := filepath.Join(s.workspace, memoriesDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read conversation memories: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) <= s.archiveMax {
		return nil
	}
	toRemove := names[:len(names)-s.archiveMax]
	for _, n := range toRemove {
		if err := os.Remove(filepath.Join(dir, n)); err != nil {
			logging.Get(logging.CategoryIdentity).Warn("failed to rotate conversation memory %s: %v", n, err)
		}
	}
	return nil
}

// PreviousConversation reads the last session's saved transcript, or
// returns ("", false) if none exists.
func (s *Store) PreviousConversation() (string, bool) {
	path := filepath.Join(s.workspace, conversationMem)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

var frontmatterKey = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*):\s*(.*)$`)

// parseDocument splits a "---\nkey: value\n---\nbody" file into its
// frontmatter map and body. A missing or malformed frontmatter block is a
// parse error so the caller can treat the file as corrupt.
func parseDocument(raw string) (Document, error) {
	if !strings.HasPrefix(raw, "---\n") {
		return Document{}, fmt.Errorf("missing frontmatter")
	}
	rest := raw[4:]
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		return Document{}, fmt.Errorf("unterminated frontmatter")
	}
	fm := rest[:end]
	body := rest[end+len("\n---\n"):]

	meta := map[string]string{}
	for _, line := range strings.Split(fm, "\n") {
		if line == "" {
			continue
		}
		m := frontmatterKey.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		meta[m[1]] = strings.TrimSpace(m[2])
	}
	return Document{Metadata: meta, Body: body, Raw: raw}, nil
}

func renderDocument(d Document) string {
	keys := make([]string, 0, len(d.Metadata))
	for k := range d.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("---\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %s\n", k, d.Metadata[k])
	}
	sb.WriteString("---\n")
	sb.WriteString(d.Body)
	return sb.String()
}

func initialIdentityContent() string {
	return "---\n" +
		"version: 1.0.0\n" +
		"awakening_count: 0\n" +
		"last_updated: " + time.Now().UTC().Format(time.RFC3339) + "\n" +
		"coherence_score: 0.8\n" +
		"total_episodes: 0\n" +
		"---\n" +
		"# Identity\n\n" +
		"## Traits\n\n" +
		"[trait] proactive_assistance: 0.85\n" +
		"[trait] formality_level: 0.4\n\n" +
		"## Patterns\n\n" +
		"## Preferences\n\n" +
		"## Capabilities\n\n"
}

func initialUserProfileContent() string {
	return "---\n" +
		"last_updated: " + time.Now().UTC().Format(time.RFC3339) + "\n" +
		"---\n" +
		"# User Profile\n\n" +
		"## Session Metadata\n\n" +
		"## Observations\n\n"
}

func initialPreferencesContent() string {
	return "---\n" +
		"last_updated: " + time.Now().UTC().Format(time.RFC3339) + "\n" +
		"---\n" +
		"# Preferences\n\n"
}

// extractSessionNumber parses the highest "Session N active" marker out of
// USER_PROFILE.md so RecordSessionActive can increment it.
func extractSessionNumber(content string) int {
	re := regexp.MustCompile(`Session (\d+) active`)
	matches := re.FindAllStringSubmatch(content, -1)
	max := 0
	for _, m := range matches {
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	return max
}

// RecordSessionActive appends a "Session N active as of <time>" marker to
// USER_PROFILE.md's Session Metadata section without disturbing the rest of
// the document. app.Open does not call it; callers invoke it explicitly.
func (s *Store) RecordSessionActive() error {
	doc, err := s.load(userProfileFile, initialUserProfileContent)
	if err != nil {
		return err
	}
	next := extractSessionNumber(doc.Body) + 1
	marker := fmt.Sprintf("- Session %d active as of %s", next, time.Now().Format("2006-01-02 15:04:05"))

	if idx := strings.Index(doc.Body, "## Session Metadata"); idx >= 0 {
		lineEnd := strings.Index(doc.Body[idx:], "\n")
		if lineEnd >= 0 {
			insertAt := idx + lineEnd + 1
			doc.Body = doc.Body[:insertAt] + marker + "\n" + doc.Body[insertAt:]
		} else {
			doc.Body += "\n" + marker + "\n"
		}
	} else {
		doc.Body += "\n## Session Metadata\n\n" + marker + "\n"
	}

	doc.Metadata["last_updated"] = time.Now().UTC().Format(time.RFC3339)
	return s.writeAtomic(userProfileFile, renderDocument(doc))
}
