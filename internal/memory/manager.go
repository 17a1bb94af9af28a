// Package memory implements the Hierarchical Memory Manager (Module H):
// the orchestrator that drives every other memory component on each
// exchange, enforces pressure-based buffer eviction, and assembles the
// layered context string injected into prompts.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"assistantcore/internal/facts"
	"assistantcore/internal/identity"
	"assistantcore/internal/logging"
	"assistantcore/internal/router"
	"assistantcore/internal/semantic"
	"assistantcore/internal/summary"
	"assistantcore/internal/types"
)

// Backend is the persistence surface the manager drives directly (episode
// and summary persistence; facts/semantic/identity have their own Backend
// interfaces satisfied by the same underlying store).
type Backend interface {
	InsertEpisode(e types.Episode) error
	LastExchangeNumber(sessionID string) (int, error)
	BufferedEpisodes(sessionID string) ([]types.Episode, error)
	RecentEpisodes(sessionID string, n int) ([]types.Episode, error)
	UnsummarizedEpisodes(sessionID string) ([]types.Episode, error)
	MarkEpisodesSummarized(ids []string) error
	MarkFactsExtracted(episodeID string) error
	InsertSummary(s types.Summary) error
	RollingSummaries(sessionID string) ([]types.Summary, error)
}

// PressureSource reports the downstream LLM's context window utilization in
// percent, 0-100. Unavailable degrades to 0 per spec.md §5.
type PressureSource func() float64

// BufferCap is one row of the pressure-based dynamic cap table.
type BufferCap struct {
	MinPressure     float64
	MaxExchanges    int
	SummaryCapTokens int
}

// bufferCapTable is spec.md §5's pressure table, ordered highest pressure
// first so the first matching row wins.
var bufferCapTable = []BufferCap{
	{85, 10, 1000},
	{80, 15, 1500},
	{70, 20, 2000},
	{60, 25, 3000},
	{50, 30, 4000},
	{0, 35, 5000},
}

// capFor returns the buffer cap row matching a pressure percentage.
func capFor(pressure float64) BufferCap {
	for _, c := range bufferCapTable {
		if pressure >= c.MinPressure {
			return c
		}
	}
	return bufferCapTable[len(bufferCapTable)-1]
}

const (
	recentSliceSize = 10
	midSliceMax     = 40
	truncateAt      = 35
)

// Manager is the Hierarchical Memory Manager.
type Manager struct {
	mu sync.Mutex

	backend  Backend
	facts    *facts.Store
	semantic *semantic.Store
	identity *identity.Store
	summary  *summary.Buffer

	idSeq   func() string
	now     func() time.Time
	pressure PressureSource

	sessionID string
	buffer    []types.Episode // in-memory ExchangeBuffer, oldest first
	exchangesSinceSummary int

	bufferSizeLimit int // config buffer_size, 0 = unlimited (no verbatim cap beyond pressure table)
	bufferTruncateAt int

	bgCancel context.CancelFunc
	bgGroup  *errgroup.Group
}

// Config bundles the constructor dependencies.
type Config struct {
	Backend         Backend
	Facts           *facts.Store
	Semantic        *semantic.Store
	Identity        *identity.Store
	Summary         *summary.Buffer
	IDSeq           func() string
	Now             func() time.Time
	Pressure        PressureSource
	BufferSize      int
	BufferTruncateAt int
}

// New constructs a Manager for one session.
func New(sessionID string, cfg Config) *Manager {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	pressure := cfg.Pressure
	if pressure == nil {
		pressure = func() float64 { return 0 }
	}
	truncAt := cfg.BufferTruncateAt
	if truncAt <= 0 {
		truncAt = truncateAt
	}
	return &Manager{
		backend:          cfg.Backend,
		facts:            cfg.Facts,
		semantic:         cfg.Semantic,
		identity:         cfg.Identity,
		summary:          cfg.Summary,
		idSeq:            cfg.IDSeq,
		now:              now,
		pressure:         pressure,
		sessionID:        sessionID,
		bufferSizeLimit:  cfg.BufferSize,
		bufferTruncateAt: truncAt,
	}
}

// LoadBuffer reloads the in-memory ExchangeBuffer from the most recent
// buffered episodes, the startup path for resuming a session.
func (m *Manager) LoadBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	eps, err := m.backend.BufferedEpisodes(m.sessionID)
	if err != nil {
		return err
	}
	m.buffer = eps
	return nil
}

// RecordExchange runs the full 10-step record_exchange algorithm from
// spec.md §4.H and returns the new episode's id.
func (m *Manager) RecordExchange(userText, agentText string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	importance := computeImportance(userText, agentText)
	derivedSummary := deriveSummary(userText, agentText)

	last, err := m.backend.LastExchangeNumber(m.sessionID)
	if err != nil {
		return "", fmt.Errorf("record exchange: %w", err)
	}

	ep := types.Episode{
		ID:             m.idSeq(),
		SessionID:      m.sessionID,
		ExchangeNumber: last + 1,
		CreatedAt:      m.now(),
		UserText:       userText,
		AgentText:      agentText,
		Summary:        derivedSummary,
		Importance:     importance,
		InBuffer:       true,
	}

	if err := m.backend.InsertEpisode(ep); err != nil {
		return "", fmt.Errorf("record exchange: insert episode: %w", err)
	}

	m.evictToCap()
	m.buffer = append(m.buffer, ep)

	m.summary.TrackExchange(userText, agentText)

	candidates := facts.Extract(userText, agentText)
	if _, err := m.facts.StoreCandidates(candidates, ep.ID, m.sessionID); err != nil {
		logging.Get(logging.CategoryMemory).Warn("fact storage failed for episode %s: %v", ep.ID, err)
	} else if len(candidates) > 0 {
		_ = m.backend.MarkFactsExtracted(ep.ID)
	}

	if _, err := m.semantic.StoreText(userText+"\n"+agentText, importance); err != nil {
		logging.Get(logging.CategoryMemory).Warn("semantic store failed for episode %s: %v", ep.ID, err)
	}

	if importance > 0.6 {
		logging.Get(logging.CategoryMemory).Info("identity-relevant exchange detected action=%s episode=%s", detectAction(userText, agentText), ep.ID)
	}

	m.exchangesSinceSummary++
	if m.shouldSummarizeNow() {
		if err := m.summarizeBuffer(); err != nil {
			logging.Get(logging.CategoryMemory).Warn("background summarization failed: %v", err)
		}
		m.exchangesSinceSummary = 0
	}

	return ep.ID, nil
}

// shouldSummarizeNow checks the three ANY-of triggers from spec.md §4.H.
func (m *Manager) shouldSummarizeNow() bool {
	bufLen := len(m.buffer)
	if m.exchangesSinceSummary >= 10 && bufLen > 20 {
		return true
	}
	if m.pressure() >= 75 && bufLen > 15 {
		return true
	}
	if bufLen >= m.bufferTruncateAt {
		return true
	}
	return false
}

// evictToCap enforces the pressure-based buffer cap, folding each evicted
// episode into a buffer-type Summary row before dropping it from the
// in-memory buffer, so eviction never silently discards content. A
// buffer_size of 0 adds no cap beyond the pressure table; it does not make
// the buffer stateless.
func (m *Manager) evictToCap() {
	maxExchanges := capFor(m.pressure()).MaxExchanges
	if m.bufferSizeLimit > 0 && m.bufferSizeLimit < maxExchanges {
		maxExchanges = m.bufferSizeLimit
	}
	for len(m.buffer) >= maxExchanges && maxExchanges > 0 {
		m.evictOldest()
	}
}

func (m *Manager) evictOldest() {
	if len(m.buffer) == 0 {
		return
	}
	evicted := m.buffer[0]
	m.buffer = m.buffer[1:]

	sm := types.Summary{
		ID:               m.idSeq(),
		SessionID:        m.sessionID,
		Type:             types.SummaryBuffer,
		Content:          fmt.Sprintf("[Earlier conversation: 1 exchange compressed into semantic memory] %s", evicted.Summary),
		SourceEpisodeIDs: []string{evicted.ID},
		Importance:       evicted.Importance,
		CreatedAt:        m.now(),
	}
	if err := m.backend.InsertSummary(sm); err != nil {
		logging.Get(logging.CategoryMemory).Warn("failed to persist eviction summary: %v", err)
	}
	_ = m.backend.MarkEpisodesSummarized([]string{evicted.ID})
}

// summarizeBuffer folds every unsummarized episode into one rolling
// Summary row, compacting the "[Earlier conversation: N exchanges
// compressed into semantic memory]" marker consumed by context_for_prompt.
func (m *Manager) summarizeBuffer() error {
	unsummarized, err := m.backend.UnsummarizedEpisodes(m.sessionID)
	if err != nil {
		return err
	}
	if len(unsummarized) < 5 {
		return nil
	}

	ids := make([]string, len(unsummarized))
	var sb strings.Builder
	for i, ep := range unsummarized {
		ids[i] = ep.ID
		sb.WriteString(ep.Summary)
		sb.WriteString(" ")
	}

	sm := types.Summary{
		ID:               m.idSeq(),
		SessionID:        m.sessionID,
		Type:             types.SummaryRolling,
		Content:          fmt.Sprintf("[Earlier conversation: %d exchanges compressed into semantic memory] %s", len(unsummarized), strings.TrimSpace(sb.String())),
		SourceEpisodeIDs: ids,
		Importance:       avgImportance(unsummarized),
		CreatedAt:        m.now(),
	}
	if err := m.backend.InsertSummary(sm); err != nil {
		return err
	}
	return m.backend.MarkEpisodesSummarized(ids)
}

func avgImportance(eps []types.Episode) float64 {
	if len(eps) == 0 {
		return 0
	}
	var sum float64
	for _, e := range eps {
		sum += e.Importance
	}
	return sum / float64(len(eps))
}

// RecallResult is one item returned by Recall.
type RecallResult struct {
	Source   string // "facts" or "semantic"
	FactType types.FactType
	Facts    []types.Fact
	Semantic []semantic.Result
	Decision router.Decision
}

// Recall delegates to the Query Router and enriches results from the
// Semantic Store when the router sends the query there, or when the Facts
// Store search comes back empty.
func (m *Manager) Recall(query string, limit int) (RecallResult, error) {
	decision := router.Route(query)
	out := RecallResult{Source: decision.Source, FactType: decision.FactType, Decision: decision}

	if decision.Source == "facts" {
		hits, err := m.facts.Search(query, decision.FactType, limit, 0)
		if err != nil {
			return out, err
		}
		out.Facts = hits
		if len(hits) > 0 {
			return out, nil
		}
	}

	results, err := m.semantic.Retrieve(query, limit)
	if err != nil {
		return out, err
	}
	out.Semantic = results
	return out, nil
}

// StartBackgroundWorker launches a supervised idle sweep that periodically
// folds the buffer into a rolling summary even when no exchange is inbound
// to trip the inline trigger in RecordExchange, e.g. a long-idle session
// sitting just under the ANY-of thresholds in shouldSummarizeNow. Safe to
// call at most once per Manager; call StopBackgroundWorker before
// OnSessionEnd to avoid a sweep racing the final flush.
func (m *Manager) StartBackgroundWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	m.bgCancel = cancel
	m.bgGroup = g

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				m.mu.Lock()
				due := m.shouldSummarizeNow()
				if due {
					if err := m.summarizeBuffer(); err != nil {
						logging.Get(logging.CategoryMemory).Warn("idle summarization sweep failed: %v", err)
					} else {
						m.exchangesSinceSummary = 0
					}
				}
				m.mu.Unlock()
			}
		}
	})
}

// StopBackgroundWorker cancels the idle sweep and waits for it to exit.
func (m *Manager) StopBackgroundWorker() error {
	if m.bgCancel == nil {
		return nil
	}
	m.bgCancel()
	err := m.bgGroup.Wait()
	m.bgCancel = nil
	m.bgGroup = nil
	return err
}

// OnSessionEnd flushes an end-of-session summary, saves the Identity Store,
// rotates conversation memories, and leaves persistence closing to the
// caller (the Backend's owning Store outlives the Manager).
func (m *Manager) OnSessionEnd() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.summary.EndSession(true); err != nil {
		logging.Get(logging.CategoryMemory).Warn("end-of-session summary flush failed: %v", err)
	}

	significant := m.exchangesSinceSummary > 0 || len(m.buffer) > m.bufferTruncateAt/2
	if significant {
		if err := m.identity.UpdateFull("IDENTITY.md", map[string]string{
			"total_episodes": fmt.Sprintf("%d", len(m.buffer)),
		}, ""); err != nil {
			logging.Get(logging.CategoryMemory).Warn("identity full update failed: %v", err)
		}
	} else {
		if err := m.identity.UpdateMinimal("IDENTITY.md"); err != nil {
			logging.Get(logging.CategoryMemory).Warn("identity minimal update failed: %v", err)
		}
	}

	rendered := m.summary.RenderContext()
	if rendered != "" {
		if err := m.identity.SaveConversationMemory(rendered); err != nil {
			logging.Get(logging.CategoryMemory).Warn("conversation memory save failed: %v", err)
		}
	}
	return nil
}
