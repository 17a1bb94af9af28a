package memory

import (
	"fmt"
	"strings"

	"assistantcore/internal/logging"
	"assistantcore/internal/types"
)

// ContextOptions configures context_for_prompt.
type ContextOptions struct {
	MaxTokens int // 0 = use the pressure-table default for the current pressure
}

const noContextSentinel = "[no context]"

// approxTokens is a cheap token estimator (chars/4), used only to bound
// greedy inclusion - the exact tokenizer is the downstream LLM adapter's
// concern, not this module's.
func approxTokens(s string) int {
	return (len(s) + 3) / 4
}

// ContextForPrompt assembles the layered, bounded context string per
// spec.md §4.H: recent verbatim slice, mid slice (greedy within budget),
// compression marker, then knowledge-graph/semantic/summary-buffer/identity
// layers in that order.
func (m *Manager) ContextForPrompt(opts ContextOptions) (string, error) {
	m.mu.Lock()
	buf := append([]types.Episode(nil), m.buffer...)
	m.mu.Unlock()

	maxTokens := opts.MaxTokens
	capRow := capFor(m.pressure())
	if maxTokens <= 0 {
		maxTokens = capRow.SummaryCapTokens
	}

	if len(buf) == 0 {
		fallback := m.sessionSummaryFallback()
		if fallback != "" {
			return fallback, nil
		}
		return noContextSentinel, nil
	}

	var sb strings.Builder
	budget := maxTokens

	recent, rest := splitRecent(buf, recentSliceSize)
	for _, ep := range recent {
		line := renderEpisode(ep)
		sb.WriteString(line)
		budget -= approxTokens(line)
	}

	mid, compressed := splitMid(rest, midSliceMax)
	for _, ep := range mid {
		line := renderEpisode(ep)
		cost := approxTokens(line)
		if cost > budget {
			compressed = append([]types.Episode{ep}, compressed...)
			continue
		}
		sb.WriteString(line)
		budget -= cost
	}

	// len(compressed) only counts mid-slice overflow still held in the
	// in-memory buffer; episodes evicted from the buffer entirely (folded
	// into buffer Summary rows by evictToCap) never
	// appear in buf at all, so they must be counted separately from the
	// session's exchange numbering - otherwise a pressure-capped buffer
	// (e.g. capped at 15, well under recentSliceSize+midSliceMax=50) would
	// never emit the marker even though whole exchanges were compressed away.
	evictedCount := 0
	if last, err := m.backend.LastExchangeNumber(m.sessionID); err == nil {
		if total := last + 1; total > len(buf) {
			evictedCount = total - len(buf)
		}
	} else {
		logging.Get(logging.CategoryMemory).Warn("failed to compute evicted exchange count: %v", err)
	}

	if compressedCount := len(compressed) + evictedCount; compressedCount > 0 {
		fmt.Fprintf(&sb, "[Earlier conversation: %d exchanges compressed into semantic memory]\n", compressedCount)
	}

	if kg := m.knowledgeGraphContext(); kg != "" {
		sb.WriteString(kg)
	}

	if len(recent) > 0 {
		lastUser := recent[len(recent)-1].UserText
		if semCtx, err := m.semantic.GetContext(lastUser, 5); err == nil && semCtx != "" {
			sb.WriteString(semCtx)
		} else if err != nil {
			logging.Get(logging.CategoryMemory).Warn("semantic context fetch failed: %v", err)
		}
	}

	if s2 := m.summary.RenderContext(); s2 != "" {
		sb.WriteString(s2)
	}

	if idCtx := m.identityContext(); idCtx != "" {
		sb.WriteString(idCtx)
	}

	out := sb.String()
	if strings.TrimSpace(out) == "" {
		return noContextSentinel, nil
	}
	return out, nil
}

// knowledgeGraphContext is a seam for a configured knowledge-graph context
// provider; none is wired by default (no KG backend is part of this
// module's scope), so this always returns "".
func (m *Manager) knowledgeGraphContext() string {
	return ""
}

func (m *Manager) identityContext() string {
	var sb strings.Builder
	if doc, err := m.identity.Identity(); err == nil {
		sb.WriteString("--- IDENTITY ---\n")
		sb.WriteString(doc.Body)
		sb.WriteString("\n")
	}
	if doc, err := m.identity.UserProfile(); err == nil {
		sb.WriteString("--- USER PROFILE ---\n")
		sb.WriteString(doc.Body)
		sb.WriteString("\n")
	}
	if doc, err := m.identity.Preferences(); err == nil {
		sb.WriteString("--- PREFERENCES ---\n")
		sb.WriteString(doc.Body)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m *Manager) sessionSummaryFallback() string {
	summaries := m.summary.Summaries()
	if len(summaries) == 0 {
		return ""
	}
	return m.summary.RenderContext()
}

func renderEpisode(ep types.Episode) string {
	return fmt.Sprintf("User: %s\nAssistant: %s\n", ep.UserText, ep.AgentText)
}

func splitRecent(buf []types.Episode, n int) (recent, rest []types.Episode) {
	if len(buf) <= n {
		return buf, nil
	}
	return buf[len(buf)-n:], buf[:len(buf)-n]
}

func splitMid(rest []types.Episode, n int) (mid, compressed []types.Episode) {
	// rest is oldest-first; mid slice takes the most recent n of "rest",
	// compressed holds anything older.
	if len(rest) <= n {
		return rest, nil
	}
	return rest[len(rest)-n:], rest[:len(rest)-n]
}
