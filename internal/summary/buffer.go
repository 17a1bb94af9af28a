// Package summary implements the Rolling Summary Buffer (Module F):
// per-session exchange tracking, facet-extracted ConversationSummary
// generation, a FIFO buffer of recent summaries, and bounded context
// rendering for prompt injection.
package summary

import (
	"fmt"
	"strings"
	"time"

	"assistantcore/internal/types"
)

// Backend is the persistence surface the summary buffer needs.
type Backend interface {
	InsertConversationSummary(cs types.ConversationSummary) error
	LatestConversationSummary() (types.ConversationSummary, error)
}

// Buffer tracks in-progress exchanges for the current session and manages
// a FIFO window of the most recent N ConversationSummary records.
type Buffer struct {
	backend Backend
	idSeq   func() string
	now     func() time.Time

	maxSummaries int
	summaries    []types.ConversationSummary // FIFO, most recent last

	sessionID      string
	exchanges      []exchange
	sessionStart   time.Time
}

type exchange struct {
	number    int
	user      string
	assistant string
	at        time.Time
}

// New constructs a Buffer and loads the single most recent
// ConversationSummary row into it. Older persisted summaries are not
// reloaded; the FIFO grows toward maxSummaries only through Add.
func New(backend Backend, idSeq func() string, now func() time.Time, maxSummaries int) *Buffer {
	if now == nil {
		now = time.Now
	}
	if maxSummaries <= 0 {
		maxSummaries = 10
	}
	b := &Buffer{
		backend:      backend,
		idSeq:        idSeq,
		now:          now,
		maxSummaries: maxSummaries,
		sessionStart: now(),
	}
	if cs, err := backend.LatestConversationSummary(); err == nil {
		b.summaries = append(b.summaries, cs)
	}
	return b
}

// StartSession resets exchange tracking for a new session.
func (b *Buffer) StartSession(sessionID string) {
	b.sessionID = sessionID
	b.exchanges = nil
	b.sessionStart = b.now()
}

// TrackExchange records one user/agent exchange for summary generation.
func (b *Buffer) TrackExchange(userText, agentText string) {
	b.exchanges = append(b.exchanges, exchange{
		number:    len(b.exchanges), // 0-based, matching the persisted Episode.ExchangeNumber sequence
		user:      userText,
		assistant: agentText,
		at:        b.now(),
	})
}

// ExchangeCount returns how many exchanges have been tracked this session.
func (b *Buffer) ExchangeCount() int {
	return len(b.exchanges)
}

// minExchangesForSummary mirrors the prototype's len(exchanges) < 3 guard:
// summaries shorter than this carry too little signal to be worth persisting
// unless the caller forces one at session end.
const minExchangesForSummary = 3

// Generate builds a ConversationSummary from the tracked exchanges. It
// returns false if there is not enough material and force is false.
func (b *Buffer) Generate(force bool) (types.ConversationSummary, bool) {
	if len(b.exchanges) == 0 || (!force && len(b.exchanges) < minExchangesForSummary) {
		return types.ConversationSummary{}, false
	}

	first := b.exchanges[0]
	last := b.exchanges[len(b.exchanges)-1]

	cs := types.ConversationSummary{
		ID:        b.idSeq(),
		SessionID: b.sessionID,
		OpeningExchange: types.Episode{
			SessionID: b.sessionID, ExchangeNumber: first.number,
			UserText: first.user, AgentText: first.assistant, CreatedAt: first.at,
		},
		ClosingExchange: types.Episode{
			SessionID: b.sessionID, ExchangeNumber: last.number,
			UserText: last.user, AgentText: last.assistant, CreatedAt: last.at,
		},
		TimestampStart: b.sessionStart,
		TimestampEnd:   b.now(),
		CreatedAt:      b.now(),
	}

	cs.KeyExchanges = identifyKeyExchanges(b.exchanges, b.sessionID)
	cs.KeyPoints = extractKeyPoints(b.exchanges)
	cs.Insights = extractInsights(b.exchanges)
	cs.ProgressMade = extractProgress(b.exchanges)
	cs.Topics = extractTopics(b.exchanges)
	cs.TechnicalSolutions = extractTechnical(b.exchanges)
	cs.Decisions = extractDecisions(b.exchanges)
	cs.UnfinishedThreads = extractUnfinished(b.exchanges)
	cs.TrustIndicators = extractTrustIndicators(b.exchanges)
	cs.CollaborationPatterns = extractCollaborationPatterns(b.exchanges)
	cs.CommunicationStyle = communicationStyle(b.exchanges)

	return cs, true
}

// Add persists a generated summary and appends it to the FIFO buffer
// (evicting the oldest if the buffer is at capacity). It leaves exchange
// tracking as it is; EndSession resets that.
func (b *Buffer) Add(cs types.ConversationSummary) error {
	if err := b.backend.InsertConversationSummary(cs); err != nil {
		return err
	}
	b.summaries = append(b.summaries, cs)
	if len(b.summaries) > b.maxSummaries {
		b.summaries = b.summaries[len(b.summaries)-b.maxSummaries:]
	}
	return nil
}

// EndSession generates and persists a summary for the current session if
// there is enough material (or force is set), then resets tracking.
func (b *Buffer) EndSession(force bool) error {
	cs, ok := b.Generate(force)
	if !ok {
		return nil
	}
	if err := b.Add(cs); err != nil {
		return fmt.Errorf("save session summary: %w", err)
	}
	b.exchanges = nil
	b.sessionStart = b.now()
	return nil
}

// Summaries returns the buffered summaries, most recent first.
func (b *Buffer) Summaries() []types.ConversationSummary {
	out := make([]types.ConversationSummary, len(b.summaries))
	for i, cs := range b.summaries {
		out[len(b.summaries)-1-i] = cs
	}
	return out
}

// RenderContext formats buffered summaries for prompt injection with the
// begin/end markers and per-section headers the original prototype used,
// so existing transcripts sharing this format stay readable across ports.
func (b *Buffer) RenderContext() string {
	if len(b.summaries) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("=== BEGIN CONVERSATION MEMORY LAYER 2 ===\n")
	fmt.Fprintf(&sb, "# Previous Conversation History (%d summaries loaded)\n\n", len(b.summaries))

	ordered := b.Summaries()
	for i, cs := range ordered {
		hours := cs.TimestampEnd.Sub(cs.TimestampStart).Hours()
		fmt.Fprintf(&sb, "## [%d] Conversation from %s (%d exchanges, %.1fh)\n",
			i+1, cs.TimestampStart.Format("Jan 2, 2006, 3:04 PM"), exchangeCountOf(cs), hours)

		if cs.OpeningExchange.UserText != "" {
			fmt.Fprintf(&sb, "**FIRST EXCHANGE**: %q\n", truncate(cs.OpeningExchange.UserText, 200))
		}
		if len(cs.KeyPoints) > 0 {
			sb.WriteString("**KEY POINTS**:\n")
			for _, p := range firstN(cs.KeyPoints, 8) {
				fmt.Fprintf(&sb, "  %s\n", p)
			}
		}
		if len(cs.KeyExchanges) > 0 {
			sb.WriteString("**KEY EXCHANGES**:\n")
			for _, ke := range firstNKE(cs.KeyExchanges, 3) {
				fmt.Fprintf(&sb, "  [Exchange %d] User: %q\n", ke.Episode.ExchangeNumber, truncate(ke.Episode.UserText, 150))
				fmt.Fprintf(&sb, "  Assistant: %q\n", truncate(ke.Episode.AgentText, 150))
			}
		}
		if len(cs.ProgressMade) > 0 {
			sb.WriteString("**PROGRESS MADE**:\n")
			for _, p := range firstN(cs.ProgressMade, 5) {
				fmt.Fprintf(&sb, "  %s\n", p)
			}
		}
		if len(cs.Insights) > 0 {
			sb.WriteString("**INSIGHTS**:\n")
			for _, in := range firstN(cs.Insights, 5) {
				fmt.Fprintf(&sb, "  %s\n", in)
			}
		}
		if len(cs.UnfinishedThreads) > 0 {
			sb.WriteString("**UNFINISHED THREADS**:\n")
			for _, t := range firstN(cs.UnfinishedThreads, 5) {
				fmt.Fprintf(&sb, "  %s\n", t)
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("=== END CONVERSATION MEMORY LAYER 2 ===\n")
	return sb.String()
}

func exchangeCountOf(cs types.ConversationSummary) int {
	if cs.ClosingExchange.ExchangeNumber >= cs.OpeningExchange.ExchangeNumber {
		return cs.ClosingExchange.ExchangeNumber - cs.OpeningExchange.ExchangeNumber + 1
	}
	return 0
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func firstNKE(s []types.KeyExchange, n int) []types.KeyExchange {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
