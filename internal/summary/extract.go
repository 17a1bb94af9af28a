package summary

import (
	"fmt"
	"strings"

	"assistantcore/internal/types"
)

var importanceKeywords = []string{
	"breakthrough", "insight", "realize", "understand", "decision",
	"implement", "solution", "problem", "critical", "important",
	"remember", "recall", "discussed", "mentioned", "talked about",
	"plan", "next", "continue", "follow up",
}

// identifyKeyExchanges selects exchanges worth preserving verbatim: those
// that hit an importance keyword, or that are long enough to carry
// substantial content on their own, capped at 10 per spec.md §4.F.
func identifyKeyExchanges(exchanges []exchange, sessionID string) []types.KeyExchange {
	var out []types.KeyExchange
	for _, ex := range exchanges {
		reason := ""
		switch {
		case containsAny(ex.user, importanceKeywords) || containsAny(ex.assistant, importanceKeywords):
			reason = "contains important keywords or breakthrough moment"
		case len(ex.user) > 200 || len(ex.assistant) > 300:
			reason = "detailed exchange with substantial content"
		default:
			continue
		}
		out = append(out, types.KeyExchange{
			Episode: types.Episode{
				SessionID: sessionID, ExchangeNumber: ex.number,
				UserText: ex.user, AgentText: ex.assistant, CreatedAt: ex.at,
			},
			Reason: reason,
		})
		if len(out) >= 10 {
			break
		}
	}
	return out
}

func extractKeyPoints(exchanges []exchange) []string {
	var out []string
	initiationPhrases := []string{"let's", "we should", "i want to", "can we"}
	suggestionPhrases := []string{"solution", "approach", "recommend", "suggest"}
	for _, ex := range exchanges {
		if containsAny(ex.user, initiationPhrases) {
			out = append(out, fmt.Sprintf("User initiated: %s...", truncate(ex.user, 100)))
		}
		if containsAny(ex.assistant, suggestionPhrases) {
			out = append(out, fmt.Sprintf("Assistant suggested: %s...", truncate(ex.assistant, 100)))
		}
		if len(out) >= 15 {
			break
		}
	}
	return firstN(out, 15)
}

func extractInsights(exchanges []exchange) []string {
	var out []string
	keywords := []string{"realize", "understand", "insight", "breakthrough", "aha", "makes sense"}
	for _, ex := range exchanges {
		for _, kw := range keywords {
			if strings.Contains(strings.ToLower(ex.user), kw) {
				out = append(out, fmt.Sprintf("User insight: %s...", truncate(ex.user, 150)))
				break
			}
			if strings.Contains(strings.ToLower(ex.assistant), kw) {
				out = append(out, fmt.Sprintf("Assistant insight: %s...", truncate(ex.assistant, 150)))
				break
			}
		}
	}
	return firstN(out, 10)
}

func extractProgress(exchanges []exchange) []string {
	var out []string
	keywords := []string{"completed", "finished", "done", "achieved", "implemented", "solved", "fixed"}
	for _, ex := range exchanges {
		if containsAny(ex.assistant, keywords) {
			out = append(out, fmt.Sprintf("Progress made: %s...", truncate(ex.assistant, 150)))
		}
	}
	return firstN(out, 10)
}

var commonTopics = []string{
	"memory system", "autonomy", "assistant", "implementation", "architecture",
	"buffer", "summary", "persistence", "identity", "collaboration",
	"development", "testing", "debugging", "performance", "optimization",
}

func extractTopics(exchanges []exchange) []string {
	seen := map[string]bool{}
	var out []string
	var all strings.Builder
	for _, ex := range exchanges {
		all.WriteString(ex.user)
		all.WriteString(" ")
		all.WriteString(ex.assistant)
		all.WriteString(" ")
	}
	lower := strings.ToLower(all.String())
	for _, topic := range commonTopics {
		if strings.Contains(lower, topic) && !seen[topic] {
			seen[topic] = true
			out = append(out, strings.Title(topic))
		}
	}
	return firstN(out, 15)
}

func extractTechnical(exchanges []exchange) []string {
	var out []string
	keywords := []string{"class", "function", "method", "implementation", "algorithm", "code", "api", "database"}
	for _, ex := range exchanges {
		if containsAny(ex.assistant, keywords) {
			out = append(out, fmt.Sprintf("Technical: %s...", truncate(ex.assistant, 200)))
		}
	}
	return firstN(out, 8)
}

func extractDecisions(exchanges []exchange) []string {
	var out []string
	keywords := []string{"decided", "agree", "let's go with", "will implement", "choose", "selected"}
	for _, ex := range exchanges {
		if containsAny(ex.user, keywords) {
			out = append(out, fmt.Sprintf("User decision: %s...", truncate(ex.user, 150)))
		} else if containsAny(ex.assistant, keywords) {
			out = append(out, fmt.Sprintf("Assistant decision: %s...", truncate(ex.assistant, 150)))
		}
	}
	return firstN(out, 8)
}

func extractUnfinished(exchanges []exchange) []string {
	var out []string
	keywords := []string{"todo", "next", "later", "follow up", "continue", "remember to", "need to"}
	for _, ex := range exchanges {
		if containsAny(ex.user, keywords) {
			out = append(out, fmt.Sprintf("User noted: %s...", truncate(ex.user, 150)))
		} else if containsAny(ex.assistant, keywords) {
			out = append(out, fmt.Sprintf("Assistant noted: %s...", truncate(ex.assistant, 150)))
		}
	}
	return firstN(out, 8)
}

func extractTrustIndicators(exchanges []exchange) []string {
	var out []string
	keywords := []string{"thank you", "appreciate", "helpful", "great", "perfect", "exactly", "trust"}
	for _, ex := range exchanges {
		if containsAny(ex.user, keywords) {
			out = append(out, fmt.Sprintf("User expressed: %s...", truncate(ex.user, 100)))
		}
	}
	return firstN(out, 5)
}

func extractCollaborationPatterns(exchanges []exchange) []string {
	var out []string
	keywords := []string{"we", "together", "collaborate", "work on", "let's", "our"}
	for _, ex := range exchanges {
		if containsAny(ex.user, keywords) {
			out = append(out, fmt.Sprintf("Collaborative: %s...", truncate(ex.user, 100)))
		}
	}
	return firstN(out, 5)
}

func communicationStyle(exchanges []exchange) string {
	if len(exchanges) < 3 {
		return "Brief interaction"
	}
	total := 0
	for _, ex := range exchanges {
		total += len(ex.user)
	}
	avg := float64(total) / float64(len(exchanges))
	switch {
	case avg > 200:
		return "Detailed, thorough communication"
	case avg > 100:
		return "Moderate detail, conversational"
	default:
		return "Concise, direct communication"
	}
}

func containsAny(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
