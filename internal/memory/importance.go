package memory

import "strings"

var interrogativeWords = []string{"who", "what", "when", "where", "why", "how", "which", "?"}
var imperativeWords = []string{"please", "can you", "could you", "would you", "do ", "make ", "create", "build", "run", "show me"}
var actionKeywords = map[string][]string{
	"creation": {"create", "build", "generate", "write", "make"},
	"memory":   {"remember", "recall", "note", "store"},
	"analysis": {"analyze", "explain", "why", "investigate", "review"},
}

// computeImportance derives a 0-1 importance score from text length and the
// presence of interrogative/imperative keywords, per spec.md §4.H step 1.
// This mirrors the weighted-component scoring idiom used elsewhere in the
// pack (base score + additive signal components, clamped).
func computeImportance(userText, agentText string) float64 {
	lower := strings.ToLower(userText)

	score := 0.3 // base
	length := len(userText) + len(agentText)
	switch {
	case length > 500:
		score += 0.2
	case length > 150:
		score += 0.1
	}

	if containsAnyWord(lower, interrogativeWords) {
		score += 0.15
	}
	if containsAnyWord(lower, imperativeWords) {
		score += 0.15
	}
	if strings.Contains(lower, "important") || strings.Contains(lower, "remember") || strings.Contains(lower, "critical") {
		score += 0.2
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

func containsAnyWord(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// deriveSummary produces a concise derived sentence for an exchange,
// truncating the user turn to a single-line gist.
func deriveSummary(userText, agentText string) string {
	u := strings.TrimSpace(strings.ReplaceAll(userText, "\n", " "))
	if len(u) > 120 {
		u = u[:120] + "..."
	}
	if u == "" {
		u = "(empty user turn)"
	}
	return u
}

// detectAction classifies an exchange into the identity-node action taxonomy
// spec.md §4.H references (creation, memory, analysis, ...).
func detectAction(userText, agentText string) string {
	lower := strings.ToLower(userText + " " + agentText)
	for action, keywords := range actionKeywords {
		if containsAnyWord(lower, keywords) {
			return action
		}
	}
	return "general"
}
