// Package router implements the Query Router (Module E): classifies a
// query and decides whether to serve it from the Facts Store or fall back
// to the Semantic Store.
package router

import (
	"fmt"
	"strings"

	"assistantcore/internal/types"
)

var exactKeywords = []string{
	"who", "what", "when", "where", "which",
	"what was", "who was", "when was", "where was",
	"show me", "find", "find the", "show me the",
	"what email", "what meeting", "what appointment",
	"who did i", "what did i", "when did i",
	"specific", "precisely", "exact",
	"command", "code", "file", "that",
}

var temporalKeywords = []string{
	"yesterday", "last week", "earlier", "ago",
	"recently", "just now", "before", "when",
	"last time", "previous", "past",
}

var factTypeKeywords = map[types.FactType][]string{
	types.FactAppointment:   {"meeting", "appointment", "call", "interview", "event", "conference", "scheduled"},
	types.FactContact:       {"person", "people", "contact", "email address", "phone", "colleague", "friend"},
	types.FactPreference:    {"prefer", "like", "favorite", "want", "love", "hate", "dislike", "choice"},
	types.FactTask:          {"task", "todo", "action item", "reminder", "need to", "should", "must"},
	types.FactNote:          {"note", "remember", "important", "reminder", "don't forget", "fyi"},
	types.FactLocation:      {"location", "place", "address", "venue", "where", "office", "restaurant"},
	types.FactCommunication: {"email", "message", "text", "chat", "conversation", "call", "discussed"},
	types.FactToolUse:       {"created", "generated", "sent", "uploaded", "document", "image", "video"},
	types.FactCommand:       {"command", "cmd", "shell", "bash"},
	types.FactCode:          {"code", "function", "script", "snippet"},
	types.FactFile:          {"file", "path", "directory", "folder"},
	types.FactURL:           {"url", "link", "website"},
	types.FactError:         {"error", "exception", "bug", "issue"},
	types.FactConfig:        {"config", "setting", "configuration"},
}

// orderedFactTypes fixes iteration order for detectFactType so results are
// deterministic (Go map iteration order is randomized).
var orderedFactTypes = []types.FactType{
	types.FactAppointment, types.FactContact, types.FactPreference, types.FactTask, types.FactNote,
	types.FactLocation, types.FactCommunication, types.FactToolUse, types.FactCommand, types.FactCode,
	types.FactFile, types.FactURL, types.FactError, types.FactConfig,
}

// Decision is the outcome of Route.
type Decision struct {
	Source   string // "facts" or "semantic"
	FactType types.FactType
}

// Route decides whether a query should be answered from Facts or Semantic.
func Route(query string) Decision {
	lower := strings.ToLower(query)
	factType := detectFactType(lower)
	needsExact := containsAny(lower, exactKeywords) || containsAny(lower, temporalKeywords) || factType != ""

	if needsExact {
		return Decision{Source: "facts", FactType: factType}
	}
	return Decision{Source: "semantic"}
}

func detectFactType(lower string) types.FactType {
	for _, t := range orderedFactTypes {
		for _, kw := range factTypeKeywords[t] {
			if strings.Contains(lower, kw) {
				return t
			}
		}
	}
	return ""
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func matches(s string, keywords []string) []string {
	var out []string
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			out = append(out, kw)
		}
	}
	return out
}

// Confidence scores how strongly a query looks like a factual lookup:
// 0.4 for an exact-keyword match, +0.3 for a detected fact type, +0.3 for
// a temporal-keyword match, capped at 1.0.
func Confidence(query string) float64 {
	lower := strings.ToLower(query)
	var c float64
	if containsAny(lower, exactKeywords) {
		c += 0.4
	}
	if detectFactType(lower) != "" {
		c += 0.3
	}
	if containsAny(lower, temporalKeywords) {
		c += 0.3
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}

// Explain returns a human-readable reason for the routing decision.
func Explain(query string) string {
	lower := strings.ToLower(query)
	factType := detectFactType(lower)
	exactMatches := matches(lower, exactKeywords)
	temporalMatches := matches(lower, temporalKeywords)

	switch {
	case factType != "":
		return fmt.Sprintf("routed to facts (detected type: %s)", factType)
	case len(exactMatches) > 0:
		return fmt.Sprintf("routed to facts (exact keywords: %s)", strings.Join(exactMatches, ", "))
	case len(temporalMatches) > 0:
		return fmt.Sprintf("routed to facts (temporal keywords: %s)", strings.Join(temporalMatches, ", "))
	default:
		return "routed to semantic search (no exact/temporal indicators)"
	}
}
