// Package types holds the domain model shared across the memory hierarchy,
// the query router, and the task orchestrator.
package types

import "time"

// FactType is the closed enum of recallable fact kinds (spec.md §3).
type FactType string

const (
	FactAppointment    FactType = "appointment"
	FactContact        FactType = "contact"
	FactPreference     FactType = "preference"
	FactTask           FactType = "task"
	FactNote           FactType = "note"
	FactLocation       FactType = "location"
	FactCommunication  FactType = "communication"
	FactToolUse        FactType = "tool_use"
	FactCommand        FactType = "command"
	FactCode           FactType = "code"
	FactFile           FactType = "file"
	FactURL            FactType = "url"
	FactError          FactType = "error"
	FactConfig         FactType = "config"
	FactRecommendation FactType = "recommendation"
	FactRoutine        FactType = "routine"
	FactHealth         FactType = "health"
	FactFinancial      FactType = "financial"
)

// AllFactTypes lists every member of the closed fact-type enum.
var AllFactTypes = []FactType{
	FactAppointment, FactContact, FactPreference, FactTask, FactNote,
	FactLocation, FactCommunication, FactToolUse, FactCommand, FactCode,
	FactFile, FactURL, FactError, FactConfig, FactRecommendation,
	FactRoutine, FactHealth, FactFinancial,
}

// ValidFactType reports whether t is one of the closed enum members.
func ValidFactType(t FactType) bool {
	for _, ft := range AllFactTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// Session is one run of the assistant.
type Session struct {
	ID        string
	CreatedAt time.Time
	Name      string
}

// CompressionLevel tracks how aggressively an episode has been summarized.
type CompressionLevel int

const (
	CompressionNone CompressionLevel = iota
	CompressionBuffer
	CompressionRolling
)

// Episode is one user/agent exchange.
type Episode struct {
	ID               string
	SessionID        string
	ExchangeNumber   int
	CreatedAt        time.Time
	UserText         string
	AgentText        string
	Summary          string
	Importance       float64
	InBuffer         bool
	Summarized       bool
	CompressionLevel CompressionLevel
	FactsExtracted   bool
}

// Fact is an atomically-recallable datum extracted from an episode.
type Fact struct {
	ID          string
	Type        FactType
	Content     string
	Context     string
	Importance  float64
	AccessCount int
	Timestamp   time.Time
	LastAccess  time.Time
	SessionID   string
	EpisodeID   string
	Tags        []string
	Metadata    map[string]string
	Fingerprint string
}

// SummaryType distinguishes the scope a Summary compresses.
type SummaryType string

const (
	SummaryBuffer  SummaryType = "buffer"
	SummarySession SummaryType = "session"
	SummaryRolling SummaryType = "rolling"
)

// Summary is a structured compression of N consecutive exchanges.
type Summary struct {
	ID               string
	SessionID        string
	Type             SummaryType
	Content          string
	SourceEpisodeIDs []string
	Importance       float64
	CreatedAt        time.Time
}

// KeyExchange is a verbatim exchange preserved in a ConversationSummary
// because it scored highly on the key-exchange heuristic.
type KeyExchange struct {
	Episode Episode
	Reason  string
}

// ConversationSummary is the rich, facet-extracted summary variant used for
// cross-session continuity (spec.md §3).
type ConversationSummary struct {
	ID               string
	SessionID        string
	OpeningExchange  Episode
	ClosingExchange  Episode
	KeyExchanges     []KeyExchange
	KeyPoints        []string
	Insights         []string
	ProgressMade     []string
	Topics           []string
	Decisions        []string
	UnfinishedThreads []string
	TechnicalSolutions []string
	TrustIndicators  []string
	CollaborationPatterns []string
	CommunicationStyle string
	TimestampStart   time.Time
	TimestampEnd     time.Time
	CreatedAt        time.Time
}

// ScheduledTask is a persistent, recurring unit of autonomous work.
type ScheduledTask struct {
	ID                 string
	DisplayName        string
	ScheduleExpression string
	TemplateName       string
	TemplateConfig     map[string]string
	Enabled            bool
	CreatedAt          time.Time
	LastRun            *time.Time
	NextRun            *time.Time
	RunCount           int
	SuccessCount       int
	FailureCount       int
}

// TaskExecution is an append-only log row for one run of a ScheduledTask.
type TaskExecution struct {
	ID             string
	TaskID         string
	StartedAt      time.Time
	CompletedAt    *time.Time
	Success        bool
	ErrorMessage   string
	Output         string
	DurationSeconds float64
}
