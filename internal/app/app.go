// Package app assembles the Persistence Store and every memory-hierarchy
// component (facts, semantic, summary, identity, the Hierarchical Memory
// Manager) plus the Task Orchestrator into one runtime, following
// spec.md §9's "single immutable Config injected everywhere" design note.
package app

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"assistantcore/internal/config"
	"assistantcore/internal/embedding"
	"assistantcore/internal/facts"
	"assistantcore/internal/identity"
	"assistantcore/internal/logging"
	"assistantcore/internal/memory"
	"assistantcore/internal/orchestrator"
	"assistantcore/internal/semantic"
	"assistantcore/internal/store"
	"assistantcore/internal/summary"
	"assistantcore/internal/types"
)

// NewID generates a stable, opaque id for every durable record kind.
func NewID() string { return uuid.NewString() }

// App wires every core component together for one process lifetime.
type App struct {
	Config *config.Config

	Store        *store.Store
	Facts        *facts.Store
	Semantic     *semantic.Store
	Identity     *identity.Store
	Summary      *summary.Buffer
	Memory       *memory.Manager
	Orchestrator *orchestrator.Orchestrator

	Session types.Session
}

// Open builds every component rooted at cfg.WorkspacePath, starting a new
// Session and loading the Summary Buffer / ExchangeBuffer from durable
// state per spec.md §4.F/§4.H startup behavior.
func Open(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logging.Initialize(cfg.WorkspacePath, logging.Config{
		DebugMode:  cfg.Logging.DebugMode,
		Categories: cfg.Logging.Categories,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.Format == "json",
	}); err != nil {
		return nil, err
	}

	st, err := store.Open(filepath.Join(cfg.WorkspacePath, "memory.db"))
	if err != nil {
		return nil, err
	}

	engine, err := embedding.NewEngine(embedding.Config{Dimensions: cfg.Embedding.Dimensions})
	if err != nil {
		st.Close()
		return nil, err
	}

	factsStore := facts.New(st, NewID, time.Now)
	semStore := semantic.New(st, engine, NewID)
	identityStore, err := identity.New(cfg.WorkspacePath, cfg.ConversationMemoryArchiveMax)
	if err != nil {
		st.Close()
		return nil, err
	}
	summaryBuf := summary.New(st, NewID, time.Now, cfg.MaxSummariesInMemory)

	session := types.Session{ID: NewID(), CreatedAt: time.Now()}
	if err := st.CreateSession(session); err != nil {
		st.Close()
		return nil, err
	}
	summaryBuf.StartSession(session.ID)

	mgr := memory.New(session.ID, memory.Config{
		Backend:          st,
		Facts:            factsStore,
		Semantic:         semStore,
		Identity:         identityStore,
		Summary:          summaryBuf,
		IDSeq:            NewID,
		Now:              time.Now,
		BufferSize:       cfg.BufferSize,
		BufferTruncateAt: cfg.BufferTruncateAt,
	})
	if err := mgr.LoadBuffer(); err != nil {
		logging.Get(logging.CategoryBoot).Warn("failed to reload exchange buffer: %v", err)
	}
	mgr.StartBackgroundWorker(context.Background(), 5*time.Minute)

	orch := orchestrator.New(orchestrator.Config{
		Backend:         st,
		Memory:          mgr,
		Timezone:        cfg.Timezone,
		TickInterval:    cfg.GetSchedulerTick(),
		TemplateTimeout: cfg.GetTemplateTimeout(),
		IDSeq:           NewID,
		Now:             time.Now,
	})

	return &App{
		Config:       cfg,
		Store:        st,
		Facts:        factsStore,
		Semantic:     semStore,
		Identity:     identityStore,
		Summary:      summaryBuf,
		Memory:       mgr,
		Orchestrator: orch,
		Session:      session,
	}, nil
}

// Close flushes the end-of-session summary, saves identity, and closes the
// Persistence Store. Safe to call once at process shutdown.
func (a *App) Close() error {
	if err := a.Memory.StopBackgroundWorker(); err != nil {
		logging.Get(logging.CategoryBoot).Warn("idle summarization worker stop failed: %v", err)
	}
	if err := a.Memory.OnSessionEnd(); err != nil {
		logging.Get(logging.CategoryBoot).Warn("on_session_end failed: %v", err)
	}
	if err := a.Identity.Close(); err != nil {
		logging.Get(logging.CategoryBoot).Warn("identity store close failed: %v", err)
	}
	return a.Store.Close()
}
