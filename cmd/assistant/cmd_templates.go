package main

import (
	"fmt"
	"sync"

	"assistantcore/internal/orchestrator"
)

// registerBuiltinTemplates registers the CLI's built-in task templates.
// Real external collaborators (email, calendar, Workspace, etc.) are out
// of scope per spec.md §1; these two exist so the orchestrator's
// execution contract is exercisable end-to-end without one.
var registerOnce sync.Once

func registerBuiltinTemplates(o *orchestrator.Orchestrator) {
	registerOnce.Do(func() {
		o.RegisterTemplate("echo", func(cfg map[string]string) (string, error) {
			return fmt.Sprintf("echo: %v", cfg), nil
		})
		o.RegisterTemplate("always_fails", func(cfg map[string]string) (string, error) {
			return "", fmt.Errorf("template configured to always fail")
		})
	})
}
