package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCategoriesLogWhenDebugEnabled(t *testing.T) {
	tempDir := t.TempDir()

	if err := Initialize(tempDir, Config{
		DebugMode: true,
		Level:     "debug",
		Categories: map[string]bool{
			string(CategoryMemory): true,
			string(CategoryFacts):  true,
		},
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	for _, cat := range []Category{CategoryMemory, CategoryFacts} {
		Get(cat).Info("hello %s", cat)
	}

	logsDir := filepath.Join(tempDir, ".assistant", "logs")
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected log files to be created under %s", logsDir)
	}
}

func TestDisabledCategoryIsNoOp(t *testing.T) {
	tempDir := t.TempDir()

	if err := Initialize(tempDir, Config{
		DebugMode: true,
		Level:     "info",
		Categories: map[string]bool{
			string(CategoryMemory): false,
		},
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	// Should not panic and should not create a log file for the disabled category.
	Get(CategoryMemory).Info("should be dropped")

	logsDir := filepath.Join(tempDir, ".assistant", "logs")
	entries, _ := os.ReadDir(logsDir)
	for _, e := range entries {
		if filepath_ContainsCategory(e.Name(), "memory") {
			t.Fatalf("expected no log file for disabled category, found %s", e.Name())
		}
	}
}

func TestDebugModeOffProducesNoLogsDir(t *testing.T) {
	tempDir := t.TempDir()

	if err := Initialize(tempDir, Config{DebugMode: false}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	Get(CategoryMemory).Info("should be silently dropped")

	logsDir := filepath.Join(tempDir, ".assistant", "logs")
	if _, err := os.Stat(logsDir); err == nil {
		t.Fatalf("expected no logs directory when debug_mode is false")
	}
}

func filepath_ContainsCategory(filename, category string) bool {
	return len(filename) > len(category) && filepath.Ext(filename) == ".log" &&
		(filename[len(filename)-len(category)-4:len(filename)-4] == category)
}
