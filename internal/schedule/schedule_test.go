package schedule

import (
	"testing"
	"time"
)

func TestParse_SpecialTokens(t *testing.T) {
	cases := map[string]string{
		"@daily":   "0 9 * * *",
		"@weekly":  "0 20 * * 0",
		"@monthly": "0 9 1 * *",
	}
	for in, want := range cases {
		trig, err := Parse(in, "UTC")
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if trig == nil || trig.Kind != KindCron || trig.Value != want {
			t.Errorf("Parse(%q) = %+v, want cron %q", in, trig, want)
		}
	}
}

// TestParse_ScenarioS3 mirrors spec.md Scenario S3.
func TestParse_ScenarioS3(t *testing.T) {
	cases := map[string]string{
		"every Sunday at 8pm": "0 20 * * 0",
		"daily at 9am":        "0 9 * * *",
		"every 5 minutes":     "*/5 * * * *",
	}
	for in, want := range cases {
		trig, err := Parse(in, "UTC")
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if trig == nil {
			t.Fatalf("Parse(%q) = nil, want %q", in, want)
		}
		if trig.Value != want {
			t.Errorf("Parse(%q).Value = %q, want %q", in, trig.Value, want)
		}
	}

	trig, err := Parse("gibberish", "UTC")
	if err != nil {
		t.Fatalf("Parse(gibberish) returned error: %v", err)
	}
	if trig != nil {
		t.Errorf("Parse(gibberish) = %+v, want nil", trig)
	}
}

func TestParse_NaturalLanguageForms(t *testing.T) {
	cases := map[string]string{
		"Monday at 6:30am":                     "30 6 * * 1",
		"every weekday at 9am":                 "0 9 * * 1-5",
		"first Friday of each month at 10am":   "0 10 1-7 * 5",
		"last day of each month at 11:45pm":    "45 23 28-31 * *",
	}
	for in, want := range cases {
		trig, err := Parse(in, "UTC")
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if trig == nil || trig.Value != want {
			t.Errorf("Parse(%q) = %+v, want cron %q", in, trig, want)
		}
	}
}

func TestParse_PassThroughCron(t *testing.T) {
	trig, err := Parse("*/15 9-17 * * 1-5", "UTC")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if trig == nil || trig.Kind != KindCron || trig.Value != "*/15 9-17 * * 1-5" {
		t.Errorf("Parse(cron) = %+v", trig)
	}
}

func TestParse_Idempotent(t *testing.T) {
	// Testable property 6: parsing a canonical cron or the same NL form
	// twice yields equal results.
	for _, in := range []string{"0 20 * * 0", "every Sunday at 8pm"} {
		a, errA := Parse(in, "UTC")
		b, errB := Parse(in, "UTC")
		if errA != nil || errB != nil {
			t.Fatalf("Parse(%q) errors: %v / %v", in, errA, errB)
		}
		if *a != *b {
			t.Errorf("Parse(%q) not idempotent: %+v vs %+v", in, a, b)
		}
	}
}

func TestNextRun_Cron(t *testing.T) {
	trig, err := Parse("0 9 * * *", "UTC")
	if err != nil || trig == nil {
		t.Fatalf("Parse: %v", err)
	}
	after := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	next, err := NextRun(trig, after)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	want := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextRun = %v, want %v", next, want)
	}
}

func TestNextRun_Interval(t *testing.T) {
	trig, err := Parse("every 30 seconds", "UTC")
	if err != nil || trig == nil {
		t.Fatalf("Parse: %v", err)
	}
	if trig.Kind != KindInterval {
		t.Fatalf("expected interval trigger, got %+v", trig)
	}
	after := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	next, err := NextRun(trig, after)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	if !next.Equal(after.Add(30 * time.Second)) {
		t.Errorf("NextRun = %v, want %v", next, after.Add(30*time.Second))
	}
}
