package router

import (
	"testing"

	"assistantcore/internal/types"
)

// TestRoute_ScenarioS6 mirrors spec.md Scenario S6's query-routing cases.
func TestRoute_ScenarioS6(t *testing.T) {
	cases := []struct {
		query    string
		source   string
		factType types.FactType
	}{
		{"what meeting did I have yesterday", "facts", types.FactAppointment},
		{"what is my favorite restaurant", "facts", types.FactPreference},
		{"tell me about machine learning in general", "semantic", ""},
	}
	for _, c := range cases {
		d := Route(c.query)
		if d.Source != c.source {
			t.Errorf("Route(%q).Source = %q, want %q", c.query, d.Source, c.source)
		}
		if c.factType != "" && d.FactType != c.factType {
			t.Errorf("Route(%q).FactType = %q, want %q", c.query, d.FactType, c.factType)
		}
	}
}

func TestConfidence_CapsAtOne(t *testing.T) {
	c := Confidence("who did I meet yesterday about the appointment")
	if c > 1.0 {
		t.Errorf("Confidence = %v, want <= 1.0", c)
	}
	if c <= 0 {
		t.Errorf("Confidence = %v, want > 0 for an exact+temporal+typed query", c)
	}
}

func TestExplain_NonEmptyForEveryRoute(t *testing.T) {
	for _, q := range []string{"who did I call", "random musing about life", ""} {
		if e := Explain(q); e == "" {
			t.Errorf("Explain(%q) returned empty string", q)
		}
	}
}
