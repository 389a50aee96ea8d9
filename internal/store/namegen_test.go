package store

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestGenerateName_SameKwargsDifferentKeyOrderMatch(t *testing.T) {
	a := GenerateName("fetch_listed_info", json.RawMessage(`{"market":"prime","period_type":"7days"}`), "0 1 * * *")
	b := GenerateName("fetch_listed_info", json.RawMessage(`{"period_type":"7days","market":"prime"}`), "0 1 * * *")
	if a != b {
		t.Fatalf("names differ by kwargs key order: %q vs %q", a, b)
	}
}

func TestGenerateName_DifferentKwargsDiffer(t *testing.T) {
	a := GenerateName("fetch_listed_info", json.RawMessage(`{"market":"prime"}`), "0 1 * * *")
	b := GenerateName("fetch_listed_info", json.RawMessage(`{"market":"standard"}`), "0 1 * * *")
	if a == b {
		t.Fatalf("expected distinct names for distinct kwargs, got %q for both", a)
	}
}

func TestGenerateName_EmptyKwargsIsStable(t *testing.T) {
	a := GenerateName("noop", nil, "* * * * *")
	b := GenerateName("noop", json.RawMessage(`{}`), "* * * * *")
	if a != b {
		t.Fatalf("nil and empty-object kwargs should canonicalize identically: %q vs %q", a, b)
	}
}

func TestFrequencyLabel(t *testing.T) {
	cases := map[string]string{
		"*/5 * * * *": "minutely",
		"30 * * * *":  "hourly",
		"0 6 * * *":   "daily",
		"0 6 * * 1":   "weekly",
		"0 6 1 * *":   "monthly",
		"not cron":    "cron",
	}
	for expr, want := range cases {
		got := frequencyLabel(expr)
		if got != want {
			t.Errorf("frequencyLabel(%q) = %q, want %q", expr, got, want)
		}
	}
}

func TestGenerateName_IncludesTaskNameAndFrequency(t *testing.T) {
	name := GenerateName("fetch_listed_info", json.RawMessage(`{"market":"prime"}`), "0 6 * * *")
	if !strings.HasPrefix(name, "fetch_listed_info-") {
		t.Fatalf("name %q does not start with task_name prefix", name)
	}
	if !strings.HasSuffix(name, "-daily") {
		t.Fatalf("name %q does not end with the expected frequency label", name)
	}
}
