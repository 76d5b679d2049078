package knowledge

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultKnowledgeBase(t *testing.T) {
	base, err := Default()
	if err != nil {
		t.Fatalf("Default err: %v", err)
	}

	if got := base.Locations(); len(got) != 4 || got[0] != "london" {
		t.Fatalf("unexpected locations %v", got)
	}

	w, ok := base.Weather("New York")
	if !ok {
		t.Fatal("expected weather for New York")
	}
	if w.Temp != 22 || w.Condition != "Sunny" {
		t.Fatalf("unexpected weather %+v", w)
	}
}

func TestLocationKey(t *testing.T) {
	if got := LocationKey("San Francisco, USA"); got != "san_francisco_usa" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestSearchMatchesKeysAndFAQ(t *testing.T) {
	base, _ := Default()

	info, err := base.Search("When was the company founded?")
	if err != nil {
		t.Fatalf("Search err: %v", err)
	}
	if !strings.Contains(info, "founded: 2020") {
		t.Fatalf("expected founded entry, got %q", info)
	}

	info, err = base.Search("tell me about shipping")
	if err != nil {
		t.Fatalf("Search err: %v", err)
	}
	if !strings.Contains(info, "shipping: Free shipping") {
		t.Fatalf("expected shipping entry, got %q", info)
	}
}

func TestSearchWithoutMatch(t *testing.T) {
	base, err := Parse([]byte("company_info:\n  - key: name\n    value: ACME\n"))
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}
	if _, err := base.Search("zzz"); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestSystemPromptEmbedsKnowledge(t *testing.T) {
	base, _ := Default()
	prompt := base.SystemPrompt()
	for _, want := range []string{"Company Information:", "ACME Corporation", "FAQ Information:", "support@acme.com"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}
