package digest

import (
	"strings"
	"testing"

	"github.com/jmylchreest/distill/pkg/news"
)

func TestRender(t *testing.T) {
	records := []news.Record{
		{
			Category:      "earnings",
			PrimaryEntity: "Zeta Corp",
			Summary:       "Zeta beat estimates.",
			HardData:      news.HardData{"revenue": "3B", "eps": "1.2", "guidance": ""},
			Quotes:        news.StringList{"We had a strong quarter."},
		},
		{Category: "MACRO_ECONOMY", PrimaryEntity: "US", Summary: "Inflation eased."},
		{Category: "OTHER", PrimaryEntity: "Zeta Corp"},
		{Category: "", PrimaryEntity: "", Summary: "Orphan story."},
	}

	want := strings.Join([]string{
		"ENTITY: [MACRO] US",
		"1. [MACRO_ECONOMY] Inflation eased.",
		"",
		"ENTITY: [COMPANY] Unknown Entity",
		"1. [GENERAL] Orphan story.",
		"",
		"ENTITY: [COMPANY] Zeta Corp",
		`1. [EARNINGS] Zeta beat estimates. Data: eps=1.2, revenue=3B Quote: "We had a strong quarter."`,
		"2. [OTHER] No summary.",
	}, "\n")

	if got := Render(records); got != want {
		t.Errorf("unexpected digest:\n%s\nwant:\n%s", got, want)
	}
}

func TestRender_Empty(t *testing.T) {
	if got := Render(nil); got != Empty {
		t.Errorf("expected %q, got %q", Empty, got)
	}
}

func TestRender_TruncatesQuote(t *testing.T) {
	long := strings.Repeat("é", 150)
	out := Render([]news.Record{{Category: "OTHER", PrimaryEntity: "A", Summary: "s", Quotes: news.StringList{long}}})

	want := `Quote: "` + strings.Repeat("é", 97) + `..."`
	if !strings.Contains(out, want) {
		t.Errorf("expected truncated quote, got %q", out)
	}
}

func TestCompare(t *testing.T) {
	records := []news.Record{{Category: "OTHER", PrimaryEntity: "A", Summary: "Something happened."}}
	text := Render(records)

	s, err := Compare(records, text)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if s.DigestChars != len(text) {
		t.Errorf("expected %d digest chars, got %d", len(text), s.DigestChars)
	}
	if s.JSONChars <= s.DigestChars {
		t.Errorf("expected JSON to be longer, got %d vs %d", s.JSONChars, s.DigestChars)
	}
	if r := s.Ratio(); r <= 0 || r >= 1 {
		t.Errorf("expected ratio in (0,1), got %v", r)
	}
	if !strings.Contains(s.String(), "saved") {
		t.Errorf("unexpected summary %q", s.String())
	}
	if (Savings{}).Ratio() != 0 {
		t.Error("expected zero ratio for empty savings")
	}
}
