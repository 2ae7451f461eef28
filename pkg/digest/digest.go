// Package digest renders extracted records as dense plain text for a
// downstream synthesis prompt.
package digest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/distill/pkg/news"
)

// QuoteLimit is the longest quote kept, in characters.
const QuoteLimit = 100

// Empty is the digest of no records.
const Empty = "No data available."

const unknownEntity = "Unknown Entity"

// Render groups records by primary entity, sorted by entity name, and
// writes one numbered line per record:
//
//	ENTITY: [COMPANY] Acme
//	1. [EARNINGS] Acme beat estimates. Data: eps=1.2, revenue=3B Quote: "..."
func Render(records []news.Record) string {
	if len(records) == 0 {
		return Empty
	}

	groups := make(map[string][]news.Record)
	for _, r := range records {
		entity := strings.TrimSpace(r.PrimaryEntity)
		if entity == "" || strings.EqualFold(entity, "null") {
			entity = unknownEntity
		}
		groups[entity] = append(groups[entity], r)
	}
	entities := make([]string, 0, len(groups))
	for e := range groups {
		entities = append(entities, e)
	}
	sort.Strings(entities)

	var b strings.Builder
	for _, entity := range entities {
		items := groups[entity]
		fmt.Fprintf(&b, "ENTITY: %s %s\n", prefix(items[0]), entity)
		for i, r := range items {
			fmt.Fprintf(&b, "%d. %s\n", i+1, line(r))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func prefix(r news.Record) string {
	if strings.EqualFold(r.Category, "MACRO_ECONOMY") {
		return "[MACRO]"
	}
	return "[COMPANY]"
}

func line(r news.Record) string {
	category := strings.ToUpper(strings.TrimSpace(r.Category))
	if category == "" {
		category = "GENERAL"
	}
	summary := strings.TrimSpace(r.Summary)
	if summary == "" {
		summary = "No summary."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", category, summary)

	var data []string
	for _, k := range r.HardData.Keys() {
		if v := r.HardData[k]; v != "" {
			data = append(data, k+"="+v)
		}
	}
	if len(data) > 0 {
		b.WriteString(" Data: ")
		b.WriteString(strings.Join(data, ", "))
	}

	if len(r.Quotes) > 0 {
		fmt.Fprintf(&b, " Quote: %q", truncate(r.Quotes[0], QuoteLimit))
	}
	return b.String()
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}

// Savings compares the digest against the indented JSON of the same records.
type Savings struct {
	JSONChars   int `json:"json_chars" yaml:"json_chars"`
	DigestChars int `json:"digest_chars" yaml:"digest_chars"`
}

// Compare measures how much shorter text is than the JSON form of records.
func Compare(records []news.Record, text string) (Savings, error) {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return Savings{}, fmt.Errorf("failed to encode records: %w", err)
	}
	return Savings{JSONChars: len(data), DigestChars: len(text)}, nil
}

// Ratio is the fraction of JSON characters saved.
func (s Savings) Ratio() float64 {
	if s.JSONChars == 0 {
		return 0
	}
	return 1 - float64(s.DigestChars)/float64(s.JSONChars)
}

func (s Savings) String() string {
	return fmt.Sprintf("%s chars -> %s chars (%.1f%% saved)",
		humanize.Comma(int64(s.JSONChars)),
		humanize.Comma(int64(s.DigestChars)),
		s.Ratio()*100)
}
