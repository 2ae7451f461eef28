// Package fidelity decides which source items are represented in a set of
// extraction records, by fuzzy matching item titles against the records'
// declared source headlines.
package fidelity

import (
	"strings"
	"unicode"

	"github.com/jmylchreest/distill/pkg/news"
)

// Overlap is the minimum fraction of title tokens that must appear in a
// headline for the two to match.
const Overlap = 0.85

// AcceptRatio is the coverage at which an extraction attempt is accepted.
const AcceptRatio = 0.95

// Normalize lowercases s, drops everything but letters, digits and spaces
// and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

type headline struct {
	norm   string
	tokens map[string]struct{}
}

func newHeadline(norm string) headline {
	h := headline{norm: norm, tokens: make(map[string]struct{})}
	for _, tok := range strings.Fields(norm) {
		h.tokens[tok] = struct{}{}
	}
	return h
}

// Index holds the normalized headlines declared by a set of records.
type Index struct {
	headlines []headline
}

// NewIndex builds an index over the source headlines of records.
func NewIndex(records []news.Record) *Index {
	idx := &Index{}
	for _, r := range records {
		for _, h := range r.SourceHeadlines {
			if norm := Normalize(h); norm != "" {
				idx.headlines = append(idx.headlines, newHeadline(norm))
			}
		}
	}
	return idx
}

// Covers reports whether title matches any indexed headline.
func (idx *Index) Covers(title string) bool {
	norm := Normalize(title)
	if norm == "" {
		return false
	}
	t := newHeadline(norm)
	for _, h := range idx.headlines {
		if match(t, h) {
			return true
		}
	}
	return false
}

// Matches reports whether a source title and a declared headline refer to
// the same item: one contains the other, or at least
// Overlap of the title's distinct words appear in the headline.
func Matches(title, declared string) bool {
	nt, nh := Normalize(title), Normalize(declared)
	if nt == "" || nh == "" {
		return false
	}
	return match(newHeadline(nt), newHeadline(nh))
}

func match(t, h headline) bool {
	if strings.Contains(t.norm, h.norm) || strings.Contains(h.norm, t.norm) {
		return true
	}
	if len(t.tokens) == 0 {
		return false
	}
	shared := 0
	for tok := range t.tokens {
		if _, ok := h.tokens[tok]; ok {
			shared++
		}
	}
	return float64(shared)/float64(len(t.tokens)) >= Overlap
}

// Missing returns the items whose titles no record declares.
func Missing(items []news.SourceItem, records []news.Record) []news.SourceItem {
	idx := NewIndex(records)
	var missing []news.SourceItem
	for _, it := range items {
		if !idx.Covers(it.Title) {
			missing = append(missing, it)
		}
	}
	return missing
}

// Relevant returns the records that declare at least one of the items.
func Relevant(items []news.SourceItem, records []news.Record) []news.Record {
	var out []news.Record
	for _, r := range records {
		idx := NewIndex([]news.Record{r})
		for _, it := range items {
			if idx.Covers(it.Title) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Report summarizes coverage of a set of items.
type Report struct {
	Total   int      `json:"total" yaml:"total"`
	Covered int      `json:"covered" yaml:"covered"`
	Missing []string `json:"missing,omitempty" yaml:"missing,omitempty"`
	Score   float64  `json:"score" yaml:"score"`
}

// Complete reports whether every item is covered.
func (r Report) Complete() bool {
	return r.Covered == r.Total
}

// Accepted reports whether coverage reaches AcceptRatio.
func (r Report) Accepted() bool {
	return r.Score >= AcceptRatio
}

// Measure computes coverage of items by records. Items whose titles
// normalize to the same text count once, so a repeated headline cannot hold
// coverage below the accept ratio.
func Measure(items []news.SourceItem, records []news.Record) Report {
	idx := NewIndex(records)
	seen := make(map[string]struct{}, len(items))

	var rep Report
	for _, it := range items {
		key := Normalize(it.Title)
		if key == "" {
			key = it.Title
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		rep.Total++
		if idx.Covers(it.Title) {
			rep.Covered++
		} else {
			rep.Missing = append(rep.Missing, it.Title)
		}
	}

	rep.Score = 1
	if rep.Total > 0 {
		rep.Score = float64(rep.Covered) / float64(rep.Total)
	}
	return rep
}
