// Package chunker partitions source items into token-bounded batches.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jmylchreest/distill/pkg/news"
	"github.com/jmylchreest/distill/pkg/tokens"
)

// DefaultBudget is the per-chunk token budget used when none is configured.
const DefaultBudget = 10_000

// ItemOverhead is the estimated prompt framing cost of one item, in tokens.
const ItemOverhead = 20

// Chunk is an ordered, non-empty batch of items.
type Chunk struct {
	Index  int
	Items  []news.SourceItem
	Tokens int
}

// ItemTokens estimates the prompt cost of one item.
func ItemTokens(item news.SourceItem) int {
	return tokens.Estimate(item.Body+item.Title+item.Publisher+item.Timestamp) + ItemOverhead
}

// Split slices every item whose body exceeds the character equivalent of
// budget into consecutive parts titled "[Part k/n] <title>". Concatenating
// the part bodies in order yields the original body.
func Split(items []news.SourceItem, budget int) []news.SourceItem {
	limit := tokens.Budget(budget)
	if limit <= 0 {
		return append([]news.SourceItem(nil), items...)
	}

	out := make([]news.SourceItem, 0, len(items))
	for _, item := range items {
		if len(item.Body) <= limit {
			out = append(out, item)
			continue
		}
		windows := slice(item.Body, limit)
		for k, w := range windows {
			part := item
			part.Title = PartTitle(item.Title, k+1, len(windows))
			part.Body = w
			out = append(out, part)
		}
	}
	return out
}

// PartTitle formats the title of part k of n.
func PartTitle(title string, k, n int) string {
	return fmt.Sprintf("[Part %d/%d] %s", k, n, title)
}

// slice cuts s into windows of at most limit bytes without splitting a
// UTF-8 sequence. A window never ends up empty.
func slice(s string, limit int) []string {
	var windows []string
	for len(s) > 0 {
		end := limit
		if end >= len(s) {
			windows = append(windows, s)
			break
		}
		for end > 0 && !utf8.RuneStart(s[end]) {
			end--
		}
		if end == 0 {
			_, size := utf8.DecodeRuneInString(s)
			end = size
		}
		windows = append(windows, s[:end])
		s = s[end:]
	}
	return windows
}

// Join reconstructs a body from its parts.
func Join(parts []news.SourceItem) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Body)
	}
	return b.String()
}

// Chunks splits oversized items and then packs items greedily, closing a
// chunk when the next item would push it over budget. A chunk always holds
// at least one item, so a single item larger than budget gets its own chunk.
func Chunks(items []news.SourceItem, budget int) []Chunk {
	flat := Split(items, budget)

	var chunks []Chunk
	var cur Chunk
	for _, item := range flat {
		cost := ItemTokens(item)
		if budget > 0 && len(cur.Items) > 0 && cur.Tokens+cost > budget {
			chunks = append(chunks, cur)
			cur = Chunk{Index: len(chunks)}
		}
		cur.Items = append(cur.Items, item)
		cur.Tokens += cost
	}
	if len(cur.Items) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}
