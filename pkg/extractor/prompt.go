// Package extractor drives chunked, self-correcting extraction of news
// records over a pooled generation client.
package extractor

import (
	"fmt"
	"strings"

	"github.com/jmylchreest/distill/pkg/news"
)

const promptRole = `You are a high-fidelity data extraction engine. Convert unstructured news text into a structured, machine-readable JSON dataset.`

const promptConstraints = `STRICT CONSTRAINTS
1. SOURCE TRACKING: every extracted item MUST list in "source_headlines" the exact inventory headlines it was built from.
2. NO DATA LOSS: every headline in the inventory must appear in the "source_headlines" of at least one item.
3. ONE ITEM PER HEADLINE: do not merge headlines. Every headline gets its own entry in "news_items".
4. DUPLICATES: if stories are similar, still create a separate entry for each headline.
5. NO SYNTHESIS: extract facts, numbers, tickers and entities exactly as written.`

const promptSchema = `OUTPUT FORMAT
Return one JSON object with this schema:
{
  "news_items": [
    {
      "category": "String (%s)",
      "primary_entity": "String (company, ticker or country)",
      "secondary_entities": ["String"],
      "event_summary": "String (fact-based summary)",
      "hard_data": {"key": "value"},
      "quotes": ["String"],
      "sentiment_indicated": ["String"],
      "is_truncated": false,
      "source_headlines": ["Exact headline from the inventory"]
    }
  ]
}
Start with '{' and end with '}'. No commentary. Use null for fields with no data.`

// PromptInput describes one extraction request.
type PromptInput struct {
	Label   string
	Total   int
	Items   []news.SourceItem
	Context string
}

// Prompt builds the extraction prompt: the headline inventory as a numbered
// checklist, the output schema and the source bodies.
func Prompt(in PromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "NOTICE: this is part %s of %d.\n\n", in.Label, in.Total)
	b.WriteString(promptRole)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "HEADLINE INVENTORY (%d, all mandatory)\n", len(in.Items))
	for i, it := range in.Items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, it.Title)
	}
	b.WriteString("\n")

	b.WriteString(promptConstraints)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, promptSchema, strings.Join(news.Categories, ", "))
	b.WriteString("\n\n")

	if in.Context != "" {
		b.WriteString("CONTEXT\n")
		b.WriteString(in.Context)
		b.WriteString("\n\n")
	}

	b.WriteString("SOURCES\n")
	for i, it := range in.Items {
		ts := it.Timestamp
		if ts == "" {
			ts = "N/A"
		}
		fmt.Fprintf(&b, "--- SOURCE %d ---\nTITLE: %s\nTIME: %s\n", i+1, it.Title, ts)
		if it.Publisher != "" {
			fmt.Fprintf(&b, "PUBLISHER: %s\n", it.Publisher)
		}
		fmt.Fprintf(&b, "CONTENT: %s\n\n", it.Body)
	}
	return b.String()
}
