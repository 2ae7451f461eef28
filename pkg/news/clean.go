package news

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CleanBody strips markup from the content paragraphs of an article and
// joins them into a single whitespace-normalized body.
func CleanBody(paragraphs []string) string {
	parts := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		if text := stripMarkup(p); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func stripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapse(s)
	}
	doc.Find("script, style, noscript").Remove()
	return collapse(doc.Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
