package chunker

import (
	"strings"
	"testing"

	"github.com/jmylchreest/distill/pkg/news"
	"github.com/jmylchreest/distill/pkg/tokens"
)

func item(title string, bodyLen int) news.SourceItem {
	return news.SourceItem{Title: title, Publisher: "Wire", Timestamp: "10:00", Body: strings.Repeat("a", bodyLen)}
}

func TestSplit_Lossless(t *testing.T) {
	body := strings.Repeat("0123456789", 120) // 1200 bytes
	items := []news.SourceItem{{Title: "Long story", Body: body}, item("short", 10)}

	out := Split(items, 100) // 250 chars per part
	if len(out) != 6 {
		t.Fatalf("expected 5 parts plus 1 short item, got %d", len(out))
	}
	if out[0].Title != "[Part 1/5] Long story" {
		t.Errorf("unexpected part title %q", out[0].Title)
	}
	if out[4].Title != "[Part 5/5] Long story" {
		t.Errorf("unexpected part title %q", out[4].Title)
	}
	if got := Join(out[:5]); got != body {
		t.Error("joined parts do not reconstruct the original body")
	}
	for _, p := range out[:5] {
		if len(p.Body) > tokens.Budget(100) {
			t.Errorf("part body %d exceeds limit", len(p.Body))
		}
	}
	if out[5].Title != "short" {
		t.Errorf("expected short item untouched, got %q", out[5].Title)
	}
}

func TestSplit_RuneSafe(t *testing.T) {
	body := strings.Repeat("é€", 200) // multi-byte runes
	out := Split([]news.SourceItem{{Title: "t", Body: body}}, 10)

	if len(out) < 2 {
		t.Fatalf("expected multiple parts, got %d", len(out))
	}
	for _, p := range out {
		if !strings.HasPrefix(p.Title, "[Part ") {
			t.Errorf("unexpected title %q", p.Title)
		}
		if !isValidUTF8(p.Body) {
			t.Errorf("part %q is not valid UTF-8", p.Title)
		}
	}
	if Join(out) != body {
		t.Error("rune-safe split lost content")
	}
}

func isValidUTF8(s string) bool {
	return strings.ToValidUTF8(s, "�") == s
}

func TestChunks_Budget(t *testing.T) {
	items := make([]news.SourceItem, 0, 12)
	for i := 0; i < 12; i++ {
		items = append(items, item(strings.Repeat("t", i+1), 500))
	}

	budget := 1000
	chunks := Chunks(items, budget)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}

	seen := 0
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("expected index %d, got %d", i, c.Index)
		}
		if len(c.Items) == 0 {
			t.Errorf("chunk %d is empty", i)
		}
		if c.Tokens > budget {
			t.Errorf("chunk %d has %d tokens over budget %d", i, c.Tokens, budget)
		}
		sum := 0
		for _, it := range c.Items {
			sum += ItemTokens(it)
			if it.Title != items[seen].Title {
				t.Errorf("expected order preserved at %d", seen)
			}
			seen++
		}
		if sum != c.Tokens {
			t.Errorf("chunk %d token total %d does not match items %d", i, c.Tokens, sum)
		}
	}
	if seen != len(items) {
		t.Errorf("expected %d items across chunks, got %d", len(items), seen)
	}
}

func TestChunks_OversizedItemGetsOwnChunk(t *testing.T) {
	// A body under the split limit can still exceed the budget once the
	// title and overhead are added.
	big := news.SourceItem{Title: strings.Repeat("T", 400), Body: strings.Repeat("b", 250)}
	chunks := Chunks([]news.SourceItem{item("a", 10), big, item("c", 10)}, 100)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[1].Items) != 1 || chunks[1].Tokens <= 100 {
		t.Errorf("expected oversized item alone in chunk 1, got %+v", chunks[1])
	}
}

func TestChunks_EmptyAndUnbounded(t *testing.T) {
	if got := Chunks(nil, 100); len(got) != 0 {
		t.Errorf("expected no chunks for no items, got %d", len(got))
	}
	items := []news.SourceItem{item("a", 5000), item("b", 5000)}
	got := Chunks(items, 0)
	if len(got) != 1 || len(got[0].Items) != 2 {
		t.Errorf("expected single unbounded chunk, got %+v", got)
	}
}

func TestItemTokens(t *testing.T) {
	it := news.SourceItem{Title: "abc", Publisher: "de", Timestamp: "f", Body: "ghij"}
	want := tokens.Estimate("ghijabcdef") + ItemOverhead
	if got := ItemTokens(it); got != want {
		t.Errorf("expected %d, got %d", want, got)
	}
}
