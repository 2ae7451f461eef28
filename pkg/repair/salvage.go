package repair

import (
	"encoding/json"
	"strings"

	"github.com/jmylchreest/distill/pkg/news"
)

const recordMarker = `"category"`

// Salvage recovers every individually well-formed record from s. Each
// occurrence of a '{' opening a "category" key starts a candidate span
// that runs to its matching brace; spans that do not parse are discarded
// and reported, and the scan moves on to the next marker.
func Salvage(s string) ([]news.Record, []*ParseError) {
	var records []news.Record
	var discarded []*ParseError

	pos := 0
	for {
		start := nextMarker(s, pos)
		if start < 0 {
			break
		}
		end := matchBrace(s, start)
		if end < 0 {
			discarded = append(discarded, &ParseError{Offset: len(s), Expected: "'}'", Found: "end of input"})
			pos = start + 1
			continue
		}

		span := s[start:end]
		if perr := Check(span); perr != nil {
			perr.Offset += start
			discarded = append(discarded, perr)
			pos = start + 1
			continue
		}

		var r news.Record
		if err := json.Unmarshal([]byte(span), &r); err != nil {
			perr := fromJSON(err)
			perr.Offset += start
			discarded = append(discarded, perr)
			pos = start + 1
			continue
		}
		records = append(records, r)
		pos = end
	}
	return records, discarded
}

// nextMarker returns the offset of the next '{' at or after pos that is
// followed by optional whitespace and the record marker key.
func nextMarker(s string, pos int) int {
	for pos < len(s) {
		i := strings.IndexByte(s[pos:], '{')
		if i < 0 {
			return -1
		}
		start := pos + i
		rest := strings.TrimLeft(s[start+1:], " \t\r\n")
		if strings.HasPrefix(rest, recordMarker) {
			after := strings.TrimLeft(rest[len(recordMarker):], " \t\r\n")
			if strings.HasPrefix(after, ":") {
				return start
			}
		}
		pos = start + 1
	}
	return -1
}

// matchBrace returns the offset just past the brace closing the one at
// start, ignoring braces inside strings, or -1 if it never closes.
func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
