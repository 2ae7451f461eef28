package repair

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokPunct
	tokString
	tokLiteral
)

type token struct {
	kind   tokenKind
	text   string
	offset int
	// Strings only.
	terminated bool
	rawControl int // offset of the first unescaped control byte, or -1
}

func (t token) punct(c byte) bool {
	return t.kind == tokPunct && t.text[0] == c
}

// lexer splits JSON-ish text into tokens without judging the grammar.
type lexer struct {
	s   string
	pos int
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isPunct(c byte) bool {
	switch c {
	case '{', '}', '[', ']', ':', ',':
		return true
	}
	return false
}

func (l *lexer) next() token {
	for l.pos < len(l.s) && isSpace(l.s[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.s) {
		return token{kind: tokEOF, offset: len(l.s)}
	}

	start := l.pos
	c := l.s[l.pos]
	switch {
	case isPunct(c):
		l.pos++
		return token{kind: tokPunct, text: l.s[start:l.pos], offset: start}
	case c == '"':
		return l.str(start)
	default:
		for l.pos < len(l.s) && !isSpace(l.s[l.pos]) && !isPunct(l.s[l.pos]) && l.s[l.pos] != '"' {
			l.pos++
		}
		return token{kind: tokLiteral, text: l.s[start:l.pos], offset: start}
	}
}

func (l *lexer) str(start int) token {
	t := token{kind: tokString, offset: start, rawControl: -1}
	l.pos++ // opening quote
	for l.pos < len(l.s) {
		c := l.s[l.pos]
		switch {
		case c == '\\':
			l.pos += 2
			continue
		case c == '"':
			l.pos++
			t.text = l.s[start:l.pos]
			t.terminated = true
			return t
		case c < 0x20 && t.rawControl < 0:
			t.rawControl = l.pos
		}
		l.pos++
	}
	l.pos = len(l.s)
	t.text = l.s[start:]
	return t
}

func describe(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return "string"
	default:
		return "'" + t.text + "'"
	}
}
