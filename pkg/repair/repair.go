// Package repair turns malformed model output into extraction records.
//
// Decode runs three stages in order: a strict parse, a structural repair
// followed by a second parse, and finally salvage of individually
// well-formed records.
package repair

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripFences removes a markdown code fence around the payload. Text before
// the opening fence is dropped, as is the info string after it. A missing
// closing fence is tolerated.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// Locate trims prose around the payload: everything before the first '{'
// (or before a '[' that opens an array of objects) and everything after the
// last closing bracket. A payload that never closes is returned from its
// opening bracket onwards.
func Locate(s string) string {
	start := strings.IndexByte(s, '{')
	if arr := strings.IndexByte(s, '['); arr >= 0 && (start < 0 || arr < start) {
		if strings.HasPrefix(strings.TrimLeft(s[arr+1:], " \t\r\n"), "{") {
			start = arr
		}
	}
	if start < 0 {
		return strings.TrimSpace(s)
	}

	depth, lastClose := 0, -1
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			lastClose = i
		}
	}

	if lastClose < 0 || inString || depth > 0 {
		return strings.TrimSpace(s[start:])
	}
	return s[start : lastClose+1]
}

// Repair applies structural fixes to s in a single pass over its tokens.
// String contents are never altered except to escape raw control characters.
//
// The fixes are: commas are inserted between adjacent values (including
// "}{" and "][") and between a value and the next key; trailing and repeated
// commas are dropped; a missing colon between a key and its value is
// inserted; bare words are quoted, Python-style literals are mapped to JSON;
// an unterminated string is closed and open brackets are closed in stack
// order. Several top-level values are wrapped in an array.
//
// The result is not guaranteed to be valid; callers parse it and fall back
// to Salvage.
func Repair(s string) string {
	out, _ := repair(s)
	return out
}

// repair also reports whether the input stopped inside an object that is
// itself a list element, i.e. whether the last record was cut off.
func repair(s string) (string, bool) {
	r := rewriter{top: stValue}
	l := lexer{s: s}
	for {
		t := l.next()
		if t.kind == tokEOF {
			break
		}
		r.token(t)
	}

	cut := false
	for i := 1; i < len(r.stack); i++ {
		if r.stack[i].open == '{' && r.stack[i-1].open == '[' {
			cut = true
		}
	}
	r.finish()

	out := r.out.String()
	if r.topCount > 1 {
		out = "[" + out + "]"
	}
	return out, cut
}

type state int

const (
	stKey   state = iota // object: expecting a key or '}'
	stColon              // object: key written, expecting ':'
	stValue              // expecting a value
	stAfter              // value written, expecting ',' or a closer
)

type frame struct {
	open  byte
	state state
}

type rewriter struct {
	out          strings.Builder
	stack        []frame
	top          state
	topCount     int
	pendingComma bool
}

func (r *rewriter) cur() *state {
	if len(r.stack) == 0 {
		return &r.top
	}
	return &r.stack[len(r.stack)-1].state
}

func (r *rewriter) inObject() bool {
	return len(r.stack) > 0 && r.stack[len(r.stack)-1].open == '{'
}

func (r *rewriter) nextElement() {
	r.pendingComma = true
	if r.inObject() {
		*r.cur() = stKey
	} else {
		*r.cur() = stValue
	}
}

func (r *rewriter) token(t token) {
	st := r.cur()
	switch {
	case t.punct(','):
		if *st == stAfter {
			r.nextElement()
		}
		return
	case t.punct(':'):
		if r.inObject() && *st == stColon {
			r.out.WriteByte(':')
			*st = stValue
		}
		return
	case t.punct('}'):
		r.close('{')
		return
	case t.punct(']'):
		r.close('[')
		return
	}

	if *st == stAfter {
		r.nextElement()
	}
	if r.pendingComma {
		r.out.WriteByte(',')
		r.pendingComma = false
	}

	if r.inObject() {
		switch *st {
		case stKey:
			if t.kind == tokString || t.kind == tokLiteral {
				r.writeKey(t)
				*st = stColon
				return
			}
		case stColon:
			r.out.WriteByte(':')
			*st = stValue
		}
	}
	r.value(t)
}

func (r *rewriter) value(t token) {
	if len(r.stack) == 0 {
		r.topCount++
	}
	switch t.kind {
	case tokString:
		writeString(&r.out, t)
		*r.cur() = stAfter
	case tokLiteral:
		r.out.WriteString(literal(t.text))
		*r.cur() = stAfter
	default:
		open := t.text[0]
		r.out.WriteByte(open)
		st := stValue
		if open == '{' {
			st = stKey
		}
		r.stack = append(r.stack, frame{open: open, state: st})
	}
}

func (r *rewriter) writeKey(t token) {
	if t.kind == tokString {
		writeString(&r.out, t)
		return
	}
	quoted, _ := json.Marshal(t.text)
	r.out.Write(quoted)
}

// close pops frames down to the nearest frame opened with open. A closer
// with no matching opener is dropped.
func (r *rewriter) close(open byte) {
	idx := -1
	for i := len(r.stack) - 1; i >= 0; i-- {
		if r.stack[i].open == open {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	for len(r.stack) > idx {
		r.pop()
	}
}

func (r *rewriter) pop() {
	f := r.stack[len(r.stack)-1]
	r.pendingComma = false
	if f.open == '{' {
		switch f.state {
		case stColon:
			r.out.WriteString(":null")
		case stValue:
			r.out.WriteString("null")
		}
		r.out.WriteByte('}')
	} else {
		r.out.WriteByte(']')
	}
	r.stack = r.stack[:len(r.stack)-1]
	*r.cur() = stAfter
}

func (r *rewriter) finish() {
	r.pendingComma = false
	for len(r.stack) > 0 {
		r.pop()
	}
}

// writeString writes a string token as a valid JSON string: raw control
// characters are escaped, invalid escapes keep their backslash as a literal
// character, and an unterminated string is closed.
func writeString(b *strings.Builder, t token) {
	body := t.text[1:]
	if t.terminated {
		body = body[:len(body)-1]
	}

	b.WriteByte('"')
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\':
			if i+1 >= len(body) {
				continue
			}
			n := body[i+1]
			switch n {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
				b.WriteByte(c)
				b.WriteByte(n)
				i++
			case 'u':
				if i+6 <= len(body) && isHex4(body[i+2:i+6]) {
					b.WriteString(body[i : i+6])
					i += 5
				} else {
					b.WriteString(`\\`)
				}
			default:
				b.WriteString(`\\`)
			}
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20:
			fmt.Fprintf(b, `\u%04x`, c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
}

func isHex4(s string) bool {
	for i := 0; i < 4; i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

func literal(text string) string {
	if json.Valid([]byte(text)) {
		return text
	}
	switch text {
	case "True":
		return "true"
	case "False":
		return "false"
	case "None", "NULL", "Null", "nil", "NaN", "Infinity", "-Infinity", "undefined":
		return "null"
	}
	quoted, _ := json.Marshal(text)
	return string(quoted)
}
