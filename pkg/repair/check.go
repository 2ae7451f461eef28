package repair

import (
	"encoding/json"
	"fmt"
)

// ParseError locates the first point where a payload stops being valid
// JSON.
type ParseError struct {
	Offset   int
	Expected string
	Found    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid payload at offset %d: expected %s, found %s", e.Offset, e.Expected, e.Found)
}

// Check validates s as a whitespace-separated stream of one or more JSON
// values. It returns nil when s is valid.
func Check(s string) *ParseError {
	c := checker{lex: lexer{s: s}}
	c.advance()
	if c.tok.kind == tokEOF {
		return c.fail("value")
	}
	for c.tok.kind != tokEOF {
		if err := c.value(); err != nil {
			return err
		}
	}
	return nil
}

type checker struct {
	lex lexer
	tok token
}

func (c *checker) advance() {
	c.tok = c.lex.next()
}

func (c *checker) fail(expected string) *ParseError {
	return &ParseError{Offset: c.tok.offset, Expected: expected, Found: describe(c.tok)}
}

func (c *checker) str() *ParseError {
	t := c.tok
	switch {
	case !t.terminated:
		return &ParseError{Offset: len(c.lex.s), Expected: `'"'`, Found: "end of input"}
	case t.rawControl >= 0:
		return &ParseError{Offset: t.rawControl, Expected: "escaped control character", Found: "control character"}
	case !json.Valid([]byte(t.text)):
		return &ParseError{Offset: t.offset, Expected: "valid string escape", Found: "string"}
	}
	c.advance()
	return nil
}

func (c *checker) value() *ParseError {
	switch {
	case c.tok.kind == tokString:
		return c.str()
	case c.tok.kind == tokLiteral:
		if !json.Valid([]byte(c.tok.text)) {
			return c.fail("value")
		}
		c.advance()
		return nil
	case c.tok.punct('{'):
		return c.object()
	case c.tok.punct('['):
		return c.array()
	default:
		return c.fail("value")
	}
}

func (c *checker) object() *ParseError {
	c.advance()
	if c.tok.punct('}') {
		c.advance()
		return nil
	}
	for {
		if c.tok.kind != tokString {
			return c.fail("string key")
		}
		if err := c.str(); err != nil {
			return err
		}
		if !c.tok.punct(':') {
			return c.fail("':'")
		}
		c.advance()
		if err := c.value(); err != nil {
			return err
		}
		switch {
		case c.tok.punct(','):
			c.advance()
		case c.tok.punct('}'):
			c.advance()
			return nil
		default:
			return c.fail("',' or '}'")
		}
	}
}

func (c *checker) array() *ParseError {
	c.advance()
	if c.tok.punct(']') {
		c.advance()
		return nil
	}
	for {
		if err := c.value(); err != nil {
			return err
		}
		switch {
		case c.tok.punct(','):
			c.advance()
		case c.tok.punct(']'):
			c.advance()
			return nil
		default:
			return c.fail("',' or ']'")
		}
	}
}
