package repair

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/jmylchreest/distill/pkg/news"
)

// envelopeKeys are the object keys that may hold the record list.
var envelopeKeys = []string{"news_items", "items", "records"}

// Parse decodes s into records. It accepts an object with a "news_items"
// list, a bare array, a single record object, or several such values
// concatenated. Elements that are not record objects are skipped.
func Parse(s string) ([]news.Record, error) {
	if perr := Check(s); perr != nil {
		return nil, perr
	}

	dec := json.NewDecoder(strings.NewReader(s))
	var records []news.Record
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fromJSON(err)
		}
		records = appendRecords(records, raw)
	}
	return records, nil
}

func appendRecords(dst []news.Record, raw json.RawMessage) []news.Record {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return dst
	}

	switch raw[0] {
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return dst
		}
		for _, e := range elems {
			e = bytes.TrimSpace(e)
			if len(e) > 0 && e[0] == '{' {
				dst = appendRecord(dst, e)
			}
		}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return dst
		}
		for _, key := range envelopeKeys {
			if v, ok := fields[key]; ok {
				if v = bytes.TrimSpace(v); len(v) > 0 && v[0] == '[' {
					return appendRecords(dst, v)
				}
			}
		}
		dst = appendRecord(dst, raw)
	}
	return dst
}

func appendRecord(dst []news.Record, raw json.RawMessage) []news.Record {
	var r news.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return dst
	}
	if r.Category == "" && r.Summary == "" && r.PrimaryEntity == "" && len(r.SourceHeadlines) == 0 {
		return dst
	}
	return append(dst, r)
}

func fromJSON(err error) *ParseError {
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return &ParseError{Offset: int(syn.Offset), Expected: "valid JSON", Found: syn.Error()}
	}
	var typ *json.UnmarshalTypeError
	if errors.As(err, &typ) {
		return &ParseError{Offset: int(typ.Offset), Expected: typ.Type.String(), Found: typ.Value}
	}
	return &ParseError{Expected: "valid JSON", Found: err.Error()}
}
