package repair

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", ` {"a":1} `, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n[1]\n```", `[1]`},
		{"prose before", "Here it is:\n```json\n{\"a\":1}\n```\nThanks", `{"a":1}`},
		{"unclosed fence", "```json\n{\"a\":", `{"a":`},
		{"inline", "```json{\"a\":1}```", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFences(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLocate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean", `{"a":1}`, `{"a":1}`},
		{"prose around", `Sure! {"a":"}"} hope this helps`, `{"a":"}"}`},
		{"array of objects", `Result: [ {"a":1} ] done`, `[ {"a":1} ]`},
		{"bracket in prose", `Notes [draft]: {"a":1}`, `{"a":1}`},
		{"concatenated", `{"a":1}{"b":2} end`, `{"a":1}{"b":2}`},
		{"truncated", `ok {"a":[1,2`, `{"a":[1,2`},
		{"nothing", `  no json here `, `no json here`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Locate(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRepair(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing comma object", `{"a":1,}`, `{"a":1}`},
		{"trailing comma array", `[1,2,]`, `[1,2]`},
		{"repeated comma", `[1,,2]`, `[1,2]`},
		{"adjacent objects", `{"a":1}{"b":2}`, `[{"a":1},{"b":2}]`},
		{"adjacent objects in list", `[{"a":1} {"b":2}]`, `[{"a":1},{"b":2}]`},
		{"adjacent arrays", `[1][2]`, `[[1],[2]]`},
		{"missing comma across lines", "{\"a\": 1\n\"b\": 2}", `{"a":1,"b":2}`},
		{"missing colon", `{"key" "value"}`, `{"key":"value"}`},
		{"unterminated string", `{"a":"xy`, `{"a":"xy"}`},
		{"unclosed nesting", `{"a":[1,{"b":2`, `{"a":[1,{"b":2}]}`},
		{"dangling key", `{"a":1,"b"`, `{"a":1,"b":null}`},
		{"dangling colon", `{"a":}`, `{"a":null}`},
		{"python literals", `{"a":True,"b":None,"c":False}`, `{"a":true,"b":null,"c":false}`},
		{"bare words", `{category: EARNINGS}`, `{"category":"EARNINGS"}`},
		{"raw newline in string", "{\"a\":\"x\ny\"}", `{"a":"x\ny"}`},
		{"invalid escape", `{"a":"it\'s"}`, `{"a":"it\\'s"}`},
		{"stray closer", `{"a":1}]`, `{"a":1}`},
		{"mismatched closer", `{"a":[1}`, `{"a":[1]}`},
		{"braces inside strings", `{"a":"}{,"}`, `{"a":"}{,"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Repair(tt.in)
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
			if !json.Valid([]byte(got)) {
				t.Errorf("repaired output is not valid JSON: %s", got)
			}
		})
	}
}

func TestRepair_ParsesToRecordValues(t *testing.T) {
	var obj map[string]int
	if err := json.Unmarshal([]byte(Repair(`{"a":1,}`)), &obj); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !reflect.DeepEqual(obj, map[string]int{"a": 1}) {
		t.Errorf("expected {a:1}, got %v", obj)
	}

	var list []map[string]int
	if err := json.Unmarshal([]byte(Repair(`{"a":1}{"b":2}`)), &list); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(list) != 2 || list[0]["a"] != 1 || list[1]["b"] != 2 {
		t.Errorf("expected two objects, got %v", list)
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		offset   int
		expected string
		found    string
	}{
		{"trailing comma", `{"a":1,}`, 7, "string key", "'}'"},
		{"missing colon", `{"a" 1}`, 5, "':'", "'1'"},
		{"unterminated string", `{"a":"x`, 7, `'"'`, "end of input"},
		{"unclosed array", `[1,2`, 4, "',' or ']'", "end of input"},
		{"bad literal", `{"a":tru}`, 5, "value", "'tru'"},
		{"empty", ``, 0, "value", "end of input"},
		{"raw control", "[\"a\tb\"]", 3, "escaped control character", "control character"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.in)
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Offset != tt.offset || err.Expected != tt.expected || err.Found != tt.found {
				t.Errorf("expected {%d %s %s}, got {%d %s %s}", tt.offset, tt.expected, tt.found, err.Offset, err.Expected, err.Found)
			}
		})
	}

	for _, valid := range []string{`{}`, `[]`, `{"a":[1,{"b":null}]}`, `{"a":1} {"b":2}`, `"s"`, `-1.5e3`} {
		if err := Check(valid); err != nil {
			t.Errorf("Check(%s) = %v, expected nil", valid, err)
		}
	}
}

func TestParse_Shapes(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		categories []string
	}{
		{"envelope", `{"news_items":[{"category":"A"},{"category":"B"}]}`, []string{"A", "B"}},
		{"bare array", `[{"category":"A"},{"category":"B"}]`, []string{"A", "B"}},
		{"single record", `{"category":"A","source_headlines":["h"]}`, []string{"A"}},
		{"stream", `{"category":"A"} {"category":"B"}`, []string{"A", "B"}},
		{"non objects skipped", `[1, {"category":"A"}, "x", null]`, []string{"A"}},
		{"empty envelope", `{"news_items":[]}`, nil},
		{"items key", `{"items":[{"category":"A"}]}`, []string{"A"}},
		{"bad record skipped", `[{"category":"A","is_truncated":"maybe"},{"category":"B"}]`, []string{"B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			var got []string
			for _, r := range records {
				got = append(got, r.Category)
			}
			if !reflect.DeepEqual(got, tt.categories) {
				t.Errorf("expected %v, got %v", tt.categories, got)
			}
		})
	}
}

func TestParse_Error(t *testing.T) {
	_, err := Parse(`{"news_items":[{"category":"A",}]}`)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if perr.Offset != 31 {
		t.Errorf("expected offset 31, got %d", perr.Offset)
	}
}

const truncatedPayload = `{"news_items": [
  {"category": "EARNINGS", "event_summary": "ACME beat.", "source_headlines": ["ACME beats estimates"]},
  {"category": "OTHER", "event_summary": "Oil prices jum`

func TestSalvage(t *testing.T) {
	records, discarded := Salvage(truncatedPayload)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Category != "EARNINGS" || records[0].SourceHeadlines[0] != "ACME beats estimates" {
		t.Errorf("unexpected record %+v", records[0])
	}
	if len(discarded) != 1 || discarded[0].Found != "end of input" {
		t.Errorf("expected truncated span to be discarded, got %+v", discarded)
	}
}

func TestSalvage_SkipsBrokenMiddleRecord(t *testing.T) {
	in := `{"category":"A"} {"category":"B" "x":} {"category": "C", "quotes": ["has } brace"]}`
	records, discarded := Salvage(in)

	var got []string
	for _, r := range records {
		got = append(got, r.Category)
	}
	if !reflect.DeepEqual(got, []string{"A", "C"}) {
		t.Errorf("expected [A C], got %v", got)
	}
	if len(discarded) != 1 {
		t.Fatalf("expected one discarded span, got %d", len(discarded))
	}
	if discarded[0].Offset != 33 {
		t.Errorf("expected error offset 33 in the full text, got %d", discarded[0].Offset)
	}
}

func TestSalvage_TruncatedStringHidesNoMarker(t *testing.T) {
	in := `{"category":"A","event_summary":"cut{"category":"B","event_summary":"x"}`
	records, _ := Salvage(in)
	if len(records) != 1 || records[0].Category != "B" {
		t.Errorf("expected record B to be recovered, got %+v", records)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		method     Method
		categories []string
	}{
		{
			name:       "strict",
			in:         `{"news_items":[{"category":"A"}]}`,
			method:     MethodStrict,
			categories: []string{"A"},
		},
		{
			name:       "fenced with prose",
			in:         "Here you go:\n```json\n{\"news_items\":[{\"category\":\"A\"}]}\n```",
			method:     MethodStrict,
			categories: []string{"A"},
		},
		{
			name:       "repaired",
			in:         `{"news_items":[{"category":"A",},{"category":"B"}],}`,
			method:     MethodRepaired,
			categories: []string{"A", "B"},
		},
		{
			name:       "truncated drops cut record",
			in:         truncatedPayload,
			method:     MethodRepaired,
			categories: []string{"EARNINGS"},
		},
		{
			name:       "envelope cut after list keeps records",
			in:         `{"news_items":[{"category":"A"},{"category":"B"}]`,
			method:     MethodRepaired,
			categories: []string{"A", "B"},
		},
		{
			name:       "salvaged",
			in:         `{"news_items":[{"category":"A","source_headlines":["a"]}, {"category":"B",{"bad"}}]}`,
			method:     MethodSalvaged,
			categories: []string{"A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, method, err := Decode(tt.in)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if method != tt.method {
				t.Errorf("expected method %s, got %s", tt.method, method)
			}
			var got []string
			for _, r := range records {
				got = append(got, r.Category)
			}
			if !reflect.DeepEqual(got, tt.categories) {
				t.Errorf("expected %v, got %v", tt.categories, got)
			}
		})
	}
}

func TestDecode_NoPayload(t *testing.T) {
	_, method, err := Decode("I'm sorry, I can't help with that.")
	if err == nil {
		t.Fatal("expected error for prose answer")
	}
	if method != MethodNone {
		t.Errorf("expected method none, got %s", method)
	}
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Errorf("expected *ParseError, got %T", err)
	}
}
