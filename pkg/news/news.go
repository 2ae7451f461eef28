// Package news defines the input items fed to extraction and the structured
// records extracted from them.
package news

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceItem is one already-fetched news article.
type SourceItem struct {
	Title     string `json:"title" yaml:"title"`
	Timestamp string `json:"time,omitempty" yaml:"time,omitempty"`
	Publisher string `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Body      string `json:"body" yaml:"body"`
}

// Record is one extracted news event. SourceHeadlines links the record back
// to the SourceItem titles it was built from.
type Record struct {
	Category          string     `json:"category" yaml:"category"`
	PrimaryEntity     string     `json:"primary_entity" yaml:"primary_entity"`
	SecondaryEntities StringList `json:"secondary_entities" yaml:"secondary_entities"`
	Summary           string     `json:"event_summary" yaml:"event_summary"`
	HardData          HardData   `json:"hard_data" yaml:"hard_data"`
	Quotes            StringList `json:"quotes" yaml:"quotes"`
	Sentiment         StringList `json:"sentiment_indicated" yaml:"sentiment_indicated"`
	Truncated         bool       `json:"is_truncated" yaml:"is_truncated"`
	SourceHeadlines   StringList `json:"source_headlines" yaml:"source_headlines"`
}

// Categories lists the category labels requested from the model.
var Categories = []string{
	"EARNINGS",
	"MERGERS_ACQUISITIONS",
	"MACRO_ECONOMY",
	"MARKET_MOVEMENTS",
	"GEOPOLITICS",
	"EXECUTIVE_MOVES",
	"OTHER",
}

// StringList is a list of strings that also accepts a single string or
// null when decoded. Models are not always consistent about arrays.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*l = nil
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = splitNonEmpty(s)
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("expected string or list: %w", err)
	}
	out := make(StringList, 0, len(raw))
	for _, r := range raw {
		if s, ok := scalarString(r); ok && s != "" {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = splitNonEmpty(node.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list", node.Line)
	}
}

func splitNonEmpty(s string) StringList {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return StringList{s}
}

// HardData holds numeric facts keyed by label. Decoding accepts any scalar
// value and stores its text form; null values are dropped.
type HardData map[string]string

// UnmarshalJSON implements json.Unmarshaler.
func (h *HardData) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*h = nil
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// A list or string here carries no usable key/value pairs.
		*h = nil
		return nil
	}
	out := make(HardData, len(raw))
	for k, v := range raw {
		if s, ok := scalarString(v); ok && s != "" {
			out[k] = s
		}
	}
	*h = out
	return nil
}

// Keys returns the keys in sorted order.
func (h HardData) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scalarString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case '{', '[':
		return string(raw), true
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return string(raw), true
}
