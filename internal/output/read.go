package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/distill/pkg/news"
)

// recordEnvelope matches both a written run result and a raw model payload.
type recordEnvelope struct {
	Records   []news.Record `json:"records" yaml:"records"`
	NewsItems []news.Record `json:"news_items" yaml:"news_items"`
}

func (e recordEnvelope) records() []news.Record {
	if len(e.Records) > 0 {
		return e.Records
	}
	return e.NewsItems
}

// ReadRecords reads records written by a Writer in format. JSON and YAML
// input may be either a bare list or a run envelope.
func ReadRecords(r io.Reader, format Format) ([]news.Record, error) {
	switch format {
	case FormatJSON:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			return nil, nil
		}
		if data[0] == '[' {
			var records []news.Record
			if err := json.Unmarshal(data, &records); err != nil {
				return nil, fmt.Errorf("failed to decode records: %w", err)
			}
			return records, nil
		}
		var env recordEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("failed to decode records: %w", err)
		}
		return env.records(), nil

	case FormatJSONL:
		var records []news.Record
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			text := bytes.TrimSpace(scanner.Bytes())
			if len(text) == 0 {
				continue
			}
			var rec news.Record
			if err := json.Unmarshal(text, &rec); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			records = append(records, rec)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return records, nil

	case FormatYAML:
		var node yaml.Node
		if err := yaml.NewDecoder(r).Decode(&node); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to decode records: %w", err)
		}
		doc := &node
		if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
			doc = doc.Content[0]
		}
		if doc.Kind == yaml.SequenceNode {
			var records []news.Record
			if err := doc.Decode(&records); err != nil {
				return nil, fmt.Errorf("failed to decode records: %w", err)
			}
			return records, nil
		}
		var env recordEnvelope
		if err := doc.Decode(&env); err != nil {
			return nil, fmt.Errorf("failed to decode records: %w", err)
		}
		return env.records(), nil

	default:
		return nil, fmt.Errorf("cannot read records from format: %s", format)
	}
}
