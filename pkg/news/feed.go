package news

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Feed supplies the items of one extraction run.
type Feed interface {
	Items(ctx context.Context) ([]SourceItem, error)
}

// Feed file formats.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatYAML  = "yaml"
)

// FileFeed reads items from a local file. Format is inferred from the
// extension when empty.
type FileFeed struct {
	Path   string
	Format string
}

// rawItem is the on-disk article shape. Content may be a string or a list
// of paragraphs and may contain HTML.
type rawItem struct {
	Title     string     `json:"title" yaml:"title"`
	Time      string     `json:"time" yaml:"time"`
	Timestamp string     `json:"timestamp" yaml:"timestamp"`
	Publisher string     `json:"publisher" yaml:"publisher"`
	Content   StringList `json:"content" yaml:"content"`
	Body      string     `json:"body" yaml:"body"`
}

func (r rawItem) item() SourceItem {
	paragraphs := []string(r.Content)
	if r.Body != "" {
		paragraphs = append([]string{r.Body}, paragraphs...)
	}
	ts := r.Time
	if ts == "" {
		ts = r.Timestamp
	}
	return SourceItem{
		Title:     strings.TrimSpace(r.Title),
		Timestamp: ts,
		Publisher: r.Publisher,
		Body:      CleanBody(paragraphs),
	}
}

// Items implements Feed.
func (f FileFeed) Items(ctx context.Context) ([]SourceItem, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}

	format := f.Format
	if format == "" {
		format = FormatFromPath(f.Path)
	}

	var raws []rawItem
	switch format {
	case FormatJSON:
		raws, err = decodeJSON(data)
	case FormatJSONL:
		raws, err = decodeJSONL(ctx, data)
	case FormatYAML:
		raws, err = decodeYAML(data)
	default:
		return nil, fmt.Errorf("unsupported feed format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", f.Path, err)
	}

	items := make([]SourceItem, 0, len(raws))
	for _, r := range raws {
		items = append(items, r.item())
	}
	return items, nil
}

// FormatFromPath infers a feed format from a file extension, defaulting to
// json.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// feedEnvelope covers feeds that wrap the list in an object.
type feedEnvelope struct {
	Items    []rawItem `json:"items" yaml:"items"`
	News     []rawItem `json:"news" yaml:"news"`
	Articles []rawItem `json:"articles" yaml:"articles"`
}

func (e feedEnvelope) list() []rawItem {
	switch {
	case len(e.Items) > 0:
		return e.Items
	case len(e.News) > 0:
		return e.News
	default:
		return e.Articles
	}
}

func decodeJSON(data []byte) ([]rawItem, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var env feedEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, err
		}
		return env.list(), nil
	}
	var raws []rawItem
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}
	return raws, nil
}

func decodeJSONL(ctx context.Context, data []byte) ([]rawItem, error) {
	var raws []rawItem
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var r rawItem
		if err := json.Unmarshal(text, &r); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		raws = append(raws, r)
	}
	return raws, scanner.Err()
}

func decodeYAML(data []byte) ([]rawItem, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]
	if root.Kind == yaml.MappingNode {
		var env feedEnvelope
		if err := root.Decode(&env); err != nil {
			return nil, err
		}
		return env.list(), nil
	}
	var raws []rawItem
	if err := root.Decode(&raws); err != nil {
		return nil, err
	}
	return raws, nil
}

// Static is an in-memory Feed.
type Static []SourceItem

// Items implements Feed.
func (s Static) Items(_ context.Context) ([]SourceItem, error) {
	return append([]SourceItem(nil), s...), nil
}
