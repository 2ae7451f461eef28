// Package output writes extraction results and reads record files back.
package output

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/distill/pkg/extractor"
	"github.com/jmylchreest/distill/pkg/news"
)

// Format represents output format types.
type Format string

const (
	FormatJSON   Format = "json"
	FormatJSONL  Format = "jsonl"
	FormatYAML   Format = "yaml"
	FormatDigest Format = "digest"
)

// ParseFormat converts a format name into a Format.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatJSON, FormatJSONL, FormatYAML, FormatDigest:
		return f, nil
	case "yml":
		return FormatYAML, nil
	case "txt", "text":
		return FormatDigest, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", name)
	}
}

// FormatForPath picks a format from a file extension, or fallback when the
// extension is unknown.
func FormatForPath(path string, fallback Format) Format {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return fallback
	}
	if f, err := ParseFormat(ext); err == nil {
		return f
	}
	return fallback
}

// Writer serializes extraction output.
type Writer interface {
	// WriteResult outputs a whole run: records, coverage report, failures
	// and stats. Formats that have no room for the envelope write only the
	// records.
	WriteResult(res *extractor.Result) error

	// WriteRecords outputs bare records.
	WriteRecords(records []news.Record) error
}

// WriterOption configures a writer.
type WriterOption func(*writerConfig)

type writerConfig struct {
	pretty      bool
	indent      string
	recordsOnly bool
}

// WithPretty enables pretty-printing.
func WithPretty(enabled bool) WriterOption {
	return func(c *writerConfig) {
		c.pretty = enabled
	}
}

// WithIndent sets the indentation string.
func WithIndent(indent string) WriterOption {
	return func(c *writerConfig) {
		c.indent = indent
	}
}

// WithRecordsOnly drops the run envelope from WriteResult.
func WithRecordsOnly(enabled bool) WriterOption {
	return func(c *writerConfig) {
		c.recordsOnly = enabled
	}
}

// NewWriter creates a writer for the specified format.
func NewWriter(w io.Writer, format Format, opts ...WriterOption) (Writer, error) {
	cfg := &writerConfig{
		pretty: true,
		indent: "  ",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch format {
	case FormatJSON:
		return &JSONWriter{w: w, cfg: *cfg}, nil
	case FormatJSONL:
		return &JSONLWriter{w: w}, nil
	case FormatYAML:
		return &YAMLWriter{w: w, cfg: *cfg}, nil
	case FormatDigest:
		return &DigestWriter{w: w}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
