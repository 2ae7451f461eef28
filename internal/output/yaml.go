package output

import (
	"bufio"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/distill/pkg/extractor"
	"github.com/jmylchreest/distill/pkg/news"
)

// YAMLWriter writes a single YAML document.
type YAMLWriter struct {
	w   io.Writer
	cfg writerConfig
}

// WriteResult writes the run envelope, or the records when configured for
// records only.
func (w *YAMLWriter) WriteResult(res *extractor.Result) error {
	if w.cfg.recordsOnly {
		return w.WriteRecords(res.Records)
	}
	return w.encode(res)
}

// WriteRecords writes records as a YAML sequence.
func (w *YAMLWriter) WriteRecords(records []news.Record) error {
	if records == nil {
		records = []news.Record{}
	}
	return w.encode(records)
}

func (w *YAMLWriter) encode(v any) error {
	bw := bufio.NewWriter(w.w)
	encoder := yaml.NewEncoder(bw)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}
	return bw.Flush()
}
