package output

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/jmylchreest/distill/pkg/extractor"
	"github.com/jmylchreest/distill/pkg/news"
)

// JSONWriter writes a single JSON document.
type JSONWriter struct {
	w   io.Writer
	cfg writerConfig
}

// WriteResult writes the run envelope, or the record array when configured
// for records only.
func (w *JSONWriter) WriteResult(res *extractor.Result) error {
	if w.cfg.recordsOnly {
		return w.WriteRecords(res.Records)
	}
	return w.encode(res)
}

// WriteRecords writes records as a JSON array.
func (w *JSONWriter) WriteRecords(records []news.Record) error {
	if records == nil {
		records = []news.Record{}
	}
	return w.encode(records)
}

func (w *JSONWriter) encode(v any) error {
	var output []byte
	var err error
	if w.cfg.pretty {
		output, err = json.MarshalIndent(v, "", w.cfg.indent)
	} else {
		output, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w.w)
	if _, err := bw.Write(output); err != nil {
		return err
	}
	if _, err := bw.WriteString("\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// JSONLWriter writes one record per line.
type JSONLWriter struct {
	w io.Writer
}

// WriteResult writes only the records; the envelope does not fit the line
// format.
func (w *JSONLWriter) WriteResult(res *extractor.Result) error {
	return w.WriteRecords(res.Records)
}

// WriteRecords writes each record as a JSON line.
func (w *JSONLWriter) WriteRecords(records []news.Record) error {
	bw := bufio.NewWriter(w.w)
	for _, r := range records {
		output, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := bw.Write(output); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
