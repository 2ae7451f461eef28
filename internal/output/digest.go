package output

import (
	"io"

	"github.com/jmylchreest/distill/pkg/digest"
	"github.com/jmylchreest/distill/pkg/extractor"
	"github.com/jmylchreest/distill/pkg/news"
)

// DigestWriter writes the plain text synthesis digest.
type DigestWriter struct {
	w io.Writer
}

// WriteResult writes the digest of the run's records.
func (w *DigestWriter) WriteResult(res *extractor.Result) error {
	return w.WriteRecords(res.Records)
}

// WriteRecords writes the digest of records.
func (w *DigestWriter) WriteRecords(records []news.Record) error {
	_, err := io.WriteString(w.w, digest.Render(records)+"\n")
	return err
}
