package repair

import (
	"strings"

	"github.com/jmylchreest/distill/internal/logger"
	"github.com/jmylchreest/distill/pkg/news"
)

// Method names the stage of Decode that produced the records.
type Method int

const (
	MethodNone Method = iota
	MethodStrict
	MethodRepaired
	MethodSalvaged
)

func (m Method) String() string {
	switch m {
	case MethodStrict:
		return "strict"
	case MethodRepaired:
		return "repaired"
	case MethodSalvaged:
		return "salvaged"
	default:
		return "none"
	}
}

// Decode extracts records from raw model output. When the payload was cut
// off inside a list element, the repaired final record is dropped since its
// source headlines may be incomplete.
func Decode(raw string) ([]news.Record, Method, error) {
	text := Locate(StripFences(raw))
	if !strings.ContainsAny(text, "{[") {
		return nil, MethodNone, &ParseError{Offset: 0, Expected: "'{' or '['", Found: describe((&lexer{s: text}).next())}
	}

	records, err := Parse(text)
	if err == nil {
		return records, MethodStrict, nil
	}
	logger.Debug("repair strict parse failed", "error", err)

	fixed, cut := repair(text)
	records, err = Parse(fixed)
	if err == nil {
		if cut && len(records) > 0 {
			records = records[:len(records)-1]
		}
		return records, MethodRepaired, nil
	}
	logger.Debug("repair parse after repair failed", "error", err)

	salvaged, discarded := Salvage(raw)
	for _, d := range discarded {
		logger.Debug("repair salvage discarded span", "offset", d.Offset, "expected", d.Expected, "found", d.Found)
	}
	if len(salvaged) > 0 {
		return salvaged, MethodSalvaged, nil
	}
	return nil, MethodNone, err
}
