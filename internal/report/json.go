package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/urlvet/internal/model"
)

// JSONWriter outputs reports in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	indentPrefix string
	indentString string

	// version is written into every document.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion sets the tool version recorded in the output.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport is one report with its summary and the tool version.
type JSONReport struct {
	Version string        `json:"version,omitempty"`
	Summary Summary       `json:"summary"`
	Report  *model.Report `json:"report"`
}

// Summary condenses a report for quick consumption.
type Summary struct {
	Input    string         `json:"input"`
	Score    int            `json:"score"`
	Verdict  model.Verdict  `json:"verdict"`
	Targets  int            `json:"targets"`
	Findings int            `json:"findings"`
	Severity map[string]int `json:"severity"`
}

// NewSummary counts the findings of report per severity name.
func NewSummary(report *model.Report) Summary {
	s := Summary{
		Input:    report.Input,
		Score:    report.Score,
		Verdict:  report.Verdict,
		Targets:  len(report.Targets),
		Severity: make(map[string]int),
	}
	for sev, n := range report.CountBySeverity() {
		s.Severity[sev.Name()] = n
		s.Findings += n
	}
	return s
}

// JSONBatch is the document written for a batch.
type JSONBatch struct {
	Version string       `json:"version,omitempty"`
	Reports []JSONReport `json:"reports"`
}

// Write outputs one report document.
func (w *JSONWriter) Write(report *model.Report) (int, error) {
	return w.writeJSON(JSONReport{
		Version: w.version,
		Summary: NewSummary(report),
		Report:  report,
	})
}

// WriteAll outputs one document holding every report.
func (w *JSONWriter) WriteAll(reports []*model.Report) (int, error) {
	batch := JSONBatch{Version: w.version, Reports: make([]JSONReport, 0, len(reports))}
	for _, r := range present(reports) {
		batch.Reports = append(batch.Reports, JSONReport{Summary: NewSummary(r), Report: r})
	}
	return w.writeJSON(batch)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
