package report

import (
	"io"
	"strconv"

	"github.com/nao1215/urlvet/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs one report.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.Report) (int, error)

	// WriteAll outputs the reports of a batch followed by a summary.
	WriteAll(reports []*model.Report) (int, error)
}

// MultiWriter writes to multiple Writers in order.
// It stops on the first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
func (m *MultiWriter) Write(report *model.Report) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteAll outputs the reports to all configured Writers.
func (m *MultiWriter) WriteAll(reports []*model.Report) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteAll(reports)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// severityOrder lists severities from most to least severe, as shown in summaries.
var severityOrder = []model.Severity{
	model.SeverityFetchError,
	model.SeverityCritical,
	model.SeverityDangerous,
	model.SeverityScam,
	model.SeveritySuspicious,
	model.SeverityTracking,
	model.SeverityInfo,
}

// present drops the nil entries left by a cancelled batch.
func present(reports []*model.Report) []*model.Report {
	out := make([]*model.Report, 0, len(reports))
	for _, r := range reports {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// statusText describes how a run ended.
func statusText(r *model.Report) string {
	if r.Stopped {
		return "Stopped - " + r.StopReason
	}
	return "Complete"
}

// targetStatus describes the online result of a target.
func targetStatus(t *model.AnalysisTarget) string {
	switch {
	case t.Online == nil && t.OnlineDone:
		return "fetch failed"
	case t.Online == nil:
		return "not fetched"
	case t.Online.FromCache:
		return strconv.Itoa(t.Online.StatusCode) + " (cached)"
	default:
		return strconv.Itoa(t.Online.StatusCode)
	}
}

// entryText describes how a target entered the queue.
func entryText(t *model.AnalysisTarget) string {
	if t.Parent < 0 {
		return t.Entry.String()
	}
	return t.Entry.String() + " from [" + strconv.Itoa(t.Parent) + "]"
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
