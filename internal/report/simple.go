package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/nao1215/urlvet/internal/model"
)

// SimpleWriter outputs human-readable text reports for the terminal.
// Verdicts and severities are coloured unless colour is disabled.
type SimpleWriter struct {
	baseWriter

	// verbose adds rule ids and penalties to every finding.
	verbose bool

	palette palette
}

// palette holds the colour functions of a writer.
type palette struct {
	good    func(a ...any) string
	warn    func(a ...any) string
	bad     func(a ...any) string
	info    func(a ...any) string
	heading func(a ...any) string
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) func(a ...any) string {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return palette{
		good:    mk(color.FgGreen),
		warn:    mk(color.FgYellow),
		bad:     mk(color.FgRed, color.Bold),
		info:    mk(color.FgCyan),
		heading: mk(color.Bold),
	}
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithColor forces colour on or off. By default colour follows the
// terminal detection of fatih/color.
func WithColor(enabled bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.palette = newPalette(enabled)
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		palette:    newPalette(!color.NoColor),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.Report) (int, error) {
	var sb strings.Builder
	w.writeReport(&sb, report)
	w.writeFooter(&sb)
	return io.WriteString(w.output, sb.String())
}

// WriteAll outputs every report and then one line per URL.
func (w *SimpleWriter) WriteAll(reports []*model.Report) (int, error) {
	reports = present(reports)

	var sb strings.Builder
	for _, r := range reports {
		w.writeReport(&sb, r)
	}
	if len(reports) > 1 {
		w.writeBatchSummary(&sb, reports)
	}
	w.writeFooter(&sb)
	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeReport(sb *strings.Builder, report *model.Report) {
	w.writeHeader(sb, report)
	w.writeChain(sb, report)
	w.writeSummary(sb, report)
	w.writeFindings(sb, report)
}

func (w *SimpleWriter) rule(sb *strings.Builder, ch string, title string) {
	sb.WriteString(strings.Repeat(ch, 70))
	sb.WriteString("\n")
	if title != "" {
		sb.WriteString(w.palette.heading(title))
		sb.WriteString("\n")
		sb.WriteString(strings.Repeat(ch, 70))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

// writeHeader writes the URL, score and verdict.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.Report) {
	sb.WriteString("\n")
	w.rule(sb, "=", "                            URLVET REPORT")

	fmt.Fprintf(sb, "URL:       %s\n", report.Input)
	fmt.Fprintf(sb, "Report ID: %s\n", report.ID)
	fmt.Fprintf(sb, "Analysed:  %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Score:     %s\n", w.verdictColor(report.Verdict)(fmt.Sprintf("%d/100 (%s)", report.Score, report.Verdict)))
	fmt.Fprintf(sb, "Status:    %s\n", statusText(report))
	sb.WriteString("\n")
}

// verdictColor picks the colour of a verdict.
func (w *SimpleWriter) verdictColor(v model.Verdict) func(a ...any) string {
	switch v {
	case model.VerdictLegitimate:
		return w.palette.good
	case model.VerdictQuestionable, model.VerdictUnreachable:
		return w.palette.warn
	default:
		return w.palette.bad
	}
}

// severityColor picks the colour of a severity.
func (w *SimpleWriter) severityColor(s model.Severity) func(a ...any) string {
	switch s {
	case model.SeverityCritical, model.SeverityDangerous:
		return w.palette.bad
	case model.SeverityScam, model.SeveritySuspicious, model.SeverityFetchError:
		return w.palette.warn
	default:
		return w.palette.info
	}
}

// writeChain lists the queue: every URL and how it got there.
func (w *SimpleWriter) writeChain(sb *strings.Builder, report *model.Report) {
	w.rule(sb, "-", "CHAIN")
	for _, t := range report.Targets {
		fmt.Fprintf(sb, "  [%d] %s\n", t.Index, t.URL)
		fmt.Fprintf(sb, "      %s, %s\n", entryText(t), targetStatus(t))
		if t.Online != nil && t.Online.RedirectURL != "" {
			fmt.Fprintf(sb, "      -> %s\n", t.Online.RedirectURL)
		}
	}
	sb.WriteString("\n")
}

// writeSummary writes the finding count per severity.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.Report) {
	w.rule(sb, "-", "SEVERITY SUMMARY")

	counts := report.CountBySeverity()
	total := 0
	for _, s := range severityOrder {
		total += counts[s]
		fmt.Fprintf(sb, "  %-12s %d\n", s.String()+":", counts[s])
	}
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  %-12s %d findings\n", "TOTAL:", total)
	sb.WriteString("\n")
}

// writeFindings writes the grouped findings: origin, category, severity.
func (w *SimpleWriter) writeFindings(sb *strings.Builder, report *model.Report) {
	if len(report.Groups) == 0 {
		return
	}
	w.rule(sb, "-", "FINDINGS")

	for _, g := range report.Groups {
		sb.WriteString(w.palette.heading(g.Origin))
		sb.WriteString("\n")
		for _, c := range g.Categories {
			fmt.Fprintf(sb, "  %s\n", c.Category)
			for _, f := range c.Findings {
				sev := w.severityColor(f.Severity)(fmt.Sprintf("[%s]", f.Severity))
				fmt.Fprintf(sb, "    %s %s\n", sev, f.Message)
				if f.Detail != "" {
					fmt.Fprintf(sb, "        %s\n", truncateString(f.Detail, 120))
				}
				if w.verbose {
					fmt.Fprintf(sb, "        rule %s, penalty %d\n", f.Rule, f.Penalty)
				}
			}
		}
		sb.WriteString("\n")
	}
}

// writeBatchSummary writes one line per analysed URL.
func (w *SimpleWriter) writeBatchSummary(sb *strings.Builder, reports []*model.Report) {
	w.rule(sb, "=", "BATCH SUMMARY")
	for _, r := range reports {
		score := w.verdictColor(r.Verdict)(fmt.Sprintf("%3d %-16s", r.Score, r.Verdict))
		fmt.Fprintf(sb, "  %s %s\n", score, r.Input)
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by urlvet\n")
	sb.WriteString("https://github.com/nao1215/urlvet\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
