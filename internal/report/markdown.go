package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/urlvet/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.Report) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("urlvet Report")
	md.PlainText("")
	w.writeReport(md, report)
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// WriteAll outputs a batch summary table followed by every report.
func (w *MarkdownWriter) WriteAll(reports []*model.Report) (int, error) {
	reports = present(reports)

	md := markdown.NewMarkdown(w.output)
	md.H1("urlvet Report")
	md.PlainText("")

	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []string{"`" + r.Input + "`", strconv.Itoa(r.Score), string(r.Verdict)})
	}
	md.H2("Batch Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Score", "Verdict"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, r := range reports {
		w.writeReport(md, r)
	}
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeReport(md *markdown.Markdown, report *model.Report) {
	w.writeHeader(md, report)
	w.writeChain(md, report)
	w.writeSummary(md, report)
	w.writeFindings(md, report)
}

// writeHeader writes the analysed URL with its score and verdict.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.Report) {
	md.H2("`" + report.Input + "`")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Report ID", "`" + report.ID + "`"},
			{"Analysed", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Score", strconv.Itoa(report.Score) + "/100"},
			{"Verdict", verdictText(report.Verdict)},
			{"Status", statusText(report)},
		},
	})
	md.PlainText("")
}

// verdictText decorates a verdict for Markdown.
func verdictText(v model.Verdict) string {
	switch v {
	case model.VerdictLegitimate:
		return "✅ " + string(v)
	case model.VerdictQuestionable:
		return "⚠️ " + string(v)
	case model.VerdictUnreachable:
		return "❔ " + string(v)
	default:
		return "❌ " + string(v)
	}
}

// writeChain writes the queue as a table.
func (w *MarkdownWriter) writeChain(md *markdown.Markdown, report *model.Report) {
	md.H3("Chain")
	md.PlainText("")

	rows := make([][]string, 0, len(report.Targets))
	for _, t := range report.Targets {
		next := "-"
		if t.Online != nil && t.Online.RedirectURL != "" {
			next = "`" + truncateString(t.Online.RedirectURL, 60) + "`"
		}
		rows = append(rows, []string{
			strconv.Itoa(t.Index),
			"`" + truncateString(t.URL, 60) + "`",
			entryText(t),
			targetStatus(t),
			next,
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "URL", "Entry", "Status", "Redirects To"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeSummary writes the severity table, a pie chart and an alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.Report) {
	md.H3("Severity Summary")
	md.PlainText("")

	counts := report.CountBySeverity()
	rows := make([][]string, 0, len(severityOrder)+1)
	total := 0
	for _, s := range severityOrder {
		total += counts[s]
		rows = append(rows, []string{s.String(), strconv.Itoa(counts[s])})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(total) + "**"})
	md.Table(markdown.TableSet{
		Header: []string{"Severity", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if total > 0 {
		w.writePieChart(md, counts)
	}
	w.writeAlert(md, report, total)
}

// writePieChart writes a mermaid pie chart for severity distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, counts map[model.Severity]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Finding Severity Distribution"),
		piechart.WithShowData(true),
	)
	for _, s := range severityOrder {
		if counts[s] > 0 {
			chart.LabelAndIntValue(s.String(), uint64(counts[s]))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching the verdict.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.Report, total int) {
	switch report.Verdict {
	case model.VerdictBlocked:
		md.Cautionf("Analysis stopped: %s", report.StopReason)
	case model.VerdictMalicious:
		md.Cautionf("Score %d: this URL is likely malicious.", report.Score)
	case model.VerdictUnreachable:
		md.Warningf("The page could not be fetched: %s", report.StopReason)
	case model.VerdictQuestionable:
		md.Importantf("Score %d: %d finding(s) call the legitimacy of this URL into question.", report.Score, total)
	default:
		if total > 0 {
			md.Note("Only minor findings detected.")
		} else {
			md.Tip("No findings detected.")
		}
	}
	md.PlainText("")
}

// writeFindings writes one table per origin URL, in category order.
func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, report *model.Report) {
	md.H3("Findings")
	md.PlainText("")
	if len(report.Groups) == 0 {
		md.PlainText("No findings detected.")
		md.PlainText("")
		return
	}

	for _, g := range report.Groups {
		md.PlainText("**`" + g.Origin + "`**")
		md.PlainText("")

		rows := make([][]string, 0)
		for _, c := range g.Categories {
			for _, f := range c.Findings {
				detail := f.Detail
				if detail == "" {
					detail = "-"
				}
				rows = append(rows, []string{
					c.Category.String(),
					f.Severity.String(),
					f.Message,
					truncateString(detail, 60),
					strconv.Itoa(f.Penalty),
				})
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Category", "Severity", "Finding", "Detail", "Penalty"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [urlvet](https://github.com/nao1215/urlvet)*")
}
