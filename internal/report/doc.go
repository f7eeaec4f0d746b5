// Package report renders analysis reports.
//
// This package contains writers for different output formats:
//   - SimpleWriter: coloured text for terminal display
//   - MarkdownWriter: Markdown with a mermaid severity chart
//   - JSONWriter: structured JSON for tool integration
//
// Writers implement the Writer interface and can be combined with
// MultiWriter.
package report
