package analyzer

import (
	"context"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/nao1215/urlvet/internal/model"
)

const maxPathLength = 200

// documentExtensions are the decoy extensions of double-extension downloads
// ("invoice.pdf.exe").
var documentExtensions = []string{
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".txt", ".rtf",
	".jpg", ".jpeg", ".png", ".gif", ".mp3", ".mp4", ".zip", ".rar",
}

// encodedSequences are escapes that hide traversal, separators or control bytes.
var encodedSequences = []string{"%2e%2e", "%2f", "%5c", "%00", "%25"}

// PathAnalyzer checks path segments and the final file name.
type PathAnalyzer struct{}

// NewPathAnalyzer creates a new PathAnalyzer.
func NewPathAnalyzer() *PathAnalyzer {
	return &PathAnalyzer{}
}

// Name returns the analyzer name.
func (a *PathAnalyzer) Name() string {
	return "path"
}

// Phase returns the analyzer phase.
func (a *PathAnalyzer) Phase() Phase {
	return PhaseOffline
}

// Analyze checks the path of the target.
func (a *PathAnalyzer) Analyze(_ context.Context, data *AnalysisData) ([]model.Finding, error) {
	raw := data.Target.Parts.Path
	findings := make([]model.Finding, 0)
	if raw == "" || raw == "/" {
		return findings, nil
	}

	lowerRaw := strings.ToLower(raw)
	for _, seq := range encodedSequences {
		if strings.Contains(lowerRaw, seq) {
			findings = append(findings, data.finding(model.RulePathEncodedTraversal, seq))
			break
		}
	}
	if len(raw) > maxPathLength {
		findings = append(findings, data.finding(model.RulePathLong, ""))
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	segments := strings.Split(strings.Trim(decoded, "/"), "/")

	if !data.Vocab.IsTrustedDomain(data.Target.Parts.Domain) {
		if kw, ok := data.Vocab.ScamKeywordIn(decoded); ok {
			findings = append(findings, data.finding(model.RulePathScamKeyword, kw))
		}
		if brand, ok := data.Vocab.BrandIn(decoded); ok {
			findings = append(findings, data.finding(model.RulePathBrand, brand))
		}
	}

	for _, seg := range segments[:len(segments)-1] {
		if looksLikeDomain(seg) {
			findings = append(findings, data.finding(model.RulePathEmbeddedDomain, seg))
			break
		}
	}

	file := segments[len(segments)-1]
	if ext, ok := data.Vocab.ExecutableExtension(file); ok {
		if decoy := path.Ext(strings.TrimSuffix(strings.ToLower(file), ext)); slices.Contains(documentExtensions, decoy) {
			findings = append(findings, data.finding(model.RulePathDoubleExtension, file))
		} else {
			findings = append(findings, data.finding(model.RulePathExecutable, file))
		}
	}

	return findings, nil
}
