package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nao1215/urlvet/internal/model"
	"github.com/nao1215/urlvet/internal/scanner"
)

// inlineHeavyMinBytes is the inline script size below which the inline
// ratio is not evaluated.
const inlineHeavyMinBytes = 4 * 1024

// originRules maps external script origins to their findings.
var originRules = map[scanner.Origin]model.RuleID{
	scanner.OriginHTTPExternal: model.RuleBodyHTTPScript,
	scanner.OriginDataURI:      model.RuleBodyDataScript,
	scanner.OriginMalformed:    model.RuleBodyMalformedSrc,
	scanner.OriginUnknown:      model.RuleBodyUnknownSrc,
}

// BodyAnalyzer runs the content scanner over the body and inspects the
// page for credential forms, scam phrases and brand titles.
// It records the script layout and page info for the CSP analyzer.
type BodyAnalyzer struct{}

// NewBodyAnalyzer creates a new BodyAnalyzer.
func NewBodyAnalyzer() *BodyAnalyzer {
	return &BodyAnalyzer{}
}

// Name returns the analyzer name.
func (a *BodyAnalyzer) Name() string {
	return "body"
}

// Phase returns the analyzer phase.
func (a *BodyAnalyzer) Phase() Phase {
	return PhaseOnline
}

// Analyze scans the response body.
func (a *BodyAnalyzer) Analyze(ctx context.Context, data *AnalysisData) ([]model.Finding, error) {
	rec := data.Record()
	if rec == nil {
		return nil, ErrNoRecord
	}

	findings := make([]model.Finding, 0)
	if rec.StatusCode == 200 && len(rec.Body) == 0 {
		return append(findings, data.finding(model.RuleBodyEmpty, "")), nil
	}
	isHTML := strings.Contains(strings.ToLower(rec.ContentType()), "text/html")
	if !isHTML || len(rec.Body) == 0 {
		return findings, nil
	}

	if scanner.ShouldExtract(rec.StatusCode, rec.ContentType()) {
		scripts, stop := a.scanScripts(data, rec)
		findings = append(findings, scripts...)
		if stop {
			return findings, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return findings, err
	}

	page, err := ParsePage(rec.Body, data.Target.URL)
	if err != nil {
		return findings, fmt.Errorf("failed to tokenize body: %w", err)
	}
	data.Page = page
	findings = append(findings, a.checkPage(data, page)...)
	return findings, nil
}

// scanScripts extracts script tags and scans inline code. stop is true only
// when extraction failed with a terminal finding; other failures skip the
// script scan and leave the page pass to run.
func (a *BodyAnalyzer) scanScripts(data *AnalysisData, rec *model.OnlineRecord) ([]model.Finding, bool) {
	if rec.BodyTruncated {
		return []model.Finding{data.finding(model.RuleBodyTooLarge, "truncated by the fetch limit")}, false
	}

	doc, err := scanner.ExtractScripts(rec.Body)
	if err != nil {
		f := data.finding(extractionRule(err), err.Error())
		return []model.Finding{f}, f.IsTerminal()
	}
	data.Document = doc

	findings := make([]model.Finding, 0)
	counts := doc.CountByOrigin()
	for _, origin := range []scanner.Origin{
		scanner.OriginHTTPExternal, scanner.OriginDataURI, scanner.OriginMalformed, scanner.OriginUnknown,
	} {
		if n := counts[origin]; n > 0 {
			findings = append(findings, data.finding(originRules[origin], fmt.Sprintf("%d script(s)", n)))
		}
	}

	inline := doc.InlineBytes()
	if inline >= inlineHeavyMinBytes && inline*2 > len(rec.Body) {
		findings = append(findings, data.finding(model.RuleBodyInlineHeavy, fmt.Sprintf("%d of %d bytes", inline, len(rec.Body))))
	}

	report := data.Calls.Scan(doc.InlineSoup(rec.Body))
	findings = append(findings, callFindings(data, report)...)
	if len(report.AutoSubmits) > 0 {
		findings = append(findings, data.finding(model.RuleScriptAutoSubmit, "getElementById(...).submit()"))
	}
	return findings, false
}

// extractionRule maps a scanner error to the rule describing it.
func extractionRule(err error) model.RuleID {
	switch {
	case errors.Is(err, scanner.ErrDocumentTooLarge):
		return model.RuleBodyTooLarge
	case errors.Is(err, scanner.ErrNoHTMLElement):
		return model.RuleBodyMalformed
	case errors.Is(err, scanner.ErrUnterminatedScriptTag):
		return model.RuleBodyUntrustedScript
	default:
		return model.RuleBodyStructure
	}
}

// callFindings aggregates call-site matches into one finding per rule,
// most severe first.
func callFindings(data *AnalysisData, report *scanner.CallReport) []model.Finding {
	counts := report.Counts()
	byRule := make(map[model.RuleID][]string)
	for _, name := range report.Names() {
		rule, ok := data.CallRules[name]
		if !ok {
			rule = model.RuleScriptUnclassifiedUse
		}
		byRule[rule] = append(byRule[rule], fmt.Sprintf("%s x%d", name, counts[name]))
	}

	findings := make([]model.Finding, 0, len(byRule))
	for rule, names := range byRule {
		findings = append(findings, data.finding(rule, strings.Join(names, ", ")))
	}
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Severity != findings[j].Severity {
			return findings[i].Severity > findings[j].Severity
		}
		return findings[i].Rule < findings[j].Rule
	})
	return findings
}

func (a *BodyAnalyzer) checkPage(data *AnalysisData, page *PageInfo) []model.Finding {
	findings := make([]model.Finding, 0)
	parts := data.Target.Parts
	trusted := data.Vocab.IsTrustedDomain(parts.Domain)

	for _, form := range page.Forms {
		if !form.HasPassword() {
			continue
		}
		if exfil := credentialTarget(form, parts.Domain); exfil != "" {
			findings = append(findings, data.finding(model.RuleBodyCredentialForm, exfil))
		} else if !trusted {
			findings = append(findings, data.finding(model.RuleBodyPasswordForm, form.Action))
		}
		break
	}

	if !trusted {
		if _, ok := data.Vocab.BrandIn(page.Title); ok {
			findings = append(findings, data.finding(model.RuleBodyBrandTitle, page.Title))
		}
	}
	if phrases := data.Vocab.ScamPhrasesIn(page.Title + " " + page.Text); len(phrases) > 0 {
		findings = append(findings, data.finding(model.RuleBodyScamPhrase, joinLimited(phrases, 3)))
	}

	hidden := make([]string, 0)
	for _, frame := range page.Frames {
		if frame.Hidden {
			hidden = append(hidden, frame.Src)
		}
	}
	if len(hidden) > 0 {
		findings = append(findings, data.finding(model.RuleBodyHiddenFrame, joinLimited(hidden, 3)))
	}
	return findings
}

// credentialTarget returns the action of a password form posting to another
// registrable domain or over plain HTTP, or "".
func credentialTarget(form FormInfo, domain string) string {
	if form.Method == methodScript || form.Action == "" {
		return ""
	}
	if !isHTTPS(form.Action) {
		return form.Action
	}
	if d := registrableDomain(form.Action); d != "" && !strings.EqualFold(d, domain) {
		return form.Action
	}
	return ""
}
