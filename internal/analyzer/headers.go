package analyzer

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/nao1215/urlvet/internal/model"
)

// serverVersionPattern matches product tokens carrying a version ("nginx/1.18.0").
var serverVersionPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_-]*/\d+(\.\d+)*`)

// HeaderAnalyzer checks security response headers.
//
// This analyzer checks for:
//   - missing Strict-Transport-Security
//   - missing X-Content-Type-Options: nosniff
//   - missing clickjacking protection (X-Frame-Options or frame-ancestors)
//   - server software versions in Server / X-Powered-By
//   - CORS allowing any origin together with credentials
//   - Cache-Control forbidding every copy, which cloaking kits use to keep
//     scanners and caches from seeing the page twice
//
// Redirect responses only get the disclosure and CORS checks. The missing
// CSP check lives in the CSP analyzer, which also sees meta tags.
type HeaderAnalyzer struct{}

// NewHeaderAnalyzer creates a new HeaderAnalyzer.
func NewHeaderAnalyzer() *HeaderAnalyzer {
	return &HeaderAnalyzer{}
}

// Name returns the analyzer name.
func (a *HeaderAnalyzer) Name() string {
	return "headers"
}

// Phase returns the analyzer phase.
func (a *HeaderAnalyzer) Phase() Phase {
	return PhaseOnline
}

// Analyze examines the response headers.
func (a *HeaderAnalyzer) Analyze(_ context.Context, data *AnalysisData) ([]model.Finding, error) {
	rec := data.Record()
	if rec == nil {
		return nil, ErrNoRecord
	}
	h := rec.Header
	if h == nil {
		h = http.Header{}
	}

	findings := make([]model.Finding, 0)
	findings = append(findings, a.checkDisclosure(data, h)...)
	findings = append(findings, a.checkCORS(data, h)...)
	if rec.IsRedirect() {
		return findings, nil
	}

	findings = append(findings, a.checkHSTS(data, h)...)
	findings = append(findings, a.checkNoSniff(data, h)...)
	findings = append(findings, a.checkFrameOptions(data, h)...)
	findings = append(findings, a.checkCacheCloaking(data, h)...)
	return findings, nil
}

func (a *HeaderAnalyzer) checkHSTS(data *AnalysisData, h http.Header) []model.Finding {
	hsts := strings.ToLower(h.Get("Strict-Transport-Security"))
	if hsts == "" {
		return []model.Finding{data.finding(model.RuleMissingHSTS, "")}
	}
	// max-age=0 switches HSTS off.
	for _, directive := range strings.Split(hsts, ";") {
		name, value, _ := strings.Cut(strings.TrimSpace(directive), "=")
		if strings.TrimSpace(name) == "max-age" && strings.Trim(strings.TrimSpace(value), `"`) == "0" {
			return []model.Finding{data.finding(model.RuleMissingHSTS, hsts)}
		}
	}
	return nil
}

func (a *HeaderAnalyzer) checkNoSniff(data *AnalysisData, h http.Header) []model.Finding {
	if !strings.EqualFold(strings.TrimSpace(h.Get("X-Content-Type-Options")), "nosniff") {
		return []model.Finding{data.finding(model.RuleMissingContentType, h.Get("X-Content-Type-Options"))}
	}
	return nil
}

func (a *HeaderAnalyzer) checkFrameOptions(data *AnalysisData, h http.Header) []model.Finding {
	if h.Get("X-Frame-Options") != "" {
		return nil
	}
	for _, csp := range h.Values("Content-Security-Policy") {
		if strings.Contains(strings.ToLower(csp), "frame-ancestors") {
			return nil
		}
	}
	return []model.Finding{data.finding(model.RuleMissingFrameOptions, "")}
}

func (a *HeaderAnalyzer) checkDisclosure(data *AnalysisData, h http.Header) []model.Finding {
	findings := make([]model.Finding, 0)
	for _, name := range []string{"Server", "X-Powered-By", "X-AspNet-Version"} {
		v := h.Get(name)
		if v == "" {
			continue
		}
		if name == "X-AspNet-Version" || serverVersionPattern.MatchString(v) {
			findings = append(findings, data.finding(model.RuleServerDisclosure, name+": "+v))
		}
	}
	return findings
}

func (a *HeaderAnalyzer) checkCORS(data *AnalysisData, h http.Header) []model.Finding {
	origin := strings.TrimSpace(h.Get("Access-Control-Allow-Origin"))
	creds := strings.EqualFold(strings.TrimSpace(h.Get("Access-Control-Allow-Credentials")), "true")
	if origin == "*" && creds {
		return []model.Finding{data.finding(model.RulePermissiveCORS, origin)}
	}
	return nil
}

func (a *HeaderAnalyzer) checkCacheCloaking(data *AnalysisData, h http.Header) []model.Finding {
	cc := strings.ToLower(h.Get("Cache-Control"))
	if strings.Contains(cc, "no-store") && strings.Contains(cc, "private") &&
		strings.Contains(strings.ToLower(h.Get("X-Robots-Tag")), "noindex") {
		return []model.Finding{data.finding(model.RuleNoStoreCloaking, cc)}
	}
	return nil
}
