package analyzer

import (
	"strings"

	"github.com/nao1215/urlvet/internal/model"
	"github.com/nao1215/urlvet/internal/urlparse"
)

// resolveRedirect computes the effective next URL of a fetched target.
// A 3xx status is followed through Location; otherwise a Refresh header and
// then a meta refresh tag are honoured. next is "" when the response does
// not redirect or the destination cannot be resolved.
func resolveRedirect(data *AnalysisData) (string, []model.Finding) {
	rec := data.Record()
	if rec == nil {
		return "", nil
	}
	base := data.Target.URL

	if rec.IsRedirect() {
		if rec.StatusCode == 304 {
			return "", nil
		}
		location := strings.TrimSpace(rec.Location)
		if location == "" && rec.Header != nil {
			location = strings.TrimSpace(rec.Header.Get("Location"))
		}
		if location == "" {
			return "", []model.Finding{data.finding(model.RuleMissingLocation, "")}
		}
		return follow(data, base, location, "")
	}

	if rec.Header != nil {
		if target := refreshTarget(rec.Header.Get("Refresh")); target != "" {
			return follow(data, base, target, model.RuleRefreshHeader)
		}
	}
	if data.Page != nil {
		if target := refreshTarget(data.Page.MetaRefresh); target != "" {
			return follow(data, base, target, model.RuleMetaRefresh)
		}
	}
	return "", nil
}

// follow resolves ref against base and reports how the redirect was made.
func follow(data *AnalysisData, base, ref string, via model.RuleID) (string, []model.Finding) {
	findings := make([]model.Finding, 0)
	if via != "" {
		findings = append(findings, data.finding(via, ref))
	}

	next, relative, err := urlparse.ResolveReference(base, ref)
	if err != nil {
		return "", append(findings, data.finding(model.RuleInvalidLocation, ref))
	}
	if relative {
		findings = append(findings, data.finding(model.RuleRelativeRedirect, ref+" -> "+next))
	}
	if from, to := registrableDomain(base), registrableDomain(next); from != "" && to != "" && !strings.EqualFold(from, to) {
		findings = append(findings, data.finding(model.RuleCrossDomain, from+" -> "+to))
	}
	return next, findings
}
