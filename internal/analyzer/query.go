package analyzer

import (
	"context"
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/nao1215/urlvet/internal/model"
)

const maxQueryLength = 512

// fragmentScriptMarkers are signs of script content smuggled in a fragment.
var fragmentScriptMarkers = []string{"javascript:", "<script", "eval(", "onerror=", "onload="}

// QueryAnalyzer checks query parameters for embedded URLs, redirect and
// credential parameters, e-mail addresses and tracking identifiers.
// Embedded https URLs are handed back as candidates for their own analysis.
type QueryAnalyzer struct{}

// NewQueryAnalyzer creates a new QueryAnalyzer.
func NewQueryAnalyzer() *QueryAnalyzer {
	return &QueryAnalyzer{}
}

// Name returns the analyzer name.
func (a *QueryAnalyzer) Name() string {
	return "query"
}

// Phase returns the analyzer phase.
func (a *QueryAnalyzer) Phase() Phase {
	return PhaseOffline
}

// Analyze checks the query string of the target.
func (a *QueryAnalyzer) Analyze(_ context.Context, data *AnalysisData) ([]model.Finding, error) {
	raw := data.Target.Parts.Query
	findings := make([]model.Finding, 0)
	if raw == "" {
		return findings, nil
	}
	if len(raw) > maxQueryLength {
		findings = append(findings, data.finding(model.RuleQueryLong, ""))
	}

	// ParseQuery keeps every pair it could read even when it returns an error.
	values, _ := url.ParseQuery(raw)
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var tracking, credentials, redirects, emails, embedded []string
	for _, name := range names {
		lower := strings.ToLower(name)
		switch {
		case data.Vocab.IsTrackingParam(lower):
			tracking = append(tracking, name)
		case data.Vocab.IsCredentialParam(lower):
			credentials = append(credentials, name)
		case data.Vocab.IsRedirectParam(lower):
			redirects = append(redirects, name)
		}

		for _, v := range values[name] {
			if emailPattern.MatchString(decodeComponent(v)) && !slices.Contains(emails, name) {
				emails = append(emails, name)
			}
			for _, u := range embeddedURLs(v) {
				embedded = append(embedded, u)
				if isHTTPS(u) {
					data.addCandidate(u)
				}
			}
		}
	}

	if len(embedded) > 0 {
		findings = append(findings, data.finding(model.RuleQueryEmbeddedURL, joinLimited(embedded, 3)))
	}
	if len(redirects) > 0 {
		findings = append(findings, data.finding(model.RuleQueryRedirectParam, strings.Join(redirects, ", ")))
	}
	if len(credentials) > 0 {
		findings = append(findings, data.finding(model.RuleQueryCredential, strings.Join(credentials, ", ")))
	}
	if len(emails) > 0 {
		findings = append(findings, data.finding(model.RuleQueryEmail, strings.Join(emails, ", ")))
	}
	if len(tracking) > 0 {
		findings = append(findings, data.finding(model.RuleQueryTracking, strings.Join(tracking, ", ")))
	}
	return findings, nil
}

// FragmentAnalyzer checks the fragment for embedded URLs, e-mail addresses
// and script content.
type FragmentAnalyzer struct{}

// NewFragmentAnalyzer creates a new FragmentAnalyzer.
func NewFragmentAnalyzer() *FragmentAnalyzer {
	return &FragmentAnalyzer{}
}

// Name returns the analyzer name.
func (a *FragmentAnalyzer) Name() string {
	return "fragment"
}

// Phase returns the analyzer phase.
func (a *FragmentAnalyzer) Phase() Phase {
	return PhaseOffline
}

// Analyze checks the fragment of the target.
func (a *FragmentAnalyzer) Analyze(_ context.Context, data *AnalysisData) ([]model.Finding, error) {
	frag := decodeComponent(data.Target.Parts.Fragment)
	findings := make([]model.Finding, 0)
	if frag == "" {
		return findings, nil
	}

	lower := strings.ToLower(frag)
	for _, marker := range fragmentScriptMarkers {
		if strings.Contains(lower, marker) {
			findings = append(findings, data.finding(model.RuleFragmentScript, marker))
			break
		}
	}

	if urls := embeddedURLs(frag); len(urls) > 0 {
		for _, u := range urls {
			if isHTTPS(u) {
				data.addCandidate(u)
			}
		}
		findings = append(findings, data.finding(model.RuleFragmentEmbeddedURL, joinLimited(urls, 3)))
	}
	if emailPattern.MatchString(frag) {
		findings = append(findings, data.finding(model.RuleFragmentEmail, ""))
	}
	return findings, nil
}
