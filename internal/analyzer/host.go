package analyzer

import (
	"context"
	"strings"

	"github.com/nao1215/urlvet/internal/model"
)

// Host heuristics thresholds.
const (
	maxSubdomainLabels = 3
	maxHostLength      = 60
	maxHostHyphens     = 3
	minDigitRunLabel   = 5
	minLookalikeLength = 5
)

// HostAnalyzer checks scheme-independent host properties: IP literals,
// user info, punycode, ports, TLD reputation and brand impersonation.
type HostAnalyzer struct{}

// NewHostAnalyzer creates a new HostAnalyzer.
func NewHostAnalyzer() *HostAnalyzer {
	return &HostAnalyzer{}
}

// Name returns the analyzer name.
func (a *HostAnalyzer) Name() string {
	return "host"
}

// Phase returns the analyzer phase.
func (a *HostAnalyzer) Phase() Phase {
	return PhaseOffline
}

// Analyze checks the host of the target.
func (a *HostAnalyzer) Analyze(_ context.Context, data *AnalysisData) ([]model.Finding, error) {
	parts := data.Target.Parts
	findings := make([]model.Finding, 0)

	if parts.UserInfo != "" {
		findings = append(findings, data.finding(model.RuleUserInfo, ""))
	}
	if parts.Port != "" && parts.Port != "443" {
		findings = append(findings, data.finding(model.RuleNonStandardPort, parts.Port))
	}
	if parts.IsIP {
		return append(findings, data.finding(model.RuleIPLiteral, parts.Host)), nil
	}

	if self := selfImpersonation(data); self != "" {
		// Nothing else matters once the host pretends to be another domain.
		return append(findings, data.finding(model.RuleSelfImpersonation, self)), nil
	}

	if strings.Contains(parts.HostASCII, "xn--") {
		findings = append(findings, data.finding(model.RulePunycode, parts.HostUnicode))
	}
	if tld := lastLabel(parts.TLD); data.Vocab.IsSuspiciousTLD(tld) {
		findings = append(findings, data.finding(model.RuleSuspiciousTLD, "."+tld))
	}

	trusted := data.Vocab.IsTrustedDomain(parts.Domain)
	if !trusted {
		findings = append(findings, brandFindings(data, parts)...)
		if kw, ok := data.Vocab.ScamKeywordIn(parts.HostASCII); ok {
			findings = append(findings, data.finding(model.RuleHostScamKeyword, kw))
		}
	}

	if parts.Subdomain != "" && strings.Count(parts.Subdomain, ".")+1 > maxSubdomainLabels {
		findings = append(findings, data.finding(model.RuleExcessiveSubdomains, parts.Subdomain))
	}
	if len(parts.HostASCII) > maxHostLength {
		findings = append(findings, data.finding(model.RuleLongHostname, parts.HostASCII))
	}
	if strings.Count(parts.HostASCII, "-") > maxHostHyphens {
		findings = append(findings, data.finding(model.RuleManyHyphens, parts.HostASCII))
	}
	if label := firstLabel(parts.Domain); digitHeavy(label) {
		findings = append(findings, data.finding(model.RuleDigitHeavyHost, label))
	}

	return findings, nil
}

// selfImpersonation returns the trusted domain that appears in the subdomain
// of an untrusted host ("paypal.com.evil.example").
func selfImpersonation(data *AnalysisData) string {
	parts := data.Target.Parts
	if parts.Subdomain == "" || data.Vocab.IsTrustedDomain(parts.Domain) {
		return ""
	}
	sub := "." + parts.Subdomain + "."
	for _, trusted := range data.Vocab.TrustedDomains {
		if strings.Contains(sub, "."+trusted+".") {
			return trusted
		}
	}
	return ""
}

func brandFindings(data *AnalysisData, parts model.URLParts) []model.Finding {
	findings := make([]model.Finding, 0)
	if brand, ok := data.Vocab.BrandIn(parts.Subdomain); ok && parts.Subdomain != "" {
		findings = append(findings, data.finding(model.RuleBrandInSubdomain, brand))
	}

	label := firstLabel(parts.Domain)
	if brand, ok := data.Vocab.BrandIn(label); ok {
		return append(findings, data.finding(model.RuleBrandLookalike, brand))
	}
	for _, brand := range data.Vocab.Brands {
		if len(brand) >= minLookalikeLength && editDistance(label, brand) == 1 {
			return append(findings, data.finding(model.RuleBrandLookalike, brand))
		}
	}
	return findings
}

func lastLabel(s string) string {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// digitHeavy reports labels made of at least minDigitRunLabel digits that
// outnumber the letters.
func digitHeavy(label string) bool {
	digits := 0
	for i := 0; i < len(label); i++ {
		if label[i] >= '0' && label[i] <= '9' {
			digits++
		}
	}
	return digits >= minDigitRunLabel && digits*2 > len(label)
}
