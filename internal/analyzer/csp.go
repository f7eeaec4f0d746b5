package analyzer

import (
	"context"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/nao1215/urlvet/internal/model"
	"github.com/nao1215/urlvet/internal/scanner"
)

// CSPAnalyzer parses the Content-Security-Policy headers and meta tags and
// cross-checks the script layout recorded by the body analyzer against them.
type CSPAnalyzer struct{}

// NewCSPAnalyzer creates a new CSPAnalyzer.
func NewCSPAnalyzer() *CSPAnalyzer {
	return &CSPAnalyzer{}
}

// Name returns the analyzer name.
func (a *CSPAnalyzer) Name() string {
	return "csp"
}

// Phase returns the analyzer phase.
func (a *CSPAnalyzer) Phase() Phase {
	return PhaseOnline
}

// Analyze checks every policy delivered with the response.
func (a *CSPAnalyzer) Analyze(ctx context.Context, data *AnalysisData) ([]model.Finding, error) {
	rec := data.Record()
	if rec == nil {
		return nil, ErrNoRecord
	}
	findings := make([]model.Finding, 0)
	if rec.IsRedirect() {
		return findings, nil
	}

	raws := make([]string, 0)
	if rec.Header != nil {
		raws = append(raws, rec.Header.Values("Content-Security-Policy")...)
	}
	if data.Page != nil {
		raws = append(raws, data.Page.MetaCSP...)
	}
	if len(raws) == 0 {
		if strings.Contains(strings.ToLower(rec.ContentType()), "text/html") {
			findings = append(findings, data.finding(model.RuleMissingCSP, ""))
		}
		return findings, nil
	}

	seen := make(map[model.RuleID]bool)
	add := func(f model.Finding) {
		if !seen[f.Rule] {
			seen[f.Rule] = true
			findings = append(findings, f)
		}
	}

	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		policy, problems := scanner.ParseCSP([]byte(raw))
		if len(problems) > 0 {
			add(data.finding(model.RuleCSPMalformed, problemDetail(problems)))
		}
		for _, f := range a.checkPolicy(data, policy) {
			add(f)
		}
	}
	return findings, nil
}

func problemDetail(problems []scanner.Problem) string {
	parts := make([]string, 0, len(problems))
	for _, p := range problems {
		d := p.Directive
		if d == "" {
			d = p.Raw
		}
		parts = append(parts, p.Kind.String()+" "+d)
	}
	return joinLimited(parts, 3)
}

func (a *CSPAnalyzer) checkPolicy(data *AnalysisData, policy scanner.Policy) []model.Finding {
	findings := make([]model.Finding, 0)
	sources, ok := policy.ScriptSources()
	if !ok {
		return findings
	}

	nonces := policy.Nonces()
	strictDynamic := policy.Allows("'strict-dynamic'")
	// Browsers ignore 'unsafe-inline' once a nonce or strict-dynamic is present.
	if policy.Allows("'unsafe-inline'") && len(nonces) == 0 && !strictDynamic {
		findings = append(findings, data.finding(model.RuleCSPUnsafeInline, ""))
	}
	if policy.Allows("'unsafe-eval'") {
		findings = append(findings, data.finding(model.RuleCSPUnsafeEval, ""))
	}
	for v, t := range sources {
		switch {
		case t == scanner.SourceWildcard, t == scanner.SourceURL && (strings.EqualFold(v, "https:") || strings.EqualFold(v, "http:")):
			findings = append(findings, data.finding(model.RuleCSPWildcardScript, v))
		case t == scanner.SourceScheme:
			findings = append(findings, data.finding(model.RuleCSPDataScript, v))
		}
	}

	if data.Document == nil || data.Record() == nil {
		return findings
	}
	body := data.Record().Body
	var noNonce, mismatch, notAllowed []string
	for _, s := range data.Document.Scripts {
		switch s.Origin {
		case scanner.OriginInline:
			if len(nonces) == 0 {
				continue
			}
			switch {
			case s.Nonce == "":
				noNonce = append(noNonce, "inline@"+strconv.Itoa(s.TagStart))
			case !slices.Contains(nonces, s.Nonce):
				mismatch = append(mismatch, s.Nonce)
			}
		case scanner.OriginHTTPSExternal, scanner.OriginHTTPExternal:
			if strictDynamic || (s.Nonce != "" && slices.Contains(nonces, s.Nonce)) {
				continue
			}
			src := s.SrcValue(body)
			if !sourceAllowed(sources, src, data.Target.URL) {
				notAllowed = append(notAllowed, src)
			}
		}
	}
	if len(noNonce) > 0 {
		findings = append(findings, data.finding(model.RuleCSPInlineNoNonce, joinLimited(noNonce, 3)))
	}
	if len(mismatch) > 0 {
		findings = append(findings, data.finding(model.RuleCSPNonceMismatch, joinLimited(mismatch, 3)))
	}
	if len(notAllowed) > 0 {
		findings = append(findings, data.finding(model.RuleCSPSourceNotAllowed, joinLimited(notAllowed, 3)))
	}
	return findings
}

// sourceAllowed reports whether an external script URL matches a source of
// the script directive. 'self' matches the origin of page.
func sourceAllowed(sources map[string]scanner.SourceType, src, page string) bool {
	u, err := url.Parse(src)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	host := strings.ToLower(u.Hostname())
	for v, t := range sources {
		switch t {
		case scanner.SourceWildcard:
			return true
		case scanner.SourceKeyword:
			if strings.EqualFold(v, "'self'") {
				if p, err := url.Parse(page); err == nil && strings.EqualFold(p.Host, u.Host) && u.Scheme == p.Scheme {
					return true
				}
			}
		case scanner.SourceURL:
			if hostSourceMatches(strings.ToLower(v), u.Scheme, host) {
				return true
			}
		}
	}
	return false
}

// hostSourceMatches matches a host-source expression ("https://*.cdn.example/x")
// against a scheme and host.
func hostSourceMatches(source, scheme, host string) bool {
	if s, rest, ok := strings.Cut(source, "://"); ok {
		if s != scheme && !(s == "http" && scheme == "https") {
			return false
		}
		source = rest
	} else if strings.HasSuffix(source, ":") {
		// Scheme source such as "https:".
		return strings.TrimSuffix(source, ":") == scheme
	}
	if i := strings.IndexByte(source, '/'); i >= 0 {
		source = source[:i]
	}
	if i := strings.LastIndexByte(source, ':'); i >= 0 {
		source = source[:i]
	}
	if strings.HasPrefix(source, "*.") {
		return strings.HasSuffix(host, source[1:])
	}
	return source == host
}
