package analyzer

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/urlvet/internal/model"
)

const (
	maxCookies       = 20
	longLivedCookies = 365 * 24 * time.Hour
)

// sessionCookieMarkers identify cookies that likely carry a session.
var sessionCookieMarkers = []string{"sess", "sid", "auth", "token", "login", "jwt"}

// CookieAnalyzer checks Set-Cookie attributes. Findings are aggregated to
// one per rule, listing the offending cookie names.
type CookieAnalyzer struct{}

// NewCookieAnalyzer creates a new CookieAnalyzer.
func NewCookieAnalyzer() *CookieAnalyzer {
	return &CookieAnalyzer{}
}

// Name returns the analyzer name.
func (a *CookieAnalyzer) Name() string {
	return "cookies"
}

// Phase returns the analyzer phase.
func (a *CookieAnalyzer) Phase() Phase {
	return PhaseOnline
}

// Analyze checks every cookie the response sets.
func (a *CookieAnalyzer) Analyze(ctx context.Context, data *AnalysisData) ([]model.Finding, error) {
	rec := data.Record()
	if rec == nil {
		return nil, ErrNoRecord
	}
	cookies := rec.Cookies
	if len(cookies) == 0 && len(rec.SetCookies) > 0 {
		cookies = parseSetCookies(rec.SetCookies)
	}

	findings := make([]model.Finding, 0)
	if len(cookies) == 0 {
		return findings, nil
	}

	hits := make(map[model.RuleID][]string)
	order := make([]model.RuleID, 0)
	hit := func(id model.RuleID, name string) {
		if _, ok := hits[id]; !ok {
			order = append(order, id)
		}
		hits[id] = append(hits[id], name)
	}

	for _, c := range cookies {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		if !c.Secure {
			hit(model.RuleCookieInsecure, c.Name)
		}
		if !c.HttpOnly && isSessionCookie(data, c.Name) {
			hit(model.RuleCookieNoHTTPOnly, c.Name)
		}
		if c.SameSite == http.SameSiteNoneMode {
			hit(model.RuleCookieSameSiteNone, c.Name)
		}
		if data.Vocab.IsTrackingCookie(c.Name) {
			hit(model.RuleCookieTracking, c.Name)
		}
		if longLived(c, data.Now) {
			hit(model.RuleCookieLongLived, c.Name)
		}
		if foreignCookie(c, data.Target.Parts.Domain) {
			hit(model.RuleCookieForeignDomain, c.Name+" ("+c.Domain+")")
		}
	}

	for _, id := range order {
		findings = append(findings, data.finding(id, joinLimited(hits[id], 5)))
	}
	if len(cookies) > maxCookies {
		findings = append(findings, data.finding(model.RuleCookieExcessiveCount, strconv.Itoa(len(cookies))))
	}
	return findings, nil
}

func parseSetCookies(lines []string) []*http.Cookie {
	cookies := make([]*http.Cookie, 0, len(lines))
	for _, line := range lines {
		c, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		cookies = append(cookies, c)
	}
	return cookies
}

func isSessionCookie(data *AnalysisData, name string) bool {
	lower := strings.ToLower(name)
	if data.Vocab.IsCredentialParam(lower) {
		return true
	}
	for _, m := range sessionCookieMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func longLived(c *http.Cookie, now time.Time) bool {
	if c.MaxAge > 0 {
		return time.Duration(c.MaxAge)*time.Second > longLivedCookies
	}
	return !c.Expires.IsZero() && c.Expires.Sub(now) > longLivedCookies
}

// foreignCookie reports a Domain attribute outside the registrable domain
// of the page.
func foreignCookie(c *http.Cookie, domain string) bool {
	if c.Domain == "" || domain == "" {
		return false
	}
	return !strings.EqualFold(domainOf(strings.TrimPrefix(c.Domain, ".")), domain)
}
