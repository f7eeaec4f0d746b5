package urlparse

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/urlvet/internal/model"
)

// Host length limits from RFC 1035.
const (
	maxHostLength  = 253
	maxLabelLength = 63
)

// Parser turns URL strings into analysis targets. Parse failures never
// return an error: they become critical findings on the target.
type Parser struct {
	rules *model.RuleBook
}

// NewParser returns a parser emitting findings through rules.
// A nil rule book selects the built-in catalog.
func NewParser(rules *model.RuleBook) *Parser {
	if rules == nil {
		rules = model.NewRuleBook()
	}
	return &Parser{rules: rules}
}

// Parse builds a target for raw. A URL without a scheme is read as https.
// When raw cannot be analysed the target carries exactly one critical
// finding and Parts holds whatever could be read before the failure.
func (p *Parser) Parse(raw string) *model.AnalysisTarget {
	trimmed := strings.TrimSpace(raw)
	t := model.NewAnalysisTarget(trimmed)
	t.Raw = raw

	if trimmed == "" {
		p.fail(t, model.RuleEmptyInput, "")
		return t
	}
	if detail, ok := multipleDelimiters(trimmed); ok {
		p.fail(t, model.RuleMultipleDelimiters, detail)
		return t
	}

	u, err := url.Parse(trimmed)
	if err == nil && u.Scheme == "" {
		u, err = url.Parse("https://" + strings.TrimPrefix(trimmed, "//"))
	}
	if err != nil {
		p.fail(t, model.RuleUnparseable, err.Error())
		return t
	}

	t.Parts.Scheme = strings.ToLower(u.Scheme)
	if t.Parts.Scheme != "https" {
		p.fail(t, model.RuleNonHTTPS, t.Parts.Scheme)
		return t
	}
	if u.Opaque != "" || u.Host == "" {
		p.fail(t, model.RuleMalformedHost, "missing host")
		return t
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	t.Parts.Host = host
	t.Parts.Port = u.Port()
	t.Parts.Path = u.EscapedPath()
	t.Parts.Query = u.RawQuery
	t.Parts.Fragment = u.Fragment
	if u.User != nil {
		t.Parts.UserInfo = u.User.String()
	}

	if t.Parts.Port != "" {
		if n, err := strconv.Atoi(t.Parts.Port); err != nil || n < 1 || n > 65535 {
			p.fail(t, model.RuleMalformedHost, "invalid port "+t.Parts.Port)
			return t
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		t.Parts.IsIP = true
		t.Parts.HostASCII = host
		t.Parts.HostUnicode = host
		t.Parts.Domain = host
	} else if rule, detail, ok := p.splitHost(&t.Parts, host); !ok {
		p.fail(t, rule, detail)
		return t
	}

	t.URL = normalize(u, t.Parts)
	return t
}

// splitHost fills the IDNA and public suffix parts of a DNS host.
func (p *Parser) splitHost(parts *model.URLParts, host string) (model.RuleID, string, bool) {
	nfc := norm.NFC.String(host)
	ascii, err := idna.Lookup.ToASCII(nfc)
	if err != nil {
		return model.RuleMalformedHost, err.Error(), false
	}
	if detail, ok := validHostname(ascii); !ok {
		return model.RuleMalformedHost, detail, false
	}

	unicodeHost, err := idna.Lookup.ToUnicode(ascii)
	if err != nil {
		unicodeHost = nfc
	}
	parts.HostASCII = ascii
	parts.HostUnicode = unicodeHost

	if label, ok := mixedScriptLabel(unicodeHost); ok {
		return model.RuleMixedScript, label, false
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(ascii)
	if err != nil {
		return model.RuleMalformedHost, err.Error(), false
	}
	parts.Domain = domain
	parts.TLD, _ = publicsuffix.PublicSuffix(ascii)
	parts.Subdomain = strings.TrimSuffix(strings.TrimSuffix(ascii, domain), ".")
	return "", "", true
}

func (p *Parser) fail(t *model.AnalysisTarget, id model.RuleID, detail string) {
	t.AddFinding(p.rules.Finding(id, t.URL, detail))
}

// multipleDelimiters reports more than one '#', or more than one '?' in
// front of the fragment.
func multipleDelimiters(s string) (string, bool) {
	if strings.Count(s, "#") > 1 {
		return "more than one '#'", true
	}
	beforeFragment, _, _ := strings.Cut(s, "#")
	if strings.Count(beforeFragment, "?") > 1 {
		return "more than one '?'", true
	}
	return "", false
}

// validHostname checks an ASCII host against the DNS label rules.
func validHostname(host string) (string, bool) {
	if host == "" {
		return "empty host", false
	}
	if len(host) > maxHostLength {
		return "host longer than 253 bytes", false
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return "host has no dot", false
	}
	for _, label := range labels {
		if label == "" || len(label) > maxLabelLength {
			return "invalid label length", false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return "label starts or ends with a hyphen", false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if !(c >= 'a' && c <= 'z') && !(c >= '0' && c <= '9') && c != '-' {
				return "invalid character in label", false
			}
		}
	}
	return "", true
}

// mixedScriptLabel returns the first label that mixes scripts. Latin may be
// combined with the East Asian scripts, which legitimately appear together.
func mixedScriptLabel(host string) (string, bool) {
	for _, label := range strings.Split(host, ".") {
		seen := make(map[string]struct{}, 2)
		for _, r := range label {
			if s := scriptOf(r); s != "" {
				seen[s] = struct{}{}
			}
		}
		if len(seen) < 2 {
			continue
		}
		for s := range seen {
			if s != "latin" && s != "cjk" && s != "hangul" {
				return label, true
			}
		}
	}
	return "", false
}

func scriptOf(r rune) string {
	if r < utf8.RuneSelf {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return "latin"
		}
		return ""
	}
	switch {
	case unicode.Is(unicode.Latin, r):
		return "latin"
	case unicode.Is(unicode.Cyrillic, r):
		return "cyrillic"
	case unicode.Is(unicode.Greek, r):
		return "greek"
	case unicode.Is(unicode.Armenian, r):
		return "armenian"
	case unicode.Is(unicode.Georgian, r):
		return "georgian"
	case unicode.Is(unicode.Arabic, r):
		return "arabic"
	case unicode.Is(unicode.Hebrew, r):
		return "hebrew"
	case unicode.Is(unicode.Thai, r):
		return "thai"
	case unicode.Is(unicode.Devanagari, r):
		return "devanagari"
	case unicode.Is(unicode.Han, r), unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r):
		return "cjk"
	case unicode.Is(unicode.Hangul, r):
		return "hangul"
	default:
		return ""
	}
}

// normalize renders the canonical form of u: lower-case https scheme, ASCII
// host, no user info and at least "/" as path.
func normalize(u *url.URL, parts model.URLParts) string {
	out := *u
	out.Scheme = parts.Scheme
	out.User = nil
	out.Host = parts.HostASCII
	if parts.IsIP && strings.Contains(parts.HostASCII, ":") {
		out.Host = "[" + parts.HostASCII + "]"
	}
	if parts.Port != "" {
		out.Host += ":" + parts.Port
	}
	if out.Path == "" && out.RawPath == "" {
		out.Path = "/"
	}
	return out.String()
}

// Key returns the form used to compare URLs: redirects and embedded URLs
// match case-insensitively.
func Key(u string) string {
	return strings.ToLower(u)
}

// ResolveReference resolves ref against base. relative is true when ref
// carries no scheme of its own.
func ResolveReference(base, ref string) (resolved string, relative bool, err error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", false, err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", false, err
	}
	return b.ResolveReference(r).String(), !r.IsAbs(), nil
}
