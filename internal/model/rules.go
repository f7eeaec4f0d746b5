package model

import (
	"fmt"
	"sort"
)

// RuleID identifies an entry of the rule catalog, e.g. "host.ip_literal".
type RuleID string

// Rule is the penalty/severity lookup entry shared by every analyzer.
type Rule struct {
	ID       RuleID   `json:"id"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Penalty  int      `json:"penalty"`
	Message  string   `json:"message"`
	Flags    Flag     `json:"flags,omitempty"`
}

// Host rules.
const (
	RuleEmptyInput          RuleID = "host.empty_input"
	RuleUnparseable         RuleID = "host.unparseable"
	RuleMultipleDelimiters  RuleID = "host.multiple_delimiters"
	RuleNonHTTPS            RuleID = "host.non_https"
	RuleMalformedHost       RuleID = "host.malformed"
	RuleMixedScript         RuleID = "host.mixed_script"
	RuleSelfImpersonation   RuleID = "host.self_impersonation"
	RuleUserInfo            RuleID = "host.userinfo"
	RuleIPLiteral           RuleID = "host.ip_literal"
	RulePunycode            RuleID = "host.punycode"
	RuleNonStandardPort     RuleID = "host.non_standard_port"
	RuleSuspiciousTLD       RuleID = "host.suspicious_tld"
	RuleBrandInSubdomain    RuleID = "host.brand_in_subdomain"
	RuleBrandLookalike      RuleID = "host.brand_lookalike"
	RuleHostScamKeyword     RuleID = "host.scam_keyword"
	RuleExcessiveSubdomains RuleID = "host.excessive_subdomains"
	RuleLongHostname        RuleID = "host.long_hostname"
	RuleManyHyphens         RuleID = "host.many_hyphens"
	RuleDigitHeavyHost      RuleID = "host.digit_heavy"
)

// Path, query and fragment rules.
const (
	RulePathScamKeyword      RuleID = "path.scam_keyword"
	RulePathBrand            RuleID = "path.brand"
	RulePathEmbeddedDomain   RuleID = "path.embedded_domain"
	RulePathExecutable       RuleID = "path.executable_download"
	RulePathDoubleExtension  RuleID = "path.double_extension"
	RulePathEncodedTraversal RuleID = "path.encoded_traversal"
	RulePathLong             RuleID = "path.long"

	RuleQueryEmbeddedURL   RuleID = "query.embedded_url"
	RuleQueryRedirectParam RuleID = "query.redirect_param"
	RuleQueryCredential    RuleID = "query.credential_param"
	RuleQueryEmail         RuleID = "query.email"
	RuleQueryTracking      RuleID = "query.tracking_param"
	RuleQueryLong          RuleID = "query.long"

	RuleFragmentEmbeddedURL RuleID = "fragment.embedded_url"
	RuleFragmentEmail       RuleID = "fragment.email"
	RuleFragmentScript      RuleID = "fragment.script"
)

// Response code and redirect rules.
const (
	RuleClientError      RuleID = "response.client_error"
	RuleServerError      RuleID = "response.server_error"
	RuleUnexpectedStatus RuleID = "response.unexpected_status"

	RuleRelativeRedirect   RuleID = "redirect.relative"
	RuleCrossDomain        RuleID = "redirect.cross_domain"
	RuleMetaRefresh        RuleID = "redirect.meta_refresh"
	RuleRefreshHeader      RuleID = "redirect.refresh_header"
	RuleMissingLocation    RuleID = "redirect.missing_location"
	RuleInvalidLocation    RuleID = "redirect.invalid_location"
	RuleRedirectLoop       RuleID = "redirect.loop"
	RuleRedirectLimit      RuleID = "redirect.limit"
	RuleEmbeddedCandidates RuleID = "redirect.embedded_limit"
)

// Header, CSP and cookie rules.
const (
	RuleMissingHSTS         RuleID = "header.missing_hsts"
	RuleMissingCSP          RuleID = "header.missing_csp"
	RuleMissingContentType  RuleID = "header.missing_nosniff"
	RuleMissingFrameOptions RuleID = "header.missing_frame_options"
	RuleServerDisclosure    RuleID = "header.server_disclosure"
	RulePermissiveCORS      RuleID = "header.permissive_cors"
	RuleNoStoreCloaking     RuleID = "header.cloaking_cache"

	RuleCSPMalformed         RuleID = "csp.malformed"
	RuleCSPUnsafeInline      RuleID = "csp.unsafe_inline"
	RuleCSPUnsafeEval        RuleID = "csp.unsafe_eval"
	RuleCSPWildcardScript    RuleID = "csp.wildcard_script"
	RuleCSPDataScript        RuleID = "csp.data_script"
	RuleCSPNonceMismatch     RuleID = "csp.nonce_mismatch"
	RuleCSPInlineNoNonce     RuleID = "csp.inline_without_nonce"
	RuleCSPSourceNotAllowed  RuleID = "csp.source_not_allowed"

	RuleCookieInsecure       RuleID = "cookie.insecure"
	RuleCookieNoHTTPOnly     RuleID = "cookie.no_httponly"
	RuleCookieSameSiteNone   RuleID = "cookie.samesite_none"
	RuleCookieTracking       RuleID = "cookie.tracking"
	RuleCookieLongLived      RuleID = "cookie.long_lived"
	RuleCookieForeignDomain  RuleID = "cookie.foreign_domain"
	RuleCookieExcessiveCount RuleID = "cookie.excessive"
)

// TLS rules.
const (
	RuleTLSMissing       RuleID = "tls.missing"
	RuleTLSExpired       RuleID = "tls.expired"
	RuleTLSNotYetValid   RuleID = "tls.not_yet_valid"
	RuleTLSSelfSigned    RuleID = "tls.self_signed"
	RuleTLSNameMismatch  RuleID = "tls.name_mismatch"
	RuleTLSWeakKey       RuleID = "tls.weak_key"
	RuleTLSFresh         RuleID = "tls.fresh_certificate"
	RuleTLSNoServerAuth  RuleID = "tls.missing_server_auth"
	RuleTLSRevoked       RuleID = "tls.revoked"
	RuleTLSLegacyVersion RuleID = "tls.legacy_version"
	RuleTLSWildcard      RuleID = "tls.wildcard"
)

// Body and inline script rules.
const (
	RuleBodyTooLarge          RuleID = "body.too_large"
	RuleBodyEmpty             RuleID = "body.empty"
	RuleBodyMalformed         RuleID = "body.malformed_document"
	RuleBodyStructure         RuleID = "body.structure_invalid"
	RuleBodyUntrustedScript   RuleID = "body.untrusted_script_tag"
	RuleBodyHTTPScript        RuleID = "body.http_script"
	RuleBodyDataScript        RuleID = "body.data_script"
	RuleBodyMalformedSrc      RuleID = "body.malformed_script_src"
	RuleBodyUnknownSrc        RuleID = "body.unknown_script_src"
	RuleBodyInlineHeavy       RuleID = "body.inline_heavy"
	RuleBodyPasswordForm      RuleID = "body.password_form"
	RuleBodyCredentialForm    RuleID = "body.credential_exfiltration"
	RuleBodyScamPhrase        RuleID = "body.scam_phrase"
	RuleBodyBrandTitle        RuleID = "body.brand_title"
	RuleBodyHiddenFrame       RuleID = "body.hidden_iframe"
	RuleScriptEval            RuleID = "body.script_eval"
	RuleScriptDecode          RuleID = "body.script_decode"
	RuleScriptNetwork         RuleID = "body.script_network"
	RuleScriptPopup           RuleID = "body.script_popup"
	RuleScriptDOMWrite        RuleID = "body.script_dom_write"
	RuleScriptNavigation      RuleID = "body.script_navigation"
	RuleScriptCookie          RuleID = "body.script_cookie"
	RuleScriptStorage         RuleID = "body.script_storage"
	RuleScriptAutoSubmit      RuleID = "body.script_autosubmit"
	RuleScriptUnclassifiedUse RuleID = "body.script_watched"
)

// Fetch rules.
const (
	RuleFetchFailed  RuleID = "fetch.failed"
	RuleFetchTimeout RuleID = "fetch.timeout"
)

// defaultRules is the built-in catalog. Penalties are tuned so that a single
// critical finding zeroes the score and a handful of suspicious findings
// pushes a site out of the "legitimate" band.
var defaultRules = []Rule{
	// host
	{RuleEmptyInput, CategoryHost, SeverityCritical, -100, "URL is empty", 0},
	{RuleUnparseable, CategoryHost, SeverityCritical, -100, "URL could not be parsed", 0},
	{RuleMultipleDelimiters, CategoryHost, SeverityCritical, -100, "URL contains more than one '?' or '#' delimiter", FlagCloaking},
	{RuleNonHTTPS, CategoryHost, SeverityCritical, -100, "URL does not use HTTPS", FlagTransport},
	{RuleMalformedHost, CategoryHost, SeverityCritical, -100, "Host name is malformed", 0},
	{RuleMixedScript, CategoryHost, SeverityCritical, -100, "Host name mixes Unicode scripts (homograph attack)", FlagHomograph},
	{RuleSelfImpersonation, CategoryHost, SeverityCritical, -100, "Host embeds a well-known domain in front of an unrelated one", FlagBrand},
	{RuleUserInfo, CategoryHost, SeverityDangerous, -40, "URL carries user info before the host ('user@host' trick)", FlagCloaking},
	{RuleIPLiteral, CategoryHost, SeverityDangerous, -30, "Host is a raw IP address", 0},
	{RulePunycode, CategoryHost, SeveritySuspicious, -10, "Host uses punycode (internationalized) labels", FlagHomograph},
	{RuleNonStandardPort, CategoryHost, SeveritySuspicious, -10, "URL uses a non-standard port", 0},
	{RuleSuspiciousTLD, CategoryHost, SeveritySuspicious, -15, "Top-level domain is frequently abused", 0},
	{RuleBrandInSubdomain, CategoryHost, SeverityScam, -40, "Brand name appears in the subdomain of an unrelated domain", FlagBrand},
	{RuleBrandLookalike, CategoryHost, SeverityScam, -40, "Registered domain contains a brand name it does not belong to", FlagBrand},
	{RuleHostScamKeyword, CategoryHost, SeverityScam, -20, "Host contains scam vocabulary", 0},
	{RuleExcessiveSubdomains, CategoryHost, SeveritySuspicious, -10, "Host has an unusually deep subdomain chain", 0},
	{RuleLongHostname, CategoryHost, SeveritySuspicious, -5, "Host name is unusually long", 0},
	{RuleManyHyphens, CategoryHost, SeveritySuspicious, -10, "Host name contains many hyphens", 0},
	{RuleDigitHeavyHost, CategoryHost, SeveritySuspicious, -5, "Host name is dominated by digits", 0},

	// path
	{RulePathScamKeyword, CategoryPathSegment, SeveritySuspicious, -10, "Path contains scam vocabulary", 0},
	{RulePathBrand, CategoryPathSegment, SeverityScam, -20, "Path names a brand the host does not belong to", FlagBrand},
	{RulePathEmbeddedDomain, CategoryPathSegment, SeveritySuspicious, -10, "Path contains a domain name", FlagCloaking},
	{RulePathExecutable, CategoryPathFile, SeverityDangerous, -30, "URL points to an executable download", 0},
	{RulePathDoubleExtension, CategoryPathFile, SeverityDangerous, -30, "File name uses a double extension", FlagCloaking},
	{RulePathEncodedTraversal, CategoryPathSegment, SeveritySuspicious, -15, "Path contains encoded traversal or control sequences", FlagObfuscation},
	{RulePathLong, CategoryPath, SeveritySuspicious, -5, "Path is unusually long", 0},

	// query
	{RuleQueryEmbeddedURL, CategoryQuery, SeveritySuspicious, -15, "Query string embeds another URL", FlagRedirect},
	{RuleQueryRedirectParam, CategoryQuery, SeveritySuspicious, -10, "Query string carries a redirect parameter", FlagRedirect},
	{RuleQueryCredential, CategoryQuery, SeverityDangerous, -25, "Query string carries credential-like parameters", FlagCredential},
	{RuleQueryEmail, CategoryQuery, SeverityTracking, -5, "Query string carries an e-mail address", FlagTracking},
	{RuleQueryTracking, CategoryQuery, SeverityTracking, -2, "Query string carries tracking parameters", FlagTracking},
	{RuleQueryLong, CategoryQuery, SeveritySuspicious, -5, "Query string is unusually long", 0},

	// fragment
	{RuleFragmentEmbeddedURL, CategoryFragment, SeveritySuspicious, -15, "Fragment embeds another URL", FlagRedirect},
	{RuleFragmentEmail, CategoryFragment, SeverityTracking, -5, "Fragment carries an e-mail address", FlagTracking},
	{RuleFragmentScript, CategoryFragment, SeverityDangerous, -30, "Fragment carries script content", FlagObfuscation},

	// response code
	{RuleClientError, CategoryResponseCode, SeveritySuspicious, -10, "Server answered with a client error status", 0},
	{RuleServerError, CategoryResponseCode, SeveritySuspicious, -10, "Server answered with a server error status", 0},
	{RuleUnexpectedStatus, CategoryResponseCode, SeverityInfo, 0, "Server answered with an unexpected status", 0},

	// redirect
	{RuleRelativeRedirect, CategoryRedirect, SeveritySuspicious, -5, "Relative redirect", FlagRedirect},
	{RuleCrossDomain, CategoryRedirect, SeveritySuspicious, -10, "Redirect leaves the registered domain", FlagRedirect},
	{RuleMetaRefresh, CategoryRedirect, SeveritySuspicious, -15, "Page redirects through a meta refresh tag", FlagRedirect | FlagCloaking},
	{RuleRefreshHeader, CategoryRedirect, SeveritySuspicious, -15, "Page redirects through a Refresh header", FlagRedirect | FlagCloaking},
	{RuleMissingLocation, CategoryRedirect, SeveritySuspicious, -10, "Redirect status without a Location header", FlagRedirect},
	{RuleInvalidLocation, CategoryRedirect, SeveritySuspicious, -10, "Redirect target could not be resolved", FlagRedirect},
	{RuleRedirectLoop, CategoryRedirect, SeverityCritical, -100, "Redirect returns to a URL already visited", FlagRedirect | FlagCloaking},
	{RuleRedirectLimit, CategoryRedirect, SeverityInfo, 0, "Redirect chain exceeds the target limit; further targets dropped", FlagRedirect},
	{RuleEmbeddedCandidates, CategoryRedirect, SeverityInfo, 0, "Embedded URL not analysed; target limit reached", FlagRedirect},

	// header
	{RuleMissingHSTS, CategoryHeader, SeveritySuspicious, -5, "Strict-Transport-Security header is missing", FlagTransport},
	{RuleMissingCSP, CategoryHeader, SeveritySuspicious, -5, "Content-Security-Policy is missing", 0},
	{RuleMissingContentType, CategoryHeader, SeverityInfo, -2, "X-Content-Type-Options: nosniff is missing", 0},
	{RuleMissingFrameOptions, CategoryHeader, SeverityInfo, -2, "Clickjacking protection is missing", 0},
	{RuleServerDisclosure, CategoryHeader, SeverityInfo, 0, "Server software version is disclosed", 0},
	{RulePermissiveCORS, CategoryHeader, SeveritySuspicious, -10, "CORS allows any origin with credentials", FlagCredential},
	{RuleNoStoreCloaking, CategoryHeader, SeverityInfo, -2, "Response forbids every cache and proxy copy", FlagCloaking},

	// csp
	{RuleCSPMalformed, CategoryHeader, SeveritySuspicious, -10, "Content-Security-Policy is malformed", 0},
	{RuleCSPUnsafeInline, CategoryHeader, SeveritySuspicious, -10, "CSP allows 'unsafe-inline' scripts", 0},
	{RuleCSPUnsafeEval, CategoryHeader, SeveritySuspicious, -10, "CSP allows 'unsafe-eval'", FlagObfuscation},
	{RuleCSPWildcardScript, CategoryHeader, SeveritySuspicious, -10, "CSP allows scripts from any origin", 0},
	{RuleCSPDataScript, CategoryHeader, SeveritySuspicious, -10, "CSP allows scripts from data: or blob: URLs", FlagObfuscation},
	{RuleCSPNonceMismatch, CategoryHeader, SeveritySuspicious, -10, "Script nonce does not match the CSP", 0},
	{RuleCSPInlineNoNonce, CategoryHeader, SeveritySuspicious, -5, "Inline script without a nonce under a nonce-based CSP", 0},
	{RuleCSPSourceNotAllowed, CategoryHeader, SeveritySuspicious, -5, "External script host is not allowed by the CSP", 0},

	// cookie
	{RuleCookieInsecure, CategoryCookie, SeveritySuspicious, -5, "Cookie is set without the Secure attribute", FlagTransport},
	{RuleCookieNoHTTPOnly, CategoryCookie, SeveritySuspicious, -5, "Session cookie is readable by scripts (no HttpOnly)", FlagCredential},
	{RuleCookieSameSiteNone, CategoryCookie, SeverityTracking, -3, "Cookie is sent cross-site (SameSite=None)", FlagTracking},
	{RuleCookieTracking, CategoryCookie, SeverityTracking, -2, "Known tracking cookie", FlagTracking},
	{RuleCookieLongLived, CategoryCookie, SeverityTracking, -2, "Cookie lives longer than a year", FlagTracking},
	{RuleCookieForeignDomain, CategoryCookie, SeveritySuspicious, -10, "Cookie is scoped to a foreign domain", 0},
	{RuleCookieExcessiveCount, CategoryCookie, SeverityTracking, -5, "Response sets an excessive number of cookies", FlagTracking},

	// tls
	{RuleTLSMissing, CategoryTLS, SeverityDangerous, -40, "No certificate was presented", FlagTransport},
	{RuleTLSExpired, CategoryTLS, SeverityDangerous, -40, "Certificate has expired", FlagTransport},
	{RuleTLSNotYetValid, CategoryTLS, SeverityDangerous, -30, "Certificate is not valid yet", FlagTransport},
	{RuleTLSSelfSigned, CategoryTLS, SeverityDangerous, -40, "Certificate is self-signed", FlagTransport},
	{RuleTLSNameMismatch, CategoryTLS, SeverityDangerous, -40, "Certificate does not cover the host name", FlagTransport},
	{RuleTLSWeakKey, CategoryTLS, SeveritySuspicious, -15, "Certificate key is weak", FlagTransport},
	{RuleTLSFresh, CategoryTLS, SeveritySuspicious, -10, "Certificate was issued very recently", 0},
	{RuleTLSNoServerAuth, CategoryTLS, SeveritySuspicious, -10, "Certificate is not issued for server authentication", FlagTransport},
	{RuleTLSRevoked, CategoryTLS, SeverityDangerous, -50, "Stapled OCSP response reports the certificate revoked", FlagTransport},
	{RuleTLSLegacyVersion, CategoryTLS, SeveritySuspicious, -10, "Connection negotiated a legacy TLS version", FlagTransport},
	{RuleTLSWildcard, CategoryTLS, SeverityInfo, 0, "Certificate is a wildcard certificate", 0},

	// body
	{RuleBodyTooLarge, CategoryBody, SeverityInfo, 0, "Body too large for script analysis; skipped", 0},
	{RuleBodyEmpty, CategoryBody, SeveritySuspicious, -10, "Successful response with an empty body", FlagCloaking},
	{RuleBodyMalformed, CategoryBody, SeverityCritical, -100, "Document has no <html> element", FlagCloaking},
	{RuleBodyStructure, CategoryBody, SeverityCritical, -100, "Document structure is inconsistent", FlagCloaking},
	{RuleBodyUntrustedScript, CategoryBody, SeveritySuspicious, -20, "Script tag is not terminated", FlagCloaking},
	{RuleBodyHTTPScript, CategoryBody, SeverityDangerous, -25, "Script is loaded over plain HTTP", FlagTransport},
	{RuleBodyDataScript, CategoryBody, SeverityDangerous, -20, "Script is loaded from a data: URI", FlagObfuscation},
	{RuleBodyMalformedSrc, CategoryBody, SeveritySuspicious, -10, "Script src attribute is malformed", FlagObfuscation},
	{RuleBodyUnknownSrc, CategoryBody, SeveritySuspicious, -5, "Script src uses an unexpected scheme", 0},
	{RuleBodyInlineHeavy, CategoryBody, SeveritySuspicious, -5, "Most of the page is inline script", FlagObfuscation},
	{RuleBodyPasswordForm, CategoryBody, SeveritySuspicious, -10, "Page asks for a password", FlagCredential},
	{RuleBodyCredentialForm, CategoryBody, SeverityDangerous, -35, "Password form submits to another domain", FlagCredential},
	{RuleBodyScamPhrase, CategoryBody, SeverityScam, -15, "Page text contains scam phrases", 0},
	{RuleBodyBrandTitle, CategoryBody, SeverityScam, -25, "Page title names a brand the host does not belong to", FlagBrand},
	{RuleBodyHiddenFrame, CategoryBody, SeverityDangerous, -20, "Page embeds an invisible iframe", FlagCloaking},
	{RuleScriptEval, CategoryBody, SeverityCritical, -100, "Inline script evaluates dynamic code", FlagObfuscation},
	{RuleScriptDecode, CategoryBody, SeverityDangerous, -25, "Inline script decodes hidden content", FlagObfuscation},
	{RuleScriptNetwork, CategoryBody, SeverityDangerous, -20, "Inline script issues background requests", FlagCredential},
	{RuleScriptPopup, CategoryBody, SeverityDangerous, -20, "Inline script opens windows", FlagCloaking},
	{RuleScriptDOMWrite, CategoryBody, SeveritySuspicious, -10, "Inline script writes raw markup into the document", FlagObfuscation},
	{RuleScriptNavigation, CategoryBody, SeveritySuspicious, -10, "Inline script navigates away", FlagRedirect},
	{RuleScriptCookie, CategoryBody, SeverityTracking, -3, "Inline script reads or writes cookies", FlagTracking},
	{RuleScriptStorage, CategoryBody, SeverityTracking, -2, "Inline script uses web storage", FlagTracking},
	{RuleScriptAutoSubmit, CategoryBody, SeverityCritical, -100, "Inline script silently submits a form", FlagCredential | FlagCloaking},
	{RuleScriptUnclassifiedUse, CategoryBody, SeveritySuspicious, -5, "Inline script calls a watched function", 0},

	// fetch
	{RuleFetchFailed, CategoryGetError, SeverityFetchError, -50, "Page could not be fetched", 0},
	{RuleFetchTimeout, CategoryGetError, SeverityFetchError, -50, "Fetching the page timed out", 0},
}

// RuleOverride replaces the severity and/or penalty of a catalog entry.
// Nil fields keep the built-in value.
type RuleOverride struct {
	Severity *Severity `yaml:"severity,omitempty"`
	Penalty  *int      `yaml:"penalty,omitempty"`
}

// RuleBook is the read-only lookup table analyzers emit findings through.
// Build one with NewRuleBook and apply overrides before sharing it.
type RuleBook struct {
	rules map[RuleID]Rule
}

// NewRuleBook returns a rule book holding the built-in catalog.
func NewRuleBook() *RuleBook {
	b := &RuleBook{rules: make(map[RuleID]Rule, len(defaultRules))}
	for _, r := range defaultRules {
		b.rules[r.ID] = r
	}
	return b
}

// Apply applies overrides keyed by rule id. Unknown ids are rejected.
func (b *RuleBook) Apply(overrides map[RuleID]RuleOverride) error {
	for id, o := range overrides {
		r, ok := b.rules[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownRule, id)
		}
		if o.Severity != nil {
			r.Severity = *o.Severity
		}
		if o.Penalty != nil {
			r.Penalty = *o.Penalty
		}
		b.rules[id] = r
	}
	return nil
}

// Lookup returns the rule registered under id.
func (b *RuleBook) Lookup(id RuleID) (Rule, bool) {
	r, ok := b.rules[id]
	return r, ok
}

// Finding builds a finding for rule id raised against origin.
// An unknown id yields a zero-penalty informational finding so that a
// misconfigured vocabulary never crashes an analysis.
func (b *RuleBook) Finding(id RuleID, origin, detail string) Finding {
	r, ok := b.rules[id]
	if !ok {
		return Finding{
			Rule:     id,
			Message:  "Unknown rule " + string(id),
			Severity: SeverityInfo,
			Origin:   origin,
			Category: CategoryBody,
			Detail:   detail,
		}
	}
	return Finding{
		Rule:     r.ID,
		Message:  r.Message,
		Severity: r.Severity,
		Penalty:  r.Penalty,
		Origin:   origin,
		Category: r.Category,
		Flags:    r.Flags,
		Detail:   detail,
	}
}

// Rules returns every rule ordered by display category, then id.
func (b *RuleBook) Rules() []Rule {
	out := make([]Rule, 0, len(b.rules))
	for _, r := range b.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].Category.displayRank(), out[j].Category.displayRank()
		if ri != rj {
			return ri < rj
		}
		return out[i].ID < out[j].ID
	})
	return out
}
