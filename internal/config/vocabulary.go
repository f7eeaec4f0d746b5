package config

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/nao1215/urlvet/internal/model"
)

// ErrInvalidScriptCall is returned when a vocabulary script call has no name
// or refers to a rule that is not in the catalog.
var ErrInvalidScriptCall = errors.New("invalid script call")

// ScriptCall is one call-site watched in inline scripts.
type ScriptCall struct {
	// Name is the call or member name, e.g. "eval" or "document.cookie".
	// A member name starting with "." matches any owner.
	Name string `yaml:"name"`
	// Member marks a property access instead of a call.
	Member bool `yaml:"member,omitempty"`
	// Rule is the catalog rule raised for each name that matches.
	Rule model.RuleID `yaml:"rule"`
}

// Vocabulary holds the detection tables analyzers consult. It is read-only
// once built; analyzers never mutate it.
type Vocabulary struct {
	// Brands are names phishing sites commonly impersonate.
	Brands []string `yaml:"brands,omitempty"`
	// TrustedDomains are registrable domains that legitimately carry a brand.
	TrustedDomains []string `yaml:"trustedDomains,omitempty"`
	// ScamKeywords are words common in phishing hosts and paths.
	ScamKeywords []string `yaml:"scamKeywords,omitempty"`
	// ScamPhrases are phrases common in phishing page text.
	ScamPhrases []string `yaml:"scamPhrases,omitempty"`
	// SuspiciousTLDs are public suffixes with a high abuse rate, without the dot.
	SuspiciousTLDs []string `yaml:"suspiciousTlds,omitempty"`
	// TrackingParams are query parameter names used for tracking.
	TrackingParams []string `yaml:"trackingParams,omitempty"`
	// TrackingCookies are cookie name prefixes used for tracking.
	TrackingCookies []string `yaml:"trackingCookies,omitempty"`
	// RedirectParams are query parameter names that carry a follow-up URL.
	RedirectParams []string `yaml:"redirectParams,omitempty"`
	// CredentialParams are query parameter names that carry secrets.
	CredentialParams []string `yaml:"credentialParams,omitempty"`
	// ExecutableExtensions are file extensions, with the dot, of downloads
	// that run code.
	ExecutableExtensions []string `yaml:"executableExtensions,omitempty"`
	// ScriptCalls are the call-sites watched in inline scripts.
	ScriptCalls []ScriptCall `yaml:"scriptCalls,omitempty"`
}

// DefaultVocabulary returns a fresh copy of the built-in tables.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		Brands: []string{
			"paypal", "apple", "icloud", "microsoft", "office365", "outlook", "google", "gmail",
			"amazon", "netflix", "facebook", "instagram", "whatsapp", "telegram", "linkedin",
			"chase", "wellsfargo", "bankofamerica", "citibank", "hsbc", "barclays",
			"dhl", "fedex", "usps", "coinbase", "binance", "metamask", "ledger", "steam",
			"dropbox", "docusign", "adobe", "ebay", "spotify", "roblox",
		},
		TrustedDomains: []string{
			"paypal.com", "apple.com", "icloud.com", "microsoft.com", "office.com", "office365.com",
			"outlook.com", "live.com", "google.com", "gmail.com", "amazon.com", "netflix.com",
			"facebook.com", "instagram.com", "whatsapp.com", "telegram.org", "linkedin.com",
			"chase.com", "wellsfargo.com", "bankofamerica.com", "citibank.com", "hsbc.com",
			"barclays.co.uk", "dhl.com", "fedex.com", "usps.com", "coinbase.com", "binance.com",
			"metamask.io", "ledger.com", "steampowered.com", "steamcommunity.com", "dropbox.com",
			"docusign.com", "docusign.net", "adobe.com", "ebay.com", "spotify.com", "roblox.com",
		},
		ScamKeywords: []string{
			"login", "signin", "sign-in", "logon", "verify", "verification", "account", "secure",
			"security", "update", "confirm", "wallet", "billing", "unlock", "suspended", "recover",
			"support", "helpdesk", "bonus", "prize", "giveaway", "airdrop", "claim", "reward",
			"refund", "invoice", "webscr", "authenticate",
		},
		ScamPhrases: []string{
			"verify your account", "your account has been suspended", "your account has been locked",
			"confirm your identity", "unusual activity", "unusual sign-in activity",
			"enter your seed phrase", "recovery phrase", "claim your prize", "you have won",
			"update your payment", "payment details", "act now", "within 24 hours",
			"limited time offer", "connect your wallet",
		},
		SuspiciousTLDs: []string{
			"zip", "mov", "xyz", "top", "tk", "ml", "ga", "cf", "gq", "work", "click", "country",
			"kim", "loan", "men", "review", "rest", "cam", "buzz", "icu", "sbs", "cfd", "shop",
			"online", "live", "support",
		},
		TrackingParams: []string{
			"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "utm_id",
			"gclid", "dclid", "fbclid", "msclkid", "yclid", "twclid", "ttclid", "mc_eid",
			"mc_cid", "_hsenc", "_hsmi", "mkt_tok", "igshid",
		},
		TrackingCookies: []string{
			"_ga", "_gid", "_gat", "_gcl_", "_fbp", "_fbc", "__utm", "_hj", "ajs_", "mp_",
			"_uet", "_clck", "_clsk", "muid", "ide",
		},
		RedirectParams: []string{
			"url", "uri", "redirect", "redirect_uri", "redirect_url", "redirecturl", "next",
			"return", "returnurl", "return_to", "returnto", "continue", "dest", "destination",
			"goto", "target", "out", "link", "forward", "r", "u",
		},
		CredentialParams: []string{
			"password", "passwd", "pwd", "pass", "token", "access_token", "id_token",
			"session", "sessionid", "sid", "auth", "apikey", "api_key", "secret", "otp",
			"pin", "ssn", "card", "cardnumber", "cvv", "seed", "mnemonic",
		},
		ExecutableExtensions: []string{
			".exe", ".scr", ".bat", ".cmd", ".msi", ".apk", ".jar", ".vbs", ".ps1", ".dll",
			".dmg", ".pkg", ".iso", ".img", ".hta", ".lnk", ".wsf", ".cpl", ".appx",
		},
		ScriptCalls: []ScriptCall{
			{Name: "eval", Rule: model.RuleScriptEval},
			{Name: `window["eval"]`, Rule: model.RuleScriptEval},
			{Name: `window['eval']`, Rule: model.RuleScriptEval},
			{Name: "atob", Rule: model.RuleScriptDecode},
			{Name: "unescape", Rule: model.RuleScriptDecode},
			{Name: "String.fromCharCode", Rule: model.RuleScriptDecode},
			{Name: "fetch", Rule: model.RuleScriptNetwork},
			{Name: "XMLHttpRequest", Rule: model.RuleScriptNetwork},
			{Name: "navigator.sendBeacon", Rule: model.RuleScriptNetwork},
			{Name: "window.open", Rule: model.RuleScriptPopup},
			{Name: "document.write", Rule: model.RuleScriptDOMWrite},
			{Name: "document.writeln", Rule: model.RuleScriptDOMWrite},
			{Name: ".innerHTML", Member: true, Rule: model.RuleScriptDOMWrite},
			{Name: "location.replace", Rule: model.RuleScriptNavigation},
			{Name: "location.assign", Rule: model.RuleScriptNavigation},
			{Name: "location.href", Member: true, Rule: model.RuleScriptNavigation},
			{Name: "document.cookie", Member: true, Rule: model.RuleScriptCookie},
			{Name: ".setItem", Member: true, Rule: model.RuleScriptStorage},
		},
	}
}

// Merge returns v appended to base. List entries are de-duplicated
// case-insensitively; a script call in v replaces the base call of the same
// name and anchor.
func (v Vocabulary) Merge(base *Vocabulary) *Vocabulary {
	out := &Vocabulary{
		Brands:               mergeList(base.Brands, v.Brands),
		TrustedDomains:       mergeList(base.TrustedDomains, v.TrustedDomains),
		ScamKeywords:         mergeList(base.ScamKeywords, v.ScamKeywords),
		ScamPhrases:          mergeList(base.ScamPhrases, v.ScamPhrases),
		SuspiciousTLDs:       mergeList(base.SuspiciousTLDs, v.SuspiciousTLDs),
		TrackingParams:       mergeList(base.TrackingParams, v.TrackingParams),
		TrackingCookies:      mergeList(base.TrackingCookies, v.TrackingCookies),
		RedirectParams:       mergeList(base.RedirectParams, v.RedirectParams),
		CredentialParams:     mergeList(base.CredentialParams, v.CredentialParams),
		ExecutableExtensions: mergeList(base.ExecutableExtensions, v.ExecutableExtensions),
		ScriptCalls:          slices.Clone(base.ScriptCalls),
	}
	for _, call := range v.ScriptCalls {
		i := slices.IndexFunc(out.ScriptCalls, func(c ScriptCall) bool {
			return c.Member == call.Member && strings.EqualFold(c.Name, call.Name)
		})
		if i >= 0 {
			out.ScriptCalls[i] = call
			continue
		}
		out.ScriptCalls = append(out.ScriptCalls, call)
	}
	return out
}

func mergeList(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, s := range list {
			key := strings.ToLower(strings.TrimSpace(s))
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	return out
}

// Validate checks that every script call has a name and a known rule.
func (v *Vocabulary) Validate() error {
	rules := model.NewRuleBook()
	for _, call := range v.ScriptCalls {
		if strings.TrimSpace(call.Name) == "" {
			return fmt.Errorf("%w: empty name", ErrInvalidScriptCall)
		}
		if _, ok := rules.Lookup(call.Rule); !ok {
			return fmt.Errorf("%w: %s: %w", ErrInvalidScriptCall, call.Name, model.ErrUnknownRule)
		}
	}
	return nil
}

// IsSuspiciousTLD reports whether tld (without the leading dot) is listed.
func (v *Vocabulary) IsSuspiciousTLD(tld string) bool {
	return containsFold(v.SuspiciousTLDs, strings.TrimPrefix(tld, "."))
}

// IsTrustedDomain reports whether domain is a listed registrable domain.
func (v *Vocabulary) IsTrustedDomain(domain string) bool {
	return containsFold(v.TrustedDomains, domain)
}

// IsTrackingParam reports whether name is a tracking query parameter.
func (v *Vocabulary) IsTrackingParam(name string) bool {
	return containsFold(v.TrackingParams, name)
}

// IsRedirectParam reports whether name usually carries a follow-up URL.
func (v *Vocabulary) IsRedirectParam(name string) bool {
	return containsFold(v.RedirectParams, name)
}

// IsCredentialParam reports whether name usually carries a secret.
func (v *Vocabulary) IsCredentialParam(name string) bool {
	return containsFold(v.CredentialParams, name)
}

// IsTrackingCookie reports whether the cookie name starts with a tracking prefix.
func (v *Vocabulary) IsTrackingCookie(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range v.TrackingCookies {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

// ExecutableExtension returns the executable extension of the last path
// segment, if it has one.
func (v *Vocabulary) ExecutableExtension(p string) (string, bool) {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return "", false
	}
	return ext, containsFold(v.ExecutableExtensions, ext)
}

// BrandIn returns the first brand contained in s.
func (v *Vocabulary) BrandIn(s string) (string, bool) {
	return firstContained(v.Brands, s)
}

// ScamKeywordIn returns the first scam keyword contained in s.
func (v *Vocabulary) ScamKeywordIn(s string) (string, bool) {
	return firstContained(v.ScamKeywords, s)
}

// ScamPhrasesIn returns every scam phrase contained in text.
func (v *Vocabulary) ScamPhrasesIn(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, phrase := range v.ScamPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			found = append(found, phrase)
		}
	}
	return found
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

func firstContained(list []string, s string) (string, bool) {
	lower := strings.ToLower(s)
	for _, item := range list {
		if item != "" && strings.Contains(lower, strings.ToLower(item)) {
			return item, true
		}
	}
	return "", false
}
