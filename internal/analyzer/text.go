package analyzer

import (
	"net/netip"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var (
	// emailPattern matches e-mail addresses in decoded URL components.
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// embeddedURLPattern matches absolute http(s) URLs inside a decoded value.
	embeddedURLPattern = regexp.MustCompile(`(?i)https?://[^\s"'<>&#]+`)
)

// decodeComponent unescapes a query or fragment value repeatedly, since
// phishing kits often double-encode the URLs they carry.
func decodeComponent(s string) string {
	for range 3 {
		decoded, err := url.QueryUnescape(s)
		if err != nil || decoded == s {
			return s
		}
		s = decoded
	}
	return s
}

// embeddedURLs returns the absolute URLs found in s after decoding.
func embeddedURLs(s string) []string {
	return embeddedURLPattern.FindAllString(decodeComponent(s), -1)
}

// isHTTPS reports whether u uses the https scheme.
func isHTTPS(u string) bool {
	return len(u) >= len("https://") && strings.EqualFold(u[:len("https://")], "https://")
}

// registrableDomain returns the eTLD+1 of the host of u, or "".
func registrableDomain(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return domainOf(parsed.Hostname())
}

// domainOf returns the eTLD+1 of host, or host itself for IP literals and
// hosts the public suffix list cannot split.
func domainOf(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return ""
	}
	if _, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// looksLikeDomain reports whether s is a registrable domain under an ICANN
// managed suffix ("paypal.com", not "index.html").
func looksLikeDomain(s string) bool {
	s = strings.ToLower(s)
	if !strings.Contains(s, ".") {
		return false
	}
	suffix, icann := publicsuffix.PublicSuffix(s)
	if !icann || suffix == s {
		return false
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(s)
	return err == nil && d != ""
}

// editDistance is the Levenshtein distance between a and b, in bytes.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// firstLabel returns the left-most label of domain ("paypal" for "paypal.co.uk").
func firstLabel(domain string) string {
	label, _, _ := strings.Cut(domain, ".")
	return label
}

// joinLimited joins at most limit items, appending the number left out.
func joinLimited(items []string, limit int) string {
	if len(items) <= limit {
		return strings.Join(items, ", ")
	}
	return strings.Join(items[:limit], ", ") + ", +" + strconv.Itoa(len(items)-limit)
}
