package model

import (
	"fmt"
	"net/http"
	"time"
)

// Entry describes how a target entered the analysis queue.
type Entry int

const (
	// EntryInitial is the URL the user asked to analyse.
	EntryInitial Entry = iota
	// EntryEmbedded is a URL found inside the query or fragment of another target.
	EntryEmbedded
	// EntryRedirect is the destination of a redirect.
	EntryRedirect
)

// String returns the entry name.
func (e Entry) String() string {
	switch e {
	case EntryInitial:
		return "initial"
	case EntryEmbedded:
		return "embedded"
	case EntryRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// MarshalText encodes the entry by name.
func (e Entry) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText decodes an entry name.
func (e *Entry) UnmarshalText(text []byte) error {
	for _, c := range []Entry{EntryInitial, EntryEmbedded, EntryRedirect} {
		if c.String() == string(text) {
			*e = c
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownEntry, string(text))
}

// URLParts holds the parsed components of a target URL.
type URLParts struct {
	Scheme string `json:"scheme"`

	// Host is the host as written, lower-cased, without port.
	Host string `json:"host"`

	// HostASCII is the IDNA (punycode) form of Host.
	HostASCII string `json:"host_ascii"`

	// HostUnicode is the Unicode form of Host.
	HostUnicode string `json:"host_unicode"`

	// Domain is the registrable domain (eTLD+1) in ASCII form.
	Domain string `json:"domain"`

	// TLD is the public suffix of Domain.
	TLD string `json:"tld"`

	// Subdomain is everything in HostASCII in front of Domain, without the trailing dot.
	Subdomain string `json:"subdomain,omitempty"`

	Port     string `json:"port,omitempty"`
	UserInfo string `json:"-"`
	Path     string `json:"path"`
	Query    string `json:"query,omitempty"`
	Fragment string `json:"fragment,omitempty"`

	// IsIP is true when the host is an IP literal.
	IsIP bool `json:"is_ip,omitempty"`
}

// Certificate is the pre-parsed server certificate record.
// The analyzers never touch raw TLS bytes.
type Certificate struct {
	Subject            string    `json:"subject"`
	Issuer             string    `json:"issuer"`
	DNSNames           []string  `json:"dns_names,omitempty"`
	IPAddresses        []string  `json:"ip_addresses,omitempty"`
	NotBefore          time.Time `json:"not_before"`
	NotAfter           time.Time `json:"not_after"`
	PublicKeyAlgorithm string    `json:"public_key_algorithm"`
	PublicKeyBits      int       `json:"public_key_bits"`
	SelfSigned         bool      `json:"self_signed"`
	ExtKeyUsageOIDs    []string  `json:"ext_key_usage_oids,omitempty"`

	// Fingerprint is the hex SHA-256 digest of the DER certificate.
	Fingerprint string `json:"fingerprint"`

	// TLSVersion is the negotiated protocol version, e.g. "TLS1.3".
	TLSVersion string `json:"tls_version,omitempty"`

	// OCSPStatus is "good", "revoked", "unknown" or empty when nothing was stapled.
	OCSPStatus string `json:"ocsp_status,omitempty"`
}

// OnlineRecord is what the network collaborator returned for one target.
type OnlineRecord struct {
	StatusCode int `json:"status_code"`

	// Header holds the response headers with canonical keys.
	Header http.Header `json:"header"`

	// SetCookies is the raw Set-Cookie header list, in response order.
	SetCookies []string `json:"set_cookies,omitempty"`

	// Cookies are SetCookies parsed by net/http.
	Cookies []*http.Cookie `json:"-"`

	Body []byte `json:"-"`

	// BodyTruncated is true when the body exceeded the fetch limit.
	BodyTruncated bool `json:"body_truncated,omitempty"`

	Certificate *Certificate `json:"certificate,omitempty"`

	// Location is the raw Location header, if any.
	Location string `json:"location,omitempty"`

	// RedirectURL is the resolved absolute redirect destination, if any.
	RedirectURL string `json:"redirect_url,omitempty"`

	Duration  time.Duration `json:"duration"`
	FetchedAt time.Time     `json:"fetched_at"`

	// FromCache is true when the record was served by the response cache.
	FromCache bool `json:"from_cache,omitempty"`
}

// ContentType returns the Content-Type header value.
func (r *OnlineRecord) ContentType() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}

// IsRedirect reports whether the status code is a 3xx redirect.
func (r *OnlineRecord) IsRedirect() bool {
	return r != nil && r.StatusCode >= 300 && r.StatusCode < 400
}

// AnalysisTarget is one URL under evaluation together with its lifecycle state.
// Targets are owned by the orchestrator queue and addressed by index.
type AnalysisTarget struct {
	// URL is the normalized absolute URL string.
	URL string `json:"url"`

	// Raw is the string the target was created from.
	Raw string `json:"raw"`

	Parts URLParts `json:"parts"`

	// Index is the position of the target in the queue.
	Index int `json:"index"`

	// Parent is the queue index of the target that produced this one, or -1.
	Parent int `json:"parent"`

	Entry Entry `json:"entry"`

	Findings []Finding `json:"findings"`

	OfflineDone      bool `json:"offline_done"`
	OnlineInProgress bool `json:"-"`
	OnlineDone       bool `json:"online_done"`

	Online *OnlineRecord `json:"online,omitempty"`
}

// NewAnalysisTarget creates a queue entry for a URL that failed to parse far
// enough to fill Parts. Parsed targets come from the urlparse package.
func NewAnalysisTarget(raw string) *AnalysisTarget {
	return &AnalysisTarget{
		URL:      raw,
		Raw:      raw,
		Parent:   -1,
		Findings: make([]Finding, 0),
	}
}

// AddFinding appends a finding, stamping the origin when it is empty.
// It is the only way findings are added to a target.
func (t *AnalysisTarget) AddFinding(f Finding) {
	if f.Origin == "" {
		f.Origin = t.URL
	}
	t.Findings = append(t.Findings, f)
}

// AddFindings appends every finding in order.
func (t *AnalysisTarget) AddFindings(findings []Finding) {
	for _, f := range findings {
		t.AddFinding(f)
	}
}

// HasTerminal reports whether any finding stops the pipeline.
func (t *AnalysisTarget) HasTerminal() bool {
	for _, f := range t.Findings {
		if f.IsTerminal() {
			return true
		}
	}
	return false
}

// HasRule reports whether a finding for rule id was raised.
func (t *AnalysisTarget) HasRule(id RuleID) bool {
	for _, f := range t.Findings {
		if f.Rule == id {
			return true
		}
	}
	return false
}
