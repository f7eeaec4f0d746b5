package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity represents how strongly a finding argues against the legitimacy of a URL.
//
// The ordinary severities are ordered: Info < Tracking < Suspicious < Scam <
// Dangerous < Critical. SeverityFetchError sits outside that order. It is
// reported when the page could not be retrieved at all, and it stops the
// pipeline like Critical does.
type Severity int

const (
	// SeverityInfo indicates an observation with no direct legitimacy impact.
	SeverityInfo Severity = iota

	// SeverityTracking indicates privacy-invasive but common behaviour
	// (tracking parameters, analytics cookies, storage access).
	SeverityTracking

	// SeveritySuspicious indicates unusual structure that legitimate sites rarely show.
	SeveritySuspicious

	// SeverityScam indicates social-engineering content such as brand
	// impersonation or scam vocabulary.
	SeverityScam

	// SeverityDangerous indicates behaviour that can harm the visitor
	// (obfuscated script, invalid certificates, credential exfiltration).
	SeverityDangerous

	// SeverityCritical indicates the URL cannot be trusted at all.
	// A critical finding halts the analysis pipeline.
	SeverityCritical

	// SeverityFetchError is the out-of-band severity for network failures.
	// It halts the pipeline like SeverityCritical but is reported separately.
	SeverityFetchError
)

// severityNames holds the canonical lower-case names used in config files and JSON.
var severityNames = map[Severity]string{
	SeverityInfo:       "info",
	SeverityTracking:   "tracking",
	SeveritySuspicious: "suspicious",
	SeverityScam:       "scam",
	SeverityDangerous:  "dangerous",
	SeverityCritical:   "critical",
	SeverityFetchError: "fetchError",
}

// String returns a human-readable representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityTracking:
		return "TRACKING"
	case SeveritySuspicious:
		return "SUSPICIOUS"
	case SeverityScam:
		return "SCAM"
	case SeverityDangerous:
		return "DANGEROUS"
	case SeverityCritical:
		return "CRITICAL"
	case SeverityFetchError:
		return "FETCH ERROR"
	default:
		return "UNKNOWN"
	}
}

// Name returns the canonical lower-case name used in config files and JSON.
func (s Severity) Name() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether a finding of this severity stops the pipeline.
func (s Severity) IsTerminal() bool {
	return s == SeverityCritical || s == SeverityFetchError
}

// AtLeast reports whether s is at least as severe as other within the
// ordinary ordering. A fetch error is never compared as "more severe" than a
// content finding because it says nothing about the content.
func (s Severity) AtLeast(other Severity) bool {
	if s == SeverityFetchError || other == SeverityFetchError {
		return s == other
	}
	return s >= other
}

// ParseSeverity converts a config-file name ("info", "scam", ...) into a Severity.
func ParseSeverity(name string) (Severity, error) {
	for sev, n := range severityNames {
		if strings.EqualFold(n, name) {
			return sev, nil
		}
	}
	return SeverityInfo, fmt.Errorf("%w: %q", ErrUnknownSeverity, name)
}

// MarshalJSON encodes the severity by name.
func (s Severity) MarshalJSON() ([]byte, error) {
	name, ok := severityNames[s]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSeverity, int(s))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes a severity name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// UnmarshalYAML lets rule overrides in the config file name severities.
func (s *Severity) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
