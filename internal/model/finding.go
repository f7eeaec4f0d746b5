package model

import "strings"

// Flag is a machine-readable bit set attached to findings.
// Consumers can filter findings by intent without parsing messages.
type Flag uint32

const (
	// FlagHomograph marks look-alike or mixed-script host names.
	FlagHomograph Flag = 1 << iota
	// FlagBrand marks brand impersonation.
	FlagBrand
	// FlagObfuscation marks encoded or dynamically evaluated content.
	FlagObfuscation
	// FlagCloaking marks content or redirects that hide the real destination.
	FlagCloaking
	// FlagCredential marks credential collection or leakage.
	FlagCredential
	// FlagTracking marks tracking identifiers.
	FlagTracking
	// FlagRedirect marks redirect behaviour.
	FlagRedirect
	// FlagTransport marks transport security problems (TLS, mixed content).
	FlagTransport
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{FlagHomograph, "homograph"},
	{FlagBrand, "brand"},
	{FlagObfuscation, "obfuscation"},
	{FlagCloaking, "cloaking"},
	{FlagCredential, "credential"},
	{FlagTracking, "tracking"},
	{FlagRedirect, "redirect"},
	{FlagTransport, "transport"},
}

// Has reports whether every bit of other is set in f.
func (f Flag) Has(other Flag) bool {
	return f&other == other
}

// Names returns the names of the set bits in a stable order.
func (f Flag) Names() []string {
	names := make([]string, 0)
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return names
}

// String joins the flag names with "|".
func (f Flag) String() string {
	return strings.Join(f.Names(), "|")
}

// Finding is a single security observation about one URL.
// Findings are created through a RuleBook and never modified afterwards.
type Finding struct {
	// Rule is the catalog entry that produced the finding.
	Rule RuleID `json:"rule"`

	// Message is the human-readable description.
	Message string `json:"message"`

	// Severity is the classification used for ordering and control flow.
	Severity Severity `json:"severity"`

	// Penalty is added to the baseline score of 100. Usually negative.
	Penalty int `json:"penalty"`

	// Origin is the URL the finding was raised against.
	Origin string `json:"origin"`

	// Category is the part of the URL or response that produced the finding.
	Category Category `json:"category"`

	// Flags carries optional machine-readable intent bits.
	Flags Flag `json:"flags,omitempty"`

	// Detail is the concrete value that triggered the finding, if any.
	Detail string `json:"detail,omitempty"`
}

// IsTerminal reports whether the finding stops the pipeline.
func (f Finding) IsTerminal() bool {
	return f.Severity.IsTerminal()
}
