package scanner

import (
	"sort"
	"strconv"
	"strings"
)

// SourceType classifies one CSP source expression.
type SourceType int

const (
	// SourceKeyword is a single-quoted keyword such as 'self' or 'unsafe-inline'.
	SourceKeyword SourceType = iota
	// SourceNonce is a 'nonce-...' expression.
	SourceNonce
	// SourceScheme is a data: or blob: scheme source.
	SourceScheme
	// SourceWildcard is the bare "*".
	SourceWildcard
	// SourceURL is any host or URL source.
	SourceURL
)

// String returns the type name.
func (t SourceType) String() string {
	switch t {
	case SourceKeyword:
		return "keyword"
	case SourceNonce:
		return "nonce"
	case SourceScheme:
		return "scheme"
	case SourceWildcard:
		return "wildcard"
	case SourceURL:
		return "url"
	default:
		return "invalid"
	}
}

// Policy maps a directive name to its classified source values.
// Duplicate directives are kept under "name#2", "name#3", ...
type Policy map[string]map[string]SourceType

// ProblemKind is the kind of a CSP parse problem.
type ProblemKind int

const (
	// ProblemDuplicate is a directive that appears more than once.
	ProblemDuplicate ProblemKind = iota
	// ProblemUnparseable is a slice that is not a valid directive.
	ProblemUnparseable
)

// String returns the problem kind name.
func (k ProblemKind) String() string {
	if k == ProblemDuplicate {
		return "duplicate directive"
	}
	return "unparseable directive"
}

// Problem describes one malformed part of a policy.
type Problem struct {
	Kind ProblemKind
	// Directive is the (lower-cased) directive name, when one could be read.
	Directive string
	// Range is the byte range of the slice in the sanitized input.
	Range Range
	// Raw is the trimmed slice text.
	Raw string
}

// directiveSuffix separates a duplicate directive name from its counter.
const directiveSuffix = "#"

// ParseCSP parses a Content-Security-Policy header or meta value.
func ParseCSP(raw []byte) (Policy, []Problem) {
	buf := sanitizeCSP(raw)
	if len(buf) == 0 || buf[len(buf)-1] != ';' {
		buf = append(buf, ';')
	}

	policy := make(Policy)
	problems := make([]Problem, 0)

	start := 0
	for i, c := range buf {
		if c != ';' {
			continue
		}
		slice := Range{Start: start, End: i}
		start = i + 1

		trimmed := trimSlice(buf, slice)
		if trimmed.Len() == 0 {
			continue
		}
		text := string(buf[trimmed.Start:trimmed.End])
		tokens := strings.FieldsFunc(text, isCSPSpace)

		name := strings.ToLower(tokens[0])
		if !validDirectiveName(name) {
			problems = append(problems, Problem{Kind: ProblemUnparseable, Range: trimmed, Raw: text})
			continue
		}

		values := make(map[string]SourceType, len(tokens)-1)
		malformed := false
		for _, tok := range tokens[1:] {
			t, ok := classifySource(tok)
			if !ok {
				malformed = true
				continue
			}
			values[tok] = t
		}
		if malformed {
			problems = append(problems, Problem{Kind: ProblemUnparseable, Directive: name, Range: trimmed, Raw: text})
		}

		// A name already carrying a counter is kept as is unless taken; a
		// collision always counts up from the base name.
		key := name
		if _, exists := policy[key]; exists {
			base, _, _ := strings.Cut(name, directiveSuffix)
			for n := 2; ; n++ {
				key = base + directiveSuffix + strconv.Itoa(n)
				if _, taken := policy[key]; !taken {
					break
				}
			}
			problems = append(problems, Problem{Kind: ProblemDuplicate, Directive: base, Range: trimmed, Raw: text})
		}
		policy[key] = values
	}

	return policy, problems
}

// sanitizeCSP drops every byte outside printable ASCII, tab and newline.
func sanitizeCSP(raw []byte) []byte {
	out := make([]byte, 0, len(raw)+1)
	for _, c := range raw {
		if (c >= 0x20 && c <= 0x7e) || c == '\t' || c == '\n' {
			out = append(out, c)
		}
	}
	return out
}

func isCSPSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}

// trimSlice trims whitespace and stray semicolons from both ends of r.
func trimSlice(buf []byte, r Range) Range {
	for r.Start < r.End && (isCSPSpace(rune(buf[r.Start])) || buf[r.Start] == ';') {
		r.Start++
	}
	for r.End > r.Start && (isCSPSpace(rune(buf[r.End-1])) || buf[r.End-1] == ';') {
		r.End--
	}
	return r
}

// validDirectiveName accepts [a-z0-9-]+ with an optional "#<digits>" suffix.
func validDirectiveName(name string) bool {
	base, counter, hasCounter := strings.Cut(name, directiveSuffix)
	if base == "" {
		return false
	}
	for i := 0; i < len(base); i++ {
		c := base[i]
		if !(c >= 'a' && c <= 'z') && !isDigit(c) && c != '-' {
			return false
		}
	}
	if !hasCounter {
		return true
	}
	if counter == "" {
		return false
	}
	for i := 0; i < len(counter); i++ {
		if !isDigit(counter[i]) {
			return false
		}
	}
	return true
}

// classifySource classifies one source token. It fails for a quoted token
// that is not closed.
func classifySource(tok string) (SourceType, bool) {
	lower := strings.ToLower(tok)
	switch {
	case strings.HasPrefix(tok, "'"):
		if len(tok) < 2 || !strings.HasSuffix(tok, "'") {
			return SourceKeyword, false
		}
		if strings.HasPrefix(lower, "'nonce-") {
			return SourceNonce, true
		}
		return SourceKeyword, true
	case strings.HasPrefix(lower, "data:"), strings.HasPrefix(lower, "blob:"):
		return SourceScheme, true
	case tok == "*":
		return SourceWildcard, true
	default:
		return SourceURL, true
	}
}

// String renders the policy as a canonical header value: directives and
// values in lexical order, joined by "; ".
func (p Policy) String() string {
	names := make([]string, 0, len(p))
	for n := range p {
		names = append(names, n)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, n := range names {
		values := make([]string, 0, len(p[n]))
		for v := range p[n] {
			values = append(values, v)
		}
		sort.Strings(values)
		parts = append(parts, strings.Join(append([]string{n}, values...), " "))
	}
	return strings.Join(parts, "; ")
}

// ScriptSources returns the sources governing scripts: script-src, falling
// back to default-src. ok is false when neither is present.
func (p Policy) ScriptSources() (map[string]SourceType, bool) {
	if v, ok := p["script-src"]; ok {
		return v, true
	}
	v, ok := p["default-src"]
	return v, ok
}

// Nonces returns the nonce values (without the 'nonce- prefix and quotes)
// allowed for scripts.
func (p Policy) Nonces() []string {
	sources, ok := p.ScriptSources()
	if !ok {
		return nil
	}
	nonces := make([]string, 0)
	for v, t := range sources {
		if t == SourceNonce {
			nonces = append(nonces, v[len("'nonce-"):len(v)-1])
		}
	}
	sort.Strings(nonces)
	return nonces
}

// Allows reports whether the script sources contain value (case-insensitive).
func (p Policy) Allows(value string) bool {
	sources, ok := p.ScriptSources()
	if !ok {
		return false
	}
	for v := range sources {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}
