package scanner

import (
	"sort"
	"strings"
)

// Anchor tells which byte a watched name is anchored to.
type Anchor int

const (
	// AnchorCall names are matched backwards from a '(' ("eval(", "window.open(").
	AnchorCall Anchor = iota
	// AnchorMember names are matched forwards from a '.' ("document.cookie", ".setItem").
	// The part before the last dot is an optional owner checked backwards.
	AnchorMember
)

// Watch is one watched name.
type Watch struct {
	Name   string
	Anchor Anchor
}

// autoSubmitCall is the call that, followed closely by ".submit(", marks a
// silent form submission.
const (
	autoSubmitCall   = "getelementbyid"
	autoSubmitNeedle = ".submit("
	autoSubmitWindow = 32
)

// CallMatch is one confirmed occurrence of a watched name.
type CallMatch struct {
	Name string
	// Offset is the offset of the anchoring '(' or '.'.
	Offset int
}

// CallReport is the result of one scan.
type CallReport struct {
	Matches []CallMatch
	// AutoSubmits holds the '(' offsets of getElementById calls followed by
	// ".submit(" within the lookahead window.
	AutoSubmits []int
}

// Counts returns the number of matches per watched name.
func (r *CallReport) Counts() map[string]int {
	counts := make(map[string]int)
	for _, m := range r.Matches {
		counts[m.Name]++
	}
	return counts
}

// Names returns the matched names in sorted order.
func (r *CallReport) Names() []string {
	counts := r.Counts()
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type callPattern struct {
	name    string
	lower   []byte
	watched bool
}

type memberPattern struct {
	name   string
	owner  []byte
	member []byte
}

// CallScanner finds watched names in inline script text.
// Build it once per vocabulary with NewCallScanner; it is safe for concurrent use.
type CallScanner struct {
	calls   []callPattern
	members []memberPattern

	// byLast buckets call patterns by their last byte.
	byLast [256][]int
	// last and secondLast are the staged backward filters for calls.
	last       [256]bool
	secondLast [256]bool

	// first and second are the staged forward filters for members.
	first  [256]bool
	second [256]bool
}

// NewCallScanner compiles the watch list. Names are case-normalized and names
// shorter than two bytes (or member names shorter than two bytes after the
// dot) are ignored.
func NewCallScanner(watches []Watch) *CallScanner {
	s := &CallScanner{}
	callWatched := false
	for _, w := range watches {
		lower := strings.ToLower(strings.TrimSpace(w.Name))
		switch w.Anchor {
		case AnchorCall:
			if len(lower) < 2 {
				continue
			}
			if lower == autoSubmitCall {
				callWatched = true
			}
			s.addCall(callPattern{name: w.Name, lower: []byte(lower), watched: true})
		case AnchorMember:
			dot := strings.LastIndexByte(lower, '.')
			member := lower[dot+1:]
			if len(member) < 2 {
				continue
			}
			p := memberPattern{name: w.Name, member: []byte(member)}
			if dot > 0 {
				p.owner = []byte(lower[:dot])
			}
			s.members = append(s.members, p)
			s.first[member[0]] = true
			s.second[member[1]] = true
		}
	}
	if !callWatched {
		s.addCall(callPattern{name: autoSubmitCall, lower: []byte(autoSubmitCall)})
	}
	return s
}

func (s *CallScanner) addCall(p callPattern) {
	n := len(p.lower)
	s.byLast[p.lower[n-1]] = append(s.byLast[p.lower[n-1]], len(s.calls))
	s.last[p.lower[n-1]] = true
	s.secondLast[p.lower[n-2]] = true
	s.calls = append(s.calls, p)
}

// anchors collects the offsets of every '(' and '.' in one pass.
func anchors(soup []byte) (parens, dots []int) {
	for i, c := range soup {
		switch c {
		case '(':
			parens = append(parens, i)
		case '.':
			dots = append(dots, i)
		}
	}
	return parens, dots
}

// Scan finds watched names using the staged suffix-byte prefilter.
func (s *CallScanner) Scan(soup []byte) *CallReport {
	report := &CallReport{Matches: make([]CallMatch, 0)}
	parens, dots := anchors(soup)

	for _, p := range parens {
		q := skipSpaceBackward(soup, p-1)
		if q < 1 {
			continue
		}
		lb := lowerASCII(soup[q])
		if !s.last[lb] {
			continue
		}
		if !s.secondLast[lowerASCII(soup[q-1])] {
			continue
		}
		for _, idx := range s.byLast[lb] {
			s.confirmCall(soup, p, q, s.calls[idx], report)
		}
	}

	for _, d := range dots {
		if d+2 >= len(soup) {
			continue
		}
		if !s.first[lowerASCII(soup[d+1])] || !s.second[lowerASCII(soup[d+2])] {
			continue
		}
		for _, m := range s.members {
			if memberMatches(soup, d, m) {
				report.Matches = append(report.Matches, CallMatch{Name: m.name, Offset: d})
			}
		}
	}

	sortMatches(report.Matches)
	return report
}

// ScanNaive compares every watched name at every anchor without the prefilter.
func (s *CallScanner) ScanNaive(soup []byte) *CallReport {
	report := &CallReport{Matches: make([]CallMatch, 0)}
	parens, dots := anchors(soup)

	for _, p := range parens {
		q := skipSpaceBackward(soup, p-1)
		if q < 0 {
			continue
		}
		for _, c := range s.calls {
			s.confirmCall(soup, p, q, c, report)
		}
	}
	for _, d := range dots {
		for _, m := range s.members {
			if memberMatches(soup, d, m) {
				report.Matches = append(report.Matches, CallMatch{Name: m.name, Offset: d})
			}
		}
	}

	sortMatches(report.Matches)
	return report
}

// confirmCall compares pattern c ending at q (the last non-space byte before
// the '(' at p) and records a match or an auto-submit.
func (s *CallScanner) confirmCall(soup []byte, p, q int, c callPattern, report *CallReport) {
	start := q - len(c.lower) + 1
	if start < 0 || !equalFoldBytes(soup[start:q+1], c.lower) {
		return
	}
	if start > 0 && isIdentByte(soup[start-1]) && isIdentByte(c.lower[0]) {
		return
	}
	if c.watched {
		report.Matches = append(report.Matches, CallMatch{Name: c.name, Offset: p})
	}
	if string(c.lower) == autoSubmitCall {
		window := soup[p:min(len(soup), p+autoSubmitWindow)]
		if indexFold(window, autoSubmitNeedle) >= 0 {
			report.AutoSubmits = append(report.AutoSubmits, p)
		}
	}
}

// memberMatches checks member m right after the '.' at d and its owner right before it.
func memberMatches(soup []byte, d int, m memberPattern) bool {
	end := d + 1 + len(m.member)
	if end > len(soup) || !equalFoldBytes(soup[d+1:end], m.member) {
		return false
	}
	if end < len(soup) && isIdentByte(soup[end]) {
		return false
	}
	if len(m.owner) == 0 {
		return true
	}
	start := d - len(m.owner)
	if start < 0 || !equalFoldBytes(soup[start:d], m.owner) {
		return false
	}
	return start == 0 || !isIdentByte(soup[start-1])
}

func skipSpaceBackward(b []byte, i int) int {
	for i >= 0 && isSpace(b[i]) {
		i--
	}
	return i
}

// isIdentByte reports whether c can continue a JavaScript identifier.
func isIdentByte(c byte) bool {
	return isAlpha(c) || isDigit(c) || c == '_' || c == '$'
}

// equalFoldBytes compares b with the lower-case pattern p, ignoring ASCII case.
func equalFoldBytes(b, p []byte) bool {
	if len(b) != len(p) {
		return false
	}
	for i := range b {
		if lowerASCII(b[i]) != p[i] {
			return false
		}
	}
	return true
}

func sortMatches(m []CallMatch) {
	sort.SliceStable(m, func(i, j int) bool {
		if m[i].Offset != m[j].Offset {
			return m[i].Offset < m[j].Offset
		}
		return m[i].Name < m[j].Name
	})
}
