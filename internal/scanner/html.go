package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxDocumentSize is the largest body ExtractScripts accepts.
	MaxDocumentSize = 900 * 1024

	// edgeWindow bounds the search for the <html> open and close tags to the
	// first and last bytes of the buffer.
	edgeWindow = 500

	// tagEndWindow bounds the search for the '>' terminating a script tag.
	tagEndWindow = 512
)

// Extraction errors. Structural errors mean the document cannot be trusted;
// the body analyzer maps each one to a finding.
var (
	ErrDocumentTooLarge      = errors.New("document exceeds the script extraction limit")
	ErrNoHTMLElement         = errors.New("no <html> element near the document edges")
	ErrMissingHeadOrBody     = errors.New("document has no head or no body element")
	ErrHeadAfterBody         = errors.New("head element appears after body element")
	ErrScriptTagMismatch     = errors.New("script open and close tags do not pair up")
	ErrUnterminatedScriptTag = errors.New("script tag is not terminated")
)

// Origin classifies where a script's code comes from.
type Origin int

const (
	// OriginInline is a script without a src attribute.
	OriginInline Origin = iota
	// OriginRelative is a src on the same origin.
	OriginRelative
	// OriginHTTPSExternal is an absolute https:// or protocol-relative src.
	OriginHTTPSExternal
	// OriginHTTPExternal is a plain http:// src.
	OriginHTTPExternal
	// OriginDataURI is a data: src.
	OriginDataURI
	// OriginUnknown is any other scheme (javascript:, blob:, ...).
	OriginUnknown
	// OriginMalformed is an empty, unterminated or garbled src.
	OriginMalformed
)

// String returns the origin name.
func (o Origin) String() string {
	switch o {
	case OriginInline:
		return "inline"
	case OriginRelative:
		return "relative"
	case OriginHTTPSExternal:
		return "httpsExternal"
	case OriginHTTPExternal:
		return "httpExternal"
	case OriginDataURI:
		return "dataURI"
	case OriginUnknown:
		return "unknown"
	case OriginMalformed:
		return "malformed"
	default:
		return "invalid"
	}
}

// Context tells whether a script sits in the head or the body.
type Context int

const (
	// ContextHead is any script before the body open tag.
	ContextHead Context = iota
	// ContextBody is any script at or after the body open tag.
	ContextBody
)

// String returns "head" or "body".
func (c Context) String() string {
	if c == ContextHead {
		return "head"
	}
	return "body"
}

// Range is a half-open byte range [Start, End).
type Range struct {
	Start int
	End   int
}

// Len returns the number of bytes in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// ScriptNode is one discovered script element.
type ScriptNode struct {
	// TagStart is the offset of the '<' opening the script tag.
	TagStart int
	// AttrEnd is the offset of the '>' ending the open tag.
	AttrEnd int
	// ContentEnd is the offset of the '<' of the closing tag.
	ContentEnd int
	// CloseEnd is the offset just past the '>' of the closing tag.
	CloseEnd int

	Origin Origin

	// Src is the byte range of the src value. Valid only when HasSrc is true.
	Src    Range
	HasSrc bool

	// Nonce is the nonce attribute value, if any.
	Nonce string

	Context Context
}

// Content returns the script text between the open and close tags.
func (n ScriptNode) Content(body []byte) []byte {
	return body[n.AttrEnd+1 : n.ContentEnd]
}

// SrcValue returns the src attribute value, or "" when there is none.
func (n ScriptNode) SrcValue(body []byte) string {
	if !n.HasSrc {
		return ""
	}
	return string(body[n.Src.Start:n.Src.End])
}

// Document is the result of a successful extraction.
type Document struct {
	// HTML spans from "<html" to just past the closing "</html>".
	HTML Range

	HeadOpen  int
	HeadClose int
	BodyOpen  int
	BodyClose int

	Scripts []ScriptNode
}

// InlineSoup concatenates the content of every inline script, separated by
// newlines so that names cannot fuse across scripts.
func (d *Document) InlineSoup(body []byte) []byte {
	var buf bytes.Buffer
	for _, s := range d.Scripts {
		if s.Origin != OriginInline {
			continue
		}
		buf.Write(s.Content(body))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// InlineBytes returns the total size of inline script content.
func (d *Document) InlineBytes() int {
	n := 0
	for _, s := range d.Scripts {
		if s.Origin == OriginInline {
			n += s.ContentEnd - s.AttrEnd - 1
		}
	}
	return n
}

// CountByOrigin counts scripts per origin.
func (d *Document) CountByOrigin() map[Origin]int {
	counts := make(map[Origin]int)
	for _, s := range d.Scripts {
		counts[s.Origin]++
	}
	return counts
}

// ShouldExtract reports whether a response qualifies for script extraction.
func ShouldExtract(status int, contentType string) bool {
	return status == 200 && strings.Contains(strings.ToLower(contentType), "text/html")
}

// tagKind is the classification of one '<' offset.
type tagKind int

const (
	tagOther tagKind = iota
	tagHeadOpen
	tagHeadClose
	tagBodyOpen
	tagBodyClose
	tagScriptOpen
	tagScriptClose
)

// ExtractScripts finds every script element of an HTML document.
// On error the returned document is nil.
func ExtractScripts(body []byte) (*Document, error) {
	if len(body) > MaxDocumentSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrDocumentTooLarge, len(body))
	}

	span, ok := htmlSpan(body)
	if !ok {
		return nil, ErrNoHTMLElement
	}

	doc := &Document{
		HTML:      span,
		HeadOpen:  -1,
		HeadClose: -1,
		BodyOpen:  -1,
		BodyClose: -1,
	}

	var opens, closes []int
	for i := span.Start; i < span.End; i++ {
		if body[i] != '<' {
			continue
		}
		kind, _ := classifyTag(body, i, span.End)
		switch kind {
		case tagHeadOpen:
			setFirst(&doc.HeadOpen, i)
		case tagHeadClose:
			setFirst(&doc.HeadClose, i)
		case tagBodyOpen:
			setFirst(&doc.BodyOpen, i)
		case tagBodyClose:
			setFirst(&doc.BodyClose, i)
		case tagScriptOpen:
			opens = append(opens, i)
		case tagScriptClose:
			closes = append(closes, i)
		case tagOther:
		}
	}

	if doc.HeadOpen < 0 || doc.BodyOpen < 0 {
		return nil, ErrMissingHeadOrBody
	}
	if doc.HeadOpen > doc.BodyOpen {
		return nil, ErrHeadAfterBody
	}
	if len(opens) != len(closes) {
		return nil, fmt.Errorf("%w: %d open, %d close", ErrScriptTagMismatch, len(opens), len(closes))
	}

	scripts := make([]ScriptNode, 0, len(opens))
	for k, start := range opens {
		_, nameEnd := classifyTag(body, start, span.End)
		attrEnd := findTagEnd(body, nameEnd, span.End)
		if attrEnd < 0 {
			return nil, fmt.Errorf("%w at offset %d", ErrUnterminatedScriptTag, start)
		}

		closeStart := closes[k]
		if closeStart < attrEnd || (k+1 < len(opens) && opens[k+1] < closeStart) {
			return nil, fmt.Errorf("%w at offset %d", ErrScriptTagMismatch, start)
		}
		_, closeNameEnd := classifyTag(body, closeStart, span.End)
		closeEnd := findTagEnd(body, closeNameEnd, span.End)
		if closeEnd < 0 {
			return nil, fmt.Errorf("%w at offset %d", ErrUnterminatedScriptTag, closeStart)
		}
		if k+1 < len(opens) && opens[k+1] <= closeEnd {
			return nil, fmt.Errorf("%w at offset %d", ErrScriptTagMismatch, closeStart)
		}

		node := ScriptNode{
			TagStart:   start,
			AttrEnd:    attrEnd,
			ContentEnd: closeStart,
			CloseEnd:   closeEnd + 1,
			Context:    ContextBody,
		}
		if start < doc.BodyOpen {
			node.Context = ContextHead
		}
		classifyAttributes(body, nameEnd, attrEnd, &node)
		scripts = append(scripts, node)
	}
	doc.Scripts = scripts

	return doc, nil
}

func setFirst(dst *int, v int) {
	if *dst < 0 {
		*dst = v
	}
}

// htmlSpan locates "<html" in the first edgeWindow bytes and "</html" in the
// last edgeWindow bytes.
func htmlSpan(body []byte) (Range, bool) {
	head := body[:min(len(body), edgeWindow)]
	start := indexFold(head, "<html")
	if start < 0 {
		return Range{}, false
	}

	tailStart := max(0, len(body)-edgeWindow)
	rel := lastIndexFold(body[tailStart:], "</html")
	if rel < 0 {
		return Range{}, false
	}
	closeAt := tailStart + rel
	if closeAt <= start {
		return Range{}, false
	}

	end := closeAt + len("</html")
	if gt := bytes.IndexByte(body[end:], '>'); gt >= 0 {
		end += gt + 1
	}
	return Range{Start: start, End: end}, true
}

// classifyTag classifies the '<' at offset i. It returns the kind and the
// offset just past the tag name (meaningful only for head/body/script kinds).
func classifyTag(body []byte, i, limit int) (tagKind, int) {
	j := i + 1
	closing := false
	if j < limit && body[j] == '/' {
		closing = true
		j++
	}
	for j < limit && isSpace(body[j]) {
		j++
	}

	for _, name := range [...]string{"head", "body", "script"} {
		end := j + len(name)
		if end > limit || !equalFold(body[j:end], name) {
			continue
		}
		if end < limit && !isNameTerminator(body[end]) {
			continue
		}
		switch {
		case name == "head" && closing:
			return tagHeadClose, end
		case name == "head":
			return tagHeadOpen, end
		case name == "body" && closing:
			return tagBodyClose, end
		case name == "body":
			return tagBodyOpen, end
		case closing:
			return tagScriptClose, end
		default:
			return tagScriptOpen, end
		}
	}
	return tagOther, j
}

// findTagEnd returns the offset of the '>' ending a tag whose attributes
// start at from, ignoring '>' inside quoted values. The search is bounded by
// tagEndWindow bytes.
func findTagEnd(body []byte, from, limit int) int {
	stop := min(limit, from+tagEndWindow)
	var quote byte
	for i := from; i < stop; i++ {
		c := body[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i
		}
	}
	return -1
}

// attribute is one name[=value] pair of a tag's attribute section.
type attribute struct {
	name       Range
	value      Range
	hasValue   bool
	terminated bool
}

// parseAttributes splits body[from:to] into attributes.
func parseAttributes(body []byte, from, to int) []attribute {
	attrs := make([]attribute, 0, 4)
	i := from
	for i < to {
		for i < to && (isSpace(body[i]) || body[i] == '/') {
			i++
		}
		if i >= to {
			break
		}

		a := attribute{name: Range{Start: i}, terminated: true}
		for i < to && !isSpace(body[i]) && body[i] != '=' && body[i] != '/' {
			i++
		}
		a.name.End = i

		k := i
		for k < to && isSpace(body[k]) {
			k++
		}
		if k < to && body[k] == '=' {
			a.hasValue = true
			k++
			for k < to && isSpace(body[k]) {
				k++
			}
			if k < to && (body[k] == '"' || body[k] == '\'') {
				q := body[k]
				k++
				a.value.Start = k
				for k < to && body[k] != q {
					k++
				}
				a.value.End = k
				if k >= to {
					a.terminated = false
				} else {
					k++
				}
			} else {
				a.value.Start = k
				for k < to && !isSpace(body[k]) {
					k++
				}
				a.value.End = k
			}
			i = k
		}

		if a.name.Len() > 0 {
			attrs = append(attrs, a)
		} else {
			i++
		}
	}
	return attrs
}

// classifyAttributes fills Origin, Src and Nonce of a script node.
func classifyAttributes(body []byte, from, to int, node *ScriptNode) {
	node.Origin = OriginInline
	for _, a := range parseAttributes(body, from, to) {
		name := body[a.name.Start:a.name.End]
		switch {
		case equalFold(name, "src"):
			node.HasSrc = true
			node.Src = a.value
			node.Origin = classifySrc(body, a)
		case equalFold(name, "nonce") && a.hasValue && a.terminated:
			node.Nonce = string(body[a.value.Start:a.value.End])
		}
	}
}

// classifySrc classifies a src attribute by the prefix of its value.
func classifySrc(body []byte, a attribute) Origin {
	if !a.hasValue || !a.terminated {
		return OriginMalformed
	}
	v := bytes.TrimLeft(body[a.value.Start:a.value.End], " \t\n\r\f")
	if len(v) == 0 {
		return OriginMalformed
	}
	for _, c := range v {
		if c < 0x20 || c == 0x7f || c == '<' || c == '"' {
			return OriginMalformed
		}
	}

	switch {
	case hasPrefixFold(v, "https://"), hasPrefixFold(v, "//"):
		return OriginHTTPSExternal
	case hasPrefixFold(v, "http://"):
		return OriginHTTPExternal
	case hasPrefixFold(v, "data:"):
		return OriginDataURI
	case hasScheme(v):
		return OriginUnknown
	default:
		return OriginRelative
	}
}

// hasScheme reports whether v starts with "scheme:" before any '/', '?' or '#'.
func hasScheme(v []byte) bool {
	for i, c := range v {
		switch {
		case c == ':':
			return i > 0
		case c == '/' || c == '?' || c == '#':
			return false
		case isAlpha(c), i > 0 && (isDigit(c) || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isNameTerminator(c byte) bool {
	return isSpace(c) || c == '>' || c == '/'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func lowerASCII(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// equalFold compares b with the lower-case ASCII string s, ignoring case.
func equalFold(b []byte, s string) bool {
	if len(b) != len(s) {
		return false
	}
	for i := range b {
		if lowerASCII(b[i]) != s[i] {
			return false
		}
	}
	return true
}

func hasPrefixFold(b []byte, prefix string) bool {
	return len(b) >= len(prefix) && equalFold(b[:len(prefix)], prefix)
}

// indexFold returns the first index of the lower-case pattern in b, ignoring case.
func indexFold(b []byte, pattern string) int {
	for i := 0; i+len(pattern) <= len(b); i++ {
		if equalFold(b[i:i+len(pattern)], pattern) {
			return i
		}
	}
	return -1
}

// lastIndexFold returns the last index of the lower-case pattern in b, ignoring case.
func lastIndexFold(b []byte, pattern string) int {
	for i := len(b) - len(pattern); i >= 0; i-- {
		if equalFold(b[i:i+len(pattern)], pattern) {
			return i
		}
	}
	return -1
}
