// Package scanner inspects raw response bytes without building a DOM.
//
// # Script extraction
//
// ExtractScripts locates the <html> span, classifies every '<' inside it
// against the head, body and script tag names, and returns one ScriptNode per
// script element with byte offsets into the original buffer. Documents whose
// structure is inconsistent (missing head or body, head after body, unbalanced
// script tags, unterminated script tags) are rejected as a whole: callers get
// an error and no nodes, never a partial list.
//
// # Call-site scanning
//
// CallScanner finds watched function calls ("eval(", "document.write(") and
// property accesses ("document.cookie", ".setItem") in the concatenated inline
// script text. Candidate offsets are pre-filtered on the last two bytes of
// every watched name before any full comparison. ScanNaive performs the same
// search without the prefilter and exists for differential testing.
//
// # Content-Security-Policy
//
// ParseCSP turns a header or meta value into a Policy, a map from directive
// name to classified source values. Policy.String renders a canonical value
// that parses back to the same map.
package scanner
