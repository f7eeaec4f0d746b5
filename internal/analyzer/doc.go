// Package analyzer implements the per-phase checks run against each target.
//
// Offline analyzers (host, path, query, fragment) only read the parsed URL
// and may hand back embedded URLs as new candidates. Online analyzers
// (response, headers, cookies, tls, body, csp) read the fetched record and
// run in that fixed order; the body analyzer records the script layout the
// CSP analyzer cross-checks. After the online analyzers, redirect
// resolution computes the effective next URL.
//
// Analyzers never mutate a target. They return findings built from the
// injected rule book, and the Suite appends them, stopping at the first
// terminal finding.
package analyzer
