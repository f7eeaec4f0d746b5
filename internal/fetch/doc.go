// Package fetch retrieves the online record of a target.
//
// HTTPFetcher issues exactly one GET per call and never follows redirects:
// the orchestrator walks the chain itself so that every hop is analysed.
// The body is bounded, per-site headers and cookies from the config file
// are injected, and the TLS connection state is reduced to a
// model.Certificate so the analyzers never touch raw TLS data.
//
// CachingFetcher wraps any Fetcher with a response cache.
package fetch
