// Package pipeline drives the analysis of a URL through its offline and
// online phases.
//
// A Run owns a bounded queue of targets. The initial URL is parsed and
// analysed offline; embedded URLs found in its query or fragment are queued
// and analysed offline too. The online phase then fetches each target in
// queue order, analyses the response and follows redirects depth-first.
// A critical or fetch error finding anywhere in the queue halts the run,
// and the report is finalized exactly once whichever way the run ends.
//
// BatchProcessor runs independent analyses concurrently with errgroup.
package pipeline
