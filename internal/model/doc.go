// Package model defines the core data structures shared by every urlvet component.
//
// This package contains the following main types:
//   - Finding: one security observation emitted by an analyzer
//   - Severity and Category: the closed enums a Finding is classified by
//   - RuleBook: the penalty/severity lookup table every analyzer emits through
//   - AnalysisTarget: one URL of a redirect chain, with its OnlineRecord
//   - Report: the finalized result of one analysis (score plus grouped findings)
//
// Models live in their own package so that the scanner, analyzer, pipeline and
// report packages can share them without import cycles. All exported types are
// JSON serializable for report output and the response cache.
package model
