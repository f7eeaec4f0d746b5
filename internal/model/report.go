package model

import "time"

// Verdict is the label derived from the score.
type Verdict string

const (
	// VerdictLegitimate is used for scores of 80 and above.
	VerdictLegitimate Verdict = "legitimate"
	// VerdictQuestionable is used for scores from 50 to 79.
	VerdictQuestionable Verdict = "questionable"
	// VerdictMalicious is used for scores below 50.
	VerdictMalicious Verdict = "likely malicious"
	// VerdictBlocked is used when a terminal finding stopped the analysis.
	VerdictBlocked Verdict = "blocked"
	// VerdictUnreachable is used when the analysis stopped on a fetch error.
	VerdictUnreachable Verdict = "unreachable"
)

// Score thresholds for verdicts.
const (
	LegitimateThreshold   = 80
	QuestionableThreshold = 50
)

// VerdictFor derives the verdict from a score and the terminal finding, if any.
func VerdictFor(score int, terminal *Finding) Verdict {
	if terminal != nil {
		if terminal.Severity == SeverityFetchError {
			return VerdictUnreachable
		}
		return VerdictBlocked
	}
	switch {
	case score >= LegitimateThreshold:
		return VerdictLegitimate
	case score >= QuestionableThreshold:
		return VerdictQuestionable
	default:
		return VerdictMalicious
	}
}

// Report is the finalized result of analysing one input URL.
type Report struct {
	// ID uniquely identifies this analysis run.
	ID string `json:"id"`

	// Input is the URL string the analysis started from.
	Input string `json:"input"`

	Score   int     `json:"score"`
	Verdict Verdict `json:"verdict"`

	// Stopped is true when the pipeline halted before every target was processed.
	Stopped bool `json:"stopped"`

	// StopReason is the message of the finding that halted the pipeline.
	StopReason string `json:"stop_reason,omitempty"`

	// Targets is the queue in insertion order.
	Targets []*AnalysisTarget `json:"targets"`

	// Groups is the grouped presentation of every finding.
	Groups []URLGroup `json:"groups"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Findings returns every finding of every target in queue order.
func (r *Report) Findings() []Finding {
	out := make([]Finding, 0)
	for _, t := range r.Targets {
		out = append(out, t.Findings...)
	}
	return out
}

// CountBySeverity counts findings per severity.
func (r *Report) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, f := range r.Findings() {
		counts[f.Severity]++
	}
	return counts
}

// Terminal returns the first terminal finding, or nil.
func (r *Report) Terminal() *Finding {
	for _, t := range r.Targets {
		for i := range t.Findings {
			if t.Findings[i].IsTerminal() {
				return &t.Findings[i]
			}
		}
	}
	return nil
}

// Processed returns the number of targets whose online phase finished.
func (r *Report) Processed() int {
	n := 0
	for _, t := range r.Targets {
		if t.OnlineDone {
			n++
		}
	}
	return n
}
