package model

import "sort"

// BaselineScore is the score of a URL without findings.
const BaselineScore = 100

// ScoreFindings sums every penalty onto BaselineScore and clamps the result to [0, 100].
// The result does not depend on the order of findings.
func ScoreFindings(findings []Finding) int {
	total := BaselineScore
	for _, f := range findings {
		total += f.Penalty
	}
	return clamp(total, 0, BaselineScore)
}

// ComputeScore scores the findings of every target together.
func ComputeScore(targets []*AnalysisTarget) int {
	total := BaselineScore
	for _, t := range targets {
		for _, f := range t.Findings {
			total += f.Penalty
		}
	}
	return clamp(total, 0, BaselineScore)
}

// clamp limits v to [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CategoryGroup is the findings of one category, most severe first.
type CategoryGroup struct {
	Category Category  `json:"category"`
	Findings []Finding `json:"findings"`
}

// URLGroup is the findings raised against one origin URL.
type URLGroup struct {
	Origin     string          `json:"origin"`
	Categories []CategoryGroup `json:"categories"`
}

// GroupForReport arranges findings for presentation.
// Origins keep first-seen order. Categories follow DisplayOrder with
// sub-categories folded into their parent. Inside a category, terminal
// severities come first, then the ordinary severities from most to least
// severe. Findings of equal severity keep their input order.
func GroupForReport(findings []Finding) []URLGroup {
	origins := make([]string, 0)
	byOrigin := make(map[string][]Finding)
	for _, f := range findings {
		if _, ok := byOrigin[f.Origin]; !ok {
			origins = append(origins, f.Origin)
		}
		byOrigin[f.Origin] = append(byOrigin[f.Origin], f)
	}

	groups := make([]URLGroup, 0, len(origins))
	for _, origin := range origins {
		byCategory := make(map[Category][]Finding)
		for _, f := range byOrigin[origin] {
			c := f.Category.Normalize()
			byCategory[c] = append(byCategory[c], f)
		}

		g := URLGroup{Origin: origin, Categories: make([]CategoryGroup, 0)}
		for _, c := range DisplayOrder {
			list, ok := byCategory[c]
			if !ok {
				continue
			}
			sort.SliceStable(list, func(i, j int) bool {
				return severityRank(list[i].Severity) > severityRank(list[j].Severity)
			})
			g.Categories = append(g.Categories, CategoryGroup{Category: c, Findings: list})
		}
		groups = append(groups, g)
	}
	return groups
}

// severityRank orders severities for display. Fetch errors sort with critical.
func severityRank(s Severity) int {
	if s == SeverityFetchError {
		return int(SeverityCritical)
	}
	return int(s)
}
