package analyzer

import (
	"context"
	"strconv"

	"github.com/nao1215/urlvet/internal/model"
)

// ResponseAnalyzer classifies the status code. Redirect statuses are left to
// redirect resolution.
type ResponseAnalyzer struct{}

// NewResponseAnalyzer creates a new ResponseAnalyzer.
func NewResponseAnalyzer() *ResponseAnalyzer {
	return &ResponseAnalyzer{}
}

// Name returns the analyzer name.
func (a *ResponseAnalyzer) Name() string {
	return "response"
}

// Phase returns the analyzer phase.
func (a *ResponseAnalyzer) Phase() Phase {
	return PhaseOnline
}

// Analyze checks the status code.
func (a *ResponseAnalyzer) Analyze(_ context.Context, data *AnalysisData) ([]model.Finding, error) {
	rec := data.Record()
	if rec == nil {
		return nil, ErrNoRecord
	}

	code := rec.StatusCode
	detail := strconv.Itoa(code)
	switch {
	case code >= 200 && code < 400:
		return nil, nil
	case code >= 400 && code < 500:
		return []model.Finding{data.finding(model.RuleClientError, detail)}, nil
	case code >= 500 && code < 600:
		return []model.Finding{data.finding(model.RuleServerError, detail)}, nil
	default:
		return []model.Finding{data.finding(model.RuleUnexpectedStatus, detail)}, nil
	}
}
