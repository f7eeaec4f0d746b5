package pipeline

import (
	"context"
	"strings"

	"github.com/nao1215/urlvet/internal/fetch"
	"github.com/nao1215/urlvet/internal/model"
)

// OfflineStep runs the URL analyzers and queues the embedded URLs they find.
type OfflineStep struct{}

// NewOfflineStep creates a new OfflineStep.
func NewOfflineStep() *OfflineStep {
	return &OfflineStep{}
}

// Name returns the step name.
func (s *OfflineStep) Name() string {
	return "offline"
}

// Do analyses the URL of target. Candidates that do not fit in the queue are
// reported once, in a single informational finding.
func (s *OfflineStep) Do(ctx context.Context, run *Run, target *model.AnalysisTarget) error {
	candidates, err := run.p.suite.RunOffline(ctx, target)
	if err != nil {
		return err
	}
	target.OfflineDone = true

	dropped := make([]string, 0)
	for _, c := range candidates {
		if _, res := run.enqueue(c, model.EntryEmbedded, target); res == queueFull {
			dropped = append(dropped, c)
		}
	}
	if len(dropped) > 0 {
		target.AddFinding(run.p.suite.Rules().Finding(model.RuleEmbeddedCandidates, "", strings.Join(dropped, ", ")))
	}
	return nil
}

// FetchStep retrieves the response of a target.
type FetchStep struct{}

// NewFetchStep creates a new FetchStep.
func NewFetchStep() *FetchStep {
	return &FetchStep{}
}

// Name returns the step name.
func (s *FetchStep) Name() string {
	return "fetch"
}

// Do fetches target.URL. A failed fetch becomes a terminal finding; only
// the end of ctx is returned as an error.
func (s *FetchStep) Do(ctx context.Context, run *Run, target *model.AnalysisTarget) error {
	rec, err := run.p.fetcher.Fetch(ctx, target.URL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		id := model.RuleFetchFailed
		if fetch.IsTimeout(err) {
			id = model.RuleFetchTimeout
		}
		run.p.logger.Warn("fetch failed", "url", target.URL, "error", err)
		target.AddFinding(run.p.suite.Rules().Finding(id, "", err.Error()))
		target.OnlineDone = true
		return nil
	}
	target.Online = rec
	run.p.logger.Debug("fetched", "url", target.URL, "status", rec.StatusCode, "cached", rec.FromCache)
	return nil
}

// OnlineStep runs the response analyzers.
type OnlineStep struct{}

// NewOnlineStep creates a new OnlineStep.
func NewOnlineStep() *OnlineStep {
	return &OnlineStep{}
}

// Name returns the step name.
func (s *OnlineStep) Name() string {
	return "online"
}

// Do analyses target.Online and records the redirect destination, if any.
func (s *OnlineStep) Do(ctx context.Context, run *Run, target *model.AnalysisTarget) error {
	if target.Online == nil {
		return nil
	}
	if _, err := run.p.suite.RunOnline(ctx, target); err != nil {
		return err
	}
	target.OnlineDone = true
	return nil
}

// RedirectStep follows the redirect found by the online analyzers.
type RedirectStep struct{}

// NewRedirectStep creates a new RedirectStep.
func NewRedirectStep() *RedirectStep {
	return &RedirectStep{}
}

// Name returns the step name.
func (s *RedirectStep) Name() string {
	return "redirect"
}

// Do queues the redirect destination and analyses it depth-first. A
// destination already in the queue is a loop and stops the run.
func (s *RedirectStep) Do(ctx context.Context, run *Run, target *model.AnalysisTarget) error {
	if target.Online == nil || target.Online.RedirectURL == "" {
		return nil
	}
	next := target.Online.RedirectURL
	rules := run.p.suite.Rules()

	child, res := run.enqueue(next, model.EntryRedirect, target)
	switch res {
	case duplicate:
		run.p.logger.Info("redirect loop", "url", target.URL, "next", next)
		target.AddFinding(rules.Finding(model.RuleRedirectLoop, "", next))
		return nil
	case queueFull:
		target.AddFinding(rules.Finding(model.RuleRedirectLimit, "", next))
		return nil
	}

	if err := run.offline(ctx); err != nil {
		return err
	}
	return run.online(ctx, child)
}
