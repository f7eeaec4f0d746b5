package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/urlvet/internal/analyzer"
	"github.com/nao1215/urlvet/internal/fetch"
	urlvetlog "github.com/nao1215/urlvet/internal/log"
	"github.com/nao1215/urlvet/internal/model"
	"github.com/nao1215/urlvet/internal/urlparse"
)

// MaxTargets is the capacity of the analysis queue. The initial URL counts.
const MaxTargets = 5

// Step is one unit of work applied to a queued target.
// Steps of a phase run in order until one fails or the run halts.
type Step interface {
	// Do processes target within run. A returned error aborts the run.
	Do(ctx context.Context, run *Run, target *model.AnalysisTarget) error

	// Name returns a human-readable name for logging.
	Name() string
}

// Pipeline analyses URLs. It holds no per-analysis state: every call to
// Start or Analyze gets its own Run, so one Pipeline may serve many
// goroutines.
type Pipeline struct {
	parser      *urlparse.Parser
	suite       *analyzer.Suite
	fetcher     fetch.Fetcher
	logger      *slog.Logger
	now         func() time.Time
	offlineOnly bool
	maxTargets  int

	offlineSteps []Step
	onlineSteps  []Step
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithFetcher sets the fetcher used by the online phase.
func WithFetcher(f fetch.Fetcher) Option {
	return func(p *Pipeline) {
		p.fetcher = f
	}
}

// WithSuite sets the analyzer suite. The parser shares its rule book.
func WithSuite(s *analyzer.Suite) Option {
	return func(p *Pipeline) {
		p.suite = s
	}
}

// WithOfflineOnly skips the online phase: nothing is fetched.
func WithOfflineOnly(offline bool) Option {
	return func(p *Pipeline) {
		p.offlineOnly = offline
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// withMaxTargets lowers the queue capacity, for tests.
func withMaxTargets(n int) Option {
	return func(p *Pipeline) {
		if n > 0 && n < MaxTargets {
			p.maxTargets = n
		}
	}
}

// New creates a Pipeline with the offline and online steps registered.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		logger:     urlvetlog.Discard(),
		now:        time.Now,
		maxTargets: MaxTargets,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = urlvetlog.Discard()
	}
	if p.suite == nil {
		p.suite = analyzer.NewSuite(analyzer.WithLogger(p.logger))
	}
	p.parser = urlparse.NewParser(p.suite.Rules())

	p.offlineSteps = []Step{NewOfflineStep()}
	p.onlineSteps = []Step{NewFetchStep(), NewOnlineStep(), NewRedirectStep()}
	return p
}

// StepNames returns the names of the registered steps, offline first.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, len(p.offlineSteps)+len(p.onlineSteps))
	for _, s := range p.offlineSteps {
		names = append(names, s.Name())
	}
	for _, s := range p.onlineSteps {
		names = append(names, s.Name())
	}
	return names
}

// Analyze runs a complete analysis of raw and returns the finalized report.
// The report is produced even when the analysis stops early. The error is
// non-nil only when the pipeline is misconfigured or ctx ends; in the latter
// case the partial report is returned with it.
func (p *Pipeline) Analyze(ctx context.Context, raw string) (*model.Report, error) {
	run, err := p.Start(raw)
	if err != nil {
		return nil, err
	}
	return run.Execute(ctx)
}

// Start creates a Run for raw without executing it. The caller may keep the
// Run to Stop it from another goroutine.
func (p *Pipeline) Start(raw string) (*Run, error) {
	if p.fetcher == nil && !p.offlineOnly {
		return nil, ErrNoFetcher
	}
	return newRun(p, raw), nil
}

// executeSteps runs steps against target, logging each one.
func (p *Pipeline) executeSteps(ctx context.Context, run *Run, steps []Step, target *model.AnalysisTarget) error {
	for _, step := range steps {
		if run.halted(ctx) {
			return nil
		}
		p.logger.Debug("executing step", "step", step.Name(), "index", target.Index, "url", target.URL)
		if err := step.Do(ctx, run, target); err != nil {
			return fmt.Errorf("step %s: %w", step.Name(), err)
		}
	}
	return nil
}
