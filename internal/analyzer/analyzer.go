package analyzer

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/urlvet/internal/config"
	urlvetlog "github.com/nao1215/urlvet/internal/log"
	"github.com/nao1215/urlvet/internal/model"
	"github.com/nao1215/urlvet/internal/scanner"
)

// Phase tells when an analyzer runs.
type Phase int

const (
	// PhaseOffline analyzers only look at the URL itself.
	PhaseOffline Phase = iota
	// PhaseOnline analyzers need the fetched response.
	PhaseOnline
)

// String returns the phase name.
func (p Phase) String() string {
	if p == PhaseOnline {
		return "online"
	}
	return "offline"
}

// CheckAnalyzer is one pluggable check. Analyzers never mutate the target;
// they return findings and the Suite appends them.
type CheckAnalyzer interface {
	// Name returns the analyzer's name for logging.
	Name() string

	// Phase returns the phase the analyzer belongs to.
	Phase() Phase

	// Analyze runs the check against data.
	Analyze(ctx context.Context, data *AnalysisData) ([]model.Finding, error)
}

// AnalysisData is everything an analyzer may look at. Online analyzers run
// in a fixed order and later ones read what earlier ones recorded here:
// the body analyzer fills Document and Page, the CSP analyzer consumes them.
type AnalysisData struct {
	// Target is the URL under evaluation.
	Target *model.AnalysisTarget

	// Rules is the penalty/severity table findings are built from.
	Rules *model.RuleBook

	// Vocab holds the detection tables.
	Vocab *config.Vocabulary

	// Calls scans inline script text for watched call-sites.
	Calls *scanner.CallScanner

	// CallRules maps a watched call-site name to its rule.
	CallRules map[string]model.RuleID

	// Now is the reference time for certificate and cookie checks.
	Now time.Time

	// Candidates collects embedded URLs found by offline analyzers.
	Candidates []string

	// Document is the script layout of the body, nil when extraction was
	// skipped or failed.
	Document *scanner.Document

	// Page holds what the tokenizer pass saw, nil when the body is not HTML.
	Page *PageInfo
}

// finding builds a finding for the current target.
func (d *AnalysisData) finding(id model.RuleID, detail string) model.Finding {
	return d.Rules.Finding(id, d.Target.URL, detail)
}

// addCandidate records an embedded URL once.
func (d *AnalysisData) addCandidate(u string) {
	for _, c := range d.Candidates {
		if c == u {
			return
		}
	}
	d.Candidates = append(d.Candidates, u)
}

// Record returns the online record of the target, or nil.
func (d *AnalysisData) Record() *model.OnlineRecord {
	return d.Target.Online
}

// Suite runs the registered analyzers of one phase against a target.
// It is safe for concurrent use once built: every run gets its own
// AnalysisData.
type Suite struct {
	analyzers []CheckAnalyzer
	rules     *model.RuleBook
	vocab     *config.Vocabulary
	calls     *scanner.CallScanner
	callRules map[string]model.RuleID
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Suite.
type Option func(*Suite)

// WithRules sets the rule book findings are built from.
func WithRules(rules *model.RuleBook) Option {
	return func(s *Suite) {
		s.rules = rules
	}
}

// WithVocabulary sets the detection tables.
func WithVocabulary(vocab *config.Vocabulary) Option {
	return func(s *Suite) {
		s.vocab = vocab
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Suite) {
		s.logger = logger
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Suite) {
		s.now = now
	}
}

// NewSuite creates a Suite with every built-in analyzer registered in
// execution order.
func NewSuite(opts ...Option) *Suite {
	s := &Suite{
		rules:  model.NewRuleBook(),
		vocab:  config.DefaultVocabulary(),
		logger: urlvetlog.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	watches := make([]scanner.Watch, 0, len(s.vocab.ScriptCalls))
	s.callRules = make(map[string]model.RuleID, len(s.vocab.ScriptCalls))
	for _, call := range s.vocab.ScriptCalls {
		anchor := scanner.AnchorCall
		if call.Member {
			anchor = scanner.AnchorMember
		}
		watches = append(watches, scanner.Watch{Name: call.Name, Anchor: anchor})
		s.callRules[call.Name] = call.Rule
	}
	s.calls = scanner.NewCallScanner(watches)

	// Offline: host first, then path, query and fragment.
	s.Register(NewHostAnalyzer())
	s.Register(NewPathAnalyzer())
	s.Register(NewQueryAnalyzer())
	s.Register(NewFragmentAnalyzer())

	// Online: the body must run before CSP, which cross-checks its scripts.
	s.Register(NewResponseAnalyzer())
	s.Register(NewHeaderAnalyzer())
	s.Register(NewCookieAnalyzer())
	s.Register(NewTLSAnalyzer())
	s.Register(NewBodyAnalyzer())
	s.Register(NewCSPAnalyzer())

	return s
}

// Register appends an analyzer. Analyzers of a phase run in registration order.
func (s *Suite) Register(a CheckAnalyzer) {
	s.analyzers = append(s.analyzers, a)
}

// Rules returns the rule book of the suite.
func (s *Suite) Rules() *model.RuleBook {
	return s.rules
}

// Analyzers returns the names of the registered analyzers of phase, in order.
func (s *Suite) Analyzers(phase Phase) []string {
	names := make([]string, 0, len(s.analyzers))
	for _, a := range s.analyzers {
		if a.Phase() == phase {
			names = append(names, a.Name())
		}
	}
	return names
}

func (s *Suite) newData(target *model.AnalysisTarget) *AnalysisData {
	return &AnalysisData{
		Target:    target,
		Rules:     s.rules,
		Vocab:     s.vocab,
		Calls:     s.calls,
		CallRules: s.callRules,
		Now:       s.now(),
	}
}

// RunOffline runs the offline analyzers, appends their findings to target
// and returns the embedded URL candidates they found. A terminal finding
// stops the remaining analyzers.
func (s *Suite) RunOffline(ctx context.Context, target *model.AnalysisTarget) ([]string, error) {
	data := s.newData(target)
	if err := s.run(ctx, PhaseOffline, data); err != nil {
		return nil, err
	}
	return data.Candidates, nil
}

// RunOnline runs the online analyzers against target.Online, appends their
// findings and returns the effective next URL when the response redirects.
func (s *Suite) RunOnline(ctx context.Context, target *model.AnalysisTarget) (string, error) {
	data := s.newData(target)
	if err := s.run(ctx, PhaseOnline, data); err != nil {
		return "", err
	}
	if target.HasTerminal() {
		return "", nil
	}

	next, findings := resolveRedirect(data)
	target.AddFindings(findings)
	if next != "" {
		target.Online.RedirectURL = next
	}
	return next, nil
}

func (s *Suite) run(ctx context.Context, phase Phase, data *AnalysisData) error {
	for _, a := range s.analyzers {
		if a.Phase() != phase {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		findings, err := a.Analyze(ctx, data)
		data.Target.AddFindings(findings)
		if err != nil {
			// One failing check must not hide the others.
			s.logger.Debug("analyzer failed", "analyzer", a.Name(), "url", data.Target.URL, "error", err)
			if data.Target.HasTerminal() {
				return nil
			}
			continue
		}
		s.logger.Debug("analyzer done", "analyzer", a.Name(), "url", data.Target.URL, "findings", len(findings))

		if data.Target.HasTerminal() {
			return nil
		}
	}
	return nil
}
