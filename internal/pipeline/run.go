package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/urlvet/internal/model"
	"github.com/nao1215/urlvet/internal/urlparse"
)

// enqueueResult tells what happened to a URL offered to the queue.
type enqueueResult int

const (
	enqueued enqueueResult = iota
	duplicate
	queueFull
)

// Run is the state of one analysis: the target queue and its guards.
// A Run is driven by a single goroutine; only Stop may be called
// concurrently.
type Run struct {
	p       *Pipeline
	input   string
	queue   []*model.AnalysisTarget
	started time.Time

	executed atomic.Bool
	stopped  atomic.Bool

	finalizeOnce sync.Once
	report       *model.Report
}

func newRun(p *Pipeline, raw string) *Run {
	first := p.parser.Parse(raw)
	first.Index = 0
	first.Parent = -1
	first.Entry = model.EntryInitial
	return &Run{
		p:     p,
		input: raw,
		queue: []*model.AnalysisTarget{first},
	}
}

// Stop asks the run to halt before its next step. The report is still
// finalized.
func (r *Run) Stop() {
	r.stopped.Store(true)
}

// Targets returns the queue in insertion order.
func (r *Run) Targets() []*model.AnalysisTarget {
	return r.queue
}

// Execute processes the queue until every target is done or the run halts,
// then finalizes. Calling Execute again returns the same report.
func (r *Run) Execute(ctx context.Context) (*model.Report, error) {
	if !r.executed.CompareAndSwap(false, true) {
		return r.finalize(ctx), nil
	}
	r.started = r.p.now()
	r.p.logger.Info("analysis started", "url", r.input, "offline_only", r.p.offlineOnly)

	err := r.execute(ctx)
	if err == nil {
		err = ctx.Err()
	}
	return r.finalize(ctx), err
}

func (r *Run) execute(ctx context.Context) error {
	if err := r.offline(ctx); err != nil {
		return err
	}
	if r.p.offlineOnly {
		return nil
	}
	for i := 0; i < len(r.queue); i++ {
		if r.halted(ctx) {
			return nil
		}
		if err := r.online(ctx, r.queue[i]); err != nil {
			return err
		}
		// Redirect targets may have queued embedded URLs.
		if err := r.offline(ctx); err != nil {
			return err
		}
	}
	return nil
}

// offline runs the offline steps on every target not yet analysed offline,
// in queue order. Targets appended meanwhile are picked up by the same loop.
func (r *Run) offline(ctx context.Context) error {
	for i := 0; i < len(r.queue); i++ {
		if r.halted(ctx) {
			return nil
		}
		t := r.queue[i]
		if t.OfflineDone {
			continue
		}
		if err := r.p.executeSteps(ctx, r, r.p.offlineSteps, t); err != nil {
			return err
		}
	}
	return nil
}

// online runs the online steps on t. A redirect recurses into the new target
// before any sibling is visited.
func (r *Run) online(ctx context.Context, t *model.AnalysisTarget) error {
	if t.OnlineDone || t.OnlineInProgress {
		return nil
	}
	t.OnlineInProgress = true
	defer func() { t.OnlineInProgress = false }()

	return r.p.executeSteps(ctx, r, r.p.onlineSteps, t)
}

// halted reports whether processing must stop: a manual stop, an ended
// context or a terminal finding anywhere in the queue.
func (r *Run) halted(ctx context.Context) bool {
	if r.stopped.Load() || ctx.Err() != nil {
		return true
	}
	for _, t := range r.queue {
		if t.HasTerminal() {
			return true
		}
	}
	return false
}

// enqueue parses raw and appends it unless a queued URL matches it
// case-insensitively or the queue is full. The duplicate check comes first,
// so a loop is reported even on a full queue.
func (r *Run) enqueue(raw string, entry model.Entry, parent *model.AnalysisTarget) (*model.AnalysisTarget, enqueueResult) {
	t := r.p.parser.Parse(raw)
	if r.contains(t.URL) || r.contains(raw) {
		return nil, duplicate
	}
	if len(r.queue) >= r.p.maxTargets {
		return nil, queueFull
	}

	t.Index = len(r.queue)
	t.Parent = parent.Index
	t.Entry = entry
	r.queue = append(r.queue, t)
	r.p.logger.Debug("target queued", "url", t.URL, "index", t.Index, "parent", t.Parent, "entry", entry.String())
	return t, enqueued
}

func (r *Run) contains(u string) bool {
	key := urlparse.Key(u)
	for _, t := range r.queue {
		if urlparse.Key(t.URL) == key {
			return true
		}
	}
	return false
}

// finalize builds the report exactly once.
func (r *Run) finalize(ctx context.Context) *model.Report {
	r.finalizeOnce.Do(func() {
		rep := &model.Report{
			ID:         uuid.NewString(),
			Input:      r.input,
			Targets:    r.queue,
			StartedAt:  r.started,
			FinishedAt: r.p.now(),
		}
		rep.Score = model.ComputeScore(r.queue)
		terminal := rep.Terminal()
		rep.Verdict = model.VerdictFor(rep.Score, terminal)
		switch {
		case terminal != nil:
			rep.Stopped = true
			rep.StopReason = terminal.Message
		case r.stopped.Load():
			rep.Stopped = true
			rep.StopReason = "stopped"
		case ctx.Err() != nil:
			rep.Stopped = true
			rep.StopReason = ctx.Err().Error()
		}
		rep.Groups = model.GroupForReport(rep.Findings())
		r.report = rep

		r.p.logger.Info("analysis finished",
			"url", r.input,
			"score", rep.Score,
			"verdict", string(rep.Verdict),
			"targets", len(rep.Targets),
			"elapsed", rep.FinishedAt.Sub(rep.StartedAt),
		)
	})
	return r.report
}
