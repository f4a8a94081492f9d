package driver

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"borrowsim/internal/borrow"
	"borrowsim/internal/diag"
	"borrowsim/internal/diagfmt"
	"borrowsim/internal/observ"
	"borrowsim/internal/script"
	"borrowsim/internal/source"
	"borrowsim/internal/trace"
)

// ErrInvalidScript is returned in Result.Err when validation rejected a script.
var ErrInvalidScript = errors.New("invalid script")

// Options configure a multi-script run.
type Options struct {
	// Jobs bounds how many scripts replay at once (<= 0 means GOMAXPROCS).
	Jobs           int
	MaxDiagnostics int
	// Lexical holds every borrow until its scope exits.
	Lexical bool
	// Events keeps the full simulator report, bypassing cache reads.
	Events   bool
	Cache    *DiskCache
	Progress ProgressSink
	Timer    *observ.Timer
}

// Summary counts step outcomes of one replay.
type Summary struct {
	Ops      int
	Expected int
	Failed   int
}

// Result is the outcome of one source.
type Result struct {
	Source Source
	Name   string
	Script *script.Script
	// Report is nil when the script failed to load or the verdict was cached.
	Report  *borrow.Report
	Bag     *diag.Bag
	Summary Summary
	Cached  bool
	Err     error
}

// Passed reports whether the script loaded, replayed and met its expectations.
func (r *Result) Passed() bool {
	return r.Err == nil && r.Summary.Failed == 0
}

// Row renders the result as a verdict table row.
func (r *Result) Row() diagfmt.VerdictRow {
	row := diagfmt.VerdictRow{
		Name:     r.Name,
		Ops:      r.Summary.Ops,
		Expected: r.Summary.Expected,
		Failed:   r.Summary.Failed,
		Cached:   r.Cached,
	}
	if r.Err != nil {
		row.Err = r.Err.Error()
	}
	return row
}

func summarize(rep *borrow.Report) Summary {
	s := Summary{Ops: len(rep.Steps), Expected: rep.Count(borrow.OutcomeExpected)}
	for i := range rep.Steps {
		if rep.Steps[i].Outcome.Failed() {
			s.Failed++
		}
	}
	return s
}

// Run loads every source into fileSet and replays the scripts concurrently.
// Results are returned in the order of sources. Per-script failures are
// recorded in Result.Err; the returned error is only set on cancellation.
func Run(ctx context.Context, fileSet *source.FileSet, sources []Source, opts Options) ([]Result, error) {
	tracer := trace.FromContext(ctx)
	runSpan := trace.Begin(tracer, trace.ScopeDriver, "run", 0).
		WithExtra("scripts", strconv.Itoa(len(sources)))
	defer runSpan.End("")

	results := make([]Result, len(sources))
	if len(sources) == 0 {
		return results, nil
	}
	for _, src := range sources {
		emit(opts.Progress, Event{Script: src.String(), Stage: StageLoad, Status: StatusQueued})
	}

	// FileSet is not safe for concurrent use, so loading is sequential.
	endLoad := opts.Timer.Track("load")
	for i, src := range sources {
		results[i] = Result{Source: src, Name: src.String(), Bag: diag.NewBag(opts.MaxDiagnostics)}
		s, err := load(fileSet, src, results[i].Bag)
		if err != nil {
			results[i].Err = err
			emit(opts.Progress, Event{Script: src.String(), Stage: StageLoad, Status: StatusError, Err: err})
			trace.Point(tracer, trace.ScopeScript, "load", runSpan.ID(), src.String()+": "+err.Error())
			continue
		}
		results[i].Script = s
		results[i].Name = s.Name
	}
	endLoad(fmt.Sprintf("%d scripts", len(sources)))

	progress := trace.ProgressFrom(ctx)
	for i := range results {
		if results[i].Script != nil {
			progress.Expect(1)
		}
	}

	// Настраиваем параллелизм
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(sources)))
	for i := range results {
		if results[i].Script == nil {
			continue
		}
		// индексы уникальны для каждой горутины, мьютекс не нужен
		res := &results[i]
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			if err := replayOne(gctx, res, opts, runSpan.ID()); err != nil {
				return err
			}
			progress.Finish(res.Passed())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		emit(opts.Progress, Event{Status: StatusError, Err: err})
		return results, err
	}
	emit(opts.Progress, Event{Status: StatusDone})
	return results, nil
}

func replayOne(ctx context.Context, res *Result, opts Options, parent uint64) error {
	tracer := trace.FromContext(ctx)
	s := res.Script
	span := trace.BeginScript(tracer, s.Name, parent)
	endPhase := opts.Timer.Track("replay " + s.Name)

	emit(opts.Progress, Event{Script: res.Source.String(), Stage: StageValidate, Status: StatusWorking})
	ps := script.Validate(s, borrow.ValidationChecks())
	// several checks may flag the same op with the same message
	ps.Report(diag.NewDedupReporter(diag.BagReporter{Bag: res.Bag}))
	if ps.HasErrors() {
		res.Err = ErrInvalidScript
		span.End("invalid")
		endPhase("invalid")
		emit(opts.Progress, Event{Script: res.Source.String(), Stage: StageValidate, Status: StatusError, Err: res.Err})
		return nil
	}

	key, keyErr := cacheKey(s, opts)
	if keyErr == nil && opts.Cache != nil && !opts.Events {
		var payload VerdictPayload
		hit, err := opts.Cache.Get(key, &payload)
		if err != nil {
			span.Note("cache", err.Error())
		}
		if hit {
			for _, d := range rebindSpans(payload.Diagnostics, s.File) {
				res.Bag.Add(d)
			}
			res.Summary = payload.Summary
			res.Cached = true
			span.WithExtra("cached", "true").End(verdictDetail(res))
			endPhase("cached")
			emit(opts.Progress, Event{Script: res.Source.String(), Stage: StageReplay, Status: StatusCached})
			return nil
		}
	}

	emit(opts.Progress, Event{Script: res.Source.String(), Stage: StageReplay, Status: StatusWorking})
	var observer func(borrow.BorrowEvent)
	if tracer.Level().ShouldEmit(trace.ScopeEvent) {
		observer = func(ev borrow.BorrowEvent) {
			span.Event(int(ev.Pos), ev.Kind.String(), eventDetail(ev))
		}
	}
	rep, err := borrow.Run(ctx, s, borrow.RunOptions{Observer: observer, Lexical: opts.Lexical})
	if err != nil {
		span.End(err.Error())
		endPhase("aborted")
		var problems script.Problems
		if errors.As(err, &problems) {
			res.Err = ErrInvalidScript
			return nil
		}
		res.Err = err
		emit(opts.Progress, Event{Script: res.Source.String(), Stage: StageReplay, Status: StatusError, Err: err})
		return err
	}
	for i := range rep.Steps {
		st := &rep.Steps[i]
		detail := st.Outcome.String()
		if st.Err != nil {
			detail += ": " + st.Err.Error()
		}
		span.Op(int(st.Pos), string(st.Op.Op), detail)
	}

	// the verdict is cached before the run's cap and without validation
	// problems, which every run reports afresh
	verdict := diag.NewBag(0)
	rep.Diagnostics(diag.BagReporter{Bag: verdict})
	for _, d := range verdict.Items() {
		res.Bag.Add(d)
	}
	res.Summary = summarize(rep)
	if opts.Events {
		res.Report = rep
	}

	if keyErr == nil && opts.Cache != nil {
		payload := &VerdictPayload{Name: s.Name, Summary: res.Summary, Diagnostics: verdict.Items()}
		if err := opts.Cache.Put(key, payload); err != nil {
			span.Note("cache", err.Error())
		}
	}

	span.End(verdictDetail(res))
	endPhase(verdictDetail(res))
	status := StatusDone
	if !res.Passed() {
		status = StatusFailed
	}
	emit(opts.Progress, Event{Script: res.Source.String(), Stage: StageReplay, Status: status})
	return nil
}

func cacheKey(s *script.Script, opts Options) (CacheKey, error) {
	if opts.Cache == nil {
		return CacheKey{}, errors.New("no cache")
	}
	d, err := s.Digest()
	if err != nil {
		return CacheKey{}, err
	}
	return NewCacheKey(d, opts.Lexical), nil
}

func verdictDetail(res *Result) string {
	return fmt.Sprintf("ops=%d expected=%d failed=%d", res.Summary.Ops, res.Summary.Expected, res.Summary.Failed)
}

func eventDetail(ev borrow.BorrowEvent) string {
	parts := make([]string, 0, 3)
	if ev.Name != "" {
		parts = append(parts, ev.Name)
	}
	if ev.Kind == borrow.BorrowEvViolation {
		parts = append(parts, ev.Issue.String())
	}
	if ev.Note != "" {
		parts = append(parts, "("+ev.Note+")")
	}
	return strings.Join(parts, " ")
}
