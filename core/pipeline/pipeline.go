package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ltcombine/core/combiner"
	"ltcombine/core/logictree"
	"ltcombine/internal/errors"
	"ltcombine/internal/logging"
)

// State is the lifecycle state of a Pipeline
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateStreaming
	StateDraining
	StateClosed
	StateFailed
)

// String implements Stringer
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithComputeThreads sets the compute pool size
func WithComputeThreads(n int) Option {
	return func(p *Pipeline) { p.computeThreads = n }
}

// WithIOThreads sets the IO pool size
func WithIOThreads(n int) Option {
	return func(p *Pipeline) { p.ioThreads = n }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithObserver sets the progress observer
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithMetrics records run metrics
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline streams the branches of a combination through its processors.
// A pipeline runs once.
type Pipeline struct {
	combiner   *combiner.Combiner
	processors []Processor

	computeThreads int
	ioThreads      int
	logger         *zap.Logger
	observer       Observer
	metrics        *Metrics

	mu    sync.Mutex
	state State
	runID string
}

// New creates a pipeline over c
func New(c *combiner.Combiner, opts ...Option) *Pipeline {
	p := &Pipeline{combiner: c}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.OrComponent(p.logger, "pipeline")
	if p.computeThreads <= 0 {
		p.computeThreads = DefaultComputeThreads()
	}
	if p.ioThreads <= 0 {
		p.ioThreads = DefaultIOThreads(p.computeThreads)
	}
	return p
}

// Add registers processors; they are initialized, fed and closed in
// registration order.
func (p *Pipeline) Add(procs ...Processor) *Pipeline {
	p.processors = append(p.processors, procs...)
	return p
}

// State returns the current lifecycle state
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// RunID returns the id of the current or last run
func (p *Pipeline) RunID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runID
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// pending is the in-flight branch of one processor
type pending struct {
	future *Future
	index  int
}

// runState holds the per-run timing state
type runState struct {
	id         string
	logger     *zap.Logger
	watch      Stopwatch
	combining  Stopwatch
	procWatch  []Stopwatch
	inFlight   []*pending
	compute    *Pool
	io         *Pool
	dispatch   *Pool
	cancel     context.CancelFunc
	done       int
}

// Run builds the combined tree if needed, initializes every processor,
// streams every branch through them and closes them.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	if len(p.processors) == 0 {
		return nil, errors.Precondition("no processors supplied")
	}
	p.mu.Lock()
	if p.state != StateIdle {
		state := p.state
		p.mu.Unlock()
		return nil, errors.Precondition("pipeline can only run once, state is %s", state)
	}
	p.state = StateInitializing
	p.runID = uuid.NewString()
	p.mu.Unlock()

	r := &runState{
		id:        p.runID,
		logger:    logging.Run(p.logger, p.runID),
		procWatch: make([]Stopwatch, len(p.processors)),
		inFlight:  make([]*pending, len(p.processors)),
		compute:   NewPool("compute", p.computeThreads),
		io:        NewPool("io", p.ioThreads),
		dispatch:  NewPool("dispatch", len(p.processors)),
	}
	r.watch.Start()

	cctx, err := p.combiner.Context()
	if err != nil {
		return p.fail(r, err)
	}
	r.logger.Info("starting pipeline",
		zap.Int("branches", cctx.Size()),
		zap.Int("processors", len(p.processors)),
		zap.Int("compute_threads", r.compute.Size()),
		zap.Int("io_threads", r.io.Size()),
	)
	for _, proc := range p.processors {
		if err := proc.Init(cctx, r.compute, r.io); err != nil {
			return p.fail(r, errors.Processor(proc.Name(), err))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.cancel = cancel

	p.setState(StateStreaming)
	size := cctx.Size()
	outerTotal := cctx.Outer.Size()
	outersDone := 0
	var prevOuter *logictree.Branch
	for n := 0; n < size; n++ {
		if err := ctx.Err(); err != nil {
			return p.fail(r, errors.Cancelled(fmt.Sprintf("run cancelled before branch %d", n), err))
		}
		if err := cctx.Verify(n); err != nil {
			return p.fail(r, err)
		}
		r.done = n
		comb := cctx.Combination(n)
		if prevOuter == nil || !comb.Outer.Equal(prevOuter) {
			r.logger.Debug("new outer branch", zap.Int("index", n), zap.Stringer("outer", comb.Outer))
			if n > 0 {
				outersDone++
				p.progress(r, outersDone, outerTotal, n, size)
			}
		}
		for i, proc := range p.processors {
			if err := p.join(r, i); err != nil {
				return p.fail(r, err)
			}
			r.inFlight[i] = &pending{
				future: r.dispatch.Submit(runCtx, branchTask(proc, comb)),
				index:  n,
			}
		}
		prevOuter = comb.Outer
	}

	p.setState(StateDraining)
	for i := range p.processors {
		if err := p.join(r, i); err != nil {
			return p.fail(r, err)
		}
	}
	r.watch.Stop()
	throughput := 0.0
	if secs := r.watch.Elapsed().Seconds(); secs > 0 {
		throughput = float64(size) / secs
	}
	r.logger.Info("processed all branches", zap.Int("branches", size), zap.Float64("per_second", throughput))

	for _, proc := range p.processors {
		r.logger.Debug("finalizing processor", zap.String("processor", proc.Name()))
		if err := proc.Close(); err != nil {
			return p.fail(r, errors.Processor(proc.Name(), err))
		}
	}
	r.compute.Wait()
	r.io.Wait()

	report := p.report(r, size)
	report.Throughput = throughput
	p.setState(StateClosed)
	p.metrics.runFinished(report, nil)
	if p.observer != nil {
		p.observer.Progress(Progress{
			RunID:         r.id,
			OuterDone:     outerTotal,
			OuterTotal:    outerTotal,
			BranchesDone:  size,
			BranchesTotal: size,
			Fraction:      1,
			Elapsed:       report.Elapsed,
			Report:        report,
		})
	}
	r.logger.Info("pipeline done", zap.String("combining", FormatBlocking(report.Combining, report.Elapsed)))
	return &report, nil
}

func branchTask(proc Processor, comb combiner.Combination) Task {
	return func(ctx context.Context) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic: %v", rec)
			}
		}()
		return proc.ProcessBranch(ctx, comb)
	}
}

// join waits for processor i's in-flight branch, timing the wait.
func (p *Pipeline) join(r *runState, i int) error {
	pend := r.inFlight[i]
	if pend == nil {
		return nil
	}
	r.procWatch[i].Start()
	r.combining.Start()
	err := pend.future.Wait()
	r.combining.Stop()
	r.procWatch[i].Stop()
	r.inFlight[i] = nil

	name := p.processors[i].Name()
	if err != nil {
		p.metrics.processorFailed(name)
		return errors.Processor(name, err).WithContext("branch", pend.index)
	}
	p.metrics.branchProcessed(name)
	return nil
}

func (p *Pipeline) report(r *runState, done int) Report {
	elapsed := r.watch.Elapsed()
	rep := Report{
		RunID:      r.id,
		Elapsed:    elapsed,
		Combining:  r.combining.Elapsed(),
		Processors: make([]ProcessorTiming, len(p.processors)),
		Branches:   done,
	}
	for i, proc := range p.processors {
		t := ProcessorTiming{Name: proc.Name(), Blocking: r.procWatch[i].Elapsed()}
		if tb, ok := proc.(TimeBreakdowner); ok {
			t.Breakdown = tb.TimeBreakdown(elapsed)
		}
		rep.Processors[i] = t
	}
	if secs := elapsed.Seconds(); secs > 0 {
		rep.Throughput = float64(done) / secs
	}
	return rep
}

func (p *Pipeline) progress(r *runState, outersDone, outerTotal, done, total int) {
	if p.observer == nil {
		return
	}
	rep := p.report(r, done)
	p.observer.Progress(Progress{
		RunID:         r.id,
		OuterDone:     outersDone,
		OuterTotal:    outerTotal,
		BranchesDone:  done,
		BranchesTotal: total,
		Fraction:      float64(done) / float64(total),
		Elapsed:       rep.Elapsed,
		ETA:           EstimateRemaining(rep.Elapsed, done, total),
		Report:        rep,
	})
}

// fail aborts the run: outstanding work is cancelled and awaited, and no
// processor is closed.
func (p *Pipeline) fail(r *runState, err error) (*Report, error) {
	if r.cancel != nil {
		r.cancel()
	}
	for _, pend := range r.inFlight {
		if pend != nil {
			_ = pend.future.Wait()
		}
	}
	r.dispatch.Wait()
	r.compute.Wait()
	r.io.Wait()
	r.watch.Stop()

	p.setState(StateFailed)
	report := p.report(r, r.done)
	p.metrics.runFinished(report, err)
	r.logger.Error("pipeline failed", zap.Error(err), zap.Duration("elapsed", report.Elapsed))
	return nil, err
}
