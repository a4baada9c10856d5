package pipeline_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltcombine/core/combiner"
	"ltcombine/core/pipeline"
	"ltcombine/internal/errors"
	"ltcombine/internal/testutils"
)

type recorder struct {
	name    string
	delay   time.Duration
	failAt  int
	panicAt int

	mu       sync.Mutex
	seen     []int
	weights  float64
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	inits    int
	closes   int
	ctx      *combiner.Context
}

func newRecorder(name string) *recorder {
	return &recorder{name: name, failAt: -1, panicAt: -1}
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Init(ctx *combiner.Context, compute, io pipeline.Executor) error {
	r.inits++
	r.ctx = ctx
	return nil
}

func (r *recorder) ProcessBranch(ctx context.Context, c combiner.Combination) error {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		cur := r.maxSeen.Load()
		if n <= cur || r.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if c.Index == r.panicAt {
		panic("boom")
	}
	if c.Index == r.failAt {
		return fmt.Errorf("failed on %d", c.Index)
	}
	r.mu.Lock()
	r.seen = append(r.seen, c.Index)
	r.weights += c.Weight
	r.mu.Unlock()
	return nil
}

func (r *recorder) Close() error {
	r.closes++
	return nil
}

func (r *recorder) TimeBreakdown(time.Duration) string { return "recorded" }

func newCombiner(t *testing.T, outerNodes, innerNodes int) *combiner.Combiner {
	t.Helper()
	la, _ := testutils.Level("A", prefixes("A", outerNodes), nil)
	lb, _ := testutils.Level("B", prefixes("B", innerNodes), nil)
	c, err := combiner.New(testutils.ExhaustiveTree(t, la), testutils.ExhaustiveTree(t, lb))
	require.NoError(t, err)
	return c
}

func prefixes(name string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", name, i+1)
	}
	return out
}

func TestRunRequiresProcessors(t *testing.T) {
	p := pipeline.New(newCombiner(t, 1, 1))
	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypePrecondition))
	assert.Equal(t, pipeline.StateIdle, p.State())
}

func TestRunOrderingAndDepthOne(t *testing.T) {
	slow := newRecorder("slow")
	slow.delay = 2 * time.Millisecond
	fast := newRecorder("fast")

	var progress []pipeline.Progress
	p := pipeline.New(newCombiner(t, 3, 4),
		pipeline.WithComputeThreads(2),
		pipeline.WithObserver(pipeline.ObserverFunc(func(pr pipeline.Progress) {
			progress = append(progress, pr)
		})),
	).Add(slow, fast)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateClosed, p.State())
	assert.NotEmpty(t, p.RunID())

	want := make([]int, 12)
	for i := range want {
		want[i] = i
	}
	for _, r := range []*recorder{slow, fast} {
		assert.Equal(t, want, r.seen, r.name)
		assert.Equal(t, int32(1), r.maxSeen.Load(), r.name)
		assert.Equal(t, 1, r.inits)
		assert.Equal(t, 1, r.closes)
		assert.InDelta(t, 12.0, r.weights, 1e-12)
		require.NotNil(t, r.ctx)
		assert.Equal(t, 12, r.ctx.Size())
	}

	require.NotNil(t, report)
	assert.Equal(t, p.RunID(), report.RunID)
	assert.Equal(t, 12, report.Branches)
	require.Len(t, report.Processors, 2)
	assert.Equal(t, "slow", report.Processors[0].Name)
	assert.Equal(t, "recorded", report.Processors[0].Breakdown)
	assert.GreaterOrEqual(t, report.Elapsed, report.Combining)

	require.Len(t, progress, 3)
	assert.Equal(t, 1, progress[0].OuterDone)
	assert.Equal(t, 4, progress[0].BranchesDone)
	assert.Equal(t, 8, progress[1].BranchesDone)
	assert.InDelta(t, 1.0, progress[2].Fraction, 1e-12)
	assert.Equal(t, 3, progress[2].OuterTotal)
}

func TestProcessorFailureAborts(t *testing.T) {
	tests := []struct {
		name    string
		failAt  int
		panicAt int
		want    string
	}{
		{name: "error", failAt: 3, panicAt: -1, want: "failed on 3"},
		{name: "panic", failAt: -1, panicAt: 5, want: "panic: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok := newRecorder("ok")
			bad := newRecorder("bad")
			bad.failAt, bad.panicAt = tt.failAt, tt.panicAt

			p := pipeline.New(newCombiner(t, 2, 4)).Add(ok, bad)
			report, err := p.Run(context.Background())
			require.Error(t, err)
			assert.Nil(t, report)
			assert.True(t, errors.IsType(err, errors.TypeProcessor))
			assert.Contains(t, err.Error(), "processor bad failed")
			assert.Contains(t, err.Error(), tt.want)

			var perr *errors.Error
			require.True(t, stderrors.As(err, &perr))
			assert.Equal(t, "bad", perr.Context["processor"])

			assert.Equal(t, pipeline.StateFailed, p.State())
			assert.Equal(t, 0, ok.closes)
			assert.Equal(t, 0, bad.closes)
		})
	}
}

func TestRunOnlyOnce(t *testing.T) {
	p := pipeline.New(newCombiner(t, 1, 2)).Add(newRecorder("a"))
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypePrecondition))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := newRecorder("a")
	p := pipeline.New(newCombiner(t, 2, 2)).Add(rec)
	_, err := p.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeCancelled))
	assert.Empty(t, rec.seen)
	assert.Equal(t, 0, rec.closes)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := pipeline.NewPool("test", 2)
	var running, maxRunning atomic.Int32
	futures := make([]*pipeline.Future, 10)
	for i := range futures {
		futures[i] = pool.Submit(context.Background(), func(context.Context) error {
			n := running.Add(1)
			defer running.Add(-1)
			for {
				cur := maxRunning.Load()
				if n <= cur || maxRunning.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			return nil
		})
	}
	for _, f := range futures {
		require.NoError(t, f.Wait())
	}
	pool.Wait()
	assert.LessOrEqual(t, maxRunning.Load(), int32(2))
	assert.Equal(t, 2, pool.Size())
	assert.Equal(t, "test", pool.Name())
}

func TestPoolRecoversPanics(t *testing.T) {
	pool := pipeline.NewPool("test", 1)
	err := pool.Submit(context.Background(), func(context.Context) error {
		panic("oops")
	}).Wait()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeInternal))
}

func TestPoolCancelledWhileQueued(t *testing.T) {
	pool := pipeline.NewPool("test", 1)
	started := make(chan struct{})
	release := make(chan struct{})
	first := pool.Submit(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	second := pool.Submit(ctx, func(context.Context) error { return nil })
	cancel()
	assert.ErrorIs(t, second.Wait(), context.Canceled)

	close(release)
	require.NoError(t, first.Wait())
	select {
	case <-first.Done():
	default:
		t.Fatal("future not done after Wait")
	}
}

func TestDefaultIOThreads(t *testing.T) {
	tests := []struct {
		compute int
		want    int
	}{
		{compute: 1, want: 3},
		{compute: 3, want: 3},
		{compute: 8, want: 8},
		{compute: 64, want: 20},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pipeline.DefaultIOThreads(tt.compute), "compute=%d", tt.compute)
	}
}

func TestFormatting(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"blocking seconds", pipeline.FormatBlocking(1500*time.Millisecond, 3*time.Second), "1.50 s (50.00%)"},
		{"blocking minutes", pipeline.FormatBlocking(150*time.Second, 300*time.Second), "2.50 m (50.00%)"},
		{"blocking zero total", pipeline.FormatBlocking(time.Second, 0), "1.00 s (0.00%)"},
		{"eta seconds", pipeline.FormatETA(30 * time.Second), "30.00 secs"},
		{"eta boundary", pipeline.FormatETA(90 * time.Second), "90.00 secs"},
		{"eta minutes", pipeline.FormatETA(2 * time.Minute), "2.00 mins"},
		{"eta hours", pipeline.FormatETA(3 * time.Hour), "3.00 hours"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}

	assert.Equal(t, 30*time.Second, pipeline.EstimateRemaining(10*time.Second, 1, 4))
	assert.Equal(t, time.Duration(0), pipeline.EstimateRemaining(10*time.Second, 0, 4))
}

func TestStopwatchAccumulates(t *testing.T) {
	var w pipeline.Stopwatch
	assert.Equal(t, time.Duration(0), w.Elapsed())
	w.Start()
	time.Sleep(time.Millisecond)
	w.Stop()
	first := w.Elapsed()
	assert.Greater(t, first, time.Duration(0))
	w.Stop()
	assert.Equal(t, first, w.Elapsed())
	w.Start()
	w.Stop()
	assert.GreaterOrEqual(t, w.Elapsed(), first)
}
