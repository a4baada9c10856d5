package pipeline

import (
	"context"
	"time"

	"ltcombine/core/combiner"
)

// Processor consumes combined branches.
//
// Init is called once before streaming, in registration order. ProcessBranch
// is called once per combined branch in ascending index order and never
// overlaps with itself, but may overlap with other processors. Close is
// called once after every branch has been processed; it is not called when
// the run fails.
type Processor interface {
	Name() string
	Init(ctx *combiner.Context, compute, io Executor) error
	ProcessBranch(ctx context.Context, c combiner.Combination) error
	Close() error
}

// TimeBreakdowner is implemented by processors that can describe where their
// time went, relative to the elapsed run time.
type TimeBreakdowner interface {
	TimeBreakdown(elapsed time.Duration) string
}
