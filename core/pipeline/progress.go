package pipeline

import (
	"time"

	"go.uber.org/zap"
)

// Progress is a snapshot of a running pipeline, taken each time the
// coordinator moves on to a new outer branch.
type Progress struct {
	RunID         string
	OuterDone     int
	OuterTotal    int
	BranchesDone  int
	BranchesTotal int
	Fraction      float64
	Elapsed       time.Duration
	ETA           time.Duration
	Report        Report
}

// Observer receives progress snapshots on the coordinating goroutine
type Observer interface {
	Progress(p Progress)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(p Progress)

// Progress implements Observer
func (f ObserverFunc) Progress(p Progress) { f(p) }

// LogObserver logs progress snapshots
type LogObserver struct {
	Logger *zap.Logger
}

// Progress implements Observer
func (o LogObserver) Progress(p Progress) {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("finished outer branch",
		zap.String("run_id", p.RunID),
		zap.Int("outer_done", p.OuterDone),
		zap.Int("outer_total", p.OuterTotal),
		zap.Int("branches_done", p.BranchesDone),
		zap.Int("branches_total", p.BranchesTotal),
		zap.Float64("fraction", p.Fraction),
		zap.String("combining", FormatBlocking(p.Report.Combining, p.Elapsed)),
		zap.String("eta", FormatETA(p.ETA)),
	)
	for _, t := range p.Report.Processors {
		fields := []zap.Field{
			zap.String("run_id", p.RunID),
			zap.String("processor", t.Name),
			zap.String("blocking", FormatBlocking(t.Blocking, p.Elapsed)),
		}
		if t.Breakdown != "" {
			fields = append(fields, zap.String("breakdown", t.Breakdown))
		}
		logger.Debug("processor blocking time", fields...)
	}
}
