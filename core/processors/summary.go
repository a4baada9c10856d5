// Package processors holds the built-in branch processors.
package processors

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ltcombine/core/combiner"
	"ltcombine/core/logictree"
	"ltcombine/core/pipeline"
	"ltcombine/internal/logging"
)

// NodeSummary is the combined weight carried by one node
type NodeSummary struct {
	Node     *logictree.Node
	Branches int
	Weight   decimal.Decimal
	Fraction float64
}

// LevelSummary groups node summaries by combined level
type LevelSummary struct {
	Level *logictree.Level
	Nodes []NodeSummary
}

// Summary is the outcome of a WeightSummary
type Summary struct {
	Branches int
	Total    decimal.Decimal
	Levels   []LevelSummary
}

type nodeTotal struct {
	branches int
	weight   decimal.Decimal
}

// WeightSummary accumulates, for every node of the combined levels, the
// number of combined branches using it and their total weight.
type WeightSummary struct {
	logger *zap.Logger

	mu       sync.Mutex
	levels   []*logictree.Level
	nodes    map[*logictree.Node]*nodeTotal
	total    decimal.Decimal
	branches int
}

// NewWeightSummary creates a weight summary processor
func NewWeightSummary(logger *zap.Logger) *WeightSummary {
	return &WeightSummary{logger: logging.OrComponent(logger, "weight-summary")}
}

// Name implements pipeline.Processor
func (s *WeightSummary) Name() string { return "weight-summary" }

// Init implements pipeline.Processor
func (s *WeightSummary) Init(ctx *combiner.Context, _, _ pipeline.Executor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels = ctx.Levels
	s.nodes = make(map[*logictree.Node]*nodeTotal)
	s.total = decimal.Zero
	s.branches = 0
	return nil
}

// ProcessBranch implements pipeline.Processor
func (s *WeightSummary) ProcessBranch(_ context.Context, c combiner.Combination) error {
	w := decimal.NewFromFloat(c.Weight)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < c.Branch.Size(); i++ {
		n := c.Branch.Value(i)
		t, ok := s.nodes[n]
		if !ok {
			t = &nodeTotal{weight: decimal.Zero}
			s.nodes[n] = t
		}
		t.branches++
		t.weight = t.weight.Add(w)
	}
	s.total = s.total.Add(w)
	s.branches++
	return nil
}

// Close implements pipeline.Processor
func (s *WeightSummary) Close() error {
	sum := s.Report()
	s.logger.Info("combined weight summary",
		zap.Int("branches", sum.Branches),
		zap.String("total_weight", sum.Total.StringFixed(6)),
	)
	for _, ls := range sum.Levels {
		for _, ns := range ls.Nodes {
			s.logger.Debug("node weight",
				zap.String("level", ls.Level.ShortName()),
				zap.String("node", ns.Node.ShortName()),
				zap.Int("branches", ns.Branches),
				zap.Float64("fraction", ns.Fraction),
			)
		}
	}
	return nil
}

// Report returns the current totals, levels and nodes in declaration order.
func (s *WeightSummary) Report() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := Summary{Branches: s.branches, Total: s.total}
	for _, l := range s.levels {
		ls := LevelSummary{Level: l}
		for _, n := range l.Nodes() {
			t, ok := s.nodes[n]
			if !ok {
				continue
			}
			ns := NodeSummary{Node: n, Branches: t.branches, Weight: t.weight}
			if !s.total.IsZero() {
				ns.Fraction = t.weight.Div(s.total).InexactFloat64()
			}
			ls.Nodes = append(ls.Nodes, ns)
		}
		sum.Levels = append(sum.Levels, ls)
	}
	return sum
}
