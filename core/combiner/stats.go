package combiner

import (
	"go.uber.org/zap"

	"ltcombine/core/logictree"
	"ltcombine/core/remap"
)

// NodeStats compares how often a node appears, and with what normalized
// weight, in the input trees versus the sampled combined tree.
type NodeStats struct {
	Node          *logictree.Node
	OrigCount     int
	OrigWeight    float64
	SampledCount  int
	SampledWeight float64
}

// LevelStats groups node statistics by combined level
type LevelStats struct {
	Level *logictree.Level
	Nodes []NodeStats
}

// SamplingStats describes a pairwise-sampled build
type SamplingStats struct {
	Levels     []LevelStats
	Duplicates int
}

// SamplingStats returns the statistics of the pairwise build, nil if the tree
// was not pairwise sampled or has not been built.
func (c *Combiner) SamplingStats() *SamplingStats { return c.stats }

type nodeTally struct {
	count  int
	weight float64
}

func (c *Combiner) samplingStats() *SamplingStats {
	sampled := make(map[*logictree.Node]*nodeTally)
	total := c.tree.TotalWeight()
	for _, b := range c.branches {
		w := b.OrigWeight()
		if total > 0 {
			w /= total
		}
		for i := 0; i < b.Size(); i++ {
			addTally(sampled, b.Value(i), w)
		}
	}

	orig := make(map[*logictree.Node]*nodeTally)
	c.origTallies(orig, c.outer, c.plan.Outer, false)
	c.origTallies(orig, c.inner, c.plan.Inner, true)

	stats := &SamplingStats{Duplicates: c.duplicates}
	for _, l := range c.levels {
		ls := LevelStats{Level: l}
		for _, n := range l.Nodes() {
			o, s := orig[n], sampled[n]
			if o == nil && s == nil {
				continue
			}
			ns := NodeStats{Node: n}
			if o != nil {
				ns.OrigCount, ns.OrigWeight = o.count, o.weight
			}
			if s != nil {
				ns.SampledCount, ns.SampledWeight = s.count, s.weight
			}
			ls.Nodes = append(ls.Nodes, ns)
		}
		stats.Levels = append(stats.Levels, ls)
	}
	return stats
}

func (c *Combiner) origTallies(into map[*logictree.Node]*nodeTally, tree *logictree.Tree, tables *remap.Tables, inner bool) {
	total := tree.TotalWeight()
	for bi, b := range tree.Branches() {
		w := tree.Weight(bi)
		if total > 0 {
			w /= total
		}
		for i := 0; i < b.Size(); i++ {
			if inner && logictree.ContainsLevel(c.opts.common, b.Level(i)) {
				continue
			}
			addTally(into, tables.Node(b.Value(i)), w)
		}
	}
}

func addTally(m map[*logictree.Node]*nodeTally, n *logictree.Node, w float64) {
	t, ok := m[n]
	if !ok {
		t = &nodeTally{}
		m[n] = t
	}
	t.count++
	t.weight += w
}

func (s *SamplingStats) log(logger *zap.Logger) {
	logger.Debug("pairwise sampling stats", zap.Int("duplicates_redrawn", s.Duplicates))
	for _, ls := range s.Levels {
		for _, ns := range ls.Nodes {
			logger.Debug("node sampling",
				zap.String("level", ls.Level.ShortName()),
				zap.String("node", ns.Node.ShortName()),
				zap.Int("orig_count", ns.OrigCount),
				zap.Float64("orig_weight", ns.OrigWeight),
				zap.Int("sampled_count", ns.SampledCount),
				zap.Float64("sampled_weight", ns.SampledWeight),
			)
		}
	}
}
