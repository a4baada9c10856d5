package combiner

import (
	"go.uber.org/zap"

	"ltcombine/core/logictree"
	"ltcombine/internal/errors"
)

// DownSample randomly reduces the combined tree to exactly target unique
// branches, drawn in proportion to weight, and rebuilds the provenance lists.
// Target must not exceed the number of distinct non-zero-weight branches.
// Pairwise sampling bookkeeping is reset; any previously returned Context is
// left untouched and a fresh one is built on the next call to Context.
func (c *Combiner) DownSample(target int, seed int64) error {
	if err := c.ensureBuilt(); err != nil {
		return err
	}
	size := c.tree.Size()
	if target < 1 || target > size {
		return errors.Precondition("down-sample target %d must be in [1, %d]", target, size)
	}
	if positive := c.tree.DistinctPositive(); target > positive {
		return errors.Precondition("down-sample target %d exceeds the %d distinct non-zero-weight branches of %d",
			target, positive, size)
	}
	c.logger.Info("sampling down combined tree", zap.Int("from", size), zap.Int("to", target))

	orig := make(map[logictree.BranchKey]int, size)
	for i, b := range c.branches {
		if _, ok := orig[b.Key()]; !ok {
			orig[b.Key()] = i
		}
	}
	sampled, stats, err := c.tree.Sample(target, true, c.opts.source(seed))
	if err != nil {
		return err
	}

	branches := make([]*logictree.Branch, 0, target)
	outerIndexes := make([]int, 0, target)
	outerPortions := make([]*logictree.Branch, 0, target)
	innerIndexes := make([]int, 0, target)
	innerPortions := make([]*logictree.Branch, 0, target)
	for _, b := range sampled.Branches() {
		i, ok := orig[b.Key()]
		if !ok {
			return errors.Consistency("sampled branch %s is not on the combined tree", b)
		}
		branches = append(branches, b)
		outerIndexes = append(outerIndexes, c.outerIndexes[i])
		outerPortions = append(outerPortions, c.outerPortions[i])
		innerIndexes = append(innerIndexes, c.innerIndexes[i])
		innerPortions = append(innerPortions, c.innerPortions[i])
	}
	if sampled.Size() != target || len(branches) != target {
		return errors.Consistency("down-sampled to %d branches, asked for %d", sampled.Size(), target)
	}

	c.tree = sampled
	c.branches = branches
	c.outerIndexes, c.outerPortions = outerIndexes, outerPortions
	c.innerIndexes, c.innerPortions = innerIndexes, innerPortions
	c.numPairwiseSamples = NotSampled
	c.numRandomSamples = target
	c.stats = nil
	c.ctx = nil

	c.logger.Debug("down-sampled combined tree",
		zap.Int("draws", stats.Draws),
		zap.Int("most_drawn", stats.MostDrawn),
	)
	return nil
}
