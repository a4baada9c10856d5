package combiner

import (
	"go.uber.org/zap"

	"ltcombine/core/determinism"
	"ltcombine/core/logictree"
	"ltcombine/internal/errors"
)

// outerRedrawFraction: the outer tree is pre-sampled without duplicates when
// fewer than this fraction of its branches are requested.
const outerRedrawFraction = 0.95

// PairwiseSample switches the build to pairwise sampling: numInnerPerOuter
// inner branches are drawn for every outer branch. A non-zero numOuter that
// differs from the outer size first samples the outer tree down (or up) to
// numOuter branches. Must be called before the tree is built, at most once.
func (c *Combiner) PairwiseSample(numOuter, numInnerPerOuter int, seed int64) error {
	if numInnerPerOuter <= 0 {
		return errors.Precondition("samples per outer branch must be positive, got %d", numInnerPerOuter)
	}
	if numOuter < 0 {
		return errors.Precondition("number of outer samples can't be negative, got %d", numOuter)
	}
	if c.tree != nil {
		return errors.Precondition("can't pairwise-sample if tree is already built")
	}
	if c.numPairwiseSamples > 0 {
		return errors.Precondition("can't pairwise-sample twice")
	}
	src := c.opts.source(seed)
	if numOuter != 0 && numOuter != c.outer.Size() {
		redraw := numOuter < int(outerRedrawFraction*float64(c.outer.Size()))
		c.logger.Info("pre-sampling outer tree for pairwise sampling",
			zap.Int("outer_size", c.outer.Size()),
			zap.Int("outer_samples", numOuter),
			zap.Bool("redraw_duplicates", redraw),
		)
		sampled, _, err := c.outer.Sample(numOuter, redraw, src)
		if err != nil {
			return err
		}
		if sampled.Size() != numOuter {
			return errors.Consistency("resampled outer tree from %d to %d, but asked for %d samples",
				c.outer.Size(), sampled.Size(), numOuter)
		}
		c.outer = sampled
	}
	c.logger.Info("pairwise-sampling inner tree", zap.Int("samples_per_outer", numInnerPerOuter))
	c.pairwiseSrc = src
	c.numPairwiseSamples = numInnerPerOuter
	c.expected = c.outer.Size() * numInnerPerOuter
	return nil
}

// outerTally tracks pairwise draws for one distinct outer branch.
type outerTally struct {
	// pairs maps inner branch to combined index
	pairs map[logictree.BranchKey]int
	// hits counts accepted and duplicate draws
	hits int
	// mass is the outer weight claimed by accepted draws
	mass determinism.Mass
}

func (c *Combiner) buildPairwise() error {
	tallies := make(map[logictree.BranchKey]*outerTally)
	counts := make([]int, 0, c.expected)
	duplicates := 0
	share := 1.0 / float64(c.numPairwiseSamples)

	for o, ob := range c.outer.Branches() {
		matching, err := c.matching(ob)
		if err != nil {
			return err
		}
		sampler, err := matching.Sampler()
		if err != nil {
			return errors.Wrapf(errors.TypePrecondition, err, "inner tree matching outer branch %d", o)
		}
		tally, ok := tallies[ob.Key()]
		if !ok {
			tally = &outerTally{pairs: make(map[logictree.BranchKey]int), mass: determinism.ZeroMass()}
			tallies[ob.Key()] = tally
		}
		ow := c.outer.Weight(o)
		for s := 0; s < c.numPairwiseSamples; s++ {
			ib := matching.Branch(sampler.Draw(c.pairwiseSrc))
			for {
				prev, dup := tally.pairs[ib.Key()]
				if !dup {
					break
				}
				if len(tally.pairs) >= matching.DistinctPositive() {
					return errors.Precondition("already sampled all %d inner branches for outer branch %d: %s",
						matching.DistinctPositive(), o, ob)
				}
				counts[prev]++
				tally.hits++
				duplicates++
				ib = matching.Branch(sampler.Draw(c.pairwiseSrc))
			}
			tally.pairs[ib.Key()] = len(c.branches)
			tally.hits++
			tally.mass = tally.mass.Add(ow * share)
			counts = append(counts, 1)
			if err := c.add(o, ob, ib, 0); err != nil {
				return err
			}
		}
	}

	for n, comb := range c.branches {
		tally := tallies[c.outerPortions[n].Key()]
		fract := float64(counts[n]) / float64(tally.hits)
		comb.SetOrigWeight(tally.mass.Float64() * fract)
	}
	c.logger.Info("pairwise sampled combined tree",
		zap.Int("samples_per_outer", c.numPairwiseSamples),
		zap.Int("branches", len(c.branches)),
		zap.Int("duplicates_redrawn", duplicates),
	)
	c.duplicates = duplicates
	return nil
}

// PairwiseSampleTrees pairwise-samples outer and inner with identity remaps
// and a seed derived from the sizes involved.
func PairwiseSampleTrees(outer, inner *logictree.Tree, numOuter, numInnerPerOuter int, opts ...Option) (*logictree.Tree, error) {
	c, err := New(outer, inner, opts...)
	if err != nil {
		return nil, err
	}
	seed := determinism.DefaultSeed(c.ExpectedCombinations(), numOuter*numInnerPerOuter)
	if err := c.PairwiseSample(numOuter, numInnerPerOuter, seed); err != nil {
		return nil, err
	}
	return c.Tree()
}
