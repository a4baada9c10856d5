// Package combiner merges an outer and an inner logic tree into a single
// combined tree, either as a (common-level restricted) cross product or by
// pairwise sampling, and records where every combined branch came from.
package combiner

import (
	"go.uber.org/zap"

	"ltcombine/core/averaging"
	"ltcombine/core/determinism"
	"ltcombine/core/logictree"
	"ltcombine/core/matcher"
	"ltcombine/core/remap"
	"ltcombine/internal/errors"
	"ltcombine/internal/logging"
)

// SourceFactory creates the random source for a seed
type SourceFactory func(seed int64) determinism.Source

func defaultSource(seed int64) determinism.Source {
	return determinism.NewRandom(seed)
}

type options struct {
	common     []*logictree.Level
	averaged   []*logictree.Level
	outerRemap remap.Func
	innerRemap remap.Func
	logger     *zap.Logger
	source     SourceFactory
}

// Option configures a Combiner
type Option func(*options)

// WithCommonLevels restricts each outer branch to inner branches with the
// same values on these levels.
func WithCommonLevels(levels ...*logictree.Level) Option {
	return func(o *options) { o.common = append(o.common, levels...) }
}

// WithAveragedLevels removes these levels from both trees before combining.
func WithAveragedLevels(levels ...*logictree.Level) Option {
	return func(o *options) { o.averaged = append(o.averaged, levels...) }
}

// WithOuterRemap sets the outer remap hook
func WithOuterRemap(fn remap.Func) Option {
	return func(o *options) { o.outerRemap = fn }
}

// WithInnerRemap sets the inner remap hook
func WithInnerRemap(fn remap.Func) Option {
	return func(o *options) { o.innerRemap = fn }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSourceFactory replaces the seeded PCG source used for sampling.
func WithSourceFactory(f SourceFactory) Option {
	return func(o *options) { o.source = f }
}

// Combiner builds a combined tree from an outer and an inner tree. It is not
// safe for concurrent use; the Context it produces is.
type Combiner struct {
	opts   options
	logger *zap.Logger

	origOuter *logictree.Tree
	origInner *logictree.Tree
	outer     *logictree.Tree
	inner     *logictree.Tree

	plan     *remap.Plan
	levels   []*logictree.Level
	index    *matcher.Index
	expected int

	numRandomSamples   int
	numPairwiseSamples int
	pairwiseSrc        determinism.Source
	duplicates         int

	tree          *logictree.Tree
	branches      []*logictree.Branch
	outerIndexes  []int
	outerPortions []*logictree.Branch
	innerIndexes  []int
	innerPortions []*logictree.Branch
	stats         *SamplingStats
	ctx           *Context
}

// New prepares a combination of outer and inner: remaps, averages out levels
// and matches common levels. The combined tree is built lazily.
func New(outer, inner *logictree.Tree, opts ...Option) (*Combiner, error) {
	if outer == nil || inner == nil {
		return nil, errors.Precondition("outer and inner trees are required")
	}
	o := options{source: defaultSource}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Combiner{
		opts:               o,
		logger:             logging.OrComponent(o.logger, "combiner"),
		outer:              outer,
		inner:              inner,
		numRandomSamples:   NotSampled,
		numPairwiseSamples: NotSampled,
	}

	plan, err := remap.NewPlan(outer, inner, o.outerRemap, o.innerRemap, o.common, c.logger)
	if err != nil {
		return nil, err
	}
	c.plan = plan

	for _, l := range o.common {
		if logictree.ContainsLevel(o.averaged, l) {
			return nil, errors.Precondition("level %s can't be both common and averaged out", l.Name())
		}
	}
	if len(o.averaged) > 0 {
		if err := c.average(); err != nil {
			return nil, err
		}
	}

	c.levels, err = plan.CombinedLevels(c.outer.Levels(), c.inner.Levels(), o.common, o.averaged)
	if err != nil {
		return nil, err
	}

	innerSize := c.inner.Size()
	if len(o.common) > 0 {
		c.index, err = matcher.Build(c.outer, c.inner, o.common, c.logger)
		if err != nil {
			return nil, err
		}
		innerSize = c.index.RepresentativeSize()
	}
	c.expected = c.outer.Size() * innerSize

	names := make([]string, len(c.levels))
	for i, l := range c.levels {
		names[i] = l.String()
	}
	c.logger.Info("prepared logic tree combination",
		zap.Strings("combined_levels", names),
		zap.Int("outer_size", c.outer.Size()),
		zap.Int("inner_size", c.inner.Size()),
		zap.Int("expected_combinations", c.expected),
	)
	return c, nil
}

func (c *Combiner) average() error {
	c.logger.Info("averaging across levels", zap.Int("levels", len(c.opts.averaged)))
	outerRes, err := averaging.Reduce(c.outer, c.opts.averaged, c.logger)
	if err != nil {
		return errors.Wrapf(errors.TypePrecondition, err, "averaging outer tree")
	}
	innerRes, err := averaging.Reduce(c.inner, c.opts.averaged, c.logger)
	if err != nil {
		return errors.Wrapf(errors.TypePrecondition, err, "averaging inner tree")
	}
	if !outerRes.Changed() && !innerRes.Changed() {
		return errors.Precondition("none of the %d averaged levels are on either tree", len(c.opts.averaged))
	}
	c.origOuter, c.origInner = c.outer, c.inner
	c.outer, c.inner = outerRes.Tree, innerRes.Tree
	c.logger.Info("reduced trees",
		zap.Int("outer_before", c.origOuter.Size()),
		zap.Int("outer_after", c.outer.Size()),
		zap.Int("inner_before", c.origInner.Size()),
		zap.Int("inner_after", c.inner.Size()),
	)
	return nil
}

// Outer returns the outer tree after averaging and any outer pre-sampling
func (c *Combiner) Outer() *logictree.Tree { return c.outer }

// Inner returns the inner tree after averaging
func (c *Combiner) Inner() *logictree.Tree { return c.inner }

// Levels returns the combined level list
func (c *Combiner) Levels() []*logictree.Level { return c.levels }

// Plan returns the remap tables
func (c *Combiner) Plan() *remap.Plan { return c.plan }

// CommonSubtrees returns the matcher index, nil without common levels
func (c *Combiner) CommonSubtrees() *matcher.Index { return c.index }

// ExpectedCombinations returns the expected combined size. With common
// levels of heterogeneous match sizes it is an estimate.
func (c *Combiner) ExpectedCombinations() int { return c.expected }

// Built reports whether the combined tree exists
func (c *Combiner) Built() bool { return c.tree != nil }

// Tree builds the combined tree if needed and returns it.
func (c *Combiner) Tree() (*logictree.Tree, error) {
	if err := c.ensureBuilt(); err != nil {
		return nil, err
	}
	return c.tree, nil
}

// Context builds the combined tree if needed and returns the combination
// context. The same context is returned until the tree is down-sampled.
func (c *Combiner) Context() (*Context, error) {
	if err := c.ensureBuilt(); err != nil {
		return nil, err
	}
	if c.ctx == nil {
		c.ctx = &Context{
			ExpectedCombinations: c.expected,
			NumRandomSamples:     c.numRandomSamples,
			NumPairwiseSamples:   c.numPairwiseSamples,
			Tree:                 c.tree,
			Outer:                c.outer,
			Inner:                c.inner,
			OrigOuter:            c.origOuter,
			OrigInner:            c.origInner,
			Remap:                c.plan,
			Levels:               c.levels,
			Branches:             c.branches,
			OuterIndexes:         c.outerIndexes,
			OuterPortions:        c.outerPortions,
			InnerIndexes:         c.innerIndexes,
			InnerPortions:        c.innerPortions,
			CommonLevels:         c.opts.common,
			CommonSubtrees:       c.index,
			AveragedLevels:       c.opts.averaged,
		}
	}
	return c.ctx, nil
}

func (c *Combiner) ensureBuilt() error {
	if c.tree != nil {
		return nil
	}
	return c.build()
}

func (c *Combiner) matching(outer *logictree.Branch) (*logictree.Tree, error) {
	if c.index == nil {
		return c.inner, nil
	}
	return c.index.For(outer)
}

func (c *Combiner) build() error {
	c.branches = make([]*logictree.Branch, 0, c.expected)
	c.outerIndexes = make([]int, 0, c.expected)
	c.outerPortions = make([]*logictree.Branch, 0, c.expected)
	c.innerIndexes = make([]int, 0, c.expected)
	c.innerPortions = make([]*logictree.Branch, 0, c.expected)

	var err error
	if c.numPairwiseSamples > 0 {
		err = c.buildPairwise()
	} else {
		err = c.buildDeterministic()
	}
	if err != nil {
		c.branches, c.outerIndexes, c.outerPortions, c.innerIndexes, c.innerPortions = nil, nil, nil, nil, nil
		return err
	}

	tree, err := logictree.NewTree(c.levels, c.branches, logictree.OriginalWeights{})
	if err != nil {
		return errors.Wrapf(errors.TypeConsistency, err, "combined tree")
	}
	c.tree = tree
	if c.numPairwiseSamples > 0 {
		c.numRandomSamples = tree.Size()
		c.stats = c.samplingStats()
		c.stats.log(c.logger)
	}
	c.logger.Info("built combined tree",
		zap.Int("branches", tree.Size()),
		zap.Int("pairwise_samples", c.numPairwiseSamples),
	)
	return nil
}

func (c *Combiner) buildDeterministic() error {
	for o, ob := range c.outer.Branches() {
		matching, err := c.matching(ob)
		if err != nil {
			return err
		}
		ow := c.outer.Weight(o)
		for i, ib := range matching.Branches() {
			if err := c.add(o, ob, ib, ow*matching.Weight(i)); err != nil {
				return err
			}
		}
	}
	if c.index == nil && len(c.branches) != c.outer.Size()*c.inner.Size() {
		return errors.Consistency("built %d combinations, expected %d x %d",
			len(c.branches), c.outer.Size(), c.inner.Size())
	}
	return nil
}

// add appends the combination of outer branch o and inner branch ib.
func (c *Combiner) add(o int, ob, ib *logictree.Branch, weight float64) error {
	comb, err := c.combine(ob, ib)
	if err != nil {
		return err
	}
	ii, ok := c.inner.IndexOf(ib)
	if !ok {
		return errors.Consistency("inner branch %s not found in inner tree", ib)
	}
	comb.SetOrigWeight(weight)
	c.branches = append(c.branches, comb)
	c.outerIndexes = append(c.outerIndexes, o)
	c.outerPortions = append(c.outerPortions, ob)
	c.innerIndexes = append(c.innerIndexes, ii)
	c.innerPortions = append(c.innerPortions, ib)

	if n := len(c.branches); n%100_000 == 0 {
		c.logger.Debug("building combined tree", zap.Int("branches", n))
	}
	return nil
}

// combine copies outer values then inner values (skipping common levels)
// through the node remaps.
func (c *Combiner) combine(ob, ib *logictree.Branch) (*logictree.Branch, error) {
	comb := logictree.NewBranch(c.levels)
	n := 0
	for i := 0; i < ob.Size(); i++ {
		if n >= len(c.levels) {
			return nil, errors.Consistency("outer branch %s has more values than combined levels", ob)
		}
		if err := comb.SetValue(n, c.plan.Outer.Node(ob.Value(i))); err != nil {
			return nil, errors.Wrapf(errors.TypePrecondition, err, "outer branch %s", ob)
		}
		n++
	}
	for i := 0; i < ib.Size(); i++ {
		if logictree.ContainsLevel(c.opts.common, ib.Level(i)) {
			continue
		}
		if n >= len(c.levels) {
			return nil, errors.Consistency("inner branch %s has more values than combined levels", ib)
		}
		if err := comb.SetValue(n, c.plan.Inner.Node(ib.Value(i))); err != nil {
			return nil, errors.Wrapf(errors.TypePrecondition, err, "inner branch %s", ib)
		}
		n++
	}
	if n != len(c.levels) {
		return nil, errors.Consistency("combined branch has %d of %d values: %s", n, len(c.levels), comb)
	}
	return comb, nil
}
