package combiner

import (
	"ltcombine/core/logictree"
	"ltcombine/core/matcher"
	"ltcombine/core/remap"
	"ltcombine/internal/errors"
)

// NotSampled marks a sample count that does not apply to the current tree.
const NotSampled = -1

// Context is the read-only snapshot of a combination handed to processors.
// Every list indexed by combined branch index has the same length as Branches.
type Context struct {
	// ExpectedCombinations is outer size times the (representative) matching
	// inner size, or outer size times samples per outer when pairwise sampled.
	ExpectedCombinations int

	// NumRandomSamples is the number of sampled branches, or NotSampled
	NumRandomSamples int

	// NumPairwiseSamples is the number of inner samples per outer branch, or
	// NotSampled
	NumPairwiseSamples int

	Tree  *logictree.Tree
	Outer *logictree.Tree
	Inner *logictree.Tree

	// OrigOuter and OrigInner are the trees before averaging, nil when no
	// levels were averaged out
	OrigOuter *logictree.Tree
	OrigInner *logictree.Tree

	Remap  *remap.Plan
	Levels []*logictree.Level

	Branches      []*logictree.Branch
	OuterIndexes  []int
	OuterPortions []*logictree.Branch
	InnerIndexes  []int
	InnerPortions []*logictree.Branch

	CommonLevels   []*logictree.Level
	CommonSubtrees *matcher.Index
	AveragedLevels []*logictree.Level
}

// Combination is one combined branch with its provenance.
type Combination struct {
	Index      int
	Branch     *logictree.Branch
	Weight     float64
	Outer      *logictree.Branch
	OuterIndex int
	Inner      *logictree.Branch
	InnerIndex int
}

// Size returns the number of combined branches
func (c *Context) Size() int { return len(c.Branches) }

// Sampled reports whether the combined tree was randomly sampled
func (c *Context) Sampled() bool { return c.NumRandomSamples > 0 }

// Combination returns combined branch n with its provenance
func (c *Context) Combination(n int) Combination {
	b := c.Branches[n]
	return Combination{
		Index:      n,
		Branch:     b,
		Weight:     b.OrigWeight(),
		Outer:      c.OuterPortions[n],
		OuterIndex: c.OuterIndexes[n],
		Inner:      c.InnerPortions[n],
		InnerIndex: c.InnerIndexes[n],
	}
}

// Verify checks the provenance of combined branch n: the branch must be the
// tree's branch n, the recorded portions must be the trees' branches at the
// recorded indexes, and every remapped portion node must be on the combined
// branch.
func (c *Context) Verify(n int) error {
	if len(c.Branches) != c.Tree.Size() {
		return errors.Consistency("context has %d branches but tree has %d", len(c.Branches), c.Tree.Size())
	}
	comb := c.Branches[n]
	if !comb.Equal(c.Tree.Branch(n)) {
		return errors.Consistency("combined branch %d %s doesn't match tree branch %s", n, comb, c.Tree.Branch(n))
	}
	outer, inner := c.OuterPortions[n], c.InnerPortions[n]
	oi, ii := c.OuterIndexes[n], c.InnerIndexes[n]
	if oi < 0 || oi >= c.Outer.Size() || !outer.Equal(c.Outer.Branch(oi)) {
		return errors.Consistency("outer branch for %d [%s] doesn't match outer branch at outerIndex=%d", n, outer, oi)
	}
	if ii < 0 || ii >= c.Inner.Size() || !inner.Equal(c.Inner.Branch(ii)) {
		return errors.Consistency("inner branch for %d [%s] doesn't match inner branch at innerIndex=%d", n, inner, ii)
	}
	for i := 0; i < outer.Size(); i++ {
		node := c.Remap.Outer.Node(outer.Value(i))
		if !comb.HasValue(node) {
			return errors.Consistency("outer branch has node %s which isn't on combined branch %d: %s", node, n, comb)
		}
	}
	for i := 0; i < inner.Size(); i++ {
		node := c.Remap.Inner.Node(inner.Value(i))
		if !comb.HasValue(node) {
			return errors.Consistency("inner branch has node %s which isn't on combined branch %d: %s", node, n, comb)
		}
	}
	return nil
}
