package logictree

import (
	"sync"

	"ltcombine/core/determinism"
	"ltcombine/internal/errors"
)

// Tree is an ordered list of levels plus an ordered list of branches over
// exactly those levels, weighted by a WeightProvider.
//
// Trees are immutable once built: filtering and sampling return new trees.
// The sampler and index map are built lazily and are safe for concurrent use.
type Tree struct {
	levels   []*Level
	branches []*Branch
	weights  WeightProvider

	samplerOnce sync.Once
	sampler     *Sampler
	samplerErr  error

	indexOnce sync.Once
	index     map[BranchKey]int

	distinctOnce sync.Once
	distinct     int
}

// NewTree creates a tree, checking that every branch uses the tree's levels
// and that every weight is finite and non-negative.
func NewTree(levels []*Level, branches []*Branch, provider WeightProvider) (*Tree, error) {
	if len(levels) == 0 {
		return nil, errors.Precondition("a tree needs at least one level")
	}
	if provider == nil {
		provider = OriginalWeights{}
	}
	for i, b := range branches {
		if b == nil {
			return nil, errors.Precondition("branch %d is nil", i)
		}
		if b.Size() != len(levels) {
			return nil, errors.Precondition("branch %d has %d levels but expected %d", i, b.Size(), len(levels))
		}
		for l := range levels {
			if b.Level(l) != levels[l] {
				return nil, errors.Precondition("branch %d has different level at index %d: tree=%s branch=%s",
					i, l, levels[l], b.Level(l))
			}
		}
		if err := determinism.CheckWeight(provider.Weight(b)); err != nil {
			return nil, errors.Precondition("branch %d %s: %v", i, b, err)
		}
	}
	return newTree(levels, branches, provider), nil
}

// MustTree is NewTree that panics on error; for literals in tests and examples.
func MustTree(levels []*Level, branches []*Branch, provider WeightProvider) *Tree {
	t, err := NewTree(levels, branches, provider)
	if err != nil {
		panic(err)
	}
	return t
}

// newTree skips validation, for subsets of an already validated tree.
func newTree(levels []*Level, branches []*Branch, provider WeightProvider) *Tree {
	ls := make([]*Level, len(levels))
	copy(ls, levels)
	bs := make([]*Branch, len(branches))
	copy(bs, branches)
	return &Tree{levels: ls, branches: bs, weights: provider}
}

// BuildExhaustive creates the full cross product of the nodes on levels.
// Branch weights are the products of node weights.
func BuildExhaustive(levels []*Level) (*Tree, error) {
	if len(levels) == 0 {
		return nil, errors.Precondition("a tree needs at least one level")
	}
	branches := []*Branch{NewBranch(levels)}
	for l, level := range levels {
		nodes := level.Nodes()
		if len(nodes) == 0 {
			return nil, errors.Precondition("level %s has no nodes", level.Name())
		}
		next := make([]*Branch, 0, len(branches)*len(nodes))
		for _, b := range branches {
			for _, n := range nodes {
				c := b.Copy()
				c.values[l] = n
				next = append(next, c)
			}
		}
		branches = next
	}
	return NewTree(levels, branches, OriginalWeights{})
}

// Size returns the number of branches
func (t *Tree) Size() int { return len(t.branches) }

// Levels returns the level list. Callers must not modify it.
func (t *Tree) Levels() []*Level { return t.levels }

// Branches returns the branch list. Callers must not modify it.
func (t *Tree) Branches() []*Branch { return t.branches }

// Branch returns the branch at index i
func (t *Tree) Branch(i int) *Branch { return t.branches[i] }

// Weight returns the provider weight of branch i
func (t *Tree) Weight(i int) float64 { return t.weights.Weight(t.branches[i]) }

// BranchWeight returns the provider weight of b
func (t *Tree) BranchWeight(b *Branch) float64 { return t.weights.Weight(b) }

// WeightProvider returns the active provider
func (t *Tree) WeightProvider() WeightProvider { return t.weights }

// WithWeightProvider returns a tree sharing branches but using provider
func (t *Tree) WithWeightProvider(provider WeightProvider) *Tree {
	return newTree(t.levels, t.branches, provider)
}

// Normalized returns a tree whose weights sum to one
func (t *Tree) Normalized() *Tree {
	return t.WithWeightProvider(Normalized(t.weights, t.branches))
}

// TotalMass returns the exact sum of branch weights
func (t *Tree) TotalMass() determinism.Mass {
	m := determinism.ZeroMass()
	for _, b := range t.branches {
		m = m.Add(t.weights.Weight(b))
	}
	return m
}

// TotalWeight returns the sum of branch weights
func (t *Tree) TotalWeight() float64 {
	return t.TotalMass().Float64()
}

// IndexOf returns the first index of a branch equal to b
func (t *Tree) IndexOf(b *Branch) (int, bool) {
	t.indexOnce.Do(func() {
		t.index = make(map[BranchKey]int, len(t.branches))
		for i, cand := range t.branches {
			k := cand.Key()
			if _, ok := t.index[k]; !ok {
				t.index[k] = i
			}
		}
	})
	i, ok := t.index[b.Key()]
	return i, ok
}

// DistinctPositive returns the number of distinct branches carrying non-zero
// weight at one or more indexes. Equal branches at different indexes count once.
func (t *Tree) DistinctPositive() int {
	t.distinctOnce.Do(func() {
		seen := make(map[BranchKey]struct{}, len(t.branches))
		for _, b := range t.branches {
			if t.weights.Weight(b) > 0 {
				seen[b.Key()] = struct{}{}
			}
		}
		t.distinct = len(seen)
	})
	return t.distinct
}

// Contains reports whether a branch equal to b is in the tree
func (t *Tree) Contains(b *Branch) bool {
	_, ok := t.IndexOf(b)
	return ok
}

// MatchingAll returns the sub-tree whose branches contain every one of values
func (t *Tree) MatchingAll(values ...*Node) *Tree {
	return t.filter(func(b *Branch) bool {
		for _, v := range values {
			if !b.HasValue(v) {
				return false
			}
		}
		return true
	})
}

// MatchingAny returns the sub-tree whose branches contain at least one of values
func (t *Tree) MatchingAny(values ...*Node) *Tree {
	return t.filter(func(b *Branch) bool {
		for _, v := range values {
			if b.HasValue(v) {
				return true
			}
		}
		return false
	})
}

// MatchingNone returns the sub-tree whose branches contain none of values
func (t *Tree) MatchingNone(values ...*Node) *Tree {
	return t.filter(func(b *Branch) bool {
		for _, v := range values {
			if b.HasValue(v) {
				return false
			}
		}
		return true
	})
}

// Subset returns the sub-tree holding exactly the given branches, in tree order
func (t *Tree) Subset(branches []*Branch) (*Tree, error) {
	want := make(map[BranchKey]struct{}, len(branches))
	for _, b := range branches {
		want[b.Key()] = struct{}{}
	}
	sub := t.filter(func(b *Branch) bool {
		_, ok := want[b.Key()]
		return ok
	})
	if sub.Size() != len(want) {
		return nil, errors.Precondition("not all %d requested branches were found in the tree (found %d)",
			len(want), sub.Size())
	}
	return sub, nil
}

func (t *Tree) filter(keep func(*Branch) bool) *Tree {
	matching := make([]*Branch, 0)
	for _, b := range t.branches {
		if keep(b) {
			matching = append(matching, b)
		}
	}
	return newTree(t.levels, matching, t.weights)
}

// Sampler returns the weighted index sampler, built on first use
func (t *Tree) Sampler() (*Sampler, error) {
	t.samplerOnce.Do(func() {
		weights := make([]float64, len(t.branches))
		for i, b := range t.branches {
			weights[i] = t.weights.Weight(b)
		}
		t.sampler, t.samplerErr = NewSampler(weights)
	})
	return t.sampler, t.samplerErr
}

// SampleStats describes a Sample call
type SampleStats struct {
	Draws     int
	Unique    int
	MostDrawn int
}

// Sample draws numSamples branches in proportion to weight.
//
// With redrawDuplicates no two branches in the result are equal: draws that
// hit an already sampled branch, at any index holding an equal branch, add to
// its weight and another draw is made, so the result has exactly numSamples
// branches. Equal branches are reported at the index of the first one. Without
// it, duplicates appear as repeated entries. Result weights are sample counts
// over total draws, stored on copies of the branches; original order is kept.
func (t *Tree) Sample(numSamples int, redrawDuplicates bool, src determinism.Source) (*Tree, SampleStats, error) {
	var stats SampleStats
	if numSamples <= 0 {
		return nil, stats, errors.Precondition("number of samples must be positive, got %d", numSamples)
	}
	sampler, err := t.Sampler()
	if err != nil {
		return nil, stats, err
	}
	if redrawDuplicates && numSamples > t.DistinctPositive() {
		return nil, stats, errors.Precondition(
			"cannot randomly sample %d branches from %d distinct non-zero-weight branches without any duplicates",
			numSamples, t.DistinctPositive())
	}

	counts := make([]int, len(t.branches))
	if redrawDuplicates {
		for stats.Unique < numSamples {
			i, _ := t.IndexOf(t.branches[sampler.Draw(src)])
			if counts[i] == 0 {
				stats.Unique++
			}
			counts[i]++
			stats.Draws++
		}
	} else {
		for s := 0; s < numSamples; s++ {
			i := sampler.Draw(src)
			if counts[i] == 0 {
				stats.Unique++
			}
			counts[i]++
			stats.Draws++
		}
	}

	weightEach := 1.0 / float64(stats.Draws)
	samples := make([]*Branch, 0, numSamples)
	for i, count := range counts {
		if count == 0 {
			continue
		}
		if count > stats.MostDrawn {
			stats.MostDrawn = count
		}
		b := t.branches[i].Copy()
		if redrawDuplicates {
			b.SetOrigWeight(float64(count) * weightEach)
			samples = append(samples, b)
			continue
		}
		b.SetOrigWeight(weightEach)
		for c := 0; c < count; c++ {
			samples = append(samples, b)
		}
	}
	return newTree(t.levels, samples, OriginalWeights{}), stats, nil
}
