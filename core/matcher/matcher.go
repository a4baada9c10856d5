// Package matcher restricts the inner tree per outer branch to the inner
// branches that agree on the levels shared by both trees.
package matcher

import (
	"strings"

	"go.uber.org/zap"

	"ltcombine/core/logictree"
	"ltcombine/internal/errors"
)

// Index caches one inner sub-tree per distinct combination of common-level
// values found on the outer branches.
type Index struct {
	common   []*logictree.Level
	subtrees map[logictree.BranchKey]*logictree.Tree
	order    []*logictree.Branch

	lastSize    int
	sizesDiffer bool
}

// Build computes the matching inner sub-tree for every common-value
// combination on the outer tree. Every combination must match at least one
// inner branch.
func Build(outer, inner *logictree.Tree, common []*logictree.Level, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(common) == 0 {
		return nil, errors.Precondition("no common levels supplied")
	}
	idx := &Index{
		common:   common,
		subtrees: make(map[logictree.BranchKey]*logictree.Tree),
		lastSize: -1,
	}
	for o, b := range outer.Branches() {
		key, values, err := idx.commonBranch(b)
		if err != nil {
			return nil, errors.Wrapf(errors.TypePrecondition, err, "outer branch %d", o)
		}
		if _, ok := idx.subtrees[key.Key()]; ok {
			continue
		}
		sub := inner.MatchingAll(values...)
		if sub.Size() == 0 {
			return nil, errors.Precondition(
				"inner tree doesn't have any branches with these common values from the outer tree: %s",
				describe(values)).WithContext("outer_index", o)
		}
		if idx.lastSize >= 0 && sub.Size() != idx.lastSize {
			idx.sizesDiffer = true
		}
		idx.lastSize = sub.Size()
		idx.subtrees[key.Key()] = sub
		idx.order = append(idx.order, key)
	}
	if idx.sizesDiffer {
		logger.Warn("matching inner sub-trees differ in size; expected combination count is approximate",
			zap.Int("representative_size", idx.lastSize))
	}
	logger.Debug("built common-level sub-trees",
		zap.Int("common_levels", len(common)),
		zap.Int("combinations", len(idx.order)),
	)
	return idx, nil
}

func (idx *Index) commonBranch(b *logictree.Branch) (*logictree.Branch, []*logictree.Node, error) {
	values := make([]*logictree.Node, len(idx.common))
	for i, l := range idx.common {
		v := b.ValueOf(l)
		if v == nil {
			return nil, nil, errors.Precondition("branch %s has no value for common level %s", b, l.Name())
		}
		values[i] = v
	}
	key, err := logictree.BranchOf(idx.common, values...)
	if err != nil {
		return nil, nil, err
	}
	return key, values, nil
}

// For returns the inner sub-tree matching outer branch b
func (idx *Index) For(b *logictree.Branch) (*logictree.Tree, error) {
	key, _, err := idx.commonBranch(b)
	if err != nil {
		return nil, err
	}
	sub, ok := idx.subtrees[key.Key()]
	if !ok {
		return nil, errors.Precondition("no inner sub-tree for common values of outer branch %s", b)
	}
	return sub, nil
}

// Common returns the common levels
func (idx *Index) Common() []*logictree.Level { return idx.common }

// Len returns the number of distinct common-value combinations
func (idx *Index) Len() int { return len(idx.order) }

// Keys returns the synthetic common-level branches in discovery order
func (idx *Index) Keys() []*logictree.Branch {
	out := make([]*logictree.Branch, len(idx.order))
	copy(out, idx.order)
	return out
}

// Subtree returns the sub-tree for a key returned by Keys
func (idx *Index) Subtree(key *logictree.Branch) *logictree.Tree {
	return idx.subtrees[key.Key()]
}

// RepresentativeSize is the size of the most recently computed sub-tree.
// It is only an estimate when SizesDiffer is true; use it for progress
// reporting, not for anything load-bearing.
func (idx *Index) RepresentativeSize() int { return idx.lastSize }

// SizesDiffer reports whether the sub-trees have heterogeneous sizes
func (idx *Index) SizesDiffer() bool { return idx.sizesDiffer }

// ExactCombinations sums the matching sub-tree size over every outer branch.
func (idx *Index) ExactCombinations(outer *logictree.Tree) (int, error) {
	total := 0
	for _, b := range outer.Branches() {
		sub, err := idx.For(b)
		if err != nil {
			return 0, err
		}
		total += sub.Size()
	}
	return total, nil
}

func describe(values []*logictree.Node) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = v.ShortName()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
