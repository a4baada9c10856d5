// Package averaging collapses levels out of a logic tree, merging branches that
// become identical and summing their weights.
package averaging

import (
	"go.uber.org/zap"

	"ltcombine/core/determinism"
	"ltcombine/core/logictree"
	"ltcombine/internal/errors"
)

// massTolerance is the relative tolerance for the conservation check
const massTolerance = 1e-9

// Result is the outcome of a reduction
type Result struct {
	// Tree is the reduced tree, or the input tree when nothing was removed
	Tree *logictree.Tree

	// Removed lists the levels that were actually dropped
	Removed []*logictree.Level

	// Merged is the number of input branches folded into an earlier branch
	Merged int
}

// Changed reports whether any level was removed
func (r Result) Changed() bool {
	return len(r.Removed) > 0
}

// Reduce removes the given levels from tree. Levels not on the tree are
// ignored; if none of them are on it the input tree is returned unchanged.
// Merged branches keep first-seen order and the result uses stored weights.
func Reduce(tree *logictree.Tree, remove []*logictree.Level, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	levels := tree.Levels()
	retained := make([]*logictree.Level, 0, len(levels))
	retainedIdx := make([]int, 0, len(levels))
	var removed []*logictree.Level
	for i, l := range levels {
		if logictree.ContainsLevel(remove, l) {
			removed = append(removed, l)
			continue
		}
		retained = append(retained, l)
		retainedIdx = append(retainedIdx, i)
	}
	if len(retained) == 0 {
		return Result{}, errors.Precondition("averaging would remove every level of the tree")
	}
	if len(removed) == 0 {
		return Result{Tree: tree}, nil
	}

	index := make(map[logictree.BranchKey]int, tree.Size())
	reduced := make([]*logictree.Branch, 0)
	sums := make([]determinism.Mass, 0)
	before := determinism.ZeroMass()
	for i, b := range tree.Branches() {
		if !b.IsFullySpecified() {
			return Result{}, errors.Precondition("branch %d is not fully specified: %s", i, b)
		}
		r := logictree.NewBranch(retained)
		for ri, li := range retainedIdx {
			if err := r.SetValue(ri, b.Value(li)); err != nil {
				return Result{}, err
			}
		}
		w := tree.Weight(i)
		before = before.Add(w)
		k := r.Key()
		if prev, ok := index[k]; ok {
			sums[prev] = sums[prev].Add(w)
			continue
		}
		index[k] = len(reduced)
		reduced = append(reduced, r)
		sums = append(sums, determinism.MassOf(w))
	}

	after := determinism.ZeroMass()
	for i, r := range reduced {
		r.SetOrigWeight(sums[i].Float64())
		after = after.Add(r.OrigWeight())
	}
	if !after.Close(before, massTolerance) {
		return Result{}, errors.Consistency("averaging changed total weight from %s to %s", before, after)
	}

	out, err := logictree.NewTree(retained, reduced, logictree.OriginalWeights{})
	if err != nil {
		return Result{}, err
	}
	logger.Info("averaged out levels",
		zap.Int("removed_levels", len(removed)),
		zap.Int("branches_before", tree.Size()),
		zap.Int("branches_after", out.Size()),
	)
	return Result{Tree: out, Removed: removed, Merged: tree.Size() - out.Size()}, nil
}
