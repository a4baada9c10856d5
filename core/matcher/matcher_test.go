package matcher_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltcombine/core/logictree"
	"ltcombine/core/matcher"
	"ltcombine/internal/errors"
	"ltcombine/internal/testutils"
)

func TestBuildCachesPerCombination(t *testing.T) {
	la, _ := testutils.Level("A", []string{"A1", "A2", "A3"}, nil)
	lc, nc := testutils.Level("C", []string{"C1", "C2"}, nil)
	lb, _ := testutils.Level("B", []string{"B1", "B2"}, nil)

	outer := testutils.ExhaustiveTree(t, la, lc)
	inner := testutils.ExhaustiveTree(t, lc, lb)

	idx, err := matcher.Build(outer, inner, []*logictree.Level{lc}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, 2, idx.RepresentativeSize())
	assert.False(t, idx.SizesDiffer())

	for _, b := range outer.Branches() {
		sub, err := idx.For(b)
		require.NoError(t, err)
		require.Equal(t, 2, sub.Size())
		for _, ib := range sub.Branches() {
			assert.Equal(t, b.ValueOf(lc), ib.ValueOf(lc))
		}
	}

	keys := idx.Keys()
	require.Len(t, keys, 2)
	assert.Equal(t, nc[0], keys[0].Value(0))
	assert.Same(t, idx.Subtree(keys[1]), mustFor(t, idx, outer.Branch(1)))

	total, err := idx.ExactCombinations(outer)
	require.NoError(t, err)
	assert.Equal(t, 12, total)
}

func TestBuildFailsOnMissingCombination(t *testing.T) {
	la, _ := testutils.Level("A", []string{"A1"}, nil)
	lc, nc := testutils.Level("C", []string{"C1", "C2"}, nil)
	lb, nb := testutils.Level("B", []string{"B1"}, nil)

	outer := testutils.ExhaustiveTree(t, la, lc)
	inner := logictree.MustTree([]*logictree.Level{lc, lb}, []*logictree.Branch{
		logictree.MustBranch([]*logictree.Level{lc, lb}, nc[0], nb[0]),
	}, nil)

	_, err := matcher.Build(outer, inner, []*logictree.Level{lc}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypePrecondition))
	assert.Contains(t, err.Error(), "[C2]")
}

func TestSizesDifferFlagged(t *testing.T) {
	la, _ := testutils.Level("A", []string{"A1"}, nil)
	lc, nc := testutils.Level("C", []string{"C1", "C2"}, nil)
	lb, nb := testutils.Level("B", []string{"B1", "B2"}, nil)
	innerLevels := []*logictree.Level{lc, lb}

	outer := testutils.ExhaustiveTree(t, la, lc)
	inner := logictree.MustTree(innerLevels, []*logictree.Branch{
		logictree.MustBranch(innerLevels, nc[0], nb[0]),
		logictree.MustBranch(innerLevels, nc[0], nb[1]),
		logictree.MustBranch(innerLevels, nc[1], nb[0]),
	}, nil)

	idx, err := matcher.Build(outer, inner, []*logictree.Level{lc}, nil)
	require.NoError(t, err)
	assert.True(t, idx.SizesDiffer())
	assert.Equal(t, 1, idx.RepresentativeSize())

	total, err := idx.ExactCombinations(outer)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func mustFor(t *testing.T, idx *matcher.Index, b *logictree.Branch) *logictree.Tree {
	t.Helper()
	sub, err := idx.For(b)
	require.NoError(t, err)
	return sub
}
