package logictree_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltcombine/core/determinism"
	"ltcombine/core/logictree"
	"ltcombine/internal/errors"
	"ltcombine/internal/testutils"
)

func TestBranchEqualityIgnoresWeight(t *testing.T) {
	l, nodes := testutils.Level("A", []string{"A1", "A2"}, []float64{0.6, 0.4})
	levels := []*logictree.Level{l}

	a := logictree.MustBranch(levels, nodes[0])
	b := logictree.MustBranch(levels, nodes[0])
	b.SetOrigWeight(0.123)
	c := logictree.MustBranch(levels, nodes[1])

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.False(t, a.Equal(c))
	assert.NotEqual(t, a.Key(), c.Key())

	// same prefix on a different level is a different choice
	other, otherNodes := testutils.Level("A", []string{"A1"}, []float64{1})
	d := logictree.MustBranch([]*logictree.Level{other}, otherNodes[0])
	assert.False(t, a.Equal(d))
	assert.NotEqual(t, a.Key(), d.Key())
}

func TestBranchWeightFallsBackToNodeProduct(t *testing.T) {
	la, na := testutils.Level("A", []string{"A1"}, []float64{0.5})
	lb, nb := testutils.Level("B", []string{"B1"}, []float64{0.4})
	b := logictree.MustBranch([]*logictree.Level{la, lb}, na[0], nb[0])

	assert.False(t, b.HasOrigWeight())
	assert.InDelta(t, 0.2, b.OrigWeight(), 1e-15)
	b.SetOrigWeight(0.7)
	assert.Equal(t, 0.7, b.OrigWeight())
	assert.InDelta(t, 0.2, b.NodeWeight(), 1e-15)
	assert.Equal(t, "[A1, B1]", b.String())
}

func TestSetValueChecksMembership(t *testing.T) {
	la, _ := testutils.Level("A", []string{"A1"}, nil)
	_, nb := testutils.Level("B", []string{"B1"}, nil)

	b := logictree.NewBranch([]*logictree.Level{la})
	err := b.SetValue(0, nb[0])
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypePrecondition))
	assert.False(t, b.IsFullySpecified())

	_, err = logictree.BranchOf([]*logictree.Level{la})
	assert.Error(t, err)
}

func TestNewTreeValidation(t *testing.T) {
	la, na := testutils.Level("A", []string{"A1", "A2"}, nil)
	lb, nb := testutils.Level("B", []string{"B1"}, nil)
	levels := []*logictree.Level{la}

	weighted := func(w float64) *logictree.Branch {
		b := logictree.MustBranch(levels, na[0])
		b.SetOrigWeight(w)
		return b
	}

	tests := []struct {
		name     string
		branches []*logictree.Branch
		wantErr  bool
	}{
		{name: "valid", branches: []*logictree.Branch{weighted(0.5)}},
		{name: "zero weight kept", branches: []*logictree.Branch{weighted(0)}},
		{name: "negative weight", branches: []*logictree.Branch{weighted(-0.1)}, wantErr: true},
		{name: "NaN weight", branches: []*logictree.Branch{weighted(math.NaN())}, wantErr: true},
		{name: "infinite weight", branches: []*logictree.Branch{weighted(math.Inf(1))}, wantErr: true},
		{
			name:     "foreign level",
			branches: []*logictree.Branch{logictree.MustBranch([]*logictree.Level{lb}, nb[0])},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := logictree.NewTree(levels, tt.branches, logictree.OriginalWeights{})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.TypePrecondition))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestBuildExhaustive(t *testing.T) {
	la, _ := testutils.Level("A", []string{"A1", "A2"}, []float64{0.6, 0.4})
	lb, _ := testutils.Level("B", []string{"B1", "B2", "B3"}, []float64{0.5, 0.3, 0.2})

	tree := testutils.ExhaustiveTree(t, la, lb)
	require.Equal(t, 6, tree.Size())
	assert.InDelta(t, 0.30, tree.Weight(0), 1e-12)
	assert.InDelta(t, 0.08, tree.Weight(5), 1e-12)
	assert.InDelta(t, 1.0, tree.TotalWeight(), 1e-12)
	assert.Equal(t, "[A2, B3]", tree.Branch(5).String())
}

func TestMatchingQueries(t *testing.T) {
	la, na := testutils.Level("A", []string{"A1", "A2"}, nil)
	lb, nb := testutils.Level("B", []string{"B1", "B2", "B3"}, nil)
	tree := testutils.ExhaustiveTree(t, la, lb)

	assert.Equal(t, 3, tree.MatchingAll(na[0]).Size())
	assert.Equal(t, 1, tree.MatchingAll(na[0], nb[2]).Size())
	assert.Equal(t, 0, tree.MatchingAll(nb[0], nb[1]).Size())
	assert.Equal(t, 4, tree.MatchingAny(nb[0], nb[1]).Size())
	assert.Equal(t, 2, tree.MatchingNone(nb[0], nb[1]).Size())

	sub := tree.MatchingAll(na[1])
	for i := 0; i < sub.Size(); i++ {
		idx, ok := tree.IndexOf(sub.Branch(i))
		require.True(t, ok)
		assert.Equal(t, 3+i, idx)
	}

	subset, err := tree.Subset([]*logictree.Branch{tree.Branch(4), tree.Branch(1)})
	require.NoError(t, err)
	require.Equal(t, 2, subset.Size())
	assert.True(t, subset.Branch(0).Equal(tree.Branch(1)))

	foreign := logictree.MustBranch([]*logictree.Level{la}, na[0])
	_, err = tree.Subset([]*logictree.Branch{foreign})
	assert.Error(t, err)
}

func TestSamplerDraws(t *testing.T) {
	s, err := logictree.NewSampler([]float64{0.5, 0.3, 0.2})
	require.NoError(t, err)

	src := testutils.Script(0.0, 0.49, 0.51, 0.75, 0.85, 0.999999)
	var got []int
	for i := 0; i < 6; i++ {
		got = append(got, s.Draw(src))
	}
	assert.Equal(t, []int{0, 0, 1, 1, 2, 2}, got)
	assert.Equal(t, 3, s.Positive())
}

func TestSamplerSkipsZeroWeights(t *testing.T) {
	s, err := logictree.NewSampler([]float64{0, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Positive())

	rng := determinism.NewRandom(7)
	for i := 0; i < 200; i++ {
		assert.Equal(t, 1, s.Draw(rng))
	}
	// rounding up to the total still lands on a positive index
	assert.Equal(t, 1, s.Draw(testutils.Script(1.0)))

	_, err = logictree.NewSampler([]float64{0, 0})
	assert.Error(t, err)
}

func TestSampleRedrawDuplicates(t *testing.T) {
	tree := testutils.SingleLevelTree(t, "B", []string{"B1", "B2", "B3"}, []float64{0.5, 0.3, 0.2})

	// B1, B1 (duplicate), B2
	sampled, stats, err := tree.Sample(2, true, testutils.Script(0.1, 0.2, 0.6))
	require.NoError(t, err)
	require.Equal(t, 2, sampled.Size())
	assert.Equal(t, logictree.SampleStats{Draws: 3, Unique: 2, MostDrawn: 2}, stats)
	assert.InDelta(t, 2.0/3.0, sampled.Weight(0), 1e-12)
	assert.InDelta(t, 1.0/3.0, sampled.Weight(1), 1e-12)
	assert.True(t, sampled.Branch(0).Equal(tree.Branch(0)))
	assert.True(t, sampled.Branch(1).Equal(tree.Branch(1)))

	// source weights untouched
	assert.Equal(t, 0.5, tree.Weight(0))
}

func TestSampleRedrawRepeatedBranches(t *testing.T) {
	base := testutils.SingleLevelTree(t, "B", []string{"B1", "B2"}, []float64{0.5, 0.5})
	b1, b2 := base.Branch(0), base.Branch(1)
	tree, err := logictree.NewTree(base.Levels(), []*logictree.Branch{b1, b1.Copy(), b2}, logictree.OriginalWeights{})
	require.NoError(t, err)
	assert.Equal(t, 2, tree.DistinctPositive())

	tests := []struct {
		name    string
		samples int
		script  []float64
		want    []string
		stats   logictree.SampleStats
		wantErr bool
	}{
		{
			name:    "equal branches count once",
			samples: 2,
			// index 0, index 1 (equal to index 0), index 2
			script: []float64{0.1, 0.5, 0.9},
			want:   []string{"[B1]", "[B2]"},
			stats:  logictree.SampleStats{Draws: 3, Unique: 2, MostDrawn: 2},
		},
		{
			name:    "more than the distinct branches",
			samples: 3,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampled, stats, err := tree.Sample(tt.samples, true, testutils.Script(tt.script...))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.TypePrecondition))
				assert.Contains(t, err.Error(), "from 2 distinct non-zero-weight branches")
				return
			}
			require.NoError(t, err)
			var got []string
			for _, b := range sampled.Branches() {
				got = append(got, b.String())
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.stats, stats)
			assert.InDelta(t, 2.0/3.0, sampled.Weight(0), 1e-12)
			assert.InDelta(t, 1.0, sampled.TotalWeight(), 1e-12)
		})
	}
}

func TestSampleWithoutRedraw(t *testing.T) {
	tree := testutils.SingleLevelTree(t, "B", []string{"B1", "B2"}, []float64{0.5, 0.5})

	sampled, stats, err := tree.Sample(3, false, testutils.Script(0.1, 0.2, 0.7))
	require.NoError(t, err)
	assert.Equal(t, 3, sampled.Size())
	assert.Equal(t, 2, stats.Unique)
	assert.True(t, sampled.Branch(0).Equal(sampled.Branch(1)))
	assert.InDelta(t, 1.0, sampled.TotalWeight(), 1e-12)
}

func TestSampleRejectsImpossibleCounts(t *testing.T) {
	tree := testutils.SingleLevelTree(t, "B", []string{"B1", "B2", "B3"}, []float64{0.5, 0.5, 0})

	_, _, err := tree.Sample(3, true, determinism.NewRandom(1))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypePrecondition))

	_, _, err = tree.Sample(0, false, determinism.NewRandom(1))
	assert.Error(t, err)
}

func TestWeightProviders(t *testing.T) {
	tree := testutils.SingleLevelTree(t, "B", []string{"B1", "B2"}, []float64{2, 6})

	norm := tree.Normalized()
	assert.InDelta(t, 0.25, norm.Weight(0), 1e-12)
	assert.InDelta(t, 0.75, norm.Weight(1), 1e-12)

	constant := tree.WithWeightProvider(logictree.ConstantWeights{W: 0.5})
	assert.Equal(t, 0.5, constant.Weight(1))

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "", want: "original"},
		{name: "original", want: "original"},
		{name: "nodes", want: "nodes"},
		{name: "constant(0.25)", want: "constant(0.25)"},
		{name: "bogus", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := logictree.ProviderByName(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
		})
	}
}
