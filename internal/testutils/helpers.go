// Package testutils holds fixtures shared by package tests.
package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"ltcombine/core/logictree"
)

// ScriptedSource replays fixed values in [0, 1) so tests can force a draw
// sequence through a sampler.
type ScriptedSource struct {
	values []float64
	pos    int
}

// Script creates a scripted source
func Script(values ...float64) *ScriptedSource {
	return &ScriptedSource{values: values}
}

// Float64 implements determinism.Source
func (s *ScriptedSource) Float64() float64 {
	if s.pos >= len(s.values) {
		panic(fmt.Sprintf("scripted source exhausted after %d draws", len(s.values)))
	}
	v := s.values[s.pos]
	s.pos++
	return v
}

// Used returns the number of values consumed
func (s *ScriptedSource) Used() int { return s.pos }

// Level creates a level named name with one node per prefix, using the
// given node weights.
func Level(name string, prefixes []string, weights []float64) (*logictree.Level, []*logictree.Node) {
	l := logictree.NewLevel(name, name, name)
	nodes := make([]*logictree.Node, len(prefixes))
	for i, p := range prefixes {
		w := 1.0
		if i < len(weights) {
			w = weights[i]
		}
		nodes[i] = l.AddNode(p, p, w)
	}
	return l, nodes
}

// SingleLevelTree builds a tree with one branch per node and stored weights.
func SingleLevelTree(t testing.TB, name string, prefixes []string, weights []float64) *logictree.Tree {
	t.Helper()
	l, nodes := Level(name, prefixes, weights)
	levels := []*logictree.Level{l}
	branches := make([]*logictree.Branch, len(nodes))
	for i, n := range nodes {
		b, err := logictree.BranchOf(levels, n)
		require.NoError(t, err)
		b.SetOrigWeight(weights[i])
		branches[i] = b
	}
	tree, err := logictree.NewTree(levels, branches, logictree.OriginalWeights{})
	require.NoError(t, err)
	return tree
}

// ExhaustiveTree builds the cross product of the given levels.
func ExhaustiveTree(t testing.TB, levels ...*logictree.Level) *logictree.Tree {
	t.Helper()
	tree, err := logictree.BuildExhaustive(levels)
	require.NoError(t, err)
	return tree
}

// Weights returns the provider weights of every branch of tree
func Weights(tree *logictree.Tree) []float64 {
	out := make([]float64, tree.Size())
	for i := range out {
		out[i] = tree.Weight(i)
	}
	return out
}
