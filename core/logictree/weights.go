package logictree

import (
	"fmt"

	"ltcombine/core/determinism"
)

// WeightProvider computes the weight of a branch within a tree.
type WeightProvider interface {
	Weight(b *Branch) float64
	Name() string
}

// OriginalWeights uses each branch's stored weight.
type OriginalWeights struct{}

// Weight implements WeightProvider
func (OriginalWeights) Weight(b *Branch) float64 { return b.OrigWeight() }

// Name implements WeightProvider
func (OriginalWeights) Name() string { return "original" }

// NodeProductWeights ignores stored weights and multiplies node weights.
type NodeProductWeights struct{}

// Weight implements WeightProvider
func (NodeProductWeights) Weight(b *Branch) float64 { return b.NodeWeight() }

// Name implements WeightProvider
func (NodeProductWeights) Name() string { return "nodes" }

// ConstantWeights gives every branch the same weight.
type ConstantWeights struct {
	W float64
}

// Weight implements WeightProvider
func (c ConstantWeights) Weight(*Branch) float64 { return c.W }

// Name implements WeightProvider
func (c ConstantWeights) Name() string { return fmt.Sprintf("constant(%g)", c.W) }

// NormalizedWeights divides a base provider by a fixed total.
type NormalizedWeights struct {
	Base  WeightProvider
	Total float64
}

// Normalized wraps base so that the weights of branches sum to one.
// A zero total leaves the weights unchanged.
func Normalized(base WeightProvider, branches []*Branch) NormalizedWeights {
	total := determinism.ZeroMass()
	for _, b := range branches {
		total = total.Add(base.Weight(b))
	}
	return NormalizedWeights{Base: base, Total: total.Float64()}
}

// Weight implements WeightProvider
func (n NormalizedWeights) Weight(b *Branch) float64 {
	if n.Total == 0 {
		return n.Base.Weight(b)
	}
	return n.Base.Weight(b) / n.Total
}

// Name implements WeightProvider
func (n NormalizedWeights) Name() string { return "normalized(" + n.Base.Name() + ")" }

// ProviderByName resolves the names used in tree files.
func ProviderByName(name string) (WeightProvider, error) {
	switch name {
	case "", "original":
		return OriginalWeights{}, nil
	case "nodes":
		return NodeProductWeights{}, nil
	}
	var w float64
	if _, err := fmt.Sscanf(name, "constant(%g)", &w); err == nil {
		return ConstantWeights{W: w}, nil
	}
	return nil, fmt.Errorf("unknown weight provider %q", name)
}
