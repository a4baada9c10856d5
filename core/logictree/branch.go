package logictree

import (
	"fmt"
	"strconv"
	"strings"

	"ltcombine/internal/errors"
)

// BranchKey is a comparable identity for a branch's (level, node) contents.
// Two branches with equal keys are equal regardless of weight.
type BranchKey string

// Branch assigns one node to each level of a fixed level list.
//
// The original weight is set once by whoever builds the branch and is read
// many times afterwards. When unset, the weight is the product of the node
// weights. Branches are frozen once they are part of a published tree.
type Branch struct {
	levels    []*Level
	values    []*Node
	weight    float64
	weightSet bool
}

// NewBranch creates an empty branch over levels.
func NewBranch(levels []*Level) *Branch {
	return &Branch{
		levels: levels,
		values: make([]*Node, len(levels)),
	}
}

// BranchOf creates a fully populated branch, checking membership of each value.
func BranchOf(levels []*Level, values ...*Node) (*Branch, error) {
	if len(values) != len(levels) {
		return nil, errors.Precondition("branch has %d values but %d levels", len(values), len(levels))
	}
	b := NewBranch(levels)
	for i, v := range values {
		if err := b.SetValue(i, v); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// MustBranch is BranchOf that panics on error; for literals in tests and examples.
func MustBranch(levels []*Level, values ...*Node) *Branch {
	b, err := BranchOf(levels, values...)
	if err != nil {
		panic(err)
	}
	return b
}

// Size returns the number of levels
func (b *Branch) Size() int { return len(b.levels) }

// Levels returns the level list. Callers must not modify it.
func (b *Branch) Levels() []*Level { return b.levels }

// Level returns the level at index i
func (b *Branch) Level(i int) *Level { return b.levels[i] }

// Value returns the node at index i, nil when unset
func (b *Branch) Value(i int) *Node { return b.values[i] }

// Values returns a copy of the node values
func (b *Branch) Values() []*Node {
	out := make([]*Node, len(b.values))
	copy(out, b.values)
	return out
}

// ValueOf returns the node assigned to level l, nil if l is not on this branch
func (b *Branch) ValueOf(l *Level) *Node {
	if i := IndexOfLevel(b.levels, l); i >= 0 {
		return b.values[i]
	}
	return nil
}

// HasValue reports whether n is assigned on any level
func (b *Branch) HasValue(n *Node) bool {
	for _, v := range b.values {
		if v == n {
			return true
		}
	}
	return false
}

// SetValue assigns n to level index i. n must be a member of that level.
func (b *Branch) SetValue(i int, n *Node) error {
	if i < 0 || i >= len(b.levels) {
		return errors.Precondition("level index %d out of range [0, %d)", i, len(b.levels))
	}
	if !b.levels[i].IsMember(n) {
		return errors.Precondition("node %v is not a member of level %s", n, b.levels[i].Name())
	}
	b.values[i] = n
	return nil
}

// IsFullySpecified reports whether every level has a value
func (b *Branch) IsFullySpecified() bool {
	for _, v := range b.values {
		if v == nil {
			return false
		}
	}
	return true
}

// NodeWeight returns the product of the weights of all assigned nodes
func (b *Branch) NodeWeight() float64 {
	w := 1.0
	for _, v := range b.values {
		if v != nil {
			w *= v.weight
		}
	}
	return w
}

// OrigWeight returns the stored weight, or the node weight product when unset
func (b *Branch) OrigWeight() float64 {
	if b.weightSet {
		return b.weight
	}
	return b.NodeWeight()
}

// HasOrigWeight reports whether a weight was stored explicitly
func (b *Branch) HasOrigWeight() bool { return b.weightSet }

// SetOrigWeight stores the branch weight
func (b *Branch) SetOrigWeight(w float64) {
	b.weight = w
	b.weightSet = true
}

// Key returns the content identity of the branch
func (b *Branch) Key() BranchKey {
	buf := make([]byte, 0, len(b.levels)*16)
	for i, l := range b.levels {
		buf = strconv.AppendUint(buf, l.id, 36)
		buf = append(buf, '=')
		if v := b.values[i]; v != nil {
			buf = strconv.AppendUint(buf, v.id, 36)
		}
		buf = append(buf, ';')
	}
	return BranchKey(buf)
}

// Equal compares (level, node) contents, ignoring weight
func (b *Branch) Equal(o *Branch) bool {
	if b == o {
		return true
	}
	if o == nil || len(b.levels) != len(o.levels) {
		return false
	}
	for i := range b.levels {
		if b.levels[i] != o.levels[i] || b.values[i] != o.values[i] {
			return false
		}
	}
	return true
}

// SameLevels reports whether o uses the identical level list
func (b *Branch) SameLevels(o *Branch) bool {
	return sameLevels(b.levels, o.levels)
}

// Copy returns an independent branch with the same values and weight state
func (b *Branch) Copy() *Branch {
	c := &Branch{
		levels:    b.levels,
		values:    make([]*Node, len(b.values)),
		weight:    b.weight,
		weightSet: b.weightSet,
	}
	copy(c.values, b.values)
	return c
}

// String renders the branch as its node short names
func (b *Branch) String() string {
	parts := make([]string, len(b.values))
	for i, v := range b.values {
		if v == nil {
			parts[i] = "(null)"
		} else {
			parts[i] = v.shortName
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Prefixes returns the node file prefixes, empty for unset values
func (b *Branch) Prefixes() []string {
	out := make([]string, len(b.values))
	for i, v := range b.values {
		if v != nil {
			out[i] = v.prefix
		}
	}
	return out
}

// GoString helps test failure output
func (b *Branch) GoString() string {
	return fmt.Sprintf("Branch%s{w=%g}", b.String(), b.OrigWeight())
}

func sameLevels(a, b []*Level) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
