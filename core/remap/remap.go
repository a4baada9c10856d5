// Package remap handles level and node substitution between two independently
// authored logic trees before they are combined.
package remap

import (
	"go.uber.org/zap"

	"ltcombine/core/logictree"
	"ltcombine/internal/errors"
)

// Tables maps source levels and nodes of one input tree to the levels and
// nodes used in the combined tree. Empty tables mean identity.
type Tables struct {
	Levels map[*logictree.Level]*logictree.Level
	Nodes  map[*logictree.Node]*logictree.Node
}

// NewTables returns empty tables
func NewTables() *Tables {
	return &Tables{
		Levels: make(map[*logictree.Level]*logictree.Level),
		Nodes:  make(map[*logictree.Node]*logictree.Node),
	}
}

// Level returns the remapped level, or l itself
func (t *Tables) Level(l *logictree.Level) *logictree.Level {
	if r, ok := t.Levels[l]; ok && r != nil {
		return r
	}
	return l
}

// Node returns the remapped node, or n itself
func (t *Tables) Node(n *logictree.Node) *logictree.Node {
	if r, ok := t.Nodes[n]; ok && r != nil {
		return r
	}
	return n
}

// Empty reports whether both tables are identity
func (t *Tables) Empty() bool {
	return len(t.Levels) == 0 && len(t.Nodes) == 0
}

// remapsAway reports whether l (or any of its nodes) is sent somewhere else
func (t *Tables) remapsAway(l *logictree.Level) bool {
	if r, ok := t.Levels[l]; ok && r != nil && r != l {
		return true
	}
	for _, n := range l.Nodes() {
		if r, ok := t.Nodes[n]; ok && r != nil && r != n {
			return true
		}
	}
	return false
}

// Func fills tables for one input tree. It is handed empty tables and may
// leave them empty.
type Func func(tree *logictree.Tree, tables *Tables)

// Identity leaves the tables empty
func Identity(*logictree.Tree, *Tables) {}

// Static returns a Func that copies fixed mappings into the tables.
func Static(levels map[*logictree.Level]*logictree.Level, nodes map[*logictree.Node]*logictree.Node) Func {
	return func(_ *logictree.Tree, t *Tables) {
		for k, v := range levels {
			t.Levels[k] = v
		}
		for k, v := range nodes {
			t.Nodes[k] = v
		}
	}
}

// Build runs fn (nil means identity) against fresh tables.
func Build(tree *logictree.Tree, fn Func) *Tables {
	t := NewTables()
	if fn != nil {
		fn(tree, t)
	}
	return t
}

// Plan is the remap outcome for an outer/inner pair.
type Plan struct {
	Outer *Tables
	Inner *Tables
}

// NewPlan builds both tables and validates them against the common levels.
func NewPlan(outer, inner *logictree.Tree, outerFn, innerFn Func, common []*logictree.Level, logger *zap.Logger) (*Plan, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("remapping outer logic tree levels")
	p := &Plan{Outer: Build(outer, outerFn)}
	logger.Debug("remapping inner logic tree levels")
	p.Inner = Build(inner, innerFn)

	if err := p.ValidateCommon(outer, inner, common); err != nil {
		return nil, err
	}
	logger.Debug("remap tables built",
		zap.Int("outer_levels", len(p.Outer.Levels)),
		zap.Int("outer_nodes", len(p.Outer.Nodes)),
		zap.Int("inner_levels", len(p.Inner.Levels)),
		zap.Int("inner_nodes", len(p.Inner.Nodes)),
	)
	return p, nil
}

// ValidateCommon checks the common-level constraints: each common level is
// present in both trees, is not remapped to anything else, and each tree keeps
// at least one level of its own.
func (p *Plan) ValidateCommon(outer, inner *logictree.Tree, common []*logictree.Level) error {
	if len(common) == 0 {
		return nil
	}
	if len(common) >= len(outer.Levels()) {
		return errors.Precondition("at least one level of the outer tree must be unique")
	}
	if len(common) >= len(inner.Levels()) {
		return errors.Precondition("at least one level of the inner tree must be unique")
	}
	for _, l := range common {
		if p.Outer.remapsAway(l) {
			return errors.Precondition("outer remaps include a common level: %s", l.Name()).
				WithContext("level", l.ShortName())
		}
		if p.Inner.remapsAway(l) {
			return errors.Precondition("inner remaps include a common level: %s", l.Name()).
				WithContext("level", l.ShortName())
		}
		if !logictree.ContainsLevel(outer.Levels(), l) {
			return errors.Precondition("outer tree doesn't contain level %s, but it's a common level", l.Name())
		}
		if !logictree.ContainsLevel(inner.Levels(), l) {
			return errors.Precondition("inner tree doesn't contain level %s, but it's a common level", l.Name())
		}
	}
	return nil
}

// CombinedLevels assembles the combined level list: outer levels, then inner
// levels not already present as common levels. Averaged-out levels are
// skipped and remapped levels substituted.
func (p *Plan) CombinedLevels(outerLevels, innerLevels, common, averaged []*logictree.Level) ([]*logictree.Level, error) {
	combined := make([]*logictree.Level, 0, len(outerLevels)+len(innerLevels))
	for _, l := range outerLevels {
		if logictree.ContainsLevel(averaged, l) {
			continue
		}
		combined = append(combined, p.Outer.Level(l))
	}
	for _, l := range innerLevels {
		if logictree.ContainsLevel(averaged, l) {
			continue
		}
		l = p.Inner.Level(l)
		if logictree.ContainsLevel(common, l) {
			continue
		}
		combined = append(combined, l)
	}
	seen := make(map[*logictree.Level]struct{}, len(combined))
	for _, l := range combined {
		if _, dup := seen[l]; dup {
			return nil, errors.Precondition(
				"level %s appears in both trees but is not declared common; remap it or add it to the common levels", l.Name())
		}
		seen[l] = struct{}{}
	}
	return combined, nil
}
