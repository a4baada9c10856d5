// Package treefile loads and writes logic trees as JSON, YAML or HCL files.
//
// All three formats share one document shape: a list of levels, each with a
// node type tag and its nodes, an optional weight provider name and an
// optional list of branches given as node prefixes. A document without
// branches describes the full cross product of its levels.
package treefile

import (
	"path/filepath"
	"strings"

	"ltcombine/internal/errors"
)

// Format identifies a tree file encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
)

// FormatOf derives the format from a file extension
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".hcl":
		return FormatHCL, nil
	}
	return "", errors.Newf(errors.TypeInput, "unsupported tree file extension %q", filepath.Ext(path))
}

// Document is the decoded form of a tree file
type Document struct {
	Name           string      `json:"name,omitempty" yaml:"name,omitempty"`
	WeightProvider string      `json:"weightProvider,omitempty" yaml:"weightProvider,omitempty"`
	Levels         []LevelDoc  `json:"levels" yaml:"levels"`
	Branches       []BranchDoc `json:"branches,omitempty" yaml:"branches,omitempty"`
}

// LevelDoc declares one level and its nodes
type LevelDoc struct {
	Type      string    `json:"type" yaml:"type"`
	Name      string    `json:"name,omitempty" yaml:"name,omitempty"`
	ShortName string    `json:"shortName,omitempty" yaml:"shortName,omitempty"`
	Nodes     []NodeDoc `json:"nodes" yaml:"nodes"`
}

// NodeDoc declares one node
type NodeDoc struct {
	Prefix    string  `json:"prefix" yaml:"prefix"`
	Name      string  `json:"name,omitempty" yaml:"name,omitempty"`
	ShortName string  `json:"shortName,omitempty" yaml:"shortName,omitempty"`
	Weight    float64 `json:"weight" yaml:"weight"`
}

// BranchDoc is one branch as node prefixes in level order. A missing weight
// falls back to the product of the node weights.
type BranchDoc struct {
	Values []string `json:"values" yaml:"values"`
	Weight *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

func (d *Document) validate() error {
	if len(d.Levels) == 0 {
		return errors.Input("tree file declares no levels")
	}
	seen := make(map[string]bool, len(d.Levels))
	for _, l := range d.Levels {
		if l.Type == "" {
			return errors.Input("level without a type")
		}
		if seen[l.Type] {
			return errors.Newf(errors.TypeInput, "level type %q declared twice", l.Type)
		}
		seen[l.Type] = true
		for _, n := range l.Nodes {
			if n.Prefix == "" {
				return errors.Newf(errors.TypeInput, "level %q has a node without a prefix", l.Type)
			}
		}
	}
	for i, b := range d.Branches {
		if len(b.Values) != len(d.Levels) {
			return errors.Newf(errors.TypeInput, "branch %d has %d values but the tree has %d levels",
				i, len(b.Values), len(d.Levels))
		}
	}
	return nil
}
