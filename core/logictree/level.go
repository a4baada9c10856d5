// Package logictree models weighted logic trees: levels of modeling choices,
// the nodes (choices) on each level, branches assigning one node per level,
// and trees holding an ordered set of branches with a weight provider.
//
// Levels and nodes are identity objects. Two nodes are the same choice only if
// they are the same pointer, which is what lets two independently loaded trees
// share a common level.
package logictree

import (
	"fmt"
	"sync/atomic"
)

var nextID atomic.Uint64

func newID() uint64 {
	return nextID.Add(1)
}

// Node is one discrete choice value on a level.
type Node struct {
	id        uint64
	nodeType  string
	name      string
	shortName string
	prefix    string
	weight    float64
}

// NewNode creates a node of the given type. The file prefix doubles as the
// short name when shortName is empty.
func NewNode(nodeType, prefix, name, shortName string, weight float64) *Node {
	if shortName == "" {
		shortName = prefix
	}
	if name == "" {
		name = shortName
	}
	return &Node{
		id:        newID(),
		nodeType:  nodeType,
		name:      name,
		shortName: shortName,
		prefix:    prefix,
		weight:    weight,
	}
}

// Type returns the node type tag
func (n *Node) Type() string { return n.nodeType }

// Name returns the display name
func (n *Node) Name() string { return n.name }

// ShortName returns the short name
func (n *Node) ShortName() string { return n.shortName }

// Prefix returns the file prefix, unique within a level
func (n *Node) Prefix() string { return n.prefix }

// Weight returns the prior weight of the node
func (n *Node) Weight() float64 { return n.weight }

// String implements Stringer
func (n *Node) String() string { return n.shortName }

// Level is one axis of choice.
type Level struct {
	id        uint64
	name      string
	shortName string
	nodeType  string
	nodes     []*Node
	byPrefix  map[string]*Node
}

// NewLevel creates a level accepting nodes of nodeType.
func NewLevel(name, shortName, nodeType string) *Level {
	if shortName == "" {
		shortName = name
	}
	return &Level{
		id:        newID(),
		name:      name,
		shortName: shortName,
		nodeType:  nodeType,
		byPrefix:  make(map[string]*Node),
	}
}

// AddNode creates a node on this level and returns it.
func (l *Level) AddNode(prefix, name string, weight float64) *Node {
	n := NewNode(l.nodeType, prefix, name, "", weight)
	if err := l.Attach(n); err != nil {
		panic(err)
	}
	return n
}

// Attach registers an existing node as a member of this level.
func (l *Level) Attach(n *Node) error {
	if n.nodeType != l.nodeType {
		return fmt.Errorf("node %s has type %q, level %s expects %q", n, n.nodeType, l.name, l.nodeType)
	}
	if prev, ok := l.byPrefix[n.prefix]; ok {
		if prev == n {
			return nil
		}
		return fmt.Errorf("level %s already has a node with prefix %q", l.name, n.prefix)
	}
	l.nodes = append(l.nodes, n)
	l.byPrefix[n.prefix] = n
	return nil
}

// Name returns the display name
func (l *Level) Name() string { return l.name }

// ShortName returns the short name
func (l *Level) ShortName() string { return l.shortName }

// Type returns the node type tag accepted by this level
func (l *Level) Type() string { return l.nodeType }

// Nodes returns a copy of the member nodes in declaration order
func (l *Level) Nodes() []*Node {
	out := make([]*Node, len(l.nodes))
	copy(out, l.nodes)
	return out
}

// Node looks up a member node by file prefix
func (l *Level) Node(prefix string) (*Node, bool) {
	n, ok := l.byPrefix[prefix]
	return n, ok
}

// IsMember reports whether n is a member of this level
func (l *Level) IsMember(n *Node) bool {
	if n == nil || n.nodeType != l.nodeType {
		return false
	}
	return l.byPrefix[n.prefix] == n
}

// String implements Stringer
func (l *Level) String() string {
	return fmt.Sprintf("%s (%s)", l.name, l.shortName)
}

// ContainsLevel reports whether levels contains l by identity.
func ContainsLevel(levels []*Level, l *Level) bool {
	return IndexOfLevel(levels, l) >= 0
}

// IndexOfLevel returns the position of l in levels, or -1.
func IndexOfLevel(levels []*Level, l *Level) int {
	for i, cand := range levels {
		if cand == l {
			return i
		}
	}
	return -1
}
