package treefile

import (
	"os"
	"sync"

	"go.uber.org/zap"

	"ltcombine/core/logictree"
	"ltcombine/internal/errors"
	"ltcombine/internal/logging"
)

// Registry interns levels by node type and nodes by type and prefix, so that
// trees loaded through the same registry share the identities of the levels
// they have in common.
type Registry struct {
	mu     sync.Mutex
	levels map[string]*logictree.Level
	order  []string
	logger *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		levels: make(map[string]*logictree.Level),
		logger: logging.OrComponent(logger, "treefile"),
	}
}

// Level returns the interned level for a node type
func (r *Registry) Level(nodeType string) (*logictree.Level, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.levels[nodeType]
	return l, ok
}

// Levels returns the interned levels in registration order
func (r *Registry) Levels() []*logictree.Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*logictree.Level, len(r.order))
	for i, t := range r.order {
		out[i] = r.levels[t]
	}
	return out
}

// LevelsOf resolves node types to interned levels
func (r *Registry) LevelsOf(nodeTypes ...string) ([]*logictree.Level, error) {
	out := make([]*logictree.Level, 0, len(nodeTypes))
	for _, t := range nodeTypes {
		l, ok := r.Level(t)
		if !ok {
			return nil, errors.Newf(errors.TypeInput, "no level of type %q has been loaded", t)
		}
		out = append(out, l)
	}
	return out, nil
}

// Load reads a tree file, choosing the decoder by extension
func (r *Registry) Load(path string) (*logictree.Tree, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.TypeInput, err, "reading %s", path)
	}
	doc, err := Decode(format, path, data)
	if err != nil {
		return nil, err
	}
	tree, err := r.Build(doc)
	if err != nil {
		return nil, errors.Wrapf(errors.TypeInput, err, "building tree from %s", path)
	}
	r.logger.Debug("loaded tree file",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Int("levels", len(tree.Levels())),
		zap.Int("branches", tree.Size()),
	)
	return tree, nil
}

// Build turns a decoded document into a tree over interned levels
func (r *Registry) Build(doc *Document) (*logictree.Tree, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}
	provider, err := logictree.ProviderByName(doc.WeightProvider)
	if err != nil {
		return nil, errors.Wrap(errors.TypeInput, "weight provider", err)
	}

	levels := make([]*logictree.Level, len(doc.Levels))
	for i, ld := range doc.Levels {
		l, err := r.intern(ld)
		if err != nil {
			return nil, err
		}
		levels[i] = l
	}

	if len(doc.Branches) == 0 {
		tree, err := logictree.BuildExhaustive(levels)
		if err != nil {
			return nil, err
		}
		return tree.WithWeightProvider(provider), nil
	}

	branches := make([]*logictree.Branch, len(doc.Branches))
	for i, bd := range doc.Branches {
		b := logictree.NewBranch(levels)
		for l, prefix := range bd.Values {
			n, ok := levels[l].Node(prefix)
			if !ok {
				return nil, errors.Newf(errors.TypeInput, "branch %d: level %s has no node %q", i, levels[l].Name(), prefix)
			}
			if err := b.SetValue(l, n); err != nil {
				return nil, err
			}
		}
		if bd.Weight != nil {
			b.SetOrigWeight(*bd.Weight)
		}
		branches[i] = b
	}
	return logictree.NewTree(levels, branches, provider)
}

// intern returns the registered level for the declared type, creating it or
// attaching new nodes as needed. A node redeclared with a different weight
// is an error.
func (r *Registry) intern(ld LevelDoc) (*logictree.Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.levels[ld.Type]
	if !ok {
		if len(ld.Nodes) == 0 {
			return nil, errors.Newf(errors.TypeInput, "level %q has no nodes", ld.Type)
		}
		name := ld.Name
		if name == "" {
			name = ld.Type
		}
		l = logictree.NewLevel(name, ld.ShortName, ld.Type)
		r.levels[ld.Type] = l
		r.order = append(r.order, ld.Type)
	}

	for _, nd := range ld.Nodes {
		if prev, ok := l.Node(nd.Prefix); ok {
			if prev.Weight() != nd.Weight {
				return nil, errors.Newf(errors.TypeInput, "node %s/%s redeclared with weight %g, registered with %g",
					ld.Type, nd.Prefix, nd.Weight, prev.Weight())
			}
			continue
		}
		n := logictree.NewNode(ld.Type, nd.Prefix, nd.Name, nd.ShortName, nd.Weight)
		if err := l.Attach(n); err != nil {
			return nil, errors.Wrap(errors.TypeInput, "attaching node", err)
		}
	}
	return l, nil
}
