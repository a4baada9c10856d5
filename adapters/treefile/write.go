package treefile

import (
	"encoding/json"
	"io"
	"os"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"ltcombine/core/logictree"
	"ltcombine/internal/errors"
)

// DocumentOf describes a tree with explicit branches. Branch weights are
// those of the tree's weight provider, so the document always uses the
// original weights provider.
func DocumentOf(tree *logictree.Tree) *Document {
	doc := &Document{WeightProvider: "original"}
	for _, l := range tree.Levels() {
		ld := LevelDoc{Type: l.Type(), Name: l.Name(), ShortName: l.ShortName()}
		for _, n := range l.Nodes() {
			ld.Nodes = append(ld.Nodes, NodeDoc{
				Prefix:    n.Prefix(),
				Name:      n.Name(),
				ShortName: n.ShortName(),
				Weight:    n.Weight(),
			})
		}
		doc.Levels = append(doc.Levels, ld)
	}
	doc.Branches = make([]BranchDoc, tree.Size())
	for i, b := range tree.Branches() {
		w := tree.Weight(i)
		doc.Branches[i] = BranchDoc{Values: b.Prefixes(), Weight: &w}
	}
	return doc
}

// WriteJSON writes the tree as indented JSON
func WriteJSON(w io.Writer, tree *logictree.Tree) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(DocumentOf(tree))
}

// Encode renders the tree in the given format
func Encode(format Format, tree *logictree.Tree) ([]byte, error) {
	doc := DocumentOf(tree)
	switch format {
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatHCL:
		return encodeHCL(doc), nil
	}
	return nil, errors.Newf(errors.TypeInput, "unsupported tree file format %q", format)
}

// Write stores the tree at path, choosing the encoding by extension
func Write(path string, tree *logictree.Tree) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := Encode(format, tree)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(errors.TypeInput, err, "writing %s", path)
	}
	return nil
}

func encodeHCL(doc *Document) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()
	if doc.Name != "" {
		body.SetAttributeValue("name", cty.StringVal(doc.Name))
	}
	body.SetAttributeValue("weight_provider", cty.StringVal(doc.WeightProvider))

	for _, l := range doc.Levels {
		body.AppendNewline()
		lb := body.AppendNewBlock("level", []string{l.Type}).Body()
		lb.SetAttributeValue("name", cty.StringVal(l.Name))
		lb.SetAttributeValue("short_name", cty.StringVal(l.ShortName))
		for _, n := range l.Nodes {
			nb := lb.AppendNewBlock("node", []string{n.Prefix}).Body()
			nb.SetAttributeValue("name", cty.StringVal(n.Name))
			nb.SetAttributeValue("short_name", cty.StringVal(n.ShortName))
			nb.SetAttributeValue("weight", cty.NumberFloatVal(n.Weight))
		}
	}

	for _, b := range doc.Branches {
		body.AppendNewline()
		bb := body.AppendNewBlock("branch", nil).Body()
		values := make([]cty.Value, len(b.Values))
		for i, v := range b.Values {
			values[i] = cty.StringVal(v)
		}
		bb.SetAttributeValue("values", cty.ListVal(values))
		if b.Weight != nil {
			bb.SetAttributeValue("weight", cty.NumberFloatVal(*b.Weight))
		}
	}
	return f.Bytes()
}
