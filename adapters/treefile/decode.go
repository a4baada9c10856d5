package treefile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"

	"ltcombine/internal/errors"
)

// Decode parses data in the given format. filename is used in diagnostics.
func Decode(format Format, filename string, data []byte) (*Document, error) {
	switch format {
	case FormatJSON:
		return decodeJSON(filename, data)
	case FormatYAML:
		return decodeYAML(filename, data)
	case FormatHCL:
		return decodeHCL(filename, data)
	}
	return nil, errors.Newf(errors.TypeInput, "unsupported tree file format %q", format)
}

func decodeJSON(filename string, data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Parsing("decode "+filename, err)
	}
	return &doc, nil
}

func decodeYAML(filename string, data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Parsing("decode "+filename, err)
	}
	return &doc, nil
}

type hclDocument struct {
	Name           string      `hcl:"name,optional"`
	WeightProvider string      `hcl:"weight_provider,optional"`
	Levels         []hclLevel  `hcl:"level,block"`
	Branches       []hclBranch `hcl:"branch,block"`
}

type hclLevel struct {
	Type      string    `hcl:"type,label"`
	Name      string    `hcl:"name,optional"`
	ShortName string    `hcl:"short_name,optional"`
	Nodes     []hclNode `hcl:"node,block"`
}

type hclNode struct {
	Prefix    string  `hcl:"prefix,label"`
	Name      string  `hcl:"name,optional"`
	ShortName string  `hcl:"short_name,optional"`
	Weight    float64 `hcl:"weight"`
}

type hclBranch struct {
	Values []string `hcl:"values"`
	Weight *float64 `hcl:"weight,optional"`
}

func decodeHCL(filename string, data []byte) (*Document, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.Parsing("parse "+filename, diagError(diags))
	}

	var raw hclDocument
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, errors.Parsing("decode "+filename, diagError(diags))
	}

	doc := &Document{Name: raw.Name, WeightProvider: raw.WeightProvider}
	for _, l := range raw.Levels {
		ld := LevelDoc{Type: l.Type, Name: l.Name, ShortName: l.ShortName}
		for _, n := range l.Nodes {
			ld.Nodes = append(ld.Nodes, NodeDoc(n))
		}
		doc.Levels = append(doc.Levels, ld)
	}
	for _, b := range raw.Branches {
		doc.Branches = append(doc.Branches, BranchDoc(b))
	}
	return doc, nil
}

// diagError flattens error diagnostics into one error with line numbers
func diagError(diags hcl.Diagnostics) error {
	var msgs []string
	for _, diag := range diags {
		if diag.Severity != hcl.DiagError {
			continue
		}
		line := 0
		if diag.Subject != nil {
			line = diag.Subject.Start.Line
		}
		msgs = append(msgs, fmt.Sprintf("line %d: %s: %s", line, diag.Summary, diag.Detail))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
