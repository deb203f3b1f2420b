// Package compose edits and drives docker compose projects.
package compose

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/melih/lighthouse/internal/core/domain"
)

// Tagger implements ports.ComposeTagger on the yaml.v3 node tree, so every
// key, comment and ordering it does not touch survives the rewrite.
type Tagger struct{}

// NewTagger returns a Tagger.
func NewTagger() *Tagger { return &Tagger{} }

// Tag appends label to services.<unit>.labels in the compose file at path,
// creating the sequence when absent. Labels are never deduplicated: tagging
// the same file twice leaves two copies.
func (t *Tagger) Tag(path, unit, label string) error {
	info, err := os.Stat(path)
	if err != nil {
		return domain.NewError(domain.ErrCommand, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.NewError(domain.ErrCommand, err)
	}

	out, err := AppendLabel(data, unit, label)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return domain.NewError(domain.ErrCommand, err)
	}
	return nil
}

// AppendLabel returns the compose document in data with label appended to
// the labels sequence of services.<unit>.
func AppendLabel(data []byte, unit, label string) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, domain.NewError(domain.ErrYAML, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, domain.KeyError("services")
	}

	services := lookup(resolve(doc.Content[0]), "services")
	if services == nil {
		return nil, domain.KeyError("services")
	}
	svc := lookupOwned(services, unit)
	if svc == nil {
		return nil, domain.KeyError(unit)
	}
	if svc.Kind != yaml.MappingNode {
		return nil, domain.KeyError(unit + " (as map)")
	}

	labels := lookupOwned(svc, "labels")
	if labels == nil {
		labels = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		svc.Content = append(svc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "labels"},
			labels,
		)
	}
	if labels.Kind != yaml.SequenceNode {
		return nil, domain.KeyError(unit + " labels (as sequence)")
	}
	labels.Content = append(labels.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: label})
	// An empty flow sequence ("labels: []") would keep flow style on output.
	labels.Style &^= yaml.FlowStyle

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, domain.NewError(domain.ErrYAML, fmt.Errorf("failed to encode compose file: %w", err))
	}
	if err := enc.Close(); err != nil {
		return nil, domain.NewError(domain.ErrYAML, err)
	}
	return buf.Bytes(), nil
}

// lookup returns the value node for key in a mapping node, or nil.
func lookup(node *yaml.Node, key string) *yaml.Node {
	node = resolve(node)
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return resolve(node.Content[i+1])
		}
	}
	return nil
}

// lookupOwned is lookup for a value about to be edited. An alias value is
// replaced in place by a copy of its target, so the edit stays local to key
// and other aliases of the same anchor are left alone.
func lookupOwned(node *yaml.Node, key string) *yaml.Node {
	node = resolve(node)
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != key {
			continue
		}
		value := node.Content[i+1]
		if value.Kind == yaml.AliasNode {
			target := resolve(value)
			if target == nil {
				return nil
			}
			value = deepCopy(target)
			node.Content[i+1] = value
		}
		return value
	}
	return nil
}

// deepCopy copies node and its children without their anchors. Nested
// aliases keep pointing at the original anchored nodes.
func deepCopy(node *yaml.Node) *yaml.Node {
	cp := *node
	cp.Anchor = ""
	if node.Kind == yaml.AliasNode {
		return &cp
	}
	cp.Content = make([]*yaml.Node, len(node.Content))
	for i, child := range node.Content {
		cp.Content[i] = deepCopy(child)
	}
	return &cp
}

func resolve(node *yaml.Node) *yaml.Node {
	for node != nil && node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	return node
}
