// Package manifest folds an export plan into the nested description of the
// source hierarchy written next to the outputs.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/starford/layerexport/internal/plan"
	"github.com/starford/layerexport/internal/storage"
)

// FileName is the manifest file written under the output root.
const FileName = "manifest.json"

// Node is one label at one depth of the hierarchy. Path and Order are set
// only on nodes that were exported.
type Node struct {
	Name     string  `json:"name"`
	Children []*Node `json:"children"`
	Path     *string `json:"path,omitempty"`
	Order    *int    `json:"order,omitempty"`
}

// Build folds the plan entries, in plan order, into a forest. Nodes are
// shared by label at each depth; a node that groups other exports and is
// exported itself carries both its children and its path.
func Build(p *plan.Plan) []*Node {
	roots := []*Node{}
	for _, e := range p.Entries() {
		level := &roots
		var n *Node
		for _, label := range e.Hierarchy {
			n = child(level, label)
			level = &n.Children
		}
		if n == nil {
			continue
		}
		rel, order := e.Rel, e.Order
		n.Path = &rel
		n.Order = &order
	}
	return roots
}

func child(level *[]*Node, name string) *Node {
	for _, n := range *level {
		if n.Name == name {
			return n
		}
	}
	n := &Node{Name: name, Children: []*Node{}}
	*level = append(*level, n)
	return n
}

// Marshal encodes the forest as an indented JSON array. Non-ASCII text and
// HTML-sensitive characters are written as they are.
func Marshal(nodes []*Node) ([]byte, error) {
	if nodes == nil {
		nodes = []*Node{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(nodes); err != nil {
		return nil, fmt.Errorf("manifest: encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Write stores the manifest under the output root.
func Write(store storage.Provider, nodes []*Node) error {
	data, err := Marshal(nodes)
	if err != nil {
		return err
	}
	if err := store.Write(FileName, data); err != nil {
		return fmt.Errorf("manifest: write: %w", err)
	}
	return nil
}

// Read loads a manifest previously written under the output root.
func Read(store storage.Provider) ([]*Node, error) {
	data, err := store.Read(FileName)
	if err != nil {
		return nil, err
	}
	var nodes []*Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	return nodes, nil
}
