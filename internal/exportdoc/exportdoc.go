// Package exportdoc builds the isolated per-layer documents handed to the
// renderer.
package exportdoc

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/starford/layerexport/internal/svgdoc"
)

// Base is the layer-independent part of every export document: the working
// tree without its labeled top-level containers. It is read-only after
// NewBase and safe for concurrent use.
type Base struct {
	doc *svgdoc.Document
}

// NewBase copies working and strips every root child carrying a label.
func NewBase(working *svgdoc.Document) *Base {
	doc := working.Copy()
	root := doc.Root()
	for _, c := range root.ChildElements() {
		if svgdoc.HasLabel(c) {
			root.RemoveChild(c)
		}
	}
	return &Base{doc: doc}
}

// Document returns the base document. Callers must not modify it.
func (b *Base) Document() *svgdoc.Document {
	return b.doc
}

// Build returns a fresh document holding the base content plus a copy of
// layer. The copy is wrapped in a group carrying the composed transform of
// the layer's original ancestors so it renders where it sat in the source.
// layer itself is only read.
func (b *Base) Build(layer *etree.Element, forceChildVisible bool) (*svgdoc.Document, error) {
	m, err := svgdoc.ComposedTransform(layer.Parent())
	if err != nil {
		return nil, fmt.Errorf("exportdoc: layer %q: %w", svgdoc.Label(layer), err)
	}

	cp := layer.Copy()
	svgdoc.SetVisible(cp)
	if forceChildVisible {
		for _, l := range svgdoc.Layers(cp) {
			svgdoc.SetVisible(l)
		}
	}

	container := etree.NewElement("g")
	if !svgdoc.IsIdentity(m) {
		container.CreateAttr("transform", svgdoc.FormatMatrix(m))
	}
	container.AddChild(cp)

	doc := b.doc.Copy()
	doc.Root().AddChild(container)
	return doc, nil
}
