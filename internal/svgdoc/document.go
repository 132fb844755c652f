// Package svgdoc is the document tree the export pipeline works on.
//
// It wraps an etree document and adds the Inkscape vocabulary the pipeline
// needs: layers (groups marked with inkscape:groupmode="layer"), labels,
// clones (use elements), style-encoded visibility and composed transforms.
// Node identity is *etree.Element identity.
package svgdoc

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

// Namespace URIs recognised by the pipeline.
const (
	NSSVG      = "http://www.w3.org/2000/svg"
	NSInkscape = "http://www.inkscape.org/namespaces/inkscape"
	NSXLink    = "http://www.w3.org/1999/xlink"
)

// MaxDepth bounds every ancestor walk. A tree deeper than this is treated as
// if it ended there.
const MaxDepth = 4096

// Document is an SVG document tree.
type Document struct {
	doc *etree.Document
}

// Parse decodes an SVG document. Non-UTF-8 encodings declared in the XML
// prolog are converted on the fly.
func Parse(data []byte) (*Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("svgdoc: parse: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("svgdoc: parse: document has no root element")
	}
	if root.Tag != "svg" {
		return nil, fmt.Errorf("svgdoc: parse: root element is <%s>, want <svg>", root.FullTag())
	}
	return &Document{doc: doc}, nil
}

// Load reads and parses the SVG file at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("svgdoc: read %s: %w", path, err)
	}
	return Parse(data)
}

// Root returns the <svg> root element.
func (d *Document) Root() *etree.Element {
	return d.doc.Root()
}

// Copy returns a deep copy of the document. The copy shares nothing with d.
func (d *Document) Copy() *Document {
	return &Document{doc: d.doc.Copy()}
}

// WriteTo serialises the document to w.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	return d.doc.WriteTo(w)
}

// Bytes serialises the document.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := d.doc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("svgdoc: serialise: %w", err)
	}
	return buf.Bytes(), nil
}
