package svgdoc

import (
	"strings"

	"github.com/beevik/etree"
)

// conventionalPrefix is used when a prefix cannot be resolved through xmlns
// declarations, e.g. on a subtree that has been detached from its document.
var conventionalPrefix = map[string]string{
	NSInkscape: "inkscape",
	NSXLink:    "xlink",
	NSSVG:      "svg",
}

// Attr returns the attribute local in namespace ns ("" for no namespace), or nil.
func Attr(e *etree.Element, ns, local string) *etree.Attr {
	for i := range e.Attr {
		a := &e.Attr[i]
		if a.Key != local {
			continue
		}
		if ns == "" {
			if a.Space == "" {
				return a
			}
			continue
		}
		if a.Space == "" || a.Space == "xmlns" {
			continue
		}
		if uri := lookupNamespace(e, a.Space); uri != "" {
			if uri == ns {
				return a
			}
			continue
		}
		if a.Space == conventionalPrefix[ns] {
			return a
		}
	}
	return nil
}

// AttrValue returns the value of the attribute, or "" when absent.
func AttrValue(e *etree.Element, ns, local string) string {
	if a := Attr(e, ns, local); a != nil {
		return a.Value
	}
	return ""
}

// RemoveAttr deletes the attribute if present.
func RemoveAttr(e *etree.Element, ns, local string) {
	if a := Attr(e, ns, local); a != nil {
		e.RemoveAttr(a.FullKey())
	}
}

func lookupNamespace(e *etree.Element, prefix string) string {
	for n, depth := e, 0; n != nil && depth < MaxDepth; n, depth = n.Parent(), depth+1 {
		for _, a := range n.Attr {
			if a.Space == "xmlns" && a.Key == prefix {
				return a.Value
			}
		}
	}
	return ""
}

// Label returns the inkscape:label of e ("" when absent).
func Label(e *etree.Element) string {
	return AttrValue(e, NSInkscape, "label")
}

// HasLabel reports whether e carries a non-empty inkscape:label.
func HasLabel(e *etree.Element) bool {
	return Label(e) != ""
}

// IsLayer reports whether e is a group marked as a layer.
func IsLayer(e *etree.Element) bool {
	return e.Tag == "g" && AttrValue(e, NSInkscape, "groupmode") == "layer"
}

// UnmarkLayer turns a layer into a plain group.
func UnmarkLayer(e *etree.Element) {
	if IsLayer(e) {
		RemoveAttr(e, NSInkscape, "groupmode")
	}
}

// ID returns the id attribute of e.
func ID(e *etree.Element) string {
	return AttrValue(e, "", "id")
}

// CloneTarget returns the id referenced by a clone (<use href="#id">).
func CloneTarget(e *etree.Element) (string, bool) {
	if e.Tag != "use" {
		return "", false
	}
	href := AttrValue(e, NSXLink, "href")
	if href == "" {
		href = AttrValue(e, "", "href")
	}
	if !strings.HasPrefix(href, "#") || len(href) == 1 {
		return "", false
	}
	return href[1:], true
}

// IsRoot reports whether e is the document root or a detached subtree root.
func IsRoot(e *etree.Element) bool {
	p := e.Parent()
	return p == nil || p.Tag == ""
}

// Ancestors returns the element ancestors of e, nearest first. The etree
// document node is not included.
func Ancestors(e *etree.Element) []*etree.Element {
	var out []*etree.Element
	for p := e.Parent(); p != nil && p.Tag != "" && len(out) < MaxDepth; p = p.Parent() {
		out = append(out, p)
	}
	return out
}

// Descendants returns every element below root in document order.
func Descendants(root *etree.Element) []*etree.Element {
	var out []*etree.Element
	stack := reversed(root.ChildElements())
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, n)
		stack = append(stack, reversed(n.ChildElements())...)
	}
	return out
}

// Layers returns every layer below root in document order.
func Layers(root *etree.Element) []*etree.Element {
	var out []*etree.Element
	for _, e := range Descendants(root) {
		if IsLayer(e) {
			out = append(out, e)
		}
	}
	return out
}

// IndexIDs maps every id below (and including) root to the first element
// that declares it.
func IndexIDs(root *etree.Element) map[string]*etree.Element {
	ids := make(map[string]*etree.Element)
	for _, e := range append([]*etree.Element{root}, Descendants(root)...) {
		id := ID(e)
		if id == "" {
			continue
		}
		if _, dup := ids[id]; !dup {
			ids[id] = e
		}
	}
	return ids
}

// Replace swaps old for repl at the same position under old's parent.
func Replace(old, repl *etree.Element) {
	parent := old.Parent()
	if parent == nil {
		return
	}
	idx := old.Index()
	parent.RemoveChildAt(idx)
	parent.InsertChildAt(idx, repl)
}

// Detach removes e from its parent.
func Detach(e *etree.Element) {
	if parent := e.Parent(); parent != nil {
		parent.RemoveChild(e)
	}
}

func reversed(in []*etree.Element) []*etree.Element {
	out := make([]*etree.Element, len(in))
	for i, e := range in {
		out[len(in)-1-i] = e
	}
	return out
}
