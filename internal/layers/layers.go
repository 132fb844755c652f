// Package layers decides which layers of a document are exported and
// captures each one's label hierarchy.
package layers

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/beevik/etree"

	"github.com/starford/layerexport/internal/svgdoc"
)

// Mode is the leaf-selection policy.
type Mode string

const (
	// OnlyLeaf exports only layers without exportable child layers.
	OnlyLeaf Mode = "only-leaf"
	// All exports every labeled, non-ignored layer.
	All Mode = "all"
)

// ParseMode validates a selection mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case OnlyLeaf, All:
		return Mode(s), nil
	}
	return "", fmt.Errorf("layers: unknown selection mode %q", s)
}

// Selected is a layer chosen for export with its hierarchy, outermost
// label first and the layer's own label last.
type Selected struct {
	Layer     *etree.Element
	Hierarchy []string
}

// Label returns the layer's own label.
func (s Selected) Label() string {
	return s.Hierarchy[len(s.Hierarchy)-1]
}

// Prune detaches every labeled layer whose label starts with skipPrefix or,
// when skipHidden is set, that is hidden. Whole subtrees go with their
// layer. It returns the number of layers removed.
func Prune(doc *svgdoc.Document, skipHidden bool, skipPrefix string, logger *slog.Logger) int {
	var skipped []*etree.Element
	for _, l := range svgdoc.Layers(doc.Root()) {
		label := svgdoc.Label(l)
		if label == "" {
			continue
		}
		if hasPrefix(label, skipPrefix) || (skipHidden && svgdoc.IsHidden(l)) {
			logger.Debug("layers: skip", slog.String("label", label))
			skipped = append(skipped, l)
		}
	}
	// Children before parents.
	for i := len(skipped) - 1; i >= 0; i-- {
		svgdoc.Detach(skipped[i])
	}
	logger.Debug("layers: pruned", slog.Int("count", len(skipped)))
	return len(skipped)
}

// Select returns the exportable layers in document order.
func Select(doc *svgdoc.Document, mode Mode, ignorePrefix string) []Selected {
	var out []Selected
	for _, l := range svgdoc.Layers(doc.Root()) {
		label := svgdoc.Label(l)
		if label == "" || hasPrefix(label, ignorePrefix) {
			continue
		}
		if mode == OnlyLeaf && isParent(l, ignorePrefix) {
			continue
		}
		out = append(out, Selected{Layer: l, Hierarchy: Hierarchy(l)})
	}
	return out
}

// Hierarchy returns the labels of the consecutive labeled ancestors of l,
// outermost first, followed by l's own label. The walk stops at the first
// unlabeled ancestor.
func Hierarchy(l *etree.Element) []string {
	labels := []string{svgdoc.Label(l)}
	for _, a := range svgdoc.Ancestors(l) {
		if svgdoc.IsRoot(a) || !svgdoc.HasLabel(a) {
			break
		}
		labels = append(labels, svgdoc.Label(a))
	}
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	return labels
}

// isParent reports whether l has a direct child layer that could itself be
// exported.
func isParent(l *etree.Element, ignorePrefix string) bool {
	for _, c := range l.ChildElements() {
		if !svgdoc.IsLayer(c) {
			continue
		}
		label := svgdoc.Label(c)
		if label != "" && !hasPrefix(label, ignorePrefix) {
			return true
		}
	}
	return false
}

// Info describes one layer for listings.
type Info struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	Hierarchy []string `json:"hierarchy"`
	Hidden    bool     `json:"hidden"`
	Ignored   bool     `json:"ignored"`
	Selected  bool     `json:"selected"`
}

// Describe lists every layer of doc in document order and marks the ones
// Select would return.
func Describe(doc *svgdoc.Document, mode Mode, ignorePrefix string) []Info {
	selected := make(map[*etree.Element]bool)
	for _, s := range Select(doc, mode, ignorePrefix) {
		selected[s.Layer] = true
	}
	all := svgdoc.Layers(doc.Root())
	out := make([]Info, 0, len(all))
	for _, l := range all {
		label := svgdoc.Label(l)
		out = append(out, Info{
			ID:        svgdoc.ID(l),
			Label:     label,
			Hierarchy: Hierarchy(l),
			Hidden:    svgdoc.IsHidden(l),
			Ignored:   label != "" && hasPrefix(label, ignorePrefix),
			Selected:  selected[l],
		})
	}
	return out
}

// hasPrefix treats an empty prefix as disabled.
func hasPrefix(label, prefix string) bool {
	return prefix != "" && strings.HasPrefix(label, prefix)
}
