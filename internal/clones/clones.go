// Package clones rewrites clone references (<use href="#id">) into owned
// content so later passes only ever see a plain tree.
package clones

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/beevik/etree"

	"github.com/starford/layerexport/internal/apperr"
	"github.com/starford/layerexport/internal/svgdoc"
)

// Stats summarises one resolution pass.
type Stats struct {
	Found    int
	Replaced int
	Removed  int
}

// Resolve removes every clone from doc. With preserve set each clone is
// replaced by a copy of the content it references; otherwise clones are
// deleted. Clones are processed last-declared first.
func Resolve(doc *svgdoc.Document, preserve bool, logger *slog.Logger) (Stats, error) {
	aliases := collect(doc.Root())
	stats := Stats{Found: len(aliases)}

	if !preserve {
		for i := len(aliases) - 1; i >= 0; i-- {
			svgdoc.Detach(aliases[i])
			stats.Removed++
		}
		logger.Debug("clones: removed", slog.Int("count", stats.Removed))
		return stats, nil
	}

	r := &resolver{ids: svgdoc.IndexIDs(doc.Root())}
	for i := len(aliases) - 1; i >= 0; i-- {
		alias := aliases[i]
		repl, err := r.materialize(alias, map[string]bool{})
		if err != nil {
			return stats, err
		}
		svgdoc.Replace(alias, repl)
		stats.Replaced++
		logger.Debug("clones: replaced",
			slog.String("clone", svgdoc.ID(alias)),
			slog.String("target", svgdoc.ID(repl)))
	}
	logger.Debug("clones: resolved", slog.Int("found", stats.Found), slog.Int("replaced", stats.Replaced))
	return stats, nil
}

func collect(root *etree.Element) []*etree.Element {
	var out []*etree.Element
	for _, e := range svgdoc.Descendants(root) {
		if _, ok := svgdoc.CloneTarget(e); ok {
			out = append(out, e)
		}
	}
	return out
}

type resolver struct {
	ids map[string]*etree.Element
}

// materialize returns an owned copy of the content alias stands for.
// visiting holds the ids on the current reference path.
func (r *resolver) materialize(alias *etree.Element, visiting map[string]bool) (*etree.Element, error) {
	target, _ := svgdoc.CloneTarget(alias)
	if visiting[target] {
		return nil, fmt.Errorf("clones: %q -> %q: %w", svgdoc.ID(alias), target, apperr.ErrCloneCycle)
	}
	ref, ok := r.ids[target]
	if !ok {
		return nil, fmt.Errorf("clones: %q -> %q: %w", svgdoc.ID(alias), target, apperr.ErrDanglingClone)
	}

	visiting[target] = true
	defer delete(visiting, target)

	var cp *etree.Element
	if _, chained := svgdoc.CloneTarget(ref); chained {
		var err error
		if cp, err = r.materialize(ref, visiting); err != nil {
			return nil, err
		}
	} else {
		cp = ref.Copy()
		nested := collect(cp)
		for i := len(nested) - 1; i >= 0; i-- {
			repl, err := r.materialize(nested[i], visiting)
			if err != nil {
				return nil, err
			}
			svgdoc.Replace(nested[i], repl)
		}
	}

	inherit(cp, alias)
	return cp, nil
}

// inherit applies the alias's own attributes to the copy of its target.
func inherit(cp, alias *etree.Element) {
	if t := aliasTransform(alias); t != "" {
		cp.CreateAttr("transform", t)
	}

	if id := svgdoc.ID(alias); id != "" {
		cp.CreateAttr("id", id)
	} else {
		svgdoc.RemoveAttr(cp, "", "id")
	}

	if v, ok := svgdoc.Opacity(alias); ok && v == 0 {
		svgdoc.SetStyleValue(cp, "opacity", "0")
	}

	// An inlined layer is no longer an independently selectable unit.
	svgdoc.UnmarkLayer(cp)
	for _, e := range svgdoc.Descendants(cp) {
		svgdoc.UnmarkLayer(e)
	}
}

// aliasTransform is the alias transform followed by its x/y offset.
func aliasTransform(alias *etree.Element) string {
	t := svgdoc.AttrValue(alias, "", "transform")
	x := offset(svgdoc.AttrValue(alias, "", "x"))
	y := offset(svgdoc.AttrValue(alias, "", "y"))
	if x == 0 && y == 0 {
		return t
	}
	tr := "translate(" + strconv.FormatFloat(x, 'f', -1, 64) + "," + strconv.FormatFloat(y, 'f', -1, 64) + ")"
	if t == "" {
		return tr
	}
	return t + " " + tr
}

func offset(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
