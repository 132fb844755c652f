package svgdoc

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

type declaration struct {
	prop, value string
}

// parseStyle splits a CSS declaration list ("a:b;c:d"), keeping order.
func parseStyle(s string) []declaration {
	var out []declaration
	for _, part := range strings.Split(s, ";") {
		prop, value, ok := strings.Cut(part, ":")
		prop = strings.TrimSpace(prop)
		if !ok || prop == "" {
			continue
		}
		out = append(out, declaration{prop: prop, value: strings.TrimSpace(value)})
	}
	return out
}

func formatStyle(decls []declaration) string {
	parts := make([]string, len(decls))
	for i, d := range decls {
		parts[i] = d.prop + ":" + d.value
	}
	return strings.Join(parts, ";")
}

// StyleValue returns the value of prop in the style attribute of e.
func StyleValue(e *etree.Element, prop string) (string, bool) {
	for _, d := range parseStyle(AttrValue(e, "", "style")) {
		if d.prop == prop {
			return d.value, true
		}
	}
	return "", false
}

// SetStyleValue sets prop in the style attribute of e, leaving the other
// declarations untouched.
func SetStyleValue(e *etree.Element, prop, value string) {
	decls := parseStyle(AttrValue(e, "", "style"))
	found := false
	for i := range decls {
		if decls[i].prop == prop {
			decls[i].value = value
			found = true
		}
	}
	if !found {
		decls = append(decls, declaration{prop: prop, value: value})
	}
	e.CreateAttr("style", formatStyle(decls))
}

// IsHidden reports whether e is hidden with display:none, either in its
// style or as a presentation attribute.
func IsHidden(e *etree.Element) bool {
	if v, ok := StyleValue(e, "display"); ok {
		return v == "none"
	}
	return AttrValue(e, "", "display") == "none"
}

// SetVisible forces e to display:inline.
func SetVisible(e *etree.Element) {
	SetStyleValue(e, "display", "inline")
	RemoveAttr(e, "", "display")
}

// Opacity returns the opacity of e from its style or presentation attribute.
func Opacity(e *etree.Element) (float64, bool) {
	raw, ok := StyleValue(e, "opacity")
	if !ok {
		raw = AttrValue(e, "", "opacity")
		ok = raw != ""
	}
	if !ok {
		return 1, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 1, false
	}
	return v, true
}
