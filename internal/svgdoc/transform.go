package svgdoc

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/srwiley/rasterx"
)

var errParamMismatch = errors.New("param mismatch")

// ParseTransform folds an SVG transform list into a single matrix.
func ParseTransform(v string) (rasterx.Matrix2D, error) {
	m := rasterx.Identity
	for _, t := range strings.Split(v, ")") {
		t = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(t), ","))
		if t == "" {
			continue
		}
		name, args, ok := strings.Cut(t, "(")
		if !ok {
			return m, fmt.Errorf("svgdoc: transform %q: %w", v, errParamMismatch)
		}
		points, err := parseNumbers(args)
		if err != nil {
			return m, fmt.Errorf("svgdoc: transform %q: %w", v, err)
		}
		m, err = applyTransform(m, strings.ToLower(strings.TrimSpace(name)), points)
		if err != nil {
			return m, fmt.Errorf("svgdoc: transform %q: %w", v, err)
		}
	}
	return m, nil
}

func applyTransform(m rasterx.Matrix2D, name string, p []float64) (rasterx.Matrix2D, error) {
	switch name {
	case "matrix":
		if len(p) == 6 {
			return m.Mult(rasterx.Matrix2D{A: p[0], B: p[1], C: p[2], D: p[3], E: p[4], F: p[5]}), nil
		}
	case "translate":
		switch len(p) {
		case 1:
			return m.Translate(p[0], 0), nil
		case 2:
			return m.Translate(p[0], p[1]), nil
		}
	case "scale":
		switch len(p) {
		case 1:
			return m.Scale(p[0], p[0]), nil
		case 2:
			return m.Scale(p[0], p[1]), nil
		}
	case "rotate":
		switch len(p) {
		case 1:
			return m.Rotate(p[0] * math.Pi / 180), nil
		case 3:
			return m.Translate(p[1], p[2]).Rotate(p[0]*math.Pi/180).Translate(-p[1], -p[2]), nil
		}
	case "skewx":
		if len(p) == 1 {
			return m.SkewX(p[0] * math.Pi / 180), nil
		}
	case "skewy":
		if len(p) == 1 {
			return m.SkewY(p[0] * math.Pi / 180), nil
		}
	}
	return m, errParamMismatch
}

func parseNumbers(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ComposedTransform returns the product of the transforms of e and all its
// ancestors below the root element, outermost first. The root's own
// transform is excluded because content lifted out of e is re-attached
// under the same root.
func ComposedTransform(e *etree.Element) (rasterx.Matrix2D, error) {
	if e == nil || IsRoot(e) {
		return rasterx.Identity, nil
	}
	chain := append([]*etree.Element{e}, Ancestors(e)...)
	m := rasterx.Identity
	for i := len(chain) - 1; i >= 0; i-- {
		n := chain[i]
		if IsRoot(n) {
			continue
		}
		v := AttrValue(n, "", "transform")
		if v == "" {
			continue
		}
		t, err := ParseTransform(v)
		if err != nil {
			return rasterx.Identity, err
		}
		m = m.Mult(t)
	}
	return m, nil
}

// IsIdentity reports whether m is the identity matrix.
func IsIdentity(m rasterx.Matrix2D) bool {
	return m == rasterx.Identity
}

// FormatMatrix renders m as an SVG matrix(...) transform.
func FormatMatrix(m rasterx.Matrix2D) string {
	vals := []float64{m.A, m.B, m.C, m.D, m.E, m.F}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "matrix(" + strings.Join(parts, ",") + ")"
}
