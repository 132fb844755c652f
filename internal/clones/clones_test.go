package clones

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/layerexport/internal/apperr"
	"github.com/starford/layerexport/internal/svgdoc"
	"github.com/starford/layerexport/internal/testutil"
)

var discard = slog.New(slog.DiscardHandler)

func parse(t *testing.T, s string) *svgdoc.Document {
	t.Helper()
	doc, err := svgdoc.Parse([]byte(s))
	require.NoError(t, err)
	return doc
}

func countAliases(doc *svgdoc.Document) int {
	return len(collect(doc.Root()))
}

func TestResolveChainTerminates(t *testing.T) {
	doc := parse(t, testutil.CloneChainSVG)

	stats, err := Resolve(doc, true, discard)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Found)
	assert.Equal(t, 3, stats.Replaced)
	assert.Zero(t, countAliases(doc))

	ids := svgdoc.IndexIDs(doc.Root())
	u1 := ids["u1"]
	require.NotNil(t, u1)
	assert.Equal(t, "rect", u1.Tag, "u1 should hold a copy of the concrete rect")
	assert.Equal(t, "translate(1,1)", u1.SelectAttrValue("transform", ""))

	u2 := ids["u2"]
	require.NotNil(t, u2)
	assert.Equal(t, "rect", u2.Tag)
	assert.Equal(t, "scale(2)", u2.SelectAttrValue("transform", ""), "no alias transform keeps the copy's own")

	u3 := ids["u3"]
	require.NotNil(t, u3)
	v, ok := svgdoc.Opacity(u3)
	require.True(t, ok)
	assert.Zero(t, v, "zero-opacity clone must stay invisible")
}

func TestResolveDropsClonesWhenNotPreserving(t *testing.T) {
	doc := parse(t, testutil.LayeredSVG)

	stats, err := Resolve(doc, false, discard)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Removed)
	assert.Zero(t, countAliases(doc))

	ids := svgdoc.IndexIDs(doc.Root())
	assert.Empty(t, ids["layerE"].ChildElements())
}

func TestResolvePlacesCopyAtAliasPosition(t *testing.T) {
	doc := parse(t, testutil.LayeredSVG)

	_, err := Resolve(doc, true, discard)
	require.NoError(t, err)

	layerE := svgdoc.IndexIDs(doc.Root())["layerE"]
	children := layerE.ChildElements()
	require.Len(t, children, 1)
	assert.Equal(t, "circle", children[0].Tag)
	assert.Equal(t, "cloneOfDot", svgdoc.ID(children[0]))
	assert.Equal(t, "translate(50,50)", children[0].SelectAttrValue("transform", ""))
}

func TestResolveStripsLayerMarkers(t *testing.T) {
	src := `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" xmlns:inkscape="http://www.inkscape.org/namespaces/inkscape">
  <g id="orig" inkscape:groupmode="layer" inkscape:label="Orig">
    <g id="inner" inkscape:groupmode="layer" inkscape:label="Inner"><rect width="1" height="1"/></g>
  </g>
  <g id="host" inkscape:groupmode="layer" inkscape:label="Host">
    <use id="c" xlink:href="#orig" x="3" y="4"/>
  </g>
</svg>`
	doc := parse(t, src)

	_, err := Resolve(doc, true, discard)
	require.NoError(t, err)

	var labels []string
	for _, l := range svgdoc.Layers(doc.Root()) {
		labels = append(labels, svgdoc.Label(l))
	}
	assert.Equal(t, []string{"Orig", "Inner", "Host"}, labels, "inlined copies are plain groups")

	c := svgdoc.IndexIDs(doc.Root())["c"]
	require.NotNil(t, c)
	assert.Equal(t, "translate(3,4)", c.SelectAttrValue("transform", ""))
}

func TestResolveNestedCloneInsideReferent(t *testing.T) {
	src := `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink">
  <defs>
    <g id="combo"><use id="inner" xlink:href="#base"/></g>
    <rect id="base" width="1" height="1"/>
  </defs>
  <use id="outer" xlink:href="#combo"/>
</svg>`
	doc := parse(t, src)

	_, err := Resolve(doc, true, discard)
	require.NoError(t, err)
	assert.Zero(t, countAliases(doc))
}

func TestResolveDanglingFailsFast(t *testing.T) {
	src := `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink">
  <use id="lost" xlink:href="#nowhere"/>
</svg>`

	_, err := Resolve(parse(t, src), true, discard)
	require.ErrorIs(t, err, apperr.ErrDanglingClone)
	assert.Contains(t, err.Error(), "nowhere")

	stats, err := Resolve(parse(t, src), false, discard)
	require.NoError(t, err, "dropping clones never needs the referent")
	assert.Equal(t, 1, stats.Removed)
}

func TestResolveCycle(t *testing.T) {
	src := `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink">
  <g id="loop"><use id="self" xlink:href="#loop"/></g>
</svg>`

	_, err := Resolve(parse(t, src), true, discard)
	assert.ErrorIs(t, err, apperr.ErrCloneCycle)
}
