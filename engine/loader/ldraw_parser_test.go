package loader

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-ldr/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSingleFile(t *testing.T) {
	src := `0 Simple model
0 Name: Simple.ldr

1 4 1 2 3 1 2 3 4 5 6 7 8 9 Parts\3001.DAT
2 24 0 0 0 1 0 0
3 16 0 0 0 1 0 0 0 1 0
4 0x2FF0000 0 0 0 1 0 0 1 1 0 0 1 0
5 24 0 0 0 1 0 0 0 1 0 1 1 0
`
	doc, err := parseDocument("Simple.ldr", strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "simple.ldr", doc.main)
	require.Len(t, doc.blocks, 1)

	f := doc.blocks[doc.main]
	require.Len(t, f.refs, 1)
	ref := f.refs[0]
	assert.Equal(t, "parts/3001.dat", ref.name)
	assert.Equal(t, uint32(4), ref.color)
	assert.Equal(t, common.Mat4{
		1, 4, 7, 0,
		2, 5, 8, 0,
		3, 6, 9, 0,
		1, 2, 3, 1,
	}, ref.transform)

	require.Len(t, f.edges, 1)
	assert.Equal(t, uint32(24), f.edges[0].color)
	require.Len(t, f.polygons, 2)
	assert.Len(t, f.polygons[0].vertices, 3)
	assert.Len(t, f.polygons[1].vertices, 4)
	assert.Equal(t, uint32(0x2FF0000), f.polygons[1].color)
}

func TestParseMPDBlocks(t *testing.T) {
	src := `0 FILE main.ldr
1 1 0 0 0 1 0 0 0 1 0 0 0 1 sub.ldr
0 NOFILE
0 stray comment between blocks
0 FILE Sub.ldr
0 !LDRAW_ORG Unofficial_Part
1 16 0 0 0 1 0 0 0 1 0 0 0 1 3001.dat
0 FILE s.dat
0 !LDRAW_ORG Unofficial_Subpart
3 16 0 0 0 1 0 0 0 1 0
`
	doc, err := parseDocument("main.mpd", strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "main.ldr", doc.main)
	require.Len(t, doc.blocks, 3)
	assert.False(t, doc.blocks["main.ldr"].part)
	assert.True(t, doc.blocks["sub.ldr"].part)
	assert.False(t, doc.blocks["s.dat"].part)
	assert.Len(t, doc.blocks["sub.ldr"].refs, 1)
	assert.Same(t, doc, doc.blocks["sub.ldr"].doc)
}

func TestParseBFC(t *testing.T) {
	src := `0 BFC CERTIFY CW
3 16 0 0 0 1 0 0 0 1 0
0 BFC INVERTNEXT
1 16 0 0 0 1 0 0 0 1 0 0 0 1 a.dat
1 16 0 0 0 1 0 0 0 1 0 0 0 1 b.dat
0 BFC INVERTNEXT
3 16 0 0 0 1 0 0 0 1 0
1 16 0 0 0 1 0 0 0 1 0 0 0 1 c.dat
0 BFC CCW
3 16 0 0 0 1 0 0 0 1 0
`
	doc, err := parseDocument("bfc.dat", strings.NewReader(src))
	require.NoError(t, err)
	f := doc.blocks[doc.main]

	require.Len(t, f.polygons, 3)
	assert.Equal(t, windingCW, f.polygons[0].winding)
	assert.Equal(t, windingCCW, f.polygons[2].winding)

	require.Len(t, f.refs, 3)
	assert.True(t, f.refs[0].invert)
	assert.False(t, f.refs[1].invert)
	// INVERTNEXT only applies to the line right after it.
	assert.False(t, f.refs[2].invert)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"short reference": "1 16 0 0 0 1 0 0 0 1 0 0 0\n",
		"bad number":      "3 16 0 0 x 1 0 0 0 1 0\n",
		"bad color":       "2 red 0 0 0 1 0 0\n",
		"unknown type":    "7 16 0 0 0\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseDocument("bad.ldr", strings.NewReader(src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "bad.ldr:1")
		})
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "s/3001s01.dat", normalizeName(` S\3001s01.DAT `))
	assert.Equal(t, "my model.ldr", normalizeName("My Model.ldr"))
}
