package loader

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-ldr/engine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLDConfig = `0 LDraw.org Configuration File
0 !COLOUR Black CODE 0 VALUE #1B2A34 EDGE #808080
0 !COLOUR White CODE 15 VALUE #FFFFFF EDGE #808080
0 !COLOUR Red CODE 4 VALUE #C91A09 EDGE #333333
0 !COLOUR Trans_Clear CODE 47 VALUE #FCFCFC EDGE #C3C3C3 ALPHA 128
0 !COLOUR Chrome_Silver CODE 383 VALUE #E0E0E0 EDGE #A4A4A4 CHROME
0 !COLOUR Broken VALUE #FFFFFF
0 // comment
`

func TestParseColorTable(t *testing.T) {
	table, err := ParseColorTable(strings.NewReader(testLDConfig))
	require.NoError(t, err)
	assert.Len(t, table, 5)

	white := table[15]
	assert.Equal(t, "White", white.Name)
	assert.InDeltaSlice(t, []float32{1, 1, 1, 1}, white.RGBALinear[:], 1e-5)
	assert.False(t, white.Transparent())

	// sRGB 0x80 is about 0.2158 linear.
	assert.InDelta(t, 0.2158, table[0].EdgeLinear[0], 1e-3)
	assert.Equal(t, float32(1), table[0].EdgeLinear[3])

	clear := table[47]
	assert.InDelta(t, 128.0/255.0, clear.RGBALinear[3], 1e-6)
	assert.True(t, table.Transparent(47))
	assert.False(t, table.Transparent(4))

	assert.Contains(t, table, uint32(383))
}

func TestColorTableFallback(t *testing.T) {
	table := model.ColorTable{}
	c := table.Lookup(9999)
	assert.Equal(t, uint32(9999), c.Code)
	assert.Equal(t, [4]float32{0.5, 0.5, 0.5, 1}, c.RGBALinear)
}

func TestLoadColorTableMissing(t *testing.T) {
	_, err := LoadColorTable(t.TempDir())
	require.Error(t, err)
}
