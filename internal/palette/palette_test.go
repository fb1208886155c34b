package palette_test

import (
	"testing"

	"github.com/consoletools/fudgebundle/internal/imagerec"
	"github.com/consoletools/fudgebundle/internal/palette"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fourBitImage(t *testing.T, palFirst uint16) *imagerec.Image {
	t.Helper()
	pal := make([]uint16, 16)
	pal[0] = palFirst
	img, err := imagerec.New([][]uint16{{0, 0}, {0, 0}}, pal, imagerec.Margin{}, imagerec.Margin{}, 0, nil)
	require.NoError(t, err)
	return img
}

func TestPackSingleSixteenColorPalette(t *testing.T) {
	img := fourBitImage(t, 1)

	freeHeight := palette.Pack([]*imagerec.Image{img}, 64, 256, 0, false)

	require.True(t, img.Pal.Placed)
	assert.Equal(t, 0, img.Pal.PX)
	assert.Equal(t, 255, img.Pal.PY)
	assert.Equal(t, 255, freeHeight)
}

func TestPackDeduplicatesIdenticalPalettes(t *testing.T) {
	a := fourBitImage(t, 5)
	b := fourBitImage(t, 5)

	palette.Pack([]*imagerec.Image{a, b}, 64, 256, 0, false)

	assert.Equal(t, a.Pal, b.Pal)
}

func TestPackSortsEightBitPalettesFirst(t *testing.T) {
	four := fourBitImage(t, 1)

	pal256 := make([]uint16, 200)
	eight, err := imagerec.New([][]uint16{{0, 0}}, pal256, imagerec.Margin{}, imagerec.Margin{}, 0, nil)
	require.NoError(t, err)

	palette.Pack([]*imagerec.Image{four, eight}, 256, 256, 0, false)

	// The 256-wide strip must start at px=0 (placed first), the 16-wide
	// strip packs into the next row up.
	assert.Equal(t, 0, eight.Pal.PX)
	assert.Equal(t, 255, eight.Pal.PY)
	assert.Equal(t, 0, four.Pal.PX)
	assert.Equal(t, 254, four.Pal.PY)
}

func TestPackReturnsFreeHeightForImagePacker(t *testing.T) {
	pal256 := make([]uint16, 256)
	img, err := imagerec.New([][]uint16{{0}}, pal256, imagerec.Margin{}, imagerec.Margin{}, 0, nil)
	require.NoError(t, err)

	freeHeight := palette.Pack([]*imagerec.Image{img}, 256, 256, 0, false)
	assert.Equal(t, 255, freeHeight)
}
