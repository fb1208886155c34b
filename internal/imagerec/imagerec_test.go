package imagerec_test

import (
	"testing"

	"github.com/consoletools/fudgebundle/internal/imagerec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidGrid(w, h int, value uint16) [][]uint16 {
	grid := make([][]uint16, h)
	for r := range grid {
		row := make([]uint16, w)
		for c := range row {
			row[c] = value
		}
		grid[r] = row
	}
	return grid
}

func TestNewDerivesBPPFromPaletteLength(t *testing.T) {
	img, err := imagerec.New(solidGrid(4, 4, 0), make([]uint16, 16), imagerec.Margin{}, imagerec.Margin{}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, imagerec.BPP4, img.BPP)

	img8, err := imagerec.New(solidGrid(4, 4, 0), make([]uint16, 200), imagerec.Margin{}, imagerec.Margin{}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, imagerec.BPP8, img8.BPP)
	assert.Len(t, img8.Palette, 256)

	img16, err := imagerec.New(solidGrid(4, 4, 0x1234), nil, imagerec.Margin{}, imagerec.Margin{}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, imagerec.BPP16, img16.BPP)
}

func TestNewRejectsOversizeImages(t *testing.T) {
	_, err := imagerec.New(solidGrid(256, 4, 0), make([]uint16, 16), imagerec.Margin{}, imagerec.Margin{}, 0, nil)
	assert.Error(t, err)
}

func TestNewRejectsOutOfRangeIndex(t *testing.T) {
	grid := solidGrid(2, 2, 20)
	_, err := imagerec.New(grid, make([]uint16, 16), imagerec.Margin{}, imagerec.Margin{}, 0, nil)
	assert.Error(t, err)
}

func TestGetPackedFootprint4bpp(t *testing.T) {
	img, err := imagerec.New(solidGrid(32, 32, 0), make([]uint16, 16), imagerec.Margin{}, imagerec.Margin{}, 0, nil)
	require.NoError(t, err)

	w, h := img.GetPackedFootprint(imagerec.FlipUpright)
	assert.Equal(t, 8, w) // 32 / (16/4)
	assert.Equal(t, 32, h)

	w, h = img.GetPackedFootprint(imagerec.FlipRotated90)
	assert.Equal(t, 8, w)
	assert.Equal(t, 32, h)
}

func TestCanBePlacedRespectsPageBoundary(t *testing.T) {
	img, err := imagerec.New(solidGrid(32, 32, 0), make([]uint16, 16), imagerec.Margin{}, imagerec.Margin{}, 0, nil)
	require.NoError(t, err)

	// pageW = 64 * (16/4) = 256 for a 4bpp image.
	assert.True(t, img.CanBePlaced(0, 0, imagerec.FlipUpright))
	assert.True(t, img.CanBePlaced(248, 0, imagerec.FlipUpright))
	assert.False(t, img.CanBePlaced(252, 0, imagerec.FlipUpright))
	assert.False(t, img.CanBePlaced(0, 250, imagerec.FlipUpright))
}

func TestImageHashDeterministicAndDistinct(t *testing.T) {
	a, _ := imagerec.New(solidGrid(4, 4, 1), make([]uint16, 16), imagerec.Margin{}, imagerec.Margin{}, 0, nil)
	b, _ := imagerec.New(solidGrid(4, 4, 1), make([]uint16, 16), imagerec.Margin{}, imagerec.Margin{}, 0, nil)
	c, _ := imagerec.New(solidGrid(4, 4, 2), make([]uint16, 16), imagerec.Margin{}, imagerec.Margin{}, 0, nil)

	assert.Equal(t, a.GetImageHash(), b.GetImageHash())
	assert.NotEqual(t, a.GetImageHash(), c.GetImageHash())
}

func TestGetPaletteHashMasksLSBUnlessPreserved(t *testing.T) {
	palA := make([]uint16, 16)
	palB := make([]uint16, 16)
	palA[0] = 0x0000
	palB[0] = 0x0001

	imgA, _ := imagerec.New(solidGrid(2, 2, 0), palA, imagerec.Margin{}, imagerec.Margin{}, 0, nil)
	imgB, _ := imagerec.New(solidGrid(2, 2, 0), palB, imagerec.Margin{}, imagerec.Margin{}, 0, nil)

	assert.Equal(t, imgA.GetPaletteHash(false), imgB.GetPaletteHash(false))
	assert.NotEqual(t, imgA.GetPaletteHash(true), imgB.GetPaletteHash(true))
}

func TestGetPackedData4bppPacksTwoPixelsPerByte(t *testing.T) {
	grid := [][]uint16{{1, 2}}
	img, err := imagerec.New(grid, make([]uint16, 16), imagerec.Margin{}, imagerec.Margin{}, 0, nil)
	require.NoError(t, err)

	out := img.GetPackedData(imagerec.FlipUpright)
	require.Len(t, out, 1)
	require.Len(t, out[0], 1)
	assert.Equal(t, byte(1|(2<<4)), out[0][0])
}

func TestGetPackedDataAppliesLeftPadding(t *testing.T) {
	grid := [][]uint16{{5}}
	img, err := imagerec.New(grid, nil, imagerec.Margin{}, imagerec.Margin{}, 1, nil)
	require.NoError(t, err)
	img.BPP = imagerec.BPP16 // explicit; already inferred from nil palette

	out := img.GetPackedData(imagerec.FlipUpright)
	require.Len(t, out, 1)
	// 2 padded columns (1 real + 1 padding) * 2 bytes/pixel = 4 bytes.
	require.Len(t, out[0], 4)
	assert.Equal(t, byte(0), out[0][0])
	assert.Equal(t, byte(0), out[0][1])
	assert.Equal(t, byte(5), out[0][2])
}

func TestToInterlacedSplitsFields(t *testing.T) {
	grid := solidGrid(2, 4, 7)
	for r := range grid {
		grid[r][0] = uint16(r)
	}

	img, err := imagerec.New(grid, make([]uint16, 16), imagerec.Margin{}, imagerec.Margin{}, 0, nil)
	require.NoError(t, err)

	even, err := img.ToInterlaced(imagerec.FieldEven)
	require.NoError(t, err)
	assert.Equal(t, 2, even.InnerHeight)
	assert.Equal(t, uint16(0), even.Pixels[0][0])
	assert.Equal(t, uint16(2), even.Pixels[1][0])

	odd, err := img.ToInterlaced(imagerec.FieldOdd)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), odd.Pixels[0][0])
	assert.Equal(t, uint16(3), odd.Pixels[1][0])
}

func TestFlagsEncodesBPPAndFlip(t *testing.T) {
	img, err := imagerec.New(solidGrid(4, 4, 0), make([]uint16, 16), imagerec.Margin{}, imagerec.Margin{}, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, uint32(0), img.Flags()&0x3)

	img.Place.Flip = imagerec.FlipRotated90
	assert.NotZero(t, img.Flags()&(1<<5))
}
