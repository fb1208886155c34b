package packer_test

import (
	"testing"

	"github.com/consoletools/fudgebundle/internal/imagerec"
	"github.com/consoletools/fudgebundle/internal/packer"
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

func newImage(t *testing.T, w, h int, bpp imagerec.ColorDepth) *imagerec.Image {
	t.Helper()

	var pal []uint16
	switch bpp {
	case imagerec.BPP4:
		pal = make([]uint16, 16)
	case imagerec.BPP8:
		pal = make([]uint16, 256)
	default:
		pal = nil
	}

	img, err := imagerec.New(solidGrid(w, h, 1), pal, imagerec.Margin{}, imagerec.Margin{}, 0, nil)
	require.NoError(t, err)
	return img
}

func TestPackImagesPlacesSingleImage(t *testing.T) {
	img := newImage(t, 16, 16, imagerec.BPP4)

	area, packed := packer.PackImages([]*imagerec.Image{img}, 64, 256, 0, packer.Options{DiscardStep: 1})

	assert.Equal(t, 1, packed)
	assert.True(t, img.Place.Placed)
	assert.Greater(t, area, 0)
}

func TestPackImagesDeduplicatesIdenticalImages(t *testing.T) {
	a := newImage(t, 16, 16, imagerec.BPP4)
	b := newImage(t, 16, 16, imagerec.BPP4)

	_, packed := packer.PackImages([]*imagerec.Image{a, b}, 64, 256, 0, packer.Options{DiscardStep: 1})

	require.Equal(t, 2, packed)
	assert.Equal(t, a.Place, b.Place)
}

func TestPackImagesDoesNotOverlapPlacements(t *testing.T) {
	images := []*imagerec.Image{
		newImage(t, 32, 32, imagerec.BPP8),
		newImage(t, 32, 16, imagerec.BPP8),
		newImage(t, 16, 32, imagerec.BPP8),
	}
	// Ensure distinct pixel content so none dedup against each other.
	images[1].Pixels[0][0] = 2
	images[2].Pixels[0][0] = 3

	_, packed := packer.PackImages(images, 128, 256, 0, packer.Options{DiscardStep: 1, TrySplits: true})
	require.Equal(t, 3, packed)

	type box struct{ x0, y0, x1, y1 int }
	var boxes []box
	for _, img := range images {
		require.True(t, img.Place.Placed)
		w, h := img.GetPackedFootprint(img.Place.Flip)
		boxes = append(boxes, box{img.Place.X, img.Place.Y, img.Place.X + w, img.Place.Y + h})
	}

	for i := range boxes {
		for j := range boxes {
			if i == j {
				continue
			}
			overlap := boxes[i].x0 < boxes[j].x1 && boxes[j].x0 < boxes[i].x1 &&
				boxes[i].y0 < boxes[j].y1 && boxes[j].y0 < boxes[i].y1
			assert.False(t, overlap, "boxes %d and %d overlap: %+v %+v", i, j, boxes[i], boxes[j])
		}
	}
}

func TestPackImagesReturnsZeroWhenNothingFits(t *testing.T) {
	img := newImage(t, 32, 32, imagerec.BPP8)

	area, packed := packer.PackImages([]*imagerec.Image{img}, 8, 8, 0, packer.Options{DiscardStep: 1})

	assert.Equal(t, 0, packed)
	assert.Equal(t, 0, area)
	assert.False(t, img.Place.Placed)
}

func TestPackImagesHonoursPageBoundary(t *testing.T) {
	img := newImage(t, 32, 32, imagerec.BPP4)

	_, packed := packer.PackImages([]*imagerec.Image{img}, 256, 256, 2, packer.Options{DiscardStep: 1})

	require.Equal(t, 1, packed)
	assert.Equal(t, 2, img.Place.Page)
	assert.True(t, img.CanBePlaced(img.Place.X, img.Place.Y, img.Place.Flip))
}
