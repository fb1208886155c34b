package sourceimage_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/consoletools/fudgebundle/internal/sourceimage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodedPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 0, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestLoadDecodesPNGFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sprite.png")
	require.NoError(t, os.WriteFile(path, encodedPNG(t, 8, 6), 0o644))

	img, err := sourceimage.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 6, img.Bounds().Dy())
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	_, err := sourceimage.Load(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestLoadFromDecodesPNGStream(t *testing.T) {
	img, err := sourceimage.LoadFrom(bytes.NewReader(encodedPNG(t, 4, 4)))
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
}

func TestLoadFromReturnsErrorForGarbage(t *testing.T) {
	_, err := sourceimage.LoadFrom(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}
