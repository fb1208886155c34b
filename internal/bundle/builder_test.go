package bundle_test

import (
	"bytes"
	"testing"

	"github.com/consoletools/fudgebundle/config"
	"github.com/consoletools/fudgebundle/internal/bundle"
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

func newTestImage(t *testing.T, w, h int) *imagerec.Image {
	t.Helper()
	pal := make([]uint16, 16)
	pal[0] = 1
	img, err := imagerec.New(solidGrid(w, h, 0), pal, imagerec.Margin{}, imagerec.Margin{}, 0, nil)
	require.NoError(t, err)
	return img
}

func newBuilder() *bundle.Builder {
	return bundle.NewBuilder(config.DefaultBuildOptions())
}

func TestGenerateAndSerializeProducesSectorAlignedSections(t *testing.T) {
	b := newBuilder()
	require.NoError(t, b.AddFile("readme", []byte("hello")))

	require.NoError(t, b.Generate())

	var out bytes.Buffer
	require.NoError(t, b.Serialize(&out))

	data := out.Bytes()
	require.GreaterOrEqual(t, len(data), 0x20)
	assert.Equal(t, "fudgebn", string(data[0:7]))
	assert.Equal(t, byte(0x02), data[7])

	headerLen := le32(data[8:12])
	texLen := le32(data[12:16])
	audioLen := le32(data[16:20])
	mainLen := le32(data[20:24])

	assert.Zero(t, headerLen%bundle.SectorSize)
	assert.Zero(t, texLen%bundle.SectorSize)
	assert.Zero(t, audioLen%bundle.SectorSize)
	assert.Zero(t, mainLen%bundle.SectorSize)
	assert.Equal(t, int(headerLen+texLen+audioLen+mainLen), len(data))
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func TestAddEntryRejectsDuplicateNames(t *testing.T) {
	b := newBuilder()
	require.NoError(t, b.AddFile("script", []byte{1, 2, 3}))

	err := b.AddFile("script", []byte{4, 5, 6})
	require.Error(t, err)

	var dup *bundle.DuplicateNameError
	assert.ErrorAs(t, err, &dup)
}

func TestAddEntryFailsOnMainBudgetOverflow(t *testing.T) {
	opts := config.DefaultBuildOptions()
	opts.MainDataSize = 8
	b := bundle.NewBuilder(opts)

	err := b.AddFile("huge", make([]byte, 64))
	require.Error(t, err)

	var overflow *bundle.BudgetExceededError
	assert.ErrorAs(t, err, &overflow)
}

func TestAddTextureRejectsOversizeImage(t *testing.T) {
	b := newBuilder()
	img := newTestImage(t, 255, 255)
	img.InnerWidth = 300 // force a reported oversize dimension

	err := b.AddTexture("sprite", []*imagerec.Image{img}, false)
	require.Error(t, err)

	var oversize *bundle.OversizeImageError
	assert.ErrorAs(t, err, &oversize)
}

func TestGenerateAssignsValidFramePlacements(t *testing.T) {
	b := newBuilder()
	img := newTestImage(t, 16, 16)

	require.NoError(t, b.AddTexture("sprite", []*imagerec.Image{img}, false))
	require.NoError(t, b.Generate())

	var out bytes.Buffer
	require.NoError(t, b.Serialize(&out))

	assert.True(t, img.Place.Placed)
	assert.True(t, img.Pal.Placed)
}

func TestAddSoundAcceptsMonoAndStereo(t *testing.T) {
	b := newBuilder()

	monoData := make([]byte, 16)
	require.NoError(t, b.AddSound("blip", monoData, nil, 22050))

	stereoLeft := make([]byte, 16)
	stereoRight := make([]byte, 16)
	require.NoError(t, b.AddSound("theme", stereoLeft, stereoRight, 44100))
}

func TestAddStringTableAcceptsRepeatedValues(t *testing.T) {
	b := newBuilder()

	err := b.AddStringTable("labels", []bundle.StringEntry{
		{Key: "apple", Value: "x"},
		{Key: "banana", Value: "y"},
		{Key: "apple2", Value: "x"},
	})
	require.NoError(t, err)
}

func TestGenerateCannotRunTwice(t *testing.T) {
	b := newBuilder()
	require.NoError(t, b.AddFile("readme", []byte("hi")))
	require.NoError(t, b.Generate())

	err := b.Generate()
	assert.Error(t, err)
}
