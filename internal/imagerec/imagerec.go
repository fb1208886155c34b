/* SPDX-License-Identifier: Apache-2.0
 *
 * Copyright 2023 Damian Peckett <damian@peckett>.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package imagerec implements the image record (component A): a wrapper
// around decoded/quantized pixel data that the atlas packer consumes and
// fills in with placement information.
package imagerec

import (
	"fmt"
	"math"

	"github.com/consoletools/fudgebundle/internal/hash32"
)

// ColorDepth is the bits-per-pixel of a packable image.
type ColorDepth int

const (
	BPP4  ColorDepth = 4
	BPP8  ColorDepth = 8
	BPP16 ColorDepth = 16
)

// FlipMode is a packable orientation. Order of a preference list expresses
// which orientation the packer should try first.
type FlipMode int

const (
	FlipUpright FlipMode = iota
	FlipRotated90
)

// Field marks an image as one half of an interlaced pair.
type Field int

const (
	FieldNone Field = iota
	FieldEven
	FieldOdd
)

// TexpageWidth and TexpageHeight bound how far a single placement may span
// before it crosses a hardware texture-page boundary.
const (
	TexpageWidth  = 64
	TexpageHeight = 256
)

// Margin holds per-axis cropped border sizes, in pixels.
type Margin struct {
	X, Y int
}

// Placement is the image packer's output for one image. It starts unset and
// transitions to Placed exactly once.
type Placement struct {
	Placed bool
	Page   int
	X, Y   int
	Flip   FlipMode
}

// PalettePlacement is the palette packer's output for one image's palette.
// It starts unset and transitions to Placed exactly once.
type PalettePlacement struct {
	Placed bool
	Page   int
	PX, PY int
}

// Image is a placeable 2D image: pixel data, an optional palette, geometry
// and the placement slots filled in by the packer.
type Image struct {
	// Pixels is InnerHeight rows of InnerWidth cells. For indexed images
	// each cell holds a palette index; for 16bpp direct-color images each
	// cell holds a packed RGBA1555-style value.
	Pixels [][]uint16
	// Palette is nil for 16bpp images, or exactly 16 or 256 packed RGBA
	// entries for indexed images.
	Palette []uint16
	BPP     ColorDepth

	InnerWidth  int
	InnerHeight int
	LeftMargin  Margin
	RightMargin Margin
	Padding     int
	FlipModes   []FlipMode
	Field       *Field

	Place Placement
	Pal   PalettePlacement

	hashCache       *uint32
	paletteHashOn   *uint32
	paletteHashOff  *uint32
}

// New validates and constructs an Image. Palette, when non-nil, is padded
// with zero entries up to the next valid size (16 or 256).
func New(pixels [][]uint16, palette []uint16, leftMargin, rightMargin Margin, padding int, flipModes []FlipMode) (*Image, error) {
	if len(pixels) == 0 || len(pixels[0]) == 0 {
		return nil, fmt.Errorf("imagerec: image data must not be empty")
	}

	innerHeight := len(pixels)
	innerWidth := len(pixels[0])

	for _, row := range pixels {
		if len(row) != innerWidth {
			return nil, fmt.Errorf("imagerec: ragged pixel rows")
		}
	}

	if innerWidth > 255 || innerHeight > 255 {
		return nil, fmt.Errorf("imagerec: inner dimensions %dx%d exceed 255x255", innerWidth, innerHeight)
	}

	var bpp ColorDepth

	if palette == nil {
		bpp = BPP16
	} else {
		size := 16
		if len(palette) > 16 {
			size = 256
		}
		if len(palette) > size {
			return nil, fmt.Errorf("imagerec: palette of %d entries exceeds maximum of 256", len(palette))
		}

		padded := make([]uint16, size)
		copy(padded, palette)
		palette = padded

		if size == 16 {
			bpp = BPP4
		} else {
			bpp = BPP8
		}

		for _, row := range pixels {
			for _, v := range row {
				if int(v) >= size {
					return nil, fmt.Errorf("imagerec: pixel index %d out of range for %d-color palette", v, size)
				}
			}
		}
	}

	if len(flipModes) == 0 {
		flipModes = []FlipMode{FlipUpright}
	}

	return &Image{
		Pixels:      pixels,
		Palette:     palette,
		BPP:         bpp,
		InnerWidth:  innerWidth,
		InnerHeight: innerHeight,
		LeftMargin:  leftMargin,
		RightMargin: rightMargin,
		Padding:     padding,
		FlipModes:   flipModes,
	}, nil
}

// Width is the total (margin-inclusive) width of the image.
func (img *Image) Width() int {
	return img.LeftMargin.X + img.InnerWidth + img.RightMargin.X
}

// Height is the total (margin-inclusive) height of the image.
func (img *Image) Height() int {
	return img.LeftMargin.Y + img.InnerHeight + img.RightMargin.Y
}

// HasMargin reports whether any crop margin was recorded for this image.
func (img *Image) HasMargin() bool {
	return img.InnerWidth < img.Width() || img.InnerHeight < img.Height()
}

// scale is the number of pixels packed per 16-bit atlas column at this
// color depth.
func (img *Image) scale() int {
	return 16 / int(img.BPP)
}

// GetPackedFootprint returns the size, in atlas columns/rows, that this
// image would occupy under the given flip.
func (img *Image) GetPackedFootprint(flip FlipMode) (width, height int) {
	scale := img.scale()

	if flip == FlipRotated90 {
		width = int(math.Ceil(float64(img.InnerHeight+img.Padding*2) / float64(scale)))
		height = img.InnerWidth + img.Padding*2
	} else {
		width = int(math.Ceil(float64(img.InnerWidth+img.Padding*2) / float64(scale)))
		height = img.InnerHeight + img.Padding*2
	}

	return width, height
}

// GetPackedMaxWidth returns the widest footprint across all allowed flips.
func (img *Image) GetPackedMaxWidth() int {
	max := 0
	for _, flip := range img.FlipModes {
		w, _ := img.GetPackedFootprint(flip)
		if w > max {
			max = w
		}
	}
	return max
}

// GetPathologicalMult is the "pathological" sort key: area scaled by the
// aspect ratio, biasing the packer towards placing extreme aspect ratios
// first.
func (img *Image) GetPathologicalMult() float64 {
	w, h := float64(img.InnerWidth), float64(img.InnerHeight)
	longest, shortest := w, h
	if h > w {
		longest, shortest = h, w
	}
	if shortest == 0 {
		return 0
	}
	return (w * h) * longest / shortest
}

// texpageWidth is the page-boundary width, in atlas columns, at this color
// depth (pageW = 64 * 16/bpp).
func (img *Image) texpageWidth() int {
	return TexpageWidth * img.scale()
}

// CanBePlaced reports whether the image, under the given flip, fits at
// (x, y) without crossing a texture-page boundary.
func (img *Image) CanBePlaced(x, y int, flip FlipMode) bool {
	width, height := img.GetPackedFootprint(flip)
	pageW := img.texpageWidth()

	return (x%pageW)+width <= pageW && (y%TexpageHeight)+height <= TexpageHeight
}

// GetImageHash returns a stable hash of the raw pixel buffer, memoized per
// Image since the packer queries it repeatedly during dedup.
func (img *Image) GetImageHash() uint32 {
	if img.hashCache != nil {
		return *img.hashCache
	}

	buf := make([]byte, 0, img.InnerWidth*img.InnerHeight*2)
	for _, row := range img.Pixels {
		for _, v := range row {
			buf = append(buf, byte(v), byte(v>>8))
		}
	}

	h := hash32.Bytes(buf)
	img.hashCache = &h
	return h
}

// GetPaletteHash returns the sdbm hash of the palette, optionally masking
// the LSB of each channel to collapse near-identical palettes. Returns 0
// for 16bpp images (which carry no palette).
func (img *Image) GetPaletteHash(preserveLSB bool) uint32 {
	if img.Palette == nil {
		return 0
	}

	slot := &img.paletteHashOff
	if preserveLSB {
		slot = &img.paletteHashOn
	}

	if *slot != nil {
		return **slot
	}

	h := hash32.Palette(img.Palette, preserveLSB)
	*slot = &h
	return h
}

// ToInterlaced returns a new Image containing every other row of this
// image's pixel data, starting at the given field. The palette is shared,
// not duplicated.
func (img *Image) ToInterlaced(field Field) (*Image, error) {
	if field != FieldEven && field != FieldOdd {
		return nil, fmt.Errorf("imagerec: invalid field %d", field)
	}

	start := 0
	if field == FieldOdd {
		start = 1
	}

	var rows [][]uint16
	for r := start; r < len(img.Pixels); r += 2 {
		rows = append(rows, img.Pixels[r])
	}

	out, err := New(rows, img.Palette, img.LeftMargin, img.RightMargin, img.Padding, img.FlipModes)
	if err != nil {
		return nil, err
	}

	out.Field = new(Field)
	*out.Field = field
	return out, nil
}

// GetPackedData returns the atlas-ready byte rows for the given flip:
// rotated if needed, left-padded, and bit-packed for 4bpp images.
func (img *Image) GetPackedData(flip FlipMode) [][]byte {
	grid := img.Pixels
	if flip == FlipRotated90 {
		grid = rotate90(grid)
	}

	rows := len(grid)
	cols := 0
	if rows > 0 {
		cols = len(grid[0])
	}

	paddedCols := cols + img.Padding
	padded := make([][]uint16, rows)
	for r := 0; r < rows; r++ {
		row := make([]uint16, paddedCols)
		copy(row[img.Padding:], grid[r])
		padded[r] = row
	}

	switch img.BPP {
	case BPP4:
		if paddedCols%2 != 0 {
			for r := range padded {
				padded[r] = append(padded[r], 0)
			}
			paddedCols++
		}

		out := make([][]byte, rows)
		for r := 0; r < rows; r++ {
			packedRow := make([]byte, paddedCols/2)
			for c := 0; c < paddedCols; c += 2 {
				packedRow[c/2] = byte(padded[r][c]) | (byte(padded[r][c+1]) << 4)
			}
			out[r] = packedRow
		}
		return out

	case BPP8:
		out := make([][]byte, rows)
		for r := 0; r < rows; r++ {
			packedRow := make([]byte, paddedCols)
			for c := 0; c < paddedCols; c++ {
				packedRow[c] = byte(padded[r][c])
			}
			out[r] = packedRow
		}
		return out

	default: // BPP16
		out := make([][]byte, rows)
		for r := 0; r < rows; r++ {
			packedRow := make([]byte, paddedCols*2)
			for c := 0; c < paddedCols; c++ {
				packedRow[c*2] = byte(padded[r][c])
				packedRow[c*2+1] = byte(padded[r][c] >> 8)
			}
			out[r] = packedRow
		}
		return out
	}
}

// rotate90 rotates a 2D grid 90 degrees counter-clockwise.
func rotate90(grid [][]uint16) [][]uint16 {
	rows := len(grid)
	if rows == 0 {
		return nil
	}
	cols := len(grid[0])

	out := make([][]uint16, cols)
	for c := 0; c < cols; c++ {
		out[c] = make([]uint16, rows)
		for r := 0; r < rows; r++ {
			out[c][r] = grid[r][cols-1-c]
		}
	}
	return out
}

// PaletteXY packs this image's palette placement into the 16-bit field
// used by the texture frame record: the palette's column block (in 16-texel
// units) in the low bits, its row in the high bits.
func (img *Image) PaletteXY() uint16 {
	if !img.Pal.Placed {
		return 0
	}
	return uint16(img.Pal.PX/16) | uint16(img.Pal.PY<<6)
}

// Flags encodes bpp, interlace field, margin presence and flip into the
// frame-record flag byte described by the bundle format.
func (img *Image) Flags() uint32 {
	var flags uint32

	switch img.BPP {
	case BPP4:
		flags |= 0
	case BPP8:
		flags |= 1
	case BPP16:
		flags |= 2
	}

	if img.Field != nil {
		switch *img.Field {
		case FieldEven:
			flags |= 1 << 2
		case FieldOdd:
			flags |= 2 << 2
		}
	}

	if img.HasMargin() {
		flags |= 1 << 4
	}

	if img.Place.Flip == FlipRotated90 {
		flags |= 1 << 5
	}

	return flags
}
