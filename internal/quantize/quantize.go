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

// Package quantize maps RGBA source pixels to a PS1-style 15-bit palette
// plus indexed pixel data, fulfilling the quantization contract spec.md §1
// leaves as an external collaborator.
package quantize

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"golang.org/x/image/draw"
)

// Quantize reduces src to at most numColors distinct 15-bit colors using a
// median-cut split over the sampled RGB cube, then maps every pixel to its
// palette index. A positive dither selects Floyd-Steinberg error diffusion;
// zero or a negative value disables dithering for a crisp, index-stable
// result.
func Quantize(src image.Image, numColors int, dither float64) (palette []uint16, indices [][]byte, err error) {
	if numColors < 1 || numColors > 256 {
		return nil, nil, fmt.Errorf("quantize: numColors %d out of range [1, 256]", numColors)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, nil, fmt.Errorf("quantize: source image has zero area")
	}

	pal := medianCutPalette(src, numColors)

	dst := image.NewPaletted(image.Rect(0, 0, width, height), pal)
	if dither > 0 {
		draw.FloydSteinberg.Draw(dst, dst.Bounds(), src, bounds.Min)
	} else {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	}

	palette = make([]uint16, len(pal))
	for i, c := range pal {
		palette[i] = packRGBA1555(c)
	}

	indices = make([][]byte, height)
	for y := 0; y < height; y++ {
		row := make([]byte, width)
		rowOff := dst.PixOffset(0, y)
		copy(row, dst.Pix[rowOff:rowOff+width])
		indices[y] = row
	}

	return palette, indices, nil
}

// packRGBA1555 packs an 8-bit-per-channel color into the console's 15-bit
// BGR word, matching the palette entry format used throughout
// internal/imagerec. The high (semi-transparency) bit is always left clear.
func packRGBA1555(c color.Color) uint16 {
	r, g, b, _ := c.RGBA()
	r5 := uint16(r>>11) & 0x1F
	g5 := uint16(g>>11) & 0x1F
	b5 := uint16(b>>11) & 0x1F
	return r5 | g5<<5 | b5<<10
}

// medianCutPalette builds a color.Palette of at most numColors entries by
// recursively splitting the source image's color cube along its longest
// axis, bottoming out at single-color buckets.
func medianCutPalette(src image.Image, numColors int) color.Palette {
	bounds := src.Bounds()

	type sample struct{ r, g, b uint32 }
	samples := make([]sample, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := src.At(x, y).RGBA()
			samples = append(samples, sample{r, g, b})
		}
	}
	if len(samples) == 0 {
		return color.Palette{color.RGBA{0, 0, 0, 255}}
	}

	type bucket []sample
	buckets := []bucket{samples}

	for len(buckets) < numColors {
		// Split the bucket with the greatest range along its longest axis.
		splitIdx, axis, widest := -1, 0, 0
		for i, bkt := range buckets {
			if len(bkt) < 2 {
				continue
			}
			a, w := longestAxis(bkt)
			if w > widest {
				splitIdx, axis, widest = i, a, w
			}
		}
		if splitIdx == -1 {
			break
		}

		bkt := buckets[splitIdx]
		sortBucket(bkt, axis)
		mid := len(bkt) / 2

		buckets[splitIdx] = bkt[:mid]
		buckets = append(buckets, bkt[mid:])
	}

	pal := make(color.Palette, 0, len(buckets))
	for _, bkt := range buckets {
		var rs, gs, bs uint64
		for _, s := range bkt {
			rs += uint64(s.r)
			gs += uint64(s.g)
			bs += uint64(s.b)
		}
		n := uint64(len(bkt))
		pal = append(pal, color.RGBA{
			R: uint8(rs / n >> 8),
			G: uint8(gs / n >> 8),
			B: uint8(bs / n >> 8),
			A: 255,
		})
	}

	return pal
}

func longestAxis(bkt []struct{ r, g, b uint32 }) (axis, width int) {
	minR, maxR := uint32(1<<32-1), uint32(0)
	minG, maxG := uint32(1<<32-1), uint32(0)
	minB, maxB := uint32(1<<32-1), uint32(0)

	for _, s := range bkt {
		if s.r < minR {
			minR = s.r
		}
		if s.r > maxR {
			maxR = s.r
		}
		if s.g < minG {
			minG = s.g
		}
		if s.g > maxG {
			maxG = s.g
		}
		if s.b < minB {
			minB = s.b
		}
		if s.b > maxB {
			maxB = s.b
		}
	}

	rw, gw, bw := int(maxR-minR), int(maxG-minG), int(maxB-minB)
	axis, width = 0, rw
	if gw > width {
		axis, width = 1, gw
	}
	if bw > width {
		axis, width = 2, bw
	}
	return axis, width
}

func sortBucket(bkt []struct{ r, g, b uint32 }, axis int) {
	sort.Slice(bkt, func(i, j int) bool {
		switch axis {
		case 0:
			return bkt[i].r < bkt[j].r
		case 1:
			return bkt[i].g < bkt[j].g
		default:
			return bkt[i].b < bkt[j].b
		}
	})
}
