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

// Package atlas implements the atlas builder (component D): it repeatedly
// invokes the palette and image packers across successively-sized atlases
// until every image and palette has a placement, then regroups the result
// into 64-column texture pages bucketed by originating atlas width.
package atlas

import (
	"fmt"

	"github.com/consoletools/fudgebundle/internal/imagerec"
	"github.com/consoletools/fudgebundle/internal/packer"
	"github.com/consoletools/fudgebundle/internal/palette"
)

// PackingFailedError is returned when an iteration of the build loop places
// neither an image nor a palette, meaning no further progress is possible.
type PackingFailedError struct {
	Iteration int
}

func (e *PackingFailedError) Error() string {
	return fmt.Sprintf("atlas: packing failed at iteration %d: no image or palette could be placed", e.Iteration)
}

// Options configures one Build run.
type Options struct {
	Pack             packer.Options
	PreservePalettes bool
}

// atlasBuf is one working atlas buffer: Height rows of Width*2 bytes (atlas
// columns address 16-bit texels).
type atlasBuf struct {
	width int
	rows  [][]byte
}

func newAtlasBuf(width int) *atlasBuf {
	rows := make([][]byte, imagerec.TexpageHeight)
	for r := range rows {
		rows[r] = make([]byte, width*2)
	}
	return &atlasBuf{width: width, rows: rows}
}

func needsPalette(img *imagerec.Image) bool {
	return img.BPP != imagerec.BPP16
}

func done(img *imagerec.Image) bool {
	return img.Place.Placed && (!needsPalette(img) || img.Pal.Placed)
}

func countPlaced(images []*imagerec.Image, palettes bool) int {
	n := 0
	for _, img := range images {
		if palettes {
			if img.Pal.Placed {
				n++
			}
		} else if img.Place.Placed {
			n++
		}
	}
	return n
}

// chooseWidth picks the next atlas width: 256 columns if any remaining image
// needs an 8-bit (256-entry) palette strip, otherwise the smallest multiple
// of 64 that accommodates every remaining image's widest footprint.
func chooseWidth(images []*imagerec.Image) int {
	for _, img := range images {
		if img.BPP == imagerec.BPP8 {
			return 256
		}
	}

	width := imagerec.TexpageWidth
	for width < 256 {
		grown := false
		for _, img := range images {
			if img.GetPackedMaxWidth() > width {
				grown = true
				break
			}
		}
		if !grown {
			break
		}
		width += imagerec.TexpageWidth
	}
	return width
}

func blitImage(buf *atlasBuf, img *imagerec.Image) {
	rows := img.GetPackedData(img.Place.Flip)
	x0 := img.Place.X * 2
	y0 := img.Place.Y + img.Padding
	for r, row := range rows {
		copy(buf.rows[y0+r][x0:], row)
	}
}

func blitPalette(buf *atlasBuf, img *imagerec.Image) {
	width := 1 << uint(img.BPP)
	x0 := img.Pal.PX * 2
	row := buf.rows[img.Pal.PY]
	for i, entry := range img.Palette[:width] {
		row[x0+i*2] = byte(entry)
		row[x0+i*2+1] = byte(entry >> 8)
	}
}

// Build drives the per-atlas placement loop and returns the final
// 64-column texture pages in bucket order (width 256, then 192, then 128,
// then 64), along with the per-bucket page counts. On success every image
// in images has Place.Placed and (if it carries a palette) Pal.Placed set,
// with Place.Page/Pal.Page/Place.X/Pal.PX already remapped into the final
// page-relative addressing.
func Build(images []*imagerec.Image, opts Options) (pages [][]byte, bucketCounts [4]int, err error) {
	remaining := make([]*imagerec.Image, len(images))
	copy(remaining, images)

	var bufs []*atlasBuf
	iteration := 0

	for len(remaining) > 0 {
		width := chooseWidth(remaining)
		buf := newAtlasBuf(width)

		palBefore := countPlaced(remaining, true)
		freeHeight := palette.Pack(remaining, width, imagerec.TexpageHeight, iteration, opts.PreservePalettes)
		palAfter := countPlaced(remaining, true)

		imgBefore := countPlaced(remaining, false)
		packer.PackImages(remaining, width, freeHeight, iteration, opts.Pack)
		imgAfter := countPlaced(remaining, false)

		if palAfter == palBefore && imgAfter == imgBefore {
			return nil, bucketCounts, &PackingFailedError{Iteration: iteration}
		}

		var next []*imagerec.Image
		for _, img := range remaining {
			if img.Place.Placed && img.Place.Page == iteration {
				blitImage(buf, img)
			}
			if img.Pal.Placed && img.Pal.Page == iteration {
				blitPalette(buf, img)
			}
			if !done(img) {
				next = append(next, img)
			}
		}

		remaining = next
		bufs = append(bufs, buf)
		iteration++
	}

	pages, bucketCounts = remapAndSlice(bufs, images)
	return pages, bucketCounts, nil
}

func bucketIndex(width int) int {
	switch width {
	case 256:
		return 0
	case 192:
		return 1
	case 128:
		return 2
	default:
		return 3
	}
}

// remapAndSlice groups each atlas's 64-column sub-pages into the four
// width-keyed buckets (widest first), assigns every sub-page a final page
// index equal to the running count of pages in wider buckets plus its
// insertion-order position within its own bucket, rewrites every image's
// (and palette's) page/column fields to that final, page-relative
// addressing, and slices out the page byte buffers in final order.
func remapAndSlice(bufs []*atlasBuf, images []*imagerec.Image) (pages [][]byte, bucketCounts [4]int) {
	subCounts := make([]int, len(bufs))
	cumBefore := make([]int, len(bufs))
	var running [4]int

	for i, buf := range bufs {
		b := bucketIndex(buf.width)
		cumBefore[i] = running[b]
		subCounts[i] = buf.width / imagerec.TexpageWidth
		running[b] += subCounts[i]
	}

	var base [4]int
	base[0] = 0
	base[1] = running[0]
	base[2] = running[0] + running[1]
	base[3] = running[0] + running[1] + running[2]

	remap := func(atlasIdx, col int) (finalPage, localCol int) {
		b := bucketIndex(bufs[atlasIdx].width)
		sub := col / imagerec.TexpageWidth
		return base[b] + cumBefore[atlasIdx] + sub, col % imagerec.TexpageWidth
	}

	for _, img := range images {
		if img.Place.Placed {
			page, x := remap(img.Place.Page, img.Place.X)
			img.Place.Page = page
			img.Place.X = x
		}
		if img.Pal.Placed {
			page, px := remap(img.Pal.Page, img.Pal.PX)
			img.Pal.Page = page
			img.Pal.PX = px
		}
	}

	total := running[0] + running[1] + running[2] + running[3]
	pages = make([][]byte, total)

	pageBytes := imagerec.TexpageWidth * 2
	for i, buf := range bufs {
		b := bucketIndex(buf.width)
		for sub := 0; sub < subCounts[i]; sub++ {
			page := base[b] + cumBefore[i] + sub
			out := make([]byte, pageBytes*imagerec.TexpageHeight)
			for r := 0; r < imagerec.TexpageHeight; r++ {
				copy(out[r*pageBytes:(r+1)*pageBytes], buf.rows[r][sub*pageBytes:(sub+1)*pageBytes])
			}
			pages[page] = out
		}
	}

	bucketCounts = running
	return pages, bucketCounts
}
