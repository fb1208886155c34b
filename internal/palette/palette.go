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

// Package palette implements the palette packer (component B): placement of
// fixed-width palette strips along the bottom edge of an atlas.
package palette

import (
	"sort"

	"github.com/consoletools/fudgebundle/internal/imagerec"
)

// Pack places the palettes of images (those with BPP != 16) along the
// bottom of a page-numbered atlas, left to right, wrapping upward. Images
// whose palette hash has already been seen in this call inherit the
// existing placement instead of consuming new space. It returns the
// free-height left over for the image packer: the index of the lowest row
// left entirely unoccupied by palette strips, plus one.
func Pack(images []*imagerec.Image, atlasWidth, atlasHeight, page int, preserveLSB bool) (freeHeight int) {
	ordered := make([]*imagerec.Image, len(images))
	copy(ordered, images)

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].BPP > ordered[j].BPP
	})

	seen := make(map[uint32]*imagerec.Image)

	px, py := 0, atlasHeight-1

	for _, img := range ordered {
		if img.Pal.Placed {
			continue
		}

		width := 1 << uint(img.BPP)
		if width > atlasWidth {
			continue
		}

		h := img.GetPaletteHash(preserveLSB)

		if existing, ok := seen[h]; ok {
			img.Pal = existing.Pal
			continue
		}

		img.Pal = imagerec.PalettePlacement{
			Placed: true,
			Page:   page,
			PX:     px,
			PY:     py,
		}
		seen[h] = img

		px += width
		py -= px / atlasWidth
		px %= atlasWidth

		if py < 0 {
			break
		}
	}

	if px == 0 {
		return py + 1
	}
	return py
}
