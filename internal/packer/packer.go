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

// Package packer implements the image packer (component C): an
// orientation-aware rectpack2D-style free-rectangle packer with
// page-boundary constraints and hash-based image deduplication.
package packer

import (
	"math"
	"sort"
	"sync"

	"github.com/consoletools/fudgebundle/internal/imagerec"
)

// Options configures the multi-sort, multi-split search performed by
// PackImages.
type Options struct {
	// DiscardStep is the smallest shrink step tried by the search, in
	// atlas columns/rows. Must be >= 1.
	DiscardStep int
	// TrySplits also tries the inverted split-axis heuristic for every
	// candidate size.
	TrySplits bool
}

type freeRect struct {
	x, y, w, h int
}

type placement struct {
	placed bool
	page   int
	x, y   int
	flip   imagerec.FlipMode
}

// sortOrders mirrors the six fixed sort keys of the original packer, in
// priority order (used as the deterministic tiebreak across the search).
var sortOrders = []func(img *imagerec.Image) float64{
	func(img *imagerec.Image) float64 { return float64(img.InnerWidth * img.InnerHeight) },
	func(img *imagerec.Image) float64 { return float64((img.InnerWidth + img.InnerHeight) * 2) },
	func(img *imagerec.Image) float64 { return float64(max(img.InnerWidth, img.InnerHeight)) },
	func(img *imagerec.Image) float64 { return float64(img.InnerWidth) },
	func(img *imagerec.Image) float64 { return float64(img.InnerHeight) },
	func(img *imagerec.Image) float64 { return img.GetPathologicalMult() },
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// attemptPack performs a single packing pass over images (in the given
// order) against an atlas of the given size, without mutating the images.
// It returns the packed area, the number of images accounted for (placed or
// deduplicated), and a placement per successfully-packed image.
func attemptPack(images []*imagerec.Image, atlasWidth, atlasHeight, page int, altSplit bool) (area, packed int, result map[*imagerec.Image]placement) {
	spaces := []freeRect{{0, 0, atlasWidth, atlasHeight}}
	hashes := make(map[uint32]*imagerec.Image)
	result = make(map[*imagerec.Image]placement, len(images))

	for _, img := range images {
		if img.Place.Placed {
			result[img] = placement{
				placed: true,
				page:   img.Place.Page,
				x:      img.Place.X,
				y:      img.Place.Y,
				flip:   img.Place.Flip,
			}
			packed++
			continue
		}

		h := img.GetImageHash()

		if dup, ok := hashes[h]; ok {
			result[img] = result[dup]
			packed++
			continue
		}

		for _, flip := range img.FlipModes {
			width, height := img.GetPackedFootprint(flip)

			lowestIndex := -1
			lowestOffsetX, lowestOffsetY := 0, 0
			lowestMargin := math.MaxInt64

			for idx, sp := range spaces {
				if width > sp.w || height > sp.h {
					continue
				}

				marginX := sp.w - width
				marginY := sp.h - height

				corners := [4][2]int{
					{0, 0},
					{marginX, 0},
					{0, marginY},
					{marginX, marginY},
				}

				found := false
				var offX, offY int
				for _, corner := range corners {
					if img.CanBePlaced(sp.x+corner[0], sp.y+corner[1], flip) {
						offX, offY = corner[0], corner[1]
						found = true
						break
					}
				}
				if !found {
					continue
				}

				margin := sp.w*sp.h - width*height
				if margin < lowestMargin {
					lowestIndex = idx
					lowestOffsetX, lowestOffsetY = offX, offY
					lowestMargin = margin
				}
			}

			if lowestIndex == -1 {
				continue
			}

			sp := spaces[lowestIndex]
			spaces = append(spaces[:lowestIndex:lowestIndex], spaces[lowestIndex+1:]...)

			marginX := sp.w - width
			marginY := sp.h - height
			padLeft := 0
			if lowestOffsetX == 0 {
				padLeft = width
			}
			padTop := 0
			if lowestOffsetY == 0 {
				padTop = height
			}

			var inserted []freeRect
			if altSplit != (sp.w*marginY < sp.h*marginX) {
				// Split along the bottom side (horizontally). Final order
				// after two same-index inserts puts the X-margin rect
				// ahead of the Y-margin rect.
				if marginX != 0 {
					inserted = append(inserted, freeRect{sp.x + padLeft, sp.y + lowestOffsetY, marginX, height})
				}
				if marginY != 0 {
					inserted = append(inserted, freeRect{sp.x, sp.y + padTop, sp.w, marginY})
				}
			} else {
				// Split along the right side (vertically): Y-margin rect
				// ahead of the X-margin rect.
				if marginY != 0 {
					inserted = append(inserted, freeRect{sp.x + lowestOffsetX, sp.y + padTop, width, marginY})
				}
				if marginX != 0 {
					inserted = append(inserted, freeRect{sp.x + padLeft, sp.y, marginX, sp.h})
				}
			}

			tail := append([]freeRect{}, spaces[lowestIndex:]...)
			spaces = append(spaces[:lowestIndex], append(inserted, tail...)...)

			result[img] = placement{
				placed: true,
				page:   page,
				x:      sp.x + lowestOffsetX,
				y:      sp.y + lowestOffsetY,
				flip:   flip,
			}
			hashes[h] = img

			area += width * height
			packed++
			break
		}
	}

	return area, packed, result
}

type sizeResult struct {
	area, packed int
}

func candidatesFor(w, h, step int) [4][2]int {
	return [4][2]int{
		{w - step, h - step},
		{w - step, h},
		{w, h - step},
		{w, h},
	}
}

// PackImages runs the multi-sort, multi-split search of component C and
// applies the best placement found directly to the images' Place fields.
// It returns the packed area and the number of images accounted for.
func PackImages(images []*imagerec.Image, atlasWidth, atlasHeight, page int, opts Options) (area, packed int) {
	discardStep := opts.DiscardStep
	if discardStep < 1 {
		discardStep = 1
	}

	// Compute every image hash up front so the concurrent attempts below
	// only read the memoized value.
	for _, img := range images {
		img.GetImageHash()
	}

	splitModes := []bool{false}
	if opts.TrySplits {
		splitModes = []bool{false, true}
	}

	var (
		highestArea    int
		highestImages  []*imagerec.Image
		highestWidth   int
		highestHeight  int
		highestAlt     bool
		haveCandidate  bool
	)

	for _, reverse := range []bool{true, false} {
		for _, key := range sortOrders {
			ordered := make([]*imagerec.Image, len(images))
			copy(ordered, images)

			sort.SliceStable(ordered, func(i, j int) bool {
				if reverse {
					return key(ordered[i]) > key(ordered[j])
				}
				return key(ordered[i]) < key(ordered[j])
			})

			newWidth, newHeight := atlasWidth, atlasHeight
			step := min(atlasWidth, atlasHeight) / 2

			var (
				curArea, curPacked int
				bestIndex          int
			)

			for step >= discardStep {
				candidates := candidatesFor(newWidth, newHeight, step)

				var fns []func() sizeResult
				for _, altSplit := range splitModes {
					for _, cwh := range candidates {
						cwh, altSplit := cwh, altSplit
						fns = append(fns, func() sizeResult {
							a, p, _ := attemptPack(ordered, cwh[0], cwh[1], page, altSplit)
							return sizeResult{a, p}
						})
					}
				}
				results := parallelAttempt(fns, 4)

				bestIdx := 0
				for i, r := range results {
					best := results[bestIdx]
					if r.area > best.area || (r.area == best.area && r.packed > best.packed) {
						bestIdx = i
					}
				}

				bestIndex = bestIdx
				curArea, curPacked = results[bestIdx].area, results[bestIdx].packed

				if bestIdx%4 == 3 {
					if curPacked == len(images) {
						break
					}
					if newWidth+step > atlasWidth || newHeight+step > atlasHeight {
						break
					}
					newWidth += step
					newHeight += step
				} else {
					c := candidates[bestIdx%4]
					newWidth, newHeight = c[0], c[1]
				}

				step /= 2
			}

			if curArea > highestArea {
				highestArea = curArea
				highestImages = ordered
				highestWidth = newWidth
				highestHeight = newHeight
				highestAlt = bestIndex > 3
				haveCandidate = true

				if curPacked == len(images) {
					break
				}
			}
		}
	}

	if !haveCandidate || highestArea == 0 {
		return 0, 0
	}

	area, packed, result := attemptPack(highestImages, highestWidth, highestHeight, page, highestAlt)

	for img, p := range result {
		img.Place = imagerec.Placement{
			Placed: p.placed,
			Page:   p.page,
			X:      p.x,
			Y:      p.y,
			Flip:   p.flip,
		}
	}

	return area, packed
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// parallelAttempt runs each of the fn thunks concurrently, bounded by a
// worker count, and returns their results in input order. PackImages uses
// it to evaluate the candidate sizes (and split modes) of one shrink step
// concurrently: each thunk packs its own ordering of the images without
// writing to them, and the authoritative placement is always replayed
// serially afterwards.
func parallelAttempt(fns []func() sizeResult, workers int) []sizeResult {
	if workers < 1 {
		workers = 1
	}

	results := make([]sizeResult, len(fns))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, fn := range fns {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, fn func() sizeResult) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = fn()
		}(i, fn)
	}

	wg.Wait()
	return results
}
