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

// Package bundle implements the bundle assembler (component E): it owns
// the main/texture/audio section buffers and the extended index, drives
// the atlas builder at Generate time, and serializes the final
// sector-aligned bundle.
package bundle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"

	"github.com/consoletools/fudgebundle/config"
	"github.com/consoletools/fudgebundle/internal/atlas"
	"github.com/consoletools/fudgebundle/internal/hash32"
	"github.com/consoletools/fudgebundle/internal/imagerec"
	"github.com/consoletools/fudgebundle/internal/packer"
)

// StringEntry is one key/value pair destined for a string-table entry.
// Entries are supplied as a slice, not a map, so that table construction
// stays deterministic across runs.
type StringEntry struct {
	Key   string
	Value string
}

// Builder assembles one bundle. It is guarded by a mutex purely
// defensively, the way the teacher's qcow2.Image guards its header and
// table state against a careless concurrent caller — the core's own call
// pattern is always single-threaded (spec.md §5).
type Builder struct {
	mu sync.Mutex

	opts  config.BuildOptions
	index *IndexBuilder

	main  bytes.Buffer
	audio bytes.Buffer

	images       []*imagerec.Image
	frameOffsets map[*imagerec.Image]int

	generated    bool
	finalTexture []byte
	finalAudio   []byte
	finalMain    []byte
	finalIndex   []byte
	bucketCounts [4]int
}

// NewBuilder returns an empty Builder configured with opts.
func NewBuilder(opts config.BuildOptions) *Builder {
	return &Builder{
		opts:         opts,
		index:        NewIndexBuilder(),
		frameOffsets: make(map[*imagerec.Image]int),
	}
}

// appendMain writes payload into the main-data buffer, 4-byte aligned,
// failing with BudgetExceededError rather than overflowing the section.
func (b *Builder) appendMain(payload []byte) (offset int, err error) {
	offset = b.main.Len()

	bw := newBudgetWriter("main", &b.main, b.opts.MainDataSize, b.main.Len())
	if _, err := bw.Write(payload); err != nil {
		return 0, err
	}

	if pad := (4 - b.main.Len()%4) % 4; pad != 0 {
		b.main.Write(make([]byte, pad))
	}

	return offset, nil
}

// AddEntry registers name -> payload under kind, per spec.md §4.E.
func (b *Builder) AddEntry(name string, payload []byte, kind EntryKind) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	offset, err := b.appendMain(payload)
	if err != nil {
		return fmt.Errorf("bundle: add entry %q: %w", name, err)
	}

	if err := b.index.Add(name, uint32(offset), uint32(len(payload)), kind); err != nil {
		return fmt.Errorf("bundle: add entry %q: %w", name, err)
	}

	return nil
}

// AddFile registers name as an opaque FILE entry.
func (b *Builder) AddFile(name string, data []byte) error {
	return b.AddEntry(name, data, KindFile)
}

// AddTexture registers a texture entry: a header followed by one
// zero-filled 16-byte frame record per frame (two per frame when
// interlaced, one for each field), and hands the frame images to the
// shared atlas-builder pool for later placement.
func (b *Builder) AddTexture(name string, frames []*imagerec.Image, interlaced bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(frames) == 0 {
		return fmt.Errorf("bundle: add texture %q: no frames", name)
	}

	for _, f := range frames {
		if f.InnerWidth > 255 || f.InnerHeight > 255 {
			return fmt.Errorf("bundle: add texture %q: %w", name, &OversizeImageError{Name: name, Width: f.InnerWidth, Height: f.InnerHeight})
		}
	}

	kind := KindTexture
	if interlaced {
		kind = KindITexture
	}

	hdr := textureHeader{
		Width:      uint16(frames[0].InnerWidth),
		Height:     uint16(frames[0].InnerHeight),
		FrameCount: uint16(len(frames)),
		MipLevels:  1,
	}

	var payload bytes.Buffer
	if err := binary.Write(&payload, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("bundle: add texture %q: %w", name, err)
	}

	var placeable []*imagerec.Image
	for _, f := range frames {
		if interlaced {
			even, err := f.ToInterlaced(imagerec.FieldEven)
			if err != nil {
				return fmt.Errorf("bundle: add texture %q: %w", name, err)
			}
			odd, err := f.ToInterlaced(imagerec.FieldOdd)
			if err != nil {
				return fmt.Errorf("bundle: add texture %q: %w", name, err)
			}
			placeable = append(placeable, even, odd)
		} else {
			placeable = append(placeable, f)
		}
	}

	var zero textureFrameRecord
	for range placeable {
		if err := binary.Write(&payload, binary.LittleEndian, &zero); err != nil {
			return fmt.Errorf("bundle: add texture %q: %w", name, err)
		}
	}

	offset, err := b.appendMain(payload.Bytes())
	if err != nil {
		return fmt.Errorf("bundle: add texture %q: %w", name, err)
	}
	if err := b.index.Add(name, uint32(offset), uint32(payload.Len()), kind); err != nil {
		return fmt.Errorf("bundle: add texture %q: %w", name, err)
	}

	recordSize := 16
	headerSize := 8 // textureHeader: 4 x uint16
	for i, img := range placeable {
		b.frameOffsets[img] = offset + headerSize + i*recordSize
		b.images = append(b.images, img)
	}

	return nil
}

// AddBG registers a background entry: a header plus raw pixel bytes, two
// passes (even field, then odd) when interlaced. Backgrounds never
// participate in atlas packing.
func (b *Builder) AddBG(name string, x, y int, img *imagerec.Image, interlaced bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if img.InnerWidth > 255 || img.InnerHeight > 255 {
		return fmt.Errorf("bundle: add bg %q: %w", name, &OversizeImageError{Name: name, Width: img.InnerWidth, Height: img.InnerHeight})
	}

	kind := KindBG
	if interlaced {
		kind = KindIBG
	}

	hdr := bgHeader{X: uint16(x), Y: uint16(y), InnerW: uint16(img.InnerWidth), InnerH: uint16(img.InnerHeight)}

	var payload bytes.Buffer
	if err := binary.Write(&payload, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("bundle: add bg %q: %w", name, err)
	}

	writeRows := func(rows [][]byte) {
		for _, row := range rows {
			payload.Write(row)
		}
	}

	if interlaced {
		even, err := img.ToInterlaced(imagerec.FieldEven)
		if err != nil {
			return fmt.Errorf("bundle: add bg %q: %w", name, err)
		}
		odd, err := img.ToInterlaced(imagerec.FieldOdd)
		if err != nil {
			return fmt.Errorf("bundle: add bg %q: %w", name, err)
		}
		writeRows(even.GetPackedData(imagerec.FlipUpright))
		writeRows(odd.GetPackedData(imagerec.FlipUpright))
	} else {
		writeRows(img.GetPackedData(imagerec.FlipUpright))
	}

	offset, err := b.appendMain(payload.Bytes())
	if err != nil {
		return fmt.Errorf("bundle: add bg %q: %w", name, err)
	}
	if err := b.index.Add(name, uint32(offset), uint32(payload.Len()), kind); err != nil {
		return fmt.Errorf("bundle: add bg %q: %w", name, err)
	}

	return nil
}

// AddSound registers a sound entry. right is nil for mono sources; for
// stereo sources it must be the same length as left.
func (b *Builder) AddSound(name string, left, right []byte, srcRate int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(left)%8 != 0 {
		return fmt.Errorf("bundle: add sound %q: ADPCM data length %d is not block-aligned", name, len(left))
	}

	audioWriter := newBudgetWriter("audio", &b.audio, b.opts.AudioMemSize, b.audio.Len())

	leftOffset := b.audio.Len()
	if _, err := audioWriter.Write(left); err != nil {
		return fmt.Errorf("bundle: add sound %q: %w", name, err)
	}

	rightOffset := leftOffset
	if right != nil {
		rightOffset = b.audio.Len()
		if _, err := audioWriter.Write(right); err != nil {
			return fmt.Errorf("bundle: add sound %q: %w", name, err)
		}
	}

	hdr := soundHeader{
		LeftOffsetBlocks:  uint32(leftOffset / 8),
		RightOffsetBlocks: uint32(rightOffset / 8),
		LengthBlocks:      uint32(len(left) / 8),
		SampleRate:        uint32(math.Round(float64(srcRate) * 4096 / 44100)),
	}

	var payload bytes.Buffer
	if err := binary.Write(&payload, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("bundle: add sound %q: %w", name, err)
	}

	offset, err := b.appendMain(payload.Bytes())
	if err != nil {
		return fmt.Errorf("bundle: add sound %q: %w", name, err)
	}
	if err := b.index.Add(name, uint32(offset), uint32(payload.Len()), KindSound); err != nil {
		return fmt.Errorf("bundle: add sound %q: %w", name, err)
	}

	return nil
}

// AddStringTable registers a nested key->blob-offset index plus a
// deduplicated, null-terminated value blob. entries is ordered; that order
// determines the layout of the value blob, while the nested index is
// sorted by key hash (stable for equal hashes).
func (b *Builder) AddStringTable(name string, entries []StringEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var blob bytes.Buffer
	blobOffsets := make(map[string]uint32)

	type tableEntry struct {
		keyHash    uint32
		blobOffset uint32
	}
	table := make([]tableEntry, 0, len(entries))

	for _, e := range entries {
		off, ok := blobOffsets[e.Value]
		if !ok {
			off = uint32(blob.Len())
			blobOffsets[e.Value] = off
			blob.WriteString(e.Value)
			blob.WriteByte(0)
		}
		table = append(table, tableEntry{keyHash: hash32.String(e.Key), blobOffset: off})
	}

	sort.SliceStable(table, func(i, j int) bool { return table[i].keyHash < table[j].keyHash })

	var payload bytes.Buffer
	if err := binary.Write(&payload, binary.LittleEndian, uint32(len(table))); err != nil {
		return fmt.Errorf("bundle: add string table %q: %w", name, err)
	}
	for _, e := range table {
		if err := binary.Write(&payload, binary.LittleEndian, e.keyHash); err != nil {
			return fmt.Errorf("bundle: add string table %q: %w", name, err)
		}
		if err := binary.Write(&payload, binary.LittleEndian, e.blobOffset); err != nil {
			return fmt.Errorf("bundle: add string table %q: %w", name, err)
		}
	}
	payload.Write(blob.Bytes())

	offset, err := b.appendMain(payload.Bytes())
	if err != nil {
		return fmt.Errorf("bundle: add string table %q: %w", name, err)
	}
	if err := b.index.Add(name, uint32(offset), uint32(payload.Len()), KindStringTable); err != nil {
		return fmt.Errorf("bundle: add string table %q: %w", name, err)
	}

	return nil
}

// Generate runs the atlas builder over every image registered via
// AddTexture, patches each reserved frame record with its final placement,
// and freezes the four section buffers in their final, padded form. It
// must be called exactly once, before Serialize.
func (b *Builder) Generate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.generated {
		return fmt.Errorf("bundle: Generate called more than once")
	}

	pages, counts, err := atlas.Build(b.images, atlas.Options{
		Pack: packer.Options{
			DiscardStep: b.opts.Pack.DiscardStep,
			TrySplits:   b.opts.Pack.TrySplits,
		},
		PreservePalettes: b.opts.Pack.PreservePalettes,
	})
	if err != nil {
		return fmt.Errorf("bundle: generate: %w", err)
	}

	textureBytes := bytes.Join(pages, nil)
	if len(textureBytes) > b.opts.TextureMemSize {
		return fmt.Errorf("bundle: generate: %w", &BudgetExceededError{Section: "texture", Requested: len(textureBytes), Limit: b.opts.TextureMemSize})
	}

	mainBytes := b.main.Bytes()
	for img, recordOffset := range b.frameOffsets {
		rec := textureFrameRecord{
			ImagePage:   uint16(img.Place.Page),
			PalettePage: uint16(img.Pal.Page),
			X:           uint8(img.Place.X),
			Y:           uint8(img.Place.Y),
			MarginX:     uint8(img.LeftMargin.X),
			MarginY:     uint8(img.LeftMargin.Y),
			InnerW:      uint8(img.InnerWidth),
			InnerH:      uint8(img.InnerHeight),
			PaletteXY:   img.PaletteXY(),
			Flags:       img.Flags(),
		}

		var buf bytes.Buffer
		if err := binary.Write(&buf, binary.LittleEndian, &rec); err != nil {
			return fmt.Errorf("bundle: generate: failed to encode frame record: %w", err)
		}
		copy(mainBytes[recordOffset:recordOffset+16], buf.Bytes())
	}

	indexBytes, err := b.index.Build()
	if err != nil {
		return fmt.Errorf("bundle: generate: %w", err)
	}

	b.finalTexture = padTo(textureBytes, SectorSize)
	b.finalAudio = padTo(append([]byte{}, b.audio.Bytes()...), SectorSize)
	b.finalMain = padTo(mainBytes, SectorSize)
	// The header section is the 32-byte preamble plus the index, padded
	// together as a single unit to the sector boundary (spec.md §6).
	b.finalIndex = padWithBase(indexBytes, 32, SectorSize)
	b.bucketCounts = counts
	b.generated = true

	return nil
}

// Serialize writes the finished bundle to w: the 32-byte preamble, the
// padded index, then the texture, audio and main sections in order.
// Generate must have already succeeded.
func (b *Builder) Serialize(w io.Writer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.generated {
		return fmt.Errorf("bundle: serialize: Generate has not been called")
	}

	headerLength := 32 + len(b.finalIndex)

	hdr := header{
		Version:       FormatVersion,
		HeaderLength:  uint32(headerLength),
		TextureLength: uint32(len(b.finalTexture)),
		AudioLength:   uint32(len(b.finalAudio)),
		MainLength:    uint32(len(b.finalMain)),
		BucketCounts: [4]uint8{
			uint8(b.bucketCounts[0]),
			uint8(b.bucketCounts[1]),
			uint8(b.bucketCounts[2]),
			uint8(b.bucketCounts[3]),
		},
	}
	copy(hdr.Magic[:], Magic)

	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("bundle: serialize: failed to write header: %w", err)
	}
	if _, err := w.Write(b.finalIndex); err != nil {
		return fmt.Errorf("bundle: serialize: failed to write index: %w", err)
	}
	if _, err := w.Write(b.finalTexture); err != nil {
		return fmt.Errorf("bundle: serialize: failed to write texture section: %w", err)
	}
	if _, err := w.Write(b.finalAudio); err != nil {
		return fmt.Errorf("bundle: serialize: failed to write audio section: %w", err)
	}
	if _, err := w.Write(b.finalMain); err != nil {
		return fmt.Errorf("bundle: serialize: failed to write main section: %w", err)
	}

	return nil
}
