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

package bundle

// Wire-format constants and fixed-size structs, all little-endian,
// read/written with encoding/binary exactly like the teacher's Header and
// L1TableEntry.

const (
	// Magic is the 7-byte bundle magic, "fudgebn".
	Magic = "fudgebn"
	// FormatVersion is the only version this package emits or accepts.
	FormatVersion uint8 = 0x02

	// SectorSize is the alignment boundary for every bundle section.
	SectorSize = 0x800

	// MainDataSize is the default main-data section budget.
	MainDataSize = 0x180000
	// TextureMemSize is the default texture-memory section budget (32 pages).
	TextureMemSize = 0x100000
	// AudioMemSize is the default audio-memory section budget.
	AudioMemSize = 0x7D000

	// TexturePageBytes is the byte size of one 64x256 texture page.
	TexturePageBytes = 64 * 2 * 256
)

// EntryKind is the 16-bit tag identifying an index entry's payload shape.
type EntryKind uint16

const (
	KindFile        EntryKind = 0x0000
	KindTexture     EntryKind = 0x0010
	KindITexture    EntryKind = 0x0011
	KindBG          EntryKind = 0x0020
	KindIBG         EntryKind = 0x0021
	KindSound       EntryKind = 0x0030
	KindStringTable EntryKind = 0x0040
	KindCustomBase  EntryKind = 0x8000
)

// header is the fixed 32-byte bundle preamble.
type header struct {
	Magic         [7]byte
	Version       uint8
	HeaderLength  uint32
	TextureLength uint32
	AudioLength   uint32
	MainLength    uint32
	BucketCounts  [4]uint8
	_             [4]byte // pad the 28-byte preamble to the documented 32 bytes
}

// indexHeader precedes the hash-table entries within the header section.
type indexHeader struct {
	BucketCount  uint16
	ChainedCount uint16
}

// indexEntry is one 16-byte slot of the chained-bucket hash table.
type indexEntry struct {
	Hash   uint32
	Offset uint32
	Length uint32
	Kind   uint16
	Next   uint16
}

// textureFrameRecord is the 16-byte per-frame record patched in by
// Builder.Generate once atlas placement is final.
type textureFrameRecord struct {
	ImagePage   uint16
	PalettePage uint16
	X           uint8
	Y           uint8
	MarginX     uint8
	MarginY     uint8
	InnerW      uint8
	InnerH      uint8
	PaletteXY   uint16
	Flags       uint32
}

// textureHeader precedes a texture entry's frame records.
type textureHeader struct {
	Width      uint16
	Height     uint16
	FrameCount uint16
	MipLevels  uint16
}

// bgHeader precedes a background entry's raw pixel data.
type bgHeader struct {
	X      uint16
	Y      uint16
	InnerW uint16
	InnerH uint16
}

// soundHeader is the fixed record describing one sound entry's ADPCM data.
type soundHeader struct {
	LeftOffsetBlocks  uint32
	RightOffsetBlocks uint32
	LengthBlocks      uint32
	SampleRate        uint32
}
