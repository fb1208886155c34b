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

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/consoletools/fudgebundle/internal/hash32"
)

type indexRecord struct {
	name   string
	hash   uint32
	offset uint32
	length uint32
	kind   EntryKind
}

// IndexBuilder accumulates named entries in insertion order and builds the
// power-of-two chained-bucket hash table described in §4.E/§6.
type IndexBuilder struct {
	order  []indexRecord
	byHash map[uint32]struct{}
}

// NewIndexBuilder returns an empty builder.
func NewIndexBuilder() *IndexBuilder {
	return &IndexBuilder{byHash: make(map[uint32]struct{})}
}

// Add registers name -> (offset, length, kind). It fails with
// DuplicateNameError if name's sdbm hash is already present.
func (b *IndexBuilder) Add(name string, offset, length uint32, kind EntryKind) error {
	h := hash32.String(name)
	if _, ok := b.byHash[h]; ok {
		return &DuplicateNameError{Name: name, Hash: h}
	}

	b.byHash[h] = struct{}{}
	b.order = append(b.order, indexRecord{name: name, hash: h, offset: offset, length: length, kind: kind})
	return nil
}

// Len returns the number of registered entries.
func (b *IndexBuilder) Len() int {
	return len(b.order)
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Build serializes the index header followed by bucketCount+chainedCount
// entries, little-endian, per §6. Iteration over registered entries follows
// insertion order, matching the determinism guarantee of §5.
func (b *IndexBuilder) Build() ([]byte, error) {
	bucketCount := nextPowerOfTwo(len(b.order))
	if bucketCount == 0 {
		bucketCount = 1
	}

	slots := make([]indexEntry, bucketCount)
	occupied := make([]bool, bucketCount)
	var chain []indexEntry

	for _, rec := range b.order {
		idx := int(rec.hash) % bucketCount
		entry := indexEntry{Hash: rec.hash, Offset: rec.offset, Length: rec.length, Kind: uint16(rec.kind)}

		if !occupied[idx] {
			slots[idx] = entry
			occupied[idx] = true
			continue
		}

		cur := idx
		for {
			var link uint16
			if cur < bucketCount {
				link = slots[cur].Next
			} else {
				link = chain[cur-bucketCount].Next
			}
			if link == 0 {
				break
			}
			cur = int(link)
		}

		chainIdx := bucketCount + len(chain)
		chain = append(chain, entry)

		if cur < bucketCount {
			slots[cur].Next = uint16(chainIdx)
		} else {
			chain[cur-bucketCount].Next = uint16(chainIdx)
		}
	}

	buf := new(bytes.Buffer)
	hdr := indexHeader{BucketCount: uint16(bucketCount), ChainedCount: uint16(len(chain))}
	if err := binary.Write(buf, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("bundle: failed to write index header: %w", err)
	}

	for i := range slots {
		if err := binary.Write(buf, binary.LittleEndian, &slots[i]); err != nil {
			return nil, fmt.Errorf("bundle: failed to write index bucket %d: %w", i, err)
		}
	}
	for i := range chain {
		if err := binary.Write(buf, binary.LittleEndian, &chain[i]); err != nil {
			return nil, fmt.Errorf("bundle: failed to write index chain entry %d: %w", i, err)
		}
	}

	return buf.Bytes(), nil
}

// Lookup replays the runtime's probe-then-chase algorithm against a
// serialized index, for round-trip testing.
func Lookup(serialized []byte, name string) (hash, offset, length uint32, kind uint16, found bool) {
	r := bytes.NewReader(serialized)

	var hdr indexHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return 0, 0, 0, 0, false
	}

	total := int(hdr.BucketCount) + int(hdr.ChainedCount)
	entries := make([]indexEntry, total)
	for i := range entries {
		if err := binary.Read(r, binary.LittleEndian, &entries[i]); err != nil {
			return 0, 0, 0, 0, false
		}
	}

	h := hash32.String(name)
	cur := int(h) % int(hdr.BucketCount)

	for {
		e := entries[cur]
		if e.Hash == h && (e.Kind != 0 || e.Offset != 0 || e.Length != 0 || e.Next != 0) {
			return e.Hash, e.Offset, e.Length, e.Kind, true
		}
		if e.Next == 0 {
			return 0, 0, 0, 0, false
		}
		cur = int(e.Next)
	}
}
