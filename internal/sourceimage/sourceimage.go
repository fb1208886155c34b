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

// Package sourceimage decodes the PNG/JPEG art assets fed to
// internal/quantize, reading through the same bounded offsetReader idiom
// the bundle format itself is built with.
package sourceimage

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/goburrow/cache"
)

// offsetReader reads sequentially starting at a fixed byte offset into f,
// mirroring the bundle writer's own offset-tracking readers/writers.
type offsetReader struct {
	f      *os.File
	offset int64
}

func newOffsetReader(f *os.File, offset int64) *offsetReader {
	return &offsetReader{f: f, offset: offset}
}

func (r *offsetReader) Read(p []byte) (int, error) {
	n, err := r.f.ReadAt(p, r.offset)
	r.offset += int64(n)
	return n, err
}

// Load decodes a PNG or JPEG image from path, returning it as image.Image
// for internal/quantize to sample. The format is sniffed from the file's
// own header, not the extension.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sourceimage: failed to open %q: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(newOffsetReader(f, 0))
	if err != nil {
		return nil, fmt.Errorf("sourceimage: failed to decode %q: %w", path, err)
	}
	return img, nil
}

// LoadFrom decodes a PNG or JPEG image from an already-open reader, for
// callers that have the asset bytes in memory or embedded rather than on
// disk.
func LoadFrom(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("sourceimage: failed to decode stream: %w", err)
	}
	return img, nil
}

// Cache decodes and memoizes source images by path, the way the teacher
// bounds its table cache: a loading cache evicting the least-recently-used
// entry once full, so a manifest that repeats a path across several
// texture/background entries only decodes it once.
type Cache struct {
	loading cache.LoadingCache
}

// NewCache returns a Cache holding at most maxEntries decoded images.
func NewCache(maxEntries int) *Cache {
	c := &Cache{}
	c.loading = cache.NewLoadingCache(c.load, cache.WithMaximumSize(maxEntries))
	return c
}

func (c *Cache) load(key cache.Key) (cache.Value, error) {
	return Load(key.(string))
}

// Get returns the decoded image for path, decoding and caching it on first
// access.
func (c *Cache) Get(path string) (image.Image, error) {
	v, err := c.loading.Get(path)
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}
