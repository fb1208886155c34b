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

// Command fudgebundle reads a JSON manifest describing a set of art, audio
// and data assets, packs them into texture atlases and a chained-hash
// index, and writes the resulting bundle file.
package main

import (
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/consoletools/fudgebundle/config"
	"github.com/consoletools/fudgebundle/internal/adpcm"
	"github.com/consoletools/fudgebundle/internal/bundle"
	"github.com/consoletools/fudgebundle/internal/imagerec"
	"github.com/consoletools/fudgebundle/internal/quantize"
	"github.com/consoletools/fudgebundle/internal/sourceimage"
)

// manifest is the on-disk description of a single bundle build.
type manifest struct {
	Files       []fileEntry    `json:"files"`
	Textures    []textureEntry `json:"textures"`
	Backgrounds []bgEntry      `json:"backgrounds"`
	Sounds      []soundEntry   `json:"sounds"`
	Strings     []stringsEntry `json:"strings"`
}

type fileEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type textureEntry struct {
	Name       string  `json:"name"`
	Path       string  `json:"path"`
	NumColors  int     `json:"numColors"`
	Dither     float64 `json:"dither"`
	Interlaced bool    `json:"interlaced"`
}

type bgEntry struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	NumColors  int    `json:"numColors"`
	Interlaced bool   `json:"interlaced"`
}

type soundEntry struct {
	Name             string `json:"name"`
	LeftPath         string `json:"leftPath"`
	RightPath        string `json:"rightPath"`
	SampleRate       int    `json:"sampleRate"`
	LoopSampleOffset int    `json:"loopSampleOffset"`
}

type stringsEntry struct {
	Name    string               `json:"name"`
	Entries []bundle.StringEntry `json:"entries"`
}

func main() {
	manifestPath := flag.String("manifest", "", "path to the asset manifest JSON file")
	configPath := flag.String("config", "", "path to a build options JSON file (optional)")
	outPath := flag.String("out", "", "path to write the assembled bundle to")
	flag.Parse()

	if *manifestPath == "" || *outPath == "" {
		log.Fatal("fudgebundle: -manifest and -out are required")
	}

	opts, err := loadOptions(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	m, err := loadManifest(*manifestPath)
	if err != nil {
		log.Fatal(err)
	}

	b := bundle.NewBuilder(opts)
	images := sourceimage.NewCache(64)

	if err := addFiles(b, m.Files); err != nil {
		log.Fatal(err)
	}
	if err := addTextures(b, images, m.Textures); err != nil {
		log.Fatal(err)
	}
	if err := addBackgrounds(b, images, m.Backgrounds); err != nil {
		log.Fatal(err)
	}
	if err := addSounds(b, m.Sounds); err != nil {
		log.Fatal(err)
	}
	if err := addStringTables(b, m.Strings); err != nil {
		log.Fatal(err)
	}

	if err := b.Generate(); err != nil {
		log.Fatal(err)
	}

	out, err := os.Create(*outPath)
	if err != nil {
		log.Fatal(err)
	}
	defer out.Close()

	if err := b.Serialize(out); err != nil {
		log.Fatal(err)
	}

	log.Printf("fudgebundle: wrote %s", *outPath)
}

func loadOptions(path string) (config.BuildOptions, error) {
	if path == "" {
		return config.DefaultBuildOptions(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return config.BuildOptions{}, fmt.Errorf("fudgebundle: failed to open config: %w", err)
	}
	defer f.Close()

	return config.Load(f)
}

func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fudgebundle: failed to read manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("fudgebundle: failed to parse manifest: %w", err)
	}
	return &m, nil
}

func addFiles(b *bundle.Builder, entries []fileEntry) error {
	for _, e := range entries {
		data, err := os.ReadFile(e.Path)
		if err != nil {
			return fmt.Errorf("fudgebundle: failed to read file asset %q: %w", e.Name, err)
		}
		if err := b.AddFile(e.Name, data); err != nil {
			return fmt.Errorf("fudgebundle: failed to add file %q: %w", e.Name, err)
		}
	}
	return nil
}

func addTextures(b *bundle.Builder, images *sourceimage.Cache, entries []textureEntry) error {
	for _, e := range entries {
		img, err := quantizedImage(images, e.Path, e.NumColors, e.Dither)
		if err != nil {
			return fmt.Errorf("fudgebundle: failed to prepare texture %q: %w", e.Name, err)
		}
		if err := b.AddTexture(e.Name, []*imagerec.Image{img}, e.Interlaced); err != nil {
			return fmt.Errorf("fudgebundle: failed to add texture %q: %w", e.Name, err)
		}
	}
	return nil
}

func addBackgrounds(b *bundle.Builder, images *sourceimage.Cache, entries []bgEntry) error {
	for _, e := range entries {
		img, err := quantizedImage(images, e.Path, e.NumColors, 0)
		if err != nil {
			return fmt.Errorf("fudgebundle: failed to prepare background %q: %w", e.Name, err)
		}
		if err := b.AddBG(e.Name, e.X, e.Y, img, e.Interlaced); err != nil {
			return fmt.Errorf("fudgebundle: failed to add background %q: %w", e.Name, err)
		}
	}
	return nil
}

func addSounds(b *bundle.Builder, entries []soundEntry) error {
	for _, e := range entries {
		left, err := encodeChannel(e.LeftPath, e.LoopSampleOffset)
		if err != nil {
			return fmt.Errorf("fudgebundle: failed to encode sound %q: %w", e.Name, err)
		}

		var right []byte
		if e.RightPath != "" {
			right, err = encodeChannel(e.RightPath, e.LoopSampleOffset)
			if err != nil {
				return fmt.Errorf("fudgebundle: failed to encode sound %q: %w", e.Name, err)
			}
		}

		if err := b.AddSound(e.Name, left, right, e.SampleRate); err != nil {
			return fmt.Errorf("fudgebundle: failed to add sound %q: %w", e.Name, err)
		}
	}
	return nil
}

func addStringTables(b *bundle.Builder, entries []stringsEntry) error {
	for _, e := range entries {
		if err := b.AddStringTable(e.Name, e.Entries); err != nil {
			return fmt.Errorf("fudgebundle: failed to add string table %q: %w", e.Name, err)
		}
	}
	return nil
}

// quantizedImage decodes path, reduces it to numColors and wraps the result
// in an imagerec.Image. A numColors of 0 or less (16bpp direct color) is
// rejected with an error.
func quantizedImage(images *sourceimage.Cache, path string, numColors int, dither float64) (*imagerec.Image, error) {
	src, err := images.Get(path)
	if err != nil {
		return nil, err
	}

	if numColors <= 0 {
		return nil, fmt.Errorf("fudgebundle: direct-color (16bpp) textures are not supported by this CLI build")
	}

	palette, indices, err := quantize.Quantize(src, numColors, dither)
	if err != nil {
		return nil, err
	}

	pixels := make([][]uint16, len(indices))
	for y, row := range indices {
		cells := make([]uint16, len(row))
		for x, idx := range row {
			cells[x] = uint16(idx)
		}
		pixels[y] = cells
	}

	return imagerec.New(pixels, palette, imagerec.Margin{}, imagerec.Margin{}, 0, nil)
}

// encodeChannel reads a headerless little-endian 16-bit PCM file and
// compresses it into SPU ADPCM blocks, 28 samples at a time.
func encodeChannel(path string, loopSampleOffset int) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}

	sampleCount := len(raw) / 2
	samples := make([]int16, sampleCount)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}

	enc := adpcm.NewEncoder(loopSampleOffset)
	out := make([]byte, 0, (sampleCount/adpcm.SamplesPerBlock+1)*16)

	for offset := 0; offset < sampleCount; offset += adpcm.SamplesPerBlock {
		var block [adpcm.SamplesPerBlock]int16
		copy(block[:], samples[offset:])

		flags := adpcm.BlockFlags(0)
		if offset+adpcm.SamplesPerBlock >= sampleCount {
			flags = adpcm.LoopEnd | adpcm.LoopRepeat
		}

		encoded := enc.EncodeBlock(block, flags)
		out = append(out, encoded[:]...)
	}

	return out, nil
}
