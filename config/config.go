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

// Package config holds the concrete, unknown-key-rejecting configuration
// record for a bundle build, replacing the free-form options dictionary of
// the original tool (design note in spec.md §9).
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// PackOptions configures the image packer's search and the palette
// packer's hash behavior.
type PackOptions struct {
	// DiscardStep is the smallest shrink step tried by the packer's search.
	DiscardStep int `json:"discardStep"`
	// TrySplits also tries the inverted split-axis heuristic.
	TrySplits bool `json:"trySplits"`
	// PreservePalettes disables LSB-masking in palette hashing when true.
	PreservePalettes bool `json:"preservePalettes"`
}

// DefaultPackOptions returns the documented defaults from spec.md §6.
func DefaultPackOptions() PackOptions {
	return PackOptions{DiscardStep: 1, TrySplits: false, PreservePalettes: false}
}

// BuildOptions configures one full bundle build: the packer behavior plus
// the per-section resource budgets.
type BuildOptions struct {
	Pack           PackOptions `json:"pack"`
	MainDataSize   int         `json:"mainDataSize"`
	TextureMemSize int         `json:"textureMemSize"`
	AudioMemSize   int         `json:"audioMemSize"`
}

// DefaultBuildOptions returns the documented resource bounds from spec.md §5.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		Pack:           DefaultPackOptions(),
		MainDataSize:   0x180000,
		TextureMemSize: 0x100000,
		AudioMemSize:   0x7D000,
	}
}

// Load parses a JSON document into BuildOptions, starting from the
// documented defaults and rejecting unknown keys at parse time (spec.md
// §9: "unknown keys reject at parse time").
func Load(r io.Reader) (BuildOptions, error) {
	opts := DefaultBuildOptions()

	data, err := io.ReadAll(r)
	if err != nil {
		return opts, fmt.Errorf("config: failed to read options: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return opts, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil {
		return opts, fmt.Errorf("config: failed to parse options: %w", err)
	}

	if opts.Pack.DiscardStep < 1 {
		opts.Pack.DiscardStep = 1
	}

	return opts, nil
}
