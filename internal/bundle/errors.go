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

import "fmt"

// OversizeImageError is raised when a texture's inner dimensions exceed the
// 255x255 limit enforced before packing.
type OversizeImageError struct {
	Name          string
	Width, Height int
}

func (e *OversizeImageError) Error() string {
	return fmt.Sprintf("bundle: image %q is %dx%d, exceeds the 255x255 limit", e.Name, e.Width, e.Height)
}

// BudgetExceededError is raised when an append would overflow a fixed
// section budget (main data, texture memory, or audio memory).
type BudgetExceededError struct {
	Section           string
	Requested, Limit  int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("bundle: %s section budget exceeded: requested %d bytes, limit %d", e.Section, e.Requested, e.Limit)
}

// DuplicateNameError is raised when an entry's 32-bit name hash collides
// with one already present in the index.
type DuplicateNameError struct {
	Name string
	Hash uint32
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("bundle: duplicate entry name %q (hash 0x%08x)", e.Name, e.Hash)
}
