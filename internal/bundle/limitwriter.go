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

import "io"

// budgetWriter caps the bytes written to the underlying section buffer,
// refusing (rather than silently truncating) once the section's resource
// bound would be exceeded.
type budgetWriter struct {
	section string
	w       io.Writer
	limit   int
	written int
}

func newBudgetWriter(section string, w io.Writer, limit, alreadyWritten int) *budgetWriter {
	return &budgetWriter{section: section, w: w, limit: limit, written: alreadyWritten}
}

func (w *budgetWriter) Write(p []byte) (int, error) {
	if w.written+len(p) > w.limit {
		return 0, &BudgetExceededError{Section: w.section, Requested: w.written + len(p), Limit: w.limit}
	}

	n, err := w.w.Write(p)
	w.written += n
	return n, err
}

// padTo appends zero bytes until length is a multiple of alignment.
func padTo(data []byte, alignment int) []byte {
	rem := len(data) % alignment
	if rem == 0 {
		return data
	}
	return append(data, make([]byte, alignment-rem)...)
}

// padWithBase appends zero bytes to data until base+len(data) is a
// multiple of alignment, for sections preceded by a fixed-size header that
// counts towards the same alignment boundary.
func padWithBase(data []byte, base, alignment int) []byte {
	rem := (base + len(data)) % alignment
	if rem == 0 {
		return data
	}
	return append(data, make([]byte, alignment-rem)...)
}
