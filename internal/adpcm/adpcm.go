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

// Package adpcm encodes PCM samples into the console's 16-byte SPU ADPCM
// blocks: a 4-bit predictor/shift header pair, a loop flag byte, and 28
// four-bit nibbles. One Encoder tracks the two-sample predictor history for
// a single audio channel across consecutive blocks.
package adpcm

// BlockFlags carries the SPU loop-control bits stored in a block's flag
// byte. They compose like the source tool's LoopFlags enum.
type BlockFlags uint8

const (
	LoopEnd    BlockFlags = 1 << 0
	LoopRepeat BlockFlags = 1 << 1
	LoopStart  BlockFlags = 1 << 2
)

// SamplesPerBlock is the number of PCM samples consumed per encoded block.
const SamplesPerBlock = 28

// filter coefficients in 1/64ths, matching the SPU's four fixed predictors
// plus the degenerate zero predictor.
var filterK0 = [5]float64{0, 60.0 / 64, 115.0 / 64, 98.0 / 64, 122.0 / 64}
var filterK1 = [5]float64{0, 0, -52.0 / 64, -55.0 / 64, -60.0 / 64}

// Encoder holds per-channel ADPCM predictor state across 28-sample blocks.
type Encoder struct {
	loopSampleOffset int
	hist1, hist2     float64
}

// NewEncoder starts a fresh predictor history for a channel whose intended
// loop point is loopSampleOffset samples into the stream. The offset is
// informational only: callers decide which blocks carry LoopStart/LoopEnd
// via the flags passed to EncodeBlock.
func NewEncoder(loopSampleOffset int) *Encoder {
	return &Encoder{loopSampleOffset: loopSampleOffset}
}

// LoopSampleOffset returns the offset the encoder was constructed with.
func (e *Encoder) LoopSampleOffset() int {
	return e.loopSampleOffset
}

// EncodeBlock compresses 28 samples into one 16-byte SPU ADPCM block,
// advancing the encoder's predictor history for the next call.
func (e *Encoder) EncodeBlock(samples [SamplesPerBlock]int16, flags BlockFlags) [16]byte {
	filter, shift := e.chooseFilterAndShift(samples)

	var block [16]byte
	block[0] = byte(shift&0x0F) | byte(filter&0x0F)<<4
	block[1] = byte(flags)

	s1, s2 := e.hist1, e.hist2
	k0, k1 := filterK0[filter], filterK1[filter]
	scale := float64(int64(1) << uint(shift))

	for i := 0; i < SamplesPerBlock; i++ {
		predicted := s1*k0 + s2*k1
		residual := float64(samples[i]) - predicted

		nibble := clampNibble(int64(roundHalfAway(residual / scale)))

		decoded := predicted + float64(nibble)*scale
		decoded = clampSample(decoded)

		s2 = s1
		s1 = decoded

		byteIdx := 2 + i/2
		if i%2 == 0 {
			block[byteIdx] = byte(nibble) & 0x0F
		} else {
			block[byteIdx] |= byte(nibble&0x0F) << 4
		}
	}

	e.hist1, e.hist2 = s1, s2
	return block
}

// chooseFilterAndShift picks the predictor/shift pair that keeps every
// sample's quantized residual representable in 4 bits while minimizing the
// block's total squared error, mirroring the reference encoder's two-pass
// search (predict against original samples, then replay with the decoder's
// own reconstructed history).
func (e *Encoder) chooseFilterAndShift(samples [SamplesPerBlock]int16) (filter, shift int) {
	bestFilter, bestShift := 0, 0
	bestError := -1.0

	for f := 0; f < len(filterK0); f++ {
		s1, s2 := e.hist1, e.hist2
		k0, k1 := filterK0[f], filterK1[f]

		maxAbs := 0.0
		for i := 0; i < SamplesPerBlock; i++ {
			predicted := s1*k0 + s2*k1
			residual := float64(samples[i]) - predicted
			if abs := absFloat(residual); abs > maxAbs {
				maxAbs = abs
			}
			s2 = s1
			s1 = float64(samples[i])
		}

		candidateShift := shiftForMagnitude(maxAbs)

		sqErr := e.simulatedError(samples, f, candidateShift)
		if bestError < 0 || sqErr < bestError {
			bestError = sqErr
			bestFilter = f
			bestShift = candidateShift
		}
	}

	return bestFilter, bestShift
}

// simulatedError replays a filter/shift candidate using the decoder's own
// reconstructed history (not the original waveform) and returns the total
// squared error against the original samples.
func (e *Encoder) simulatedError(samples [SamplesPerBlock]int16, filter, shift int) float64 {
	s1, s2 := e.hist1, e.hist2
	k0, k1 := filterK0[filter], filterK1[filter]
	scale := float64(int64(1) << uint(shift))

	total := 0.0
	for i := 0; i < SamplesPerBlock; i++ {
		predicted := s1*k0 + s2*k1
		residual := float64(samples[i]) - predicted
		nibble := clampNibble(int64(roundHalfAway(residual / scale)))
		decoded := clampSample(predicted + float64(nibble)*scale)

		diff := float64(samples[i]) - decoded
		total += diff * diff

		s2 = s1
		s1 = decoded
	}
	return total
}

// shiftForMagnitude returns the smallest shift in [0, 12] such that a
// residual of the given magnitude quantizes into a signed 4-bit nibble.
func shiftForMagnitude(maxAbs float64) int {
	for shift := 0; shift < 12; shift++ {
		if maxAbs < 7*float64(int64(1)<<uint(shift)) {
			return shift
		}
	}
	return 12
}

func clampNibble(v int64) int64 {
	switch {
	case v > 7:
		return 7
	case v < -8:
		return -8
	default:
		return v
	}
}

func clampSample(v float64) float64 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return v
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func roundHalfAway(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return float64(int64(v - 0.5))
}
